package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

func newFavoritesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "favorites",
		Aliases: []string{"fav"},
		Short:   "Manage favorite recipes",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := cmd.Root().PersistentPreRunE(cmd, args); err != nil {
				return err
			}
			return a.requireLogin()
		},
	}

	setFavorite := func(on bool) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "recipe")
			if err != nil {
				return err
			}
			if err := a.api.Favorites.Set(cmd.Context(), id, on); err != nil {
				return err
			}
			return setFavoriteResult(a, id, on)
		}
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List favorite recipes",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				favs, err := a.api.Favorites.List(cmd.Context())
				if err != nil {
					return err
				}
				return a.render(favs, recipeTable(favs, false))
			},
		},
		&cobra.Command{
			Use:   "add <recipe-id>",
			Short: "Mark a recipe as favorite",
			Args:  cobra.ExactArgs(1),
			RunE:  setFavorite(true),
		},
		&cobra.Command{
			Use:   "remove <recipe-id>",
			Short: "Unmark a favorite recipe",
			Args:  cobra.ExactArgs(1),
			RunE:  setFavorite(false),
		},
		&cobra.Command{
			Use:   "toggle <recipe-id>",
			Short: "Flip a recipe's favorite state",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := parseID(args[0], "recipe")
				if err != nil {
					return err
				}
				// The local set is only as fresh as the last list.
				if _, err := a.api.Favorites.List(cmd.Context()); err != nil {
					return err
				}
				on, err := a.api.Favorites.Toggle(cmd.Context(), id)
				if err != nil {
					return err
				}
				return setFavoriteResult(a, id, on)
			},
		},
	)
	return cmd
}

func setFavoriteResult(a *app, id int64, on bool) error {
	out := struct {
		RecipeID int64 `json:"recipe_id"`
		Favorite bool  `json:"favorite"`
	}{id, on}
	return a.render(out, func(w io.Writer) {
		if on {
			fmt.Fprintf(w, "Recipe %d added to favorites.\n", id)
		} else {
			fmt.Fprintf(w, "Recipe %d removed from favorites.\n", id)
		}
	})
}
