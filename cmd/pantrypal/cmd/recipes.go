package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/jmcleod/pantrypal/api"
	"github.com/jmcleod/pantrypal/internal/debounce"
)

func newRecipesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "recipes",
		Aliases: []string{"recipe"},
		Short:   "Browse and create recipes",
	}
	cmd.AddCommand(
		newRecipeSearchCmd(a),
		newRecipeShowCmd(a),
		newRecipeCreateCmd(a),
		&cobra.Command{
			Use:   "mine",
			Short: "List the recipes you created",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := a.requireLogin(); err != nil {
					return err
				}
				recipes, err := a.api.Recipes.Mine(cmd.Context())
				if err != nil {
					return err
				}
				return a.render(recipes, recipeTable(recipes, true))
			},
		},
	)
	return cmd
}

func newRecipeSearchCmd(a *app) *cobra.Command {
	var difficulty string
	var watch bool
	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search public recipes",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := parseDifficulty(difficulty, true)
			if err != nil {
				return err
			}
			if watch {
				return a.watchSearch(cmd.Context(), d)
			}
			q := api.RecipeQuery{Search: strings.Join(args, " "), Difficulty: d}
			recipes, err := a.api.Recipes.Search(cmd.Context(), q)
			if err != nil {
				return err
			}
			return a.render(recipes, recipeTable(recipes, false))
		},
	}
	cmd.Flags().StringVarP(&difficulty, "difficulty", "d", "all", "Filter by difficulty: all, easy, medium, hard")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Read queries line by line from stdin and search as you type")
	return cmd
}

// watchSearch runs a search for the last line typed once input pauses.
func (a *app) watchSearch(ctx context.Context, d api.Difficulty) error {
	deb := debounce.New(debounce.DefaultDelay)
	defer deb.Stop()

	var mu sync.Mutex
	search := func(text string) func() {
		return func() {
			recipes, err := a.api.Recipes.Search(ctx, api.RecipeQuery{Search: text, Difficulty: d})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				fmt.Fprintln(a.errOut, "search failed:", describe(err))
				return
			}
			fmt.Fprintf(a.out, "# %q\n", text)
			if err := a.render(recipes, recipeTable(recipes, false)); err != nil {
				a.logger.Warn("rendering search results", "error", err)
			}
		}
	}

	sc := bufio.NewScanner(a.in)
	for sc.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		deb.Trigger(search(strings.TrimSpace(sc.Text())))
	}
	deb.Flush()
	return sc.Err()
}

func newRecipeShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a recipe, with what your pantry is missing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "recipe")
			if err != nil {
				return err
			}
			detail, err := a.api.Recipes.Get(cmd.Context(), id)
			if err != nil {
				return err
			}

			var missing []api.RecipeIngredient
			signedIn := a.store.State().Authenticated()
			if signedIn {
				pantry, err := a.api.Pantry.List(cmd.Context())
				if err != nil {
					return err
				}
				missing = api.MissingIngredients(detail, pantry)
			}

			out := struct {
				api.RecipeDetail
				Missing []api.RecipeIngredient `json:"missing,omitempty"`
			}{detail, missing}
			return a.render(out, func(w io.Writer) {
				fmt.Fprintf(w, "%s\n\n", detail.Title)
				if detail.Description != "" {
					fmt.Fprintf(w, "%s\n\n", detail.Description)
				}
				fmt.Fprintf(w, "Difficulty:\t%s\n", detail.Difficulty)
				fmt.Fprintf(w, "Time:\t%d min\n", detail.CookingTimeMinutes)
				fmt.Fprintf(w, "Author:\t%s\n\n", detail.AuthorName)
				fmt.Fprintln(w, "Ingredients:")
				for _, ing := range detail.Ingredients {
					fmt.Fprintf(w, "  %s\t%s %s\n", ing.Name, ing.Quantity, ing.Unit)
				}
				fmt.Fprintf(w, "\n%s\n", detail.Instructions)
				switch {
				case !signedIn:
				case len(missing) == 0:
					fmt.Fprintln(w, "\nYou have everything you need.")
				default:
					names := make([]string, len(missing))
					for i, m := range missing {
						names[i] = m.Name
					}
					fmt.Fprintf(w, "\nMissing: %s\n", strings.Join(names, ", "))
				}
			})
		},
	}
}

func newRecipeCreateCmd(a *app) *cobra.Command {
	var (
		r           api.NewRecipe
		difficulty  string
		ingredients []string
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Submit a new recipe for review",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireLogin(); err != nil {
				return err
			}
			d, err := parseDifficulty(difficulty, false)
			if err != nil {
				return err
			}
			r.Difficulty = d
			for _, raw := range ingredients {
				ing, err := a.parseRecipeIngredient(cmd.Context(), raw)
				if err != nil {
					return err
				}
				r.Ingredients = append(r.Ingredients, ing)
			}

			created, err := a.api.Recipes.Create(cmd.Context(), r)
			if err != nil {
				return err
			}
			return a.render(created, func(w io.Writer) {
				fmt.Fprintf(w, "Created recipe %d %q (%s).\n", created.ID, created.Title, created.Status)
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&r.Title, "title", "", "Recipe title")
	f.StringVar(&r.Description, "description", "", "Short description")
	f.StringVar(&r.Instructions, "instructions", "", "Cooking instructions")
	f.StringVar(&difficulty, "difficulty", "easy", "easy, medium or hard")
	f.IntVar(&r.CookingTimeMinutes, "minutes", 0, "Cooking time in minutes")
	f.StringArrayVarP(&ingredients, "ingredient", "i", nil, `Ingredient as "name-or-id:quantity:unit" (repeatable)`)
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

// parseRecipeIngredient parses "name-or-id:quantity:unit". Unit is optional.
func (a *app) parseRecipeIngredient(ctx context.Context, raw string) (api.NewRecipeIngredient, error) {
	parts := strings.SplitN(raw, ":", 3)
	if len(parts) < 2 || strings.TrimSpace(parts[0]) == "" {
		return api.NewRecipeIngredient{}, fmt.Errorf("invalid ingredient %q, want name:quantity[:unit]", raw)
	}
	ing, err := a.resolveIngredient(ctx, strings.TrimSpace(parts[0]))
	if err != nil {
		return api.NewRecipeIngredient{}, err
	}
	out := api.NewRecipeIngredient{Ingredient: ing.ID, Quantity: strings.TrimSpace(parts[1])}
	if len(parts) == 3 {
		out.Unit = strings.TrimSpace(parts[2])
	}
	return out, nil
}

func parseDifficulty(s string, allowAll bool) (api.Difficulty, error) {
	d := api.Difficulty(strings.ToLower(strings.TrimSpace(s)))
	switch d {
	case api.DifficultyEasy, api.DifficultyMedium, api.DifficultyHard:
		return d, nil
	case api.DifficultyAll, "":
		if allowAll {
			return api.DifficultyAll, nil
		}
	}
	return "", fmt.Errorf("invalid difficulty %q", s)
}

func recipeTable(recipes []api.Recipe, withStatus bool) func(io.Writer) {
	return func(w io.Writer) {
		if len(recipes) == 0 {
			fmt.Fprintln(w, "No recipes found.")
			return
		}
		if withStatus {
			fmt.Fprintln(w, "ID\tTITLE\tDIFFICULTY\tMINUTES\tSTATUS")
		} else {
			fmt.Fprintln(w, "ID\tTITLE\tDIFFICULTY\tMINUTES")
		}
		for _, r := range recipes {
			fmt.Fprintf(w, "%d\t%s\t%s\t%d", r.ID, r.Title, r.Difficulty, r.CookingTimeMinutes)
			if withStatus {
				fmt.Fprintf(w, "\t%s", r.Status)
			}
			fmt.Fprintln(w)
		}
	}
}
