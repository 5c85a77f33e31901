package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jmcleod/pantrypal/api"
)

func newShoppingCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "shopping",
		Aliases: []string{"shop"},
		Short:   "Manage the shopping list",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := cmd.Root().PersistentPreRunE(cmd, args); err != nil {
				return err
			}
			return a.requireLogin()
		},
	}

	check := func(on bool) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "item")
			if err != nil {
				return err
			}
			item, err := a.api.ShoppingList.SetChecked(cmd.Context(), id, on)
			if err != nil {
				return err
			}
			return a.render(item, shoppingTable([]api.ShoppingItem{item}))
		}
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "Show the shopping list",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				items, err := a.api.ShoppingList.List(cmd.Context())
				if err != nil {
					return err
				}
				return a.render(items, shoppingTable(items))
			},
		},
		&cobra.Command{
			Use:   "add <ingredient> <quantity>",
			Short: "Add an ingredient, by name or catalogue ID",
			Args:  cobra.MinimumNArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				ing, err := a.resolveIngredient(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				item, err := a.api.ShoppingList.Add(cmd.Context(), ing.ID, strings.Join(args[1:], " "))
				if err != nil {
					return err
				}
				return a.render(item, shoppingTable([]api.ShoppingItem{item}))
			},
		},
		&cobra.Command{
			Use:   "check <item-id>",
			Short: "Tick an item off",
			Args:  cobra.ExactArgs(1),
			RunE:  check(true),
		},
		&cobra.Command{
			Use:   "uncheck <item-id>",
			Short: "Untick an item",
			Args:  cobra.ExactArgs(1),
			RunE:  check(false),
		},
		&cobra.Command{
			Use:     "remove <item-id>",
			Aliases: []string{"rm"},
			Short:   "Delete an item",
			Args:    cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := parseID(args[0], "item")
				if err != nil {
					return err
				}
				if err := a.api.ShoppingList.Remove(cmd.Context(), id); err != nil {
					return err
				}
				fmt.Fprintf(a.out, "Removed item %d.\n", id)
				return nil
			},
		},
		&cobra.Command{
			Use:   "add-missing <recipe-id>",
			Short: "Add everything a recipe needs that the pantry lacks",
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
				pantry, err := a.api.Pantry.List(cmd.Context())
				if err != nil {
					return err
				}
				added, err := a.api.ShoppingList.AddMissing(cmd.Context(), detail, pantry)
				if err != nil {
					return err
				}
				if added == nil {
					added = []api.ShoppingItem{}
				}
				return a.render(added, func(w io.Writer) {
					if len(added) == 0 {
						fmt.Fprintf(w, "Your pantry already covers %q.\n", detail.Title)
						return
					}
					shoppingTable(added)(w)
				})
			},
		},
	)
	return cmd
}

func shoppingTable(items []api.ShoppingItem) func(io.Writer) {
	return func(w io.Writer) {
		if len(items) == 0 {
			fmt.Fprintln(w, "Your shopping list is empty.")
			return
		}
		fmt.Fprintln(w, "ID\t\tINGREDIENT\tQUANTITY")
		for _, it := range items {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", it.ID, checkMark(it.IsChecked), it.IngredientName, it.Quantity)
		}
	}
}
