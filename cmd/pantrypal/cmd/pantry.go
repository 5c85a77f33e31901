package cmd

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jmcleod/pantrypal/api"
)

func newPantryCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pantry",
		Short: "Manage the ingredients you have at home",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List pantry items",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := a.requireLogin(); err != nil {
					return err
				}
				items, err := a.api.Pantry.List(cmd.Context())
				if err != nil {
					return err
				}
				return a.render(items, func(w io.Writer) {
					if len(items) == 0 {
						fmt.Fprintln(w, "Your pantry is empty.")
						return
					}
					fmt.Fprintln(w, "ID\tINGREDIENT\tQUANTITY")
					for _, it := range items {
						fmt.Fprintf(w, "%d\t%s\t%s\n", it.ID, it.IngredientName, it.Quantity)
					}
				})
			},
		},
		&cobra.Command{
			Use:   "add <ingredient> <quantity>",
			Short: "Add an ingredient, by name or catalogue ID",
			Args:  cobra.MinimumNArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := a.requireLogin(); err != nil {
					return err
				}
				ing, err := a.resolveIngredient(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				item, err := a.api.Pantry.Add(cmd.Context(), ing.ID, strings.Join(args[1:], " "))
				if err != nil {
					return err
				}
				return a.render(item, func(w io.Writer) {
					fmt.Fprintf(w, "Added %s (%s) to your pantry.\n", item.IngredientName, item.Quantity)
				})
			},
		},
	)
	return cmd
}

// resolveIngredient accepts a catalogue ID or a case-insensitive name.
func (a *app) resolveIngredient(ctx context.Context, arg string) (api.Ingredient, error) {
	if id, err := strconv.ParseInt(arg, 10, 64); err == nil {
		return api.Ingredient{ID: id}, nil
	}
	ing, ok, err := a.api.Ingredients.Find(ctx, arg)
	if err != nil {
		return api.Ingredient{}, err
	}
	if !ok {
		return api.Ingredient{}, fmt.Errorf("no ingredient named %q; see \"pantrypal ingredients list\"", arg)
	}
	return ing, nil
}
