package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

func newIngredientsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingredients",
		Short: "Browse the shared ingredient catalogue",
	}

	var description string
	contribute := &cobra.Command{
		Use:   "contribute <name>",
		Short: "Add an ingredient to the catalogue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireLogin(); err != nil {
				return err
			}
			ing, err := a.api.Ingredients.Contribute(cmd.Context(), args[0], description)
			if err != nil {
				return err
			}
			return a.render(ing, func(w io.Writer) {
				fmt.Fprintf(w, "Added %s (id %d) to the catalogue.\n", ing.Name, ing.ID)
			})
		},
	}
	contribute.Flags().StringVarP(&description, "description", "d", "", "Short description")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List catalogue ingredients",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				items, err := a.api.Ingredients.List(cmd.Context())
				if err != nil {
					return err
				}
				return a.render(items, func(w io.Writer) {
					fmt.Fprintln(w, "ID\tNAME\tDESCRIPTION")
					for _, ing := range items {
						fmt.Fprintf(w, "%d\t%s\t%s\n", ing.ID, ing.Name, ing.Description)
					}
				})
			},
		},
		contribute,
	)
	return cmd
}
