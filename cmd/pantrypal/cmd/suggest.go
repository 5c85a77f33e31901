package cmd

import (
	"github.com/spf13/cobra"

	"github.com/jmcleod/pantrypal/api"
)

func newSuggestCmd(a *app) *cobra.Command {
	var (
		mode    string
		exclude []string
	)
	cmd := &cobra.Command{
		Use:   "suggest",
		Short: "Suggest recipes you can cook from your pantry",
		Long: `Suggest recipes based on your pantry.

In strict mode every ingredient must be in the pantry. In flexible mode
recipes missing one or two ingredients are listed, fewest missing first.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireLogin(); err != nil {
				return err
			}
			q := api.SuggestionQuery{Mode: api.SuggestionMode(mode)}
			for _, e := range exclude {
				ing, err := a.resolveIngredient(cmd.Context(), e)
				if err != nil {
					return err
				}
				q.Exclude = append(q.Exclude, ing.ID)
			}
			recipes, err := a.api.Suggestions.Get(cmd.Context(), q)
			if err != nil {
				return err
			}
			return a.render(recipes, recipeTable(recipes, false))
		},
	}
	cmd.Flags().StringVarP(&mode, "mode", "m", string(api.ModeStrict), "strict or flexible")
	cmd.Flags().StringArrayVarP(&exclude, "exclude", "x", nil, "Skip recipes using this ingredient, by name or ID (repeatable)")
	return cmd
}
