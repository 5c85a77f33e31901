package api

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"
)

// maxConcurrentAdds bounds the posts AddMissing keeps in flight.
const maxConcurrentAdds = 4

// ShoppingListService manages the user's shopping list.
type ShoppingListService struct {
	api *API
}

func (s *ShoppingListService) List(ctx context.Context) ([]ShoppingItem, error) {
	var out []ShoppingItem
	err := s.api.getJSON(ctx, "/shopping-list/", &out)
	return out, err
}

func (s *ShoppingListService) Add(ctx context.Context, ingredientID int64, quantity string) (ShoppingItem, error) {
	var out ShoppingItem
	err := s.api.postJSON(ctx, "/shopping-list/", quantityRequest{Ingredient: ingredientID, Quantity: quantity}, &out)
	return out, err
}

// SetChecked ticks or unticks an item.
func (s *ShoppingListService) SetChecked(ctx context.Context, id int64, checked bool) (ShoppingItem, error) {
	var out ShoppingItem
	err := s.api.patchJSON(ctx, fmt.Sprintf("/shopping-list/%d/", id), checkedRequest{IsChecked: checked}, &out)
	return out, err
}

func (s *ShoppingListService) Remove(ctx context.Context, id int64) error {
	return s.api.delete(ctx, fmt.Sprintf("/shopping-list/%d/", id))
}

// AddMissing puts every recipe ingredient the pantry lacks on the shopping
// list and returns the created items in recipe order. The first failure
// cancels the remaining posts.
func (s *ShoppingListService) AddMissing(ctx context.Context, recipe RecipeDetail, pantry []PantryItem) ([]ShoppingItem, error) {
	missing := MissingIngredients(recipe, pantry)
	if len(missing) == 0 {
		return nil, nil
	}

	added := make([]ShoppingItem, len(missing))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentAdds)
	for i, ing := range missing {
		g.Go(func() error {
			item, err := s.Add(ctx, ing.ID, formatQuantity(ing))
			if err != nil {
				return fmt.Errorf("adding %s: %w", ing.Name, err)
			}
			added[i] = item
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	s.api.logger.Info("missing ingredients added to shopping list", "recipe_id", recipe.ID, "count", len(added))
	return added, nil
}

// MissingIngredients returns the recipe's ingredients whose catalogue ID is
// not in the pantry, in recipe order.
func MissingIngredients(recipe RecipeDetail, pantry []PantryItem) []RecipeIngredient {
	have := make(map[int64]struct{}, len(pantry))
	for _, p := range pantry {
		have[p.IngredientID] = struct{}{}
	}
	var out []RecipeIngredient
	for _, ing := range recipe.Ingredients {
		if _, ok := have[ing.ID]; !ok {
			out = append(out, ing)
		}
	}
	return out
}

func formatQuantity(ing RecipeIngredient) string {
	return strings.TrimSpace(ing.Quantity + " " + ing.Unit)
}
