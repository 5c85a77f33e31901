package api

import (
	"context"
	"errors"
	"strings"
)

// IngredientService reads and extends the shared ingredient catalogue.
type IngredientService struct {
	api *API
}

// List returns the whole catalogue. It works signed out.
func (s *IngredientService) List(ctx context.Context) ([]Ingredient, error) {
	var out []Ingredient
	err := s.api.getJSON(ctx, "/ingredients/", &out)
	return out, err
}

// Contribute adds a new ingredient to the catalogue.
func (s *IngredientService) Contribute(ctx context.Context, name, description string) (Ingredient, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Ingredient{}, errors.New("ingredient name is required")
	}
	var out Ingredient
	err := s.api.postJSON(ctx, "/ingredients/", newIngredientRequest{Name: name, Description: description}, &out)
	return out, err
}

// Find returns the catalogue entry whose name matches, ignoring case.
func (s *IngredientService) Find(ctx context.Context, name string) (Ingredient, bool, error) {
	all, err := s.List(ctx)
	if err != nil {
		return Ingredient{}, false, err
	}
	for _, ing := range all {
		if strings.EqualFold(ing.Name, strings.TrimSpace(name)) {
			return ing, true, nil
		}
	}
	return Ingredient{}, false, nil
}

// PantryService manages what the user has at home.
type PantryService struct {
	api *API
}

func (s *PantryService) List(ctx context.Context) ([]PantryItem, error) {
	var out []PantryItem
	err := s.api.getJSON(ctx, "/pantry/", &out)
	return out, err
}

// Add records quantity of the given catalogue ingredient.
func (s *PantryService) Add(ctx context.Context, ingredientID int64, quantity string) (PantryItem, error) {
	var out PantryItem
	err := s.api.postJSON(ctx, "/pantry/", quantityRequest{Ingredient: ingredientID, Quantity: quantity}, &out)
	return out, err
}
