package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
)

// RecipeService browses and creates recipes.
type RecipeService struct {
	api *API
}

// RecipeQuery filters a recipe search. Zero values match everything.
type RecipeQuery struct {
	Search     string
	Difficulty Difficulty
}

// Encode renders q as a query string, omitting empty values and the "all"
// difficulty.
func (q RecipeQuery) Encode() string {
	v := url.Values{}
	if q.Search != "" {
		v.Set("search", q.Search)
	}
	if q.Difficulty != "" && q.Difficulty != DifficultyAll {
		v.Set("difficulty", string(q.Difficulty))
	}
	return v.Encode()
}

// Search lists public recipes matching q. It works signed out.
func (s *RecipeService) Search(ctx context.Context, q RecipeQuery) ([]Recipe, error) {
	endpoint := "/recipes/"
	if qs := q.Encode(); qs != "" {
		endpoint += "?" + qs
	}
	var out []Recipe
	err := s.api.getJSON(ctx, endpoint, &out)
	return out, err
}

func (s *RecipeService) Get(ctx context.Context, id int64) (RecipeDetail, error) {
	var out RecipeDetail
	err := s.api.getJSON(ctx, fmt.Sprintf("/recipes/%d/", id), &out)
	return out, err
}

// Create submits a recipe. New recipes start out pending approval.
func (s *RecipeService) Create(ctx context.Context, r NewRecipe) (RecipeDetail, error) {
	if r.Title == "" {
		return RecipeDetail{}, errors.New("recipe title is required")
	}
	var out RecipeDetail
	err := s.api.postJSON(ctx, "/recipes/", r, &out)
	return out, err
}

// Mine lists recipes the current user authored, whatever their status.
func (s *RecipeService) Mine(ctx context.Context) ([]Recipe, error) {
	var out []Recipe
	err := s.api.getJSON(ctx, "/recipes/my-recipes/", &out)
	return out, err
}

// FavoriteService manages the user's favorite recipes.
type FavoriteService struct {
	api *API

	mu    sync.Mutex
	state map[int64]bool
	// toggles counts Toggle calls per recipe so a failed toggle only rolls
	// back when no later toggle has run.
	toggles map[int64]uint64
}

func (s *FavoriteService) List(ctx context.Context) ([]Recipe, error) {
	var out []Recipe
	if err := s.api.getJSON(ctx, "/favorites/", &out); err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.state = make(map[int64]bool, len(out))
	for _, r := range out {
		s.state[r.ID] = true
	}
	s.mu.Unlock()
	return out, nil
}

// Set favorites or unfavorites a recipe on the server.
func (s *FavoriteService) Set(ctx context.Context, recipeID int64, favorite bool) error {
	method := http.MethodDelete
	if favorite {
		method = http.MethodPost
	}
	return s.api.do(ctx, call{method: method, endpoint: fmt.Sprintf("/recipes/%d/favorite/", recipeID)})
}

// IsFavorite reports the locally known flag for recipeID.
func (s *FavoriteService) IsFavorite(recipeID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state[recipeID]
}

// Toggle flips the local flag before asking the server, and flips it back if
// the server refuses, unless another Toggle of the same recipe has started
// since. It returns the flag now in effect.
func (s *FavoriteService) Toggle(ctx context.Context, recipeID int64) (bool, error) {
	s.mu.Lock()
	if s.state == nil {
		s.state = make(map[int64]bool)
	}
	if s.toggles == nil {
		s.toggles = make(map[int64]uint64)
	}
	s.toggles[recipeID]++
	gen := s.toggles[recipeID]
	next := !s.state[recipeID]
	s.state[recipeID] = next
	s.mu.Unlock()

	if err := s.Set(ctx, recipeID, next); err != nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.toggles[recipeID] == gen {
			s.state[recipeID] = !next
		}
		return s.state[recipeID], err
	}
	return next, nil
}
