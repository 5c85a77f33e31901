// Package api exposes the recipe API's resources as typed services on top of
// the authenticated request client.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/jmcleod/pantrypal/client"
	"github.com/jmcleod/pantrypal/session"
)

// Store is the part of the session store the services write to.
type Store interface {
	State() session.State
	SetTokens(access, refresh string)
	SetUser(u session.User)
	Logout()
}

var _ Store = (*session.Store)(nil)

// API bundles the resource services. Construct it with New.
type API struct {
	client *client.Client
	store  Store
	logger *slog.Logger

	Auth         *AuthService
	Ingredients  *IngredientService
	Pantry       *PantryService
	Recipes      *RecipeService
	Favorites    *FavoriteService
	ShoppingList *ShoppingListService
	Suggestions  *SuggestionService
}

// Option configures the API.
type Option func(*API)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(a *API) {
		a.logger = l
	}
}

// New wires every service to c and store.
func New(c *client.Client, store Store, opts ...Option) *API {
	a := &API{
		client: c,
		store:  store,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.Auth = &AuthService{api: a}
	a.Ingredients = &IngredientService{api: a}
	a.Pantry = &PantryService{api: a}
	a.Recipes = &RecipeService{api: a}
	a.Favorites = &FavoriteService{api: a}
	a.ShoppingList = &ShoppingListService{api: a}
	a.Suggestions = &SuggestionService{api: a}
	return a
}

// Client returns the underlying request client.
func (a *API) Client() *client.Client {
	return a.client
}

// call is one JSON round trip. in is encoded as the body when non-nil; out
// is decoded from a 2xx body when non-nil.
type call struct {
	method    string
	endpoint  string
	in        any
	out       any
	token     string
	anonymous bool
}

func (a *API) do(ctx context.Context, c call) error {
	var body []byte
	if c.in != nil {
		var err error
		body, err = json.Marshal(c.in)
		if err != nil {
			return fmt.Errorf("encoding %s %s: %w", c.method, c.endpoint, err)
		}
	}

	resp, err := a.client.Do(ctx, c.endpoint, client.RequestOptions{
		Method:    c.method,
		Body:      body,
		Token:     c.token,
		Anonymous: c.anonymous,
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := newError(resp)
		a.logger.Debug("api error", "method", c.method, "endpoint", c.endpoint, "status", apiErr.Status, "message", apiErr.Message())
		return apiErr
	}
	if c.out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(c.out); err != nil {
		return fmt.Errorf("decoding %s %s response: %w", c.method, c.endpoint, err)
	}
	return nil
}

func (a *API) getJSON(ctx context.Context, endpoint string, out any) error {
	return a.do(ctx, call{method: http.MethodGet, endpoint: endpoint, out: out})
}

func (a *API) postJSON(ctx context.Context, endpoint string, in, out any) error {
	return a.do(ctx, call{method: http.MethodPost, endpoint: endpoint, in: in, out: out})
}

func (a *API) patchJSON(ctx context.Context, endpoint string, in, out any) error {
	return a.do(ctx, call{method: http.MethodPatch, endpoint: endpoint, in: in, out: out})
}

func (a *API) delete(ctx context.Context, endpoint string) error {
	return a.do(ctx, call{method: http.MethodDelete, endpoint: endpoint})
}
