// Package apitest is an in-memory stand-in for the recipe API. It issues
// bearer tokens, lets tests expire them on demand and serves every endpoint
// the client talks to. The pantrypal mock-server command runs it too.
package apitest

import (
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type user struct {
	id       int64
	username string
	email    string
	password string
}

type ingredient struct {
	id          int64
	name        string
	description string
}

type pantryItem struct {
	id           int64
	ingredientID int64
	quantity     string
}

type shoppingItem struct {
	id         int64
	ingredient int64
	quantity   string
	checked    bool
}

type recipeIngredient struct {
	ingredientID int64
	quantity     string
	unit         string
}

type recipe struct {
	id           int64
	title        string
	description  string
	instructions string
	difficulty   string
	minutes      int
	status       string
	authorID     int64
	authorName   string
	ingredients  []recipeIngredient
}

// Server holds the fake backend's state. It is safe for concurrent use.
type Server struct {
	mu     sync.Mutex
	logger *slog.Logger
	nextID int64

	users       map[int64]*user
	access      map[string]int64
	refresh     map[string]int64
	ingredients map[int64]*ingredient
	recipes     map[int64]*recipe
	pantry      map[int64][]*pantryItem
	shopping    map[int64][]*shoppingItem
	favorites   map[int64]map[int64]bool

	refreshCalls int
	requests     int
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger used for request and token events.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// WithoutSeed starts with no ingredients or recipes.
func WithoutSeed() Option {
	return func(s *Server) {
		s.ingredients = make(map[int64]*ingredient)
		s.recipes = make(map[int64]*recipe)
	}
}

// New returns a Server seeded with a small ingredient and recipe catalogue.
func New(opts ...Option) *Server {
	s := &Server{
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		users:     make(map[int64]*user),
		access:    make(map[string]int64),
		refresh:   make(map[string]int64),
		pantry:    make(map[int64][]*pantryItem),
		shopping:  make(map[int64][]*shoppingItem),
		favorites: make(map[int64]map[int64]bool),
	}
	s.seed()
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the chi router serving /health and everything under /api.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.countRequests)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/register/", s.handleRegister)
		r.Post("/login/", s.handleLogin)
		r.Post("/token/refresh/", s.handleRefresh)
		r.Get("/ingredients/", s.handleListIngredients)
		r.Get("/recipes/", s.handleSearchRecipes)

		r.Group(func(r chi.Router) {
			r.Use(s.optionalUser)
			r.Get("/recipes/{id}/", s.handleGetRecipe)
		})

		r.Group(func(r chi.Router) {
			r.Use(s.requireUser)
			r.Get("/users/me/", s.handleMe)
			r.Post("/ingredients/", s.handleContributeIngredient)
			r.Get("/pantry/", s.handleListPantry)
			r.Post("/pantry/", s.handleAddPantry)
			r.Post("/recipes/", s.handleCreateRecipe)
			r.Get("/recipes/my-recipes/", s.handleMyRecipes)
			r.Post("/recipes/{id}/favorite/", s.handleFavorite)
			r.Delete("/recipes/{id}/favorite/", s.handleUnfavorite)
			r.Get("/favorites/", s.handleListFavorites)
			r.Get("/shopping-list/", s.handleListShopping)
			r.Post("/shopping-list/", s.handleAddShopping)
			r.Patch("/shopping-list/{id}/", s.handleCheckShopping)
			r.Delete("/shopping-list/{id}/", s.handleRemoveShopping)
			r.Get("/suggestions/", s.handleSuggestions)
		})
	})
	return r
}

func (s *Server) countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.requests++
		s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

// AddUser registers an account directly and returns its ID.
func (s *Server) AddUser(username, email, password string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addUserLocked(username, email, password)
}

func (s *Server) addUserLocked(username, email, password string) int64 {
	id := s.newIDLocked()
	s.users[id] = &user{id: id, username: username, email: email, password: password}
	return id
}

// IssueTokens mints a fresh token pair for username, as a login would.
func (s *Server) IssueTokens(username string) (access, refresh string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.userByNameLocked(username)
	if u == nil {
		return "", "", false
	}
	access, refresh = s.issueLocked(u.id)
	return access, refresh, true
}

// ExpireAccessTokens invalidates every outstanding access token. Refresh
// tokens stay valid, so the next call should refresh and succeed.
func (s *Server) ExpireAccessTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.access)
	s.logger.Info("access tokens expired")
}

// RevokeRefreshTokens invalidates every outstanding refresh token.
func (s *Server) RevokeRefreshTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.refresh)
	s.logger.Info("refresh tokens revoked")
}

// RefreshCalls reports how many times the refresh endpoint was hit.
func (s *Server) RefreshCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshCalls
}

// Requests reports how many requests the handler has served.
func (s *Server) Requests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests
}

// IsFavorite reports whether userID has favorited recipeID.
func (s *Server) IsFavorite(userID, recipeID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.favorites[userID][recipeID]
}

// PublishRecipe marks a recipe public, as a moderator approving it would.
func (s *Server) PublishRecipe(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	rc, ok := s.recipes[id]
	if ok {
		rc.status = "public"
	}
	return ok
}

func (s *Server) newIDLocked() int64 {
	s.nextID++
	return s.nextID
}

func (s *Server) issueLocked(userID int64) (string, string) {
	access := newToken("access")
	refresh := newToken("refresh")
	s.access[access] = userID
	s.refresh[refresh] = userID
	return access, refresh
}

func (s *Server) userByNameLocked(username string) *user {
	for _, u := range s.users {
		if u.username == username {
			return u
		}
	}
	return nil
}

func (s *Server) ingredientByNameLocked(name string) *ingredient {
	for _, ing := range s.ingredients {
		if strings.EqualFold(ing.name, name) {
			return ing
		}
	}
	return nil
}

func (s *Server) ingredientNameLocked(id int64) string {
	if ing, ok := s.ingredients[id]; ok {
		return ing.name
	}
	return ""
}

func (s *Server) summaryLocked(rc *recipe) recipeSummaryJSON {
	return recipeSummaryJSON{
		ID:                 rc.id,
		Title:              rc.title,
		Description:        rc.description,
		Difficulty:         rc.difficulty,
		CookingTimeMinutes: rc.minutes,
		Status:             rc.status,
	}
}

func (s *Server) detailLocked(rc *recipe) recipeDetailJSON {
	out := recipeDetailJSON{
		ID:                 rc.id,
		Title:              rc.title,
		Description:        rc.description,
		Instructions:       rc.instructions,
		Difficulty:         rc.difficulty,
		CookingTimeMinutes: rc.minutes,
		Status:             rc.status,
		AuthorName:         rc.authorName,
		Ingredients:        make([]recipeIngredientJSON, 0, len(rc.ingredients)),
	}
	for _, ri := range rc.ingredients {
		out.Ingredients = append(out.Ingredients, recipeIngredientJSON{
			ID:       ri.ingredientID,
			Name:     s.ingredientNameLocked(ri.ingredientID),
			Quantity: ri.quantity,
			Unit:     ri.unit,
		})
	}
	return out
}

// sortedRecipesLocked returns the recipes matching keep, ordered by ID.
func (s *Server) sortedRecipesLocked(keep func(*recipe) bool) []*recipe {
	out := make([]*recipe, 0, len(s.recipes))
	for _, rc := range s.recipes {
		if keep(rc) {
			out = append(out, rc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}
