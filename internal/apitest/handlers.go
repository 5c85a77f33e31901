package apitest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
)

type contextKey int

const userIDKey contextKey = iota

const (
	msgRequired    = "This field is required."
	msgNotFound    = "Not found."
	msgBadToken    = "Given token not valid for any token type"
	msgBadLogin    = "No active account found with the given credentials"
	minPasswordLen = 8
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, detailJSON{Detail: detail})
}

// writeFieldErrors answers 400 with per-field messages, e.g. {"email": ["..."]}.
func writeFieldErrors(w http.ResponseWriter, fields map[string][]string) {
	writeJSON(w, http.StatusBadRequest, fields)
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeDetail(w, http.StatusBadRequest, "JSON parse error - "+err.Error())
		return false
	}
	return true
}

func bearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if !strings.HasPrefix(h, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(h, "Bearer ")
}

func (s *Server) lookupToken(r *http.Request) (int64, bool) {
	tok := bearer(r)
	if tok == "" {
		return 0, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.access[tok]
	return id, ok
}

func (s *Server) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := s.lookupToken(r)
		if !ok {
			if bearer(r) == "" {
				writeDetail(w, http.StatusUnauthorized, "Authentication credentials were not provided.")
				return
			}
			writeJSON(w, http.StatusUnauthorized, detailJSON{Detail: msgBadToken, Code: "token_not_valid"})
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userIDKey, id)))
	})
}

// optionalUser attaches the caller's ID when a valid token is present and
// lets anonymous requests through.
func (s *Server) optionalUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id, ok := s.lookupToken(r); ok {
			r = r.WithContext(context.WithValue(r.Context(), userIDKey, id))
		}
		next.ServeHTTP(w, r)
	})
}

func userID(r *http.Request) int64 {
	id, _ := r.Context().Value(userIDKey).(int64)
	return id
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeDetail(w, http.StatusNotFound, msgNotFound)
		return 0, false
	}
	return id, true
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decode(w, r, &req) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	fields := map[string][]string{}
	switch {
	case req.Username == "":
		fields["username"] = []string{msgRequired}
	case s.userByNameLocked(req.Username) != nil:
		fields["username"] = []string{"A user with that username already exists."}
	}
	if req.Email == "" {
		fields["email"] = []string{msgRequired}
	}
	if len(req.Password) < minPasswordLen {
		fields["password"] = []string{fmt.Sprintf("This password is too short. It must contain at least %d characters.", minPasswordLen)}
	}
	if len(fields) > 0 {
		writeFieldErrors(w, fields)
		return
	}

	id := s.addUserLocked(req.Username, req.Email, req.Password)
	s.logger.Info("user registered", "user_id", id, "username", req.Username)
	writeJSON(w, http.StatusCreated, userJSON{ID: id, Username: req.Username, Email: req.Email})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decode(w, r, &req) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u := s.userByNameLocked(req.Username)
	if u == nil || u.password != req.Password {
		writeDetail(w, http.StatusUnauthorized, msgBadLogin)
		return
	}
	access, refresh := s.issueLocked(u.id)
	s.logger.Info("tokens issued", "user_id", u.id)
	writeJSON(w, http.StatusOK, tokenPairJSON{Access: access, Refresh: refresh})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !decode(w, r, &req) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshCalls++

	if req.Refresh == "" {
		writeFieldErrors(w, map[string][]string{"refresh": {msgRequired}})
		return
	}
	id, ok := s.refresh[req.Refresh]
	if !ok {
		writeJSON(w, http.StatusUnauthorized, detailJSON{Detail: "Token is invalid or expired", Code: "token_not_valid"})
		return
	}
	access := newToken("access")
	s.access[access] = id
	s.logger.Info("access token refreshed", "user_id", id)
	writeJSON(w, http.StatusOK, accessJSON{Access: access})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID(r)]
	if !ok {
		writeDetail(w, http.StatusNotFound, msgNotFound)
		return
	}
	writeJSON(w, http.StatusOK, userJSON{ID: u.id, Username: u.username, Email: u.email})
}

func (s *Server) handleListIngredients(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ingredientJSON, 0, len(s.ingredients))
	for id := int64(1); id <= s.nextID; id++ {
		if ing, ok := s.ingredients[id]; ok {
			out = append(out, ingredientJSON{ID: ing.id, Name: ing.name, Description: ing.description})
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleContributeIngredient(w http.ResponseWriter, r *http.Request) {
	var req newIngredientRequest
	if !decode(w, r, &req) {
		return
	}
	name := strings.TrimSpace(req.Name)

	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case name == "":
		writeFieldErrors(w, map[string][]string{"name": {msgRequired}})
		return
	case s.ingredientByNameLocked(name) != nil:
		writeFieldErrors(w, map[string][]string{"name": {"ingredient with this name already exists."}})
		return
	}
	id := s.newIDLocked()
	s.ingredients[id] = &ingredient{id: id, name: name, description: req.Description}
	writeJSON(w, http.StatusCreated, ingredientJSON{ID: id, Name: name, Description: req.Description})
}

// validateQuantityLocked checks a POST /pantry/ or /shopping-list/ body.
func (s *Server) validateQuantityLocked(req quantityRequest) map[string][]string {
	fields := map[string][]string{}
	if _, ok := s.ingredients[req.Ingredient]; !ok {
		fields["ingredient"] = []string{fmt.Sprintf("Invalid pk \"%d\" - object does not exist.", req.Ingredient)}
	}
	if strings.TrimSpace(req.Quantity) == "" {
		fields["quantity"] = []string{msgRequired}
	}
	return fields
}

func (s *Server) handleListPantry(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := s.pantry[userID(r)]
	out := make([]pantryItemJSON, 0, len(items))
	for _, it := range items {
		out = append(out, pantryItemJSON{
			ID:             it.id,
			IngredientID:   it.ingredientID,
			IngredientName: s.ingredientNameLocked(it.ingredientID),
			Quantity:       it.quantity,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAddPantry(w http.ResponseWriter, r *http.Request) {
	var req quantityRequest
	if !decode(w, r, &req) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if fields := s.validateQuantityLocked(req); len(fields) > 0 {
		writeFieldErrors(w, fields)
		return
	}
	uid := userID(r)
	it := &pantryItem{id: s.newIDLocked(), ingredientID: req.Ingredient, quantity: req.Quantity}
	s.pantry[uid] = append(s.pantry[uid], it)
	writeJSON(w, http.StatusCreated, pantryItemJSON{
		ID:             it.id,
		IngredientID:   it.ingredientID,
		IngredientName: s.ingredientNameLocked(it.ingredientID),
		Quantity:       it.quantity,
	})
}

func (s *Server) handleSearchRecipes(w http.ResponseWriter, r *http.Request) {
	q := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("search")))
	difficulty := r.URL.Query().Get("difficulty")

	s.mu.Lock()
	defer s.mu.Unlock()

	matches := s.sortedRecipesLocked(func(rc *recipe) bool {
		if rc.status != "public" {
			return false
		}
		if difficulty != "" && rc.difficulty != difficulty {
			return false
		}
		if q == "" {
			return true
		}
		return strings.Contains(strings.ToLower(rc.title), q) || strings.Contains(strings.ToLower(rc.description), q)
	})
	out := make([]recipeSummaryJSON, 0, len(matches))
	for _, rc := range matches {
		out = append(out, s.summaryLocked(rc))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetRecipe(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rc, ok := s.recipes[id]
	if !ok || (rc.status != "public" && (rc.authorID == 0 || rc.authorID != userID(r))) {
		writeDetail(w, http.StatusNotFound, msgNotFound)
		return
	}
	writeJSON(w, http.StatusOK, s.detailLocked(rc))
}

var difficulties = map[string]bool{"easy": true, "medium": true, "hard": true}

func (s *Server) handleCreateRecipe(w http.ResponseWriter, r *http.Request) {
	var req newRecipeRequest
	if !decode(w, r, &req) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	fields := map[string][]string{}
	if strings.TrimSpace(req.Title) == "" {
		fields["title"] = []string{msgRequired}
	}
	if !difficulties[req.Difficulty] {
		fields["difficulty"] = []string{fmt.Sprintf("\"%s\" is not a valid choice.", req.Difficulty)}
	}
	if req.CookingTimeMinutes <= 0 {
		fields["cooking_time_minutes"] = []string{"Ensure this value is greater than or equal to 1."}
	}
	for _, ing := range req.Ingredients {
		if _, ok := s.ingredients[ing.Ingredient]; !ok {
			fields["ingredients"] = []string{fmt.Sprintf("Invalid pk \"%d\" - object does not exist.", ing.Ingredient)}
			break
		}
	}
	if len(fields) > 0 {
		writeFieldErrors(w, fields)
		return
	}

	uid := userID(r)
	rc := &recipe{
		id:           s.newIDLocked(),
		title:        req.Title,
		description:  req.Description,
		instructions: req.Instructions,
		difficulty:   req.Difficulty,
		minutes:      req.CookingTimeMinutes,
		status:       "pending_approval",
		authorID:     uid,
		authorName:   s.users[uid].username,
	}
	for _, ing := range req.Ingredients {
		rc.ingredients = append(rc.ingredients, recipeIngredient{ingredientID: ing.Ingredient, quantity: ing.Quantity, unit: ing.Unit})
	}
	s.recipes[rc.id] = rc
	s.logger.Info("recipe created", "recipe_id", rc.id, "user_id", uid)
	writeJSON(w, http.StatusCreated, s.detailLocked(rc))
}

func (s *Server) handleMyRecipes(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)

	s.mu.Lock()
	defer s.mu.Unlock()

	mine := s.sortedRecipesLocked(func(rc *recipe) bool { return rc.authorID == uid })
	out := make([]recipeSummaryJSON, 0, len(mine))
	for _, rc := range mine {
		out = append(out, s.summaryLocked(rc))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleFavorite(w http.ResponseWriter, r *http.Request) {
	s.setFavorite(w, r, true)
}

func (s *Server) handleUnfavorite(w http.ResponseWriter, r *http.Request) {
	s.setFavorite(w, r, false)
}

func (s *Server) setFavorite(w http.ResponseWriter, r *http.Request, on bool) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	uid := userID(r)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.recipes[id]; !ok {
		writeDetail(w, http.StatusNotFound, msgNotFound)
		return
	}
	if s.favorites[uid] == nil {
		s.favorites[uid] = make(map[int64]bool)
	}
	if on {
		s.favorites[uid][id] = true
		writeJSON(w, http.StatusCreated, map[string]string{"status": "favorited"})
		return
	}
	delete(s.favorites[uid], id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListFavorites(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)

	s.mu.Lock()
	defer s.mu.Unlock()

	favs := s.sortedRecipesLocked(func(rc *recipe) bool { return s.favorites[uid][rc.id] })
	out := make([]recipeSummaryJSON, 0, len(favs))
	for _, rc := range favs {
		out = append(out, s.summaryLocked(rc))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) shoppingJSONLocked(it *shoppingItem) shoppingItemJSON {
	return shoppingItemJSON{
		ID:             it.id,
		IngredientName: s.ingredientNameLocked(it.ingredient),
		Quantity:       it.quantity,
		IsChecked:      it.checked,
	}
}

func (s *Server) handleListShopping(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := s.shopping[userID(r)]
	out := make([]shoppingItemJSON, 0, len(items))
	for _, it := range items {
		out = append(out, s.shoppingJSONLocked(it))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAddShopping(w http.ResponseWriter, r *http.Request) {
	var req quantityRequest
	if !decode(w, r, &req) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if fields := s.validateQuantityLocked(req); len(fields) > 0 {
		writeFieldErrors(w, fields)
		return
	}
	uid := userID(r)
	it := &shoppingItem{id: s.newIDLocked(), ingredient: req.Ingredient, quantity: req.Quantity}
	s.shopping[uid] = append(s.shopping[uid], it)
	writeJSON(w, http.StatusCreated, s.shoppingJSONLocked(it))
}

func (s *Server) findShoppingLocked(uid, id int64) (int, *shoppingItem) {
	for i, it := range s.shopping[uid] {
		if it.id == id {
			return i, it
		}
	}
	return -1, nil
}

func (s *Server) handleCheckShopping(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req checkedRequest
	if !decode(w, r, &req) {
		return
	}
	if req.IsChecked == nil {
		writeFieldErrors(w, map[string][]string{"is_checked": {msgRequired}})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, it := s.findShoppingLocked(userID(r), id)
	if it == nil {
		writeDetail(w, http.StatusNotFound, msgNotFound)
		return
	}
	it.checked = *req.IsChecked
	writeJSON(w, http.StatusOK, s.shoppingJSONLocked(it))
}

func (s *Server) handleRemoveShopping(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	uid := userID(r)

	s.mu.Lock()
	defer s.mu.Unlock()

	i, it := s.findShoppingLocked(uid, id)
	if it == nil {
		writeDetail(w, http.StatusNotFound, msgNotFound)
		return
	}
	s.shopping[uid] = append(s.shopping[uid][:i], s.shopping[uid][i+1:]...)
	w.WriteHeader(http.StatusNoContent)
}

// maxFlexibleMissing is how many ingredients a flexible suggestion may lack.
const maxFlexibleMissing = 2

func (s *Server) handleSuggestions(w http.ResponseWriter, r *http.Request) {
	mode := r.URL.Query().Get("mode")
	if mode == "" {
		mode = "strict"
	}
	if mode != "strict" && mode != "flexible" {
		writeDetail(w, http.StatusBadRequest, fmt.Sprintf("unknown mode %q", mode))
		return
	}
	excluded := map[int64]bool{}
	if raw := r.URL.Query().Get("exclude"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
			if err != nil {
				writeDetail(w, http.StatusBadRequest, fmt.Sprintf("invalid exclude id %q", part))
				return
			}
			excluded[id] = true
		}
	}
	uid := userID(r)

	s.mu.Lock()
	defer s.mu.Unlock()

	have := map[int64]bool{}
	for _, it := range s.pantry[uid] {
		have[it.ingredientID] = true
	}

	type ranked struct {
		rc      *recipe
		missing int
	}
	var picks []ranked
	for _, rc := range s.sortedRecipesLocked(func(rc *recipe) bool { return rc.status == "public" }) {
		missing, banned := 0, false
		for _, ri := range rc.ingredients {
			if excluded[ri.ingredientID] {
				banned = true
				break
			}
			if !have[ri.ingredientID] {
				missing++
			}
		}
		if banned {
			continue
		}
		if (mode == "strict" && missing == 0) || (mode == "flexible" && missing > 0 && missing <= maxFlexibleMissing) {
			picks = append(picks, ranked{rc: rc, missing: missing})
		}
	}
	// Already in ID order, so a stable sort keeps ID order within each count.
	sort.SliceStable(picks, func(i, j int) bool { return picks[i].missing < picks[j].missing })

	out := make([]recipeSummaryJSON, 0, len(picks))
	for _, p := range picks {
		out = append(out, s.summaryLocked(p.rc))
	}
	writeJSON(w, http.StatusOK, out)
}
