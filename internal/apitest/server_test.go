package apitest

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	s := New()
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return s, srv
}

func doJSON(t *testing.T, method, url, token string, body any) *http.Response {
	t.Helper()
	var reqBody bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&reqBody).Encode(body))
	}
	req, err := http.NewRequestWithContext(t.Context(), method, url, &reqBody)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestLoginAndRefresh(t *testing.T) {
	s, srv := setupServer(t)
	s.AddUser("chef", "chef@example.com", "correct-horse")

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/login/", "", loginRequest{Username: "chef", Password: "nope"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = doJSON(t, http.MethodPost, srv.URL+"/api/login/", "", loginRequest{Username: "chef", Password: "correct-horse"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var pair tokenPairJSON
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&pair))

	resp = doJSON(t, http.MethodGet, srv.URL+"/api/users/me/", pair.Access, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	s.ExpireAccessTokens()
	resp = doJSON(t, http.MethodGet, srv.URL+"/api/users/me/", pair.Access, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = doJSON(t, http.MethodPost, srv.URL+"/api/token/refresh/", "", refreshRequest{Refresh: pair.Refresh})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var fresh accessJSON
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&fresh))
	assert.NotEqual(t, pair.Access, fresh.Access)
	assert.Equal(t, 1, s.RefreshCalls())

	s.RevokeRefreshTokens()
	resp = doJSON(t, http.MethodPost, srv.URL+"/api/token/refresh/", "", refreshRequest{Refresh: pair.Refresh})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestRegisterFieldErrors(t *testing.T) {
	s, srv := setupServer(t)
	s.AddUser("chef", "chef@example.com", "correct-horse")

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/register/", "", registerRequest{Username: "chef", Password: "short"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var fields map[string][]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&fields))
	assert.Contains(t, fields["username"][0], "already exists")
	assert.Equal(t, msgRequired, fields["email"][0])
	assert.Contains(t, fields["password"][0], "too short")
}

func TestProtectedEndpointsRequireToken(t *testing.T) {
	_, srv := setupServer(t)
	for _, path := range []string{"/api/pantry/", "/api/favorites/", "/api/shopping-list/", "/api/suggestions/"} {
		resp := doJSON(t, http.MethodGet, srv.URL+path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, path)
	}
	resp := doJSON(t, http.MethodGet, srv.URL+"/api/recipes/?search=rice", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var recipes []recipeSummaryJSON
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&recipes))
	require.Len(t, recipes, 1)
	assert.Equal(t, "Egg Fried Rice", recipes[0].Title)
}

func TestSuggestionsModes(t *testing.T) {
	s, srv := setupServer(t)
	s.AddUser("chef", "chef@example.com", "correct-horse")
	access, _, ok := s.IssueTokens("chef")
	require.True(t, ok)

	// Egg (6) and Garlic (3) cover the omelette fully.
	for _, id := range []int64{3, 6} {
		resp := doJSON(t, http.MethodPost, srv.URL+"/api/pantry/", access, quantityRequest{Ingredient: id, Quantity: "1"})
		require.Equal(t, http.StatusCreated, resp.StatusCode)
	}

	suggest := func(query string) []string {
		resp := doJSON(t, http.MethodGet, srv.URL+"/api/suggestions/"+query, access, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var out []recipeSummaryJSON
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
		titles := make([]string, 0, len(out))
		for _, r := range out {
			titles = append(titles, r.Title)
		}
		return titles
	}

	assert.Equal(t, []string{"Garlic Omelette"}, suggest("?mode=strict"))
	assert.Equal(t, []string{"Egg Fried Rice"}, suggest("?mode=flexible"))
	assert.Empty(t, suggest("?mode=strict&exclude=6"))

	resp := doJSON(t, http.MethodGet, srv.URL+"/api/suggestions/?mode=greedy", access, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestShoppingListLifecycle(t *testing.T) {
	s, srv := setupServer(t)
	s.AddUser("chef", "chef@example.com", "correct-horse")
	access, _, _ := s.IssueTokens("chef")

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/shopping-list/", access, quantityRequest{Ingredient: 1, Quantity: "3 pcs"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var item shoppingItemJSON
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&item))
	assert.Equal(t, "Tomato", item.IngredientName)

	checked := true
	resp = doJSON(t, http.MethodPatch, srv.URL+"/api/shopping-list/"+itoa(item.ID)+"/", access, checkedRequest{IsChecked: &checked})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doJSON(t, http.MethodDelete, srv.URL+"/api/shopping-list/"+itoa(item.ID)+"/", access, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = doJSON(t, http.MethodDelete, srv.URL+"/api/shopping-list/"+itoa(item.ID)+"/", access, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
