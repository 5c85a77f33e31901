package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// AuthService handles registration, login and the current user.
type AuthService struct {
	api *API
}

// Register creates an account. It does not sign in.
func (s *AuthService) Register(ctx context.Context, username, email, password string) (User, error) {
	var u User
	err := s.api.do(ctx, call{
		method:    http.MethodPost,
		endpoint:  "/register/",
		in:        registerRequest{Username: username, Email: email, Password: password},
		out:       &u,
		anonymous: true,
	})
	return u, err
}

// Login exchanges credentials for a token pair, stores it, then fetches and
// caches the profile using the new access token.
func (s *AuthService) Login(ctx context.Context, username, password string) (User, error) {
	var tokens Tokens
	err := s.api.do(ctx, call{
		method:    http.MethodPost,
		endpoint:  "/login/",
		in:        loginRequest{Username: username, Password: password},
		out:       &tokens,
		anonymous: true,
	})
	if err != nil {
		return User{}, err
	}
	if tokens.Access == "" {
		return User{}, errors.New("login response carried no access token")
	}
	s.api.store.SetTokens(tokens.Access, tokens.Refresh)

	var u User
	if err := s.api.do(ctx, call{method: http.MethodGet, endpoint: "/users/me/", out: &u, token: tokens.Access}); err != nil {
		return User{}, fmt.Errorf("fetching profile: %w", err)
	}
	s.api.store.SetUser(u)
	s.api.logger.Info("signed in", "user_id", u.ID, "username", u.Username)
	return u, nil
}

// Me fetches the current user's profile and refreshes the cached copy.
func (s *AuthService) Me(ctx context.Context) (User, error) {
	var u User
	if err := s.api.getJSON(ctx, "/users/me/", &u); err != nil {
		return User{}, err
	}
	s.api.store.SetUser(u)
	return u, nil
}

// Logout clears the session. The API keeps no server-side session to end.
func (s *AuthService) Logout() {
	s.api.store.Logout()
}
