// Package session holds the process-wide Session State: the access/refresh
// token pair and the cached profile of the signed-in user.
package session

// User is the cached identity of the signed-in user.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// State is the Session State. Empty token strings mean absent.
type State struct {
	AccessToken  string `json:"accessToken,omitempty"`
	RefreshToken string `json:"refreshToken,omitempty"`
	User         *User  `json:"user,omitempty"`
}

// Authenticated reports whether an access token is held. It is the only
// signal collaborators should use to decide whether a user is signed in.
func (s State) Authenticated() bool {
	return s.AccessToken != ""
}

// IsZero reports whether s is the empty, signed-out state.
func (s State) IsZero() bool {
	return s.AccessToken == "" && s.RefreshToken == "" && s.User == nil
}

func (s State) clone() State {
	if s.User != nil {
		u := *s.User
		s.User = &u
	}
	return s
}
