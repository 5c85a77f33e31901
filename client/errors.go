package client

import "errors"

// ErrSessionExpired is returned when a 401 could not be recovered by
// refreshing the access token. By the time it is returned the session has
// been cleared and the Navigator has been told to send the user to login.
var ErrSessionExpired = errors.New("session expired, please log in again")
