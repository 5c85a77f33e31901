package client

import "log/slog"

// Navigator sends the user back to the login entry point after the session
// could not be recovered.
type Navigator interface {
	RedirectToLogin()
}

// NavigatorFunc adapts a function to a Navigator.
type NavigatorFunc func()

func (f NavigatorFunc) RedirectToLogin() { f() }

type logNavigator struct {
	logger *slog.Logger
}

func (n logNavigator) RedirectToLogin() {
	n.logger.Warn("session expired, login required")
}
