// Package client implements the authenticated request client: it attaches
// the current access token to every API call and, when the API answers 401,
// refreshes the token once and retries the original request.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/jmcleod/pantrypal/internal/logging"
	"github.com/jmcleod/pantrypal/internal/uuid"
	"github.com/jmcleod/pantrypal/session"
)

const (
	// DefaultUserAgent is sent unless overridden with WithUserAgent.
	DefaultUserAgent = "pantrypal/1.0"

	apiPrefix = "/api"
	// RefreshEndpoint is the token refresh path relative to the API prefix.
	RefreshEndpoint = "/token/refresh/"

	// drainLimit bounds how much of a discarded 401 body is read so the
	// connection can be reused.
	drainLimit = 64 << 10
)

// TokenStore is the part of the session store the client needs.
type TokenStore interface {
	State() session.State
	// ReplaceAccessToken and ExpireSession act only while refresh is still
	// the stored refresh token.
	ReplaceAccessToken(refresh, access string) bool
	ExpireSession(refresh string) bool
}

var _ TokenStore = (*session.Store)(nil)

// RequestOptions describes one API call.
type RequestOptions struct {
	// Method defaults to GET.
	Method string
	// Body is sent as-is. It is buffered so it can be resent after a refresh.
	Body []byte
	// Header is copied onto the outbound request.
	Header http.Header
	// Raw marks a binary or multipart body: no JSON Content-Type is added.
	Raw bool
	// Token overrides the store's access token for this call.
	Token string
	// Anonymous sends no Authorization header and never refreshes. Login and
	// registration use it so a stale session cannot interfere.
	Anonymous bool
}

type attempt int

const (
	attemptFirst attempt = iota
	attemptRetry
)

func (a attempt) String() string {
	if a == attemptRetry {
		return "retry"
	}
	return "first"
}

// outcome is the terminal state of one Do call.
type outcome string

const (
	outcomeDone           outcome = "done"
	outcomeRetriedDone    outcome = "retried_done"
	outcomeSessionExpired outcome = "session_expired"
)

// Client sends requests to the API on behalf of the current session.
// It is safe for concurrent use.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	store        TokenStore
	navigator    Navigator
	logger       *slog.Logger
	metrics      *Metrics
	limiter      *rate.Limiter
	userAgent    string
	singleFlight bool

	refreshes singleflight.Group
}

// New returns a Client for the API rooted at baseURL (for example
// "http://127.0.0.1:8000"). Requests go to baseURL + "/api" + endpoint.
func New(baseURL string, store TokenStore, opts ...Option) *Client {
	c := &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		httpClient:   http.DefaultClient,
		store:        store,
		logger:       slog.Default(),
		userAgent:    DefaultUserAgent,
		singleFlight: true,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.navigator == nil {
		c.navigator = logNavigator{logger: c.logger}
	}
	return c
}

// BaseURL returns the configured API base address without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// URL resolves endpoint against the base address and the /api prefix.
func (c *Client) URL(endpoint string) string {
	if !strings.HasPrefix(endpoint, "/") {
		endpoint = "/" + endpoint
	}
	return c.baseURL + apiPrefix + endpoint
}

// Do sends one API call.
//
// If the API answers 401, a refresh token is held, and endpoint is not the
// refresh endpoint itself, Do refreshes the access token and resends the
// request exactly once. The retried response is returned whatever its
// status. If the refresh fails, the session is cleared, the Navigator is
// invoked and an error wrapping ErrSessionExpired is returned.
//
// Every other response, including non-2xx statuses, is returned unmodified
// for the caller to interpret. Transport errors are returned as-is.
func (c *Client) Do(ctx context.Context, endpoint string, opts RequestOptions) (*http.Response, error) {
	st := c.store.State()
	token := opts.Token
	if token == "" {
		token = st.AccessToken
	}
	if opts.Anonymous {
		token, st.RefreshToken = "", ""
	}

	method := opts.Method
	if method == "" {
		method = http.MethodGet
	}
	target := c.URL(endpoint)

	header := opts.Header.Clone()
	if header == nil {
		header = make(http.Header)
	}
	if header.Get("Content-Type") == "" && !opts.Raw {
		header.Set("Content-Type", "application/json")
	}

	resp, err := c.send(ctx, attemptFirst, method, target, opts.Body, header, token)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized || st.RefreshToken == "" || isRefreshEndpoint(endpoint) {
		c.metrics.recordOutcome(outcomeDone)
		return resp, nil
	}

	drain(resp)
	c.logger.Info("access token rejected, refreshing", "method", method, "url", target)

	access, err := c.refresh(ctx, st.RefreshToken)
	if err != nil {
		if errors.Is(err, ErrSessionExpired) {
			c.metrics.recordOutcome(outcomeSessionExpired)
		}
		return nil, err
	}

	resp, err = c.send(ctx, attemptRetry, method, target, opts.Body, header, access)
	if err != nil {
		return nil, err
	}
	c.metrics.recordOutcome(outcomeRetriedDone)
	return resp, nil
}

func (c *Client) send(ctx context.Context, a attempt, method, target string, body []byte, header http.Header, token string) (*http.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, rdr)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header = header.Clone()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	c.decorate(req)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.recordRequest(method, 0)
		c.logger.Warn("api request failed", "method", method, "url", target, "attempt", a.String(), "error", err)
		return nil, fmt.Errorf("%s %s: %w", method, target, err)
	}
	c.metrics.recordRequest(method, resp.StatusCode)
	c.logger.Debug("api request",
		"method", method,
		"url", target,
		"attempt", a.String(),
		"status", resp.StatusCode,
		"duration", time.Since(start),
		"headers", logging.Redact(req.Header),
	)
	return resp, nil
}

func (c *Client) decorate(req *http.Request) {
	if req.Header.Get("X-Request-ID") == "" {
		req.Header.Set("X-Request-ID", uuid.New())
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
}

// refresh returns a new access token for refreshToken. With single-flight
// enabled, concurrent callers holding the same refresh token share one call.
// A caller whose ctx ends stops waiting and gets ctx.Err(); the shared call
// carries on for the others.
func (c *Client) refresh(ctx context.Context, refreshToken string) (string, error) {
	if !c.singleFlight {
		return c.doRefresh(ctx, refreshToken)
	}
	// The shared call must not be cancelled by whichever caller started it.
	ch := c.refreshes.DoChan(refreshToken, func() (any, error) {
		return c.doRefresh(context.WithoutCancel(ctx), refreshToken)
	})
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

type refreshRequest struct {
	Refresh string `json:"refresh"`
}

type refreshResponse struct {
	Access string `json:"access"`
}

func (c *Client) doRefresh(ctx context.Context, refreshToken string) (string, error) {
	access, err := c.requestNewAccessToken(ctx, refreshToken)
	if err != nil {
		// A caller giving up is not evidence the session is dead.
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			c.metrics.recordRefresh("cancelled")
			return "", err
		}
		c.metrics.recordRefresh("failure")
		if c.store.ExpireSession(refreshToken) {
			c.logger.Warn("token refresh failed, clearing session", "error", err)
			c.navigator.RedirectToLogin()
		} else {
			c.logger.Info("token refresh failed for a session that was already replaced", "error", err)
		}
		return "", fmt.Errorf("%w: %w", ErrSessionExpired, err)
	}
	c.metrics.recordRefresh("success")
	if !c.store.ReplaceAccessToken(refreshToken, access) {
		c.logger.Info("session changed during token refresh, not storing the new access token")
	}
	return access, nil
}

func (c *Client) requestNewAccessToken(ctx context.Context, refreshToken string) (string, error) {
	body, err := json.Marshal(refreshRequest{Refresh: refreshToken})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL(RefreshEndpoint), bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("building refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.decorate(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.recordRequest(http.MethodPost, 0)
		return "", fmt.Errorf("refresh request: %w", err)
	}
	defer resp.Body.Close()
	c.metrics.recordRequest(http.MethodPost, resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("refresh returned status %d", resp.StatusCode)
	}
	var out refreshResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decoding refresh response: %w", err)
	}
	if out.Access == "" {
		return "", errors.New("refresh response carried no access token")
	}
	return out.Access, nil
}

func isRefreshEndpoint(endpoint string) bool {
	return strings.Contains(endpoint, RefreshEndpoint)
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, drainLimit))
	resp.Body.Close()
}
