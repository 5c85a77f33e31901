package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/pantrypal/session"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// recorded is one request as seen by the fake API.
type recorded struct {
	Method string
	Path   string
	Query  string
	Header http.Header
	Body   string
}

// fakeAPI accepts bearer tokens in valid and hands out newAccess on refresh.
type fakeAPI struct {
	mu            sync.Mutex
	valid         map[string]bool
	refreshTokens map[string]bool
	newAccess     string
	refreshStatus int
	refreshDelay  time.Duration
	requests      []recorded
	refreshCalls  atomic.Int32
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		valid:         map[string]bool{},
		refreshTokens: map[string]bool{},
		refreshStatus: http.StatusOK,
	}
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	if r.URL.Path == "/api/token/refresh/" {
		f.refreshCalls.Add(1)
		if f.refreshDelay > 0 {
			time.Sleep(f.refreshDelay)
		}
		var req refreshRequest
		_ = json.Unmarshal(body, &req)
		f.mu.Lock()
		ok := f.refreshTokens[req.Refresh]
		status := f.refreshStatus
		access := f.newAccess
		if ok && status == http.StatusOK {
			f.valid[access] = true
		}
		f.mu.Unlock()
		if !ok {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(refreshResponse{Access: access})
		return
	}

	f.mu.Lock()
	f.requests = append(f.requests, recorded{
		Method: r.Method,
		Path:   r.URL.Path,
		Query:  r.URL.RawQuery,
		Header: r.Header.Clone(),
		Body:   string(body),
	})
	auth := r.Header.Get("Authorization")
	ok := len(auth) > 7 && f.valid[auth[7:]]
	f.mu.Unlock()

	switch {
	case r.URL.Path == "/api/recipes/":
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, `[{"id":1,"title":"bo kho"}]`)
	case r.URL.Path == "/api/broken/":
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, `{"detail":"boom"}`)
	case !ok:
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"detail":"token not valid"}`)
	default:
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, `{"ok":true}`)
	}
}

func (f *fakeAPI) recorded() []recorded {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recorded(nil), f.requests...)
}

func newTestClient(t *testing.T, f *fakeAPI, opts ...Option) (*Client, *session.Store) {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	store := session.New(nil)
	opts = append([]Option{WithLogger(discard)}, opts...)
	return New(srv.URL+"/", store, opts...), store
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}

func TestDo_AttachesBearerToken(t *testing.T) {
	f := newFakeAPI()
	f.valid["T1"] = true
	c, store := newTestClient(t, f)
	store.SetTokens("T1", "R1")

	resp, err := c.Do(context.Background(), "/pantry/", RequestOptions{})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, `{"ok":true}`, readBody(t, resp))

	reqs := f.recorded()
	require.Len(t, reqs, 1)
	assert.Equal(t, "Bearer T1", reqs[0].Header.Get("Authorization"))
	assert.Equal(t, http.MethodGet, reqs[0].Method)
	assert.NotEmpty(t, reqs[0].Header.Get("X-Request-ID"))
	assert.Equal(t, DefaultUserAgent, reqs[0].Header.Get("User-Agent"))
}

func TestDo_AnonymousSearch(t *testing.T) {
	f := newFakeAPI()
	c, _ := newTestClient(t, f)

	resp, err := c.Do(context.Background(), "/recipes/?search=bo", RequestOptions{})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	reqs := f.recorded()
	require.Len(t, reqs, 1)
	assert.Empty(t, reqs[0].Header.Values("Authorization"))
	assert.Equal(t, "/api/recipes/", reqs[0].Path)
	assert.Equal(t, "search=bo", reqs[0].Query)
}

func TestURL_Normalization(t *testing.T) {
	c := New("http://127.0.0.1:8000/", session.New(nil))
	assert.Equal(t, "http://127.0.0.1:8000", c.BaseURL())
	assert.Equal(t, "http://127.0.0.1:8000/api/recipes/?search=bo", c.URL("/recipes/?search=bo"))
	assert.Equal(t, "http://127.0.0.1:8000/api/pantry/", c.URL("pantry/"))
}

func TestDo_AuthenticatedJSONPost(t *testing.T) {
	f := newFakeAPI()
	f.valid["X"] = true
	c, store := newTestClient(t, f)
	store.SetTokens("X", "R")

	body := []byte(`{"ingredient":5,"quantity":"200g"}`)
	resp, err := c.Do(context.Background(), "/pantry/", RequestOptions{Method: http.MethodPost, Body: body})
	require.NoError(t, err)
	resp.Body.Close()

	reqs := f.recorded()
	require.Len(t, reqs, 1)
	assert.Equal(t, http.MethodPost, reqs[0].Method)
	assert.Equal(t, "Bearer X", reqs[0].Header.Get("Authorization"))
	assert.Equal(t, "application/json", reqs[0].Header.Get("Content-Type"))
	assert.JSONEq(t, string(body), reqs[0].Body)
}

func TestDo_RawBodyKeepsCallerContentType(t *testing.T) {
	f := newFakeAPI()
	f.valid["X"] = true
	c, store := newTestClient(t, f)
	store.SetTokens("X", "")

	h := http.Header{}
	h.Set("Content-Type", "multipart/form-data; boundary=xyz")
	resp, err := c.Do(context.Background(), "/upload/", RequestOptions{Method: http.MethodPost, Body: []byte("--xyz--"), Header: h, Raw: true})
	require.NoError(t, err)
	resp.Body.Close()

	resp, err = c.Do(context.Background(), "/upload/", RequestOptions{Method: http.MethodPost, Body: []byte{0x01}, Raw: true})
	require.NoError(t, err)
	resp.Body.Close()

	reqs := f.recorded()
	require.Len(t, reqs, 2)
	assert.Equal(t, "multipart/form-data; boundary=xyz", reqs[0].Header.Get("Content-Type"))
	assert.Empty(t, reqs[1].Header.Get("Content-Type"))
}

func TestDo_TokenOverride(t *testing.T) {
	f := newFakeAPI()
	f.valid["fresh"] = true
	c, store := newTestClient(t, f)
	store.SetTokens("stale", "R")

	resp, err := c.Do(context.Background(), "/users/me/", RequestOptions{Token: "fresh"})
	require.NoError(t, err)
	resp.Body.Close()

	reqs := f.recorded()
	require.Len(t, reqs, 1)
	assert.Equal(t, "Bearer fresh", reqs[0].Header.Get("Authorization"))
}

func TestDo_RefreshAndRetry(t *testing.T) {
	f := newFakeAPI()
	f.refreshTokens["R1"] = true
	f.newAccess = "T2"
	c, store := newTestClient(t, f)
	store.SetTokens("expired", "R1")
	store.SetUser(session.User{ID: 1, Username: "chef"})

	body := []byte(`{"ingredient":5,"quantity":"200g"}`)
	resp, err := c.Do(context.Background(), "/pantry/", RequestOptions{Method: http.MethodPost, Body: body})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	st := store.State()
	assert.Equal(t, "T2", st.AccessToken)
	assert.Equal(t, "R1", st.RefreshToken)
	require.NotNil(t, st.User)
	assert.Equal(t, "chef", st.User.Username)
	assert.Equal(t, int32(1), f.refreshCalls.Load())

	reqs := f.recorded()
	require.Len(t, reqs, 2, "original request plus exactly one retry")
	assert.Equal(t, "Bearer expired", reqs[0].Header.Get("Authorization"))
	assert.Equal(t, "Bearer T2", reqs[1].Header.Get("Authorization"))
	assert.Equal(t, reqs[0].Body, reqs[1].Body, "retry resends the same body")
	assert.Equal(t, http.MethodPost, reqs[1].Method)
}

func TestDo_SecondUnauthorizedIsReturned(t *testing.T) {
	f := newFakeAPI()
	f.refreshTokens["R1"] = true
	f.newAccess = "T2"
	c, store := newTestClient(t, f)
	store.SetTokens("expired", "R1")

	// T2 is issued but then revoked before the retry lands.
	c.httpClient = &http.Client{Transport: revokeAfterRefresh{f: f, rt: http.DefaultTransport}}

	resp, err := c.Do(context.Background(), "/pantry/", RequestOptions{})
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	assert.Equal(t, int32(1), f.refreshCalls.Load(), "a second 401 must not refresh again")
	assert.Len(t, f.recorded(), 2)
	assert.Equal(t, "T2", store.State().AccessToken)
}

// revokeAfterRefresh invalidates every access token once the refresh call returns.
type revokeAfterRefresh struct {
	f  *fakeAPI
	rt http.RoundTripper
}

func (r revokeAfterRefresh) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := r.rt.RoundTrip(req)
	if req.URL.Path == "/api/token/refresh/" {
		r.f.mu.Lock()
		r.f.valid = map[string]bool{}
		r.f.mu.Unlock()
	}
	return resp, err
}

func TestDo_RefreshFailureExpiresSession(t *testing.T) {
	for _, status := range []int{http.StatusBadRequest, http.StatusUnauthorized} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			f := newFakeAPI()
			f.refreshTokens["R1"] = true
			f.refreshStatus = status
			if status == http.StatusUnauthorized {
				f.refreshTokens = map[string]bool{}
			}

			var redirects atomic.Int32
			c, store := newTestClient(t, f, WithNavigator(NavigatorFunc(func() { redirects.Add(1) })))
			store.SetTokens("expired", "R1")
			store.SetUser(session.User{ID: 1})

			resp, err := c.Do(context.Background(), "/pantry/", RequestOptions{})
			assert.Nil(t, resp)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrSessionExpired))

			assert.True(t, store.State().IsZero(), "session must be fully cleared")
			assert.Equal(t, int32(1), redirects.Load())
			assert.Len(t, f.recorded(), 1, "original request is not retried")
		})
	}
}

func TestDo_RefreshWithoutAccessExpiresSession(t *testing.T) {
	f := newFakeAPI()
	f.refreshTokens["R1"] = true
	f.newAccess = ""
	c, store := newTestClient(t, f)
	store.SetTokens("expired", "R1")

	_, err := c.Do(context.Background(), "/pantry/", RequestOptions{})
	assert.ErrorIs(t, err, ErrSessionExpired)
	assert.True(t, store.State().IsZero())
}

func TestDo_RefreshEndpointNeverRecurses(t *testing.T) {
	f := newFakeAPI()
	c, store := newTestClient(t, f)
	store.SetTokens("expired", "unknown")

	resp, err := c.Do(context.Background(), "/token/refresh/", RequestOptions{
		Method: http.MethodPost,
		Body:   []byte(`{"refresh":"unknown"}`),
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	assert.Equal(t, int32(1), f.refreshCalls.Load(), "only the caller's own request reached the refresh endpoint")
	assert.Equal(t, "expired", store.State().AccessToken, "store untouched")
}

func TestDo_UnauthorizedWithoutRefreshToken(t *testing.T) {
	f := newFakeAPI()
	var redirects atomic.Int32
	c, store := newTestClient(t, f, WithNavigator(NavigatorFunc(func() { redirects.Add(1) })))
	store.SetTokens("expired", "")

	resp, err := c.Do(context.Background(), "/pantry/", RequestOptions{})
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Contains(t, readBody(t, resp), "token not valid")

	assert.Equal(t, int32(0), f.refreshCalls.Load())
	assert.Equal(t, int32(0), redirects.Load())
	assert.Equal(t, "expired", store.State().AccessToken)
}

func TestDo_BusinessErrorsPassThrough(t *testing.T) {
	f := newFakeAPI()
	c, store := newTestClient(t, f)
	store.SetTokens("T1", "R1")

	resp, err := c.Do(context.Background(), "/broken/", RequestOptions{})
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.JSONEq(t, `{"detail":"boom"}`, readBody(t, resp))
	assert.Equal(t, int32(0), f.refreshCalls.Load())
}

func TestDo_TransportErrorPropagates(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	store := session.New(nil)
	store.SetTokens("T1", "R1")
	c := New(base, store, WithLogger(discard))

	resp, err := c.Do(context.Background(), "/pantry/", RequestOptions{})
	assert.Nil(t, resp)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrSessionExpired))
	assert.Equal(t, "T1", store.State().AccessToken, "transport errors do not touch the session")
}

func TestDo_ConcurrentRefreshIsSingleFlight(t *testing.T) {
	f := newFakeAPI()
	f.refreshTokens["R1"] = true
	f.newAccess = "T2"
	f.refreshDelay = 50 * time.Millisecond
	c, store := newTestClient(t, f)
	store.SetTokens("expired", "R1")

	const n = 5
	var wg sync.WaitGroup
	statuses := make([]int, n)
	for i := range n {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, err := c.Do(context.Background(), "/pantry/", RequestOptions{})
			if err != nil {
				return
			}
			statuses[i] = resp.StatusCode
			resp.Body.Close()
		}(i)
	}
	wg.Wait()

	for i, s := range statuses {
		assert.Equal(t, http.StatusOK, s, "call %d", i)
	}
	assert.Equal(t, int32(1), f.refreshCalls.Load())
	assert.Equal(t, "T2", store.State().AccessToken)
}

func TestDo_ConcurrentRefreshWithoutSingleFlight(t *testing.T) {
	f := newFakeAPI()
	f.refreshTokens["R1"] = true
	f.newAccess = "T2"
	f.refreshDelay = 50 * time.Millisecond
	c, store := newTestClient(t, f, WithSingleFlightRefresh(false))
	store.SetTokens("expired", "R1")

	var wg sync.WaitGroup
	for range 3 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := c.Do(context.Background(), "/pantry/", RequestOptions{})
			if err == nil {
				resp.Body.Close()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(3), f.refreshCalls.Load())
}

func TestDo_CancelledRefreshKeepsSession(t *testing.T) {
	f := newFakeAPI()
	f.refreshTokens["R1"] = true
	f.newAccess = "T2"
	f.refreshDelay = 200 * time.Millisecond
	c, store := newTestClient(t, f, WithSingleFlightRefresh(false))
	store.SetTokens("expired", "R1")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.Do(ctx, "/pantry/", RequestOptions{})
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrSessionExpired))
	assert.Equal(t, "R1", store.State().RefreshToken)
}

func TestDo_CancelledWaitOnSharedRefreshKeepsSession(t *testing.T) {
	f := newFakeAPI()
	f.refreshTokens["R1"] = true
	f.newAccess = "T2"
	f.refreshDelay = 500 * time.Millisecond
	c, store := newTestClient(t, f)
	store.SetTokens("expired", "R1")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err := c.Do(ctx, "/pantry/", RequestOptions{})
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, errors.Is(err, ErrSessionExpired))
	assert.Less(t, elapsed, 400*time.Millisecond, "caller must not wait for the shared refresh")
	assert.Equal(t, "R1", store.State().RefreshToken)

	// The shared refresh still completes for everyone else.
	assert.Eventually(t, func() bool { return store.State().AccessToken == "T2" }, 2*time.Second, 10*time.Millisecond)
}

func TestDo_RefreshFinishingAfterLogoutDoesNotRestoreSession(t *testing.T) {
	f := newFakeAPI()
	f.refreshTokens["R1"] = true
	f.newAccess = "T2"
	f.refreshDelay = 100 * time.Millisecond
	c, store := newTestClient(t, f)
	store.SetTokens("expired", "R1")

	done := make(chan struct{})
	go func() {
		defer close(done)
		resp, err := c.Do(context.Background(), "/pantry/", RequestOptions{})
		if err == nil {
			resp.Body.Close()
		}
	}()
	require.Eventually(t, func() bool { return f.refreshCalls.Load() == 1 }, time.Second, 5*time.Millisecond)
	store.Logout()
	<-done

	assert.True(t, store.State().IsZero())
}

func TestDo_RefreshFinishingAfterNewLoginKeepsNewTokens(t *testing.T) {
	for _, tc := range []struct {
		name          string
		refreshStatus int
	}{
		{"RefreshSucceeds", http.StatusOK},
		{"RefreshFails", http.StatusBadRequest},
	} {
		t.Run(tc.name, func(t *testing.T) {
			f := newFakeAPI()
			f.refreshTokens["R1"] = true
			f.newAccess = "T2"
			f.refreshStatus = tc.refreshStatus
			f.refreshDelay = 100 * time.Millisecond
			var redirects atomic.Int32
			c, store := newTestClient(t, f, WithNavigator(NavigatorFunc(func() { redirects.Add(1) })))
			store.SetTokens("expired", "R1")

			done := make(chan struct{})
			go func() {
				defer close(done)
				resp, err := c.Do(context.Background(), "/pantry/", RequestOptions{})
				if err == nil {
					resp.Body.Close()
				}
			}()
			require.Eventually(t, func() bool { return f.refreshCalls.Load() == 1 }, time.Second, 5*time.Millisecond)
			store.SetTokens("N1", "R9")
			<-done

			st := store.State()
			assert.Equal(t, "N1", st.AccessToken)
			assert.Equal(t, "R9", st.RefreshToken)
			assert.Zero(t, redirects.Load())
		})
	}
}

func TestDo_Metrics(t *testing.T) {
	f := newFakeAPI()
	f.refreshTokens["R1"] = true
	f.newAccess = "T2"
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	c, store := newTestClient(t, f, WithMetrics(m))
	store.SetTokens("expired", "R1")

	resp, err := c.Do(context.Background(), "/pantry/", RequestOptions{})
	require.NoError(t, err)
	resp.Body.Close()
	resp, err = c.Do(context.Background(), "/pantry/", RequestOptions{})
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.refreshes.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.outcomes.WithLabelValues(string(outcomeRetriedDone))))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.outcomes.WithLabelValues(string(outcomeDone))))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("GET", "401")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.requests.WithLabelValues("GET", "200")))
}

func TestDo_RateLimit(t *testing.T) {
	f := newFakeAPI()
	c, _ := newTestClient(t, f, WithRateLimit(20, 1))

	start := time.Now()
	for range 3 {
		resp, err := c.Do(context.Background(), "/recipes/", RequestOptions{})
		require.NoError(t, err)
		resp.Body.Close()
	}
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
}

func TestDo_AnonymousIgnoresSession(t *testing.T) {
	f := newFakeAPI()
	f.refreshTokens["R1"] = true
	f.newAccess = "T2"
	c, store := newTestClient(t, f)
	store.SetTokens("expired", "R1")

	resp, err := c.Do(context.Background(), "/login/", RequestOptions{Method: http.MethodPost, Body: []byte(`{}`), Anonymous: true})
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	reqs := f.recorded()
	require.Len(t, reqs, 1)
	assert.Empty(t, reqs[0].Header.Get("Authorization"))
	assert.Equal(t, int32(0), f.refreshCalls.Load())
	assert.Equal(t, "expired", store.State().AccessToken)
}

func TestDo_NeverLogsTokens(t *testing.T) {
	f := newFakeAPI()
	f.refreshTokens["refresh-secret"] = true
	f.newAccess = "access-secret-2"

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	c, store := newTestClient(t, f, WithLogger(logger))
	store.SetTokens("access-secret-1", "refresh-secret")

	resp, err := c.Do(context.Background(), "/pantry/", RequestOptions{})
	require.NoError(t, err)
	resp.Body.Close()

	out := buf.String()
	assert.Contains(t, out, "[REDACTED]")
	for _, secret := range []string{"access-secret-1", "access-secret-2", "refresh-secret"} {
		assert.NotContains(t, out, secret)
	}
}
