package session

import (
	"io"
	"log/slog"
	"sync"
)

// Persister saves and restores the Session State across process restarts.
type Persister interface {
	// Load returns the saved state, or the zero State when nothing was saved.
	Load() (State, error)
	Save(State) error
}

// Store is the single owner of the Session State. All reads return copies
// and all writes go through SetTokens, SetUser and Logout.
type Store struct {
	mu        sync.Mutex
	state     State
	persister Persister
	logger    *slog.Logger

	subMu   sync.Mutex
	subs    map[int]func(State)
	nextSub int
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used to report persistence failures.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

// New creates a Store and rehydrates it from p. A nil Persister keeps the
// state in memory only. A state that cannot be restored is logged and the
// store starts signed out.
func New(p Persister, opts ...Option) *Store {
	s := &Store{
		persister: p,
		logger:    slog.Default(),
		subs:      make(map[int]func(State)),
	}
	for _, opt := range opts {
		opt(s)
	}
	if p != nil {
		st, err := p.Load()
		if err != nil {
			s.logger.Warn("session: discarding unreadable saved state", "error", err)
			st = State{}
		}
		s.state = st
	}
	return s
}

// State returns a snapshot of the current Session State.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

// SetTokens replaces both tokens. The cached user is left untouched.
func (s *Store) SetTokens(access, refresh string) {
	s.update(func(st *State) {
		st.AccessToken = access
		st.RefreshToken = refresh
	})
}

// SetUser replaces the cached user profile.
func (s *Store) SetUser(u User) {
	s.update(func(st *State) {
		st.User = &u
	})
}

// Logout clears tokens and user. Calling it again is a no-op beyond
// rewriting the same empty state.
func (s *Store) Logout() {
	s.update(func(st *State) {
		*st = State{}
	})
}

// ReplaceAccessToken sets the access token only while refresh is still the
// stored refresh token. It reports whether the write happened, so a refresh
// that finishes after a logout or a new login can't bring back an old
// session.
func (s *Store) ReplaceAccessToken(refresh, access string) bool {
	return s.updateIf(func(st *State) bool {
		if refresh == "" || st.RefreshToken != refresh {
			return false
		}
		st.AccessToken = access
		return true
	})
}

// ExpireSession clears the session only while refresh is still the stored
// refresh token, and reports whether it did.
func (s *Store) ExpireSession(refresh string) bool {
	return s.updateIf(func(st *State) bool {
		if refresh == "" || st.RefreshToken != refresh {
			return false
		}
		*st = State{}
		return true
	})
}

// Subscribe registers fn to be called with the new state after every
// mutation. The returned func removes the subscription.
func (s *Store) Subscribe(fn func(State)) (unsubscribe func()) {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subs, id)
			s.subMu.Unlock()
		})
	}
}

// Close releases the persister if it holds resources.
func (s *Store) Close() error {
	if c, ok := s.persister.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (s *Store) update(fn func(*State)) {
	s.updateIf(func(st *State) bool {
		fn(st)
		return true
	})
}

// updateIf applies fn and, when it reports a change, persists and notifies.
func (s *Store) updateIf(fn func(*State) bool) bool {
	s.mu.Lock()
	if !fn(&s.state) {
		s.mu.Unlock()
		return false
	}
	snapshot := s.state.clone()
	// Saved under the lock so concurrent writers persist in mutation order.
	if s.persister != nil {
		if err := s.persister.Save(snapshot); err != nil {
			s.logger.Error("session: failed to persist state", "error", err)
		}
	}
	s.mu.Unlock()

	s.notify(snapshot)
	return true
}

func (s *Store) notify(st State) {
	s.subMu.Lock()
	fns := make([]func(State), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()

	for _, fn := range fns {
		fn(st.clone())
	}
}
