package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"spotcheck/internal/adapters/observability"
	"spotcheck/internal/domain"
)

// SessionKey is the store key holding the serialized {token, user} record.
const SessionKey = "auth"

// SessionManager owns the one authoritative session value. Everything else
// reads it through Current or goes through AuthenticatedRequest; nothing
// touches the store directly.
type SessionManager struct {
	api   domain.DataService
	store domain.KVStore

	mu      sync.RWMutex
	session domain.Session
	loading bool

	initOnce sync.Once
	ready    chan struct{}

	lmu       sync.Mutex
	listeners map[int]func(domain.Session)
	nextID    int
}

func NewSessionManager(api domain.DataService, store domain.KVStore) *SessionManager {
	return &SessionManager{
		api:       api,
		store:     store,
		loading:   true,
		ready:     make(chan struct{}),
		listeners: map[int]func(domain.Session){},
	}
}

// Initialize hydrates the session from the store. A missing, unreadable,
// unparsable or partial record leaves the manager unauthenticated; no error
// is surfaced. Only the first call reads the store.
func (m *SessionManager) Initialize(ctx context.Context) {
	m.initOnce.Do(func() {
		defer m.markReady()

		raw, ok, err := m.store.Get(ctx, SessionKey)
		if err != nil {
			log.Warn().Err(err).Msg("session store read failed; starting signed out")
			return
		}
		if !ok {
			return
		}
		var s domain.Session
		if err := json.Unmarshal(raw, &s); err != nil || !s.Complete() {
			log.Warn().Err(err).Msg("stored session is malformed; starting signed out")
			observability.ObserveSession("restore_invalid")
			return
		}

		m.mu.Lock()
		m.session = s
		m.mu.Unlock()

		ev := log.Info().Int64("user_id", s.User.ID).Str("username", s.User.Username)
		if exp, ok := s.TokenExpiry(); ok {
			ev = ev.Time("token_expires_at", exp)
		}
		ev.Msg("session restored")
		observability.ObserveSession("restored")
		m.notify(s)
	})
}

func (m *SessionManager) markReady() {
	m.mu.Lock()
	m.loading = false
	m.mu.Unlock()
	close(m.ready)
}

// Ready is closed once Initialize has finished, whatever the outcome.
func (m *SessionManager) Ready() <-chan struct{} { return m.ready }

func (m *SessionManager) Loading() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loading
}

// Current returns a snapshot; mutating it does not affect the manager.
func (m *SessionManager) Current() domain.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return snapshot(m.session)
}

func snapshot(s domain.Session) domain.Session {
	if s.User != nil {
		u := *s.User
		s.User = &u
	}
	return s
}

// OnChange registers fn to be called after every session change, including
// a forced clear after a 401. The returned func unregisters it.
func (m *SessionManager) OnChange(fn func(domain.Session)) (unsubscribe func()) {
	m.lmu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = fn
	m.lmu.Unlock()
	return func() {
		m.lmu.Lock()
		delete(m.listeners, id)
		m.lmu.Unlock()
	}
}

func (m *SessionManager) notify(s domain.Session) {
	m.lmu.Lock()
	fns := make([]func(domain.Session), 0, len(m.listeners))
	for _, fn := range m.listeners {
		fns = append(fns, fn)
	}
	m.lmu.Unlock()
	for _, fn := range fns {
		fn(snapshot(s))
	}
}

// RequireSession is the guard for protected flows. Without a session it
// sends nav to login and reports false.
func (m *SessionManager) RequireSession(nav domain.Navigator) (domain.Session, bool) {
	s := m.Current()
	if s.Authenticated() {
		return s, true
	}
	observability.ObserveSession("redirect")
	if nav != nil {
		nav.ToLogin()
	}
	return s, false
}

type authResponse struct {
	Token string       `json:"token"`
	User  *domain.User `json:"user"`
}

// Login exchanges credentials for a session. On failure the previous session
// (if any) is left as it was.
func (m *SessionManager) Login(ctx context.Context, c domain.Credentials) (*domain.User, error) {
	c.Email = strings.TrimSpace(c.Email)
	if err := validateForm(c); err != nil {
		return nil, err
	}

	resp, err := m.api.Do(ctx, domain.Request{
		Method: http.MethodPost, Path: "/login", Body: c, Endpoint: "login",
	})
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		observability.ObserveSession("login_failed")
		return nil, &domain.RemoteError{
			Kind: domain.ErrAuthenticationFailed, Status: resp.Status, Message: resp.Message("Login failed"),
		}
	}

	var ar authResponse
	if err := resp.Decode(&ar); err != nil {
		return nil, err
	}
	if ar.Token == "" || ar.User == nil {
		return nil, &domain.RemoteError{
			Kind: domain.ErrServer, Status: resp.Status, Message: "login response is missing token or user",
		}
	}
	if err := m.establish(ctx, domain.NewSession(ar.Token, *ar.User)); err != nil {
		return nil, err
	}
	observability.ObserveSession("login")
	log.Info().Int64("user_id", ar.User.ID).Str("username", ar.User.Username).Msg("logged in")
	u := *ar.User
	return &u, nil
}

// Register creates an account. When the response carries both a token and a
// user the session is established as for Login; otherwise the created user is
// returned and the caller stays signed out.
func (m *SessionManager) Register(ctx context.Context, p domain.Profile) (*domain.User, error) {
	p.Email = strings.TrimSpace(p.Email)
	p.Username = strings.TrimSpace(p.Username)
	if err := validateForm(p); err != nil {
		return nil, err
	}

	resp, err := m.api.Do(ctx, domain.Request{
		Method: http.MethodPost, Path: "/users", Body: p, Endpoint: "register",
	})
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		observability.ObserveSession("register_failed")
		return nil, &domain.RemoteError{
			Kind: domain.ErrRegistrationFailed, Status: resp.Status, Message: resp.Message("Registration failed"),
		}
	}

	var ar authResponse
	if len(resp.Body) > 0 {
		if err := resp.Decode(&ar); err != nil {
			return nil, err
		}
	}
	if ar.Token != "" && ar.User != nil {
		if err := m.establish(ctx, domain.NewSession(ar.Token, *ar.User)); err != nil {
			return nil, err
		}
		observability.ObserveSession("register")
		u := *ar.User
		return &u, nil
	}

	observability.ObserveSession("register_no_session")
	u := ar.User
	if u == nil {
		var bare domain.User
		if len(resp.Body) > 0 && json.Unmarshal(resp.Body, &bare) == nil && (bare.ID != 0 || bare.Email != "") {
			u = &bare
		} else {
			u = &domain.User{
				Email: p.Email, Username: p.Username, FirstName: p.FirstName,
				LastName: p.LastName, ProfilePictureURL: p.ProfilePictureURL,
			}
		}
	}
	return u, nil
}

// establish persists s and then makes it current, under one lock. If the
// store write fails nothing changes.
func (m *SessionManager) establish(ctx context.Context, s domain.Session) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}
	m.mu.Lock()
	if err := m.store.Put(ctx, SessionKey, raw); err != nil {
		m.mu.Unlock()
		return fmt.Errorf("persist session: %w", err)
	}
	m.session = s
	m.mu.Unlock()
	m.notify(s)
	return nil
}

// Logout clears the session in memory and in the store. It is safe to call
// when already signed out.
func (m *SessionManager) Logout(ctx context.Context) error {
	m.mu.Lock()
	was := m.session.Authenticated()
	m.session = domain.Session{}
	err := m.store.Delete(ctx, SessionKey)
	m.mu.Unlock()

	if was {
		observability.ObserveSession("logout")
		m.notify(domain.Session{})
	}
	if err != nil {
		return fmt.Errorf("clear stored session: %w", err)
	}
	return nil
}

// AuthenticatedRequest sends req with the current bearer token attached (if
// any) and returns the raw response for every status except 401.
//
// A 401 has a side effect: the session whose token was sent is cleared from
// memory and from the store, and the returned *domain.RemoteError (kind
// ErrAuthenticationRequired) has SessionCleared set. If a different session
// was established while the request was in flight it is left alone and
// SessionCleared is false.
func (m *SessionManager) AuthenticatedRequest(ctx context.Context, req domain.Request) (*domain.Response, error) {
	m.mu.RLock()
	token := m.session.Token
	m.mu.RUnlock()

	if req.Header == nil {
		req.Header = http.Header{}
	} else {
		req.Header = req.Header.Clone()
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := m.api.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp.Status != http.StatusUnauthorized {
		return resp, nil
	}

	cleared := m.clearIfCurrent(ctx, token)
	return nil, &domain.RemoteError{
		Kind:           domain.ErrAuthenticationRequired,
		Status:         resp.Status,
		Message:        resp.Message("Authentication required"),
		SessionCleared: cleared,
	}
}

// clearIfCurrent is the compare-and-clear behind the implicit logout.
func (m *SessionManager) clearIfCurrent(ctx context.Context, token string) bool {
	m.mu.Lock()
	if token == "" || m.session.Token != token {
		m.mu.Unlock()
		return false
	}
	m.session = domain.Session{}
	// the store must follow memory even if the caller has given up
	err := m.store.Delete(context.WithoutCancel(ctx), SessionKey)
	m.mu.Unlock()

	if err != nil {
		log.Warn().Err(err).Msg("stored session not cleared after 401")
	}
	observability.ObserveSession("expired")
	log.Info().Msg("session cleared after 401")
	m.notify(domain.Session{})
	return true
}
