package app_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"spotcheck/internal/app"
	"spotcheck/internal/domain"
)

// ---- data service fake ----

type call struct {
	Method string
	Path   string
	Header http.Header
	Body   []byte
}

type fakeAPI struct {
	mu     sync.Mutex
	calls  []call
	handle func(ctx context.Context, req domain.Request) (*domain.Response, error)
}

func (f *fakeAPI) Do(ctx context.Context, req domain.Request) (*domain.Response, error) {
	var body []byte
	if req.Body != nil {
		body, _ = json.Marshal(req.Body)
	}
	f.mu.Lock()
	f.calls = append(f.calls, call{Method: req.Method, Path: req.Path, Header: req.Header.Clone(), Body: body})
	h := f.handle
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return h(ctx, req)
}

func (f *fakeAPI) Calls() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]call(nil), f.calls...)
}

func (f *fakeAPI) count(method, path string) int {
	n := 0
	for _, c := range f.Calls() {
		if c.Method == method && c.Path == path {
			n++
		}
	}
	return n
}

func (f *fakeAPI) reset() {
	f.mu.Lock()
	f.calls = nil
	f.mu.Unlock()
}

func jsonResp(status int, v any) *domain.Response {
	b, _ := json.Marshal(v)
	return &domain.Response{Status: status, Header: http.Header{"Content-Type": {"application/json"}}, Body: b}
}

func textResp(status int, s string) *domain.Response {
	return &domain.Response{Status: status, Body: []byte(s)}
}

// ---- simulated data service ----

// backend behaves like the remote data service closely enough for flow tests:
// stable ids per provider id, reviews prepended, bearer checks on protected
// routes. Entries in override win over the default routing.
type backend struct {
	mu       sync.Mutex
	nextID   int64
	places   map[int64]*domain.PlaceDetail
	byExt    map[string]int64
	tokens   map[string]domain.User
	issued   int
	override map[string]func(req domain.Request) (*domain.Response, error)
}

func newBackend(firstID int64) *backend {
	return &backend{
		nextID:   firstID,
		places:   map[int64]*domain.PlaceDetail{},
		byExt:    map[string]int64{},
		tokens:   map[string]domain.User{},
		override: map[string]func(domain.Request) (*domain.Response, error){},
	}
}

func (b *backend) api() *fakeAPI {
	return &fakeAPI{handle: func(_ context.Context, req domain.Request) (*domain.Response, error) { return b.serve(req) }}
}

func (b *backend) on(method, path string, fn func(req domain.Request) (*domain.Response, error)) {
	b.mu.Lock()
	b.override[method+" "+path] = fn
	b.mu.Unlock()
}

func (b *backend) seed(p domain.Place, reviews ...domain.Review) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if p.ID == 0 {
		p.ID = b.nextID
		b.nextID++
	}
	if reviews == nil {
		reviews = []domain.Review{}
	}
	b.places[p.ID] = &domain.PlaceDetail{Place: p, Reviews: reviews}
	if p.ProviderID != "" {
		b.byExt[p.ProviderID] = p.ID
	}
}

func (b *backend) serve(req domain.Request) (*domain.Response, error) {
	b.mu.Lock()
	fn := b.override[req.Method+" "+req.Path]
	b.mu.Unlock()
	if fn != nil {
		return fn(req)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	parts := strings.Split(strings.Trim(req.Path, "/"), "/")

	switch {
	case req.Method == http.MethodPost && req.Path == "/login":
		c := req.Body.(domain.Credentials)
		b.issued++
		tok := "t" + strconv.Itoa(b.issued)
		u := domain.User{ID: 1, Email: c.Email, Username: strings.SplitN(c.Email, "@", 2)[0]}
		b.tokens[tok] = u
		return jsonResp(200, map[string]any{"token": tok, "user": u}), nil

	case req.Method == http.MethodPost && req.Path == "/places":
		ext := req.Body.(domain.ExternalPlace)
		if id, ok := b.byExt[ext.ProviderID]; ok {
			return jsonResp(200, b.places[id].Place), nil
		}
		p := domain.Place{
			ID: b.nextID, ProviderID: ext.ProviderID, DisplayName: ext.DisplayName,
			Types: ext.Types, Photos: ext.Photos,
		}
		b.nextID++
		b.places[p.ID] = &domain.PlaceDetail{Place: p, Reviews: []domain.Review{}}
		b.byExt[ext.ProviderID] = p.ID
		return jsonResp(201, p), nil

	case req.Method == http.MethodGet && len(parts) == 2 && parts[0] == "places":
		id, _ := strconv.ParseInt(parts[1], 10, 64)
		d, ok := b.places[id]
		if !ok {
			return jsonResp(404, map[string]string{"error": "place not found"}), nil
		}
		out := *d
		out.Reviews = append([]domain.Review(nil), d.Reviews...)
		return jsonResp(200, out), nil

	case req.Method == http.MethodPost && len(parts) == 3 && parts[2] == "add_review":
		u, ok := b.tokens[strings.TrimPrefix(req.Header.Get("Authorization"), "Bearer ")]
		if !ok {
			return jsonResp(401, map[string]string{"error": "invalid token"}), nil
		}
		id, _ := strconv.ParseInt(parts[1], 10, 64)
		d, ok := b.places[id]
		if !ok {
			return jsonResp(404, map[string]string{"error": "place not found"}), nil
		}
		dr := req.Body.(domain.ReviewDraft)
		r := domain.Review{
			ID: int64(len(d.Reviews) + 1), PlaceID: id, Rating: dr.Rating, Title: dr.Title,
			Content: dr.Content, CreatedAt: time.Now().UTC(), User: &u,
		}
		if dr.VisitDate != "" {
			r.VisitDate = &dr.VisitDate
		}
		d.Reviews = append([]domain.Review{r}, d.Reviews...)
		d.ReviewCount = len(d.Reviews)
		return jsonResp(201, r), nil

	case req.Method == http.MethodGet && req.Path == "/favorites":
		if _, ok := b.tokens[strings.TrimPrefix(req.Header.Get("Authorization"), "Bearer ")]; !ok {
			return jsonResp(401, map[string]string{"error": "invalid token"}), nil
		}
		return jsonResp(200, []domain.Place{}), nil
	}
	return jsonResp(404, map[string]string{"error": fmt.Sprintf("no route %s %s", req.Method, req.Path)}), nil
}

// ---- store / cache / navigator fakes ----

type memStore struct {
	mu     sync.Mutex
	m      map[string][]byte
	putErr error
}

func newMemStore() *memStore { return &memStore{m: map[string][]byte{}} }

func (s *memStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.m[key]
	return v, ok, nil
}

func (s *memStore) Put(ctx context.Context, key string, val []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.putErr != nil {
		return s.putErr
	}
	s.m[key] = append([]byte(nil), val...)
	return nil
}

func (s *memStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, key)
	return nil
}

func (s *memStore) has(key string) bool {
	_, ok, _ := s.Get(context.Background(), key)
	return ok
}

// jsonCache round-trips through JSON like the redis adapter does.
type jsonCache struct {
	mu    sync.Mutex
	store map[string][]byte
}

func (c *jsonCache) Get(ctx context.Context, key string, dst any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.store[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(v, dst)
}

func (c *jsonCache) Set(ctx context.Context, key string, v any, ttlSec int) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.store == nil {
		c.store = map[string][]byte{}
	}
	c.store[key] = b
	return nil
}

func (c *jsonCache) Del(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.store, key)
	return nil
}

type countingNav struct{ n atomic.Int32 }

func (n *countingNav) ToLogin()        { n.n.Add(1) }
func (n *countingNav) redirects() int { return int(n.n.Load()) }

// ---- helpers ----

func newSessions(api domain.DataService, store domain.KVStore) *app.SessionManager {
	m := app.NewSessionManager(api, store)
	m.Initialize(context.Background())
	return m
}

func mustLogin(t *testing.T, m *app.SessionManager) {
	t.Helper()
	if _, err := m.Login(context.Background(), domain.Credentials{Email: "a@b.com", Password: "secret1"}); err != nil {
		t.Fatalf("login: %v", err)
	}
}
