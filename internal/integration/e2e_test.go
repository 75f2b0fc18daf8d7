package integration

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spotcheck/internal/adapters/api"
	httpserver "spotcheck/internal/adapters/http_server"
	redisad "spotcheck/internal/adapters/redis"
	"spotcheck/internal/app"
	"spotcheck/internal/domain"
	"spotcheck/internal/storage/sqlstore"
)

// ---------- wiring ----------

type client struct {
	sessions   *app.SessionManager
	places     *app.PlaceService
	reconciler *app.PlaceReconciler
}

// startClient builds a fresh client process over the given store, the way
// the CLI does on every invocation.
func startClient(t *testing.T, baseURL string, store domain.KVStore, cache domain.Cache) *client {
	t.Helper()
	dc, err := api.New(baseURL, 5*time.Second, 100)
	require.NoError(t, err)
	sessions := app.NewSessionManager(dc, store)
	sessions.Initialize(context.Background())
	return &client{
		sessions:   sessions,
		places:     app.NewPlaceService(dc, sessions, nil, cache, time.Minute),
		reconciler: app.NewPlaceReconciler(dc, cache, time.Minute, 4),
	}
}

func startStub(t *testing.T) (*httptest.Server, *httpserver.Backend) {
	t.Helper()
	b := httpserver.NewBackend(httpserver.BackendOptions{FirstPlaceID: 7})
	srv := httpserver.New()
	srv.MountHandlers(httpserver.NewHandlers(b))
	ts := httptest.NewServer(srv.Mux())
	t.Cleanup(ts.Close)
	_, _, err := b.Register(domain.Profile{Email: "a@b.com", Username: "a", Password: "secret1"})
	require.NoError(t, err)
	return ts, b
}

func openSQLite(t *testing.T, path string) *sqlstore.Store {
	t.Helper()
	s, err := sqlstore.OpenSQLite(context.Background(), path)
	require.NoError(t, err)
	return s
}

// ---------- scenarios ----------

func TestE2E_LoginRestoredAfterRestart(t *testing.T) {
	ts, _ := startStub(t)
	path := filepath.Join(t.TempDir(), "session.db")

	store := openSQLite(t, path)
	c := startClient(t, ts.URL, store, nil)
	u, err := c.sessions.Login(context.Background(), domain.Credentials{Email: "a@b.com", Password: "secret1"})
	require.NoError(t, err)
	assert.Equal(t, "a", u.Username)
	want := c.sessions.Current()
	require.NoError(t, store.Close())

	// restart: new store handle, new manager, stub never sees a second login
	store = openSQLite(t, path)
	t.Cleanup(func() { _ = store.Close() })
	restarted := startClient(t, ts.URL, store, nil)
	assert.Equal(t, want, restarted.sessions.Current())
}

func TestE2E_ReconcileTwiceThenDetail(t *testing.T) {
	ts, _ := startStub(t)
	store := openSQLite(t, filepath.Join(t.TempDir(), "s.db"))
	t.Cleanup(func() { _ = store.Close() })
	c := startClient(t, ts.URL, store, nil)
	ext := domain.ExternalPlace{ProviderID: "ext-42", DisplayName: "Cafe X"}

	p1, err := c.reconciler.GetOrCreatePlace(context.Background(), ext)
	require.NoError(t, err)
	p2, err := c.reconciler.GetOrCreatePlace(context.Background(), ext)
	require.NoError(t, err)
	assert.Equal(t, int64(7), p1.ID)
	assert.Equal(t, int64(7), p2.ID)

	d, err := c.places.Detail(context.Background(), domain.PersistedRef(p1))
	require.NoError(t, err)
	assert.Equal(t, "Cafe X", d.Title())
}

func TestE2E_ReviewIncreasesCountByOne(t *testing.T) {
	ts, _ := startStub(t)
	store := openSQLite(t, filepath.Join(t.TempDir(), "s.db"))
	t.Cleanup(func() { _ = store.Close() })
	c := startClient(t, ts.URL, store, nil)
	ctx := context.Background()

	_, err := c.sessions.Login(ctx, domain.Credentials{Email: "a@b.com", Password: "secret1"})
	require.NoError(t, err)
	ref := c.reconciler.Resolve(ctx, domain.ExternalPlace{ProviderID: "ext-42", DisplayName: "Cafe X"})
	require.True(t, ref.Persisted())
	require.Equal(t, int64(7), ref.ID)

	coord := app.NewReviewCoordinator(c.sessions, c.places, domain.NavigatorFunc(func() {
		t.Fatal("unexpected login redirect")
	}), ref)
	before, err := coord.Load(ctx)
	require.NoError(t, err)

	out, err := coord.SubmitReview(ctx, domain.ReviewDraft{Rating: 4, Title: "Nice", Content: "Good coffee", VisitDate: "2024-01-01"})
	require.NoError(t, err)
	assert.Equal(t, app.OutcomeSaved, out)

	after, ok := coord.Detail()
	require.True(t, ok)
	assert.Equal(t, len(before.Reviews)+1, len(after.Reviews))
	assert.Equal(t, len(after.Reviews), coord.ReviewCount())
	assert.Equal(t, after.ReviewCount, len(after.Reviews))
	assert.Equal(t, "Nice", after.Reviews[0].Title)
	require.NotNil(t, after.Reviews[0].VisitDate)
	assert.Equal(t, "2024-01-01", *after.Reviews[0].VisitDate)
}

func TestE2E_UnauthorizedClearsSessionEverywhere(t *testing.T) {
	ts, b := startStub(t)
	path := filepath.Join(t.TempDir(), "s.db")
	store := openSQLite(t, path)
	t.Cleanup(func() { _ = store.Close() })
	c := startClient(t, ts.URL, store, nil)
	ctx := context.Background()

	_, err := c.sessions.Login(ctx, domain.Credentials{Email: "a@b.com", Password: "secret1"})
	require.NoError(t, err)
	b.RevokeToken(c.sessions.Current().Token)

	_, err = c.places.Favorites(ctx, domain.NavigatorFunc(func() {}))
	require.ErrorIs(t, err, domain.ErrAuthenticationRequired)

	s := c.sessions.Current()
	assert.Empty(t, s.Token)
	assert.Nil(t, s.User)
	_, ok, err := store.Get(ctx, app.SessionKey)
	require.NoError(t, err)
	assert.False(t, ok)

	redirected := 0
	_, err = c.places.Favorites(ctx, domain.NavigatorFunc(func() { redirected++ }))
	require.ErrorIs(t, err, domain.ErrLoginRequired)
	assert.Equal(t, 1, redirected)
}

func TestE2E_RedisBackedSessionAndCache(t *testing.T) {
	ts, _ := startStub(t)
	mr := miniredis.RunT(t)
	store := redisad.NewStore(mr.Addr(), "", 0)
	cache := redisad.New(mr.Addr(), "", 0)
	t.Cleanup(func() { _ = store.Close(); _ = cache.Close() })
	ctx := context.Background()

	c := startClient(t, ts.URL, store, cache)
	_, err := c.sessions.Login(ctx, domain.Credentials{Email: "a@b.com", Password: "secret1"})
	require.NoError(t, err)
	p, err := c.reconciler.GetOrCreatePlace(ctx, domain.ExternalPlace{ProviderID: "ext-42", DisplayName: "Cafe X"})
	require.NoError(t, err)

	// second process: session from redis, place id from the cache even with the stub gone
	ts.Close()
	again := startClient(t, ts.URL, store, cache)
	assert.True(t, again.sessions.Current().Authenticated())
	cached, err := again.reconciler.GetOrCreatePlace(ctx, domain.ExternalPlace{ProviderID: "ext-42"})
	require.NoError(t, err)
	assert.Equal(t, p.ID, cached.ID)
}
