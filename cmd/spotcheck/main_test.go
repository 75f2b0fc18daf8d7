package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpserver "spotcheck/internal/adapters/http_server"
	"spotcheck/internal/domain"
)

func setupCLI(t *testing.T) *httpserver.Backend {
	t.Helper()
	b := httpserver.NewBackend(httpserver.BackendOptions{FirstPlaceID: 7})
	srv := httpserver.New()
	srv.MountHandlers(httpserver.NewHandlers(b))
	ts := httptest.NewServer(srv.Mux())
	t.Cleanup(ts.Close)

	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("SPOTCHECK_CONFIG", "")
	t.Setenv("SPOTCHECK_API_BASE_URL", ts.URL)
	t.Setenv("SPOTCHECK_SESSION_BACKEND", "sqlite")
	t.Setenv("SPOTCHECK_SQLITE_PATH", filepath.Join(dir, "state", "session.db"))
	t.Setenv("SPOTCHECK_PROVIDER_API_KEY", "")
	t.Setenv("SPOTCHECK_LOG_LEVEL", "error")
	return b
}

func cli(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	err := run(context.Background(), args, &out, &errOut)
	return out.String(), err
}

func TestCLI_SessionSurvivesInvocations(t *testing.T) {
	b := setupCLI(t)
	_, _, err := b.Register(domain.Profile{Email: "a@b.com", Username: "a", Password: "secret1"})
	require.NoError(t, err)

	out, err := cli(t, "whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "Not signed in")

	_, err = cli(t, "login", "--email", "a@b.com", "--password", "wrong1")
	require.ErrorIs(t, err, domain.ErrAuthenticationFailed)

	out, err = cli(t, "login", "--email", "a@b.com", "--password", "secret1")
	require.NoError(t, err)
	assert.Contains(t, out, "Signed in as a")

	out, err = cli(t, "whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "a <a@b.com>")

	out, err = cli(t, "logout")
	require.NoError(t, err)
	assert.Contains(t, out, "Signed out")

	out, err = cli(t, "whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "Not signed in")
}

func TestCLI_ReviewFlow(t *testing.T) {
	b := setupCLI(t)
	_, _, err := b.Register(domain.Profile{Email: "a@b.com", Username: "a", Password: "secret1"})
	require.NoError(t, err)
	b.Reconcile(domain.ExternalPlace{
		ProviderID: "ext-42", DisplayName: "<b>Cafe</b> X", PriceLevel: "PRICE_LEVEL_MODERATE",
		Types: domain.EncodeBlob([]string{"coffee_shop"}),
	})

	_, err = cli(t, "review", "7", "--rating", "4", "--title", "Nice", "--content", "Good coffee")
	require.ErrorIs(t, err, errLoginFirst)
	_, err = cli(t, "favorites")
	require.ErrorIs(t, err, errLoginFirst)

	_, err = cli(t, "login", "--email", "a@b.com", "--password", "secret1")
	require.NoError(t, err)

	out, err := cli(t, "review", "7", "--rating", "4", "--title", "Nice", "--content", "<script>x</script>Good coffee", "--visit-date", "2024-01-01")
	require.NoError(t, err)
	assert.Contains(t, out, "Review saved")
	assert.Contains(t, out, "Cafe X (#7)")
	assert.Contains(t, out, "coffee shop")
	assert.Contains(t, out, "Reviews (1)")
	assert.Contains(t, out, "Good coffee")
	assert.NotContains(t, out, "<script>")

	_, err = cli(t, "review", "7", "--rating", "9", "--title", "x", "--content", "y")
	require.ErrorIs(t, err, domain.ErrValidation)

	out, err = cli(t, "places")
	require.NoError(t, err)
	assert.Contains(t, out, "Cafe X  $$  4.0/5 (1)")

	out, err = cli(t, "favorites")
	require.NoError(t, err)
	assert.Contains(t, out, "No places")
}

func TestCLI_SearchWithoutProvider(t *testing.T) {
	setupCLI(t)
	_, err := cli(t, "search", "coffee")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SPOTCHECK_PROVIDER_API_KEY")
}
