package remote_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"spotcheck/internal/adapters/remote"
	"spotcheck/internal/domain"
)

func TestTransport_RetriesThenSuccess(t *testing.T) {
	var hits int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch atomic.AddInt32(&hits, 1) {
		case 1, 2:
			// two transient failures
			w.WriteHeader(500)
		default:
			w.WriteHeader(200)
			_, _ = w.Write([]byte(`{"ok":true}`))
		}
	}))
	defer ts.Close()

	tr := remote.New(remote.Options{Service: "provider", RPS: 100, Retries: 3})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := tr.Do(ctx, "search", http.MethodPost, ts.URL, []byte(`{}`), nil)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if resp.Status != 200 || string(resp.Body) != `{"ok":true}` {
		t.Fatalf("unexpected response: %d %s", resp.Status, resp.Body)
	}
	if got := atomic.LoadInt32(&hits); got != 3 {
		t.Fatalf("expected 3 calls due to retries, got %d", got)
	}
}

func TestTransport_NoRetriesReturnsRawStatus(t *testing.T) {
	var hits int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	tr := remote.New(remote.Options{Service: "data", RPS: 100})
	resp, err := tr.Do(context.Background(), "places", http.MethodGet, ts.URL, nil, nil)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if resp.Status != http.StatusServiceUnavailable {
		t.Fatalf("status: %d", resp.Status)
	}
	if hits != 1 {
		t.Fatalf("expected a single call, got %d", hits)
	}
}

func TestTransport_HeadersAndBody(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Request-ID") == "" {
			t.Errorf("missing request id")
		}
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("content type: %q", r.Header.Get("Content-Type"))
		}
		if r.Header.Get("X-Static") != "yes" || r.Header.Get("Authorization") != "Bearer t1" {
			t.Errorf("headers not merged: %v", r.Header)
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer ts.Close()

	tr := remote.New(remote.Options{Service: "data", RPS: 100, Header: http.Header{"X-Static": {"yes"}}})
	resp, err := tr.Do(context.Background(), "login", http.MethodPost, ts.URL, []byte(`{"a":1}`),
		http.Header{"Authorization": {"Bearer t1"}})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if resp.Status != http.StatusCreated {
		t.Fatalf("status: %d", resp.Status)
	}
}

func TestTransport_NetworkError(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	tr := remote.New(remote.Options{Service: "data", RPS: 100})
	_, err := tr.Do(context.Background(), "places", http.MethodGet, url, nil, nil)
	if !errors.Is(err, domain.ErrNetwork) {
		t.Fatalf("expected ErrNetwork, got %v", err)
	}
}
