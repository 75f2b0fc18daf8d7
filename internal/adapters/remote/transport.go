// internal/adapters/remote/transport.go
package remote

import (
	"bytes"
	"context"
	crand "crypto/rand"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"spotcheck/internal/adapters/observability"
	"spotcheck/internal/domain"
)

const maxBody = 4 << 20

type Options struct {
	Service   string // metrics label: data|provider
	Timeout   time.Duration
	RPS       int
	Retries   int // extra attempts on network errors, 429 and transient 5xx
	UserAgent string
	Header    http.Header // sent on every request
	Client    *http.Client
}

// Transport performs HTTP exchanges with client-side rate limiting, optional
// retries and request ids. It never interprets statuses beyond retry
// decisions: callers get the raw response.
type Transport struct {
	service string
	hc      *http.Client
	rl      *rate.Limiter
	retries int
	ua      string
	header  http.Header
}

func New(o Options) *Transport {
	if o.Timeout <= 0 {
		o.Timeout = 20 * time.Second
	}
	if o.RPS <= 0 {
		o.RPS = 5
	}
	if o.Retries < 0 {
		o.Retries = 0
	}
	if o.UserAgent == "" {
		o.UserAgent = "spotcheck/1.0"
	}
	hc := o.Client
	if hc == nil {
		hc = &http.Client{Timeout: o.Timeout}
	}
	return &Transport{
		service: o.Service,
		hc:      hc,
		rl:      rate.NewLimiter(rate.Limit(o.RPS), o.RPS),
		retries: o.Retries,
		ua:      o.UserAgent,
		header:  o.Header.Clone(),
	}
}

// Do sends one logical request. body is replayed on every attempt. A
// transport failure is returned as a *domain.RemoteError of kind ErrNetwork;
// context cancellation is returned as is.
func (t *Transport) Do(ctx context.Context, endpoint, method, url string, body []byte, hdr http.Header) (*domain.Response, error) {
	if err := t.rl.Wait(ctx); err != nil {
		return nil, err
	}
	reqID := uuid.NewString()

	var lastErr error
	for i := 0; i <= t.retries; i++ {
		// build a fresh request each attempt
		var rd io.Reader
		if body != nil {
			rd = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, rd)
		if err != nil {
			return nil, err
		}
		for k, vs := range t.header {
			req.Header[k] = append([]string(nil), vs...)
		}
		for k, vs := range hdr {
			req.Header[k] = append([]string(nil), vs...)
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", t.ua)
		req.Header.Set("X-Request-ID", reqID)
		if body != nil && req.Header.Get("Content-Type") == "" {
			req.Header.Set("Content-Type", "application/json")
		}

		start := time.Now()
		resp, err := t.hc.Do(req)
		if err != nil {
			observability.ObserveExternal(t.service, endpoint, 0, time.Since(start))
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = &domain.RemoteError{Kind: domain.ErrNetwork, Err: err}
			if i < t.retries && sleepCtx(ctx, backoff(i)) {
				continue
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, lastErr
		}

		b, rerr := io.ReadAll(io.LimitReader(resp.Body, maxBody))
		resp.Body.Close()
		observability.ObserveExternal(t.service, endpoint, resp.StatusCode, time.Since(start))
		if rerr != nil {
			lastErr = &domain.RemoteError{Kind: domain.ErrNetwork, Status: resp.StatusCode, Err: fmt.Errorf("read body: %w", rerr)}
			if i < t.retries && sleepCtx(ctx, backoff(i)) {
				continue
			}
			return nil, lastErr
		}
		out := &domain.Response{Status: resp.StatusCode, Header: resp.Header, Body: b}

		if retryable(resp.StatusCode) && i < t.retries {
			// Prefer server-provided Retry-After; otherwise exponential backoff.
			wait := retryAfter(resp)
			if wait == 0 {
				wait = backoff(i)
			}
			if sleepCtx(ctx, wait) {
				continue
			}
			return nil, ctx.Err()
		}
		return out, nil
	}
	if lastErr == nil {
		lastErr = errors.New("no attempt succeeded")
	}
	return nil, lastErr
}

func retryable(status int) bool {
	switch status {
	case http.StatusTooManyRequests, http.StatusInternalServerError,
		http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// sleepCtx waits for d or returns false early if ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// retryAfter parses Retry-After header (seconds or HTTP-date). Returns 0 if absent/invalid.
func retryAfter(resp *http.Response) time.Duration {
	h := resp.Header.Get("Retry-After")
	if h == "" {
		return 0
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(h)); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(h); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// backoff returns 200ms doubled per attempt plus up to 50% jitter.
func backoff(i int) time.Duration {
	base := time.Duration(1<<i) * 200 * time.Millisecond
	var b [1]byte
	if _, err := crand.Read(b[:]); err != nil {
		return base
	}
	f := float64(b[0]) / 255.0
	return base + time.Duration(0.5*f*float64(base))
}
