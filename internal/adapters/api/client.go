// Package api is the JSON transport to the remote data service.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"spotcheck/internal/adapters/remote"
	"spotcheck/internal/domain"
)

type Client struct {
	base *url.URL
	t    *remote.Transport
}

// New builds a client for the data service at base. No automatic retries are
// made: failures are surfaced to the initiating flow.
func New(base string, timeout time.Duration, rps int) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(base, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q", base)
	}
	return &Client{
		base: u,
		t:    remote.New(remote.Options{Service: "data", Timeout: timeout, RPS: rps}),
	}, nil
}

func (c *Client) BaseURL() string { return c.base.String() }

// Do implements domain.DataService.
func (c *Client) Do(ctx context.Context, req domain.Request) (*domain.Response, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	u := *c.base
	u.Path = c.base.Path + "/" + strings.TrimLeft(req.Path, "/")
	if len(req.Query) > 0 {
		u.RawQuery = req.Query.Encode()
	}

	var body []byte
	if req.Body != nil {
		b, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		body = b
	}
	endpoint := req.Endpoint
	if endpoint == "" {
		endpoint = "other"
	}
	return c.t.Do(ctx, endpoint, method, u.String(), body, req.Header)
}
