package domain

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
)

// KVStore is durable key/value storage that survives restarts. The session
// manager keeps a single record in it.
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, val []byte) error
	Delete(ctx context.Context, key string) error
}

type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any, ttlSec int) error
	Del(ctx context.Context, key string) error
}

// DataService is the remote data service transport. It returns the raw
// response for any status; only transport failures are errors.
type DataService interface {
	Do(ctx context.Context, req Request) (*Response, error)
}

type PlaceProvider interface {
	SearchText(ctx context.Context, query string, near *Coords) ([]ExternalPlace, error)
}

// Navigator receives redirects issued by guarded flows.
type Navigator interface {
	ToLogin()
}

type NavigatorFunc func()

func (f NavigatorFunc) ToLogin() { f() }

type Request struct {
	Method   string
	Path     string
	Query    url.Values
	Header   http.Header
	Body     any
	Endpoint string // metrics label, e.g. "place_detail"
}

type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

func (r *Response) OK() bool { return r.Status >= 200 && r.Status < 300 }

func (r *Response) Decode(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return &RemoteError{Kind: ErrServer, Status: r.Status, Message: "undecodable response body", Err: err}
	}
	return nil
}

// Message extracts a human-readable message from an error body: a JSON
// error/message/detail/title field, else the trimmed text, else fallback.
func (r *Response) Message(fallback string) string {
	body := strings.TrimSpace(string(r.Body))
	if body == "" {
		return fallback
	}
	var obj map[string]any
	if json.Unmarshal(r.Body, &obj) == nil {
		for _, k := range []string{"error", "message", "detail", "title"} {
			if s, ok := obj[k].(string); ok && s != "" {
				return s
			}
		}
		return fallback
	}
	return body
}
