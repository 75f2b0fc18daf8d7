// internal/adapters/provider/client.go
package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"spotcheck/internal/adapters/remote"
	"spotcheck/internal/domain"
)

const DefaultFieldMask = "places.id,places.displayName,places.formattedAddress,places.postalAddress," +
	"places.nationalPhoneNumber,places.rating,places.priceLevel,places.types,places.photos," +
	"places.websiteUri,places.googleMapsUri,places.location"

// searchRadiusMeters biases text search around the caller's coordinates.
const searchRadiusMeters = 5000.0

var (
	ErrNotFound     = errors.New("provider: not found")
	ErrUnauthorized = errors.New("provider: unauthorized")
	ErrForbidden    = errors.New("provider: forbidden")
)

// Client talks to a Places-style text search API and maps its records into
// domain.ExternalPlace values.
type Client struct {
	base string
	key  string
	t    *remote.Transport
}

func New(base, key string, rps int) (*Client, error) {
	if key == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if rps <= 0 {
		rps = 5
	}
	return &Client{
		base: strings.TrimRight(base, "/"),
		key:  key,
		t: remote.New(remote.Options{
			Service: "provider",
			RPS:     rps,
			Retries: 3,
			Header: http.Header{
				"X-Goog-Api-Key":   {key},
				"X-Goog-Fieldmask": {DefaultFieldMask},
			},
		}),
	}, nil
}

type searchRequest struct {
	TextQuery    string        `json:"textQuery"`
	LocationBias *locationBias `json:"locationBias,omitempty"`
}

type locationBias struct {
	Circle struct {
		Center struct {
			Latitude  float64 `json:"latitude"`
			Longitude float64 `json:"longitude"`
		} `json:"center"`
		Radius float64 `json:"radius"`
	} `json:"circle"`
}

// SearchText runs a free-text search, optionally biased around near.
func (c *Client) SearchText(ctx context.Context, query string, near *domain.Coords) ([]domain.ExternalPlace, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, &domain.ValidationError{Fields: map[string]string{"query": "is required"}}
	}
	in := searchRequest{TextQuery: query}
	if near != nil {
		lb := &locationBias{}
		lb.Circle.Center.Latitude = near.Lat
		lb.Circle.Center.Longitude = near.Lng
		lb.Circle.Radius = searchRadiusMeters
		in.LocationBias = lb
	}
	body, err := json.Marshal(in)
	if err != nil {
		return nil, err
	}

	resp, err := c.t.Do(ctx, "search_text", http.MethodPost, c.base+"/places:searchText", body, nil)
	if err != nil {
		return nil, err
	}
	switch resp.Status {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, &domain.RemoteError{Kind: domain.ErrServer, Status: resp.Status, Err: ErrNotFound}
	case http.StatusUnauthorized:
		return nil, &domain.RemoteError{Kind: domain.ErrServer, Status: resp.Status, Err: ErrUnauthorized}
	case http.StatusForbidden:
		return nil, &domain.RemoteError{Kind: domain.ErrServer, Status: resp.Status, Err: ErrForbidden}
	default:
		return nil, domain.ServerStatusError(resp.Status, resp.Message("place search failed"))
	}

	var out struct {
		Places []map[string]any `json:"places"`
	}
	if err := resp.Decode(&out); err != nil {
		return nil, err
	}
	return mapPlaces(out.Places), nil
}
