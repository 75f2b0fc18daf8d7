package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"spotcheck/internal/domain"
)

var ErrSearchDisabled = errors.New("place search is not configured")

// PlaceService holds the read paths the view layer renders.
type PlaceService struct {
	api      domain.DataService
	sessions *SessionManager
	provider domain.PlaceProvider // optional
	cache    domain.Cache         // optional
	cacheTTL time.Duration
}

func NewPlaceService(api domain.DataService, sessions *SessionManager, provider domain.PlaceProvider, cache domain.Cache, ttl time.Duration) *PlaceService {
	return &PlaceService{api: api, sessions: sessions, provider: provider, cache: cache, cacheTTL: ttl}
}

func coordsQuery(near *domain.Coords) url.Values {
	if near == nil {
		return nil
	}
	return url.Values{
		"lat": {strconv.FormatFloat(near.Lat, 'f', -1, 64)},
		"lng": {strconv.FormatFloat(near.Lng, 'f', -1, 64)},
	}
}

func (s *PlaceService) ListPlaces(ctx context.Context, near *domain.Coords) ([]domain.Place, error) {
	resp, err := s.api.Do(ctx, domain.Request{
		Method: http.MethodGet, Path: "/places", Query: coordsQuery(near), Endpoint: "places_list",
	})
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, domain.ServerStatusError(resp.Status, resp.Message("Could not load places"))
	}
	var out []domain.Place
	if err := resp.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

// Detail fetches the place bundle (place plus reviews, in server order).
// An ephemeral ref is sent with its provider id; the data service may not
// know it.
func (s *PlaceService) Detail(ctx context.Context, ref domain.PlaceRef) (domain.PlaceDetail, error) {
	id := ref.PathID()
	if id == "" {
		return domain.PlaceDetail{}, &domain.ValidationError{Fields: map[string]string{"id": "is required"}}
	}
	if !ref.Persisted() {
		log.Warn().Str("provider_id", ref.ExternalID).Msg("place detail requested with an unreconciled id")
	}

	resp, err := s.api.Do(ctx, domain.Request{
		Method: http.MethodGet, Path: "/places/" + url.PathEscape(id), Endpoint: "place_detail",
	})
	if err != nil {
		return domain.PlaceDetail{}, err
	}
	if !resp.OK() {
		return domain.PlaceDetail{}, domain.ServerStatusError(resp.Status, resp.Message("Could not load place"))
	}
	var d domain.PlaceDetail
	if err := resp.Decode(&d); err != nil {
		return domain.PlaceDetail{}, err
	}
	if d.Reviews == nil {
		d.Reviews = []domain.Review{}
	}
	return d, nil
}

// Favorites lists the signed-in user's favorite places. Without a session
// nav is sent to login and ErrLoginRequired is returned before any request.
func (s *PlaceService) Favorites(ctx context.Context, nav domain.Navigator) ([]domain.Place, error) {
	if _, ok := s.sessions.RequireSession(nav); !ok {
		return nil, domain.ErrLoginRequired
	}
	resp, err := s.sessions.AuthenticatedRequest(ctx, domain.Request{
		Method: http.MethodGet, Path: "/favorites", Endpoint: "favorites",
	})
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, domain.ServerStatusError(resp.Status, resp.Message("Could not load favorites"))
	}

	body := bytes.TrimSpace(resp.Body)
	if len(body) == 0 || body[0] != '[' {
		log.Warn().Int("status", resp.Status).Msg("favorites body is not a list; showing none")
		return []domain.Place{}, nil
	}
	var out []domain.Place
	if err := json.Unmarshal(body, &out); err != nil {
		log.Warn().Err(err).Msg("favorites body is malformed; showing none")
		return []domain.Place{}, nil
	}
	return out, nil
}

func searchCacheKey(query string, near *domain.Coords) string {
	q := strings.ToLower(strings.Join(strings.Fields(query), " "))
	if near == nil {
		return "search:" + q
	}
	return fmt.Sprintf("search:%s:%.3f,%.3f", q, near.Lat, near.Lng)
}

// Search runs a provider text search. Results are cached per query and
// rounded coordinates.
func (s *PlaceService) Search(ctx context.Context, query string, near *domain.Coords) ([]domain.ExternalPlace, error) {
	if s.provider == nil {
		return nil, ErrSearchDisabled
	}
	key := searchCacheKey(query, near)
	if s.cache != nil {
		var hit []domain.ExternalPlace
		if ok, _ := s.cache.Get(ctx, key, &hit); ok {
			return hit, nil
		}
	}
	out, err := s.provider.SearchText(ctx, query, near)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", query, err)
	}
	if s.cache != nil {
		_ = s.cache.Set(ctx, key, out, int(s.cacheTTL.Seconds()))
	}
	return out, nil
}
