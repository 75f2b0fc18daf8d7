package app

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"spotcheck/internal/adapters/observability"
	"spotcheck/internal/domain"
)

// PlaceReconciler turns provider records into persisted places. The data
// service is the authority on ids; the reconciler never mints one.
type PlaceReconciler struct {
	api      domain.DataService
	cache    domain.Cache // optional
	cacheTTL time.Duration
	workers  int64

	group singleflight.Group
}

func NewPlaceReconciler(api domain.DataService, cache domain.Cache, ttl time.Duration, workers int) *PlaceReconciler {
	if workers <= 0 {
		workers = 4
	}
	return &PlaceReconciler{api: api, cache: cache, cacheTTL: ttl, workers: int64(workers)}
}

func placeCacheKey(providerID string) string { return "place:ext:" + providerID }

// GetOrCreatePlace returns the persisted place for ext, creating it on first
// sight. Repeated calls with the same provider id yield the same place id.
// Concurrent calls for one provider id share a single request.
func (r *PlaceReconciler) GetOrCreatePlace(ctx context.Context, ext domain.ExternalPlace) (domain.Place, error) {
	if ext.ProviderID == "" {
		return domain.Place{}, &domain.ValidationError{Fields: map[string]string{"provider_id": "is required"}}
	}

	key := placeCacheKey(ext.ProviderID)
	if r.cache != nil {
		var p domain.Place
		if ok, err := r.cache.Get(ctx, key, &p); err != nil {
			log.Debug().Err(err).Str("key", key).Msg("place cache read failed")
		} else if ok && p.ID != 0 {
			observability.ObserveReconcile("cache_hit")
			return p, nil
		}
	}

	// the shared call outlives any single waiter; the transport timeout bounds it
	ch := r.group.DoChan(ext.ProviderID, func() (any, error) {
		return r.create(context.WithoutCancel(ctx), ext)
	})
	select {
	case <-ctx.Done():
		return domain.Place{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return domain.Place{}, res.Err
		}
		if res.Shared {
			observability.ObserveReconcile("shared")
		}
		return res.Val.(domain.Place), nil
	}
}

func (r *PlaceReconciler) create(ctx context.Context, ext domain.ExternalPlace) (domain.Place, error) {
	resp, err := r.api.Do(ctx, domain.Request{
		Method: http.MethodPost, Path: "/places", Body: ext, Endpoint: "place_create",
	})
	if err != nil {
		return domain.Place{}, err
	}
	if !resp.OK() {
		return domain.Place{}, domain.ServerStatusError(resp.Status, resp.Message("Could not save place"))
	}
	var p domain.Place
	if err := resp.Decode(&p); err != nil {
		return domain.Place{}, err
	}
	if p.ID == 0 {
		return domain.Place{}, &domain.RemoteError{
			Kind: domain.ErrServer, Status: resp.Status, Message: "place response has no id",
		}
	}
	if p.ProviderID == "" {
		p.ProviderID = ext.ProviderID
	}
	if r.cache != nil {
		if err := r.cache.Set(ctx, placeCacheKey(ext.ProviderID), p, int(r.cacheTTL.Seconds())); err != nil {
			log.Debug().Err(err).Msg("place cache write failed")
		}
	}
	return p, nil
}

// Resolve never fails: a reconciliation error degrades to an ephemeral ref
// carrying the provider id and the cause.
func (r *PlaceReconciler) Resolve(ctx context.Context, ext domain.ExternalPlace) domain.PlaceRef {
	p, err := r.GetOrCreatePlace(ctx, ext)
	if err != nil {
		observability.ObserveReconcile("fallback")
		log.Warn().Err(err).Str("provider_id", ext.ProviderID).Msg("reconciliation failed; using provider id")
		return domain.EphemeralRef(ext.ProviderID, err)
	}
	observability.ObserveReconcile("persisted")
	return domain.PersistedRef(p)
}

// ResolveAll resolves exts with bounded concurrency. out[i] belongs to exts[i].
func (r *PlaceReconciler) ResolveAll(ctx context.Context, exts []domain.ExternalPlace) []domain.PlaceRef {
	out := make([]domain.PlaceRef, len(exts))
	sem := semaphore.NewWeighted(r.workers)
	var wg sync.WaitGroup
	for i, ext := range exts {
		if err := sem.Acquire(ctx, 1); err != nil {
			out[i] = domain.EphemeralRef(ext.ProviderID, err)
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)
			out[i] = r.Resolve(ctx, ext)
		}()
	}
	wg.Wait()
	return out
}
