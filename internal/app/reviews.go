package app

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"github.com/rs/zerolog/log"

	"spotcheck/internal/adapters/observability"
	"spotcheck/internal/domain"
)

type ReviewState int

const (
	StateIdle ReviewState = iota
	StateEditing
	StateSubmitting
)

func (s ReviewState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateEditing:
		return "editing"
	case StateSubmitting:
		return "submitting"
	}
	return "unknown"
}

type SubmitOutcome int

const (
	OutcomeSaved      SubmitOutcome = iota + 1 // written; local state replaced by a refetch
	OutcomeRedirected                          // no session; sent to login, nothing sent
	OutcomeRejected                            // invalid draft or already submitting
	OutcomeFailed                              // the write failed; draft kept
)

func (o SubmitOutcome) String() string {
	switch o {
	case OutcomeSaved:
		return "saved"
	case OutcomeRedirected:
		return "redirected"
	case OutcomeRejected:
		return "rejected"
	case OutcomeFailed:
		return "failed"
	}
	return "unknown"
}

// ReviewCoordinator runs the review form for one place:
//
//	Idle -> Editing -> Submitting -> Idle     (saved, refetched)
//	                              -> Editing  (failed, draft kept)
//
// The displayed bundle is only ever replaced wholesale by a refetch; the
// review count shown is len(Reviews).
type ReviewCoordinator struct {
	sessions *SessionManager
	places   *PlaceService
	nav      domain.Navigator
	ref      domain.PlaceRef

	mu     sync.Mutex
	state  ReviewState
	draft  domain.ReviewDraft
	detail *domain.PlaceDetail
}

func NewReviewCoordinator(sessions *SessionManager, places *PlaceService, nav domain.Navigator, ref domain.PlaceRef) *ReviewCoordinator {
	return &ReviewCoordinator{
		sessions: sessions,
		places:   places,
		nav:      nav,
		ref:      ref,
		draft:    domain.NewReviewDraft(),
	}
}

// Load fetches the place bundle and makes it the displayed state.
func (c *ReviewCoordinator) Load(ctx context.Context) (domain.PlaceDetail, error) {
	d, err := c.places.Detail(ctx, c.ref)
	if err != nil {
		return domain.PlaceDetail{}, err
	}
	c.mu.Lock()
	c.detail = &d
	c.mu.Unlock()
	return d, nil
}

func (c *ReviewCoordinator) Detail() (domain.PlaceDetail, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.detail == nil {
		return domain.PlaceDetail{}, false
	}
	return *c.detail, true
}

func (c *ReviewCoordinator) ReviewCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.detail == nil {
		return 0
	}
	return len(c.detail.Reviews)
}

func (c *ReviewCoordinator) State() ReviewState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *ReviewCoordinator) Draft() domain.ReviewDraft {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.draft
}

// BeginEdit opens the form. Without a session it redirects to login and
// returns false.
func (c *ReviewCoordinator) BeginEdit() bool {
	if _, ok := c.sessions.RequireSession(c.nav); !ok {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateSubmitting {
		return false
	}
	c.state = StateEditing
	return true
}

func (c *ReviewCoordinator) SetDraft(d domain.ReviewDraft) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateSubmitting {
		return domain.ErrSubmitInProgress
	}
	c.draft = d
	c.state = StateEditing
	return nil
}

// Cancel discards the draft.
func (c *ReviewCoordinator) Cancel() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateSubmitting {
		return domain.ErrSubmitInProgress
	}
	c.state = StateIdle
	c.draft = domain.NewReviewDraft()
	return nil
}

// SubmitReview replaces the draft with d and submits it.
func (c *ReviewCoordinator) SubmitReview(ctx context.Context, d domain.ReviewDraft) (SubmitOutcome, error) {
	if _, ok := c.sessions.RequireSession(c.nav); !ok {
		observability.ObserveReview("redirected")
		return OutcomeRedirected, nil
	}
	if err := c.SetDraft(d); err != nil {
		return OutcomeRejected, err
	}
	return c.Submit(ctx)
}

// Submit sends the current draft: exactly one write, then on success exactly
// one refetch of the place bundle. Without a session nothing is sent and the
// navigator is sent to login.
//
// If the write succeeds but the refetch fails the review is saved, the form
// is reset and the refetch error is returned with OutcomeSaved; the displayed
// bundle is then stale until the next Load.
func (c *ReviewCoordinator) Submit(ctx context.Context) (SubmitOutcome, error) {
	if _, ok := c.sessions.RequireSession(c.nav); !ok {
		observability.ObserveReview("redirected")
		return OutcomeRedirected, nil
	}

	c.mu.Lock()
	if c.state == StateSubmitting {
		c.mu.Unlock()
		return OutcomeRejected, domain.ErrSubmitInProgress
	}
	d := c.draft.Normalized()
	if err := validateForm(d); err != nil {
		c.state = StateEditing
		c.mu.Unlock()
		observability.ObserveReview("invalid")
		return OutcomeRejected, err
	}
	c.state = StateSubmitting
	c.mu.Unlock()

	if !c.ref.Persisted() {
		log.Warn().Str("provider_id", c.ref.ExternalID).Msg("submitting review for an unreconciled place")
	}
	resp, err := c.sessions.AuthenticatedRequest(ctx, domain.Request{
		Method:   http.MethodPost,
		Path:     "/places/" + url.PathEscape(c.ref.PathID()) + "/add_review",
		Body:     d,
		Endpoint: "review_create",
	})
	if err == nil && !resp.OK() {
		err = domain.ServerStatusError(resp.Status, resp.Message("Could not submit review"))
	}
	if err != nil {
		c.mu.Lock()
		c.state = StateEditing
		c.mu.Unlock()
		observability.ObserveReview("failed")
		return OutcomeFailed, err
	}

	fresh, ferr := c.places.Detail(ctx, c.ref)

	c.mu.Lock()
	c.state = StateIdle
	c.draft = domain.NewReviewDraft()
	if ferr == nil {
		c.detail = &fresh
	}
	c.mu.Unlock()

	if ferr != nil {
		observability.ObserveReview("saved_stale")
		return OutcomeSaved, fmt.Errorf("review saved; reload place: %w", ferr)
	}
	observability.ObserveReview("saved")
	log.Info().Str("place", c.ref.PathID()).Int("reviews", len(fresh.Reviews)).Msg("review saved")
	return OutcomeSaved, nil
}
