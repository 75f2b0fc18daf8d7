package httpserver

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"spotcheck/internal/domain"
)

var (
	ErrEmailTaken   = errors.New("email already registered")
	ErrPlaceMissing = errors.New("place not found")
	ErrUserMissing  = errors.New("user not found")
)

type BackendOptions struct {
	// FirstPlaceID is the id given to the first reconciled place (default 1).
	FirstPlaceID int64
	// IssueTokenOnRegister makes POST /users answer {token, user} instead of
	// the bare user.
	IssueTokenOnRegister bool
}

type account struct {
	user     domain.User
	password string
}

// Backend is the in-memory state of the stub data service. It is safe for
// concurrent use.
type Backend struct {
	mu   sync.Mutex
	opts BackendOptions

	nextPlaceID  int64
	nextUserID   int64
	nextReviewID int64

	places    map[int64]*domain.PlaceDetail
	byExt     map[string]int64
	accounts  map[string]*account // by lower-cased email
	tokens    map[string]int64    // token -> user id
	favorites map[int64][]int64   // user id -> place ids
}

func NewBackend(o BackendOptions) *Backend {
	if o.FirstPlaceID <= 0 {
		o.FirstPlaceID = 1
	}
	return &Backend{
		opts:         o,
		nextPlaceID:  o.FirstPlaceID,
		nextUserID:   1,
		nextReviewID: 1,
		places:       map[int64]*domain.PlaceDetail{},
		byExt:        map[string]int64{},
		accounts:     map[string]*account{},
		tokens:       map[string]int64{},
		favorites:    map[int64][]int64{},
	}
}

func (b *Backend) Register(p domain.Profile) (domain.User, string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	key := strings.ToLower(strings.TrimSpace(p.Email))
	if _, ok := b.accounts[key]; ok {
		return domain.User{}, "", ErrEmailTaken
	}
	u := domain.User{
		ID: b.nextUserID, Email: strings.TrimSpace(p.Email), Username: p.Username,
		FirstName: p.FirstName, LastName: p.LastName, ProfilePictureURL: p.ProfilePictureURL,
	}
	b.nextUserID++
	b.accounts[key] = &account{user: u, password: p.Password}
	if !b.opts.IssueTokenOnRegister {
		return u, "", nil
	}
	return u, b.issueLocked(u.ID), nil
}

// Login returns a fresh token; earlier tokens of the user stay valid.
func (b *Backend) Login(email, password string) (domain.User, string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	a, ok := b.accounts[strings.ToLower(strings.TrimSpace(email))]
	if !ok || a.password != password {
		return domain.User{}, "", false
	}
	return a.user, b.issueLocked(a.user.ID), true
}

func (b *Backend) issueLocked(userID int64) string {
	tok := uuid.NewString()
	b.tokens[tok] = userID
	return tok
}

func (b *Backend) RevokeToken(tok string) {
	b.mu.Lock()
	delete(b.tokens, tok)
	b.mu.Unlock()
}

func (b *Backend) UserForToken(tok string) (domain.User, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id, ok := b.tokens[tok]
	if !ok {
		return domain.User{}, false
	}
	for _, a := range b.accounts {
		if a.user.ID == id {
			return a.user, true
		}
	}
	return domain.User{}, false
}

// Reconcile returns the place for ext.ProviderID, creating it on first sight.
// created reports whether a new id was assigned.
func (b *Backend) Reconcile(ext domain.ExternalPlace) (domain.Place, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if id, ok := b.byExt[ext.ProviderID]; ok {
		return b.places[id].Place, false
	}
	p := domain.Place{
		ID:                  b.nextPlaceID,
		ProviderID:          ext.ProviderID,
		Name:                ext.DisplayName,
		DisplayName:         ext.DisplayName,
		FormattedAddress:    ext.FormattedAddress,
		AddressLines:        ext.AddressLines,
		NationalPhoneNumber: ext.NationalPhoneNumber,
		Rating:              ext.Rating,
		PriceLevel:          ext.PriceLevel,
		Types:               ext.Types,
		Photos:              ext.Photos,
		WebsiteURI:          ext.WebsiteURI,
		GoogleMapsURI:       ext.GoogleMapsURI,
		Lat:                 ext.Lat,
		Lng:                 ext.Lng,
	}
	b.nextPlaceID++
	b.places[p.ID] = &domain.PlaceDetail{Place: p, Reviews: []domain.Review{}}
	b.byExt[p.ProviderID] = p.ID
	return p, true
}

func (b *Backend) Places() []domain.Place {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]domain.Place, 0, len(b.places))
	for _, d := range b.places {
		out = append(out, d.Place)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (b *Backend) Detail(id int64) (domain.PlaceDetail, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	d, ok := b.places[id]
	if !ok {
		return domain.PlaceDetail{}, false
	}
	out := *d
	out.Reviews = append([]domain.Review{}, d.Reviews...)
	return out, true
}

// AddReview stores a review newest-first and refreshes the place aggregates.
func (b *Backend) AddReview(placeID int64, u domain.User, d domain.ReviewDraft) (domain.Review, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	pd, ok := b.places[placeID]
	if !ok {
		return domain.Review{}, ErrPlaceMissing
	}
	r := domain.Review{
		ID:        b.nextReviewID,
		PlaceID:   placeID,
		Rating:    d.Rating,
		Title:     d.Title,
		Content:   d.Content,
		CreatedAt: time.Now().UTC(),
		User:      &u,
	}
	if d.VisitDate != "" {
		vd := d.VisitDate
		r.VisitDate = &vd
	}
	b.nextReviewID++
	pd.Reviews = append([]domain.Review{r}, pd.Reviews...)

	sum := decimal.Zero
	for _, rv := range pd.Reviews {
		sum = sum.Add(decimal.NewFromInt(int64(rv.Rating)))
	}
	pd.ReviewCount = len(pd.Reviews)
	pd.AverageRating = decimal.NewNullDecimal(sum.Div(decimal.NewFromInt(int64(len(pd.Reviews)))).Round(1))
	return r, nil
}

func (b *Backend) AddFavorite(userID, placeID int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.places[placeID]; !ok {
		return ErrPlaceMissing
	}
	found := false
	for _, a := range b.accounts {
		if a.user.ID == userID {
			found = true
			break
		}
	}
	if !found {
		return ErrUserMissing
	}
	for _, id := range b.favorites[userID] {
		if id == placeID {
			return nil
		}
	}
	b.favorites[userID] = append(b.favorites[userID], placeID)
	return nil
}

func (b *Backend) Favorites(userID int64) []domain.Place {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]domain.Place, 0, len(b.favorites[userID]))
	for _, id := range b.favorites[userID] {
		if d, ok := b.places[id]; ok {
			out = append(out, d.Place)
		}
	}
	return out
}
