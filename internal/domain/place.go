package domain

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

type Coords struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// ExternalPlace is a search-provider record. It is only valid for the result
// set it came from and must be reconciled before anything references it.
type ExternalPlace struct {
	ProviderID          string              `json:"provider_id"`
	DisplayName         string              `json:"display_name"`
	FormattedAddress    string              `json:"formatted_address,omitempty"`
	AddressLines        Blob                `json:"address_lines,omitempty"`
	NationalPhoneNumber string              `json:"national_phone_number,omitempty"`
	Rating              decimal.NullDecimal `json:"rating"`
	PriceLevel          string              `json:"price_level,omitempty"`
	Types               Blob                `json:"types,omitempty"`
	Photos              Blob                `json:"photos,omitempty"`
	WebsiteURI          string              `json:"website_uri,omitempty"`
	GoogleMapsURI       string              `json:"google_maps_uri,omitempty"`
	Lat                 *float64            `json:"lat,omitempty"`
	Lng                 *float64            `json:"lng,omitempty"`
}

// Place is the durable entity owned by the data service. ID is stable for a
// given ProviderID.
type Place struct {
	ID                  int64               `json:"id"`
	ProviderID          string              `json:"provider_id,omitempty"`
	Name                string              `json:"name,omitempty"`
	DisplayName         string              `json:"display_name,omitempty"`
	Description         string              `json:"description,omitempty"`
	FormattedAddress    string              `json:"formatted_address,omitempty"`
	AddressLines        Blob                `json:"address_lines,omitempty"`
	NationalPhoneNumber string              `json:"national_phone_number,omitempty"`
	Rating              decimal.NullDecimal `json:"rating"`
	PriceLevel          string              `json:"price_level,omitempty"`
	Types               Blob                `json:"types,omitempty"`
	Photos              Blob                `json:"photos,omitempty"`
	WebsiteURI          string              `json:"website_uri,omitempty"`
	GoogleMapsURI       string              `json:"google_maps_uri,omitempty"`
	Lat                 *float64            `json:"lat,omitempty"`
	Lng                 *float64            `json:"lng,omitempty"`
	ReviewCount         int                 `json:"review_count"`
	AverageRating       decimal.NullDecimal `json:"average_rating"`
}

// PlaceDetail is the place-plus-reviews bundle returned by GET /places/{id}.
type PlaceDetail struct {
	Place
	Reviews []Review `json:"reviews"`
}

type Photo struct {
	Name     string `json:"name"`
	WidthPx  int    `json:"widthPx,omitempty"`
	HeightPx int    `json:"heightPx,omitempty"`
}

// Title prefers the provider display name over the legacy name column.
func (p Place) Title() string {
	if p.DisplayName != "" {
		return p.DisplayName
	}
	return p.Name
}

func (p Place) PhotoList() []Photo       { return decodeField[Photo]("photos", p.Photos) }
func (p Place) TypeList() []string       { return decodeField[string]("types", p.Types) }
func (p Place) AddressLineList() []string { return decodeField[string]("address_lines", p.AddressLines) }

// PhotoReference is the first photo's provider reference, or "".
func (p Place) PhotoReference() string {
	if ph := p.PhotoList(); len(ph) > 0 {
		return ph[0].Name
	}
	return ""
}

func (p Place) PriceSymbol() string { return PriceSymbol(p.PriceLevel) }

func (e ExternalPlace) PhotoList() []Photo { return decodeField[Photo]("photos", e.Photos) }
func (e ExternalPlace) TypeList() []string { return decodeField[string]("types", e.Types) }

// PriceSymbol maps provider price levels to dollar signs. Unknown levels
// render as a single "$"; an empty level renders as "".
func PriceSymbol(level string) string {
	switch level {
	case "":
		return ""
	case "PRICE_LEVEL_MODERATE":
		return "$$"
	case "PRICE_LEVEL_EXPENSIVE":
		return "$$$"
	case "PRICE_LEVEL_VERY_EXPENSIVE":
		return "$$$$"
	default:
		return "$"
	}
}

// TypeLabel turns "coffee_shop" into "coffee shop".
func TypeLabel(t string) string { return strings.Join(strings.Split(t, "_"), " ") }

type RefKind int

const (
	RefPersisted RefKind = iota + 1
	RefEphemeral
)

func (k RefKind) String() string {
	switch k {
	case RefPersisted:
		return "persisted"
	case RefEphemeral:
		return "ephemeral"
	}
	return "unknown"
}

// PlaceRef is what a place-scoped flow navigates with: either the stable
// persisted id, or the provider id when reconciliation failed. The ephemeral
// form is a degraded path; the data service may not resolve it.
type PlaceRef struct {
	Kind       RefKind
	ID         int64
	ExternalID string
	Place      *Place // set for persisted refs
	Cause      error  // set for ephemeral refs
}

func PersistedRef(p Place) PlaceRef {
	return PlaceRef{Kind: RefPersisted, ID: p.ID, ExternalID: p.ProviderID, Place: &p}
}

func EphemeralRef(externalID string, cause error) PlaceRef {
	return PlaceRef{Kind: RefEphemeral, ExternalID: externalID, Cause: cause}
}

func (r PlaceRef) Persisted() bool { return r.Kind == RefPersisted }

// PathID is the identifier used in /places/{id} paths.
func (r PlaceRef) PathID() string {
	if r.Kind == RefPersisted {
		return strconv.FormatInt(r.ID, 10)
	}
	return r.ExternalID
}
