package provider

import (
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"spotcheck/internal/domain"
)

/********** alias registry **********/

var placeAliases = map[string][]string{
	"id":      {"id", "place_id", "placeId", "provider_id"},
	"name":    {"displayName.text", "display_name", "displayName", "name"},
	"address": {"formattedAddress", "formatted_address", "shortFormattedAddress", "vicinity"},
	"phone":   {"nationalPhoneNumber", "national_phone_number", "formatted_phone_number"},
	"price":   {"priceLevel", "price_level"},
	"website": {"websiteUri", "website_uri", "website"},
	"maps":    {"googleMapsUri", "google_maps_uri", "url"},
}

/********** tiny helpers **********/

// lookupAny: safe nested lookup with dot paths on maps.
func lookupAny(m map[string]any, path string) any {
	cur := any(m)
	for _, part := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		v, ok := obj[part]
		if !ok {
			return nil
		}
		cur = v
	}
	return cur
}

func lookupStr(m map[string]any, path string) string {
	if s, ok := lookupAny(m, path).(string); ok {
		return s
	}
	return ""
}

func firstAlias(m map[string]any, key string) string {
	for _, p := range placeAliases[key] {
		if s := strings.TrimSpace(lookupStr(m, p)); s != "" {
			return s
		}
	}
	return ""
}

// getFloatFlexible: number from several paths (float64/int/string like "4,5").
func getFloatFlexible(m map[string]any, paths ...string) *float64 {
	for _, k := range paths {
		switch v := lookupAny(m, k).(type) {
		case float64:
			f := v
			return &f
		case int:
			f := float64(v)
			return &f
		case string:
			s := strings.TrimSpace(strings.ReplaceAll(v, ",", "."))
			if s == "" {
				continue
			}
			if f, err := strconv.ParseFloat(s, 64); err == nil {
				return &f
			}
		}
	}
	return nil
}

// firstSliceStrings: accept []any of strings at the first path that has any.
func firstSliceStrings(m map[string]any, paths ...string) []string {
	for _, k := range paths {
		raw, ok := lookupAny(m, k).([]any)
		if !ok {
			continue
		}
		out := make([]string, 0, len(raw))
		for _, it := range raw {
			if s, ok := it.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return nil
}

// photosOf accepts either photo objects ({name|photo_reference, widthPx,
// heightPx}) or bare reference strings.
func photosOf(m map[string]any) []domain.Photo {
	raw, ok := lookupAny(m, "photos").([]any)
	if !ok {
		return nil
	}
	out := make([]domain.Photo, 0, len(raw))
	for _, it := range raw {
		switch t := it.(type) {
		case string:
			if t != "" {
				out = append(out, domain.Photo{Name: t})
			}
		case map[string]any:
			name := lookupStr(t, "name")
			if name == "" {
				name = lookupStr(t, "photo_reference")
			}
			if name == "" {
				continue
			}
			ph := domain.Photo{Name: name}
			if w := getFloatFlexible(t, "widthPx", "width"); w != nil {
				ph.WidthPx = int(*w)
			}
			if h := getFloatFlexible(t, "heightPx", "height"); h != nil {
				ph.HeightPx = int(*h)
			}
			out = append(out, ph)
		}
	}
	return out
}

/********** place mapper **********/

func mapPlace(p map[string]any) domain.ExternalPlace {
	ep := domain.ExternalPlace{
		ProviderID:          firstAlias(p, "id"),
		DisplayName:         firstAlias(p, "name"),
		FormattedAddress:    firstAlias(p, "address"),
		NationalPhoneNumber: firstAlias(p, "phone"),
		PriceLevel:          firstAlias(p, "price"),
		WebsiteURI:          firstAlias(p, "website"),
		GoogleMapsURI:       firstAlias(p, "maps"),
		Lat:                 getFloatFlexible(p, "location.latitude", "geometry.location.lat", "lat"),
		Lng:                 getFloatFlexible(p, "location.longitude", "geometry.location.lng", "lng"),
		Types:               domain.EncodeBlob(firstSliceStrings(p, "types")),
		Photos:              domain.EncodeBlob(photosOf(p)),
		AddressLines:        domain.EncodeBlob(firstSliceStrings(p, "postalAddress.addressLines", "addressLines", "address_lines")),
	}
	if r := getFloatFlexible(p, "rating"); r != nil {
		ep.Rating = decimal.NewNullDecimal(decimal.NewFromFloat(*r))
	}
	return ep
}

// mapPlaces drops records without a provider id: they cannot be reconciled.
func mapPlaces(in []map[string]any) []domain.ExternalPlace {
	out := make([]domain.ExternalPlace, 0, len(in))
	for _, p := range in {
		ep := mapPlace(p)
		if ep.ProviderID == "" {
			log.Warn().Str("name", ep.DisplayName).Msg("provider record without id skipped")
			continue
		}
		out = append(out, ep)
	}
	return out
}
