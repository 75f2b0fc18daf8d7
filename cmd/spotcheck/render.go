package main

import (
	"fmt"
	"html"
	"io"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"spotcheck/internal/domain"
)

// text from the data service and the provider is user supplied; markup is
// stripped before it reaches the terminal
var strict = bluemonday.StrictPolicy()

func clean(s string) string {
	return strings.TrimSpace(html.UnescapeString(strict.Sanitize(s)))
}

func stars(n int) string {
	if n < 0 {
		n = 0
	}
	if n > 5 {
		n = 5
	}
	return strings.Repeat("*", n) + strings.Repeat(".", 5-n)
}

func typeLabels(types []string) string {
	labels := make([]string, 0, len(types))
	for _, t := range types {
		labels = append(labels, domain.TypeLabel(clean(t)))
	}
	return strings.Join(labels, ", ")
}

func renderPlaces(w io.Writer, ps []domain.Place) {
	if len(ps) == 0 {
		fmt.Fprintln(w, "No places")
		return
	}
	for _, p := range ps {
		line := fmt.Sprintf("%6d  %s", p.ID, clean(p.Title()))
		if sym := p.PriceSymbol(); sym != "" {
			line += "  " + sym
		}
		if p.AverageRating.Valid {
			line += fmt.Sprintf("  %s/5 (%d)", p.AverageRating.Decimal.StringFixed(1), p.ReviewCount)
		}
		fmt.Fprintln(w, line)
	}
}

func renderDetail(w io.Writer, d domain.PlaceDetail) {
	fmt.Fprintf(w, "%s (#%d)\n", clean(d.Title()), d.ID)
	if d.FormattedAddress != "" {
		fmt.Fprintln(w, clean(d.FormattedAddress))
	} else if lines := d.AddressLineList(); len(lines) > 0 {
		fmt.Fprintln(w, clean(strings.Join(lines, ", ")))
	}
	if t := typeLabels(d.TypeList()); t != "" {
		fmt.Fprintln(w, t)
	}
	if sym := d.PriceSymbol(); sym != "" {
		fmt.Fprintln(w, "Price:", sym)
	}
	if d.NationalPhoneNumber != "" {
		fmt.Fprintln(w, "Phone:", clean(d.NationalPhoneNumber))
	}
	if d.WebsiteURI != "" {
		fmt.Fprintln(w, "Web:", clean(d.WebsiteURI))
	}
	if ref := d.PhotoReference(); ref != "" {
		fmt.Fprintln(w, "Photo:", clean(ref))
	}
	if d.Description != "" {
		fmt.Fprintln(w, clean(d.Description))
	}

	fmt.Fprintf(w, "\nReviews (%d)\n", len(d.Reviews))
	for _, r := range d.Reviews {
		by := "anonymous"
		if r.User != nil {
			by = clean(r.User.DisplayName())
		}
		fmt.Fprintf(w, "  %s  %s by %s", stars(r.Rating), clean(r.Title), by)
		if r.VisitDate != nil && *r.VisitDate != "" {
			fmt.Fprintf(w, ", visited %s", clean(*r.VisitDate))
		}
		fmt.Fprintln(w)
		if c := clean(r.Content); c != "" {
			fmt.Fprintf(w, "    %s\n", c)
		}
	}
}

func renderExternal(w io.Writer, exts []domain.ExternalPlace) {
	if len(exts) == 0 {
		fmt.Fprintln(w, "No results")
		return
	}
	for _, e := range exts {
		line := fmt.Sprintf("%s  %s", clean(e.ProviderID), clean(e.DisplayName))
		if t := typeLabels(e.TypeList()); t != "" {
			line += "  [" + t + "]"
		}
		fmt.Fprintln(w, line)
	}
}

func renderRefs(w io.Writer, exts []domain.ExternalPlace, refs []domain.PlaceRef) {
	for i, ref := range refs {
		name := clean(exts[i].DisplayName)
		if ref.Persisted() {
			fmt.Fprintf(w, "%6d  %s\n", ref.ID, name)
			continue
		}
		fmt.Fprintf(w, "%6s  %s  (not saved: %v)\n", "-", name, ref.Cause)
	}
}
