package domain

import (
	"strings"
	"time"
)

const DateLayout = "2006-01-02"

type Review struct {
	ID        int64     `json:"id"`
	PlaceID   int64     `json:"place_id,omitempty"`
	Rating    int       `json:"rating"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	VisitDate *string   `json:"visit_date,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	User      *User     `json:"user,omitempty"`
}

// ReviewDraft is the review form as entered. Title and content are checked
// after trimming; VisitDate is optional and uses DateLayout.
type ReviewDraft struct {
	Rating    int    `json:"rating" validate:"min=1,max=5"`
	Title     string `json:"title" validate:"required"`
	Content   string `json:"content" validate:"required"`
	VisitDate string `json:"visit_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
}

// NewReviewDraft returns the empty form: five stars, no text.
func NewReviewDraft() ReviewDraft { return ReviewDraft{Rating: 5} }

// Normalized trims free-text fields.
func (d ReviewDraft) Normalized() ReviewDraft {
	d.Title = strings.TrimSpace(d.Title)
	d.Content = strings.TrimSpace(d.Content)
	d.VisitDate = strings.TrimSpace(d.VisitDate)
	return d
}
