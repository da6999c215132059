// Package types defines the records shared between listing, archiving and
// the CLI.
package types

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// DateLayout is the layout of --after / --before values.
const DateLayout = "2006-01-02"

// Post is one publication item as returned by the Substack posts API.
type Post struct {
	ID           int64  `json:"id"`
	Title        string `json:"title"`
	Slug         string `json:"slug" validate:"required"`
	PostDate     string `json:"post_date"`
	CanonicalURL string `json:"canonical_url" validate:"required,url"`
	Description  string `json:"description,omitempty"`
	BodyHTML     string `json:"body_html,omitempty"`
	CoverImage   string `json:"cover_image,omitempty"`
}

// Validate validates the Post using the validator.
func (p *Post) Validate() error {
	validate := validator.New()
	return validate.Struct(p)
}

// Date returns the calendar date part of PostDate, or "" when unknown.
func (p *Post) Date() string {
	if len(p.PostDate) < len(DateLayout) {
		return ""
	}
	return p.PostDate[:len(DateLayout)]
}

// DisplayTitle falls back to the slug for untitled posts.
func (p *Post) DisplayTitle() string {
	if strings.TrimSpace(p.Title) == "" {
		return p.Slug
	}
	return p.Title
}

// Filter restricts which posts are listed. Dates are inclusive and compared
// on the YYYY-MM-DD part of the post date.
type Filter struct {
	After  string
	Before string
	// Limit caps the number of posts; zero means no cap.
	Limit int
}

// Matches reports whether p falls inside the date window.
func (f Filter) Matches(p *Post) bool {
	date := p.Date()
	if f.After != "" && (date == "" || date < f.After) {
		return false
	}
	if f.Before != "" && (date == "" || date > f.Before) {
		return false
	}
	return true
}

// String renders the filter for log output.
func (f Filter) String() string {
	return fmt.Sprintf("after=%q before=%q limit=%d", f.After, f.Before, f.Limit)
}
