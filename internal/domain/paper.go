package domain

import (
	"strings"
	"time"
)

// Paper represents a research paper record.
// Papers are immutable once fetched except for full-text backfill.
type Paper struct {
	ID              int64
	ExternalID      string
	Title           string
	Authors         []string
	Abstract        string
	FullText        string
	PublicationDate time.Time
	Source          SourceType
	SourceURL       string
	Category        string
	Keywords        []string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// HasFullText reports whether the paper carries non-blank full text.
func (p *Paper) HasFullText() bool {
	return strings.TrimSpace(p.FullText) != ""
}

// AuthorList returns the authors joined for display.
func (p *Paper) AuthorList() string {
	return strings.Join(p.Authors, ", ")
}

// PaperFilter narrows paper listings.
type PaperFilter struct {
	Category string
	Search   string
	From     *time.Time
	Until    *time.Time
	Oldest   bool
	Limit    int
	Offset   int
}

// DateRange bounds a paper search by submission date. Either end may be nil.
type DateRange struct {
	Start *time.Time
	End   *time.Time
}

// IsZero reports whether neither bound is set.
func (r *DateRange) IsZero() bool {
	return r == nil || (r.Start == nil && r.End == nil)
}
