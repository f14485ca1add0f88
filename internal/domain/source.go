package domain

import "time"

// Source lifecycle states. The ingestion pipeline moves a source from
// pending through processing to active; the core only flips error back to
// active on a successful reactivation.
const (
	SourceStatusPending    = "pending"
	SourceStatusProcessing = "processing"
	SourceStatusActive     = "active"
	SourceStatusError      = "error"
)

// Source is one uploaded data set. The core never deletes sources; it
// reads them and, at most, reactivates their derived view.
type Source struct {
	ID          string
	OwnerID     string
	DisplayName string
	Status      string
	ViewName    string // recorded view mapping, may be empty for legacy rows
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// IsQueryable reports whether discovery should consider the source.
func (s *Source) IsQueryable() bool {
	return s.Status == SourceStatusActive || s.Status == SourceStatusError
}
