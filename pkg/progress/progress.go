// Package progress records how far each platform of a background search has
// got, keyed by session id. Every platform entry of a session has a single
// writer (that platform's search) and any number of readers (pollers).
package progress

import (
	"context"
	"time"
)

type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
)

// DefaultMaxAge bounds how long a session that is never released is kept.
const DefaultMaxAge = 24 * time.Hour

type Entry struct {
	Platform      string    `json:"platform"`
	Status        Status    `json:"status"`
	CurrentPage   int       `json:"current_page"`
	TotalPages    int       `json:"total_pages"`
	ProductsFound int       `json:"products_found"`
	Message       string    `json:"message,omitempty"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (e Entry) Finished() bool {
	return e.Status == StatusCompleted || e.Status == StatusError
}

// Session maps platform keys to their latest entry.
type Session map[string]Entry

// Finished reports whether every platform of the session has stopped.
func (s Session) Finished() bool {
	if len(s) == 0 {
		return false
	}
	for _, e := range s {
		if !e.Finished() {
			return false
		}
	}
	return true
}

type Ledger interface {
	// Put replaces the entry for e.Platform within the session.
	Put(ctx context.Context, sessionID string, e Entry) error
	// Get returns models.ErrSessionNotFound for unknown or expired sessions.
	Get(ctx context.Context, sessionID string) (Session, error)
	// Release schedules the session for removal after grace.
	Release(ctx context.Context, sessionID string, grace time.Duration) error
}
