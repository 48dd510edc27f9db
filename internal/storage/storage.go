package storage

import (
	"context"
	"strings"
	"time"
)

// Store persists free-form notes about a project across sessions
type Store interface {
	// AddNote stores a note and fills in its ID and CreatedAt
	AddNote(ctx context.Context, note *Note) error

	// SearchNotes returns the project's notes whose content or tags contain
	// query, ignoring case, newest first. limit <= 0 means no limit.
	SearchNotes(ctx context.Context, projectRoot, query string, limit int) ([]*Note, error)

	// ListNotes returns the project's notes, newest first
	ListNotes(ctx context.Context, projectRoot string, limit int) ([]*Note, error)

	// CountNotes returns how many notes the project has
	CountNotes(ctx context.Context, projectRoot string) (int, error)

	// Close releases the database
	Close() error
}

// Note is an observation recorded about a project
type Note struct {
	ID          int64     `json:"id"`
	ProjectRoot string    `json:"project_root"`
	Content     string    `json:"content"`
	Tags        []string  `json:"tags"`
	CreatedAt   time.Time `json:"created_at"`
}

// normalizeTags trims tags, drops empty ones and removes duplicates while
// keeping the first occurrence order.
func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}
