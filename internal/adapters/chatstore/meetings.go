package chatstore

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/brianly1003/aidesk/internal/domain"
)

// MeetingEntry is one record in the store's meeting index.
type MeetingEntry struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Date       string `json:"date"`
	MatchCount int    `json:"match_count"`
}

// MeetingIndex reads <root>/meetings/index.json, a map of issue key to
// meeting entries. A missing index is an empty one; any other read failure
// is an error.
func (s *Store) MeetingIndex(ctx context.Context) (map[string][]MeetingEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, &domain.SourceError{Op: "meetings", Err: err}
	}

	path := filepath.Join(s.root, "meetings", "index.json")
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return map[string][]MeetingEntry{}, nil
	}
	if err != nil {
		return nil, &domain.SourceError{Op: "meetings", Err: err}
	}

	var index map[string][]MeetingEntry
	if err := json.Unmarshal(data, &index); err != nil {
		return nil, &domain.SourceError{Op: "meetings", Err: err}
	}
	return index, nil
}
