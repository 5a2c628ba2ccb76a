package methods

import (
	"context"
	"encoding/json"
	"sort"
	"strings"

	"github.com/brianly1003/aidesk/internal/registry"
	"github.com/brianly1003/aidesk/internal/rpc/message"
)

const defaultSearchLimit = 20

// SessionSearchParams are the parameters for session/search.
type SessionSearchParams struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`
}

// SearchMatch is one ranked hit.
type SearchMatch struct {
	Session registry.SessionState `json:"session"`
	Score   int                   `json:"score"`
}

// SessionSearchResult is the ranked result set.
type SessionSearchResult struct {
	Matches []SearchMatch `json:"matches"`
	Count   int           `json:"count"`
}

// SessionSearch does a case-insensitive substring search over session
// names, personas, projects and issue keys. Name hits rank highest.
func (s *CoreService) SessionSearch(_ context.Context, params json.RawMessage) (interface{}, *message.Error) {
	var p SessionSearchParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, message.ErrInvalidParams(err.Error())
	}
	query := strings.ToLower(strings.TrimSpace(p.Query))
	if query == "" {
		return nil, message.ErrInvalidParams("query is required")
	}
	limit := p.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	var matches []SearchMatch
	for _, w := range s.reg.Workspaces() {
		for _, sess := range w.Sessions() {
			st := sess.State()
			if score := scoreSession(st, query); score > 0 {
				matches = append(matches, SearchMatch{Session: st, Score: score})
			}
		}
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Session.LastActivity.After(matches[j].Session.LastActivity)
	})
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return SessionSearchResult{Matches: matches, Count: len(matches)}, nil
}

func scoreSession(st registry.SessionState, query string) int {
	score := 0
	if strings.Contains(strings.ToLower(st.Name), query) {
		score += 4
	}
	if strings.Contains(strings.ToLower(st.Persona), query) {
		score += 3
	}
	for _, key := range st.IssueKeys {
		if strings.Contains(strings.ToLower(key), query) {
			score += 3
			break
		}
	}
	if strings.Contains(strings.ToLower(st.Project), query) {
		score += 2
	}
	if strings.Contains(strings.ToLower(st.Branch), query) {
		score++
	}
	return score
}
