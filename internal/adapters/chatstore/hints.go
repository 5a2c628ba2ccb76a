package chatstore

import "regexp"

// Hints are the signals extracted from a session's name and content.
type Hints struct {
	Persona   string
	Project   string
	IssueKeys []string
}

var (
	personaCallPattern = regexp.MustCompile(`set_persona\(\s*"([^"]+)"\s*\)`)
	projectCallPattern = regexp.MustCompile(`set_project\(\s*"([^"]+)"\s*\)`)
	issueKeyPattern    = regexp.MustCompile(`\b[A-Z][A-Z0-9]+-\d+\b`)
)

// ExtractHints scans a session's display name and message contents for
// persona/project selection calls and issue keys. The most recent selection
// call wins; issue keys are the union of name and content matches,
// deduplicated in first-seen order.
func ExtractHints(name string, messages []Message) Hints {
	var h Hints

	seen := make(map[string]struct{})
	addKeys := func(text string) {
		for _, key := range issueKeyPattern.FindAllString(text, -1) {
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			h.IssueKeys = append(h.IssueKeys, key)
		}
	}

	addKeys(name)
	for _, msg := range messages {
		if m := personaCallPattern.FindAllStringSubmatch(msg.Content, -1); len(m) > 0 {
			h.Persona = m[len(m)-1][1]
		}
		if m := projectCallPattern.FindAllStringSubmatch(msg.Content, -1); len(m) > 0 {
			h.Project = m[len(m)-1][1]
		}
		addKeys(msg.Content)
	}

	return h
}
