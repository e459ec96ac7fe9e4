package bot

import "strings"

// Moderator checks prompts against a keyword blocklist. The list is empty
// by default; operators populate it per deployment via config.
type Moderator struct {
	keywords []string
}

// NewModerator creates a Moderator from config keywords.
func NewModerator(keywords []string) *Moderator {
	lowered := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" {
			lowered = append(lowered, kw)
		}
	}
	return &Moderator{keywords: lowered}
}

// Blocked reports whether the text contains any banned keyword.
func (m *Moderator) Blocked(text string) bool {
	if len(m.keywords) == 0 {
		return false
	}
	lowered := strings.ToLower(text)
	for _, kw := range m.keywords {
		if strings.Contains(lowered, kw) {
			return true
		}
	}
	return false
}
