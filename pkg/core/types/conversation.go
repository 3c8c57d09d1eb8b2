package types

import "time"

// ConversationEntry is one turn of the voice Q&A dialogue.
type ConversationEntry struct {
	Role      string    `json:"role"` // "user" or "assistant"
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// DefaultConversationLimit is how many entries a ConversationLog retains.
const DefaultConversationLimit = 10

// ConversationLog is a bounded ring of the most recent Q&A turns, sent as
// context on voice questions. The zero value is usable and retains
// DefaultConversationLimit entries.
type ConversationLog struct {
	limit   int
	entries []ConversationEntry
}

// NewConversationLog creates a log retaining at most limit entries.
func NewConversationLog(limit int) ConversationLog {
	if limit <= 0 {
		limit = DefaultConversationLimit
	}
	return ConversationLog{limit: limit}
}

// Append adds an entry, evicting the oldest if the log is full.
func (l *ConversationLog) Append(role, content string, at time.Time) {
	if l.limit == 0 {
		l.limit = DefaultConversationLimit
	}
	l.entries = append(l.entries, ConversationEntry{Role: role, Content: content, Timestamp: at})
	if len(l.entries) > l.limit {
		l.entries = l.entries[len(l.entries)-l.limit:]
	}
}

// Entries returns a copy of the retained entries, oldest first.
func (l *ConversationLog) Entries() []ConversationEntry {
	out := make([]ConversationEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of retained entries.
func (l *ConversationLog) Len() int {
	return len(l.entries)
}
