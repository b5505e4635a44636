package engine

import "sync"

// DefaultContextWindow is the number of recent step summaries retained
// for prompt construction.
const DefaultContextWindow = 16

// ContextLog is a bounded append-only window of step summaries shared
// across the whole run. The oldest entry is evicted once the window is
// full; there is no lookup, only the ordered tail.
type ContextLog struct {
	mu      sync.Mutex
	entries []string
	limit   int
}

// NewContextLog creates a log bounded to limit entries.
// A non-positive limit falls back to DefaultContextWindow.
func NewContextLog(limit int) *ContextLog {
	if limit <= 0 {
		limit = DefaultContextWindow
	}
	return &ContextLog{limit: limit}
}

// Append records a summary, evicting the oldest entry when full.
func (l *ContextLog) Append(entry string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = append(l.entries, entry)
	if len(l.entries) > l.limit {
		l.entries = l.entries[len(l.entries)-l.limit:]
	}
}

// Entries returns the retained summaries, oldest first.
func (l *ContextLog) Entries() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.entries...)
}

// Reset discards all retained entries.
func (l *ContextLog) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = nil
}
