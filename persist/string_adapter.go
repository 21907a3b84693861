package persist

import (
	"context"
	"strings"
)

// StringAdapter is a memory adapter seeded from CSV policy text. It exists
// for hosts that ship their policy as an embedded literal; Text renders the
// current storage back to that form.
type StringAdapter struct {
	*MemoryAdapter
}

// NewStringAdapter parses the CSV policy text into adapter storage.
func NewStringAdapter(text string) *StringAdapter {
	return &StringAdapter{MemoryAdapter: NewMemoryAdapterFromText(text)}
}

// Text renders the stored rules as CSV policy text, one rule per line, in
// storage order.
func (a *StringAdapter) Text() string {
	a.mu.Lock()
	defer a.mu.Unlock()

	var b strings.Builder
	for _, r := range a.rules {
		b.WriteString(r.ptype)
		for _, f := range r.rule {
			b.WriteString(", ")
			b.WriteString(f)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// ClearText empties the stored policy.
func (a *StringAdapter) ClearText(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rules = nil
	a.index = map[string]int{}
	a.filtered = false
	return nil
}
