// Package persist defines the pluggable policy-storage and change-watching
// contracts the enforcer drives, plus the built-in file, string, memory, and
// null adapters.
package persist

import (
	"context"
	"errors"
	"strings"

	"github.com/Sentinel-Gate/gatekit/event"
	"github.com/Sentinel-Gate/gatekit/model"
	"github.com/Sentinel-Gate/gatekit/util"
)

// ErrNotImplemented is returned by adapters for operations their storage
// cannot express (for example per-rule mutations on a rewrite-only file).
// A caller seeing it knows the change did not reach storage.
var ErrNotImplemented = errors.New("persist: operation not implemented by this adapter")

// Adapter is the durable policy store contract. Every operation is
// all-or-nothing from the caller's view: a false or an error means storage
// was not modified.
type Adapter interface {
	// LoadPolicy fills the model's p- and g-sections from storage.
	LoadPolicy(ctx context.Context, m *model.Model) error
	// SavePolicy replaces storage with the model's current rules.
	SavePolicy(ctx context.Context, m *model.Model) error
	// AddPolicy stores one rule; false means it already existed.
	AddPolicy(ctx context.Context, sec, ptype string, rule []string) (bool, error)
	// AddPolicies stores a batch; false means at least one existed and
	// none were stored.
	AddPolicies(ctx context.Context, sec, ptype string, rules [][]string) (bool, error)
	// RemovePolicy deletes one rule; false means it was absent.
	RemovePolicy(ctx context.Context, sec, ptype string, rule []string) (bool, error)
	// RemovePolicies deletes a batch; false means at least one was
	// absent and none were deleted.
	RemovePolicies(ctx context.Context, sec, ptype string, rules [][]string) (bool, error)
	// RemoveFilteredPolicy deletes every rule whose fields starting at
	// fieldIndex equal the non-empty fieldValues.
	RemoveFilteredPolicy(ctx context.Context, sec, ptype string, fieldIndex int, fieldValues []string) (bool, error)
}

// Filter selects the rules a filtered load retains: per-field equality
// constraints for the p- and g-sections, empty entries matching anything.
type Filter struct {
	P []string
	G []string
}

// IsEmpty reports whether the filter constrains nothing.
func (f Filter) IsEmpty() bool {
	for _, v := range append(append([]string{}, f.P...), f.G...) {
		if v != "" {
			return false
		}
	}
	return true
}

// MatchesRule applies the section's constraints to one rule.
func (f Filter) MatchesRule(sec string, rule []string) bool {
	var fields []string
	switch sec {
	case "p":
		fields = f.P
	case "g":
		fields = f.G
	}
	for i, fv := range fields {
		if fv == "" {
			continue
		}
		if i >= len(rule) || rule[i] != fv {
			return false
		}
	}
	return true
}

// FilteredAdapter is the optional capability of loading a rule subset.
type FilteredAdapter interface {
	Adapter
	// LoadFilteredPolicy fills the model with the rules the filter
	// retains and marks the adapter filtered.
	LoadFilteredPolicy(ctx context.Context, m *model.Model, f Filter) error
	// IsFiltered reports whether the last load was partial.
	IsFiltered() bool
}

// Watcher propagates policy changes between enforcer instances.
type Watcher interface {
	// SetUpdateCallback installs the function invoked with a change
	// summary whenever another instance mutates the shared policy.
	SetUpdateCallback(fn func(summary string)) error
	// Update announces a local change to the other instances.
	Update(ctx context.Context, d event.Data) error
	// Close releases the watcher's resources.
	Close() error
}

// LoadPolicyLine parses one CSV policy line into the model. The ptype's
// first character selects the section. Blank lines and comments are skipped;
// duplicate lines are absorbed by the model's deduplication.
func LoadPolicyLine(line string, m *model.Model) {
	tokens := util.ParseCSVLine(line)
	if len(tokens) < 2 {
		return
	}
	ptype := tokens[0]
	sec := ptype[:1]
	m.AddPolicy(sec, ptype, tokens[1:])
}

// renderPolicy writes the model's p- and g-section rules in save format:
// one "ptype, field, field" line per rule, section order p then g, ptype
// load order, rule insertion order.
func renderPolicy(m *model.Model) string {
	var b strings.Builder
	for _, sec := range []string{"p", "g"} {
		for _, ptype := range m.PTypes(sec) {
			for _, rule := range m.GetPolicy(sec, ptype) {
				b.WriteString(ptype)
				b.WriteString(", ")
				b.WriteString(strings.Join(rule, ", "))
				b.WriteString("\n")
			}
		}
	}
	return b.String()
}
