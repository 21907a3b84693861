package persist

import (
	"context"
	"strings"
	"sync"

	"github.com/Sentinel-Gate/gatekit/model"
	"github.com/Sentinel-Gate/gatekit/util"
)

type storedRule struct {
	sec   string
	ptype string
	rule  []string
}

func (r storedRule) key() string {
	return r.sec + "\x1e" + r.ptype + "\x1e" + strings.Join(r.rule, "\x1e")
}

// MemoryAdapter keeps the policy in an ordered, deduplicated in-memory set.
// It implements the full adapter contract including filtered loads, which
// makes it the default storage for tests and for enforcers that do not need
// durability.
type MemoryAdapter struct {
	mu       sync.Mutex
	rules    []storedRule
	index    map[string]int
	filtered bool
}

// NewMemoryAdapter returns an empty in-memory adapter.
func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{index: make(map[string]int)}
}

// NewMemoryAdapterFromText seeds the adapter from CSV policy text, one rule
// per line.
func NewMemoryAdapterFromText(text string) *MemoryAdapter {
	a := NewMemoryAdapter()
	for _, line := range strings.Split(text, "\n") {
		tokens := util.ParseCSVLine(line)
		if len(tokens) < 2 {
			continue
		}
		a.insert(storedRule{sec: tokens[0][:1], ptype: tokens[0], rule: tokens[1:]})
	}
	return a
}

// insert appends if absent. Caller holds the lock (or owns the adapter).
func (a *MemoryAdapter) insert(r storedRule) bool {
	k := r.key()
	if _, ok := a.index[k]; ok {
		return false
	}
	a.index[k] = len(a.rules)
	a.rules = append(a.rules, r)
	return true
}

func (a *MemoryAdapter) remove(r storedRule) bool {
	k := r.key()
	i, ok := a.index[k]
	if !ok {
		return false
	}
	a.rules = append(a.rules[:i], a.rules[i+1:]...)
	delete(a.index, k)
	for j := i; j < len(a.rules); j++ {
		a.index[a.rules[j].key()] = j
	}
	return true
}

// LoadPolicy copies every stored rule into the model.
func (a *MemoryAdapter) LoadPolicy(ctx context.Context, m *model.Model) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.filtered = false
	for _, r := range a.rules {
		m.AddPolicy(r.sec, r.ptype, r.rule)
	}
	return nil
}

// LoadFilteredPolicy copies the rules the filter retains into the model.
func (a *MemoryAdapter) LoadFilteredPolicy(ctx context.Context, m *model.Model, f Filter) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.filtered = false
	for _, r := range a.rules {
		if !f.MatchesRule(r.sec, r.rule) {
			a.filtered = true
			continue
		}
		m.AddPolicy(r.sec, r.ptype, r.rule)
	}
	return nil
}

// IsFiltered reports whether the last load dropped any rules.
func (a *MemoryAdapter) IsFiltered() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.filtered
}

// SavePolicy replaces the stored rules with the model's current ones.
func (a *MemoryAdapter) SavePolicy(ctx context.Context, m *model.Model) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.rules = nil
	a.index = make(map[string]int)
	for _, sec := range []string{"p", "g"} {
		for _, ptype := range m.PTypes(sec) {
			for _, rule := range m.GetPolicy(sec, ptype) {
				a.insert(storedRule{sec: sec, ptype: ptype, rule: rule})
			}
		}
	}
	return nil
}

// AddPolicy stores one rule; false means it already existed.
func (a *MemoryAdapter) AddPolicy(ctx context.Context, sec, ptype string, rule []string) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.insert(storedRule{sec: sec, ptype: ptype, rule: rule}), nil
}

// AddPolicies stores the batch, or nothing when any rule already exists.
func (a *MemoryAdapter) AddPolicies(ctx context.Context, sec, ptype string, rules [][]string) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, rule := range rules {
		if _, ok := a.index[(storedRule{sec: sec, ptype: ptype, rule: rule}).key()]; ok {
			return false, nil
		}
	}
	for _, rule := range rules {
		a.insert(storedRule{sec: sec, ptype: ptype, rule: rule})
	}
	return true, nil
}

// RemovePolicy deletes one rule; false means it was absent.
func (a *MemoryAdapter) RemovePolicy(ctx context.Context, sec, ptype string, rule []string) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.remove(storedRule{sec: sec, ptype: ptype, rule: rule}), nil
}

// RemovePolicies deletes the batch, or nothing when any rule is absent.
func (a *MemoryAdapter) RemovePolicies(ctx context.Context, sec, ptype string, rules [][]string) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, rule := range rules {
		if _, ok := a.index[(storedRule{sec: sec, ptype: ptype, rule: rule}).key()]; !ok {
			return false, nil
		}
	}
	for _, rule := range rules {
		a.remove(storedRule{sec: sec, ptype: ptype, rule: rule})
	}
	return true, nil
}

// RemoveFilteredPolicy deletes every matching rule under (sec, ptype).
func (a *MemoryAdapter) RemoveFilteredPolicy(ctx context.Context, sec, ptype string, fieldIndex int, fieldValues []string) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	allEmpty := true
	for _, fv := range fieldValues {
		if fv != "" {
			allEmpty = false
			break
		}
	}
	if allEmpty {
		return false, nil
	}

	var kept []storedRule
	removedAny := false
	for _, r := range a.rules {
		if r.sec == sec && r.ptype == ptype && fieldsMatch(r.rule, fieldIndex, fieldValues) {
			removedAny = true
			continue
		}
		kept = append(kept, r)
	}
	if !removedAny {
		return false, nil
	}

	a.rules = kept
	a.index = make(map[string]int, len(kept))
	for i, r := range kept {
		a.index[r.key()] = i
	}
	return true, nil
}

func fieldsMatch(rule []string, fieldIndex int, fieldValues []string) bool {
	for i, fv := range fieldValues {
		if fv == "" {
			continue
		}
		if fieldIndex+i >= len(rule) || rule[fieldIndex+i] != fv {
			return false
		}
	}
	return true
}
