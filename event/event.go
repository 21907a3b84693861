// Package event defines the closed set of policy-change notifications the
// enforcer emits and its subscribers (decision cache, watcher forwarding,
// metrics) consume.
package event

import (
	"fmt"
	"strings"
)

// Op names the mutation that produced an event.
type Op uint8

const (
	// AddPolicy is a single-rule insertion.
	AddPolicy Op = iota
	// AddPolicies is a batch insertion.
	AddPolicies
	// RemovePolicy is a single-rule deletion.
	RemovePolicy
	// RemovePolicies is a batch deletion.
	RemovePolicies
	// RemoveFilteredPolicy is a field-filtered deletion; Rules carries
	// the rules that were removed.
	RemoveFilteredPolicy
	// SavePolicy is a full persist of the in-memory rule sets.
	SavePolicy
	// ClearCache asks subscribers to drop memoized decisions without a
	// rule payload.
	ClearCache
)

func (o Op) String() string {
	switch o {
	case AddPolicy:
		return "add_policy"
	case AddPolicies:
		return "add_policies"
	case RemovePolicy:
		return "remove_policy"
	case RemovePolicies:
		return "remove_policies"
	case RemoveFilteredPolicy:
		return "remove_filtered_policy"
	case SavePolicy:
		return "save_policy"
	case ClearCache:
		return "clear_cache"
	}
	return "unknown"
}

// Data describes one successful policy change.
type Data struct {
	Op    Op
	Sec   string
	PType string
	Rules [][]string
}

// String renders a compact single-line summary, the form handed to watcher
// update callbacks.
func (d Data) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s/%s", d.Op, d.Sec, d.PType)
	for _, rule := range d.Rules {
		b.WriteString(" [")
		b.WriteString(strings.Join(rule, ", "))
		b.WriteString("]")
	}
	return b.String()
}
