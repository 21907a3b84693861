package model

import (
	"fmt"
	"strings"

	"github.com/Sentinel-Gate/gatekit/rbac"
)

// Assertion is one loaded section entry: its declared form plus the policy
// rules stored under it. For r/p sections Tokens holds the qualified field
// names ("p_sub", "p_obj", ...); for e/m/g sections Value holds the rewritten
// expression.
type Assertion struct {
	Key    string
	Value  string
	Tokens []string

	// Policy is the ordered, deduplicated rule set for this section entry.
	Policy [][]string
	// RM is the role manager this assertion's links were built into.
	// Only set for g-section assertions.
	RM rbac.RoleManager

	index map[string]int // rule fingerprint -> position in Policy
}

func ruleKey(rule []string) string {
	return strings.Join(rule, string(rune(0x1e)))
}

// HasRule reports whether the rule is present.
func (a *Assertion) HasRule(rule []string) bool {
	_, ok := a.index[ruleKey(rule)]
	return ok
}

// AddRule appends the rule, refusing duplicates.
func (a *Assertion) AddRule(rule []string) bool {
	k := ruleKey(rule)
	if _, ok := a.index[k]; ok {
		return false
	}
	if a.index == nil {
		a.index = make(map[string]int)
	}
	a.index[k] = len(a.Policy)
	a.Policy = append(a.Policy, rule)
	return true
}

// RemoveRule deletes the rule, preserving the order of the remainder.
func (a *Assertion) RemoveRule(rule []string) bool {
	k := ruleKey(rule)
	i, ok := a.index[k]
	if !ok {
		return false
	}
	a.Policy = append(a.Policy[:i], a.Policy[i+1:]...)
	delete(a.index, k)
	for j := i; j < len(a.Policy); j++ {
		a.index[ruleKey(a.Policy[j])] = j
	}
	return true
}

// ClearRules drops every rule.
func (a *Assertion) ClearRules() {
	a.Policy = nil
	a.index = nil
}

// linkArity returns the relation arity declared by the g-section value: the
// count of "_" placeholders. 2 is a flat relation, 3 is domain-qualified;
// anything else is a model error.
func (a *Assertion) linkArity() (int, error) {
	count := strings.Count(a.Value, "_")
	if count != 2 && count != 3 {
		return 0, fmt.Errorf("role definition %q must declare 2 or 3 fields, got %d", a.Key, count)
	}
	return count, nil
}

// BuildRoleLinks feeds every stored rule into the role manager.
func (a *Assertion) BuildRoleLinks(rm rbac.RoleManager) error {
	count, err := a.linkArity()
	if err != nil {
		return err
	}
	for _, rule := range a.Policy {
		if len(rule) < count {
			return fmt.Errorf("grouping rule %v shorter than role definition arity %d", rule, count)
		}
		if count == 2 {
			if err := rm.AddLink(rule[0], rule[1]); err != nil {
				return err
			}
		} else {
			if err := rm.AddLink(rule[0], rule[1], rule[2]); err != nil {
				return err
			}
		}
	}
	a.RM = rm
	return nil
}

// BuildIncrementalRoleLinks applies only the delta of added or removed rules
// to the role manager.
func (a *Assertion) BuildIncrementalRoleLinks(rm rbac.RoleManager, insert bool, rules [][]string) error {
	count, err := a.linkArity()
	if err != nil {
		return err
	}
	for _, rule := range rules {
		if len(rule) < count {
			return fmt.Errorf("grouping rule %v shorter than role definition arity %d", rule, count)
		}
		var domain []string
		if count == 3 {
			domain = []string{rule[2]}
		}
		if insert {
			err = rm.AddLink(rule[0], rule[1], domain...)
		} else {
			err = rm.DeleteLink(rule[0], rule[1], domain...)
		}
		if err != nil {
			return err
		}
	}
	a.RM = rm
	return nil
}
