// Package model compiles the INI-like model configuration into typed
// sections (request and policy shapes, effect expression, matcher
// expressions, role-link declarations) and owns the in-memory rule sets.
package model

import (
	"fmt"
	"strings"

	"github.com/Sentinel-Gate/gatekit/config"
	"github.com/Sentinel-Gate/gatekit/effector"
	"github.com/Sentinel-Gate/gatekit/rbac"
	"github.com/Sentinel-Gate/gatekit/util"
)

var sectionNames = map[string]string{
	"r": "request_definition",
	"p": "policy_definition",
	"g": "role_definition",
	"e": "policy_effect",
	"m": "matchers",
}

// Model maps section -> ptype -> assertion. PTypes iterate in load order.
type Model struct {
	sections map[string]map[string]*Assertion
	order    map[string][]string
}

// NewModel returns an empty model.
func NewModel() *Model {
	return &Model{
		sections: make(map[string]map[string]*Assertion),
		order:    make(map[string][]string),
	}
}

// NewModelFromFile parses and compiles the model configuration at path.
func NewModelFromFile(path string) (*Model, error) {
	cfg, err := config.NewConfig(path)
	if err != nil {
		return nil, err
	}
	return fromConfig(cfg)
}

// NewModelFromText parses and compiles a model configuration held in memory.
func NewModelFromText(text string) (*Model, error) {
	cfg, err := config.NewConfigFromText(text)
	if err != nil {
		return nil, err
	}
	return fromConfig(cfg)
}

func fromConfig(cfg *config.Config) (*Model, error) {
	m := NewModel()
	for _, sec := range []string{"r", "p", "e", "m", "g"} {
		if err := m.loadSection(cfg, sec); err != nil {
			return nil, err
		}
	}
	return m, m.Validate()
}

// loadSection walks keys sec, sec2, sec3, ... until one is absent.
func (m *Model) loadSection(cfg *config.Config, sec string) error {
	for i := 1; ; i++ {
		key := sec
		if i > 1 {
			key = fmt.Sprintf("%s%d", sec, i)
		}
		value := cfg.Get(sectionNames[sec] + "::" + key)
		if value == "" {
			return nil
		}
		if ok, err := m.AddDef(sec, key, value); err != nil {
			return err
		} else if !ok {
			return nil
		}
	}
}

// AddDef compiles one section entry. It returns false (and no error) when
// the value is empty after comment stripping.
func (m *Model) AddDef(sec, key, value string) (bool, error) {
	ast := &Assertion{Key: key, Value: util.RemoveComments(value)}
	if ast.Value == "" {
		return false, nil
	}

	switch sec {
	case "r", "p":
		for _, tok := range strings.Split(ast.Value, ",") {
			ast.Tokens = append(ast.Tokens, key+"_"+strings.TrimSpace(tok))
		}
		seen := make(map[string]struct{}, len(ast.Tokens))
		for _, tok := range ast.Tokens {
			if _, dup := seen[tok]; dup {
				return false, fmt.Errorf("model: duplicate token %q in %s definition", tok, key)
			}
			seen[tok] = struct{}{}
		}
	default:
		ast.Value = util.EscapeGFunction(ast.Value)
		ast.Value = util.EscapeAssertion(ast.Value)
	}

	if _, ok := m.sections[sec]; !ok {
		m.sections[sec] = make(map[string]*Assertion)
	}
	if _, ok := m.sections[sec][key]; !ok {
		m.order[sec] = append(m.order[sec], key)
	}
	m.sections[sec][key] = ast
	return true, nil
}

// Validate checks the structural invariants: request, policy, effect, and
// matcher sections present, effect expressions recognized, role definitions
// of legal arity.
func (m *Model) Validate() error {
	for _, sec := range []string{"r", "p", "e", "m"} {
		if len(m.sections[sec]) == 0 {
			return fmt.Errorf("model: missing %s section", sectionNames[sec])
		}
	}
	for _, key := range m.order["e"] {
		if expr := m.sections["e"][key].Value; !effector.Supported(expr) {
			return fmt.Errorf("model: unsupported effect expression %q", expr)
		}
	}
	for _, key := range m.order["g"] {
		if _, err := m.sections["g"][key].linkArity(); err != nil {
			return fmt.Errorf("model: %w", err)
		}
	}
	return nil
}

// GetAssertion returns the assertion for (sec, ptype).
func (m *Model) GetAssertion(sec, ptype string) (*Assertion, bool) {
	ast, ok := m.sections[sec][ptype]
	return ast, ok
}

// PTypes returns the ptype keys of a section in load order.
func (m *Model) PTypes(sec string) []string {
	return m.order[sec]
}

// AddPolicy inserts the rule; duplicates return false.
func (m *Model) AddPolicy(sec, ptype string, rule []string) bool {
	if ast, ok := m.GetAssertion(sec, ptype); ok {
		return ast.AddRule(rule)
	}
	return false
}

// AddPolicies inserts all rules, or none: on the first duplicate the
// already-inserted prefix is rolled back.
func (m *Model) AddPolicies(sec, ptype string, rules [][]string) bool {
	var added [][]string
	for _, rule := range rules {
		if !m.AddPolicy(sec, ptype, rule) {
			for _, r := range added {
				m.RemovePolicy(sec, ptype, r)
			}
			return false
		}
		added = append(added, rule)
	}
	return true
}

// RemovePolicy deletes the rule; a missing rule returns false.
func (m *Model) RemovePolicy(sec, ptype string, rule []string) bool {
	if ast, ok := m.GetAssertion(sec, ptype); ok {
		return ast.RemoveRule(rule)
	}
	return false
}

// RemovePolicies deletes all rules, or none: on the first miss the
// already-deleted prefix is restored.
func (m *Model) RemovePolicies(sec, ptype string, rules [][]string) bool {
	var removed [][]string
	for _, rule := range rules {
		if !m.RemovePolicy(sec, ptype, rule) {
			for _, r := range removed {
				m.AddPolicy(sec, ptype, r)
			}
			return false
		}
		removed = append(removed, rule)
	}
	return true
}

func ruleMatchesFields(rule []string, fieldIndex int, fieldValues []string) bool {
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

// RemoveFilteredPolicy deletes every rule whose fields starting at
// fieldIndex equal the non-empty fieldValues, returning the removed rules in
// policy order. All-empty field values are a no-op.
func (m *Model) RemoveFilteredPolicy(sec, ptype string, fieldIndex int, fieldValues []string) (bool, [][]string) {
	ast, ok := m.GetAssertion(sec, ptype)
	if !ok {
		return false, nil
	}
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

	var removed [][]string
	var kept [][]string
	for _, rule := range ast.Policy {
		if ruleMatchesFields(rule, fieldIndex, fieldValues) {
			removed = append(removed, rule)
		} else {
			kept = append(kept, rule)
		}
	}
	if len(removed) == 0 {
		return false, nil
	}

	ast.ClearRules()
	for _, rule := range kept {
		ast.AddRule(rule)
	}
	return true, removed
}

// GetPolicy returns a copy of the rule list for (sec, ptype).
func (m *Model) GetPolicy(sec, ptype string) [][]string {
	ast, ok := m.GetAssertion(sec, ptype)
	if !ok {
		return nil
	}
	out := make([][]string, len(ast.Policy))
	copy(out, ast.Policy)
	return out
}

// GetFilteredPolicy returns the rules whose fields starting at fieldIndex
// equal the non-empty fieldValues.
func (m *Model) GetFilteredPolicy(sec, ptype string, fieldIndex int, fieldValues []string) [][]string {
	ast, ok := m.GetAssertion(sec, ptype)
	if !ok {
		return nil
	}
	var out [][]string
	for _, rule := range ast.Policy {
		if ruleMatchesFields(rule, fieldIndex, fieldValues) {
			out = append(out, rule)
		}
	}
	return out
}

// HasPolicy reports whether the rule is present under (sec, ptype).
func (m *Model) HasPolicy(sec, ptype string, rule []string) bool {
	ast, ok := m.GetAssertion(sec, ptype)
	return ok && ast.HasRule(rule)
}

// GetValuesForFieldInPolicy projects one field across the rules of
// (sec, ptype), deduplicated in first-appearance order.
func (m *Model) GetValuesForFieldInPolicy(sec, ptype string, fieldIndex int) []string {
	ast, ok := m.GetAssertion(sec, ptype)
	if !ok {
		return nil
	}
	seen := make(map[string]struct{})
	var out []string
	for _, rule := range ast.Policy {
		if fieldIndex >= len(rule) {
			continue
		}
		v := rule[fieldIndex]
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// ClearPolicy drops every p- and g-section rule, keeping the definitions.
func (m *Model) ClearPolicy() {
	for _, sec := range []string{"p", "g"} {
		for _, ast := range m.sections[sec] {
			ast.ClearRules()
		}
	}
}

// BuildRoleLinks rebuilds each g-relation's graph from scratch in its role
// manager.
func (m *Model) BuildRoleLinks(rmMap map[string]rbac.RoleManager) error {
	for _, ptype := range m.order["g"] {
		rm, ok := rmMap[ptype]
		if !ok {
			continue
		}
		if err := m.sections["g"][ptype].BuildRoleLinks(rm); err != nil {
			return err
		}
	}
	return nil
}

// BuildIncrementalRoleLinks applies a g-section rule delta to the relation's
// role manager.
func (m *Model) BuildIncrementalRoleLinks(rmMap map[string]rbac.RoleManager, insert bool, ptype string, rules [][]string) error {
	ast, ok := m.GetAssertion("g", ptype)
	if !ok {
		return fmt.Errorf("model: unknown role definition %q", ptype)
	}
	rm, ok := rmMap[ptype]
	if !ok {
		return fmt.Errorf("model: no role manager for %q", ptype)
	}
	return ast.BuildIncrementalRoleLinks(rm, insert, rules)
}
