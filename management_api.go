package gatekit

import "context"

// Management API: the primitive policy query and mutation surface. Every
// operation has a named variant taking an explicit ptype; the unnamed form
// targets the primary "p" or "g" section.

// GetPolicy returns the rules of the primary p section.
func (e *Enforcer) GetPolicy() [][]string {
	return e.GetNamedPolicy("p")
}

// GetNamedPolicy returns the rules stored under a p-section ptype.
func (e *Enforcer) GetNamedPolicy(ptype string) [][]string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.model.GetPolicy("p", ptype)
}

// GetFilteredPolicy returns the primary p rules whose fields starting at
// fieldIndex equal the non-empty fieldValues.
func (e *Enforcer) GetFilteredPolicy(fieldIndex int, fieldValues ...string) [][]string {
	return e.GetFilteredNamedPolicy("p", fieldIndex, fieldValues...)
}

// GetFilteredNamedPolicy is GetFilteredPolicy for an explicit ptype.
func (e *Enforcer) GetFilteredNamedPolicy(ptype string, fieldIndex int, fieldValues ...string) [][]string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.model.GetFilteredPolicy("p", ptype, fieldIndex, fieldValues)
}

// GetGroupingPolicy returns the rules of the primary g section.
func (e *Enforcer) GetGroupingPolicy() [][]string {
	return e.GetNamedGroupingPolicy("g")
}

// GetNamedGroupingPolicy returns the rules stored under a g-section ptype.
func (e *Enforcer) GetNamedGroupingPolicy(ptype string) [][]string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.model.GetPolicy("g", ptype)
}

// GetFilteredGroupingPolicy filters the primary g rules by field values.
func (e *Enforcer) GetFilteredGroupingPolicy(fieldIndex int, fieldValues ...string) [][]string {
	return e.GetFilteredNamedGroupingPolicy("g", fieldIndex, fieldValues...)
}

// GetFilteredNamedGroupingPolicy is GetFilteredGroupingPolicy for an
// explicit ptype.
func (e *Enforcer) GetFilteredNamedGroupingPolicy(ptype string, fieldIndex int, fieldValues ...string) [][]string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.model.GetFilteredPolicy("g", ptype, fieldIndex, fieldValues)
}

// HasPolicy reports whether the primary p section holds the rule.
func (e *Enforcer) HasPolicy(params ...string) bool {
	return e.HasNamedPolicy("p", params...)
}

// HasNamedPolicy reports whether a p-section ptype holds the rule.
func (e *Enforcer) HasNamedPolicy(ptype string, params ...string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.model.HasPolicy("p", ptype, params)
}

// HasGroupingPolicy reports whether the primary g section holds the rule.
func (e *Enforcer) HasGroupingPolicy(params ...string) bool {
	return e.HasNamedGroupingPolicy("g", params...)
}

// HasNamedGroupingPolicy reports whether a g-section ptype holds the rule.
func (e *Enforcer) HasNamedGroupingPolicy(ptype string, params ...string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.model.HasPolicy("g", ptype, params)
}

// AddPolicy adds one rule to the primary p section; false means it already
// existed.
func (e *Enforcer) AddPolicy(ctx context.Context, params ...string) (bool, error) {
	return e.AddNamedPolicy(ctx, "p", params...)
}

// AddNamedPolicy adds one rule under a p-section ptype.
func (e *Enforcer) AddNamedPolicy(ctx context.Context, ptype string, params ...string) (bool, error) {
	return e.addPolicyInternal(ctx, "p", ptype, params)
}

// AddPolicies adds a batch of rules to the primary p section, all or
// nothing.
func (e *Enforcer) AddPolicies(ctx context.Context, rules [][]string) (bool, error) {
	return e.AddNamedPolicies(ctx, "p", rules)
}

// AddNamedPolicies adds a batch under a p-section ptype, all or nothing.
func (e *Enforcer) AddNamedPolicies(ctx context.Context, ptype string, rules [][]string) (bool, error) {
	return e.addPoliciesInternal(ctx, "p", ptype, rules)
}

// RemovePolicy removes one rule from the primary p section; false means it
// was absent.
func (e *Enforcer) RemovePolicy(ctx context.Context, params ...string) (bool, error) {
	return e.RemoveNamedPolicy(ctx, "p", params...)
}

// RemoveNamedPolicy removes one rule under a p-section ptype.
func (e *Enforcer) RemoveNamedPolicy(ctx context.Context, ptype string, params ...string) (bool, error) {
	return e.removePolicyInternal(ctx, "p", ptype, params)
}

// RemovePolicies removes a batch from the primary p section, all or
// nothing.
func (e *Enforcer) RemovePolicies(ctx context.Context, rules [][]string) (bool, error) {
	return e.RemoveNamedPolicies(ctx, "p", rules)
}

// RemoveNamedPolicies removes a batch under a p-section ptype.
func (e *Enforcer) RemoveNamedPolicies(ctx context.Context, ptype string, rules [][]string) (bool, error) {
	return e.removePoliciesInternal(ctx, "p", ptype, rules)
}

// RemoveFilteredPolicy removes every primary p rule matching the field
// values, returning whether anything was removed. All-empty field values
// are a no-op.
func (e *Enforcer) RemoveFilteredPolicy(ctx context.Context, fieldIndex int, fieldValues ...string) (bool, error) {
	return e.RemoveFilteredNamedPolicy(ctx, "p", fieldIndex, fieldValues...)
}

// RemoveFilteredNamedPolicy is RemoveFilteredPolicy for an explicit ptype.
func (e *Enforcer) RemoveFilteredNamedPolicy(ctx context.Context, ptype string, fieldIndex int, fieldValues ...string) (bool, error) {
	ok, _, err := e.removeFilteredPolicyInternal(ctx, "p", ptype, fieldIndex, fieldValues)
	return ok, err
}

// AddGroupingPolicy adds one role-link rule to the primary g section.
func (e *Enforcer) AddGroupingPolicy(ctx context.Context, params ...string) (bool, error) {
	return e.AddNamedGroupingPolicy(ctx, "g", params...)
}

// AddNamedGroupingPolicy adds one role-link rule under a g-section ptype.
func (e *Enforcer) AddNamedGroupingPolicy(ctx context.Context, ptype string, params ...string) (bool, error) {
	return e.addPolicyInternal(ctx, "g", ptype, params)
}

// AddGroupingPolicies adds a batch of role-link rules, all or nothing.
func (e *Enforcer) AddGroupingPolicies(ctx context.Context, rules [][]string) (bool, error) {
	return e.AddNamedGroupingPolicies(ctx, "g", rules)
}

// AddNamedGroupingPolicies adds a batch under a g-section ptype.
func (e *Enforcer) AddNamedGroupingPolicies(ctx context.Context, ptype string, rules [][]string) (bool, error) {
	return e.addPoliciesInternal(ctx, "g", ptype, rules)
}

// RemoveGroupingPolicy removes one role-link rule from the primary g
// section.
func (e *Enforcer) RemoveGroupingPolicy(ctx context.Context, params ...string) (bool, error) {
	return e.RemoveNamedGroupingPolicy(ctx, "g", params...)
}

// RemoveNamedGroupingPolicy removes one role-link rule under a g-section
// ptype.
func (e *Enforcer) RemoveNamedGroupingPolicy(ctx context.Context, ptype string, params ...string) (bool, error) {
	return e.removePolicyInternal(ctx, "g", ptype, params)
}

// RemoveGroupingPolicies removes a batch of role-link rules, all or
// nothing.
func (e *Enforcer) RemoveGroupingPolicies(ctx context.Context, rules [][]string) (bool, error) {
	return e.RemoveNamedGroupingPolicies(ctx, "g", rules)
}

// RemoveNamedGroupingPolicies removes a batch under a g-section ptype.
func (e *Enforcer) RemoveNamedGroupingPolicies(ctx context.Context, ptype string, rules [][]string) (bool, error) {
	return e.removePoliciesInternal(ctx, "g", ptype, rules)
}

// RemoveFilteredGroupingPolicy removes every primary g rule matching the
// field values.
func (e *Enforcer) RemoveFilteredGroupingPolicy(ctx context.Context, fieldIndex int, fieldValues ...string) (bool, error) {
	return e.RemoveFilteredNamedGroupingPolicy(ctx, "g", fieldIndex, fieldValues...)
}

// RemoveFilteredNamedGroupingPolicy is RemoveFilteredGroupingPolicy for an
// explicit ptype.
func (e *Enforcer) RemoveFilteredNamedGroupingPolicy(ctx context.Context, ptype string, fieldIndex int, fieldValues ...string) (bool, error) {
	ok, _, err := e.removeFilteredPolicyInternal(ctx, "g", ptype, fieldIndex, fieldValues)
	return ok, err
}

// GetAllSubjects projects field 0 of the primary p rules, deduplicated in
// first-appearance order.
func (e *Enforcer) GetAllSubjects() []string {
	return e.GetAllNamedSubjects("p")
}

// GetAllNamedSubjects projects field 0 of a p-section ptype.
func (e *Enforcer) GetAllNamedSubjects(ptype string) []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.model.GetValuesForFieldInPolicy("p", ptype, 0)
}

// GetAllObjects projects field 1 of the primary p rules.
func (e *Enforcer) GetAllObjects() []string {
	return e.GetAllNamedObjects("p")
}

// GetAllNamedObjects projects field 1 of a p-section ptype.
func (e *Enforcer) GetAllNamedObjects(ptype string) []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.model.GetValuesForFieldInPolicy("p", ptype, 1)
}

// GetAllActions projects field 2 of the primary p rules.
func (e *Enforcer) GetAllActions() []string {
	return e.GetAllNamedActions("p")
}

// GetAllNamedActions projects field 2 of a p-section ptype.
func (e *Enforcer) GetAllNamedActions(ptype string) []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.model.GetValuesForFieldInPolicy("p", ptype, 2)
}

// GetAllRoles projects field 1 of the primary g rules: every name that
// appears as an inherited role.
func (e *Enforcer) GetAllRoles() []string {
	return e.GetAllNamedRoles("g")
}

// GetAllNamedRoles projects field 1 of a g-section ptype.
func (e *Enforcer) GetAllNamedRoles(ptype string) []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.model.GetValuesForFieldInPolicy("g", ptype, 1)
}

// GetAllDomains returns every domain known to the default role manager.
func (e *Enforcer) GetAllDomains() []string {
	e.mu.RLock()
	rm := e.rmMap["g"]
	e.mu.RUnlock()
	if rm == nil {
		return nil
	}
	return rm.GetDomains()
}
