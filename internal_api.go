package gatekit

import (
	"context"
	"fmt"

	"github.com/Sentinel-Gate/gatekit/event"
)

// The mutation pipeline. Every mutation follows the same discipline:
// adapter first (when auto-save is on), in-memory model second, change
// notification last. An adapter failure or refusal leaves the model
// untouched, so a cancelled or failed storage call never tears the
// in-memory state.

func (e *Enforcer) addPolicyInternal(ctx context.Context, sec, ptype string, rule []string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.model.HasPolicy(sec, ptype, rule) {
		return false, nil
	}
	if e.autoSave {
		ok, err := e.adapter.AddPolicy(ctx, sec, ptype, rule)
		if err != nil {
			return false, fmt.Errorf("%w: %v", ErrAdapter, err)
		}
		if !ok {
			return false, nil
		}
	}
	if !e.model.AddPolicy(sec, ptype, rule) {
		return false, nil
	}

	if err := e.maintainRoleLinks(sec, ptype, true, [][]string{rule}); err != nil {
		return true, err
	}
	e.notifyPolicyChange(ctx, event.Data{Op: event.AddPolicy, Sec: sec, PType: ptype, Rules: [][]string{rule}})
	return true, nil
}

func (e *Enforcer) addPoliciesInternal(ctx context.Context, sec, ptype string, rules [][]string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, rule := range rules {
		if e.model.HasPolicy(sec, ptype, rule) {
			return false, nil
		}
	}
	if e.autoSave {
		ok, err := e.adapter.AddPolicies(ctx, sec, ptype, rules)
		if err != nil {
			return false, fmt.Errorf("%w: %v", ErrAdapter, err)
		}
		if !ok {
			return false, nil
		}
	}
	if !e.model.AddPolicies(sec, ptype, rules) {
		return false, nil
	}

	if err := e.maintainRoleLinks(sec, ptype, true, rules); err != nil {
		return true, err
	}
	e.notifyPolicyChange(ctx, event.Data{Op: event.AddPolicies, Sec: sec, PType: ptype, Rules: rules})
	return true, nil
}

func (e *Enforcer) removePolicyInternal(ctx context.Context, sec, ptype string, rule []string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.model.HasPolicy(sec, ptype, rule) {
		return false, nil
	}
	if e.autoSave {
		ok, err := e.adapter.RemovePolicy(ctx, sec, ptype, rule)
		if err != nil {
			return false, fmt.Errorf("%w: %v", ErrAdapter, err)
		}
		if !ok {
			return false, nil
		}
	}
	if !e.model.RemovePolicy(sec, ptype, rule) {
		return false, nil
	}

	if err := e.maintainRoleLinks(sec, ptype, false, [][]string{rule}); err != nil {
		return true, err
	}
	e.notifyPolicyChange(ctx, event.Data{Op: event.RemovePolicy, Sec: sec, PType: ptype, Rules: [][]string{rule}})
	return true, nil
}

func (e *Enforcer) removePoliciesInternal(ctx context.Context, sec, ptype string, rules [][]string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, rule := range rules {
		if !e.model.HasPolicy(sec, ptype, rule) {
			return false, nil
		}
	}
	if e.autoSave {
		ok, err := e.adapter.RemovePolicies(ctx, sec, ptype, rules)
		if err != nil {
			return false, fmt.Errorf("%w: %v", ErrAdapter, err)
		}
		if !ok {
			return false, nil
		}
	}
	if !e.model.RemovePolicies(sec, ptype, rules) {
		return false, nil
	}

	if err := e.maintainRoleLinks(sec, ptype, false, rules); err != nil {
		return true, err
	}
	e.notifyPolicyChange(ctx, event.Data{Op: event.RemovePolicies, Sec: sec, PType: ptype, Rules: rules})
	return true, nil
}

func (e *Enforcer) removeFilteredPolicyInternal(ctx context.Context, sec, ptype string, fieldIndex int, fieldValues []string) (bool, [][]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	allEmpty := true
	for _, fv := range fieldValues {
		if fv != "" {
			allEmpty = false
			break
		}
	}
	if allEmpty {
		return false, nil, nil
	}

	if e.autoSave {
		ok, err := e.adapter.RemoveFilteredPolicy(ctx, sec, ptype, fieldIndex, fieldValues)
		if err != nil {
			return false, nil, fmt.Errorf("%w: %v", ErrAdapter, err)
		}
		if !ok {
			return false, nil, nil
		}
	}

	removedAny, removed := e.model.RemoveFilteredPolicy(sec, ptype, fieldIndex, fieldValues)
	if !removedAny {
		return false, nil, nil
	}

	if err := e.maintainRoleLinks(sec, ptype, false, removed); err != nil {
		return true, removed, err
	}
	e.notifyPolicyChange(ctx, event.Data{Op: event.RemoveFilteredPolicy, Sec: sec, PType: ptype, Rules: removed})
	return true, removed, nil
}

// maintainRoleLinks keeps the role graph coherent after a g-section change:
// the delta alone in incremental mode, a full rebuild otherwise. Caller
// holds the write lock.
func (e *Enforcer) maintainRoleLinks(sec, ptype string, insert bool, rules [][]string) error {
	if sec != "g" || !e.autoBuildRoleLinks {
		return nil
	}
	if e.incrementalRoleLinks {
		if err := e.model.BuildIncrementalRoleLinks(e.rmMap, insert, ptype, rules); err != nil {
			return fmt.Errorf("%w: %v", ErrRbac, err)
		}
		return nil
	}
	return e.buildRoleLinksLocked()
}
