package persist

import (
	"context"

	"github.com/Sentinel-Gate/gatekit/model"
)

// NullAdapter is the no-storage adapter used when an enforcer is constructed
// without one: loads fill nothing, saves and mutations succeed without
// persisting anything.
type NullAdapter struct{}

// NewNullAdapter returns the no-storage adapter.
func NewNullAdapter() *NullAdapter {
	return &NullAdapter{}
}

// LoadPolicy loads nothing.
func (a *NullAdapter) LoadPolicy(ctx context.Context, m *model.Model) error {
	return nil
}

// SavePolicy persists nothing.
func (a *NullAdapter) SavePolicy(ctx context.Context, m *model.Model) error {
	return nil
}

// AddPolicy accepts the rule without storing it.
func (a *NullAdapter) AddPolicy(ctx context.Context, sec, ptype string, rule []string) (bool, error) {
	return true, nil
}

// AddPolicies accepts the batch without storing it.
func (a *NullAdapter) AddPolicies(ctx context.Context, sec, ptype string, rules [][]string) (bool, error) {
	return true, nil
}

// RemovePolicy accepts the deletion without storing it.
func (a *NullAdapter) RemovePolicy(ctx context.Context, sec, ptype string, rule []string) (bool, error) {
	return true, nil
}

// RemovePolicies accepts the batch deletion without storing it.
func (a *NullAdapter) RemovePolicies(ctx context.Context, sec, ptype string, rules [][]string) (bool, error) {
	return true, nil
}

// RemoveFilteredPolicy accepts the filtered deletion without storing it.
func (a *NullAdapter) RemoveFilteredPolicy(ctx context.Context, sec, ptype string, fieldIndex int, fieldValues []string) (bool, error) {
	return true, nil
}
