package persist

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Sentinel-Gate/gatekit/model"
)

// FileAdapter stores the policy as a CSV-like text file, one rule per line.
// It supports whole-file load and save only; per-rule mutations return
// ErrNotImplemented so a caller cannot mistake an unpersisted change for a
// durable one. Run with auto-save disabled and call SavePolicy explicitly.
type FileAdapter struct {
	path string
}

// NewFileAdapter returns an adapter reading and writing the file at path.
func NewFileAdapter(path string) *FileAdapter {
	return &FileAdapter{path: path}
}

// LoadPolicy reads every rule line from the file into the model.
func (a *FileAdapter) LoadPolicy(ctx context.Context, m *model.Model) error {
	if a.path == "" {
		return errors.New("persist: file adapter has no path")
	}
	f, err := os.Open(a.path)
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		LoadPolicyLine(scanner.Text(), m)
	}
	return scanner.Err()
}

// SavePolicy replaces the file with the model's current rules, p-sections
// before g-sections, preserving rule order. The write goes through a
// temporary file and rename so a crash cannot leave a half-written policy.
func (a *FileAdapter) SavePolicy(ctx context.Context, m *model.Model) error {
	if a.path == "" {
		return errors.New("persist: file adapter has no path")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(a.path), ".policy-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(renderPolicy(m)); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), a.path)
}

// AddPolicy is unsupported: the file has no per-rule write path.
func (a *FileAdapter) AddPolicy(ctx context.Context, sec, ptype string, rule []string) (bool, error) {
	return false, fmt.Errorf("%w: file adapter add_policy", ErrNotImplemented)
}

// AddPolicies is unsupported.
func (a *FileAdapter) AddPolicies(ctx context.Context, sec, ptype string, rules [][]string) (bool, error) {
	return false, fmt.Errorf("%w: file adapter add_policies", ErrNotImplemented)
}

// RemovePolicy is unsupported.
func (a *FileAdapter) RemovePolicy(ctx context.Context, sec, ptype string, rule []string) (bool, error) {
	return false, fmt.Errorf("%w: file adapter remove_policy", ErrNotImplemented)
}

// RemovePolicies is unsupported.
func (a *FileAdapter) RemovePolicies(ctx context.Context, sec, ptype string, rules [][]string) (bool, error) {
	return false, fmt.Errorf("%w: file adapter remove_policies", ErrNotImplemented)
}

// RemoveFilteredPolicy is unsupported.
func (a *FileAdapter) RemoveFilteredPolicy(ctx context.Context, sec, ptype string, fieldIndex int, fieldValues []string) (bool, error) {
	return false, fmt.Errorf("%w: file adapter remove_filtered_policy", ErrNotImplemented)
}
