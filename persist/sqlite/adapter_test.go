package sqlite

import (
	"context"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/Sentinel-Gate/gatekit/model"
	"github.com/Sentinel-Gate/gatekit/persist"
)

const testModelText = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && r.obj == p.obj && r.act == p.act
`

func newTestAdapter(t *testing.T) *Adapter {
	t.Helper()
	a, err := NewAdapter(context.Background(), filepath.Join(t.TempDir(), "policy.db"))
	if err != nil {
		t.Fatalf("NewAdapter() error: %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

func newTestModel(t *testing.T) *model.Model {
	t.Helper()
	m, err := model.NewModelFromText(testModelText)
	if err != nil {
		t.Fatalf("NewModelFromText() error: %v", err)
	}
	return m
}

func TestSQLiteAddLoad(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	a := newTestAdapter(t)

	rules := [][]string{
		{"alice", "data1", "read"},
		{"bob", "data2", "write"},
	}
	for _, rule := range rules {
		ok, err := a.AddPolicy(ctx, "p", "p", rule)
		if err != nil || !ok {
			t.Fatalf("AddPolicy(%v) = %v, %v, want true", rule, ok, err)
		}
	}
	if ok, err := a.AddPolicy(ctx, "p", "p", rules[0]); err != nil || ok {
		t.Errorf("AddPolicy() duplicate = %v, %v, want false", ok, err)
	}
	if ok, err := a.AddPolicy(ctx, "g", "g", []string{"alice", "data2_admin"}); err != nil || !ok {
		t.Fatalf("AddPolicy(g) = %v, %v, want true", ok, err)
	}

	m := newTestModel(t)
	if err := a.LoadPolicy(ctx, m); err != nil {
		t.Fatalf("LoadPolicy() error: %v", err)
	}
	if got := m.GetPolicy("p", "p"); !reflect.DeepEqual(got, rules) {
		t.Errorf("p rules = %v, want %v in insertion order", got, rules)
	}
	if got := m.GetPolicy("g", "g"); !reflect.DeepEqual(got, [][]string{{"alice", "data2_admin"}}) {
		t.Errorf("g rules = %v, want alice grouping", got)
	}
}

func TestSQLiteRemove(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	a := newTestAdapter(t)

	rule := []string{"alice", "data1", "read"}
	if _, err := a.AddPolicy(ctx, "p", "p", rule); err != nil {
		t.Fatalf("AddPolicy() error: %v", err)
	}

	if ok, err := a.RemovePolicy(ctx, "p", "p", rule); err != nil || !ok {
		t.Errorf("RemovePolicy() = %v, %v, want true", ok, err)
	}
	if ok, err := a.RemovePolicy(ctx, "p", "p", rule); err != nil || ok {
		t.Errorf("RemovePolicy() repeated = %v, %v, want false", ok, err)
	}
}

func TestSQLiteBatchAllOrNothing(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	a := newTestAdapter(t)

	if _, err := a.AddPolicy(ctx, "p", "p", []string{"alice", "data1", "read"}); err != nil {
		t.Fatalf("AddPolicy() error: %v", err)
	}
	ok, err := a.AddPolicies(ctx, "p", "p", [][]string{
		{"bob", "data2", "write"},
		{"alice", "data1", "read"},
	})
	if err != nil {
		t.Fatalf("AddPolicies() error: %v", err)
	}
	if ok {
		t.Error("AddPolicies() with existing rule = true, want false")
	}

	m := newTestModel(t)
	if err := a.LoadPolicy(ctx, m); err != nil {
		t.Fatalf("LoadPolicy() error: %v", err)
	}
	if m.HasPolicy("p", "p", []string{"bob", "data2", "write"}) {
		t.Error("refused batch still reached storage")
	}
}

func TestSQLiteRemoveFiltered(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	a := newTestAdapter(t)

	seed := [][]string{
		{"alice", "data1", "read"},
		{"alice", "data2", "read"},
		{"bob", "data2", "write"},
	}
	for _, rule := range seed {
		if _, err := a.AddPolicy(ctx, "p", "p", rule); err != nil {
			t.Fatalf("AddPolicy() error: %v", err)
		}
	}

	ok, err := a.RemoveFilteredPolicy(ctx, "p", "p", 0, []string{"alice"})
	if err != nil || !ok {
		t.Fatalf("RemoveFilteredPolicy() = %v, %v, want true", ok, err)
	}
	if ok, err := a.RemoveFilteredPolicy(ctx, "p", "p", 0, []string{""}); err != nil || ok {
		t.Errorf("RemoveFilteredPolicy() all-empty = %v, %v, want false no-op", ok, err)
	}

	m := newTestModel(t)
	if err := a.LoadPolicy(ctx, m); err != nil {
		t.Fatalf("LoadPolicy() error: %v", err)
	}
	want := [][]string{{"bob", "data2", "write"}}
	if got := m.GetPolicy("p", "p"); !reflect.DeepEqual(got, want) {
		t.Errorf("rules after filtered removal = %v, want %v", got, want)
	}
}

func TestSQLiteFilteredLoad(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	a := newTestAdapter(t)

	if _, err := a.AddPolicy(ctx, "p", "p", []string{"alice", "data1", "read"}); err != nil {
		t.Fatalf("AddPolicy() error: %v", err)
	}
	if _, err := a.AddPolicy(ctx, "p", "p", []string{"bob", "data2", "write"}); err != nil {
		t.Fatalf("AddPolicy() error: %v", err)
	}

	m := newTestModel(t)
	if err := a.LoadFilteredPolicy(ctx, m, persist.Filter{P: []string{"alice"}}); err != nil {
		t.Fatalf("LoadFilteredPolicy() error: %v", err)
	}
	if !a.IsFiltered() {
		t.Error("IsFiltered() = false after partial load, want true")
	}
	want := [][]string{{"alice", "data1", "read"}}
	if got := m.GetPolicy("p", "p"); !reflect.DeepEqual(got, want) {
		t.Errorf("filtered rules = %v, want %v", got, want)
	}
}

func TestSQLiteSaveReplacesStorage(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	a := newTestAdapter(t)

	if _, err := a.AddPolicy(ctx, "p", "p", []string{"old", "data", "read"}); err != nil {
		t.Fatalf("AddPolicy() error: %v", err)
	}

	m := newTestModel(t)
	m.AddPolicy("p", "p", []string{"alice", "data1", "read"})
	m.AddPolicy("g", "g", []string{"alice", "admin"})
	if err := a.SavePolicy(ctx, m); err != nil {
		t.Fatalf("SavePolicy() error: %v", err)
	}

	m2 := newTestModel(t)
	if err := a.LoadPolicy(ctx, m2); err != nil {
		t.Fatalf("LoadPolicy() error: %v", err)
	}
	if m2.HasPolicy("p", "p", []string{"old", "data", "read"}) {
		t.Error("SavePolicy() kept replaced rule")
	}
	if !m2.HasPolicy("p", "p", []string{"alice", "data1", "read"}) || !m2.HasPolicy("g", "g", []string{"alice", "admin"}) {
		t.Error("SavePolicy() dropped current rules")
	}
}
