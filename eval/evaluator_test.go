package eval

import (
	"strings"
	"testing"
)

func newTestEvaluator(t *testing.T, roleFuncs map[string]RoleFunc) *Evaluator {
	t.Helper()
	tokens := []string{"r_sub", "r_obj", "r_act", "p_sub", "p_obj", "p_act"}
	e, err := New(tokens, roleFuncs, nil)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return e
}

func evaluate(t *testing.T, e *Evaluator, expr string, bindings map[string]any) bool {
	t.Helper()
	prg, err := e.Compile(expr)
	if err != nil {
		t.Fatalf("Compile(%q) error: %v", expr, err)
	}
	ok, err := e.Evaluate(prg, bindings)
	if err != nil {
		t.Fatalf("Evaluate(%q) error: %v", expr, err)
	}
	return ok
}

func TestEvaluatorStringEquality(t *testing.T) {
	t.Parallel()

	e := newTestEvaluator(t, nil)
	bindings := map[string]any{
		"r_sub": "alice", "r_obj": "data1", "r_act": "read",
		"p_sub": "alice", "p_obj": "data1", "p_act": "read",
	}
	if !evaluate(t, e, "r_sub == p_sub && r_obj == p_obj && r_act == p_act", bindings) {
		t.Error("equal bindings evaluated false, want true")
	}

	bindings["p_sub"] = "bob"
	if evaluate(t, e, "r_sub == p_sub && r_obj == p_obj && r_act == p_act", bindings) {
		t.Error("unequal bindings evaluated true, want false")
	}
}

func TestEvaluatorBuiltins(t *testing.T) {
	t.Parallel()

	e := newTestEvaluator(t, nil)
	bindings := map[string]any{
		"r_sub": "alice", "r_obj": "/alice_data/file1", "r_act": "GET",
		"p_sub": "alice", "p_obj": "/alice_data/*", "p_act": "(GET)|(POST)",
	}
	if !evaluate(t, e, `keyMatch(r_obj, p_obj) && regexMatch(r_act, p_act)`, bindings) {
		t.Error("keyMatch+regexMatch evaluated false, want true")
	}
	if !evaluate(t, e, `ipMatch("192.168.2.1", "192.168.2.0/24")`, bindings) {
		t.Error("ipMatch in CIDR evaluated false, want true")
	}
}

func TestEvaluatorRoleFunction(t *testing.T) {
	t.Parallel()

	roleFuncs := map[string]RoleFunc{
		"g": func(args ...string) (bool, error) {
			return args[0] == "alice" && args[1] == "admin", nil
		},
	}
	e := newTestEvaluator(t, roleFuncs)
	bindings := map[string]any{
		"r_sub": "alice", "r_obj": "", "r_act": "",
		"p_sub": "admin", "p_obj": "", "p_act": "",
	}
	if !evaluate(t, e, "g([r_sub, p_sub])", bindings) {
		t.Error("g([alice, admin]) evaluated false, want true")
	}

	bindings["r_sub"] = "bob"
	if evaluate(t, e, "g([r_sub, p_sub])", bindings) {
		t.Error("g([bob, admin]) evaluated true, want false")
	}
}

func TestEvaluatorAttributeAccess(t *testing.T) {
	t.Parallel()

	e := newTestEvaluator(t, nil)
	bindings := map[string]any{
		"r_sub": map[string]any{"age": float64(19)},
		"r_obj": "/data1", "r_act": "read",
		"p_sub": "", "p_obj": "", "p_act": "",
	}
	if !evaluate(t, e, "r_sub.age > 18", bindings) {
		t.Error("r_sub.age > 18 with age 19 evaluated false, want true")
	}

	bindings["r_sub"] = map[string]any{"age": float64(16)}
	if evaluate(t, e, "r_sub.age > 18", bindings) {
		t.Error("r_sub.age > 18 with age 16 evaluated true, want false")
	}
}

func TestEvaluatorUserFunction(t *testing.T) {
	t.Parallel()

	userFuncs := map[string]BinaryFunc{
		"hasPrefix": strings.HasPrefix,
	}
	e, err := New([]string{"r_obj", "p_obj"}, nil, userFuncs)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	bindings := map[string]any{"r_obj": "/data1/file", "p_obj": "/data1"}
	if !evaluate(t, e, "hasPrefix(r_obj, p_obj)", bindings) {
		t.Error("hasPrefix evaluated false, want true")
	}
}

func TestEvaluatorCompileError(t *testing.T) {
	t.Parallel()

	e := newTestEvaluator(t, nil)
	if _, err := e.Compile("r_sub =="); err == nil {
		t.Error("Compile() of malformed expression: error = nil, want error")
	}
	if _, err := e.Compile("unknown_token == p_sub"); err == nil {
		t.Error("Compile() with undeclared variable: error = nil, want error")
	}
}

func TestEvaluatorNonBooleanResult(t *testing.T) {
	t.Parallel()

	e := newTestEvaluator(t, nil)
	prg, err := e.Compile(`r_sub + "x"`)
	if err != nil {
		t.Fatalf("Compile() error: %v", err)
	}
	if _, err := e.Evaluate(prg, map[string]any{"r_sub": "a"}); err == nil {
		t.Error("Evaluate() of non-boolean expression: error = nil, want error")
	}
}

func TestEvaluatorProgramCache(t *testing.T) {
	t.Parallel()

	e := newTestEvaluator(t, nil)
	p1, err := e.Compile("r_sub == p_sub")
	if err != nil {
		t.Fatalf("Compile() error: %v", err)
	}
	p2, err := e.Compile("r_sub == p_sub")
	if err != nil {
		t.Fatalf("Compile() error: %v", err)
	}
	if p1 != p2 {
		t.Error("Compile() of identical expression returned a different program, want cached instance")
	}
}
