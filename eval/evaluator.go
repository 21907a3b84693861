// Package eval wraps the CEL runtime as the matcher expression engine: one
// environment per model whose variables are the request and policy tokens,
// with the built-in matcher operators, role-reachability functions, and
// user-registered helpers installed as overloads. Compiled programs are
// cached by expression hash, so per-request work is activation building and
// evaluation only.
package eval

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/google/cel-go/ext"

	"github.com/Sentinel-Gate/gatekit/util"
)

// BinaryFunc is the shape of user-registerable matcher helpers.
type BinaryFunc func(arg1, arg2 string) bool

// RoleFunc answers a role-reachability call: two args for a flat relation,
// three for a domain-qualified one.
type RoleFunc func(args ...string) (bool, error)

// Builtins are the matcher operators installed in every environment.
var Builtins = map[string]BinaryFunc{
	"keyMatch":   util.KeyMatch,
	"keyMatch2":  util.KeyMatch2,
	"keyMatch3":  util.KeyMatch3,
	"regexMatch": util.RegexMatch,
	"globMatch":  util.GlobMatch,
	"ipMatch":    util.IPMatch,
}

var stringSliceType = reflect.TypeOf([]string(nil))

// Evaluator compiles and runs matcher expressions against per-rule variable
// bindings. It is immutable after construction; rebuilding the model or the
// function set means constructing a new Evaluator.
type Evaluator struct {
	env      *cel.Env
	programs sync.Map // xxhash of expression -> cel.Program
}

// New builds an environment whose declared variables are the given request
// and policy tokens. roleFuncs maps each g-relation name to its reachability
// oracle; userFuncs are additional binary helpers.
func New(tokens []string, roleFuncs map[string]RoleFunc, userFuncs map[string]BinaryFunc) (*Evaluator, error) {
	opts := []cel.EnvOption{
		ext.Strings(),
		cel.CrossTypeNumericComparisons(true),
	}
	for _, tok := range tokens {
		opts = append(opts, cel.Variable(tok, cel.DynType))
	}
	for name, fn := range Builtins {
		opts = append(opts, binaryFunction(name, fn))
	}
	for name, fn := range userFuncs {
		opts = append(opts, binaryFunction(name, fn))
	}
	for name, fn := range roleFuncs {
		opts = append(opts, roleFunction(name, fn))
	}

	env, err := cel.NewEnv(opts...)
	if err != nil {
		return nil, fmt.Errorf("eval: environment: %w", err)
	}
	return &Evaluator{env: env}, nil
}

func binaryFunction(name string, fn BinaryFunc) cel.EnvOption {
	return cel.Function(name,
		cel.Overload(name+"_string_string",
			[]*cel.Type{cel.StringType, cel.StringType},
			cel.BoolType,
			cel.BinaryBinding(func(a, b ref.Val) ref.Val {
				s1, ok1 := a.Value().(string)
				s2, ok2 := b.Value().(string)
				if !ok1 || !ok2 {
					return types.NewErr("%s expects string arguments", name)
				}
				return types.Bool(fn(s1, s2))
			}),
		),
	)
}

// roleFunction installs a g-relation call in its array form, g([u, v]) or
// g([u, v, dom]); the model compiler rewrites call sites to match.
func roleFunction(name string, fn RoleFunc) cel.EnvOption {
	return cel.Function(name,
		cel.Overload(name+"_list",
			[]*cel.Type{cel.ListType(cel.DynType)},
			cel.BoolType,
			cel.UnaryBinding(func(arg ref.Val) ref.Val {
				native, err := arg.ConvertToNative(stringSliceType)
				if err != nil {
					return types.NewErr("%s expects string arguments: %v", name, err)
				}
				args := native.([]string)
				if len(args) != 2 && len(args) != 3 {
					return types.NewErr("%s expects 2 or 3 arguments, got %d", name, len(args))
				}
				ok, err := fn(args...)
				if err != nil {
					return types.NewErr("%s: %v", name, err)
				}
				return types.Bool(ok)
			}),
		),
	)
}

// Compile parses and checks the expression, reusing a cached program when
// the same expression was compiled before.
func (e *Evaluator) Compile(expr string) (cel.Program, error) {
	key := xxhash.Sum64String(expr)
	if prg, ok := e.programs.Load(key); ok {
		return prg.(cel.Program), nil
	}

	ast, issues := e.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("eval: compile %q: %w", expr, issues.Err())
	}
	prg, err := e.env.Program(ast, cel.EvalOptions(cel.OptOptimize))
	if err != nil {
		return nil, fmt.Errorf("eval: program %q: %w", expr, err)
	}

	e.programs.Store(key, prg)
	return prg, nil
}

// Evaluate runs a compiled program against the bindings and requires a
// boolean result.
func (e *Evaluator) Evaluate(prg cel.Program, bindings map[string]any) (bool, error) {
	out, _, err := prg.Eval(bindings)
	if err != nil {
		return false, fmt.Errorf("eval: %w", err)
	}
	b, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("eval: matcher returned %T, want bool", out.Value())
	}
	return b, nil
}
