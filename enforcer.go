// Package gatekit is an embeddable authorization library. A host configures
// an Enforcer with a declarative model (request shape, policy shape, effect
// aggregator, matcher expression, optional role links) and a policy adapter,
// then asks it allow/deny questions. One generic evaluation engine covers
// ACL, RBAC with hierarchies and domains, ABAC over attribute objects,
// deny-override, and priority models.
package gatekit

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"

	"github.com/Sentinel-Gate/gatekit/effector"
	"github.com/Sentinel-Gate/gatekit/eval"
	"github.com/Sentinel-Gate/gatekit/event"
	"github.com/Sentinel-Gate/gatekit/model"
	"github.com/Sentinel-Gate/gatekit/persist"
	"github.com/Sentinel-Gate/gatekit/rbac"
	"github.com/Sentinel-Gate/gatekit/util"
)

// Enforcer is the orchestrator: it owns the compiled model, the policy
// adapter, the role managers, and the expression evaluator, and exposes the
// decision and mutation APIs.
//
// Concurrency: decisions take a shared lock and run against a consistent
// snapshot of the model; mutations serialize behind the exclusive lock.
// Concurrent Enforce calls never block each other.
type Enforcer struct {
	mu sync.RWMutex

	model     *model.Model
	adapter   persist.Adapter
	watcher   persist.Watcher
	rmMap     map[string]rbac.RoleManager
	eft       effector.Effector
	evaluator *eval.Evaluator
	userFuncs map[string]eval.BinaryFunc

	logger  *slog.Logger
	metrics *Metrics

	subscribers []func(event.Data)

	enabled              bool
	autoSave             bool
	autoBuildRoleLinks   bool
	autoNotifyWatcher    bool
	incrementalRoleLinks bool
}

// NewEnforcer constructs an enforcer. The model argument is a *model.Model
// or a path to a model configuration file; the optional adapter argument is
// a persist.Adapter or a path to a CSV policy file. With no adapter the
// enforcer runs on the null adapter. The initial policy load happens here.
func NewEnforcer(ctx context.Context, modelArg any, adapterArg ...any) (*Enforcer, error) {
	m, err := resolveModel(modelArg)
	if err != nil {
		return nil, err
	}
	a, err := resolveAdapter(adapterArg...)
	if err != nil {
		return nil, err
	}

	e := &Enforcer{
		model:                m,
		adapter:              a,
		rmMap:                make(map[string]rbac.RoleManager),
		eft:                  effector.NewDefaultEffector(),
		userFuncs:            make(map[string]eval.BinaryFunc),
		logger:               slog.Default(),
		enabled:              true,
		autoSave:             true,
		autoBuildRoleLinks:   true,
		autoNotifyWatcher:    true,
		incrementalRoleLinks: true,
	}

	for _, ptype := range m.PTypes("g") {
		e.rmMap[ptype] = rbac.NewDefaultRoleManager(rbac.DefaultMaxHierarchyLevel)
	}
	if err := e.rebuildEvaluator(); err != nil {
		return nil, err
	}
	if err := e.LoadPolicy(ctx); err != nil {
		return nil, err
	}
	return e, nil
}

func resolveModel(arg any) (*model.Model, error) {
	switch v := arg.(type) {
	case *model.Model:
		return v, nil
	case string:
		m, err := model.NewModelFromFile(v)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrModel, err)
		}
		return m, nil
	default:
		return nil, fmt.Errorf("%w: unsupported model argument %T", ErrModel, arg)
	}
}

func resolveAdapter(args ...any) (persist.Adapter, error) {
	if len(args) == 0 || args[0] == nil {
		return persist.NewNullAdapter(), nil
	}
	switch v := args[0].(type) {
	case persist.Adapter:
		return v, nil
	case string:
		return persist.NewFileAdapter(v), nil
	default:
		return nil, fmt.Errorf("%w: unsupported adapter argument %T", ErrAdapter, args[0])
	}
}

// rebuildEvaluator reconstructs the expression environment from the current
// model tokens, role managers, and registered functions. Caller must hold
// the write lock or be the constructor.
func (e *Enforcer) rebuildEvaluator() error {
	var tokens []string
	for _, sec := range []string{"r", "p"} {
		for _, ptype := range e.model.PTypes(sec) {
			ast, _ := e.model.GetAssertion(sec, ptype)
			tokens = append(tokens, ast.Tokens...)
		}
	}

	roleFuncs := make(map[string]eval.RoleFunc, len(e.rmMap))
	for ptype, rm := range e.rmMap {
		rm := rm
		roleFuncs[ptype] = func(args ...string) (bool, error) {
			switch len(args) {
			case 2:
				return rm.HasLink(args[0], args[1])
			case 3:
				return rm.HasLink(args[0], args[1], args[2])
			default:
				return false, fmt.Errorf("role function expects 2 or 3 arguments, got %d", len(args))
			}
		}
	}

	ev, err := eval.New(tokens, roleFuncs, e.userFuncs)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrModel, err)
	}
	e.evaluator = ev
	return nil
}

// AddFunction registers a custom binary matcher helper and rebuilds the
// expression environment.
func (e *Enforcer) AddFunction(name string, fn func(string, string) bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.userFuncs[name] = fn
	return e.rebuildEvaluator()
}

// GetModel returns the compiled model.
func (e *Enforcer) GetModel() *model.Model {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.model
}

// SetModel replaces the model and reloads the policy.
func (e *Enforcer) SetModel(ctx context.Context, m *model.Model) error {
	e.mu.Lock()
	e.model = m
	for _, ptype := range m.PTypes("g") {
		if _, ok := e.rmMap[ptype]; !ok {
			e.rmMap[ptype] = rbac.NewDefaultRoleManager(rbac.DefaultMaxHierarchyLevel)
		}
	}
	err := e.rebuildEvaluator()
	e.mu.Unlock()
	if err != nil {
		return err
	}
	return e.LoadPolicy(ctx)
}

// GetAdapter returns the policy adapter.
func (e *Enforcer) GetAdapter() persist.Adapter {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.adapter
}

// SetAdapter replaces the adapter and reloads the policy from it.
func (e *Enforcer) SetAdapter(ctx context.Context, a persist.Adapter) error {
	e.mu.Lock()
	e.adapter = a
	e.mu.Unlock()
	return e.LoadPolicy(ctx)
}

// SetWatcher installs a change watcher. Its update callback defaults to
// reloading the policy so instances converge.
func (e *Enforcer) SetWatcher(w persist.Watcher) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.watcher = w
	return w.SetUpdateCallback(func(summary string) {
		e.logger.Debug("policy update notification", "summary", summary)
		if err := e.LoadPolicy(context.Background()); err != nil {
			e.logger.Warn("policy reload after watcher update failed", "error", err)
		}
	})
}

// GetRoleManager returns the role manager of the default g relation.
func (e *Enforcer) GetRoleManager() rbac.RoleManager {
	return e.GetNamedRoleManager("g")
}

// GetNamedRoleManager returns the role manager of one g relation.
func (e *Enforcer) GetNamedRoleManager(ptype string) rbac.RoleManager {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.rmMap[ptype]
}

// SetRoleManager replaces the default g relation's role manager, rebuilds
// its links, and re-registers the g function against it.
func (e *Enforcer) SetRoleManager(rm rbac.RoleManager) error {
	return e.SetNamedRoleManager("g", rm)
}

// SetNamedRoleManager replaces one g relation's role manager.
func (e *Enforcer) SetNamedRoleManager(ptype string, rm rbac.RoleManager) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rmMap[ptype] = rm
	if e.autoBuildRoleLinks {
		if err := e.buildRoleLinksLocked(); err != nil {
			return err
		}
	}
	return e.rebuildEvaluator()
}

// AddMatchingFunc installs a role-name pattern matcher on the default g
// relation's manager and rebuilds the role links.
func (e *Enforcer) AddMatchingFunc(fn rbac.MatchingFunc) error {
	return e.AddNamedMatchingFunc("g", fn)
}

// AddNamedMatchingFunc installs a role-name pattern matcher on one g
// relation's manager.
func (e *Enforcer) AddNamedMatchingFunc(ptype string, fn rbac.MatchingFunc) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	rm, ok := e.rmMap[ptype]
	if !ok {
		return fmt.Errorf("%w: model has no role definition %q", ErrModel, ptype)
	}
	rm.AddMatchingFunc(fn)
	if e.autoBuildRoleLinks {
		return e.buildRoleLinksLocked()
	}
	return nil
}

// AddDomainMatchingFunc installs a domain-name pattern matcher on the
// default g relation's manager and rebuilds the role links.
func (e *Enforcer) AddDomainMatchingFunc(fn rbac.MatchingFunc) error {
	return e.AddNamedDomainMatchingFunc("g", fn)
}

// AddNamedDomainMatchingFunc installs a domain-name pattern matcher on one
// g relation's manager.
func (e *Enforcer) AddNamedDomainMatchingFunc(ptype string, fn rbac.MatchingFunc) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	rm, ok := e.rmMap[ptype]
	if !ok {
		return fmt.Errorf("%w: model has no role definition %q", ErrModel, ptype)
	}
	rm.AddDomainMatchingFunc(fn)
	if e.autoBuildRoleLinks {
		return e.buildRoleLinksLocked()
	}
	return nil
}

// SetEffector replaces the effect aggregator.
func (e *Enforcer) SetEffector(eft effector.Effector) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.eft = eft
}

// SetLogger replaces the structured logger.
func (e *Enforcer) SetLogger(l *slog.Logger) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.logger = l
}

// SetMetrics installs a decision/mutation metrics recorder.
func (e *Enforcer) SetMetrics(m *Metrics) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.metrics = m
}

// EnableEnforce toggles decision evaluation; when disabled every request is
// allowed.
func (e *Enforcer) EnableEnforce(enabled bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.enabled = enabled
}

// EnableAutoSave toggles write-through of mutations to the adapter.
func (e *Enforcer) EnableAutoSave(autoSave bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.autoSave = autoSave
}

// HasAutoSaveEnabled reports whether mutations write through to the adapter.
func (e *Enforcer) HasAutoSaveEnabled() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.autoSave
}

// EnableAutoBuildRoleLinks toggles role-graph maintenance on g mutations.
func (e *Enforcer) EnableAutoBuildRoleLinks(auto bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.autoBuildRoleLinks = auto
}

// HasAutoBuildRoleLinksEnabled reports whether g mutations maintain the
// role graph.
func (e *Enforcer) HasAutoBuildRoleLinksEnabled() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.autoBuildRoleLinks
}

// EnableAutoNotifyWatcher toggles watcher notification on mutations.
func (e *Enforcer) EnableAutoNotifyWatcher(auto bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.autoNotifyWatcher = auto
}

// HasAutoNotifyWatcherEnabled reports whether mutations notify the watcher.
func (e *Enforcer) HasAutoNotifyWatcherEnabled() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.autoNotifyWatcher
}

// EnableIncrementalRoleLinks toggles delta maintenance of the role graph;
// when off, g mutations rebuild the whole graph.
func (e *Enforcer) EnableIncrementalRoleLinks(incremental bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.incrementalRoleLinks = incremental
}

// OnPolicyChange subscribes fn to successful policy mutations. Subscribers
// run synchronously after the in-memory change commits.
func (e *Enforcer) OnPolicyChange(fn func(event.Data)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.subscribers = append(e.subscribers, fn)
}

// notifyPolicyChange fans a successful mutation out to the logger, metrics,
// subscribers, and the watcher. Caller holds the write lock.
func (e *Enforcer) notifyPolicyChange(ctx context.Context, d event.Data) {
	e.logger.Debug("policy changed", "op", d.Op.String(), "sec", d.Sec, "ptype", d.PType, "rules", len(d.Rules))
	if e.metrics != nil {
		e.metrics.recordMutation(d.Op)
	}
	for _, fn := range e.subscribers {
		fn(d)
	}
	if e.watcher != nil && e.autoNotifyWatcher {
		if err := e.watcher.Update(ctx, d); err != nil {
			e.logger.Warn("watcher update failed", "error", err)
		}
	}
}

// BuildRoleLinks rebuilds every g relation's graph from the current rules.
func (e *Enforcer) BuildRoleLinks() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.buildRoleLinksLocked()
}

func (e *Enforcer) buildRoleLinksLocked() error {
	for _, rm := range e.rmMap {
		rm.Clear()
	}
	if err := e.model.BuildRoleLinks(e.rmMap); err != nil {
		return fmt.Errorf("%w: %v", ErrPolicy, err)
	}
	return nil
}

// LoadPolicy clears the in-memory rules and refills them from the adapter,
// then rebuilds the role links.
func (e *Enforcer) LoadPolicy(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.model.ClearPolicy()
	if err := e.adapter.LoadPolicy(ctx, e.model); err != nil {
		return fmt.Errorf("%w: %v", ErrAdapter, err)
	}
	if e.autoBuildRoleLinks {
		return e.buildRoleLinksLocked()
	}
	return nil
}

// LoadFilteredPolicy loads only the rules the filter retains. The adapter
// must support filtered loads. Afterwards SavePolicy is refused while the
// adapter's IsFiltered reports true; the bundled adapters report true only
// when the filter dropped at least one rule.
func (e *Enforcer) LoadFilteredPolicy(ctx context.Context, f persist.Filter) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	fa, ok := e.adapter.(persist.FilteredAdapter)
	if !ok {
		return fmt.Errorf("%w: adapter does not support filtered loads", ErrAdapter)
	}

	e.model.ClearPolicy()
	if err := fa.LoadFilteredPolicy(ctx, e.model, f); err != nil {
		return fmt.Errorf("%w: %v", ErrAdapter, err)
	}
	if e.autoBuildRoleLinks {
		return e.buildRoleLinksLocked()
	}
	return nil
}

// IsFiltered reports whether the current in-memory policy is a filtered
// subset of storage.
func (e *Enforcer) IsFiltered() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.isFilteredLocked()
}

func (e *Enforcer) isFilteredLocked() bool {
	fa, ok := e.adapter.(persist.FilteredAdapter)
	return ok && fa.IsFiltered()
}

// SavePolicy writes the full in-memory policy to the adapter. Saving a
// filtered policy is refused: it would overwrite rules the filter dropped.
func (e *Enforcer) SavePolicy(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.isFilteredLocked() {
		return fmt.Errorf("%w: cannot save a filtered policy", ErrModel)
	}
	if err := e.adapter.SavePolicy(ctx, e.model); err != nil {
		return fmt.Errorf("%w: %v", ErrAdapter, err)
	}

	var rules [][]string
	for _, sec := range []string{"p", "g"} {
		for _, ptype := range e.model.PTypes(sec) {
			rules = append(rules, e.model.GetPolicy(sec, ptype)...)
		}
	}
	e.notifyPolicyChange(ctx, event.Data{Op: event.SavePolicy, Rules: rules})
	return nil
}

// ClearPolicy drops every in-memory rule without touching the adapter.
func (e *Enforcer) ClearPolicy() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.model.ClearPolicy()
}

// Enforce decides one request. Arguments are the request values in request-
// definition order; an optional leading EnforceContext selects a non-default
// section index. String values shaped like JSON objects become attribute
// objects visible to the matcher.
func (e *Enforcer) Enforce(rvals ...any) (bool, error) {
	ok, _, err := e.enforce("", false, rvals)
	return ok, err
}

// EnforceWithMatcher decides one request against the matcher stored under
// the given m-section key ("m2" selects the second matcher).
func (e *Enforcer) EnforceWithMatcher(matcher string, rvals ...any) (bool, error) {
	ok, _, err := e.enforce(matcher, false, rvals)
	return ok, err
}

// EnforceEx decides one request and additionally returns the indices of the
// policy rules that produced the verdict.
func (e *Enforcer) EnforceEx(rvals ...any) (bool, []int, error) {
	return e.enforce("", true, rvals)
}

// EnforceExWithMatcher combines EnforceWithMatcher and EnforceEx.
func (e *Enforcer) EnforceExWithMatcher(matcher string, rvals ...any) (bool, []int, error) {
	return e.enforce(matcher, true, rvals)
}

// BatchEnforce decides a batch of requests, failing on the first error.
func (e *Enforcer) BatchEnforce(requests [][]any) ([]bool, error) {
	out := make([]bool, 0, len(requests))
	for _, rvals := range requests {
		ok, err := e.Enforce(rvals...)
		if err != nil {
			return nil, err
		}
		out = append(out, ok)
	}
	return out, nil
}

func (e *Enforcer) enforce(matcherKey string, explain bool, rvals []any) (res bool, expl []int, err error) {
	start := time.Now()
	defer func() {
		if err == nil {
			e.recordDecision(res, time.Since(start))
		}
	}()

	ec := NewEnforceContext("")
	if len(rvals) > 0 {
		if c, ok := rvals[0].(EnforceContext); ok {
			ec = c
			rvals = rvals[1:]
		}
	}
	if matcherKey != "" {
		ec.MType = matcherKey
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	if !e.enabled {
		return true, nil, nil
	}

	rAst, ok := e.model.GetAssertion("r", ec.RType)
	if !ok {
		return false, nil, fmt.Errorf("%w: missing request definition %q", ErrModel, ec.RType)
	}
	pAst, ok := e.model.GetAssertion("p", ec.PType)
	if !ok {
		return false, nil, fmt.Errorf("%w: missing policy definition %q", ErrModel, ec.PType)
	}
	eAst, ok := e.model.GetAssertion("e", ec.EType)
	if !ok {
		return false, nil, fmt.Errorf("%w: missing policy effect %q", ErrModel, ec.EType)
	}
	mAst, ok := e.model.GetAssertion("m", ec.MType)
	if !ok {
		return false, nil, fmt.Errorf("%w: missing matcher %q", ErrModel, ec.MType)
	}

	if len(rvals) != len(rAst.Tokens) {
		return false, nil, fmt.Errorf("%w: request has %d values, definition %q expects %d",
			ErrRequest, len(rvals), ec.RType, len(rAst.Tokens))
	}

	base := make(map[string]any, len(rAst.Tokens)+len(pAst.Tokens))
	for i, tok := range rAst.Tokens {
		base[tok] = bindRequestValue(rvals[i])
	}

	matcher := mAst.Value
	hasEval := util.HasEvalFn(matcher)

	policies := pAst.Policy
	capacity := len(policies)
	if capacity == 0 {
		capacity = 1
	}
	stream, err := e.eft.NewStream(eAst.Value, capacity)
	if err != nil {
		return false, nil, fmt.Errorf("%w: %v", ErrModel, err)
	}

	if len(policies) == 0 {
		bindings := base
		for _, tok := range pAst.Tokens {
			bindings[tok] = ""
		}
		ok, err := e.evalMatcher(matcher, hasEval, bindings)
		if err != nil {
			return false, nil, err
		}
		eft := effector.Indeterminate
		if ok {
			eft = effector.Allow
		}
		stream.PushEffect(0, eft)
		return e.finish(stream, explain, rvals)
	}

	eftIndex := -1
	for i, tok := range pAst.Tokens {
		if tok == ec.PType+"_eft" {
			eftIndex = i
			break
		}
	}

	for i, rule := range policies {
		if len(rule) != len(pAst.Tokens) {
			return false, nil, fmt.Errorf("%w: rule %v has %d fields, definition %q expects %d",
				ErrPolicy, rule, len(rule), ec.PType, len(pAst.Tokens))
		}

		bindings := make(map[string]any, len(base)+len(pAst.Tokens))
		for k, v := range base {
			bindings[k] = v
		}
		for j, tok := range pAst.Tokens {
			bindings[tok] = rule[j]
		}

		matched, err := e.evalMatcher(matcher, hasEval, bindings)
		if err != nil {
			return false, nil, err
		}

		eft := effector.Indeterminate
		if matched {
			eft = effector.Allow
			if eftIndex >= 0 {
				switch rule[eftIndex] {
				case "allow":
					eft = effector.Allow
				case "deny":
					eft = effector.Deny
				default:
					eft = effector.Indeterminate
				}
			}
		}
		if stream.PushEffect(i, eft) {
			break
		}
	}
	return e.finish(stream, explain, rvals)
}

func (e *Enforcer) finish(stream effector.Stream, explain bool, rvals []any) (bool, []int, error) {
	res := stream.Next()
	e.logger.Debug("enforce", "request", fmt.Sprint(rvals...), "allowed", res)
	if explain {
		return res, stream.Explain(), nil
	}
	return res, nil, nil
}

func (e *Enforcer) recordDecision(allowed bool, d time.Duration) {
	e.mu.RLock()
	m := e.metrics
	e.mu.RUnlock()
	if m != nil {
		m.recordDecision(allowed, d)
	}
}

// evalMatcher compiles (with caching) and evaluates the matcher against the
// bindings. When the matcher contains eval() calls, the bound string value
// of each argument is assertion-escaped and spliced in before compilation.
func (e *Enforcer) evalMatcher(matcher string, hasEval bool, bindings map[string]any) (bool, error) {
	expr := matcher
	if hasEval {
		var missing string
		expr2, ok := util.ReplaceEval(matcher, func(token string) (string, bool) {
			v, bound := bindings[token]
			s, isStr := v.(string)
			if !bound || !isStr || strings.TrimSpace(s) == "" {
				missing = token
				return "", false
			}
			return util.EscapeAssertion(s), true
		})
		if !ok {
			return false, fmt.Errorf("%w: eval() argument %q is not bound to a rule expression", ErrEvaluation, missing)
		}
		expr = expr2
	}

	prg, err := e.evaluator.Compile(expr)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrEvaluation, err)
	}
	ok, err := e.evaluator.Evaluate(prg, bindings)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrEvaluation, err)
	}
	return ok, nil
}

// bindRequestValue turns one request value into its evaluator binding.
// JSON-object strings become attribute maps; other strings bind verbatim;
// non-string values (maps, structs the host already decoded) bind as-is.
func bindRequestValue(v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	trimmed := strings.TrimSpace(s)
	if strings.HasPrefix(trimmed, "{") && strings.HasSuffix(trimmed, "}") && gjson.Valid(trimmed) {
		return gjson.Parse(trimmed).Value()
	}
	return s
}
