package gatekit

import "errors"

// The error taxonomy surfaced by the library. Every failure wraps exactly
// one of these sentinels (or an I/O error from the underlying storage), so
// callers branch with errors.Is.
var (
	// ErrModel marks a malformed or incomplete model: missing sections,
	// unsupported effect expressions, unknown matcher keys, or saving a
	// filtered policy.
	ErrModel = errors.New("gatekit: model error")

	// ErrPolicy marks a rule whose length does not match the declared
	// policy shape.
	ErrPolicy = errors.New("gatekit: policy error")

	// ErrRequest marks a request whose length does not match the
	// declared request shape.
	ErrRequest = errors.New("gatekit: request error")

	// ErrRbac marks role-graph failures, e.g. deleting a missing link.
	ErrRbac = errors.New("gatekit: rbac error")

	// ErrEvaluation marks a matcher compile or runtime failure. A
	// matcher that cannot be evaluated aborts the request; it never
	// degrades to a deny.
	ErrEvaluation = errors.New("gatekit: evaluation error")

	// ErrAdapter wraps an opaque failure from a policy-storage adapter.
	ErrAdapter = errors.New("gatekit: adapter error")
)
