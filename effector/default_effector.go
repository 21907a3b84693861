package effector

import (
	"fmt"
	"strings"
)

// The recognized effect expressions, compared after whitespace normalization.
const (
	someAllow         = "some(where (p_eft == allow))"
	noDeny            = "!some(where (p_eft == deny))"
	someAllowAndNoDeny = "some(where (p_eft == allow)) && !some(where (p_eft == deny))"
	priority          = "priority(p_eft) || deny"
)

// DefaultEffector implements the four built-in effect expressions.
type DefaultEffector struct{}

// NewDefaultEffector returns the built-in effector.
func NewDefaultEffector() *DefaultEffector {
	return &DefaultEffector{}
}

// Supported reports whether expr is one of the recognized effect expressions.
func Supported(expr string) bool {
	switch normalize(expr) {
	case someAllow, noDeny, someAllowAndNoDeny, priority:
		return true
	}
	return false
}

func normalize(expr string) string {
	return strings.Join(strings.Fields(expr), " ")
}

// NewStream validates expr and returns a stream for cap outcomes.
func (e *DefaultEffector) NewStream(expr string, cap int) (Stream, error) {
	if cap < 1 {
		return nil, fmt.Errorf("effector: stream capacity must be positive, got %d", cap)
	}

	expr = normalize(expr)
	var initial bool
	switch expr {
	case someAllow, someAllowAndNoDeny, priority:
		initial = false
	case noDeny:
		initial = true
	default:
		return nil, fmt.Errorf("effector: unsupported effect expression %q", expr)
	}

	return &defaultStream{expr: expr, res: initial, cap: cap}, nil
}

type defaultStream struct {
	expr string
	done bool
	res  bool
	idx  int
	cap  int
	expl []int
}

func (s *defaultStream) Next() bool {
	return s.res
}

func (s *defaultStream) Explain() []int {
	return s.expl
}

func (s *defaultStream) PushEffect(idx int, eft Effect) bool {
	switch s.expr {
	case someAllow:
		if eft == Allow {
			s.done = true
			s.res = true
			s.expl = append(s.expl, idx)
		}
	case someAllowAndNoDeny:
		if eft == Allow {
			s.res = true
			s.expl = append(s.expl, idx)
		} else if eft == Deny {
			s.done = true
			s.res = false
			s.expl = append(s.expl, idx)
		}
	case noDeny:
		if eft == Deny {
			s.done = true
			s.res = false
			s.expl = append(s.expl, idx)
		}
	case priority:
		if eft != Indeterminate {
			s.res = eft == Allow
			s.done = true
			s.expl = append(s.expl, idx)
		}
	}

	s.idx++
	if s.idx == s.cap {
		s.done = true
	}
	return s.done
}
