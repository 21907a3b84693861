// Package util holds the expression-rewriting helpers and the built-in
// matcher operators shared by the model compiler and the evaluator.
package util

import (
	"regexp"
	"strings"
)

var (
	escAssertion = regexp.MustCompile(`\b(r|p)\d*\.`)
	escGFunction = regexp.MustCompile(`\b(g\d*)\(((?:\s*[rp]\d*\.\w+\s*,\s*){1,2}\s*[rp]\d*\.\w+\s*)\)`)
	evalFn       = regexp.MustCompile(`\beval\(\s*([^)]*?)\s*\)`)
)

// EscapeAssertion rewrites dotted request/policy references into the flat
// token names the evaluator binds: "r.sub" -> "r_sub", "p2.obj" -> "p2_obj".
func EscapeAssertion(s string) string {
	return escAssertion.ReplaceAllStringFunc(s, func(m string) string {
		return m[:len(m)-1] + "_"
	})
}

// EscapeGFunction rewrites role-reachability calls into their array form:
// "g(r.sub, p.sub)" -> "g([r.sub, p.sub])". It runs before EscapeAssertion,
// so the arguments are still in dotted form.
func EscapeGFunction(s string) string {
	return escGFunction.ReplaceAllString(s, "$1([$2])")
}

// RemoveComments strips a trailing "#" comment and surrounding whitespace.
func RemoveComments(s string) string {
	if i := strings.Index(s, "#"); i != -1 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

// HasEvalFn reports whether the matcher contains an eval(...) call.
func HasEvalFn(s string) bool {
	return evalFn.MatchString(s)
}

// EvalFnTokens returns the argument token of every eval(...) call, in order.
func EvalFnTokens(s string) []string {
	var tokens []string
	for _, m := range evalFn.FindAllStringSubmatch(s, -1) {
		tokens = append(tokens, m[1])
	}
	return tokens
}

// ReplaceEval substitutes every eval(token) call with the parenthesized
// expression the lookup function returns for that token. The lookup receives
// the raw argument token (e.g. "p_sub_rule") and returns the expression text
// to splice in, already assertion-escaped by the caller.
func ReplaceEval(s string, lookup func(token string) (string, bool)) (string, bool) {
	ok := true
	out := evalFn.ReplaceAllStringFunc(s, func(m string) string {
		token := evalFn.FindStringSubmatch(m)[1]
		expr, found := lookup(token)
		if !found {
			ok = false
			return m
		}
		return "(" + expr + ")"
	})
	return out, ok
}

// ParseCSVLine splits one policy line on commas with whitespace trimming.
// Returns nil for blank lines and "#" comments.
func ParseCSVLine(line string) []string {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return nil
	}
	parts := strings.Split(line, ",")
	tokens := make([]string, 0, len(parts))
	for _, p := range parts {
		tokens = append(tokens, strings.TrimSpace(p))
	}
	return tokens
}
