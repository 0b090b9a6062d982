// Package condition evaluates operation conditions against events.
package condition

import (
	"github.com/kneutral-org/escalator/internal/catalog"
)

// Test reports whether a single condition holds for the event under evaluation.
type Test func(catalog.Condition) bool

// Evaluate combines condition results according to mode. Conditions must be sorted by type.
// An empty condition list always passes.
//
// AND fails on the first failing condition. OR passes on the first passing condition.
// AND_OR ORs consecutive conditions of the same type and ANDs the resulting groups,
// stopping as soon as a completed group has failed. Any other mode fails.
func Evaluate(conditions []catalog.Condition, mode catalog.EvalType, test Test) bool {
	if len(conditions) == 0 {
		return true
	}

	switch mode {
	case catalog.EvalAnd:
		for _, c := range conditions {
			if !test(c) {
				return false
			}
		}
		return true

	case catalog.EvalOr:
		for _, c := range conditions {
			if test(c) {
				return true
			}
		}
		return false

	case catalog.EvalAndOr:
		group := false
		for i, c := range conditions {
			if i > 0 && c.Type != conditions[i-1].Type {
				if !group {
					return false
				}
				group = false
			}
			if !group && test(c) {
				group = true
			}
		}
		return group

	default:
		return false
	}
}
