package condition

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/kneutral-org/escalator/internal/catalog"
	"github.com/kneutral-org/escalator/internal/metrics"
)

// Checker tests single conditions against an event.
type Checker struct {
	expressions *ExpressionEvaluator
	logger      zerolog.Logger
}

// NewChecker creates a Checker. expressions may be nil, in which case expression conditions fail.
func NewChecker(expressions *ExpressionEvaluator, logger zerolog.Logger) *Checker {
	return &Checker{
		expressions: expressions,
		logger:      logger.With().Str("component", "condition-checker").Logger(),
	}
}

// Check reports whether cond holds for event.
func (c *Checker) Check(event *catalog.Event, cond catalog.Condition) bool {
	switch cond.Type {
	case catalog.ConditionEventAcknowledged:
		want := cond.Value == "1"
		return compareBool(cond.Operator, event.Acknowledged == want)

	case catalog.ConditionTriggerSeverity:
		if event.Trigger == nil {
			return false
		}
		want, err := strconv.Atoi(cond.Value)
		if err != nil {
			return false
		}
		return compareInt(cond.Operator, int(event.Trigger.Priority), want)

	case catalog.ConditionTriggerName:
		if event.Trigger == nil {
			return false
		}
		return compareString(cond.Operator, event.Trigger.Description, cond.Value)

	case catalog.ConditionTrigger:
		if event.Trigger == nil {
			return false
		}
		return compareBool(cond.Operator, strconv.FormatUint(event.Trigger.ID, 10) == cond.Value)

	case catalog.ConditionHost:
		return compareBool(cond.Operator, containsID(event.HostIDs, cond.Value))

	case catalog.ConditionHostGroup:
		return compareBool(cond.Operator, containsID(event.HostGroupIDs, cond.Value))

	case catalog.ConditionEventSource:
		return compareBool(cond.Operator, strconv.Itoa(int(event.Source)) == cond.Value)

	case catalog.ConditionTag:
		return matchTags(cond.Operator, event.Tags, cond.Value, func(t catalog.Tag) (string, bool) {
			return t.Tag, true
		})

	case catalog.ConditionTagValue:
		return matchTags(cond.Operator, event.Tags, cond.Value, func(t catalog.Tag) (string, bool) {
			return t.Value, t.Tag == cond.Value2
		})

	case catalog.ConditionExpression:
		if c.expressions == nil {
			return false
		}
		ok, err := c.expressions.Evaluate(cond.Value, event)
		if err != nil {
			c.logger.Warn().Err(err).Str("expression", cond.Value).Msg("expression condition failed")
			return false
		}
		return ok

	default:
		c.logger.Debug().Int("condition_type", int(cond.Type)).Msg("unsupported condition type")
		return false
	}
}

// matchTags applies positive operators to any selected tag and negated operators to all of them.
func matchTags(op catalog.ConditionOperator, tags []catalog.Tag, expected string, pick func(catalog.Tag) (string, bool)) bool {
	positive := op
	switch op {
	case catalog.OperatorNotEqual:
		positive = catalog.OperatorEqual
	case catalog.OperatorNotLike:
		positive = catalog.OperatorLike
	}

	found := false
	for _, t := range tags {
		if actual, ok := pick(t); ok && compareString(positive, actual, expected) {
			found = true
			break
		}
	}
	if positive != op {
		return !found
	}
	return found
}

func compareBool(op catalog.ConditionOperator, match bool) bool {
	switch op {
	case catalog.OperatorEqual:
		return match
	case catalog.OperatorNotEqual:
		return !match
	default:
		return false
	}
}

func compareInt(op catalog.ConditionOperator, actual, expected int) bool {
	switch op {
	case catalog.OperatorEqual:
		return actual == expected
	case catalog.OperatorNotEqual:
		return actual != expected
	case catalog.OperatorMoreEqual:
		return actual >= expected
	case catalog.OperatorLessEqual:
		return actual <= expected
	default:
		return false
	}
}

func compareString(op catalog.ConditionOperator, actual, expected string) bool {
	switch op {
	case catalog.OperatorEqual:
		return actual == expected
	case catalog.OperatorNotEqual:
		return actual != expected
	case catalog.OperatorLike:
		return strings.Contains(actual, expected)
	case catalog.OperatorNotLike:
		return !strings.Contains(actual, expected)
	default:
		return false
	}
}

func containsID(ids []uint64, value string) bool {
	want, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return false
	}
	for _, id := range ids {
		if id == want {
			return true
		}
	}
	return false
}

// ConditionSource supplies operation conditions sorted by type.
type ConditionSource interface {
	GetConditions(ctx context.Context, operationID uint64) ([]catalog.Condition, error)
}

// Matcher decides whether an operation's conditions hold for an event.
type Matcher struct {
	source  ConditionSource
	checker *Checker
}

// NewMatcher creates a Matcher.
func NewMatcher(source ConditionSource, checker *Checker) *Matcher {
	return &Matcher{source: source, checker: checker}
}

// Match loads the operation's conditions and evaluates them against event.
func (m *Matcher) Match(ctx context.Context, op *catalog.Operation, event *catalog.Event) (bool, error) {
	conds, err := m.source.GetConditions(ctx, op.ID)
	if err != nil {
		return false, fmt.Errorf("load conditions of operation %d: %w", op.ID, err)
	}

	passed := Evaluate(conds, op.EvalType, func(c catalog.Condition) bool {
		return m.checker.Check(event, c)
	})
	metrics.RecordConditionEvaluation(op.EvalType.String(), passed)
	return passed, nil
}
