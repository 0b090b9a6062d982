package condition

import (
	"container/list"
	"errors"
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/kneutral-org/escalator/internal/catalog"
)

var (
	// ErrEmptyExpression is returned when an empty expression is provided.
	ErrEmptyExpression = errors.New("empty CEL expression")

	// ErrCompilationFailed is returned when expression compilation fails.
	ErrCompilationFailed = errors.New("CEL expression compilation failed")

	// ErrEvaluationFailed is returned when expression evaluation fails.
	ErrEvaluationFailed = errors.New("CEL expression evaluation failed")

	// ErrNotBoolean is returned when expression does not return a boolean.
	ErrNotBoolean = errors.New("CEL expression must return a boolean value")
)

// NewEventEnvironment creates the CEL environment expression conditions are compiled in.
func NewEventEnvironment() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("event_id", cel.IntType),
		cel.Variable("event_source", cel.StringType),
		cel.Variable("acknowledged", cel.BoolType),
		cel.Variable("severity", cel.IntType),
		cel.Variable("severity_name", cel.StringType),
		cel.Variable("trigger_id", cel.IntType),
		cel.Variable("trigger_name", cel.StringType),
		cel.Variable("tags", cel.MapType(cel.StringType, cel.StringType)),
		cel.Variable("host_ids", cel.ListType(cel.IntType)),
		cel.Variable("host_group_ids", cel.ListType(cel.IntType)),
	)
}

// BuildActivation creates the CEL activation for an event.
func BuildActivation(event *catalog.Event) map[string]any {
	tags := make(map[string]string, len(event.Tags))
	for _, t := range event.Tags {
		tags[t.Tag] = t.Value
	}

	activation := map[string]any{
		"event_id":       int64(event.ID),
		"event_source":   event.Source.String(),
		"acknowledged":   event.Acknowledged,
		"severity":       int64(event.Priority()),
		"severity_name":  event.Priority().String(),
		"trigger_id":     int64(0),
		"trigger_name":   "",
		"tags":           tags,
		"host_ids":       toInt64s(event.HostIDs),
		"host_group_ids": toInt64s(event.HostGroupIDs),
	}
	if event.Trigger != nil {
		activation["trigger_id"] = int64(event.Trigger.ID)
		activation["trigger_name"] = event.Trigger.Description
	}
	return activation
}

func toInt64s(ids []uint64) []int64 {
	result := make([]int64, len(ids))
	for i, id := range ids {
		result[i] = int64(id)
	}
	return result
}

// ExpressionEvaluator compiles and evaluates CEL expression conditions with an LRU program cache.
type ExpressionEvaluator struct {
	mu       sync.Mutex
	env      *cel.Env
	capacity int
	items    map[string]*list.Element
	order    *list.List
}

type programEntry struct {
	expression string
	program    cel.Program
}

// NewExpressionEvaluator creates an evaluator caching up to capacity compiled programs.
func NewExpressionEvaluator(capacity int) (*ExpressionEvaluator, error) {
	env, err := NewEventEnvironment()
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	if capacity <= 0 {
		capacity = 1000
	}
	return &ExpressionEvaluator{
		env:      env,
		capacity: capacity,
		items:    make(map[string]*list.Element),
		order:    list.New(),
	}, nil
}

// Validate checks that an expression compiles to a boolean.
func (e *ExpressionEvaluator) Validate(expression string) error {
	_, err := e.compile(expression)
	return err
}

// Evaluate evaluates expression against event.
func (e *ExpressionEvaluator) Evaluate(expression string, event *catalog.Event) (bool, error) {
	prg, err := e.program(expression)
	if err != nil {
		return false, err
	}

	result, _, err := prg.Eval(BuildActivation(event))
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrEvaluationFailed, err)
	}

	boolVal, ok := result.Value().(bool)
	if !ok {
		return false, fmt.Errorf("%w: result type is %T", ErrNotBoolean, result.Value())
	}
	return boolVal, nil
}

// Len returns the number of cached programs.
func (e *ExpressionEvaluator) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.order.Len()
}

func (e *ExpressionEvaluator) program(expression string) (cel.Program, error) {
	e.mu.Lock()
	if elem, ok := e.items[expression]; ok {
		e.order.MoveToFront(elem)
		prg := elem.Value.(*programEntry).program
		e.mu.Unlock()
		return prg, nil
	}
	e.mu.Unlock()

	prg, err := e.compile(expression)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if elem, ok := e.items[expression]; ok {
		e.order.MoveToFront(elem)
		return elem.Value.(*programEntry).program, nil
	}
	e.items[expression] = e.order.PushFront(&programEntry{expression: expression, program: prg})
	for e.order.Len() > e.capacity {
		oldest := e.order.Back()
		e.order.Remove(oldest)
		delete(e.items, oldest.Value.(*programEntry).expression)
	}
	return prg, nil
}

func (e *ExpressionEvaluator) compile(expression string) (cel.Program, error) {
	if expression == "" {
		return nil, ErrEmptyExpression
	}

	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("%w: %v", ErrCompilationFailed, issues.Err())
	}
	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("%w: got %s", ErrNotBoolean, ast.OutputType())
	}

	prg, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCompilationFailed, err)
	}
	return prg, nil
}
