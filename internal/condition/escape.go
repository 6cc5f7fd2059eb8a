package condition

import (
	"fmt"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/driaug/plunk/internal/perr"
)

// ExprEvaluator is an optional escape hatch for CONDITION steps whose
// config.field is the literal "expression": instead of the required
// field/operator/value table, config.value holds an expr-lang boolean
// expression evaluated against the same {contact,data,workflow} root.
// Compiled programs are cached by source text to avoid recompiling the
// same expression on every evaluation.
type ExprEvaluator struct {
	mu    sync.RWMutex
	cache map[string]*vm.Program
}

// NewExprEvaluator creates an empty-cache ExprEvaluator.
func NewExprEvaluator() *ExprEvaluator {
	return &ExprEvaluator{cache: make(map[string]*vm.Program)}
}

// Evaluate compiles (or reuses a cached compile of) expression and runs it
// against root, requiring a boolean result.
func (e *ExprEvaluator) Evaluate(expression string, root map[string]any) (bool, error) {
	if expression == "" {
		return true, nil
	}

	program, err := e.compile(expression)
	if err != nil {
		return false, &perr.ValidationError{
			Field:      "expression",
			Message:    fmt.Sprintf("failed to compile condition expression: %s", err),
			Suggestion: "check expression syntax and ensure all referenced fields exist",
		}
	}

	result, err := expr.Run(program, root)
	if err != nil {
		return false, &perr.ValidationError{
			Field:   "expression",
			Message: fmt.Sprintf("condition expression evaluation failed: %s", err),
		}
	}

	b, ok := result.(bool)
	if !ok {
		return false, &perr.ValidationError{
			Field:   "expression",
			Message: fmt.Sprintf("condition expression must return boolean, got %T", result),
		}
	}
	return b, nil
}

func (e *ExprEvaluator) compile(expression string) (*vm.Program, error) {
	e.mu.RLock()
	if prog, ok := e.cache[expression]; ok {
		e.mu.RUnlock()
		return prog, nil
	}
	e.mu.RUnlock()

	prog, err := expr.Compile(expression, expr.AllowUndefinedVariables(), expr.AsBool())
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.cache[expression] = prog
	e.mu.Unlock()

	return prog, nil
}
