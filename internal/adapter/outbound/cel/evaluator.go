// Package cel provides a CEL-based evaluator for denial-rule conditions.
// Conditions see a single `params` map variable holding the tool call
// arguments.
package cel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/cel-go/cel"
)

// maxExpressionLength caps condition source size.
const maxExpressionLength = 1024

// maxCostBudget is the CEL runtime cost limit to prevent cost-exhaustion.
const maxCostBudget = 100_000

// evalTimeout bounds a single condition evaluation.
const evalTimeout = 5 * time.Second

// interruptCheckFreq is how often (in comprehension iterations) context
// cancellation is checked.
const interruptCheckFreq = 100

// Evaluator compiles and evaluates denial-rule conditions. Compiled
// programs are cached by source text, so repeated evaluation of the same
// rule does not recompile.
type Evaluator struct {
	env *cel.Env

	mu       sync.RWMutex
	programs map[string]cel.Program
}

// NewEvaluator creates an Evaluator whose environment exposes the call
// parameters as `params` (map<string, dyn>).
func NewEvaluator() (*Evaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable("params", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("create condition environment: %w", err)
	}
	return &Evaluator{
		env:      env,
		programs: make(map[string]cel.Program),
	}, nil
}

// Compile parses and type-checks a condition, returning a cached program.
func (e *Evaluator) Compile(condition string) (cel.Program, error) {
	e.mu.RLock()
	prg, ok := e.programs[condition]
	e.mu.RUnlock()
	if ok {
		return prg, nil
	}

	ast, issues := e.env.Compile(condition)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compilation failed: %w", issues.Err())
	}
	prg, err := e.env.Program(ast,
		cel.EvalOptions(cel.OptOptimize),
		cel.CostLimit(maxCostBudget),
		cel.InterruptCheckFrequency(interruptCheckFreq),
	)
	if err != nil {
		return nil, fmt.Errorf("program creation failed: %w", err)
	}

	e.mu.Lock()
	e.programs[condition] = prg
	e.mu.Unlock()
	return prg, nil
}

// ValidateExpression checks that a condition is non-empty, within the size
// cap, and compiles. Called before persisting rules so invalid CEL cannot
// poison the store.
func (e *Evaluator) ValidateExpression(condition string) error {
	if condition == "" {
		return errors.New("condition is empty")
	}
	if len(condition) > maxExpressionLength {
		return fmt.Errorf("condition too long: %d characters (max %d)", len(condition), maxExpressionLength)
	}
	if _, err := e.Compile(condition); err != nil {
		return fmt.Errorf("invalid condition: %w", err)
	}
	return nil
}

// Match implements org.ConditionEvaluator: it reports whether the
// condition evaluates to true for the given parameters.
func (e *Evaluator) Match(ctx context.Context, condition string, params map[string]any) (bool, error) {
	prg, err := e.Compile(condition)
	if err != nil {
		return false, err
	}

	if params == nil {
		params = map[string]any{}
	}
	evalCtx, cancel := context.WithTimeout(ctx, evalTimeout)
	defer cancel()

	result, _, err := prg.ContextEval(evalCtx, map[string]any{"params": params})
	if err != nil {
		return false, fmt.Errorf("condition evaluation failed: %w", err)
	}
	boolResult, ok := result.Value().(bool)
	if !ok {
		return false, fmt.Errorf("condition did not return a boolean, got %T", result.Value())
	}
	return boolResult, nil
}
