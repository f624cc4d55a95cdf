package policy

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"

	"github.com/open-verix/timeproof/internal/evidence"
)

// CELExpression represents a single CEL expression to evaluate.
type CELExpression struct {
	Name    string `yaml:"name" json:"name"`
	Expr    string `yaml:"expr" json:"expr"`
	Message string `yaml:"message" json:"message"`
}

// CELResult is the outcome of one expression.
type CELResult struct {
	Name    string `json:"name"`
	Passed  bool   `json:"passed"`
	Message string `json:"message,omitempty"`
}

type celProgram struct {
	expr CELExpression
	prg  cel.Program
}

// CELEvaluator evaluates CEL expressions against input data.
type CELEvaluator struct {
	env      *cel.Env
	programs []celProgram
}

// NewCELEvaluator creates a new CEL evaluator with the given expressions.
// Expressions are evaluated in the order given.
func NewCELEvaluator(exprs []CELExpression) (*CELEvaluator, error) {
	if len(exprs) == 0 {
		return nil, fmt.Errorf("no CEL expressions provided")
	}

	// Create CEL environment with 'input' variable
	env, err := cel.NewEnv(
		cel.Variable("input", cel.DynType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	seen := make(map[string]bool, len(exprs))
	programs := make([]celProgram, 0, len(exprs))
	for _, expr := range exprs {
		if expr.Name == "" {
			return nil, fmt.Errorf("CEL expression missing name")
		}
		if expr.Expr == "" {
			return nil, fmt.Errorf("CEL expression '%s' missing expr", expr.Name)
		}
		if seen[expr.Name] {
			return nil, fmt.Errorf("duplicate CEL expression name '%s'", expr.Name)
		}
		seen[expr.Name] = true

		ast, issues := env.Compile(expr.Expr)
		if issues != nil && issues.Err() != nil {
			return nil, fmt.Errorf("failed to compile CEL expression '%s': %w", expr.Name, issues.Err())
		}

		if ast.OutputType() != cel.BoolType && ast.OutputType() != cel.DynType {
			return nil, fmt.Errorf("CEL expression '%s' must return boolean, got %v", expr.Name, ast.OutputType())
		}

		prg, err := env.Program(ast)
		if err != nil {
			return nil, fmt.Errorf("failed to create program for CEL expression '%s': %w", expr.Name, err)
		}

		programs = append(programs, celProgram{expr: expr, prg: prg})
	}

	return &CELEvaluator{
		env:      env,
		programs: programs,
	}, nil
}

// Evaluate evaluates all CEL expressions against the input data, in order.
// Returns error if any expression fails to evaluate.
func (e *CELEvaluator) Evaluate(ctx context.Context, input map[string]any) ([]CELResult, error) {
	if e.programs == nil {
		return nil, fmt.Errorf("CEL evaluator not initialized")
	}

	results := make([]CELResult, 0, len(e.programs))
	for _, p := range e.programs {
		out, _, err := p.prg.ContextEval(ctx, map[string]any{
			"input": input,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to evaluate CEL expression '%s': %w", p.expr.Name, err)
		}

		passed, err := extractBool(out)
		if err != nil {
			return nil, fmt.Errorf("CEL expression '%s' did not return boolean: %w", p.expr.Name, err)
		}

		res := CELResult{Name: p.expr.Name, Passed: passed}
		if !passed {
			res.Message = p.expr.Message
		}
		results = append(results, res)
	}

	return results, nil
}

// extractBool extracts a boolean value from a CEL ref.Val.
func extractBool(val ref.Val) (bool, error) {
	if types.IsBool(val) {
		return val.Value().(bool), nil
	}
	return false, fmt.Errorf("expected boolean, got %v", val.Type())
}

// RecordInput converts a record to the map exposed to CEL as `input`. Keys
// are the record's JSON field names; `gaps` lists the record's gaps.
func RecordInput(rec *evidence.Record) (map[string]any, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to encode record: %w", err)
	}

	var input map[string]any
	if err := json.Unmarshal(data, &input); err != nil {
		return nil, fmt.Errorf("failed to decode record: %w", err)
	}

	gaps := []any{}
	for _, g := range rec.Gaps() {
		gaps = append(gaps, g)
	}
	input["gaps"] = gaps

	return input, nil
}
