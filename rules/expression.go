package rules

import (
	"fmt"

	"cloud.google.com/go/civil"
	"github.com/google/cel-go/cel"
)

// expressionCostLimit bounds the work a single targeting expression may do
const expressionCostLimit = 1000000

// NewExpressionEnv creates the CEL environment targeting expressions compile against.
// Each derived code set is a list(string) named after its code group, and today is
// the as-of date formatted as YYYY-MM-DD.
func NewExpressionEnv() (*cel.Env, error) {
	opts := make([]cel.EnvOption, 0, len(CodeGroups)+1)
	for _, g := range CodeGroups {
		opts = append(opts, cel.Variable(string(g), cel.ListType(cel.StringType)))
	}
	opts = append(opts, cel.Variable("today", cel.StringType))

	env, err := cel.NewEnv(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	return env, nil
}

// CompileExpression compiles a targeting expression, requiring a boolean result
func CompileExpression(env *cel.Env, expression string) (cel.Program, error) {
	ast, issues := env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile error: %w", issues.Err())
	}

	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("expression must evaluate to bool, got %s", ast.OutputType())
	}

	prog, err := env.Program(ast, cel.CostLimit(expressionCostLimit))
	if err != nil {
		return nil, fmt.Errorf("program creation error: %w", err)
	}
	return prog, nil
}

// EvalExpression runs a compiled targeting expression against the derived code sets
func EvalExpression(prog cel.Program, sets DerivedCodeSets, today civil.Date) (bool, error) {
	out, _, err := prog.Eval(expressionVars(sets, today))
	if err != nil {
		return false, err
	}

	matched, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("expression returned %T, want bool", out.Value())
	}
	return matched, nil
}

func expressionVars(sets DerivedCodeSets, today civil.Date) map[string]any {
	vars := make(map[string]any, len(CodeGroups)+1)
	for _, g := range CodeGroups {
		set, _ := sets.Select(g)
		vars[string(g)] = set.Sorted()
	}
	vars["today"] = today.String()
	return vars
}
