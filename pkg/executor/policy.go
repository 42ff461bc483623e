package executor

import (
	"fmt"

	"github.com/google/cel-go/cel"
)

// CalleePolicy is an optional admission policy evaluated after the capability
// probe, letting an operator restrict which callees the router may invoke.
// The expression is compiled once at construction and must evaluate to bool.
//
// Available variables:
//   - callee: map with address (string), asset_class (string, empty when the
//     contract does not probe as an asset), router_safe (bool)
//   - value: native value staged for the invocation (int)
//   - calldata_size: length of the supplied calldata (int)
type CalleePolicy struct {
	expr string
	prg  cel.Program
}

// NewCalleePolicy compiles expr into an admission policy.
func NewCalleePolicy(expr string) (*CalleePolicy, error) {
	env, err := cel.NewEnv(
		cel.Variable("callee", cel.DynType),
		cel.Variable("value", cel.IntType),
		cel.Variable("calldata_size", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create policy environment: %w", err)
	}
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile policy %q: %w", expr, issues.Err())
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to build policy program: %w", err)
	}
	return &CalleePolicy{expr: expr, prg: prg}, nil
}

// Allow evaluates the policy against one admission input.
func (p *CalleePolicy) Allow(input map[string]any) (bool, error) {
	out, _, err := p.prg.Eval(input)
	if err != nil {
		return false, fmt.Errorf("policy %q evaluation: %w", p.expr, err)
	}
	allowed, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("policy %q did not evaluate to bool (got %T)", p.expr, out.Value())
	}
	return allowed, nil
}
