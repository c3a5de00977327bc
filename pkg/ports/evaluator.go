package ports

// CompiledFunc is an inline transform compiled by an Evaluator.
type CompiledFunc func(value any) (any, error)

// Evaluator compiles the body of an inline transform block ("{...}" in binding text)
// into a callable taking a single value. Hosts opt into inline transforms by
// injecting an Evaluator; without one, inline blocks are rejected by the parser.
type Evaluator interface {
	Compile(code string) (CompiledFunc, error)
}

// EvaluatorFunc adapts a plain function to the Evaluator interface.
type EvaluatorFunc func(code string) (CompiledFunc, error)

// Compile calls f(code).
func (f EvaluatorFunc) Compile(code string) (CompiledFunc, error) {
	return f(code)
}
