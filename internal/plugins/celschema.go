package plugins

import (
	"fmt"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
)

// CELSchema is a ConfigSchema backed by a CEL boolean expression over the
// plugin's userConfig, e.g. `"apiKey" in config && size(config.apiKey) > 0`.
type CELSchema struct {
	program cel.Program
	source  string
}

// NewCELSchema compiles expr against a single "config" map(string,dyn)
// variable.
func NewCELSchema(expr string) (*CELSchema, error) {
	env, err := cel.NewEnv(cel.Variable("config", cel.MapType(cel.StringType, cel.DynType)))
	if err != nil {
		return nil, fmt.Errorf("plugins: cel env: %w", err)
	}
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("plugins: cel compile %q: %w", expr, issues.Err())
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("plugins: cel program: %w", err)
	}
	return &CELSchema{program: prg, source: expr}, nil
}

// Parse evaluates the compiled expression against value, erroring unless it
// evaluates to boolean true.
func (s *CELSchema) Parse(value map[string]interface{}) error {
	out, _, err := s.program.Eval(map[string]interface{}{"config": toDynMap(value)})
	if err != nil {
		return fmt.Errorf("plugins: cel eval %q: %w", s.source, err)
	}
	b, ok := out.(types.Bool)
	if !ok {
		return fmt.Errorf("plugins: cel expression %q did not evaluate to bool", s.source)
	}
	if !bool(b) {
		return fmt.Errorf("plugins: config failed schema %q", s.source)
	}
	return nil
}

func toDynMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return map[string]interface{}{}
	}
	return m
}
