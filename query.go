package tob

import (
	"fmt"

	"github.com/expr-lang/expr"

	"github.com/signadot/tob-format/go-tob/format"
)

// Query evaluates an expression against one encoded document and
// returns the resulting Go value. The document is bound as `doc`; when
// it is a map its top-level fields are bound by name as well, so
// `doc.user.name` and `user.name` address the same element.
func Query(data []byte, code string) (any, error) {
	v, err := Decode(data)
	if err != nil {
		return nil, err
	}
	env := map[string]any{"doc": v}
	if m, ok := v.(map[string]any); ok {
		for k, fv := range m {
			if k == "doc" {
				continue
			}
			env[k] = fv
		}
	}
	program, err := expr.Compile(code, expr.Env(env), expr.AllowUndefinedVariables())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", format.ErrData, err)
	}
	out, err := expr.Run(program, env)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", format.ErrData, err)
	}
	return out, nil
}

// QueryEncode evaluates an expression and re-encodes the result as a
// document of its own.
func QueryEncode(data []byte, code string) ([]byte, error) {
	v, err := Query(data, code)
	if err != nil {
		return nil, err
	}
	return Encode(v)
}
