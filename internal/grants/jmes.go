package grants

import (
	"fmt"

	"github.com/goccy/go-json"
	"github.com/jmespath/go-jmespath"
)

// EvalAny returns the raw value selected by the JMESPath expression.
// It returns nil and no error if the expression does not match anything,
// the same as the expression evaluating to `null`.
func EvalAny(expression string, payload map[string]any) (any, error) {
	v, err := jmespath.Search(expression, payload)
	if err != nil {
		return nil, fmt.Errorf("jmespath: %w", err)
	}
	return v, nil
}

// EvalString coerces the selection to string; non-strings are JSON-encoded.
func EvalString(expression string, payload map[string]any) (*string, error) {
	v, err := EvalAny(expression, payload)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}
	switch t := v.(type) {
	case string:
		return &t, nil
	default:
		b, _ := json.Marshal(t)
		bs := string(b)
		return &bs, nil
	}
}
