package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kaptinlin/jsonrepair"

	"github.com/parley-ai/parley/core"
	"github.com/parley-ai/parley/internal/schema"
)

// FormatError reports typed output that could not be decoded against the
// requested schema. It is distinct from provider failures: the turn itself
// succeeded but the model's final answer is malformed.
type FormatError struct {
	Output string
	Err    error
}

// Error implements the error interface.
func (e *FormatError) Error() string {
	return fmt.Sprintf("malformed typed output: %v", e.Err)
}

// Unwrap returns the underlying decode error.
func (e *FormatError) Unwrap() error { return e.Err }

// Unmarshal decodes a typed-output result into T. Models occasionally wrap
// or truncate their JSON; a repair pass is attempted before giving up.
// Decode failure yields a *FormatError.
func Unmarshal[T any](res core.ChatResult) (T, error) {
	var v T
	if err := json.Unmarshal([]byte(res.Output), &v); err == nil {
		return v, nil
	}

	repaired, err := jsonrepair.JSONRepair(res.Output)
	if err != nil {
		return v, &FormatError{Output: res.Output, Err: err}
	}
	if err := json.Unmarshal([]byte(repaired), &v); err != nil {
		return v, &FormatError{Output: res.Output, Err: err}
	}
	return v, nil
}

// SendAs sends a prompt requesting output shaped like T, deriving the JSON
// schema from T's fields, and decodes the final answer.
func SendAs[T any](ctx context.Context, a *Agent, prompt string, optFns ...func(o *SendOptions)) (T, error) {
	var v T
	optFns = append(optFns, WithOutputSchema(schema.FromStruct(v)))
	res, err := a.Send(ctx, prompt, optFns...)
	if err != nil {
		return v, err
	}
	return Unmarshal[T](res)
}
