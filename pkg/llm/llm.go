// Package llm provides a minimal language-model access layer: free-form
// completions and schema-constrained structured invocations.
//
// The [Generator] interface is the only thing the rest of the repository
// depends on. The OpenAI implementation lives in openai.go; tests use a
// scripted in-memory generator.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
)

// ErrBadOutput is returned when model output does not conform to the
// requested schema. Callers treat this as a discard-and-retry-later
// condition, never as fatal.
var ErrBadOutput = errors.New("llm: output does not match schema")

// Request describes a single model call.
type Request struct {
	// Model overrides the generator's default model when non-empty.
	Model string

	// System is the system prompt. Optional.
	System string

	// User is the user prompt. Required.
	User string

	// Temperature, if > 0, overrides the provider default.
	Temperature float32

	// MaxTokens, if > 0, caps the generated output length.
	MaxTokens int
}

// Generator produces model output.
type Generator interface {
	// Complete returns free-form text for the request.
	Complete(ctx context.Context, req *Request) (string, error)

	// Invoke asks the model to produce output conforming to the tool's
	// argument schema and returns the raw call. The result has not been
	// validated yet; use [FuncCall.Decode].
	Invoke(ctx context.Context, req *Request, tool *FuncTool) (*FuncCall, error)
}

// FuncTool describes a structured-output target: a name, a human-readable
// description, and a JSON schema derived from a Go type.
type FuncTool struct {
	Name        string
	Description string
	Argument    *jsonschema.Schema

	resolved *jsonschema.Resolved
}

// NewFuncTool builds a FuncTool whose argument schema is derived from ArgType.
func NewFuncTool[ArgType any](name, description string) (*FuncTool, error) {
	arg, err := jsonschema.For[ArgType](nil)
	if err != nil {
		return nil, err
	}
	resolved, err := arg.Resolve(nil)
	if err != nil {
		return nil, err
	}
	return &FuncTool{
		Name:        name,
		Description: description,
		Argument:    arg,
		resolved:    resolved,
	}, nil
}

// MustNewFuncTool is like NewFuncTool but panics on error. Intended for
// package-level tool definitions.
func MustNewFuncTool[ArgType any](name, description string) *FuncTool {
	tool, err := NewFuncTool[ArgType](name, description)
	if err != nil {
		panic(err)
	}
	return tool
}

// NewFuncCall wraps raw argument JSON produced for this tool.
func (t *FuncTool) NewFuncCall(args string) *FuncCall {
	return &FuncCall{Name: t.Name, Arguments: args, tool: t}
}

// FuncCall is one structured invocation result: the raw JSON the model
// produced for a tool's argument schema.
type FuncCall struct {
	Name      string
	Arguments string

	tool *FuncTool
}

// Decode validates the raw arguments against the tool schema and unmarshals
// them into v. Any deviation from the schema — malformed JSON, unknown
// fields, wrong types — fails closed with [ErrBadOutput]. No repair of
// malformed output is attempted.
func (c *FuncCall) Decode(v any) error {
	var instance any
	if err := json.Unmarshal([]byte(c.Arguments), &instance); err != nil {
		return fmt.Errorf("%w: %v", ErrBadOutput, err)
	}
	if c.tool != nil && c.tool.resolved != nil {
		if err := c.tool.resolved.Validate(instance); err != nil {
			return fmt.Errorf("%w: %v", ErrBadOutput, err)
		}
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(c.Arguments)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrBadOutput, err)
	}
	return nil
}
