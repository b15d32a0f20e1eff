package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"tutor-dispatch/internal/domain"
)

// SchemaValidatingTool checks model-supplied arguments against the tool's
// own parameter schema, so a malformed call is answered with a readable
// error instead of reaching the tool.
type SchemaValidatingTool struct {
	inner  domain.Tool
	schema *jsonschema.Schema
}

// WithSchemaValidation returns t unchanged when it declares no parameters.
func WithSchemaValidation(t domain.Tool) (domain.Tool, error) {
	raw := t.Schema().Parameters
	if len(raw) == 0 || string(raw) == "null" {
		return t, nil
	}
	url := t.Name() + ".schema.json"
	c := jsonschema.NewCompiler()
	if err := c.AddResource(url, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("tool %q schema: %w", t.Name(), err)
	}
	schema, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("tool %q schema: %w", t.Name(), err)
	}
	return &SchemaValidatingTool{inner: t, schema: schema}, nil
}

func (s *SchemaValidatingTool) Name() string              { return s.inner.Name() }
func (s *SchemaValidatingTool) Description() string       { return s.inner.Description() }
func (s *SchemaValidatingTool) Schema() domain.ToolSchema { return s.inner.Schema() }

func (s *SchemaValidatingTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	if len(params) == 0 {
		params = json.RawMessage(`{}`)
	}
	dec := json.NewDecoder(bytes.NewReader(params))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return ErrResult("invalid JSON: %v", err), nil
	}
	if err := s.schema.Validate(doc); err != nil {
		return ErrResult("schema validation failed: %s", leafErrors(err)), nil
	}
	return s.inner.Execute(ctx, params)
}

// leafErrors reports only the innermost causes, one "location: message"
// per violation, e.g. "/: missing properties: 'equation'".
func leafErrors(err error) string {
	var root *jsonschema.ValidationError
	if !errors.As(err, &root) {
		return err.Error()
	}
	var out []string
	stack := []*jsonschema.ValidationError{root}
	for len(stack) > 0 {
		e := stack[0]
		stack = stack[1:]
		if len(e.Causes) > 0 {
			stack = append(append([]*jsonschema.ValidationError(nil), e.Causes...), stack...)
			continue
		}
		loc := e.InstanceLocation
		if loc == "" {
			loc = "/"
		}
		out = append(out, loc+": "+e.Message)
	}
	return strings.Join(out, "; ")
}
