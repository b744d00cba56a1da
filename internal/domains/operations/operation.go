package operations

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"github.com/dcarrith/chaimcp/internal/adapters/chiarpc"
)

type ParamType string

const (
	ParamInteger ParamType = "integer"
	ParamString  ParamType = "string"
	ParamBoolean ParamType = "boolean"
)

type Param struct {
	Name        string
	Type        ParamType
	Description string
	Required    bool
	Default     any
}

// Handler receives arguments already validated against the operation's params.
type Handler func(ctx context.Context, body map[string]any) (chiarpc.Result, error)

type Operation struct {
	Name        string
	Service     string
	Endpoint    string
	Description string
	Params      []Param
	Handler     Handler
}

// BackendEndpoint is the path segment POSTed to; it defaults to the operation name.
func (op Operation) BackendEndpoint() string {
	if op.Endpoint != "" {
		return op.Endpoint
	}
	return op.Name
}

// InputSchema renders params as a JSON Schema object for tools/list.
func (op Operation) InputSchema() map[string]any {
	props := make(map[string]any, len(op.Params))
	required := make([]string, 0, len(op.Params))
	for _, p := range op.Params {
		prop := map[string]any{"type": string(p.Type)}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		if p.Default != nil {
			prop["default"] = p.Default
		}
		props[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}
	schema := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func (op Operation) bindArguments(args map[string]any) (map[string]any, error) {
	known := make(map[string]Param, len(op.Params))
	for _, p := range op.Params {
		known[p.Name] = p
	}
	unexpected := make([]string, 0)
	for name := range args {
		if _, ok := known[name]; !ok {
			unexpected = append(unexpected, name)
		}
	}
	if len(unexpected) > 0 {
		sort.Strings(unexpected)
		return nil, fmt.Errorf("%w: unexpected argument %q", ErrInvalidArguments, unexpected[0])
	}

	body := make(map[string]any, len(op.Params))
	for _, p := range op.Params {
		raw, present := args[p.Name]
		if !present || raw == nil {
			switch {
			case p.Default != nil:
				body[p.Name] = p.Default
			case p.Required:
				return nil, fmt.Errorf("%w: missing required argument %q", ErrInvalidArguments, p.Name)
			}
			continue
		}
		value, err := coerce(p, raw)
		if err != nil {
			return nil, err
		}
		body[p.Name] = value
	}
	return body, nil
}

func coerce(p Param, raw any) (any, error) {
	switch p.Type {
	case ParamInteger:
		switch v := raw.(type) {
		case int:
			return int64(v), nil
		case int64:
			return v, nil
		case float64:
			if v == math.Trunc(v) && !math.IsInf(v, 0) {
				return int64(v), nil
			}
		case json.Number:
			if n, err := v.Int64(); err == nil {
				return n, nil
			}
		}
	case ParamString:
		if v, ok := raw.(string); ok {
			return v, nil
		}
	case ParamBoolean:
		if v, ok := raw.(bool); ok {
			return v, nil
		}
	}
	return nil, fmt.Errorf("%w: argument %q must be %s", ErrInvalidArguments, p.Name, p.Type)
}
