package dsl

import (
	"context"
	"fmt"

	"github.com/everydev1618/goconvo/llm"
	"github.com/everydev1618/goconvo/schema"
)

// ToolSchemas returns the tool definitions of every function an external
// orchestrator may call: local, proxy and top-level functions are left out.
func (c *Context) ToolSchemas(messages []*Message) ([]llm.ToolSchema, error) {
	var out []llm.ToolSchema
	for _, msg := range messages {
		fn := msg.Fn
		if fn == nil || fn.Local || fn.Call || fn.TopLevel {
			continue
		}
		var (
			s   schema.Schema
			err error
		)
		c.exclusive(func() {
			s, err = c.ArgsSchema(fn)
		})
		if err != nil {
			return nil, fmt.Errorf("tool %s: %w", fn.Name, err)
		}
		input := s.JSONSchema()
		if _, ok := input["type"]; !ok {
			input = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		out = append(out, llm.ToolSchema{
			Name:        fn.Name,
			Description: fn.Description,
			InputSchema: input,
		})
	}
	return out, nil
}

// CallTool runs a registered function on behalf of a completion service
// and waits for its result.
func (c *Context) CallTool(ctx context.Context, call llm.ToolCall) llm.ToolResult {
	res := llm.ToolResult{ID: call.ID, Name: call.Name}
	fn, ok := c.functions[call.Name]
	if !ok {
		res.IsError = true
		res.Error = (&ExecError{Err: ErrFunctionNotDefined, Detail: call.Name}).Error()
		return res
	}
	v, err := c.ExecuteFunctionAsync(fn, call.Arguments).Wait(ctx)
	if err != nil {
		res.IsError = true
		res.Error = err.Error()
		return res
	}
	res.Value = v
	return res
}
