// Package llm holds the tool-call shapes exchanged with LLM completion
// services.
//
// # Tool Schemas
//
// Every non-local convo function can be advertised as a tool:
//
//	schemas, err := ctx.ToolSchemas(result.Messages)
//
// # Tool Calls
//
// When the model asks for a function, hand the call back to the context:
//
//	res := ctx.CallTool(reqCtx, llm.ToolCall{ID: "t1", Name: "add", Arguments: args})
//	if res.IsError {
//	    // res.Error describes the failure
//	}
package llm
