package llm

// ToolSchema describes a callable convo function in the tool format LLM
// completion services accept.
type ToolSchema struct {
	// Name of the function
	Name string `json:"name" yaml:"name"`

	// Description comes from the doc comment above the function header
	Description string `json:"description" yaml:"description"`

	// InputSchema is the JSON Schema of the function's arguments
	InputSchema map[string]any `json:"input_schema" yaml:"input_schema"`
}

// ToolCall is a completion service's request to call a function.
type ToolCall struct {
	// ID is the unique identifier for this tool call
	ID string `json:"id" yaml:"id"`

	// Name is the function being called
	Name string `json:"name" yaml:"name"`

	// Arguments are the parameters passed to the function
	Arguments map[string]any `json:"arguments" yaml:"arguments"`
}

// ToolResult is the outcome of a ToolCall, ready to be sent back.
type ToolResult struct {
	ID      string `json:"id" yaml:"id"`
	Name    string `json:"name" yaml:"name"`
	Value   any    `json:"value,omitempty" yaml:"value,omitempty"`
	Error   string `json:"error,omitempty" yaml:"error,omitempty"`
	IsError bool   `json:"isError,omitempty" yaml:"isError,omitempty"`
}
