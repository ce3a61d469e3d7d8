package chat

import "context"

// ToolDef describes one callable tool advertised to the model.
type ToolDef struct {
	Name        string
	Description string
	InputSchema any
}

// Turn is one entry of the conversation sent to the provider.
type Turn struct {
	Role       string // "user" or "model"
	Text       string
	Images     []Image
	Call       *ToolCall
	CallResult *ToolResult
}

// Image is inline image content attached to a turn.
type Image struct {
	MIMEType string
	Data     []byte
}

// ToolCall is a function call requested by the model.
type ToolCall struct {
	Name string
	Args map[string]any
}

// ToolResult carries the outcome of a tool call back to the model.
type ToolResult struct {
	Name    string
	Content string
	IsError bool
}

// Reply is the final output of one generation round.
type Reply struct {
	Text  string
	Calls []ToolCall
}

// Generator streams one round of model output. Text is delivered
// incrementally through emit; the returned Reply holds the accumulated
// text and any function calls the model requested.
type Generator interface {
	Generate(ctx context.Context, model string, turns []Turn, tools []ToolDef, emit func(text string)) (*Reply, error)
}
