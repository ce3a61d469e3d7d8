// Package session provides PostgreSQL persistence for chat sessions and
// their messages.
package session

import (
	"time"

	"github.com/google/uuid"
)

// Role constants define valid message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Tool invocation lifecycle states, persisted inside message parts.
const (
	InvocationInFlight  = "in-flight"
	InvocationSucceeded = "succeeded"
	InvocationFailed    = "failed"
)

// Session represents one conversation.
type Session struct {
	ID           uuid.UUID `json:"id"`
	Title        string    `json:"title"`
	ModelName    string    `json:"modelName"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
	MessageCount int       `json:"messageCount"`
}

// Part is one unit of message content, stored as JSONB. Exactly one of the
// payload fields is set, discriminated by Type.
type Part struct {
	Type         string      `json:"type"` // "text" | "tool" | "attachment"
	Text         string      `json:"text,omitempty"`
	Tool         *Invocation `json:"tool,omitempty"`
	AttachmentID string      `json:"attachmentId,omitempty"`
}

// Invocation is a single tool call as seen by the conversation: transient
// from the registry's point of view, persisted here only as opaque message
// content.
type Invocation struct {
	ID          string         `json:"id"`
	ServerID    string         `json:"serverId"`
	Tool        string         `json:"tool"`
	Arguments   map[string]any `json:"arguments,omitempty"`
	Status      string         `json:"status"`
	Result      string         `json:"result,omitempty"`
	Error       string         `json:"error,omitempty"`
	StartedAt   time.Time      `json:"startedAt"`
	CompletedAt *time.Time     `json:"completedAt,omitempty"`
}

// Message is a single conversation message.
type Message struct {
	ID             uuid.UUID `json:"id"`
	SessionID      uuid.UUID `json:"sessionId"`
	Role           string    `json:"role"`
	Parts          []Part    `json:"parts"`
	SequenceNumber int       `json:"sequenceNumber"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Text concatenates the message's text parts.
func (m *Message) Text() string {
	var out string
	for _, p := range m.Parts {
		if p.Type == "text" {
			out += p.Text
		}
	}
	return out
}

// TextPart builds a plain text part.
func TextPart(text string) Part {
	return Part{Type: "text", Text: text}
}

// ToolPart builds a part carrying a tool invocation record.
func ToolPart(inv *Invocation) Part {
	return Part{Type: "tool", Tool: inv}
}
