// Package chat runs streamed conversations against the Gemini API,
// resolving the model's function calls through connected MCP servers.
package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/koopa0/relay/internal/artifact"
	"github.com/koopa0/relay/internal/mcp"
	"github.com/koopa0/relay/internal/session"
)

// Role values for conversation turns.
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// maxToolRounds bounds how many times one request may loop through
// model output and tool execution.
const maxToolRounds = 8

// Event is one item of a streamed chat response.
type Event struct {
	Type string              `json:"type"` // "chunk" | "tool" | "done"
	Text string              `json:"text,omitempty"`
	Tool *session.Invocation `json:"tool,omitempty"`
}

// MessageStore is the slice of the session store the chat service needs.
type MessageStore interface {
	GetSession(ctx context.Context, id uuid.UUID) (*session.Session, error)
	GetMessages(ctx context.Context, sessionID uuid.UUID, limit, offset int) ([]*session.Message, error)
	AddMessage(ctx context.Context, sessionID uuid.UUID, role string, parts []session.Part) (*session.Message, error)
}

// ToolSource exposes connected MCP servers and their tools.
type ToolSource interface {
	AllStatuses() []mcp.ServerStatus
	Capabilities(serverID string) *mcp.Capabilities
	CallTool(ctx context.Context, serverID, name string, args map[string]any) (*sdk.CallToolResult, error)
}

// AttachmentLoader fetches attachment content for inline image turns.
type AttachmentLoader interface {
	Get(ctx context.Context, id uuid.UUID) (*artifact.Attachment, error)
}

// Service orchestrates one streamed chat exchange.
type Service struct {
	messages    MessageStore
	tools       ToolSource
	attachments AttachmentLoader
	gen         Generator
	model       string
	logger      *slog.Logger
}

// NewService creates a chat service. model is the default used when a
// session has none. logger may be nil.
func NewService(messages MessageStore, tools ToolSource, attachments AttachmentLoader, gen Generator, model string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		messages:    messages,
		tools:       tools,
		attachments: attachments,
		gen:         gen,
		model:       model,
		logger:      logger,
	}
}

// Stream runs one exchange: persists the user message, streams model
// output through emit, executes requested tool calls against connected
// MCP servers, and persists the assistant message when the loop ends.
func (s *Service) Stream(ctx context.Context, sessionID uuid.UUID, text string, attachmentIDs []uuid.UUID, emit func(Event)) error {
	sess, err := s.messages.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	model := sess.ModelName
	if model == "" {
		model = s.model
	}

	history, err := s.messages.GetMessages(ctx, sessionID, session.MaxMessageLimit, 0)
	if err != nil {
		return err
	}

	userParts := []session.Part{session.TextPart(text)}
	images := make([]Image, 0, len(attachmentIDs))
	for _, id := range attachmentIDs {
		a, err := s.attachments.Get(ctx, id)
		if err != nil {
			return fmt.Errorf("loading attachment %s: %w", id, err)
		}
		userParts = append(userParts, session.Part{Type: "attachment", AttachmentID: id.String()})
		images = append(images, Image{MIMEType: a.ContentType, Data: a.Data})
	}
	if _, err := s.messages.AddMessage(ctx, sessionID, session.RoleUser, userParts); err != nil {
		return err
	}

	turns := historyTurns(history)
	turns = append(turns, Turn{Role: RoleUser, Text: text, Images: images})

	defs, owners := s.toolCatalog()

	var assistantParts []session.Part
	for round := 0; round < maxToolRounds; round++ {
		reply, err := s.gen.Generate(ctx, model, turns, defs, func(chunk string) {
			emit(Event{Type: "chunk", Text: chunk})
		})
		if err != nil {
			return err
		}
		if reply.Text != "" {
			assistantParts = append(assistantParts, session.TextPart(reply.Text))
			turns = append(turns, Turn{Role: RoleModel, Text: reply.Text})
		}
		if len(reply.Calls) == 0 {
			break
		}

		for _, call := range reply.Calls {
			inv := s.execute(ctx, owners, call, emit)
			assistantParts = append(assistantParts, session.ToolPart(inv))
			turns = append(turns,
				Turn{Role: RoleModel, Call: &call},
				Turn{Role: RoleUser, CallResult: &ToolResult{
					Name:    call.Name,
					Content: resultContent(inv),
					IsError: inv.Status == session.InvocationFailed,
				}},
			)
		}
	}

	if len(assistantParts) > 0 {
		if _, err := s.messages.AddMessage(ctx, sessionID, session.RoleAssistant, assistantParts); err != nil {
			return err
		}
	}
	emit(Event{Type: "done"})
	return nil
}

// execute runs one tool call and returns its completed invocation record.
// Both the in-flight and completed states are emitted.
func (s *Service) execute(ctx context.Context, owners map[string]string, call ToolCall, emit func(Event)) *session.Invocation {
	inv := &session.Invocation{
		ID:        uuid.NewString(),
		ServerID:  owners[call.Name],
		Tool:      call.Name,
		Arguments: call.Args,
		Status:    session.InvocationInFlight,
		StartedAt: time.Now().UTC(),
	}
	emit(Event{Type: "tool", Tool: inv})

	result, err := s.invoke(ctx, inv)
	done := time.Now().UTC()
	inv.CompletedAt = &done
	switch {
	case err != nil:
		inv.Status = session.InvocationFailed
		inv.Error = err.Error()
	case result.IsError:
		inv.Status = session.InvocationFailed
		inv.Error = flattenContent(result)
	default:
		inv.Status = session.InvocationSucceeded
		inv.Result = flattenContent(result)
	}

	s.logger.Debug("tool call finished",
		"server_id", inv.ServerID, "tool", inv.Tool, "status", inv.Status)
	emit(Event{Type: "tool", Tool: inv})
	return inv
}

func (s *Service) invoke(ctx context.Context, inv *session.Invocation) (*sdk.CallToolResult, error) {
	if inv.ServerID == "" {
		return nil, fmt.Errorf("no connected server provides tool %q", inv.Tool)
	}
	return s.tools.CallTool(ctx, inv.ServerID, inv.Tool, inv.Arguments)
}

// toolCatalog gathers tool declarations across connected servers and
// maps each tool name to the server that owns it. On a name collision
// the first connected server wins.
func (s *Service) toolCatalog() ([]ToolDef, map[string]string) {
	var defs []ToolDef
	owners := make(map[string]string)
	for _, status := range s.tools.AllStatuses() {
		if status.Status != mcp.StatusConnected {
			continue
		}
		caps := s.tools.Capabilities(status.ServerID)
		if caps == nil {
			continue
		}
		for _, tool := range caps.Tools {
			if _, taken := owners[tool.Name]; taken {
				s.logger.Warn("duplicate tool name, keeping first",
					"tool", tool.Name, "server_id", status.ServerID)
				continue
			}
			owners[tool.Name] = status.ServerID
			defs = append(defs, ToolDef{
				Name:        tool.Name,
				Description: tool.Description,
				InputSchema: tool.InputSchema,
			})
		}
	}
	return defs, owners
}

// historyTurns converts persisted messages into provider turns. Tool
// invocation records replay as a call turn followed by its result.
func historyTurns(history []*session.Message) []Turn {
	var turns []Turn
	for _, msg := range history {
		role := RoleUser
		if msg.Role != session.RoleUser {
			role = RoleModel
		}
		for _, part := range msg.Parts {
			switch part.Type {
			case "text":
				turns = append(turns, Turn{Role: role, Text: part.Text})
			case "tool":
				if part.Tool == nil {
					continue
				}
				turns = append(turns,
					Turn{Role: RoleModel, Call: &ToolCall{
						Name: part.Tool.Tool,
						Args: part.Tool.Arguments,
					}},
					Turn{Role: RoleUser, CallResult: &ToolResult{
						Name:    part.Tool.Tool,
						Content: part.Tool.Result,
						IsError: part.Tool.Status == session.InvocationFailed,
					}},
				)
			}
		}
	}
	return turns
}

func resultContent(inv *session.Invocation) string {
	if inv.Status == session.InvocationFailed {
		return inv.Error
	}
	return inv.Result
}

// flattenContent joins the text blocks of a tool result.
func flattenContent(result *sdk.CallToolResult) string {
	var parts []string
	for _, content := range result.Content {
		if text, ok := content.(*sdk.TextContent); ok {
			parts = append(parts, text.Text)
		}
	}
	return strings.Join(parts, "\n")
}
