package chat

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/koopa0/relay/internal/artifact"
	"github.com/koopa0/relay/internal/mcp"
	"github.com/koopa0/relay/internal/session"
	"github.com/koopa0/relay/internal/testutil"
)

type fakeMessages struct {
	sessions map[uuid.UUID]*session.Session
	added    []*session.Message
	history  []*session.Message
}

func (f *fakeMessages) GetSession(_ context.Context, id uuid.UUID) (*session.Session, error) {
	sess, ok := f.sessions[id]
	if !ok {
		return nil, session.ErrSessionNotFound
	}
	return sess, nil
}

func (f *fakeMessages) GetMessages(context.Context, uuid.UUID, int, int) ([]*session.Message, error) {
	return f.history, nil
}

func (f *fakeMessages) AddMessage(_ context.Context, sessionID uuid.UUID, role string, parts []session.Part) (*session.Message, error) {
	msg := &session.Message{ID: uuid.New(), SessionID: sessionID, Role: role, Parts: parts}
	f.added = append(f.added, msg)
	return msg, nil
}

type fakeTools struct {
	statuses []mcp.ServerStatus
	caps     map[string]*mcp.Capabilities
	callTool func(serverID, name string, args map[string]any) (*sdk.CallToolResult, error)
	calls    []string
}

func (f *fakeTools) AllStatuses() []mcp.ServerStatus { return f.statuses }

func (f *fakeTools) Capabilities(serverID string) *mcp.Capabilities { return f.caps[serverID] }

func (f *fakeTools) CallTool(_ context.Context, serverID, name string, args map[string]any) (*sdk.CallToolResult, error) {
	f.calls = append(f.calls, serverID+"/"+name)
	return f.callTool(serverID, name, args)
}

type fakeAttachments struct {
	byID map[uuid.UUID]*artifact.Attachment
}

func (f *fakeAttachments) Get(_ context.Context, id uuid.UUID) (*artifact.Attachment, error) {
	a, ok := f.byID[id]
	if !ok {
		return nil, artifact.ErrNotFound
	}
	return a, nil
}

// fakeGen replays scripted replies, one per Generate call, emitting
// each reply's text as a single chunk.
type fakeGen struct {
	replies []*Reply
	rounds  int
	turns   [][]Turn
	defs    []ToolDef
}

func (f *fakeGen) Generate(_ context.Context, _ string, turns []Turn, tools []ToolDef, emit func(string)) (*Reply, error) {
	f.turns = append(f.turns, turns)
	f.defs = tools
	if f.rounds >= len(f.replies) {
		return nil, errors.New("no scripted reply")
	}
	reply := f.replies[f.rounds]
	f.rounds++
	if reply.Text != "" && emit != nil {
		emit(reply.Text)
	}
	return reply, nil
}

func textResult(text string) *sdk.CallToolResult {
	return &sdk.CallToolResult{Content: []sdk.Content{&sdk.TextContent{Text: text}}}
}

func connectedTools(serverID string, toolNames ...string) *fakeTools {
	caps := &mcp.Capabilities{}
	for _, name := range toolNames {
		caps.Tools = append(caps.Tools, &sdk.Tool{Name: name, Description: "test tool"})
	}
	return &fakeTools{
		statuses: []mcp.ServerStatus{{ServerID: serverID, Status: mcp.StatusConnected}},
		caps:     map[string]*mcp.Capabilities{serverID: caps},
		callTool: func(_, _ string, _ map[string]any) (*sdk.CallToolResult, error) {
			return textResult("ok"), nil
		},
	}
}

func newTestService(msgs *fakeMessages, tools *fakeTools, gen Generator) *Service {
	return NewService(msgs, tools, &fakeAttachments{}, gen, "gemini-2.5-flash", testutil.DiscardLogger())
}

func collectEvents(t *testing.T, s *Service, sessionID uuid.UUID, text string) []Event {
	t.Helper()
	var events []Event
	err := s.Stream(context.Background(), sessionID, text, nil, func(e Event) {
		events = append(events, e)
	})
	if err != nil {
		t.Fatalf("Stream() unexpected error: %v", err)
	}
	return events
}

func TestService_Stream_TextOnly(t *testing.T) {
	t.Parallel()

	sessID := uuid.New()
	msgs := &fakeMessages{sessions: map[uuid.UUID]*session.Session{sessID: {ID: sessID}}}
	gen := &fakeGen{replies: []*Reply{{Text: "hello there"}}}
	s := newTestService(msgs, &fakeTools{}, gen)

	events := collectEvents(t, s, sessID, "hi")

	if len(events) != 2 || events[0].Type != "chunk" || events[1].Type != "done" {
		t.Fatalf("events = %+v, want chunk then done", events)
	}
	if events[0].Text != "hello there" {
		t.Errorf("chunk text = %q", events[0].Text)
	}
	if len(msgs.added) != 2 {
		t.Fatalf("persisted %d messages, want 2", len(msgs.added))
	}
	if msgs.added[0].Role != session.RoleUser || msgs.added[0].Text() != "hi" {
		t.Errorf("user message = %+v", msgs.added[0])
	}
	if msgs.added[1].Role != session.RoleAssistant || msgs.added[1].Text() != "hello there" {
		t.Errorf("assistant message = %+v", msgs.added[1])
	}
}

func TestService_Stream_SessionNotFound(t *testing.T) {
	t.Parallel()

	msgs := &fakeMessages{sessions: map[uuid.UUID]*session.Session{}}
	s := newTestService(msgs, &fakeTools{}, &fakeGen{})

	err := s.Stream(context.Background(), uuid.New(), "hi", nil, func(Event) {})
	if !errors.Is(err, session.ErrSessionNotFound) {
		t.Errorf("Stream() error = %v, want ErrSessionNotFound", err)
	}
}

func TestService_Stream_ToolRoundTrip(t *testing.T) {
	t.Parallel()

	sessID := uuid.New()
	msgs := &fakeMessages{sessions: map[uuid.UUID]*session.Session{sessID: {ID: sessID}}}
	tools := connectedTools("srv-1", "lookup")
	gen := &fakeGen{replies: []*Reply{
		{Calls: []ToolCall{{Name: "lookup", Args: map[string]any{"q": "go"}}}},
		{Text: "found it"},
	}}
	s := newTestService(msgs, tools, gen)

	events := collectEvents(t, s, sessID, "look up go")

	if len(tools.calls) != 1 || tools.calls[0] != "srv-1/lookup" {
		t.Fatalf("tool calls = %v", tools.calls)
	}

	var toolEvents []*session.Invocation
	for _, e := range events {
		if e.Type == "tool" {
			toolEvents = append(toolEvents, e.Tool)
		}
	}
	if len(toolEvents) != 2 {
		t.Fatalf("got %d tool events, want 2", len(toolEvents))
	}
	if toolEvents[0].Status != session.InvocationInFlight {
		t.Errorf("first tool event status = %q", toolEvents[0].Status)
	}
	if toolEvents[1].Status != session.InvocationSucceeded || toolEvents[1].Result != "ok" {
		t.Errorf("second tool event = %+v", toolEvents[1])
	}
	if toolEvents[1].CompletedAt == nil {
		t.Error("completed invocation missing completion time")
	}

	// The model sees the catalog and the tool result round trip.
	if len(gen.defs) != 1 || gen.defs[0].Name != "lookup" {
		t.Errorf("tool defs = %+v", gen.defs)
	}
	lastTurns := gen.turns[len(gen.turns)-1]
	tail := lastTurns[len(lastTurns)-1]
	if tail.CallResult == nil || tail.CallResult.Content != "ok" {
		t.Errorf("final turn = %+v, want tool result", tail)
	}

	assistant := msgs.added[1]
	if len(assistant.Parts) != 2 {
		t.Fatalf("assistant parts = %+v, want tool and text", assistant.Parts)
	}
	if assistant.Parts[0].Type != "tool" || assistant.Parts[1].Text != "found it" {
		t.Errorf("assistant parts = %+v", assistant.Parts)
	}
}

func TestService_Stream_UnknownTool(t *testing.T) {
	t.Parallel()

	sessID := uuid.New()
	msgs := &fakeMessages{sessions: map[uuid.UUID]*session.Session{sessID: {ID: sessID}}}
	gen := &fakeGen{replies: []*Reply{
		{Calls: []ToolCall{{Name: "missing"}}},
		{Text: "sorry"},
	}}
	s := newTestService(msgs, &fakeTools{}, gen)

	events := collectEvents(t, s, sessID, "hi")

	var completed *session.Invocation
	for _, e := range events {
		if e.Type == "tool" && e.Tool.Status != session.InvocationInFlight {
			completed = e.Tool
		}
	}
	if completed == nil || completed.Status != session.InvocationFailed {
		t.Fatalf("completed invocation = %+v, want failed", completed)
	}
	if completed.Error == "" {
		t.Error("failed invocation has no error message")
	}
}

func TestService_Stream_ToolError(t *testing.T) {
	t.Parallel()

	sessID := uuid.New()
	msgs := &fakeMessages{sessions: map[uuid.UUID]*session.Session{sessID: {ID: sessID}}}
	tools := connectedTools("srv-1", "lookup")
	tools.callTool = func(_, _ string, _ map[string]any) (*sdk.CallToolResult, error) {
		return &sdk.CallToolResult{
			IsError: true,
			Content: []sdk.Content{&sdk.TextContent{Text: "backend down"}},
		}, nil
	}
	gen := &fakeGen{replies: []*Reply{
		{Calls: []ToolCall{{Name: "lookup"}}},
		{Text: "could not look that up"},
	}}
	s := newTestService(msgs, tools, gen)

	events := collectEvents(t, s, sessID, "hi")

	var completed *session.Invocation
	for _, e := range events {
		if e.Type == "tool" && e.Tool.Status != session.InvocationInFlight {
			completed = e.Tool
		}
	}
	if completed.Status != session.InvocationFailed || completed.Error != "backend down" {
		t.Errorf("completed invocation = %+v", completed)
	}

	lastTurns := gen.turns[len(gen.turns)-1]
	tail := lastTurns[len(lastTurns)-1]
	if tail.CallResult == nil || !tail.CallResult.IsError {
		t.Errorf("final turn = %+v, want error tool result", tail)
	}
}

func TestService_Stream_BoundedRounds(t *testing.T) {
	t.Parallel()

	sessID := uuid.New()
	msgs := &fakeMessages{sessions: map[uuid.UUID]*session.Session{sessID: {ID: sessID}}}
	tools := connectedTools("srv-1", "spin")

	// Every round asks for another call.
	replies := make([]*Reply, maxToolRounds+4)
	for i := range replies {
		replies[i] = &Reply{Calls: []ToolCall{{Name: "spin"}}}
	}
	gen := &fakeGen{replies: replies}
	s := newTestService(msgs, tools, gen)

	collectEvents(t, s, sessID, "go")

	if gen.rounds != maxToolRounds {
		t.Errorf("generator ran %d rounds, want %d", gen.rounds, maxToolRounds)
	}
}

func TestService_Stream_ReplaysHistory(t *testing.T) {
	t.Parallel()

	sessID := uuid.New()
	msgs := &fakeMessages{
		sessions: map[uuid.UUID]*session.Session{sessID: {ID: sessID}},
		history: []*session.Message{
			{Role: session.RoleUser, Parts: []session.Part{session.TextPart("first question")}},
			{Role: session.RoleAssistant, Parts: []session.Part{
				session.ToolPart(&session.Invocation{
					Tool:   "lookup",
					Status: session.InvocationSucceeded,
					Result: "42",
				}),
				session.TextPart("the answer is 42"),
			}},
		},
	}
	gen := &fakeGen{replies: []*Reply{{Text: "you are welcome"}}}
	s := newTestService(msgs, &fakeTools{}, gen)

	collectEvents(t, s, sessID, "thanks")

	turns := gen.turns[0]
	// first question, call, result, answer, new user turn
	if len(turns) != 5 {
		t.Fatalf("got %d turns, want 5: %+v", len(turns), turns)
	}
	if turns[0].Text != "first question" || turns[0].Role != RoleUser {
		t.Errorf("turn 0 = %+v", turns[0])
	}
	if turns[1].Call == nil || turns[1].Call.Name != "lookup" {
		t.Errorf("turn 1 = %+v, want tool call", turns[1])
	}
	if turns[2].CallResult == nil || turns[2].CallResult.Content != "42" {
		t.Errorf("turn 2 = %+v, want tool result", turns[2])
	}
	if turns[4].Text != "thanks" {
		t.Errorf("turn 4 = %+v", turns[4])
	}
}

func TestService_Stream_Attachments(t *testing.T) {
	t.Parallel()

	sessID := uuid.New()
	attID := uuid.New()
	msgs := &fakeMessages{sessions: map[uuid.UUID]*session.Session{sessID: {ID: sessID}}}
	atts := &fakeAttachments{byID: map[uuid.UUID]*artifact.Attachment{
		attID: {ID: attID, ContentType: "image/png", Data: []byte("pixels")},
	}}
	gen := &fakeGen{replies: []*Reply{{Text: "nice picture"}}}
	s := NewService(msgs, &fakeTools{}, atts, gen, "gemini-2.5-flash", testutil.DiscardLogger())

	err := s.Stream(context.Background(), sessID, "what is this", []uuid.UUID{attID}, func(Event) {})
	if err != nil {
		t.Fatalf("Stream() unexpected error: %v", err)
	}

	userTurn := gen.turns[0][len(gen.turns[0])-1]
	if len(userTurn.Images) != 1 || userTurn.Images[0].MIMEType != "image/png" {
		t.Errorf("user turn images = %+v", userTurn.Images)
	}
	if len(msgs.added[0].Parts) != 2 || msgs.added[0].Parts[1].AttachmentID != attID.String() {
		t.Errorf("user message parts = %+v", msgs.added[0].Parts)
	}
}
