package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/koopa0/relay/internal/chat"
	"github.com/koopa0/relay/internal/session"
)

// Streamer runs one streamed chat exchange, delivering events through emit.
type Streamer interface {
	Stream(ctx context.Context, sessionID uuid.UUID, text string, attachmentIDs []uuid.UUID, emit func(chat.Event)) error
}

// chatHandler serves the SSE chat endpoint.
type chatHandler struct {
	streamer Streamer
	logger   *slog.Logger
}

type chatRequest struct {
	SessionID     uuid.UUID   `json:"sessionId"`
	Text          string      `json:"text"`
	AttachmentIDs []uuid.UUID `json:"attachmentIds,omitempty"`
}

// stream handles POST /api/v1/chat/stream.
//
// Event types:
//   - chunk: partial model text {"type":"chunk","text":"..."}
//   - tool:  tool invocation state {"type":"tool","tool":{...}}
//   - done:  stream finished {"type":"done"}
//   - error: stream failed {"code":"...","message":"..."}
func (h *chatHandler) stream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		h.logger.Error("streaming not supported")
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.SessionID == uuid.Nil {
		writeError(w, http.StatusBadRequest, "missing_session_id", "sessionId is required")
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "missing_text", "text is required")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // disable nginx buffering

	ctx := r.Context()
	err := h.streamer.Stream(ctx, req.SessionID, req.Text, req.AttachmentIDs, func(e chat.Event) {
		select {
		case <-ctx.Done():
			return
		default:
		}
		writeSSE(w, flusher, e.Type, e)
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			h.logger.Info("client disconnected", "session_id", req.SessionID)
			return
		}
		code := "stream_error"
		if errors.Is(err, session.ErrSessionNotFound) {
			code = "session_not_found"
		}
		h.logger.Error("chat stream failed", "session_id", req.SessionID, "error", err)
		writeSSE(w, flusher, "error", errorDetail{Code: code, Message: err.Error()})
	}
}

// writeSSE writes one named event to the stream and flushes it.
func writeSSE(w http.ResponseWriter, flusher http.Flusher, event string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		slog.Error("failed to encode SSE event", "event", event, "error", err)
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload)
	flusher.Flush()
}
