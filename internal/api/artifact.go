package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/koopa0/relay/internal/artifact"
)

// AttachmentStore is the slice of the artifact store the handlers need.
type AttachmentStore interface {
	Save(ctx context.Context, a *artifact.Attachment) error
	Get(ctx context.Context, id uuid.UUID) (*artifact.Attachment, error)
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]*artifact.Attachment, error)
}

// artifactHandler serves attachment upload and download.
type artifactHandler struct {
	store  AttachmentStore
	logger *slog.Logger
}

// upload handles POST /api/v1/sessions/{id}/attachments (multipart form,
// "file" field).
func (h *artifactHandler) upload(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	// One extra byte over the cap so oversized uploads are detected
	// rather than silently truncated.
	r.Body = http.MaxBytesReader(w, r.Body, artifact.MaxSize+1024)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "multipart field \"file\" is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "too_large", "upload exceeds size limit")
		return
	}

	a := &artifact.Attachment{
		SessionID:   sessionID,
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	}
	err = h.store.Save(r.Context(), a)
	switch {
	case errors.Is(err, artifact.ErrUnsupportedType):
		writeError(w, http.StatusUnsupportedMediaType, "unsupported_type", err.Error())
		return
	case errors.Is(err, artifact.ErrTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, "too_large", err.Error())
		return
	case err != nil:
		h.logger.Error("saving attachment", "session_id", sessionID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to save attachment")
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

// download handles GET /api/v1/attachments/{id}, serving the raw content.
func (h *artifactHandler) download(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	a, err := h.store.Get(r.Context(), id)
	if errors.Is(err, artifact.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "attachment not found")
		return
	}
	if err != nil {
		h.logger.Error("getting attachment", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to get attachment")
		return
	}

	w.Header().Set("Content-Type", a.ContentType)
	w.Header().Set("Content-Length", strconv.FormatInt(a.Size, 10))
	w.Header().Set("Cache-Control", "private, max-age=86400")
	if _, err := w.Write(a.Data); err != nil {
		h.logger.Debug("failed to write attachment body", "id", id, "error", err)
	}
}

// listBySession handles GET /api/v1/sessions/{id}/attachments.
func (h *artifactHandler) listBySession(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	attachments, err := h.store.ListBySession(r.Context(), sessionID)
	if err != nil {
		h.logger.Error("listing attachments", "session_id", sessionID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to list attachments")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"attachments": attachments})
}
