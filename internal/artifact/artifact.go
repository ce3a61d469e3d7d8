// Package artifact stores images uploaded into chat sessions.
package artifact

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MaxSize is the largest accepted upload.
const MaxSize = 8 << 20 // 8 MiB

// Sentinel errors, checked with errors.Is.
var (
	// ErrNotFound indicates the requested attachment does not exist.
	ErrNotFound = errors.New("attachment not found")

	// ErrUnsupportedType indicates a content type outside the image whitelist.
	ErrUnsupportedType = errors.New("unsupported content type")

	// ErrTooLarge indicates the upload exceeds MaxSize.
	ErrTooLarge = errors.New("attachment too large")
)

// allowedTypes is the whitelist of accepted image content types.
var allowedTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/webp": true,
	"image/gif":  true,
}

// Attachment is one uploaded image, stored inline.
type Attachment struct {
	ID          uuid.UUID `json:"id"`
	SessionID   uuid.UUID `json:"sessionId"`
	Filename    string    `json:"filename"`
	ContentType string    `json:"contentType"`
	Size        int64     `json:"size"`
	Data        []byte    `json:"-"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Validate checks the attachment against the type whitelist and size cap.
func (a *Attachment) Validate() error {
	if !allowedTypes[a.ContentType] {
		return fmt.Errorf("%w: %q", ErrUnsupportedType, a.ContentType)
	}
	if int64(len(a.Data)) > MaxSize {
		return fmt.Errorf("%w: %d bytes", ErrTooLarge, len(a.Data))
	}
	if a.Filename == "" {
		a.Filename = "upload"
	}
	a.Size = int64(len(a.Data))
	return nil
}
