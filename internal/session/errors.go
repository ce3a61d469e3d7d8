package session

import "errors"

// Pagination limits for message loading.
const (
	// DefaultMessageLimit is the default number of messages loaded per page.
	DefaultMessageLimit = 100

	// MaxMessageLimit is the absolute maximum to prevent unbounded loads.
	MaxMessageLimit = 10000
)

// Sentinel errors for session operations, checked with errors.Is.
var (
	// ErrSessionNotFound indicates the requested session does not exist.
	ErrSessionNotFound = errors.New("session not found")

	// ErrInvalidRole indicates a message role outside the allowed set.
	ErrInvalidRole = errors.New("invalid message role")
)
