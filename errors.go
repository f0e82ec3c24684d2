package link

import (
	"errors"
	"fmt"
)

// Kind classifies a transport failure.
type Kind int

// The different error kinds.
const (
	KindOpen Kind = iota + 1
	KindWrite
	KindRead
)

func (k Kind) String() string {
	switch k {
	case KindOpen:
		return "open"
	case KindWrite:
		return "write"
	case KindRead:
		return "read"
	default:
		return "unknown"
	}
}

// Error is returned when talking to the device fails.
type Error struct {
	Kind Kind
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Kind, e.Path, e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

var (
	// ErrTimeout is wrapped in a KindRead error when the device stays
	// silent for too many read attempts.
	ErrTimeout = errors.New("timeout while waiting for response")

	// ErrUploadRejected is returned when the device answers an upload line
	// with anything other than "ok".
	ErrUploadRejected = errors.New("upload line rejected")

	// ErrReleased is returned when a released handle is used.
	ErrReleased = errors.New("handle released")

	// ErrShutdown is returned when the link is shut down before a request
	// could be served.
	ErrShutdown = errors.New("link shut down")
)

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error

	if errors.As(err, &e) {
		return e.Kind == kind
	}

	return false
}
