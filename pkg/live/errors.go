package live

import (
	"errors"
	"fmt"
)

var (
	// ErrNotOpen is returned by Send when the session cannot accept audio
	ErrNotOpen = errors.New("live session is not open")

	// ErrSessionStarted is returned when Open is called twice on one session
	ErrSessionStarted = errors.New("live session already started")

	// ErrSessionClosed is returned when the session ended before or instead of opening
	ErrSessionClosed = errors.New("live session closed")

	// ErrNilTransport is returned when a session has no transport to dial
	ErrNilTransport = errors.New("live transport is nil")

	// ErrRemoteClosed is returned by a Conn when the remote side ended the session cleanly
	ErrRemoteClosed = errors.New("live session closed by remote")
)

// DecodeError reports one inbound audio payload that could not be played.
type DecodeError struct {
	Index    int
	MIMEType string
	Err      error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode audio part %d (%s): %v", e.Index, e.MIMEType, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }
