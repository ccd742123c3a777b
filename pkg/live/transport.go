package live

import (
	"context"

	"github.com/lokutor-ai/luminary/pkg/audio"
)

// Transport establishes realtime connections. Dial returns once the remote
// side has accepted the session configuration.
type Transport interface {
	Dial(ctx context.Context, cfg Config) (Conn, error)
}

// Conn is an established bidirectional session. Send and Recv may be used
// from different goroutines; Recv must not be called concurrently with
// itself.
type Conn interface {
	Send(ctx context.Context, p audio.Payload) error
	// Recv blocks for the next inbound message. A clean remote close is
	// reported as io.EOF or an error wrapping ErrRemoteClosed.
	Recv(ctx context.Context) (*ServerMessage, error)
	Close() error
}
