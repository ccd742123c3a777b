package live

import (
	"log/slog"

	"github.com/lokutor-ai/luminary/pkg/audio"
)

type Logger interface {
	Debug(msg string, args ...interface{})

	Info(msg string, args ...interface{})

	Warn(msg string, args ...interface{})

	Error(msg string, args ...interface{})
}

type NoOpLogger struct{}

func (n *NoOpLogger) Debug(msg string, args ...interface{}) {}
func (n *NoOpLogger) Info(msg string, args ...interface{})  {}
func (n *NoOpLogger) Warn(msg string, args ...interface{})  {}
func (n *NoOpLogger) Error(msg string, args ...interface{}) {}

// SlogLogger forwards to a *slog.Logger.
type SlogLogger struct {
	l *slog.Logger
}

// NewSlogLogger wraps l, or slog.Default() when l is nil.
func NewSlogLogger(l *slog.Logger) *SlogLogger {
	if l == nil {
		l = slog.Default()
	}
	return &SlogLogger{l: l}
}

func (s *SlogLogger) Debug(msg string, args ...interface{}) { s.l.Debug(msg, args...) }
func (s *SlogLogger) Info(msg string, args ...interface{})  { s.l.Info(msg, args...) }
func (s *SlogLogger) Warn(msg string, args ...interface{})  { s.l.Warn(msg, args...) }
func (s *SlogLogger) Error(msg string, args ...interface{}) { s.l.Error(msg, args...) }

// State is the lifecycle position of a Session.
type State int

const (
	StateIdle State = iota
	StateOpening
	StateOpen
	StateClosing
	StateClosed
	// StateErrored is terminal. An errored session is discarded, never resumed.
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateOpening:
		return "opening"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	case StateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions can happen.
func (s State) Terminal() bool {
	return s == StateClosed || s == StateErrored
}

var transitions = map[State][]State{
	StateIdle:    {StateOpening, StateClosed},
	StateOpening: {StateOpen, StateClosing, StateErrored},
	StateOpen:    {StateClosing, StateErrored},
	StateClosing: {StateClosed},
}

func canTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

type Modality string

const (
	ModalityAudio Modality = "AUDIO"
	ModalityText  Modality = "TEXT"
)

// Config describes the session requested from the remote endpoint.
type Config struct {
	Model             string
	Modality          Modality
	Voice             string
	SystemInstruction string
}

// ServerMessage is one inbound frame from the remote session.
type ServerMessage struct {
	Audio            []audio.Payload
	Text             string
	InputTranscript  string
	OutputTranscript string
	TurnComplete     bool
	// Interrupted is set when the remote side cut its own turn short
	// because the user started talking.
	Interrupted bool
}

type EventType string

const (
	EventOpen    EventType = "OPEN"
	EventMessage EventType = "MESSAGE"
	EventClose   EventType = "CLOSE"
	EventError   EventType = "ERROR"
)

// Event is delivered on Session.Events. A session emits at most one
// EventOpen, then any number of EventMessage, then exactly one of
// EventClose or EventError, after which the channel is closed.
type Event struct {
	Type      EventType
	SessionID string
	Message   *ServerMessage
	Err       error
}

// Transcript is a piece of text produced during a live session.
type Transcript struct {
	// Speaker is "user" or "model".
	Speaker string
	Text    string
}
