package live

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
	"github.com/lokutor-ai/luminary/pkg/audio"
	"golang.org/x/sync/errgroup"
)

const defaultEventBuffer = 256

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session logger.
func WithLogger(l Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithEventBuffer sets the capacity of the events channel.
func WithEventBuffer(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.events = make(chan Event, n)
		}
	}
}

// WithID overrides the generated session id.
func WithID(id string) Option {
	return func(s *Session) {
		if id != "" {
			s.id = id
		}
	}
}

// Session is one realtime connection. It moves Idle -> Opening -> Open ->
// Closing -> Closed, or ends in Errored from Opening or Open. Sessions are
// single use: once terminal, create a new one.
type Session struct {
	id        string
	transport Transport
	cfg       Config
	logger    Logger

	mu      sync.Mutex
	state   State
	err     error
	queue   []audio.Payload
	dropped int
	cancel  context.CancelFunc

	wake      chan struct{}
	events    chan Event
	ready     chan struct{}
	readyOnce sync.Once
	done      chan struct{}
}

// NewSession creates an idle session that will dial t with cfg.
func NewSession(t Transport, cfg Config, opts ...Option) *Session {
	s := &Session{
		id:        uuid.NewString(),
		transport: t,
		cfg:       cfg,
		logger:    &NoOpLogger{},
		wake:      make(chan struct{}, 1),
		events:    make(chan Event, defaultEventBuffer),
		ready:     make(chan struct{}),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Session) ID() string { return s.id }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the fault that moved the session to Errored, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Dropped returns how many payloads were refused or discarded unsent.
func (s *Session) Dropped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Events returns the lifecycle and message stream of the session.
func (s *Session) Events() <-chan Event { return s.events }

// Done is closed once the session is terminal and its goroutines are gone.
func (s *Session) Done() <-chan struct{} { return s.done }

// Open starts connecting in the background and returns immediately. ctx
// bounds the whole lifetime of the session, not just the handshake.
// Network failures are reported through Events and Wait, never here.
func (s *Session) Open(ctx context.Context) error {
	if s.transport == nil {
		return ErrNilTransport
	}

	s.mu.Lock()
	switch {
	case s.state.Terminal():
		s.mu.Unlock()
		return ErrSessionClosed
	case s.state != StateIdle:
		s.mu.Unlock()
		return ErrSessionStarted
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.setState(StateOpening)
	s.mu.Unlock()

	go s.run(runCtx)
	return nil
}

// Wait blocks until the session is Open or has failed to open.
func (s *Session) Wait(ctx context.Context) error {
	select {
	case <-s.ready:
	case <-ctx.Done():
		return ctx.Err()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StateOpen:
		return nil
	case StateErrored:
		return s.err
	default:
		return ErrSessionClosed
	}
}

// Send queues p for delivery. It never blocks on the network. Payloads
// sent while Opening are held and flushed, in order, once Open.
func (s *Session) Send(p audio.Payload) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateOpening, StateOpen:
		s.queue = append(s.queue, p)
		select {
		case s.wake <- struct{}{}:
		default:
		}
		return nil
	default:
		s.dropped++
		return ErrNotOpen
	}
}

// Close ends the session and waits for it to wind down. It is safe to call
// any number of times, in any state.
func (s *Session) Close() error {
	s.mu.Lock()
	switch s.state {
	case StateIdle:
		s.setState(StateClosed)
		s.mu.Unlock()
		s.readyOnce.Do(func() { close(s.ready) })
		s.emitTerminal(Event{Type: EventClose, SessionID: s.id})
		close(s.events)
		close(s.done)
		return nil
	case StateOpening, StateOpen:
		s.setState(StateClosing)
		cancel := s.cancel
		s.mu.Unlock()
		cancel()
	default:
		s.mu.Unlock()
	}
	<-s.done
	return nil
}

func (s *Session) run(ctx context.Context) {
	defer close(s.done)

	conn, err := s.transport.Dial(ctx, s.cfg)
	if err != nil {
		s.finish(ctx, fmt.Errorf("live: dial: %w", err))
		return
	}

	s.mu.Lock()
	if s.state != StateOpening {
		// Close won the race against a successful handshake.
		s.mu.Unlock()
		conn.Close()
		s.finish(ctx, nil)
		return
	}
	s.setState(StateOpen)
	s.mu.Unlock()
	s.readyOnce.Do(func() { close(s.ready) })

	s.emit(ctx, Event{Type: EventOpen, SessionID: s.id})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.readLoop(gctx, conn) })
	g.Go(func() error { return s.writeLoop(gctx, conn) })
	err = g.Wait()

	if cerr := conn.Close(); cerr != nil {
		s.logger.Debug("live conn close", "sessionID", s.id, "error", cerr)
	}
	s.finish(ctx, err)
}

func (s *Session) readLoop(ctx context.Context, conn Conn) error {
	for {
		msg, err := conn.Recv(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return ErrRemoteClosed
			}
			return err
		}
		if msg == nil {
			continue
		}
		if !s.emit(ctx, Event{Type: EventMessage, SessionID: s.id, Message: msg}) {
			return ctx.Err()
		}
	}
}

func (s *Session) writeLoop(ctx context.Context, conn Conn) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.wake:
		}

		for {
			s.mu.Lock()
			batch := s.queue
			s.queue = nil
			s.mu.Unlock()
			if len(batch) == 0 {
				break
			}
			for i, p := range batch {
				if err := conn.Send(ctx, p); err != nil {
					s.mu.Lock()
					s.dropped += len(batch) - i
					s.mu.Unlock()
					if ctx.Err() != nil {
						return ctx.Err()
					}
					return fmt.Errorf("live: send audio: %w", err)
				}
			}
		}
	}
}

// finish performs the single terminal transition and emits its event.
func (s *Session) finish(ctx context.Context, err error) {
	s.mu.Lock()
	if n := len(s.queue); n > 0 {
		s.dropped += n
		s.logger.Debug("discarding unsent audio", "sessionID", s.id, "dropped", n)
	}
	s.queue = nil

	closed := ctx.Err() != nil || s.state == StateClosing ||
		(s.state == StateOpen && errors.Is(err, ErrRemoteClosed))

	var ev Event
	if closed {
		if s.state != StateClosing {
			s.setState(StateClosing)
		}
		s.setState(StateClosed)
		ev = Event{Type: EventClose, SessionID: s.id}
	} else {
		s.err = err
		s.setState(StateErrored)
		s.logger.Error("live session failed", "sessionID", s.id, "error", err)
		ev = Event{Type: EventError, SessionID: s.id, Err: err}
	}
	s.mu.Unlock()

	s.readyOnce.Do(func() { close(s.ready) })
	s.emitTerminal(ev)
	close(s.events)
	if s.cancel != nil {
		s.cancel()
	}
}

// emit delivers a non-terminal event, giving up if ctx ends first.
func (s *Session) emit(ctx context.Context, ev Event) bool {
	select {
	case s.events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// emitTerminal never blocks. If the consumer has fallen behind, pending
// message events are shed so the terminal event always lands.
func (s *Session) emitTerminal(ev Event) {
	select {
	case s.events <- ev:
		return
	default:
	}

	var keep []Event
	shed := 0
DrainLoop:
	for {
		select {
		case old := <-s.events:
			if old.Type == EventMessage {
				shed++
				continue
			}
			keep = append(keep, old)
		default:
			break DrainLoop
		}
	}
	for _, old := range keep {
		select {
		case s.events <- old:
		default:
		}
	}
	if shed > 0 {
		s.logger.Warn("shed stale live messages", "sessionID", s.id, "dropped", shed)
	}
	select {
	case s.events <- ev:
	default:
		s.logger.Error("terminal live event lost", "sessionID", s.id)
	}
}

// setState must be called with s.mu held.
func (s *Session) setState(to State) {
	from := s.state
	if !canTransition(from, to) {
		s.logger.Warn("unexpected live session transition", "sessionID", s.id, "from", from.String(), "to", to.String())
	}
	s.state = to
	s.logger.Debug("live session state", "sessionID", s.id, "from", from.String(), "to", to.String())
}
