package live

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/lokutor-ai/luminary/pkg/audio"
	"github.com/lokutor-ai/luminary/pkg/playback"
	"github.com/lokutor-ai/luminary/pkg/visualizer"
	"golang.org/x/sync/errgroup"
)

// Device is an acquired audio endpoint.
type Device interface {
	Start() error
	Close() error
}

// DeviceFactory opens the audio endpoints used by one session. Each device
// belongs to exactly one session and is released when it stops.
type DeviceFactory interface {
	OpenCapture(sampleRate int, onSamples func([]float32)) (Device, error)
	OpenPlayback(sampleRate int, render func([]float32)) (Device, error)
}

// ControllerConfig holds everything needed to start a live session.
type ControllerConfig struct {
	Session      Config
	FrameSize    int
	CaptureRate  int
	PlaybackRate int
	AnalyserSize int

	// Renderer receives the playback waveform while the session is Open.
	// Nil disables the visualizer.
	Renderer        visualizer.Renderer
	RefreshInterval time.Duration
	Width           float64
	Height          float64
}

func (c ControllerConfig) withDefaults() ControllerConfig {
	if c.FrameSize <= 0 {
		c.FrameSize = DefaultFrameSize
	}
	if c.CaptureRate <= 0 {
		c.CaptureRate = audio.CaptureSampleRate
	}
	if c.PlaybackRate <= 0 {
		c.PlaybackRate = audio.PlaybackSampleRate
	}
	if c.AnalyserSize <= 0 {
		c.AnalyserSize = playback.DefaultAnalyserSize
	}
	if c.Session.Modality == "" {
		c.Session.Modality = ModalityAudio
	}
	return c
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

func WithControllerLogger(l Logger) ControllerOption {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithStateHook is called on every visible state flip. Hooks run in order
// on a delivery goroutine of their own, so they may call Stop or Start.
func WithStateHook(fn func(State)) ControllerOption {
	return func(c *Controller) { c.onState = fn }
}

// WithTranscriptHook receives model text and transcriptions.
func WithTranscriptHook(fn func(Transcript)) ControllerOption {
	return func(c *Controller) { c.onTranscript = fn }
}

// WithDecodeErrorHook receives per-message decode failures.
func WithDecodeErrorHook(fn func(error)) ControllerOption {
	return func(c *Controller) { c.onDecodeError = fn }
}

// WithPlaybackTap receives every decoded buffer that was scheduled.
func WithPlaybackTap(fn func(audio.Buffer)) ControllerOption {
	return func(c *Controller) { c.tap = fn }
}

// Controller drives the start/stop of live sessions. At most one session
// is active per controller; starting a new one fully stops the old one.
type Controller struct {
	transport Transport
	devices   DeviceFactory
	cfg       ControllerConfig
	logger    Logger

	onState       func(State)
	onTranscript  func(Transcript)
	onDecodeError func(error)
	tap           func(audio.Buffer)

	mu     sync.Mutex
	active *liveRun
}

// NewController creates a controller dialing t and acquiring devices from d.
func NewController(t Transport, d DeviceFactory, cfg ControllerConfig, opts ...ControllerOption) *Controller {
	c := &Controller{
		transport: t,
		devices:   d,
		cfg:       cfg.withDefaults(),
		logger:    &NoOpLogger{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// liveRun is the set of resources owned by one active session.
type liveRun struct {
	session  *Session
	graph    *playback.Graph
	sched    *playback.Scheduler
	uplink   *Uplink
	downlink *Downlink
	capture  Device
	speaker  Device

	hooks    *hookQueue
	cancel   context.CancelFunc
	group    *errgroup.Group
	stopOnce sync.Once
	stopErr  error
}

// Start opens a new session, stopping any active one first. Capture begins
// while the session is still Opening; early audio is queued by the session.
// Start returns once the session is Open or has failed.
func (c *Controller) Start(ctx context.Context) error {
	if c.transport == nil {
		return ErrNilTransport
	}

	c.mu.Lock()
	if prev := c.active; prev != nil {
		c.active = nil
		c.mu.Unlock()
		c.logger.Info("stopping previous live session", "sessionID", prev.session.ID())
		if err := prev.shutdown(c.logger); err != nil {
			c.logger.Warn("previous live session stopped with error", "sessionID", prev.session.ID(), "error", err)
		}
		c.mu.Lock()
	}
	r, err := c.acquire(ctx)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	c.active = r
	c.mu.Unlock()

	c.logger.Info("live session opening", "sessionID", r.session.ID(), "model", c.cfg.Session.Model)
	if err := r.session.Wait(ctx); err != nil {
		c.release(r)
		return err
	}
	c.logger.Info("live session open", "sessionID", r.session.ID())
	return nil
}

func (c *Controller) acquire(ctx context.Context) (*liveRun, error) {
	cfg := c.cfg
	tap := playback.NewAnalyser(cfg.AnalyserSize)
	graph := playback.NewGraph(cfg.PlaybackRate, tap)
	sched := playback.NewScheduler(graph)
	session := NewSession(c.transport, cfg.Session, WithLogger(c.logger))

	r := &liveRun{
		session:  session,
		graph:    graph,
		sched:    sched,
		uplink:   NewUplink(session, cfg.FrameSize, cfg.CaptureRate),
		downlink: NewDownlink(sched, 1, c.logger),
	}
	r.downlink.SetTap(c.tap)

	speaker, err := c.devices.OpenPlayback(cfg.PlaybackRate, graph.Render)
	if err != nil {
		return nil, fmt.Errorf("live: open playback device: %w", err)
	}
	r.speaker = speaker

	capture, err := c.devices.OpenCapture(cfg.CaptureRate, r.uplink.Push)
	if err != nil {
		speaker.Close()
		return nil, fmt.Errorf("live: open capture device: %w", err)
	}
	r.capture = capture

	if err := session.Open(ctx); err != nil {
		capture.Close()
		speaker.Close()
		return nil, err
	}

	if err := speaker.Start(); err != nil {
		session.Close()
		capture.Close()
		speaker.Close()
		return nil, fmt.Errorf("live: start playback device: %w", err)
	}
	if err := capture.Start(); err != nil {
		session.Close()
		capture.Close()
		speaker.Close()
		return nil, fmt.Errorf("live: start capture device: %w", err)
	}

	// The group has no shared context: only shutdown may stop the pump.
	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.group = new(errgroup.Group)
	r.hooks = newHookQueue()
	r.group.Go(func() error { return c.pump(runCtx, r) })
	return r, nil
}

// pump consumes session events until the session's channel closes.
func (c *Controller) pump(ctx context.Context, r *liveRun) error {
	defer r.hooks.close()

	for ev := range r.session.Events() {
		switch ev.Type {
		case EventOpen:
			c.notify(r, StateOpen)
			if c.cfg.Renderer != nil {
				vis := &visualizer.Visualizer{
					Source:   r.graph.Analyser(),
					Renderer: c.cfg.Renderer,
					Interval: c.cfg.RefreshInterval,
					Width:    c.cfg.Width,
					Height:   c.cfg.Height,
				}
				r.group.Go(func() error {
					err := vis.Run(ctx, func() bool { return r.session.State() == StateOpen })
					if err != nil {
						c.logger.Warn("visualizer stopped", "sessionID", r.session.ID(), "error", err)
					}
					return nil
				})
			}
		case EventMessage:
			if ctx.Err() != nil {
				continue
			}
			c.handleMessage(r, ev.Message)
		case EventClose:
			n := r.sched.Stop()
			c.logger.Info("live session closed", "sessionID", ev.SessionID, "dropped", n)
			c.notify(r, StateClosed)
		case EventError:
			n := r.sched.Stop()
			c.logger.Error("live session error", "sessionID", ev.SessionID, "error", ev.Err, "dropped", n)
			c.notify(r, StateErrored)
		}
	}
	return nil
}

func (c *Controller) handleMessage(r *liveRun, msg *ServerMessage) {
	if msg.Interrupted {
		if n := r.sched.Stop(); n > 0 {
			c.logger.Debug("interrupted, flushed playback", "sessionID", r.session.ID(), "dropped", n)
		}
	}
	if err := r.downlink.Handle(msg); err != nil && c.onDecodeError != nil {
		r.hooks.push(func() { c.onDecodeError(err) })
	}
	if msg.TurnComplete {
		c.logger.Debug("model turn complete", "sessionID", r.session.ID(), "level", r.graph.Analyser().Level())
	}
	if c.onTranscript == nil {
		return
	}
	var out []Transcript
	if msg.InputTranscript != "" {
		out = append(out, Transcript{Speaker: "user", Text: msg.InputTranscript})
	}
	if msg.OutputTranscript != "" {
		out = append(out, Transcript{Speaker: "model", Text: msg.OutputTranscript})
	}
	if msg.Text != "" {
		out = append(out, Transcript{Speaker: "model", Text: msg.Text})
	}
	for _, tx := range out {
		r.hooks.push(func() { c.onTranscript(tx) })
	}
}

func (c *Controller) notify(r *liveRun, s State) {
	if c.onState != nil {
		r.hooks.push(func() { c.onState(s) })
	}
}

// Live reports whether the active session is Open.
func (c *Controller) Live() bool {
	c.mu.Lock()
	r := c.active
	c.mu.Unlock()
	return r != nil && r.session.State() == StateOpen
}

// SessionID returns the id of the active session, or "".
func (c *Controller) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return ""
	}
	return c.active.session.ID()
}

// Wait blocks until the active session ends and returns its fault, if any.
func (c *Controller) Wait(ctx context.Context) error {
	c.mu.Lock()
	r := c.active
	c.mu.Unlock()
	if r == nil {
		return nil
	}
	select {
	case <-r.session.Done():
		return r.session.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop tears down the active session: the visualizer stops first, then the
// session closes, pending playback is cut and the devices are released.
func (c *Controller) Stop() error {
	c.mu.Lock()
	r := c.active
	c.active = nil
	c.mu.Unlock()
	if r == nil {
		return nil
	}
	return r.shutdown(c.logger)
}

func (c *Controller) release(r *liveRun) {
	c.mu.Lock()
	if c.active == r {
		c.active = nil
	}
	c.mu.Unlock()
	r.shutdown(c.logger)
}

func (r *liveRun) shutdown(logger Logger) error {
	r.stopOnce.Do(func() {
		r.cancel()
		r.session.Close()
		if err := r.group.Wait(); err != nil {
			logger.Warn("live pump stopped with error", "sessionID", r.session.ID(), "error", err)
		}

		cut := r.sched.Stop()
		var errs []error
		if err := r.capture.Close(); err != nil {
			errs = append(errs, fmt.Errorf("live: close capture device: %w", err))
		}
		if err := r.speaker.Close(); err != nil {
			errs = append(errs, fmt.Errorf("live: close playback device: %w", err))
		}
		logger.Info("live session stopped",
			"sessionID", r.session.ID(),
			"sent", r.uplink.Sent(),
			"played", r.downlink.Played(),
			"dropped", r.session.Dropped(),
			"cut", cut,
		)
		r.stopErr = errors.Join(errs...)
	})
	return r.stopErr
}

// hookQueue runs callbacks in order on its own goroutine. It is unbounded so
// the pump never waits on a slow or re-entrant hook.
type hookQueue struct {
	mu     sync.Mutex
	fns    []func()
	closed bool
	wake   chan struct{}
}

func newHookQueue() *hookQueue {
	q := &hookQueue{wake: make(chan struct{}, 1)}
	go q.run()
	return q
}

func (q *hookQueue) push(fn func()) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.fns = append(q.fns, fn)
	q.mu.Unlock()
	q.signal()
}

// close lets already queued hooks run, then ends the goroutine.
func (q *hookQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.signal()
}

func (q *hookQueue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *hookQueue) run() {
	for range q.wake {
		for {
			q.mu.Lock()
			batch, closed := q.fns, q.closed
			q.fns = nil
			q.mu.Unlock()
			if len(batch) == 0 {
				if closed {
					return
				}
				break
			}
			for _, fn := range batch {
				fn()
			}
		}
	}
}
