package live

import (
	"context"
	"encoding/base64"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/lokutor-ai/luminary/pkg/audio"
)

type fakeConn struct {
	inbound chan *ServerMessage
	recvErr chan error
	closed  chan struct{}
	once    sync.Once

	mu      sync.Mutex
	sent    []audio.Payload
	sendErr error
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		inbound: make(chan *ServerMessage, 16),
		recvErr: make(chan error, 1),
		closed:  make(chan struct{}),
	}
}

func (c *fakeConn) Send(ctx context.Context, p audio.Payload) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, p)
	return nil
}

func (c *fakeConn) Sent() []audio.Payload {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]audio.Payload(nil), c.sent...)
}

func (c *fakeConn) Recv(ctx context.Context) (*ServerMessage, error) {
	select {
	case msg := <-c.inbound:
		return msg, nil
	case err := <-c.recvErr:
		return nil, err
	case <-c.closed:
		return nil, io.EOF
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

type fakeTransport struct {
	gate    chan struct{}
	dialErr error

	mu    sync.Mutex
	conns []*fakeConn
	cfgs  []Config
}

func (t *fakeTransport) Dial(ctx context.Context, cfg Config) (Conn, error) {
	t.mu.Lock()
	t.cfgs = append(t.cfgs, cfg)
	t.mu.Unlock()

	if t.gate != nil {
		select {
		case <-t.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if t.dialErr != nil {
		return nil, t.dialErr
	}

	c := newFakeConn()
	t.mu.Lock()
	t.conns = append(t.conns, c)
	t.mu.Unlock()
	return c, nil
}

func (t *fakeTransport) conn(i int) *fakeConn {
	t.mu.Lock()
	defer t.mu.Unlock()
	if i >= len(t.conns) {
		return nil
	}
	return t.conns[i]
}

func (t *fakeTransport) dials() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.cfgs)
}

// nextEvent reads one event or fails after a second.
func nextEvent(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev, ok := <-ch:
		if !ok {
			t.Fatal("event channel closed")
		}
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
	return Event{}
}

// collect drains ch until it is closed.
func collect(t *testing.T, ch <-chan Event) []Event {
	t.Helper()
	var out []Event
	deadline := time.After(time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-deadline:
			t.Fatal("timed out draining events")
		}
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

// tone returns an inbound payload of n samples at 24 kHz holding v.
func tone(v float32, n int) audio.Payload {
	samples := make([]int16, n)
	for i := range samples {
		samples[i] = audio.FloatToPCM16(v)
	}
	return audio.Payload{
		Data:     base64.StdEncoding.EncodeToString(audio.PCM16ToBytes(samples)),
		MIMEType: audio.MIMEType(audio.PlaybackSampleRate),
	}
}

type fakeDevice struct {
	mu       sync.Mutex
	started  bool
	closed   bool
	startErr error
}

func (d *fakeDevice) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.startErr != nil {
		return d.startErr
	}
	d.started = true
	return nil
}

func (d *fakeDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

func (d *fakeDevice) isStarted() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.started
}

func (d *fakeDevice) isClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

type deviceSet struct {
	capture  *fakeDevice
	speaker  *fakeDevice
	onInput  func([]float32)
	render   func([]float32)
	capRate  int
	playRate int
}

type fakeDevices struct {
	captureErr error

	mu   sync.Mutex
	sets []*deviceSet
	cur  *deviceSet
}

func (f *fakeDevices) OpenPlayback(sampleRate int, render func([]float32)) (Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cur = &deviceSet{speaker: &fakeDevice{}, render: render, playRate: sampleRate}
	return f.cur.speaker, nil
}

func (f *fakeDevices) OpenCapture(sampleRate int, onSamples func([]float32)) (Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.captureErr != nil {
		return nil, f.captureErr
	}
	f.cur.capture = &fakeDevice{}
	f.cur.onInput = onSamples
	f.cur.capRate = sampleRate
	f.sets = append(f.sets, f.cur)
	return f.cur.capture, nil
}

func (f *fakeDevices) set(i int) *deviceSet {
	f.mu.Lock()
	defer f.mu.Unlock()
	if i >= len(f.sets) {
		return nil
	}
	return f.sets[i]
}
