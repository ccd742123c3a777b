package live

import (
	"sync"

	"github.com/lokutor-ai/luminary/pkg/audio"
)

// DefaultFrameSize is the number of capture samples per outbound payload.
const DefaultFrameSize = 4096

// Sender accepts outbound audio without blocking.
type Sender interface {
	Send(p audio.Payload) error
}

// Uplink turns raw microphone samples into encoded payloads, one per
// fixed-size frame, and hands each to a Sender in capture order.
type Uplink struct {
	sender Sender
	rate   int

	mu      sync.Mutex
	framer  *audio.Framer
	sent    int
	dropped int
}

// NewUplink creates an encoder for capture audio at sampleRate.
func NewUplink(sender Sender, frameSize, sampleRate int) *Uplink {
	if frameSize <= 0 {
		frameSize = DefaultFrameSize
	}
	if sampleRate <= 0 {
		sampleRate = audio.CaptureSampleRate
	}
	return &Uplink{
		sender: sender,
		rate:   sampleRate,
		framer: audio.NewFramer(frameSize),
	}
}

// Push is called from the capture callback with samples in [-1, 1].
func (u *Uplink) Push(samples []float32) {
	u.mu.Lock()
	defer u.mu.Unlock()

	u.framer.Push(samples, func(frame []float32) {
		p := audio.EncodePayload(audio.EncodeFloat32(frame, u.rate))
		if err := u.sender.Send(p); err != nil {
			u.dropped++
			return
		}
		u.sent++
	})
}

// Sent returns the number of frames accepted by the sender.
func (u *Uplink) Sent() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.sent
}

// Dropped returns the number of frames the sender refused.
func (u *Uplink) Dropped() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.dropped
}
