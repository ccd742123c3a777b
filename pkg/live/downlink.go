package live

import (
	"errors"
	"fmt"
	"sync"

	"github.com/lokutor-ai/luminary/pkg/audio"
)

// Enqueuer schedules a decoded buffer for playback.
type Enqueuer interface {
	Enqueue(buf audio.Buffer) (float64, error)
}

// Downlink decodes inbound audio payloads and hands them to the playback
// scheduler. A payload that fails to decode is reported and skipped; it
// never stops the ones after it.
type Downlink struct {
	sched    Enqueuer
	channels int
	logger   Logger

	mu     sync.Mutex
	tap    func(audio.Buffer)
	played int
	failed int
}

// NewDownlink creates a decoder for mono or interleaved multi-channel audio.
func NewDownlink(sched Enqueuer, channels int, logger Logger) *Downlink {
	if channels <= 0 {
		channels = 1
	}
	if logger == nil {
		logger = &NoOpLogger{}
	}
	return &Downlink{sched: sched, channels: channels, logger: logger}
}

// SetTap registers fn to receive every buffer that was scheduled.
func (d *Downlink) SetTap(fn func(audio.Buffer)) {
	d.mu.Lock()
	d.tap = fn
	d.mu.Unlock()
}

// Handle plays every audio part of msg. The returned error joins one
// *DecodeError per part that could not be played.
func (d *Downlink) Handle(msg *ServerMessage) error {
	if msg == nil {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	var errs []error
	for i, p := range msg.Audio {
		buf, err := audio.DecodePayload(p, d.channels)
		if err == nil {
			_, err = d.sched.Enqueue(buf)
			if err != nil {
				err = fmt.Errorf("schedule: %w", err)
			}
		}
		if err != nil {
			d.failed++
			d.logger.Warn("dropping inbound audio", "part", i, "mimeType", p.MIMEType, "error", err)
			errs = append(errs, &DecodeError{Index: i, MIMEType: p.MIMEType, Err: err})
			continue
		}
		d.played++
		if d.tap != nil {
			d.tap(buf)
		}
	}
	return errors.Join(errs...)
}

// Played returns the number of buffers handed to the scheduler.
func (d *Downlink) Played() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.played
}

// Failed returns the number of payloads that were dropped.
func (d *Downlink) Failed() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.failed
}
