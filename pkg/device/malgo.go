// Package device opens microphone and speaker streams through miniaudio.
package device

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
	"github.com/lokutor-ai/luminary/pkg/audio"
	"github.com/lokutor-ai/luminary/pkg/live"
)

var ErrContextClosed = errors.New("audio context is closed")

// Malgo is a live.DeviceFactory backed by one miniaudio context. Every
// device it opens is mono float32.
type Malgo struct {
	mu  sync.Mutex
	ctx *malgo.AllocatedContext
}

var _ live.DeviceFactory = (*Malgo)(nil)

// NewMalgo initializes the default audio backend.
func NewMalgo() (*Malgo, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("device: init audio context: %w", err)
	}
	return &Malgo{ctx: ctx}, nil
}

// Close releases the audio context. Devices must be closed first.
func (m *Malgo) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ctx == nil {
		return nil
	}
	err := m.ctx.Uninit()
	m.ctx.Free()
	m.ctx = nil
	return err
}

// OpenCapture opens the default microphone. onSamples runs on the audio
// thread with samples in [-1, 1] and must not block.
func (m *Malgo) OpenCapture(sampleRate int, onSamples func([]float32)) (live.Device, error) {
	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = malgo.FormatF32
	cfg.Capture.Channels = 1
	cfg.SampleRate = uint32(sampleRate)
	cfg.Alsa.NoMMap = 1

	return m.open(cfg, captureProc(onSamples))
}

// OpenPlayback opens the default speaker. render is asked for exactly the
// number of frames the device needs on every period.
func (m *Malgo) OpenPlayback(sampleRate int, render func([]float32)) (live.Device, error) {
	cfg := malgo.DefaultDeviceConfig(malgo.Playback)
	cfg.Playback.Format = malgo.FormatF32
	cfg.Playback.Channels = 1
	cfg.SampleRate = uint32(sampleRate)
	cfg.Alsa.NoMMap = 1

	return m.open(cfg, playbackProc(render))
}

func (m *Malgo) open(cfg malgo.DeviceConfig, proc malgo.DataProc) (live.Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ctx == nil {
		return nil, ErrContextClosed
	}
	dev, err := malgo.InitDevice(m.ctx.Context, cfg, malgo.DeviceCallbacks{Data: proc})
	if err != nil {
		return nil, fmt.Errorf("device: init %v device: %w", cfg.DeviceType, err)
	}
	return &stream{dev: dev}, nil
}

func captureProc(onSamples func([]float32)) malgo.DataProc {
	return func(_, pInput []byte, _ uint32) {
		if len(pInput) == 0 {
			return
		}
		onSamples(audio.Float32FromBytes(pInput))
	}
}

func playbackProc(render func([]float32)) malgo.DataProc {
	var scratch []float32
	return func(pOutput, _ []byte, frameCount uint32) {
		if len(pOutput) == 0 {
			return
		}
		n := int(frameCount)
		if n*4 > len(pOutput) {
			n = len(pOutput) / 4
		}
		if cap(scratch) < n {
			scratch = make([]float32, n)
		}
		scratch = scratch[:n]
		render(scratch)
		written := audio.Float32ToBytes(pOutput, scratch)
		for i := written; i < len(pOutput); i++ {
			pOutput[i] = 0
		}
	}
}

type stream struct {
	mu     sync.Mutex
	dev    *malgo.Device
	closed bool
}

func (s *stream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrContextClosed
	}
	return s.dev.Start()
}

// Close stops and releases the device. Safe to call twice.
func (s *stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	err := s.dev.Stop()
	s.dev.Uninit()
	return err
}
