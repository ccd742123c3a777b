package playback

import (
	"fmt"
	"math"
	"sync"

	"github.com/lokutor-ai/luminary/pkg/audio"
)

// Graph is a software output timeline. The device callback pulls mixed
// samples through Render, and the number of frames rendered so far is the
// clock. Only mono output is produced; multi-channel buffers are downmixed.
type Graph struct {
	rate int
	tap  *Analyser

	mu     sync.Mutex
	frames int64
	nextID uint64
	voices map[uint64]*voice
}

type voice struct {
	start   int64
	samples []float32
	onEnded func()
}

// NewGraph creates a graph running at sampleRate. tap may be nil.
func NewGraph(sampleRate int, tap *Analyser) *Graph {
	if sampleRate <= 0 {
		sampleRate = audio.PlaybackSampleRate
	}
	return &Graph{
		rate:   sampleRate,
		tap:    tap,
		voices: make(map[uint64]*voice),
	}
}

func (g *Graph) SampleRate() int { return g.rate }

// Analyser returns the tap that sees every rendered sample.
func (g *Graph) Analyser() *Analyser { return g.tap }

// Now returns the time of the next frame to be rendered.
func (g *Graph) Now() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return float64(g.frames) / float64(g.rate)
}

// Schedule places buf on the timeline starting at the given time. Start
// times that already passed play from the next rendered frame; the returned
// time is the one the voice will really start at.
func (g *Graph) Schedule(buf audio.Buffer, at float64, onEnded func()) (Voice, float64, error) {
	if buf.SampleRate != g.rate {
		return nil, 0, fmt.Errorf("%w: buffer %d Hz, output %d Hz", ErrSampleRateMismatch, buf.SampleRate, g.rate)
	}
	samples := downmix(buf)
	if len(samples) == 0 {
		return nil, 0, ErrEmptyBuffer
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	start := int64(math.Round(at * float64(g.rate)))
	if start < g.frames {
		start = g.frames
	}
	g.nextID++
	id := g.nextID
	g.voices[id] = &voice{start: start, samples: samples, onEnded: onEnded}
	return &voiceHandle{g: g, id: id}, float64(start) / float64(g.rate), nil
}

// Render mixes the next len(out) frames into out and advances the clock.
func (g *Graph) Render(out []float32) {
	for i := range out {
		out[i] = 0
	}

	g.mu.Lock()
	from := g.frames
	to := from + int64(len(out))
	var ended []func()
	for id, v := range g.voices {
		end := v.start + int64(len(v.samples))
		lo, hi := max(v.start, from), min(end, to)
		for t := lo; t < hi; t++ {
			out[t-from] += v.samples[t-v.start]
		}
		if end <= to {
			delete(g.voices, id)
			if v.onEnded != nil {
				ended = append(ended, v.onEnded)
			}
		}
	}
	g.frames = to
	g.mu.Unlock()

	for i, s := range out {
		if s > 1 {
			out[i] = 1
		} else if s < -1 {
			out[i] = -1
		}
	}
	if g.tap != nil {
		g.tap.Write(out)
	}
	// Callbacks run outside the lock; the scheduler takes its own lock in them.
	for _, fn := range ended {
		fn()
	}
}

// Active returns the number of voices still on the timeline.
func (g *Graph) Active() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.voices)
}

type voiceHandle struct {
	g  *Graph
	id uint64
}

func (h *voiceHandle) Stop() {
	h.g.mu.Lock()
	delete(h.g.voices, h.id)
	h.g.mu.Unlock()
}

func downmix(buf audio.Buffer) []float32 {
	ch := buf.Channels
	if ch <= 1 {
		return buf.Samples
	}
	out := make([]float32, buf.Frames())
	for i := range out {
		var sum float32
		for c := 0; c < ch; c++ {
			sum += buf.Samples[i*ch+c]
		}
		out[i] = sum / float32(ch)
	}
	return out
}
