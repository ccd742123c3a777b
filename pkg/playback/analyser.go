package playback

import (
	"math"
	"sync"
)

// DefaultAnalyserSize is the analysis window of the live output tap.
const DefaultAnalyserSize = 2048

// Analyser keeps the most recent rendered samples for visualisation.
type Analyser struct {
	mu   sync.Mutex
	ring []float32
	pos  int
	full bool
}

// NewAnalyser creates a tap holding size samples.
func NewAnalyser(size int) *Analyser {
	if size <= 0 {
		size = DefaultAnalyserSize
	}
	return &Analyser{ring: make([]float32, size)}
}

// Size returns the analysis window length.
func (a *Analyser) Size() int { return len(a.ring) }

// Write appends rendered samples to the window.
func (a *Analyser) Write(samples []float32) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, s := range samples {
		a.ring[a.pos] = s
		a.pos++
		if a.pos == len(a.ring) {
			a.pos = 0
			a.full = true
		}
	}
}

// FloatTimeDomainData copies the window, oldest sample first, into dst and
// returns the number of samples written. Unfilled slots read as silence.
func (a *Analyser) FloatTimeDomainData(dst []float32) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := min(len(dst), len(a.ring))
	// Take the newest n samples.
	start := a.pos - n
	for i := 0; i < n; i++ {
		idx := start + i
		if idx < 0 {
			idx += len(a.ring)
		}
		dst[i] = a.ring[idx]
	}
	return n
}

// ByteTimeDomainData quantizes the window to unsigned bytes centred on 128.
func (a *Analyser) ByteTimeDomainData(dst []byte) int {
	tmp := make([]float32, len(dst))
	n := a.FloatTimeDomainData(tmp)
	for i := 0; i < n; i++ {
		v := math.Round(128 + float64(tmp[i])*128)
		if v > 255 {
			v = 255
		} else if v < 0 {
			v = 0
		}
		dst[i] = byte(v)
	}
	return n
}

// Level returns the RMS of the current window.
func (a *Analyser) Level() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := len(a.ring)
	if !a.full {
		n = a.pos
	}
	if n == 0 {
		return 0
	}
	var sum float64
	for _, s := range a.ring[:n] {
		f := float64(s)
		sum += f * f
	}
	return math.Sqrt(sum / float64(n))
}
