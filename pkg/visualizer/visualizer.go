// Package visualizer draws the live playback signal as a waveform at the
// display refresh cadence.
package visualizer

import (
	"context"
	"time"
)

// DefaultInterval is one tick of a 60 Hz display.
const DefaultInterval = time.Second / 60

// Point is a vertex of the waveform path in canvas coordinates.
type Point struct {
	X, Y float64
}

// Source provides time-domain amplitude samples centred on 128.
type Source interface {
	ByteTimeDomainData(dst []byte) int
	Size() int
}

// Renderer draws one waveform path.
type Renderer interface {
	Draw(path []Point) error
}

// RendererFunc adapts a function to Renderer.
type RendererFunc func(path []Point) error

func (f RendererFunc) Draw(path []Point) error { return f(path) }

// Waveform maps byte time-domain samples onto a width×height canvas. Each
// sample becomes one vertex; the path is closed on the vertical midpoint of
// the right edge.
func Waveform(data []byte, width, height float64) []Point {
	if len(data) == 0 {
		return nil
	}
	slice := width / float64(len(data))
	path := make([]Point, 0, len(data)+1)
	x := 0.0
	for _, d := range data {
		v := float64(d) / 128.0
		path = append(path, Point{X: x, Y: v * height / 2})
		x += slice
	}
	return append(path, Point{X: width, Y: height / 2})
}

// Visualizer polls a Source and hands each frame to a Renderer.
type Visualizer struct {
	Source   Source
	Renderer Renderer
	Interval time.Duration
	Width    float64
	Height   float64
}

// Run draws one frame per tick until ctx is cancelled or live reports
// false. live is checked right before every draw, so no frame is drawn once
// the session has gone down. A renderer error ends the loop.
func (v *Visualizer) Run(ctx context.Context, live func() bool) error {
	interval := v.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	width, height := v.Width, v.Height
	if width <= 0 {
		width = 1
	}
	if height <= 0 {
		height = 1
	}

	buf := make([]byte, v.Source.Size())
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		if ctx.Err() != nil || !live() {
			return nil
		}
		n := v.Source.ByteTimeDomainData(buf)
		if err := v.Renderer.Draw(Waveform(buf[:n], width, height)); err != nil {
			return err
		}
	}
}
