package visualizer

import (
	"fmt"
	"io"
	"math"
	"strings"
)

var levels = []rune(" ▁▂▃▄▅▆▇█")

// TextRenderer draws the waveform as a single line of block characters,
// rewriting the same terminal line on every frame.
type TextRenderer struct {
	W       io.Writer
	Columns int
}

func (r *TextRenderer) Draw(path []Point) error {
	fmt.Fprintf(r.W, "\r[%s]", Sparkline(path, r.Columns))
	return nil
}

// Sparkline buckets path vertices into columns and renders the peak
// deviation from the midline of each bucket.
func Sparkline(path []Point, columns int) string {
	if columns <= 0 {
		columns = 40
	}
	if len(path) < 2 {
		return strings.Repeat(" ", columns)
	}
	mid := path[len(path)-1].Y
	pts := path[:len(path)-1]
	if mid <= 0 {
		return strings.Repeat(" ", columns)
	}

	peaks := make([]float64, columns)
	for i, p := range pts {
		col := i * columns / len(pts)
		dev := math.Abs(p.Y-mid) / mid
		if dev > peaks[col] {
			peaks[col] = dev
		}
	}

	var b strings.Builder
	for _, p := range peaks {
		idx := int(math.Round(p * float64(len(levels)-1)))
		if idx >= len(levels) {
			idx = len(levels) - 1
		}
		b.WriteRune(levels[idx])
	}
	return b.String()
}
