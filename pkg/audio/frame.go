package audio

import "time"

// Frame is a fixed block of mono int16 samples. It is never mutated after
// construction; accessors hand out copies.
type Frame struct {
	samples    []int16
	sampleRate int
}

// NewFrame copies samples into a new Frame.
func NewFrame(samples []int16, sampleRate int) Frame {
	cp := make([]int16, len(samples))
	copy(cp, samples)
	return Frame{samples: cp, sampleRate: sampleRate}
}

// EncodeFloat32 converts float samples to a clamped int16 frame.
func EncodeFloat32(samples []float32, sampleRate int) Frame {
	pcm := make([]int16, len(samples))
	for i, s := range samples {
		pcm[i] = FloatToPCM16(s)
	}
	return Frame{samples: pcm, sampleRate: sampleRate}
}

func (f Frame) Samples() []int16 {
	cp := make([]int16, len(f.samples))
	copy(cp, f.samples)
	return cp
}

func (f Frame) Len() int { return len(f.samples) }

func (f Frame) SampleRate() int { return f.sampleRate }

// Duration returns the playing time of the frame.
func (f Frame) Duration() time.Duration {
	if f.sampleRate <= 0 {
		return 0
	}
	return time.Duration(len(f.samples)) * time.Second / time.Duration(f.sampleRate)
}

// Bytes returns the little-endian PCM16 encoding of the frame.
func (f Frame) Bytes() []byte {
	return PCM16ToBytes(f.samples)
}

// Framer cuts a continuous sample stream into frames of a fixed size.
// Device callbacks rarely line up with the frame size, so leftovers are
// carried into the next Push.
type Framer struct {
	size int
	buf  []float32
}

// NewFramer creates a framer emitting frames of size samples.
func NewFramer(size int) *Framer {
	if size <= 0 {
		size = 4096
	}
	return &Framer{size: size, buf: make([]float32, 0, size)}
}

func (f *Framer) Size() int { return f.size }

// Push appends samples and calls emit once per completed frame, in order.
// The slice passed to emit is only valid for the duration of the call.
func (f *Framer) Push(samples []float32, emit func([]float32)) {
	for len(samples) > 0 {
		n := f.size - len(f.buf)
		if n > len(samples) {
			n = len(samples)
		}
		f.buf = append(f.buf, samples[:n]...)
		samples = samples[n:]
		if len(f.buf) == f.size {
			emit(f.buf)
			f.buf = f.buf[:0]
		}
	}
}

// Buffered returns how many samples are waiting for a full frame.
func (f *Framer) Buffered() int { return len(f.buf) }

// Flush discards the partial frame and returns its length.
func (f *Framer) Flush() int {
	n := len(f.buf)
	f.buf = f.buf[:0]
	return n
}
