package audio

import (
	"bytes"
	"encoding/binary"
	"sync"
	"time"
)

// EncodeWAV wraps little-endian PCM16 data in a canonical 44-byte RIFF header.
func EncodeWAV(pcm []byte, sampleRate, channels int) []byte {
	if channels <= 0 {
		channels = 1
	}
	blockAlign := channels * BytesPerSample
	buf := new(bytes.Buffer)

	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(16))
	binary.Write(buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(buf, binary.LittleEndian, uint16(channels))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate*blockAlign))
	binary.Write(buf, binary.LittleEndian, uint16(blockAlign))
	binary.Write(buf, binary.LittleEndian, uint16(16))

	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)

	return buf.Bytes()
}

// BufferToPCM16 re-quantizes a decoded buffer for recording.
func BufferToPCM16(b Buffer) []byte {
	pcm := make([]int16, len(b.Samples))
	for i, s := range b.Samples {
		pcm[i] = FloatToPCM16(s)
	}
	return PCM16ToBytes(pcm)
}

// Recorder collects played buffers of one format and exports them as WAV.
// Buffers of any other rate or channel count are skipped.
type Recorder struct {
	rate     int
	channels int

	mu      sync.Mutex
	pcm     []byte
	skipped int
}

func NewRecorder(sampleRate, channels int) *Recorder {
	if channels <= 0 {
		channels = 1
	}
	return &Recorder{rate: sampleRate, channels: channels}
}

// Add is safe to call from the playback path.
func (r *Recorder) Add(b Buffer) {
	ch := b.Channels
	if ch <= 0 {
		ch = 1
	}
	pcm := BufferToPCM16(b)

	r.mu.Lock()
	defer r.mu.Unlock()
	if b.SampleRate != r.rate || ch != r.channels {
		r.skipped++
		return
	}
	r.pcm = append(r.pcm, pcm...)
}

func (r *Recorder) Duration() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	frames := len(r.pcm) / (BytesPerSample * r.channels)
	return time.Duration(frames) * time.Second / time.Duration(r.rate)
}

// Skipped returns how many buffers did not match the recorder format.
func (r *Recorder) Skipped() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.skipped
}

func (r *Recorder) WAV() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return EncodeWAV(r.pcm, r.rate, r.channels)
}
