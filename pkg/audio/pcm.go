package audio

import (
	"encoding/binary"
	"math"
)

const (
	// CaptureSampleRate is the microphone rate expected by the live endpoint.
	CaptureSampleRate = 16000
	// PlaybackSampleRate is the rate of audio returned by the live endpoint.
	PlaybackSampleRate = 24000
	// BytesPerSample is the width of one signed 16-bit PCM sample.
	BytesPerSample = 2
)

// FloatToPCM16 scales a sample in [-1, 1] to int16, clamping anything outside
// the representable range. 1.0 maps to 32767 rather than wrapping.
func FloatToPCM16(s float32) int16 {
	if math.IsNaN(float64(s)) {
		return 0
	}
	v := math.Round(float64(s) * 32768)
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}

// PCM16ToFloat normalizes an int16 sample into [-1, 1).
func PCM16ToFloat(s int16) float32 {
	return float32(s) / 32768.0
}

// PCM16ToBytes serializes samples as little-endian bytes.
func PCM16ToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*BytesPerSample)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*BytesPerSample:], uint16(s))
	}
	return out
}

// BytesToPCM16 reinterprets little-endian bytes as int16 samples.
func BytesToPCM16(b []byte) ([]int16, error) {
	if len(b)%BytesPerSample != 0 {
		return nil, ErrMalformedPayload
	}
	out := make([]int16, len(b)/BytesPerSample)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(b[i*BytesPerSample:]))
	}
	return out, nil
}

// Float32FromBytes reads little-endian IEEE 754 samples, as delivered by
// devices opened in f32 format. A trailing partial sample is ignored.
func Float32FromBytes(b []byte) []float32 {
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out
}

// Float32ToBytes writes samples into dst as little-endian IEEE 754 and
// returns the number of bytes written.
func Float32ToBytes(dst []byte, samples []float32) int {
	n := 0
	for _, s := range samples {
		if n+4 > len(dst) {
			break
		}
		binary.LittleEndian.PutUint32(dst[n:], math.Float32bits(s))
		n += 4
	}
	return n
}
