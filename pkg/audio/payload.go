package audio

import (
	"encoding/base64"
	"fmt"
	"mime"
	"strconv"
	"strings"
)

const pcmMediaType = "audio/pcm"

// Payload is the text-safe form of PCM audio exchanged with the live endpoint.
type Payload struct {
	Data     string `json:"data"`
	MIMEType string `json:"mimeType"`
}

// MIMEType formats the descriptor for raw PCM at the given rate.
func MIMEType(sampleRate int) string {
	return pcmMediaType + ";rate=" + strconv.Itoa(sampleRate)
}

// ParseMIMEType extracts the sample rate from an audio/pcm descriptor.
// A descriptor without a rate parameter is assumed to be PlaybackSampleRate.
func ParseMIMEType(s string) (int, error) {
	if strings.TrimSpace(s) == "" {
		return PlaybackSampleRate, nil
	}
	mediaType, params, err := mime.ParseMediaType(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %v", ErrUnsupportedMIME, s, err)
	}
	if mediaType != pcmMediaType {
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedMIME, s)
	}
	raw, ok := params["rate"]
	if !ok {
		return PlaybackSampleRate, nil
	}
	rate, err := strconv.Atoi(raw)
	if err != nil || rate <= 0 {
		return 0, fmt.Errorf("%w: bad rate %q", ErrUnsupportedMIME, raw)
	}
	return rate, nil
}

// EncodePayload base64-encodes a frame and tags it with its rate.
func EncodePayload(f Frame) Payload {
	return Payload{
		Data:     base64.StdEncoding.EncodeToString(f.Bytes()),
		MIMEType: MIMEType(f.SampleRate()),
	}
}

// DecodePCM16 reverses the base64 + little-endian encoding of EncodePayload.
func DecodePCM16(data string) ([]int16, error) {
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if len(raw) == 0 {
		return nil, ErrEmptyPayload
	}
	samples, err := BytesToPCM16(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %d bytes is not a whole number of samples", err, len(raw))
	}
	return samples, nil
}

// DecodePayload turns an inbound payload into a playable buffer.
func DecodePayload(p Payload, channels int) (Buffer, error) {
	if channels <= 0 {
		channels = 1
	}
	rate, err := ParseMIMEType(p.MIMEType)
	if err != nil {
		return Buffer{}, err
	}
	pcm, err := DecodePCM16(p.Data)
	if err != nil {
		return Buffer{}, err
	}
	if len(pcm)%channels != 0 {
		return Buffer{}, fmt.Errorf("%w: %d samples across %d channels", ErrMalformedPayload, len(pcm), channels)
	}
	samples := make([]float32, len(pcm))
	for i, s := range pcm {
		samples[i] = PCM16ToFloat(s)
	}
	return Buffer{Samples: samples, SampleRate: rate, Channels: channels}, nil
}

// Buffer holds decoded float samples ready for scheduling. Multi-channel
// data is interleaved.
type Buffer struct {
	Samples    []float32
	SampleRate int
	Channels   int
}

// Frames returns the number of sample frames across all channels.
func (b Buffer) Frames() int {
	ch := b.Channels
	if ch <= 0 {
		ch = 1
	}
	return len(b.Samples) / ch
}

// Duration returns the buffer length in seconds.
func (b Buffer) Duration() float64 {
	if b.SampleRate <= 0 {
		return 0
	}
	return float64(b.Frames()) / float64(b.SampleRate)
}
