package audio

import "errors"

var (
	// ErrEmptyPayload is returned when a transport payload carries no audio bytes
	ErrEmptyPayload = errors.New("audio payload is empty")

	// ErrMalformedPayload is returned when a payload cannot be decoded into whole samples
	ErrMalformedPayload = errors.New("audio payload is malformed")

	// ErrUnsupportedMIME is returned for descriptors other than audio/pcm
	ErrUnsupportedMIME = errors.New("unsupported audio mime type")
)
