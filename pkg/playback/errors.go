package playback

import "errors"

var (
	// ErrSampleRateMismatch is returned when a buffer does not match the graph rate
	ErrSampleRateMismatch = errors.New("buffer sample rate does not match output")

	// ErrEmptyBuffer is returned when scheduling a buffer with no frames
	ErrEmptyBuffer = errors.New("cannot schedule an empty buffer")
)
