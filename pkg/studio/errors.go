package studio

import "errors"

var (
	// ErrNoCandidates is returned when a generation response carries no candidates
	ErrNoCandidates = errors.New("studio: response has no candidates")

	// ErrNoImage is returned when an image response carries no inline image part
	ErrNoImage = errors.New("studio: response has no image")

	// ErrVideoFailed is returned when a finished video operation yields no video
	ErrVideoFailed = errors.New("studio: video generation failed")

	// ErrPollExhausted is returned when a long-running operation does not finish in time
	ErrPollExhausted = errors.New("studio: operation did not finish")

	ErrEmptyPrompt = errors.New("studio: prompt is empty")
)
