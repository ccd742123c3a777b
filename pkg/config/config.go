// Package config holds the settings of the luminary CLI: model names,
// audio pipeline parameters and studio generation options.
package config

import (
	"log/slog"
	"time"

	"github.com/lokutor-ai/luminary/pkg/live"
	"github.com/lokutor-ai/luminary/pkg/studio"
	"github.com/lokutor-ai/luminary/pkg/visualizer"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Slog maps l to a slog level, defaulting to info.
func (l LogLevel) Slog() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	}
	return slog.LevelInfo
}

type Config struct {
	// APIKey is normally supplied through the environment.
	APIKey   string   `yaml:"api_key"`
	LogLevel LogLevel `yaml:"log_level"`

	Live   LiveConfig   `yaml:"live"`
	Studio StudioConfig `yaml:"studio"`
}

// LiveConfig configures realtime voice sessions.
type LiveConfig struct {
	Model             string        `yaml:"model"`
	Modality          live.Modality `yaml:"modality"`
	Voice             string        `yaml:"voice"`
	SystemInstruction string        `yaml:"system_instruction"`

	// Transcribe asks the server for transcriptions of both speakers.
	Transcribe bool `yaml:"transcribe"`

	// BaseURL overrides the websocket endpoint.
	BaseURL      string        `yaml:"base_url"`
	SetupTimeout time.Duration `yaml:"setup_timeout"`

	FrameSize    int `yaml:"frame_size"`
	CaptureRate  int `yaml:"capture_rate"`
	PlaybackRate int `yaml:"playback_rate"`
	AnalyserSize int `yaml:"analyser_size"`

	// RefreshRate is the waveform redraw rate in Hz.
	RefreshRate int `yaml:"refresh_rate"`
}

// StudioConfig configures one-shot generations.
type StudioConfig struct {
	TextModel  string `yaml:"text_model"`
	ImageModel string `yaml:"image_model"`
	VideoModel string `yaml:"video_model"`

	ImageAspectRatio string `yaml:"image_aspect_ratio"`
	VideoResolution  string `yaml:"video_resolution"`
	VideoAspectRatio string `yaml:"video_aspect_ratio"`

	PollInterval time.Duration `yaml:"poll_interval"`
	PollAttempts int           `yaml:"poll_attempts"`

	Location *Location `yaml:"location"`
}

type Location struct {
	Lat float64 `yaml:"lat"`
	Lng float64 `yaml:"lng"`
}

// Default returns the stock configuration.
func Default() *Config {
	return &Config{
		LogLevel: LogInfo,
		Live: LiveConfig{
			Model:             "gemini-2.5-flash-native-audio-preview-12-2025",
			Modality:          live.ModalityAudio,
			Voice:             "Zephyr",
			SystemInstruction: "You are Luminary, a premium studio assistant. Speak with elegance and precision.",
			SetupTimeout:      15 * time.Second,
			FrameSize:         4096,
			CaptureRate:       16000,
			PlaybackRate:      24000,
			AnalyserSize:      2048,
			RefreshRate:       60,
		},
		Studio: StudioConfig{
			TextModel:        "gemini-3-flash-preview",
			ImageModel:       "gemini-2.5-flash-image",
			VideoModel:       "veo-3.1-fast-generate-preview",
			ImageAspectRatio: "1:1",
			VideoResolution:  "720p",
			VideoAspectRatio: "16:9",
			PollInterval:     10 * time.Second,
			PollAttempts:     60,
		},
	}
}

// Session returns the live session request.
func (c *Config) Session() live.Config {
	return live.Config{
		Model:             c.Live.Model,
		Modality:          c.Live.Modality,
		Voice:             c.Live.Voice,
		SystemInstruction: c.Live.SystemInstruction,
	}
}

// Controller returns the live controller settings; r may be nil.
func (c *Config) Controller(r visualizer.Renderer) live.ControllerConfig {
	cc := live.ControllerConfig{
		Session:      c.Session(),
		FrameSize:    c.Live.FrameSize,
		CaptureRate:  c.Live.CaptureRate,
		PlaybackRate: c.Live.PlaybackRate,
		AnalyserSize: c.Live.AnalyserSize,
		Renderer:     r,
		Width:        1,
		Height:       1,
	}
	if c.Live.RefreshRate > 0 {
		cc.RefreshInterval = time.Second / time.Duration(c.Live.RefreshRate)
	}
	return cc
}

// StudioOptions returns the studio settings.
func (c *Config) StudioOptions() studio.Config {
	sc := studio.Config{
		APIKey:           c.APIKey,
		TextModel:        c.Studio.TextModel,
		ImageModel:       c.Studio.ImageModel,
		VideoModel:       c.Studio.VideoModel,
		ImageAspectRatio: c.Studio.ImageAspectRatio,
		VideoResolution:  c.Studio.VideoResolution,
		VideoAspectRatio: c.Studio.VideoAspectRatio,
		PollInterval:     c.Studio.PollInterval,
		PollAttempts:     c.Studio.PollAttempts,
	}
	if loc := c.Studio.Location; loc != nil {
		sc.Location = &studio.Location{Lat: loc.Lat, Lng: loc.Lng}
	}
	return sc
}
