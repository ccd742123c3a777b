package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/lokutor-ai/luminary/pkg/live"
	"gopkg.in/yaml.v3"
)

// APIKeyEnv lists the variables searched for the API key, in order.
var APIKeyEnv = []string{"GEMINI_API_KEY", "GOOGLE_API_KEY", "API_KEY"}

var ErrMissingAPIKey = errors.New("config: no API key; set " + strings.Join(APIKeyEnv, ", ") + " or api_key")

// Load reads the YAML file at path over the defaults and validates it.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes YAML from r over the defaults. Unknown keys are
// rejected. An empty document yields the defaults.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overlays environment settings. getenv is usually os.Getenv.
func ApplyEnv(cfg *Config, getenv func(string) string) {
	for _, name := range APIKeyEnv {
		if v := strings.TrimSpace(getenv(name)); v != "" {
			cfg.APIKey = v
			break
		}
	}
	if v := getenv("LUMINARY_LOG_LEVEL"); v != "" {
		cfg.LogLevel = LogLevel(strings.ToLower(v))
	}
	if v := getenv("LUMINARY_LIVE_VOICE"); v != "" {
		cfg.Live.Voice = v
	}
	if v := getenv("LUMINARY_LIVE_TRANSCRIBE"); v != "" {
		if on, err := strconv.ParseBool(v); err == nil {
			cfg.Live.Transcribe = on
		}
	}
}

// RequireAPIKey reports ErrMissingAPIKey when no key was configured.
func (c *Config) RequireAPIKey() error {
	if c.APIKey == "" {
		return ErrMissingAPIKey
	}
	return nil
}

// Validate returns every problem found, joined.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.LogLevel != "" && !cfg.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("log_level %q is invalid; valid values: debug, info, warn, error", cfg.LogLevel))
	}

	lc := cfg.Live
	if lc.Model == "" {
		errs = append(errs, errors.New("live.model is required"))
	}
	if lc.Modality != live.ModalityAudio && lc.Modality != live.ModalityText {
		errs = append(errs, fmt.Errorf("live.modality %q is invalid; valid values: AUDIO, TEXT", lc.Modality))
	}
	for _, f := range []struct {
		name string
		v    int
	}{
		{"live.frame_size", lc.FrameSize},
		{"live.capture_rate", lc.CaptureRate},
		{"live.playback_rate", lc.PlaybackRate},
		{"live.analyser_size", lc.AnalyserSize},
		{"live.refresh_rate", lc.RefreshRate},
	} {
		if f.v <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %d", f.name, f.v))
		}
	}
	if lc.SetupTimeout < 0 {
		errs = append(errs, fmt.Errorf("live.setup_timeout %s is negative", lc.SetupTimeout))
	}

	sc := cfg.Studio
	if sc.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("studio.poll_interval must be positive, got %s", sc.PollInterval))
	}
	if sc.PollAttempts <= 0 {
		errs = append(errs, fmt.Errorf("studio.poll_attempts must be positive, got %d", sc.PollAttempts))
	}
	if sc.VideoResolution != "" && sc.VideoResolution != "720p" && sc.VideoResolution != "1080p" {
		errs = append(errs, fmt.Errorf("studio.video_resolution %q is invalid; valid values: 720p, 1080p", sc.VideoResolution))
	}
	if loc := sc.Location; loc != nil {
		if loc.Lat < -90 || loc.Lat > 90 {
			errs = append(errs, fmt.Errorf("studio.location.lat %.4f is out of range [-90, 90]", loc.Lat))
		}
		if loc.Lng < -180 || loc.Lng > 180 {
			errs = append(errs, fmt.Errorf("studio.location.lng %.4f is out of range [-180, 180]", loc.Lng))
		}
	}

	return errors.Join(errs...)
}
