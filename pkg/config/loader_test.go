package config_test

import (
	"strings"
	"testing"
	"time"

	"github.com/lokutor-ai/luminary/pkg/config"
	"github.com/lokutor-ai/luminary/pkg/live"
)

func TestLoadFromReader_Empty(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Live.Voice != "Zephyr" || cfg.Live.FrameSize != 4096 || cfg.Studio.PollAttempts != 60 {
		t.Errorf("expected defaults, got %+v", cfg)
	}
}

func TestLoadFromReader_Overrides(t *testing.T) {
	t.Parallel()
	yaml := `
log_level: debug
live:
  voice: Puck
  transcribe: true
  setup_timeout: 3s
studio:
  poll_interval: 2s
  location:
    lat: 40.4
    lng: -3.7
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.LogLevel != config.LogDebug || cfg.Live.Voice != "Puck" || !cfg.Live.Transcribe {
		t.Errorf("unexpected live settings %+v", cfg.Live)
	}
	if cfg.Live.SetupTimeout != 3*time.Second || cfg.Studio.PollInterval != 2*time.Second {
		t.Errorf("unexpected durations %s / %s", cfg.Live.SetupTimeout, cfg.Studio.PollInterval)
	}
	if cfg.Live.Model == "" || cfg.Studio.TextModel != "gemini-3-flash-preview" {
		t.Error("unset keys must keep their defaults")
	}

	sc := cfg.StudioOptions()
	if sc.Location == nil || sc.Location.Lat != 40.4 || sc.Location.Lng != -3.7 {
		t.Errorf("unexpected location %+v", sc.Location)
	}
}

func TestLoadFromReader_UnknownField(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader("live:\n  voise: Puck\n"))
	if err == nil || !strings.Contains(err.Error(), "voise") {
		t.Fatalf("expected unknown field error, got %v", err)
	}
}

func TestValidate_JoinsErrors(t *testing.T) {
	t.Parallel()
	yaml := `
log_level: loud
live:
  modality: VIDEO
  frame_size: 0
studio:
  poll_attempts: -1
  video_resolution: 4k
  location:
    lat: 91
    lng: 0
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected validation errors")
	}
	for _, want := range []string{"log_level", "live.modality", "live.frame_size", "studio.poll_attempts", "studio.video_resolution", "studio.location.lat"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error should mention %s, got: %v", want, err)
		}
	}
}

func TestApplyEnv(t *testing.T) {
	t.Parallel()
	env := map[string]string{
		"GOOGLE_API_KEY":           "google-key",
		"API_KEY":                  "generic-key",
		"LUMINARY_LOG_LEVEL":       "WARN",
		"LUMINARY_LIVE_VOICE":      "Kore",
		"LUMINARY_LIVE_TRANSCRIBE": "true",
	}
	cfg := config.Default()
	config.ApplyEnv(cfg, func(k string) string { return env[k] })

	if cfg.APIKey != "google-key" {
		t.Errorf("expected GOOGLE_API_KEY to win over API_KEY, got %q", cfg.APIKey)
	}
	if cfg.LogLevel != config.LogWarn || cfg.Live.Voice != "Kore" || !cfg.Live.Transcribe {
		t.Errorf("unexpected overlay %+v", cfg)
	}
	if err := cfg.RequireAPIKey(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestRequireAPIKey(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	config.ApplyEnv(cfg, func(string) string { return "" })
	if err := cfg.RequireAPIKey(); err != config.ErrMissingAPIKey {
		t.Errorf("expected ErrMissingAPIKey, got %v", err)
	}
}

func TestController(t *testing.T) {
	t.Parallel()
	cc := config.Default().Controller(nil)
	if cc.Session.Modality != live.ModalityAudio || cc.Session.Voice != "Zephyr" {
		t.Errorf("unexpected session %+v", cc.Session)
	}
	if cc.RefreshInterval != time.Second/60 {
		t.Errorf("expected 60 Hz refresh, got %s", cc.RefreshInterval)
	}
	if cc.CaptureRate != 16000 || cc.PlaybackRate != 24000 || cc.AnalyserSize != 2048 {
		t.Errorf("unexpected audio settings %+v", cc)
	}
}

func TestLogLevel_Slog(t *testing.T) {
	t.Parallel()
	if config.LogDebug.Slog().String() != "DEBUG" || config.LogLevel("").Slog().String() != "INFO" {
		t.Error("unexpected slog mapping")
	}
}
