// Command luminary is a terminal client for the Luminary studio: a realtime
// voice session with a live waveform, plus grounded chat, image and video
// generation.
//
// Usage:
//
//	luminary [-config luminary.yaml] live [-record out.wav] [-no-visual]
//	luminary chat "what's good to eat nearby?"
//	luminary image -out cover.png "a brass orrery at dusk"
//	luminary video -out teaser.mp4 "slow dolly through a neon greenhouse"
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/lokutor-ai/luminary/pkg/audio"
	"github.com/lokutor-ai/luminary/pkg/config"
	"github.com/lokutor-ai/luminary/pkg/device"
	"github.com/lokutor-ai/luminary/pkg/live"
	"github.com/lokutor-ai/luminary/pkg/providers/gemini"
	"github.com/lokutor-ai/luminary/pkg/studio"
	"github.com/lokutor-ai/luminary/pkg/visualizer"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: No .env file found, using system environment variables")
	}

	fs := flag.NewFlagSet("luminary", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to a YAML configuration file")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "luminary: %v\n", err)
		return 1
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel.Slog()}))
	slog.SetDefault(logger)

	if err := cfg.RequireAPIKey(); err != nil {
		logger.Error("missing credentials", "err", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rest := fs.Args()
	if len(rest) == 0 {
		fmt.Fprintln(os.Stderr, "usage: luminary [-config file] live|chat|image|video [flags] [prompt]")
		return 2
	}

	cmd, cmdArgs := rest[0], rest[1:]
	switch cmd {
	case "live":
		err = runLive(ctx, cfg, logger, cmdArgs)
	case "chat":
		err = runChat(ctx, cfg, logger, cmdArgs)
	case "image":
		err = runImage(ctx, cfg, logger, cmdArgs)
	case "video":
		err = runVideo(ctx, cfg, logger, cmdArgs)
	default:
		fmt.Fprintf(os.Stderr, "luminary: unknown command %q\n", cmd)
		return 2
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error(cmd+" failed", "err", err)
		return 1
	}
	return 0
}

func loadConfig(path string) (*config.Config, error) {
	cfg := config.Default()
	if path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return nil, err
		}
	}
	config.ApplyEnv(cfg, os.Getenv)
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// syncWriter serialises the waveform line and transcript output.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

func (s *syncWriter) Printf(format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.w, "\r\033[K"+format, args...)
}

func runLive(ctx context.Context, cfg *config.Config, logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("live", flag.ContinueOnError)
	record := fs.String("record", "", "write the model's audio to this WAV file")
	noVisual := fs.Bool("no-visual", false, "disable the waveform line")
	columns := fs.Int("columns", 48, "waveform width in characters")
	if err := fs.Parse(args); err != nil {
		return err
	}

	out := &syncWriter{w: os.Stdout}

	var renderer visualizer.Renderer
	if !*noVisual {
		renderer = &visualizer.TextRenderer{W: out, Columns: *columns}
	}

	transport := gemini.NewLive(cfg.APIKey,
		gemini.WithBaseURL(cfg.Live.BaseURL),
		gemini.WithSetupTimeout(cfg.Live.SetupTimeout),
		gemini.WithTranscription(cfg.Live.Transcribe),
		gemini.WithLogger(live.NewSlogLogger(logger.With("component", "gemini"))),
	)

	devices, err := device.NewMalgo()
	if err != nil {
		return err
	}
	defer devices.Close()

	opts := []live.ControllerOption{
		live.WithControllerLogger(live.NewSlogLogger(logger.With("component", "live"))),
		live.WithStateHook(func(s live.State) {
			out.Printf("[%s]\n", strings.ToUpper(s.String()))
		}),
		live.WithTranscriptHook(func(t live.Transcript) {
			out.Printf("%s: %s\n", t.Speaker, t.Text)
		}),
		live.WithDecodeErrorHook(func(err error) {
			logger.Warn("dropped inbound audio", "err", err)
		}),
	}

	var rec *audio.Recorder
	if *record != "" {
		rec = audio.NewRecorder(cfg.Live.PlaybackRate, 1)
		opts = append(opts, live.WithPlaybackTap(rec.Add))
	}

	ctrl := live.NewController(transport, devices, cfg.Controller(renderer), opts...)
	if err := ctrl.Start(ctx); err != nil {
		return err
	}
	logger.Info("live session started", "session", ctrl.SessionID(), "model", cfg.Live.Model)
	out.Printf("Speak now. Press Ctrl+C to end the session.\n")

	waitErr := ctrl.Wait(ctx)
	stopErr := ctrl.Stop()

	if rec != nil {
		if err := os.WriteFile(*record, rec.WAV(), 0o644); err != nil {
			return fmt.Errorf("write recording: %w", err)
		}
		logger.Info("recording saved", "path", *record, "duration", rec.Duration())
	}
	return errors.Join(waitErr, stopErr)
}

func newStudio(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*studio.Studio, error) {
	return studio.NewGenAI(ctx, cfg.StudioOptions(), studio.WithLogger(logger.With("component", "studio")))
}

func prompt(fs *flag.FlagSet) (string, error) {
	p := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if p == "" {
		return "", studio.ErrEmptyPrompt
	}
	return p, nil
}

func runChat(ctx context.Context, cfg *config.Config, logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("chat", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	p, err := prompt(fs)
	if err != nil {
		return err
	}
	s, err := newStudio(ctx, cfg, logger)
	if err != nil {
		return err
	}

	msg, err := s.Chat(ctx, p)
	if err != nil {
		return err
	}
	fmt.Println(msg.Content)
	if len(msg.Sources) > 0 {
		fmt.Println()
		for _, src := range msg.Sources {
			fmt.Printf("  - %s <%s>\n", src.Title, src.URI)
		}
	}
	return nil
}

func runImage(ctx context.Context, cfg *config.Config, logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("image", flag.ContinueOnError)
	out := fs.String("out", "luminary.png", "output file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	p, err := prompt(fs)
	if err != nil {
		return err
	}
	s, err := newStudio(ctx, cfg, logger)
	if err != nil {
		return err
	}

	msg, err := s.Image(ctx, p)
	if err != nil {
		return err
	}
	if err := os.WriteFile(*out, msg.Data, 0o644); err != nil {
		return fmt.Errorf("write image: %w", err)
	}
	fmt.Printf("Saved %s (%s, %d bytes)\n", *out, msg.MIMEType, len(msg.Data))
	return nil
}

func runVideo(ctx context.Context, cfg *config.Config, logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("video", flag.ContinueOnError)
	out := fs.String("out", "luminary.mp4", "output file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	p, err := prompt(fs)
	if err != nil {
		return err
	}
	s, err := newStudio(ctx, cfg, logger)
	if err != nil {
		return err
	}

	pending, err := s.StartVideo(ctx, p)
	if err != nil {
		return err
	}
	fmt.Println(pending.Content)

	msg, err := s.AwaitVideo(ctx, pending)
	if err != nil {
		return err
	}
	if err := os.WriteFile(*out, msg.Data, 0o644); err != nil {
		return fmt.Errorf("write video: %w", err)
	}
	fmt.Printf("Saved %s (%s, %d bytes)\n", *out, msg.MIMEType, len(msg.Data))
	return nil
}
