// Package gemini connects live sessions to the Gemini Live API over the
// BidiGenerateContent websocket protocol.
package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/lokutor-ai/luminary/pkg/audio"
	"github.com/lokutor-ai/luminary/pkg/live"
)

const (
	defaultBaseURL      = "wss://generativelanguage.googleapis.com/ws"
	defaultSetupTimeout = 15 * time.Second

	keepaliveInterval = 20 * time.Second
	keepaliveTimeout  = 5 * time.Second

	readLimit = 16 * 1024 * 1024
)

var (
	ErrMissingAPIKey = errors.New("gemini: api key is required")

	// ErrSetupClosed is returned when the server hangs up before setupComplete
	ErrSetupClosed = errors.New("gemini: connection closed during setup")
)

// APIError is an error frame sent by the server.
type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status,omitempty"`
}

func (e *APIError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("gemini: %s (%d %s)", e.Message, e.Code, e.Status)
	}
	return fmt.Sprintf("gemini: %s (%d)", e.Message, e.Code)
}

type Option func(*Live)

// WithBaseURL overrides the websocket endpoint, mostly for tests.
func WithBaseURL(u string) Option {
	return func(l *Live) {
		if u != "" {
			l.baseURL = strings.TrimSuffix(u, "/")
		}
	}
}

// WithSetupTimeout bounds the wait for setupComplete.
func WithSetupTimeout(d time.Duration) Option {
	return func(l *Live) {
		if d > 0 {
			l.setupTimeout = d
		}
	}
}

// WithTranscription asks the server to transcribe both sides of an audio session.
func WithTranscription(on bool) Option {
	return func(l *Live) { l.transcribe = on }
}

// WithKeepalive sets the ping interval. Zero disables pings.
func WithKeepalive(d time.Duration) Option {
	return func(l *Live) { l.keepalive = d }
}

func WithLogger(logger live.Logger) Option {
	return func(l *Live) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// Live is a live.Transport for the Gemini Live API.
type Live struct {
	apiKey       string
	baseURL      string
	setupTimeout time.Duration
	keepalive    time.Duration
	transcribe   bool
	logger       live.Logger
}

var _ live.Transport = (*Live)(nil)

func NewLive(apiKey string, opts ...Option) *Live {
	l := &Live{
		apiKey:       apiKey,
		baseURL:      defaultBaseURL,
		setupTimeout: defaultSetupTimeout,
		keepalive:    keepaliveInterval,
		logger:       &live.NoOpLogger{},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Dial connects, sends the session setup and waits for the server to accept
// it. An error frame or a close before setupComplete fails the dial.
func (l *Live) Dial(ctx context.Context, cfg live.Config) (live.Conn, error) {
	if l.apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	wsURL := l.baseURL + "/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent?key=" + url.QueryEscape(l.apiKey)
	ws, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: http.Header{"Content-Type": []string{"application/json"}},
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: dial: %w", err)
	}
	ws.SetReadLimit(readLimit)

	setupCtx, cancel := context.WithTimeout(ctx, l.setupTimeout)
	defer cancel()

	if err := wsjson.Write(setupCtx, ws, buildSetup(cfg, l.transcribe)); err != nil {
		ws.Close(websocket.StatusInternalError, "setup failed")
		return nil, fmt.Errorf("gemini: send setup: %w", err)
	}
	if err := l.awaitSetup(setupCtx, ws); err != nil {
		ws.Close(websocket.StatusPolicyViolation, "setup rejected")
		return nil, err
	}
	l.logger.Debug("gemini setup complete", "model", cfg.Model)

	c := &conn{ws: ws, logger: l.logger, done: make(chan struct{})}
	if l.keepalive > 0 {
		go c.keepaliveLoop(l.keepalive)
	}
	return c, nil
}

func (l *Live) awaitSetup(ctx context.Context, ws *websocket.Conn) error {
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				return fmt.Errorf("%w: %v", ErrSetupClosed, err)
			}
			return fmt.Errorf("gemini: await setup: %w", err)
		}
		var msg serverMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			l.logger.Warn("gemini: skipping malformed frame during setup", "error", err, "bytes", len(data))
			continue
		}
		if msg.Error != nil {
			return msg.Error
		}
		if msg.SetupComplete != nil {
			return nil
		}
	}
}

type conn struct {
	ws     *websocket.Conn
	logger live.Logger

	done      chan struct{}
	closeOnce sync.Once
}

func (c *conn) Send(ctx context.Context, p audio.Payload) error {
	return wsjson.Write(ctx, c.ws, realtimeInputMessage{
		RealtimeInput: realtimeInput{MediaChunks: []audio.Payload{p}},
	})
}

// Recv returns the next serverContent frame. Frames carrying nothing the
// session uses are skipped.
func (c *conn) Recv(ctx context.Context) (*live.ServerMessage, error) {
	for {
		_, data, err := c.ws.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return nil, io.EOF
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("gemini: read: %w", err)
		}

		var msg serverMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Warn("gemini: skipping malformed frame", "error", err, "bytes", len(data))
			continue
		}
		switch {
		case msg.Error != nil:
			return nil, msg.Error
		case msg.GoAway != nil:
			c.logger.Warn("gemini: server going away", "timeLeft", msg.GoAway.TimeLeft)
		case msg.ServerContent != nil:
			return toServerMessage(msg.ServerContent), nil
		}
	}
}

// Close is idempotent.
func (c *conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.ws.Close(websocket.StatusNormalClosure, "session closed")
	})
	return err
}

func (c *conn) keepaliveLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), keepaliveTimeout)
			if err := c.ws.Ping(ctx); err != nil {
				c.logger.Debug("gemini: keepalive ping failed", "error", err)
			}
			cancel()
		}
	}
}
