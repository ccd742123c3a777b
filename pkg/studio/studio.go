// Package studio runs the one-shot generations of the studio: grounded
// chat, image synthesis and video synthesis with bounded polling.
package studio

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/genai"
)

const (
	defaultImageMIME = "image/png"
	defaultVideoMIME = "video/mp4"

	defaultPollInterval = 10 * time.Second
	defaultPollAttempts = 60

	noResponseText = "No response received."
	processingText = "Synthesizing cinematic motion..."
	fallbackTitle  = "Location Info"
)

// Models is the slice of *genai.Models the studio uses.
type Models interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
	GenerateVideos(ctx context.Context, model string, prompt string, image *genai.Image, config *genai.GenerateVideosConfig) (*genai.GenerateVideosOperation, error)
}

// Operations is the slice of *genai.Operations the studio uses.
type Operations interface {
	GetVideosOperation(ctx context.Context, operation *genai.GenerateVideosOperation, config *genai.GetOperationConfig) (*genai.GenerateVideosOperation, error)
}

// Files is the slice of *genai.Files used to fetch finished videos.
type Files interface {
	Download(ctx context.Context, uri genai.DownloadURI, config *genai.DownloadFileConfig) ([]byte, error)
}

// Location biases Maps grounding towards the user.
type Location struct {
	Lat float64
	Lng float64
}

type Config struct {
	APIKey string

	TextModel  string
	ImageModel string
	VideoModel string

	ImageAspectRatio string
	VideoResolution  string
	VideoAspectRatio string

	PollInterval time.Duration
	PollAttempts int

	// Location is optional; without it chat is grounded without a position.
	Location *Location
}

type Option func(*Studio)

func WithLogger(l *slog.Logger) Option {
	return func(s *Studio) {
		if l != nil {
			s.logger = l
		}
	}
}

// Studio records every prompt and reply in its History. Failed
// generations are recorded as a model text message too.
type Studio struct {
	models  Models
	ops     Operations
	files   Files
	cfg     Config
	logger  *slog.Logger
	history *History
}

func New(models Models, ops Operations, files Files, cfg Config, opts ...Option) *Studio {
	if cfg.PollInterval < 0 {
		cfg.PollInterval = 0
	} else if cfg.PollInterval == 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.PollAttempts <= 0 {
		cfg.PollAttempts = defaultPollAttempts
	}
	s := &Studio{
		models:  models,
		ops:     ops,
		files:   files,
		cfg:     cfg,
		logger:  slog.Default(),
		history: NewHistory(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewGenAI connects a Studio to the Gemini API with cfg.APIKey.
func NewGenAI(ctx context.Context, cfg Config, opts ...Option) (*Studio, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("studio: create genai client: %w", err)
	}
	return New(client.Models, client.Operations, client.Files, cfg, opts...), nil
}

func (s *Studio) History() *History { return s.history }

// Chat answers prompt with Google Search and Maps grounding.
func (s *Studio) Chat(ctx context.Context, prompt string) (Message, error) {
	if err := s.begin(KindText, prompt); err != nil {
		return Message{}, err
	}

	cfg := &genai.GenerateContentConfig{
		Tools: []*genai.Tool{
			{GoogleSearch: &genai.GoogleSearch{}},
			{GoogleMaps: &genai.GoogleMaps{}},
		},
	}
	if loc := s.cfg.Location; loc != nil {
		cfg.ToolConfig = &genai.ToolConfig{
			RetrievalConfig: &genai.RetrievalConfig{
				LatLng: &genai.LatLng{
					Latitude:  genai.Ptr(loc.Lat),
					Longitude: genai.Ptr(loc.Lng),
				},
			},
		}
	}

	resp, err := s.models.GenerateContent(ctx, s.cfg.TextModel, genai.Text(prompt), cfg)
	if err != nil {
		return Message{}, s.fail("chat", err)
	}
	cand, err := firstCandidate(resp)
	if err != nil {
		return Message{}, s.fail("chat", err)
	}

	text := candidateText(cand)
	if text == "" {
		text = noResponseText
	}
	msg := newMessage(RoleModel, KindText, text)
	msg.Sources = groundingSources(cand)
	s.history.Append(msg)
	return msg, nil
}

// Image returns the first inline image of the response.
func (s *Studio) Image(ctx context.Context, prompt string) (Message, error) {
	if err := s.begin(KindImage, prompt); err != nil {
		return Message{}, err
	}

	cfg := &genai.GenerateContentConfig{}
	if s.cfg.ImageAspectRatio != "" {
		cfg.ImageConfig = &genai.ImageConfig{AspectRatio: s.cfg.ImageAspectRatio}
	}
	resp, err := s.models.GenerateContent(ctx, s.cfg.ImageModel, genai.Text(prompt), cfg)
	if err != nil {
		return Message{}, s.fail("image", err)
	}
	cand, err := firstCandidate(resp)
	if err != nil {
		return Message{}, s.fail("image", err)
	}

	blob := firstInlineData(cand)
	if blob == nil {
		return Message{}, s.fail("image", ErrNoImage)
	}
	mimeType := blob.MIMEType
	if mimeType == "" {
		mimeType = defaultImageMIME
	}

	msg := newMessage(RoleModel, KindImage, "data:"+mimeType+";base64,"+base64.StdEncoding.EncodeToString(blob.Data))
	msg.Data = blob.Data
	msg.MIMEType = mimeType
	s.history.Append(msg)
	return msg, nil
}

// StartVideo submits a video generation and returns its processing message.
func (s *Studio) StartVideo(ctx context.Context, prompt string) (Message, error) {
	if err := s.begin(KindVideo, prompt); err != nil {
		return Message{}, err
	}

	op, err := s.models.GenerateVideos(ctx, s.cfg.VideoModel, prompt, nil, &genai.GenerateVideosConfig{
		NumberOfVideos: 1,
		Resolution:     s.cfg.VideoResolution,
		AspectRatio:    s.cfg.VideoAspectRatio,
	})
	if err != nil {
		return Message{}, s.fail("video", err)
	}

	msg := newMessage(RoleModel, KindVideo, processingText)
	msg.Status = StatusProcessing
	msg.OperationID = op.Name
	s.history.Append(msg)
	s.logger.Info("video generation started", "operation", op.Name, "messageID", msg.ID)
	return msg, nil
}

// AwaitVideo polls the operation behind a processing message until it
// finishes, downloads the video and marks the message ready. On failure the
// message is marked errored.
func (s *Studio) AwaitVideo(ctx context.Context, pending Message) (Message, error) {
	var video *genai.Video
	err := Poll(ctx, s.cfg.PollInterval, s.cfg.PollAttempts, func(ctx context.Context, attempt int) (bool, error) {
		op, err := s.ops.GetVideosOperation(ctx, &genai.GenerateVideosOperation{Name: pending.OperationID}, nil)
		if err != nil {
			s.logger.Warn("video poll failed", "operation", pending.OperationID, "attempt", attempt, "error", err)
			return false, err
		}
		if !op.Done {
			s.logger.Debug("video still processing", "operation", pending.OperationID, "attempt", attempt)
			return false, nil
		}
		video, err = finishedVideo(op)
		return true, err
	})
	if err == nil {
		err = s.download(ctx, video)
	}
	if err != nil {
		s.history.Update(pending.ID, func(m *Message) { m.Status = StatusError })
		return Message{}, s.fail("video", err)
	}

	mimeType := video.MIMEType
	if mimeType == "" {
		mimeType = defaultVideoMIME
	}
	msg, ok := s.history.Update(pending.ID, func(m *Message) {
		m.Content = video.URI
		m.Data = video.VideoBytes
		m.MIMEType = mimeType
		m.Status = StatusReady
	})
	if !ok {
		msg = pending
		msg.Content, msg.Data, msg.MIMEType, msg.Status = video.URI, video.VideoBytes, mimeType, StatusReady
	}
	s.logger.Info("video ready", "operation", pending.OperationID, "bytes", len(video.VideoBytes))
	return msg, nil
}

func (s *Studio) begin(kind Kind, prompt string) error {
	if strings.TrimSpace(prompt) == "" {
		return ErrEmptyPrompt
	}
	s.history.Append(newMessage(RoleUser, KindText, prompt))
	s.logger.Debug("studio request", "kind", string(kind), "bytes", len(prompt))
	return nil
}

// fail records the failure in the history and wraps err.
func (s *Studio) fail(op string, err error) error {
	s.logger.Error("studio generation failed", "op", op, "error", err)
	s.history.Append(newMessage(RoleModel, KindText, "Synthesis failed: "+err.Error()))
	return fmt.Errorf("studio: %s: %w", op, err)
}

// download fetches the video bytes unless the operation already inlined them.
func (s *Studio) download(ctx context.Context, video *genai.Video) error {
	if len(video.VideoBytes) > 0 {
		return nil
	}
	data, err := s.files.Download(ctx, genai.NewDownloadURIFromVideo(video), nil)
	if err != nil {
		return fmt.Errorf("download video: %w", err)
	}
	if len(data) == 0 {
		return fmt.Errorf("%w: empty download for %s", ErrVideoFailed, video.URI)
	}
	video.VideoBytes = data
	return nil
}

func firstCandidate(resp *genai.GenerateContentResponse) (*genai.Candidate, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0] == nil {
		return nil, ErrNoCandidates
	}
	return resp.Candidates[0], nil
}

func candidateText(c *genai.Candidate) string {
	if c.Content == nil {
		return ""
	}
	var b strings.Builder
	for _, p := range c.Content.Parts {
		if p != nil && !p.Thought {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}

func firstInlineData(c *genai.Candidate) *genai.Blob {
	if c.Content == nil {
		return nil
	}
	for _, p := range c.Content.Parts {
		if p != nil && p.InlineData != nil && len(p.InlineData.Data) > 0 {
			return p.InlineData
		}
	}
	return nil
}

// groundingSources keeps web and maps chunks, in response order.
func groundingSources(c *genai.Candidate) []Source {
	if c.GroundingMetadata == nil {
		return nil
	}
	var out []Source
	for _, chunk := range c.GroundingMetadata.GroundingChunks {
		if chunk == nil {
			continue
		}
		var src Source
		switch {
		case chunk.Web != nil:
			src = Source{Title: chunk.Web.Title, URI: chunk.Web.URI}
		case chunk.Maps != nil:
			src = Source{Title: chunk.Maps.Title, URI: chunk.Maps.URI}
		default:
			continue
		}
		if src.Title == "" {
			src.Title = fallbackTitle
		}
		out = append(out, src)
	}
	return out
}

func finishedVideo(op *genai.GenerateVideosOperation) (*genai.Video, error) {
	if len(op.Error) > 0 {
		return nil, fmt.Errorf("%w: %v", ErrVideoFailed, op.Error["message"])
	}
	if op.Response == nil || len(op.Response.GeneratedVideos) == 0 ||
		op.Response.GeneratedVideos[0] == nil || op.Response.GeneratedVideos[0].Video == nil {
		return nil, fmt.Errorf("%w: operation %s returned no video", ErrVideoFailed, op.Name)
	}
	return op.Response.GeneratedVideos[0].Video, nil
}
