package studio

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"google.golang.org/genai"
)

type fakeModels struct {
	resp    *genai.GenerateContentResponse
	err     error
	videoOp *genai.GenerateVideosOperation

	model    string
	cfg      *genai.GenerateContentConfig
	videoCfg *genai.GenerateVideosConfig
}

func (m *fakeModels) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	m.model, m.cfg = model, config
	return m.resp, m.err
}

func (m *fakeModels) GenerateVideos(ctx context.Context, model string, prompt string, image *genai.Image, config *genai.GenerateVideosConfig) (*genai.GenerateVideosOperation, error) {
	m.model, m.videoCfg = model, config
	return m.videoOp, m.err
}

// fakeOps replays one step per poll; a step is either an error or an operation.
type fakeOps struct {
	steps []any
	calls int
}

func (o *fakeOps) GetVideosOperation(ctx context.Context, op *genai.GenerateVideosOperation, config *genai.GetOperationConfig) (*genai.GenerateVideosOperation, error) {
	step := o.steps[min(o.calls, len(o.steps)-1)]
	o.calls++
	if err, ok := step.(error); ok {
		return nil, err
	}
	return step.(*genai.GenerateVideosOperation), nil
}

type fakeFiles struct {
	data  []byte
	err   error
	calls int
}

func (f *fakeFiles) Download(ctx context.Context, uri genai.DownloadURI, config *genai.DownloadFileConfig) ([]byte, error) {
	f.calls++
	return f.data, f.err
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() Config {
	return Config{
		APIKey:           "test-key",
		TextModel:        "text-model",
		ImageModel:       "image-model",
		VideoModel:       "video-model",
		ImageAspectRatio: "1:1",
		VideoResolution:  "720p",
		VideoAspectRatio: "16:9",
		PollInterval:     -1,
		PollAttempts:     5,
	}
}

func textResponse(parts ...*genai.Part) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: &genai.Content{Role: "model", Parts: parts}}},
	}
}

func TestChat_GroundedReply(t *testing.T) {
	resp := textResponse(&genai.Part{Text: "The gallery "}, &genai.Part{Text: "opens at nine."})
	resp.Candidates[0].GroundingMetadata = &genai.GroundingMetadata{
		GroundingChunks: []*genai.GroundingChunk{
			{Web: &genai.GroundingChunkWeb{Title: "Gallery", URI: "https://example.com/gallery"}},
			{},
			{Maps: &genai.GroundingChunkMaps{URI: "https://maps.example.com/p/1"}},
		},
	}
	models := &fakeModels{resp: resp}
	cfg := testConfig()
	cfg.Location = &Location{Lat: 48.85, Lng: 2.35}
	s := New(models, &fakeOps{}, &fakeFiles{}, cfg, WithLogger(quietLogger()))

	msg, err := s.Chat(context.Background(), "When does the gallery open?")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.Content != "The gallery opens at nine." || msg.Role != RoleModel || msg.Kind != KindText {
		t.Errorf("unexpected message %+v", msg)
	}
	if models.model != "text-model" {
		t.Errorf("expected text model, got %q", models.model)
	}
	if len(models.cfg.Tools) != 2 || models.cfg.Tools[0].GoogleSearch == nil || models.cfg.Tools[1].GoogleMaps == nil {
		t.Errorf("expected search and maps tools, got %+v", models.cfg.Tools)
	}
	ll := models.cfg.ToolConfig.RetrievalConfig.LatLng
	if *ll.Latitude != 48.85 || *ll.Longitude != 2.35 {
		t.Errorf("unexpected retrieval position %v,%v", *ll.Latitude, *ll.Longitude)
	}

	want := []Source{
		{Title: "Gallery", URI: "https://example.com/gallery"},
		{Title: "Location Info", URI: "https://maps.example.com/p/1"},
	}
	if len(msg.Sources) != len(want) {
		t.Fatalf("expected %d sources, got %+v", len(want), msg.Sources)
	}
	for i := range want {
		if msg.Sources[i] != want[i] {
			t.Errorf("source %d: expected %+v, got %+v", i, want[i], msg.Sources[i])
		}
	}

	hist := s.History().Messages()
	if len(hist) != 2 || hist[0].Role != RoleUser || hist[1].ID != msg.ID {
		t.Errorf("unexpected history %+v", hist)
	}
}

func TestChat_NoLocation(t *testing.T) {
	models := &fakeModels{resp: textResponse()}
	s := New(models, &fakeOps{}, &fakeFiles{}, testConfig(), WithLogger(quietLogger()))

	msg, err := s.Chat(context.Background(), "hi")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if models.cfg.ToolConfig != nil {
		t.Error("expected no retrieval config without a location")
	}
	if msg.Content != "No response received." {
		t.Errorf("expected fallback text, got %q", msg.Content)
	}
}

func TestChat_Failure(t *testing.T) {
	boom := errors.New("quota exceeded")
	s := New(&fakeModels{err: boom}, &fakeOps{}, &fakeFiles{}, testConfig(), WithLogger(quietLogger()))

	_, err := s.Chat(context.Background(), "hi")
	if !errors.Is(err, boom) {
		t.Fatalf("expected quota error, got %v", err)
	}
	hist := s.History().Messages()
	last := hist[len(hist)-1]
	if last.Role != RoleModel || last.Content != "Synthesis failed: quota exceeded" {
		t.Errorf("expected failure recorded, got %+v", last)
	}
}

func TestChat_NoCandidates(t *testing.T) {
	s := New(&fakeModels{resp: &genai.GenerateContentResponse{}}, &fakeOps{}, &fakeFiles{}, testConfig(), WithLogger(quietLogger()))
	if _, err := s.Chat(context.Background(), "hi"); !errors.Is(err, ErrNoCandidates) {
		t.Errorf("expected ErrNoCandidates, got %v", err)
	}
}

func TestChat_EmptyPrompt(t *testing.T) {
	s := New(&fakeModels{}, &fakeOps{}, &fakeFiles{}, testConfig())
	if _, err := s.Chat(context.Background(), "   "); !errors.Is(err, ErrEmptyPrompt) {
		t.Errorf("expected ErrEmptyPrompt, got %v", err)
	}
	if s.History().Len() != 0 {
		t.Error("empty prompts are not recorded")
	}
}

func TestImage(t *testing.T) {
	png := []byte{0x89, 'P', 'N', 'G'}
	models := &fakeModels{resp: textResponse(
		&genai.Part{Text: "Here it is"},
		&genai.Part{InlineData: &genai.Blob{MIMEType: "image/png", Data: png}},
	)}
	s := New(models, &fakeOps{}, &fakeFiles{}, testConfig(), WithLogger(quietLogger()))

	msg, err := s.Image(context.Background(), "a lighthouse")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.Kind != KindImage || msg.Content != "data:image/png;base64,iVBORw==" {
		t.Errorf("unexpected message %+v", msg)
	}
	if string(msg.Data) != string(png) {
		t.Errorf("expected raw bytes kept")
	}
	if models.model != "image-model" || models.cfg.ImageConfig.AspectRatio != "1:1" {
		t.Errorf("unexpected request %q %+v", models.model, models.cfg.ImageConfig)
	}
}

func TestImage_NoImagePart(t *testing.T) {
	s := New(&fakeModels{resp: textResponse(&genai.Part{Text: "sorry"})}, &fakeOps{}, &fakeFiles{}, testConfig(), WithLogger(quietLogger()))
	if _, err := s.Image(context.Background(), "a lighthouse"); !errors.Is(err, ErrNoImage) {
		t.Errorf("expected ErrNoImage, got %v", err)
	}
}

func TestVideo_StartAndAwait(t *testing.T) {
	uri := "https://generativelanguage.googleapis.com/v1beta/files/abc:download?alt=media"
	files := &fakeFiles{data: []byte("MP4DATA")}

	models := &fakeModels{videoOp: &genai.GenerateVideosOperation{Name: "operations/v1"}}
	ops := &fakeOps{steps: []any{
		&genai.GenerateVideosOperation{Name: "operations/v1"},
		errors.New("transient"),
		&genai.GenerateVideosOperation{Name: "operations/v1", Done: true, Response: &genai.GenerateVideosResponse{
			GeneratedVideos: []*genai.GeneratedVideo{{Video: &genai.Video{URI: uri}}},
		}},
	}}
	s := New(models, ops, files, testConfig(), WithLogger(quietLogger()))

	pending, err := s.StartVideo(context.Background(), "waves at dusk")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if pending.Status != StatusProcessing || pending.OperationID != "operations/v1" {
		t.Fatalf("unexpected pending message %+v", pending)
	}
	if c := models.videoCfg; c.NumberOfVideos != 1 || c.Resolution != "720p" || c.AspectRatio != "16:9" {
		t.Errorf("unexpected video config %+v", c)
	}

	ready, err := s.AwaitVideo(context.Background(), pending)
	if err != nil {
		t.Fatalf("await: %v", err)
	}
	if ops.calls != 3 || files.calls != 1 {
		t.Errorf("expected 3 polls and 1 download, got %d/%d", ops.calls, files.calls)
	}
	if ready.ID != pending.ID || ready.Status != StatusReady || string(ready.Data) != "MP4DATA" || ready.MIMEType != "video/mp4" {
		t.Errorf("unexpected ready message %+v", ready)
	}
	if stored, _ := s.History().Get(pending.ID); stored.Status != StatusReady {
		t.Errorf("expected history updated, got %s", stored.Status)
	}
}

func TestVideo_PollExhausted(t *testing.T) {
	ops := &fakeOps{steps: []any{&genai.GenerateVideosOperation{Name: "operations/v2"}}}
	s := New(&fakeModels{videoOp: &genai.GenerateVideosOperation{Name: "operations/v2"}}, ops, &fakeFiles{}, testConfig(), WithLogger(quietLogger()))

	pending, _ := s.StartVideo(context.Background(), "waves")
	_, err := s.AwaitVideo(context.Background(), pending)
	if !errors.Is(err, ErrPollExhausted) {
		t.Fatalf("expected ErrPollExhausted, got %v", err)
	}
	if ops.calls != 5 {
		t.Errorf("expected 5 attempts, got %d", ops.calls)
	}
	if stored, _ := s.History().Get(pending.ID); stored.Status != StatusError {
		t.Errorf("expected errored message, got %s", stored.Status)
	}
}

func TestVideo_OperationError(t *testing.T) {
	ops := &fakeOps{steps: []any{&genai.GenerateVideosOperation{
		Name:  "operations/v3",
		Done:  true,
		Error: map[string]any{"message": "safety filter"},
	}}}
	s := New(&fakeModels{videoOp: &genai.GenerateVideosOperation{Name: "operations/v3"}}, ops, &fakeFiles{}, testConfig(), WithLogger(quietLogger()))

	pending, _ := s.StartVideo(context.Background(), "waves")
	_, err := s.AwaitVideo(context.Background(), pending)
	if !errors.Is(err, ErrVideoFailed) || !strings.Contains(err.Error(), "safety filter") {
		t.Fatalf("expected ErrVideoFailed, got %v", err)
	}
	if ops.calls != 1 {
		t.Errorf("a failed operation must not be polled again, got %d calls", ops.calls)
	}
}

func TestVideo_DownloadFailed(t *testing.T) {
	denied := errors.New("permission denied")
	files := &fakeFiles{err: denied}
	ops := &fakeOps{steps: []any{&genai.GenerateVideosOperation{Done: true, Response: &genai.GenerateVideosResponse{
		GeneratedVideos: []*genai.GeneratedVideo{{Video: &genai.Video{URI: "https://example.com/v?alt=media"}}},
	}}}}
	s := New(&fakeModels{videoOp: &genai.GenerateVideosOperation{Name: "operations/v4"}}, ops, files, testConfig(), WithLogger(quietLogger()))

	pending, _ := s.StartVideo(context.Background(), "waves")
	if _, err := s.AwaitVideo(context.Background(), pending); !errors.Is(err, denied) {
		t.Fatalf("expected the download failure, got %v", err)
	}
	if stored, _ := s.History().Get(pending.ID); stored.Status != StatusError {
		t.Errorf("expected errored message, got %s", stored.Status)
	}
}

func TestVideo_InlineBytesSkipDownload(t *testing.T) {
	files := &fakeFiles{err: errors.New("must not be called")}
	ops := &fakeOps{steps: []any{&genai.GenerateVideosOperation{Done: true, Response: &genai.GenerateVideosResponse{
		GeneratedVideos: []*genai.GeneratedVideo{{Video: &genai.Video{VideoBytes: []byte("INLINE"), MIMEType: "video/webm"}}},
	}}}}
	s := New(&fakeModels{videoOp: &genai.GenerateVideosOperation{Name: "operations/v5"}}, ops, files, testConfig(), WithLogger(quietLogger()))

	pending, _ := s.StartVideo(context.Background(), "waves")
	ready, err := s.AwaitVideo(context.Background(), pending)
	if err != nil {
		t.Fatalf("await: %v", err)
	}
	if files.calls != 0 || string(ready.Data) != "INLINE" || ready.MIMEType != "video/webm" {
		t.Errorf("unexpected ready message %+v after %d downloads", ready, files.calls)
	}
}
