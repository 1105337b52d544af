package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"

	"rotathumb/pkg/cache"
	"rotathumb/pkg/config"
	"rotathumb/pkg/messaging"
	"rotathumb/pkg/worker"
)

// inlinePublisher runs jobs immediately instead of queueing them
type inlinePublisher struct {
	processor *worker.Processor
	published []messaging.JobMessage
	err       error
}

func (p *inlinePublisher) PublishJob(ctx context.Context, msg messaging.JobMessage) error {
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, msg)
	if p.processor != nil {
		p.processor.Process(ctx, msg)
	}
	return nil
}

func setupTestServer(t *testing.T, run bool) (*gin.Engine, *inlinePublisher) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dir := t.TempDir()
	cfg := config.Default()
	cfg.UploadDir = filepath.Join(dir, "uploads")
	cfg.OutputDir = filepath.Join(dir, "frames")

	store := cache.NewInMemoryJobStore()
	pub := &inlinePublisher{}
	if run {
		pub.processor = worker.NewProcessor(store, cache.NewInMemoryCache(0))
	}
	s := &server{cfg: cfg, store: store, publisher: pub}
	return newRouter(s), pub
}

func uploadRequest(t *testing.T, fields map[string]string, withImage bool) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	if withImage {
		fw, err := mw.CreateFormFile("image", "seven.png")
		if err != nil {
			t.Fatalf("Failed to create form file: %v", err)
		}
		img := image.NewNRGBA(image.Rect(0, 0, 56, 42))
		for y := 0; y < 42; y++ {
			for x := 0; x < 56; x++ {
				img.SetNRGBA(x, y, color.NRGBA{0x10, uint8(x * 4), uint8(y * 5), 0xff})
			}
		}
		if err := png.Encode(fw, img); err != nil {
			t.Fatalf("Failed to encode image: %v", err)
		}
	}
	for k, v := range fields {
		mw.WriteField(k, v)
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func do(router *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func uploadedJobID(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp struct {
		JobID string `json:"job_id"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode upload response: %v", err)
	}
	if resp.JobID == "" {
		t.Fatal("expected a job id")
	}
	return resp.JobID
}

func TestUploadAndFetch(t *testing.T) {
	router, pub := setupTestServer(t, true)

	w := do(router, uploadRequest(t, map[string]string{"angle_step": "90", "angle_count": "4", "fill": "#000"}, true))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	jobID := uploadedJobID(t, w)

	if len(pub.published) != 1 {
		t.Fatalf("expected one published job, got %d", len(pub.published))
	}
	job := pub.published[0].Job
	if len(job.Angles) != 4 || job.Angles[3] != 270 || job.Fill != "#000" {
		t.Errorf("form fields not applied: %+v", job)
	}

	w = do(router, httptest.NewRequest(http.MethodGet, "/api/status/"+jobID, nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var state cache.JobState
	if err := json.Unmarshal(w.Body.Bytes(), &state); err != nil {
		t.Fatalf("Failed to decode status: %v", err)
	}
	if state.Status != cache.StatusCompleted || state.Manifest == nil || len(state.Manifest.Outputs) != 4 {
		t.Fatalf("unexpected state: %+v", state)
	}

	w = do(router, httptest.NewRequest(http.MethodGet, "/api/frames/"+jobID+"/180", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	cfg, err := png.DecodeConfig(w.Body)
	if err != nil {
		t.Fatalf("frame is not a PNG: %v", err)
	}
	if cfg.Width != 28 || cfg.Height != 21 {
		t.Errorf("expected 28x21 frame, got %dx%d", cfg.Width, cfg.Height)
	}

	w = do(router, httptest.NewRequest(http.MethodGet, "/api/frames/"+jobID+"/45", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for missing angle, got %d", w.Code)
	}

	w = do(router, httptest.NewRequest(http.MethodGet, "/api/sheet/"+jobID, nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if !bytes.HasPrefix(w.Body.Bytes(), []byte("%PDF")) {
		t.Error("sheet is not a PDF")
	}
}

func TestUploadValidation(t *testing.T) {
	router, pub := setupTestServer(t, false)

	tests := []struct {
		name      string
		fields    map[string]string
		withImage bool
	}{
		{"no image", nil, false},
		{"bad fill", map[string]string{"fill": "mauve"}, true},
		{"bad size", map[string]string{"size": "big"}, true},
		{"zero count", map[string]string{"angle_count": "0"}, true},
		{"bad expand", map[string]string{"expand": "yes"}, true},
		{"bad grayscale", map[string]string{"grayscale": "maybe"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(router, uploadRequest(t, tt.fields, tt.withImage))
			if w.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d: %s", w.Code, w.Body.String())
			}
		})
	}
	if len(pub.published) != 0 {
		t.Errorf("invalid uploads should not be published, got %d", len(pub.published))
	}
}

func TestUploadPublishFailure(t *testing.T) {
	router, pub := setupTestServer(t, false)
	pub.err = errors.New("kafka down")

	w := do(router, uploadRequest(t, nil, true))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	if len(pub.published) != 0 {
		t.Errorf("expected nothing published, got %d", len(pub.published))
	}
}

func TestPendingAndUnknownJobs(t *testing.T) {
	router, _ := setupTestServer(t, false)

	w := do(router, uploadRequest(t, nil, true))
	jobID := uploadedJobID(t, w)

	w = do(router, httptest.NewRequest(http.MethodGet, "/api/status/"+jobID, nil))
	if w.Code != http.StatusOK || !bytes.Contains(w.Body.Bytes(), []byte(`"queued"`)) {
		t.Errorf("expected queued status, got %d: %s", w.Code, w.Body.String())
	}

	w = do(router, httptest.NewRequest(http.MethodGet, "/api/sheet/"+jobID, nil))
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for pending job, got %d", w.Code)
	}

	w = do(router, httptest.NewRequest(http.MethodGet, "/api/frames/"+jobID+"/ten", nil))
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad angle, got %d", w.Code)
	}

	w = do(router, httptest.NewRequest(http.MethodGet, "/api/status/nope", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}
