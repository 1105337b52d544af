package worker

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"rotathumb/pkg/cache"
	"rotathumb/pkg/messaging"
	"rotathumb/pkg/render"
)

func writeSource(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	img := image.NewNRGBA(image.Rect(0, 0, 40, 30))
	for y := 0; y < 30; y++ {
		for x := 0; x < 40; x++ {
			img.SetNRGBA(x, y, color.NRGBA{uint8(x * 6), uint8(y * 8), 0x20, 0xff})
		}
	}
	path := filepath.Join(dir, "src.png")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Failed to create source: %v", err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("Failed to encode source: %v", err)
	}
	return path
}

func TestProcessorCompletesAndCaches(t *testing.T) {
	ctx := context.Background()
	store := cache.NewInMemoryJobStore()
	p := NewProcessor(store, cache.NewInMemoryCache(time.Hour))
	source := writeSource(t)

	first := messaging.JobMessage{JobID: "job-1", Job: render.DefaultJob(source)}
	if err := p.Process(ctx, first); err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	state, err := store.Get(ctx, "job-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if state.Status != cache.StatusCompleted || state.Cached {
		t.Errorf("unexpected state: %+v", state)
	}
	if state.Manifest == nil || len(state.Manifest.Outputs) != 35 {
		t.Fatalf("expected 35 outputs, got %+v", state.Manifest)
	}

	second := messaging.JobMessage{JobID: "job-2", Job: render.DefaultJob(source)}
	second.Job.OutputDir = filepath.Join(t.TempDir(), "unused")
	if err := p.Process(ctx, second); err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	state, _ = store.Get(ctx, "job-2")
	if state.Status != cache.StatusCompleted || !state.Cached {
		t.Errorf("expected cached completion, got %+v", state)
	}
	if _, err := os.Stat(second.Job.OutputDir); !os.IsNotExist(err) {
		t.Error("cache hit should not render again")
	}
}

func TestProcessorLogsToContextLogger(t *testing.T) {
	var buf bytes.Buffer
	ctx := zerolog.New(&buf).WithContext(context.Background())
	p := NewProcessor(cache.NewInMemoryJobStore(), nil)

	msg := messaging.JobMessage{JobID: "logged-job", Job: render.DefaultJob(writeSource(t))}
	msg.Job.Angles = []int{0, 90}
	if err := p.Process(ctx, msg); err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, `"job_id":"logged-job"`) || !strings.Contains(out, "job completed") {
		t.Errorf("expected job log lines on the context logger, got %q", out)
	}
}

func TestProcessorRecordsFailure(t *testing.T) {
	ctx := context.Background()
	store := cache.NewInMemoryJobStore()
	p := NewProcessor(store, nil)

	msg := messaging.JobMessage{JobID: "bad", Job: render.DefaultJob(filepath.Join(t.TempDir(), "missing.png"))}
	if err := p.Process(ctx, msg); err == nil {
		t.Fatal("expected an error")
	}
	state, err := store.Get(ctx, "bad")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if state.Status != cache.StatusFailed || state.Error == "" {
		t.Errorf("expected failed state with message, got %+v", state)
	}

	invalid := messaging.JobMessage{JobID: "invalid", Job: render.Job{}}
	if err := p.Process(ctx, invalid); !errors.Is(err, render.ErrInvalidJob) {
		t.Errorf("expected ErrInvalidJob, got %v", err)
	}
}

type fakeQueue struct {
	declared []string
	tasks    []messaging.FrameTask
	failAt   int
}

func (q *fakeQueue) DeclareQueue(name string) error {
	q.declared = append(q.declared, name)
	return nil
}

func (q *fakeQueue) PublishTask(_ context.Context, _ string, task messaging.FrameTask) error {
	if q.failAt > 0 && len(q.tasks) == q.failAt {
		return errors.New("broker down")
	}
	q.tasks = append(q.tasks, task)
	return nil
}

func (q *fakeQueue) ConsumeTasks(ctx context.Context, _ string, handler func(context.Context, messaging.FrameTask) error) error {
	for _, task := range q.tasks {
		if err := handler(ctx, task); err != nil {
			return err
		}
	}
	return nil
}

func TestDistributeAndFrameWorker(t *testing.T) {
	ctx := context.Background()
	source := writeSource(t)
	job := render.DefaultJob(source)
	job.OutputDir = filepath.Join(t.TempDir(), "frames")

	q := &fakeQueue{}
	n, err := Distribute(ctx, q, "frame_queue", "job-3", job)
	if err != nil {
		t.Fatalf("Distribute failed: %v", err)
	}
	if n != 35 || len(q.tasks) != 35 {
		t.Fatalf("expected 35 tasks, got %d/%d", n, len(q.tasks))
	}

	w := NewFrameWorker(q, "frame_queue")
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	for _, angle := range job.Angles {
		if _, err := os.Stat(job.OutputPath(angle)); err != nil {
			t.Errorf("missing frame for angle %d: %v", angle, err)
		}
	}
}

func TestDistributeStopsOnPublishError(t *testing.T) {
	q := &fakeQueue{failAt: 4}
	n, err := Distribute(context.Background(), q, "frame_queue", "job-4", render.DefaultJob("x.png"))
	if err == nil {
		t.Fatal("expected an error")
	}
	if n != 4 {
		t.Errorf("expected 4 tasks sent, got %d", n)
	}
}
