package worker

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"rotathumb/pkg/cache"
	"rotathumb/pkg/messaging"
	"rotathumb/pkg/render"
)

// Processor runs whole sweep jobs and records their progress
type Processor struct {
	store cache.JobStore
	cache cache.Cache
}

// NewProcessor creates a processor. The cache may be nil.
func NewProcessor(store cache.JobStore, c cache.Cache) *Processor {
	return &Processor{
		store: store,
		cache: c,
	}
}

// Process runs one job. Its outcome is always written to the job store;
// the returned error is for logging only.
func (p *Processor) Process(ctx context.Context, msg messaging.JobMessage) error {
	logger := zerolog.Ctx(ctx).With().Str("job_id", msg.JobID).Logger()
	ctx = logger.WithContext(ctx)
	job := msg.Job

	fail := func(err error) error {
		if serr := p.store.SetStatus(ctx, msg.JobID, cache.StatusFailed, err.Error()); serr != nil {
			logger.Error().Err(serr).Msg("failed to record failure")
		}
		return fmt.Errorf("job %s: %w", msg.JobID, err)
	}

	if err := job.Validate(); err != nil {
		return fail(err)
	}
	if err := p.store.SetStatus(ctx, msg.JobID, cache.StatusProcessing, ""); err != nil {
		logger.Warn().Err(err).Msg("failed to set processing status")
	}

	// --- Cache Check ---
	var cacheKey string
	if p.cache != nil {
		hash, err := render.HashFile(job.Source)
		if err != nil {
			return fail(fmt.Errorf("failed to hash source: %w", err))
		}
		cacheKey = job.CacheKey(hash)

		if manifest, ok := p.cache.Get(ctx, cacheKey); ok && manifest.Exists() {
			logger.Info().Str("hash", hash).Msg("cache hit")
			return p.complete(ctx, msg.JobID, manifest, true)
		}
		logger.Debug().Str("hash", hash).Msg("cache miss")
	}

	manifest, err := render.Run(ctx, job)
	if err != nil {
		return fail(err)
	}

	if p.cache != nil {
		if err := p.cache.Set(ctx, cacheKey, manifest); err != nil {
			logger.Warn().Err(err).Msg("failed to cache manifest")
		}
	}
	return p.complete(ctx, msg.JobID, manifest, false)
}

func (p *Processor) complete(ctx context.Context, jobID string, manifest *render.Manifest, cached bool) error {
	if err := p.store.SaveManifest(ctx, jobID, manifest, cached); err != nil {
		return fmt.Errorf("job %s: %w", jobID, err)
	}
	if err := p.store.SetStatus(ctx, jobID, cache.StatusCompleted, ""); err != nil {
		return fmt.Errorf("job %s: %w", jobID, err)
	}
	zerolog.Ctx(ctx).Info().Int("frames", len(manifest.Outputs)).Bool("cached", cached).Msg("job completed")
	return nil
}

// TaskConsumer is the queue side a FrameWorker reads from
type TaskConsumer interface {
	DeclareQueue(name string) error
	ConsumeTasks(ctx context.Context, queueName string, handler func(context.Context, messaging.FrameTask) error) error
}

// TaskPublisher is the queue side Distribute writes to
type TaskPublisher interface {
	DeclareQueue(name string) error
	PublishTask(ctx context.Context, queueName string, task messaging.FrameTask) error
}

// FrameWorker renders single frames handed out over a task queue
type FrameWorker struct {
	mq        TaskConsumer
	queueName string
}

// NewFrameWorker creates a worker for queueName
func NewFrameWorker(mq TaskConsumer, queueName string) *FrameWorker {
	return &FrameWorker{
		mq:        mq,
		queueName: queueName,
	}
}

// Start declares the queue and begins consuming
func (w *FrameWorker) Start(ctx context.Context) error {
	zerolog.Ctx(ctx).Info().Str("queue", w.queueName).Msg("starting frame worker")

	if err := w.mq.DeclareQueue(w.queueName); err != nil {
		return fmt.Errorf("failed to declare frame queue: %w", err)
	}
	return w.mq.ConsumeTasks(ctx, w.queueName, w.HandleTask)
}

// HandleTask renders and saves the frame for one angle
func (w *FrameWorker) HandleTask(ctx context.Context, task messaging.FrameTask) error {
	logger := zerolog.Ctx(ctx).With().Str("job_id", task.JobID).Int("angle", task.Angle).Logger()

	img, err := render.Open(task.Job)
	if err != nil {
		return err
	}
	frame, err := render.RenderAngle(img, task.Job, task.Angle)
	if err != nil {
		return fmt.Errorf("render angle %d: %w", task.Angle, err)
	}

	if err := os.MkdirAll(task.Job.Dir(), 0755); err != nil {
		return fmt.Errorf("cannot create output directory %s: %w", task.Job.Dir(), err)
	}
	path := task.Job.OutputPath(task.Angle)
	if err := render.Save(path, frame); err != nil {
		return err
	}

	logger.Info().Str("path", path).Msg("frame task completed")
	return nil
}

// Distribute publishes one frame task per angle of job and returns how
// many were sent
func Distribute(ctx context.Context, pub TaskPublisher, queueName, jobID string, job render.Job) (int, error) {
	if err := job.Validate(); err != nil {
		return 0, err
	}
	if err := pub.DeclareQueue(queueName); err != nil {
		return 0, fmt.Errorf("failed to declare frame queue: %w", err)
	}

	for i, angle := range job.Angles {
		task := messaging.FrameTask{JobID: jobID, Angle: angle, Job: job}
		if err := pub.PublishTask(ctx, queueName, task); err != nil {
			return i, fmt.Errorf("angle %d: %w", angle, err)
		}
	}
	return len(job.Angles), nil
}
