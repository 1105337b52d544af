package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"rotathumb/pkg/render"
)

var (
	// ErrJobNotFound is returned for an unknown job id
	ErrJobNotFound = errors.New("job not found")
)

// Status is the lifecycle state of a sweep job
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// JobState is everything known about a job
type JobState struct {
	ID        string           `json:"job_id"`
	Status    Status           `json:"status"`
	Error     string           `json:"error_message,omitempty"`
	Cached    bool             `json:"cached"`
	Manifest  *render.Manifest `json:"manifest,omitempty"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// JobStore tracks job status and results
type JobStore interface {
	SetStatus(ctx context.Context, id string, status Status, detail string) error
	SaveManifest(ctx context.Context, id string, manifest *render.Manifest, cached bool) error
	Get(ctx context.Context, id string) (*JobState, error)
}

// InMemoryJobStore keeps job state in process memory
type InMemoryJobStore struct {
	jobs  map[string]JobState
	mutex sync.RWMutex
}

// RedisJobStore keeps job state in Redis with a TTL
type RedisJobStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewInMemoryJobStore creates an empty in-memory job store
func NewInMemoryJobStore() *InMemoryJobStore {
	return &InMemoryJobStore{
		jobs: make(map[string]JobState),
	}
}

// NewRedisJobStore creates a Redis-backed job store
func NewRedisJobStore(client *redis.Client, ttl time.Duration) *RedisJobStore {
	return &RedisJobStore{
		client: client,
		ttl:    ttl,
	}
}

// SetStatus records a status change. For failed jobs detail is the error
// message; other statuses clear any previous error.
func (s *InMemoryJobStore) SetStatus(_ context.Context, id string, status Status, detail string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	state := s.jobs[id]
	state.ID = id
	state.Status = status
	state.Error = ""
	if status == StatusFailed {
		state.Error = detail
		state.Manifest = nil
	}
	state.UpdatedAt = time.Now()
	s.jobs[id] = state
	return nil
}

// SaveManifest stores the job's result
func (s *InMemoryJobStore) SaveManifest(_ context.Context, id string, manifest *render.Manifest, cached bool) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	state, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	state.Manifest = manifest
	state.Cached = cached
	state.UpdatedAt = time.Now()
	s.jobs[id] = state
	return nil
}

// Get returns a copy of the job state
func (s *InMemoryJobStore) Get(_ context.Context, id string) (*JobState, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	state, ok := s.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return &state, nil
}

func statusKey(id string) string   { return fmt.Sprintf("%s:status", id) }
func errorKey(id string) string    { return fmt.Sprintf("%s:error", id) }
func manifestKey(id string) string { return fmt.Sprintf("%s:manifest", id) }
func cachedKey(id string) string   { return fmt.Sprintf("%s:cached", id) }

// SetStatus updates the status keys in one pipeline
func (s *RedisJobStore) SetStatus(ctx context.Context, id string, status Status, detail string) error {
	pipe := s.client.TxPipeline()

	pipe.Set(ctx, statusKey(id), string(status), s.ttl)
	switch status {
	case StatusFailed:
		pipe.Set(ctx, errorKey(id), detail, s.ttl)
		pipe.Del(ctx, manifestKey(id), cachedKey(id))
	case StatusCompleted:
		pipe.Del(ctx, errorKey(id))
	default:
		// Clear results left by an earlier attempt
		pipe.Del(ctx, errorKey(id), manifestKey(id), cachedKey(id))
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to update status for job %s: %w", id, err)
	}
	return nil
}

// SaveManifest stores the job's result next to its status
func (s *RedisJobStore) SaveManifest(ctx context.Context, id string, manifest *render.Manifest, cached bool) error {
	data, err := json.Marshal(manifest)
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, manifestKey(id), data, s.ttl)
	pipe.Set(ctx, cachedKey(id), cached, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save manifest for job %s: %w", id, err)
	}
	return nil
}

// Get reads the status, error and manifest keys of a job
func (s *RedisJobStore) Get(ctx context.Context, id string) (*JobState, error) {
	vals, err := s.client.MGet(ctx, statusKey(id), errorKey(id), manifestKey(id), cachedKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get job %s: %w", id, err)
	}
	if vals[0] == nil {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}

	state := &JobState{ID: id, Status: Status(vals[0].(string))}
	if msg, ok := vals[1].(string); ok {
		state.Error = msg
	}
	if data, ok := vals[2].(string); ok {
		var m render.Manifest
		if err := json.Unmarshal([]byte(data), &m); err != nil {
			return nil, fmt.Errorf("corrupt manifest for job %s: %w", id, err)
		}
		state.Manifest = &m
	}
	if cached, ok := vals[3].(string); ok {
		state.Cached = cached == "1" || cached == "true"
	}
	return state, nil
}
