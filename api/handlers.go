package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"rotathumb/pkg/cache"
	"rotathumb/pkg/config"
	"rotathumb/pkg/messaging"
	"rotathumb/pkg/render"
	"rotathumb/pkg/rotation"
	"rotathumb/pkg/sheet"
)

// jobPublisher hands accepted jobs to the workers
type jobPublisher interface {
	PublishJob(ctx context.Context, msg messaging.JobMessage) error
}

type server struct {
	cfg       config.Config
	store     cache.JobStore
	publisher jobPublisher
}

func newRouter(s *server) *gin.Engine {
	router := gin.New()
	router.Use(loggingMiddleware())
	router.Use(gin.CustomRecovery(handlePanics()))

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	router.Use(cors.New(corsConfig))

	router.POST("/api/upload", s.handleUpload)
	router.GET("/api/status/:job_id", s.handleStatus)
	router.GET("/api/frames/:job_id/:angle", s.handleFrame)
	router.GET("/api/sheet/:job_id", s.handleSheet)
	return router
}

// jobFromForm builds the render job for an upload, starting from the
// configured defaults
func (s *server) jobFromForm(c *gin.Context, jobID, source string) (render.Job, error) {
	job := s.cfg.Render
	job.Source = source
	job.OutputDir = filepath.Join(s.cfg.OutputDir, jobID)

	intField := func(name string, def int) (int, error) {
		v := c.PostForm(name)
		if v == "" {
			return def, nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("%w: %s must be an integer", render.ErrInvalidJob, name)
		}
		return n, nil
	}

	if c.PostForm("angle_start") != "" || c.PostForm("angle_step") != "" || c.PostForm("angle_count") != "" {
		start, err := intField("angle_start", 0)
		if err != nil {
			return job, err
		}
		step, err := intField("angle_step", 10)
		if err != nil {
			return job, err
		}
		count, err := intField("angle_count", 35)
		if err != nil {
			return job, err
		}
		job.Angles = rotation.Angles(start, step, count)
	}

	size, err := intField("size", job.Width)
	if err != nil {
		return job, err
	}
	job.Width, job.Height = size, size

	if v := c.PostForm("fill"); v != "" {
		job.Fill = v
	}
	if v := c.PostForm("engine"); v != "" {
		job.Engine = v
	}
	if v := c.PostForm("filter"); v != "" {
		job.Filter = v
	}
	boolField := func(name string, def bool) (bool, error) {
		v := c.PostForm(name)
		if v == "" {
			return def, nil
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return false, fmt.Errorf("%w: %s must be a boolean", render.ErrInvalidJob, name)
		}
		return b, nil
	}
	if job.Expand, err = boolField("expand", job.Expand); err != nil {
		return job, err
	}
	if job.Grayscale, err = boolField("grayscale", job.Grayscale); err != nil {
		return job, err
	}

	return job, job.Validate()
}

func (s *server) handleUpload(c *gin.Context) {
	file, err := c.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Image file is required"})
		return
	}

	jobID := uuid.New().String()
	// filepath.Base keeps the upload inside the upload directory
	uploadPath := filepath.Join(s.cfg.UploadDir, fmt.Sprintf("%s-%s", jobID, filepath.Base(file.Filename)))
	logger := log.With().Str("job_id", jobID).Logger()

	job, err := s.jobFromForm(c, jobID, uploadPath)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := os.MkdirAll(s.cfg.UploadDir, 0755); err != nil {
		logger.Error().Err(err).Msg("Cannot create upload directory")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save uploaded file"})
		return
	}
	if err := c.SaveUploadedFile(file, uploadPath); err != nil {
		logger.Error().Err(err).Msg("Error saving uploaded file")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save uploaded file"})
		return
	}

	ctx := c.Request.Context()
	if err := s.store.SetStatus(ctx, jobID, cache.StatusQueued, ""); err != nil {
		logger.Error().Err(err).Msg("Error setting initial status")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to initiate job processing"})
		return
	}

	if err := s.publisher.PublishJob(ctx, messaging.JobMessage{JobID: jobID, Job: job}); err != nil {
		logger.Error().Err(err).Msg("Error queueing job")
		s.store.SetStatus(ctx, jobID, cache.StatusFailed, "failed to queue job")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to queue job for processing"})
		return
	}
	logger.Info().Str("file", file.Filename).Int("angles", len(job.Angles)).Msg("Job queued")

	c.JSON(http.StatusOK, gin.H{
		"message": "File uploaded successfully. Processing queued.",
		"job_id":  jobID,
	})
}

// lookup fetches a job and writes the error response when it cannot be used
func (s *server) lookup(c *gin.Context, requireComplete bool) (*cache.JobState, bool) {
	jobID := c.Param("job_id")
	state, err := s.store.Get(c.Request.Context(), jobID)
	if errors.Is(err, cache.ErrJobNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
		return nil, false
	}
	if err != nil {
		log.Error().Err(err).Str("job_id", jobID).Msg("Error getting job status")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get job status"})
		return nil, false
	}

	if requireComplete && (state.Status != cache.StatusCompleted || state.Manifest == nil) {
		response := gin.H{"error": "Job not completed", "status": state.Status}
		if state.Error != "" {
			response["error_message"] = state.Error
		}
		c.JSON(http.StatusBadRequest, response)
		return nil, false
	}
	return state, true
}

func (s *server) handleStatus(c *gin.Context) {
	state, ok := s.lookup(c, false)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, state)
}

func (s *server) handleFrame(c *gin.Context) {
	angle, err := strconv.Atoi(c.Param("angle"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Angle must be an integer"})
		return
	}
	state, ok := s.lookup(c, true)
	if !ok {
		return
	}

	for _, out := range state.Manifest.Outputs {
		if out.Angle == angle {
			c.Header("Content-Type", "image/png")
			c.File(out.Path)
			return
		}
	}
	c.JSON(http.StatusNotFound, gin.H{"error": "No frame for that angle"})
}

func (s *server) handleSheet(c *gin.Context) {
	state, ok := s.lookup(c, true)
	if !ok {
		return
	}

	var buf bytes.Buffer
	if err := sheet.Write(state.Manifest, &buf, sheet.DefaultConfig()); err != nil {
		log.Error().Err(err).Str("job_id", state.ID).Msg("Error building contact sheet")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to build contact sheet"})
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s.pdf\"", state.ID))
	c.Data(http.StatusOK, "application/pdf", buf.Bytes())
}
