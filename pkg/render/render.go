package render

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	"io"
	"os"
	"time"

	"github.com/anthonynsimon/bild/imgio"
	"github.com/rs/zerolog"

	"rotathumb/pkg/imagefilter"
	"rotathumb/pkg/rotation"
)

// Frame is one rotated thumbnail
type Frame struct {
	Angle int
	Image *image.NRGBA
}

// Output records a frame written to disk
type Output struct {
	Angle  int    `json:"angle"`
	Path   string `json:"path"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// Manifest lists everything a sweep produced
type Manifest struct {
	Source     string        `json:"source"`
	SourceHash string        `json:"source_hash"`
	Outputs    []Output      `json:"outputs"`
	Elapsed    time.Duration `json:"elapsed"`
}

// Sweep rotates and thumbnails img once per angle, handing each frame to fn
// in angle order. It stops at the first error from fn or when ctx is done.
func Sweep(ctx context.Context, img image.Image, job Job, fn func(Frame) error) error {
	s, err := job.settings()
	if err != nil {
		return err
	}

	src := imagefilter.Apply(img, s.filters)
	for _, angle := range job.Angles {
		if err := ctx.Err(); err != nil {
			return err
		}

		rotated := s.rotator.Rotate(src, angle, s.fill)
		thumb := rotation.Thumbnail(rotated, job.Width, job.Height, s.filter)

		if err := fn(Frame{Angle: angle, Image: thumb}); err != nil {
			return err
		}
	}
	return nil
}

// Render returns every frame of a sweep in memory
func Render(ctx context.Context, img image.Image, job Job) ([]Frame, error) {
	frames := make([]Frame, 0, len(job.Angles))
	err := Sweep(ctx, img, job, func(f Frame) error {
		frames = append(frames, f)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return frames, nil
}

// RenderAngle produces the single frame for angle
func RenderAngle(img image.Image, job Job, angle int) (*image.NRGBA, error) {
	job.Angles = []int{angle}
	frames, err := Render(context.Background(), img, job)
	if err != nil {
		return nil, err
	}
	return frames[0].Image, nil
}

// Open decodes the job's source image
func Open(job Job) (image.Image, error) {
	img, err := imgio.Open(job.Source)
	if err != nil {
		return nil, fmt.Errorf("failed to open source image %s: %w", job.Source, err)
	}
	return img, nil
}

// Save writes a frame as PNG
func Save(path string, img image.Image) error {
	if err := imgio.Save(path, img, imgio.PNGEncoder()); err != nil {
		return fmt.Errorf("failed to save frame %s: %w", path, err)
	}
	return nil
}

// Run loads the source, sweeps it and writes every frame to disk.
// Frames are produced and written one at a time; the first failure stops
// the run.
func Run(ctx context.Context, job Job) (*Manifest, error) {
	if err := job.Validate(); err != nil {
		return nil, err
	}
	logger := zerolog.Ctx(ctx)
	start := time.Now()

	img, err := Open(job)
	if err != nil {
		return nil, err
	}
	hash, err := HashFile(job.Source)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(job.Dir(), 0755); err != nil {
		return nil, fmt.Errorf("cannot create output directory %s: %w", job.Dir(), err)
	}

	manifest := &Manifest{
		Source:     job.Source,
		SourceHash: hash,
		Outputs:    make([]Output, 0, len(job.Angles)),
	}
	err = Sweep(ctx, img, job, func(f Frame) error {
		path := job.OutputPath(f.Angle)
		if err := Save(path, f.Image); err != nil {
			return fmt.Errorf("angle %d: %w", f.Angle, err)
		}
		b := f.Image.Bounds()
		manifest.Outputs = append(manifest.Outputs, Output{
			Angle:  f.Angle,
			Path:   path,
			Width:  b.Dx(),
			Height: b.Dy(),
		})
		logger.Debug().Int("angle", f.Angle).Str("path", path).Msg("frame written")
		return nil
	})
	if err != nil {
		return nil, err
	}

	manifest.Elapsed = time.Since(start)
	logger.Info().
		Str("source", job.Source).
		Int("frames", len(manifest.Outputs)).
		Dur("elapsed", manifest.Elapsed).
		Msg("sweep completed")
	return manifest, nil
}

// HashFile returns the hex sha256 of a file's contents
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Exists reports whether every output in the manifest is still on disk
func (m *Manifest) Exists() bool {
	for _, o := range m.Outputs {
		if _, err := os.Stat(o.Path); err != nil {
			return false
		}
	}
	return len(m.Outputs) > 0
}
