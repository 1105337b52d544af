package render

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"image/color"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"

	"rotathumb/pkg/imagefilter"
	"rotathumb/pkg/rotation"
)

var (
	// ErrInvalidJob is returned when a job cannot be run as configured
	ErrInvalidJob = errors.New("invalid render job")
)

const (
	DefaultSource  = "./data/ucla/ucla.png"
	DefaultPattern = "{name}-{angle}"
	DefaultSize    = 28
	DefaultFill    = "white"
	DefaultFilter  = "bicubic"
)

// Job describes one rotation sweep of a source image
type Job struct {
	Source    string `json:"source" yaml:"source"`
	OutputDir string `json:"output_dir,omitempty" yaml:"output_dir"` // Defaults to the source directory
	Pattern   string `json:"pattern" yaml:"pattern"`                 // Output file name, {name} and {angle} are substituted
	Angles    []int  `json:"angles" yaml:"angles"`
	Width     int    `json:"width" yaml:"width"`   // Thumbnail box width
	Height    int    `json:"height" yaml:"height"` // Thumbnail box height
	Fill      string `json:"fill" yaml:"fill"`     // Colour for pixels exposed by rotation
	Engine    string `json:"engine" yaml:"engine"`
	Expand    bool   `json:"expand" yaml:"expand"` // Grow the canvas to hold the whole rotated image
	Filter    string `json:"filter" yaml:"filter"`
	Grayscale bool   `json:"grayscale" yaml:"grayscale"`
}

// DefaultJob returns the classic sweep: 0..340 degrees in steps of 10,
// white fill, 28x28 thumbnails written next to the source.
func DefaultJob(source string) Job {
	if source == "" {
		source = DefaultSource
	}
	return Job{
		Source:  source,
		Pattern: DefaultPattern,
		Angles:  rotation.DefaultAngles(),
		Width:   DefaultSize,
		Height:  DefaultSize,
		Fill:    DefaultFill,
		Engine:  rotation.EngineImaging,
		Filter:  DefaultFilter,
	}
}

// settings holds the parsed form of a job's string options
type settings struct {
	rotator rotation.Rotator
	fill    color.Color
	filter  imaging.ResampleFilter
	filters imagefilter.Options
}

// Validate checks the job and reports the first problem found
func (j Job) Validate() error {
	_, err := j.settings()
	return err
}

func (j Job) settings() (settings, error) {
	var s settings

	if strings.TrimSpace(j.Source) == "" {
		return s, fmt.Errorf("%w: no source image", ErrInvalidJob)
	}
	if len(j.Angles) == 0 {
		return s, fmt.Errorf("%w: no angles", ErrInvalidJob)
	}
	if !strings.Contains(j.Pattern, "{angle}") {
		return s, fmt.Errorf("%w: pattern %q must contain {angle}", ErrInvalidJob, j.Pattern)
	}
	if err := rotation.ValidateSize(j.Width, j.Height); err != nil {
		return s, fmt.Errorf("%w: %w", ErrInvalidJob, err)
	}

	fill, err := rotation.ParseColor(j.Fill)
	if err != nil {
		return s, fmt.Errorf("%w: %w", ErrInvalidJob, err)
	}
	s.fill = fill

	s.rotator, err = rotation.NewRotator(j.Engine, j.Expand)
	if err != nil {
		return s, fmt.Errorf("%w: %w", ErrInvalidJob, err)
	}

	s.filter, err = rotation.ParseFilter(j.Filter)
	if err != nil {
		return s, fmt.Errorf("%w: %w", ErrInvalidJob, err)
	}

	s.filters = imagefilter.Options{Grayscale: j.Grayscale}
	return s, nil
}

// Dir returns the directory the frames are written to
func (j Job) Dir() string {
	if j.OutputDir != "" {
		return j.OutputDir
	}
	return filepath.Dir(j.Source)
}

// OutputPath returns the file a frame for angle is written to
func (j Job) OutputPath(angle int) string {
	base := filepath.Base(j.Source)
	name := strings.TrimSuffix(base, filepath.Ext(base))

	r := strings.NewReplacer("{name}", name, "{angle}", strconv.Itoa(angle))
	return filepath.Join(j.Dir(), r.Replace(j.Pattern))
}

// CacheKey identifies the frames produced from a source with the given
// content hash. Paths are left out so identical uploads share an entry.
func (j Job) CacheKey(sourceHash string) string {
	fill := strings.ToLower(strings.TrimSpace(j.Fill))
	if c, err := rotation.ParseColor(j.Fill); err == nil {
		fill = fmt.Sprintf("#%02x%02x%02x%02x", c.R, c.G, c.B, c.A)
	}

	params := struct {
		Hash      string `json:"hash"`
		Angles    []int  `json:"angles"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
		Fill      string `json:"fill"`
		Engine    string `json:"engine"`
		Expand    bool   `json:"expand"`
		Filter    string `json:"filter"`
		Grayscale bool   `json:"grayscale"`
	}{sourceHash, j.Angles, j.Width, j.Height, fill, strings.ToLower(j.Engine), j.Expand, strings.ToLower(j.Filter), j.Grayscale}

	data, _ := json.Marshal(params)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
