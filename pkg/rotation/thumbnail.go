package rotation

import (
	"errors"
	"fmt"
	"image"
	"math"
	"strings"

	"github.com/disintegration/imaging"
)

var (
	// ErrInvalidSize is returned for a thumbnail box that is not positive
	ErrInvalidSize = errors.New("invalid thumbnail size")

	// ErrUnknownFilter is returned for an unrecognised resampling filter name
	ErrUnknownFilter = errors.New("unknown resample filter")
)

// Thumbnail shrinks img to fit inside a width x height box, keeping the
// aspect ratio. Images already inside the box are copied unchanged.
func Thumbnail(img image.Image, width, height int, filter imaging.ResampleFilter) *image.NRGBA {
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 || (b.Dx() <= width && b.Dy() <= height) {
		return imaging.Clone(img)
	}

	w, h := fitSize(b.Dx(), b.Dy(), width, height)
	if w == b.Dx() && h == b.Dy() {
		return imaging.Clone(img)
	}
	return imaging.Resize(img, w, h, filter)
}

// fitSize returns the largest size inside maxW x maxH with the aspect ratio
// of srcW x srcH. The scaled side is rounded to whichever neighbouring
// integer gives the closer aspect ratio, and is at least 1.
func fitSize(srcW, srcH, maxW, maxH int) (int, int) {
	aspect := float64(srcW) / float64(srcH)

	closest := func(n float64, diff func(float64) float64) int {
		lo, hi := math.Floor(n), math.Ceil(n)
		v := lo
		if diff(hi) < diff(lo) {
			v = hi
		}
		return max(int(v), 1)
	}

	if float64(maxW)/float64(maxH) >= aspect {
		w := closest(float64(maxH)*aspect, func(n float64) float64 {
			return math.Abs(aspect - n/float64(maxH))
		})
		return w, maxH
	}
	h := closest(float64(maxW)/aspect, func(n float64) float64 {
		if n == 0 {
			return 0
		}
		return math.Abs(aspect - float64(maxW)/n)
	})
	return maxW, h
}

// ValidateSize checks a thumbnail box
func ValidateSize(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidSize, width, height)
	}
	return nil
}

// ParseFilter maps a filter name to an imaging resample filter.
// An empty name selects Lanczos.
func ParseFilter(name string) (imaging.ResampleFilter, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "lanczos":
		return imaging.Lanczos, nil
	case "bicubic", "catmullrom":
		return imaging.CatmullRom, nil
	case "mitchell":
		return imaging.MitchellNetravali, nil
	case "linear", "bilinear":
		return imaging.Linear, nil
	case "box":
		return imaging.Box, nil
	case "nearest":
		return imaging.NearestNeighbor, nil
	default:
		return imaging.ResampleFilter{}, fmt.Errorf("%w: %q", ErrUnknownFilter, name)
	}
}
