package imagefilter

import (
	"image"

	"github.com/anthonynsimon/bild/effect"
)

// Options selects the pre-processing filters applied to a source image
type Options struct {
	Grayscale bool // Convert to single-channel luminance
}

// Enabled reports whether any filter is switched on
func (o Options) Enabled() bool {
	return o.Grayscale
}

// Apply runs the selected bild filters over img.
// With no filters enabled img is returned as is.
func Apply(img image.Image, opts Options) image.Image {
	out := img

	if opts.Grayscale {
		out = effect.Grayscale(out)
	}

	return out
}
