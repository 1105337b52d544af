package rotation

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"strings"

	"github.com/anthonynsimon/bild/transform"
	"github.com/disintegration/imaging"
)

var (
	// ErrUnknownEngine is returned when a rotation engine name is not recognised
	ErrUnknownEngine = errors.New("unknown rotation engine")
)

const (
	EngineImaging = "imaging"
	EngineBild    = "bild"
)

// Rotator rotates an image counter-clockwise by angle degrees, painting the
// pixels exposed by the rotation with fill.
type Rotator interface {
	Rotate(img image.Image, angle int, fill color.Color) *image.NRGBA
}

// NewRotator returns the rotator for the named engine
func NewRotator(engine string, expand bool) (Rotator, error) {
	switch strings.ToLower(strings.TrimSpace(engine)) {
	case "", EngineImaging:
		return ImagingRotator{Expand: expand}, nil
	case EngineBild:
		return BildRotator{Expand: expand}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEngine, engine)
	}
}

// Angles returns count angles starting at start and stepping by step
func Angles(start, step, count int) []int {
	if count <= 0 {
		return nil
	}
	angles := make([]int, count)
	for i := range angles {
		angles[i] = start + i*step
	}
	return angles
}

// DefaultAngles returns the 35 angles 0, 10, ..., 340
func DefaultAngles() []int {
	return Angles(0, 10, 35)
}

// ImagingRotator rotates with disintegration/imaging.
// Unless Expand is set the result keeps the source dimensions and the
// rotated content is centred on it, clipping the corners.
type ImagingRotator struct {
	Expand bool
}

// Rotate implements Rotator
func (r ImagingRotator) Rotate(img image.Image, angle int, fill color.Color) *image.NRGBA {
	rotated := imaging.Rotate(img, float64(angle), fill)
	if r.Expand {
		return rotated
	}

	b := img.Bounds()
	if rotated.Bounds().Dx() == b.Dx() && rotated.Bounds().Dy() == b.Dy() {
		return rotated
	}
	canvas := imaging.New(b.Dx(), b.Dy(), fill)
	return imaging.PasteCenter(canvas, rotated)
}

// BildRotator rotates with anthonynsimon/bild. bild turns clockwise and
// leaves uncovered pixels transparent, so the angle is negated. An opaque
// mask of the source is rotated alongside to tell pixels exposed by the
// rotation from pixels that were transparent in the source; only the
// exposed share of each pixel is painted with fill.
type BildRotator struct {
	Expand bool
}

// Rotate implements Rotator
func (r BildRotator) Rotate(img image.Image, angle int, fill color.Color) *image.NRGBA {
	opts := &transform.RotationOptions{ResizeBounds: r.Expand}
	rotated := transform.Rotate(img, -float64(angle), opts)

	b := img.Bounds()
	coverage := transform.Rotate(imaging.New(b.Dx(), b.Dy(), color.White), -float64(angle), opts)

	fr, fg, fb, fa := fill.RGBA()
	rb := rotated.Bounds()
	out := image.NewNRGBA(image.Rect(0, 0, rb.Dx(), rb.Dy()))
	for y := rb.Min.Y; y < rb.Max.Y; y++ {
		for x := rb.Min.X; x < rb.Max.X; x++ {
			src := rotated.RGBAAt(x, y)
			exposed := uint32(0xff - coverage.RGBAAt(x, y).A)
			// premultiplied: source plus the uncovered share of fill
			px := color.RGBA64{
				R: uint16(min(uint32(src.R)*0x101+fr*exposed/0xff, 0xffff)),
				G: uint16(min(uint32(src.G)*0x101+fg*exposed/0xff, 0xffff)),
				B: uint16(min(uint32(src.B)*0x101+fb*exposed/0xff, 0xffff)),
				A: uint16(min(uint32(src.A)*0x101+fa*exposed/0xff, 0xffff)),
			}
			out.Set(x-rb.Min.X, y-rb.Min.Y, px)
		}
	}
	return out
}
