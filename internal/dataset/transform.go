package dataset

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"math/rand"

	"github.com/lucasb-eyer/go-colorful"
)

// View is the color space an image is presented in.
type View string

const (
	ViewLab   View = "Lab"
	ViewYCbCr View = "YCbCr"
	ViewRGB   View = "RGB"
)

// ParseView validates a view name.
func ParseView(s string) (View, error) {
	switch View(s) {
	case ViewLab, ViewYCbCr, ViewRGB:
		return View(s), nil
	default:
		return "", fmt.Errorf("dataset: unknown view %q", s)
	}
}

// cropPadding is the zero padding used by the training random crop.
const cropPadding = 4

type normalization struct {
	mean [3]float64
	std  [3]float64
}

var normalizations = map[View]normalization{
	ViewLab: {
		mean: [3]float64{(0 + 100) / 2.0, (-86.183 + 98.233) / 2, (-107.857 + 94.478) / 2},
		std:  [3]float64{(100 - 0) / 2.0, (86.183 + 98.233) / 2, (107.857 + 94.478) / 2},
	},
	ViewYCbCr: {
		mean: [3]float64{116.151, 121.080, 132.342},
		std:  [3]float64{109.500, 111.855, 111.964},
	},
	ViewRGB: {
		mean: [3]float64{0.5, 0.5, 0.5},
		std:  [3]float64{0.5, 0.5, 0.5},
	},
}

// Transform turns an encoded image into the two normalized branch tensors.
// Branch a holds channel 0 of the view, branch b channels 1 and 2, each
// flattened channel-major over a Size x Size grid.
type Transform struct {
	Size    int
	View    View
	Augment bool
}

// Widths returns the flattened widths of branch a and b.
func (t Transform) Widths() (int, int) {
	px := t.Size * t.Size
	return px, 2 * px
}

// Apply decodes raw and produces the branch tensors. rng drives the
// training augmentation and may be nil when Augment is false.
func (t Transform) Apply(raw []byte, rng *rand.Rand) ([2][]float32, error) {
	var out [2][]float32
	norm, ok := normalizations[t.View]
	if !ok {
		return out, fmt.Errorf("dataset: unknown view %q", t.View)
	}
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return out, fmt.Errorf("decode image: %w", err)
	}
	rgb, err := sampleGrid(img, t.Size)
	if err != nil {
		return out, err
	}

	dx, dy, flip := 0, 0, false
	if t.Augment && rng != nil {
		dx = rng.Intn(2*cropPadding+1) - cropPadding
		dy = rng.Intn(2*cropPadding+1) - cropPadding
		flip = rng.Intn(2) == 1
	}

	px := t.Size * t.Size
	out[0] = make([]float32, px)
	out[1] = make([]float32, 2*px)
	for y := 0; y < t.Size; y++ {
		for x := 0; x < t.Size; x++ {
			sx, sy := x+dx, y+dy
			if flip {
				sx = t.Size - 1 - x + dx
			}
			var c [3]float64
			if sx >= 0 && sx < t.Size && sy >= 0 && sy < t.Size {
				c = rgb[sy*t.Size+sx]
			}
			v := convert(c, t.View)
			i := y*t.Size + x
			out[0][i] = float32((v[0] - norm.mean[0]) / norm.std[0])
			out[1][i] = float32((v[1] - norm.mean[1]) / norm.std[1])
			out[1][px+i] = float32((v[2] - norm.mean[2]) / norm.std[2])
		}
	}
	return out, nil
}

// sampleGrid resamples img onto a size x size grid of RGB values in [0,1].
func sampleGrid(img image.Image, size int) ([][3]float64, error) {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()
	if width == 0 || height == 0 {
		return nil, errors.New("empty image")
	}
	if size <= 0 {
		return nil, fmt.Errorf("dataset: image size must be > 0 (got %d)", size)
	}
	out := make([][3]float64, size*size)
	stepX := float64(width) / float64(size)
	stepY := float64(height) / float64(size)
	for gy := 0; gy < size; gy++ {
		for gx := 0; gx < size; gx++ {
			px := bounds.Min.X + min(width-1, int(float64(gx)*stepX))
			py := bounds.Min.Y + min(height-1, int(float64(gy)*stepY))
			r, g, b, _ := img.At(px, py).RGBA()
			out[gy*size+gx] = [3]float64{float64(r) / 65535, float64(g) / 65535, float64(b) / 65535}
		}
	}
	return out, nil
}

// convert maps an RGB triple in [0,1] into the view's native range:
// L in [0,100] and a/b roughly in [-110,100] for Lab, [0,255] for YCbCr.
func convert(c [3]float64, view View) [3]float64 {
	switch view {
	case ViewLab:
		l, a, b := colorful.Color{R: c[0], G: c[1], B: c[2]}.Lab()
		return [3]float64{l * 100, a * 100, b * 100}
	case ViewYCbCr:
		y, cb, cr := color.RGBToYCbCr(to8(c[0]), to8(c[1]), to8(c[2]))
		return [3]float64{float64(y), float64(cb), float64(cr)}
	default:
		return c
	}
}

func to8(v float64) uint8 {
	return uint8(min(255, max(0, v*255+0.5)))
}
