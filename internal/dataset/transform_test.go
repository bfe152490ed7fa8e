package dataset

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodePNG(t testing.TB, img image.Image) []byte {
	t.Helper()
	buf := &bytes.Buffer{}
	require.NoError(t, png.Encode(buf, img))
	return buf.Bytes()
}

func solidPNG(t testing.TB, size int, c color.Color) []byte {
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			img.Set(x, y, c)
		}
	}
	return encodePNG(t, img)
}

func TestTransformRGBNormalization(t *testing.T) {
	tr := Transform{Size: 4, View: ViewRGB}
	views, err := tr.Apply(solidPNG(t, 8, color.RGBA{R: 255, G: 0, B: 255, A: 255}), nil)
	require.NoError(t, err)

	wa, wb := tr.Widths()
	require.Len(t, views[0], wa)
	require.Len(t, views[1], wb)
	assert.InDelta(t, 1.0, views[0][0], 1e-6)
	assert.InDelta(t, -1.0, views[1][0], 1e-6)
	assert.InDelta(t, 1.0, views[1][16], 1e-6)
}

func TestTransformLabWhite(t *testing.T) {
	tr := Transform{Size: 2, View: ViewLab}
	views, err := tr.Apply(solidPNG(t, 2, color.White), nil)
	require.NoError(t, err)
	// L=100 normalizes to 1, a and b are close to 0.
	assert.InDelta(t, 1.0, views[0][0], 1e-3)
	assert.InDelta(t, (0-6.025)/92.208, views[1][0], 1e-2)
}

func TestTransformYCbCrGray(t *testing.T) {
	tr := Transform{Size: 2, View: ViewYCbCr}
	views, err := tr.Apply(solidPNG(t, 2, color.Gray{Y: 128}), nil)
	require.NoError(t, err)
	assert.InDelta(t, (128-116.151)/109.5, views[0][0], 1e-4)
	assert.InDelta(t, (128-121.080)/111.855, views[1][0], 1e-4)
}

func TestTransformAugmentDeterministic(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.SetGray(x, y, color.Gray{Y: uint8(x*30 + y)})
		}
	}
	raw := encodePNG(t, img)
	tr := Transform{Size: 8, View: ViewRGB, Augment: true}

	v1, err := tr.Apply(raw, rand.New(rand.NewSource(5)))
	require.NoError(t, err)
	v2, err := tr.Apply(raw, rand.New(rand.NewSource(5)))
	require.NoError(t, err)
	assert.Equal(t, v1, v2)
}

func TestTransformRejectsGarbage(t *testing.T) {
	_, err := Transform{Size: 4, View: ViewRGB}.Apply([]byte("not an image"), nil)
	require.Error(t, err)
}

func TestParseView(t *testing.T) {
	for _, v := range []string{"Lab", "YCbCr", "RGB"} {
		got, err := ParseView(v)
		require.NoError(t, err)
		assert.Equal(t, View(v), got)
	}
	_, err := ParseView("HSV")
	require.Error(t, err)
}
