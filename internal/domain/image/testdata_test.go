package image

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/require"
)

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func solidImage(w, h int, c color.Color) image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

// checkerboard alternates two mid-range grays in block-sized squares.
func checkerboard(w, h, block int) image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	dark := color.NRGBA{R: 60, G: 50, B: 50, A: 255}
	light := color.NRGBA{R: 210, G: 190, B: 180, A: 255}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if ((x/block)+(y/block))%2 == 0 {
				img.Set(x, y, dark)
			} else {
				img.Set(x, y, light)
			}
		}
	}
	return img
}
