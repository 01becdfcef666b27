package tryon

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pngBytes(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestNormalizePhoto(t *testing.T) {
	t.Parallel()

	t.Run("valid png becomes jpeg", func(t *testing.T) {
		t.Parallel()
		out, err := NormalizePhoto(pngBytes(t, 400, 300))
		require.NoError(t, err)
		assert.Equal(t, "image/jpeg", http.DetectContentType(out))
	})

	t.Run("oversized photo is downscaled", func(t *testing.T) {
		t.Parallel()
		out, err := NormalizePhoto(pngBytes(t, 2000, 1000))
		require.NoError(t, err)

		decoded, err := imaging.Decode(bytes.NewReader(out))
		require.NoError(t, err)
		bounds := decoded.Bounds()
		assert.LessOrEqual(t, bounds.Dx(), maxDimension)
		assert.LessOrEqual(t, bounds.Dy(), maxDimension)
	})

	t.Run("small photo keeps its dimensions", func(t *testing.T) {
		t.Parallel()
		out, err := NormalizePhoto(pngBytes(t, 200, 100))
		require.NoError(t, err)

		decoded, err := imaging.Decode(bytes.NewReader(out))
		require.NoError(t, err)
		assert.Equal(t, 200, decoded.Bounds().Dx())
		assert.Equal(t, 100, decoded.Bounds().Dy())
	})

	t.Run("empty upload is rejected", func(t *testing.T) {
		t.Parallel()
		_, err := NormalizePhoto(nil)
		assert.ErrorIs(t, err, ErrInvalidUserImage)
	})

	t.Run("non-image bytes are rejected", func(t *testing.T) {
		t.Parallel()
		_, err := NormalizePhoto([]byte("definitely not an image"))
		assert.ErrorIs(t, err, ErrInvalidUserImage)
	})

	t.Run("html masquerading as image is rejected", func(t *testing.T) {
		t.Parallel()
		_, err := NormalizePhoto([]byte("<html><script>alert(1)</script></html>"))
		assert.ErrorIs(t, err, ErrInvalidUserImage)
	})

	t.Run("truncated png is rejected", func(t *testing.T) {
		t.Parallel()
		data := pngBytes(t, 100, 100)
		_, err := NormalizePhoto(data[:40])
		assert.ErrorIs(t, err, ErrInvalidUserImage)
	})
}

func TestOrientationOfWithoutExif(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 1, orientationOf(pngBytes(t, 10, 10)))
}
