package preprocess

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/ds124wfegd/imagecaption/internal/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/bmp"
)

// 1x1 lossless WebP
const tinyWebP = "UklGRhoAAABXRUJQVlA4TA0AAAAvAAAAEAcQERGIiP4HAA=="

func solidImage(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func encodeImage(t *testing.T, format string, img image.Image) []byte {
	t.Helper()

	var buf bytes.Buffer
	switch format {
	case "png":
		require.NoError(t, png.Encode(&buf, img))
	case "jpeg":
		require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}))
	case "bmp":
		require.NoError(t, bmp.Encode(&buf, img))
	case "webp":
		data, err := base64.StdEncoding.DecodeString(tinyWebP)
		require.NoError(t, err)
		return data
	default:
		t.Fatalf("unknown format %q", format)
	}
	return buf.Bytes()
}

func TestPreprocessSupportedFormats(t *testing.T) {
	p := NewPreprocessor(DefaultMaxBytes)

	tests := []struct {
		name        string
		format      string
		contentType string
		width       int
		height      int
		wantFormat  string
	}{
		{name: "png landscape", format: "png", contentType: "image/png", width: 320, height: 200, wantFormat: "PNG"},
		{name: "jpeg portrait", format: "jpeg", contentType: "image/jpeg", width: 120, height: 300, wantFormat: "JPEG"},
		{name: "bmp square", format: "bmp", contentType: "image/bmp", width: 64, height: 64, wantFormat: "BMP"},
		{name: "webp single pixel", format: "webp", contentType: "image/webp", width: 1, height: 1, wantFormat: "WEBP"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := encodeImage(t, tt.format, solidImage(tt.width, tt.height, color.RGBA{R: 100, G: 150, B: 200, A: 255}))

			tensor, info, err := p.Preprocess(data, tt.contentType)
			require.NoError(t, err)
			require.NotNil(t, tensor)

			assert.Equal(t, []int64{1, 3, InputSize, InputSize}, tensor.Shape())
			assert.Len(t, tensor.Data, Channels*InputSize*InputSize)
			assert.Equal(t, tt.width, info.Width)
			assert.Equal(t, tt.height, info.Height)
			assert.Equal(t, tt.wantFormat, info.Format)
		})
	}
}

func TestPreprocessRejectsNonImages(t *testing.T) {
	p := NewPreprocessor(DefaultMaxBytes)

	tests := []struct {
		name string
		data []byte
	}{
		{name: "empty", data: nil},
		{name: "plain text", data: []byte("definitely not an image")},
		{name: "gif is not accepted", data: []byte("GIF89a\x01\x00\x01\x00\x00\x00\x00;")},
		{name: "truncated png", data: []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := p.Preprocess(tt.data, "image/png")
			require.Error(t, err)
			assert.ErrorIs(t, err, entity.ErrUnsupportedFormat)
		})
	}
}

func TestPreprocessPayloadTooLarge(t *testing.T) {
	p := NewPreprocessor(1024)

	data := make([]byte, 2048)
	_, _, err := p.Preprocess(data, "image/png")
	require.Error(t, err)
	assert.ErrorIs(t, err, entity.ErrPayloadTooLarge)
}

// pngHeader is a PNG signature and IHDR chunk declaring a w x h RGBA image
// with no pixel data.
func pngHeader(w, h uint32) []byte {
	var buf bytes.Buffer
	buf.WriteString("\x89PNG\r\n\x1a\n")

	chunk := make([]byte, 0, 17)
	chunk = append(chunk, "IHDR"...)
	chunk = binary.BigEndian.AppendUint32(chunk, w)
	chunk = binary.BigEndian.AppendUint32(chunk, h)
	chunk = append(chunk, 8, 6, 0, 0, 0)

	_ = binary.Write(&buf, binary.BigEndian, uint32(len(chunk)-4))
	buf.Write(chunk)
	_ = binary.Write(&buf, binary.BigEndian, crc32.ChecksumIEEE(chunk))
	return buf.Bytes()
}

func TestPreprocessImageTooLarge(t *testing.T) {
	p := NewPreprocessor(DefaultMaxBytes)

	tests := []struct {
		name string
		w, h uint32
	}{
		{name: "square", w: 10000, h: 10000},
		{name: "one pixel over", w: MaxPixels + 1, h: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := p.Preprocess(pngHeader(tt.w, tt.h), "image/png")
			require.Error(t, err)
			assert.ErrorIs(t, err, entity.ErrImageTooLarge)
			assert.NotErrorIs(t, err, entity.ErrPayloadTooLarge)
			assert.True(t, entity.IsValidation(err))
		})
	}
}

func TestPreprocessNormalisation(t *testing.T) {
	p := NewPreprocessor(DefaultMaxBytes)

	data := encodeImage(t, "png", solidImage(224, 224, color.RGBA{A: 255}))
	tensor, _, err := p.Preprocess(data, "image/png")
	require.NoError(t, err)

	for c := 0; c < Channels; c++ {
		want := -Mean[c] / Std[c]
		assert.InDelta(t, want, tensor.At(c, 0, 0), 1e-5)
		assert.InDelta(t, want, tensor.At(c, InputSize-1, InputSize-1), 1e-5)
	}
}

func TestPreprocessDeterministic(t *testing.T) {
	p := NewPreprocessor(DefaultMaxBytes)

	img := solidImage(50, 80, color.RGBA{R: 10, G: 200, B: 30, A: 255})
	img.Set(10, 10, color.RGBA{R: 255, A: 255})
	data := encodeImage(t, "png", img)

	first, _, err := p.Preprocess(data, "")
	require.NoError(t, err)
	second, _, err := p.Preprocess(data, "")
	require.NoError(t, err)

	assert.Equal(t, first.Data, second.Data)
}
