package preprocess

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/ds124wfegd/imagecaption/internal/entity"
	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"
	"github.com/sirupsen/logrus"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

const (
	// InputSize is the square resolution the vision encoder expects.
	InputSize = 224
	Channels  = 3

	DefaultMaxBytes = 10 << 20
	// MaxPixels guards against decompression bombs that fit in MaxBytes.
	MaxPixels = 64 << 20
)

// CLIP ViT normalisation statistics.
var (
	Mean = [Channels]float32{0.48145466, 0.4578275, 0.40821073}
	Std  = [Channels]float32{0.26862954, 0.26130258, 0.27577711}
)

var supportedMIME = map[string]string{
	"image/jpeg": "JPEG",
	"image/png":  "PNG",
	"image/webp": "WEBP",
	"image/bmp":  "BMP",
}

// SupportedFormats lists accepted formats in display form.
func SupportedFormats() []string {
	return []string{"JPEG", "PNG", "WEBP", "BMP"}
}

// Tensor is a CHW float32 image tensor.
type Tensor struct {
	Data     []float32
	Channels int
	Height   int
	Width    int
}

func (t *Tensor) Shape() []int64 {
	return []int64{1, int64(t.Channels), int64(t.Height), int64(t.Width)}
}

func (t *Tensor) At(c, y, x int) float32 {
	return t.Data[c*t.Height*t.Width+y*t.Width+x]
}

type Preprocessor struct {
	maxBytes int64
	size     int
}

func NewPreprocessor(maxBytes int64) *Preprocessor {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Preprocessor{maxBytes: maxBytes, size: InputSize}
}

func (p *Preprocessor) MaxBytes() int64 {
	return p.maxBytes
}

// Preprocess validates the raw bytes, decodes them and produces the encoder
// input tensor together with the original image metadata. The declared
// content type is advisory; the format is sniffed from the bytes.
func (p *Preprocessor) Preprocess(data []byte, contentType string) (*Tensor, entity.ImageInfo, error) {
	var info entity.ImageInfo

	if int64(len(data)) > p.maxBytes {
		return nil, info, fmt.Errorf("%w: %s exceeds the %s limit", entity.ErrPayloadTooLarge,
			humanize.Bytes(uint64(len(data))), humanize.Bytes(uint64(p.maxBytes)))
	}
	if len(data) == 0 {
		return nil, info, fmt.Errorf("%w: empty payload", entity.ErrUnsupportedFormat)
	}

	detected := mimetype.Detect(data)
	format, ok := supportedMIME[detected.String()]
	if !ok {
		return nil, info, fmt.Errorf("%w: detected %s", entity.ErrUnsupportedFormat, detected.String())
	}
	if contentType != "" && !strings.HasPrefix(contentType, detected.String()) {
		logrus.WithFields(logrus.Fields{
			"declared": contentType,
			"detected": detected.String(),
		}).Debug("Declared content type does not match image bytes")
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, info, fmt.Errorf("%w: %v", entity.ErrUnsupportedFormat, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, info, fmt.Errorf("%w: empty image", entity.ErrUnsupportedFormat)
	}
	if int64(cfg.Width)*int64(cfg.Height) > MaxPixels {
		return nil, info, fmt.Errorf("%w: %dx%d pixels", entity.ErrImageTooLarge, cfg.Width, cfg.Height)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, info, fmt.Errorf("%w: %v", entity.ErrUnsupportedFormat, err)
	}

	bounds := img.Bounds()
	info = entity.ImageInfo{
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
		Format: format,
	}

	return p.ToTensor(img), info, nil
}

// ToTensor resizes the shorter side to the input size, center crops and
// normalises each RGB channel.
func (p *Preprocessor) ToTensor(img image.Image) *Tensor {
	return toTensor(img, p.size)
}

// ToTensor converts an already decoded image at InputSize.
func ToTensor(img image.Image) *Tensor {
	return toTensor(img, InputSize)
}

func toTensor(img image.Image, size int) *Tensor {
	fitted := imaging.Fill(img, size, size, imaging.Center, imaging.CatmullRom)

	plane := size * size
	t := &Tensor{
		Data:     make([]float32, Channels*plane),
		Channels: Channels,
		Height:   size,
		Width:    size,
	}

	for y := 0; y < size; y++ {
		row := fitted.Pix[y*fitted.Stride:]
		for x := 0; x < size; x++ {
			px := row[x*4 : x*4+3]
			idx := y*size + x
			for c := 0; c < Channels; c++ {
				v := float32(px[c]) / 255.0
				t.Data[c*plane+idx] = (v - Mean[c]) / Std[c]
			}
		}
	}

	return t
}
