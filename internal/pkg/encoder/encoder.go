package encoder

import (
	"context"
	"fmt"
	"math"

	"github.com/ds124wfegd/imagecaption/internal/pkg/preprocess"
)

// EmbeddingDim is the length of every visual embedding.
const EmbeddingDim = 512

const (
	BackendBuiltin = "builtin"
	BackendONNX    = "onnx"
)

// Encoder turns a preprocessed image into a fixed-length embedding.
type Encoder interface {
	Name() string
	// Device reports where inference runs.
	Device() string
	Encode(ctx context.Context, t *preprocess.Tensor) ([]float32, error)
	Close() error
}

func checkTensor(t *preprocess.Tensor) error {
	if t == nil {
		return fmt.Errorf("nil tensor")
	}
	want := preprocess.Channels * preprocess.InputSize * preprocess.InputSize
	if t.Channels != preprocess.Channels || t.Height != preprocess.InputSize ||
		t.Width != preprocess.InputSize || len(t.Data) != want {
		return fmt.Errorf("tensor shape %dx%dx%d (%d values), want %dx%dx%d",
			t.Channels, t.Height, t.Width, len(t.Data),
			preprocess.Channels, preprocess.InputSize, preprocess.InputSize)
	}
	return nil
}

// l2Normalize scales v to unit length in place.
func l2Normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	inv := float32(1 / math.Sqrt(sum))
	for i := range v {
		v[i] *= inv
	}
}
