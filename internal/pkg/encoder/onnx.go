package encoder

import (
	"context"
	"fmt"
	"sync"

	"github.com/ds124wfegd/imagecaption/internal/entity"
	"github.com/ds124wfegd/imagecaption/internal/pkg/preprocess"
	ort "github.com/yalue/onnxruntime_go"
)

type ONNXConfig struct {
	ModelPath   string
	LibraryPath string
	InputName   string
	OutputName  string
}

// ONNX runs a CLIP vision tower exported to ONNX. The session owns bound
// input and output tensors, so Encode calls are serialised.
type ONNX struct {
	mu           sync.Mutex
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
	closed       bool
}

func NewONNX(cfg ONNXConfig) (*ONNX, error) {
	if cfg.InputName == "" {
		cfg.InputName = "pixel_values"
	}
	if cfg.OutputName == "" {
		cfg.OutputName = "image_embeds"
	}
	if cfg.LibraryPath != "" {
		ort.SetSharedLibraryPath(cfg.LibraryPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("%w: failed to initialize ONNX environment: %v", entity.ErrModelUnavailable, err)
	}

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, preprocess.Channels, preprocess.InputSize, preprocess.InputSize))
	if err != nil {
		ort.DestroyEnvironment()
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, EmbeddingDim))
	if err != nil {
		inputTensor.Destroy()
		ort.DestroyEnvironment()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(cfg.ModelPath,
		[]string{cfg.InputName}, []string{cfg.OutputName},
		[]ort.ArbitraryTensor{inputTensor}, []ort.ArbitraryTensor{outputTensor},
		nil)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		ort.DestroyEnvironment()
		return nil, fmt.Errorf("%w: failed to create ONNX session for %s: %v", entity.ErrModelUnavailable, cfg.ModelPath, err)
	}

	return &ONNX{
		session:      session,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
	}, nil
}

func (e *ONNX) Name() string { return BackendONNX }

func (e *ONNX) Device() string { return "cpu" }

func (e *ONNX) Encode(ctx context.Context, t *preprocess.Tensor) ([]float32, error) {
	if err := checkTensor(t); err != nil {
		return nil, fmt.Errorf("%w: %v", entity.ErrInternalInconsistency, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil, entity.ErrModelUnavailable
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	copy(e.inputTensor.GetData(), t.Data)
	if err := e.session.Run(); err != nil {
		return nil, inferenceError(err)
	}

	out := make([]float32, EmbeddingDim)
	copy(out, e.outputTensor.GetData())
	l2Normalize(out)
	return out, nil
}

func (e *ONNX) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true

	if e.inputTensor != nil {
		e.inputTensor.Destroy()
	}
	if e.outputTensor != nil {
		e.outputTensor.Destroy()
	}
	if e.session != nil {
		e.session.Destroy()
	}
	return ort.DestroyEnvironment()
}

// inferenceError reports a runtime failure of a loaded session. The
// runtime's own error text is kept for logs only.
func inferenceError(err error) error {
	return fmt.Errorf("%w: inference failed: %v", entity.ErrInternalInconsistency, err)
}
