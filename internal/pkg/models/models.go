package models

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"sync/atomic"
	"time"

	"github.com/ds124wfegd/imagecaption/internal/entity"
	"github.com/ds124wfegd/imagecaption/internal/pkg/decoder"
	"github.com/ds124wfegd/imagecaption/internal/pkg/encoder"
	"github.com/ds124wfegd/imagecaption/internal/pkg/preprocess"
	"github.com/ds124wfegd/imagecaption/internal/pkg/projector"
	"github.com/ds124wfegd/imagecaption/internal/pkg/storage"
	"github.com/sirupsen/logrus"
)

type Config struct {
	Backend string
	// Seed fixes the builtin encoder and fallback projector weights.
	Seed uint64
	ONNX encoder.ONNXConfig

	DecodeTimeout time.Duration
	DecodeSeed    uint64
}

// Set bundles the loaded models. It is created once at startup and shared
// read-only by every request.
type Set struct {
	enc       encoder.Encoder
	proj      *projector.Projector
	dec       *decoder.Decoder
	fromFile  bool
	loadErr   error
	closed    atomic.Bool
	loadedFor time.Duration
}

// Load builds the encoder, projector and language model. The language model
// vocabulary is grounded through the same encoder and projector.
func Load(cfg Config, store storage.ModelStore) (*Set, error) {
	enc, err := newEncoder(cfg, store)
	if err != nil {
		return nil, err
	}
	return LoadWith(enc, cfg, store)
}

// LoadWith builds the set around an already constructed encoder. The set
// owns enc and closes it on failure.
func LoadWith(enc encoder.Encoder, cfg Config, store storage.ModelStore) (*Set, error) {
	start := time.Now()

	proj, fromFile, err := projector.Load(store, encoder.EmbeddingDim, cfg.Seed)
	if err != nil {
		enc.Close()
		return nil, err
	}

	ground := func(img image.Image) ([]float32, error) {
		emb, err := enc.Encode(context.Background(), preprocess.ToTensor(img))
		if err != nil {
			return nil, err
		}
		return proj.Project(emb)
	}
	lm, err := decoder.NewLexiconModel(decoder.DefaultLexicon(), decoder.DefaultPrototypes(), ground)
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("building language model: %w", err)
	}
	if lm.CondDim() != proj.OutputDim() {
		enc.Close()
		return nil, fmt.Errorf("%w: language model conditioned on %d dims, projector produces %d",
			entity.ErrInternalInconsistency, lm.CondDim(), proj.OutputDim())
	}

	timeout := cfg.DecodeTimeout
	if timeout == 0 {
		timeout = decoder.DefaultTimeout
	}

	s := &Set{
		enc:       enc,
		proj:      proj,
		dec:       decoder.New(lm, decoder.Config{Timeout: timeout, Seed: cfg.DecodeSeed}),
		fromFile:  fromFile,
		loadedFor: time.Since(start),
	}

	logrus.WithFields(logrus.Fields{
		"encoder":        enc.Name(),
		"device":         enc.Device(),
		"projector_file": fromFile,
		"vocabulary":     lm.Vocabulary().Size(),
		"duration":       s.loadedFor,
	}).Info("Models loaded")

	return s, nil
}

// Unavailable returns a set that reports err from every accessor. The
// service runs degraded with it when loading fails.
func Unavailable(err error) *Set {
	return &Set{loadErr: err}
}

func newEncoder(cfg Config, store storage.ModelStore) (encoder.Encoder, error) {
	switch cfg.Backend {
	case "", encoder.BackendBuiltin:
		return encoder.NewBuiltin(cfg.Seed), nil
	case encoder.BackendONNX:
		onnxCfg := cfg.ONNX
		if store != nil && onnxCfg.ModelPath != "" {
			onnxCfg.ModelPath = store.Path(onnxCfg.ModelPath)
		}
		return encoder.NewONNX(onnxCfg)
	default:
		return nil, fmt.Errorf("%w: unknown encoder backend %q", entity.ErrModelUnavailable, cfg.Backend)
	}
}

func (s *Set) Ready() bool {
	return s != nil && s.loadErr == nil && s.enc != nil && !s.closed.Load()
}

// Err explains why the set is not ready.
func (s *Set) Err() error {
	switch {
	case s == nil:
		return entity.ErrModelUnavailable
	case s.loadErr != nil:
		return fmt.Errorf("%w: %v", entity.ErrModelUnavailable, s.loadErr)
	case s.closed.Load():
		return fmt.Errorf("%w: models were closed", entity.ErrModelUnavailable)
	}
	return nil
}

func (s *Set) Encoder() encoder.Encoder       { return s.enc }
func (s *Set) Projector() *projector.Projector { return s.proj }
func (s *Set) Decoder() *decoder.Decoder       { return s.dec }

func (s *Set) EncoderName() string {
	if s == nil || s.enc == nil {
		return ""
	}
	return s.enc.Name()
}

func (s *Set) Device() string {
	if s == nil || s.enc == nil {
		return ""
	}
	return s.enc.Device()
}

func (s *Set) Close() error {
	if s == nil || s.enc == nil || !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.enc.Close()
}

// ExportProjector writes the projector in use to the store, so later runs
// load the same weights from file.
func ExportProjector(s *Set, store storage.ModelStore) error {
	if err := s.Err(); err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := s.proj.Encode(&buf); err != nil {
		return err
	}
	return store.Save(projector.WeightsFile, &buf)
}
