package projector

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"math/rand/v2"

	"github.com/ds124wfegd/imagecaption/internal/entity"
	"github.com/ds124wfegd/imagecaption/internal/pkg/storage"
)

const (
	WeightsFile = "projector.json"

	DefaultHidden  = 256
	DefaultCondDim = 128
	DefaultSeed    = 0x70726f6a

	// firstLayerGain keeps hidden activations out of the linear range of tanh
	// for unit-norm inputs.
	firstLayerGain = 1.5
)

// Weights is the serialised form of a projector.
type Weights struct {
	InputDim  int         `json:"input_dim"`
	HiddenDim int         `json:"hidden_dim"`
	OutputDim int         `json:"output_dim"`
	W1        [][]float32 `json:"w1"`
	B1        []float32   `json:"b1"`
	W2        [][]float32 `json:"w2"`
	B2        []float32   `json:"b2"`
}

// Projector maps a visual embedding to the decoder conditioning space with
// a two-layer tanh MLP. It is immutable after construction.
type Projector struct {
	in, hidden, out int
	w1, b1, w2, b2  []float32
}

func (p *Projector) InputDim() int  { return p.in }
func (p *Projector) OutputDim() int { return p.out }

func (p *Projector) Project(embedding []float32) ([]float32, error) {
	if len(embedding) != p.in {
		return nil, fmt.Errorf("%w: embedding has %d dims, projector expects %d",
			entity.ErrInternalInconsistency, len(embedding), p.in)
	}

	h := make([]float32, p.hidden)
	for i := range h {
		row := p.w1[i*p.in : (i+1)*p.in]
		sum := p.b1[i]
		for j, x := range embedding {
			sum += row[j] * x
		}
		h[i] = float32(math.Tanh(float64(sum)))
	}

	out := make([]float32, p.out)
	for i := range out {
		row := p.w2[i*p.hidden : (i+1)*p.hidden]
		sum := p.b2[i]
		for j, x := range h {
			sum += row[j] * x
		}
		out[i] = sum
	}
	return out, nil
}

// Seeded builds a projector with weights drawn from a fixed seed.
func Seeded(in, hidden, out int, seed uint64) *Projector {
	rng := rand.New(rand.NewPCG(seed, seed^0xda3e39cb94b95bdb))
	gauss := func(n int, std float64) []float32 {
		w := make([]float32, n)
		for i := range w {
			w[i] = float32(rng.NormFloat64() * std)
		}
		return w
	}
	return &Projector{
		in: in, hidden: hidden, out: out,
		w1: gauss(hidden*in, firstLayerGain),
		b1: make([]float32, hidden),
		w2: gauss(out*hidden, 1/math.Sqrt(float64(hidden))),
		b2: make([]float32, out),
	}
}

// FromWeights validates w and builds a projector expecting inputDim inputs.
func FromWeights(w Weights, inputDim int) (*Projector, error) {
	if w.InputDim != inputDim {
		return nil, fmt.Errorf("%w: projector input is %d dims, encoder produces %d",
			entity.ErrInternalInconsistency, w.InputDim, inputDim)
	}
	if w.HiddenDim <= 0 || w.OutputDim <= 0 {
		return nil, fmt.Errorf("%w: projector has hidden %d and output %d dims",
			entity.ErrInternalInconsistency, w.HiddenDim, w.OutputDim)
	}

	w1, err := flatten("w1", w.W1, w.HiddenDim, w.InputDim)
	if err != nil {
		return nil, err
	}
	w2, err := flatten("w2", w.W2, w.OutputDim, w.HiddenDim)
	if err != nil {
		return nil, err
	}
	if len(w.B1) != w.HiddenDim || len(w.B2) != w.OutputDim {
		return nil, fmt.Errorf("%w: projector bias lengths %d and %d, want %d and %d",
			entity.ErrInternalInconsistency, len(w.B1), len(w.B2), w.HiddenDim, w.OutputDim)
	}

	return &Projector{
		in: w.InputDim, hidden: w.HiddenDim, out: w.OutputDim,
		w1: w1, b1: append([]float32(nil), w.B1...),
		w2: w2, b2: append([]float32(nil), w.B2...),
	}, nil
}

// Weights returns the serialisable weights of p.
func (p *Projector) Weights() Weights {
	unflatten := func(flat []float32, rows, cols int) [][]float32 {
		m := make([][]float32, rows)
		for i := range m {
			m[i] = append([]float32(nil), flat[i*cols:(i+1)*cols]...)
		}
		return m
	}
	return Weights{
		InputDim:  p.in,
		HiddenDim: p.hidden,
		OutputDim: p.out,
		W1:        unflatten(p.w1, p.hidden, p.in),
		B1:        append([]float32(nil), p.b1...),
		W2:        unflatten(p.w2, p.out, p.hidden),
		B2:        append([]float32(nil), p.b2...),
	}
}

func Decode(r io.Reader, inputDim int) (*Projector, error) {
	var w Weights
	if err := json.NewDecoder(r).Decode(&w); err != nil {
		return nil, fmt.Errorf("decoding projector weights: %w", err)
	}
	return FromWeights(w, inputDim)
}

func (p *Projector) Encode(w io.Writer) error {
	return json.NewEncoder(w).Encode(p.Weights())
}

// Load reads WeightsFile from the store. When the file is absent it falls
// back to seeded weights; the bool result reports whether the file was used.
func Load(store storage.ModelStore, inputDim int, seed uint64) (*Projector, bool, error) {
	if seed == 0 {
		seed = DefaultSeed
	}
	if store == nil || !store.Exists(WeightsFile) {
		return Seeded(inputDim, DefaultHidden, DefaultCondDim, seed), false, nil
	}

	rc, err := store.Open(WeightsFile)
	if errors.Is(err, fs.ErrNotExist) {
		return Seeded(inputDim, DefaultHidden, DefaultCondDim, seed), false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("%w: opening %s: %v", entity.ErrModelUnavailable, WeightsFile, err)
	}
	defer rc.Close()

	p, err := Decode(rc, inputDim)
	if err != nil {
		return nil, false, err
	}
	return p, true, nil
}

func flatten(name string, m [][]float32, rows, cols int) ([]float32, error) {
	if len(m) != rows {
		return nil, fmt.Errorf("%w: %s has %d rows, want %d", entity.ErrInternalInconsistency, name, len(m), rows)
	}
	flat := make([]float32, 0, rows*cols)
	for i, row := range m {
		if len(row) != cols {
			return nil, fmt.Errorf("%w: %s row %d has %d columns, want %d",
				entity.ErrInternalInconsistency, name, i, len(row), cols)
		}
		flat = append(flat, row...)
	}
	return flat, nil
}
