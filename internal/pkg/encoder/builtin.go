package encoder

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/ds124wfegd/imagecaption/internal/entity"
	"github.com/ds124wfegd/imagecaption/internal/pkg/preprocess"
)

const (
	DefaultSeed = 0x1f2e3d4c

	gridSize  = 4
	histBins  = 8
	cellStats = 6 // mean r, g, b, luminance std, edge energy, saturation

	numFeatures = gridSize*gridSize*cellStats + histBins + 3
)

// Builtin is a deterministic feature extractor. It summarises colour,
// brightness distribution and edge structure on a spatial grid and lifts the
// summary to EmbeddingDim with a fixed random projection. It holds no
// mutable state and is safe for concurrent use.
type Builtin struct {
	seed uint64
	// lift is EmbeddingDim rows of numFeatures weights.
	lift []float32
}

func NewBuiltin(seed uint64) *Builtin {
	if seed == 0 {
		seed = DefaultSeed
	}
	rng := rand.New(rand.NewPCG(seed, seed>>1|1))
	lift := make([]float32, EmbeddingDim*numFeatures)
	scale := 1 / math.Sqrt(float64(numFeatures))
	for i := range lift {
		lift[i] = float32(rng.NormFloat64() * scale)
	}
	return &Builtin{seed: seed, lift: lift}
}

func (b *Builtin) Name() string { return BackendBuiltin }

func (b *Builtin) Device() string { return "cpu" }

func (b *Builtin) Close() error { return nil }

func (b *Builtin) Encode(ctx context.Context, t *preprocess.Tensor) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := checkTensor(t); err != nil {
		return nil, fmt.Errorf("%w: %v", entity.ErrInternalInconsistency, err)
	}

	feats := Features(t)
	out := make([]float32, EmbeddingDim)
	for i := range out {
		row := b.lift[i*numFeatures : (i+1)*numFeatures]
		var sum float32
		for j, f := range feats {
			sum += row[j] * f
		}
		out[i] = sum
	}
	l2Normalize(out)
	return out, nil
}

// Features computes the raw image statistics behind the builtin embedding.
// Values are roughly centred on zero.
func Features(t *preprocess.Tensor) []float32 {
	size := t.Width
	cell := size / gridSize
	feats := make([]float32, 0, numFeatures)

	rgb := func(y, x int) (float64, float64, float64) {
		return denorm(t, 0, y, x), denorm(t, 1, y, x), denorm(t, 2, y, x)
	}
	lum := func(r, g, b float64) float64 { return 0.299*r + 0.587*g + 0.114*b }

	var hist [histBins]float64
	var total, totalLum, totalEdge float64

	for gy := 0; gy < gridSize; gy++ {
		for gx := 0; gx < gridSize; gx++ {
			var sr, sg, sb, sl, sl2, edge, sat float64
			n := 0.0
			for y := gy * cell; y < (gy+1)*cell; y++ {
				for x := gx * cell; x < (gx+1)*cell; x++ {
					r, g, b := rgb(y, x)
					l := lum(r, g, b)
					sr, sg, sb = sr+r, sg+g, sb+b
					sl, sl2 = sl+l, sl2+l*l
					sat += math.Max(r, math.Max(g, b)) - math.Min(r, math.Min(g, b))

					if x+1 < size && y+1 < size {
						right := lum(rgb(y, x+1))
						down := lum(rgb(y+1, x))
						edge += math.Abs(right-l) + math.Abs(down-l)
					}

					bin := min(int(l*histBins), histBins-1)
					hist[max(bin, 0)]++
					n++
				}
			}
			mean := sl / n
			std := math.Sqrt(math.Max(sl2/n-mean*mean, 0))
			feats = append(feats,
				float32(sr/n-0.5), float32(sg/n-0.5), float32(sb/n-0.5),
				float32(2*std), float32(edge/n), float32(sat/n))
			total += n
			totalLum += sl
			totalEdge += edge
		}
	}

	for _, h := range hist {
		feats = append(feats, float32(h/total))
	}
	feats = append(feats, float32(totalLum/total-0.5), float32(totalEdge/total), float32(edgeBalance(t)))

	return feats
}

// edgeBalance is the share of horizontal against vertical gradients in
// [-1, 1]; stripes and gradients have a strong direction.
func edgeBalance(t *preprocess.Tensor) float64 {
	var h, v float64
	for y := 0; y+1 < t.Height; y += 2 {
		for x := 0; x+1 < t.Width; x += 2 {
			l := denorm(t, 1, y, x)
			h += math.Abs(denorm(t, 1, y, x+1) - l)
			v += math.Abs(denorm(t, 1, y+1, x) - l)
		}
	}
	if h+v == 0 {
		return 0
	}
	return (h - v) / (h + v)
}

// denorm reverts the CLIP normalisation of one value back to [0,1].
func denorm(t *preprocess.Tensor, c, y, x int) float64 {
	v := float64(t.At(c, y, x))*float64(preprocess.Std[c]) + float64(preprocess.Mean[c])
	return math.Min(math.Max(v, 0), 1)
}
