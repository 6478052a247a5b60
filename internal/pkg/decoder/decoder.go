package decoder

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"math/rand/v2"
	"time"

	"github.com/ds124wfegd/imagecaption/internal/entity"
)

const DefaultTimeout = 10 * time.Second

type Config struct {
	// Timeout bounds the wall-clock time of one Decode call. Zero disables it.
	Timeout time.Duration
	// Seed fixes the sampling seed for every call. Zero derives the seed from
	// the conditioning vector and style, so identical inputs reproduce
	// identical captions.
	Seed uint64
}

type Decoder struct {
	lm  LanguageModel
	cfg Config
}

func New(lm LanguageModel, cfg Config) *Decoder {
	return &Decoder{lm: lm, cfg: cfg}
}

func (d *Decoder) Vocabulary() *Vocabulary {
	return d.lm.Vocabulary()
}

type Output struct {
	TokenIDs []int32
	Words    []string
	// LogProb is the summed model log-probability of the emitted tokens,
	// including the end-of-sequence token when one was emitted.
	LogProb    float64
	Confidence float64
	Steps      int
	// StoppedAtEOS is false when generation hit the length limit.
	StoppedAtEOS bool
}

// Decode runs beam search over the language model conditioned on cond,
// with the decoding parameters of style.
func (d *Decoder) Decode(ctx context.Context, cond []float32, style entity.StyleSpec) (*Output, error) {
	p := style.Params
	width := max(p.BeamWidth, 1)
	maxLen := p.MaxLength
	if maxLen <= 0 {
		return nil, fmt.Errorf("%w: style %q has max length %d", entity.ErrInternalInconsistency, style.ID, maxLen)
	}

	if d.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.cfg.Timeout)
		defer cancel()
	}

	sess, err := d.lm.Start(cond, SessionOptions{
		Registers: style.Vocabulary,
		MinLength: p.MinLength,
		MaxLength: maxLen,
	})
	if err != nil {
		return nil, err
	}

	vocab := d.lm.Vocabulary()
	size := vocab.Size()
	eos := vocab.EOS()

	var rng *rand.Rand
	if p.Temperature > 0 {
		seed := d.cfg.Seed
		if seed == 0 {
			seed = inputSeed(cond, style.ID)
		}
		rng = rand.New(rand.NewPCG(seed, seed^0x5851f42d4c957f2d))
	}

	var (
		a        = newArena(width, maxLen)
		finished = newHypotheses(width, p.LengthPenalty)
		logits   = make([]float32, size)
		logp     = make([]float64, size)
		keys     = make([]float64, size)
		order    = make([]int, 0, size)
		top      = make([]int, 0, width+1)
		cands    = make([]candidate, 0, width*(width+1))
		steps    int
		timedOut = func(step int) error {
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return fmt.Errorf("%w: stopped after %d of %d steps", entity.ErrGenerationTimeout, step, maxLen)
			}
			return ctx.Err()
		}
	)

	for step := 0; step < maxLen && a.n > 0; step++ {
		if ctx.Err() != nil {
			return nil, timedOut(step)
		}
		steps++

		cands = cands[:0]
		for i, b := range a.live() {
			sess.Logits(b.tokens, logits)
			if !math.IsInf(float64(logits[eos]), -1) {
				logits[eos] += float32(p.EOSBias)
			}
			if len(b.tokens) < p.MinLength {
				saved := logits[eos]
				logits[eos] = negInf
				if allMasked(logits) {
					logits[eos] = saved
				}
			}
			applyRepetitionPenalty(logits, b.tokens, p.RepetitionPenalty)

			logSoftmax(logits, 1, logp)
			if rng != nil {
				logSoftmax(logits, p.Temperature, keys)
				nucleusFilter(keys, p.TopP, order)
				for t := range keys {
					if !math.IsInf(keys[t], -1) {
						keys[t] += gumbel(rng)
					}
				}
			} else {
				copy(keys, logp)
			}

			// One spare candidate per beam keeps width live continuations
			// available when EOS ranks among the best.
			top = topIndices(keys, width+1, top)
			for _, t := range top {
				cands = append(cands, candidate{
					parent:  i,
					token:   int32(t),
					score:   b.score + keys[t],
					logProb: b.logProb + logp[t],
					done:    int32(t) == eos,
				})
			}
		}

		if len(cands) == 0 {
			break
		}

		sortCandidates(cands)
		for rank, c := range cands {
			if a.full() {
				break
			}
			if c.done {
				// EOS below the top width would not have survived selection.
				if rank < width {
					parent := &a.cur[c.parent]
					finished.add(parent.tokens, c.logProb, parent.scored+1, true)
				}
				continue
			}
			a.extend(c)
		}
		a.swap()

		if finished.full() && (a.n == 0 || a.bestLive(p.LengthPenalty) <= finished.worst()) {
			break
		}
	}

	// Sequences cut at the length limit compete with finished ones.
	for i := range a.live() {
		b := &a.cur[i]
		finished.add(b.tokens, b.logProb, b.scored, false)
	}

	winner := finished.best()
	if winner == nil {
		return nil, fmt.Errorf("%w: decoding produced no sequence", entity.ErrInternalInconsistency)
	}
	out := &Output{
		TokenIDs:     append([]int32(nil), winner.tokens...),
		LogProb:      winner.logProb,
		Steps:        steps,
		StoppedAtEOS: winner.done,
	}
	out.Words = vocab.Words(out.TokenIDs)
	out.Confidence = Confidence(winner.logProb, winner.scored)

	return out, nil
}

// Confidence maps a sequence log-probability to [0,1] as the geometric mean
// token probability. It is monotonic in logProb and saturates at 0 and 1.
func Confidence(logProb float64, tokens int) float64 {
	if tokens <= 0 || math.IsNaN(logProb) {
		return 0
	}
	c := math.Exp(logProb / float64(tokens))
	return min(max(c, 0), 1)
}

func inputSeed(cond []float32, style entity.StyleID) uint64 {
	h := fnv.New64a()
	var buf [4]byte
	for _, v := range cond {
		binary.LittleEndian.PutUint32(buf[:], math.Float32bits(v))
		h.Write(buf[:])
	}
	h.Write([]byte(style))
	seed := h.Sum64()
	if seed == 0 {
		seed = 1
	}
	return seed
}
