package decoder

import (
	"context"
	"image"
	"image/color"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/ds124wfegd/imagecaption/internal/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// colorStats grounds images by mean colour and contrast.
func colorStats(img image.Image) ([]float32, error) {
	b := img.Bounds()
	var r, g, bl, lum, lum2 float64
	n := float64(b.Dx() * b.Dy())
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.RGBAModel.Convert(img.At(x, y)).(color.RGBA)
			fr, fg, fb := float64(c.R)/255, float64(c.G)/255, float64(c.B)/255
			l := 0.299*fr + 0.587*fg + 0.114*fb
			r, g, bl, lum, lum2 = r+fr, g+fg, bl+fb, lum+l, lum2+l*l
		}
	}
	mean := lum / n
	std := math.Sqrt(math.Max(lum2/n-mean*mean, 0))
	return []float32{float32(r / n), float32(g / n), float32(bl / n), float32(mean), float32(std), 0.1}, nil
}

func newTestModel(t *testing.T) *LexiconModel {
	t.Helper()
	lm, err := NewLexiconModel(DefaultLexicon(), DefaultPrototypes(), colorStats)
	require.NoError(t, err)
	return lm
}

func blackCond(t *testing.T) []float32 {
	t.Helper()
	cond, err := colorStats(solid(color.RGBA{A: 255})(32))
	require.NoError(t, err)
	return cond
}

func testStyle(mutate func(*entity.DecodingParams), registers ...string) entity.StyleSpec {
	p := entity.DecodingParams{
		BeamWidth:         3,
		MaxLength:         20,
		RepetitionPenalty: 1.2,
		LengthPenalty:     1.0,
		TopP:              0.9,
	}
	if mutate != nil {
		mutate(&p)
	}
	return entity.StyleSpec{ID: "test", Name: "Test", Vocabulary: registers, Params: p}
}

func TestDecodeGreedyIsDeterministic(t *testing.T) {
	d := New(newTestModel(t), Config{})
	style := testStyle(nil, RegisterPlain)
	cond := blackCond(t)

	first, err := d.Decode(context.Background(), cond, style)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := d.Decode(context.Background(), cond, style)
		require.NoError(t, err)
		assert.Equal(t, first.TokenIDs, again.TokenIDs)
		assert.Equal(t, first.Confidence, again.Confidence)
	}
}

func TestDecodeSampledReproducesForSameInput(t *testing.T) {
	d := New(newTestModel(t), Config{})
	style := testStyle(func(p *entity.DecodingParams) {
		p.BeamWidth = 5
		p.Temperature = 0.7
	}, RegisterPlain, RegisterPoetic)
	cond := blackCond(t)

	first, err := d.Decode(context.Background(), cond, style)
	require.NoError(t, err)
	again, err := d.Decode(context.Background(), cond, style)
	require.NoError(t, err)
	assert.Equal(t, first.Words, again.Words)
	assert.NotEmpty(t, first.Words)
}

func TestDecodeFixedSeed(t *testing.T) {
	style := testStyle(func(p *entity.DecodingParams) { p.Temperature = 1.0 }, RegisterPlain, RegisterPoetic)
	cond := blackCond(t)
	lm := newTestModel(t)

	a, err := New(lm, Config{Seed: 42}).Decode(context.Background(), cond, style)
	require.NoError(t, err)
	b, err := New(lm, Config{Seed: 42}).Decode(context.Background(), cond, style)
	require.NoError(t, err)
	assert.Equal(t, a.TokenIDs, b.TokenIDs)
}

func TestDecodeGrammar(t *testing.T) {
	tests := []struct {
		name      string
		registers []string
		mutate    func(*entity.DecodingParams)
		check     func(t *testing.T, out *Output)
	}{
		{
			name:      "short plain phrase",
			registers: []string{RegisterPlain},
			mutate: func(p *entity.DecodingParams) {
				p.MaxLength = 5
				p.EOSBias = 2
			},
			check: func(t *testing.T, out *Output) {
				require.NotEmpty(t, out.Words)
				assert.Equal(t, "a", out.Words[0])
				assert.LessOrEqual(t, len(out.Words), 5)
				assert.NotContains(t, out.Words, "with")
			},
		},
		{
			name:      "enumerated attributes",
			registers: []string{RegisterPlain, RegisterTechnical},
			mutate: func(p *entity.DecodingParams) {
				p.MinLength = 10
				p.MaxLength = 50
				p.EOSBias = -1
			},
			check: func(t *testing.T, out *Output) {
				assert.Contains(t, out.Words, ",")
				assert.GreaterOrEqual(t, len(out.Words), 10)
				assert.True(t, out.StoppedAtEOS)
			},
		},
		{
			name:      "no repeated content words",
			registers: []string{RegisterPlain, RegisterPoetic, RegisterTechnical},
			mutate:    func(p *entity.DecodingParams) { p.MinLength = 14; p.MaxLength = 40 },
			check: func(t *testing.T, out *Output) {
				seen := map[string]bool{}
				for _, w := range out.Words {
					if w == "," || w == "and" || w == "with" || w == "a" {
						continue
					}
					assert.False(t, seen[w], "word %q repeated in %v", w, out.Words)
					seen[w] = true
				}
			},
		},
	}

	d := New(newTestModel(t), Config{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := d.Decode(context.Background(), blackCond(t), testStyle(tt.mutate, tt.registers...))
			require.NoError(t, err)
			assert.NotContains(t, out.Words, EOSToken)
			assert.GreaterOrEqual(t, out.Confidence, 0.0)
			assert.LessOrEqual(t, out.Confidence, 1.0)
			tt.check(t, out)
		})
	}
}

func TestDecodeAttributeGroupsAreExclusive(t *testing.T) {
	lm := newTestModel(t)
	vocab := lm.Vocabulary()
	style := testStyle(func(p *entity.DecodingParams) {
		p.MinLength = 14
		p.MaxLength = 50
		p.EOSBias = -1
	}, RegisterPlain, RegisterPoetic, RegisterTechnical)

	for _, c := range []color.RGBA{{A: 255}, {R: 255, G: 255, B: 255, A: 255}, {R: 240, G: 140, B: 30, A: 255}} {
		cond, err := colorStats(solid(c)(32))
		require.NoError(t, err)
		out, err := New(lm, Config{}).Decode(context.Background(), cond, style)
		require.NoError(t, err)
		assert.True(t, out.StoppedAtEOS, "%v", out.Words)

		groups := map[string]string{}
		for _, id := range out.TokenIDs {
			tok := vocab.Token(id)
			if tok.Group == "" {
				continue
			}
			prev, dup := groups[tok.Group]
			assert.False(t, dup, "%q and %q share group %s in %v", prev, tok.Text, tok.Group, out.Words)
			groups[tok.Group] = tok.Text
		}
	}
}

func TestDecodeRespectsRegisters(t *testing.T) {
	lm := newTestModel(t)
	out, err := New(lm, Config{}).Decode(context.Background(), blackCond(t), testStyle(nil, RegisterPlain))
	require.NoError(t, err)

	vocab := lm.Vocabulary()
	for _, id := range out.TokenIDs {
		reg := vocab.Token(id).Register
		assert.Contains(t, []string{RegisterCore, RegisterPlain}, reg, "token %q", vocab.Token(id).Text)
	}
}

func TestDecodeCondMismatch(t *testing.T) {
	d := New(newTestModel(t), Config{})
	_, err := d.Decode(context.Background(), make([]float32, 3), testStyle(nil))
	assert.ErrorIs(t, err, entity.ErrInternalInconsistency)
}

func TestDecodeZeroMaxLength(t *testing.T) {
	d := New(newTestModel(t), Config{})
	_, err := d.Decode(context.Background(), blackCond(t), testStyle(func(p *entity.DecodingParams) { p.MaxLength = 0 }))
	assert.ErrorIs(t, err, entity.ErrInternalInconsistency)
}

// slowModel never emits EOS and stalls on every step.
type slowModel struct {
	vocab *Vocabulary
	delay time.Duration
}

func newSlowModel(t *testing.T, delay time.Duration) *slowModel {
	vocab, err := NewVocabulary([]Token{
		{Text: EOSToken, Class: ClassEOS},
		{Text: "x", Class: ClassNoun},
	})
	require.NoError(t, err)
	return &slowModel{vocab: vocab, delay: delay}
}

func (m *slowModel) Vocabulary() *Vocabulary { return m.vocab }
func (m *slowModel) CondDim() int             { return 1 }
func (m *slowModel) Start([]float32, SessionOptions) (Session, error) {
	return m, nil
}

func (m *slowModel) Logits(_ []int32, dst []float32) {
	time.Sleep(m.delay)
	dst[0] = negInf
	dst[1] = 0
}

func TestDecodeTimeout(t *testing.T) {
	d := New(newSlowModel(t, 20*time.Millisecond), Config{Timeout: 5 * time.Millisecond})
	_, err := d.Decode(context.Background(), []float32{1}, testStyle(nil))
	assert.ErrorIs(t, err, entity.ErrGenerationTimeout)
}

func TestDecodeCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := New(newSlowModel(t, 0), Config{})
	_, err := d.Decode(ctx, []float32{1}, testStyle(nil))
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, entity.ErrGenerationTimeout)
}

func TestDecodeLengthLimit(t *testing.T) {
	d := New(newSlowModel(t, 0), Config{})
	out, err := d.Decode(context.Background(), []float32{1}, testStyle(func(p *entity.DecodingParams) { p.MaxLength = 4 }))
	require.NoError(t, err)
	assert.False(t, out.StoppedAtEOS)
	assert.Len(t, out.TokenIDs, 4)
	assert.Equal(t, 4, out.Steps)
	assert.Equal(t, "x x x x", strings.Join(out.Words, " "))
}

func TestConfidence(t *testing.T) {
	tests := []struct {
		name    string
		logProb float64
		tokens  int
		want    float64
	}{
		{name: "certain", logProb: 0, tokens: 3, want: 1},
		{name: "half per token", logProb: 2 * math.Log(0.5), tokens: 2, want: 0.5},
		{name: "no tokens", logProb: -1, tokens: 0, want: 0},
		{name: "nan", logProb: math.NaN(), tokens: 2, want: 0},
		{name: "impossible", logProb: math.Inf(-1), tokens: 2, want: 0},
		{name: "positive saturates", logProb: 5, tokens: 1, want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Confidence(tt.logProb, tt.tokens), 1e-9)
		})
	}
}
