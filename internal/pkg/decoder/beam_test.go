package decoder

import (
	"context"
	"math"
	"strings"
	"testing"

	"github.com/ds124wfegd/imagecaption/internal/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// treeModel scores a fixed continuation tree. Greedy search takes "a"
// first and ends on "a c"; "b" is the better sequence overall.
type treeModel struct {
	vocab *Vocabulary
}

func newTreeModel(t *testing.T) *treeModel {
	t.Helper()
	vocab, err := NewVocabulary([]Token{
		{Text: EOSToken, Class: ClassEOS},
		{Text: "a", Class: ClassNoun},
		{Text: "b", Class: ClassNoun},
		{Text: "c", Class: ClassNoun},
		{Text: "d", Class: ClassNoun},
	})
	require.NoError(t, err)
	return &treeModel{vocab: vocab}
}

func (m *treeModel) Vocabulary() *Vocabulary { return m.vocab }
func (m *treeModel) CondDim() int             { return 1 }
func (m *treeModel) Start([]float32, SessionOptions) (Session, error) {
	return m, nil
}

func (m *treeModel) Logits(history []int32, dst []float32) {
	for i := range dst {
		dst[i] = negInf
	}
	ln := func(p float64) float32 { return float32(math.Log(p)) }

	switch strings.Join(m.vocab.Words(history), " ") {
	case "":
		dst[1], dst[2] = ln(0.6), ln(0.4)
	case "a":
		dst[3], dst[4], dst[0] = ln(0.34), ln(0.33), ln(0.33)
	case "b":
		dst[0], dst[3] = ln(0.95), ln(0.05)
	default:
		dst[0] = 0
	}
}

func treeStyle(width int) entity.StyleSpec {
	return entity.StyleSpec{ID: "tree", Params: entity.DecodingParams{
		BeamWidth:         width,
		MinLength:         1,
		MaxLength:         5,
		RepetitionPenalty: 1,
		LengthPenalty:     1,
	}}
}

func TestDecodeBeamWidthChangesSearch(t *testing.T) {
	d := New(newTreeModel(t), Config{})

	tests := []struct {
		width int
		want  []string
	}{
		{width: 1, want: []string{"a", "c"}},
		{width: 2, want: []string{"b"}},
		{width: 4, want: []string{"b"}},
	}
	for _, tt := range tests {
		out, err := d.Decode(context.Background(), []float32{1}, treeStyle(tt.width))
		require.NoError(t, err)
		assert.Equal(t, tt.want, out.Words, "width %d", tt.width)
		assert.True(t, out.StoppedAtEOS, "width %d", tt.width)
		assert.Less(t, out.Steps, 5, "width %d", tt.width)
	}
}

func TestDecodeKeepsFinishedBeams(t *testing.T) {
	out, err := New(newTreeModel(t), Config{}).Decode(context.Background(), []float32{1}, treeStyle(2))
	require.NoError(t, err)

	// "b <eos>" finishes at step two while two live continuations of "a"
	// still fill the beam.
	assert.Equal(t, []string{"b"}, out.Words)
	assert.InDelta(t, math.Log(0.4)+math.Log(0.95), out.LogProb, 1e-6)
	assert.InDelta(t, math.Sqrt(0.4*0.95), out.Confidence, 1e-6)
}

func TestHypotheses(t *testing.T) {
	h := newHypotheses(2, 1)
	assert.Nil(t, h.best())
	assert.True(t, math.IsInf(h.worst(), -1))

	h.add([]int32{1}, -2, 2, true)
	h.add([]int32{1, 2, 3}, -1.5, 4, true)
	assert.True(t, h.full())
	assert.InDelta(t, -1.0, h.worst(), 1e-9)

	// worse than everything kept
	h.add([]int32{4}, -3, 2, true)
	assert.Equal(t, []int32{1, 2, 3}, h.best().tokens)

	h.add([]int32{5}, -0.2, 2, false)
	assert.Equal(t, []int32{5}, h.best().tokens)
	assert.False(t, h.best().done)
	assert.InDelta(t, -0.375, h.worst(), 1e-9)
}

func TestHypothesesPreferFinishedOnTie(t *testing.T) {
	h := newHypotheses(2, 1)
	h.add([]int32{1}, -1, 2, false)
	h.add([]int32{2}, -1, 2, true)
	assert.True(t, h.best().done)
}
