package postprocess

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClean(t *testing.T) {
	tests := []struct {
		name   string
		tokens []string
		want   string
	}{
		{
			name:   "prompt and words",
			tokens: []string{"This", "is", "a", "dark", "image"},
			want:   "This is a dark image.",
		},
		{
			name:   "special tokens dropped",
			tokens: []string{"<pad>", "this", "is", "a", "sky", "<eos>"},
			want:   "This is a sky.",
		},
		{
			name:   "punctuation spacing",
			tokens: []string{"This image contains:", "a", "frame", "with", "low brightness", ",", "uniform texture", "and", "neutral tones"},
			want:   "This image contains: a frame with low brightness, uniform texture and neutral tones.",
		},
		{
			name:   "indefinite article before vowel",
			tokens: []string{"a", "orange", "image", "with", "a warm glow"},
			want:   "An orange image with a warm glow.",
		},
		{
			name:   "collapses whitespace",
			tokens: []string{"  a ", "\tplain  ", "picture"},
			want:   "A plain picture.",
		},
		{
			name:   "keeps existing terminal punctuation",
			tokens: []string{"what", "a", "view", "!"},
			want:   "What a view!",
		},
		{
			name:   "trailing comma replaced",
			tokens: []string{"a", "grid", ","},
			want:   "A grid.",
		},
		{
			name:   "repeated separators",
			tokens: []string{"a", "grid", ",", ",", "sharp edges"},
			want:   "A grid, sharp edges.",
		},
		{
			name:   "only special tokens",
			tokens: []string{"<eos>", "<pad>"},
			want:   "",
		},
		{
			name:   "nothing",
			tokens: nil,
			want:   "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Clean(tt.tokens))
		})
	}
}

func TestClampConfidence(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{in: 0.5, want: 0.5},
		{in: -0.1, want: 0},
		{in: 1.7, want: 1},
		{in: math.NaN(), want: 0},
		{in: math.Inf(1), want: 1},
		{in: math.Inf(-1), want: 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ClampConfidence(tt.in))
	}
}

func TestWordCount(t *testing.T) {
	assert.Equal(t, 5, WordCount("This is a dark image."))
	assert.Equal(t, 7, WordCount("This image contains: a grid, sharp edges."))
	assert.Equal(t, 0, WordCount(""))
}
