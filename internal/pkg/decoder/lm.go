package decoder

import (
	"fmt"
	"image"
	"math"

	"github.com/ds124wfegd/imagecaption/internal/entity"
)

// LanguageModel produces next-token logits conditioned on a projected image
// feature. Implementations must be safe for concurrent use; per-invocation
// state lives in the Session.
type LanguageModel interface {
	Vocabulary() *Vocabulary
	// CondDim is the conditioning vector length the model accepts.
	CondDim() int
	Start(cond []float32, opts SessionOptions) (Session, error)
}

type SessionOptions struct {
	// Registers limits the tone of generated words. Empty allows all.
	Registers []string
	MinLength int
	MaxLength int
}

// Session is the conditioned state of one decoding run. It is not shared
// between goroutines.
type Session interface {
	// Logits writes next-token logits for history into dst, which has one
	// slot per vocabulary entry. Disallowed tokens get -Inf.
	Logits(history []int32, dst []float32)
}

// GroundFunc maps a prototype image into the conditioning space, normally
// by running it through the visual encoder and the feature projector.
type GroundFunc func(img image.Image) ([]float32, error)

const (
	DefaultPrototypeSize   = 64
	DefaultSimilarityScale = 4.0
)

var negInf = float32(math.Inf(-1))

type transition map[Class]float64

// grammar maps the class of the last emitted token to the classes that may
// follow it and their prior scores.
var grammar = map[Class]transition{
	ClassSpecial: {ClassDet: 0},
	ClassDet:     {ClassAdj: 0},
	ClassAdj:     {ClassNoun: 1.0, ClassAdj: -1.5},
	ClassNoun:    {ClassEOS: 0, ClassWith: 0.5, ClassComma: 0.3},
	ClassWith:    {ClassAttr: 0},
	ClassComma:   {ClassAttr: 0},
	ClassAttr:    {ClassComma: 0.8, ClassAnd: 0, ClassEOS: 0},
	ClassAnd:     {ClassAttr: 0},
	ClassEOS:     {ClassEOS: 0},
}

// closingAttr applies after the "and <attr>" that ends an enumeration.
var closingAttr = transition{ClassEOS: 3, ClassComma: -4}

const maxAdjRun = 2

// LexiconModel is a grammar-constrained word model. Word scores come from
// the similarity between the conditioning vector and each word's grounded
// vector, so the caption follows what the encoder sees.
type LexiconModel struct {
	vocab  *Vocabulary
	dim    int
	center []float32
	// grounded holds a unit vector per token, nil for ungrounded tokens.
	grounded [][]float32
	scale    float64
}

func NewLexiconModel(tokens []Token, protos map[string]Prototype, ground GroundFunc) (*LexiconModel, error) {
	vocab, err := NewVocabulary(tokens)
	if err != nil {
		return nil, err
	}

	vectors := make(map[string][]float32)
	for _, t := range vocab.Tokens() {
		for _, name := range t.Prototypes {
			if _, done := vectors[name]; done {
				continue
			}
			proto, ok := protos[name]
			if !ok {
				return nil, fmt.Errorf("token %q references unknown prototype %q", t.Text, name)
			}
			vec, err := ground(proto(DefaultPrototypeSize))
			if err != nil {
				return nil, fmt.Errorf("grounding prototype %q: %w", name, err)
			}
			vectors[name] = normalized(vec)
		}
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("lexicon has no grounded tokens")
	}

	m := &LexiconModel{
		vocab:    vocab,
		grounded: make([][]float32, vocab.Size()),
		scale:    DefaultSimilarityScale,
	}
	for _, vec := range vectors {
		if m.dim == 0 {
			m.dim = len(vec)
			m.center = make([]float32, m.dim)
		}
		if len(vec) != m.dim {
			return nil, fmt.Errorf("%w: prototype vectors have mixed dimensions %d and %d",
				entity.ErrInternalInconsistency, m.dim, len(vec))
		}
		for i, v := range vec {
			m.center[i] += v / float32(len(vectors))
		}
	}

	for _, t := range vocab.Tokens() {
		if len(t.Prototypes) == 0 {
			continue
		}
		w := make([]float32, m.dim)
		for _, name := range t.Prototypes {
			for i, v := range vectors[name] {
				w[i] += v / float32(len(t.Prototypes))
			}
		}
		for i := range w {
			w[i] -= m.center[i]
		}
		m.grounded[t.ID] = normalized(w)
	}

	return m, nil
}

func (m *LexiconModel) Vocabulary() *Vocabulary { return m.vocab }

func (m *LexiconModel) CondDim() int { return m.dim }

func (m *LexiconModel) Start(cond []float32, opts SessionOptions) (Session, error) {
	if len(cond) != m.dim {
		return nil, fmt.Errorf("%w: conditioning vector has %d dims, language model expects %d",
			entity.ErrInternalInconsistency, len(cond), m.dim)
	}

	c := normalized(cond)
	for i := range c {
		c[i] -= m.center[i]
	}
	c = normalized(c)

	s := &lexiconSession{
		model:   m,
		sims:    make([]float64, m.vocab.Size()),
		allowed: make([]bool, m.vocab.Size()),
		opts:    opts,
	}

	registers := map[string]bool{RegisterCore: true}
	for _, r := range opts.Registers {
		registers[r] = true
	}
	for _, t := range m.vocab.Tokens() {
		s.allowed[t.ID] = t.Class != ClassSpecial && (len(opts.Registers) == 0 || registers[t.Register])
		if w := m.grounded[t.ID]; w != nil {
			s.sims[t.ID] = float64(dot(c, w))
		}
	}

	return s, nil
}

type lexiconSession struct {
	model   *LexiconModel
	sims    []float64
	allowed []bool
	opts    SessionOptions
}

func (s *lexiconSession) Logits(history []int32, dst []float32) {
	vocab := s.model.vocab
	for i := range dst {
		dst[i] = negInf
	}

	used := make(map[int32]bool, len(history))
	groups := make(map[string]bool)
	for _, id := range history {
		used[id] = true
		if g := vocab.Token(id).Group; g != "" {
			groups[g] = true
		}
	}
	blocked := func(t Token) bool {
		return !s.allowed[t.ID] ||
			(t.Class.Content() && used[t.ID]) ||
			(t.Group != "" && groups[t.Group])
	}

	// available counts unused allowed tokens per class
	var available [numClasses]int
	for _, t := range vocab.Tokens() {
		if blocked(t) {
			continue
		}
		available[t.Class]++
	}

	next := s.transitions(history, available)
	if len(next) == 0 {
		next = transition{ClassEOS: 0}
	}

	for _, t := range vocab.Tokens() {
		prior, ok := next[t.Class]
		if !ok || blocked(t) {
			continue
		}
		dst[t.ID] = float32(prior + t.Bias + s.model.scale*s.sims[t.ID])
	}
}

func (s *lexiconSession) transitions(history []int32, available [numClasses]int) transition {
	vocab := s.model.vocab
	n := len(history)

	last := ClassSpecial
	if n > 0 {
		last = vocab.Token(history[n-1]).Class
	}

	base := grammar[last]
	if last == ClassAttr && n >= 2 && vocab.Token(history[n-2]).Class == ClassAnd {
		base = closingAttr
	}

	adjRun := 0
	for i := n - 1; i >= 0 && vocab.Token(history[i]).Class == ClassAdj; i-- {
		adjRun++
	}

	out := make(transition, len(base))
	for class, prior := range base {
		switch class {
		case ClassAdj:
			if adjRun >= maxAdjRun || available[ClassAdj] == 0 {
				continue
			}
		case ClassNoun:
			if available[ClassNoun] == 0 {
				continue
			}
		case ClassWith, ClassComma:
			if available[ClassAttr] == 0 {
				continue
			}
		case ClassAnd:
			if available[ClassAttr] == 0 || n+2 < s.opts.MinLength {
				continue
			}
		case ClassAttr:
			if available[ClassAttr] == 0 {
				continue
			}
		}
		out[class] = prior
	}

	// Without a noun the adjective phrase cannot close; keep adjectives.
	if last == ClassAdj && available[ClassNoun] == 0 && available[ClassAdj] > 0 {
		out[ClassAdj] = 0
	}
	// Enumerations without a connective end on the last attribute.
	if last == ClassAttr && available[ClassAttr] == 0 {
		out = transition{ClassEOS: 0}
	}

	return out
}

func dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// normalized returns a unit-length copy of v, or a zero vector when v is zero.
func normalized(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	out := make([]float32, len(v))
	if sum == 0 {
		return out
	}
	inv := float32(1 / math.Sqrt(sum))
	for i, x := range v {
		out[i] = x * inv
	}
	return out
}
