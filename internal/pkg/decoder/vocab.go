package decoder

import "fmt"

// Class is the grammatical role of a token in the caption grammar.
type Class int

const (
	ClassSpecial Class = iota
	ClassDet
	ClassAdj
	ClassNoun
	ClassWith
	ClassComma
	ClassAnd
	ClassAttr
	ClassEOS

	numClasses
)

func (c Class) String() string {
	switch c {
	case ClassSpecial:
		return "special"
	case ClassDet:
		return "det"
	case ClassAdj:
		return "adj"
	case ClassNoun:
		return "noun"
	case ClassWith:
		return "with"
	case ClassComma:
		return "comma"
	case ClassAnd:
		return "and"
	case ClassAttr:
		return "attr"
	case ClassEOS:
		return "eos"
	}
	return fmt.Sprintf("class(%d)", int(c))
}

// Content tokens describe the image; each may appear at most once.
func (c Class) Content() bool {
	return c == ClassAdj || c == ClassNoun || c == ClassAttr
}

// Register values group tokens by tone. Core tokens are always allowed.
const (
	RegisterCore      = "core"
	RegisterPlain     = "plain"
	RegisterPoetic    = "poetic"
	RegisterTechnical = "technical"
)

type Token struct {
	ID       int32
	Text     string
	Class    Class
	Register string
	// Bias is the prior log-score of the token within its class.
	Bias float64
	// Prototypes ground the token in the visual embedding space.
	Prototypes []string
	// Group names a mutually exclusive set: once one member is emitted the
	// others are masked, so a caption never states both "low brightness"
	// and "high brightness".
	Group string
}

// Special reports whether the token is stripped from the final caption.
func (t Token) Special() bool {
	return t.Class == ClassSpecial || t.Class == ClassEOS
}

type Vocabulary struct {
	tokens []Token
	index  map[string]int32
	eos    int32
	pad    int32
}

func NewVocabulary(tokens []Token) (*Vocabulary, error) {
	v := &Vocabulary{
		tokens: make([]Token, len(tokens)),
		index:  make(map[string]int32, len(tokens)),
		eos:    -1,
		pad:    -1,
	}
	for i, tok := range tokens {
		if _, dup := v.index[tok.Text]; dup {
			return nil, fmt.Errorf("duplicate token %q", tok.Text)
		}
		tok.ID = int32(i)
		v.tokens[i] = tok
		v.index[tok.Text] = tok.ID

		switch tok.Class {
		case ClassEOS:
			v.eos = tok.ID
		case ClassSpecial:
			if tok.Text == PadToken {
				v.pad = tok.ID
			}
		}
	}
	if v.eos < 0 {
		return nil, fmt.Errorf("vocabulary has no %s token", EOSToken)
	}
	return v, nil
}

func (v *Vocabulary) Size() int { return len(v.tokens) }

func (v *Vocabulary) EOS() int32 { return v.eos }

func (v *Vocabulary) Token(id int32) Token { return v.tokens[id] }

func (v *Vocabulary) Tokens() []Token { return v.tokens }

func (v *Vocabulary) Lookup(text string) (int32, bool) {
	id, ok := v.index[text]
	return id, ok
}

// Words maps token ids to their surface text.
func (v *Vocabulary) Words(ids []int32) []string {
	words := make([]string, 0, len(ids))
	for _, id := range ids {
		if id < 0 || int(id) >= len(v.tokens) {
			continue
		}
		words = append(words, v.tokens[id].Text)
	}
	return words
}
