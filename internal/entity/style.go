package entity

// StyleID names an entry of the style catalog.
type StyleID string

const (
	StyleCreative  StyleID = "creative"
	StyleTechnical StyleID = "technical"
	StyleSimple    StyleID = "simple"
)

// DecodingParams control caption generation for a style.
type DecodingParams struct {
	BeamWidth         int
	Temperature       float64
	TopP              float64
	MaxLength         int
	MinLength         int
	RepetitionPenalty float64
	// LengthPenalty is the exponent applied to the sequence length when
	// ranking finished beams (score / len^LengthPenalty).
	LengthPenalty float64
	// EOSBias is added to the end-of-sequence logit at every step.
	EOSBias float64
}

// StyleSpec is an immutable catalog entry.
type StyleSpec struct {
	ID          StyleID `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	// Prompt opens every caption of the style; decoded words follow it.
	Prompt string `json:"-"`
	// Vocabulary restricts generation to the listed word registers. Empty
	// means the full vocabulary.
	Vocabulary []string       `json:"-"`
	Params     DecodingParams `json:"-"`
}
