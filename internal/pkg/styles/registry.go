package styles

import (
	"fmt"
	"strings"

	"github.com/ds124wfegd/imagecaption/internal/entity"
	"github.com/ds124wfegd/imagecaption/internal/pkg/decoder"
)

// catalog lists the styles in presentation order. Adding a style is a new
// row here.
var catalog = []entity.StyleSpec{
	{
		ID:          entity.StyleCreative,
		Name:        "Creative",
		Description: "Natural, engaging descriptions",
		Prompt:      "A beautiful image showing",
		Vocabulary:  []string{decoder.RegisterPlain, decoder.RegisterPoetic},
		Params: entity.DecodingParams{
			BeamWidth:         5,
			Temperature:       0.7,
			TopP:              0.9,
			MinLength:         3,
			MaxLength:         50,
			RepetitionPenalty: 1.2,
			LengthPenalty:     1.0,
			EOSBias:           0,
		},
	},
	{
		ID:          entity.StyleTechnical,
		Name:        "Technical",
		Description: "Detailed, objective descriptions",
		Prompt:      "This image contains:",
		Vocabulary:  []string{decoder.RegisterPlain, decoder.RegisterTechnical},
		Params: entity.DecodingParams{
			BeamWidth:         5,
			Temperature:       0,
			TopP:              0.9,
			MinLength:         10,
			MaxLength:         50,
			RepetitionPenalty: 1.2,
			LengthPenalty:     1.0,
			EOSBias:           -1,
		},
	},
	{
		ID:          entity.StyleSimple,
		Name:        "Simple",
		Description: "Short, straightforward descriptions",
		Prompt:      "This is",
		Vocabulary:  []string{decoder.RegisterPlain},
		Params: entity.DecodingParams{
			BeamWidth:         3,
			Temperature:       0,
			TopP:              0.9,
			MinLength:         3,
			MaxLength:         5,
			RepetitionPenalty: 1.2,
			LengthPenalty:     1.0,
			EOSBias:           2,
		},
	},
}

type Registry struct {
	styles []entity.StyleSpec
	byID   map[entity.StyleID]int
}

// New builds a registry from specs, keeping their order. Without arguments
// it uses the bundled catalog.
func New(specs ...entity.StyleSpec) (*Registry, error) {
	if len(specs) == 0 {
		specs = catalog
	}
	r := &Registry{
		styles: make([]entity.StyleSpec, 0, len(specs)),
		byID:   make(map[entity.StyleID]int, len(specs)),
	}
	for _, s := range specs {
		if s.ID == "" {
			return nil, fmt.Errorf("style %q has empty id", s.Name)
		}
		if _, dup := r.byID[s.ID]; dup {
			return nil, fmt.Errorf("duplicate style %q", s.ID)
		}
		if s.Params.MaxLength <= 0 || s.Params.BeamWidth <= 0 {
			return nil, fmt.Errorf("style %q needs positive beam width and max length", s.ID)
		}
		if err := validateParams(s.Params); err != nil {
			return nil, fmt.Errorf("style %q: %w", s.ID, err)
		}
		r.byID[s.ID] = len(r.styles)
		r.styles = append(r.styles, clone(s))
	}
	return r, nil
}

func validateParams(p entity.DecodingParams) error {
	switch {
	case !(p.Temperature >= 0):
		return fmt.Errorf("temperature %v must not be negative", p.Temperature)
	case !(p.TopP >= 0 && p.TopP <= 1):
		return fmt.Errorf("top_p %v outside [0,1]", p.TopP)
	case p.MinLength < 0:
		return fmt.Errorf("negative min length %d", p.MinLength)
	case p.MinLength > p.MaxLength:
		return fmt.Errorf("min length %d exceeds max length %d", p.MinLength, p.MaxLength)
	}
	return nil
}

// Default returns the registry over the bundled catalog.
func Default() *Registry {
	r, err := New()
	if err != nil {
		panic(err)
	}
	return r
}

// List returns the catalog in stable order. The result is a copy.
func (r *Registry) List() []entity.StyleSpec {
	out := make([]entity.StyleSpec, len(r.styles))
	for i, s := range r.styles {
		out[i] = clone(s)
	}
	return out
}

func (r *Registry) Resolve(id entity.StyleID) (entity.StyleSpec, error) {
	i, ok := r.byID[entity.StyleID(strings.ToLower(strings.TrimSpace(string(id))))]
	if !ok {
		return entity.StyleSpec{}, fmt.Errorf("%w: %q (use %s)", entity.ErrUnknownStyle, id, r.ids())
	}
	return clone(r.styles[i]), nil
}

func (r *Registry) ids() string {
	ids := make([]string, len(r.styles))
	for i, s := range r.styles {
		ids[i] = string(s.ID)
	}
	return strings.Join(ids, ", ")
}

func clone(s entity.StyleSpec) entity.StyleSpec {
	s.Vocabulary = append([]string(nil), s.Vocabulary...)
	return s
}
