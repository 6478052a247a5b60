package styles

import (
	"math"
	"testing"

	"github.com/ds124wfegd/imagecaption/internal/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListIsStable(t *testing.T) {
	r := Default()

	first := r.List()
	require.Len(t, first, 3)
	assert.Equal(t, entity.StyleCreative, first[0].ID)
	assert.Equal(t, entity.StyleTechnical, first[1].ID)
	assert.Equal(t, entity.StyleSimple, first[2].ID)

	// callers cannot mutate the catalog
	first[0].Name = "changed"
	first[0].Vocabulary[0] = "changed"
	assert.Equal(t, r.List(), Default().List())
	assert.Equal(t, "Creative", r.List()[0].Name)
}

func TestResolve(t *testing.T) {
	r := Default()

	tests := []struct {
		name    string
		id      entity.StyleID
		want    entity.StyleID
		wantErr error
	}{
		{name: "creative", id: "creative", want: entity.StyleCreative},
		{name: "mixed case and spaces", id: " Technical ", want: entity.StyleTechnical},
		{name: "simple", id: "simple", want: entity.StyleSimple},
		{name: "unknown", id: "poetic", wantErr: entity.ErrUnknownStyle},
		{name: "empty", id: "", wantErr: entity.ErrUnknownStyle},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec, err := r.Resolve(tt.id)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, spec.ID)
			assert.NotEmpty(t, spec.Prompt)
		})
	}
}

func TestCatalogParameters(t *testing.T) {
	r := Default()

	creative, err := r.Resolve(entity.StyleCreative)
	require.NoError(t, err)
	assert.Equal(t, 5, creative.Params.BeamWidth)
	assert.Equal(t, 0.7, creative.Params.Temperature)
	assert.Equal(t, 50, creative.Params.MaxLength)
	assert.Equal(t, 1.2, creative.Params.RepetitionPenalty)

	simple, _ := r.Resolve(entity.StyleSimple)
	technical, _ := r.Resolve(entity.StyleTechnical)
	assert.Less(t, simple.Params.MaxLength, technical.Params.MinLength)
}

func TestNewValidates(t *testing.T) {
	ok := entity.DecodingParams{BeamWidth: 1, MaxLength: 5}

	tests := []struct {
		name  string
		specs []entity.StyleSpec
	}{
		{name: "empty id", specs: []entity.StyleSpec{{Params: ok}}},
		{name: "duplicate", specs: []entity.StyleSpec{{ID: "a", Params: ok}, {ID: "a", Params: ok}}},
		{name: "zero max length", specs: []entity.StyleSpec{{ID: "a", Params: entity.DecodingParams{BeamWidth: 1}}}},
		{name: "min above max", specs: []entity.StyleSpec{{ID: "a", Params: entity.DecodingParams{BeamWidth: 1, MaxLength: 2, MinLength: 3}}}},
		{name: "negative min length", specs: []entity.StyleSpec{{ID: "a", Params: entity.DecodingParams{BeamWidth: 1, MaxLength: 2, MinLength: -1}}}},
		{name: "negative temperature", specs: []entity.StyleSpec{{ID: "a", Params: entity.DecodingParams{BeamWidth: 1, MaxLength: 5, Temperature: -0.5}}}},
		{name: "nan temperature", specs: []entity.StyleSpec{{ID: "a", Params: entity.DecodingParams{BeamWidth: 1, MaxLength: 5, Temperature: math.NaN()}}}},
		{name: "top p above one", specs: []entity.StyleSpec{{ID: "a", Params: entity.DecodingParams{BeamWidth: 1, MaxLength: 5, TopP: 1.5}}}},
		{name: "negative top p", specs: []entity.StyleSpec{{ID: "a", Params: entity.DecodingParams{BeamWidth: 1, MaxLength: 5, TopP: -0.1}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.specs...)
			assert.Error(t, err)
		})
	}

	_, err := New(entity.StyleSpec{ID: "a", Params: entity.DecodingParams{BeamWidth: 1, MaxLength: 5, TopP: 1, Temperature: 0.3}})
	assert.NoError(t, err)
}
