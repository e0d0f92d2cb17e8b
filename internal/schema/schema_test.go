package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type weatherArgs struct {
	City  string   `json:"city" description:"City name"`
	Days  *int     `json:"days" description:"Forecast horizon"`
	Units string   `json:"units,omitempty" description:"Unit system"`
	Tags  []string `json:"tags,omitempty"`
}

func TestFromStruct(t *testing.T) {
	spec := FromStruct(weatherArgs{})

	props, ok := spec["properties"].(map[string]any)
	assert.True(t, ok)
	assert.Contains(t, props, "city")
	assert.Contains(t, props, "days")
	assert.Contains(t, props, "units")
	assert.Contains(t, props, "tags")

	city := props["city"].(map[string]any)
	assert.Equal(t, "string", city["type"])
	assert.Equal(t, "City name", city["description"])

	// Pointer and omitempty fields are optional.
	req, _ := spec["required"].([]string)
	assert.ElementsMatch(t, []string{"city"}, req)
}

func TestFromStruct_NonStruct(t *testing.T) {
	spec := FromStruct("not a struct")
	assert.Equal(t, "object", spec["type"])
	assert.Empty(t, spec["properties"])
}

func TestValidate(t *testing.T) {
	spec := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"x": map[string]any{"type": "integer"},
		},
		"required": []any{"x"},
	}

	assert.NoError(t, Validate(map[string]any{"x": 5}, spec))
	// JSON numbers decode to float64; integral values pass.
	assert.NoError(t, Validate(map[string]any{"x": float64(5)}, spec))

	err := Validate(map[string]any{}, spec)
	assert.Error(t, err)
	vErr, ok := err.(*ValidationError)
	assert.True(t, ok)
	assert.Equal(t, "x", vErr.Field)

	err = Validate(map[string]any{"x": "five"}, spec)
	assert.Error(t, err)

	// Extra fields are allowed.
	assert.NoError(t, Validate(map[string]any{"x": 1, "extra": true}, spec))
}

func TestValidate_RequiredStringSlice(t *testing.T) {
	spec := FromStruct(weatherArgs{})
	err := Validate(map[string]any{}, spec)
	assert.Error(t, err)
}
