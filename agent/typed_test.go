package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parley-ai/parley/core"
	"github.com/parley-ai/parley/model"
)

type cityWeather struct {
	City string  `json:"city" description:"City name"`
	Temp float64 `json:"temp" description:"Temperature in celsius"`
}

func TestUnmarshal_WellFormed(t *testing.T) {
	res := core.ChatResult{Output: `{"city":"Paris","temp":21.5}`}
	v, err := Unmarshal[cityWeather](res)
	require.NoError(t, err)
	assert.Equal(t, "Paris", v.City)
	assert.InDelta(t, 21.5, v.Temp, 1e-9)
}

func TestUnmarshal_RepairsSloppyJSON(t *testing.T) {
	// Single quotes and a trailing comma, as models sometimes emit.
	res := core.ChatResult{Output: `{'city': 'Paris', 'temp': 21,}`}
	v, err := Unmarshal[cityWeather](res)
	require.NoError(t, err)
	assert.Equal(t, "Paris", v.City)
}

func TestUnmarshal_MalformedIsFormatError(t *testing.T) {
	res := core.ChatResult{Output: `I would rather answer in prose.`}
	_, err := Unmarshal[cityWeather](res)
	require.Error(t, err)

	var formatErr *FormatError
	require.ErrorAs(t, err, &formatErr)
	assert.Equal(t, res.Output, formatErr.Output)
}

func TestSendAs_DerivesSchemaAndDecodes(t *testing.T) {
	m := model.NewMockModel(model.MockTurn{Text: `{"city":"Rome","temp":25}`})
	a := newMockAgent(t, m)

	v, err := SendAs[cityWeather](context.Background(), a, "Weather in Rome?")
	require.NoError(t, err)
	assert.Equal(t, "Rome", v.City)

	reqs := m.Requests()
	require.Len(t, reqs, 1)
	require.NotNil(t, reqs[0].OutputSchema)
	props, ok := reqs[0].OutputSchema["properties"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, props, "city")
	assert.Contains(t, props, "temp")
}
