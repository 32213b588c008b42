package shapely

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type event struct {
	Title string    `json:"title"`
	At    time.Time `json:"at"`
	Seats int       `json:"seats"`
}

type positive struct {
	N int `json:"n"`
}

func (p *positive) Validate() error {
	if p.N <= 0 {
		return errors.New("n must be positive")
	}
	return nil
}

func TestExtractor_ParseAndValidate(t *testing.T) {
	t.Parallel()
	ext, err := NewExtractor[event]()
	require.NoError(t, err)
	assert.Equal(t, Object(Prop("title", String()), Prop("at", Date()), Prop("seats", Integer())), ext.Schema())

	got, err := ext.ParseAndValidate(`{"title":"launch","at":"01/03/2025:09:00:00","seats":12}`)
	require.NoError(t, err)
	assert.Equal(t, "launch", got.Title)
	assert.Equal(t, 12, got.Seats)
	assert.True(t, time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC).Equal(got.At))
}

func TestExtractor_ParseAndValidate_Errors(t *testing.T) {
	t.Parallel()
	ext, err := NewExtractor[event]()
	require.NoError(t, err)
	tests := []struct {
		name string
		raw  string
	}{
		{"invalid json", `{"title":`},
		{"schema violation", `{"title":"x","at":"01/03/2025:09:00:00","seats":"many"}`},
		{"missing field", `{"title":"x"}`},
		{"bad date", `{"title":"x","at":"whenever","seats":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := ext.ParseAndValidate(tt.raw)
			require.Error(t, err)
			assert.True(t, IsParseError(err))
		})
	}
}

func TestExtractor_ValidatablePointerReceiver(t *testing.T) {
	t.Parallel()
	ext, err := NewExtractor[positive]()
	require.NoError(t, err)

	got, err := ext.ParseAndValidate(`{"n":3}`)
	require.NoError(t, err)
	assert.Equal(t, 3, got.N)

	_, err = ext.ParseAndValidate(`{"n":0}`)
	require.Error(t, err)
	assert.EqualError(t, err, "n must be positive")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestExtractor_PointerT(t *testing.T) {
	t.Parallel()
	ext, err := NewExtractor[*positive]()
	require.NoError(t, err)
	got, err := ext.ParseAndValidate(`{"n":5}`)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 5, got.N)

	_, err = ext.ParseAndValidate(`{"n":-1}`)
	require.Error(t, err)
}

func TestExtractor_ValidatableParseErrorPassthrough(t *testing.T) {
	t.Parallel()
	ext, err := NewExtractor[custom]()
	require.NoError(t, err)
	_, err = ext.ParseAndValidate(`{"v":"x"}`)
	var pe *ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "custom says no", pe.Message)
	assert.NoError(t, pe.Err)
}

type custom struct {
	V string `json:"v"`
}

func (custom) Validate() error { return &ParseError{Message: "custom says no"} }

func TestExtractor_Parameters(t *testing.T) {
	t.Parallel()
	ext, err := NewExtractor[positive]()
	require.NoError(t, err)
	params := ext.Parameters()
	assert.Equal(t, "object", params["type"])
	params["type"] = "mutated"
	assert.Equal(t, "object", ext.Parameters()["type"])
}
