package codec

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocervell/flash/pkg/schema"
)

func TestDecode(t *testing.T) {
	testCases := []struct {
		name    string
		col     schema.Column
		raw     string
		want    any
		wantErr error
	}{
		{name: "text passes through", col: schema.Column{Name: "name", Type: schema.Text}, raw: "hello", want: "hello"},
		{name: "integer", col: schema.Column{Name: "n", Type: schema.Integer}, raw: "42", want: int64(42)},
		{name: "negative integer", col: schema.Column{Name: "n", Type: schema.Integer}, raw: "-7", want: int64(-7)},
		{name: "bad integer", col: schema.Column{Name: "n", Type: schema.Integer}, raw: "4.2", wantErr: ErrInvalidNumber},
		{name: "float", col: schema.Column{Name: "f", Type: schema.Float}, raw: "3.14", want: 3.14},
		{name: "bad float", col: schema.Column{Name: "f", Type: schema.Float}, raw: "pi", wantErr: ErrInvalidNumber},
		{name: "boolean yes", col: schema.Column{Name: "b", Type: schema.Boolean}, raw: "yes", want: true},
		{name: "boolean 0", col: schema.Column{Name: "b", Type: schema.Boolean}, raw: "0", want: false},
		{name: "bad boolean", col: schema.Column{Name: "b", Type: schema.Boolean}, raw: "maybe", wantErr: ErrInvalidBoolean},
		{name: "date", col: schema.Column{Name: "d", Type: schema.Date}, raw: "2024-06-01 12:30:00", want: time.Date(2024, 6, 1, 12, 30, 0, 0, time.UTC)},
		{name: "bad date", col: schema.Column{Name: "d", Type: schema.Date}, raw: "2024-06-01", wantErr: ErrInvalidDate},
		{name: "json object", col: schema.Column{Name: "j", Type: schema.JSON}, raw: `{"k":1}`, want: map[string]any{"k": float64(1)}},
		{name: "bad json", col: schema.Column{Name: "j", Type: schema.JSON}, raw: `{`, wantErr: ErrInvalidJSON},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Decode(tc.col, tc.raw)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestDecodeList(t *testing.T) {
	intCol := schema.Column{Name: "n", Type: schema.Integer}
	jsonCol := schema.Column{Name: "j", Type: schema.JSON}

	t.Run("single element yields scalar", func(t *testing.T) {
		got, err := DecodeList(intCol, []string{"5"})
		require.NoError(t, err)
		assert.Equal(t, int64(5), got)
	})

	t.Run("multiple elements yield list", func(t *testing.T) {
		got, err := DecodeList(intCol, []string{"1", "2", "3"})
		require.NoError(t, err)
		assert.Equal(t, []any{int64(1), int64(2), int64(3)}, got)
	})

	t.Run("typed element error propagates", func(t *testing.T) {
		_, err := DecodeList(intCol, []string{"1", "x"})
		require.ErrorIs(t, err, ErrInvalidNumber)
	})

	t.Run("json list decodes whole", func(t *testing.T) {
		got, err := DecodeList(jsonCol, []string{`1`, `"two"`})
		require.NoError(t, err)
		assert.Equal(t, []any{float64(1), "two"}, got)
	})

	t.Run("json list drops undecodable elements", func(t *testing.T) {
		got, err := DecodeList(jsonCol, []string{`1`, `{broken`, `3`})
		require.NoError(t, err)
		assert.Equal(t, []any{float64(1), float64(3)}, got)
	})
}

func TestParseBool(t *testing.T) {
	for _, raw := range []string{"true", "True", "yes", "t", "y", "1"} {
		got, err := ParseBool(raw)
		require.NoError(t, err, raw)
		assert.True(t, got, raw)
	}
	for _, raw := range []string{"false", "NO", "f", "n", "0"} {
		got, err := ParseBool(raw)
		require.NoError(t, err, raw)
		assert.False(t, got, raw)
	}
	_, err := ParseBool("2")
	assert.ErrorIs(t, err, ErrInvalidBoolean)
	assert.True(t, IsBool("yes"))
	assert.False(t, IsBool("yess"))
}
