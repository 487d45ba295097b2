package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "10", want: "10"},
		{in: " 10.50 ", want: "10.5"},
		{in: "0.333", want: "0.333"},
		{in: "", wantErr: true},
		{in: "abc", wantErr: true},
		{in: "-1", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Parse(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestSumIsExact(t *testing.T) {
	// 0.1 + 0.2 is the classic binary floating point trap.
	sum := MustParse("0.1").Add(MustParse("0.2"))
	assert.True(t, sum.Equal(decimal.RequireFromString("0.3")))
}

func TestFixed(t *testing.T) {
	assert.Equal(t, "25.00", Fixed(MustParse("25")))
	assert.Equal(t, "0.33", Fixed(MustParse("0.333")))
}

func TestFormatter(t *testing.T) {
	f, err := NewFormatter("en", "$")
	require.NoError(t, err)
	assert.Equal(t, "$1,234.50", f.Format(MustParse("1234.5")))
	assert.Equal(t, "$25.00", f.Format(MustParse("25")))

	_, err = NewFormatter("not a locale!", "$")
	assert.Error(t, err)
}
