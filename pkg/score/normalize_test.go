package score

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   []float64
		want []float64
	}{
		{"empty", []float64{}, []float64{}},
		{"nil", nil, []float64{}},
		{"single", []float64{42}, []float64{0}},
		{"constant", []float64{3, 3, 3, 3}, []float64{0, 0, 0, 0}},
		{"increasing", []float64{10, 20, 30}, []float64{0, 0.5, 1}},
		{"negative", []float64{-2, 0, 2}, []float64{0, 0.5, 1}},
		{"unordered", []float64{5, 1, 3}, []float64{1, 0, 0.5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(tt.in)
			require.Len(t, got, len(tt.want))
			for i := range tt.want {
				assert.InDelta(t, tt.want[i], got[i], 1e-12)
			}
		})
	}
}

func TestNormalize_Bounds(t *testing.T) {
	inputs := [][]float64{
		{0.1, 0.7, 0.3, 0.9},
		{-100, 25, 7, 1e6},
		{1, 2},
	}

	for _, in := range inputs {
		got := Normalize(in)
		lo, hi := got[0], got[0]
		for _, v := range got {
			lo = min(lo, v)
			hi = max(hi, v)
		}
		assert.Equal(t, 0.0, lo)
		assert.Equal(t, 1.0, hi)
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	in := []float64{4, 8, 15, 16, 23, 42}
	once := Normalize(in)
	twice := Normalize(once)
	for i := range once {
		assert.InDelta(t, once[i], twice[i], 1e-12)
	}
}

func TestNormalize_NonFinite(t *testing.T) {
	nan := math.NaN()
	tests := []struct {
		name string
		in   []float64
		want []float64
	}{
		{"nan first", []float64{nan, 1, 2}, []float64{0, 0, 1}},
		{"nan middle", []float64{1, nan, 2}, []float64{0, 0, 1}},
		{"inf last", []float64{1, 3, math.Inf(1)}, []float64{0, 1, 0}},
		{"all nan", []float64{nan, nan}, []float64{0, 0}},
		{"single finite", []float64{nan, 5}, []float64{0, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestNormalize_DoesNotMutateInput(t *testing.T) {
	in := []float64{1, 2, 3}
	Normalize(in)
	assert.Equal(t, []float64{1, 2, 3}, in)
}
