package ingest

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func f(v float64) *float64 { return &v }

func TestCleanETo(t *testing.T) {
	tests := []struct {
		name         string
		in           []*float64
		want         []float64
		interpolated int
		defaulted    int
	}{
		{
			name: "no gaps",
			in:   []*float64{f(4.0), f(4.2), f(5.1)},
			want: []float64{4.0, 4.2, 5.1},
		},
		{
			name:         "single interior gap",
			in:           []*float64{f(4.0), nil, f(5.0)},
			want:         []float64{4.0, 4.5, 5.0},
			interpolated: 1,
		},
		{
			name:         "run of interior gaps",
			in:           []*float64{f(3.0), nil, nil, f(6.0)},
			want:         []float64{3.0, 4.0, 5.0, 6.0},
			interpolated: 2,
		},
		{
			name:         "leading and trailing gaps",
			in:           []*float64{nil, f(4.0), f(4.4), nil},
			want:         []float64{DefaultEToMM, 4.0, 4.4, 4.4},
			interpolated: 1,
			defaulted:    1,
		},
		{
			name:         "trailing run carries last value",
			in:           []*float64{f(4.0), f(5.0), nil, nil},
			want:         []float64{4.0, 5.0, 5.0, 5.0},
			interpolated: 2,
		},
		{
			name:      "leading run",
			in:        []*float64{nil, nil, f(4.2)},
			want:      []float64{3.5, 3.5, 4.2},
			defaulted: 2,
		},
		{
			name:      "all null",
			in:        []*float64{nil, nil, nil},
			want:      []float64{3.5, 3.5, 3.5},
			defaulted: 3,
		},
		{
			name:         "negative and NaN are gaps",
			in:           []*float64{f(2.0), f(-1.0), f(math.NaN()), f(5.0)},
			want:         []float64{2.0, 3.0, 4.0, 5.0},
			interpolated: 2,
		},
		{
			name: "empty",
			in:   nil,
			want: []float64{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, interp, def := CleanETo(tt.in)
			assert.InDeltaSlice(t, tt.want, got, 1e-9)
			assert.Equal(t, tt.interpolated, interp)
			assert.Equal(t, tt.defaulted, def)
			for _, v := range got {
				assert.GreaterOrEqual(t, v, 0.0)
			}
		})
	}
}

func TestCleanRain(t *testing.T) {
	got, def := CleanRain([]*float64{f(1.2), nil, f(-0.5), f(0), f(math.Inf(1))})
	assert.Equal(t, []float64{1.2, 0, 0, 0, 0}, got)
	assert.Equal(t, 3, def)
}
