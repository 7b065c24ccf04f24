package balance

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldwater/irrigaudit/internal/models"
)

func seriesOf(days ...models.WeatherDay) models.WeatherSeries {
	start := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	for i := range days {
		days[i].Date = start.AddDate(0, 0, i)
	}
	return models.WeatherSeries{Days: days}
}

var oneAcre = models.FieldConfig{PumpCapacityLPM: 200, FieldSizeAcres: 1}

func TestComputeScenarios(t *testing.T) {
	tests := []struct {
		name       string
		eto, rain  float64
		kc         float64
		field      models.FieldConfig
		need       float64
		irrigation float64
		volume     float64
		hours      float64
	}{
		{
			name: "deficit after light rain", eto: 5, rain: 2, kc: 1.1, field: oneAcre,
			need: 5.5, irrigation: 3.5, volume: 14164.01, hours: 1.180334,
		},
		{
			name: "rain exceeds need", eto: 3, rain: 10, kc: 0.8, field: oneAcre,
			need: 2.4, irrigation: 0, volume: 0, hours: 0,
		},
		{
			name: "dry day", eto: 5, rain: 0, kc: 1.2, field: oneAcre,
			need: 6, irrigation: 6, volume: 24281.16, hours: 2.023430,
		},
		{
			name: "rain covers need", eto: 4, rain: 10, kc: 1.0, field: oneAcre,
			need: 4, irrigation: 0, volume: 0, hours: 0,
		},
		{
			name: "partial rain", eto: 4.5, rain: 2, kc: 1.15, field: models.FieldConfig{PumpCapacityLPM: 200, FieldSizeAcres: 1},
			need: 5.175, irrigation: 3.175, volume: 12848.7805, hours: 1.070732,
		},
		{
			name: "two acres", eto: 5, rain: 1, kc: 0.6, field: models.FieldConfig{PumpCapacityLPM: 400, FieldSizeAcres: 2},
			need: 3, irrigation: 2, volume: 16187.44, hours: 0.674477,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Compute(seriesOf(models.WeatherDay{EToMM: tt.eto, RainMM: tt.rain}), tt.kc, tt.field)
			require.NoError(t, err)
			require.Len(t, got, 1)

			b := got[0]
			assert.InDelta(t, tt.need, b.CropNeedMM, 1e-9)
			assert.InDelta(t, tt.irrigation, b.IrrigationNeedMM, 1e-9)
			assert.InDelta(t, tt.volume, b.VolumeLiters, 1e-4)
			assert.InDelta(t, tt.hours, b.PumpHours, 1e-6)
			assert.Equal(t, tt.eto, b.EToMM)
			assert.Equal(t, tt.rain, b.RainMM)
		})
	}
}

func TestComputeEmptySeries(t *testing.T) {
	got, err := Compute(models.WeatherSeries{}, 1.0, oneAcre)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestComputeInvalidConfig(t *testing.T) {
	tests := []struct {
		name  string
		kc    float64
		field models.FieldConfig
	}{
		{"zero pump", 1, models.FieldConfig{PumpCapacityLPM: 0, FieldSizeAcres: 1}},
		{"negative pump", 1, models.FieldConfig{PumpCapacityLPM: -5, FieldSizeAcres: 1}},
		{"zero field", 1, models.FieldConfig{PumpCapacityLPM: 200, FieldSizeAcres: 0}},
		{"NaN field", 1, models.FieldConfig{PumpCapacityLPM: 200, FieldSizeAcres: math.NaN()}},
		{"infinite pump", 1, models.FieldConfig{PumpCapacityLPM: math.Inf(1), FieldSizeAcres: 1}},
		{"negative kc", -0.1, oneAcre},
		{"NaN kc", math.NaN(), oneAcre},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compute(models.WeatherSeries{}, tt.kc, tt.field)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidConfig)

			var ice *InvalidConfigError
			assert.ErrorAs(t, err, &ice)
		})
	}
}

func TestComputeIdentityAndIdempotence(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	days := make([]models.WeatherDay, 30)
	for i := range days {
		days[i] = models.WeatherDay{EToMM: rng.Float64() * 9, RainMM: rng.Float64() * 12}
	}
	series := seriesOf(days...)
	field := models.FieldConfig{PumpCapacityLPM: 150 + rng.Float64()*300, FieldSizeAcres: 0.5 + rng.Float64()*5}
	kc := 0.3 + rng.Float64()

	first, err := Compute(series, kc, field)
	require.NoError(t, err)
	second, err := Compute(series, kc, field)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	for i, b := range first {
		assert.Equal(t, series.Days[i].Date, b.Date)
		assert.Equal(t, math.Max(0, b.CropNeedMM-b.RainMM), b.IrrigationNeedMM)
		assert.GreaterOrEqual(t, b.IrrigationNeedMM, 0.0)
		assert.GreaterOrEqual(t, b.PumpHours, 0.0)
		if b.IrrigationNeedMM == 0 {
			assert.Zero(t, b.VolumeLiters)
			assert.Zero(t, b.PumpHours)
		}
	}
}
