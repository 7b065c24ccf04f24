// Package balance computes the FAO-56 single-coefficient daily water balance.
package balance

import (
	"errors"
	"fmt"
	"math"

	"github.com/fieldwater/irrigaudit/internal/models"
)

// SquareMetresPerAcre converts a depth in mm over one acre to litres.
const SquareMetresPerAcre = 4046.86

var ErrInvalidConfig = errors.New("invalid field configuration")

type InvalidConfigError struct {
	Field string
	Value float64
}

func (e *InvalidConfigError) Error() string {
	return fmt.Sprintf("%s must be a positive finite number, got %g", e.Field, e.Value)
}

func (e *InvalidConfigError) Unwrap() error { return ErrInvalidConfig }

func positiveFinite(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}

// ValidateField checks pump capacity and field size.
func ValidateField(field models.FieldConfig) error {
	if !positiveFinite(field.PumpCapacityLPM) {
		return &InvalidConfigError{Field: "pump capacity (L/min)", Value: field.PumpCapacityLPM}
	}
	if !positiveFinite(field.FieldSizeAcres) {
		return &InvalidConfigError{Field: "field size (acres)", Value: field.FieldSizeAcres}
	}
	return nil
}

// ValidateKc accepts any finite, non-negative coefficient.
func ValidateKc(kc float64) error {
	if kc < 0 || math.IsNaN(kc) || math.IsInf(kc, 0) {
		return &InvalidConfigError{Field: "crop coefficient", Value: kc}
	}
	return nil
}

// Compute derives one DailyBalance per day of the series:
//
//	crop need   = ETo * Kc
//	irrigation  = max(0, crop need - rain)
//	volume (L)  = irrigation * 4046.86 * acres
//	pump hours  = volume / (L/min * 60)
//
// Configuration is validated before the series is inspected, so an invalid
// field is reported even for an empty series.
func Compute(series models.WeatherSeries, kc float64, field models.FieldConfig) ([]models.DailyBalance, error) {
	if err := ValidateField(field); err != nil {
		return nil, err
	}
	if err := ValidateKc(kc); err != nil {
		return nil, err
	}

	out := make([]models.DailyBalance, 0, len(series.Days))
	for _, d := range series.Days {
		need := d.EToMM * kc
		irrigation := math.Max(0, need-d.RainMM)
		volume := irrigation * SquareMetresPerAcre * field.FieldSizeAcres
		out = append(out, models.DailyBalance{
			Date:             d.Date,
			EToMM:            d.EToMM,
			RainMM:           d.RainMM,
			CropNeedMM:       need,
			IrrigationNeedMM: irrigation,
			VolumeLiters:     volume,
			PumpHours:        volume / (field.PumpCapacityLPM * 60),
		})
	}
	return out, nil
}
