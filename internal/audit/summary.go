// Package audit turns daily water balances into a farmer-facing summary and
// runs the end-to-end audit pipeline.
package audit

import (
	"errors"
	"fmt"
	"math"

	"github.com/fieldwater/irrigaudit/internal/models"
)

var ErrIndexOutOfRange = errors.New("reference day index out of range")

type IndexOutOfRangeError struct {
	Index int
	Len   int
}

func (e *IndexOutOfRangeError) Error() string {
	return fmt.Sprintf("today index %d outside %d balance rows", e.Index, e.Len)
}

func (e *IndexOutOfRangeError) Unwrap() error { return ErrIndexOutOfRange }

// SplitPumpTime splits fractional hours into whole hours and minutes rounded
// to the nearest minute. A remainder that rounds to 60 carries into the hour.
func SplitPumpTime(hours float64) (whole, minutes int) {
	if hours <= 0 || math.IsNaN(hours) {
		return 0, 0
	}
	h := math.Floor(hours)
	m := math.Round((hours - h) * 60)
	if m >= 60 {
		h++
		m = 0
	}
	return int(h), int(m)
}

// Summarize builds the summary for the row at todayIndex. Totals cover that
// row and every later one.
func Summarize(balances []models.DailyBalance, todayIndex int) (models.AuditSummary, error) {
	if todayIndex < 0 || todayIndex >= len(balances) {
		return models.AuditSummary{}, &IndexOutOfRangeError{Index: todayIndex, Len: len(balances)}
	}

	today := balances[todayIndex]
	s := models.AuditSummary{
		Today:  today,
		Status: models.StatusAdequate,
	}
	if today.IrrigationNeedMM > 0 {
		s.Status = models.StatusWaterStress
	}
	s.PumpHoursWhole, s.PumpMinutesRemainder = SplitPumpTime(today.PumpHours)
	s.Recommendation = recommendation(s)

	for _, b := range balances[todayIndex:] {
		s.Totals.Days++
		s.Totals.IrrigationNeedMM += b.IrrigationNeedMM
		s.Totals.VolumeLiters += b.VolumeLiters
		s.Totals.PumpHours += b.PumpHours
		s.Totals.RainMM += b.RainMM
	}
	return s, nil
}

func recommendation(s models.AuditSummary) string {
	if s.Status != models.StatusWaterStress {
		return fmt.Sprintf("Status: %s. No irrigation needed.", s.Status.Label())
	}
	return fmt.Sprintf("Status: %s. Run pump for %s. Apply %.0f liters.",
		s.Status.Label(), s.PumpRuntime(), s.Today.VolumeLiters)
}
