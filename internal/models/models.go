package models

import (
	"fmt"
	"math"
	"time"
)

type Coordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Valid reports whether the coordinate lies within geographic bounds.
func (c Coordinate) Valid() bool {
	if math.IsNaN(c.Latitude) || math.IsNaN(c.Longitude) {
		return false
	}
	return c.Latitude >= -90 && c.Latitude <= 90 && c.Longitude >= -180 && c.Longitude <= 180
}

func (c Coordinate) String() string {
	return fmt.Sprintf("%.4f,%.4f", c.Latitude, c.Longitude)
}

// Window is the fetch window: PastDays of observed history followed by
// ForecastDays starting today.
type Window struct {
	PastDays     int `json:"past_days"`
	ForecastDays int `json:"forecast_days"`
}

func (w Window) Days() int {
	return w.PastDays + w.ForecastDays
}

type WeatherDay struct {
	Date   time.Time `json:"date"`
	EToMM  float64   `json:"eto_mm"`
	RainMM float64   `json:"rain_mm"`

	// TempMaxC is only populated when the maximum temperature was requested.
	TempMaxC *float64 `json:"temp_max_c,omitempty"`
}

// Quality counts the values the cleaning pass had to fill in.
type Quality struct {
	InterpolatedETo int `json:"interpolated_eto"`
	DefaultedETo    int `json:"defaulted_eto"`
	DefaultedRain   int `json:"defaulted_rain"`
}

func (q Quality) Filled() int {
	return q.InterpolatedETo + q.DefaultedETo + q.DefaultedRain
}

type WeatherSeries struct {
	Coordinate Coordinate   `json:"coordinate"`
	Window     Window       `json:"window"`
	Timezone   string       `json:"timezone"`
	Days       []WeatherDay `json:"days"`
	TodayIndex int          `json:"today_index"`
	FetchedAt  time.Time    `json:"fetched_at"`
	Quality    Quality      `json:"quality"`
	Advisory   string       `json:"advisory,omitempty"` // Set when the provider could not be reached
}

// Empty reports whether the series carries no days, which is how an
// unavailable provider is surfaced.
func (s WeatherSeries) Empty() bool {
	return len(s.Days) == 0
}

type FieldConfig struct {
	PumpCapacityLPM float64 `json:"pump_capacity_lpm"`
	FieldSizeAcres  float64 `json:"field_size_acres"`
}

type DailyBalance struct {
	Date             time.Time `json:"date"`
	EToMM            float64   `json:"eto_mm"`
	RainMM           float64   `json:"rain_mm"`
	CropNeedMM       float64   `json:"crop_need_mm"`
	IrrigationNeedMM float64   `json:"irrigation_need_mm"`
	VolumeLiters     float64   `json:"volume_liters"`
	PumpHours        float64   `json:"pump_hours"`
}

type Status string

const (
	StatusAdequate    Status = "ADEQUATE"
	StatusWaterStress Status = "WATER_STRESS"
)

// Label returns the status as shown to farmers.
func (s Status) Label() string {
	switch s {
	case StatusWaterStress:
		return "WATER STRESS"
	case StatusAdequate:
		return "ADEQUATE"
	default:
		return string(s)
	}
}

// Totals aggregates today and the forecast days that follow it.
type Totals struct {
	Days             int     `json:"days"`
	IrrigationNeedMM float64 `json:"irrigation_need_mm"`
	VolumeLiters     float64 `json:"volume_liters"`
	PumpHours        float64 `json:"pump_hours"`
	RainMM           float64 `json:"rain_mm"`
}

type AuditSummary struct {
	Today                DailyBalance `json:"today"`
	Status               Status       `json:"status"`
	PumpHoursWhole       int          `json:"pump_hours_whole"`
	PumpMinutesRemainder int          `json:"pump_minutes_remainder"`
	Recommendation       string       `json:"recommendation"`
	Totals               Totals       `json:"totals"`
}

// PumpRuntime formats the pump time as "1h 11m".
func (a AuditSummary) PumpRuntime() string {
	return fmt.Sprintf("%dh %dm", a.PumpHoursWhole, a.PumpMinutesRemainder)
}

// Fetch outcomes recorded for each weather request.
const (
	FetchOK          = "ok"
	FetchUnavailable = "unavailable"
	FetchError       = "error"
)

// FetchRun records one weather fetch, including its retries.
type FetchRun struct {
	ID         int64         `json:"id" db:"id"`
	Source     string        `json:"source" db:"source"`
	RequestKey string        `json:"request_key" db:"request_key"`
	StartedAt  time.Time     `json:"started_at" db:"-"`
	Duration   time.Duration `json:"duration_ns" db:"-"`
	Attempts   int           `json:"attempts" db:"attempts"`
	Outcome    string        `json:"outcome" db:"outcome"`
	Days       int           `json:"days" db:"days"`
	Error      string        `json:"error,omitempty" db:"error_message"`
}

// Scheme is a named irrigation scheme with a fixed location.
type Scheme struct {
	Name       string     `json:"name"`
	Coordinate Coordinate `json:"coordinate"`
}
