package ingest

import (
	"math"

	"github.com/fieldwater/irrigaudit/internal/models"
)

// DefaultEToMM stands in for reference evapotranspiration when a gap has no
// known neighbour to interpolate from.
const DefaultEToMM = 3.5

func usable(v *float64) bool {
	return v != nil && !math.IsNaN(*v) && !math.IsInf(*v, 0) && *v >= 0
}

// CleanETo fills gaps (null, negative or non-finite values). Interior gaps
// are linearly interpolated between the nearest known values and trailing
// gaps repeat the last known value; both count as interpolated. Leading gaps,
// or a column with no known values, take DefaultEToMM.
func CleanETo(raw []*float64) (out []float64, interpolated, defaulted int) {
	out = make([]float64, len(raw))
	prev := -1
	for i, v := range raw {
		if usable(v) {
			out[i] = *v
			prev = i
			continue
		}
		next := -1
		for j := i + 1; j < len(raw); j++ {
			if usable(raw[j]) {
				next = j
				break
			}
		}
		if prev < 0 {
			out[i] = DefaultEToMM
			defaulted++
			continue
		}
		if next < 0 {
			out[i] = out[prev]
			interpolated++
			continue
		}
		lo, hi := out[prev], *raw[next]
		frac := float64(i-prev) / float64(next-prev)
		out[i] = lo + (hi-lo)*frac
		interpolated++
	}
	return out, interpolated, defaulted
}

// CleanRain replaces null, negative or non-finite precipitation with zero.
func CleanRain(raw []*float64) (out []float64, defaulted int) {
	out = make([]float64, len(raw))
	for i, v := range raw {
		if usable(v) {
			out[i] = *v
			continue
		}
		defaulted++
	}
	return out, defaulted
}

// clean builds the day rows and quality counters from parsed columns, which
// must have equal length.
func clean(p parsedDaily) ([]models.WeatherDay, models.Quality) {
	eto, interp, defETo := CleanETo(p.eto)
	rain, defRain := CleanRain(p.rain)

	days := make([]models.WeatherDay, len(p.dates))
	for i, d := range p.dates {
		days[i] = models.WeatherDay{Date: d, EToMM: eto[i], RainMM: rain[i]}
		if p.tempMax != nil && i < len(p.tempMax) && p.tempMax[i] != nil && !math.IsNaN(*p.tempMax[i]) {
			t := *p.tempMax[i]
			days[i].TempMaxC = &t
		}
	}
	return days, models.Quality{
		InterpolatedETo: interp,
		DefaultedETo:    defETo,
		DefaultedRain:   defRain,
	}
}
