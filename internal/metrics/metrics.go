package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the collectors for one registry. A nil *Metrics is valid and
// records nothing, so components can run without instrumentation.
type Metrics struct {
	WeatherAPICalls    *prometheus.CounterVec
	WeatherAPILatency  *prometheus.HistogramVec
	WeatherRetries     prometheus.Counter
	WeatherUnavailable prometheus.Counter
	WeatherCache       *prometheus.CounterVec
	DaysCleaned        *prometheus.CounterVec
	Audits             *prometheus.CounterVec
	KcFallbacks        prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		WeatherAPICalls: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "irrigaudit_weather_api_calls_total",
				Help: "Total Open-Meteo API calls by outcome",
			},
			[]string{"status"},
		),
		WeatherAPILatency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "irrigaudit_weather_api_latency_seconds",
				Help:    "Open-Meteo API call latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"status"},
		),
		WeatherRetries: f.NewCounter(
			prometheus.CounterOpts{
				Name: "irrigaudit_weather_retries_total",
				Help: "Total weather fetch retries after transient failures",
			},
		),
		WeatherUnavailable: f.NewCounter(
			prometheus.CounterOpts{
				Name: "irrigaudit_weather_unavailable_total",
				Help: "Weather fetches that exhausted all attempts",
			},
		),
		WeatherCache: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "irrigaudit_weather_cache_total",
				Help: "Weather series cache lookups by result",
			},
			[]string{"result"},
		),
		DaysCleaned: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "irrigaudit_weather_values_filled_total",
				Help: "Weather values filled during cleaning",
			},
			[]string{"field", "method"},
		),
		Audits: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "irrigaudit_audits_total",
				Help: "Completed irrigation audits by outcome",
			},
			[]string{"outcome"},
		),
		KcFallbacks: f.NewCounter(
			prometheus.CounterOpts{
				Name: "irrigaudit_kc_fallbacks_total",
				Help: "Audits that used the default crop coefficient",
			},
		),
	}
}

func (m *Metrics) ObserveAPICall(status string, seconds float64) {
	if m == nil {
		return
	}
	m.WeatherAPICalls.WithLabelValues(status).Inc()
	m.WeatherAPILatency.WithLabelValues(status).Observe(seconds)
}

func (m *Metrics) Retry() {
	if m == nil {
		return
	}
	m.WeatherRetries.Inc()
}

func (m *Metrics) Unavailable() {
	if m == nil {
		return
	}
	m.WeatherUnavailable.Inc()
}

func (m *Metrics) CacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.WeatherCache.WithLabelValues(result).Inc()
}

func (m *Metrics) Filled(field, method string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.DaysCleaned.WithLabelValues(field, method).Add(float64(n))
}

func (m *Metrics) Audit(outcome string) {
	if m == nil {
		return
	}
	m.Audits.WithLabelValues(outcome).Inc()
}

func (m *Metrics) KcFallback() {
	if m == nil {
		return
	}
	m.KcFallbacks.Inc()
}
