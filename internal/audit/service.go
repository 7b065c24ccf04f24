package audit

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/fieldwater/irrigaudit/internal/balance"
	"github.com/fieldwater/irrigaudit/internal/crops"
	"github.com/fieldwater/irrigaudit/internal/logging"
	"github.com/fieldwater/irrigaudit/internal/metrics"
	"github.com/fieldwater/irrigaudit/internal/models"
)

// DefaultAdvisory is used when the weather source returns an empty series
// without saying why.
const DefaultAdvisory = "Weather data unavailable. No recommendation can be made."

// WeatherSource returns a cleaned daily series. An empty series with a nil
// error means the provider was unavailable.
type WeatherSource interface {
	Fetch(ctx context.Context, coord models.Coordinate, window models.Window) (models.WeatherSeries, error)
}

type Request struct {
	Coordinate models.Coordinate  `json:"coordinate"`
	Location   string             `json:"location,omitempty"`
	Category   string             `json:"category"`
	Crop       string             `json:"crop"`
	Stage      string             `json:"stage"`
	Field      models.FieldConfig `json:"field"`
}

type Result struct {
	Request     Request               `json:"request"`
	Kc          float64               `json:"kc"`
	KcDefaulted bool                  `json:"kc_defaulted"`
	Series      models.WeatherSeries  `json:"-"`
	Balances    []models.DailyBalance `json:"balances"`
	Summary     *models.AuditSummary  `json:"summary,omitempty"`
	Advisory    string                `json:"advisory,omitempty"`
}

// Available reports whether weather data was obtained and a summary built.
func (r *Result) Available() bool {
	return r != nil && r.Summary != nil
}

type Service struct {
	weather   WeatherSource
	crops     *crops.Table
	defaultKc float64
	window    models.Window
	metrics   *metrics.Metrics
	log       *zap.Logger
}

type ServiceOption func(*Service)

func WithDefaultKc(kc float64) ServiceOption { return func(s *Service) { s.defaultKc = kc } }

func WithWindow(w models.Window) ServiceOption { return func(s *Service) { s.window = w } }

func WithMetrics(m *metrics.Metrics) ServiceOption { return func(s *Service) { s.metrics = m } }

func WithLogger(l *zap.Logger) ServiceOption { return func(s *Service) { s.log = l } }

func NewService(weather WeatherSource, table *crops.Table, opts ...ServiceOption) *Service {
	s := &Service{
		weather:   weather,
		crops:     table,
		defaultKc: crops.DefaultKc,
		window:    models.Window{PastDays: 2, ForecastDays: 5},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = logging.OrNop(s.log)
	return s
}

func (s *Service) Crops() *crops.Table {
	return s.crops
}

// Run validates the request, resolves Kc (falling back to the default),
// fetches weather and, when data is available, computes balances and the
// summary. An unavailable provider yields a Result with only an advisory.
func (s *Service) Run(ctx context.Context, req Request) (*Result, error) {
	if err := balance.ValidateField(req.Field); err != nil {
		s.metrics.Audit("error")
		return nil, err
	}

	log := s.log.With(
		zap.String("location", req.Location),
		zap.String("crop", req.Crop),
		zap.String("stage", req.Stage))

	kc, found := s.crops.KcOrDefault(req.Category, req.Crop, req.Stage, s.defaultKc)
	if !found {
		s.metrics.KcFallback()
		log.Warn("crop coefficient not found, using default",
			zap.String("category", req.Category), zap.Float64("kc", kc))
	}

	res := &Result{Request: req, Kc: kc, KcDefaulted: !found}

	series, err := s.weather.Fetch(ctx, req.Coordinate, s.window)
	if err != nil {
		s.metrics.Audit("error")
		return nil, fmt.Errorf("audit %s: %w", req.Coordinate, err)
	}
	res.Series = series

	if series.Empty() {
		res.Balances = []models.DailyBalance{}
		res.Advisory = series.Advisory
		if res.Advisory == "" {
			res.Advisory = DefaultAdvisory
		}
		s.metrics.Audit("unavailable")
		log.Warn("audit skipped, no weather data", zap.String("advisory", res.Advisory))
		return res, nil
	}

	balances, err := balance.Compute(series, kc, req.Field)
	if err != nil {
		s.metrics.Audit("error")
		return nil, err
	}
	res.Balances = balances

	summary, err := Summarize(balances, series.TodayIndex)
	if err != nil {
		s.metrics.Audit("error")
		return nil, err
	}
	res.Summary = &summary

	s.metrics.Audit(strings.ToLower(string(summary.Status)))
	log.Info("audit complete",
		zap.String("status", string(summary.Status)),
		zap.Float64("kc", kc),
		zap.Float64("irrigation_mm", summary.Today.IrrigationNeedMM),
		zap.String("pump", summary.PumpRuntime()))
	return res, nil
}
