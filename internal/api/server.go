// Package api serves the irrigation dashboard, the JSON audit API and the
// chart and spreadsheet downloads.
package api

import (
	"context"
	"encoding/json"
	"html/template"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/healthcheck"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fieldwater/irrigaudit/internal/audit"
	"github.com/fieldwater/irrigaudit/internal/config"
	"github.com/fieldwater/irrigaudit/internal/logging"
	"github.com/fieldwater/irrigaudit/internal/models"
	"github.com/fieldwater/irrigaudit/internal/store"
)

const shutdownTimeout = 5 * time.Second

// FetchLog lists recent weather fetches and summarizes their outcomes. The
// sqlite store implements it.
type FetchLog interface {
	RecentFetches(ctx context.Context, limit int) ([]models.FetchRun, error)
	FetchHealthSince(ctx context.Context, since time.Time) ([]store.FetchHealth, error)
}

// PayloadArchive reads archived provider responses. The sqlite store
// implements it.
type PayloadArchive interface {
	GetRawPayloadStats(ctx context.Context) (*store.RawPayloadStats, error)
	GetRawPayload(ctx context.Context, id int64) ([]byte, error)
	LatestRawPayload(ctx context.Context, requestKey string) (*store.RawPayload, error)
}

type Server struct {
	app      *fiber.App
	svc      *audit.Service
	schemes  []models.Scheme
	defaults models.FieldConfig
	tmpl     *template.Template
	fetches  FetchLog
	archive  PayloadArchive
	gatherer prometheus.Gatherer
	ready    func() error
	log      *zap.Logger
}

type Option func(*Server)

// WithFieldDefaults sets the pump and field values used when a request
// leaves them out.
func WithFieldDefaults(f models.FieldConfig) Option { return func(s *Server) { s.defaults = f } }

func WithFetchLog(l FetchLog) Option { return func(s *Server) { s.fetches = l } }

func WithPayloadArchive(a PayloadArchive) Option { return func(s *Server) { s.archive = a } }

// WithGatherer exposes the gatherer's metrics on /metrics.
func WithGatherer(g prometheus.Gatherer) Option { return func(s *Server) { s.gatherer = g } }

// WithReadiness sets the check behind /manage/ready.
func WithReadiness(check func() error) Option { return func(s *Server) { s.ready = check } }

func WithLogger(l *zap.Logger) Option { return func(s *Server) { s.log = l } }

func NewServer(svc *audit.Service, opts ...Option) *Server {
	s := &Server{
		svc:      svc,
		schemes:  config.Schemes(),
		defaults: models.FieldConfig{PumpCapacityLPM: config.DefaultPumpLPM, FieldSizeAcres: config.DefaultFieldAcres},
		tmpl:     newTemplates(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = logging.OrNop(s.log)

	s.app = fiber.New(fiber.Config{
		AppName:               "irrigaudit",
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
		DisableStartupMessage: true,
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          60 * time.Second,
	})

	s.app.Use(recover.New(recover.Config{EnableStackTrace: true}))
	s.app.Use(cors.New())
	s.app.Use(healthcheck.New(healthcheck.Config{
		LivenessEndpoint:  "/manage/health",
		ReadinessEndpoint: "/manage/ready",
		ReadinessProbe:    s.readinessProbe,
	}))

	s.routes()
	return s
}

func (s *Server) routes() {
	s.app.Get("/", s.handleIndex)
	s.app.Get("/chart.png", s.handleChart)
	s.app.Get("/report.xlsx", s.handleXLSX)

	api := s.app.Group("/api")
	api.Get("/audit", s.handleAPIAudit)
	api.Get("/crops", s.handleAPICrops)
	api.Get("/schemes", s.handleAPISchemes)
	api.Get("/fetches", s.handleAPIFetches)
	api.Get("/fetches/health", s.handleAPIFetchHealth)
	api.Get("/payloads/stats", s.handleAPIPayloadStats)
	api.Get("/payloads/latest", s.handleAPILatestPayload)
	api.Get("/payloads/:id<int>", s.handleAPIPayload)

	if s.gatherer != nil {
		s.app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}
}

func (s *Server) readinessProbe(*fiber.Ctx) bool {
	if s.ready == nil {
		return true
	}
	if err := s.ready(); err != nil {
		s.log.Warn("readiness check failed", zap.Error(err))
		return false
	}
	return true
}

// App exposes the fiber app, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Run serves on addr until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("dashboard listening", zap.String("addr", addr))
		errCh <- s.app.Listen(addr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		if err := s.app.ShutdownWithTimeout(shutdownTimeout); err != nil {
			return err
		}
		return <-errCh
	}
}
