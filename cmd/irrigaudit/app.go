package main

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/fieldwater/irrigaudit/internal/audit"
	"github.com/fieldwater/irrigaudit/internal/config"
	"github.com/fieldwater/irrigaudit/internal/crops"
	"github.com/fieldwater/irrigaudit/internal/httputil"
	"github.com/fieldwater/irrigaudit/internal/ingest"
	"github.com/fieldwater/irrigaudit/internal/logging"
	"github.com/fieldwater/irrigaudit/internal/metrics"
	"github.com/fieldwater/irrigaudit/internal/store"
)

// app holds the components shared by the commands.
type app struct {
	cfg     config.Config
	log     *zap.Logger
	reg     *prometheus.Registry
	metrics *metrics.Metrics
	store   *store.Store
	pruner  ingest.Pruner
	client  *ingest.Client
	svc     *audit.Service
}

func newApp(cfg config.Config) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	log, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}

	a := &app{cfg: cfg, log: log, reg: prometheus.NewRegistry()}
	a.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.metrics = metrics.New(a.reg)

	table := loadCropTable(cfg.Crops.Path, log)

	opts := []ingest.Option{
		ingest.WithBaseURL(cfg.Weather.BaseURL),
		ingest.WithTimezone(cfg.Weather.Timezone),
		ingest.WithHTTPClient(httputil.NewClient(cfg.Weather.Timeout)),
		ingest.WithRetryPolicy(ingest.RetryPolicy{
			MaxAttempts:     cfg.Weather.MaxAttempts,
			InitialInterval: cfg.Weather.InitialBackoff,
			Multiplier:      2,
		}),
		ingest.WithMaxTemperature(cfg.Weather.MaxTemp),
		ingest.WithMetrics(a.metrics),
		ingest.WithLogger(log),
	}
	if cfg.Weather.TodayIndex >= 0 {
		opts = append(opts, ingest.WithTodayIndex(cfg.Weather.TodayIndex))
	}

	if cfg.Cache.DB != "" {
		db, err := store.Open(cfg.Cache.DB)
		if err != nil {
			return nil, fmt.Errorf("open cache database: %w", err)
		}
		a.store = store.New(db, log)
		if err := a.store.Migrate(); err != nil {
			a.store.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		opts = append(opts, ingest.WithArchive(a.store), ingest.WithRecorder(a.store))
		if cfg.Cache.TTL > 0 {
			cache := a.store.SeriesCache(cfg.Cache.TTL)
			a.pruner = cache
			opts = append(opts, ingest.WithCache(cache))
		}
	} else if cfg.Cache.TTL > 0 {
		cache := ingest.NewMemoryCache(cfg.Cache.TTL, time.Now)
		a.pruner = cache
		opts = append(opts, ingest.WithCache(cache))
	}

	a.client = ingest.NewClient(opts...)
	a.svc = audit.NewService(a.client, table,
		audit.WithDefaultKc(cfg.Crops.DefaultKc),
		audit.WithWindow(cfg.Weather.Window()),
		audit.WithMetrics(a.metrics),
		audit.WithLogger(log),
	)
	return a, nil
}

// loadCropTable returns the built-in table when path is empty. A table that
// cannot be read or parsed is replaced by an empty one, so every audit falls
// back to the default Kc.
func loadCropTable(path string, log *zap.Logger) *crops.Table {
	if path == "" {
		return crops.Default()
	}
	table, err := crops.Load(path)
	if err != nil {
		log.Warn("crop table unavailable, using default Kc", zap.String("path", path), zap.Error(err))
		return &crops.Table{}
	}
	log.Info("crop table loaded", zap.String("path", path), zap.Int("categories", len(table.Categories())))
	return table
}

func (a *app) Close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn("close store", zap.Error(err))
		}
	}
	_ = a.log.Sync()
}
