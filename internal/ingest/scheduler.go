package ingest

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/fieldwater/irrigaudit/internal/logging"
	"github.com/fieldwater/irrigaudit/internal/models"
)

// Pruner drops expired cache entries.
type Pruner interface {
	Prune() int
}

// Scheduler keeps the weather cache warm for a fixed set of locations, so
// dashboard requests for the scheme presets rarely wait on the provider.
type Scheduler struct {
	client   *Client
	schemes  []models.Scheme
	window   models.Window
	interval time.Duration
	pruner   Pruner
	log      *zap.Logger
}

func NewScheduler(client *Client, schemes []models.Scheme, window models.Window, interval time.Duration, log *zap.Logger) *Scheduler {
	return &Scheduler{
		client:   client,
		schemes:  schemes,
		window:   window,
		interval: interval,
		log:      logging.OrNop(log),
	}
}

// SetPruner configures a cache to prune after each warm cycle.
func (s *Scheduler) SetPruner(p Pruner) {
	s.pruner = p
}

// Run warms immediately, then on every interval until ctx is done.
func (s *Scheduler) Run(ctx context.Context) {
	s.warm(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("scheduler: shutting down")
			return
		case <-ticker.C:
			s.warm(ctx)
		}
	}
}

func (s *Scheduler) warm(ctx context.Context) {
	ok, unavailable := 0, 0
	for _, scheme := range s.schemes {
		if ctx.Err() != nil {
			return
		}
		series, err := s.client.Fetch(ctx, scheme.Coordinate, s.window)
		switch {
		case err != nil:
			s.log.Warn("scheduler: warm scheme", zap.String("scheme", scheme.Name), zap.Error(err))
		case series.Empty():
			unavailable++
		default:
			ok++
		}
	}
	pruned := 0
	if s.pruner != nil {
		pruned = s.pruner.Prune()
	}
	s.log.Info("scheduler: cache warmed",
		zap.Int("schemes", len(s.schemes)),
		zap.Int("ok", ok),
		zap.Int("unavailable", unavailable),
		zap.Int("pruned", pruned))
}
