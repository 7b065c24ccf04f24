package store

import (
	"context"
	"time"

	"github.com/fieldwater/irrigaudit/internal/models"
)

// RecordFetch logs one weather fetch.
func (s *Store) RecordFetch(ctx context.Context, run models.FetchRun) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO fetch_runs (source, request_key, started_at, duration_ms, attempts, outcome, days, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, run.Source, run.RequestKey, run.StartedAt.UTC().Unix(), run.Duration.Milliseconds(),
		run.Attempts, run.Outcome, run.Days, run.Error)
	return err
}

type fetchRunRow struct {
	models.FetchRun
	StartedAtUnix int64 `db:"started_at"`
	DurationMS    int64 `db:"duration_ms"`
}

// RecentFetches returns up to limit runs, newest first.
func (s *Store) RecentFetches(ctx context.Context, limit int) ([]models.FetchRun, error) {
	var rows []fetchRunRow
	if err := s.db.SelectContext(ctx, &rows, `
		SELECT id, source, request_key, started_at, duration_ms, attempts, outcome, days, error_message
		FROM fetch_runs
		ORDER BY started_at DESC, id DESC
		LIMIT ?
	`, limit); err != nil {
		return nil, err
	}

	runs := make([]models.FetchRun, len(rows))
	for i, r := range rows {
		run := r.FetchRun
		run.StartedAt = time.Unix(r.StartedAtUnix, 0).UTC()
		run.Duration = time.Duration(r.DurationMS) * time.Millisecond
		runs[i] = run
	}
	return runs, nil
}

// FetchHealth summarizes fetch outcomes since a point in time.
type FetchHealth struct {
	Outcome     string  `db:"outcome" json:"outcome"`
	Runs        int     `db:"runs" json:"runs"`
	AvgAttempts float64 `db:"avg_attempts" json:"avg_attempts"`
}

func (s *Store) FetchHealthSince(ctx context.Context, since time.Time) ([]FetchHealth, error) {
	var out []FetchHealth
	err := s.db.SelectContext(ctx, &out, `
		SELECT outcome, COUNT(*) AS runs, AVG(attempts) AS avg_attempts
		FROM fetch_runs
		WHERE started_at >= ?
		GROUP BY outcome
		ORDER BY outcome
	`, since.UTC().Unix())
	return out, err
}
