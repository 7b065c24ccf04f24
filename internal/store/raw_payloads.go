package store

import (
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"
)

// RawPayload is a stored provider response.
type RawPayload struct {
	ID                int64  `db:"id"`
	FetchedAtUnix     int64  `db:"fetched_at"`
	Source            string `db:"source"`
	RequestKey        string `db:"request_key"`
	PayloadCompressed []byte `db:"payload_compressed"`
	PayloadHash       string `db:"payload_hash"`
	SchemaVersion     int    `db:"schema_version"`
}

func (p RawPayload) FetchedAt() time.Time {
	return time.Unix(p.FetchedAtUnix, 0).UTC()
}

// Decompress returns the original payload bytes.
func (p RawPayload) Decompress() ([]byte, error) {
	gz, err := gzip.NewReader(bytes.NewReader(p.PayloadCompressed))
	if err != nil {
		return nil, fmt.Errorf("create gzip reader: %w", err)
	}
	defer gz.Close()
	return io.ReadAll(gz)
}

// ArchivePayload gzips and stores a raw response. Identical payloads are
// stored once.
func (s *Store) ArchivePayload(ctx context.Context, source, requestKey string, fetchedAt time.Time, payload []byte) error {
	_, err := s.StoreRawPayload(ctx, source, requestKey, fetchedAt, payload)
	return err
}

// StoreRawPayload returns the new row ID, or 0 when the payload was a
// duplicate.
func (s *Store) StoreRawPayload(ctx context.Context, source, requestKey string, fetchedAt time.Time, payload []byte) (int64, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(payload); err != nil {
		return 0, fmt.Errorf("compress payload: %w", err)
	}
	if err := gz.Close(); err != nil {
		return 0, fmt.Errorf("close gzip: %w", err)
	}

	hash := sha256.Sum256(payload)

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO raw_payloads
		(fetched_at, source, request_key, payload_compressed, payload_hash, schema_version)
		VALUES (?, ?, ?, ?, ?, 1)
		ON CONFLICT(payload_hash) DO NOTHING
	`, fetchedAt.UTC().Unix(), source, requestKey, buf.Bytes(), hex.EncodeToString(hash[:]))
	if err != nil {
		return 0, fmt.Errorf("insert raw payload: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, nil
	}
	return result.LastInsertId()
}

// GetRawPayload retrieves and decompresses a stored payload by ID.
func (s *Store) GetRawPayload(ctx context.Context, id int64) ([]byte, error) {
	var p RawPayload
	if err := s.db.GetContext(ctx, &p, `SELECT * FROM raw_payloads WHERE id = ?`, id); err != nil {
		return nil, err
	}
	return p.Decompress()
}

// LatestRawPayload returns the newest payload for a request key, or nil.
func (s *Store) LatestRawPayload(ctx context.Context, requestKey string) (*RawPayload, error) {
	var p RawPayload
	err := s.db.GetContext(ctx, &p, `
		SELECT * FROM raw_payloads
		WHERE request_key = ?
		ORDER BY fetched_at DESC, id DESC
		LIMIT 1
	`, requestKey)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// RawPayloadStats contains storage statistics for raw payloads.
type RawPayloadStats struct {
	TotalCount      int            `json:"total_count"`
	TotalSizeBytes  int64          `json:"total_size_bytes"`
	OldestFetchedAt time.Time      `json:"oldest_fetched_at,omitzero"`
	NewestFetchedAt time.Time      `json:"newest_fetched_at,omitzero"`
	CountBySource   map[string]int `json:"count_by_source"`
}

func (s *Store) GetRawPayloadStats(ctx context.Context) (*RawPayloadStats, error) {
	var row struct {
		Count  int           `db:"n"`
		Size   int64         `db:"size"`
		Oldest sql.NullInt64 `db:"oldest"`
		Newest sql.NullInt64 `db:"newest"`
	}
	if err := s.db.GetContext(ctx, &row, `
		SELECT COUNT(*) AS n, COALESCE(SUM(LENGTH(payload_compressed)), 0) AS size,
		       MIN(fetched_at) AS oldest, MAX(fetched_at) AS newest
		FROM raw_payloads
	`); err != nil {
		return nil, err
	}

	stats := &RawPayloadStats{
		TotalCount:     row.Count,
		TotalSizeBytes: row.Size,
		CountBySource:  make(map[string]int),
	}
	if row.Oldest.Valid {
		stats.OldestFetchedAt = time.Unix(row.Oldest.Int64, 0).UTC()
	}
	if row.Newest.Valid {
		stats.NewestFetchedAt = time.Unix(row.Newest.Int64, 0).UTC()
	}

	var bySource []struct {
		Source string `db:"source"`
		Count  int    `db:"n"`
	}
	if err := s.db.SelectContext(ctx, &bySource,
		`SELECT source, COUNT(*) AS n FROM raw_payloads GROUP BY source`); err != nil {
		return nil, err
	}
	for _, r := range bySource {
		stats.CountBySource[r.Source] = r.Count
	}
	return stats, nil
}

// CleanupOldRawPayloads deletes payloads fetched before cutoff and returns
// the number removed.
func (s *Store) CleanupOldRawPayloads(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM raw_payloads WHERE fetched_at < ?`, cutoff.UTC().Unix())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
