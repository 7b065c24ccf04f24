package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/fieldwater/irrigaudit/internal/models"
)

// SeriesCache is a persistent TTL cache of weather series. Storage errors
// are logged and treated as misses so a broken cache never blocks an audit.
type SeriesCache struct {
	store *Store
	ttl   time.Duration
}

func (s *Store) SeriesCache(ttl time.Duration) *SeriesCache {
	return &SeriesCache{store: s, ttl: ttl}
}

func (c *SeriesCache) Get(key string) (models.WeatherSeries, bool) {
	var row struct {
		Payload   string `db:"payload"`
		ExpiresAt int64  `db:"expires_at"`
	}
	err := c.store.db.Get(&row, `SELECT payload, expires_at FROM series_cache WHERE cache_key = ?`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return models.WeatherSeries{}, false
	}
	if err != nil {
		c.store.log.Warn("series cache read", zap.String("key", key), zap.Error(err))
		return models.WeatherSeries{}, false
	}
	if c.store.now().Unix() >= row.ExpiresAt {
		return models.WeatherSeries{}, false
	}

	var series models.WeatherSeries
	if err := json.Unmarshal([]byte(row.Payload), &series); err != nil {
		c.store.log.Warn("series cache decode", zap.String("key", key), zap.Error(err))
		return models.WeatherSeries{}, false
	}
	return series, true
}

func (c *SeriesCache) Set(key string, series models.WeatherSeries) {
	payload, err := json.Marshal(series)
	if err != nil {
		c.store.log.Warn("series cache encode", zap.String("key", key), zap.Error(err))
		return
	}
	now := c.store.now()
	_, err = c.store.db.Exec(`
		INSERT INTO series_cache (cache_key, payload, fetched_at, expires_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(cache_key) DO UPDATE SET
			payload = excluded.payload,
			fetched_at = excluded.fetched_at,
			expires_at = excluded.expires_at
	`, key, string(payload), series.FetchedAt.UTC().Unix(), now.Add(c.ttl).Unix())
	if err != nil {
		c.store.log.Warn("series cache write", zap.String("key", key), zap.Error(err))
	}
}

// Prune deletes expired entries and reports how many were removed.
func (c *SeriesCache) Prune() int {
	result, err := c.store.db.Exec(`DELETE FROM series_cache WHERE expires_at <= ?`, c.store.now().Unix())
	if err != nil {
		c.store.log.Warn("series cache prune", zap.Error(err))
		return 0
	}
	n, _ := result.RowsAffected()
	return int(n)
}
