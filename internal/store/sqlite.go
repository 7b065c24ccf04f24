package store

import (
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/fieldwater/irrigaudit/internal/logging"
)

// Store persists the weather series cache, raw provider payloads and the
// fetch run log in sqlite.
type Store struct {
	db  *sqlx.DB
	log *zap.Logger
	now func() time.Time
}

// Open connects to the sqlite database at path and applies connection
// pragmas. ":memory:" is limited to one connection so every query sees the
// same database.
func Open(path string) (*sqlx.DB, error) {
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	return db, nil
}

func New(db *sqlx.DB, log *zap.Logger) *Store {
	return &Store{db: db, log: logging.OrNop(log), now: time.Now}
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Ping reports whether the database is reachable.
func (s *Store) Ping() error {
	return s.db.Ping()
}
