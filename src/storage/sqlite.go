package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"microstructure-cache/src/helpers"
	"microstructure-cache/src/logger"
	"microstructure-cache/src/models"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

const (
	defaultBusyTimeoutMs = 5000
	defaultWriteRetries  = 5
	retryBaseDelay       = 50 * time.Millisecond
)

// -----------------------------------------------------------------------------

type SQLiteStore struct {
	Config *models.MConfig
	DB     *sqlx.DB
	Logger *logger.Logger
}

// -----------------------------------------------------------------------------

func NewSQLiteStore(cfg *models.MConfig, log *logger.Logger) *SQLiteStore {
	return &SQLiteStore{
		Config: cfg,
		Logger: log,
	}
}

// -----------------------------------------------------------------------------

func (d *SQLiteStore) busyTimeoutMs() int {
	if d.Config.Storage.BusyTimeoutMs > 0 {
		return d.Config.Storage.BusyTimeoutMs
	}
	return defaultBusyTimeoutMs
}

// -----------------------------------------------------------------------------

func (d *SQLiteStore) writeRetries() int {
	if d.Config.Storage.WriteRetries > 0 {
		return d.Config.Storage.WriteRetries
	}
	return defaultWriteRetries
}

// -----------------------------------------------------------------------------

func (d *SQLiteStore) Initialize(ctx context.Context) error {
	path := d.Config.Storage.DBPath
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return helpers.NewPersistenceError("create database directory", err)
		}
	}

	// busy_timeout is per connection, so it goes in the DSN
	dsn := fmt.Sprintf("%s?_pragma=busy_timeout(%d)", path, d.busyTimeoutMs())

	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return helpers.NewPersistenceError("open sqlite", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return helpers.NewPersistenceError("ping sqlite", err)
	}

	d.DB = db

	// PRAGMA optimizations
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode = WAL;"); err != nil {
		d.Logger.Warning("Failed to set WAL mode: %v", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA synchronous = NORMAL;"); err != nil {
		d.Logger.Warning("Failed to set synchronous mode: %v", err)
	}

	return d.createTables(ctx)
}

// -----------------------------------------------------------------------------

func (d *SQLiteStore) createTables(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS snapshot_latest (
			symbol TEXT PRIMARY KEY,
			snapshot TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			expires_at INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS snapshot_history (
			symbol TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			snapshot TEXT NOT NULL,
			expires_at INTEGER NOT NULL,
			PRIMARY KEY (symbol, created_at)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_snapshot_history_created ON snapshot_history (created_at);`,
	}

	for _, q := range queries {
		if _, err := d.DB.ExecContext(ctx, q); err != nil {
			return helpers.NewPersistenceError("create snapshot tables", err)
		}
	}
	return nil
}

// -----------------------------------------------------------------------------

// withRetry retries fn while SQLite reports lock contention.
func (d *SQLiteStore) withRetry(ctx context.Context, op string, fn func() error) error {
	err := helpers.RetryWithBackoff(ctx, d.writeRetries(), retryBaseDelay, helpers.IsBusyError, fn)
	if err != nil {
		return helpers.NewPersistenceError(op, err)
	}
	return nil
}

// -----------------------------------------------------------------------------

func (d *SQLiteStore) SaveSnapshot(ctx context.Context, entry models.MCacheEntry) error {
	data, createdAt, expiresAt, err := encodeEntry(entry)
	if err != nil {
		return helpers.NewPersistenceError("encode snapshot", err)
	}

	return d.withRetry(ctx, "save snapshot "+entry.Symbol, func() error {
		tx, err := d.DB.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO snapshot_latest (symbol, snapshot, created_at, expires_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (symbol) DO UPDATE SET
				snapshot = excluded.snapshot,
				created_at = excluded.created_at,
				expires_at = excluded.expires_at
			WHERE excluded.created_at >= snapshot_latest.created_at
		`, entry.Symbol, data, createdAt, expiresAt); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO snapshot_history (symbol, created_at, snapshot, expires_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (symbol, created_at) DO UPDATE SET
				snapshot = excluded.snapshot,
				expires_at = excluded.expires_at
		`, entry.Symbol, createdAt, data, expiresAt); err != nil {
			return err
		}

		return tx.Commit()
	})
}

// -----------------------------------------------------------------------------

func (d *SQLiteStore) LoadLatest(ctx context.Context, symbol string, notBefore time.Time) (models.MCacheEntry, bool, error) {
	var row snapshotRow
	err := d.DB.GetContext(ctx, &row, `
		SELECT snapshot, created_at, expires_at FROM snapshot_latest
		WHERE symbol = ? AND created_at >= ?
	`, symbol, notBefore.UnixMilli())
	if errors.Is(err, sql.ErrNoRows) {
		return models.MCacheEntry{}, false, nil
	}
	if err != nil {
		return models.MCacheEntry{}, false, helpers.NewPersistenceError("load latest "+symbol, err)
	}

	entry, err := decodeEntry(symbol, row.Snapshot, row.CreatedAt, row.ExpiresAt)
	if err != nil {
		return models.MCacheEntry{}, false, helpers.NewPersistenceError("decode latest "+symbol, err)
	}
	return entry, true, nil
}

// -----------------------------------------------------------------------------

func (d *SQLiteStore) LoadHistory(ctx context.Context, symbol string, from, to time.Time) ([]models.MCacheEntry, error) {
	var rows []snapshotRow
	err := d.DB.SelectContext(ctx, &rows, `
		SELECT snapshot, created_at, expires_at FROM snapshot_history
		WHERE symbol = ? AND created_at >= ? AND created_at <= ?
		ORDER BY created_at ASC
	`, symbol, from.UnixMilli(), to.UnixMilli())
	if err != nil {
		return nil, helpers.NewPersistenceError("load history "+symbol, err)
	}

	return decodeRows(rows, symbol, d.Logger), nil
}

// -----------------------------------------------------------------------------

func (d *SQLiteStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	var removed int64

	err := d.withRetry(ctx, "delete old snapshots", func() error {
		removed = 0
		tx, err := d.DB.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		for _, table := range []string{"snapshot_latest", "snapshot_history"} {
			res, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE created_at < ?", table), cutoff.UnixMilli())
			if err != nil {
				return err
			}
			n, _ := res.RowsAffected()
			removed += n
		}

		return tx.Commit()
	})
	if err != nil {
		return 0, err
	}

	return removed, nil
}

// -----------------------------------------------------------------------------

func (d *SQLiteStore) Close() error {
	if d.DB != nil {
		return d.DB.Close()
	}
	return nil
}

// -----------------------------------------------------------------------------

// decodeRows decodes history rows, skipping rows that fail to decode.
func decodeRows(rows []snapshotRow, symbol string, log *logger.Logger) []models.MCacheEntry {
	entries := make([]models.MCacheEntry, 0, len(rows))
	for _, row := range rows {
		entry, err := decodeEntry(symbol, row.Snapshot, row.CreatedAt, row.ExpiresAt)
		if err != nil {
			log.Warning("Skipping corrupt history row for %s at %d: %v", symbol, row.CreatedAt, err)
			continue
		}
		entries = append(entries, entry)
	}
	return entries
}
