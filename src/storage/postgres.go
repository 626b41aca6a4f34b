package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"microstructure-cache/src/helpers"
	"microstructure-cache/src/logger"
	"microstructure-cache/src/models"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

const defaultPostgresSchema = "microstructure_cache"

var schemaNameRe = regexp.MustCompile(`[^a-z0-9_]+`)

// -----------------------------------------------------------------------------

// PostgresStore keeps the same two tables as SQLiteStore inside a schema
// named after the deployment.
type PostgresStore struct {
	Config *models.MConfig
	DB     *sqlx.DB
	Schema string
	Logger *logger.Logger
}

// -----------------------------------------------------------------------------

func NewPostgresStore(cfg *models.MConfig, log *logger.Logger) *PostgresStore {
	return &PostgresStore{
		Config: cfg,
		Schema: SchemaName(cfg.Name),
		Logger: log,
	}
}

// -----------------------------------------------------------------------------

// SchemaName turns a deployment name into a safe lower-case identifier.
func SchemaName(name string) string {
	s := schemaNameRe.ReplaceAllString(strings.ToLower(name), "_")
	s = strings.Trim(s, "_")
	if s == "" {
		return defaultPostgresSchema
	}
	return s
}

// -----------------------------------------------------------------------------

func (d *PostgresStore) table(name string) string {
	return fmt.Sprintf(`"%s"."%s"`, d.Schema, name)
}

// -----------------------------------------------------------------------------

func (d *PostgresStore) Initialize(ctx context.Context) error {
	db, err := sqlx.Open("postgres", d.Config.Storage.DBConnectionString)
	if err != nil {
		return helpers.NewPersistenceError("open postgres", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return helpers.NewPersistenceError("ping postgres", err)
	}

	d.DB = db

	if _, err := d.DB.ExecContext(ctx, fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS "%s"`, d.Schema)); err != nil {
		return helpers.NewPersistenceError(fmt.Sprintf("create schema %s", d.Schema), err)
	}

	queries := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			symbol TEXT PRIMARY KEY,
			snapshot JSONB NOT NULL,
			created_at BIGINT NOT NULL,
			expires_at BIGINT NOT NULL
		);`, d.table("snapshot_latest")),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			symbol TEXT NOT NULL,
			created_at BIGINT NOT NULL,
			snapshot JSONB NOT NULL,
			expires_at BIGINT NOT NULL,
			PRIMARY KEY (symbol, created_at)
		);`, d.table("snapshot_history")),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_snapshot_history_created ON %s (created_at);`, d.table("snapshot_history")),
	}
	for _, q := range queries {
		if _, err := d.DB.ExecContext(ctx, q); err != nil {
			return helpers.NewPersistenceError("create snapshot tables", err)
		}
	}

	d.Logger.Info("PostgresStore initialized successfully (Schema: %s)", d.Schema)
	return nil
}

// -----------------------------------------------------------------------------

func (d *PostgresStore) SaveSnapshot(ctx context.Context, entry models.MCacheEntry) error {
	data, createdAt, expiresAt, err := encodeEntry(entry)
	if err != nil {
		return helpers.NewPersistenceError("encode snapshot", err)
	}

	tx, err := d.DB.BeginTx(ctx, nil)
	if err != nil {
		return helpers.NewPersistenceError("begin save "+entry.Symbol, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s AS latest (symbol, snapshot, created_at, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (symbol) DO UPDATE SET
			snapshot = EXCLUDED.snapshot,
			created_at = EXCLUDED.created_at,
			expires_at = EXCLUDED.expires_at
		WHERE EXCLUDED.created_at >= latest.created_at
	`, d.table("snapshot_latest")), entry.Symbol, data, createdAt, expiresAt); err != nil {
		return helpers.NewPersistenceError("upsert latest "+entry.Symbol, err)
	}

	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (symbol, created_at, snapshot, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (symbol, created_at) DO UPDATE SET
			snapshot = EXCLUDED.snapshot,
			expires_at = EXCLUDED.expires_at
	`, d.table("snapshot_history")), entry.Symbol, createdAt, data, expiresAt); err != nil {
		return helpers.NewPersistenceError("append history "+entry.Symbol, err)
	}

	if err := tx.Commit(); err != nil {
		return helpers.NewPersistenceError("commit save "+entry.Symbol, err)
	}
	return nil
}

// -----------------------------------------------------------------------------

func (d *PostgresStore) LoadLatest(ctx context.Context, symbol string, notBefore time.Time) (models.MCacheEntry, bool, error) {
	var row snapshotRow
	err := d.DB.GetContext(ctx, &row, fmt.Sprintf(`
		SELECT snapshot::text AS snapshot, created_at, expires_at FROM %s
		WHERE symbol = $1 AND created_at >= $2
	`, d.table("snapshot_latest")), symbol, notBefore.UnixMilli())
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

func (d *PostgresStore) LoadHistory(ctx context.Context, symbol string, from, to time.Time) ([]models.MCacheEntry, error) {
	var rows []snapshotRow
	err := d.DB.SelectContext(ctx, &rows, fmt.Sprintf(`
		SELECT snapshot::text AS snapshot, created_at, expires_at FROM %s
		WHERE symbol = $1 AND created_at >= $2 AND created_at <= $3
		ORDER BY created_at ASC
	`, d.table("snapshot_history")), symbol, from.UnixMilli(), to.UnixMilli())
	if err != nil {
		return nil, helpers.NewPersistenceError("load history "+symbol, err)
	}

	return decodeRows(rows, symbol, d.Logger), nil
}

// -----------------------------------------------------------------------------

func (d *PostgresStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	var removed int64
	for _, name := range []string{"snapshot_latest", "snapshot_history"} {
		res, err := d.DB.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE created_at < $1", d.table(name)), cutoff.UnixMilli())
		if err != nil {
			return removed, helpers.NewPersistenceError("cleanup "+name, err)
		}
		n, _ := res.RowsAffected()
		removed += n
	}
	return removed, nil
}

// -----------------------------------------------------------------------------

func (d *PostgresStore) Close() error {
	if d.DB != nil {
		return d.DB.Close()
	}
	return nil
}
