package storage

import (
	"context"
	"encoding/json"
	"time"

	"microstructure-cache/src/helpers"
	"microstructure-cache/src/logger"
	"microstructure-cache/src/models"

	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "mcc:"

// redisWriter is the part of the go-redis client the mirror needs.
type redisWriter interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// -----------------------------------------------------------------------------

// RedisMirror copies each written snapshot to "<prefix>snapshot:<symbol>" and
// announces it on "<prefix>updates".
type RedisMirror struct {
	client redisWriter
	closer func() error
	prefix string
	Logger *logger.Logger
}

// -----------------------------------------------------------------------------

func NewRedisMirror(ctx context.Context, cfg *models.MConfig, log *logger.Logger) (*RedisMirror, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Storage.RedisAddr,
		Password:    cfg.Storage.RedisPassword,
		DB:          cfg.Storage.RedisDB,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, helpers.NewConnectivityError("redis ping "+cfg.Storage.RedisAddr, err)
	}

	log.Info("Redis mirror connected at %s", cfg.Storage.RedisAddr)
	return newRedisMirror(client, client.Close, cfg.Storage.RedisKeyPrefix, log), nil
}

// -----------------------------------------------------------------------------

func newRedisMirror(client redisWriter, closer func() error, prefix string, log *logger.Logger) *RedisMirror {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisMirror{client: client, closer: closer, prefix: prefix, Logger: log}
}

// -----------------------------------------------------------------------------

func (m *RedisMirror) SnapshotKey(symbol string) string {
	return m.prefix + "snapshot:" + symbol
}

// -----------------------------------------------------------------------------

func (m *RedisMirror) UpdatesChannel() string {
	return m.prefix + "updates"
}

// -----------------------------------------------------------------------------

func (m *RedisMirror) Publish(ctx context.Context, symbol string, snapshot models.MSymbolSnapshot, ttl time.Duration) error {
	buf, err := json.Marshal(models.MSnapshotUpdate{
		Type:      "UPDATE",
		Symbol:    symbol,
		Snapshot:  snapshot,
		Timestamp: snapshot.Metadata.LastUpdated.Unix(),
	})
	if err != nil {
		return helpers.NewPersistenceError("marshal snapshot "+symbol, err)
	}

	if err := m.client.Set(ctx, m.SnapshotKey(symbol), buf, ttl).Err(); err != nil {
		return helpers.NewPersistenceError("redis set "+symbol, err)
	}
	if err := m.client.Publish(ctx, m.UpdatesChannel(), buf).Err(); err != nil {
		return helpers.NewPersistenceError("redis publish "+symbol, err)
	}
	return nil
}

// -----------------------------------------------------------------------------

func (m *RedisMirror) Close() error {
	if m.closer != nil {
		return m.closer()
	}
	return nil
}
