package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/alanyoungcy/tradejournal/internal/blob/s3"
	"github.com/alanyoungcy/tradejournal/internal/cache/redis"
	"github.com/alanyoungcy/tradejournal/internal/config"
	"github.com/alanyoungcy/tradejournal/internal/domain"
	"github.com/alanyoungcy/tradejournal/internal/platform/hyperliquid"
	"github.com/alanyoungcy/tradejournal/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency that the application
// modes need to operate. It is constructed by Wire and torn down by the
// returned cleanup function. Optional members (cache, bus, blob storage, the
// exchange client) are nil when the corresponding backend is not configured;
// the journal service degrades gracefully around them.
type Dependencies struct {
	// Stores
	FillStore     domain.FillStore
	PositionStore domain.PositionStore

	// Caches
	SnapshotCache domain.SnapshotCache
	SignalBus     domain.SignalBus

	// Blob storage
	BlobWriter domain.BlobWriter
	Archiver   domain.Archiver

	// Exchange
	LiveFeed       domain.LiveFeed
	SymbolResolver domain.SymbolResolver
	Exchange       *hyperliquid.Client
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL (always required; the fill history is the source of truth) ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Database.DSN,
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		Database: cfg.Database.Database,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		SSLMode:  cfg.Database.SSLMode,
		MaxConns: cfg.Database.PoolMaxConns,
		MinConns: cfg.Database.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Database.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	fillStore := postgres.NewFillStore(pool)
	positionStore := postgres.NewPositionStore(pool)
	deps.FillStore = fillStore
	deps.PositionStore = positionStore

	// --- Redis (optional: snapshot cache + WebSocket event bridge) ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.SnapshotCache = redis.NewSnapshotCache(redisClient)
		deps.SignalBus = redis.NewSignalBus(redisClient)
	} else {
		logger.InfoContext(ctx, "redis disabled; running without snapshot cache and event bus")
	}

	// --- S3 blob storage (optional: monthly archive) ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}

		deps.BlobWriter = s3blob.NewWriter(s3Client)
		deps.Archiver = s3blob.NewArchiver(deps.BlobWriter, positionStore, fillStore)
	}

	// --- Hyperliquid (optional: live overlay + fill sync) ---
	if cfg.Hyperliquid.UserAddress != "" {
		hl := hyperliquid.NewClient(cfg.Hyperliquid.BaseURL, cfg.Hyperliquid.UserAddress)
		deps.Exchange = hl
		deps.LiveFeed = hl
		deps.SymbolResolver = hl
	} else {
		logger.InfoContext(ctx, "no exchange account configured; running without live overlay")
	}

	return deps, cleanup, nil
}
