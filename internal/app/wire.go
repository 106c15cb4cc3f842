package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	s3blob "github.com/quantleap/polyflux/internal/blob/s3"
	"github.com/quantleap/polyflux/internal/cache/redis"
	"github.com/quantleap/polyflux/internal/config"
	"github.com/quantleap/polyflux/internal/domain"
	"github.com/quantleap/polyflux/internal/notify"
	"github.com/quantleap/polyflux/internal/platform/polymarket"
	"github.com/quantleap/polyflux/internal/store/memory"
	"github.com/quantleap/polyflux/internal/store/postgres"
	"github.com/quantleap/polyflux/internal/workforce"
)

// Dependencies bundles every domain-level dependency the application needs to
// operate. It is constructed by Wire and torn down by the returned cleanup
// function.
type Dependencies struct {
	// Stores
	TradeStore     domain.TradeStore
	ProposalStore  domain.ProposalStore
	DecisionStore  domain.DecisionStore
	AuditStore     domain.AuditStore
	WatchlistStore domain.WatchlistStore

	// Coordination
	SignalBus   domain.SignalBus
	LockManager domain.LockManager
	RateLimiter domain.RateLimiter

	// External clients
	Exchange  domain.ExchangeClient
	Feed      domain.MarketFeed
	Workforce domain.Workforce

	// Blob storage
	BlobWriter domain.BlobWriter
	Archiver   domain.Archiver

	// Notifications
	Notifier *notify.Notifier
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- Persistence ---
	switch strings.ToLower(cfg.Storage) {
	case "postgres":
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		deps.TradeStore = postgres.NewTradeStore(pool)
		deps.ProposalStore = postgres.NewProposalStore(pool)
		deps.DecisionStore = postgres.NewDecisionStore(pool)
		deps.AuditStore = postgres.NewAuditStore(pool)
	default:
		deps.TradeStore = memory.NewTradeStore()
		deps.ProposalStore = memory.NewProposalStore()
		deps.DecisionStore = memory.NewDecisionStore()
		deps.AuditStore = memory.NewAuditStore()
	}

	// --- Redis coordination (falls back to in-process when disabled) ---
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

		deps.SignalBus = redis.NewSignalBus(redisClient)
		deps.LockManager = redis.NewLockManager(redisClient)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.WatchlistStore = redis.NewWatchlistStore(redisClient)
	} else {
		deps.SignalBus = memory.NewSignalBus()
		deps.LockManager = memory.NewLockManager()
		deps.WatchlistStore = memory.NewWatchlistStore()
	}

	// --- Exchange and market feed clients ---
	deps.Exchange = polymarket.NewClobClient(polymarket.ClobConfig{
		BaseURL:    cfg.Polymarket.ClobHost,
		Address:    cfg.Polymarket.Address,
		APIKey:     cfg.Polymarket.ApiKey,
		Secret:     cfg.Polymarket.ApiSecret,
		Passphrase: cfg.Polymarket.ApiPassphrase,
		Timeout:    time.Duration(cfg.Polymarket.TimeoutSeconds) * time.Second,
	}, deps.RateLimiter)
	deps.Feed = polymarket.NewGammaClient(cfg.Polymarket.GammaHost)

	// --- Agent workforce client ---
	if cfg.Workforce.Endpoint != "" {
		deps.Workforce = workforce.NewClient(
			cfg.Workforce.Endpoint,
			cfg.Workforce.ApiKey,
			time.Duration(cfg.Workforce.TimeoutSeconds)*time.Second,
		)
	}

	// --- S3 blob storage and archiver ---
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
		deps.Archiver = s3blob.NewArchive(deps.BlobWriter, deps.TradeStore, deps.WatchlistStore, deps.AuditStore)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	if len(senders) > 0 {
		deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, slog.Default())
	}

	return deps, cleanup, nil
}
