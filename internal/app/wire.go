package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/reputenet/trustmarket/internal/blob/s3"
	"github.com/reputenet/trustmarket/internal/cache/redis"
	"github.com/reputenet/trustmarket/internal/config"
	"github.com/reputenet/trustmarket/internal/domain"
	"github.com/reputenet/trustmarket/internal/notify"
	"github.com/reputenet/trustmarket/internal/platform/directory"
	"github.com/reputenet/trustmarket/internal/platform/treasury"
	"github.com/reputenet/trustmarket/internal/service"
	"github.com/reputenet/trustmarket/internal/store/memory"
	"github.com/reputenet/trustmarket/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency that the application
// modes need to operate. It is constructed by Wire and torn down by the
// returned cleanup function.
type Dependencies struct {
	// Ledger
	Store service.Ledger

	// Profile directory
	Identity domain.IdentityRegistry
	Roles    domain.RoleRegistry
	Pause    domain.PauseSwitch

	// Funds movement
	Payouts domain.PayoutSender

	// Redis-backed infrastructure. Nil in standalone mode.
	PriceCache  domain.PriceCache
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	// Blob storage
	BlobWriter  domain.BlobWriter
	BlobReader  domain.BlobReader
	BlobDeleter domain.BlobDeleter
	Archiver    domain.Archiver

	// Notifications
	Notifier *notify.Notifier
}

// needsPostgres returns true for modes that require a database connection.
func needsPostgres(mode string) bool {
	switch mode {
	case "server", "archive", "full":
		return true
	default:
		return false
	}
}

// needsRedis returns true for modes that require Redis-backed caches, locks,
// and the signal bus.
func needsRedis(mode string) bool {
	switch mode {
	case "server", "full":
		return true
	default:
		return false
	}
}

// needsS3 returns true when the mode archives events to object storage.
func needsS3(cfg *config.Config) bool {
	switch cfg.Mode {
	case "archive":
		return true
	case "full":
		return cfg.Archive.Enabled
	default:
		return false
	}
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

	seed, err := cfg.SeedConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("wire: seed config: %w", err)
	}
	fees, err := cfg.InitialFees()
	if err != nil {
		return nil, nil, fmt.Errorf("wire: initial fees: %w", err)
	}

	// --- Ledger ---
	var pgLedger *postgres.Ledger
	if needsPostgres(cfg.Mode) {
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

		pgLedger = postgres.NewLedger(pgClient.Pool())
		if err := pgLedger.Seed(ctx, seed, fees); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: seed ledger: %w", err)
		}
		deps.Store = pgLedger
	} else {
		deps.Store = memory.NewLedger(seed, fees)
	}

	// --- Profile directory ---
	if cfg.Directory.BaseURL != "" {
		client := directory.NewClient(cfg.Directory.BaseURL, cfg.Directory.APIKey)
		deps.Identity = client
		deps.Roles = client
		deps.Pause = client
	} else {
		// Standalone development: every lookup is local and nothing is
		// paused until an operator flips it.
		static := directory.NewStatic()
		deps.Identity = static
		deps.Roles = static
		deps.Pause = static
	}

	// --- Treasury ---
	if cfg.Treasury.DryRun || !needsRedis(cfg.Mode) {
		deps.Payouts = treasury.NewLedger()
	} else {
		keyHex, err := treasury.LoadKey(treasury.KeyConfig{
			RawPrivateKey:    cfg.Treasury.PrivateKey,
			EncryptedKeyPath: cfg.Treasury.EncryptedKeyPath,
			KeyPassword:      cfg.Treasury.KeyPassword,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: treasury key: %w", err)
		}
		sender, err := treasury.NewEthSender(ctx, cfg.Treasury.RPCURL, keyHex, logger)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: treasury sender: %w", err)
		}
		closers = append(closers, sender.Close)
		deps.Payouts = sender
	}

	// --- Redis ---
	if needsRedis(cfg.Mode) {
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

		deps.PriceCache = redis.NewPriceCache(redisClient)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.LockManager = redis.NewLockManager(redisClient)
		deps.SignalBus = redis.NewSignalBus(redisClient)
	}

	// --- S3 blob storage ---
	if needsS3(cfg) {
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
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.BlobWriter = s3blob.NewWriter(s3Client)
		reader := s3blob.NewReader(s3Client)
		deps.BlobReader = reader
		deps.BlobDeleter = reader // same type implements BlobDeleter
		if pgLedger != nil {
			deps.Archiver = s3blob.NewArchiver(deps.BlobWriter, pgLedger, logger)
		}
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
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}
