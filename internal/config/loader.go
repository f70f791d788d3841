package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies TRUSTMARKET_* environment variable overrides,
// and returns the final Config. The returned Config has NOT been validated;
// the caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known TRUSTMARKET_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Treasury ──
	setStr(&cfg.Treasury.RPCURL, "TRUSTMARKET_TREASURY_RPC_URL")
	setStr(&cfg.Treasury.PrivateKey, "TRUSTMARKET_TREASURY_PRIVATE_KEY")
	setStr(&cfg.Treasury.EncryptedKeyPath, "TRUSTMARKET_TREASURY_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Treasury.KeyPassword, "TRUSTMARKET_TREASURY_KEY_PASSWORD")
	setBool(&cfg.Treasury.DryRun, "TRUSTMARKET_TREASURY_DRY_RUN")

	// ── Directory ──
	setStr(&cfg.Directory.BaseURL, "TRUSTMARKET_DIRECTORY_BASE_URL")
	setStr(&cfg.Directory.APIKey, "TRUSTMARKET_DIRECTORY_API_KEY")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "TRUSTMARKET_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "TRUSTMARKET_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "TRUSTMARKET_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "TRUSTMARKET_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "TRUSTMARKET_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "TRUSTMARKET_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "TRUSTMARKET_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "TRUSTMARKET_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "TRUSTMARKET_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "TRUSTMARKET_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "TRUSTMARKET_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "TRUSTMARKET_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "TRUSTMARKET_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "TRUSTMARKET_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "TRUSTMARKET_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "TRUSTMARKET_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "TRUSTMARKET_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "TRUSTMARKET_S3_REGION")
	setStr(&cfg.S3.Bucket, "TRUSTMARKET_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "TRUSTMARKET_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "TRUSTMARKET_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "TRUSTMARKET_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "TRUSTMARKET_S3_FORCE_PATH_STYLE")

	// ── Engine ──
	setStr(&cfg.Engine.SeedInitialLiquidity, "TRUSTMARKET_ENGINE_SEED_INITIAL_LIQUIDITY")
	setUint64(&cfg.Engine.SeedInitialVotes, "TRUSTMARKET_ENGINE_SEED_INITIAL_VOTES")
	setStr(&cfg.Engine.SeedBasePrice, "TRUSTMARKET_ENGINE_SEED_BASE_PRICE")
	setUint16(&cfg.Engine.EntryFeeBps, "TRUSTMARKET_ENGINE_ENTRY_FEE_BPS")
	setUint16(&cfg.Engine.ExitFeeBps, "TRUSTMARKET_ENGINE_EXIT_FEE_BPS")
	setUint16(&cfg.Engine.DonationFeeBps, "TRUSTMARKET_ENGINE_DONATION_FEE_BPS")
	setStr(&cfg.Engine.ProtocolFeeAddress, "TRUSTMARKET_ENGINE_PROTOCOL_FEE_ADDRESS")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "TRUSTMARKET_ARCHIVE_ENABLED")
	setInt(&cfg.Archive.RetentionDays, "TRUSTMARKET_ARCHIVE_RETENTION_DAYS")
	setDuration(&cfg.Archive.Interval, "TRUSTMARKET_ARCHIVE_INTERVAL")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "TRUSTMARKET_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "TRUSTMARKET_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "TRUSTMARKET_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "TRUSTMARKET_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "TRUSTMARKET_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "TRUSTMARKET_SERVER_RATE_WINDOW")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "TRUSTMARKET_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "TRUSTMARKET_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "TRUSTMARKET_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "TRUSTMARKET_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "TRUSTMARKET_MODE")
	setStr(&cfg.LogLevel, "TRUSTMARKET_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setUint16(dst *uint16, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 16); err == nil {
			*dst = uint16(n)
		}
	}
}

func setUint64(dst *uint64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
