// Package config defines the top-level configuration for the trust market
// engine and provides validation helpers.
package config

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/reputenet/trustmarket/internal/domain"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by TRUSTMARKET_* environment variables.
type Config struct {
	Treasury  TreasuryConfig  `toml:"treasury"`
	Directory DirectoryConfig `toml:"directory"`
	Postgres  PostgresConfig  `toml:"postgres"`
	Redis     RedisConfig     `toml:"redis"`
	S3        S3Config        `toml:"s3"`
	Engine    EngineConfig    `toml:"engine"`
	Archive   ArchiveConfig   `toml:"archive"`
	Server    ServerConfig    `toml:"server"`
	Notify    NotifyConfig    `toml:"notify"`
	Mode      string          `toml:"mode"`
	LogLevel  string          `toml:"log_level"`
}

// TreasuryConfig holds the payout wallet credentials and chain endpoint.
type TreasuryConfig struct {
	RPCURL           string `toml:"rpc_url"`
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
	// DryRun records payouts in memory instead of sending transactions.
	DryRun bool `toml:"dry_run"`
}

// DirectoryConfig holds the profile-directory service endpoint. The directory
// resolves profile IDs to controlling addresses and serves role and pause
// lookups.
type DirectoryConfig struct {
	BaseURL string `toml:"base_url"`
	APIKey  string `toml:"api_key"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// EngineConfig holds the seed market config and initial fee parameters the
// engine installs on first boot. Wei amounts are decimal strings because they
// exceed both float64 and int64 range.
type EngineConfig struct {
	SeedInitialLiquidity string `toml:"seed_initial_liquidity"`
	SeedInitialVotes     uint64 `toml:"seed_initial_votes"`
	SeedBasePrice        string `toml:"seed_base_price"`

	EntryFeeBps        uint16 `toml:"entry_fee_bps"`
	ExitFeeBps         uint16 `toml:"exit_fee_bps"`
	DonationFeeBps     uint16 `toml:"donation_fee_bps"`
	ProtocolFeeAddress string `toml:"protocol_fee_address"`
}

// ArchiveConfig holds the cold-storage archival schedule for market events.
type ArchiveConfig struct {
	Enabled       bool     `toml:"enabled"`
	RetentionDays int      `toml:"retention_days"`
	Interval      duration `toml:"interval"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
	RateLimit   int      `toml:"rate_limit"`
	RateWindow  duration `toml:"rate_window"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "trustmarket",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "trustmarket-data",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Engine: EngineConfig{
			SeedInitialLiquidity: "20000000000000000", // 0.02 native units
			SeedInitialVotes:     1,
			SeedBasePrice:        "10000000000000000", // 0.01 native units
			EntryFeeBps:          50,
			ExitFeeBps:           100,
			DonationFeeBps:       150,
		},
		Archive: ArchiveConfig{
			Enabled:       false,
			RetentionDays: 90,
			Interval:      duration{24 * time.Hour},
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:   0,
			RateWindow:  duration{time.Minute},
		},
		Notify: NotifyConfig{
			Events: []string{"market_created", "market_graduated", "fees_updated", "error"},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"server":     true,
	"archive":    true,
	"standalone": true,
	"full":       true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// needsTreasury reports whether the mode sends real payouts.
func (c *Config) needsTreasury() bool {
	mode := strings.ToLower(c.Mode)
	return !c.Treasury.DryRun && (mode == "server" || mode == "full")
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	// Mode
	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: server, archive, standalone, full)", c.Mode))
	}

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Treasury — payout modes need a chain endpoint and a key source.
	if c.needsTreasury() {
		if c.Treasury.RPCURL == "" {
			errs = append(errs, "treasury: rpc_url must be set for mode "+c.Mode)
		}
		if c.Treasury.PrivateKey == "" && c.Treasury.EncryptedKeyPath == "" {
			errs = append(errs, "treasury: either private_key or encrypted_key_path must be set for mode "+c.Mode)
		}
		if c.Treasury.EncryptedKeyPath != "" && c.Treasury.KeyPassword == "" {
			errs = append(errs, "treasury: key_password is required when encrypted_key_path is set")
		}
	}

	// Directory — the engine cannot authorize anything without it.
	mode := strings.ToLower(c.Mode)
	if mode == "server" || mode == "full" {
		if c.Directory.BaseURL == "" {
			errs = append(errs, "directory: base_url must not be empty for mode "+c.Mode)
		}
	}

	// Postgres
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 {
		errs = append(errs, "postgres: pool_min_conns must be >= 0")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// S3 — only required when the archiver runs.
	if c.Archive.Enabled || mode == "archive" {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when archiving is enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when archiving is enabled")
		}
		if c.Archive.RetentionDays < 1 {
			errs = append(errs, "archive: retention_days must be >= 1")
		}
		if c.Archive.Interval.Duration <= 0 {
			errs = append(errs, "archive: interval must be positive")
		}
	}

	// Engine
	if _, err := c.SeedConfig(); err != nil {
		errs = append(errs, "engine: "+err.Error())
	}
	if _, err := c.InitialFees(); err != nil {
		errs = append(errs, "engine: "+err.Error())
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit < 0 {
			errs = append(errs, "server: rate_limit must be >= 0")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// SeedConfig parses the engine section into the seed market config installed
// at index 0 on first boot.
func (c *Config) SeedConfig() (domain.MarketConfig, error) {
	liquidity, ok := new(big.Int).SetString(c.Engine.SeedInitialLiquidity, 10)
	if !ok || liquidity.Sign() <= 0 {
		return domain.MarketConfig{}, fmt.Errorf("seed_initial_liquidity %q is not a positive decimal wei amount", c.Engine.SeedInitialLiquidity)
	}
	basePrice, ok := new(big.Int).SetString(c.Engine.SeedBasePrice, 10)
	if !ok || basePrice.Sign() <= 0 {
		return domain.MarketConfig{}, fmt.Errorf("seed_base_price %q is not a positive decimal wei amount", c.Engine.SeedBasePrice)
	}
	seed := domain.MarketConfig{
		InitialLiquidity: liquidity,
		InitialVotes:     c.Engine.SeedInitialVotes,
		BasePrice:        basePrice,
	}
	if err := seed.Validate(); err != nil {
		return domain.MarketConfig{}, fmt.Errorf("seed config: %w", err)
	}
	return seed, nil
}

// InitialFees parses the engine section into the fee config installed on
// first boot.
func (c *Config) InitialFees() (domain.FeeConfig, error) {
	if c.Engine.ProtocolFeeAddress != "" && !common.IsHexAddress(c.Engine.ProtocolFeeAddress) {
		return domain.FeeConfig{}, fmt.Errorf("protocol_fee_address %q is not a valid address", c.Engine.ProtocolFeeAddress)
	}
	fees := domain.FeeConfig{
		EntryFeeBps:        c.Engine.EntryFeeBps,
		ExitFeeBps:         c.Engine.ExitFeeBps,
		DonationFeeBps:     c.Engine.DonationFeeBps,
		ProtocolFeeAddress: common.HexToAddress(c.Engine.ProtocolFeeAddress),
	}
	if err := fees.Validate(); err != nil {
		return domain.FeeConfig{}, err
	}
	return fees, nil
}
