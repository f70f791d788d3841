package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reputenet/trustmarket/internal/domain"
)

func TestDefaultsValidateStandalone(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "standalone"
	require.NoError(t, cfg.Validate())
}

func TestValidateFullModeRequirements(t *testing.T) {
	cfg := Defaults()
	// Defaults run in full mode with no directory endpoint and no treasury key.
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "directory: base_url")
	assert.Contains(t, err.Error(), "treasury:")

	cfg.Directory.BaseURL = "http://directory:8080"
	cfg.Treasury.RPCURL = "http://geth:8545"
	cfg.Treasury.PrivateKey = "0xabc123"
	require.NoError(t, cfg.Validate())

	// An encrypted keyfile needs its password.
	cfg.Treasury.PrivateKey = ""
	cfg.Treasury.EncryptedKeyPath = "/etc/trustmarket/key.json"
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "key_password")

	// Dry run lifts the treasury requirements entirely.
	cfg.Treasury = TreasuryConfig{DryRun: true}
	require.NoError(t, cfg.Validate())
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "standalone"
	cfg.Redis.Addr = ""
	cfg.Server.Port = 0
	cfg.Engine.EntryFeeBps = 2000 // above the 10% cap

	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "redis: addr")
	assert.Contains(t, msg, "server: port")
	assert.Contains(t, msg, "engine:")
	assert.GreaterOrEqual(t, strings.Count(msg, "\n  - "), 2)
}

func TestValidateArchiveNeedsS3(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "archive"
	cfg.S3.Endpoint = ""
	cfg.S3.Bucket = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "s3: endpoint")
	assert.Contains(t, err.Error(), "s3: bucket")
}

func TestSeedConfig(t *testing.T) {
	cfg := Defaults()

	seed, err := cfg.SeedConfig()
	require.NoError(t, err)
	assert.Equal(t, "20000000000000000", seed.InitialLiquidity.String())
	assert.Equal(t, uint64(1), seed.InitialVotes)
	assert.Equal(t, "10000000000000000", seed.BasePrice.String())

	cfg.Engine.SeedBasePrice = "not-a-number"
	_, err = cfg.SeedConfig()
	require.Error(t, err)

	cfg.Engine.SeedBasePrice = "-5"
	_, err = cfg.SeedConfig()
	require.Error(t, err)
}

func TestInitialFees(t *testing.T) {
	cfg := Defaults()

	fees, err := cfg.InitialFees()
	require.NoError(t, err)
	assert.Equal(t, uint16(50), fees.EntryFeeBps)
	assert.Equal(t, uint16(100), fees.ExitFeeBps)
	assert.Equal(t, uint16(150), fees.DonationFeeBps)

	cfg.Engine.ExitFeeBps = domain.MaxFeeBps + 1
	_, err = cfg.InitialFees()
	require.ErrorIs(t, err, domain.ErrFeeExceedsMaximum)

	cfg = Defaults()
	cfg.Engine.ProtocolFeeAddress = "nonsense"
	_, err = cfg.InitialFees()
	require.Error(t, err)
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Treasury.PrivateKey = "0xsecret"
	cfg.Postgres.Password = "hunter2"
	cfg.Server.APIKey = "api-key"

	red := RedactedConfig(&cfg)
	assert.Equal(t, "***", red.Treasury.PrivateKey)
	assert.Equal(t, "***", red.Postgres.Password)
	assert.Equal(t, "***", red.Server.APIKey)

	// The original is untouched and slices are copied.
	assert.Equal(t, "0xsecret", cfg.Treasury.PrivateKey)
	red.Server.CORSOrigins[0] = "mutated"
	assert.NotEqual(t, "mutated", cfg.Server.CORSOrigins[0])
}
