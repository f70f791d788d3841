package service

import (
	"context"
	"io"
	"log/slog"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/reputenet/trustmarket/internal/domain"
	"github.com/reputenet/trustmarket/internal/platform/directory"
	"github.com/reputenet/trustmarket/internal/platform/treasury"
	"github.com/reputenet/trustmarket/internal/store/memory"
)

var (
	adminAddr     = common.HexToAddress("0xAAAA00000000000000000000000000000000AAAA")
	graduatorAddr = common.HexToAddress("0xBBBB00000000000000000000000000000000BBBB")
	ownerAddr     = common.HexToAddress("0x1111111111111111111111111111111111111111")
	traderAddr    = common.HexToAddress("0x2222222222222222222222222222222222222222")
	charityAddr   = common.HexToAddress("0x3333333333333333333333333333333333333333")
	treasuryAddr  = common.HexToAddress("0x9999999999999999999999999999999999999999")
)

const ownerProfile = uint64(42)

// fixture wires every service against in-process backends.
type fixture struct {
	store     *memory.Ledger
	dir       *directory.Static
	payouts   *treasury.Ledger
	markets   *MarketService
	trades    *TradeService
	donations *DonationService
	admin     *AdminService
}

func eth(milli int64) *big.Int {
	wei := big.NewInt(milli)
	return wei.Mul(wei, big.NewInt(1_000_000_000_000_000))
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	seed := domain.MarketConfig{
		InitialLiquidity: eth(20), // 0.02: exactly 2 * base price
		InitialVotes:     1,
		BasePrice:        new(big.Int).Set(domain.DefaultBasePrice),
	}
	fees := domain.FeeConfig{
		EntryFeeBps:        50,  // 0.5%
		ExitFeeBps:         100, // 1%
		DonationFeeBps:     150, // 1.5%
		ProtocolFeeAddress: treasuryAddr,
	}

	store := memory.NewLedger(seed, fees)
	dir := directory.NewStatic()
	dir.AddProfile(ownerProfile, ownerAddr, true)
	dir.SetRole(domain.RoleAdmin, adminAddr)
	dir.SetRole(domain.RoleGraduator, graduatorAddr)

	payouts := treasury.NewLedger()
	locks := NewLocks(nil)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	return &fixture{
		store:     store,
		dir:       dir,
		payouts:   payouts,
		markets:   NewMarketService(store, dir, dir, dir, payouts, nil, nil, nil, locks, logger),
		trades:    NewTradeService(store, dir, payouts, nil, nil, locks, logger),
		donations: NewDonationService(store, dir, dir, payouts, nil, locks, logger),
		admin:     NewAdminService(store, dir, dir, payouts, nil, nil, locks, logger),
	}
}

// createMarket allow-lists the owner profile and opens its market with the
// seed config, tendering exactly the initial liquidity.
func (f *fixture) createMarket(t *testing.T) domain.Market {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, f.admin.SetAllowListed(ctx, adminAddr, ownerProfile, true))
	m, err := f.markets.CreateMarket(ctx, ownerAddr, CreateParams{
		ProfileID: ownerProfile,
		Tendered:  eth(20),
	})
	require.NoError(t, err)
	return m
}
