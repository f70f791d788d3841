package service

import (
	"context"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reputenet/trustmarket/internal/domain"
)

func TestConfigAdministration(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	variant := domain.MarketConfig{
		InitialLiquidity: eth(100),
		InitialVotes:     5,
		BasePrice:        new(big.Int).Set(domain.DefaultBasePrice),
	}

	t.Run("requires admin role", func(t *testing.T) {
		_, err := f.admin.AddConfig(ctx, traderAddr, variant)
		assert.ErrorIs(t, err, domain.ErrUnauthorized)
	})

	t.Run("rejects invalid variants", func(t *testing.T) {
		bad := variant
		bad.BasePrice = big.NewInt(1) // below protocol minimum
		_, err := f.admin.AddConfig(ctx, adminAddr, bad)
		assert.ErrorIs(t, err, domain.ErrInvalidConfig)

		bad = variant
		bad.InitialLiquidity = new(big.Int).Set(domain.DefaultBasePrice) // < 2x base
		_, err = f.admin.AddConfig(ctx, adminAddr, bad)
		assert.ErrorIs(t, err, domain.ErrInvalidConfig)

		bad = variant
		bad.InitialVotes = 0
		_, err = f.admin.AddConfig(ctx, adminAddr, bad)
		assert.ErrorIs(t, err, domain.ErrInvalidConfig)
	})

	t.Run("add returns sequential indices", func(t *testing.T) {
		idx, err := f.admin.AddConfig(ctx, adminAddr, variant)
		require.NoError(t, err)
		assert.Equal(t, 1, idx)

		configs, err := f.admin.ListConfigs(ctx)
		require.NoError(t, err)
		assert.Len(t, configs, 2)
	})

	t.Run("remove swaps last into hole", func(t *testing.T) {
		removed, err := f.admin.RemoveConfig(ctx, adminAddr, 0)
		require.NoError(t, err)
		assert.Equal(t, uint64(1), removed.InitialVotes) // the seed config

		configs, err := f.admin.ListConfigs(ctx)
		require.NoError(t, err)
		require.Len(t, configs, 1)
		assert.Equal(t, uint64(5), configs[0].InitialVotes)
		assert.Equal(t, 0, configs[0].Index)
	})

	t.Run("sole config cannot be removed", func(t *testing.T) {
		_, err := f.admin.RemoveConfig(ctx, adminAddr, 0)
		assert.ErrorIs(t, err, domain.ErrInvalidConfigIndex)
	})
}

func TestFeeAdministration(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	t.Run("requires admin role", func(t *testing.T) {
		err := f.admin.UpdateFees(ctx, traderAddr, domain.FeeConfig{})
		assert.ErrorIs(t, err, domain.ErrUnauthorized)
	})

	t.Run("rejects fees above the ceiling", func(t *testing.T) {
		err := f.admin.UpdateFees(ctx, adminAddr, domain.FeeConfig{
			EntryFeeBps:        domain.MaxFeeBps + 1,
			ProtocolFeeAddress: treasuryAddr,
		})
		assert.ErrorIs(t, err, domain.ErrFeeExceedsMaximum)
	})

	t.Run("applies to subsequent trades", func(t *testing.T) {
		require.NoError(t, f.admin.UpdateFees(ctx, adminAddr, domain.FeeConfig{
			EntryFeeBps:        0,
			ExitFeeBps:         0,
			DonationFeeBps:     0,
			ProtocolFeeAddress: treasuryAddr,
		}))

		f.createMarket(t)
		quote, err := f.trades.Buy(ctx, traderAddr, BuyParams{
			ProfileID: ownerProfile,
			Outcome:   domain.OutcomeTrust,
			Tendered:  eth(100),
		})
		require.NoError(t, err)
		assert.Zero(t, quote.ProtocolFee.Sign())
		assert.Zero(t, quote.Donation.Sign())
	})
}

func TestGraduation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.createMarket(t)

	t.Run("requires graduation role", func(t *testing.T) {
		err := f.admin.Graduate(ctx, adminAddr, ownerProfile)
		assert.ErrorIs(t, err, domain.ErrUnauthorized)
	})

	t.Run("withdraw before graduation fails", func(t *testing.T) {
		_, err := f.admin.WithdrawGraduated(ctx, graduatorAddr, ownerProfile)
		assert.ErrorIs(t, err, domain.ErrNotGraduated)
	})

	t.Run("graduates once", func(t *testing.T) {
		require.NoError(t, f.admin.Graduate(ctx, graduatorAddr, ownerProfile))

		m, err := f.store.GetMarket(ctx, ownerProfile)
		require.NoError(t, err)
		assert.True(t, m.Graduated)

		err = f.admin.Graduate(ctx, graduatorAddr, ownerProfile)
		assert.ErrorIs(t, err, domain.ErrMarketGraduated)
	})

	t.Run("withdraw drains funds once", func(t *testing.T) {
		before, err := f.store.GetMarket(ctx, ownerProfile)
		require.NoError(t, err)
		expected := new(big.Int).Set(before.Funds)

		amount, err := f.admin.WithdrawGraduated(ctx, graduatorAddr, ownerProfile)
		require.NoError(t, err)
		assert.Equal(t, expected, amount)
		assert.Equal(t, expected, f.payouts.PayoutsTo(graduatorAddr))

		m, err := f.store.GetMarket(ctx, ownerProfile)
		require.NoError(t, err)
		assert.Zero(t, m.Funds.Sign())

		_, err = f.admin.WithdrawGraduated(ctx, graduatorAddr, ownerProfile)
		assert.ErrorIs(t, err, domain.ErrNoFundsToWithdraw)
	})

	t.Run("transfer failure leaves funds in place", func(t *testing.T) {
		// Fresh market for a second profile.
		f.dir.AddProfile(77, charityAddr, true)
		_, err := f.markets.AdminCreateMarket(ctx, adminAddr, CreateParams{
			ProfileID: 77,
			Tendered:  eth(20),
		})
		require.NoError(t, err)
		require.NoError(t, f.admin.Graduate(ctx, graduatorAddr, 77))

		f.payouts.FailFor(graduatorAddr, domain.ErrTransferFailed)
		defer f.payouts.FailFor(graduatorAddr, nil)

		_, err = f.admin.WithdrawGraduated(ctx, graduatorAddr, 77)
		require.ErrorIs(t, err, domain.ErrTransferFailed)

		m, err := f.store.GetMarket(ctx, 77)
		require.NoError(t, err)
		assert.Equal(t, eth(20), m.Funds)
	})
}

func TestAllowListAdministration(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	t.Run("requires admin role", func(t *testing.T) {
		err := f.admin.SetAllowListed(ctx, traderAddr, ownerProfile, true)
		assert.ErrorIs(t, err, domain.ErrUnauthorized)

		err = f.admin.SetAllowListEnforced(ctx, traderAddr, false)
		assert.ErrorIs(t, err, domain.ErrUnauthorized)
	})

	t.Run("paused engine blocks admin writes", func(t *testing.T) {
		f.dir.SetPaused(domain.PauseTargetMarketEngine, true)
		defer f.dir.SetPaused(domain.PauseTargetMarketEngine, false)

		err := f.admin.SetAllowListed(ctx, adminAddr, ownerProfile, true)
		assert.ErrorIs(t, err, domain.ErrEnginePaused)
	})
}
