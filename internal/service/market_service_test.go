package service

import (
	"context"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reputenet/trustmarket/internal/domain"
)

func TestCreateMarketSelfService(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	t.Run("not allow-listed while enforced", func(t *testing.T) {
		_, err := f.markets.CreateMarket(ctx, ownerAddr, CreateParams{
			ProfileID: ownerProfile,
			Tendered:  eth(20),
		})
		assert.ErrorIs(t, err, domain.ErrNotAllowListed)
	})

	t.Run("wrong actor", func(t *testing.T) {
		require.NoError(t, f.admin.SetAllowListed(ctx, adminAddr, ownerProfile, true))
		_, err := f.markets.CreateMarket(ctx, traderAddr, CreateParams{
			ProfileID: ownerProfile,
			Tendered:  eth(20),
		})
		assert.ErrorIs(t, err, domain.ErrUnauthorized)
	})

	t.Run("unknown profile", func(t *testing.T) {
		_, err := f.markets.CreateMarket(ctx, ownerAddr, CreateParams{
			ProfileID: 404,
			Tendered:  eth(20),
		})
		assert.ErrorIs(t, err, domain.ErrProfileNotFound)
	})

	t.Run("tendered below initial liquidity", func(t *testing.T) {
		_, err := f.markets.CreateMarket(ctx, ownerAddr, CreateParams{
			ProfileID: ownerProfile,
			Tendered:  eth(19),
		})
		assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
	})

	t.Run("creates seeded market", func(t *testing.T) {
		m, err := f.markets.CreateMarket(ctx, ownerAddr, CreateParams{
			ProfileID: ownerProfile,
			Tendered:  eth(25), // 0.005 excess refunded
		})
		require.NoError(t, err)
		assert.Equal(t, uint64(1), m.TrustVotes)
		assert.Equal(t, uint64(1), m.DistrustVotes)
		assert.Equal(t, eth(20), m.Funds)
		assert.False(t, m.Graduated)

		// Excess refunded to the creator.
		assert.Equal(t, eth(5), f.payouts.PayoutsTo(ownerAddr))

		// Donation recipient defaults to the controlling address.
		r, err := f.store.DonationRecipient(ctx, ownerProfile)
		require.NoError(t, err)
		assert.Equal(t, ownerAddr, r)
	})

	t.Run("duplicate market", func(t *testing.T) {
		_, err := f.markets.CreateMarket(ctx, ownerAddr, CreateParams{
			ProfileID: ownerProfile,
			Tendered:  eth(20),
		})
		assert.ErrorIs(t, err, domain.ErrAlreadyExists)
	})
}

func TestCreateMarketEnforcementOff(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.admin.SetAllowListEnforced(ctx, adminAddr, false))
	_, err := f.markets.CreateMarket(ctx, ownerAddr, CreateParams{
		ProfileID: ownerProfile,
		Tendered:  eth(20),
	})
	assert.NoError(t, err)
}

func TestAdminCreateMarket(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	t.Run("requires admin role", func(t *testing.T) {
		_, err := f.markets.AdminCreateMarket(ctx, traderAddr, CreateParams{
			ProfileID: ownerProfile,
			Tendered:  eth(20),
		})
		assert.ErrorIs(t, err, domain.ErrUnauthorized)
	})

	t.Run("bypasses allow list", func(t *testing.T) {
		// Profile is not allow-listed; admin creation succeeds anyway.
		m, err := f.markets.AdminCreateMarket(ctx, adminAddr, CreateParams{
			ProfileID: ownerProfile,
			Tendered:  eth(20),
		})
		require.NoError(t, err)
		assert.Equal(t, ownerProfile, m.ProfileID)

		// Recipient is still the profile's controlling address, not the admin.
		r, err := f.store.DonationRecipient(ctx, ownerProfile)
		require.NoError(t, err)
		assert.Equal(t, ownerAddr, r)
	})

	t.Run("target must be active", func(t *testing.T) {
		f.dir.AddProfile(77, traderAddr, false)
		_, err := f.markets.AdminCreateMarket(ctx, adminAddr, CreateParams{
			ProfileID: 77,
			Tendered:  eth(20),
		})
		assert.ErrorIs(t, err, domain.ErrProfileNotFound)
	})
}

func TestCreateMarketPaused(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.dir.SetPaused(domain.PauseTargetMarketEngine, true)

	_, err := f.markets.CreateMarket(ctx, ownerAddr, CreateParams{
		ProfileID: ownerProfile,
		Tendered:  eth(20),
	})
	assert.ErrorIs(t, err, domain.ErrEnginePaused)
}

func TestMarketPrices(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.createMarket(t)

	t.Run("even seed splits base price", func(t *testing.T) {
		p, err := f.markets.Price(ctx, ownerProfile, domain.OutcomeTrust)
		require.NoError(t, err)
		assert.Equal(t, eth(5), p) // 0.005: half of 0.01

		point, err := f.markets.Prices(ctx, ownerProfile)
		require.NoError(t, err)
		assert.Equal(t, eth(5), point.TrustPrice)
		assert.Equal(t, eth(5), point.DistrustPrice)
	})

	t.Run("invalid outcome", func(t *testing.T) {
		_, err := f.markets.Price(ctx, ownerProfile, domain.Outcome(7))
		assert.ErrorIs(t, err, domain.ErrInvalidOutcome)
	})

	t.Run("missing market", func(t *testing.T) {
		_, err := f.markets.Prices(ctx, 404)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestMarketReadSurface(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.createMarket(t)

	_, err := f.trades.Buy(ctx, traderAddr, BuyParams{
		ProfileID: ownerProfile,
		Outcome:   domain.OutcomeTrust,
		Tendered:  eth(10),
	})
	require.NoError(t, err)

	t.Run("list markets", func(t *testing.T) {
		markets, total, err := f.markets.ListMarkets(ctx, domain.ListOpts{})
		require.NoError(t, err)
		assert.Equal(t, int64(1), total)
		require.Len(t, markets, 1)
	})

	t.Run("participants", func(t *testing.T) {
		addrs, total, err := f.markets.ListParticipants(ctx, ownerProfile, domain.ListOpts{})
		require.NoError(t, err)
		assert.Equal(t, int64(1), total)
		require.Len(t, addrs, 1)
		assert.Equal(t, traderAddr, addrs[0])
	})

	t.Run("balance", func(t *testing.T) {
		b, err := f.markets.GetBalance(ctx, ownerProfile, traderAddr)
		require.NoError(t, err)
		assert.NotZero(t, b.TrustVotes)
	})

	t.Run("events newest first", func(t *testing.T) {
		events, err := f.markets.ListEvents(ctx, ownerProfile, domain.ListOpts{})
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, domain.EventVotesBought, events[0].Type)
		assert.Equal(t, domain.EventMarketCreated, events[1].Type)
	})
}

func TestCreateMarketRefundFailureAborts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.admin.SetAllowListed(ctx, adminAddr, ownerProfile, true))

	f.payouts.FailFor(ownerAddr, domain.ErrTransferFailed)
	_, err := f.markets.CreateMarket(ctx, ownerAddr, CreateParams{
		ProfileID: ownerProfile,
		Tendered:  new(big.Int).Add(eth(20), big.NewInt(1)),
	})
	require.ErrorIs(t, err, domain.ErrTransferFailed)

	// Nothing was committed.
	_, err = f.store.GetMarket(ctx, ownerProfile)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
