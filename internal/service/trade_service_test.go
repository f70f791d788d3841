package service

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reputenet/trustmarket/internal/domain"
)

func TestBuyExecutesSimulatedQuote(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.createMarket(t)

	params := BuyParams{
		ProfileID: ownerProfile,
		Outcome:   domain.OutcomeTrust,
		Tendered:  eth(100),
	}

	sim, err := f.trades.SimulateBuy(ctx, params)
	require.NoError(t, err)

	quote, err := f.trades.Buy(ctx, traderAddr, params)
	require.NoError(t, err)

	// Simulation and execution price identically.
	assert.Equal(t, sim.Votes, quote.Votes)
	assert.Equal(t, sim.Cost, quote.Cost)
	assert.Equal(t, sim.ProtocolFee, quote.ProtocolFee)
	assert.Equal(t, sim.Donation, quote.Donation)
	assert.Equal(t, sim.Refund, quote.Refund)
	assert.Equal(t, sim.NewPrice, quote.NewPrice)

	// Tendered splits exactly into cost + fees + refund.
	total := new(big.Int).Add(quote.Cost, quote.ProtocolFee)
	total.Add(total, quote.Donation)
	total.Add(total, quote.Refund)
	assert.Equal(t, params.Tendered, total)

	t.Run("state committed", func(t *testing.T) {
		m, err := f.store.GetMarket(ctx, ownerProfile)
		require.NoError(t, err)
		assert.Equal(t, uint64(1)+quote.Votes, m.TrustVotes)
		assert.Equal(t, new(big.Int).Add(eth(20), quote.Cost), m.Funds)

		b, err := f.store.GetBalance(ctx, ownerProfile, traderAddr)
		require.NoError(t, err)
		assert.Equal(t, quote.Votes, b.TrustVotes)
	})

	t.Run("fee and refund delivered", func(t *testing.T) {
		assert.Equal(t, quote.ProtocolFee, f.payouts.PayoutsTo(treasuryAddr))
		assert.Equal(t, quote.Refund, f.payouts.PayoutsTo(traderAddr))
	})

	t.Run("donation escrowed for recipient", func(t *testing.T) {
		bal, err := f.store.EscrowBalance(ctx, ownerAddr)
		require.NoError(t, err)
		assert.Equal(t, quote.Donation, bal)
	})
}

func TestBuySellRoundTripConservesMarketFunds(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	created := f.createMarket(t)

	buy, err := f.trades.Buy(ctx, traderAddr, BuyParams{
		ProfileID: ownerProfile,
		Outcome:   domain.OutcomeTrust,
		Tendered:  eth(200),
	})
	require.NoError(t, err)
	require.Greater(t, buy.Votes, uint64(1))

	sell, err := f.trades.Sell(ctx, traderAddr, SellParams{
		ProfileID: ownerProfile,
		Outcome:   domain.OutcomeTrust,
		Votes:     buy.Votes,
	})
	require.NoError(t, err)

	// The sale grosses exactly what the buy cost; market funds return to the
	// initial liquidity.
	assert.Equal(t, buy.Cost, sell.Gross)
	m, err := f.store.GetMarket(ctx, ownerProfile)
	require.NoError(t, err)
	assert.Equal(t, created.Funds, m.Funds)
	assert.Equal(t, created.TrustVotes, m.TrustVotes)

	// Seller balance is back to zero.
	b, err := f.store.GetBalance(ctx, ownerProfile, traderAddr)
	require.NoError(t, err)
	assert.Zero(t, b.TrustVotes)
}

func TestSellExecutesSimulatedQuote(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.createMarket(t)

	buy, err := f.trades.Buy(ctx, traderAddr, BuyParams{
		ProfileID: ownerProfile,
		Outcome:   domain.OutcomeDistrust,
		Tendered:  eth(100),
	})
	require.NoError(t, err)

	params := SellParams{
		ProfileID: ownerProfile,
		Outcome:   domain.OutcomeDistrust,
		Votes:     buy.Votes,
	}
	sim, err := f.trades.SimulateSell(ctx, traderAddr, params)
	require.NoError(t, err)

	quote, err := f.trades.Sell(ctx, traderAddr, params)
	require.NoError(t, err)

	assert.Equal(t, sim.Gross, quote.Gross)
	assert.Equal(t, sim.ProtocolFee, quote.ProtocolFee)
	assert.Equal(t, sim.Proceeds, quote.Proceeds)

	// Exit fee to the treasury, net proceeds to the seller (on top of the
	// buy's earlier refund).
	expectedTrader := new(big.Int).Add(buy.Refund, quote.Proceeds)
	assert.Equal(t, expectedTrader, f.payouts.PayoutsTo(traderAddr))
}

func TestBuyErrors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.createMarket(t)

	t.Run("unknown market", func(t *testing.T) {
		_, err := f.trades.Buy(ctx, traderAddr, BuyParams{
			ProfileID: 404,
			Outcome:   domain.OutcomeTrust,
			Tendered:  eth(100),
		})
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("tendered below one unit", func(t *testing.T) {
		_, err := f.trades.Buy(ctx, traderAddr, BuyParams{
			ProfileID: ownerProfile,
			Outcome:   domain.OutcomeTrust,
			Tendered:  big.NewInt(1000),
		})
		assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
	})

	t.Run("nil amount", func(t *testing.T) {
		_, err := f.trades.Buy(ctx, traderAddr, BuyParams{
			ProfileID: ownerProfile,
			Outcome:   domain.OutcomeTrust,
		})
		assert.ErrorIs(t, err, domain.ErrInvalidAmount)
	})

	t.Run("invalid outcome", func(t *testing.T) {
		_, err := f.trades.Buy(ctx, traderAddr, BuyParams{
			ProfileID: ownerProfile,
			Outcome:   domain.Outcome(9),
			Tendered:  eth(100),
		})
		assert.ErrorIs(t, err, domain.ErrInvalidOutcome)
	})

	t.Run("slippage guard", func(t *testing.T) {
		sim, err := f.trades.SimulateBuy(ctx, BuyParams{
			ProfileID: ownerProfile,
			Outcome:   domain.OutcomeTrust,
			Tendered:  eth(100),
		})
		require.NoError(t, err)

		// Demand far more votes than the curve can deliver, zero tolerance.
		_, err = f.trades.Buy(ctx, traderAddr, BuyParams{
			ProfileID:     ownerProfile,
			Outcome:       domain.OutcomeTrust,
			Tendered:      eth(100),
			ExpectedVotes: sim.Votes * 10,
			SlippageBps:   0,
		})
		assert.ErrorIs(t, err, domain.ErrSlippageExceeded)
	})

	t.Run("paused engine", func(t *testing.T) {
		f.dir.SetPaused(domain.PauseTargetMarketEngine, true)
		defer f.dir.SetPaused(domain.PauseTargetMarketEngine, false)

		_, err := f.trades.Buy(ctx, traderAddr, BuyParams{
			ProfileID: ownerProfile,
			Outcome:   domain.OutcomeTrust,
			Tendered:  eth(100),
		})
		assert.ErrorIs(t, err, domain.ErrEnginePaused)
	})

	t.Run("payout failure aborts commit", func(t *testing.T) {
		before, err := f.store.GetMarket(ctx, ownerProfile)
		require.NoError(t, err)

		f.payouts.FailFor(treasuryAddr, domain.ErrTransferFailed)
		defer f.payouts.FailFor(treasuryAddr, nil)

		_, err = f.trades.Buy(ctx, traderAddr, BuyParams{
			ProfileID: ownerProfile,
			Outcome:   domain.OutcomeTrust,
			Tendered:  eth(100),
		})
		require.ErrorIs(t, err, domain.ErrTransferFailed)

		after, err := f.store.GetMarket(ctx, ownerProfile)
		require.NoError(t, err)
		assert.Equal(t, before.TrustVotes, after.TrustVotes)
		assert.Equal(t, before.Funds, after.Funds)
	})
}

func TestSellErrors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.createMarket(t)

	buy, err := f.trades.Buy(ctx, traderAddr, BuyParams{
		ProfileID: ownerProfile,
		Outcome:   domain.OutcomeTrust,
		Tendered:  eth(100),
	})
	require.NoError(t, err)

	t.Run("selling more than owned", func(t *testing.T) {
		_, err := f.trades.Sell(ctx, traderAddr, SellParams{
			ProfileID: ownerProfile,
			Outcome:   domain.OutcomeTrust,
			Votes:     buy.Votes + 1,
		})
		assert.ErrorIs(t, err, domain.ErrInsufficientVotes)
	})

	t.Run("selling outcome not owned", func(t *testing.T) {
		_, err := f.trades.Sell(ctx, traderAddr, SellParams{
			ProfileID: ownerProfile,
			Outcome:   domain.OutcomeDistrust,
			Votes:     1,
		})
		assert.ErrorIs(t, err, domain.ErrInsufficientVotes)
	})

	t.Run("zero votes", func(t *testing.T) {
		_, err := f.trades.Sell(ctx, traderAddr, SellParams{
			ProfileID: ownerProfile,
			Outcome:   domain.OutcomeTrust,
		})
		assert.ErrorIs(t, err, domain.ErrInvalidAmount)
	})

	t.Run("proceeds slippage guard", func(t *testing.T) {
		sim, err := f.trades.SimulateSell(ctx, traderAddr, SellParams{
			ProfileID: ownerProfile,
			Outcome:   domain.OutcomeTrust,
			Votes:     buy.Votes,
		})
		require.NoError(t, err)

		inflated := new(big.Int).Mul(sim.Proceeds, big.NewInt(2))
		_, err = f.trades.Sell(ctx, traderAddr, SellParams{
			ProfileID:        ownerProfile,
			Outcome:          domain.OutcomeTrust,
			Votes:            buy.Votes,
			ExpectedProceeds: inflated,
			SlippageBps:      100,
		})
		assert.ErrorIs(t, err, domain.ErrSlippageExceeded)
	})
}

func TestGraduatedMarketRejectsTrades(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.createMarket(t)
	require.NoError(t, f.admin.Graduate(ctx, graduatorAddr, ownerProfile))

	_, err := f.trades.Buy(ctx, traderAddr, BuyParams{
		ProfileID: ownerProfile,
		Outcome:   domain.OutcomeTrust,
		Tendered:  eth(100),
	})
	assert.ErrorIs(t, err, domain.ErrMarketGraduated)

	_, err = f.trades.SimulateSell(ctx, traderAddr, SellParams{
		ProfileID: ownerProfile,
		Outcome:   domain.OutcomeTrust,
		Votes:     1,
	})
	assert.ErrorIs(t, err, domain.ErrMarketGraduated)
}

// failingTradeLedger rejects every commit while delegating all reads.
type failingTradeLedger struct {
	Ledger
	err error
}

func (f failingTradeLedger) Trade(ctx context.Context, c domain.TradeCommit) error {
	return f.err
}

func TestTradeCommitFailureIsLoggedForReconciliation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.createMarket(t)

	var logBuf bytes.Buffer
	commitErr := errors.New("connection reset")
	trades := NewTradeService(
		failingTradeLedger{Ledger: f.store, err: commitErr},
		f.dir, f.payouts, nil, nil, NewLocks(nil),
		slog.New(slog.NewTextHandler(&logBuf, nil)),
	)

	_, err := trades.Buy(ctx, traderAddr, BuyParams{
		ProfileID: ownerProfile,
		Outcome:   domain.OutcomeTrust,
		Tendered:  eth(100),
	})
	require.ErrorIs(t, err, commitErr)
	assert.Contains(t, logBuf.String(), "manual reconciliation required")
	// The payouts had already left before the commit failed; that gap is
	// what the log flags for the operator.
	assert.Positive(t, f.payouts.PayoutsTo(treasuryAddr).Sign())

	// Same on the sell path: acquire votes through the working service,
	// then fail the sell commit after proceeds were delivered.
	_, err = f.trades.Buy(ctx, traderAddr, BuyParams{
		ProfileID: ownerProfile,
		Outcome:   domain.OutcomeTrust,
		Tendered:  eth(100),
	})
	require.NoError(t, err)

	logBuf.Reset()
	_, err = trades.Sell(ctx, traderAddr, SellParams{
		ProfileID: ownerProfile,
		Outcome:   domain.OutcomeTrust,
		Votes:     1,
	})
	require.ErrorIs(t, err, commitErr)
	assert.Contains(t, logBuf.String(), "manual reconciliation required")
	assert.Positive(t, f.payouts.PayoutsTo(traderAddr).Sign())
}
