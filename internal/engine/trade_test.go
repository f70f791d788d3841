package engine

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reputenet/trustmarket/internal/domain"
)

func eth(milli int64) *big.Int {
	// milli-units of the native currency, e.g. eth(10) = 0.01.
	v := big.NewInt(milli)
	return v.Mul(v, big.NewInt(1_000_000_000_000_000))
}

func newTestMarket(initialVotes uint64) domain.Market {
	return domain.Market{
		ProfileID:     42,
		TrustVotes:    initialVotes,
		DistrustVotes: initialVotes,
		BasePrice:     eth(10), // 0.01
		Funds:         eth(20), // 0.02
	}
}

func noFees() domain.FeeConfig {
	return domain.FeeConfig{}
}

func TestVotePrice(t *testing.T) {
	t.Run("fresh market splits base price evenly", func(t *testing.T) {
		m := newTestMarket(1)
		assert.Equal(t, eth(5), VotePrice(m, domain.OutcomeTrust))
		assert.Equal(t, eth(5), VotePrice(m, domain.OutcomeDistrust))
	})

	t.Run("prices sum to base price within rounding", func(t *testing.T) {
		cases := []struct{ trust, distrust uint64 }{
			{1, 1}, {2, 1}, {7, 3}, {1000, 1}, {13, 999}, {5, 5},
		}
		for _, tc := range cases {
			m := newTestMarket(1)
			m.TrustVotes = tc.trust
			m.DistrustVotes = tc.distrust

			sum := new(big.Int).Add(VotePrice(m, domain.OutcomeTrust), VotePrice(m, domain.OutcomeDistrust))
			diff := new(big.Int).Sub(m.BasePrice, sum)
			// Truncating division loses at most one wei per outcome.
			assert.True(t, diff.Sign() >= 0 && diff.Cmp(big.NewInt(2)) < 0,
				"trust=%d distrust=%d: sum %s vs base %s", tc.trust, tc.distrust, sum, m.BasePrice)
		}
	})

	t.Run("one trust purchase shifts prices two-to-one", func(t *testing.T) {
		m := newTestMarket(1)
		m.TrustVotes = 2 // after one trust vote bought

		third := new(big.Int).Div(eth(10), big.NewInt(3))
		trust := VotePrice(m, domain.OutcomeTrust)
		assert.Equal(t, new(big.Int).Mul(third, big.NewInt(2)), trust)
		assert.Equal(t, third, VotePrice(m, domain.OutcomeDistrust))
	})
}

func TestPreviewBuy(t *testing.T) {
	t.Run("single vote at the marginal price", func(t *testing.T) {
		m := newTestMarket(1)
		q, err := PreviewBuy(m, noFees(), domain.OutcomeTrust, eth(5))
		require.NoError(t, err)

		assert.Equal(t, uint64(1), q.Votes)
		assert.Equal(t, eth(5), q.Cost)
		assert.Equal(t, eth(5), q.FundsPaid)
		assert.Zero(t, q.Refund.Sign())
		assert.Equal(t, uint64(2), q.Market.TrustVotes)
		assert.Equal(t, uint64(1), q.Market.DistrustVotes)
		assert.Equal(t, eth(25), q.Market.Funds)
	})

	t.Run("price rises between consecutive units", func(t *testing.T) {
		m := newTestMarket(1)
		q, err := PreviewBuy(m, noFees(), domain.OutcomeTrust, eth(12))
		require.NoError(t, err)

		// First unit costs 0.005; second would cost 2/3 * 0.01 ≈ 0.00667,
		// leaving 0.007 after the first unit, so both are bought.
		assert.Equal(t, uint64(2), q.Votes)
		secondUnit := new(big.Int).Div(new(big.Int).Mul(eth(10), big.NewInt(2)), big.NewInt(3))
		wantCost := new(big.Int).Add(eth(5), secondUnit)
		assert.Equal(t, wantCost, q.Cost)
		assert.Equal(t, new(big.Int).Sub(eth(12), wantCost), q.Refund)
	})

	t.Run("entry and donation fees come out of the tendered amount", func(t *testing.T) {
		m := newTestMarket(1)
		fees := domain.FeeConfig{EntryFeeBps: 100, DonationFeeBps: 50} // 1% + 0.5%
		tendered := eth(100)

		q, err := PreviewBuy(m, fees, domain.OutcomeTrust, tendered)
		require.NoError(t, err)

		assert.Equal(t, eth(1), q.ProtocolFee, "1% of tendered")
		assert.Equal(t, new(big.Int).Div(eth(1), big.NewInt(2)), q.Donation, "0.5% of tendered")

		// cost + fees + refund reassemble the tendered amount exactly.
		total := new(big.Int).Add(q.Cost, q.ProtocolFee)
		total.Add(total, q.Donation)
		total.Add(total, q.Refund)
		assert.Equal(t, tendered, total)

		// Market funds grow by the cost only, never by fees.
		assert.Equal(t, new(big.Int).Add(eth(20), q.Cost), q.Market.Funds)
	})

	t.Run("cannot afford a single vote", func(t *testing.T) {
		m := newTestMarket(1)
		_, err := PreviewBuy(m, noFees(), domain.OutcomeTrust, big.NewInt(1))
		assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
	})

	t.Run("zero tendered amount", func(t *testing.T) {
		m := newTestMarket(1)
		_, err := PreviewBuy(m, noFees(), domain.OutcomeTrust, new(big.Int))
		assert.ErrorIs(t, err, domain.ErrInvalidAmount)
	})

	t.Run("preview leaves the input market untouched", func(t *testing.T) {
		m := newTestMarket(1)
		_, err := PreviewBuy(m, noFees(), domain.OutcomeTrust, eth(12))
		require.NoError(t, err)
		assert.Equal(t, uint64(1), m.TrustVotes)
		assert.Equal(t, eth(20), m.Funds)
	})
}

func TestPreviewSell(t *testing.T) {
	t.Run("round trip conserves market funds", func(t *testing.T) {
		m := newTestMarket(1)
		buy, err := PreviewBuy(m, noFees(), domain.OutcomeTrust, eth(12))
		require.NoError(t, err)
		require.Equal(t, uint64(2), buy.Votes)

		sell, err := PreviewSell(buy.Market, noFees(), domain.OutcomeTrust, buy.Votes, buy.Votes)
		require.NoError(t, err)

		assert.Equal(t, buy.Cost, sell.Gross, "selling back the same units returns the buy cost")
		assert.Equal(t, m.Funds, sell.Market.Funds)
		assert.Equal(t, m.TrustVotes, sell.Market.TrustVotes)
		assert.Equal(t, m.DistrustVotes, sell.Market.DistrustVotes)
	})

	t.Run("exit fee deducted from gross proceeds", func(t *testing.T) {
		m := newTestMarket(1)
		buy, err := PreviewBuy(m, noFees(), domain.OutcomeTrust, eth(30))
		require.NoError(t, err)

		fees := domain.FeeConfig{ExitFeeBps: 200} // 2%
		sell, err := PreviewSell(buy.Market, fees, domain.OutcomeTrust, buy.Votes, buy.Votes)
		require.NoError(t, err)

		wantFee := domain.FeeOnAmount(sell.Gross, 200)
		assert.Equal(t, wantFee, sell.ProtocolFee)
		assert.Equal(t, new(big.Int).Sub(sell.Gross, wantFee), sell.Proceeds)
	})

	t.Run("selling more than owned fails", func(t *testing.T) {
		m := newTestMarket(10)
		_, err := PreviewSell(m, noFees(), domain.OutcomeTrust, 3, 2)
		assert.ErrorIs(t, err, domain.ErrInsufficientVotes)
	})

	t.Run("zero vote count fails", func(t *testing.T) {
		m := newTestMarket(10)
		_, err := PreviewSell(m, noFees(), domain.OutcomeTrust, 0, 5)
		assert.ErrorIs(t, err, domain.ErrInvalidAmount)
	})

	t.Run("oversized sale is rejected", func(t *testing.T) {
		m := newTestMarket(10)
		_, err := PreviewSell(m, noFees(), domain.OutcomeTrust, MaxVotesPerTrade+1, MaxVotesPerTrade+1)
		assert.ErrorIs(t, err, domain.ErrTradeTooLarge)
	})
}

func TestCheckBuySlippage(t *testing.T) {
	cases := []struct {
		name     string
		expected uint64
		actual   uint64
		bps      uint16
		wantErr  bool
	}{
		{"exact match", 100, 100, 0, false},
		{"more than expected never fails", 100, 150, 0, false},
		{"within tolerance", 100, 99, 100, false},
		{"at tolerance boundary", 100, 99, 100, false},
		{"below tolerance", 100, 98, 100, true},
		{"zero tolerance any shortfall fails", 100, 99, 0, true},
		{"huge expectation still enforced", 1 << 60, 1, 0, true},
		{"huge expectation within tolerance", 1 << 60, 1 << 60, 100, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := CheckBuySlippage(tc.expected, tc.actual, tc.bps)
			if tc.wantErr {
				assert.ErrorIs(t, err, domain.ErrSlippageExceeded)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCheckSellSlippage(t *testing.T) {
	t.Run("no expectation passes", func(t *testing.T) {
		assert.NoError(t, CheckSellSlippage(nil, eth(1), 0))
	})
	t.Run("within tolerance", func(t *testing.T) {
		assert.NoError(t, CheckSellSlippage(eth(100), eth(99), 100))
	})
	t.Run("below tolerance", func(t *testing.T) {
		err := CheckSellSlippage(eth(100), eth(90), 100)
		assert.ErrorIs(t, err, domain.ErrSlippageExceeded)
	})
}

// Worked example from the protocol docs: base price 0.01, one seed vote
// per outcome.
func TestWorkedExample(t *testing.T) {
	m := domain.Market{
		ProfileID:     7,
		TrustVotes:    1,
		DistrustVotes: 1,
		BasePrice:     eth(10),
		Funds:         eth(20),
	}

	require.Equal(t, eth(5), VotePrice(m, domain.OutcomeTrust))
	require.Equal(t, eth(5), VotePrice(m, domain.OutcomeDistrust))

	q, err := PreviewBuy(m, noFees(), domain.OutcomeTrust, eth(5))
	require.NoError(t, err)
	require.Equal(t, uint64(1), q.Votes)

	third := new(big.Int).Div(eth(10), big.NewInt(3))
	assert.Equal(t, new(big.Int).Mul(third, big.NewInt(2)), VotePrice(q.Market, domain.OutcomeTrust))
	assert.Equal(t, third, VotePrice(q.Market, domain.OutcomeDistrust))
}
