// Package engine implements the bonding-curve pricing mathematics for
// two-outcome reputation markets. Everything here is pure: functions take a
// market snapshot and return staged results without touching shared state,
// which is what gives preview and execute calls bit-identical outcomes.
package engine

import (
	"math/big"

	"github.com/reputenet/trustmarket/internal/domain"
)

// MaxVotesPerTrade bounds the unit-at-a-time pricing loop. A single call can
// never iterate more than this many units; larger trades are rejected rather
// than truncated.
const MaxVotesPerTrade = 100_000

// VotePrice returns the current marginal price of one vote of the given
// outcome: votes(o) * basePrice / totalVotes, truncating division. The two
// outcome prices always sum to basePrice within one wei of rounding.
func VotePrice(m domain.Market, o domain.Outcome) *big.Int {
	total := m.TotalVotes()
	if total == 0 || m.BasePrice == nil {
		return new(big.Int)
	}
	p := new(big.Int).SetUint64(m.Votes(o))
	p.Mul(p, m.BasePrice)
	return p.Div(p, new(big.Int).SetUint64(total))
}

// addVote returns m with one vote of outcome o added.
func addVote(m domain.Market, o domain.Outcome) domain.Market {
	if o == domain.OutcomeTrust {
		m.TrustVotes++
	} else {
		m.DistrustVotes++
	}
	return m
}

// removeVote returns m with one vote of outcome o removed.
func removeVote(m domain.Market, o domain.Outcome) domain.Market {
	if o == domain.OutcomeTrust {
		m.TrustVotes--
	} else {
		m.DistrustVotes--
	}
	return m
}
