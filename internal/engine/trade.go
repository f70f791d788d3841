package engine

import (
	"fmt"
	"math/big"

	"github.com/reputenet/trustmarket/internal/domain"
)

// BuyQuote is the staged outcome of a (simulated or real) buy. Market is the
// post-trade snapshot the caller commits on success.
type BuyQuote struct {
	Outcome     domain.Outcome
	Votes       uint64
	Cost        *big.Int // sum of unit prices; added to market funds
	ProtocolFee *big.Int // entry fee on the tendered amount
	Donation    *big.Int // donation fee on the tendered amount
	FundsPaid   *big.Int // cost + protocol fee + donation
	Refund      *big.Int // tendered - FundsPaid
	OldPrice    *big.Int // marginal price before the trade
	NewPrice    *big.Int // marginal price after the trade
	Market      domain.Market
}

// SellQuote is the staged outcome of a (simulated or real) sell.
type SellQuote struct {
	Outcome     domain.Outcome
	Votes       uint64
	Gross       *big.Int // sum of unit prices; removed from market funds
	ProtocolFee *big.Int // exit fee on the gross proceeds
	Proceeds    *big.Int // gross - protocol fee; paid to the seller
	OldPrice    *big.Int
	NewPrice    *big.Int
	Market      domain.Market
}

// PreviewBuy prices a buy of outcome o against the given market snapshot.
// Fees are deducted from the tendered amount up front; the remainder buys
// whole votes one at a time, each priced at the marginal price before its own
// increment. Unspent funds become the refund. The returned quote stages the
// post-trade market; nothing is committed.
func PreviewBuy(m domain.Market, fees domain.FeeConfig, o domain.Outcome, tendered *big.Int) (BuyQuote, error) {
	if !o.Valid() {
		return BuyQuote{}, domain.ErrInvalidOutcome
	}
	if tendered == nil || tendered.Sign() <= 0 {
		return BuyQuote{}, fmt.Errorf("buy profile %d: tendered amount must be positive: %w", m.ProfileID, domain.ErrInvalidAmount)
	}

	protocolFee := domain.FeeOnAmount(tendered, fees.EntryFeeBps)
	donation := domain.FeeOnAmount(tendered, fees.DonationFeeBps)

	available := new(big.Int).Sub(tendered, protocolFee)
	available.Sub(available, donation)

	staged := m.Clone()
	oldPrice := VotePrice(staged, o)

	var votes uint64
	price := VotePrice(staged, o)
	for price.Sign() > 0 && available.Cmp(price) >= 0 {
		if votes == MaxVotesPerTrade {
			return BuyQuote{}, fmt.Errorf("buy profile %d: %w", m.ProfileID, domain.ErrTradeTooLarge)
		}
		available.Sub(available, price)
		staged = addVote(staged, o)
		votes++
		price = VotePrice(staged, o)
	}
	if votes == 0 {
		return BuyQuote{}, fmt.Errorf("buy profile %d: tendered %s below unit price %s: %w",
			m.ProfileID, tendered, price, domain.ErrInsufficientFunds)
	}

	cost := new(big.Int).Sub(tendered, protocolFee)
	cost.Sub(cost, donation)
	cost.Sub(cost, available)

	fundsPaid := new(big.Int).Add(cost, protocolFee)
	fundsPaid.Add(fundsPaid, donation)
	refund := new(big.Int).Sub(tendered, fundsPaid)

	staged.Funds = new(big.Int).Add(staged.Funds, cost)

	return BuyQuote{
		Outcome:     o,
		Votes:       votes,
		Cost:        cost,
		ProtocolFee: protocolFee,
		Donation:    donation,
		FundsPaid:   fundsPaid,
		Refund:      refund,
		OldPrice:    oldPrice,
		NewPrice:    VotePrice(staged, o),
		Market:      staged,
	}, nil
}

// PreviewSell prices a sale of votes units of outcome o. Selling mirrors
// buying exactly: each unit first decrements the outcome's vote count and
// then receives the marginal price at the decremented state, so a buy
// followed by an immediate full sell returns precisely the buy's cost and
// market funds are conserved. The exit fee comes out of the gross proceeds.
// owned is the seller's current balance for the outcome.
func PreviewSell(m domain.Market, fees domain.FeeConfig, o domain.Outcome, votes, owned uint64) (SellQuote, error) {
	if !o.Valid() {
		return SellQuote{}, domain.ErrInvalidOutcome
	}
	if votes == 0 {
		return SellQuote{}, fmt.Errorf("sell profile %d: vote count must be positive: %w", m.ProfileID, domain.ErrInvalidAmount)
	}
	if votes > MaxVotesPerTrade {
		return SellQuote{}, fmt.Errorf("sell profile %d: %w", m.ProfileID, domain.ErrTradeTooLarge)
	}
	if votes > owned {
		return SellQuote{}, fmt.Errorf("sell profile %d: selling %d, own %d: %w",
			m.ProfileID, votes, owned, domain.ErrInsufficientVotes)
	}
	if votes >= m.Votes(o) {
		// Owned votes are always a subset of votes added on top of the
		// config seed, so this only trips on corrupted state.
		return SellQuote{}, fmt.Errorf("sell profile %d: market has %d %s votes: %w",
			m.ProfileID, m.Votes(o), o, domain.ErrInsufficientVotes)
	}

	staged := m.Clone()
	oldPrice := VotePrice(staged, o)

	gross := new(big.Int)
	for i := uint64(0); i < votes; i++ {
		staged = removeVote(staged, o)
		gross.Add(gross, VotePrice(staged, o))
	}

	if staged.Funds.Cmp(gross) < 0 {
		return SellQuote{}, fmt.Errorf("sell profile %d: market funds %s below proceeds %s: %w",
			m.ProfileID, staged.Funds, gross, domain.ErrInsufficientFunds)
	}

	protocolFee := domain.FeeOnAmount(gross, fees.ExitFeeBps)
	proceeds := new(big.Int).Sub(gross, protocolFee)

	staged.Funds = new(big.Int).Sub(staged.Funds, gross)

	return SellQuote{
		Outcome:     o,
		Votes:       votes,
		Gross:       gross,
		ProtocolFee: protocolFee,
		Proceeds:    proceeds,
		OldPrice:    oldPrice,
		NewPrice:    VotePrice(staged, o),
		Market:      staged,
	}, nil
}
