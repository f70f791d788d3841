package service

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/reputenet/trustmarket/internal/domain"
	"github.com/reputenet/trustmarket/internal/engine"
)

// TradeService executes buys and sells against the bonding curve, and serves
// commitment-free simulations of both.
type TradeService struct {
	store   Ledger
	pause   domain.PauseSwitch
	payouts domain.PayoutSender
	prices  domain.PriceCache // optional
	bus     domain.SignalBus  // optional
	locks   *Locks
	logger  *slog.Logger
}

// NewTradeService creates a TradeService. prices and bus may be nil.
func NewTradeService(
	store Ledger,
	pause domain.PauseSwitch,
	payouts domain.PayoutSender,
	prices domain.PriceCache,
	bus domain.SignalBus,
	locks *Locks,
	logger *slog.Logger,
) *TradeService {
	return &TradeService{
		store:   store,
		pause:   pause,
		payouts: payouts,
		prices:  prices,
		bus:     bus,
		locks:   locks,
		logger:  logger.With(slog.String("component", "trade_service")),
	}
}

// BuyParams carries the inputs of a buy or buy simulation.
type BuyParams struct {
	ProfileID uint64
	Outcome   domain.Outcome
	// Tendered is the amount (wei) sent along with the buy.
	Tendered *big.Int
	// ExpectedVotes and SlippageBps guard against the curve moving between
	// simulation and execution. ExpectedVotes zero disables the guard.
	ExpectedVotes uint64
	SlippageBps   uint16
}

// SellParams carries the inputs of a sell or sell simulation.
type SellParams struct {
	ProfileID uint64
	Outcome   domain.Outcome
	Votes     uint64
	// ExpectedProceeds and SlippageBps guard net proceeds. A nil or zero
	// ExpectedProceeds disables the guard.
	ExpectedProceeds *big.Int
	SlippageBps      uint16
}

// SimulateBuy prices a buy without committing anything. It runs the identical
// pure pricing code as Buy, so an immediately following Buy against unchanged
// state returns the same quote.
func (s *TradeService) SimulateBuy(ctx context.Context, p BuyParams) (engine.BuyQuote, error) {
	m, fees, err := s.snapshot(ctx, p.ProfileID)
	if err != nil {
		return engine.BuyQuote{}, fmt.Errorf("trade_service: simulate buy %d: %w", p.ProfileID, err)
	}
	quote, err := engine.PreviewBuy(m, fees, p.Outcome, p.Tendered)
	if err != nil {
		return engine.BuyQuote{}, fmt.Errorf("trade_service: simulate buy: %w", err)
	}
	return quote, nil
}

// SimulateSell prices a sell without committing anything.
func (s *TradeService) SimulateSell(ctx context.Context, actor common.Address, p SellParams) (engine.SellQuote, error) {
	m, fees, err := s.snapshot(ctx, p.ProfileID)
	if err != nil {
		return engine.SellQuote{}, fmt.Errorf("trade_service: simulate sell %d: %w", p.ProfileID, err)
	}
	balance, err := s.store.GetBalance(ctx, p.ProfileID, actor)
	if err != nil {
		return engine.SellQuote{}, fmt.Errorf("trade_service: simulate sell %d: %w", p.ProfileID, err)
	}
	quote, err := engine.PreviewSell(m, fees, p.Outcome, p.Votes, balance.Votes(p.Outcome))
	if err != nil {
		return engine.SellQuote{}, fmt.Errorf("trade_service: simulate sell: %w", err)
	}
	return quote, nil
}

// Buy purchases votes for the actor. The entry and donation fees come out of
// the tendered amount, whole votes are bought one at a time, and the unspent
// remainder is refunded. Fee delivery and the refund happen before the state
// commit; a failed transfer aborts the trade.
func (s *TradeService) Buy(ctx context.Context, actor common.Address, p BuyParams) (engine.BuyQuote, error) {
	wrap := func(err error) (engine.BuyQuote, error) {
		return engine.BuyQuote{}, fmt.Errorf("trade_service: buy %d: %w", p.ProfileID, err)
	}

	if err := checkPaused(ctx, s.pause); err != nil {
		return wrap(err)
	}
	unlock, err := s.locks.LockProfile(ctx, p.ProfileID)
	if err != nil {
		return wrap(err)
	}
	defer unlock()

	m, fees, err := s.snapshot(ctx, p.ProfileID)
	if err != nil {
		return wrap(err)
	}

	quote, err := engine.PreviewBuy(m, fees, p.Outcome, p.Tendered)
	if err != nil {
		return wrap(err)
	}
	if p.ExpectedVotes > 0 {
		if err := engine.CheckBuySlippage(p.ExpectedVotes, quote.Votes, p.SlippageBps); err != nil {
			return wrap(err)
		}
	}

	balance, err := s.store.GetBalance(ctx, p.ProfileID, actor)
	if err != nil {
		return wrap(err)
	}
	balance.SetVotes(p.Outcome, balance.Votes(p.Outcome)+quote.Votes)
	balance.UpdatedAt = time.Now().UTC()

	var escrow *domain.EscrowCredit
	if quote.Donation.Sign() > 0 {
		recipient, err := s.store.DonationRecipient(ctx, p.ProfileID)
		if err != nil {
			return wrap(err)
		}
		escrow = &domain.EscrowCredit{Recipient: recipient, Amount: quote.Donation}
	}

	if err := s.deliver(ctx, fees.ProtocolFeeAddress, quote.ProtocolFee); err != nil {
		return wrap(err)
	}
	if err := s.deliver(ctx, actor, quote.Refund); err != nil {
		return wrap(err)
	}

	staged := quote.Market
	staged.UpdatedAt = balance.UpdatedAt

	ev := newEvent(domain.EventVotesBought, p.ProfileID, actor, tradePayload(p.Outcome, quote.Votes, map[string]string{
		"tendered":     p.Tendered.String(),
		"cost":         quote.Cost.String(),
		"protocol_fee": quote.ProtocolFee.String(),
		"donation":     quote.Donation.String(),
		"refund":       quote.Refund.String(),
		"old_price":    quote.OldPrice.String(),
		"new_price":    quote.NewPrice.String(),
	}))
	if err := s.store.Trade(ctx, domain.TradeCommit{
		Market:      staged,
		Balance:     balance,
		Participant: actor,
		Escrow:      escrow,
		Event:       ev,
	}); err != nil {
		// The protocol fee and refund already left the treasury; the ledger
		// no longer matches the chain until an operator reconciles.
		s.logger.ErrorContext(ctx, "buy commit failed after payout delivery, manual reconciliation required",
			slog.Uint64("profile_id", p.ProfileID),
			slog.String("actor", actor.Hex()),
			slog.String("protocol_fee_wei", quote.ProtocolFee.String()),
			slog.String("refund_wei", quote.Refund.String()),
			slog.String("error", err.Error()),
		)
		return wrap(err)
	}
	quote.Market = staged

	announce(ctx, s.logger, s.prices, s.bus, staged, ev)
	s.logger.InfoContext(ctx, "votes bought",
		slog.Uint64("profile_id", p.ProfileID),
		slog.String("outcome", p.Outcome.String()),
		slog.Uint64("votes", quote.Votes),
		slog.String("cost_wei", quote.Cost.String()),
		slog.String("actor", actor.Hex()),
	)
	return quote, nil
}

// Sell sells votes the actor owns. Each unit is paid the marginal price after
// its own decrement, the exit fee comes out of the gross proceeds, and the
// net proceeds are transferred before the state commit.
func (s *TradeService) Sell(ctx context.Context, actor common.Address, p SellParams) (engine.SellQuote, error) {
	wrap := func(err error) (engine.SellQuote, error) {
		return engine.SellQuote{}, fmt.Errorf("trade_service: sell %d: %w", p.ProfileID, err)
	}

	if err := checkPaused(ctx, s.pause); err != nil {
		return wrap(err)
	}
	unlock, err := s.locks.LockProfile(ctx, p.ProfileID)
	if err != nil {
		return wrap(err)
	}
	defer unlock()

	m, fees, err := s.snapshot(ctx, p.ProfileID)
	if err != nil {
		return wrap(err)
	}
	balance, err := s.store.GetBalance(ctx, p.ProfileID, actor)
	if err != nil {
		return wrap(err)
	}

	quote, err := engine.PreviewSell(m, fees, p.Outcome, p.Votes, balance.Votes(p.Outcome))
	if err != nil {
		return wrap(err)
	}
	if err := engine.CheckSellSlippage(p.ExpectedProceeds, quote.Proceeds, p.SlippageBps); err != nil {
		return wrap(err)
	}

	balance.SetVotes(p.Outcome, balance.Votes(p.Outcome)-quote.Votes)
	balance.UpdatedAt = time.Now().UTC()

	if err := s.deliver(ctx, fees.ProtocolFeeAddress, quote.ProtocolFee); err != nil {
		return wrap(err)
	}
	if err := s.deliver(ctx, actor, quote.Proceeds); err != nil {
		return wrap(err)
	}

	staged := quote.Market
	staged.UpdatedAt = balance.UpdatedAt

	ev := newEvent(domain.EventVotesSold, p.ProfileID, actor, tradePayload(p.Outcome, quote.Votes, map[string]string{
		"gross":        quote.Gross.String(),
		"protocol_fee": quote.ProtocolFee.String(),
		"proceeds":     quote.Proceeds.String(),
		"old_price":    quote.OldPrice.String(),
		"new_price":    quote.NewPrice.String(),
	}))
	if err := s.store.Trade(ctx, domain.TradeCommit{
		Market:      staged,
		Balance:     balance,
		Participant: actor,
		Event:       ev,
	}); err != nil {
		// The exit fee and proceeds already left the treasury; the ledger
		// no longer matches the chain until an operator reconciles.
		s.logger.ErrorContext(ctx, "sell commit failed after payout delivery, manual reconciliation required",
			slog.Uint64("profile_id", p.ProfileID),
			slog.String("actor", actor.Hex()),
			slog.String("protocol_fee_wei", quote.ProtocolFee.String()),
			slog.String("proceeds_wei", quote.Proceeds.String()),
			slog.String("error", err.Error()),
		)
		return wrap(err)
	}
	quote.Market = staged

	announce(ctx, s.logger, s.prices, s.bus, staged, ev)
	s.logger.InfoContext(ctx, "votes sold",
		slog.Uint64("profile_id", p.ProfileID),
		slog.String("outcome", p.Outcome.String()),
		slog.Uint64("votes", quote.Votes),
		slog.String("proceeds_wei", quote.Proceeds.String()),
		slog.String("actor", actor.Hex()),
	)
	return quote, nil
}

// snapshot loads the market and fee parameters, rejecting graduated markets.
func (s *TradeService) snapshot(ctx context.Context, profileID uint64) (domain.Market, domain.FeeConfig, error) {
	m, err := s.store.GetMarket(ctx, profileID)
	if err != nil {
		return domain.Market{}, domain.FeeConfig{}, err
	}
	if m.Graduated {
		return domain.Market{}, domain.FeeConfig{}, domain.ErrMarketGraduated
	}
	fees, err := s.store.GetFees(ctx)
	if err != nil {
		return domain.Market{}, domain.FeeConfig{}, err
	}
	return m, fees, nil
}

// deliver sends a payout, skipping zero amounts.
func (s *TradeService) deliver(ctx context.Context, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	if err := s.payouts.Send(ctx, to, amount); err != nil {
		return fmt.Errorf("payout %s wei to %s: %w", amount, to.Hex(), err)
	}
	return nil
}

func tradePayload(o domain.Outcome, votes uint64, amounts map[string]string) map[string]any {
	payload := map[string]any{
		"outcome": o.String(),
		"votes":   votes,
	}
	for k, v := range amounts {
		payload[k] = v
	}
	return payload
}
