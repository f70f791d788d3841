package service

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/reputenet/trustmarket/internal/domain"
	"github.com/reputenet/trustmarket/internal/engine"
	"github.com/reputenet/trustmarket/internal/notify"
)

// ChannelMarketEvents is the signal-bus channel and stream carrying every
// market event. Per-market fan-out additionally goes to "market:{profileID}".
const ChannelMarketEvents = "market.events"

func marketChannel(profileID uint64) string {
	return "market:" + strconv.FormatUint(profileID, 10)
}

// MarketService handles market creation and the read surface.
type MarketService struct {
	store    Ledger
	identity domain.IdentityRegistry
	roles    domain.RoleRegistry
	pause    domain.PauseSwitch
	payouts  domain.PayoutSender
	prices   domain.PriceCache // optional
	bus      domain.SignalBus  // optional
	notifier *notify.Notifier  // optional
	locks    *Locks
	logger   *slog.Logger
}

// NewMarketService creates a MarketService. prices, bus and notifier may be
// nil; they are best-effort side channels.
func NewMarketService(
	store Ledger,
	identity domain.IdentityRegistry,
	roles domain.RoleRegistry,
	pause domain.PauseSwitch,
	payouts domain.PayoutSender,
	prices domain.PriceCache,
	bus domain.SignalBus,
	notifier *notify.Notifier,
	locks *Locks,
	logger *slog.Logger,
) *MarketService {
	return &MarketService{
		store:    store,
		identity: identity,
		roles:    roles,
		pause:    pause,
		payouts:  payouts,
		prices:   prices,
		bus:      bus,
		notifier: notifier,
		locks:    locks,
		logger:   logger.With(slog.String("component", "market_service")),
	}
}

// CreateParams carries the inputs of a market creation.
type CreateParams struct {
	ProfileID   uint64
	ConfigIndex int
	// Tendered is the amount (wei) the creator sends along. It must cover the
	// config's initial liquidity; the excess is refunded.
	Tendered *big.Int
}

// CreateMarket opens a market for the caller's own profile. While allow-list
// enforcement is on, the profile must have been allow-listed.
func (s *MarketService) CreateMarket(ctx context.Context, actor common.Address, p CreateParams) (domain.Market, error) {
	return s.create(ctx, actor, p, true)
}

// AdminCreateMarket opens a market for a target profile on its behalf. The
// actor must hold the market-admin role; the allow-list does not apply.
func (s *MarketService) AdminCreateMarket(ctx context.Context, actor common.Address, p CreateParams) (domain.Market, error) {
	if err := requireRole(ctx, s.roles, domain.RoleAdmin, actor); err != nil {
		return domain.Market{}, fmt.Errorf("market_service: admin create %d: %w", p.ProfileID, err)
	}
	return s.create(ctx, actor, p, false)
}

func (s *MarketService) create(ctx context.Context, actor common.Address, p CreateParams, selfService bool) (domain.Market, error) {
	wrap := func(err error) (domain.Market, error) {
		return domain.Market{}, fmt.Errorf("market_service: create %d: %w", p.ProfileID, err)
	}

	if err := checkPaused(ctx, s.pause); err != nil {
		return wrap(err)
	}
	unlock, err := s.locks.LockProfile(ctx, p.ProfileID)
	if err != nil {
		return wrap(err)
	}
	defer unlock()

	active, err := s.identity.IsActiveProfile(ctx, p.ProfileID)
	if err != nil {
		return wrap(err)
	}
	if !active {
		return wrap(domain.ErrProfileNotFound)
	}
	controlling, err := s.identity.ResolveControllingAddress(ctx, p.ProfileID)
	if err != nil {
		return wrap(err)
	}

	if selfService {
		if actor != controlling {
			return wrap(fmt.Errorf("%s does not control profile %d: %w", actor.Hex(), p.ProfileID, domain.ErrUnauthorized))
		}
		enforced, err := s.store.AllowListEnforced(ctx)
		if err != nil {
			return wrap(err)
		}
		if enforced {
			allowed, err := s.store.IsAllowListed(ctx, p.ProfileID)
			if err != nil {
				return wrap(err)
			}
			if !allowed {
				return wrap(domain.ErrNotAllowListed)
			}
		}
	}

	cfg, err := s.store.GetConfig(ctx, p.ConfigIndex)
	if err != nil {
		return wrap(err)
	}
	if p.Tendered == nil || p.Tendered.Sign() <= 0 {
		return wrap(domain.ErrInvalidAmount)
	}
	if p.Tendered.Cmp(cfg.InitialLiquidity) < 0 {
		return wrap(fmt.Errorf("tendered %s below initial liquidity %s: %w",
			p.Tendered, cfg.InitialLiquidity, domain.ErrInsufficientFunds))
	}

	now := time.Now().UTC()
	m := domain.Market{
		ProfileID:     p.ProfileID,
		TrustVotes:    cfg.InitialVotes,
		DistrustVotes: cfg.InitialVotes,
		BasePrice:     new(big.Int).Set(cfg.BasePrice),
		Funds:         new(big.Int).Set(cfg.InitialLiquidity),
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	// Refund the excess before committing; a failed transfer aborts the whole
	// creation.
	refund := new(big.Int).Sub(p.Tendered, cfg.InitialLiquidity)
	if refund.Sign() > 0 {
		if err := s.payouts.Send(ctx, actor, refund); err != nil {
			return wrap(err)
		}
	}

	ev := newEvent(domain.EventMarketCreated, p.ProfileID, actor, map[string]any{
		"config_index":      cfg.Index,
		"initial_liquidity": cfg.InitialLiquidity.String(),
		"initial_votes":     cfg.InitialVotes,
		"base_price":        cfg.BasePrice.String(),
		"tendered":          p.Tendered.String(),
		"refund":            refund.String(),
		"recipient":         controlling.Hex(),
	})
	if err := s.store.CreateMarket(ctx, m, controlling, ev); err != nil {
		return wrap(err)
	}

	s.announce(ctx, m, ev)
	if s.notifier != nil {
		_ = s.notifier.Notify(ctx, string(domain.EventMarketCreated),
			"Market created",
			fmt.Sprintf("Profile %d now has a reputation market (config %d, liquidity %s wei).",
				p.ProfileID, cfg.Index, cfg.InitialLiquidity),
		)
	}

	s.logger.InfoContext(ctx, "market created",
		slog.Uint64("profile_id", p.ProfileID),
		slog.Int("config_index", cfg.Index),
		slog.String("actor", actor.Hex()),
	)
	return m, nil
}

// GetMarket returns one market.
func (s *MarketService) GetMarket(ctx context.Context, profileID uint64) (domain.Market, error) {
	m, err := s.store.GetMarket(ctx, profileID)
	if err != nil {
		return domain.Market{}, fmt.Errorf("market_service: get %d: %w", profileID, err)
	}
	return m, nil
}

// ListMarkets returns markets ordered by profile ID, with the total count.
func (s *MarketService) ListMarkets(ctx context.Context, opts domain.ListOpts) ([]domain.Market, int64, error) {
	markets, err := s.store.ListMarkets(ctx, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("market_service: list: %w", err)
	}
	total, err := s.store.CountMarkets(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("market_service: count: %w", err)
	}
	return markets, total, nil
}

// Price returns the current marginal price of one vote of the given outcome.
func (s *MarketService) Price(ctx context.Context, profileID uint64, o domain.Outcome) (*big.Int, error) {
	if !o.Valid() {
		return nil, fmt.Errorf("market_service: price %d: %w", profileID, domain.ErrInvalidOutcome)
	}
	m, err := s.store.GetMarket(ctx, profileID)
	if err != nil {
		return nil, fmt.Errorf("market_service: price %d: %w", profileID, err)
	}
	return engine.VotePrice(m, o), nil
}

// Prices returns both outcome prices, preferring the cache and falling back
// to (and backfilling from) the ledger.
func (s *MarketService) Prices(ctx context.Context, profileID uint64) (domain.PricePoint, error) {
	if s.prices != nil {
		if p, err := s.prices.GetPrice(ctx, profileID); err == nil {
			return p, nil
		}
	}
	m, err := s.store.GetMarket(ctx, profileID)
	if err != nil {
		return domain.PricePoint{}, fmt.Errorf("market_service: prices %d: %w", profileID, err)
	}
	p := pricePoint(m)
	if s.prices != nil {
		if err := s.prices.SetPrice(ctx, profileID, p); err != nil {
			s.logger.WarnContext(ctx, "price cache backfill failed",
				slog.Uint64("profile_id", profileID),
				slog.String("error", err.Error()),
			)
		}
	}
	return p, nil
}

// ListParticipants returns the addresses that have ever traded in a market,
// in first-trade order, with the total count.
func (s *MarketService) ListParticipants(ctx context.Context, profileID uint64, opts domain.ListOpts) ([]common.Address, int64, error) {
	if _, err := s.store.GetMarket(ctx, profileID); err != nil {
		return nil, 0, fmt.Errorf("market_service: participants %d: %w", profileID, err)
	}
	addrs, err := s.store.ListParticipants(ctx, profileID, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("market_service: participants %d: %w", profileID, err)
	}
	total, err := s.store.CountParticipants(ctx, profileID)
	if err != nil {
		return nil, 0, fmt.Errorf("market_service: participants %d: %w", profileID, err)
	}
	return addrs, total, nil
}

// GetBalance returns a participant's vote balance; never-traded participants
// read as zero.
func (s *MarketService) GetBalance(ctx context.Context, profileID uint64, participant common.Address) (domain.VoteBalance, error) {
	b, err := s.store.GetBalance(ctx, profileID, participant)
	if err != nil {
		return domain.VoteBalance{}, fmt.Errorf("market_service: balance %d/%s: %w", profileID, participant.Hex(), err)
	}
	return b, nil
}

// ListEvents returns a market's event log, newest first.
func (s *MarketService) ListEvents(ctx context.Context, profileID uint64, opts domain.ListOpts) ([]domain.MarketEvent, error) {
	events, err := s.store.ListEvents(ctx, profileID, opts)
	if err != nil {
		return nil, fmt.Errorf("market_service: events %d: %w", profileID, err)
	}
	return events, nil
}

// announce pushes the post-commit price snapshot to the cache and the event
// to the signal bus. Both are best-effort.
func (s *MarketService) announce(ctx context.Context, m domain.Market, ev domain.MarketEvent) {
	announce(ctx, s.logger, s.prices, s.bus, m, ev)
}

func pricePoint(m domain.Market) domain.PricePoint {
	return domain.PricePoint{
		TrustPrice:    engine.VotePrice(m, domain.OutcomeTrust),
		DistrustPrice: engine.VotePrice(m, domain.OutcomeDistrust),
		UpdatedAt:     m.UpdatedAt,
	}
}

// announce is shared by every service that commits market mutations.
func announce(ctx context.Context, logger *slog.Logger, prices domain.PriceCache, bus domain.SignalBus, m domain.Market, ev domain.MarketEvent) {
	if prices != nil {
		if err := prices.SetPrice(ctx, m.ProfileID, pricePoint(m)); err != nil {
			logger.WarnContext(ctx, "price cache update failed",
				slog.Uint64("profile_id", m.ProfileID),
				slog.String("error", err.Error()),
			)
		}
	}
	if bus == nil {
		return
	}
	frame := eventFrame(ev)
	for _, channel := range []string{ChannelMarketEvents, marketChannel(ev.ProfileID)} {
		if err := bus.Publish(ctx, channel, frame); err != nil {
			logger.WarnContext(ctx, "event publish failed",
				slog.String("channel", channel),
				slog.String("error", err.Error()),
			)
		}
	}
	if err := bus.StreamAppend(ctx, ChannelMarketEvents, frame); err != nil {
		logger.WarnContext(ctx, "event stream append failed",
			slog.String("error", err.Error()),
		)
	}
}
