package service

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/reputenet/trustmarket/internal/domain"
	"github.com/reputenet/trustmarket/internal/notify"
)

// AdminService carries the role-gated operations: config registry and fee
// management, the allow-list, and market graduation/withdrawal.
type AdminService struct {
	store    Ledger
	roles    domain.RoleRegistry
	pause    domain.PauseSwitch
	payouts  domain.PayoutSender
	bus      domain.SignalBus  // optional
	notifier *notify.Notifier  // optional
	locks    *Locks
	logger   *slog.Logger
}

// NewAdminService creates an AdminService. bus and notifier may be nil.
func NewAdminService(
	store Ledger,
	roles domain.RoleRegistry,
	pause domain.PauseSwitch,
	payouts domain.PayoutSender,
	bus domain.SignalBus,
	notifier *notify.Notifier,
	locks *Locks,
	logger *slog.Logger,
) *AdminService {
	return &AdminService{
		store:    store,
		roles:    roles,
		pause:    pause,
		payouts:  payouts,
		bus:      bus,
		notifier: notifier,
		locks:    locks,
		logger:   logger.With(slog.String("component", "admin_service")),
	}
}

// ListConfigs returns every config variant, index order.
func (s *AdminService) ListConfigs(ctx context.Context) ([]domain.MarketConfig, error) {
	configs, err := s.store.ListConfigs(ctx)
	if err != nil {
		return nil, fmt.Errorf("admin_service: list configs: %w", err)
	}
	return configs, nil
}

// AddConfig appends a validated config variant to the registry and returns
// its index.
func (s *AdminService) AddConfig(ctx context.Context, actor common.Address, c domain.MarketConfig) (int, error) {
	wrap := func(err error) (int, error) {
		return 0, fmt.Errorf("admin_service: add config: %w", err)
	}

	if err := s.gate(ctx, actor); err != nil {
		return wrap(err)
	}
	if err := c.Validate(); err != nil {
		return wrap(err)
	}

	ev := newEvent(domain.EventConfigAdded, 0, actor, map[string]any{
		"initial_liquidity": c.InitialLiquidity.String(),
		"initial_votes":     c.InitialVotes,
		"base_price":        c.BasePrice.String(),
	})
	index, err := s.store.AddConfig(ctx, c, ev)
	if err != nil {
		return wrap(err)
	}

	s.logger.InfoContext(ctx, "market config added",
		slog.Int("index", index),
		slog.String("actor", actor.Hex()),
	)
	return index, nil
}

// RemoveConfig swap-removes the config at index: the last config moves into
// the vacated slot, so indices above it are not renumbered but the removed
// index is reused. The sole remaining config cannot be removed.
func (s *AdminService) RemoveConfig(ctx context.Context, actor common.Address, index int) (domain.MarketConfig, error) {
	wrap := func(err error) (domain.MarketConfig, error) {
		return domain.MarketConfig{}, fmt.Errorf("admin_service: remove config %d: %w", index, err)
	}

	if err := s.gate(ctx, actor); err != nil {
		return wrap(err)
	}

	ev := newEvent(domain.EventConfigRemoved, 0, actor, map[string]any{"index": index})
	removed, err := s.store.RemoveConfig(ctx, index, ev)
	if err != nil {
		return wrap(err)
	}

	s.logger.InfoContext(ctx, "market config removed",
		slog.Int("index", index),
		slog.String("actor", actor.Hex()),
	)
	return removed, nil
}

// GetFees returns the current fee parameters.
func (s *AdminService) GetFees(ctx context.Context) (domain.FeeConfig, error) {
	fees, err := s.store.GetFees(ctx)
	if err != nil {
		return domain.FeeConfig{}, fmt.Errorf("admin_service: get fees: %w", err)
	}
	return fees, nil
}

// UpdateFees replaces the process-wide fee parameters. Each component is
// capped at the protocol maximum.
func (s *AdminService) UpdateFees(ctx context.Context, actor common.Address, f domain.FeeConfig) error {
	wrap := func(err error) error {
		return fmt.Errorf("admin_service: update fees: %w", err)
	}

	if err := s.gate(ctx, actor); err != nil {
		return wrap(err)
	}
	if err := f.Validate(); err != nil {
		return wrap(err)
	}
	f.UpdatedAt = time.Now().UTC()

	ev := newEvent(domain.EventFeesUpdated, 0, actor, map[string]any{
		"entry_fee_bps":        f.EntryFeeBps,
		"exit_fee_bps":         f.ExitFeeBps,
		"donation_fee_bps":     f.DonationFeeBps,
		"protocol_fee_address": f.ProtocolFeeAddress.Hex(),
	})
	if err := s.store.UpdateFees(ctx, f, ev); err != nil {
		return wrap(err)
	}

	if s.notifier != nil {
		_ = s.notifier.Notify(ctx, string(domain.EventFeesUpdated),
			"Fee parameters changed",
			fmt.Sprintf("entry %dbp, exit %dbp, donation %dbp", f.EntryFeeBps, f.ExitFeeBps, f.DonationFeeBps),
		)
	}
	s.logger.InfoContext(ctx, "fees updated",
		slog.Int("entry_bps", int(f.EntryFeeBps)),
		slog.Int("exit_bps", int(f.ExitFeeBps)),
		slog.Int("donation_bps", int(f.DonationFeeBps)),
		slog.String("actor", actor.Hex()),
	)
	return nil
}

// SetAllowListed grants or revokes self-service market creation for a profile.
func (s *AdminService) SetAllowListed(ctx context.Context, actor common.Address, profileID uint64, allowed bool) error {
	wrap := func(err error) error {
		return fmt.Errorf("admin_service: allowlist %d: %w", profileID, err)
	}

	if err := s.gate(ctx, actor); err != nil {
		return wrap(err)
	}

	ev := newEvent(domain.EventAllowListUpdated, profileID, actor, map[string]any{
		"profile_id": profileID,
		"allowed":    allowed,
	})
	if err := s.store.SetAllowListed(ctx, profileID, allowed, ev); err != nil {
		return wrap(err)
	}

	s.logger.InfoContext(ctx, "allowlist updated",
		slog.Uint64("profile_id", profileID),
		slog.Bool("allowed", allowed),
	)
	return nil
}

// SetAllowListEnforced toggles allow-list enforcement globally. With
// enforcement off, any active profile may self-create a market.
func (s *AdminService) SetAllowListEnforced(ctx context.Context, actor common.Address, enforced bool) error {
	wrap := func(err error) error {
		return fmt.Errorf("admin_service: allowlist enforcement: %w", err)
	}

	if err := s.gate(ctx, actor); err != nil {
		return wrap(err)
	}

	ev := newEvent(domain.EventAllowListUpdated, 0, actor, map[string]any{"enforced": enforced})
	if err := s.store.SetAllowListEnforced(ctx, enforced, ev); err != nil {
		return wrap(err)
	}

	s.logger.InfoContext(ctx, "allowlist enforcement toggled",
		slog.Bool("enforced", enforced),
	)
	return nil
}

// Graduate freezes a market permanently. Only the graduation role holder may
// call it; a graduated market rejects all further trades.
func (s *AdminService) Graduate(ctx context.Context, actor common.Address, profileID uint64) error {
	wrap := func(err error) error {
		return fmt.Errorf("admin_service: graduate %d: %w", profileID, err)
	}

	if err := checkPaused(ctx, s.pause); err != nil {
		return wrap(err)
	}
	if err := requireRole(ctx, s.roles, domain.RoleGraduator, actor); err != nil {
		return wrap(err)
	}
	unlock, err := s.locks.LockProfile(ctx, profileID)
	if err != nil {
		return wrap(err)
	}
	defer unlock()

	m, err := s.store.GetMarket(ctx, profileID)
	if err != nil {
		return wrap(err)
	}
	if m.Graduated {
		return wrap(domain.ErrMarketGraduated)
	}

	m.Graduated = true
	m.UpdatedAt = time.Now().UTC()

	ev := newEvent(domain.EventMarketGraduated, profileID, actor, map[string]any{
		"funds": m.Funds.String(),
	})
	if err := s.store.UpdateMarket(ctx, m, ev); err != nil {
		return wrap(err)
	}

	if s.bus != nil {
		if pubErr := s.bus.Publish(ctx, ChannelMarketEvents, eventFrame(ev)); pubErr != nil {
			s.logger.WarnContext(ctx, "event publish failed", slog.String("error", pubErr.Error()))
		}
	}
	if s.notifier != nil {
		_ = s.notifier.Notify(ctx, string(domain.EventMarketGraduated),
			"Market graduated",
			fmt.Sprintf("Profile %d's market is frozen with %s wei in funds.", profileID, m.Funds),
		)
	}
	s.logger.InfoContext(ctx, "market graduated",
		slog.Uint64("profile_id", profileID),
		slog.String("funds_wei", m.Funds.String()),
	)
	return nil
}

// WithdrawGraduated drains a graduated market's funds to the caller, who must
// hold the graduation role. It works once: the drained market holds zero.
func (s *AdminService) WithdrawGraduated(ctx context.Context, actor common.Address, profileID uint64) (*big.Int, error) {
	wrap := func(err error) (*big.Int, error) {
		return nil, fmt.Errorf("admin_service: withdraw graduated %d: %w", profileID, err)
	}

	if err := checkPaused(ctx, s.pause); err != nil {
		return wrap(err)
	}
	if err := requireRole(ctx, s.roles, domain.RoleGraduator, actor); err != nil {
		return wrap(err)
	}
	unlock, err := s.locks.LockProfile(ctx, profileID)
	if err != nil {
		return wrap(err)
	}
	defer unlock()

	m, err := s.store.GetMarket(ctx, profileID)
	if err != nil {
		return wrap(err)
	}
	if !m.Graduated {
		return wrap(domain.ErrNotGraduated)
	}
	if m.Funds.Sign() == 0 {
		return wrap(domain.ErrNoFundsToWithdraw)
	}

	amount := new(big.Int).Set(m.Funds)
	if err := s.payouts.Send(ctx, actor, amount); err != nil {
		return wrap(err)
	}

	m.Funds = new(big.Int)
	m.UpdatedAt = time.Now().UTC()

	ev := newEvent(domain.EventGraduatedWithdrawal, profileID, actor, map[string]any{
		"amount": amount.String(),
	})
	if err := s.store.UpdateMarket(ctx, m, ev); err != nil {
		return wrap(err)
	}

	if s.bus != nil {
		if pubErr := s.bus.Publish(ctx, ChannelMarketEvents, eventFrame(ev)); pubErr != nil {
			s.logger.WarnContext(ctx, "event publish failed", slog.String("error", pubErr.Error()))
		}
	}
	if s.notifier != nil {
		_ = s.notifier.Notify(ctx, string(domain.EventGraduatedWithdrawal),
			"Graduated funds withdrawn",
			fmt.Sprintf("Profile %d: %s wei drained.", profileID, amount),
		)
	}
	s.logger.InfoContext(ctx, "graduated funds withdrawn",
		slog.Uint64("profile_id", profileID),
		slog.String("amount_wei", amount.String()),
	)
	return amount, nil
}

// gate applies the common admin preconditions: pause switch, then role check.
func (s *AdminService) gate(ctx context.Context, actor common.Address) error {
	if err := checkPaused(ctx, s.pause); err != nil {
		return err
	}
	return requireRole(ctx, s.roles, domain.RoleAdmin, actor)
}
