package service

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/reputenet/trustmarket/internal/domain"
)

// DonationService manages donation recipients and pull-based escrow
// withdrawal.
type DonationService struct {
	store    Ledger
	identity domain.IdentityRegistry
	pause    domain.PauseSwitch
	payouts  domain.PayoutSender
	bus      domain.SignalBus // optional
	locks    *Locks
	logger   *slog.Logger
}

// NewDonationService creates a DonationService. bus may be nil.
func NewDonationService(
	store Ledger,
	identity domain.IdentityRegistry,
	pause domain.PauseSwitch,
	payouts domain.PayoutSender,
	bus domain.SignalBus,
	locks *Locks,
	logger *slog.Logger,
) *DonationService {
	return &DonationService{
		store:    store,
		identity: identity,
		pause:    pause,
		payouts:  payouts,
		bus:      bus,
		locks:    locks,
		logger:   logger.With(slog.String("component", "donation_service")),
	}
}

// SetRecipient repoints a market's donation recipient. Only the address
// controlling the profile may do this; escrow already accumulated for the
// previous recipient stays with that recipient.
func (s *DonationService) SetRecipient(ctx context.Context, actor common.Address, profileID uint64, recipient common.Address) error {
	wrap := func(err error) error {
		return fmt.Errorf("donation_service: set recipient %d: %w", profileID, err)
	}

	if err := checkPaused(ctx, s.pause); err != nil {
		return wrap(err)
	}
	if recipient == (common.Address{}) {
		return wrap(domain.ErrInvalidAmount)
	}

	unlock, err := s.locks.LockProfile(ctx, profileID)
	if err != nil {
		return wrap(err)
	}
	defer unlock()

	controlling, err := s.identity.ResolveControllingAddress(ctx, profileID)
	if err != nil {
		return wrap(err)
	}
	if actor != controlling {
		return wrap(fmt.Errorf("%s does not control profile %d: %w", actor.Hex(), profileID, domain.ErrUnauthorized))
	}

	previous, err := s.store.DonationRecipient(ctx, profileID)
	if err != nil {
		return wrap(err)
	}

	ev := newEvent(domain.EventRecipientUpdated, profileID, actor, map[string]any{
		"previous":  previous.Hex(),
		"recipient": recipient.Hex(),
	})
	if err := s.store.SetDonationRecipient(ctx, profileID, recipient, ev); err != nil {
		return wrap(err)
	}

	s.logger.InfoContext(ctx, "donation recipient updated",
		slog.Uint64("profile_id", profileID),
		slog.String("recipient", recipient.Hex()),
	)
	return nil
}

// EscrowBalance returns a recipient's accumulated, not-yet-withdrawn escrow.
func (s *DonationService) EscrowBalance(ctx context.Context, recipient common.Address) (*big.Int, error) {
	bal, err := s.store.EscrowBalance(ctx, recipient)
	if err != nil {
		return nil, fmt.Errorf("donation_service: escrow %s: %w", recipient.Hex(), err)
	}
	return bal, nil
}

// Withdraw drains the caller's entire escrow balance to their address. The
// transfer happens before the escrow is zeroed; a failed transfer leaves the
// balance intact.
func (s *DonationService) Withdraw(ctx context.Context, actor common.Address) (*big.Int, error) {
	wrap := func(err error) (*big.Int, error) {
		return nil, fmt.Errorf("donation_service: withdraw %s: %w", actor.Hex(), err)
	}

	if err := checkPaused(ctx, s.pause); err != nil {
		return wrap(err)
	}
	unlock, err := s.locks.LockRecipient(ctx, actor)
	if err != nil {
		return wrap(err)
	}
	defer unlock()

	balance, err := s.store.EscrowBalance(ctx, actor)
	if err != nil {
		return wrap(err)
	}
	if balance.Sign() == 0 {
		return wrap(domain.ErrNoFundsToWithdraw)
	}

	if err := s.payouts.Send(ctx, actor, balance); err != nil {
		return wrap(err)
	}

	ev := newEvent(domain.EventDonationWithdrawn, 0, actor, map[string]any{
		"recipient": actor.Hex(),
		"amount":    balance.String(),
	})
	if err := s.store.DrainEscrow(ctx, actor, balance, ev); err != nil {
		return wrap(err)
	}

	if s.bus != nil {
		if pubErr := s.bus.Publish(ctx, ChannelMarketEvents, eventFrame(ev)); pubErr != nil {
			s.logger.WarnContext(ctx, "event publish failed",
				slog.String("error", pubErr.Error()),
			)
		}
	}
	s.logger.InfoContext(ctx, "donation escrow withdrawn",
		slog.String("recipient", actor.Hex()),
		slog.String("amount_wei", balance.String()),
	)
	return balance, nil
}
