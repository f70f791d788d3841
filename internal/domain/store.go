package domain

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// ListOpts provides pagination for list queries.
type ListOpts struct {
	Limit  int
	Offset int
}

// EscrowCredit is a donation-fee credit staged as part of a trade commit.
type EscrowCredit struct {
	Recipient common.Address
	Amount    *big.Int
}

// TradeCommit bundles every write produced by one buy or sell so the backing
// store can apply them atomically: the post-trade market snapshot, the
// participant's post-trade balance, the participant-set insertion, the
// optional donation escrow credit, and the durable event record. A commit
// with any part failing must leave no partial effect.
type TradeCommit struct {
	Market      Market
	Balance     VoteBalance
	Participant common.Address
	Escrow      *EscrowCredit
	Event       MarketEvent
}

// MarketReader provides read access to per-profile market state.
type MarketReader interface {
	GetMarket(ctx context.Context, profileID uint64) (Market, error)
	ListMarkets(ctx context.Context, opts ListOpts) ([]Market, error)
	CountMarkets(ctx context.Context) (int64, error)
}

// ConfigReader provides read access to the market-config registry.
// Indices are not stable across removals: removing index i moves the last
// config into slot i.
type ConfigReader interface {
	GetConfig(ctx context.Context, index int) (MarketConfig, error)
	ListConfigs(ctx context.Context) ([]MarketConfig, error)
}

// BalanceReader provides read access to participant vote balances.
// A missing balance reads as zero, not ErrNotFound.
type BalanceReader interface {
	GetBalance(ctx context.Context, profileID uint64, participant common.Address) (VoteBalance, error)
}

// ParticipantReader provides read access to the append-only participant set.
type ParticipantReader interface {
	ListParticipants(ctx context.Context, profileID uint64, opts ListOpts) ([]common.Address, error)
	CountParticipants(ctx context.Context, profileID uint64) (int64, error)
}

// EscrowReader provides read access to donation escrow state.
type EscrowReader interface {
	// EscrowBalance returns the accumulated, not-yet-withdrawn balance for a
	// recipient. A recipient with no credits reads as zero.
	EscrowBalance(ctx context.Context, recipient common.Address) (*big.Int, error)
	// DonationRecipient returns the current recipient for a profile's market.
	DonationRecipient(ctx context.Context, profileID uint64) (common.Address, error)
}

// FeeReader provides read access to the process-wide fee parameters.
type FeeReader interface {
	GetFees(ctx context.Context) (FeeConfig, error)
}

// AllowListReader provides read access to the creation allow-list.
type AllowListReader interface {
	IsAllowListed(ctx context.Context, profileID uint64) (bool, error)
	AllowListEnforced(ctx context.Context) (bool, error)
}

// EventReader provides read access to the durable event log.
type EventReader interface {
	ListEvents(ctx context.Context, profileID uint64, opts ListOpts) ([]MarketEvent, error)
	// ListEventsBefore returns events created strictly before the cutoff,
	// oldest first. Used by the cold-storage archiver.
	ListEventsBefore(ctx context.Context, before time.Time) ([]MarketEvent, error)
	// DeleteEventsBefore prunes events created strictly before the cutoff and
	// returns the number removed.
	DeleteEventsBefore(ctx context.Context, before time.Time) (int64, error)
}

// LedgerStore is the single write surface of the engine. Every method applies
// its state change and the accompanying event record atomically.
type LedgerStore interface {
	// CreateMarket inserts a new market and points its donation recipient at
	// the owning profile's controlling address; ErrAlreadyExists when the
	// profile already has one.
	CreateMarket(ctx context.Context, m Market, recipient common.Address, ev MarketEvent) error
	// UpdateMarket overwrites an existing market's mutable fields (votes,
	// funds, graduated flag); ErrNotFound when absent.
	UpdateMarket(ctx context.Context, m Market, ev MarketEvent) error
	// Trade applies a full TradeCommit.
	Trade(ctx context.Context, c TradeCommit) error
	// SetDonationRecipient repoints a market's donation recipient. Escrow
	// already accumulated for the previous recipient is not moved.
	SetDonationRecipient(ctx context.Context, profileID uint64, recipient common.Address, ev MarketEvent) error
	// DrainEscrow zeroes the recipient's escrow. It fails when the current
	// balance does not equal amount (the caller read a stale balance).
	DrainEscrow(ctx context.Context, recipient common.Address, amount *big.Int, ev MarketEvent) error
	// AddConfig appends a config variant and returns its index.
	AddConfig(ctx context.Context, c MarketConfig, ev MarketEvent) (int, error)
	// RemoveConfig swap-removes the config at index and returns the removed
	// variant. Removing the sole remaining config fails with ErrInvalidConfigIndex.
	RemoveConfig(ctx context.Context, index int, ev MarketEvent) (MarketConfig, error)
	// UpdateFees replaces the process-wide fee parameters.
	UpdateFees(ctx context.Context, f FeeConfig, ev MarketEvent) error
	// SetAllowListed grants or revokes self-service creation for a profile.
	SetAllowListed(ctx context.Context, profileID uint64, allowed bool, ev MarketEvent) error
	// SetAllowListEnforced toggles allow-list enforcement globally.
	SetAllowListEnforced(ctx context.Context, enforced bool, ev MarketEvent) error
}
