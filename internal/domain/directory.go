package domain

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// Role names resolved through the protocol directory. The indirection keeps
// privileged addresses rotatable without touching engine state.
const (
	RoleAdmin     = "marketAdmin"
	RoleGraduator = "graduationWithdrawal"
)

// PauseTargetMarketEngine is the name this engine is registered under with
// the protocol pause switch.
const PauseTargetMarketEngine = "reputationMarket"

// IdentityRegistry is the narrow query surface the engine consumes from the
// protocol's profile registry.
type IdentityRegistry interface {
	// IsActiveProfile reports whether the profile exists and is active.
	IsActiveProfile(ctx context.Context, profileID uint64) (bool, error)
	// ResolveControllingAddress returns the address controlling a profile.
	ResolveControllingAddress(ctx context.Context, profileID uint64) (common.Address, error)
}

// RoleRegistry resolves role names to their current holder address.
type RoleRegistry interface {
	AddressForRole(ctx context.Context, role string) (common.Address, error)
}

// PauseSwitch is the protocol-wide kill switch. Every mutating engine call
// checks it first and aborts with ErrEnginePaused while the target is paused.
type PauseSwitch interface {
	IsPaused(ctx context.Context, target string) (bool, error)
}
