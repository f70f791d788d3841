package domain

import "errors"

// Sentinel errors, grouped by the failure category they represent. Callers
// wrap these with fmt.Errorf("...: %w", ...) to attach identifying context
// (profile id, amounts, config index); handlers map them to HTTP statuses
// with errors.Is.
var (
	// Validation failures.
	ErrInvalidConfig      = errors.New("invalid market config")
	ErrInvalidConfigIndex = errors.New("invalid config index")
	ErrFeeExceedsMaximum  = errors.New("fee exceeds protocol maximum")
	ErrInvalidOutcome     = errors.New("invalid outcome")
	ErrInvalidAmount      = errors.New("invalid amount")

	// Authorization failures.
	ErrUnauthorized    = errors.New("unauthorized")
	ErrNotAllowListed  = errors.New("profile not allow-listed for market creation")
	ErrProfileNotFound = errors.New("profile not found or inactive")

	// State failures.
	ErrNotFound          = errors.New("not found")
	ErrAlreadyExists     = errors.New("already exists")
	ErrMarketGraduated   = errors.New("market graduated")
	ErrNotGraduated      = errors.New("market not graduated")
	ErrInsufficientVotes = errors.New("insufficient vote balance")
	ErrEnginePaused      = errors.New("market engine paused")

	// Economic failures.
	ErrInsufficientFunds     = errors.New("insufficient funds")
	ErrInsufficientLiquidity = errors.New("insufficient initial liquidity")
	ErrSlippageExceeded      = errors.New("slippage tolerance exceeded")
	ErrNoFundsToWithdraw     = errors.New("no funds to withdraw")
	ErrTradeTooLarge         = errors.New("trade exceeds per-call vote limit")

	// Transfer failures.
	ErrTransferFailed = errors.New("payout transfer failed")

	// Infrastructure.
	ErrRateLimited = errors.New("rate limited")
	ErrLockHeld    = errors.New("lock already held")
)
