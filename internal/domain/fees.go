package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

const (
	// BasisPointsDivisor is the denominator for basis-point fractions.
	BasisPointsDivisor = 10_000

	// MaxFeeBps caps each fee parameter independently at 10%.
	MaxFeeBps = 1_000
)

// FeeConfig holds the process-wide fee parameters. It is loaded once per
// operation and passed explicitly into the pricing pipeline so the engine
// stays free of ambient state.
type FeeConfig struct {
	EntryFeeBps        uint16
	ExitFeeBps         uint16
	DonationFeeBps     uint16
	ProtocolFeeAddress common.Address
	UpdatedAt          time.Time
}

// Validate rejects any fee above the protocol ceiling.
func (f FeeConfig) Validate() error {
	if f.EntryFeeBps > MaxFeeBps || f.ExitFeeBps > MaxFeeBps || f.DonationFeeBps > MaxFeeBps {
		return ErrFeeExceedsMaximum
	}
	return nil
}

// FeeOnAmount computes amount * bps / 10000 with truncating division.
func FeeOnAmount(amount *big.Int, bps uint16) *big.Int {
	if amount == nil || amount.Sign() <= 0 || bps == 0 {
		return new(big.Int)
	}
	fee := new(big.Int).Mul(amount, big.NewInt(int64(bps)))
	return fee.Div(fee, big.NewInt(BasisPointsDivisor))
}
