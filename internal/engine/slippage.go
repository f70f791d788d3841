package engine

import (
	"fmt"
	"math/big"

	"github.com/reputenet/trustmarket/internal/domain"
)

// CheckBuySlippage rejects a buy whose acquired vote count fell below
// expected * (10000 - slippageBps) / 10000. Acquiring more votes than
// expected never fails.
func CheckBuySlippage(expected, actual uint64, slippageBps uint16) error {
	if actual >= expected {
		return nil
	}
	// The bound is computed in big.Int: expected * 10000 wraps uint64 for
	// caller-supplied counts above ^uint64(0)/10000, which would zero the
	// minimum and wave the trade through.
	min := new(big.Int).SetUint64(expected)
	min.Mul(min, big.NewInt(domain.BasisPointsDivisor-int64(slippageBps)))
	min.Div(min, big.NewInt(domain.BasisPointsDivisor))
	if new(big.Int).SetUint64(actual).Cmp(min) < 0 {
		return fmt.Errorf("expected %d votes (tolerance %dbp, minimum %s), got %d: %w",
			expected, slippageBps, min, actual, domain.ErrSlippageExceeded)
	}
	return nil
}

// CheckSellSlippage applies the analogous check to net sale proceeds.
func CheckSellSlippage(expected, actual *big.Int, slippageBps uint16) error {
	if expected == nil || expected.Sign() <= 0 {
		return nil
	}
	if actual.Cmp(expected) >= 0 {
		return nil
	}
	min := new(big.Int).Mul(expected, big.NewInt(domain.BasisPointsDivisor-int64(slippageBps)))
	min.Div(min, big.NewInt(domain.BasisPointsDivisor))
	if actual.Cmp(min) < 0 {
		return fmt.Errorf("expected proceeds %s (tolerance %dbp, minimum %s), got %s: %w",
			expected, slippageBps, min, actual, domain.ErrSlippageExceeded)
	}
	return nil
}
