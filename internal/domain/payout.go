package domain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// PayoutSender delivers native-currency payouts: protocol fees, trade
// refunds, sale proceeds, donation withdrawals, and graduated-fund drains.
// A delivery failure surfaces as ErrTransferFailed and aborts the whole
// operation before any state commit.
type PayoutSender interface {
	Send(ctx context.Context, to common.Address, amount *big.Int) error
}
