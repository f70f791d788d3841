package treasury

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/reputenet/trustmarket/internal/domain"
)

// Ledger is an in-process payout sender that records transfers instead of
// broadcasting them. Standalone mode and tests use it; FailFor injects
// transfer failures to exercise abort paths.
type Ledger struct {
	mu      sync.Mutex
	payouts map[common.Address]*big.Int
	fail    map[common.Address]error
	sends   []LedgerEntry
}

// LedgerEntry is one recorded transfer.
type LedgerEntry struct {
	To     common.Address
	Amount *big.Int
}

// NewLedger creates an empty recording sender.
func NewLedger() *Ledger {
	return &Ledger{
		payouts: make(map[common.Address]*big.Int),
		fail:    make(map[common.Address]error),
	}
}

// FailFor makes every Send to addr return err until cleared with a nil err.
func (l *Ledger) FailFor(addr common.Address, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err == nil {
		delete(l.fail, addr)
		return
	}
	l.fail[addr] = err
}

// Send records the transfer.
func (l *Ledger) Send(ctx context.Context, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return domain.ErrInvalidAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if err, ok := l.fail[to]; ok {
		return err
	}

	total, ok := l.payouts[to]
	if !ok {
		total = new(big.Int)
		l.payouts[to] = total
	}
	total.Add(total, amount)
	l.sends = append(l.sends, LedgerEntry{To: to, Amount: new(big.Int).Set(amount)})
	return nil
}

// PayoutsTo returns the total amount sent to addr.
func (l *Ledger) PayoutsTo(addr common.Address) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	total, ok := l.payouts[addr]
	if !ok {
		return new(big.Int)
	}
	return new(big.Int).Set(total)
}

// Sends returns a copy of every recorded transfer in order.
func (l *Ledger) Sends() []LedgerEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]LedgerEntry, len(l.sends))
	copy(out, l.sends)
	return out
}

var _ domain.PayoutSender = (*Ledger)(nil)
