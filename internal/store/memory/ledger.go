// Package memory implements the domain store interfaces with in-process
// maps. It backs the test suite and the standalone development mode; the
// Postgres backend is the production ledger.
package memory

import (
	"context"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/reputenet/trustmarket/internal/domain"
)

type balanceKey struct {
	profileID   uint64
	participant common.Address
}

// Ledger holds every table of the engine under one mutex, which makes each
// write method trivially atomic.
type Ledger struct {
	mu sync.RWMutex

	markets      map[uint64]domain.Market
	configs      []domain.MarketConfig
	balances     map[balanceKey]domain.VoteBalance
	participants map[uint64][]common.Address
	members      map[balanceKey]bool
	escrow       map[common.Address]*big.Int
	recipients   map[uint64]common.Address
	fees         domain.FeeConfig
	allowed      map[uint64]bool
	enforced     bool
	events       []domain.MarketEvent
}

// NewLedger creates an empty ledger seeded with the given config registry
// and fee parameters.
func NewLedger(seed domain.MarketConfig, fees domain.FeeConfig) *Ledger {
	seed.Index = 0
	return &Ledger{
		markets:      make(map[uint64]domain.Market),
		configs:      []domain.MarketConfig{seed},
		balances:     make(map[balanceKey]domain.VoteBalance),
		participants: make(map[uint64][]common.Address),
		members:      make(map[balanceKey]bool),
		escrow:       make(map[common.Address]*big.Int),
		recipients:   make(map[uint64]common.Address),
		fees:         fees,
		allowed:      make(map[uint64]bool),
		enforced:     true,
	}
}

// --- MarketReader ---

func (l *Ledger) GetMarket(ctx context.Context, profileID uint64) (domain.Market, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	m, ok := l.markets[profileID]
	if !ok {
		return domain.Market{}, domain.ErrNotFound
	}
	return m.Clone(), nil
}

func (l *Ledger) ListMarkets(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	ids := make([]uint64, 0, len(l.markets))
	for id := range l.markets {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	return paginate(ids, opts, func(id uint64) domain.Market {
		return l.markets[id].Clone()
	}), nil
}

func (l *Ledger) CountMarkets(ctx context.Context) (int64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return int64(len(l.markets)), nil
}

// --- ConfigReader ---

func (l *Ledger) GetConfig(ctx context.Context, index int) (domain.MarketConfig, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if index < 0 || index >= len(l.configs) {
		return domain.MarketConfig{}, domain.ErrInvalidConfigIndex
	}
	return cloneConfig(l.configs[index]), nil
}

func (l *Ledger) ListConfigs(ctx context.Context) ([]domain.MarketConfig, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]domain.MarketConfig, len(l.configs))
	for i, c := range l.configs {
		out[i] = cloneConfig(c)
	}
	return out, nil
}

// --- BalanceReader ---

func (l *Ledger) GetBalance(ctx context.Context, profileID uint64, participant common.Address) (domain.VoteBalance, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	b, ok := l.balances[balanceKey{profileID, participant}]
	if !ok {
		return domain.VoteBalance{ProfileID: profileID, Participant: participant}, nil
	}
	return b, nil
}

// --- ParticipantReader ---

func (l *Ledger) ListParticipants(ctx context.Context, profileID uint64, opts domain.ListOpts) ([]common.Address, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return paginate(l.participants[profileID], opts, func(a common.Address) common.Address { return a }), nil
}

func (l *Ledger) CountParticipants(ctx context.Context, profileID uint64) (int64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return int64(len(l.participants[profileID])), nil
}

// --- EscrowReader ---

func (l *Ledger) EscrowBalance(ctx context.Context, recipient common.Address) (*big.Int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if b, ok := l.escrow[recipient]; ok {
		return new(big.Int).Set(b), nil
	}
	return new(big.Int), nil
}

func (l *Ledger) DonationRecipient(ctx context.Context, profileID uint64) (common.Address, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	r, ok := l.recipients[profileID]
	if !ok {
		return common.Address{}, domain.ErrNotFound
	}
	return r, nil
}

// --- FeeReader ---

func (l *Ledger) GetFees(ctx context.Context) (domain.FeeConfig, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.fees, nil
}

// --- AllowListReader ---

func (l *Ledger) IsAllowListed(ctx context.Context, profileID uint64) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.allowed[profileID], nil
}

func (l *Ledger) AllowListEnforced(ctx context.Context) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.enforced, nil
}

// --- EventReader ---

func (l *Ledger) ListEvents(ctx context.Context, profileID uint64, opts domain.ListOpts) ([]domain.MarketEvent, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var matched []domain.MarketEvent
	// Newest first, matching the Postgres backend's ordering.
	for i := len(l.events) - 1; i >= 0; i-- {
		if l.events[i].ProfileID == profileID {
			matched = append(matched, l.events[i])
		}
	}
	return paginate(matched, opts, func(ev domain.MarketEvent) domain.MarketEvent { return ev }), nil
}

func (l *Ledger) ListEventsBefore(ctx context.Context, before time.Time) ([]domain.MarketEvent, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []domain.MarketEvent
	for _, ev := range l.events {
		if ev.CreatedAt.Before(before) {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (l *Ledger) DeleteEventsBefore(ctx context.Context, before time.Time) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	kept := l.events[:0]
	var removed int64
	for _, ev := range l.events {
		if ev.CreatedAt.Before(before) {
			removed++
			continue
		}
		kept = append(kept, ev)
	}
	l.events = kept
	return removed, nil
}

// --- LedgerStore ---

func (l *Ledger) CreateMarket(ctx context.Context, m domain.Market, recipient common.Address, ev domain.MarketEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.markets[m.ProfileID]; ok {
		return domain.ErrAlreadyExists
	}
	l.markets[m.ProfileID] = m.Clone()
	l.recipients[m.ProfileID] = recipient
	l.events = append(l.events, ev)
	return nil
}

func (l *Ledger) UpdateMarket(ctx context.Context, m domain.Market, ev domain.MarketEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.markets[m.ProfileID]; !ok {
		return domain.ErrNotFound
	}
	l.markets[m.ProfileID] = m.Clone()
	l.events = append(l.events, ev)
	return nil
}

func (l *Ledger) Trade(ctx context.Context, c domain.TradeCommit) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.markets[c.Market.ProfileID]; !ok {
		return domain.ErrNotFound
	}

	l.markets[c.Market.ProfileID] = c.Market.Clone()
	l.balances[balanceKey{c.Balance.ProfileID, c.Balance.Participant}] = c.Balance

	mk := balanceKey{c.Market.ProfileID, c.Participant}
	if !l.members[mk] {
		l.members[mk] = true
		l.participants[c.Market.ProfileID] = append(l.participants[c.Market.ProfileID], c.Participant)
	}

	if c.Escrow != nil && c.Escrow.Amount.Sign() > 0 {
		cur, ok := l.escrow[c.Escrow.Recipient]
		if !ok {
			cur = new(big.Int)
		}
		l.escrow[c.Escrow.Recipient] = new(big.Int).Add(cur, c.Escrow.Amount)
	}

	l.events = append(l.events, c.Event)
	return nil
}

func (l *Ledger) SetDonationRecipient(ctx context.Context, profileID uint64, recipient common.Address, ev domain.MarketEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.markets[profileID]; !ok {
		return domain.ErrNotFound
	}
	l.recipients[profileID] = recipient
	l.events = append(l.events, ev)
	return nil
}

func (l *Ledger) DrainEscrow(ctx context.Context, recipient common.Address, amount *big.Int, ev domain.MarketEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	cur, ok := l.escrow[recipient]
	if !ok || cur.Sign() == 0 {
		return domain.ErrNoFundsToWithdraw
	}
	if cur.Cmp(amount) != 0 {
		return domain.ErrNoFundsToWithdraw
	}
	l.escrow[recipient] = new(big.Int)
	l.events = append(l.events, ev)
	return nil
}

func (l *Ledger) AddConfig(ctx context.Context, c domain.MarketConfig, ev domain.MarketEvent) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	c.Index = len(l.configs)
	l.configs = append(l.configs, cloneConfig(c))
	l.events = append(l.events, ev)
	return c.Index, nil
}

func (l *Ledger) RemoveConfig(ctx context.Context, index int, ev domain.MarketEvent) (domain.MarketConfig, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if index < 0 || index >= len(l.configs) {
		return domain.MarketConfig{}, domain.ErrInvalidConfigIndex
	}
	if len(l.configs) == 1 {
		return domain.MarketConfig{}, domain.ErrInvalidConfigIndex
	}

	removed := l.configs[index]
	last := len(l.configs) - 1
	// Swap-with-last compaction: indices are not stable across removals.
	l.configs[index] = l.configs[last]
	l.configs[index].Index = index
	l.configs = l.configs[:last]
	l.events = append(l.events, ev)
	return cloneConfig(removed), nil
}

func (l *Ledger) UpdateFees(ctx context.Context, f domain.FeeConfig, ev domain.MarketEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.fees = f
	l.events = append(l.events, ev)
	return nil
}

func (l *Ledger) SetAllowListed(ctx context.Context, profileID uint64, allowed bool, ev domain.MarketEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.allowed[profileID] = allowed
	l.events = append(l.events, ev)
	return nil
}

func (l *Ledger) SetAllowListEnforced(ctx context.Context, enforced bool, ev domain.MarketEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.enforced = enforced
	l.events = append(l.events, ev)
	return nil
}

// paginate applies ListOpts to a slice, mapping each element through fn.
func paginate[T, U any](items []T, opts domain.ListOpts, fn func(T) U) []U {
	start := opts.Offset
	if start > len(items) {
		start = len(items)
	}
	end := len(items)
	if opts.Limit > 0 && start+opts.Limit < end {
		end = start + opts.Limit
	}
	out := make([]U, 0, end-start)
	for _, it := range items[start:end] {
		out = append(out, fn(it))
	}
	return out
}

func cloneConfig(c domain.MarketConfig) domain.MarketConfig {
	out := c
	if c.InitialLiquidity != nil {
		out.InitialLiquidity = new(big.Int).Set(c.InitialLiquidity)
	}
	if c.BasePrice != nil {
		out.BasePrice = new(big.Int).Set(c.BasePrice)
	}
	return out
}

// Compile-time interface checks.
var (
	_ domain.LedgerStore       = (*Ledger)(nil)
	_ domain.MarketReader      = (*Ledger)(nil)
	_ domain.ConfigReader      = (*Ledger)(nil)
	_ domain.BalanceReader     = (*Ledger)(nil)
	_ domain.ParticipantReader = (*Ledger)(nil)
	_ domain.EscrowReader      = (*Ledger)(nil)
	_ domain.FeeReader         = (*Ledger)(nil)
	_ domain.AllowListReader   = (*Ledger)(nil)
	_ domain.EventReader       = (*Ledger)(nil)
)
