package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Outcome identifies one side of a two-outcome reputation market.
type Outcome uint8

const (
	OutcomeDistrust Outcome = 0
	OutcomeTrust    Outcome = 1
)

// Valid reports whether o is one of the two defined outcomes.
func (o Outcome) Valid() bool {
	return o == OutcomeTrust || o == OutcomeDistrust
}

// Opposite returns the other outcome.
func (o Outcome) Opposite() Outcome {
	if o == OutcomeTrust {
		return OutcomeDistrust
	}
	return OutcomeTrust
}

func (o Outcome) String() string {
	if o == OutcomeTrust {
		return "trust"
	}
	return "distrust"
}

// ParseOutcome converts the wire representation ("trust"/"distrust") to an
// Outcome. It returns ErrInvalidOutcome for anything else.
func ParseOutcome(s string) (Outcome, error) {
	switch s {
	case "trust":
		return OutcomeTrust, nil
	case "distrust":
		return OutcomeDistrust, nil
	default:
		return 0, ErrInvalidOutcome
	}
}

// MinimumBasePrice is the smallest base price (wei) a market config may carry.
// 0.0001 native units.
var MinimumBasePrice = big.NewInt(100_000_000_000_000)

// DefaultBasePrice is the base price (wei) of the seed config: 0.01 native units.
var DefaultBasePrice = big.NewInt(10_000_000_000_000_000)

// MarketConfig is one variant in the index-addressed config registry.
// Markets copy BasePrice from their config at creation time.
type MarketConfig struct {
	Index            int
	InitialLiquidity *big.Int
	InitialVotes     uint64
	BasePrice        *big.Int
}

// Validate enforces the registry invariants: initial liquidity must cover at
// least two base-price units, at least one vote must seed each outcome, and
// the base price must not fall below the protocol minimum.
func (c MarketConfig) Validate() error {
	if c.InitialLiquidity == nil || c.BasePrice == nil {
		return ErrInvalidConfig
	}
	if c.BasePrice.Cmp(MinimumBasePrice) < 0 {
		return ErrInvalidConfig
	}
	minLiquidity := new(big.Int).Lsh(c.BasePrice, 1) // 2 * basePrice
	if c.InitialLiquidity.Cmp(minLiquidity) < 0 {
		return ErrInvalidConfig
	}
	if c.InitialVotes == 0 {
		return ErrInvalidConfig
	}
	return nil
}

// Market is the per-profile vote/funds ledger backing a reputation market.
type Market struct {
	ProfileID     uint64
	TrustVotes    uint64
	DistrustVotes uint64
	BasePrice     *big.Int
	Funds         *big.Int
	Graduated     bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Votes returns the vote count for the given outcome.
func (m Market) Votes(o Outcome) uint64 {
	if o == OutcomeTrust {
		return m.TrustVotes
	}
	return m.DistrustVotes
}

// TotalVotes returns the combined vote count across both outcomes.
func (m Market) TotalVotes() uint64 {
	return m.TrustVotes + m.DistrustVotes
}

// Clone returns a deep copy of the market. The trade pipeline stages all
// mutations on a clone and commits it only on full success.
func (m Market) Clone() Market {
	c := m
	if m.BasePrice != nil {
		c.BasePrice = new(big.Int).Set(m.BasePrice)
	}
	if m.Funds != nil {
		c.Funds = new(big.Int).Set(m.Funds)
	}
	return c
}

// VoteBalance tracks the votes a participant owns in one profile's market.
type VoteBalance struct {
	ProfileID     uint64
	Participant   common.Address
	TrustVotes    uint64
	DistrustVotes uint64
	UpdatedAt     time.Time
}

// Votes returns the owned count for the given outcome.
func (b VoteBalance) Votes(o Outcome) uint64 {
	if o == OutcomeTrust {
		return b.TrustVotes
	}
	return b.DistrustVotes
}

// SetVotes overwrites the owned count for the given outcome.
func (b *VoteBalance) SetVotes(o Outcome, n uint64) {
	if o == OutcomeTrust {
		b.TrustVotes = n
	} else {
		b.DistrustVotes = n
	}
}
