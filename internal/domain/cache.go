package domain

import (
	"context"
	"math/big"
	"time"
)

// PricePoint is a cached per-outcome price snapshot for one market.
type PricePoint struct {
	TrustPrice    *big.Int
	DistrustPrice *big.Int
	UpdatedAt     time.Time
}

// PriceCache provides fast access to the latest per-market prices. Cache
// writes are best-effort: trading never fails on a cache error.
type PriceCache interface {
	SetPrice(ctx context.Context, profileID uint64, p PricePoint) error
	GetPrice(ctx context.Context, profileID uint64) (PricePoint, error)
	GetPrices(ctx context.Context, profileIDs []uint64) (map[uint64]PricePoint, error)
}

// RateLimiter provides distributed rate limiting for the API surface.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Wait(ctx context.Context, key string) error
}

// LockManager provides distributed locking. The engine acquires a per-profile
// lock around every read-compute-commit sequence when running with more than
// one replica; in-process serialization alone is not enough then.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// StreamMessage represents a single entry from a durable stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub and durable streams for market-event fan-out.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}
