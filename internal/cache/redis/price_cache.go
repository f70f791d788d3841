package redis

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/reputenet/trustmarket/internal/domain"
)

// PriceCache implements domain.PriceCache using Redis hashes. Each market's
// prices live at key "price:{profileID}" with fields "trust", "distrust"
// (wei, decimal strings) and "ts" (Unix nanosecond timestamp).
type PriceCache struct {
	rdb *redis.Client
}

// NewPriceCache creates a PriceCache backed by the given Client.
func NewPriceCache(c *Client) *PriceCache {
	return &PriceCache{rdb: c.Underlying()}
}

func priceKey(profileID uint64) string {
	return "price:" + strconv.FormatUint(profileID, 10)
}

// SetPrice stores the latest per-outcome prices for a market.
func (pc *PriceCache) SetPrice(ctx context.Context, profileID uint64, p domain.PricePoint) error {
	fields := map[string]interface{}{
		"trust":    p.TrustPrice.String(),
		"distrust": p.DistrustPrice.String(),
		"ts":       strconv.FormatInt(p.UpdatedAt.UnixNano(), 10),
	}
	if err := pc.rdb.HSet(ctx, priceKey(profileID), fields).Err(); err != nil {
		return fmt.Errorf("redis: set price %d: %w", profileID, err)
	}
	return nil
}

// GetPrice retrieves the cached prices for a market. It returns
// domain.ErrNotFound when the key does not exist.
func (pc *PriceCache) GetPrice(ctx context.Context, profileID uint64) (domain.PricePoint, error) {
	vals, err := pc.rdb.HGetAll(ctx, priceKey(profileID)).Result()
	if err != nil {
		return domain.PricePoint{}, fmt.Errorf("redis: get price %d: %w", profileID, err)
	}
	if len(vals) == 0 {
		return domain.PricePoint{}, domain.ErrNotFound
	}
	p, err := parsePricePoint(vals)
	if err != nil {
		return domain.PricePoint{}, fmt.Errorf("redis: get price %d: %w", profileID, err)
	}
	return p, nil
}

// GetPrices retrieves cached prices for multiple markets using a pipeline.
// Markets whose keys do not exist are silently omitted from the result map.
func (pc *PriceCache) GetPrices(ctx context.Context, profileIDs []uint64) (map[uint64]domain.PricePoint, error) {
	if len(profileIDs) == 0 {
		return map[uint64]domain.PricePoint{}, nil
	}

	pipe := pc.rdb.Pipeline()
	cmds := make(map[uint64]*redis.MapStringStringCmd, len(profileIDs))
	for _, id := range profileIDs {
		cmds[id] = pipe.HGetAll(ctx, priceKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis: get prices pipeline: %w", err)
	}

	result := make(map[uint64]domain.PricePoint, len(profileIDs))
	for id, cmd := range cmds {
		vals, err := cmd.Result()
		if err != nil || len(vals) == 0 {
			continue
		}
		p, err := parsePricePoint(vals)
		if err != nil {
			continue
		}
		result[id] = p
	}
	return result, nil
}

func parsePricePoint(vals map[string]string) (domain.PricePoint, error) {
	trust, ok := new(big.Int).SetString(vals["trust"], 10)
	if !ok {
		return domain.PricePoint{}, fmt.Errorf("malformed trust price %q", vals["trust"])
	}
	distrust, ok := new(big.Int).SetString(vals["distrust"], 10)
	if !ok {
		return domain.PricePoint{}, fmt.Errorf("malformed distrust price %q", vals["distrust"])
	}
	tsNano, err := strconv.ParseInt(vals["ts"], 10, 64)
	if err != nil {
		return domain.PricePoint{}, fmt.Errorf("malformed ts %q", vals["ts"])
	}
	return domain.PricePoint{
		TrustPrice:    trust,
		DistrustPrice: distrust,
		UpdatedAt:     time.Unix(0, tsNano),
	}, nil
}

// Compile-time interface check.
var _ domain.PriceCache = (*PriceCache)(nil)
