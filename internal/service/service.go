// Package service implements the engine's operations on top of the domain
// stores: market lifecycle, trading, donations, and administration. Services
// hold no market state of their own; every mutation is staged against a
// snapshot and committed through a single ledger-store call.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/reputenet/trustmarket/internal/domain"
)

// Ledger is the full store surface the services operate on. Both the memory
// and the Postgres backends satisfy it.
type Ledger interface {
	domain.LedgerStore
	domain.MarketReader
	domain.ConfigReader
	domain.BalanceReader
	domain.ParticipantReader
	domain.EscrowReader
	domain.FeeReader
	domain.AllowListReader
	domain.EventReader
}

// lockStripes bounds the in-process lock table. Collisions only cost
// serialization between unrelated profiles, never correctness.
const lockStripes = 128

// distributedLockTTL caps how long a crashed replica can block a profile.
const distributedLockTTL = 10 * time.Second

// Locks serializes every read-compute-commit sequence: a striped in-process
// mutex table, optionally layered with a distributed lock manager when more
// than one replica runs against the same ledger.
type Locks struct {
	stripes [lockStripes]sync.Mutex
	dist    domain.LockManager
}

// NewLocks creates a lock table. dist may be nil for single-replica
// deployments; the in-process stripes alone are sufficient then.
func NewLocks(dist domain.LockManager) *Locks {
	return &Locks{dist: dist}
}

// LockProfile serializes operations on one profile's market. The returned
// function releases both lock layers.
func (l *Locks) LockProfile(ctx context.Context, profileID uint64) (func(), error) {
	return l.acquire(ctx, profileID, fmt.Sprintf("profile:%d", profileID))
}

// LockRecipient serializes escrow drains per recipient address.
func (l *Locks) LockRecipient(ctx context.Context, recipient common.Address) (func(), error) {
	h := fnv.New64a()
	h.Write(recipient.Bytes())
	return l.acquire(ctx, h.Sum64(), "escrow:"+recipient.Hex())
}

func (l *Locks) acquire(ctx context.Context, stripe uint64, distKey string) (func(), error) {
	m := &l.stripes[stripe%lockStripes]
	m.Lock()
	if l.dist == nil {
		return m.Unlock, nil
	}
	unlockDist, err := l.dist.Acquire(ctx, distKey, distributedLockTTL)
	if err != nil {
		m.Unlock()
		return nil, fmt.Errorf("acquire lock %s: %w", distKey, err)
	}
	return func() {
		unlockDist()
		m.Unlock()
	}, nil
}

// newEvent builds a durable event record. Payload marshalling cannot fail for
// the value types used here; a nil payload is stored as NULL.
func newEvent(t domain.EventType, profileID uint64, actor common.Address, payload any) domain.MarketEvent {
	ev := domain.MarketEvent{
		ID:        uuid.New().String(),
		Type:      t,
		ProfileID: profileID,
		Actor:     actor,
		CreatedAt: time.Now().UTC(),
	}
	if payload != nil {
		ev.Payload, _ = json.Marshal(payload)
	}
	return ev
}

// eventFrame renders an event as the JSON frame pushed to the signal bus and
// on to WebSocket clients.
func eventFrame(ev domain.MarketEvent) []byte {
	var payload json.RawMessage
	if len(ev.Payload) > 0 {
		payload = json.RawMessage(ev.Payload)
	}
	frame, _ := json.Marshal(map[string]any{
		"id":         ev.ID,
		"type":       ev.Type,
		"profile_id": ev.ProfileID,
		"actor":      ev.Actor.Hex(),
		"payload":    payload,
		"created_at": ev.CreatedAt.Format(time.RFC3339Nano),
	})
	return frame
}

// checkPaused aborts mutations while the engine-wide pause switch is on.
func checkPaused(ctx context.Context, pause domain.PauseSwitch) error {
	paused, err := pause.IsPaused(ctx, domain.PauseTargetMarketEngine)
	if err != nil {
		return fmt.Errorf("pause check: %w", err)
	}
	if paused {
		return domain.ErrEnginePaused
	}
	return nil
}

// requireRole verifies that actor currently holds the named role.
func requireRole(ctx context.Context, roles domain.RoleRegistry, role string, actor common.Address) error {
	holder, err := roles.AddressForRole(ctx, role)
	if err != nil {
		return fmt.Errorf("resolve role %q: %w", role, err)
	}
	if holder != actor {
		return fmt.Errorf("%s does not hold role %q: %w", actor.Hex(), role, domain.ErrUnauthorized)
	}
	return nil
}
