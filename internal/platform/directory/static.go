package directory

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/reputenet/trustmarket/internal/domain"
)

// Static is an in-process directory used by standalone mode and tests. All
// mutators are safe for concurrent use.
type Static struct {
	mu       sync.RWMutex
	profiles map[uint64]profile
	roles    map[string]common.Address
	paused   map[string]bool
}

type profile struct {
	active  bool
	address common.Address
}

// NewStatic creates an empty static directory.
func NewStatic() *Static {
	return &Static{
		profiles: make(map[uint64]profile),
		roles:    make(map[string]common.Address),
		paused:   make(map[string]bool),
	}
}

// AddProfile registers a profile with its controlling address.
func (s *Static) AddProfile(profileID uint64, addr common.Address, active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[profileID] = profile{active: active, address: addr}
}

// SetRole assigns the holder of a named role, replacing any previous holder.
func (s *Static) SetRole(role string, addr common.Address) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roles[role] = addr
}

// SetPaused flips the pause flag for a target.
func (s *Static) SetPaused(target string, paused bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused[target] = paused
}

func (s *Static) IsActiveProfile(ctx context.Context, profileID uint64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[profileID]
	return ok && p.active, nil
}

func (s *Static) ResolveControllingAddress(ctx context.Context, profileID uint64) (common.Address, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[profileID]
	if !ok {
		return common.Address{}, domain.ErrProfileNotFound
	}
	return p.address, nil
}

func (s *Static) AddressForRole(ctx context.Context, role string) (common.Address, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	addr, ok := s.roles[role]
	if !ok {
		return common.Address{}, domain.ErrNotFound
	}
	return addr, nil
}

func (s *Static) IsPaused(ctx context.Context, target string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.paused[target], nil
}

// Compile-time interface checks.
var (
	_ domain.IdentityRegistry = (*Static)(nil)
	_ domain.RoleRegistry     = (*Static)(nil)
	_ domain.PauseSwitch      = (*Static)(nil)
)
