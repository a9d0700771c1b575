// Package policy classifies submitters as blocked, ordinary or trusted,
// and owns the administrative mutations of those sets. Mutations persist
// the full state through a Store; a persist failure is returned to the
// caller, never swallowed.
package policy

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
)

// Sentinel errors for typed checks at the command boundary.
var (
	ErrBlocked  = errors.New("user is blocked")
	ErrNotOwner = errors.New("owner privilege required")
)

// State is the persisted shape of the policy sets.
type State struct {
	TrustedUsers []int64 `json:"trusted_users"`
	BlockedUsers []int64 `json:"blocked_users"`
}

// Store persists the policy state durably. The whole state is rewritten
// on every administrative mutation.
type Store interface {
	Save(State) error
}

// Policy holds the trusted and blocked sets plus the owner identity.
// The owner has trusted-equivalent access and is the only identity
// allowed to run administrative operations.
type Policy struct {
	mu      sync.Mutex
	ownerID int64
	trusted map[int64]struct{}
	blocked map[int64]struct{}
	store   Store
}

// New creates a policy from previously persisted state.
func New(ownerID int64, initial State, store Store) *Policy {
	p := &Policy{
		ownerID: ownerID,
		trusted: make(map[int64]struct{}, len(initial.TrustedUsers)),
		blocked: make(map[int64]struct{}, len(initial.BlockedUsers)),
		store:   store,
	}
	for _, id := range initial.TrustedUsers {
		p.trusted[id] = struct{}{}
	}
	for _, id := range initial.BlockedUsers {
		p.blocked[id] = struct{}{}
	}
	return p
}

// Authorize decides whether a user may submit at all. The blocked check
// runs first and unconditionally: it takes precedence over trust and
// ownership alike.
func (p *Policy) Authorize(userID int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.blocked[userID]; ok {
		return ErrBlocked
	}
	return nil
}

// IsTrusted reports whether the user may bypass the static analyzer
// gate. The owner is always trusted.
func (p *Policy) IsTrusted(userID int64) bool {
	if userID == p.ownerID {
		return true
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.trusted[userID]
	return ok
}

// IsOwner reports whether the user holds the administrative identity.
func (p *Policy) IsOwner(userID int64) bool {
	return userID == p.ownerID
}

// Trust adds target to the trusted set. Idempotent.
func (p *Policy) Trust(actorID, targetID int64) error {
	return p.mutate(actorID, func() {
		p.trusted[targetID] = struct{}{}
	})
}

// Untrust removes target from the trusted set. A no-op for non-members.
func (p *Policy) Untrust(actorID, targetID int64) error {
	return p.mutate(actorID, func() {
		delete(p.trusted, targetID)
	})
}

// Block adds target to the blocked set. Idempotent.
func (p *Policy) Block(actorID, targetID int64) error {
	return p.mutate(actorID, func() {
		p.blocked[targetID] = struct{}{}
	})
}

// Unblock removes target from the blocked set. A no-op for non-members.
func (p *Policy) Unblock(actorID, targetID int64) error {
	return p.mutate(actorID, func() {
		delete(p.blocked, targetID)
	})
}

// Snapshot returns the current state for persistence or inspection.
func (p *Policy) Snapshot() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshotLocked()
}

func (p *Policy) mutate(actorID int64, apply func()) error {
	if !p.IsOwner(actorID) {
		return ErrNotOwner
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	apply()

	if err := p.store.Save(p.snapshotLocked()); err != nil {
		log.Error().Err(err).Msg("policy state persist failed")
		return fmt.Errorf("persisting policy state: %w", err)
	}
	return nil
}

func (p *Policy) snapshotLocked() State {
	st := State{
		TrustedUsers: make([]int64, 0, len(p.trusted)),
		BlockedUsers: make([]int64, 0, len(p.blocked)),
	}
	for id := range p.trusted {
		st.TrustedUsers = append(st.TrustedUsers, id)
	}
	for id := range p.blocked {
		st.BlockedUsers = append(st.BlockedUsers, id)
	}
	return st
}
