package policy

import (
	"errors"
	"sort"
	"testing"
)

const owner = int64(1000)

type fakeStore struct {
	saves    int
	last     State
	failWith error
}

func (s *fakeStore) Save(st State) error {
	if s.failWith != nil {
		return s.failWith
	}
	s.saves++
	s.last = st
	return nil
}

func TestAuthorizeBlockedPrecedence(t *testing.T) {
	store := &fakeStore{}
	p := New(owner, State{}, store)

	if err := p.Trust(owner, 5); err != nil {
		t.Fatalf("Trust: %v", err)
	}
	if err := p.Block(owner, 5); err != nil {
		t.Fatalf("Block: %v", err)
	}

	// Blocked wins even for a simultaneously trusted user.
	if err := p.Authorize(5); !errors.Is(err, ErrBlocked) {
		t.Errorf("Authorize(blocked+trusted) = %v, want ErrBlocked", err)
	}
	if !p.IsTrusted(5) {
		t.Error("trust membership should be unaffected by blocking")
	}
}

func TestBlockedOwnerStillBlocked(t *testing.T) {
	p := New(owner, State{BlockedUsers: []int64{owner}}, &fakeStore{})

	if err := p.Authorize(owner); !errors.Is(err, ErrBlocked) {
		t.Errorf("Authorize(blocked owner) = %v, want ErrBlocked", err)
	}
}

func TestTrustIdempotence(t *testing.T) {
	store := &fakeStore{}
	p := New(owner, State{}, store)

	if err := p.Trust(owner, 7); err != nil {
		t.Fatalf("Trust: %v", err)
	}
	if err := p.Trust(owner, 7); err != nil {
		t.Fatalf("second Trust: %v", err)
	}

	st := p.Snapshot()
	if len(st.TrustedUsers) != 1 || st.TrustedUsers[0] != 7 {
		t.Errorf("TrustedUsers = %v, want [7]", st.TrustedUsers)
	}

	// Untrusting a non-member is a no-op, not an error.
	if err := p.Untrust(owner, 999); err != nil {
		t.Errorf("Untrust(non-member) = %v, want nil", err)
	}
}

func TestAdminRequiresOwner(t *testing.T) {
	p := New(owner, State{}, &fakeStore{})

	ops := map[string]func() error{
		"Trust":   func() error { return p.Trust(2, 3) },
		"Untrust": func() error { return p.Untrust(2, 3) },
		"Block":   func() error { return p.Block(2, 3) },
		"Unblock": func() error { return p.Unblock(2, 3) },
	}

	for name, op := range ops {
		if err := op(); !errors.Is(err, ErrNotOwner) {
			t.Errorf("%s by non-owner = %v, want ErrNotOwner", name, err)
		}
	}
}

func TestMutationsPersist(t *testing.T) {
	store := &fakeStore{}
	p := New(owner, State{}, store)

	if err := p.Trust(owner, 1); err != nil {
		t.Fatal(err)
	}
	if err := p.Block(owner, 2); err != nil {
		t.Fatal(err)
	}
	if err := p.Unblock(owner, 2); err != nil {
		t.Fatal(err)
	}

	if store.saves != 3 {
		t.Errorf("saves = %d, want one per mutation (3)", store.saves)
	}

	sort.Slice(store.last.TrustedUsers, func(i, j int) bool {
		return store.last.TrustedUsers[i] < store.last.TrustedUsers[j]
	})
	if len(store.last.TrustedUsers) != 1 || store.last.TrustedUsers[0] != 1 {
		t.Errorf("persisted TrustedUsers = %v, want [1]", store.last.TrustedUsers)
	}
	if len(store.last.BlockedUsers) != 0 {
		t.Errorf("persisted BlockedUsers = %v, want empty", store.last.BlockedUsers)
	}
}

func TestPersistFailureSurfaced(t *testing.T) {
	store := &fakeStore{failWith: errors.New("disk full")}
	p := New(owner, State{}, store)

	err := p.Trust(owner, 9)
	if err == nil {
		t.Fatal("persist failure was swallowed")
	}
	if !errors.Is(err, store.failWith) {
		t.Errorf("error %v does not wrap the store failure", err)
	}
}

func TestOwnerIsTrusted(t *testing.T) {
	p := New(owner, State{}, &fakeStore{})

	if !p.IsTrusted(owner) {
		t.Error("owner should be implicitly trusted")
	}
	if !p.IsOwner(owner) {
		t.Error("IsOwner(owner) = false")
	}
	if p.IsOwner(5) || p.IsTrusted(5) {
		t.Error("ordinary user misclassified")
	}
}

func TestInitialStateLoaded(t *testing.T) {
	p := New(owner, State{TrustedUsers: []int64{3}, BlockedUsers: []int64{4}}, &fakeStore{})

	if !p.IsTrusted(3) {
		t.Error("initial trusted user not loaded")
	}
	if err := p.Authorize(4); !errors.Is(err, ErrBlocked) {
		t.Error("initial blocked user not loaded")
	}
}
