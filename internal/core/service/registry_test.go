package service

import (
	"testing"

	"github.com/stretchr/testify/require"

	"face2face/internal/core/domain"
)

func TestIdentifyAndLookup(t *testing.T) {
	req := require.New(t)
	reg := NewRegistry()
	alice := newFakeClient("alice", "Alice")

	_, ok := reg.Lookup("alice")
	req.False(ok)
	req.Equal(domain.StatusOffline, reg.Status("alice"))

	reg.Identify("alice", alice)
	got, ok := reg.Lookup("alice")
	req.True(ok)
	req.Same(alice, got.(*fakeClient))
	req.Equal(domain.StatusOnline, reg.Status("alice"))
}

func TestIdentifyReplacesStaleHandle(t *testing.T) {
	req := require.New(t)
	reg := NewRegistry()
	old := newFakeClient("alice", "Alice")
	fresh := newFakeClient("alice", "Alice")

	reg.Identify("alice", old)
	reg.SetStatus("alice", domain.StatusBusy)
	reg.Identify("alice", fresh)

	got, ok := reg.Lookup("alice")
	req.True(ok)
	req.Same(fresh, got.(*fakeClient))
	req.True(old.isClosed())
	req.False(fresh.isClosed())
	// Re-identifying resets presence; the coordinator restores busy if the
	// identity is still engaged.
	req.Equal(domain.StatusOnline, reg.Status("alice"))
}

func TestSetStatusUnknownIdentityIsNoOp(t *testing.T) {
	reg := NewRegistry()
	reg.SetStatus("ghost", domain.StatusBusy) // must not panic or create an entry
	require.Equal(t, domain.StatusOffline, reg.Status("ghost"))
	require.Empty(t, reg.Snapshot())
}

func TestReleaseClearsHandle(t *testing.T) {
	req := require.New(t)
	reg := NewRegistry()
	reg.Identify("alice", newFakeClient("alice", "Alice"))

	reg.Release("alice")
	_, ok := reg.Lookup("alice")
	req.False(ok)
	req.Equal(domain.StatusOffline, reg.Status("alice"))

	reg.Release("alice") // idempotent
}

func TestSnapshotListsNonOffline(t *testing.T) {
	req := require.New(t)
	reg := NewRegistry()
	reg.Identify("alice", newFakeClient("alice", "Alice"))
	reg.Identify("bob", newFakeClient("bob", "Bob"))
	reg.SetStatus("bob", domain.StatusBusy)

	snap := reg.Snapshot()
	req.Len(snap, 2)
	byID := map[domain.Identity]domain.Presence{}
	for _, p := range snap {
		byID[p.Identity] = p
	}
	req.Equal(domain.StatusOnline, byID["alice"].Status)
	req.Equal("Alice", byID["alice"].DisplayName)
	req.Equal(domain.StatusBusy, byID["bob"].Status)
}
