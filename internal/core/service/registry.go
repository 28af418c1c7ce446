package service

import (
	"github.com/rs/zerolog/log"

	"face2face/internal/core/domain"
	"face2face/internal/core/port"
)

type entry struct {
	client port.Client
	name   string
	status domain.Status
}

// Registry maps a durable identity to at most one live connection handle and
// its presence status. Entries exist only while the identity is connected;
// an unknown identity reads as offline.
//
// The registry is owned by the Coordinator's event loop and is not safe for
// use from other goroutines.
type Registry struct {
	users map[domain.Identity]*entry
}

func NewRegistry() *Registry {
	return &Registry{users: make(map[domain.Identity]*entry)}
}

// Identify binds a handle to an identity and marks it online. Re-identifying
// with a new handle replaces the stale one, which is closed here since the
// old read loop may already be gone.
func (r *Registry) Identify(id domain.Identity, c port.Client) {
	if cur, ok := r.users[id]; ok && cur.client != c {
		log.Debug().Str("identity", id.String()).Msg("replacing stale connection handle")
		_ = cur.client.Close()
	}
	r.users[id] = &entry{client: c, name: c.DisplayName(), status: domain.StatusOnline}
}

func (r *Registry) Lookup(id domain.Identity) (port.Client, bool) {
	e, ok := r.users[id]
	if !ok {
		return nil, false
	}
	return e.client, true
}

func (r *Registry) Status(id domain.Identity) domain.Status {
	e, ok := r.users[id]
	if !ok {
		return domain.StatusOffline
	}
	return e.status
}

// SetStatus is a silent no-op for unknown identities: presence updates for
// already-removed users must never fail.
func (r *Registry) SetStatus(id domain.Identity, st domain.Status) {
	if e, ok := r.users[id]; ok {
		e.status = st
	}
}

// Release clears the handle and marks the identity offline. Called by the
// lifecycle reconciler and by explicit logout.
func (r *Registry) Release(id domain.Identity) {
	delete(r.users, id)
}

// Snapshot returns the non-offline presence records for the directory read.
func (r *Registry) Snapshot() []domain.Presence {
	out := make([]domain.Presence, 0, len(r.users))
	for id, e := range r.users {
		out = append(out, domain.Presence{Identity: id, DisplayName: e.name, Status: e.status})
	}
	return out
}

// CloseAll closes every live handle. Used on coordinator shutdown.
func (r *Registry) CloseAll() {
	for id, e := range r.users {
		_ = e.client.Close()
		delete(r.users, id)
	}
}
