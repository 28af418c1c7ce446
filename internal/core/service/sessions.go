package service

import (
	"time"

	"face2face/internal/core/domain"
)

// session is one call attempt. Entries are exclusively owned by the table
// until a terminal transition removes them, together with their timer.
type session struct {
	id        domain.SessionID
	caller    domain.Identity
	receiver  domain.Identity
	state     domain.SessionState
	startedAt time.Time

	// expiry is armed only while the session is Ringing and is stopped on
	// every other exit from that state.
	expiry *time.Timer
}

func (s *session) peer(id domain.Identity) (domain.Identity, bool) {
	switch id {
	case s.caller:
		return s.receiver, true
	case s.receiver:
		return s.caller, true
	}
	return "", false
}

func (s *session) stopExpiry() {
	if s.expiry != nil {
		s.expiry.Stop()
		s.expiry = nil
	}
}

// sessionTable indexes sessions by id and by participant identity. The
// membership index is maintained alongside the table itself, never derived
// from connection-layer state, so disconnect cleanup is a direct lookup.
type sessionTable struct {
	byID     map[domain.SessionID]*session
	byMember map[domain.Identity]*session
}

func newSessionTable() *sessionTable {
	return &sessionTable{
		byID:     make(map[domain.SessionID]*session),
		byMember: make(map[domain.Identity]*session),
	}
}

func (t *sessionTable) get(id domain.SessionID) (*session, bool) {
	s, ok := t.byID[id]
	return s, ok
}

func (t *sessionTable) memberOf(id domain.Identity) (*session, bool) {
	s, ok := t.byMember[id]
	return s, ok
}

// engaged reports whether an identity participates in any ringing or active
// session. Admission control uses this, not the presence status: a ringing
// callee still shows online in the directory but cannot be rung again.
func (t *sessionTable) engaged(id domain.Identity) bool {
	_, ok := t.byMember[id]
	return ok
}

func (t *sessionTable) insert(s *session) {
	t.byID[s.id] = s
	t.byMember[s.caller] = s
	t.byMember[s.receiver] = s
}

// remove deletes the session and stops its timer. Safe to call with a
// session that was already removed.
func (t *sessionTable) remove(s *session) {
	s.stopExpiry()
	delete(t.byID, s.id)
	if t.byMember[s.caller] == s {
		delete(t.byMember, s.caller)
	}
	if t.byMember[s.receiver] == s {
		delete(t.byMember, s.receiver)
	}
}
