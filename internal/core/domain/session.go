package domain

// SessionID scopes all signaling traffic for one call attempt. It is supplied
// by the caller; a colliding id is refused at initiate rather than reused.
type SessionID string

func (s SessionID) String() string {
	return string(s)
}

type SessionState string

// Only non-terminal states are ever stored; a session is removed from the
// table on every terminal transition.
const (
	StateRinging SessionState = "ringing"
	StateActive  SessionState = "active"
)
