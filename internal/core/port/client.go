package port

import "face2face/internal/core/domain"

// Client is one user's live signaling connection. The connection layer owns
// the underlying socket; the coordinator only holds this handle.
//
// Send must not block: delivery is best effort and a slow consumer is
// allowed to lose frames.
type Client interface {
	ConnID() string
	Identity() domain.Identity
	DisplayName() string
	Send(env domain.Envelope) error
	Close() error
}
