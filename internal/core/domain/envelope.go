package domain

import "encoding/json"

// Event names exchanged on the signaling socket.
const (
	EventIdentify  = "identify"
	EventInitiate  = "initiate"
	EventAccept    = "accept"
	EventReject    = "reject"
	EventTerminate = "terminate"

	EventIncomingSession = "incoming-session"
	EventSessionAccepted = "session-accepted"
	EventSessionRejected = "session-rejected"
	EventSessionEnded    = "session-ended"
	EventSessionError    = "session-error"

	EventOffer     = string(SignalOffer)
	EventAnswer    = string(SignalAnswer)
	EventCandidate = string(SignalCandidate)
)

// Structured reasons carried by session-error.
const (
	ReasonTargetOffline  = "target offline"
	ReasonTargetBusy     = "target busy"
	ReasonBusy           = "busy"
	ReasonNoAnswer       = "no answer"
	ReasonSessionIDInUse = "session id in use"
)

// Envelope is the JSON frame exchanged over the signaling socket, in both
// directions. Payload is never parsed by the coordinator.
type Envelope struct {
	Event       string          `json:"event" validate:"required,oneof=identify initiate accept reject terminate offer answer candidate"`
	SessionID   SessionID       `json:"session_id,omitempty"`
	Target      Identity        `json:"target,omitempty"`
	From        Identity        `json:"from,omitempty"`
	DisplayName string          `json:"display_name,omitempty"`
	Reason      string          `json:"reason,omitempty"`
	Payload     json.RawMessage `json:"payload,omitempty"`
}
