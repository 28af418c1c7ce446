package domain

import "time"

type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeRejected  Outcome = "rejected"
	OutcomeMissed    Outcome = "missed"
)

// CallRecord is the fire-and-forget notification handed to the call-history
// collaborator on every terminal session transition.
type CallRecord struct {
	ID        string
	Caller    Identity
	Receiver  Identity
	Outcome   Outcome
	StartedAt time.Time
	EndedAt   time.Time
}
