package domain

// Identity is the durable, authenticated user reference. It is issued by the
// auth collaborator and is independent of any particular connection.
type Identity string

func (i Identity) String() string {
	return string(i)
}

type Status string

const (
	StatusOffline Status = "offline"
	StatusOnline  Status = "online"
	StatusBusy    Status = "busy"
)

// Presence is one user's entry in the directory snapshot.
type Presence struct {
	Identity    Identity
	DisplayName string
	Status      Status
}
