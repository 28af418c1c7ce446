package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"

	"face2face/internal/core/domain"
	"face2face/internal/core/port"
)

const historyWriteTimeout = 5 * time.Second

// Coordinator owns all signaling state: the identity-connection registry,
// the session table and the ring timers. Every mutation runs on a single
// event loop goroutine; connection I/O stays concurrent. Timer fires and
// directory reads are linearized through the same loop, so no transition can
// interleave with another.
type Coordinator struct {
	ops  chan func()
	quit chan struct{}
	done chan struct{}

	reg      *Registry
	sessions *sessionTable

	history     port.CallHistory
	ringTimeout time.Duration
}

func NewCoordinator(history port.CallHistory, ringTimeout time.Duration) *Coordinator {
	return &Coordinator{
		ops:         make(chan func(), 64),
		quit:        make(chan struct{}),
		done:        make(chan struct{}),
		reg:         NewRegistry(),
		sessions:    newSessionTable(),
		history:     history,
		ringTimeout: ringTimeout,
	}
}

// Run processes coordinator ops until Stop is called.
func (c *Coordinator) Run() {
	defer close(c.done)
	for {
		select {
		case <-c.quit:
			c.shutdown()
			return
		case fn := <-c.ops:
			fn()
		}
	}
}

func (c *Coordinator) Stop() {
	close(c.quit)
	<-c.done
}

func (c *Coordinator) post(fn func()) {
	select {
	case c.ops <- fn:
	case <-c.quit:
	}
}

func (c *Coordinator) shutdown() {
	for _, s := range c.sessions.byID {
		s.stopExpiry()
	}
	c.reg.CloseAll()
}

// Identify binds the connection to its verified identity and marks it
// online. If the identity is still engaged in a session (reconnect during a
// call attempt), its busy flag is restored to keep presence consistent.
func (c *Coordinator) Identify(client port.Client) {
	c.post(func() {
		id := client.Identity()
		c.reg.Identify(id, client)
		if s, ok := c.sessions.memberOf(id); ok {
			if s.state == domain.StateActive || s.caller == id {
				c.reg.SetStatus(id, domain.StatusBusy)
			}
		}
		log.Info().Str("identity", id.String()).Str("conn_id", client.ConnID()).Msg("identified")
	})
}

// Initiate creates a session in Ringing and notifies the receiver, or sends
// a structured session-error back to the caller without creating anything.
func (c *Coordinator) Initiate(client port.Client, sid domain.SessionID, target domain.Identity) {
	c.post(func() { c.handleInitiate(client, sid, target) })
}

func (c *Coordinator) Accept(client port.Client, sid domain.SessionID) {
	c.post(func() { c.handleAccept(client, sid) })
}

func (c *Coordinator) Reject(client port.Client, sid domain.SessionID) {
	c.post(func() { c.handleReject(client, sid) })
}

func (c *Coordinator) Terminate(client port.Client, sid domain.SessionID) {
	c.post(func() { c.handleTerminate(client, sid) })
}

// Relay forwards a negotiation payload to the session's other participant.
// Any resolution failure drops the frame: never buffered, never retried.
func (c *Coordinator) Relay(client port.Client, sid domain.SessionID, kind domain.SignalKind, payload json.RawMessage) {
	c.post(func() { c.handleRelay(client, sid, kind, payload) })
}

// Disconnect is the lifecycle reconciler, invoked once per abrupt connection
// loss. Idempotent: a duplicate event finds nothing left to clean up.
func (c *Coordinator) Disconnect(client port.Client) {
	c.post(func() { c.handleDisconnect(client) })
}

// OnlineUsers returns the non-offline presence snapshot for the directory
// read. Returns nil after Stop.
func (c *Coordinator) OnlineUsers() []domain.Presence {
	out := make(chan []domain.Presence, 1)
	c.post(func() { out <- c.reg.Snapshot() })
	select {
	case snap := <-out:
		return snap
	case <-c.quit:
		return nil
	}
}

func (c *Coordinator) handleInitiate(client port.Client, sid domain.SessionID, target domain.Identity) {
	caller := client.Identity()
	if _, exists := c.sessions.get(sid); exists {
		c.sendError(client, sid, domain.ReasonSessionIDInUse)
		return
	}
	if c.sessions.engaged(caller) {
		c.sendError(client, sid, domain.ReasonBusy)
		return
	}
	if target == caller {
		c.sendError(client, sid, domain.ReasonTargetBusy)
		return
	}
	peer, ok := c.reg.Lookup(target)
	if !ok {
		c.sendError(client, sid, domain.ReasonTargetOffline)
		return
	}
	if c.reg.Status(target) == domain.StatusBusy || c.sessions.engaged(target) {
		c.sendError(client, sid, domain.ReasonTargetBusy)
		return
	}

	s := &session{
		id:        sid,
		caller:    caller,
		receiver:  target,
		state:     domain.StateRinging,
		startedAt: time.Now(),
	}
	s.expiry = time.AfterFunc(c.ringTimeout, func() {
		c.post(func() { c.handleExpiry(sid) })
	})
	c.sessions.insert(s)
	c.reg.SetStatus(caller, domain.StatusBusy)

	c.deliver(peer, domain.Envelope{
		Event:       domain.EventIncomingSession,
		SessionID:   sid,
		From:        caller,
		DisplayName: client.DisplayName(),
	})
	log.Info().Str("session_id", sid.String()).Str("caller", caller.String()).Str("receiver", target.String()).Msg("ringing")
}

func (c *Coordinator) handleAccept(client port.Client, sid domain.SessionID) {
	s, ok := c.sessions.get(sid)
	if !ok || s.state != domain.StateRinging || s.receiver != client.Identity() {
		return
	}
	s.stopExpiry()
	s.state = domain.StateActive
	c.reg.SetStatus(s.receiver, domain.StatusBusy)
	if peer, ok := c.reg.Lookup(s.caller); ok {
		c.deliver(peer, domain.Envelope{Event: domain.EventSessionAccepted, SessionID: sid})
	}
	log.Info().Str("session_id", sid.String()).Msg("session active")
}

func (c *Coordinator) handleReject(client port.Client, sid domain.SessionID) {
	s, ok := c.sessions.get(sid)
	if !ok || s.state != domain.StateRinging || s.receiver != client.Identity() {
		return
	}
	c.sessions.remove(s)
	c.reg.SetStatus(s.caller, domain.StatusOnline)
	if peer, ok := c.reg.Lookup(s.caller); ok {
		c.deliver(peer, domain.Envelope{Event: domain.EventSessionRejected, SessionID: sid})
	}
	c.record(s, domain.OutcomeRejected)
	log.Info().Str("session_id", sid.String()).Msg("session rejected")
}

// handleTerminate ends a session from either participant. During Ringing it
// acts as a ring cancel / silent hang-up and is recorded as missed.
func (c *Coordinator) handleTerminate(client port.Client, sid domain.SessionID) {
	s, ok := c.sessions.get(sid)
	if !ok {
		return
	}
	by := client.Identity()
	if _, isMember := s.peer(by); !isMember {
		return
	}
	c.endSession(s, by, c.outcomeFor(s))
}

// handleExpiry is the ring timer firing. Cancellation is authoritative: if
// the session already left Ringing, or was removed, this is a no-op.
func (c *Coordinator) handleExpiry(sid domain.SessionID) {
	s, ok := c.sessions.get(sid)
	if !ok || s.state != domain.StateRinging {
		return
	}
	c.sessions.remove(s)
	c.reg.SetStatus(s.caller, domain.StatusOnline)
	if caller, ok := c.reg.Lookup(s.caller); ok {
		c.deliver(caller, domain.Envelope{Event: domain.EventSessionError, SessionID: sid, Reason: domain.ReasonNoAnswer})
	}
	if receiver, ok := c.reg.Lookup(s.receiver); ok {
		c.deliver(receiver, domain.Envelope{Event: domain.EventSessionEnded, SessionID: sid})
	}
	c.record(s, domain.OutcomeMissed)
	log.Info().Str("session_id", sid.String()).Msg("ring timed out")
}

func (c *Coordinator) handleRelay(client port.Client, sid domain.SessionID, kind domain.SignalKind, payload json.RawMessage) {
	if !kind.Valid() {
		return
	}
	s, ok := c.sessions.get(sid)
	if !ok {
		return
	}
	from := client.Identity()
	peerID, ok := s.peer(from)
	if !ok {
		return
	}
	peer, ok := c.reg.Lookup(peerID)
	if !ok {
		return
	}
	c.deliver(peer, domain.Envelope{
		Event:     string(kind),
		SessionID: sid,
		From:      from,
		Payload:   payload,
	})
}

func (c *Coordinator) handleDisconnect(client port.Client) {
	id := client.Identity()
	cur, ok := c.reg.Lookup(id)
	if !ok || cur != client {
		// Already reconciled, or a fresh connection superseded this handle.
		return
	}
	c.reg.Release(id)
	if s, ok := c.sessions.memberOf(id); ok {
		c.endSession(s, id, c.outcomeFor(s))
	}
	log.Info().Str("identity", id.String()).Str("conn_id", client.ConnID()).Msg("disconnected")
}

func (c *Coordinator) outcomeFor(s *session) domain.Outcome {
	if s.state == domain.StateActive {
		return domain.OutcomeCompleted
	}
	return domain.OutcomeMissed
}

// endSession removes the session, restores both participants' presence and
// notifies the party that did not drive the transition.
func (c *Coordinator) endSession(s *session, by domain.Identity, outcome domain.Outcome) {
	c.sessions.remove(s)
	c.reg.SetStatus(s.caller, domain.StatusOnline)
	c.reg.SetStatus(s.receiver, domain.StatusOnline)
	if other, ok := s.peer(by); ok {
		if peer, ok := c.reg.Lookup(other); ok {
			c.deliver(peer, domain.Envelope{Event: domain.EventSessionEnded, SessionID: s.id})
		}
	}
	c.record(s, outcome)
	log.Info().Str("session_id", s.id.String()).Str("outcome", string(outcome)).Msg("session ended")
}

func (c *Coordinator) sendError(client port.Client, sid domain.SessionID, reason string) {
	c.deliver(client, domain.Envelope{Event: domain.EventSessionError, SessionID: sid, Reason: reason})
}

func (c *Coordinator) deliver(client port.Client, env domain.Envelope) {
	if err := client.Send(env); err != nil {
		// Best effort: signaling loss is expected and handled by timeouts.
		log.Debug().Err(err).Str("conn_id", client.ConnID()).Str("event", env.Event).Msg("dropped outbound frame")
	}
}

// record hands the terminal outcome to the history collaborator without ever
// blocking or failing the live session path.
func (c *Coordinator) record(s *session, outcome domain.Outcome) {
	if c.history == nil {
		return
	}
	rec := domain.CallRecord{
		Caller:    s.caller,
		Receiver:  s.receiver,
		Outcome:   outcome,
		StartedAt: s.startedAt,
		EndedAt:   time.Now(),
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), historyWriteTimeout)
		defer cancel()
		if err := c.history.Record(ctx, rec); err != nil {
			log.Warn().Err(err).Str("session_id", s.id.String()).Msg("failed to persist call record")
		}
	}()
}
