package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"face2face/internal/auth"
	"face2face/internal/core/domain"
	"face2face/internal/core/service"
)

const testSecret = "integration-test-secret-0123456789"

type memHistory struct {
	mu   sync.Mutex
	recs []domain.CallRecord
}

func (h *memHistory) Record(_ context.Context, rec domain.CallRecord) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.recs = append(h.recs, rec)
	return nil
}

func (h *memHistory) ListByIdentity(_ context.Context, id domain.Identity, limit int) ([]domain.CallRecord, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []domain.CallRecord
	for _, rec := range h.recs {
		if (rec.Caller == id || rec.Receiver == id) && len(out) < limit {
			out = append(out, rec)
		}
	}
	return out, nil
}

func newTestServer(t *testing.T) (*httptest.Server, *memHistory) {
	t.Helper()
	history := &memHistory{}
	coord := service.NewCoordinator(history, 30*time.Second)
	go coord.Run()
	t.Cleanup(coord.Stop)

	h := NewHandler(coord, history, auth.NewVerifier(testSecret), Options{
		SendBuffer:   32,
		HistoryLimit: 50,
	})
	srv := httptest.NewServer(h.NewRouter())
	t.Cleanup(srv.Close)
	return srv, history
}

func token(t *testing.T, userID, username string) string {
	t.Helper()
	tok, err := auth.GenerateToken(testSecret, userID, username, time.Hour)
	require.NoError(t, err)
	return tok
}

func dial(t *testing.T, srv *httptest.Server, tok string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=" + tok
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// identifyAndWait sends identify and blocks until the identity shows up in
// the directory, so frames on other connections cannot outrun it.
func identifyAndWait(t *testing.T, srv *httptest.Server, conn *websocket.Conn, userID string) {
	t.Helper()
	send(t, conn, domain.Envelope{Event: domain.EventIdentify})

	httpReq, err := http.NewRequest("GET", srv.URL+"/api/users/online", nil)
	require.NoError(t, err)
	httpReq.Header.Set("Authorization", "Bearer "+token(t, userID, userID))
	require.Eventually(t, func() bool {
		resp, err := http.DefaultClient.Do(httpReq)
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		var users []presenceDTO
		if err := json.NewDecoder(resp.Body).Decode(&users); err != nil {
			return false
		}
		for _, u := range users {
			if u.Identity == userID {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)
}

// readEvent reads frames until the wanted event arrives.
func readEvent(t *testing.T, conn *websocket.Conn, event string) domain.Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		var env domain.Envelope
		require.NoError(t, conn.ReadJSON(&env))
		if env.Event == event {
			return env
		}
	}
}

func send(t *testing.T, conn *websocket.Conn, env domain.Envelope) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(env))
}

func TestRESTRequiresAuth(t *testing.T) {
	req := require.New(t)
	srv, _ := newTestServer(t)

	for _, path := range []string{"/api/users/online", "/api/calls/history"} {
		resp, err := http.Get(srv.URL + path)
		req.NoError(err)
		req.Equal(http.StatusUnauthorized, resp.StatusCode)
		resp.Body.Close()
	}
}

func TestWebSocketRequiresAuth(t *testing.T) {
	req := require.New(t)
	srv, _ := newTestServer(t)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	req.Error(err)
	req.NotNil(resp)
	req.Equal(http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()
}

func TestHealthz(t *testing.T) {
	req := require.New(t)
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/healthz")
	req.NoError(err)
	req.Equal(http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

func TestOnlineUsersEndpoint(t *testing.T) {
	req := require.New(t)
	srv, _ := newTestServer(t)

	conn := dial(t, srv, token(t, "alice", "Alice"))
	send(t, conn, domain.Envelope{Event: domain.EventIdentify})

	httpReq, err := http.NewRequest("GET", srv.URL+"/api/users/online", nil)
	req.NoError(err)
	httpReq.Header.Set("Authorization", "Bearer "+token(t, "bob", "Bob"))

	var users []presenceDTO
	require.Eventually(t, func() bool {
		resp, err := http.DefaultClient.Do(httpReq)
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		users = nil
		if err := json.NewDecoder(resp.Body).Decode(&users); err != nil {
			return false
		}
		return len(users) == 1
	}, 2*time.Second, 20*time.Millisecond)

	req.Equal("alice", users[0].Identity)
	req.Equal("Alice", users[0].DisplayName)
	req.Equal("online", users[0].Status)
}

// Full call setup over real sockets: ring, accept, relay, hang up, history.
func TestSignalingEndToEnd(t *testing.T) {
	req := require.New(t)
	srv, _ := newTestServer(t)

	alice := dial(t, srv, token(t, "alice", "Alice"))
	bob := dial(t, srv, token(t, "bob", "Bob"))
	identifyAndWait(t, srv, alice, "alice")
	identifyAndWait(t, srv, bob, "bob")

	send(t, alice, domain.Envelope{Event: domain.EventInitiate, SessionID: "s1", Target: "bob"})

	incoming := readEvent(t, bob, domain.EventIncomingSession)
	req.Equal(domain.SessionID("s1"), incoming.SessionID)
	req.Equal(domain.Identity("alice"), incoming.From)
	req.Equal("Alice", incoming.DisplayName)

	send(t, bob, domain.Envelope{Event: domain.EventAccept, SessionID: "s1"})
	readEvent(t, alice, domain.EventSessionAccepted)

	offer := json.RawMessage(`{"type":"offer","sdp":"v=0"}`)
	send(t, alice, domain.Envelope{Event: domain.EventOffer, SessionID: "s1", Payload: offer})
	got := readEvent(t, bob, domain.EventOffer)
	req.JSONEq(string(offer), string(got.Payload))
	req.Equal(domain.Identity("alice"), got.From)

	send(t, bob, domain.Envelope{Event: domain.EventAnswer, SessionID: "s1", Payload: json.RawMessage(`{"sdp":"a"}`)})
	readEvent(t, alice, domain.EventAnswer)

	send(t, bob, domain.Envelope{Event: domain.EventTerminate, SessionID: "s1"})
	readEvent(t, alice, domain.EventSessionEnded)

	// Terminal outcome reaches the history endpoint.
	httpReq, err := http.NewRequest("GET", srv.URL+"/api/calls/history", nil)
	req.NoError(err)
	httpReq.Header.Set("Authorization", "Bearer "+token(t, "alice", "Alice"))

	var records []callRecordDTO
	require.Eventually(t, func() bool {
		resp, err := http.DefaultClient.Do(httpReq)
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		records = nil
		if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
			return false
		}
		return len(records) == 1
	}, 2*time.Second, 20*time.Millisecond)

	req.Equal("alice", records[0].Caller)
	req.Equal("bob", records[0].Receiver)
	req.Equal("completed", records[0].Outcome)
}

func TestRejectOverSocket(t *testing.T) {
	req := require.New(t)
	srv, _ := newTestServer(t)

	alice := dial(t, srv, token(t, "alice", "Alice"))
	bob := dial(t, srv, token(t, "bob", "Bob"))
	identifyAndWait(t, srv, alice, "alice")
	identifyAndWait(t, srv, bob, "bob")

	send(t, alice, domain.Envelope{Event: domain.EventInitiate, SessionID: "s1", Target: "bob"})
	readEvent(t, bob, domain.EventIncomingSession)

	send(t, bob, domain.Envelope{Event: domain.EventReject, SessionID: "s1"})
	env := readEvent(t, alice, domain.EventSessionRejected)
	req.Equal(domain.SessionID("s1"), env.SessionID)
}

func TestInitiateToOfflineTargetOverSocket(t *testing.T) {
	req := require.New(t)
	srv, _ := newTestServer(t)

	alice := dial(t, srv, token(t, "alice", "Alice"))
	send(t, alice, domain.Envelope{Event: domain.EventIdentify})
	send(t, alice, domain.Envelope{Event: domain.EventInitiate, SessionID: "s1", Target: "ghost"})

	env := readEvent(t, alice, domain.EventSessionError)
	req.Equal(domain.ReasonTargetOffline, env.Reason)
}

// The peer of a dropped connection gets session-ended via the reconciler.
func TestDisconnectEndsSessionOverSocket(t *testing.T) {
	srv, _ := newTestServer(t)

	alice := dial(t, srv, token(t, "alice", "Alice"))
	bob := dial(t, srv, token(t, "bob", "Bob"))
	identifyAndWait(t, srv, alice, "alice")
	identifyAndWait(t, srv, bob, "bob")

	send(t, alice, domain.Envelope{Event: domain.EventInitiate, SessionID: "s1", Target: "bob"})
	readEvent(t, bob, domain.EventIncomingSession)
	send(t, bob, domain.Envelope{Event: domain.EventAccept, SessionID: "s1"})
	readEvent(t, alice, domain.EventSessionAccepted)

	alice.Close()
	readEvent(t, bob, domain.EventSessionEnded)
}
