package http

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"face2face/internal/auth"
	"face2face/internal/core/domain"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = (pongWait * 9) / 10
	maxFrameSize = 64 << 10
)

var validate = validator.New()

type websocketUpgrader = websocket.Upgrader

func newUpgrader(allowedOrigins []string) websocketUpgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if origin == allowed {
					return true
				}
			}
			return false
		},
	}
}

func withClaims(ctx context.Context, claims *auth.Claims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

func claimsFrom(ctx context.Context) *auth.Claims {
	claims, _ := ctx.Value(claimsKey).(*auth.Claims)
	return claims
}

// wsClient adapts one gorilla connection to port.Client. Writes go through a
// buffered queue drained by a single pump goroutine; a full queue drops the
// frame, matching the coordinator's best-effort delivery contract.
type wsClient struct {
	connID   string
	identity domain.Identity
	name     string
	conn     *websocket.Conn
	send     chan domain.Envelope

	closeOnce sync.Once
	done      chan struct{}
}

func (c *wsClient) ConnID() string            { return c.connID }
func (c *wsClient) Identity() domain.Identity { return c.identity }
func (c *wsClient) DisplayName() string       { return c.name }

func (c *wsClient) Send(env domain.Envelope) error {
	select {
	case <-c.done:
		return net.ErrClosed
	default:
	}
	select {
	case c.send <- env:
		return nil
	default:
		return errSendQueueFull
	}
}

func (c *wsClient) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}

var errSendQueueFull = errors.New("send queue full")

func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case env := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(env); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// ServeWS upgrades the connection and pumps inbound frames into the
// coordinator. The verified identity comes from the token; nothing the
// client sends can change who it is.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	claims, err := h.verifier.FromRequest(r)
	if err != nil {
		http.Error(w, "authorization denied", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := &wsClient{
		connID:   uuid.NewString(),
		identity: domain.Identity(claims.UserID),
		name:     claims.Username,
		conn:     conn,
		send:     make(chan domain.Envelope, h.sendBuffer),
		done:     make(chan struct{}),
	}
	l := log.With().Str("conn_id", client.connID).Str("identity", claims.UserID).Logger()
	l.Info().Msg("client connected")

	go client.writePump()

	defer func() {
		h.coord.Disconnect(client)
		_ = client.Close()
		l.Info().Msg("client connection closed")
	}()

	conn.SetReadLimit(maxFrameSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	identified := false
	for {
		var env domain.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				l.Error().Err(err).Msg("unexpected close")
			}
			return
		}
		if err := validate.Struct(env); err != nil {
			l.Debug().Err(err).Msg("invalid frame dropped")
			continue
		}
		h.dispatch(client, env, &identified, l)
	}
}

func (h *Handler) dispatch(client *wsClient, env domain.Envelope, identified *bool, l zerolog.Logger) {
	if env.Event == domain.EventIdentify {
		h.coord.Identify(client)
		*identified = true
		return
	}
	if !*identified {
		l.Debug().Str("event", env.Event).Msg("frame before identify dropped")
		return
	}

	switch env.Event {
	case domain.EventInitiate:
		if env.SessionID == "" || env.Target == "" {
			l.Debug().Msg("initiate missing session_id or target")
			return
		}
		h.coord.Initiate(client, env.SessionID, env.Target)
	case domain.EventAccept:
		h.coord.Accept(client, env.SessionID)
	case domain.EventReject:
		h.coord.Reject(client, env.SessionID)
	case domain.EventTerminate:
		h.coord.Terminate(client, env.SessionID)
	case domain.EventOffer, domain.EventAnswer, domain.EventCandidate:
		if env.SessionID == "" {
			return
		}
		h.coord.Relay(client, env.SessionID, domain.SignalKind(env.Event), env.Payload)
	}
}
