package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"face2face/internal/auth"
	"face2face/internal/core/domain"
	"face2face/internal/core/port"
	"face2face/internal/core/service"
)

type ctxKey int

const claimsKey ctxKey = 0

type Handler struct {
	coord        *service.Coordinator
	history      port.CallHistory
	verifier     *auth.Verifier
	sendBuffer   int
	historyLimit int
	upgrader     websocketUpgrader
}

func NewHandler(coord *service.Coordinator, history port.CallHistory, verifier *auth.Verifier, opts Options) *Handler {
	return &Handler{
		coord:        coord,
		history:      history,
		verifier:     verifier,
		sendBuffer:   opts.SendBuffer,
		historyLimit: opts.HistoryLimit,
		upgrader:     newUpgrader(opts.AllowedOrigins),
	}
}

type Options struct {
	AllowedOrigins []string
	SendBuffer     int
	HistoryLimit   int
}

func (h *Handler) NewRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r.Get("/ws", h.ServeWS)

	r.Group(func(r chi.Router) {
		r.Use(h.requireAuth)
		r.Get("/api/users/online", h.OnlineUsers)
		r.Get("/api/calls/history", h.CallHistory)
	})

	return r
}

func (h *Handler) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := h.verifier.FromRequest(r)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"msg": "authorization denied"})
			return
		}
		next.ServeHTTP(w, r.WithContext(withClaims(r.Context(), claims)))
	})
}

type presenceDTO struct {
	Identity    string `json:"identity"`
	DisplayName string `json:"display_name"`
	Status      string `json:"status"`
}

// OnlineUsers serves the directory read: every identity whose presence is
// not offline.
func (h *Handler) OnlineUsers(w http.ResponseWriter, r *http.Request) {
	snapshot := h.coord.OnlineUsers()
	out := lo.Map(snapshot, func(p domain.Presence, _ int) presenceDTO {
		return presenceDTO{
			Identity:    p.Identity.String(),
			DisplayName: p.DisplayName,
			Status:      string(p.Status),
		}
	})
	writeJSON(w, http.StatusOK, out)
}

type callRecordDTO struct {
	ID        string `json:"id"`
	Caller    string `json:"caller"`
	Receiver  string `json:"receiver"`
	Outcome   string `json:"outcome"`
	StartedAt string `json:"started_at"`
	EndedAt   string `json:"ended_at"`
}

func (h *Handler) CallHistory(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())
	records, err := h.history.ListByIdentity(r.Context(), domain.Identity(claims.UserID), h.historyLimit)
	if err != nil {
		log.Error().Err(err).Str("identity", claims.UserID).Msg("history read failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"msg": "internal server error"})
		return
	}
	out := lo.Map(records, func(rec domain.CallRecord, _ int) callRecordDTO {
		return callRecordDTO{
			ID:        rec.ID,
			Caller:    rec.Caller.String(),
			Receiver:  rec.Receiver.String(),
			Outcome:   string(rec.Outcome),
			StartedAt: rec.StartedAt.Format(time.RFC3339),
			EndedAt:   rec.EndedAt.Format(time.RFC3339),
		}
	})
	writeJSON(w, http.StatusOK, out)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}
