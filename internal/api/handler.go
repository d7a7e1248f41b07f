// Package api exposes the diagnostics surface: save listings, live
// session state, prompt pack breakdowns, and gateway health. Play
// happens through the gateways; this API only observes, except for
// explicit checkpoint requests.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/kavrell/dustward/internal/gateway"
	"github.com/kavrell/dustward/internal/prompt"
	"github.com/kavrell/dustward/internal/session"
)

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	sessions *session.Manager
	gw       *gateway.Gateway
	restGW   *gateway.RESTAdapter
	logger   *zap.Logger
}

// NewHandler creates a new API handler. gw and restGW may be nil when
// running without chat gateways.
func NewHandler(sessions *session.Manager, gw *gateway.Gateway,
	restGW *gateway.RESTAdapter, logger *zap.Logger) *Handler {
	return &Handler{
		sessions: sessions,
		gw:       gw,
		restGW:   restGW,
		logger:   logger,
	}
}

// Router builds the chi router with all routes.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.healthCheck)

		r.Get("/saves", h.listSaves)
		r.Get("/sessions", h.listSessions)
		r.Get("/sessions/{id}", h.getSession)
		r.Get("/sessions/{id}/pack", h.getSessionPack)
		r.Get("/sessions/{id}/strain", h.getSessionStrain)
		r.Post("/sessions/{id}/checkpoint", h.checkpointSession)

		if h.restGW != nil {
			r.Mount("/gateway/rest", h.restGW.Routes())
		}
		r.Get("/gateway/status", h.gatewayStatus)
	})

	return r
}

func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "dustward"})
}

func (h *Handler) listSaves(w http.ResponseWriter, r *http.Request) {
	metas, err := h.sessions.List(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, metas)
}

// sessionSummary is the listing view of one live session.
type sessionSummary struct {
	SaveID         string `json:"save_id"`
	Character      string `json:"character"`
	Clock          string `json:"clock"`
	WindowBlocks   int    `json:"window_blocks"`
	WindowCost     int    `json:"window_cost"`
	DigestCost     int    `json:"digest_cost"`
	DigestDegraded bool   `json:"digest_degraded,omitempty"`
}

func summarize(s *session.Session) sessionSummary {
	return sessionSummary{
		SaveID:         s.ID(),
		Character:      s.Character().Name,
		Clock:          s.Clock().Stamp(),
		WindowBlocks:   s.Window().Len(),
		WindowCost:     s.Window().TotalCost(),
		DigestCost:     s.Digest().Cost(),
		DigestDegraded: s.Digest().Degraded(),
	}
}

func (h *Handler) listSessions(w http.ResponseWriter, r *http.Request) {
	live := h.sessions.Sessions()
	out := make([]sessionSummary, 0, len(live))
	for _, s := range live {
		out = append(out, summarize(s))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) getSession(w http.ResponseWriter, r *http.Request) {
	s, ok := h.sessions.ByID(chi.URLParam(r, "id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "session not live"})
		return
	}
	writeJSON(w, http.StatusOK, summarize(s))
}

// packView wraps a PromptPack with the strain tier rendered as text.
type packView struct {
	Strain string `json:"strain"`
	*prompt.PromptPack
}

func (h *Handler) getSessionPack(w http.ResponseWriter, r *http.Request) {
	s, ok := h.sessions.ByID(chi.URLParam(r, "id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "session not live"})
		return
	}

	pack, err := s.Assemble(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		status := http.StatusInternalServerError
		var cfgErr *prompt.ConfigurationError
		if errors.As(err, &cfgErr) {
			status = http.StatusUnprocessableEntity
		}
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, packView{Strain: pack.Tier.String(), PromptPack: pack})
}

func (h *Handler) getSessionStrain(w http.ResponseWriter, r *http.Request) {
	s, ok := h.sessions.ByID(chi.URLParam(r, "id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "session not live"})
		return
	}

	pack, err := s.Assemble(r.Context(), "")
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"strain":    pack.Tier.String(),
		"requested": pack.Requested,
		"used":      pack.TotalUsed,
		"notes":     pack.Notes,
	})
}

func (h *Handler) checkpointSession(w http.ResponseWriter, r *http.Request) {
	s, ok := h.sessions.ByID(chi.URLParam(r, "id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "session not live"})
		return
	}
	if err := s.Checkpoint(r.Context()); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, summarize(s))
}

func (h *Handler) gatewayStatus(w http.ResponseWriter, r *http.Request) {
	if h.gw == nil {
		writeJSON(w, http.StatusOK, []gateway.AdapterStatus{})
		return
	}
	writeJSON(w, http.StatusOK, h.gw.Statuses())
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
