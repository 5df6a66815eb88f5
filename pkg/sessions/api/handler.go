package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/habitkit/devicegate/pkg/client"
	"github.com/habitkit/devicegate/pkg/sessions"
)

// Handler exposes session status to the account owner.
type Handler struct {
	engine *sessions.Engine
}

func NewHandler(engine *sessions.Engine) *Handler {
	return &Handler{
		engine: engine,
	}
}

// RegisterRoutes registers the session routes.
// These routes should be mounted under an authenticated route group
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.ListSessions)
	r.With(h.engine.Middleware).Get("/status", h.GetStatus)
}

type ListSessionsResponse struct {
	Sessions []sessions.DeviceSession `json:"sessions"`
	Total    int                      `json:"total"`
}

// ListSessions handles GET /sessions - active devices with their session status
func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	account, ok := client.GetAuthAccount(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	list, err := h.engine.ListSessions(r.Context(), account.AccountID, r.Header.Get(sessions.DeviceIDHeader))
	if err != nil {
		slog.Error("Failed to list sessions", "account_id", account.AccountID, "error", err)
		http.Error(w, "Failed to list sessions", http.StatusInternalServerError)
		return
	}

	render.JSON(w, r, ListSessionsResponse{Sessions: list, Total: len(list)})
}

// GetStatus handles GET /sessions/status - the calling device's session.
// The gate middleware has already rejected expired sessions.
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	d, ok := sessions.DeviceFromContext(r.Context())
	if !ok {
		http.Error(w, "X-Device-ID header is required", http.StatusBadRequest)
		return
	}

	status, _, err := h.engine.Status(r.Context(), d.AccountID, d.DeviceID)
	if err != nil {
		slog.Error("Failed to get session status", "device_id", d.DeviceID, "error", err)
		http.Error(w, "Failed to get session status", http.StatusInternalServerError)
		return
	}
	render.JSON(w, r, status)
}
