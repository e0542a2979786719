package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tableside/api/internal/database"
	"github.com/tableside/api/internal/service"
)

// SessionServicer defines the service methods needed by session handlers.
// Satisfied by *service.SessionService.
type SessionServicer interface {
	GetOrOpenSession(ctx context.Context, tableID uuid.UUID) (database.TableSession, error)
	GetSession(ctx context.Context, sessionID uuid.UUID) (database.TableSession, error)
}

// SessionHandler handles guest table session endpoints.
type SessionHandler struct {
	svc SessionServicer
	log *zap.Logger
}

func NewSessionHandler(svc SessionServicer, log *zap.Logger) *SessionHandler {
	return &SessionHandler{svc: svc, log: log}
}

func (h *SessionHandler) RegisterRoutes(r chi.Router) {
	r.Post("/tables/{tid}/session", h.Open)
	r.Get("/sessions/{sid}", h.Get)
}

// Open handles POST /tables/{tid}/session. Scanning the table QR code twice
// returns the same open session.
func (h *SessionHandler) Open(w http.ResponseWriter, r *http.Request) {
	tableID, err := uuidParam(r, "tid")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid table ID")
		return
	}

	sess, err := h.svc.GetOrOpenSession(r.Context(), tableID)
	if err != nil {
		writeServiceError(w, h.log, "open session", err)
		return
	}
	writeJSON(w, http.StatusOK, service.NewSessionView(sess))
}

// Get handles GET /sessions/{sid}.
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	sessionID, err := uuidParam(r, "sid")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid session ID")
		return
	}

	sess, err := h.svc.GetSession(r.Context(), sessionID)
	if err != nil {
		writeServiceError(w, h.log, "get session", err)
		return
	}
	writeJSON(w, http.StatusOK, service.NewSessionView(sess))
}
