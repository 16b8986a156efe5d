package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/custodia-labs/syncflow-core/internal/core/domain"
	"github.com/custodia-labs/syncflow-core/internal/core/services"
)

// Google push notification headers echoed on every Drive channel delivery.
const (
	headerChannelID     = "X-Goog-Channel-Id"
	headerChannelToken  = "X-Goog-Channel-Token"
	headerResourceState = "X-Goog-Resource-State"
)

// ErrorResponse is the stable error body every failing endpoint returns:
// a machine-readable code, a human-readable message and the HTTP status
// repeated for clients that log bodies without the response line.
type ErrorResponse struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"statusCode"`
}

// Error codes carried in ErrorResponse. The code→status mapping is fixed;
// clients may branch on either field.
const (
	codeInvalidData       = "INVALID_DATA"
	codeNotFound          = "NOT_FOUND"
	codeAlreadyExists     = "ALREADY_EXISTS"
	codeHealthCheckFailed = "HEALTH_CHECK_FAILED"
	codeInternal          = "INTERNAL_ERROR"
)

// Health endpoints

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.db != nil {
		if err := s.db.Ping(r.Context()); err != nil {
			s.writeDomainError(w, r, fmt.Errorf("database unavailable: %w", domain.ErrHealthCheckFailed), "ready")
			return
		}
	}
	if s.bus != nil {
		if err := s.bus.Ping(r.Context()); err != nil {
			s.writeDomainError(w, r, fmt.Errorf("event bus unavailable: %w", domain.ErrHealthCheckFailed), "ready")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": s.version})
}

// Connection endpoints

type createConnectionRequest struct {
	SourceID string `json:"source_id"`
}

func (s *Server) handleCreateConnection(w http.ResponseWriter, r *http.Request) {
	var req createConnectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidData, "invalid request body")
		return
	}
	if req.SourceID == "" {
		writeError(w, http.StatusBadRequest, codeInvalidData, "source_id is required")
		return
	}

	conn, err := s.connections.Create(r.Context(), req.SourceID)
	if err != nil {
		s.writeDomainError(w, r, err, "create connection")
		return
	}
	writeJSON(w, http.StatusCreated, conn)
}

func (s *Server) handleGetConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := s.connections.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeDomainError(w, r, err, "get connection")
		return
	}
	writeJSON(w, http.StatusOK, conn)
}

func (s *Server) handleDeleteConnection(w http.ResponseWriter, r *http.Request) {
	if err := s.connections.Delete(r.Context(), r.PathValue("id")); err != nil {
		s.writeDomainError(w, r, err, "delete connection")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Syncflow endpoints

func (s *Server) handleGetSyncflow(w http.ResponseWriter, r *http.Request) {
	syncflow, err := s.syncflows.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeDomainError(w, r, err, "get syncflow")
		return
	}
	writeJSON(w, http.StatusOK, syncflow)
}

// Trigger endpoints

func (s *Server) handleFireManual(w http.ResponseWriter, r *http.Request) {
	if err := s.triggers.FireManual(r.Context(), r.PathValue("id")); err != nil {
		s.writeDomainError(w, r, err, "fire manual trigger")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "triggered"})
}

func (s *Server) handleUnscheduleTrigger(w http.ResponseWriter, r *http.Request) {
	if err := s.triggers.Unschedule(r.Context(), r.PathValue("id")); err != nil {
		s.writeDomainError(w, r, err, "unschedule trigger")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleGoogleSheetsWebhook receives Drive push notifications. Dropped
// deliveries (handshakes, stale channels, bad tokens) get 204 so the
// provider does not retry them.
func (s *Server) handleGoogleSheetsWebhook(w http.ResponseWriter, r *http.Request) {
	triggerID := r.PathValue("id")
	delivery := services.WebhookDelivery{
		ChannelID:     r.Header.Get(headerChannelID),
		ChannelToken:  r.Header.Get(headerChannelToken),
		ResourceState: r.Header.Get(headerResourceState),
	}

	outcome, err := s.triggers.FireWebhook(r.Context(), triggerID, delivery)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// The trigger is gone; 404 tells the provider the channel is dead
			writeError(w, http.StatusNotFound, codeNotFound, "trigger not found")
			return
		}
		s.logger.Error("webhook delivery failed", "trigger_id", triggerID, "error", err)
		writeError(w, http.StatusInternalServerError, codeInternal, "internal error")
		return
	}

	if outcome.Skipped() {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeDomainError maps domain errors to the fixed code→status table.
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error, op string) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, codeNotFound, "not found")
	case errors.Is(err, domain.ErrAlreadyExists):
		writeError(w, http.StatusConflict, codeAlreadyExists, "already exists")
	case errors.Is(err, domain.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, codeInvalidData, err.Error())
	case errors.Is(err, domain.ErrUnknownProvider):
		writeError(w, http.StatusBadRequest, codeInvalidData, "unknown provider type")
	case errors.Is(err, domain.ErrHealthCheckFailed):
		writeError(w, http.StatusBadRequest, codeHealthCheckFailed, err.Error())
	default:
		s.logger.Error("request failed", "op", op, "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, codeInternal, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Code: code, Message: message, StatusCode: status})
}
