package httptransport

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"autoflow/internal/events/models"
)

const maxEventBody = 1 << 20

// Emitter records and broadcasts one event.
type Emitter interface {
	Emit(ctx context.Context, spec models.EmitSpec) (*models.DomainEvent, error)
}

// EmitRequest is the body of POST /internal/v1/events.
type EmitRequest struct {
	EventType  string         `json:"eventType"`
	TenantID   uuid.UUID      `json:"tenantId"`
	EntityType string         `json:"entityType"`
	EntityID   uuid.UUID      `json:"entityId"`
	Data       map[string]any `json:"data"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// EmitResponse acknowledges an accepted event.
type EmitResponse struct {
	EventID uuid.UUID `json:"event_id"`
}

// EventHandler lets services without direct access to the emitter publish events.
type EventHandler struct {
	emitter Emitter
	logger  *slog.Logger
}

func NewEventHandler(emitter Emitter, logger *slog.Logger) *EventHandler {
	return &EventHandler{emitter: emitter, logger: logger}
}

// Register mounts the emit endpoint.
func (h *EventHandler) Register(r chi.Router) {
	r.Post("/internal/v1/events", h.HandleEmit)
}

// HandleEmit handles POST /internal/v1/events.
func (h *EventHandler) HandleEmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := chimw.GetReqID(ctx)

	var req EmitRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxEventBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		h.logger.WarnContext(ctx, "rejecting malformed event body", "request_id", requestID, "error", err)
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}

	event, err := h.emitter.Emit(ctx, models.EmitSpec{
		EventType:  req.EventType,
		TenantID:   req.TenantID,
		EntityType: req.EntityType,
		EntityID:   req.EntityID,
		Data:       req.Data,
		Metadata:   req.Metadata,
	})
	switch {
	case errors.Is(err, models.ErrMissingEventType),
		errors.Is(err, models.ErrMissingTenant),
		errors.Is(err, models.ErrMissingEntityType),
		errors.Is(err, models.ErrMissingEntityID):
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	case err != nil:
		h.logger.ErrorContext(ctx, "emit event failed",
			"request_id", requestID,
			"event_type", req.EventType,
			"tenant_id", req.TenantID,
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}

	h.logger.InfoContext(ctx, "event accepted",
		"request_id", requestID,
		"event_id", event.ID,
		"event_type", event.EventType,
	)
	writeJSON(w, http.StatusAccepted, EmitResponse{EventID: event.ID})
}
