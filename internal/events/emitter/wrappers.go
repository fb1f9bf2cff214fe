package emitter

import (
	"context"

	"github.com/google/uuid"

	"autoflow/internal/events/models"
)

func (e *Emitter) emitFor(ctx context.Context, eventType, entityType string, tenantID, entityID uuid.UUID, data map[string]any) (*models.DomainEvent, error) {
	return e.Emit(ctx, models.EmitSpec{
		EventType:  eventType,
		TenantID:   tenantID,
		EntityType: entityType,
		EntityID:   entityID,
		Data:       data,
	})
}

func (e *Emitter) EmitLeadCreated(ctx context.Context, tenantID, leadID uuid.UUID, data map[string]any) (*models.DomainEvent, error) {
	return e.emitFor(ctx, models.EventLeadCreated, models.EntityLead, tenantID, leadID, data)
}

func (e *Emitter) EmitLeadStatusChanged(ctx context.Context, tenantID, leadID uuid.UUID, data map[string]any) (*models.DomainEvent, error) {
	return e.emitFor(ctx, models.EventLeadStatusChanged, models.EntityLead, tenantID, leadID, data)
}

func (e *Emitter) EmitLeadAssigned(ctx context.Context, tenantID, leadID uuid.UUID, data map[string]any) (*models.DomainEvent, error) {
	return e.emitFor(ctx, models.EventLeadAssigned, models.EntityLead, tenantID, leadID, data)
}

func (e *Emitter) EmitAppointmentScheduled(ctx context.Context, tenantID, appointmentID uuid.UUID, data map[string]any) (*models.DomainEvent, error) {
	return e.emitFor(ctx, models.EventAppointmentScheduled, models.EntityAppointment, tenantID, appointmentID, data)
}

func (e *Emitter) EmitAppointmentCancelled(ctx context.Context, tenantID, appointmentID uuid.UUID, data map[string]any) (*models.DomainEvent, error) {
	return e.emitFor(ctx, models.EventAppointmentCancelled, models.EntityAppointment, tenantID, appointmentID, data)
}

func (e *Emitter) EmitOrderCreated(ctx context.Context, tenantID, orderID uuid.UUID, data map[string]any) (*models.DomainEvent, error) {
	return e.emitFor(ctx, models.EventOrderCreated, models.EntityOrder, tenantID, orderID, data)
}

func (e *Emitter) EmitPaymentReceived(ctx context.Context, tenantID, paymentID uuid.UUID, data map[string]any) (*models.DomainEvent, error) {
	return e.emitFor(ctx, models.EventPaymentReceived, models.EntityPayment, tenantID, paymentID, data)
}

func (e *Emitter) EmitMessageReceived(ctx context.Context, tenantID, messageID uuid.UUID, data map[string]any) (*models.DomainEvent, error) {
	return e.emitFor(ctx, models.EventMessageReceived, models.EntityMessage, tenantID, messageID, data)
}
