package models

// Event types emitted by the CRM. Dot segments let subscribers bind with "lead.#".
const (
	EventLeadCreated          = "lead.created"
	EventLeadStatusChanged    = "lead.status.changed"
	EventLeadAssigned         = "lead.assigned"
	EventAppointmentScheduled = "appointment.scheduled"
	EventAppointmentCancelled = "appointment.cancelled"
	EventOrderCreated         = "order.created"
	EventPaymentReceived      = "payment.received"
	EventMessageReceived      = "message.received"
)

// Entity types referenced by events.
const (
	EntityLead        = "lead"
	EntityAppointment = "appointment"
	EntityOrder       = "order"
	EntityPayment     = "payment"
	EntityMessage     = "message"
)
