package domain

import "time"

// TicketField names a mutable ticket attribute tracked in history.
type TicketField string

const (
	FieldStatus        TicketField = "status"
	FieldPriority      TicketField = "priority"
	FieldAssignedAgent TicketField = "assigned_agent_id"
	FieldSubject       TicketField = "subject"
	FieldDescription   TicketField = "description"
)

// TicketHistory is an immutable audit trail entry.
type TicketHistory struct {
	ID          int64
	TicketID    string
	ChangedByID int64
	Field       TicketField
	OldValue    *string
	NewValue    *string
	CreatedAt   time.Time
}
