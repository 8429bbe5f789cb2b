package events

import (
	"time"

	"github.com/spec-kit/pqr-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated EventType = "ticket_created"
	EventTicketUpdated EventType = "ticket_updated"
	EventCommentAdded  EventType = "comment_added"
)

// Actor identifies who triggered an event.
type Actor struct {
	UserID int64       `json:"user_id"`
	Role   domain.Role `json:"role"`
}

// Event represents a domain event emitted by services.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	TicketID  string    `json:"ticket_id"`
	TicketKey string    `json:"ticket_key"`
	Actor     Actor     `json:"actor"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	Type        domain.TicketType     `json:"type"`
	Priority    domain.TicketPriority `json:"priority"`
	Subject     string                `json:"subject"`
	ClientEmail string                `json:"client_email"`
	Attachments int                   `json:"attachments"`
}

// FieldChange is one entry of a ticket update.
type FieldChange struct {
	Field    domain.TicketField `json:"field"`
	OldValue *string            `json:"old_value,omitempty"`
	NewValue *string            `json:"new_value,omitempty"`
}

// TicketUpdatedPayload lists the fields that actually changed.
type TicketUpdatedPayload struct {
	Changes []FieldChange `json:"changes"`
}

// CommentAddedPayload payload.
type CommentAddedPayload struct {
	CommentID   int64  `json:"comment_id"`
	IsInternal  bool   `json:"is_internal"`
	AuthorName  string `json:"author_name"`
	BodyPreview string `json:"body_preview"`
}
