package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusOpen      TicketStatus = "open"
	TicketStatusInProcess TicketStatus = "in_process"
	TicketStatusClosed    TicketStatus = "closed"
)

// TicketPriority enumerates urgency levels.
type TicketPriority string

const (
	TicketPriorityLow    TicketPriority = "low"
	TicketPriorityMedium TicketPriority = "medium"
	TicketPriorityHigh   TicketPriority = "high"
)

// TicketType classifies a PQR.
type TicketType string

const (
	TicketTypePetition   TicketType = "petition"
	TicketTypeComplaint  TicketType = "complaint"
	TicketTypeClaim      TicketType = "claim"
	TicketTypeSuggestion TicketType = "suggestion"
)

// DefaultTemperatureRange is recorded when the submitter gives none.
const DefaultTemperatureRange = "ambient temperature"

func (s TicketStatus) Valid() bool {
	switch s {
	case TicketStatusOpen, TicketStatusInProcess, TicketStatusClosed:
		return true
	}
	return false
}

func (p TicketPriority) Valid() bool {
	switch p {
	case TicketPriorityLow, TicketPriorityMedium, TicketPriorityHigh:
		return true
	}
	return false
}

// Ticket is a customer petition, complaint, claim or suggestion (PQR).
type Ticket struct {
	ID           string
	TicketKey    string
	AuthorUserID int64
	Type         TicketType
	Subject      string
	Description  string

	// What was reported; immutable after creation.
	ProductName           string
	BatchNumber           string
	ExpirationDate        *time.Time
	Quantity              *int
	DevolutionType        string
	InvoiceNumber         string
	IdealTemperatureRange string

	// Contact snapshot taken at submission time.
	ClientName  string
	ClientEmail string

	Status          TicketStatus
	Priority        TicketPriority
	AssignedAgentID *int64
	CreatedAt       time.Time
	UpdatedAt       time.Time

	// Resolved at read time.
	AuthorName        *string
	AssignedAgentName *string
}

// Attachment references a file kept by the storage collaborator.
type Attachment struct {
	ID              int64
	TicketID        string
	FieldName       string
	StoredReference string
	CreatedAt       time.Time
}
