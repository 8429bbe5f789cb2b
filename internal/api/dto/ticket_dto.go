package dto

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/spec-kit/pqr-service/internal/domain"
	"github.com/spec-kit/pqr-service/internal/service"
)

// LenientString accepts a JSON string or number. Form posts send quantities
// either way.
type LenientString string

func (s *LenientString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*s = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		*s = LenientString(str)
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(data, &num); err != nil {
		return err
	}
	*s = LenientString(num.String())
	return nil
}

// NullableID tells an absent key apart from an explicit null.
type NullableID struct {
	Set   bool
	Value *int64
}

func (n *NullableID) UnmarshalJSON(data []byte) error {
	n.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		n.Value = nil
		return nil
	}
	var id int64
	if err := json.Unmarshal(data, &id); err != nil {
		return err
	}
	n.Value = &id
	return nil
}

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	ClientEmail           string              `json:"client_email"`
	ClientName            string              `json:"client_name"`
	Type                  string              `json:"type"`
	Subject               string              `json:"subject"`
	ProductName           string              `json:"product_name"`
	BatchNumber           string              `json:"batch_number"`
	Description           string              `json:"description"`
	ExpirationDate        string              `json:"expiration_date"`
	Quantity              LenientString       `json:"quantity"`
	DevolutionType        string              `json:"devolution_type"`
	InvoiceNumber         string              `json:"invoice_number"`
	IdealTemperatureRange string              `json:"ideal_temperature_range"`
	Attachments           []AttachmentRequest `json:"attachments"`
}

// AttachmentRequest references a file the upload collaborator already stored.
type AttachmentRequest struct {
	FieldName       string `json:"field_name"`
	StoredReference string `json:"stored_reference"`
}

// ToSubmission converts the request for the service layer.
func (r CreateTicketRequest) ToSubmission() service.TicketSubmission {
	sub := service.TicketSubmission{
		ClientEmail:           r.ClientEmail,
		ClientName:            r.ClientName,
		Type:                  domain.TicketType(r.Type),
		Subject:               r.Subject,
		ProductName:           r.ProductName,
		BatchNumber:           r.BatchNumber,
		Description:           r.Description,
		ExpirationDate:        r.ExpirationDate,
		Quantity:              string(r.Quantity),
		DevolutionType:        r.DevolutionType,
		InvoiceNumber:         r.InvoiceNumber,
		IdealTemperatureRange: r.IdealTemperatureRange,
	}
	for _, att := range r.Attachments {
		sub.Attachments = append(sub.Attachments, service.AttachmentRef{FieldName: att.FieldName, StoredReference: att.StoredReference})
	}
	return sub
}

// ListTicketsQuery is the query string of GET /api/pqrs. Statuses may be
// repeated or comma separated.
type ListTicketsQuery struct {
	Search          string   `query:"search"`
	Status          []string `query:"status"`
	AssignedAgentID int64    `query:"assigned_agent_id"`
	Limit           int      `query:"limit"`
	Offset          int      `query:"offset"`
}

// ToQuery converts the query string for the service layer.
func (q ListTicketsQuery) ToQuery() service.TicketQuery {
	query := service.TicketQuery{Search: q.Search, Limit: q.Limit, Offset: q.Offset}
	for _, raw := range q.Status {
		for _, status := range strings.Split(raw, ",") {
			if status = strings.TrimSpace(status); status != "" {
				query.Statuses = append(query.Statuses, domain.TicketStatus(status))
			}
		}
	}
	if q.AssignedAgentID != 0 {
		agentID := q.AssignedAgentID
		query.AssignedAgentID = &agentID
	}
	return query
}

// UpdateTicketRequest is a partial update; absent keys stay untouched.
type UpdateTicketRequest struct {
	Status          *string    `json:"status"`
	Priority        *string    `json:"priority"`
	Subject         *string    `json:"subject"`
	Description     *string    `json:"description"`
	AssignedAgentID NullableID `json:"assigned_agent_id"`
}

// ToPatch converts the request for the service layer.
func (r UpdateTicketRequest) ToPatch() service.TicketPatch {
	patch := service.TicketPatch{Subject: r.Subject, Description: r.Description}
	if r.Status != nil {
		status := domain.TicketStatus(*r.Status)
		patch.Status = &status
	}
	if r.Priority != nil {
		priority := domain.TicketPriority(*r.Priority)
		patch.Priority = &priority
	}
	if r.AssignedAgentID.Set {
		patch.AssignedAgent = &service.AgentAssignment{AgentID: r.AssignedAgentID.Value}
	}
	return patch
}

// TicketResponse is the flat ticket record.
type TicketResponse struct {
	ID                    string                `json:"id"`
	TicketID              string                `json:"ticket_id"`
	AuthorUserID          int64                 `json:"author_user_id"`
	AuthorName            *string               `json:"author_name"`
	Type                  domain.TicketType     `json:"type"`
	Subject               string                `json:"subject"`
	Description           string                `json:"description"`
	ProductName           string                `json:"product_name"`
	BatchNumber           string                `json:"batch_number"`
	ExpirationDate        *string               `json:"expiration_date"`
	Quantity              *int                  `json:"quantity"`
	DevolutionType        string                `json:"devolution_type"`
	InvoiceNumber         string                `json:"invoice_number"`
	IdealTemperatureRange string                `json:"ideal_temperature_range"`
	ClientName            string                `json:"client_name"`
	ClientEmail           string                `json:"client_email"`
	Status                domain.TicketStatus   `json:"status"`
	Priority              domain.TicketPriority `json:"priority"`
	AssignedAgentID       *int64                `json:"assigned_agent_id"`
	AssignedAgentName     *string               `json:"assigned_agent_name"`
	CreatedAt             time.Time             `json:"created_at"`
	UpdatedAt             time.Time             `json:"updated_at"`
}

// NewTicketResponse maps a domain ticket.
func NewTicketResponse(t *domain.Ticket) TicketResponse {
	resp := TicketResponse{
		ID:                    t.ID,
		TicketID:              t.TicketKey,
		AuthorUserID:          t.AuthorUserID,
		AuthorName:            t.AuthorName,
		Type:                  t.Type,
		Subject:               t.Subject,
		Description:           t.Description,
		ProductName:           t.ProductName,
		BatchNumber:           t.BatchNumber,
		Quantity:              t.Quantity,
		DevolutionType:        t.DevolutionType,
		InvoiceNumber:         t.InvoiceNumber,
		IdealTemperatureRange: t.IdealTemperatureRange,
		ClientName:            t.ClientName,
		ClientEmail:           t.ClientEmail,
		Status:                t.Status,
		Priority:              t.Priority,
		AssignedAgentID:       t.AssignedAgentID,
		AssignedAgentName:     t.AssignedAgentName,
		CreatedAt:             t.CreatedAt,
		UpdatedAt:             t.UpdatedAt,
	}
	if t.ExpirationDate != nil {
		date := t.ExpirationDate.Format("2006-01-02")
		resp.ExpirationDate = &date
	}
	return resp
}

// NewTicketList maps a slice, never returning nil.
func NewTicketList(tickets []domain.Ticket) []TicketResponse {
	items := make([]TicketResponse, 0, len(tickets))
	for i := range tickets {
		items = append(items, NewTicketResponse(&tickets[i]))
	}
	return items
}

// AttachmentResponse metadata.
type AttachmentResponse struct {
	ID              int64     `json:"id"`
	FieldName       string    `json:"field_name"`
	StoredReference string    `json:"stored_reference"`
	CreatedAt       time.Time `json:"created_at"`
}

// NewAttachmentList maps attachments.
func NewAttachmentList(attachments []domain.Attachment) []AttachmentResponse {
	items := make([]AttachmentResponse, 0, len(attachments))
	for _, a := range attachments {
		items = append(items, AttachmentResponse{ID: a.ID, FieldName: a.FieldName, StoredReference: a.StoredReference, CreatedAt: a.CreatedAt})
	}
	return items
}

// HistoryResponse is one audit entry.
type HistoryResponse struct {
	ID          int64              `json:"id"`
	ChangedByID int64              `json:"changed_by_id"`
	Field       domain.TicketField `json:"field"`
	OldValue    *string            `json:"old_value"`
	NewValue    *string            `json:"new_value"`
	CreatedAt   time.Time          `json:"created_at"`
}

// NewHistoryList maps history entries.
func NewHistoryList(entries []domain.TicketHistory) []HistoryResponse {
	items := make([]HistoryResponse, 0, len(entries))
	for _, h := range entries {
		items = append(items, HistoryResponse{
			ID:          h.ID,
			ChangedByID: h.ChangedByID,
			Field:       h.Field,
			OldValue:    h.OldValue,
			NewValue:    h.NewValue,
			CreatedAt:   h.CreatedAt,
		})
	}
	return items
}
