package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/pqr-service/internal/access"
	"github.com/spec-kit/pqr-service/internal/domain"
	"github.com/spec-kit/pqr-service/internal/events"
	"github.com/spec-kit/pqr-service/internal/repository"
	apperrors "github.com/spec-kit/pqr-service/pkg/util/errorutil"
)

const (
	defaultKeyAttempts = 5
	expirationLayout   = "2006-01-02"
)

// TicketService coordinates ticket workflows.
type TicketService struct {
	store       repository.Store
	dispatcher  events.Dispatcher
	logger      *zap.Logger
	keyAttempts int
	now         func() time.Time
	newKey      func(time.Time) string
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	Store       repository.Store
	Dispatcher  events.Dispatcher
	Logger      *zap.Logger
	KeyAttempts int

	// Clock and KeyGenerator default to time.Now and GenerateTicketKey.
	Clock        func() time.Time
	KeyGenerator func(time.Time) string
}

// AttachmentRef is a file already stored by the upload collaborator.
type AttachmentRef struct {
	FieldName       string `json:"field_name" validate:"required"`
	StoredReference string `json:"stored_reference" validate:"required"`
}

// TicketSubmission is the customer facing creation payload.
type TicketSubmission struct {
	ClientEmail           string            `json:"client_email" validate:"required,email"`
	ClientName            string            `json:"client_name" validate:"required"`
	Type                  domain.TicketType `json:"type" validate:"required,oneof=petition complaint claim suggestion"`
	Subject               string            `json:"subject" validate:"required"`
	ProductName           string            `json:"product_name" validate:"required"`
	BatchNumber           string            `json:"batch_number" validate:"required"`
	Description           string            `json:"description" validate:"required"`
	ExpirationDate        string            `json:"expiration_date"`
	Quantity              string            `json:"quantity"`
	DevolutionType        string            `json:"devolution_type"`
	InvoiceNumber         string            `json:"invoice_number"`
	IdealTemperatureRange string            `json:"ideal_temperature_range"`
	Attachments           []AttachmentRef   `json:"attachments" validate:"dive"`
}

func (s *TicketSubmission) normalize() {
	for _, field := range []*string{
		&s.ClientEmail, &s.ClientName, &s.Subject, &s.ProductName, &s.BatchNumber,
		&s.Description, &s.ExpirationDate, &s.Quantity, &s.DevolutionType,
		&s.InvoiceNumber, &s.IdealTemperatureRange,
	} {
		*field = strings.TrimSpace(*field)
	}
	s.Type = domain.TicketType(strings.TrimSpace(string(s.Type)))
	for i := range s.Attachments {
		s.Attachments[i].FieldName = strings.TrimSpace(s.Attachments[i].FieldName)
		s.Attachments[i].StoredReference = strings.TrimSpace(s.Attachments[i].StoredReference)
	}
}

// AgentAssignment carries a new assignee; a nil AgentID unassigns.
type AgentAssignment struct {
	AgentID *int64
}

// TicketPatch lists the mutable fields. Nil fields are left untouched.
type TicketPatch struct {
	Status        *domain.TicketStatus
	Priority      *domain.TicketPriority
	Subject       *string
	Description   *string
	AssignedAgent *AgentAssignment
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	s := &TicketService{
		store:       deps.Store,
		dispatcher:  deps.Dispatcher,
		logger:      deps.Logger,
		keyAttempts: deps.KeyAttempts,
		now:         deps.Clock,
		newKey:      deps.KeyGenerator,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.keyAttempts <= 0 {
		s.keyAttempts = defaultKeyAttempts
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newKey == nil {
		s.newKey = GenerateTicketKey
	}
	return s
}

// GenerateTicketKey returns PQR-<yyyymmddhhmmss>-<6 upper-case hex chars>.
func GenerateTicketKey(now time.Time) string {
	return "PQR-" + now.Format("20060102150405") + "-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:6])
}

// CreateTicket validates the submission and stores the ticket, its
// attachment references and the initial system comment atomically.
func (s *TicketService) CreateTicket(ctx context.Context, identity domain.Identity, submission TicketSubmission) (*domain.Ticket, error) {
	if err := access.Require(identity, access.ActionCreateTicket, nil); err != nil {
		return nil, err
	}
	submission.normalize()
	if err := validateStruct(submission); err != nil {
		return nil, err
	}

	now := s.clock()
	ticket := &domain.Ticket{
		AuthorUserID:          identity.UserID,
		Type:                  submission.Type,
		Subject:               submission.Subject,
		Description:           submission.Description,
		ProductName:           submission.ProductName,
		BatchNumber:           submission.BatchNumber,
		ExpirationDate:        s.parseExpiration(submission.ExpirationDate),
		Quantity:              s.parseQuantity(submission.Quantity),
		DevolutionType:        submission.DevolutionType,
		InvoiceNumber:         submission.InvoiceNumber,
		IdealTemperatureRange: submission.IdealTemperatureRange,
		ClientName:            submission.ClientName,
		ClientEmail:           submission.ClientEmail,
		Status:                domain.TicketStatusOpen,
		Priority:              domain.TicketPriorityMedium,
		CreatedAt:             now,
	}
	if ticket.IdealTemperatureRange == "" {
		ticket.IdealTemperatureRange = domain.DefaultTemperatureRange
	}

	err := s.store.WithinTx(ctx, func(tx repository.Store) error {
		if err := s.insertWithFreshKey(ctx, tx, ticket, now); err != nil {
			return err
		}
		for _, ref := range submission.Attachments {
			attachment := &domain.Attachment{
				TicketID:        ticket.ID,
				FieldName:       ref.FieldName,
				StoredReference: ref.StoredReference,
				CreatedAt:       now,
			}
			if err := tx.Attachments().Create(ctx, attachment); err != nil {
				return fmt.Errorf("store attachment %s: %w", ref.FieldName, err)
			}
		}
		return tx.Comments().Create(ctx, systemComment(ticket, len(submission.Attachments), now))
	})
	if err != nil {
		s.logger.Error("create ticket failed", zap.Int64("author_id", identity.UserID), zap.Error(err))
		return nil, apperrors.MapError(err)
	}

	if identity.Name != "" {
		name := identity.Name
		ticket.AuthorName = &name
	}
	s.logger.Info("ticket created", zap.String("ticket_key", ticket.TicketKey), zap.Int64("author_id", identity.UserID))
	s.publishEvent(ctx, events.Event{
		Type:      events.EventTicketCreated,
		TicketID:  ticket.ID,
		TicketKey: ticket.TicketKey,
		Actor:     actorOf(identity),
		Payload: events.TicketCreatedPayload{
			Type:        ticket.Type,
			Priority:    ticket.Priority,
			Subject:     ticket.Subject,
			ClientEmail: ticket.ClientEmail,
			Attachments: len(submission.Attachments),
		},
	})
	return ticket, nil
}

// insertWithFreshKey retries key generation until the unique index accepts it.
func (s *TicketService) insertWithFreshKey(ctx context.Context, tx repository.Store, ticket *domain.Ticket, now time.Time) error {
	for attempt := 1; attempt <= s.keyAttempts; attempt++ {
		ticket.TicketKey = s.newKey(now)
		err := tx.Tickets().Create(ctx, ticket)
		if err == nil {
			return nil
		}
		if !errors.Is(err, repository.ErrDuplicateTicketKey) {
			return err
		}
		s.logger.Warn("ticket key collision", zap.String("ticket_key", ticket.TicketKey), zap.Int("attempt", attempt))
	}
	return fmt.Errorf("no unique ticket key after %d attempts", s.keyAttempts)
}

func systemComment(ticket *domain.Ticket, attachments int, now time.Time) *domain.Comment {
	var b strings.Builder
	b.WriteString("PQR registered successfully.\n")
	fmt.Fprintf(&b, "Type: %s\n", ticket.Type)
	fmt.Fprintf(&b, "Product: %s\n", ticket.ProductName)
	fmt.Fprintf(&b, "Client: %s\n", ticket.ClientName)
	fmt.Fprintf(&b, "Attachments: %d", attachments)
	return &domain.Comment{
		TicketID:     ticket.ID,
		AuthorUserID: ticket.AuthorUserID,
		AuthorName:   domain.SystemAuthorName,
		Text:         b.String(),
		CreatedAt:    now,
	}
}

// parseExpiration is lenient: malformed dates are logged and dropped.
func (s *TicketService) parseExpiration(raw string) *time.Time {
	if raw == "" {
		return nil
	}
	parsed, err := time.Parse(expirationLayout, raw)
	if err != nil {
		s.logger.Warn("ignoring malformed expiration date", zap.String("value", raw), zap.Error(err))
		return nil
	}
	return &parsed
}

// parseQuantity records 0 for a non-numeric quantity.
func (s *TicketService) parseQuantity(raw string) *int {
	if raw == "" {
		return nil
	}
	qty, err := strconv.Atoi(raw)
	if err != nil {
		s.logger.Warn("malformed quantity recorded as 0", zap.String("value", raw))
		qty = 0
	}
	return &qty
}

// GetTicket returns a ticket the caller may see.
func (s *TicketService) GetTicket(ctx context.Context, identity domain.Identity, ticketID string) (*domain.Ticket, error) {
	return s.loadTicket(ctx, s.store, identity, access.ActionViewTicket, ticketID)
}

// loadTicket fetches by id and applies the guard: missing is NotFound, hidden
// is Forbidden.
func (s *TicketService) loadTicket(ctx context.Context, store repository.Store, identity domain.Identity, action access.Action, ticketID string) (*domain.Ticket, error) {
	ticket, err := store.Tickets().GetByID(ctx, ticketID)
	return guardTicket(identity, action, ticketID, ticket, err)
}

// lockTicket is loadTicket for read-modify-write inside a transaction: the
// row stays locked until commit, so concurrent patches and the assignee
// check see the latest row.
func (s *TicketService) lockTicket(ctx context.Context, tx repository.Store, identity domain.Identity, ticketID string) (*domain.Ticket, error) {
	ticket, err := tx.Tickets().GetByIDForUpdate(ctx, ticketID)
	return guardTicket(identity, access.ActionUpdateTicket, ticketID, ticket, err)
}

func guardTicket(identity domain.Identity, action access.Action, ticketID string, ticket *domain.Ticket, err error) (*domain.Ticket, error) {
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"id": ticketID})
		}
		return nil, apperrors.NewInternalError(err)
	}
	if err := access.Require(identity, action, ticket); err != nil {
		return nil, err
	}
	return ticket, nil
}

// TicketQuery narrows ListTickets. Zero values leave a dimension open.
type TicketQuery struct {
	Search          string                `json:"search"`
	Statuses        []domain.TicketStatus `json:"status" validate:"dive,oneof=open in_process closed"`
	AssignedAgentID *int64                `json:"assigned_agent_id" validate:"omitempty,min=1"`
	Limit           int                   `json:"limit" validate:"min=0,max=100"`
	Offset          int                   `json:"offset" validate:"min=0"`
}

// ListTickets returns visible tickets, newest first, optionally narrowed by
// a case-insensitive search term, statuses and assignee, one page at a time.
func (s *TicketService) ListTickets(ctx context.Context, identity domain.Identity, query TicketQuery) ([]domain.Ticket, error) {
	if err := validateStruct(query); err != nil {
		return nil, err
	}
	filter := repository.TicketFilter{
		AuthorID:        access.TicketScopeFor(identity).AuthorID,
		AssignedAgentID: query.AssignedAgentID,
		Statuses:        query.Statuses,
		Limit:           query.Limit,
		Offset:          query.Offset,
	}
	if term := strings.TrimSpace(query.Search); term != "" {
		filter.SearchTerm = &term
	}
	tickets, err := s.store.Tickets().List(ctx, filter)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	if tickets == nil {
		tickets = []domain.Ticket{}
	}
	return tickets, nil
}

// UpdateTicket applies the present patch fields, records history and bumps
// UpdatedAt, all in one transaction.
func (s *TicketService) UpdateTicket(ctx context.Context, identity domain.Identity, ticketID string, patch TicketPatch) (*domain.Ticket, error) {
	if err := s.validatePatch(&patch); err != nil {
		// authorization still wins over validation for hidden or foreign tickets
		if _, authErr := s.loadTicket(ctx, s.store, identity, access.ActionUpdateTicket, ticketID); authErr != nil {
			return nil, authErr
		}
		return nil, err
	}

	var (
		updated *domain.Ticket
		changes []events.FieldChange
	)
	err := s.store.WithinTx(ctx, func(tx repository.Store) error {
		ticket, err := s.lockTicket(ctx, tx, identity, ticketID)
		if err != nil {
			return err
		}
		if patch.AssignedAgent != nil && patch.AssignedAgent.AgentID != nil {
			if err := checkAssignee(ctx, tx, *patch.AssignedAgent.AgentID); err != nil {
				return err
			}
		}

		changes = applyPatch(ticket, patch)
		ticket.UpdatedAt = s.nextUpdatedAt(ticket.UpdatedAt)
		if err := tx.Tickets().Update(ctx, ticket); err != nil {
			return err
		}
		for _, change := range changes {
			entry := &domain.TicketHistory{
				TicketID:    ticket.ID,
				ChangedByID: identity.UserID,
				Field:       change.Field,
				OldValue:    change.OldValue,
				NewValue:    change.NewValue,
				CreatedAt:   ticket.UpdatedAt,
			}
			if err := tx.History().Create(ctx, entry); err != nil {
				return err
			}
		}

		updated, err = tx.Tickets().GetByID(ctx, ticket.ID)
		return err
	})
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	s.publishEvent(ctx, events.Event{
		Type:      events.EventTicketUpdated,
		TicketID:  updated.ID,
		TicketKey: updated.TicketKey,
		Actor:     actorOf(identity),
		Payload:   events.TicketUpdatedPayload{Changes: changes},
	})
	return updated, nil
}

func (s *TicketService) validatePatch(patch *TicketPatch) error {
	var fields []string
	violations := map[string]string{}
	if patch.Status != nil && !patch.Status.Valid() {
		fields = append(fields, "status")
		violations["status"] = "must be one of: open, in_process, closed"
	}
	if patch.Priority != nil && !patch.Priority.Valid() {
		fields = append(fields, "priority")
		violations["priority"] = "must be one of: low, medium, high"
	}
	if patch.Subject != nil {
		trimmed := strings.TrimSpace(*patch.Subject)
		patch.Subject = &trimmed
		if trimmed == "" {
			fields = append(fields, "subject")
			violations["subject"] = "must not be empty"
		}
	}
	if patch.Description != nil {
		trimmed := strings.TrimSpace(*patch.Description)
		patch.Description = &trimmed
		if trimmed == "" {
			fields = append(fields, "description")
			violations["description"] = "must not be empty"
		}
	}
	if len(fields) > 0 {
		return apperrors.NewMissingFields(fields, violations)
	}
	return nil
}

func checkAssignee(ctx context.Context, tx repository.Store, agentID int64) error {
	agent, err := tx.Users().GetByID(ctx, agentID)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperrors.NewMissingFields([]string{"assigned_agent_id"}, map[string]string{"assigned_agent_id": "user does not exist"})
	}
	if err != nil {
		return err
	}
	if !agent.Role.IsStaff() {
		return apperrors.NewMissingFields([]string{"assigned_agent_id"}, map[string]string{"assigned_agent_id": "user is not a staff member"})
	}
	return nil
}

// applyPatch mutates ticket and returns the fields whose value changed.
func applyPatch(ticket *domain.Ticket, patch TicketPatch) []events.FieldChange {
	var changes []events.FieldChange
	record := func(field domain.TicketField, oldValue, newValue *string) {
		if ptrEqual(oldValue, newValue) {
			return
		}
		changes = append(changes, events.FieldChange{Field: field, OldValue: oldValue, NewValue: newValue})
	}

	if patch.Status != nil {
		record(domain.FieldStatus, strPtr(string(ticket.Status)), strPtr(string(*patch.Status)))
		ticket.Status = *patch.Status
	}
	if patch.Priority != nil {
		record(domain.FieldPriority, strPtr(string(ticket.Priority)), strPtr(string(*patch.Priority)))
		ticket.Priority = *patch.Priority
	}
	if patch.Subject != nil {
		record(domain.FieldSubject, strPtr(ticket.Subject), strPtr(*patch.Subject))
		ticket.Subject = *patch.Subject
	}
	if patch.Description != nil {
		record(domain.FieldDescription, strPtr(ticket.Description), strPtr(*patch.Description))
		ticket.Description = *patch.Description
	}
	if patch.AssignedAgent != nil {
		record(domain.FieldAssignedAgent, idString(ticket.AssignedAgentID), idString(patch.AssignedAgent.AgentID))
		ticket.AssignedAgentID = patch.AssignedAgent.AgentID
	}
	return changes
}

// nextUpdatedAt never returns a time at or before prev.
func (s *TicketService) nextUpdatedAt(prev time.Time) time.Time {
	now := s.clock()
	if !now.After(prev) {
		return prev.Add(time.Microsecond)
	}
	return now
}

// ListHistory returns the change log of a ticket to staff.
func (s *TicketService) ListHistory(ctx context.Context, identity domain.Identity, ticketID string) ([]domain.TicketHistory, error) {
	if _, err := s.loadTicket(ctx, s.store, identity, access.ActionViewHistory, ticketID); err != nil {
		return nil, err
	}
	history, err := s.store.History().ListByTicket(ctx, ticketID)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return history, nil
}

// ListAttachments returns the attachment references of a visible ticket.
func (s *TicketService) ListAttachments(ctx context.Context, identity domain.Identity, ticketID string) ([]domain.Attachment, error) {
	if _, err := s.loadTicket(ctx, s.store, identity, access.ActionViewTicket, ticketID); err != nil {
		return nil, err
	}
	attachments, err := s.store.Attachments().ListByTicket(ctx, ticketID)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return attachments, nil
}

// clock truncates to the storage precision so values survive a round trip.
func (s *TicketService) clock() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

func (s *TicketService) publishEvent(ctx context.Context, event events.Event) {
	publish(ctx, s.dispatcher, s.logger, event)
}

func publish(ctx context.Context, dispatcher events.Dispatcher, logger *zap.Logger, event events.Event) {
	if dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if err := dispatcher.Publish(ctx, event); err != nil {
		logger.Warn("event handler failed", zap.String("event_type", string(event.Type)), zap.String("ticket_id", event.TicketID), zap.Error(err))
	}
}

func actorOf(identity domain.Identity) events.Actor {
	return events.Actor{UserID: identity.UserID, Role: identity.Role}
}

func strPtr(v string) *string { return &v }

func idString(id *int64) *string {
	if id == nil {
		return nil
	}
	return strPtr(strconv.FormatInt(*id, 10))
}

func ptrEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func stringPreview(body string, max int) string {
	body = strings.TrimSpace(body)
	runes := []rune(body)
	if len(runes) <= max {
		return body
	}
	if max <= 3 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}
