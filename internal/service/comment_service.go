package service

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/pqr-service/internal/access"
	"github.com/spec-kit/pqr-service/internal/domain"
	"github.com/spec-kit/pqr-service/internal/events"
	"github.com/spec-kit/pqr-service/internal/repository"
	apperrors "github.com/spec-kit/pqr-service/pkg/util/errorutil"
)

const commentPreviewLen = 120

// CommentService owns comment creation and role-filtered listing.
type CommentService struct {
	store      repository.Store
	tickets    *TicketService
	dispatcher events.Dispatcher
	logger     *zap.Logger
	now        func() time.Time
}

// NewCommentService builds the service. It reuses the ticket service's
// read check so tickets and comments report hidden records the same way.
func NewCommentService(store repository.Store, tickets *TicketService, dispatcher events.Dispatcher, logger *zap.Logger) *CommentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CommentService{store: store, tickets: tickets, dispatcher: dispatcher, logger: logger, now: tickets.clock}
}

// AddComment appends a comment. Non-staff comments are always public.
func (s *CommentService) AddComment(ctx context.Context, identity domain.Identity, ticketID, text string, requestedInternal bool) (*domain.Comment, error) {
	ticket, err := s.tickets.loadTicket(ctx, s.store, identity, access.ActionCreateComment, ticketID)
	if err != nil {
		return nil, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apperrors.NewMissingFields([]string{"text"}, map[string]string{"text": "is required"})
	}

	authorName := identity.Name
	if authorName == "" {
		if user, err := s.store.Users().GetByID(ctx, identity.UserID); err == nil {
			authorName = user.Name
		}
	}

	comment := &domain.Comment{
		TicketID:     ticket.ID,
		AuthorUserID: identity.UserID,
		AuthorName:   authorName,
		Text:         text,
		IsInternal:   access.ForceInternal(identity, requestedInternal),
		CreatedAt:    s.now(),
	}
	if requestedInternal && !comment.IsInternal {
		s.logger.Info("internal flag dropped for non-staff author", zap.Int64("user_id", identity.UserID), zap.String("ticket_id", ticket.ID))
	}
	if err := s.store.Comments().Create(ctx, comment); err != nil {
		return nil, apperrors.MapError(err)
	}

	publish(ctx, s.dispatcher, s.logger, events.Event{
		Type:      events.EventCommentAdded,
		TicketID:  ticket.ID,
		TicketKey: ticket.TicketKey,
		Actor:     actorOf(identity),
		Payload: events.CommentAddedPayload{
			CommentID:   comment.ID,
			IsInternal:  comment.IsInternal,
			AuthorName:  comment.AuthorName,
			BodyPreview: stringPreview(comment.Text, commentPreviewLen),
		},
	})
	return comment, nil
}

// ListComments returns the comments the caller may read, oldest first.
func (s *CommentService) ListComments(ctx context.Context, identity domain.Identity, ticketID string) ([]domain.Comment, error) {
	ticket, err := s.tickets.loadTicket(ctx, s.store, identity, access.ActionListComments, ticketID)
	if err != nil {
		return nil, err
	}
	scope := access.CommentScopeFor(identity)
	comments, err := s.store.Comments().ListByTicket(ctx, ticket.ID, scope.PublicOnly)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return comments, nil
}
