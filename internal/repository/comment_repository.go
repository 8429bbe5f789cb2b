package repository

import (
	"context"

	"github.com/spec-kit/pqr-service/internal/domain"
)

// CommentRepository manages ticket comments.
type CommentRepository interface {
	Create(ctx context.Context, comment *domain.Comment) error
	// ListByTicket returns comments oldest first, ties broken by insertion order.
	ListByTicket(ctx context.Context, ticketID string, publicOnly bool) ([]domain.Comment, error)
}

type commentRepository struct {
	db DBTX
}

// NewCommentRepository builds repository.
func NewCommentRepository(db DBTX) CommentRepository {
	return &commentRepository{db: db}
}

func (r *commentRepository) Create(ctx context.Context, comment *domain.Comment) error {
	const query = `
        INSERT INTO ticket_comments (ticket_id, author_user_id, author_name, body, is_internal, created_at)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING id`
	return r.db.QueryRow(ctx, query,
		comment.TicketID,
		comment.AuthorUserID,
		comment.AuthorName,
		comment.Text,
		comment.IsInternal,
		comment.CreatedAt,
	).Scan(&comment.ID)
}

func (r *commentRepository) ListByTicket(ctx context.Context, ticketID string, publicOnly bool) ([]domain.Comment, error) {
	const query = `
        SELECT id, ticket_id::text, author_user_id, author_name, body, is_internal, created_at
        FROM ticket_comments
        WHERE ticket_id=$1 AND (NOT $2 OR is_internal = FALSE)
        ORDER BY created_at ASC, id ASC`
	rows, err := r.db.Query(ctx, query, ticketID, publicOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []domain.Comment{}
	for rows.Next() {
		var c domain.Comment
		if err := rows.Scan(
			&c.ID,
			&c.TicketID,
			&c.AuthorUserID,
			&c.AuthorName,
			&c.Text,
			&c.IsInternal,
			&c.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, rows.Err()
}
