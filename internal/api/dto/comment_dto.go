package dto

import (
	"time"

	"github.com/spec-kit/pqr-service/internal/domain"
)

// CreateCommentRequest payload. IsInternal is ignored for customers.
type CreateCommentRequest struct {
	Text       string `json:"text"`
	IsInternal bool   `json:"is_internal"`
}

// CommentResponse is one ticket comment.
type CommentResponse struct {
	ID           int64     `json:"id"`
	TicketID     string    `json:"ticket_id"`
	AuthorUserID int64     `json:"author_user_id"`
	AuthorName   string    `json:"author_name"`
	Text         string    `json:"text"`
	IsInternal   bool      `json:"is_internal"`
	CreatedAt    time.Time `json:"created_at"`
}

// NewCommentResponse maps a domain comment.
func NewCommentResponse(c *domain.Comment) CommentResponse {
	return CommentResponse{
		ID:           c.ID,
		TicketID:     c.TicketID,
		AuthorUserID: c.AuthorUserID,
		AuthorName:   c.AuthorName,
		Text:         c.Text,
		IsInternal:   c.IsInternal,
		CreatedAt:    c.CreatedAt,
	}
}

// NewCommentList maps comments, oldest first as given.
func NewCommentList(comments []domain.Comment) []CommentResponse {
	items := make([]CommentResponse, 0, len(comments))
	for i := range comments {
		items = append(items, NewCommentResponse(&comments[i]))
	}
	return items
}
