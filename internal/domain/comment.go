package domain

import "time"

// SystemAuthorName is the display name of service-generated comments.
const SystemAuthorName = "Automated System"

// Comment is a note on a ticket. Internal comments are staff-only.
type Comment struct {
	ID           int64
	TicketID     string
	AuthorUserID int64
	AuthorName   string
	Text         string
	IsInternal   bool
	CreatedAt    time.Time
}
