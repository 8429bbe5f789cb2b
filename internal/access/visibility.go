// Package access decides which tickets, comments and aggregates a caller
// may read, and whether a mutating action is allowed.
package access

import "github.com/spec-kit/pqr-service/internal/domain"

// TicketScope restricts a ticket query. A nil AuthorID means unrestricted.
type TicketScope struct {
	AuthorID *int64
}

// Unrestricted reports whether the scope admits every ticket.
func (s TicketScope) Unrestricted() bool {
	return s.AuthorID == nil
}

// Allows checks an already fetched ticket against the scope.
func (s TicketScope) Allows(ticket *domain.Ticket) bool {
	if ticket == nil {
		return false
	}
	if s.AuthorID == nil {
		return true
	}
	return ticket.AuthorUserID == *s.AuthorID
}

// CommentScope restricts comment reads on tickets already admitted by Ticket.
type CommentScope struct {
	Ticket     TicketScope
	PublicOnly bool
}

// Allows checks one comment of a visible ticket.
func (s CommentScope) Allows(comment *domain.Comment) bool {
	if comment == nil {
		return false
	}
	return !s.PublicOnly || !comment.IsInternal
}

// StatsScope restricts aggregate computation.
type StatsScope struct {
	Ticket        TicketScope
	IncludeAgents bool
}

// TicketScopeFor returns the ticket predicate for the identity. Staff see
// everything; customers and unrecognized roles only their own tickets.
func TicketScopeFor(identity domain.Identity) TicketScope {
	if identity.Role.IsStaff() {
		return TicketScope{}
	}
	authorID := identity.UserID
	return TicketScope{AuthorID: &authorID}
}

// CommentScopeFor hides internal comments from every non-staff role.
func CommentScopeFor(identity domain.Identity) CommentScope {
	return CommentScope{
		Ticket:     TicketScopeFor(identity),
		PublicOnly: !identity.Role.IsStaff(),
	}
}

// StatsScopeFor omits the per-agent breakdown for non-staff roles.
func StatsScopeFor(identity domain.Identity) StatsScope {
	return StatsScope{
		Ticket:        TicketScopeFor(identity),
		IncludeAgents: identity.Role.IsStaff(),
	}
}

// ForceInternal applies the write-time override: only staff may create
// internal comments.
func ForceInternal(identity domain.Identity, requested bool) bool {
	return requested && identity.Role.IsStaff()
}
