package access

import (
	"github.com/spec-kit/pqr-service/internal/domain"
	apperrors "github.com/spec-kit/pqr-service/pkg/util/errorutil"
)

// Action is a guarded operation.
type Action string

const (
	ActionCreateTicket  Action = "ticket.create"
	ActionViewTicket    Action = "ticket.view"
	ActionUpdateTicket  Action = "ticket.update"
	ActionCreateComment Action = "comment.create"
	ActionListComments  Action = "comment.list"
	ActionViewHistory   Action = "ticket.history"
	ActionViewStats     Action = "stats.view"
	ActionListUsers     Action = "user.list"
	ActionCreateUser    Action = "user.create"
	ActionListAgents    Action = "agent.list"
)

// Stable deny reasons.
const (
	ReasonClientCannotEditTicket = "ClientCannotEditTicket"
	ReasonNotAssignedAgent       = "NotAssignedAgent"
	ReasonTicketNotVisible       = "TicketNotVisible"
	ReasonStaffOnly              = "StaffOnly"
	ReasonAdminOnly              = "AdminOnly"
	ReasonTicketRequired         = "TicketRequired"
	ReasonUnknownAction          = "UnknownAction"
)

var reasonMessages = map[string]string{
	ReasonClientCannotEditTicket: "customers cannot edit a ticket once it has been submitted",
	ReasonNotAssignedAgent:       "only administrators or the assigned agent can edit this ticket",
	ReasonTicketNotVisible:       "access denied to this ticket",
	ReasonStaffOnly:              "staff role required",
	ReasonAdminOnly:              "administrator role required",
	ReasonTicketRequired:         "a target ticket is required",
	ReasonUnknownAction:          "action not permitted",
}

// Decision is the outcome of Authorize.
type Decision struct {
	Allowed bool
	Reason  string
}

var allow = Decision{Allowed: true}

func deny(reason string) Decision {
	return Decision{Reason: reason}
}

// Err converts a deny decision into a Forbidden error; nil when allowed.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	msg, ok := reasonMessages[d.Reason]
	if !ok {
		msg = reasonMessages[ReasonUnknownAction]
	}
	return apperrors.NewForbidden(d.Reason, msg)
}

// Authorize evaluates the action table. Ticket-scoped actions need ticket;
// unknown actions are denied.
func Authorize(identity domain.Identity, action Action, ticket *domain.Ticket) Decision {
	switch action {
	case ActionCreateTicket, ActionViewStats:
		return allow

	case ActionViewTicket, ActionCreateComment, ActionListComments:
		if ticket == nil {
			return deny(ReasonTicketRequired)
		}
		if !TicketScopeFor(identity).Allows(ticket) {
			return deny(ReasonTicketNotVisible)
		}
		return allow

	case ActionUpdateTicket:
		if ticket == nil {
			return deny(ReasonTicketRequired)
		}
		if identity.Role.IsClient() {
			return deny(ReasonClientCannotEditTicket)
		}
		if identity.Role.IsAdmin() {
			return allow
		}
		if ticket.AssignedAgentID != nil && *ticket.AssignedAgentID == identity.UserID {
			return allow
		}
		return deny(ReasonNotAssignedAgent)

	case ActionViewHistory:
		if ticket == nil {
			return deny(ReasonTicketRequired)
		}
		if !identity.Role.IsStaff() {
			return deny(ReasonStaffOnly)
		}
		return allow

	case ActionListUsers, ActionCreateUser:
		if identity.Role.IsAdmin() {
			return allow
		}
		return deny(ReasonAdminOnly)

	case ActionListAgents:
		if identity.Role.IsStaff() {
			return allow
		}
		return deny(ReasonStaffOnly)
	}
	return deny(ReasonUnknownAction)
}

// Require is Authorize returning an error suitable for service code.
func Require(identity domain.Identity, action Action, ticket *domain.Ticket) error {
	return Authorize(identity, action, ticket).Err()
}
