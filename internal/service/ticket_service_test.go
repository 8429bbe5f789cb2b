package service

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/spec-kit/pqr-service/internal/access"
	"github.com/spec-kit/pqr-service/internal/domain"
	"github.com/spec-kit/pqr-service/internal/events"
	"github.com/spec-kit/pqr-service/internal/repository"
	apperrors "github.com/spec-kit/pqr-service/pkg/util/errorutil"
)

var ticketKeyPattern = regexp.MustCompile(`^PQR-\d{14}-[A-Z0-9]{6}$`)

func TestCreateTicketAssignsKeyAndSystemComment(t *testing.T) {
	f := newFixture(t)
	ticket := f.createTicket(t, f.client, func(s *TicketSubmission) {
		s.Attachments = []AttachmentRef{
			{FieldName: "invoice_file", StoredReference: "uploads/1_invoice.pdf"},
			{FieldName: "product_photo", StoredReference: "uploads/1_photo.jpg"},
		}
	})

	if !ticketKeyPattern.MatchString(ticket.TicketKey) {
		t.Fatalf("ticket key %q does not match pattern", ticket.TicketKey)
	}
	if ticket.Status != domain.TicketStatusOpen || ticket.Priority != domain.TicketPriorityMedium {
		t.Fatalf("defaults = %s/%s", ticket.Status, ticket.Priority)
	}
	if ticket.AuthorUserID != f.client.UserID {
		t.Fatalf("author = %d", ticket.AuthorUserID)
	}
	if ticket.IdealTemperatureRange != domain.DefaultTemperatureRange {
		t.Fatalf("temperature range = %q", ticket.IdealTemperatureRange)
	}

	comments, err := f.comments.ListComments(context.Background(), f.client, ticket.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(comments) != 1 {
		t.Fatalf("comments = %d, want the system comment", len(comments))
	}
	system := comments[0]
	if system.IsInternal || system.AuthorName != domain.SystemAuthorName {
		t.Fatalf("system comment = %+v", system)
	}
	want := "PQR registered successfully.\nType: complaint\nProduct: Chicken Nuggets\nClient: Juan Perez\nAttachments: 2"
	if system.Text != want {
		t.Fatalf("system comment text = %q", system.Text)
	}

	attachments, err := f.tickets.ListAttachments(context.Background(), f.client, ticket.ID)
	if err != nil || len(attachments) != 2 {
		t.Fatalf("attachments = %v, %v", attachments, err)
	}

	if len(f.published) != 1 || f.published[0].Type != events.EventTicketCreated {
		t.Fatalf("published = %+v", f.published)
	}
}

func TestCreateThenGetRoundTrip(t *testing.T) {
	f := newFixture(t)
	created := f.createTicket(t, f.client, func(s *TicketSubmission) {
		s.ClientName = "  Juan Perez  "
		s.ClientEmail = " Juan.Perez@KFC.com "
		s.ExpirationDate = "2025-01-31"
		s.Quantity = "500"
		s.DevolutionType = "refund"
		s.InvoiceNumber = "F-991"
		s.IdealTemperatureRange = "0-4 C"
	})

	got, err := f.tickets.GetTicket(context.Background(), f.client, created.ID)
	if err != nil {
		t.Fatal(err)
	}
	sub := validSubmission()
	if got.ClientName != "Juan Perez" || got.ClientEmail != "Juan.Perez@KFC.com" || got.Type != sub.Type ||
		got.Subject != sub.Subject || got.ProductName != sub.ProductName || got.BatchNumber != sub.BatchNumber ||
		got.Description != sub.Description {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if got.ExpirationDate == nil || got.ExpirationDate.Format("2006-01-02") != "2025-01-31" {
		t.Fatalf("expiration = %v", got.ExpirationDate)
	}
	if got.Quantity == nil || *got.Quantity != 500 {
		t.Fatalf("quantity = %v", got.Quantity)
	}
	if got.DevolutionType != "refund" || got.InvoiceNumber != "F-991" || got.IdealTemperatureRange != "0-4 C" {
		t.Fatalf("optional fields = %+v", got)
	}
	if got.AuthorName == nil || *got.AuthorName != f.client.Name {
		t.Fatalf("author name = %v", got.AuthorName)
	}
	if got.AssignedAgentName != nil {
		t.Fatalf("assigned agent name = %v", *got.AssignedAgentName)
	}
}

func TestCreateTicketLenientParsing(t *testing.T) {
	f := newFixture(t)
	ticket := f.createTicket(t, f.client, func(s *TicketSubmission) {
		s.ExpirationDate = "31/01/2025"
		s.Quantity = "half a kilo"
	})
	if ticket.ExpirationDate != nil {
		t.Fatalf("malformed date should be dropped, got %v", ticket.ExpirationDate)
	}
	if ticket.Quantity == nil || *ticket.Quantity != 0 {
		t.Fatalf("malformed quantity should be 0, got %v", ticket.Quantity)
	}

	empty := f.createTicket(t, f.client, nil)
	if empty.ExpirationDate != nil || empty.Quantity != nil {
		t.Fatalf("absent optional values should stay nil: %+v", empty)
	}
}

func TestCreateTicketReportsEveryMissingField(t *testing.T) {
	f := newFixture(t)
	sub := validSubmission()
	sub.Subject = "   "
	sub.BatchNumber = ""

	_, err := f.tickets.CreateTicket(context.Background(), f.client, sub)
	de := assertCode(t, err, apperrors.CodeValidation)
	fields, _ := de.Details["fields"].([]string)
	if fmt.Sprint(fields) != "[subject batch_number]" {
		t.Fatalf("fields = %v", fields)
	}
	if de.HTTPStatus != 400 {
		t.Fatalf("status = %d", de.HTTPStatus)
	}

	list, _ := f.tickets.ListTickets(context.Background(), f.admin, TicketQuery{})
	if len(list) != 0 {
		t.Fatal("invalid submission must not be stored")
	}
}

func TestCreateTicketValidatesFormats(t *testing.T) {
	f := newFixture(t)
	sub := validSubmission()
	sub.ClientEmail = "not-an-email"
	sub.Type = "praise"
	sub.Attachments = []AttachmentRef{{FieldName: "photo"}}

	_, err := f.tickets.CreateTicket(context.Background(), f.client, sub)
	de := assertCode(t, err, apperrors.CodeValidation)
	fields, _ := de.Details["fields"].([]string)
	if fmt.Sprint(fields) != "[client_email type attachments[0].stored_reference]" {
		t.Fatalf("fields = %v", fields)
	}
}

func TestCreateTicketRetriesKeyCollision(t *testing.T) {
	f := newFixture(t)
	keys := []string{"PQR-20240101000000-AAAAAA", "PQR-20240101000000-AAAAAA", "PQR-20240101000000-BBBBBB"}
	next := 0
	f.tickets.newKey = func(time.Time) string {
		key := keys[next]
		next++
		return key
	}

	first := f.createTicket(t, f.client, nil)
	second := f.createTicket(t, f.client, nil)
	if first.TicketKey == second.TicketKey {
		t.Fatalf("duplicate key %s", first.TicketKey)
	}
	if second.TicketKey != keys[2] {
		t.Fatalf("second key = %s, want retry to %s", second.TicketKey, keys[2])
	}
}

func TestCreateTicketGivesUpAfterKeyAttempts(t *testing.T) {
	f := newFixture(t)
	f.tickets.newKey = func(time.Time) string { return "PQR-20240101000000-AAAAAA" }
	f.tickets.keyAttempts = 3
	f.createTicket(t, f.client, nil)

	_, err := f.tickets.CreateTicket(context.Background(), f.client, validSubmission())
	assertCode(t, err, apperrors.CodeInternal)

	list, _ := f.tickets.ListTickets(context.Background(), f.admin, TicketQuery{})
	if len(list) != 1 {
		t.Fatalf("tickets = %d, want 1", len(list))
	}
}

func TestConcurrentCreatesNeverShareKey(t *testing.T) {
	f := newFixture(t)
	const n = 32
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = map[string]bool{}
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ticket, err := f.tickets.CreateTicket(context.Background(), f.client, validSubmission())
			if err != nil {
				t.Error(err)
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if seen[ticket.TicketKey] {
				t.Errorf("duplicate ticket key %s", ticket.TicketKey)
			}
			seen[ticket.TicketKey] = true
		}()
	}
	wg.Wait()
	if len(seen) != n {
		t.Fatalf("unique keys = %d, want %d", len(seen), n)
	}
}

func TestCreateTicketRollsBackWhenSystemCommentFails(t *testing.T) {
	f := newFixture(t)
	broken := NewTicketService(TicketDependencies{Store: failingStore{f.store}, Logger: zaptest.NewLogger(t)})

	sub := validSubmission()
	sub.Attachments = []AttachmentRef{{FieldName: "photo", StoredReference: "uploads/p.jpg"}}
	_, err := broken.CreateTicket(context.Background(), f.client, sub)
	assertCode(t, err, apperrors.CodeInternal)

	list, _ := f.tickets.ListTickets(context.Background(), f.admin, TicketQuery{})
	if len(list) != 0 {
		t.Fatalf("orphan ticket left behind: %+v", list)
	}
}

func TestTicketVisibility(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	mine := f.createTicket(t, f.client, nil)
	theirs := f.createTicket(t, f.otherClient, nil)
	byStaff := f.createTicket(t, f.intake, nil)

	list, _ := f.tickets.ListTickets(ctx, f.client, TicketQuery{})
	if len(list) != 1 || list[0].ID != mine.ID {
		t.Fatalf("client list = %+v", list)
	}

	_, err := f.tickets.GetTicket(ctx, f.client, theirs.ID)
	assertForbidden(t, err, access.ReasonTicketNotVisible)

	_, err = f.tickets.GetTicket(ctx, f.client, "00000000-0000-0000-0000-000000000000")
	assertCode(t, err, apperrors.CodeNotFound)

	for _, staff := range []domain.Identity{f.admin, f.quality, f.intake} {
		list, err := f.tickets.ListTickets(ctx, staff, TicketQuery{})
		if err != nil || len(list) != 3 {
			t.Fatalf("%s list = %d tickets, %v", staff.Role, len(list), err)
		}
		if _, err := f.tickets.GetTicket(ctx, staff, byStaff.ID); err != nil {
			t.Fatalf("%s get: %v", staff.Role, err)
		}
	}

	unknown := domain.Identity{UserID: f.otherClient.UserID, Role: domain.ParseRole("supervisor")}
	list, _ = f.tickets.ListTickets(ctx, unknown, TicketQuery{})
	if len(list) != 1 || list[0].ID != theirs.ID {
		t.Fatalf("unrecognized role must be scoped to own tickets, got %d", len(list))
	}
}

func TestListTicketsSearchAndOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	f.tickets.now = fixedClock(base)
	older := f.createTicket(t, f.client, nil)
	f.tickets.now = fixedClock(base.Add(time.Hour))
	newer := f.createTicket(t, f.client, func(s *TicketSubmission) { s.BatchNumber = "X999" })

	all, _ := f.tickets.ListTickets(ctx, f.admin, TicketQuery{})
	if len(all) != 2 || all[0].ID != newer.ID || all[1].ID != older.ID {
		t.Fatalf("expected newest first, got %v", []string{all[0].TicketKey, all[1].TicketKey})
	}

	// Scenario: admin finds the batch, a stranger gets an empty list.
	found, err := f.tickets.ListTickets(ctx, f.admin, TicketQuery{Search: "l123"})
	if err != nil || len(found) != 1 || found[0].ID != older.ID {
		t.Fatalf("admin search = %+v, %v", found, err)
	}
	none, err := f.tickets.ListTickets(ctx, f.otherClient, TicketQuery{Search: "L123"})
	if err != nil || none == nil || len(none) != 0 {
		t.Fatalf("stranger search = %+v, %v", none, err)
	}

	byKey, _ := f.tickets.ListTickets(ctx, f.admin, TicketQuery{Search: newer.TicketKey})
	if len(byKey) != 1 || byKey[0].ID != newer.ID {
		t.Fatalf("search by key = %+v", byKey)
	}
	byEmail, _ := f.tickets.ListTickets(ctx, f.client, TicketQuery{Search: "CLIENTE@KFC"})
	if len(byEmail) != 2 {
		t.Fatalf("search by email = %d", len(byEmail))
	}
}

func TestUpdateTicketAuthorization(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ticket := f.createTicket(t, f.client, nil)
	closed := domain.TicketStatusClosed

	_, err := f.tickets.UpdateTicket(ctx, f.client, ticket.ID, TicketPatch{Status: &closed})
	assertForbidden(t, err, access.ReasonClientCannotEditTicket)

	_, err = f.tickets.UpdateTicket(ctx, f.quality, ticket.ID, TicketPatch{Status: &closed})
	assertForbidden(t, err, access.ReasonNotAssignedAgent)

	_, err = f.tickets.UpdateTicket(ctx, f.admin, "missing", TicketPatch{Status: &closed})
	assertCode(t, err, apperrors.CodeNotFound)

	bogus := domain.TicketStatus("done")
	_, err = f.tickets.UpdateTicket(ctx, f.client, ticket.ID, TicketPatch{Status: &bogus})
	assertForbidden(t, err, access.ReasonClientCannotEditTicket)

	got, _ := f.tickets.GetTicket(ctx, f.admin, ticket.ID)
	if got.Status != domain.TicketStatusOpen {
		t.Fatalf("denied update changed status to %s", got.Status)
	}
}

func TestAssignedAgentUpdateBumpsUpdatedAt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	at := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	f.tickets.now = fixedClock(at)

	ticket := f.createTicket(t, f.client, nil)
	assigned, err := f.tickets.UpdateTicket(ctx, f.admin, ticket.ID, TicketPatch{AssignedAgent: &AgentAssignment{AgentID: int64Ptr(f.quality.UserID)}})
	if err != nil {
		t.Fatal(err)
	}
	if assigned.AssignedAgentName == nil || *assigned.AssignedAgentName != f.quality.Name {
		t.Fatalf("assigned agent name = %v", assigned.AssignedAgentName)
	}
	if !assigned.UpdatedAt.After(ticket.UpdatedAt) {
		t.Fatalf("UpdatedAt %s not after %s", assigned.UpdatedAt, ticket.UpdatedAt)
	}

	inProcess := domain.TicketStatusInProcess
	updated, err := f.tickets.UpdateTicket(ctx, f.quality, ticket.ID, TicketPatch{Status: &inProcess})
	if err != nil {
		t.Fatalf("assigned agent update: %v", err)
	}
	if updated.Status != domain.TicketStatusInProcess {
		t.Fatalf("status = %s", updated.Status)
	}
	if !updated.UpdatedAt.After(assigned.UpdatedAt) {
		t.Fatalf("UpdatedAt %s not after %s with a frozen clock", updated.UpdatedAt, assigned.UpdatedAt)
	}
	if updated.Subject != ticket.Subject || updated.Priority != ticket.Priority {
		t.Fatal("absent patch fields must be untouched")
	}

	history, err := f.tickets.ListHistory(ctx, f.intake, ticket.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 2 || history[0].Field != domain.FieldAssignedAgent || history[1].Field != domain.FieldStatus {
		t.Fatalf("history = %+v", history)
	}
	if *history[1].OldValue != "open" || *history[1].NewValue != "in_process" {
		t.Fatalf("status history = %s -> %s", *history[1].OldValue, *history[1].NewValue)
	}

	_, err = f.tickets.ListHistory(ctx, f.client, ticket.ID)
	assertForbidden(t, err, access.ReasonStaffOnly)
}

func TestUpdateTicketValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ticket := f.createTicket(t, f.client, nil)

	blank := "  "
	bogus := domain.TicketPriority("urgent")
	_, err := f.tickets.UpdateTicket(ctx, f.admin, ticket.ID, TicketPatch{Subject: &blank, Priority: &bogus})
	de := assertCode(t, err, apperrors.CodeValidation)
	if fields, _ := de.Details["fields"].([]string); fmt.Sprint(fields) != "[priority subject]" {
		t.Fatalf("fields = %v", fields)
	}

	_, err = f.tickets.UpdateTicket(ctx, f.admin, ticket.ID, TicketPatch{AssignedAgent: &AgentAssignment{AgentID: int64Ptr(f.client.UserID)}})
	assertCode(t, err, apperrors.CodeValidation)

	_, err = f.tickets.UpdateTicket(ctx, f.admin, ticket.ID, TicketPatch{AssignedAgent: &AgentAssignment{AgentID: int64Ptr(9999)}})
	assertCode(t, err, apperrors.CodeValidation)
}

func TestUpdateTicketUnassignAndNoop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ticket := f.createTicket(t, f.client, nil)

	if _, err := f.tickets.UpdateTicket(ctx, f.admin, ticket.ID, TicketPatch{AssignedAgent: &AgentAssignment{AgentID: int64Ptr(f.intake.UserID)}}); err != nil {
		t.Fatal(err)
	}
	unassigned, err := f.tickets.UpdateTicket(ctx, f.admin, ticket.ID, TicketPatch{AssignedAgent: &AgentAssignment{}})
	if err != nil {
		t.Fatal(err)
	}
	if unassigned.AssignedAgentID != nil {
		t.Fatalf("agent still assigned: %d", *unassigned.AssignedAgentID)
	}

	// intake lost the assignment and with it the right to edit
	high := domain.TicketPriorityHigh
	_, err = f.tickets.UpdateTicket(ctx, f.intake, ticket.ID, TicketPatch{Priority: &high})
	assertForbidden(t, err, access.ReasonNotAssignedAgent)

	noop, err := f.tickets.UpdateTicket(ctx, f.admin, ticket.ID, TicketPatch{})
	if err != nil {
		t.Fatal(err)
	}
	if !noop.UpdatedAt.After(unassigned.UpdatedAt) {
		t.Fatal("empty patch still bumps UpdatedAt")
	}
	history, _ := f.tickets.ListHistory(ctx, f.admin, ticket.ID)
	if len(history) != 2 {
		t.Fatalf("empty patch must not add history, got %d entries", len(history))
	}

	last := f.published[len(f.published)-1]
	payload, ok := last.Payload.(events.TicketUpdatedPayload)
	if last.Type != events.EventTicketUpdated || !ok || len(payload.Changes) != 0 {
		t.Fatalf("last event = %+v", last)
	}
}

func TestUpdateTicketAnyStatusTransition(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ticket := f.createTicket(t, f.client, nil)

	for _, status := range []domain.TicketStatus{domain.TicketStatusClosed, domain.TicketStatusOpen, domain.TicketStatusInProcess, domain.TicketStatusClosed} {
		status := status
		got, err := f.tickets.UpdateTicket(ctx, f.admin, ticket.ID, TicketPatch{Status: &status})
		if err != nil || got.Status != status {
			t.Fatalf("set %s: %v", status, err)
		}
	}
}

var _ repository.Store = failingStore{}

func TestListTicketsFiltersAndPages(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	var created []*domain.Ticket
	for i := 0; i < 4; i++ {
		f.tickets.now = fixedClock(base.Add(time.Duration(i) * time.Minute))
		created = append(created, f.createTicket(t, f.client, nil))
	}
	inProcess := domain.TicketStatusInProcess
	for _, ticket := range created[:2] {
		patch := TicketPatch{Status: &inProcess, AssignedAgent: &AgentAssignment{AgentID: int64Ptr(f.quality.UserID)}}
		if _, err := f.tickets.UpdateTicket(ctx, f.admin, ticket.ID, patch); err != nil {
			t.Fatal(err)
		}
	}

	byStatus, err := f.tickets.ListTickets(ctx, f.admin, TicketQuery{Statuses: []domain.TicketStatus{domain.TicketStatusInProcess}})
	if err != nil || len(byStatus) != 2 || byStatus[0].ID != created[1].ID {
		t.Fatalf("status filter = %d tickets, %v", len(byStatus), err)
	}
	mine, _ := f.tickets.ListTickets(ctx, f.quality, TicketQuery{AssignedAgentID: int64Ptr(f.quality.UserID)})
	if len(mine) != 2 {
		t.Fatalf("assignee filter = %d tickets", len(mine))
	}
	page, _ := f.tickets.ListTickets(ctx, f.client, TicketQuery{Limit: 2, Offset: 1})
	if len(page) != 2 || page[0].ID != created[2].ID || page[1].ID != created[1].ID {
		t.Fatalf("page = %d tickets", len(page))
	}
	past, _ := f.tickets.ListTickets(ctx, f.client, TicketQuery{Offset: 10})
	if past == nil || len(past) != 0 {
		t.Fatalf("offset past end = %v", past)
	}

	_, err = f.tickets.ListTickets(ctx, f.admin, TicketQuery{Statuses: []domain.TicketStatus{"archived"}, Limit: 500, Offset: -1})
	de := assertCode(t, err, apperrors.CodeValidation)
	if fields := fmt.Sprint(de.Details["fields"]); fields != "[status[0] limit offset]" {
		t.Fatalf("fields = %s", fields)
	}
}

// lockingStore records whether ticket reads inside a transaction take the
// row lock.
type lockingStore struct {
	repository.Store
	inTx  bool
	reads *[]string
}

func (s lockingStore) Tickets() repository.TicketRepository {
	return lockingTickets{TicketRepository: s.Store.Tickets(), inTx: s.inTx, reads: s.reads}
}

func (s lockingStore) WithinTx(ctx context.Context, fn func(repository.Store) error) error {
	return s.Store.WithinTx(ctx, func(tx repository.Store) error {
		return fn(lockingStore{Store: tx, inTx: true, reads: s.reads})
	})
}

type lockingTickets struct {
	repository.TicketRepository
	inTx  bool
	reads *[]string
}

func (r lockingTickets) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	if r.inTx {
		*r.reads = append(*r.reads, "plain")
	}
	return r.TicketRepository.GetByID(ctx, id)
}

func (r lockingTickets) GetByIDForUpdate(ctx context.Context, id string) (*domain.Ticket, error) {
	if !r.inTx {
		*r.reads = append(*r.reads, "lock outside tx")
	} else {
		*r.reads = append(*r.reads, "locked")
	}
	return r.TicketRepository.GetByIDForUpdate(ctx, id)
}

func TestUpdateTicketLocksRowBeforePatching(t *testing.T) {
	f := newFixture(t)
	ticket := f.createTicket(t, f.client, nil)

	var reads []string
	f.tickets.store = lockingStore{Store: f.store, reads: &reads}
	high := domain.TicketPriorityHigh
	if _, err := f.tickets.UpdateTicket(context.Background(), f.admin, ticket.ID, TicketPatch{Priority: &high}); err != nil {
		t.Fatal(err)
	}
	if len(reads) == 0 || reads[0] != "locked" {
		t.Fatalf("transactional reads = %v, want the patched row locked first", reads)
	}
}

func TestConcurrentPatchesKeepUntouchedFields(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ticket := f.createTicket(t, f.client, nil)

	closed := domain.TicketStatusClosed
	high := domain.TicketPriorityHigh
	patches := []TicketPatch{{Status: &closed}, {Priority: &high}}

	var wg sync.WaitGroup
	errs := make([]error, len(patches))
	for i, patch := range patches {
		wg.Add(1)
		go func(i int, patch TicketPatch) {
			defer wg.Done()
			_, errs[i] = f.tickets.UpdateTicket(ctx, f.admin, ticket.ID, patch)
		}(i, patch)
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			t.Fatal(err)
		}
	}

	got, _ := f.tickets.GetTicket(ctx, f.admin, ticket.ID)
	if got.Status != closed || got.Priority != high {
		t.Fatalf("status=%s priority=%s, a patch was lost", got.Status, got.Priority)
	}
	history, _ := f.tickets.ListHistory(ctx, f.admin, ticket.ID)
	for _, entry := range history {
		if entry.OldValue == nil {
			t.Fatalf("history %s has no old value", entry.Field)
		}
		if entry.Field == domain.FieldStatus && *entry.OldValue != string(domain.TicketStatusOpen) {
			t.Fatalf("status history old value = %s", *entry.OldValue)
		}
	}
}
