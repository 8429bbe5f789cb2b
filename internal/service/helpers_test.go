package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/spec-kit/pqr-service/internal/domain"
	"github.com/spec-kit/pqr-service/internal/events"
	"github.com/spec-kit/pqr-service/internal/repository"
	"github.com/spec-kit/pqr-service/internal/repository/memory"
	apperrors "github.com/spec-kit/pqr-service/pkg/util/errorutil"
)

type fixture struct {
	store      *memory.Store
	tickets    *TicketService
	comments   *CommentService
	stats      *StatsService
	dispatcher events.Dispatcher
	publishMu  sync.Mutex
	published  []events.Event

	admin, quality, intake, client, otherClient domain.Identity
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{store: memory.NewStore(), dispatcher: events.NewInMemoryDispatcher()}
	for _, et := range []events.EventType{events.EventTicketCreated, events.EventTicketUpdated, events.EventCommentAdded} {
		f.dispatcher.Subscribe(et, func(_ context.Context, e events.Event) error {
			f.publishMu.Lock()
			defer f.publishMu.Unlock()
			f.published = append(f.published, e)
			return nil
		})
	}

	logger := zaptest.NewLogger(t)
	f.tickets = NewTicketService(TicketDependencies{Store: f.store, Dispatcher: f.dispatcher, Logger: logger})
	f.comments = NewCommentService(f.store, f.tickets, f.dispatcher, logger)
	f.stats = NewStatsService(f.store.Tickets(), nil, logger)

	f.admin = f.seedUser(t, "Admin", "admin@kfc.com", domain.Admin)
	f.quality = f.seedUser(t, "Quality Agent", "calidad@kfc.com", domain.Quality)
	f.intake = f.seedUser(t, "Intake Agent", "registro@kfc.com", domain.Intake)
	f.client = f.seedUser(t, "Cliente Uno", "cliente@kfc.com", domain.Client)
	f.otherClient = f.seedUser(t, "Cliente Dos", "otro@kfc.com", domain.Client)
	return f
}

func (f *fixture) seedUser(t *testing.T, name, email string, role domain.Role) domain.Identity {
	t.Helper()
	user := &domain.User{Name: name, Email: email, Role: role}
	if err := f.store.Users().Create(context.Background(), user); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return domain.Identity{UserID: user.ID, Role: role, Name: name}
}

func validSubmission() TicketSubmission {
	return TicketSubmission{
		ClientEmail: "cliente@kfc.com",
		ClientName:  "Juan Perez",
		Type:        domain.TicketTypeComplaint,
		Subject:     "Spoiled batch",
		ProductName: "Chicken Nuggets",
		BatchNumber: "L123",
		Description: "The product smelled bad on opening.",
	}
}

func (f *fixture) createTicket(t *testing.T, who domain.Identity, mutate func(*TicketSubmission)) *domain.Ticket {
	t.Helper()
	sub := validSubmission()
	if mutate != nil {
		mutate(&sub)
	}
	ticket, err := f.tickets.CreateTicket(context.Background(), who, sub)
	if err != nil {
		t.Fatalf("CreateTicket() error = %v", err)
	}
	return ticket
}

func assertCode(t *testing.T, err error, code string) *apperrors.DomainError {
	t.Helper()
	var de *apperrors.DomainError
	if !errors.As(err, &de) || de.Code != code {
		t.Fatalf("error = %v, want code %s", err, code)
	}
	return de
}

func assertForbidden(t *testing.T, err error, reason string) {
	t.Helper()
	if de := assertCode(t, err, apperrors.CodeForbidden); de.Reason != reason {
		t.Fatalf("reason = %q, want %q", de.Reason, reason)
	}
}

func int64Ptr(v int64) *int64 { return &v }

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

// failingStore makes every comment insert fail, inside or outside a
// transaction.
type failingStore struct {
	repository.Store
}

func (s failingStore) Comments() repository.CommentRepository { return failingComments{} }

func (s failingStore) WithinTx(ctx context.Context, fn func(repository.Store) error) error {
	return s.Store.WithinTx(ctx, func(tx repository.Store) error {
		return fn(failingStore{tx})
	})
}

type failingComments struct{}

func (failingComments) Create(context.Context, *domain.Comment) error {
	return errors.New("disk full")
}

func (failingComments) ListByTicket(context.Context, string, bool) ([]domain.Comment, error) {
	return nil, nil
}
