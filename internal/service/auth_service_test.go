package service

import (
	"context"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/spec-kit/pqr-service/internal/access"
	"github.com/spec-kit/pqr-service/internal/auth"
	"github.com/spec-kit/pqr-service/internal/config"
	"github.com/spec-kit/pqr-service/internal/domain"
	"github.com/spec-kit/pqr-service/internal/repository/memory"
	apperrors "github.com/spec-kit/pqr-service/pkg/util/errorutil"
)

func newAuthService(t *testing.T) (*AuthService, *memory.Store, *auth.TokenManager) {
	t.Helper()
	store := memory.NewStore()
	tokens := auth.NewTokenManager("test-secret", 60)
	svc := NewAuthService(config.AuthConfig{BcryptCost: 4}, store.Users(), tokens, zaptest.NewLogger(t))
	return svc, store, tokens
}

func TestRegisterAlwaysCreatesCustomer(t *testing.T) {
	svc, store, tokens := newAuthService(t)
	ctx := context.Background()

	session, err := svc.Register(ctx, Registration{Name: "Ana", Email: " Ana@Example.com ", Password: "password1"})
	if err != nil {
		t.Fatal(err)
	}
	if !session.User.Role.IsClient() || session.User.Email != "ana@example.com" {
		t.Fatalf("registered user = %+v", session.User)
	}

	identity, err := auth.NewIdentityResolver(tokens, store.Users()).Resolve(ctx, session.Token)
	if err != nil || identity.UserID != session.User.ID {
		t.Fatalf("token does not resolve: %+v, %v", identity, err)
	}

	_, err = svc.Register(ctx, Registration{Name: "Ana 2", Email: "ANA@example.com", Password: "password2"})
	assertCode(t, err, apperrors.CodeConflict)

	_, err = svc.Register(ctx, Registration{Email: "bad", Password: "short"})
	de := assertCode(t, err, apperrors.CodeValidation)
	if fields, _ := de.Details["fields"].([]string); len(fields) != 3 {
		t.Fatalf("fields = %v", fields)
	}
}

func TestLogin(t *testing.T) {
	svc, _, _ := newAuthService(t)
	ctx := context.Background()
	if _, err := svc.Register(ctx, Registration{Name: "Ana", Email: "ana@example.com", Password: "password1"}); err != nil {
		t.Fatal(err)
	}

	if _, err := svc.Login(ctx, "ANA@example.com", "password1"); err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	_, err := svc.Login(ctx, "ana@example.com", "wrong-pass")
	assertCode(t, err, apperrors.CodeUnauthenticated)
	_, err = svc.Login(ctx, "nobody@example.com", "password1")
	assertCode(t, err, apperrors.CodeUnauthenticated)
	_, err = svc.Login(ctx, "", "")
	assertCode(t, err, apperrors.CodeValidation)
}

func TestCreateUserAdminOnly(t *testing.T) {
	svc, _, _ := newAuthService(t)
	ctx := context.Background()
	admin := domain.Identity{UserID: 1, Role: domain.Admin}
	input := NewUserInput{Name: "Carla", Email: "carla@kfc.com", Password: "password1", Role: "calidad"}

	_, err := svc.CreateUser(ctx, domain.Identity{UserID: 2, Role: domain.Quality}, input)
	assertForbidden(t, err, access.ReasonAdminOnly)

	user, err := svc.CreateUser(ctx, admin, input)
	if err != nil {
		t.Fatal(err)
	}
	if user.Role != domain.Quality {
		t.Fatalf("role = %+v", user.Role)
	}

	_, err = svc.CreateUser(ctx, admin, input)
	assertCode(t, err, apperrors.CodeConflict)

	input.Email = "x@kfc.com"
	input.Role = "superadmin"
	_, err = svc.CreateUser(ctx, admin, input)
	assertCode(t, err, apperrors.CodeValidation)

	users, err := svc.ListUsers(ctx, admin)
	if err != nil || len(users) != 1 {
		t.Fatalf("ListUsers() = %v, %v", users, err)
	}
	_, err = svc.ListUsers(ctx, domain.Identity{UserID: 3, Role: domain.Client})
	assertForbidden(t, err, access.ReasonAdminOnly)
}

func TestListAgentsCountsAssignments(t *testing.T) {
	f := newFixture(t)
	svc := NewAuthService(config.AuthConfig{BcryptCost: 4}, f.store.Users(), auth.NewTokenManager("s", 60), zaptest.NewLogger(t))
	ctx := context.Background()

	ticket := f.createTicket(t, f.client, nil)
	if _, err := f.tickets.UpdateTicket(ctx, f.admin, ticket.ID, TicketPatch{AssignedAgent: &AgentAssignment{AgentID: int64Ptr(f.intake.UserID)}}); err != nil {
		t.Fatal(err)
	}

	agents, err := svc.ListAgents(ctx, f.quality)
	if err != nil {
		t.Fatal(err)
	}
	if len(agents) != 3 {
		t.Fatalf("agents = %d, want the three staff users", len(agents))
	}
	for _, agent := range agents {
		want := int64(0)
		if agent.ID == f.intake.UserID {
			want = 1
		}
		if agent.AssignedTickets != want {
			t.Fatalf("%s assigned = %d, want %d", agent.Name, agent.AssignedTickets, want)
		}
	}

	_, err = svc.ListAgents(ctx, f.client)
	assertForbidden(t, err, access.ReasonStaffOnly)
	_, err = svc.ListAgents(ctx, domain.Identity{UserID: 99, Role: domain.ParseRole("intern")})
	assertForbidden(t, err, access.ReasonStaffOnly)
}

func TestChangePassword(t *testing.T) {
	svc, _, _ := newAuthService(t)
	ctx := context.Background()
	session, err := svc.Register(ctx, Registration{Name: "Ana", Email: "ana@example.com", Password: "password1"})
	if err != nil {
		t.Fatal(err)
	}
	identity := domain.Identity{UserID: session.User.ID, Role: session.User.Role}

	err = svc.ChangePassword(ctx, identity, PasswordChange{CurrentPassword: "nope", NewPassword: "password2"})
	assertCode(t, err, apperrors.CodeUnauthenticated)

	if err := svc.ChangePassword(ctx, identity, PasswordChange{CurrentPassword: "password1", NewPassword: "password2"}); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Login(ctx, "ana@example.com", "password2"); err != nil {
		t.Fatalf("login with new password: %v", err)
	}
	_, err = svc.Login(ctx, "ana@example.com", "password1")
	assertCode(t, err, apperrors.CodeUnauthenticated)
}
