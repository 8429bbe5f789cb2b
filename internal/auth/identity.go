package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/pqr-service/internal/domain"
	apperrors "github.com/spec-kit/pqr-service/pkg/util/errorutil"
)

// UserLookup is the slice of the user repository the resolver needs.
type UserLookup interface {
	GetByID(ctx context.Context, id int64) (*domain.User, error)
}

// IdentityResolver turns a bearer token into the caller's identity.
type IdentityResolver struct {
	tokens *TokenManager
	users  UserLookup
}

// NewIdentityResolver constructs a resolver.
func NewIdentityResolver(tokens *TokenManager, users UserLookup) *IdentityResolver {
	return &IdentityResolver{tokens: tokens, users: users}
}

// Resolve validates token and loads the current role from the user row.
func (r *IdentityResolver) Resolve(ctx context.Context, token string) (domain.Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.Identity{}, apperrors.NewUnauthenticated("missing token")
	}

	claims, err := r.tokens.ParseToken(token)
	if err != nil {
		return domain.Identity{}, apperrors.NewUnauthenticated("invalid token")
	}
	userID, err := claims.UserID()
	if err != nil {
		return domain.Identity{}, apperrors.NewUnauthenticated("invalid token subject")
	}

	user, err := r.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Identity{}, apperrors.NewUserNotFound()
		}
		return domain.Identity{}, apperrors.NewInternalError(err)
	}

	return domain.Identity{UserID: user.ID, Role: user.Role, Name: user.Name}, nil
}
