package access

import (
	"context"

	"github.com/google/uuid"
	"github.com/msgdeck/msgdeck/internal/apperr"
	"github.com/msgdeck/msgdeck/internal/store"
	"github.com/rs/zerolog"
)

// Role sets required by entry points.
var (
	Managers = []store.Role{store.RoleOwner, store.RoleAdmin}
	Writers  = []store.Role{store.RoleOwner, store.RoleAdmin, store.RoleMember}
	Readers  = []store.Role{store.RoleOwner, store.RoleAdmin, store.RoleMember, store.RoleViewer}
)

// MembershipReader resolves the caller's role within a tenant.
type MembershipReader interface {
	GetMembership(ctx context.Context, userID, tenantID uuid.UUID) (*store.Membership, error)
}

// Authorizer is the contract entry points depend on. *Guard implements it.
type Authorizer interface {
	Authorize(ctx context.Context, userID, tenantID uuid.UUID, roles ...store.Role) error
}

type Guard struct {
	memberships MembershipReader
	logger      *zerolog.Logger
}

func New(memberships MembershipReader, logger *zerolog.Logger) *Guard {
	log := logger.With().Str("channel", "access_guard").Logger()

	return &Guard{
		memberships: memberships,
		logger:      &log,
	}
}

// Authorize fails with Forbidden unless userID is a member of tenantID holding one of roles.
func (g *Guard) Authorize(ctx context.Context, userID, tenantID uuid.UUID, roles ...store.Role) error {
	m, err := g.memberships.GetMembership(ctx, userID, tenantID)
	switch {
	case apperr.Is(err, apperr.KindNotFound):
		g.logger.Debug().Str("user_id", userID.String()).Str("tenant_id", tenantID.String()).Msg("no membership")
		return apperr.Forbidden("user is not a member of the tenant")
	case err != nil:
		return apperr.Internal(err, "unable to resolve membership")
	}

	for _, role := range roles {
		if m.Role == role {
			return nil
		}
	}

	g.logger.Debug().
		Str("user_id", userID.String()).
		Str("tenant_id", tenantID.String()).
		Str("role", string(m.Role)).
		Msg("role not allowed")

	return apperr.Forbidden("role %q is not allowed to perform this action", m.Role)
}
