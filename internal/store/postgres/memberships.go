package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/msgdeck/msgdeck/internal/store"
)

// GetMembership reads the membership view maintained by the tenant management system.
func (r *repositories) GetMembership(ctx context.Context, userID, tenantID uuid.UUID) (*store.Membership, error) {
	query := `SELECT user_id, tenant_id, role FROM tenant_memberships
	          WHERE user_id = $1 AND tenant_id = $2 AND deleted_at IS NULL`

	var m store.Membership
	err := r.db.QueryRow(ctx, query, userID, tenantID).Scan(&m.UserID, &m.TenantID, &m.Role)
	if err != nil {
		return nil, notFound(err, "membership not found")
	}

	return &m, nil
}
