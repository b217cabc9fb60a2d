package rbac

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agencyhub/portal/internal/platform/db"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListGrants returns every stored grant.
func (r *Repository) ListGrants(ctx context.Context) ([]RoleModuleGrant, error) {
	rows, err := r.pool.Query(ctx, `SELECT role, module, enabled, updated_at FROM role_module_permissions ORDER BY role, module`)
	if err != nil {
		return nil, err
	}
	return scanGrants(rows)
}

// RoleGrants returns the stored grants of one role.
func (r *Repository) RoleGrants(ctx context.Context, role Role) ([]RoleModuleGrant, error) {
	rows, err := r.pool.Query(ctx, `SELECT role, module, enabled, updated_at FROM role_module_permissions WHERE role = $1 ORDER BY module`, string(role))
	if err != nil {
		return nil, err
	}
	return scanGrants(rows)
}

// ReplaceRoleGrants rewrites all grants of role in one transaction.
func (r *Repository) ReplaceRoleGrants(ctx context.Context, role Role, access ModuleAccessMap) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM role_module_permissions WHERE role = $1`, string(role)); err != nil {
			return err
		}
		batch := &pgx.Batch{}
		for _, key := range moduleOrder {
			batch.Queue(`INSERT INTO role_module_permissions (role, module, enabled, updated_at) VALUES ($1, $2, $3, NOW())`, string(role), string(key), access[key])
		}
		return tx.SendBatch(ctx, batch).Close()
	})
}

func scanGrants(rows pgx.Rows) ([]RoleModuleGrant, error) {
	defer rows.Close()
	var grants []RoleModuleGrant
	for rows.Next() {
		var (
			g            RoleModuleGrant
			role, module string
		)
		if err := rows.Scan(&role, &module, &g.Enabled, &g.UpdatedAt); err != nil {
			return nil, err
		}
		g.Role = Role(role)
		g.Module = ModuleKey(module)
		grants = append(grants, g)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return grants, nil
}

var _ RepositoryPort = (*Repository)(nil)
