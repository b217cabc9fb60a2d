package directory

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RepositoryPort is the data access the Service needs.
type RepositoryPort interface {
	Client(ctx context.Context, id int64) (Client, error)
	Contact(ctx context.Context, id int64) (Contact, error)
	Member(ctx context.Context, id int64) (Member, error)
}

// Repository reads directory rows from PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ RepositoryPort = (*Repository)(nil)

// Client loads a client by ID.
func (r *Repository) Client(ctx context.Context, id int64) (Client, error) {
	var c Client
	err := r.pool.QueryRow(ctx, `SELECT id, name FROM clients WHERE id = $1`, id).Scan(&c.ID, &c.Name)
	if err != nil {
		return Client{}, notFound("client", err)
	}
	return c, nil
}

// Contact loads a client contact by ID.
func (r *Repository) Contact(ctx context.Context, id int64) (Contact, error) {
	var c Contact
	err := r.pool.QueryRow(ctx, `
SELECT id, client_id, name, COALESCE(role, '')
FROM client_contacts
WHERE id = $1`, id).Scan(&c.ID, &c.ClientID, &c.Name, &c.Role)
	if err != nil {
		return Contact{}, notFound("contact", err)
	}
	return c, nil
}

// Member loads an active user with their client name.
func (r *Repository) Member(ctx context.Context, id int64) (Member, error) {
	var (
		m          Member
		clientName *string
	)
	err := r.pool.QueryRow(ctx, `
SELECT u.id, u.name, u.client_id, c.name
FROM users u
LEFT JOIN clients c ON c.id = u.client_id
WHERE u.id = $1 AND u.is_active`, id).Scan(&m.ID, &m.Name, &m.ClientID, &clientName)
	if err != nil {
		return Member{}, notFound("member", err)
	}
	if clientName != nil {
		m.ClientName = *clientName
	}
	return m, nil
}

func notFound(what string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return fmt.Errorf("directory: %s: %w", what, err)
}
