package auth

import (
	"time"

	"github.com/agencyhub/portal/internal/identity"
	"github.com/agencyhub/portal/internal/rbac"
)

// User represents an authenticated user account.
type User struct {
	ID           int64
	Email        string
	Name         string
	PasswordHash string
	Role         rbac.Role
	ClientID     *int64
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Principal converts the account into what the access layer reads.
func (u *User) Principal() *identity.Principal {
	if u == nil {
		return nil
	}
	p := &identity.Principal{ID: u.ID, DisplayName: u.Name, Email: u.Email, Role: u.Role}
	if u.ClientID != nil {
		id := *u.ClientID
		p.ClientID = &id
	}
	if p.DisplayName == "" {
		p.DisplayName = u.Email
	}
	return p
}
