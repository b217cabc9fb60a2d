// Package directory looks up display details for clients, contacts and users. The
// banners use it for advisory labels only; nothing here takes part in access decisions.
package directory

import "errors"

// ErrNotFound is returned when no row matches the requested ID.
var ErrNotFound = errors.New("directory: not found")

// Client is an agency customer account.
type Client struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Contact is a person at a client.
type Contact struct {
	ID       int64  `json:"id"`
	ClientID int64  `json:"client_id"`
	Name     string `json:"name"`
	Role     string `json:"role"`
}

// Member is a portal user together with the client they belong to, if any.
type Member struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	ClientID   *int64 `json:"client_id,omitempty"`
	ClientName string `json:"client_name,omitempty"`
}
