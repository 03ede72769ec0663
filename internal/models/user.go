// Package models defines the persisted data model shared by the vault core
// and the storage layer.
package models

import "time"

// User holds the durable identity of one chat user: the opaque transport id,
// the per-user salt, and the master-password verifier. The master password
// itself is never stored anywhere.
type User struct {
	ID        string
	ChatID    int64
	Salt      []byte
	Verifier  []byte
	CreatedAt time.Time
	UpdatedAt time.Time
}
