package models

import (
	"time"

	"github.com/quiksafe/quiksafebot/internal/cryptox"
)

// Kind distinguishes the entity types a user can capture.
type Kind string

const (
	KindPassword Kind = "password"
	KindTask     Kind = "task"
	KindFile     Kind = "file"
)

// Task status values (plaintext, filterable).
const (
	StatusPending = "pending"
	StatusDone    = "done"
)

// Secret is one vault entity. Indexable metadata (name, tags, status,
// priority, dates) stays plaintext so the hosted store can filter on it;
// everything sensitive lives in Encrypted as sealed envelopes keyed by
// field name. Only the vault's field codec crosses that boundary.
type Secret struct {
	ID       string
	UserID   string
	Kind     Kind
	Name     string
	Tags     []string
	Status   string
	Priority string
	DueDate  *time.Time

	// BlobKey points at the object-storage location for file entities.
	BlobKey string

	// Encrypted maps sensitive field names (secret, username, content,
	// description, notes) to their ciphertext envelopes.
	Encrypted map[string]*cryptox.Envelope

	CreatedAt time.Time
	UpdatedAt time.Time
}

// PlainSecret is a decrypted view of a Secret handed to the display layer.
// It must never be persisted.
type PlainSecret struct {
	Secret
	Fields map[string]string
}

// Filter narrows LoadByUser queries over plaintext metadata only.
type Filter struct {
	Kind     Kind
	Status   string
	Tag      string
	NameLike string
}
