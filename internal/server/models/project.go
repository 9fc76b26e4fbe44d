// Package models defines the server-side data models persisted in the
// relational store. File payloads themselves live in object storage.
package models

import (
	"database/sql"
	"time"
)

// Status enumerates the project lifecycle states.
type Status string

const (
	StatusInProgress Status = "In Progress"
	StatusAvailable  Status = "Available"
	StatusExpired    Status = "Expired"
	StatusArchived   Status = "Archived"
	StatusDeleted    Status = "Deleted"
)

// Valid reports whether s is one of the known lifecycle states.
func (s Status) Valid() bool {
	switch s {
	case StatusInProgress, StatusAvailable, StatusExpired, StatusArchived, StatusDeleted:
		return true
	}
	return false
}

// Terminal reports whether no further transitions are allowed from s.
func (s Status) Terminal() bool {
	return s == StatusArchived || s == StatusDeleted
}

// Project is a logical data-delivery unit. Its lifecycle is driven entirely
// through appended ProjectStatus rows; the status itself is never stored as
// a mutable column.
type Project struct {
	ID       int64
	PublicID string
	UnitID   int64

	// Descriptive metadata. Nulled out on Delete and aborted Archive,
	// leaving the row as an identity/audit shell.
	Title       sql.NullString
	Description sql.NullString
	PI          sql.NullString

	// Bucket is the object-store container holding this project's payloads.
	Bucket string

	// Long-term project key material. The private key is encrypted at rest.
	PublicKey    []byte
	PrivateKey   []byte
	PrivKeySalt  []byte
	PrivKeyNonce []byte

	// Busy serializes lifecycle transitions: at most one in flight.
	Busy bool

	// Size is the aggregate stored size derived from active versions.
	Size int64

	// ReleasedAt records the first time the project was made Available.
	// Set once, never overwritten.
	ReleasedAt sql.NullTime

	// Both timestamps are cleared together with the descriptive metadata
	// on Delete and aborted Archive.
	DateCreated sql.NullTime
	DateUpdated sql.NullTime
}

// ProjectStatus is one immutable entry in a project's append-only status
// history. The entry with the latest DateCreated is the current status.
type ProjectStatus struct {
	ID          int64
	ProjectID   int64
	Status      Status
	DateCreated time.Time
	Deadline    sql.NullTime
	IsAborted   sql.NullBool
}
