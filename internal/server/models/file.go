package models

import (
	"database/sql"
	"time"
)

// File describes server-side metadata for one logical file in a project.
// The encrypted payload is stored in the project bucket under NameInBucket.
type File struct {
	ID        int64
	ProjectID int64
	PublicID  string

	Name         string
	Subpath      string
	NameInBucket string

	SizeOriginal int64
	SizeStored   int64

	Checksum  string
	Salt      []byte
	PublicKey []byte

	TimeUploaded time.Time
}

// Version is the accounting record for a file's stored lifetime. At most
// one version per file has a NULL TimeDeleted (the active version); closing
// it is mandatory before the file row may be removed, using the same
// timestamp as the deletion event.
type Version struct {
	ID         int64
	ProjectID  int64
	FileID     sql.NullInt64
	SizeStored int64

	TimeUploaded time.Time
	TimeDeleted  sql.NullTime
}
