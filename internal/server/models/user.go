package models

import "time"

// Unit is the organisational owner of projects (e.g. a facility).
type Unit struct {
	ID       int64
	PublicID string
	Name     string
}

// User is a researcher with access to zero or more projects via the
// project_users association.
type User struct {
	ID        int64
	Username  string
	Email     string
	UnitID    int64
	CreatedAt time.Time
}
