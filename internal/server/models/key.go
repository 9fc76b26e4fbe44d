package models

// ProjectUserKey is the project content-encryption key wrapped for one
// user. Deleted when the project's content becomes permanently unavailable.
type ProjectUserKey struct {
	ProjectID int64
	UserID    int64
	Key       []byte
}

// ProjectInviteKey is the same key material wrapped for a pending invite.
type ProjectInviteKey struct {
	ProjectID int64
	InviteID  int64
	Key       []byte
}
