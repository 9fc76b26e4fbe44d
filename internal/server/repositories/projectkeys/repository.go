package projectkeys

import (
	"context"

	"github.com/dcarleson/delivd/internal/server/models"
)

// Repository stores the per-principal wrapped project keys. Rows are only
// ever deleted inside the same transaction that appends the status history
// entry making the content unavailable.
type Repository interface {
	InsertUserKey(ctx context.Context, k *models.ProjectUserKey) error
	InsertInviteKey(ctx context.Context, k *models.ProjectInviteKey) error

	// RevokeAllForProject deletes every user and invite key of the project
	// and reports the total number of rows removed.
	RevokeAllForProject(ctx context.Context, projectID int64) (int64, error)

	CountForProject(ctx context.Context, projectID int64) (int, error)
}
