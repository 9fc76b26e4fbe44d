package files

import (
	"context"
	"time"

	"github.com/dcarleson/delivd/internal/server/models"
)

// Repository is the file/version persistence contract. Upload handlers
// create file and version rows; only the lifecycle transitions may cascade
// their deletion.
type Repository interface {
	Create(ctx context.Context, f *models.File) (int64, error)
	AddVersion(ctx context.Context, v *models.Version) (int64, error)

	ListForProject(ctx context.Context, projectID int64) ([]*models.File, error)
	ListBySubpath(ctx context.Context, projectID int64, subpath string) ([]*models.File, error)
	ListByNames(ctx context.Context, projectID int64, names []string) ([]*models.File, error)
	CountForProject(ctx context.Context, projectID int64) (int, error)

	// CloseActiveVersions sets time_deleted on every active version of the
	// project's files, using the transition timestamp for consistent
	// accounting.
	CloseActiveVersions(ctx context.Context, projectID int64, ts time.Time) error
	CloseActiveVersionsByFileIDs(ctx context.Context, fileIDs []int64, ts time.Time) error

	DeleteAllForProject(ctx context.Context, projectID int64) (int64, error)
	DeleteByIDs(ctx context.Context, fileIDs []int64) error
}
