package projects

import (
	"context"
	"time"

	"github.com/dcarleson/delivd/internal/server/models"
)

// Repository is the project/status persistence contract. All mutating
// methods are expected to run on the transaction handle supplied at
// construction when they are part of a lifecycle transition.
type Repository interface {
	Create(ctx context.Context, p *models.Project) (int64, error)
	GetByPublicID(ctx context.Context, publicID string) (*models.Project, error)
	GetByPublicIDForUpdate(ctx context.Context, publicID string) (*models.Project, error)

	// SetBusy atomically flips the busy flag; common.ErrProjectBusy is
	// returned when a transition is already in flight.
	SetBusy(ctx context.Context, id int64) error
	ClearBusy(ctx context.Context, id int64) error

	InsertStatus(ctx context.Context, st *models.ProjectStatus) error
	CurrentStatus(ctx context.Context, projectID int64) (*models.ProjectStatus, error)
	CountStatuses(ctx context.Context, projectID int64, status models.Status) (int, error)
	LatestStatusOf(ctx context.Context, projectID int64, status models.Status) (*models.ProjectStatus, error)

	SetReleasedAt(ctx context.Context, projectID int64, ts time.Time) error
	ResetSize(ctx context.Context, projectID int64, ts time.Time) error
	AdjustSize(ctx context.Context, projectID int64, delta int64, ts time.Time) error
	NullifyMetadata(ctx context.Context, projectID int64) error
	DetachUsers(ctx context.Context, projectID int64) error

	ListResearchers(ctx context.Context, projectID int64) ([]*models.User, error)

	// ListOverdue returns public ids of projects whose current status is
	// the given one and whose deadline has passed. Used by the sweeps.
	ListOverdue(ctx context.Context, status models.Status, now time.Time) ([]string, error)
}
