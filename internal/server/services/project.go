package services

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dcarleson/delivd/internal/common"
	"github.com/dcarleson/delivd/internal/dbx"
	"github.com/dcarleson/delivd/internal/logging"
	"github.com/dcarleson/delivd/internal/server/models"
	"github.com/dcarleson/delivd/internal/server/repositories/repomanager"
)

// CreateProjectInput is everything needed to register a new project.
type CreateProjectInput struct {
	UnitID      int64
	Title       string
	Description string
	PI          string
}

// ProjectService handles project registration and read-side queries that
// do not alter the lifecycle.
type ProjectService struct {
	db   *sql.DB
	rm   repomanager.RepositoryManager
	keys *KeyService
	log  logging.Logger

	now func() time.Time
}

func NewProjectService(db *sql.DB, rm repomanager.RepositoryManager, keys *KeyService, log logging.Logger) *ProjectService {
	return &ProjectService{db: db, rm: rm, keys: keys, log: log, now: time.Now}
}

// Create registers a project in status In Progress, with a dedicated
// bucket name and a fresh key pair. The project row and its first status
// entry are written in one transaction.
func (s *ProjectService) Create(ctx context.Context, in CreateProjectInput) (*models.Project, error) {
	if strings.TrimSpace(in.Title) == "" {
		return nil, fmt.Errorf("%w: a project title is required", common.ErrValidation)
	}

	now := s.now().UTC()
	publicID := uuid.NewString()

	project := &models.Project{
		PublicID:    publicID,
		UnitID:      in.UnitID,
		Title:       sql.NullString{String: in.Title, Valid: true},
		Bucket:      bucketName(publicID),
		DateCreated: sql.NullTime{Time: now, Valid: true},
	}
	if in.Description != "" {
		project.Description = sql.NullString{String: in.Description, Valid: true}
	}
	if in.PI != "" {
		project.PI = sql.NullString{String: in.PI, Valid: true}
	}

	if err := s.keys.GenerateProjectKeys(project); err != nil {
		return nil, fmt.Errorf("failed to generate project keys: %w", err)
	}

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.rm.Projects(tx)
		id, err := repo.Create(ctx, project)
		if err != nil {
			return err
		}
		project.ID = id
		return repo.InsertStatus(ctx, &models.ProjectStatus{
			ProjectID:   id,
			Status:      models.StatusInProgress,
			DateCreated: now,
		})
	})
	if err != nil {
		return nil, err
	}

	s.log.Info(ctx, "project created", "project", publicID, "bucket", project.Bucket)
	return project, nil
}

// Get returns the project identified by its public id.
func (s *ProjectService) Get(ctx context.Context, publicID string) (*models.Project, error) {
	return s.rm.Projects(s.db).GetByPublicID(ctx, publicID)
}

// CurrentStatus returns the latest lifecycle entry of the project,
// including its deadline when one applies.
func (s *ProjectService) CurrentStatus(ctx context.Context, publicID string) (*models.ProjectStatus, error) {
	project, err := s.rm.Projects(s.db).GetByPublicID(ctx, publicID)
	if err != nil {
		return nil, err
	}
	return s.rm.Projects(s.db).CurrentStatus(ctx, project.ID)
}

// bucketName derives the bucket for a project. Public ids are UUIDs, so
// the result is S3-safe and unique.
func bucketName(publicID string) string {
	return "delivproj-" + strings.ToLower(publicID)
}
