package services

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/dcarleson/delivd/internal/common"
	"github.com/dcarleson/delivd/internal/dbx"
	"github.com/dcarleson/delivd/internal/logging"
	"github.com/dcarleson/delivd/internal/server/models"
	"github.com/dcarleson/delivd/internal/server/repositories/repomanager"
	"github.com/dcarleson/delivd/internal/server/storage"
)

// ContentService removes project content from the two independently
// failing backends with a fixed ordering: object store first, relational
// rows only after the payloads are confirmed gone. The database must never
// believe content is deleted while it still exists.
type ContentService struct {
	db    *sql.DB
	rm    repomanager.RepositoryManager
	store storage.ObjectStore
	log   logging.Logger
}

func NewContentService(db *sql.DB, rm repomanager.RepositoryManager, store storage.ObjectStore, log logging.Logger) *ContentService {
	return &ContentService{db: db, rm: rm, store: store, log: log}
}

// EmptyProjectBucket is phase one of whole-project content deletion: it
// removes every payload and, when the project itself is being deleted, the
// bucket. No relational state is touched; a failure here aborts the whole
// operation before anything becomes inconsistent.
func (s *ContentService) EmptyProjectBucket(ctx context.Context, project *models.Project, removeBucket bool) error {
	if err := s.store.EmptyBucket(ctx, project.Bucket); err != nil {
		return fmt.Errorf("failed to empty bucket %s: %w", project.Bucket, err)
	}
	if removeBucket {
		if err := s.store.RemoveBucket(ctx, project.Bucket); err != nil {
			return fmt.Errorf("failed to remove bucket %s: %w", project.Bucket, err)
		}
	}
	return nil
}

// DeleteRowsTx is phase two: within the caller's transaction it closes
// every active version with the transition timestamp, removes all file
// rows and zeroes the aggregate size.
func (s *ContentService) DeleteRowsTx(ctx context.Context, tx dbx.DBTX, project *models.Project, ts time.Time) error {
	fileRepo := s.rm.Files(tx)

	if err := fileRepo.CloseActiveVersions(ctx, project.ID, ts); err != nil {
		return err
	}
	if _, err := fileRepo.DeleteAllForProject(ctx, project.ID); err != nil {
		return err
	}
	return s.rm.Projects(tx).ResetSize(ctx, project.ID, ts)
}

// DeleteAllContents performs both phases as a standalone operation. When
// phase two fails after the bucket was already emptied, the returned
// OrphanedContentError marks the known inconsistency window: operator
// reconciliation is required and the condition is logged, never swallowed.
func (s *ContentService) DeleteAllContents(ctx context.Context, project *models.Project, ts time.Time) error {
	if err := s.EmptyProjectBucket(ctx, project, false); err != nil {
		return err
	}

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return s.DeleteRowsTx(ctx, tx, project, ts)
	})
	if err != nil {
		orphaned := &common.OrphanedContentError{ProjectID: project.PublicID, Err: err}
		s.log.Error(ctx, "orphaned content: bucket emptied but database update failed; manual reconciliation required",
			"project", project.PublicID, "bucket", project.Bucket, "err", err)
		return orphaned
	}
	return nil
}

// DeleteFolder removes the files under one logical folder, in batches.
func (s *ContentService) DeleteFolder(ctx context.Context, project *models.Project, folder string, ts time.Time) (int, error) {
	fileRows, err := s.rm.Files(s.db).ListBySubpath(ctx, project.ID, folder)
	if err != nil {
		return 0, err
	}
	if len(fileRows) == 0 {
		return 0, fmt.Errorf("%w: no files in folder %q", common.ErrNotFound, folder)
	}
	return s.deleteBatches(ctx, project, fileRows, ts)
}

// DeleteFiles removes the named files, in batches. Names matching no file
// row fail the whole request before anything is touched.
func (s *ContentService) DeleteFiles(ctx context.Context, project *models.Project, names []string, ts time.Time) (int, error) {
	fileRows, err := s.rm.Files(s.db).ListByNames(ctx, project.ID, names)
	if err != nil {
		return 0, err
	}

	found := make(map[string]struct{}, len(fileRows))
	for _, f := range fileRows {
		found[f.Name] = struct{}{}
	}
	var missing []string
	for _, n := range names {
		if _, ok := found[n]; !ok {
			missing = append(missing, n)
		}
	}
	if len(missing) > 0 {
		return 0, fmt.Errorf("%w: no files named %s", common.ErrNotFound, strings.Join(missing, ", "))
	}

	return s.deleteBatches(ctx, project, fileRows, ts)
}

// deleteBatches walks the file rows in object-store sized batches. For
// each batch the object-store delete runs first; only on success are the
// relational rows for that batch removed and committed. The loop stops at
// the first failed batch, reporting progress and the affected folders;
// committed batches stay committed so a retry resumes where this stopped.
func (s *ContentService) deleteBatches(ctx context.Context, project *models.Project, fileRows []*models.File, ts time.Time) (int, error) {
	removed := 0

	for start := 0; start < len(fileRows); start += storage.MaxDeleteBatch {
		end := start + storage.MaxDeleteBatch
		if end > len(fileRows) {
			end = len(fileRows)
		}
		batch := fileRows[start:end]

		keys := make([]string, 0, len(batch))
		ids := make([]int64, 0, len(batch))
		var size int64
		for _, f := range batch {
			keys = append(keys, f.NameInBucket)
			ids = append(ids, f.ID)
			size += f.SizeStored
		}

		if _, err := s.store.DeleteObjects(ctx, project.Bucket, keys); err != nil {
			return removed, &common.DeletionError{
				Removed: removed,
				Folders: foldersOf(batch),
				Err:     err,
			}
		}

		err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
			fileRepo := s.rm.Files(tx)
			if err := fileRepo.CloseActiveVersionsByFileIDs(ctx, ids, ts); err != nil {
				return err
			}
			if err := fileRepo.DeleteByIDs(ctx, ids); err != nil {
				return err
			}
			return s.rm.Projects(tx).AdjustSize(ctx, project.ID, -size, ts)
		})
		if err != nil {
			s.log.Error(ctx, "orphaned content: batch removed from bucket but row deletion failed",
				"project", project.PublicID, "batch_start", start, "err", err)
			return removed, &common.DeletionError{
				Removed: removed,
				Folders: foldersOf(batch),
				Err:     &common.OrphanedContentError{ProjectID: project.PublicID, Err: err},
			}
		}

		removed += len(batch)
	}
	return removed, nil
}

func foldersOf(batch []*models.File) []string {
	seen := make(map[string]struct{})
	var folders []string
	for _, f := range batch {
		if _, ok := seen[f.Subpath]; ok {
			continue
		}
		seen[f.Subpath] = struct{}{}
		folders = append(folders, f.Subpath)
	}
	return folders
}
