package files

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dcarleson/delivd/internal/dbx"
	"github.com/dcarleson/delivd/internal/server/models"
)

// PostgresRepository implements file/version storage over a dbx.DBTX
// (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a file row and returns its id.
func (r *PostgresRepository) Create(ctx context.Context, f *models.File) (int64, error) {
	query := `
		INSERT INTO files (project_id, public_id, name, subpath, name_in_bucket,
			size_original, size_stored, checksum, salt, public_key, time_uploaded)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id
	`
	var id int64
	err := r.db.QueryRowContext(ctx, query,
		f.ProjectID, f.PublicID, f.Name, f.Subpath, f.NameInBucket,
		f.SizeOriginal, f.SizeStored, f.Checksum, f.Salt, f.PublicKey, f.TimeUploaded,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert file: %w", err)
	}
	return id, nil
}

// AddVersion opens a new accounting version for a file.
func (r *PostgresRepository) AddVersion(ctx context.Context, v *models.Version) (int64, error) {
	query := `
		INSERT INTO versions (project_id, file_id, size_stored, time_uploaded)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`
	var id int64
	err := r.db.QueryRowContext(ctx, query, v.ProjectID, v.FileID, v.SizeStored, v.TimeUploaded).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert version: %w", err)
	}
	return id, nil
}

const fileColumns = `id, project_id, public_id, name, subpath, name_in_bucket,
		size_original, size_stored, checksum, salt, public_key, time_uploaded`

func (r *PostgresRepository) listFiles(ctx context.Context, query string, args ...any) ([]*models.File, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select files: %w", err)
	}
	defer rows.Close()

	var result []*models.File
	for rows.Next() {
		var f models.File
		if err := rows.Scan(&f.ID, &f.ProjectID, &f.PublicID, &f.Name, &f.Subpath, &f.NameInBucket,
			&f.SizeOriginal, &f.SizeStored, &f.Checksum, &f.Salt, &f.PublicKey, &f.TimeUploaded); err != nil {
			return nil, err
		}
		result = append(result, &f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// ListForProject returns all file rows of the project.
func (r *PostgresRepository) ListForProject(ctx context.Context, projectID int64) ([]*models.File, error) {
	query := `SELECT ` + fileColumns + ` FROM files WHERE project_id=$1 ORDER BY id`
	return r.listFiles(ctx, query, projectID)
}

// ListBySubpath returns the file rows under one logical folder.
func (r *PostgresRepository) ListBySubpath(ctx context.Context, projectID int64, subpath string) ([]*models.File, error) {
	query := `SELECT ` + fileColumns + ` FROM files WHERE project_id=$1 AND subpath=$2 ORDER BY id`
	return r.listFiles(ctx, query, projectID, subpath)
}

// ListByNames returns the file rows matching the given logical names.
func (r *PostgresRepository) ListByNames(ctx context.Context, projectID int64, names []string) ([]*models.File, error) {
	if len(names) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(names))
	args := make([]any, 0, len(names)+1)
	args = append(args, projectID)
	for i, n := range names {
		placeholders[i] = fmt.Sprintf("$%d", i+2)
		args = append(args, n)
	}
	query := `SELECT ` + fileColumns + ` FROM files WHERE project_id=$1 AND name IN (` +
		strings.Join(placeholders, ", ") + `) ORDER BY id`
	return r.listFiles(ctx, query, args...)
}

// CountForProject returns the number of file rows of the project.
func (r *PostgresRepository) CountForProject(ctx context.Context, projectID int64) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM files WHERE project_id=$1`, projectID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count files: %w", err)
	}
	return n, nil
}

// CloseActiveVersions stamps time_deleted on every active version of the
// project's files.
func (r *PostgresRepository) CloseActiveVersions(ctx context.Context, projectID int64, ts time.Time) error {
	query := `UPDATE versions SET time_deleted=$2 WHERE project_id=$1 AND time_deleted IS NULL`
	if _, err := r.db.ExecContext(ctx, query, projectID, ts); err != nil {
		return fmt.Errorf("failed to close versions: %w", err)
	}
	return nil
}

// CloseActiveVersionsByFileIDs stamps time_deleted on the active versions
// of the given files only.
func (r *PostgresRepository) CloseActiveVersionsByFileIDs(ctx context.Context, fileIDs []int64, ts time.Time) error {
	if len(fileIDs) == 0 {
		return nil
	}
	placeholders := make([]string, len(fileIDs))
	args := make([]any, 0, len(fileIDs)+1)
	args = append(args, ts)
	for i, id := range fileIDs {
		placeholders[i] = fmt.Sprintf("$%d", i+2)
		args = append(args, id)
	}
	query := `UPDATE versions SET time_deleted=$1 WHERE time_deleted IS NULL AND file_id IN (` +
		strings.Join(placeholders, ", ") + `)`
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to close versions: %w", err)
	}
	return nil
}

// DeleteAllForProject removes every file row of the project and reports how
// many rows were removed. Versions must be closed first.
func (r *PostgresRepository) DeleteAllForProject(ctx context.Context, projectID int64) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM files WHERE project_id=$1`, projectID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete files: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected error: %w", err)
	}
	return n, nil
}

// DeleteByIDs removes the given file rows.
func (r *PostgresRepository) DeleteByIDs(ctx context.Context, fileIDs []int64) error {
	if len(fileIDs) == 0 {
		return nil
	}
	placeholders := make([]string, len(fileIDs))
	args := make([]any, 0, len(fileIDs))
	for i, id := range fileIDs {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args = append(args, id)
	}
	query := `DELETE FROM files WHERE id IN (` + strings.Join(placeholders, ", ") + `)`
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to delete files: %w", err)
	}
	return nil
}
