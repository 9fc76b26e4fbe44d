package projects

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dcarleson/delivd/internal/common"
	"github.com/dcarleson/delivd/internal/dbx"
	"github.com/dcarleson/delivd/internal/server/models"
)

// PostgresRepository implements project storage over a dbx.DBTX
// (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const projectColumns = `id, public_id, unit_id, title, description, pi, bucket,
		public_key, private_key, privkey_salt, privkey_nonce,
		busy, size, released_at, date_created, date_updated`

func scanProject(row *sql.Row) (*models.Project, error) {
	p := &models.Project{}
	err := row.Scan(&p.ID, &p.PublicID, &p.UnitID, &p.Title, &p.Description, &p.PI, &p.Bucket,
		&p.PublicKey, &p.PrivateKey, &p.PrivKeySalt, &p.PrivKeyNonce,
		&p.Busy, &p.Size, &p.ReleasedAt, &p.DateCreated, &p.DateUpdated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("failed to select project: %w", err)
	}
	return p, nil
}

// Create inserts a new project row and returns its id.
func (r *PostgresRepository) Create(ctx context.Context, p *models.Project) (int64, error) {
	query := `
		INSERT INTO projects (public_id, unit_id, title, description, pi, bucket,
			public_key, private_key, privkey_salt, privkey_nonce, date_created)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id
	`
	var id int64
	err := r.db.QueryRowContext(ctx, query,
		p.PublicID, p.UnitID, p.Title, p.Description, p.PI, p.Bucket,
		p.PublicKey, p.PrivateKey, p.PrivKeySalt, p.PrivKeyNonce, p.DateCreated,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert project: %w", err)
	}
	return id, nil
}

// GetByPublicID returns the project identified by its public id.
func (r *PostgresRepository) GetByPublicID(ctx context.Context, publicID string) (*models.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects WHERE public_id=$1`
	return scanProject(r.db.QueryRowContext(ctx, query, publicID))
}

// GetByPublicIDForUpdate returns the project row locked for the duration of
// the surrounding transaction. The project row is the serialization point
// for lifecycle transitions.
func (r *PostgresRepository) GetByPublicIDForUpdate(ctx context.Context, publicID string) (*models.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects WHERE public_id=$1 FOR UPDATE`
	return scanProject(r.db.QueryRowContext(ctx, query, publicID))
}

// SetBusy marks the project as having a lifecycle transition in flight.
// The conditional update makes acquisition atomic: zero rows affected means
// either the project does not exist or another transition holds the flag.
func (r *PostgresRepository) SetBusy(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `UPDATE projects SET busy=TRUE WHERE id=$1 AND busy=FALSE`, id)
	if err != nil {
		return fmt.Errorf("failed to set busy: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 1 {
		return nil
	}

	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM projects WHERE id=$1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check project existence: %w", err)
	}
	if !exists {
		return common.ErrNotFound
	}
	return common.ErrProjectBusy
}

// ClearBusy resets the busy flag. It must succeed on every transition exit
// path, so a missing row is reported but never masked by other errors.
func (r *PostgresRepository) ClearBusy(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `UPDATE projects SET busy=FALSE WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("failed to clear busy: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n != 1 {
		return fmt.Errorf("wrong rows affected count: %d", n)
	}
	return nil
}

// InsertStatus appends one immutable entry to the project status history.
func (r *PostgresRepository) InsertStatus(ctx context.Context, st *models.ProjectStatus) error {
	query := `
		INSERT INTO project_statuses (project_id, status, date_created, deadline, is_aborted)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.db.ExecContext(ctx, query, st.ProjectID, st.Status, st.DateCreated, st.Deadline, st.IsAborted)
	if err != nil {
		return fmt.Errorf("failed to insert project status: %w", err)
	}
	return nil
}

func scanStatus(row *sql.Row) (*models.ProjectStatus, error) {
	st := &models.ProjectStatus{}
	err := row.Scan(&st.ID, &st.ProjectID, &st.Status, &st.DateCreated, &st.Deadline, &st.IsAborted)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("failed to select project status: %w", err)
	}
	return st, nil
}

// CurrentStatus returns the history entry with the latest creation
// timestamp. The current status is always derived from the history, never
// stored separately.
func (r *PostgresRepository) CurrentStatus(ctx context.Context, projectID int64) (*models.ProjectStatus, error) {
	query := `
		SELECT id, project_id, status, date_created, deadline, is_aborted
		FROM project_statuses WHERE project_id=$1
		ORDER BY date_created DESC LIMIT 1
	`
	return scanStatus(r.db.QueryRowContext(ctx, query, projectID))
}

// CountStatuses counts how many history entries have the given status.
func (r *PostgresRepository) CountStatuses(ctx context.Context, projectID int64, status models.Status) (int, error) {
	var n int
	query := `SELECT COUNT(*) FROM project_statuses WHERE project_id=$1 AND status=$2`
	if err := r.db.QueryRowContext(ctx, query, projectID, status).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count statuses: %w", err)
	}
	return n, nil
}

// LatestStatusOf returns the most recent history entry with the given
// status, or common.ErrNotFound if the project was never in it.
func (r *PostgresRepository) LatestStatusOf(ctx context.Context, projectID int64, status models.Status) (*models.ProjectStatus, error) {
	query := `
		SELECT id, project_id, status, date_created, deadline, is_aborted
		FROM project_statuses WHERE project_id=$1 AND status=$2
		ORDER BY date_created DESC LIMIT 1
	`
	return scanStatus(r.db.QueryRowContext(ctx, query, projectID, status))
}

// SetReleasedAt records the first release timestamp. The WHERE clause keeps
// it write-once; later releases leave the original value in place.
func (r *PostgresRepository) SetReleasedAt(ctx context.Context, projectID int64, ts time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE projects SET released_at=$2 WHERE id=$1 AND released_at IS NULL`, projectID, ts)
	if err != nil {
		return fmt.Errorf("failed to set released_at: %w", err)
	}
	return nil
}

// ResetSize zeroes the aggregate size after content deletion.
func (r *PostgresRepository) ResetSize(ctx context.Context, projectID int64, ts time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE projects SET size=0, date_updated=$2 WHERE id=$1`, projectID, ts)
	if err != nil {
		return fmt.Errorf("failed to reset size: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n != 1 {
		return fmt.Errorf("wrong rows affected count: %d", n)
	}
	return nil
}

// AdjustSize applies a (usually negative) delta to the aggregate size,
// clamped at zero.
func (r *PostgresRepository) AdjustSize(ctx context.Context, projectID int64, delta int64, ts time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE projects SET size=GREATEST(size + $2, 0), date_updated=$3 WHERE id=$1`, projectID, delta, ts)
	if err != nil {
		return fmt.Errorf("failed to adjust size: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n != 1 {
		return fmt.Errorf("wrong rows affected count: %d", n)
	}
	return nil
}

// NullifyMetadata clears the descriptive fields, key material and both
// timestamps, leaving the project row as a bare identity shell.
func (r *PostgresRepository) NullifyMetadata(ctx context.Context, projectID int64) error {
	query := `
		UPDATE projects SET
			title=NULL, description=NULL, pi=NULL,
			public_key=NULL, private_key=NULL, privkey_salt=NULL, privkey_nonce=NULL,
			date_created=NULL, date_updated=NULL
		WHERE id=$1
	`
	res, err := r.db.ExecContext(ctx, query, projectID)
	if err != nil {
		return fmt.Errorf("failed to nullify metadata: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n != 1 {
		return fmt.Errorf("wrong rows affected count: %d", n)
	}
	return nil
}

// DetachUsers removes all researcher associations for the project.
func (r *PostgresRepository) DetachUsers(ctx context.Context, projectID int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM project_users WHERE project_id=$1`, projectID)
	if err != nil {
		return fmt.Errorf("failed to detach users: %w", err)
	}
	return nil
}

// ListResearchers returns the users associated with the project.
func (r *PostgresRepository) ListResearchers(ctx context.Context, projectID int64) ([]*models.User, error) {
	query := `
		SELECT u.id, u.username, u.email, u.unit_id, u.created_at
		FROM users u
		JOIN project_users pu ON pu.user_id = u.id
		WHERE pu.project_id=$1
		ORDER BY u.id
	`
	rows, err := r.db.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to select researchers: %w", err)
	}
	defer rows.Close()

	var result []*models.User
	for rows.Next() {
		var u models.User
		var unitID sql.NullInt64
		if err := rows.Scan(&u.ID, &u.Username, &u.Email, &unitID, &u.CreatedAt); err != nil {
			return nil, err
		}
		u.UnitID = unitID.Int64
		result = append(result, &u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// ListOverdue returns public ids of projects whose latest status entry is
// the given one with a deadline at or before now.
func (r *PostgresRepository) ListOverdue(ctx context.Context, status models.Status, now time.Time) ([]string, error) {
	query := `
		SELECT p.public_id
		FROM projects p
		JOIN LATERAL (
			SELECT status, deadline FROM project_statuses
			WHERE project_id = p.id
			ORDER BY date_created DESC LIMIT 1
		) s ON TRUE
		WHERE s.status=$1 AND s.deadline IS NOT NULL AND s.deadline <= $2
		ORDER BY p.public_id
	`
	rows, err := r.db.QueryContext(ctx, query, status, now)
	if err != nil {
		return nil, fmt.Errorf("failed to select overdue projects: %w", err)
	}
	defer rows.Close()

	var result []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		result = append(result, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
