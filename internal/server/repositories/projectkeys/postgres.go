package projectkeys

import (
	"context"
	"fmt"

	"github.com/dcarleson/delivd/internal/dbx"
	"github.com/dcarleson/delivd/internal/server/models"
)

// PostgresRepository implements project key storage over a dbx.DBTX
// (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// InsertUserKey grants a user access by storing the wrapped project key.
func (r *PostgresRepository) InsertUserKey(ctx context.Context, k *models.ProjectUserKey) error {
	query := `INSERT INTO project_user_keys (project_id, user_id, key) VALUES ($1, $2, $3)`
	if _, err := r.db.ExecContext(ctx, query, k.ProjectID, k.UserID, k.Key); err != nil {
		return fmt.Errorf("failed to insert user key: %w", err)
	}
	return nil
}

// InsertInviteKey grants a pending invite access by storing the wrapped
// project key.
func (r *PostgresRepository) InsertInviteKey(ctx context.Context, k *models.ProjectInviteKey) error {
	query := `INSERT INTO project_invite_keys (project_id, invite_id, key) VALUES ($1, $2, $3)`
	if _, err := r.db.ExecContext(ctx, query, k.ProjectID, k.InviteID, k.Key); err != nil {
		return fmt.Errorf("failed to insert invite key: %w", err)
	}
	return nil
}

// RevokeAllForProject deletes every wrapped key of the project. After this
// no principal can re-derive the content-encryption key.
func (r *PostgresRepository) RevokeAllForProject(ctx context.Context, projectID int64) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM project_user_keys WHERE project_id=$1`, projectID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete user keys: %w", err)
	}
	users, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected error: %w", err)
	}

	res, err = r.db.ExecContext(ctx, `DELETE FROM project_invite_keys WHERE project_id=$1`, projectID)
	if err != nil {
		return users, fmt.Errorf("failed to delete invite keys: %w", err)
	}
	invites, err := res.RowsAffected()
	if err != nil {
		return users, fmt.Errorf("rows affected error: %w", err)
	}
	return users + invites, nil
}

// CountForProject returns the number of remaining wrapped keys.
func (r *PostgresRepository) CountForProject(ctx context.Context, projectID int64) (int, error) {
	var n int
	query := `
		SELECT (SELECT COUNT(*) FROM project_user_keys WHERE project_id=$1)
		     + (SELECT COUNT(*) FROM project_invite_keys WHERE project_id=$1)
	`
	if err := r.db.QueryRowContext(ctx, query, projectID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count keys: %w", err)
	}
	return n, nil
}
