package services

import (
	"context"
	"database/sql"
	"time"

	"github.com/dcarleson/delivd/internal/common"
	"github.com/dcarleson/delivd/internal/dbx"
	"github.com/dcarleson/delivd/internal/logging"
	"github.com/dcarleson/delivd/internal/server/models"
	"github.com/dcarleson/delivd/internal/server/repositories/files"
	"github.com/dcarleson/delivd/internal/server/repositories/projectkeys"
	"github.com/dcarleson/delivd/internal/server/repositories/projects"
)

type nopLogger struct{}

func (nopLogger) Debug(context.Context, string, ...any) {}
func (nopLogger) Info(context.Context, string, ...any)  {}
func (nopLogger) Warn(context.Context, string, ...any)  {}
func (nopLogger) Error(context.Context, string, ...any) {}
func (l nopLogger) With(...any) logging.Logger          { return l }

type fakeProjectRepo struct {
	project  *models.Project
	statuses []*models.ProjectStatus

	busy        bool
	setBusyErr  error
	busyCleared bool

	insertStatusErr error
	inserted        []*models.ProjectStatus

	releasedAtSet   bool
	metadataNulled  bool
	usersDetached   bool
	sizeReset       bool
	sizeAdjustments []int64

	researchers []*models.User
	overdue     map[models.Status][]string
}

func (r *fakeProjectRepo) Create(_ context.Context, p *models.Project) (int64, error) {
	r.project = p
	return 1, nil
}

func (r *fakeProjectRepo) GetByPublicID(_ context.Context, publicID string) (*models.Project, error) {
	if r.project == nil || r.project.PublicID != publicID {
		return nil, common.ErrNotFound
	}
	return r.project, nil
}

func (r *fakeProjectRepo) GetByPublicIDForUpdate(ctx context.Context, publicID string) (*models.Project, error) {
	return r.GetByPublicID(ctx, publicID)
}

func (r *fakeProjectRepo) SetBusy(context.Context, int64) error {
	if r.setBusyErr != nil {
		return r.setBusyErr
	}
	if r.busy {
		return common.ErrProjectBusy
	}
	r.busy = true
	return nil
}

func (r *fakeProjectRepo) ClearBusy(context.Context, int64) error {
	r.busy = false
	r.busyCleared = true
	return nil
}

func (r *fakeProjectRepo) InsertStatus(_ context.Context, st *models.ProjectStatus) error {
	if r.insertStatusErr != nil {
		return r.insertStatusErr
	}
	r.inserted = append(r.inserted, st)
	r.statuses = append(r.statuses, st)
	return nil
}

func (r *fakeProjectRepo) CurrentStatus(context.Context, int64) (*models.ProjectStatus, error) {
	if len(r.statuses) == 0 {
		return nil, common.ErrNotFound
	}
	return r.statuses[len(r.statuses)-1], nil
}

func (r *fakeProjectRepo) CountStatuses(_ context.Context, _ int64, status models.Status) (int, error) {
	n := 0
	for _, st := range r.statuses {
		if st.Status == status {
			n++
		}
	}
	return n, nil
}

func (r *fakeProjectRepo) LatestStatusOf(_ context.Context, _ int64, status models.Status) (*models.ProjectStatus, error) {
	for i := len(r.statuses) - 1; i >= 0; i-- {
		if r.statuses[i].Status == status {
			return r.statuses[i], nil
		}
	}
	return nil, common.ErrNotFound
}

func (r *fakeProjectRepo) SetReleasedAt(_ context.Context, _ int64, ts time.Time) error {
	r.releasedAtSet = true
	r.project.ReleasedAt = sql.NullTime{Time: ts, Valid: true}
	return nil
}

func (r *fakeProjectRepo) ResetSize(context.Context, int64, time.Time) error {
	r.sizeReset = true
	r.project.Size = 0
	return nil
}

func (r *fakeProjectRepo) AdjustSize(_ context.Context, _ int64, delta int64, _ time.Time) error {
	r.sizeAdjustments = append(r.sizeAdjustments, delta)
	r.project.Size += delta
	return nil
}

func (r *fakeProjectRepo) NullifyMetadata(context.Context, int64) error {
	r.metadataNulled = true
	r.project.Title = sql.NullString{}
	r.project.Description = sql.NullString{}
	r.project.PI = sql.NullString{}
	r.project.DateCreated = sql.NullTime{}
	r.project.DateUpdated = sql.NullTime{}
	return nil
}

func (r *fakeProjectRepo) DetachUsers(context.Context, int64) error {
	r.usersDetached = true
	return nil
}

func (r *fakeProjectRepo) ListResearchers(context.Context, int64) ([]*models.User, error) {
	return r.researchers, nil
}

func (r *fakeProjectRepo) ListOverdue(_ context.Context, status models.Status, _ time.Time) ([]string, error) {
	return r.overdue[status], nil
}

type fakeFileRepo struct {
	files []*models.File

	versionsClosed   bool
	closedFileIDs    []int64
	allDeleted       bool
	deletedIDs       []int64
	deleteByIDsErr   error
	closeVersionsErr error
}

func (r *fakeFileRepo) Create(_ context.Context, f *models.File) (int64, error) {
	r.files = append(r.files, f)
	return int64(len(r.files)), nil
}

func (r *fakeFileRepo) AddVersion(context.Context, *models.Version) (int64, error) { return 1, nil }

func (r *fakeFileRepo) ListForProject(context.Context, int64) ([]*models.File, error) {
	return r.files, nil
}

func (r *fakeFileRepo) ListBySubpath(_ context.Context, _ int64, subpath string) ([]*models.File, error) {
	var out []*models.File
	for _, f := range r.files {
		if f.Subpath == subpath {
			out = append(out, f)
		}
	}
	return out, nil
}

func (r *fakeFileRepo) ListByNames(_ context.Context, _ int64, names []string) ([]*models.File, error) {
	want := make(map[string]struct{}, len(names))
	for _, n := range names {
		want[n] = struct{}{}
	}
	var out []*models.File
	for _, f := range r.files {
		if _, ok := want[f.Name]; ok {
			out = append(out, f)
		}
	}
	return out, nil
}

func (r *fakeFileRepo) CountForProject(context.Context, int64) (int, error) {
	return len(r.files), nil
}

func (r *fakeFileRepo) CloseActiveVersions(context.Context, int64, time.Time) error {
	if r.closeVersionsErr != nil {
		return r.closeVersionsErr
	}
	r.versionsClosed = true
	return nil
}

func (r *fakeFileRepo) CloseActiveVersionsByFileIDs(_ context.Context, fileIDs []int64, _ time.Time) error {
	r.closedFileIDs = append(r.closedFileIDs, fileIDs...)
	return nil
}

func (r *fakeFileRepo) DeleteAllForProject(context.Context, int64) (int64, error) {
	r.allDeleted = true
	n := int64(len(r.files))
	r.files = nil
	return n, nil
}

func (r *fakeFileRepo) DeleteByIDs(_ context.Context, fileIDs []int64) error {
	if r.deleteByIDsErr != nil {
		return r.deleteByIDsErr
	}
	r.deletedIDs = append(r.deletedIDs, fileIDs...)
	return nil
}

type fakeKeyRepo struct {
	userKeys   []*models.ProjectUserKey
	inviteKeys []*models.ProjectInviteKey
	revoked    bool
	revokeErr  error
}

func (r *fakeKeyRepo) InsertUserKey(_ context.Context, k *models.ProjectUserKey) error {
	r.userKeys = append(r.userKeys, k)
	return nil
}

func (r *fakeKeyRepo) InsertInviteKey(_ context.Context, k *models.ProjectInviteKey) error {
	r.inviteKeys = append(r.inviteKeys, k)
	return nil
}

func (r *fakeKeyRepo) RevokeAllForProject(context.Context, int64) (int64, error) {
	if r.revokeErr != nil {
		return 0, r.revokeErr
	}
	r.revoked = true
	n := int64(len(r.userKeys) + len(r.inviteKeys))
	r.userKeys = nil
	r.inviteKeys = nil
	return n, nil
}

func (r *fakeKeyRepo) CountForProject(context.Context, int64) (int, error) {
	return len(r.userKeys) + len(r.inviteKeys), nil
}

type fakeRepoManager struct {
	projects *fakeProjectRepo
	files    *fakeFileRepo
	keys     *fakeKeyRepo
}

func newFakeRepoManager() *fakeRepoManager {
	return &fakeRepoManager{
		projects: &fakeProjectRepo{overdue: map[models.Status][]string{}},
		files:    &fakeFileRepo{},
		keys:     &fakeKeyRepo{},
	}
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m *fakeRepoManager) Projects(dbx.DBTX) projects.Repository        { return m.projects }
func (m *fakeRepoManager) Files(dbx.DBTX) files.Repository              { return m.files }
func (m *fakeRepoManager) ProjectKeys(dbx.DBTX) projectkeys.Repository  { return m.keys }

type fakeObjectStore struct {
	emptied       []string
	removed       []string
	deletedKeys   []string
	emptyErr      error
	removeErr     error
	deleteErr     error
	failAfterCall int // fail DeleteObjects on the Nth call (1-based), 0 = never
	deleteCalls   int
}

func (s *fakeObjectStore) EmptyBucket(_ context.Context, bucket string) error {
	if s.emptyErr != nil {
		return s.emptyErr
	}
	s.emptied = append(s.emptied, bucket)
	return nil
}

func (s *fakeObjectStore) RemoveBucket(_ context.Context, bucket string) error {
	if s.removeErr != nil {
		return s.removeErr
	}
	s.removed = append(s.removed, bucket)
	return nil
}

func (s *fakeObjectStore) DeleteObject(_ context.Context, _, key string) error {
	s.deletedKeys = append(s.deletedKeys, key)
	return nil
}

func (s *fakeObjectStore) DeleteObjects(_ context.Context, _ string, keys []string) (int, error) {
	s.deleteCalls++
	if s.deleteErr != nil && (s.failAfterCall == 0 || s.deleteCalls == s.failAfterCall) {
		return 0, s.deleteErr
	}
	s.deletedKeys = append(s.deletedKeys, keys...)
	return len(keys), nil
}

type fakeNotifier struct {
	sent []string // "email:project"
	err  error
}

func (n *fakeNotifier) ProjectReleased(_ context.Context, email, projectID string, _ time.Time) error {
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, email+":"+projectID)
	return nil
}
