package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dcarleson/delivd/internal/common"
	"github.com/dcarleson/delivd/internal/server/models"
)

func TestCreateProject(t *testing.T) {
	db, mock := newTestDB(t)
	rm := newFakeRepoManager()
	keys := NewKeyService(rm, []byte("pw"), nopLogger{})
	svc := NewProjectService(db, rm, keys, nopLogger{})
	svc.now = func() time.Time { return testNow }
	mock.ExpectBegin()
	mock.ExpectCommit()

	p, err := svc.Create(context.Background(), CreateProjectInput{
		UnitID:      1,
		Title:       "Sequencing batch 42",
		Description: "WGS delivery",
		PI:          "pi@uni.se",
	})
	require.NoError(t, err)

	_, err = uuid.Parse(p.PublicID)
	assert.NoError(t, err)
	assert.Equal(t, "delivproj-"+p.PublicID, p.Bucket)
	assert.NotEmpty(t, p.PublicKey)
	assert.NotEmpty(t, p.PrivateKey)

	// Registration and the initial history entry are one transaction.
	require.Len(t, rm.projects.inserted, 1)
	assert.Equal(t, models.StatusInProgress, rm.projects.inserted[0].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateProjectRequiresTitle(t *testing.T) {
	db, _ := newTestDB(t)
	rm := newFakeRepoManager()
	svc := NewProjectService(db, rm, NewKeyService(rm, []byte("pw"), nopLogger{}), nopLogger{})

	_, err := svc.Create(context.Background(), CreateProjectInput{UnitID: 1, Title: "   "})
	assert.ErrorIs(t, err, common.ErrValidation)
}

func TestCurrentStatus(t *testing.T) {
	db, _ := newTestDB(t)
	rm := newFakeRepoManager()
	svc := NewProjectService(db, rm, NewKeyService(rm, []byte("pw"), nopLogger{}), nopLogger{})

	rm.projects.project = &models.Project{ID: 1, PublicID: "proj-1"}
	rm.projects.statuses = []*models.ProjectStatus{
		{ProjectID: 1, Status: models.StatusInProgress, DateCreated: testNow.Add(-time.Hour)},
		{ProjectID: 1, Status: models.StatusAvailable, DateCreated: testNow},
	}

	st, err := svc.CurrentStatus(context.Background(), "proj-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusAvailable, st.Status)

	_, err = svc.CurrentStatus(context.Background(), "nope")
	assert.ErrorIs(t, err, common.ErrNotFound)
}
