package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dcarleson/delivd/internal/common"
	"github.com/dcarleson/delivd/internal/dbx"
	"github.com/dcarleson/delivd/internal/logging"
	"github.com/dcarleson/delivd/internal/server/models"
	"github.com/dcarleson/delivd/internal/server/repositories/repomanager"
	"github.com/dcarleson/delivd/internal/timex"
)

const (
	// Caps on caller-supplied deadlines, in days.
	maxReleaseDays = 90
	maxExpireDays  = 30

	// Defaults applied when the caller supplies no deadline.
	defaultReleaseDays = 30
	defaultExpireDays  = 30

	// A project may be expired at most this many times and still be
	// released again.
	maxTimesExpired = 2
)

// TransitionOptions carries the per-request knobs of a status transition.
type TransitionOptions struct {
	// DeadlineInDays overrides the default deadline on Release/Expire.
	DeadlineInDays *int

	// IsAborted marks an Archive as an abort: metadata is nulled exactly
	// as for Delete.
	IsAborted bool

	// SuppressEmail skips the release notification to researchers.
	SuppressEmail bool
}

// Outcome is the caller-facing result of a successful transition.
type Outcome struct {
	NewStatus models.Status
	Message   string
}

// StatusService is the project lifecycle state machine. It validates the
// requested transition, serializes it through the project busy flag, runs
// the transition-specific side effects and appends the immutable status
// history entry.
type StatusService struct {
	db       *sql.DB
	rm       repomanager.RepositoryManager
	contents *ContentService
	keys     *KeyService
	notifier Notifier
	log      logging.Logger

	// defaultDays is the deadline applied when a release request carries
	// no explicit one.
	defaultDays int

	// now is a seam for tests.
	now func() time.Time
}

func NewStatusService(db *sql.DB, rm repomanager.RepositoryManager, contents *ContentService,
	keys *KeyService, notifier Notifier, log logging.Logger) *StatusService {
	return &StatusService{
		db:          db,
		rm:          rm,
		contents:    contents,
		keys:        keys,
		notifier:    notifier,
		log:         log,
		defaultDays: defaultReleaseDays,
		now:         time.Now,
	}
}

// SetDefaultDeadline overrides the release deadline applied when a request
// does not specify one. Values outside (0, maxReleaseDays] are ignored.
func (s *StatusService) SetDefaultDeadline(days int) {
	if days > 0 && days <= maxReleaseDays {
		s.defaultDays = days
	}
}

// transitionPlan is the validated, fully computed description of what a
// transition will do. Building it performs no side effects; a validation
// failure therefore leaves every row untouched.
type transitionPlan struct {
	entry         *models.ProjectStatus
	destructive   bool
	removeBucket  bool
	nullify       bool
	setReleasedAt bool
}

// RequestTransition moves the project to target. At most one transition
// per project is in flight system-wide; a concurrent request fails fast
// with common.ErrProjectBusy. Any failure after validation rolls back the
// relational work, resets the busy flag and surfaces the generic
// common.ErrStatusNotUpdated; nothing is retried automatically.
func (s *StatusService) RequestTransition(ctx context.Context, projectID string, target models.Status, opts TransitionOptions) (*Outcome, error) {
	if target == "" {
		return nil, fmt.Errorf("%w: no status transition provided, specify the new status", common.ErrValidation)
	}
	if !target.Valid() {
		return nil, fmt.Errorf("%w: invalid status %q", common.ErrValidation, target)
	}

	repo := s.rm.Projects(s.db)
	project, err := repo.GetByPublicID(ctx, projectID)
	if err != nil {
		return nil, err
	}

	if err := repo.SetBusy(ctx, project.ID); err != nil {
		if errors.Is(err, common.ErrProjectBusy) {
			return nil, fmt.Errorf("%w: the status for the project '%s' is already in the process of being changed",
				common.ErrProjectBusy, projectID)
		}
		return nil, err
	}
	defer s.clearBusy(ctx, project.ID, projectID)

	current, err := repo.CurrentStatus(ctx, project.ID)
	if err != nil {
		s.log.Error(ctx, "failed to read current status", "project", projectID, "err", err)
		return nil, common.ErrStatusNotUpdated
	}

	now := s.now().UTC()
	plan, err := s.plan(ctx, project, current.Status, target, opts, now)
	if err != nil {
		return nil, err
	}

	// Destructive transitions remove the payloads first. A failure here
	// aborts before any relational change, so the database never claims
	// content is gone while it is not.
	if plan.destructive {
		if err := s.contents.EmptyProjectBucket(ctx, project, plan.removeBucket); err != nil {
			s.log.Error(ctx, "content deletion failed, no database changes were made",
				"project", projectID, "err", err)
			return nil, common.ErrStatusNotUpdated
		}
	}

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		txRepo := s.rm.Projects(tx)

		// The project row is the serialization point; lock it for the
		// remainder of the transaction.
		if _, err := txRepo.GetByPublicIDForUpdate(ctx, projectID); err != nil {
			return err
		}

		if plan.destructive {
			if err := s.contents.DeleteRowsTx(ctx, tx, project, now); err != nil {
				return err
			}
			if err := s.keys.RevokeAllTx(ctx, tx, project); err != nil {
				return err
			}
		}
		if plan.nullify {
			if err := txRepo.NullifyMetadata(ctx, project.ID); err != nil {
				return err
			}
			if err := txRepo.DetachUsers(ctx, project.ID); err != nil {
				return err
			}
		}
		if plan.setReleasedAt {
			if err := txRepo.SetReleasedAt(ctx, project.ID, now); err != nil {
				return err
			}
		}
		return txRepo.InsertStatus(ctx, plan.entry)
	})
	if err != nil {
		// Constraint violations point at a bug or concurrent writer;
		// transient failures at the database itself. Operators triage
		// them differently, the caller sees the same generic error.
		class := "transient"
		if dbx.IsIntegrityViolation(err) {
			class = "integrity"
		}
		if plan.destructive {
			s.log.Error(ctx, "orphaned content: bucket emptied but status transaction failed; manual reconciliation required",
				"project", projectID, "bucket", project.Bucket, "target", target, "class", class, "err",
				&common.OrphanedContentError{ProjectID: projectID, Err: err})
		} else {
			s.log.Error(ctx, "status transition failed", "project", projectID, "target", target, "class", class, "err", err)
		}
		return nil, common.ErrStatusNotUpdated
	}

	msg := fmt.Sprintf("%s updated to status %s.", projectID, target)
	if target == models.StatusAvailable {
		if opts.SuppressEmail {
			msg += " An e-mail notification has not been sent."
		} else {
			s.notifyRelease(ctx, project, plan.entry)
		}
	}
	return &Outcome{NewStatus: target, Message: msg}, nil
}

// plan validates the transition and computes its side effects without
// performing any of them.
func (s *StatusService) plan(ctx context.Context, project *models.Project, current, target models.Status,
	opts TransitionOptions, now time.Time) (*transitionPlan, error) {

	if current.Terminal() {
		return nil, fmt.Errorf("%w: cannot change status for a project that has the status '%s'",
			common.ErrInvalidTransition, current)
	}

	entry := &models.ProjectStatus{
		ProjectID:   project.ID,
		Status:      target,
		DateCreated: now,
	}

	switch target {
	case models.StatusInProgress:
		if current != models.StatusAvailable {
			return nil, fmt.Errorf("%w: you cannot retract a project that has the current status '%s'",
				common.ErrInvalidTransition, current)
		}
		return &transitionPlan{entry: entry}, nil

	case models.StatusAvailable:
		return s.planRelease(ctx, project, current, opts, now, entry)

	case models.StatusExpired:
		if current != models.StatusAvailable {
			return nil, fmt.Errorf("%w: you cannot expire a project that has the current status '%s'",
				common.ErrInvalidTransition, current)
		}
		days := defaultExpireDays
		if opts.DeadlineInDays != nil {
			days = *opts.DeadlineInDays
		}
		if days < 1 || days > maxExpireDays {
			return nil, fmt.Errorf("%w: the deadline needs to be less than (or equal to) %d days",
				common.ErrValidation, maxExpireDays)
		}
		entry.Deadline = sql.NullTime{Time: timex.DeadlineAfter(now, days), Valid: true}
		return &transitionPlan{entry: entry}, nil

	case models.StatusDeleted:
		if current != models.StatusInProgress {
			return nil, fmt.Errorf("%w: you cannot delete a project that has the current status '%s'",
				common.ErrInvalidTransition, current)
		}
		if project.ReleasedAt.Valid {
			return nil, fmt.Errorf("%w: you cannot delete a project that has been made available previously, please abort the project if you wish to proceed",
				common.ErrInvalidTransition)
		}
		return &transitionPlan{
			entry:        entry,
			destructive:  true,
			removeBucket: true,
			nullify:      true,
		}, nil

	case models.StatusArchived:
		if current == models.StatusInProgress && project.ReleasedAt.Valid && !opts.IsAborted {
			return nil, fmt.Errorf("%w: you cannot archive a project that has been made available previously, please abort the project if you wish to proceed",
				common.ErrInvalidTransition)
		}
		entry.IsAborted = sql.NullBool{Bool: opts.IsAborted, Valid: true}
		return &transitionPlan{
			entry:       entry,
			destructive: true,
			nullify:     opts.IsAborted,
		}, nil
	}

	return nil, fmt.Errorf("%w: invalid status %q", common.ErrValidation, target)
}

// planRelease computes the Release (-> Available) transition: deadline
// bounds, the expiry limit, and the idempotent deadline preservation
// across Available -> In Progress -> Available round-trips.
func (s *StatusService) planRelease(ctx context.Context, project *models.Project, current models.Status,
	opts TransitionOptions, now time.Time, entry *models.ProjectStatus) (*transitionPlan, error) {

	if current != models.StatusInProgress && current != models.StatusExpired {
		return nil, fmt.Errorf("%w: you cannot release a project that has the current status '%s'",
			common.ErrInvalidTransition, current)
	}

	days := s.defaultDays
	if opts.DeadlineInDays != nil {
		days = *opts.DeadlineInDays
	}
	if days < 1 || days > maxReleaseDays {
		return nil, fmt.Errorf("%w: the deadline needs to be less than (or equal to) %d days",
			common.ErrValidation, maxReleaseDays)
	}

	repo := s.rm.Projects(s.db)

	if current == models.StatusExpired {
		expired, err := repo.CountStatuses(ctx, project.ID, models.StatusExpired)
		if err != nil {
			return nil, err
		}
		if expired > maxTimesExpired {
			return nil, fmt.Errorf("%w: project cannot be made Available any more times",
				common.ErrValidation)
		}
	}

	// A project released before and retracted keeps its original deadline
	// when released again; the round-trip must not extend availability.
	if current == models.StatusInProgress && project.ReleasedAt.Valid {
		last, err := repo.LatestStatusOf(ctx, project.ID, models.StatusAvailable)
		if err != nil {
			return nil, err
		}
		entry.Deadline = last.Deadline
	} else {
		entry.Deadline = sql.NullTime{Time: timex.DeadlineAfter(now, days), Valid: true}
	}

	return &transitionPlan{
		entry:         entry,
		setReleasedAt: !project.ReleasedAt.Valid,
	}, nil
}

// ExtendDeadline appends a fresh Available entry with the current deadline
// pushed out by newDeadlineInDays. Counts against the same availability
// limit as Release.
func (s *StatusService) ExtendDeadline(ctx context.Context, projectID string, newDeadlineInDays int, confirmed bool) (*Outcome, error) {
	if !confirmed {
		return nil, fmt.Errorf("%w: operation must be confirmed before proceeding", common.ErrValidation)
	}

	repo := s.rm.Projects(s.db)
	project, err := repo.GetByPublicID(ctx, projectID)
	if err != nil {
		return nil, err
	}

	if err := repo.SetBusy(ctx, project.ID); err != nil {
		if errors.Is(err, common.ErrProjectBusy) {
			return nil, fmt.Errorf("%w: the deadline for the project '%s' is already in the process of being changed, please try again later",
				common.ErrProjectBusy, projectID)
		}
		return nil, err
	}
	defer s.clearBusy(ctx, project.ID, projectID)

	current, err := repo.CurrentStatus(ctx, project.ID)
	if err != nil {
		s.log.Error(ctx, "failed to read current status", "project", projectID, "err", err)
		return nil, common.ErrStatusNotUpdated
	}
	if current.Status != models.StatusAvailable {
		return nil, fmt.Errorf("%w: you can only extend the deadline for a project that has the status 'Available'",
			common.ErrValidation)
	}
	if newDeadlineInDays < 1 {
		return &Outcome{NewStatus: current.Status, Message: "Nothing to update."}, nil
	}
	if !current.Deadline.Valid {
		s.log.Error(ctx, "available project without deadline", "project", projectID)
		return nil, common.ErrStatusNotUpdated
	}

	now := s.now().UTC()
	newDeadline := current.Deadline.Time.AddDate(0, 0, newDeadlineInDays)
	if newDeadline.After(timex.DeadlineAfter(now, maxReleaseDays)) {
		return nil, fmt.Errorf("%w: the new deadline needs to be less than (or equal to) %d days",
			common.ErrValidation, maxReleaseDays)
	}

	released, err := repo.CountStatuses(ctx, project.ID, models.StatusAvailable)
	if err != nil {
		return nil, err
	}
	// The initial release does not count against the extension allowance:
	// three extensions succeed, the fourth is rejected.
	if released-1 > maxTimesExpired {
		return nil, fmt.Errorf("%w: project availability limit: project cannot be made Available any more times",
			common.ErrValidation)
	}

	entry := &models.ProjectStatus{
		ProjectID:   project.ID,
		Status:      models.StatusAvailable,
		DateCreated: now,
		Deadline:    sql.NullTime{Time: newDeadline, Valid: true},
	}

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		txRepo := s.rm.Projects(tx)
		if _, err := txRepo.GetByPublicIDForUpdate(ctx, projectID); err != nil {
			return err
		}
		return txRepo.InsertStatus(ctx, entry)
	})
	if err != nil {
		s.log.Error(ctx, "deadline extension failed", "project", projectID, "err", err)
		return nil, common.ErrStatusNotUpdated
	}

	msg := fmt.Sprintf("The project '%s' has been given a new deadline. An e-mail notification has not been sent.", projectID)
	return &Outcome{NewStatus: models.StatusAvailable, Message: msg}, nil
}

// ExpireOverdueProjects moves every Available project past its deadline to
// Expired. Invoked by an external scheduler; failures are logged per
// project and the sweep continues.
func (s *StatusService) ExpireOverdueProjects(ctx context.Context) (int, error) {
	ids, err := s.rm.Projects(s.db).ListOverdue(ctx, models.StatusAvailable, s.now().UTC())
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, id := range ids {
		days := defaultExpireDays
		_, err := s.RequestTransition(ctx, id, models.StatusExpired, TransitionOptions{
			DeadlineInDays: &days,
			SuppressEmail:  true,
		})
		if err != nil {
			s.log.Error(ctx, "scheduled expiry failed", "project", id, "err", err)
			continue
		}
		s.log.Info(ctx, "project expired by schedule", "project", id)
		expired++
	}
	return expired, nil
}

// ArchiveOverdueExpired archives every Expired project past its deadline.
func (s *StatusService) ArchiveOverdueExpired(ctx context.Context) (int, error) {
	ids, err := s.rm.Projects(s.db).ListOverdue(ctx, models.StatusExpired, s.now().UTC())
	if err != nil {
		return 0, err
	}

	archived := 0
	for _, id := range ids {
		_, err := s.RequestTransition(ctx, id, models.StatusArchived, TransitionOptions{SuppressEmail: true})
		if err != nil {
			s.log.Error(ctx, "scheduled archiving failed", "project", id, "err", err)
			continue
		}
		s.log.Info(ctx, "project archived by schedule", "project", id)
		archived++
	}
	return archived, nil
}

// clearBusy resets the busy flag on every exit path. It deliberately runs
// on a context that survives cancellation of the request.
func (s *StatusService) clearBusy(ctx context.Context, id int64, publicID string) {
	ctx = context.WithoutCancel(ctx)
	if err := s.rm.Projects(s.db).ClearBusy(ctx, id); err != nil {
		s.log.Error(ctx, "failed to clear busy flag", "project", publicID, "err", err)
	}
}

// notifyRelease informs every researcher on the project once. Notification
// failures never fail the transition.
func (s *StatusService) notifyRelease(ctx context.Context, project *models.Project, entry *models.ProjectStatus) {
	researchers, err := s.rm.Projects(s.db).ListResearchers(ctx, project.ID)
	if err != nil {
		s.log.Error(ctx, "failed to list researchers for notification", "project", project.PublicID, "err", err)
		return
	}
	for _, u := range researchers {
		if err := s.notifier.ProjectReleased(ctx, u.Email, project.PublicID, entry.Deadline.Time); err != nil {
			s.log.Warn(ctx, "release notification failed", "project", project.PublicID, "email", u.Email, "err", err)
		}
	}
}
