// Package common defines shared sentinel errors used across the delivery
// service layers. Callers should use errors.Is / errors.As to match these.
package common

import (
	"errors"
	"fmt"
)

var (
	// Repository-level errors.
	ErrNotFound = errors.New("not found")

	// Lifecycle errors (user-correctable).
	ErrProjectBusy       = errors.New("status change already in progress")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrValidation        = errors.New("validation error")

	// Generic surface for any server-side failure during a transition.
	// The underlying cause is logged, never returned to the caller.
	ErrStatusNotUpdated = errors.New("server error: status was not updated")

	// Object-storage errors.
	ErrBucketNotFound     = errors.New("bucket not found")
	ErrKeyNotFound        = errors.New("object key not found")
	ErrStorageUnavailable = errors.New("object storage unavailable")
)

// DeletionError reports a partially completed batch deletion: how many
// objects were removed before the failing batch and which logical folders
// the failed batch touched. Completed batches stay committed, so the
// operation can be resumed from the failing batch.
type DeletionError struct {
	Removed int
	Folders []string
	Err     error
}

func (e *DeletionError) Error() string {
	return fmt.Sprintf("content deletion stopped after %d objects (folders affected: %v): %v",
		e.Removed, e.Folders, e.Err)
}

func (e *DeletionError) Unwrap() error { return e.Err }

// OrphanedContentError marks the known inconsistency window where the
// bucket contents were removed but the relational commit failed. Operator
// reconciliation is required; this must never be swallowed silently.
type OrphanedContentError struct {
	ProjectID string
	Err       error
}

func (e *OrphanedContentError) Error() string {
	return fmt.Sprintf("orphaned content for project %s: bucket emptied but database update failed: %v",
		e.ProjectID, e.Err)
}

func (e *OrphanedContentError) Unwrap() error { return e.Err }
