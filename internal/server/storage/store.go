// Package storage abstracts the per-project object-store buckets holding
// the delivered file payloads.
package storage

import "context"

// MaxDeleteBatch is the object store's cap on items per bulk-delete call.
const MaxDeleteBatch = 1000

// ObjectStore is the contract the lifecycle orchestration needs from the
// object-storage backend. Each call is atomic on its own; a whole content
// deletion spans several calls and is not.
//
// Implementations classify failures into common.ErrBucketNotFound,
// common.ErrKeyNotFound and common.ErrStorageUnavailable so callers can
// distinguish "already gone" from "could not reach the store".
type ObjectStore interface {
	// EmptyBucket removes every object in the bucket.
	EmptyBucket(ctx context.Context, bucket string) error

	// RemoveBucket deletes the bucket itself. The bucket must be empty.
	RemoveBucket(ctx context.Context, bucket string) error

	// DeleteObject removes a single object.
	DeleteObject(ctx context.Context, bucket, key string) error

	// DeleteObjects removes up to MaxDeleteBatch objects in one call and
	// reports how many were removed.
	DeleteObjects(ctx context.Context, bucket string, keys []string) (int, error)
}
