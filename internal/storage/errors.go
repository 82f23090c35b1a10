package storage

import "errors"

var (
	// ErrNotFound is returned when a record is not found.
	ErrNotFound = errors.New("record not found")

	// ErrNotInitialized is returned when operating on a collection that has
	// never been synced. Callers should run a sync pass first.
	ErrNotInitialized = errors.New("collection not initialized: run sync first")

	// ErrAttachmentMissing is returned when attachment metadata claims a local
	// file that no longer exists on disk. Treated as a cache miss, not
	// corruption: the caller may re-download.
	ErrAttachmentMissing = errors.New("attachment file missing from local storage")
)
