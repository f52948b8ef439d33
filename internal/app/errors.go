package service

import "errors"

// Sentinel kinds for service errors.
var (
	// ErrRankingStore marks a failed ranking store call. It is always
	// surfaced to the caller.
	ErrRankingStore = errors.New("ranking store failure")

	// ErrRepository marks a repository failure on the recovery path.
	ErrRepository = errors.New("repository failure")

	// ErrPersist marks a write-through failure. It only ever appears in
	// UpdateResult.PersistErr; the update itself succeeded.
	ErrPersist = errors.New("write-through persistence failed")
)
