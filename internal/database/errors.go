package database

import "errors"

var (
	// ErrCapacityExceeded is returned when a conditional ledger update
	// affects zero rows: the requested seats would push a batch outside
	// [0, max_participants].
	ErrCapacityExceeded = errors.New("batch capacity exceeded")

	// ErrConflictingState is returned when a status-guarded update finds
	// the booking in a state the transition is not valid from.
	ErrConflictingState = errors.New("conflicting booking state")

	// ErrConcurrentModification is returned when a version-guarded update
	// loses the race to another writer.
	ErrConcurrentModification = errors.New("concurrent modification")

	ErrNotFound = errors.New("not found")

	// ErrBatchClosed is returned when reserving against a non-active batch.
	ErrBatchClosed = errors.New("batch is closed")
)
