package specstore

import "errors"

var (
	// ErrLockTimeout means the record-file lock could not be acquired
	// within the configured window. Callers should retry or abort, not
	// silently skip.
	ErrLockTimeout = errors.New("specstore: lock acquisition timed out")

	// ErrRecordNotFound means the requested record (or its project file)
	// disappeared mid-operation.
	ErrRecordNotFound = errors.New("specstore: record not found")
)
