package docstore

import "errors"

var (
	// ErrNotFound is returned when a document is missing.
	ErrNotFound = errors.New("docstore: document not found")
	// ErrAlreadyExists is returned by Create when the document is present.
	ErrAlreadyExists = errors.New("docstore: document already exists")
	// ErrConflict is returned once the transaction retry budget is spent.
	ErrConflict = errors.New("docstore: transaction conflict, retry budget exhausted")
	// ErrReadAfterWrite is returned when a transaction reads after buffering a write.
	ErrReadAfterWrite = errors.New("docstore: transaction reads must precede writes")
	// ErrBatchTooLarge is returned when a batch exceeds MaxBatchSize writes.
	ErrBatchTooLarge = errors.New("docstore: batch exceeds maximum size")
	// ErrAborted is what a backend returns from one attempt that lost an
	// optimistic race. RunTransaction retries it and never surfaces it.
	ErrAborted = errors.New("docstore: transaction attempt aborted")
)
