package core

import "errors"

// Failure taxonomy shared by every layer. Callers classify with errors.Is and
// add detail with fmt.Errorf("...: %w", ...). Nothing in here is retried
// internally; retry policy belongs to whoever wraps these contracts.
var (
	// ErrUnauthenticated means no valid identity could be resolved for the request.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrValidation means malformed input: a vector of the wrong dimension,
	// a non-positive top-k, an empty required field.
	ErrValidation = errors.New("validation failed")

	// ErrEmbedding means the embedding provider failed. During ingestion this
	// drives the document to its Failed state; during retrieval it surfaces
	// directly to the caller.
	ErrEmbedding = errors.New("embedding failed")

	// ErrStorage means a transactional or connectivity failure in the store.
	// Atomicity guarantees that prior state is left untouched.
	ErrStorage = errors.New("storage failure")
)
