package qcache

import "errors"

// Sentinel errors the cache engine surfaces to its callers. All four are
// exactly the error kinds the cache is specified against: a malformed query,
// a backing-store failure, an internal consistency check failing, and a
// commit with nothing to commit.
var (
	// ErrMalformedQuery is returned when the pattern extractor cannot parse
	// a query passed to Remember. Nothing is written.
	ErrMalformedQuery = errors.New("qcache: malformed query")

	// ErrBackend wraps an error returned by the underlying kv.Store. Any
	// partial mutation already applied is left in place — the engine makes
	// no atomicity guarantee across multiple keys.
	ErrBackend = errors.New("qcache: backend error")

	// ErrInvariantViolation is returned when an internal consistency check
	// fails, such as a QueryEntry referencing a GraphEntry that no longer
	// exists. The failing operation aborts; the Engine itself remains
	// usable for subsequent calls.
	ErrInvariantViolation = errors.New("qcache: invariant violation")

	// ErrNoActiveTransaction is returned by CommitTransaction when called
	// with no transaction on the stack.
	ErrNoActiveTransaction = errors.New("qcache: no active transaction")
)
