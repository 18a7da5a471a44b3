package record

import "errors"

// Sentinel errors for record validation and lookup. Write paths reject
// invalid records synchronously with one of these reason codes.
var (
	// ErrEmptyContent indicates the record has no content after trimming.
	ErrEmptyContent = errors.New("record: empty content")

	// ErrAllRedacted indicates redaction left nothing but placeholder
	// tokens, so there is no fact worth storing.
	ErrAllRedacted = errors.New("record: content entirely redacted")

	// ErrPriorityRange indicates a priority outside [0, 1].
	ErrPriorityRange = errors.New("record: priority out of range [0,1]")

	// ErrConfidenceRange indicates a confidence outside [0, 1].
	ErrConfidenceRange = errors.New("record: confidence out of range [0,1]")

	// ErrInvalidTier indicates a tier other than tier1, tier2, or tier3.
	ErrInvalidTier = errors.New("record: invalid tier")

	// ErrMissingUser indicates a record without an owning user.
	ErrMissingUser = errors.New("record: missing user id")

	// ErrNotFound indicates no live record matches the given ID.
	ErrNotFound = errors.New("record: not found")

	// ErrOwnerMismatch indicates the record exists but belongs to a
	// different user than the caller.
	ErrOwnerMismatch = errors.New("record: record belongs to another user")

	// ErrDeleted indicates a mutation was attempted on a soft-deleted
	// record. Soft-deleted records are immutable.
	ErrDeleted = errors.New("record: record is soft-deleted")
)
