package graph

import "errors"

var (
	// ErrEntityNotFound is returned by store lookups for an unknown entity
	// name. Query endpoints translate it into a found:false response.
	ErrEntityNotFound = errors.New("cardiograph: entity not found")

	// ErrDanglingReference is returned when a relationship upsert names an
	// entity that does not exist yet. The write path upserts entities first,
	// so hitting this indicates a single failed write, not a batch failure.
	ErrDanglingReference = errors.New("cardiograph: relationship references unknown entity")

	// ErrStoreUnavailable wraps transient infrastructure faults. Callers
	// retry with backoff before surfacing a failed-document record.
	ErrStoreUnavailable = errors.New("cardiograph: graph store unavailable")

	// ErrParseFailure marks a sentence or document that could not be
	// annotated. It is logged and skipped, never fatal to a batch.
	ErrParseFailure = errors.New("cardiograph: linguistic annotation failed")

	// ErrInvalidRelationType is returned when a relationship upsert carries
	// a label outside the validated relation vocabulary.
	ErrInvalidRelationType = errors.New("cardiograph: invalid relation type")

	// ErrUnsupportedFormat is returned by the corpus loader for file types
	// it cannot convert into ingestion records.
	ErrUnsupportedFormat = errors.New("cardiograph: unsupported corpus file format")
)
