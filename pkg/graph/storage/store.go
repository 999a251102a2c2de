package storage

import (
	"context"

	"github.com/athapong/cardiograph/pkg/graph"
)

// Direction selects which edges Neighbors follows from the root.
type Direction int

const (
	DirectionBoth Direction = iota
	DirectionOut
	DirectionIn
)

// RelFilter is an optional predicate over relationship attributes applied
// during traversal. A nil filter keeps everything.
type RelFilter func(*graph.Relationship) bool

// Neighborhood is the result of a bounded traversal: the relationships that
// passed the filter and the entities they reach (the root excluded).
type Neighborhood struct {
	Entities      []graph.Entity
	Relationships []graph.Relationship
}

// Stats summarizes graph size for logging and gauges.
type Stats struct {
	Entities      int
	Relationships int
	Sources       int
}

// GraphStore owns the canonical graph representation. Writes are expressed
// as accumulate-on-merge upserts, never destructive overwrites, so redoing
// an in-flight write after a restart is safe. Implementations serialize
// merges per key; reads run concurrently and may observe a graph
// mid-ingestion.
type GraphStore interface {
	// UpsertEntity creates the entity on first mention or increments its
	// frequency and records a new alias otherwise. The mention's source is
	// appended to the entity's provenance.
	UpsertEntity(ctx context.Context, mention graph.EntityMention, src graph.SourceRef) (*graph.Entity, error)

	// UpsertRelationship merges a candidate into the (source, target,
	// relation_type) aggregate: frequency += 1, confidence updated as the
	// running mean, classification recomputed from the merged aggregates.
	// Both endpoints must already exist, otherwise ErrDanglingReference.
	UpsertRelationship(ctx context.Context, cand graph.RelationshipCandidate, src graph.SourceRef) (*graph.Relationship, error)

	// GetEntity resolves a canonical name, returning ErrEntityNotFound for
	// unknown names.
	GetEntity(ctx context.Context, name string) (*graph.Entity, error)

	// Neighbors returns entities reachable within maxHops of the root
	// (default 1 when maxHops < 1), following edges in the given direction
	// and applying the optional relationship filter.
	Neighbors(ctx context.Context, name string, dir Direction, maxHops int, filter RelFilter) (*Neighborhood, error)

	// SearchEntities matches term case-insensitively as a substring of
	// canonical names and aliases, ordered by descending frequency then
	// name. An unknown term yields an empty slice.
	SearchEntities(ctx context.Context, term string, limit int) ([]graph.SearchResult, error)

	// EntitySources returns the entity's provenance records.
	EntitySources(ctx context.Context, name string) ([]graph.SourceRef, error)

	// RelationshipSources returns the documents supporting one edge.
	RelationshipSources(ctx context.Context, source, target, relType string) ([]graph.SourceRef, error)

	// MarkDocumentIngested records a document ID, reporting false when the
	// ID was already present. The pipeline uses it to keep re-ingestion
	// idempotent.
	MarkDocumentIngested(ctx context.Context, docID string) (bool, error)

	// Stats reports graph size.
	Stats(ctx context.Context) (Stats, error)

	Close() error
}
