package query

import (
	"context"
	"strings"

	"github.com/athapong/cardiograph/pkg/graph"
)

// DefaultSearchLimit caps search responses when the caller passes no limit.
const DefaultSearchLimit = 10

// MinSearchTermLength is the shortest query worth running. Anything shorter
// matches half the gazetteer and helps nobody.
const MinSearchTermLength = 2

// EntitySearcher is the slice of the store the search index needs.
type EntitySearcher interface {
	SearchEntities(ctx context.Context, term string, limit int) ([]graph.SearchResult, error)
}

// SearchIndex answers entity lookups by substring over canonical names and
// aliases, ranked by frequency.
type SearchIndex struct {
	store EntitySearcher
}

// NewSearchIndex returns a search index over the given store.
func NewSearchIndex(store EntitySearcher) *SearchIndex {
	return &SearchIndex{store: store}
}

// Search returns up to limit entities matching term, most frequent first.
// Terms shorter than MinSearchTermLength after trimming yield an empty
// result without touching the store.
func (s *SearchIndex) Search(ctx context.Context, term string, limit int) ([]graph.SearchResult, error) {
	trimmed := strings.TrimSpace(term)
	if len(trimmed) < MinSearchTermLength {
		return []graph.SearchResult{}, nil
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	return s.store.SearchEntities(ctx, trimmed, limit)
}
