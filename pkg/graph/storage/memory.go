package storage

import (
	"context"
	"sort"
	"strings"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/sirupsen/logrus"

	"github.com/athapong/cardiograph/pkg/graph"
	"github.com/athapong/cardiograph/pkg/graph/dualprocess"
)

type relKey struct {
	source, target, relType string
}

type entityRecord struct {
	entity  graph.Entity
	aliases mapset.Set[string]
	sources map[string]*graph.SourceRef
}

// MemoryStore is the in-process GraphStore. A single mutex serializes all
// merges, which satisfies the per-key serialization requirement outright;
// reads take the shared lock and never block each other.
type MemoryStore struct {
	mu         sync.RWMutex
	classifier *dualprocess.Classifier
	entities   map[string]*entityRecord
	rels       map[relKey]*graph.Relationship
	relSources map[relKey]map[string]*graph.SourceRef
	docs       map[string]bool
	logger     *logrus.Logger
}

// NewMemoryStore returns an empty in-memory graph whose merges reclassify
// through the given classifier.
func NewMemoryStore(classifier *dualprocess.Classifier) *MemoryStore {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	return &MemoryStore{
		classifier: classifier,
		entities:   make(map[string]*entityRecord),
		rels:       make(map[relKey]*graph.Relationship),
		relSources: make(map[relKey]map[string]*graph.SourceRef),
		docs:       make(map[string]bool),
		logger:     logger,
	}
}

// UpsertEntity implements GraphStore.
func (s *MemoryStore) UpsertEntity(ctx context.Context, mention graph.EntityMention, src graph.SourceRef) (*graph.Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.entities[mention.Name]
	if !ok {
		rec = &entityRecord{
			entity:  graph.Entity{Name: mention.Name, Type: mention.Type, Frequency: 0},
			aliases: mapset.NewSet[string](),
			sources: make(map[string]*graph.SourceRef),
		}
		s.entities[mention.Name] = rec
	}

	rec.entity.Frequency++
	if surface := strings.TrimSpace(mention.Surface); surface != "" {
		rec.aliases.Add(surface)
	}
	if src.SourceTitle != "" {
		if existing, ok := rec.sources[src.SourceTitle]; ok {
			existing.MentionCount++
		} else {
			ref := src
			ref.MentionCount = 1
			rec.sources[src.SourceTitle] = &ref
		}
	}

	out := rec.entity
	out.Aliases = sortedAliases(rec.aliases)
	return &out, nil
}

// UpsertRelationship implements GraphStore. Classification happens inside
// the same critical section as the merge, so readers never observe a
// relationship whose flags lag its aggregates.
func (s *MemoryStore) UpsertRelationship(ctx context.Context, cand graph.RelationshipCandidate, src graph.SourceRef) (*graph.Relationship, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !graph.KnownRelationType(cand.Type) {
		return nil, graph.ErrInvalidRelationType
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, endpoint := range []string{cand.Source, cand.Target} {
		if _, ok := s.entities[endpoint]; !ok {
			s.logger.WithFields(logrus.Fields{
				"entity":   endpoint,
				"relation": cand.Type,
			}).Debug("Relationship references unknown entity")
			return nil, graph.ErrDanglingReference
		}
	}

	key := relKey{cand.Source, cand.Target, cand.Type}
	rel, ok := s.rels[key]
	if !ok {
		rel = &graph.Relationship{
			Source:     cand.Source,
			Target:     cand.Target,
			Type:       cand.Type,
			Frequency:  1,
			Confidence: cand.Confidence,
		}
		s.rels[key] = rel
	} else {
		n := float64(rel.Frequency)
		rel.Confidence = (rel.Confidence*n + cand.Confidence) / (n + 1)
		rel.Frequency++
	}

	s.classifier.Apply(rel)

	if src.SourceTitle != "" {
		byTitle, ok := s.relSources[key]
		if !ok {
			byTitle = make(map[string]*graph.SourceRef)
			s.relSources[key] = byTitle
		}
		if existing, ok := byTitle[src.SourceTitle]; ok {
			existing.MentionCount++
		} else {
			ref := src
			ref.MentionCount = 1
			byTitle[src.SourceTitle] = &ref
		}
	}

	out := *rel
	return &out, nil
}

// GetEntity implements GraphStore.
func (s *MemoryStore) GetEntity(ctx context.Context, name string) (*graph.Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.entities[name]
	if !ok {
		return nil, graph.ErrEntityNotFound
	}
	out := rec.entity
	out.Aliases = sortedAliases(rec.aliases)
	return &out, nil
}

// Neighbors implements GraphStore with a breadth-first walk bounded by
// maxHops.
func (s *MemoryStore) Neighbors(ctx context.Context, name string, dir Direction, maxHops int, filter RelFilter) (*Neighborhood, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if maxHops < 1 {
		maxHops = 1
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.entities[name]; !ok {
		return nil, graph.ErrEntityNotFound
	}

	visited := map[string]bool{name: true}
	frontier := []string{name}
	seenRel := make(map[relKey]bool)
	out := &Neighborhood{}

	for hop := 0; hop < maxHops && len(frontier) > 0; hop++ {
		var next []string
		for _, current := range frontier {
			for key, rel := range s.rels {
				var other string
				switch {
				case key.source == current && dir != DirectionIn:
					other = key.target
				case key.target == current && dir != DirectionOut:
					other = key.source
				default:
					continue
				}
				if filter != nil && !filter(rel) {
					continue
				}

				if !seenRel[key] {
					seenRel[key] = true
					out.Relationships = append(out.Relationships, *rel)
				}
				if !visited[other] {
					visited[other] = true
					if rec, ok := s.entities[other]; ok {
						ent := rec.entity
						ent.Aliases = sortedAliases(rec.aliases)
						out.Entities = append(out.Entities, ent)
					}
					next = append(next, other)
				}
			}
		}
		frontier = next
	}

	sort.Slice(out.Entities, func(i, j int) bool { return out.Entities[i].Name < out.Entities[j].Name })
	sort.Slice(out.Relationships, func(i, j int) bool {
		a, b := out.Relationships[i], out.Relationships[j]
		if a.Frequency != b.Frequency {
			return a.Frequency > b.Frequency
		}
		if a.Source != b.Source {
			return a.Source < b.Source
		}
		if a.Target != b.Target {
			return a.Target < b.Target
		}
		return a.Type < b.Type
	})
	return out, nil
}

// SearchEntities implements GraphStore.
func (s *MemoryStore) SearchEntities(ctx context.Context, term string, limit int) ([]graph.SearchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	needle := strings.ToLower(strings.TrimSpace(term))
	if needle == "" {
		return []graph.SearchResult{}, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]graph.SearchResult, 0)
	for name, rec := range s.entities {
		matched := strings.Contains(name, needle)
		if !matched {
			for _, alias := range rec.aliases.ToSlice() {
				if strings.Contains(strings.ToLower(alias), needle) {
					matched = true
					break
				}
			}
		}
		if matched {
			results = append(results, graph.SearchResult{
				Name:      rec.entity.Name,
				Type:      rec.entity.Type,
				Frequency: rec.entity.Frequency,
			})
		}
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Frequency != results[j].Frequency {
			return results[i].Frequency > results[j].Frequency
		}
		return results[i].Name < results[j].Name
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// EntitySources implements GraphStore.
func (s *MemoryStore) EntitySources(ctx context.Context, name string) ([]graph.SourceRef, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.entities[name]
	if !ok {
		return nil, graph.ErrEntityNotFound
	}
	return sortedSources(rec.sources), nil
}

// RelationshipSources implements GraphStore.
func (s *MemoryStore) RelationshipSources(ctx context.Context, source, target, relType string) ([]graph.SourceRef, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return sortedSources(s.relSources[relKey{source, target, relType}]), nil
}

// MarkDocumentIngested implements GraphStore.
func (s *MemoryStore) MarkDocumentIngested(ctx context.Context, docID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.docs[docID] {
		return false, nil
	}
	s.docs[docID] = true
	return true, nil
}

// Stats implements GraphStore.
func (s *MemoryStore) Stats(ctx context.Context) (Stats, error) {
	if err := ctx.Err(); err != nil {
		return Stats{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	titles := make(map[string]bool)
	for _, rec := range s.entities {
		for title := range rec.sources {
			titles[title] = true
		}
	}
	return Stats{
		Entities:      len(s.entities),
		Relationships: len(s.rels),
		Sources:       len(titles),
	}, nil
}

// Close implements GraphStore.
func (s *MemoryStore) Close() error { return nil }

func sortedAliases(set mapset.Set[string]) []string {
	aliases := set.ToSlice()
	sort.Strings(aliases)
	return aliases
}

func sortedSources(byTitle map[string]*graph.SourceRef) []graph.SourceRef {
	out := make([]graph.SourceRef, 0, len(byTitle))
	for _, ref := range byTitle {
		out = append(out, *ref)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].MentionCount != out[j].MentionCount {
			return out[i].MentionCount > out[j].MentionCount
		}
		return out[i].SourceTitle < out[j].SourceTitle
	})
	return out
}
