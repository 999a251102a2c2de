package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v4/neo4j"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/athapong/cardiograph/pkg/graph"
	"github.com/athapong/cardiograph/pkg/graph/dualprocess"
)

// Neo4jStore implements GraphStore on a Neo4j property graph. Entities are
// nodes labeled by their type with a unique name; relationships are typed
// edges whose count/confidence aggregation runs inside MERGE, so concurrent
// merges to the same key cannot lose updates.
type Neo4jStore struct {
	driver     neo4j.Driver
	classifier *dualprocess.Classifier
	logger     *logrus.Logger
}

// NewNeo4jStore connects to Neo4j with basic auth.
func NewNeo4jStore(uri, username, password string, classifier *dualprocess.Classifier) (*Neo4jStore, error) {
	driver, err := neo4j.NewDriver(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, errors.Wrapf(graph.ErrStoreUnavailable, "creating Neo4j driver: %v", err)
	}

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	return &Neo4jStore{driver: driver, classifier: classifier, logger: logger}, nil
}

// InitSchema creates the uniqueness constraints and indexes the graph
// relies on: one name constraint per entity label plus Source title and
// Document id.
func (s *Neo4jStore) InitSchema(ctx context.Context) error {
	statements := []string{
		"CREATE CONSTRAINT IF NOT EXISTS FOR (c:Condition) REQUIRE c.name IS UNIQUE",
		"CREATE CONSTRAINT IF NOT EXISTS FOR (t:Treatment) REQUIRE t.name IS UNIQUE",
		"CREATE CONSTRAINT IF NOT EXISTS FOR (p:Procedure) REQUIRE p.name IS UNIQUE",
		"CREATE CONSTRAINT IF NOT EXISTS FOR (d:Diagnostic) REQUIRE d.name IS UNIQUE",
		"CREATE CONSTRAINT IF NOT EXISTS FOR (a:Anatomy) REQUIRE a.name IS UNIQUE",
		"CREATE CONSTRAINT IF NOT EXISTS FOR (f:Finding) REQUIRE f.name IS UNIQUE",
		"CREATE CONSTRAINT IF NOT EXISTS FOR (m:Mechanism) REQUIRE m.name IS UNIQUE",
		"CREATE CONSTRAINT IF NOT EXISTS FOR (o:Other) REQUIRE o.name IS UNIQUE",
		"CREATE CONSTRAINT IF NOT EXISTS FOR (s:Source) REQUIRE s.title IS UNIQUE",
		"CREATE CONSTRAINT IF NOT EXISTS FOR (d:Document) REQUIRE d.id IS UNIQUE",
		"CREATE INDEX IF NOT EXISTS FOR (s:Source) ON (s.type)",
	}

	return s.write(ctx, func(tx neo4j.Transaction) error {
		for _, stmt := range statements {
			if _, err := tx.Run(stmt, nil); err != nil {
				return err
			}
		}
		return nil
	})
}

// Rebuild clears every node and edge. Only an explicit rebuild may delete
// graph data.
func (s *Neo4jStore) Rebuild(ctx context.Context) error {
	return s.write(ctx, func(tx neo4j.Transaction) error {
		_, err := tx.Run("MATCH (n) DETACH DELETE n", nil)
		return err
	})
}

// UpsertEntity implements GraphStore.
func (s *Neo4jStore) UpsertEntity(ctx context.Context, mention graph.EntityMention, src graph.SourceRef) (*graph.Entity, error) {
	if !mention.Type.Valid() {
		mention.Type = graph.TypeOther
	}

	query := fmt.Sprintf(`
		MERGE (e:%s {name: $name})
		ON CREATE SET e.type = $type, e.frequency = 1, e.aliases = [$alias]
		ON MATCH SET e.frequency = e.frequency + 1,
		             e.aliases = CASE WHEN $alias IN coalesce(e.aliases, [])
		                              THEN e.aliases
		                              ELSE coalesce(e.aliases, []) + $alias END
		RETURN e.name, e.type, e.frequency, e.aliases
	`, mention.Type)

	params := map[string]interface{}{
		"name":  mention.Name,
		"type":  string(mention.Type),
		"alias": strings.TrimSpace(mention.Surface),
	}

	var out *graph.Entity
	err := s.write(ctx, func(tx neo4j.Transaction) error {
		result, err := tx.Run(query, params)
		if err != nil {
			return err
		}
		if !result.Next() {
			return errors.Errorf("entity merge returned no row for %q", mention.Name)
		}
		record := result.Record()
		out = &graph.Entity{
			Name:      asString(record.Values[0]),
			Type:      graph.EntityType(asString(record.Values[1])),
			Frequency: asInt(record.Values[2]),
			Aliases:   asStrings(record.Values[3]),
		}

		if src.SourceTitle == "" {
			return nil
		}
		_, err = tx.Run(`
			MATCH (e {name: $name})
			MERGE (s:Source {title: $title})
			ON CREATE SET s.type = $source_type
			MERGE (e)-[m:MENTIONED_IN]->(s)
			ON CREATE SET m.count = 1
			ON MATCH SET m.count = m.count + 1
		`, map[string]interface{}{
			"name":        mention.Name,
			"title":       src.SourceTitle,
			"source_type": src.SourceType,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(out.Aliases)
	return out, nil
}

// UpsertRelationship implements GraphStore. The count/confidence update and
// the reclassification run in one write transaction.
func (s *Neo4jStore) UpsertRelationship(ctx context.Context, cand graph.RelationshipCandidate, src graph.SourceRef) (*graph.Relationship, error) {
	if !graph.KnownRelationType(cand.Type) {
		return nil, graph.ErrInvalidRelationType
	}

	mergeQuery := fmt.Sprintf(`
		MATCH (a {name: $source})
		MATCH (b {name: $target})
		WHERE NOT a:Source AND NOT a:Document AND NOT b:Source AND NOT b:Document
		MERGE (a)-[r:%s]->(b)
		ON CREATE SET r.count = 1, r.confidence = $confidence
		ON MATCH SET r.confidence = (r.confidence * r.count + $confidence) / (r.count + 1),
		             r.count = r.count + 1
		RETURN r.count, r.confidence
	`, cand.Type)

	var out *graph.Relationship
	err := s.write(ctx, func(tx neo4j.Transaction) error {
		result, err := tx.Run(mergeQuery, map[string]interface{}{
			"source":     cand.Source,
			"target":     cand.Target,
			"confidence": cand.Confidence,
		})
		if err != nil {
			return err
		}
		if !result.Next() {
			return graph.ErrDanglingReference
		}
		record := result.Record()

		out = &graph.Relationship{
			Source:     cand.Source,
			Target:     cand.Target,
			Type:       cand.Type,
			Frequency:  asInt(record.Values[0]),
			Confidence: asFloat(record.Values[1]),
		}
		s.classifier.Apply(out)

		if _, err := tx.Run(fmt.Sprintf(`
			MATCH (a {name: $source})-[r:%s]->(b {name: $target})
			SET r.system1 = $system1, r.system2 = $system2,
			    r.strength = $strength, r.relevance = $relevance
		`, cand.Type), map[string]interface{}{
			"source":    cand.Source,
			"target":    cand.Target,
			"system1":   out.System1,
			"system2":   out.System2,
			"strength":  string(out.Strength),
			"relevance": string(out.Relevance),
		}); err != nil {
			return err
		}

		if src.SourceTitle == "" {
			return nil
		}
		_, err = tx.Run(`
			MATCH (a {name: $source})
			MERGE (s:Source {title: $title})
			ON CREATE SET s.type = $source_type
			MERGE (a)-[ev:EVIDENCE {relation: $relation, target: $target}]->(s)
			ON CREATE SET ev.count = 1
			ON MATCH SET ev.count = ev.count + 1
		`, map[string]interface{}{
			"source":      cand.Source,
			"target":      cand.Target,
			"relation":    cand.Type,
			"title":       src.SourceTitle,
			"source_type": src.SourceType,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetEntity implements GraphStore.
func (s *Neo4jStore) GetEntity(ctx context.Context, name string) (*graph.Entity, error) {
	var out *graph.Entity
	err := s.read(ctx, func(tx neo4j.Transaction) error {
		result, err := tx.Run(`
			MATCH (e {name: $name})
			WHERE NOT e:Source AND NOT e:Document
			RETURN e.name, e.type, e.frequency, e.aliases
		`, map[string]interface{}{"name": name})
		if err != nil {
			return err
		}
		if !result.Next() {
			return graph.ErrEntityNotFound
		}
		record := result.Record()
		out = &graph.Entity{
			Name:      asString(record.Values[0]),
			Type:      graph.EntityType(asString(record.Values[1])),
			Frequency: asInt(record.Values[2]),
			Aliases:   asStrings(record.Values[3]),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(out.Aliases)
	return out, nil
}

// Neighbors implements GraphStore. Hops beyond the first expand in Go so
// the relationship filter applies uniformly at every depth.
func (s *Neo4jStore) Neighbors(ctx context.Context, name string, dir Direction, maxHops int, filter RelFilter) (*Neighborhood, error) {
	if maxHops < 1 {
		maxHops = 1
	}
	if _, err := s.GetEntity(ctx, name); err != nil {
		return nil, err
	}

	visited := map[string]bool{name: true}
	frontier := []string{name}
	seenRel := make(map[relKey]bool)
	out := &Neighborhood{}

	for hop := 0; hop < maxHops && len(frontier) > 0; hop++ {
		var next []string
		for _, current := range frontier {
			rels, ends, err := s.adjacent(ctx, current, dir)
			if err != nil {
				return nil, err
			}
			for i, rel := range rels {
				if filter != nil && !filter(&rels[i]) {
					continue
				}
				key := relKey{rel.Source, rel.Target, rel.Type}
				if !seenRel[key] {
					seenRel[key] = true
					out.Relationships = append(out.Relationships, rel)
				}
				other := ends[i]
				if !visited[other.Name] {
					visited[other.Name] = true
					out.Entities = append(out.Entities, other)
					next = append(next, other.Name)
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

// adjacent returns the 1-hop relationships of name in the given direction,
// paired with the entity at the far end of each.
func (s *Neo4jStore) adjacent(ctx context.Context, name string, dir Direction) ([]graph.Relationship, []graph.Entity, error) {
	var rels []graph.Relationship
	var ends []graph.Entity

	collect := func(tx neo4j.Transaction, query string, outgoing bool) error {
		result, err := tx.Run(query, map[string]interface{}{"name": name})
		if err != nil {
			return err
		}
		for result.Next() {
			v := result.Record().Values
			rel := graph.Relationship{
				Type:       asString(v[0]),
				Frequency:  asInt(v[1]),
				Confidence: asFloat(v[2]),
				System1:    asBool(v[3]),
				System2:    asBool(v[4]),
				Strength:   graph.Tier(asString(v[5])),
				Relevance:  graph.Tier(asString(v[6])),
			}
			other := graph.Entity{
				Name:      asString(v[7]),
				Type:      graph.EntityType(asString(v[8])),
				Frequency: asInt(v[9]),
			}
			if outgoing {
				rel.Source, rel.Target = name, other.Name
			} else {
				rel.Source, rel.Target = other.Name, name
			}
			rels = append(rels, rel)
			ends = append(ends, other)
		}
		return nil
	}

	err := s.read(ctx, func(tx neo4j.Transaction) error {
		if dir != DirectionIn {
			if err := collect(tx, `
				MATCH (n {name: $name})-[r]->(m)
				WHERE NOT type(r) IN ['MENTIONED_IN', 'EVIDENCE'] AND NOT m:Source AND NOT m:Document
				RETURN type(r), r.count, r.confidence, r.system1, r.system2, r.strength, r.relevance,
				       m.name, m.type, m.frequency
			`, true); err != nil {
				return err
			}
		}
		if dir != DirectionOut {
			if err := collect(tx, `
				MATCH (m)-[r]->(n {name: $name})
				WHERE NOT type(r) IN ['MENTIONED_IN', 'EVIDENCE'] AND NOT m:Source AND NOT m:Document
				RETURN type(r), r.count, r.confidence, r.system1, r.system2, r.strength, r.relevance,
				       m.name, m.type, m.frequency
			`, false); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return rels, ends, nil
}

// SearchEntities implements GraphStore.
func (s *Neo4jStore) SearchEntities(ctx context.Context, term string, limit int) ([]graph.SearchResult, error) {
	needle := strings.ToLower(strings.TrimSpace(term))
	if needle == "" {
		return []graph.SearchResult{}, nil
	}
	if limit <= 0 {
		limit = 10
	}

	results := make([]graph.SearchResult, 0)
	err := s.read(ctx, func(tx neo4j.Transaction) error {
		result, err := tx.Run(`
			MATCH (n)
			WHERE NOT n:Source AND NOT n:Document
			AND (toLower(n.name) CONTAINS $term
			     OR any(a IN coalesce(n.aliases, []) WHERE toLower(a) CONTAINS $term))
			RETURN n.name, n.type, n.frequency
			ORDER BY n.frequency DESC, n.name ASC
			LIMIT $limit
		`, map[string]interface{}{"term": needle, "limit": limit})
		if err != nil {
			return err
		}
		for result.Next() {
			v := result.Record().Values
			results = append(results, graph.SearchResult{
				Name:      asString(v[0]),
				Type:      graph.EntityType(asString(v[1])),
				Frequency: asInt(v[2]),
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// EntitySources implements GraphStore.
func (s *Neo4jStore) EntitySources(ctx context.Context, name string) ([]graph.SourceRef, error) {
	if _, err := s.GetEntity(ctx, name); err != nil {
		return nil, err
	}

	refs := make([]graph.SourceRef, 0)
	err := s.read(ctx, func(tx neo4j.Transaction) error {
		result, err := tx.Run(`
			MATCH (e {name: $name})-[m:MENTIONED_IN]->(s:Source)
			RETURN s.title, s.type, m.count
			ORDER BY m.count DESC, s.title ASC
		`, map[string]interface{}{"name": name})
		if err != nil {
			return err
		}
		for result.Next() {
			v := result.Record().Values
			refs = append(refs, graph.SourceRef{
				SourceTitle:  asString(v[0]),
				SourceType:   asString(v[1]),
				MentionCount: asInt(v[2]),
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return refs, nil
}

// RelationshipSources implements GraphStore.
func (s *Neo4jStore) RelationshipSources(ctx context.Context, source, target, relType string) ([]graph.SourceRef, error) {
	refs := make([]graph.SourceRef, 0)
	err := s.read(ctx, func(tx neo4j.Transaction) error {
		result, err := tx.Run(`
			MATCH (a {name: $source})-[ev:EVIDENCE {relation: $relation, target: $target}]->(s:Source)
			RETURN s.title, s.type, ev.count
			ORDER BY ev.count DESC, s.title ASC
		`, map[string]interface{}{"source": source, "target": target, "relation": relType})
		if err != nil {
			return err
		}
		for result.Next() {
			v := result.Record().Values
			refs = append(refs, graph.SourceRef{
				SourceTitle:  asString(v[0]),
				SourceType:   asString(v[1]),
				MentionCount: asInt(v[2]),
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return refs, nil
}

// MarkDocumentIngested implements GraphStore.
func (s *Neo4jStore) MarkDocumentIngested(ctx context.Context, docID string) (bool, error) {
	var first bool
	err := s.write(ctx, func(tx neo4j.Transaction) error {
		result, err := tx.Run(`
			MERGE (d:Document {id: $id})
			ON CREATE SET d.first = true
			ON MATCH SET d.first = false
			RETURN d.first
		`, map[string]interface{}{"id": docID})
		if err != nil {
			return err
		}
		if result.Next() {
			first = asBool(result.Record().Values[0])
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return first, nil
}

// Stats implements GraphStore.
func (s *Neo4jStore) Stats(ctx context.Context) (Stats, error) {
	var stats Stats
	err := s.read(ctx, func(tx neo4j.Transaction) error {
		result, err := tx.Run(`
			MATCH (n) WHERE NOT n:Source AND NOT n:Document
			OPTIONAL MATCH (n)-[r]->(m) WHERE NOT type(r) IN ['MENTIONED_IN', 'EVIDENCE']
			RETURN count(DISTINCT n), count(DISTINCT r)
		`, nil)
		if err != nil {
			return err
		}
		if result.Next() {
			v := result.Record().Values
			stats.Entities = asInt(v[0])
			stats.Relationships = asInt(v[1])
		}

		result, err = tx.Run("MATCH (s:Source) RETURN count(s)", nil)
		if err != nil {
			return err
		}
		if result.Next() {
			stats.Sources = asInt(result.Record().Values[0])
		}
		return nil
	})
	if err != nil {
		return Stats{}, err
	}
	return stats, nil
}

// Close implements GraphStore.
func (s *Neo4jStore) Close() error {
	return s.driver.Close()
}

// write runs fn in a write transaction, mapping driver faults to
// ErrStoreUnavailable so the ingestion driver can retry them.
func (s *Neo4jStore) write(ctx context.Context, fn func(tx neo4j.Transaction) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	session := s.driver.NewSession(neo4j.SessionConfig{})
	defer session.Close()

	_, err := session.WriteTransaction(func(tx neo4j.Transaction) (interface{}, error) {
		return nil, fn(tx)
	})
	return s.mapErr(err)
}

func (s *Neo4jStore) read(ctx context.Context, fn func(tx neo4j.Transaction) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	session := s.driver.NewSession(neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close()

	_, err := session.ReadTransaction(func(tx neo4j.Transaction) (interface{}, error) {
		return nil, fn(tx)
	})
	return s.mapErr(err)
}

// mapErr keeps domain sentinels intact and folds everything else into the
// retryable ErrStoreUnavailable.
func (s *Neo4jStore) mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, graph.ErrEntityNotFound) ||
		errors.Is(err, graph.ErrDanglingReference) ||
		errors.Is(err, graph.ErrInvalidRelationType) {
		return err
	}
	s.logger.WithError(err).Warn("Neo4j operation failed")
	return errors.Wrapf(graph.ErrStoreUnavailable, "neo4j: %v", err)
}

func asString(v interface{}) string {
	s, _ := v.(string)
	return s
}

func asInt(v interface{}) int {
	switch n := v.(type) {
	case int64:
		return int(n)
	case int:
		return n
	case float64:
		return int(n)
	}
	return 0
}

func asFloat(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	}
	return 0
}

func asBool(v interface{}) bool {
	b, _ := v.(bool)
	return b
}

func asStrings(v interface{}) []string {
	raw, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
