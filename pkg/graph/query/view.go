// Package query serves read-side projections of the graph: bounded
// dual-process views, entity detail, and entity search.
package query

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/athapong/cardiograph/pkg/graph"
	"github.com/athapong/cardiograph/pkg/graph/storage"
)

const (
	centralNodeValue  = 20
	neighborNodeValue = 10

	relatedEntityLimit = 10
)

// Engine renders view and detail payloads from a graph store.
type Engine struct {
	store  storage.GraphStore
	logger *logrus.Logger
}

// NewEngine returns a query engine over the given store.
func NewEngine(store storage.GraphStore) *Engine {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	return &Engine{store: store, logger: logger}
}

// viewFilter maps a view policy to its relationship predicate.
func viewFilter(viewType graph.ViewType) storage.RelFilter {
	switch viewType {
	case graph.ViewSystem1:
		return func(rel *graph.Relationship) bool { return rel.System1 }
	case graph.ViewSystem2:
		return func(rel *graph.Relationship) bool { return rel.System2 }
	default:
		return nil
	}
}

// BuildView renders the 1-hop ego-subgraph of the named entity under the
// given policy. An unknown entity yields found=false, not an error; an
// invalid view type is a caller error.
func (e *Engine) BuildView(ctx context.Context, viewType graph.ViewType, name string) (*graph.View, error) {
	if !viewType.Valid() {
		return nil, errors.Errorf("unknown view type %q", viewType)
	}

	view := &graph.View{
		ViewType:      viewType,
		CentralEntity: name,
		Nodes:         []graph.ViewNode{},
		Links:         []graph.ViewLink{},
	}

	root, err := e.store.GetEntity(ctx, name)
	if errors.Is(err, graph.ErrEntityNotFound) {
		return view, nil
	}
	if err != nil {
		return nil, err
	}
	view.Found = true

	hood, err := e.store.Neighbors(ctx, name, storage.DirectionBoth, 1, viewFilter(viewType))
	if err != nil {
		return nil, err
	}

	view.Nodes = append(view.Nodes, graph.ViewNode{
		ID:      root.Name,
		Label:   root.Name,
		Type:    root.Type,
		Group:   root.Type,
		Central: true,
		Value:   centralNodeValue,
	})
	for _, ent := range hood.Entities {
		view.Nodes = append(view.Nodes, graph.ViewNode{
			ID:    ent.Name,
			Label: ent.Name,
			Type:  ent.Type,
			Group: ent.Type,
			Value: neighborNodeValue,
		})
	}

	for _, rel := range hood.Relationships {
		view.Links = append(view.Links, graph.ViewLink{
			Source:     rel.Source,
			Target:     rel.Target,
			Label:      rel.Type,
			Value:      rel.Frequency,
			Confidence: rel.Confidence,
			System1:    rel.System1,
			System2:    rel.System2,
			Strength:   rel.Strength,
			Relevance:  rel.Relevance,
		})
	}

	view.Description = describeView(viewType, root.Name, len(view.Links))
	return view, nil
}

func describeView(viewType graph.ViewType, name string, links int) string {
	switch viewType {
	case graph.ViewSystem1:
		return fmt.Sprintf("Intuitive associations of %s (%d relationships)", name, links)
	case graph.ViewSystem2:
		return fmt.Sprintf("Analytical associations of %s (%d relationships)", name, links)
	default:
		return fmt.Sprintf("Complete neighborhood of %s (%d relationships)", name, links)
	}
}

// EntityInfo renders the detail payload for one entity: aggregates, its
// most frequent neighbors, and provenance. Unknown entities yield
// found=false.
func (e *Engine) EntityInfo(ctx context.Context, name string) (*graph.EntityInfo, error) {
	ent, err := e.store.GetEntity(ctx, name)
	if errors.Is(err, graph.ErrEntityNotFound) {
		return &graph.EntityInfo{Found: false}, nil
	}
	if err != nil {
		return nil, err
	}

	hood, err := e.store.Neighbors(ctx, name, storage.DirectionBoth, 1, nil)
	if err != nil {
		return nil, err
	}

	byName := make(map[string]graph.Entity, len(hood.Entities))
	for _, other := range hood.Entities {
		byName[other.Name] = other
	}

	// Neighbors arrive ordered by descending frequency already; keep the
	// first relatedEntityLimit.
	related := make([]graph.RelatedEntity, 0, relatedEntityLimit)
	for _, rel := range hood.Relationships {
		if len(related) == relatedEntityLimit {
			break
		}
		otherName := rel.Target
		if otherName == name {
			otherName = rel.Source
		}
		other, ok := byName[otherName]
		if !ok {
			// Self-loop: the far end is the entity itself.
			other = *ent
		}
		related = append(related, graph.RelatedEntity{
			EntityName:   other.Name,
			EntityType:   other.Type,
			Relationship: rel.Type,
			Frequency:    rel.Frequency,
		})
	}

	sources, err := e.store.EntitySources(ctx, name)
	if err != nil {
		return nil, err
	}

	return &graph.EntityInfo{
		Found:           true,
		Name:            ent.Name,
		Type:            ent.Type,
		Frequency:       ent.Frequency,
		RelatedEntities: related,
		Sources:         sources,
	}, nil
}
