package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/athapong/cardiograph/pkg/graph"
	"github.com/athapong/cardiograph/pkg/graph/metrics"
	"github.com/athapong/cardiograph/pkg/graph/dualprocess"
	"github.com/athapong/cardiograph/pkg/graph/processors"
	"github.com/athapong/cardiograph/pkg/graph/storage"
)

// lineAnnotator is a deterministic test annotator: one sentence per line,
// whitespace tokenization, modal tagging by lexicon. Lines containing
// "garbled" fail annotation.
type lineAnnotator struct{}

var modals = map[string]bool{"may": true, "might": true, "could": true, "can": true}

func (lineAnnotator) Segment(text string) ([]graph.Sentence, error) {
	var sentences []graph.Sentence
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		sentences = append(sentences, graph.Sentence{Text: line, Index: len(sentences)})
	}
	return sentences, nil
}

func (lineAnnotator) Annotate(sentence string) (*processors.Annotation, error) {
	if strings.Contains(sentence, "garbled") {
		return nil, errors.Wrap(graph.ErrParseFailure, "annotating sentence")
	}
	ann := &processors.Annotation{}
	for _, word := range strings.Fields(sentence) {
		tag := "NN"
		if modals[strings.ToLower(word)] {
			tag = "MD"
		}
		ann.Tokens = append(ann.Tokens, processors.Token{Text: word, Tag: tag})
	}
	return ann, nil
}

func newTestPipeline(store storage.GraphStore) *Pipeline {
	return New(store,
		WithAnnotator(lineAnnotator{}),
		WithWorkers(2),
		WithRetry(3, time.Millisecond),
	)
}

func newMemoryStore() *storage.MemoryStore {
	return storage.NewMemoryStore(dualprocess.New(dualprocess.DefaultConfig()))
}

func TestRunEndToEnd(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	p := newTestPipeline(store)

	doc := graph.Document{
		ID:          "pmid-100",
		SourceTitle: "Aspirin in acute coronary syndromes",
		SourceType:  "pubmed",
		Text:        "Aspirin treats myocardial infarction.\nEchocardiogram detects heart failure.",
	}

	result, err := p.Run(ctx, []graph.Document{doc})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Ingested)
	assert.Zero(t, result.Skipped)
	assert.Empty(t, result.Failed)

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, stats.Entities)
	assert.Equal(t, 2, stats.Relationships)

	ent, err := store.GetEntity(ctx, "aspirin")
	require.NoError(t, err)
	assert.Equal(t, 1, ent.Frequency)
	assert.Equal(t, graph.TypeTreatment, ent.Type)

	hood, err := store.Neighbors(ctx, "myocardial infarction", storage.DirectionIn, 1, nil)
	require.NoError(t, err)
	require.Len(t, hood.Relationships, 1)
	rel := hood.Relationships[0]
	assert.Equal(t, graph.RelTreats, rel.Type)
	assert.InDelta(t, 0.9, rel.Confidence, 1e-9)
	assert.True(t, rel.System2)

	sources, err := store.EntitySources(ctx, "aspirin")
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.Equal(t, "Aspirin in acute coronary syndromes", sources[0].SourceTitle)
}

func TestRunHedgedSentence(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	p := newTestPipeline(store)

	doc := graph.Document{
		ID:         "pmid-101",
		SourceType: "pubmed", SourceTitle: "hedge study",
		Text: "Aspirin may help myocardial infarction.",
	}
	result, err := p.Run(ctx, []graph.Document{doc})
	require.NoError(t, err)
	require.Equal(t, 1, result.Ingested)

	hood, err := store.Neighbors(ctx, "aspirin", storage.DirectionOut, 1, nil)
	require.NoError(t, err)
	require.Len(t, hood.Relationships, 1)
	assert.InDelta(t, 0.4, hood.Relationships[0].Confidence, 1e-9)
}

func TestRunMergesRepeatedTriple(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	p := newTestPipeline(store)

	docs := []graph.Document{
		{
			ID: "pmid-110", SourceType: "pubmed", SourceTitle: "study one",
			Text: "Aspirin treats myocardial infarction.",
		},
		{
			ID: "pmid-111", SourceType: "pubmed", SourceTitle: "study two",
			Text: "Aspirin may help myocardial infarction.",
		},
	}

	result, err := p.Run(ctx, docs)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Ingested)

	hood, err := store.Neighbors(ctx, "aspirin", storage.DirectionOut, 1, nil)
	require.NoError(t, err)
	require.Len(t, hood.Relationships, 1)

	rel := hood.Relationships[0]
	assert.Equal(t, graph.RelTreats, rel.Type)
	assert.Equal(t, 2, rel.Frequency)
	assert.InDelta(t, 0.65, rel.Confidence, 1e-9)
	assert.False(t, rel.System1)
	assert.True(t, rel.System2)
	assert.Equal(t, graph.TierHigh, rel.Relevance)
	assert.Equal(t, graph.TierNone, rel.Strength)

	ent, err := store.GetEntity(ctx, "aspirin")
	require.NoError(t, err)
	assert.Equal(t, 2, ent.Frequency)

	sources, err := store.RelationshipSources(ctx, "aspirin", "myocardial infarction", graph.RelTreats)
	require.NoError(t, err)
	assert.Len(t, sources, 2)
}

func TestRunSkipsAlreadyIngested(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	p := newTestPipeline(store)

	doc := graph.Document{
		ID:         "pmid-200",
		SourceType: "pubmed", SourceTitle: "doc",
		Text: "Aspirin treats angina.",
	}

	_, err := p.Run(ctx, []graph.Document{doc})
	require.NoError(t, err)

	result, err := p.Run(ctx, []graph.Document{doc})
	require.NoError(t, err)
	assert.Zero(t, result.Ingested)
	assert.Equal(t, 1, result.Skipped)

	// Frequencies unchanged by the second run.
	ent, err := store.GetEntity(ctx, "aspirin")
	require.NoError(t, err)
	assert.Equal(t, 1, ent.Frequency)
}

func TestRunIdempotentAcrossCorpusReloads(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	p := newTestPipeline(store)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "chapter.txt"),
		[]byte("Aspirin treats angina."), 0644))

	loader := processors.NewLoader()

	docs, err := loader.LoadDir(dir)
	require.NoError(t, err)
	result, err := p.Run(ctx, docs)
	require.NoError(t, err)
	require.Equal(t, 1, result.Ingested)

	// A fresh load of the unchanged corpus produces the same document IDs,
	// so the second run merges nothing.
	docs, err = loader.LoadDir(dir)
	require.NoError(t, err)
	result, err = p.Run(ctx, docs)
	require.NoError(t, err)
	assert.Zero(t, result.Ingested)
	assert.Equal(t, 1, result.Skipped)

	ent, err := store.GetEntity(ctx, "aspirin")
	require.NoError(t, err)
	assert.Equal(t, 1, ent.Frequency)
}

func TestRunUnparseableSentenceIsSkipped(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	p := newTestPipeline(store)

	doc := graph.Document{
		ID:         "pmid-300",
		SourceType: "pubmed", SourceTitle: "doc",
		Text: "some garbled bytes\nAspirin treats angina.",
	}

	result, err := p.Run(ctx, []graph.Document{doc})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Ingested)
	assert.Empty(t, result.Failed)

	_, err = store.GetEntity(ctx, "aspirin")
	assert.NoError(t, err)
}

// flakyStore fails the first failures writes with a transient fault, then
// delegates to the wrapped store.
type flakyStore struct {
	storage.GraphStore
	failures int
}

func (f *flakyStore) UpsertEntity(ctx context.Context, mention graph.EntityMention, src graph.SourceRef) (*graph.Entity, error) {
	if f.failures > 0 {
		f.failures--
		return nil, errors.Wrap(graph.ErrStoreUnavailable, "connection reset")
	}
	return f.GraphStore.UpsertEntity(ctx, mention, src)
}

func TestRunRetriesTransientStoreFaults(t *testing.T) {
	ctx := context.Background()
	store := &flakyStore{GraphStore: newMemoryStore(), failures: 2}
	p := New(store,
		WithAnnotator(lineAnnotator{}),
		WithWorkers(1),
		WithRetry(3, time.Millisecond),
	)

	doc := graph.Document{
		ID:         "pmid-400",
		SourceType: "pubmed", SourceTitle: "doc",
		Text: "Aspirin treats angina.",
	}

	result, err := p.Run(ctx, []graph.Document{doc})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Ingested)
	assert.Empty(t, result.Failed)
}

func TestRunRecordsFailedDocument(t *testing.T) {
	ctx := context.Background()
	store := &flakyStore{GraphStore: newMemoryStore(), failures: 100}
	p := New(store,
		WithAnnotator(lineAnnotator{}),
		WithWorkers(1),
		WithRetry(3, time.Millisecond),
	)

	doc := graph.Document{
		ID:         "pmid-500",
		SourceType: "pubmed", SourceTitle: "unreachable store",
		Text: "Aspirin treats angina.",
	}

	errorsBefore := testutil.ToFloat64(metrics.DocumentProcessingErrors.WithLabelValues("document"))

	result, err := p.Run(ctx, []graph.Document{doc})
	require.NoError(t, err)
	assert.Zero(t, result.Ingested)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, "pmid-500", result.Failed[0].DocID)
	assert.True(t, errors.Is(result.Failed[0].Err, graph.ErrStoreUnavailable))

	errorsAfter := testutil.ToFloat64(metrics.DocumentProcessingErrors.WithLabelValues("document"))
	assert.InDelta(t, 1, errorsAfter-errorsBefore, 1e-9)
}

func TestRunEmptyBatch(t *testing.T) {
	p := newTestPipeline(newMemoryStore())
	result, err := p.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, result.Ingested)
	assert.Empty(t, result.Failed)
}
