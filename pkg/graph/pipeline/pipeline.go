// Package pipeline drives extraction end to end: segmentation, entity
// recognition, relationship extraction, and store merges, document by
// document.
package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/athapong/cardiograph/pkg/graph"
	"github.com/athapong/cardiograph/pkg/graph/metrics"
	"github.com/athapong/cardiograph/pkg/graph/processors"
	"github.com/athapong/cardiograph/pkg/graph/storage"
)

var (
	documentProcessingDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "pipeline_processing_duration_seconds",
			Help: "Time spent processing documents in pipeline",
		},
		[]string{"status"},
	)

	documentsProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_documents_processed_total",
			Help: "Total number of documents processed",
		},
		[]string{"status"},
	)

	sentencesSkippedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pipeline_sentences_skipped_total",
			Help: "Sentences dropped because annotation failed",
		},
	)
)

func init() {
	prometheus.MustRegister(documentProcessingDuration)
	prometheus.MustRegister(documentsProcessedTotal)
	prometheus.MustRegister(sentencesSkippedTotal)
}

// FailedDocument records one document the pipeline could not ingest.
type FailedDocument struct {
	DocID       string
	SourceTitle string
	Err         error
}

// BatchResult summarizes one Run call.
type BatchResult struct {
	Ingested int
	Skipped  int
	Failed   []FailedDocument
}

// Pipeline wires the extraction components to a graph store. One sentence
// failing never aborts its document; one document failing never aborts the
// batch.
type Pipeline struct {
	annotator  processors.Annotator
	recognizer *processors.Recognizer
	extractor  *processors.Extractor
	store      storage.GraphStore
	logger     *logrus.Logger

	workers       int
	retryAttempts int
	retryBackoff  time.Duration
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithWorkers bounds document-level concurrency.
func WithWorkers(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithAnnotator swaps the linguistic annotator.
func WithAnnotator(a processors.Annotator) Option {
	return func(p *Pipeline) { p.annotator = a }
}

// WithLogger swaps the pipeline logger.
func WithLogger(logger *logrus.Logger) Option {
	return func(p *Pipeline) { p.logger = logger }
}

// WithRetry tunes the store retry policy applied to transient store faults.
func WithRetry(attempts int, backoff time.Duration) Option {
	return func(p *Pipeline) {
		if attempts > 0 {
			p.retryAttempts = attempts
		}
		if backoff > 0 {
			p.retryBackoff = backoff
		}
	}
}

// New builds a pipeline over the given store with default extraction
// components: prose annotation, the gazetteer recognizer, and the pattern
// extractor at its default confidence floor.
func New(store storage.GraphStore, opts ...Option) *Pipeline {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	p := &Pipeline{
		annotator:     processors.NewProseAnnotator(),
		recognizer:    processors.NewRecognizer(),
		extractor:     processors.NewExtractor(processors.DefaultExtractorConfig()),
		store:         store,
		logger:        logger,
		workers:       4,
		retryAttempts: 3,
		retryBackoff:  250 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run ingests a batch of documents. Documents whose IDs the store has seen
// before are skipped; failures are collected per document and returned, not
// propagated.
func (p *Pipeline) Run(ctx context.Context, docs []graph.Document) (BatchResult, error) {
	p.logger.WithField("document_count", len(docs)).Info("Starting batch ingestion")

	var (
		mu     sync.Mutex
		result BatchResult
		wg     sync.WaitGroup
	)

	jobs := make(chan graph.Document)
	for w := 0; w < p.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for doc := range jobs {
				status := p.runOne(ctx, doc, &mu, &result)
				documentsProcessedTotal.WithLabelValues(status).Inc()
			}
		}()
	}

	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			break
		}
		jobs <- doc
	}
	close(jobs)
	wg.Wait()

	p.logger.WithFields(logrus.Fields{
		"ingested": result.Ingested,
		"skipped":  result.Skipped,
		"failed":   len(result.Failed),
	}).Info("Batch ingestion completed")
	return result, ctx.Err()
}

// runOne ingests a single document and returns its metric status label.
func (p *Pipeline) runOne(ctx context.Context, doc graph.Document, mu *sync.Mutex, result *BatchResult) string {
	timer := prometheus.NewTimer(documentProcessingDuration.WithLabelValues("single"))
	defer timer.ObserveDuration()

	first, err := p.markIngested(ctx, doc.ID)
	if err == nil && !first {
		p.logger.WithField("doc_id", doc.ID).Debug("Document already ingested, skipping")
		mu.Lock()
		result.Skipped++
		mu.Unlock()
		return "skipped"
	}
	if err == nil {
		err = p.Process(ctx, doc)
	}
	if err != nil {
		p.logger.WithError(err).WithField("doc_id", doc.ID).Error("Failed to process document")
		metrics.DocumentProcessingErrors.WithLabelValues("document").Inc()
		mu.Lock()
		result.Failed = append(result.Failed, FailedDocument{
			DocID:       doc.ID,
			SourceTitle: doc.SourceTitle,
			Err:         err,
		})
		mu.Unlock()
		return "error"
	}

	mu.Lock()
	result.Ingested++
	mu.Unlock()
	return "success"
}

// Process ingests one document: segment, then per sentence recognize
// entities, merge them, extract relationship candidates, and merge those.
// Annotation failures skip the sentence; store faults that survive the
// retry policy fail the document.
func (p *Pipeline) Process(ctx context.Context, doc graph.Document) error {
	sentences, err := p.annotator.Segment(doc.Text)
	if err != nil {
		return err
	}

	src := doc.Ref()
	for _, sentence := range sentences {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.processSentence(ctx, doc.ID, sentence, src); err != nil {
			return err
		}
	}

	p.logger.WithFields(logrus.Fields{
		"doc_id":    doc.ID,
		"sentences": len(sentences),
	}).Debug("Document processing completed")
	return nil
}

func (p *Pipeline) processSentence(ctx context.Context, docID string, sentence graph.Sentence, src graph.SourceRef) error {
	ann, err := p.annotator.Annotate(sentence.Text)
	if err != nil {
		// A sentence the model cannot annotate carries no extractable
		// signal. Log and move on.
		p.logger.WithError(err).WithFields(logrus.Fields{
			"doc_id":   docID,
			"sentence": sentence.Index,
		}).Warn("Skipping unparseable sentence")
		sentencesSkippedTotal.Inc()
		return nil
	}

	mentions := p.recognizer.Recognize(docID, sentence.Text, ann)
	if len(mentions) == 0 {
		return nil
	}

	byName := make(map[string]graph.EntityMention, len(mentions))
	for _, mention := range mentions {
		byName[mention.Name] = mention
		if err := p.withRetry(ctx, func() error {
			_, err := p.store.UpsertEntity(ctx, mention, src)
			return err
		}); err != nil {
			return err
		}
	}

	for _, cand := range p.extractor.Extract(sentence.Text, ann, mentions) {
		if err := p.mergeCandidate(ctx, cand, byName, src); err != nil {
			return err
		}
	}
	return nil
}

// mergeCandidate merges one relationship candidate. A dangling endpoint is
// repaired by re-upserting both mentions, then retried exactly once.
func (p *Pipeline) mergeCandidate(ctx context.Context, cand graph.RelationshipCandidate, byName map[string]graph.EntityMention, src graph.SourceRef) error {
	merge := func() error {
		return p.withRetry(ctx, func() error {
			_, err := p.store.UpsertRelationship(ctx, cand, src)
			return err
		})
	}

	err := merge()
	if errors.Is(err, graph.ErrDanglingReference) {
		for _, name := range []string{cand.Source, cand.Target} {
			mention, ok := byName[name]
			if !ok {
				continue
			}
			if err := p.withRetry(ctx, func() error {
				_, err := p.store.UpsertEntity(ctx, mention, src)
				return err
			}); err != nil {
				return err
			}
		}
		err = merge()
	}
	if errors.Is(err, graph.ErrInvalidRelationType) {
		p.logger.WithFields(logrus.Fields{
			"source":   cand.Source,
			"target":   cand.Target,
			"relation": cand.Type,
		}).Warn("Dropping candidate with unknown relation type")
		return nil
	}
	return err
}

func (p *Pipeline) markIngested(ctx context.Context, docID string) (bool, error) {
	var first bool
	err := p.withRetry(ctx, func() error {
		var err error
		first, err = p.store.MarkDocumentIngested(ctx, docID)
		return err
	})
	return first, err
}

// withRetry runs fn, retrying only transient store faults with doubling
// backoff. All other errors return immediately.
func (p *Pipeline) withRetry(ctx context.Context, fn func() error) error {
	backoff := p.retryBackoff
	var err error
	for attempt := 1; attempt <= p.retryAttempts; attempt++ {
		err = fn()
		if err == nil || !errors.Is(err, graph.ErrStoreUnavailable) {
			return err
		}
		if attempt == p.retryAttempts {
			break
		}

		p.logger.WithError(err).WithField("attempt", attempt).Warn("Store unavailable, retrying")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return err
}
