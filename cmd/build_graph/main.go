package main

import (
	"context"
	"flag"
	"os"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/athapong/cardiograph/pkg/graph"
	"github.com/athapong/cardiograph/pkg/graph/dualprocess"
	"github.com/athapong/cardiograph/pkg/graph/metrics"
	"github.com/athapong/cardiograph/pkg/graph/pipeline"
	"github.com/athapong/cardiograph/pkg/graph/processors"
	"github.com/athapong/cardiograph/pkg/graph/query"
	"github.com/athapong/cardiograph/pkg/graph/storage"
	"github.com/athapong/cardiograph/pkg/graph/visualizer"
)

var (
	inputDir        = flag.String("input", "", "Directory containing corpus files (json, txt, md, html, pdf)")
	envFile         = flag.String("env", ".env", "Path to environment file")
	storeKind       = flag.String("store", "memory", "Graph store backend (memory, neo4j)")
	rebuild         = flag.Bool("rebuild", false, "Delete the existing graph before ingesting (neo4j only)")
	workers         = flag.Int("workers", 4, "Number of concurrent document workers")
	visualize       = flag.String("visualize", "", "Entity to visualize after ingestion")
	visualizeView   = flag.String("viz-view", "complete", "View policy for the visualization (complete, system1, system2)")
	visualizeOutput = flag.String("viz-output", "knowledge_graph.html", "Output file for the visualization")
	logLevel        = flag.String("log-level", "info", "Logging level (debug, info, warn, error)")
)

func main() {
	flag.Parse()

	logger := logrus.New()
	level, err := logrus.ParseLevel(*logLevel)
	if err != nil {
		logger.Fatalf("Invalid log level: %v", err)
	}
	logger.SetLevel(level)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	if err := godotenv.Load(*envFile); err != nil {
		logger.Warnf("Error loading env file %s: %v", *envFile, err)
	}

	if *inputDir == "" {
		logger.Fatal("Input directory must be specified")
	}

	classifierCfg := dualprocess.ConfigFromEnv()
	if err := classifierCfg.Validate(); err != nil {
		logger.Fatalf("Invalid classifier configuration: %v", err)
	}
	classifier := dualprocess.New(classifierCfg)

	ctx := context.Background()
	store, err := openStore(ctx, *storeKind, classifier, *rebuild, logger)
	if err != nil {
		logger.Fatalf("Failed to open graph store: %v", err)
	}
	defer store.Close()

	loader := processors.NewLoader()
	docs, err := loader.LoadDir(*inputDir)
	if err != nil {
		logger.Fatalf("Failed to read input directory: %v", err)
	}
	if len(docs) == 0 {
		logger.Fatal("No input documents found")
	}

	logger.Infof("Ingesting %d documents...", len(docs))

	p := pipeline.New(store,
		pipeline.WithWorkers(*workers),
		pipeline.WithLogger(logger),
	)
	result, err := p.Run(ctx, docs)
	if err != nil {
		logger.Fatalf("Ingestion aborted: %v", err)
	}

	for _, failed := range result.Failed {
		logger.WithError(failed.Err).WithFields(logrus.Fields{
			"doc_id": failed.DocID,
			"source": failed.SourceTitle,
		}).Error("Document failed")
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		logger.Fatalf("Failed to read graph stats: %v", err)
	}
	metrics.UpdateGraphMetrics(stats.Entities, stats.Relationships, stats.Sources)
	metrics.UpdateSystemMetrics()

	logger.Infof("Graph built: %d entities, %d relationships, %d sources (%d ingested, %d skipped, %d failed)",
		stats.Entities, stats.Relationships, stats.Sources,
		result.Ingested, result.Skipped, len(result.Failed))

	if *visualize != "" {
		viewType := graph.ViewType(*visualizeView)
		engine := query.NewEngine(store)
		view, err := engine.BuildView(ctx, viewType, processors.Normalize(*visualize))
		if err != nil {
			logger.Fatalf("Failed to build view: %v", err)
		}
		if !view.Found {
			logger.Errorf("Entity %q not found in graph", *visualize)
			os.Exit(1)
		}

		viz := visualizer.NewD3Visualizer(*visualizeOutput)
		if err := viz.Visualize(view); err != nil {
			logger.Errorf("Failed to visualize graph: %v", err)
		} else {
			logger.Infof("Visualization saved to %s", *visualizeOutput)
		}
	}
}

func openStore(ctx context.Context, kind string, classifier *dualprocess.Classifier, rebuild bool, logger *logrus.Logger) (storage.GraphStore, error) {
	switch kind {
	case "memory":
		return storage.NewMemoryStore(classifier), nil
	case "neo4j":
		store, err := storage.NewNeo4jStore(
			os.Getenv("NEO4J_URI"),
			os.Getenv("NEO4J_USER"),
			os.Getenv("NEO4J_PASSWORD"),
			classifier,
		)
		if err != nil {
			return nil, err
		}
		if rebuild {
			logger.Warn("Rebuilding graph: deleting all existing data")
			if err := store.Rebuild(ctx); err != nil {
				store.Close()
				return nil, err
			}
		}
		if err := store.InitSchema(ctx); err != nil {
			store.Close()
			return nil, err
		}
		return store, nil
	default:
		logger.Fatalf("Unknown store backend %q", kind)
		return nil, nil
	}
}
