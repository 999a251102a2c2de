package main

import (
	"context"
	"encoding/json"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/athapong/cardiograph/pkg/graph"
	"github.com/athapong/cardiograph/pkg/graph/dualprocess"
	"github.com/athapong/cardiograph/pkg/graph/metrics"
	"github.com/athapong/cardiograph/pkg/graph/processors"
	"github.com/athapong/cardiograph/pkg/graph/query"
	"github.com/athapong/cardiograph/pkg/graph/storage"
)

func main() {
	envFile := flag.String("env", ".env", "Path to environment file")
	addr := flag.String("addr", ":8080", "Address for the API server to listen on")
	storeKind := flag.String("store", "neo4j", "Graph store backend (memory, neo4j)")
	logLevel := flag.String("log-level", "info", "Logging level (debug, info, warn, error)")
	flag.Parse()

	logger := logrus.New()
	level, err := logrus.ParseLevel(*logLevel)
	if err != nil {
		logger.Fatalf("Invalid log level: %v", err)
	}
	logger.SetLevel(level)
	logger.SetFormatter(&logrus.JSONFormatter{})

	if err := godotenv.Load(*envFile); err != nil {
		logger.Warnf("Error loading env file %s: %v", *envFile, err)
	}

	classifierCfg := dualprocess.ConfigFromEnv()
	if err := classifierCfg.Validate(); err != nil {
		logger.Fatalf("Invalid classifier configuration: %v", err)
	}
	classifier := dualprocess.New(classifierCfg)

	var store storage.GraphStore
	switch *storeKind {
	case "memory":
		store = storage.NewMemoryStore(classifier)
	case "neo4j":
		store, err = storage.NewNeo4jStore(
			os.Getenv("NEO4J_URI"),
			os.Getenv("NEO4J_USER"),
			os.Getenv("NEO4J_PASSWORD"),
			classifier,
		)
		if err != nil {
			logger.Fatalf("Failed to connect to Neo4j: %v", err)
		}
	default:
		logger.Fatalf("Unknown store backend %q", *storeKind)
	}
	defer store.Close()

	api := &apiServer{
		engine: query.NewEngine(store),
		search: query.NewSearchIndex(store),
		store:  store,
		logger: logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/search", api.handleSearch)
	mux.HandleFunc("GET /api/entity/{name}", api.handleEntity)
	mux.HandleFunc("GET /api/view/{viewType}/{name}", api.handleView)
	mux.HandleFunc("GET /api/stats", api.handleStats)
	mux.Handle("GET /metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:         *addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		logger.Infof("API server listening on %s", *addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Server error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Infof("Received signal %v, shutting down...", sig)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorf("Error during server shutdown: %v", err)
	}
	logger.Info("Server shutdown complete")
}

type apiServer struct {
	engine *query.Engine
	search *query.SearchIndex
	store  storage.GraphStore
	logger *logrus.Logger
}

func (s *apiServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	term := r.URL.Query().Get("q")
	results, err := s.search.Search(r.Context(), term, 0)
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"query":   term,
		"results": results,
	})
}

func (s *apiServer) handleEntity(w http.ResponseWriter, r *http.Request) {
	name := processors.Normalize(r.PathValue("name"))
	info, err := s.engine.EntityInfo(r.Context(), name)
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, info)
}

func (s *apiServer) handleView(w http.ResponseWriter, r *http.Request) {
	viewType := graph.ViewType(r.PathValue("viewType"))
	if !viewType.Valid() {
		s.writeError(w, http.StatusBadRequest, "unknown view type; expected complete, system1, or system2")
		return
	}

	name := processors.Normalize(r.PathValue("name"))
	view, err := s.engine.BuildView(r.Context(), viewType, name)
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, view)
}

func (s *apiServer) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Stats(r.Context())
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	metrics.UpdateGraphMetrics(stats.Entities, stats.Relationships, stats.Sources)
	s.writeJSON(w, http.StatusOK, map[string]int{
		"entities":      stats.Entities,
		"relationships": stats.Relationships,
		"sources":       stats.Sources,
	})
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.WithError(err).Error("Failed to encode response")
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func (s *apiServer) serverError(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.WithError(err).WithField("path", r.URL.Path).Error("Request failed")
	s.writeError(w, http.StatusInternalServerError, "internal error")
}
