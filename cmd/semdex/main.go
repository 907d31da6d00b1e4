package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/kailas-cloud/semdex/internal/config"
	dbRedis "github.com/kailas-cloud/semdex/internal/db/redis"
	"github.com/kailas-cloud/semdex/internal/domain"
	"github.com/kailas-cloud/semdex/internal/index"
	logpkg "github.com/kailas-cloud/semdex/internal/logger"
	"github.com/kailas-cloud/semdex/internal/metrics"
	"github.com/kailas-cloud/semdex/internal/repository/concepts"
	"github.com/kailas-cloud/semdex/internal/repository/corpus"
	"github.com/kailas-cloud/semdex/internal/repository/embcache"
	"github.com/kailas-cloud/semdex/internal/repository/threshold"
	chiTransport "github.com/kailas-cloud/semdex/internal/transport/chi"
	openaiEmb "github.com/kailas-cloud/semdex/internal/transport/openai"
	"github.com/kailas-cloud/semdex/internal/usecase/calibration"
	healthuc "github.com/kailas-cloud/semdex/internal/usecase/health"
	"github.com/kailas-cloud/semdex/internal/usecase/indicator"
	"github.com/kailas-cloud/semdex/internal/usecase/retrieval"
	"github.com/kailas-cloud/semdex/internal/usecase/topic"
	"github.com/kailas-cloud/semdex/internal/version"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting semdex API server",
		zap.String("build", version.String()),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.Int("regions", len(cfg.Corpus.Regions)),
	)

	// Key-value store is optional: it backs the embedding cache and the
	// threshold archive, both of which degrade to in-process state.
	var store *dbRedis.Store
	if cfg.Database.Enabled {
		store, err = dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.Database.Addrs,
			Password: cfg.Database.Password,
		})
		if err != nil {
			logger.Fatal("Failed to create database store", zap.Error(err))
		}
		defer store.Close()

		ctx := context.Background()
		if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
			logger.Fatal("Database not ready", zap.Error(err))
		}
		logger.Info("Connected to database")
	}

	// Register metrics explicitly (no init())
	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterRetrievalMetrics()

	// Load corpus regions and build one frozen index per region
	catalog, indices, infos := buildIndexes(cfg.Corpus.Regions, logger)

	// Build embedder chain — composition root
	var embedder domain.Embedder
	var batchEmbedder domain.BatchEmbedder
	var embHealth healthuc.EmbeddingChecker
	if vecCfg, provCfg, ok := cfg.ActiveVectorizer(); ok {
		base := openaiEmb.NewEmbedder(&openaiEmb.Config{
			APIKey:     provCfg.APIKey,
			BaseURL:    provCfg.BaseURL,
			Model:      vecCfg.Model,
			Dimensions: vecCfg.Dimensions,
			Provider:   vecCfg.Provider,
			Logger:     logger,
		})
		embHealth = newEmbeddingHealthChecker(base)
		embedder, batchEmbedder = buildEmbedder(base, vecCfg.QueryInstruction, store, logger)
		logger.Info("Embedder created",
			zap.String("provider", vecCfg.Provider),
			zap.String("model", vecCfg.Model),
			zap.Int("dimensions", vecCfg.Dimensions),
		)
	} else {
		stub := &noEmbedder{}
		batchEmbedder = stub
		logger.Warn("No embedding vectorizer configured; measurement endpoints will fail")
	}

	// Threshold store: versioned archive in the database, or in-memory
	var thresholds chiTransport.ThresholdStore = threshold.NewMemory()
	if store != nil {
		thresholds = threshold.New(store)
	}

	// Retrieval stack
	loader := concepts.NewLoader(cfg.Concepts.Dir)
	searcher := retrieval.NewRegionRetriever(indices, logger)
	conceptRetriever := retrieval.NewConceptRetriever(searcher, catalog, logger)
	aggregator := indicator.NewAggregator(logger)
	runner := topic.NewRunner(loader, thresholds, batchEmbedder, conceptRetriever, aggregator, catalog, logger)
	calibrator := calibration.NewCalibrator(calibration.YoudenJ{}, logger)

	// Health service; nil interface (not typed nil pointer) when absent
	var dbPinger healthuc.DBPinger
	if store != nil {
		dbPinger = store
	}
	healthSvc := healthuc.New(dbPinger, embHealth, indexSet(infos))

	// Create chi server
	server := chiTransport.NewServer(
		runner, loader, thresholds, calibrator, searcher,
		embedder, catalog, healthSvc, logger,
	)

	r := chiTransport.NewRouter(server,
		jsonRecoverer(logger),
		chiMiddleware.RequestID,
		wideEventMiddleware(logger),
		chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys),
		metrics.Middleware(),
	)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// buildIndexes reads each region's parquet file and builds its index.
// A missing region file is fatal: serving a partial corpus would silently
// bias every downstream indicator.
func buildIndexes(
	regions []config.RegionConfig, logger *zap.Logger,
) (*corpus.Catalog, map[domain.Region]retrieval.Index, []index.Info) {
	byRegion := make(map[domain.Region][]domain.ParagraphRecord, len(regions))
	for _, rc := range regions {
		region := domain.Region(rc.Name)
		records, err := corpus.ReadRegion(rc.Path, region)
		if err != nil {
			logger.Fatal("Failed to read region corpus",
				zap.String("region", rc.Name),
				zap.String("path", rc.Path),
				zap.Error(err),
			)
		}
		byRegion[region] = records
	}

	indices := make(map[domain.Region]retrieval.Index, len(byRegion))
	infos := make([]index.Info, 0, len(byRegion))
	for region, records := range byRegion {
		idx, err := index.BuildFromRecords(region, records)
		if err != nil {
			logger.Fatal("Failed to build region index",
				zap.String("region", string(region)),
				zap.Error(err),
			)
		}
		info := idx.Info()
		indices[region] = idx
		infos = append(infos, info)
		metrics.IndexSize.WithLabelValues(string(region)).Set(float64(info.Size))
		logger.Info("Region index built",
			zap.String("region", string(region)),
			zap.Int("paragraphs", info.Size),
			zap.Int("dimensions", info.Dimension),
		)
	}

	return corpus.NewCatalog(byRegion), indices, infos
}

// buildEmbedder assembles the decorator chain: OpenAI -> Cached -> Instruction
func buildEmbedder(
	base *openaiEmb.Embedder,
	instruction string,
	store *dbRedis.Store,
	logger *zap.Logger,
) (domain.Embedder, domain.BatchEmbedder) {
	var embedder interface {
		domain.Embedder
		domain.BatchEmbedder
	} = base

	if store != nil {
		embedder = embcache.New(embedder, store, metrics.EmbeddingCacheTotal, logger)
	}

	// Instruction prefix outermost so the cache key includes it
	if instruction != "" {
		embedder = domain.NewInstructionEmbedder(embedder, instruction)
	}

	return embedder, embedder
}

// indexSet adapts built index metadata to health.IndexReporter.
type indexSet []index.Info

func (s indexSet) Info() []index.Info { return s }

// noEmbedder fails measurement runs when no vectorizer is configured.
type noEmbedder struct{}

func (noEmbedder) BatchEmbed(_ context.Context, _ []string) (domain.BatchEmbeddingResult, error) {
	return domain.BatchEmbeddingResult{}, fmt.Errorf("%w: no embedding vectorizer configured",
		domain.ErrEmbeddingProviderError)
}

// embeddingHealthChecker wraps domain.Embedder to implement health.EmbeddingChecker.
type embeddingHealthChecker struct {
	embedder domain.Embedder
}

func newEmbeddingHealthChecker(embedder domain.Embedder) *embeddingHealthChecker {
	return &embeddingHealthChecker{embedder: embedder}
}

func (h *embeddingHealthChecker) HealthCheck(ctx context.Context) error {
	if hc, ok := h.embedder.(domain.HealthChecker); ok {
		if err := hc.HealthCheck(ctx); err != nil {
			return fmt.Errorf("embedding health check: %w", err)
		}
	}
	return nil
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"code":    "internal_error",
						"message": "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// chi.middleware.RequestID already placed request_id in context
			requestID := chiMiddleware.GetReqID(r.Context())

			// Set X-Request-ID in response header
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			// Per-request logger with request_id
			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line — one line per request
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
