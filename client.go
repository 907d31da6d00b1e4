package semdex

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	dbRedis "github.com/kailas-cloud/semdex/internal/db/redis"
	"github.com/kailas-cloud/semdex/internal/domain"
	"github.com/kailas-cloud/semdex/internal/index"
	"github.com/kailas-cloud/semdex/internal/metrics"
	"github.com/kailas-cloud/semdex/internal/repository/concepts"
	"github.com/kailas-cloud/semdex/internal/repository/corpus"
	"github.com/kailas-cloud/semdex/internal/repository/embcache"
	"github.com/kailas-cloud/semdex/internal/repository/threshold"
	"github.com/kailas-cloud/semdex/internal/usecase/calibration"
	"github.com/kailas-cloud/semdex/internal/usecase/indicator"
	"github.com/kailas-cloud/semdex/internal/usecase/retrieval"
	"github.com/kailas-cloud/semdex/internal/usecase/topic"
)

const (
	defaultReadinessTimeout = 10 * time.Second
	defaultKPerPattern      = 100
	defaultConcurrency      = 4
	defaultConceptsDir      = "concepts"
)

// thresholdStore is the threshold persistence contract the client needs,
// satisfied by both the in-memory and the Redis-backed store.
type thresholdStore interface {
	Get(ctx context.Context, conceptID string) (domain.Threshold, error)
	GetVersion(ctx context.Context, conceptID, version string) (domain.Threshold, error)
	Put(ctx context.Context, tau domain.Threshold) error
}

// Client is the semdex SDK entry point. Indices are built at New time and
// frozen; all methods are safe for concurrent use.
type Client struct {
	store       *dbRedis.Store
	catalog     *corpus.Catalog
	searcher    *retrieval.RegionRetriever
	runner      *topic.Runner
	calibrator  *calibration.Calibrator
	thresholds  thresholdStore
	embedder    domain.Embedder
	infos       []index.Info
	kPerPattern int
	concurrency int
	logger      *zap.Logger
}

// MeasureOptions configures one measurement or retrieval run.
type MeasureOptions struct {
	// K overrides the per-pattern k-NN depth for this run.
	K int
	// Segment restricts retrieval to "management" or "qa".
	Segment string
	// SplitBySegment emits per-segment exposure records alongside overall ones.
	SplitBySegment bool
	// Concurrency overrides the client-level bound on parallel concept runs.
	Concurrency int
}

// Measurement is one completed measurement run.
type Measurement struct {
	Matches          []Match
	Exposures        []Exposure
	MatchesByConcept map[string]int
}

// New creates a semdex client: it loads the configured corpus regions,
// builds one vector index per region, and wires the retrieval stack.
func New(opts ...Option) (*Client, error) {
	cfg := &clientConfig{
		conceptsDir: defaultConceptsDir,
		kPerPattern: defaultKPerPattern,
		concurrency: defaultConcurrency,
	}
	for _, o := range opts {
		o(cfg)
	}

	if len(cfg.regions) == 0 {
		return nil, errors.New("semdex: at least one corpus region required (use WithRegionFile or WithRegionRecords)")
	}

	logger := cfg.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	regions, err := loadRegions(cfg.regions)
	if err != nil {
		return nil, err
	}
	catalog := corpus.NewCatalog(regions)

	indices := make(map[domain.Region]retrieval.Index, len(regions))
	infos := make([]index.Info, 0, len(regions))
	for region, records := range regions {
		idx, err := index.BuildFromRecords(region, records)
		if err != nil {
			return nil, fmt.Errorf("semdex: build index for region %s: %w", region, err)
		}
		indices[region] = idx
		infos = append(infos, idx.Info())
	}

	var store *dbRedis.Store
	if len(cfg.redisAddrs) > 0 {
		store, err = dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.redisAddrs,
			Password: cfg.redisPass,
		})
		if err != nil {
			return nil, fmt.Errorf("semdex: create redis store: %w", err)
		}
		if err := store.WaitForReady(context.Background(), defaultReadinessTimeout); err != nil {
			store.Close()
			return nil, fmt.Errorf("semdex: database not ready: %w", err)
		}
	}

	var thresholds thresholdStore = threshold.NewMemory()
	if store != nil {
		thresholds = threshold.New(store)
	}

	var embedder domain.Embedder
	var batchEmbedder domain.BatchEmbedder
	if cfg.embedder != nil {
		adapter := &embedderAdapter{inner: cfg.embedder}
		embedder, batchEmbedder = adapter, adapter
		if store != nil {
			cached := embcache.New(adapter, store, metrics.EmbeddingCacheTotal, logger)
			embedder, batchEmbedder = cached, cached
		}
	}

	searcher := retrieval.NewRegionRetriever(indices, logger)
	conceptRetriever := retrieval.NewConceptRetriever(searcher, catalog, logger)
	aggregator := indicator.NewAggregator(logger)

	var runner *topic.Runner
	if batchEmbedder != nil {
		runner = topic.NewRunner(
			concepts.NewLoader(cfg.conceptsDir),
			thresholds,
			batchEmbedder,
			conceptRetriever,
			aggregator,
			catalog,
			logger,
		)
	}

	return &Client{
		store:       store,
		catalog:     catalog,
		searcher:    searcher,
		runner:      runner,
		calibrator:  calibration.NewCalibrator(calibration.YoudenJ{}, logger),
		thresholds:  thresholds,
		embedder:    embedder,
		infos:       infos,
		kPerPattern: cfg.kPerPattern,
		concurrency: cfg.concurrency,
		logger:      logger,
	}, nil
}

// loadRegions materializes every configured region source.
func loadRegions(sources []regionSource) (map[domain.Region][]domain.ParagraphRecord, error) {
	regions := make(map[domain.Region][]domain.ParagraphRecord, len(sources))
	for _, src := range sources {
		region := domain.Region(src.name)
		if _, ok := regions[region]; ok {
			return nil, fmt.Errorf("semdex: duplicate region %q", src.name)
		}

		if src.path != "" {
			records, err := corpus.ReadRegion(src.path, region)
			if err != nil {
				return nil, fmt.Errorf("semdex: read region %s: %w", src.name, err)
			}
			regions[region] = records
			continue
		}

		records := make([]domain.ParagraphRecord, len(src.records))
		for i, p := range src.records {
			rec := paragraphToRecord(p)
			rec.Region = region
			records[i] = rec
		}
		regions[region] = records
	}
	return regions, nil
}

// Close releases the database connection, if any.
func (c *Client) Close() {
	if c.store != nil {
		c.store.Close()
	}
}

// Regions returns metadata for every built region index.
func (c *Client) Regions() []RegionInfo {
	out := make([]RegionInfo, len(c.infos))
	for i, info := range c.infos {
		out[i] = RegionInfo{
			Region:    string(info.Region),
			Dimension: info.Dimension,
			Size:      info.Size,
		}
	}
	return out
}

// Search runs a raw k-NN query across all region indices. The vector is
// normalized before the search so scores stay in cosine range.
func (c *Client) Search(vector []float32, k int) ([]Hit, error) {
	query, norm := domain.Normalize(vector)
	if norm == 0 {
		return nil, errors.New("semdex: query vector has zero norm")
	}

	hits, err := c.searcher.Search(query, k)
	if err != nil {
		return nil, err
	}

	out := make([]Hit, len(hits))
	for i, h := range hits {
		out[i] = Hit{
			ParagraphID: h.ParagraphID,
			Region:      string(h.Region),
			Similarity:  h.Similarity,
		}
		if rec, ok := c.catalog.Paragraph(h.ParagraphID); ok {
			out[i].Text = rec.Text
		}
	}
	return out, nil
}

// Query embeds a free-text query and runs Search with the result.
func (c *Client) Query(ctx context.Context, text string, k int) ([]Hit, error) {
	if c.embedder == nil {
		return nil, errNoEmbedder
	}
	res, err := c.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("semdex: embed query: %w", err)
	}
	return c.Search(res.Embedding, k)
}

// Retrieve returns the scored matches for one concept.
func (c *Client) Retrieve(ctx context.Context, conceptID string, opts MeasureOptions) ([]Match, error) {
	if c.runner == nil {
		return nil, errNoEmbedder
	}

	res, err := c.runner.Run(ctx, []string{conceptID}, c.topicOptions(opts))
	if err != nil {
		return nil, err
	}

	matches := make([]Match, len(res.Matches))
	for i, m := range res.Matches {
		matches[i] = matchFromDomain(m)
	}
	return matches, nil
}

// Measure runs the full measurement pipeline for the given concepts. An
// empty concept list measures every concept in the concepts directory.
func (c *Client) Measure(ctx context.Context, conceptIDs []string, opts MeasureOptions) (Measurement, error) {
	if c.runner == nil {
		return Measurement{}, errNoEmbedder
	}

	res, err := c.runner.Run(ctx, conceptIDs, c.topicOptions(opts))
	if err != nil {
		return Measurement{}, err
	}

	matches := make([]Match, len(res.Matches))
	for i, m := range res.Matches {
		matches[i] = matchFromDomain(m)
	}
	exposures := make([]Exposure, len(res.Records))
	for i, r := range res.Records {
		exposures[i] = exposureFromDomain(r)
	}
	return Measurement{
		Matches:          matches,
		Exposures:        exposures,
		MatchesByConcept: res.MatchesByConcept,
	}, nil
}

// Calibrate sweeps an ROC curve over labeled pairs, selects a threshold by
// Youden's J, and persists it as the concept's current value.
func (c *Client) Calibrate(ctx context.Context, conceptID string, pairs []LabeledPair, version string) (Calibration, error) {
	labeled := make([]calibration.LabeledPair, len(pairs))
	for i, p := range pairs {
		labeled[i] = calibration.LabeledPair{
			ParagraphID: p.ParagraphID,
			Similarity:  p.Similarity,
			Relevant:    p.Relevant,
		}
	}

	res, err := c.calibrator.Calibrate(conceptID, labeled, version)
	if err != nil {
		return Calibration{}, err
	}
	if err := c.thresholds.Put(ctx, res.Threshold); err != nil {
		return Calibration{}, fmt.Errorf("semdex: store threshold: %w", err)
	}
	return calibrationFromResult(res), nil
}

// Threshold returns the current threshold for a concept.
func (c *Client) Threshold(ctx context.Context, conceptID string) (Threshold, error) {
	tau, err := c.thresholds.Get(ctx, conceptID)
	if err != nil {
		return Threshold{}, err
	}
	return thresholdFromDomain(tau), nil
}

// ThresholdVersion returns an archived threshold version for a concept,
// so past calibrations can be audited after a re-calibration replaced the
// current value.
func (c *Client) ThresholdVersion(ctx context.Context, conceptID, version string) (Threshold, error) {
	tau, err := c.thresholds.GetVersion(ctx, conceptID, version)
	if err != nil {
		return Threshold{}, err
	}
	return thresholdFromDomain(tau), nil
}

// SetThreshold stores a manually chosen threshold for a concept.
func (c *Client) SetThreshold(ctx context.Context, conceptID string, value float64, version string) error {
	if value < -1 || value > 1 {
		return fmt.Errorf("semdex: threshold %v outside cosine range [-1, 1]", value)
	}
	return c.thresholds.Put(ctx, domain.Threshold{
		ConceptID:    conceptID,
		Value:        value,
		Version:      version,
		CalibratedAt: time.Now().UTC(),
	})
}

// CallCounts returns the per-call aggregation denominators of the corpus.
func (c *Client) CallCounts() map[string]domain.CallCounts {
	return c.catalog.CallCounts()
}

// SaveExposures writes exposure records to a parquet file.
func (c *Client) SaveExposures(path string, exposures []Exposure) error {
	records := make([]domain.ExposureRecord, len(exposures))
	for i, e := range exposures {
		records[i] = exposureToDomain(e)
	}
	return corpus.WriteExposures(path, records)
}

func (c *Client) topicOptions(opts MeasureOptions) topic.Options {
	k := opts.K
	if k <= 0 {
		k = c.kPerPattern
	}
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = c.concurrency
	}

	var segment *domain.SegmentType
	if opts.Segment != "" {
		s := domain.SegmentType(opts.Segment)
		segment = &s
	}

	return topic.Options{
		KPerPattern:    k,
		Segment:        segment,
		SplitBySegment: opts.SplitBySegment,
		Concurrency:    concurrency,
	}
}

var errNoEmbedder = errors.New("semdex: embedder not configured (use WithEmbedder)")

// embedderAdapter wraps the public Embedder to satisfy the internal
// contracts. Batch calls use native batch support when the provider offers
// it and fall back to per-text calls otherwise.
type embedderAdapter struct {
	inner Embedder
}

func (a *embedderAdapter) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	r, err := a.inner.Embed(ctx, text)
	if err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("embed: %w", err)
	}
	return domain.EmbeddingResult{
		Embedding:    r.Embedding,
		PromptTokens: r.PromptTokens,
		TotalTokens:  r.TotalTokens,
	}, nil
}

func (a *embedderAdapter) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	if be, ok := a.inner.(BatchEmbedder); ok {
		r, err := be.BatchEmbed(ctx, texts)
		if err != nil {
			return domain.BatchEmbeddingResult{}, fmt.Errorf("batch embed: %w", err)
		}
		return domain.BatchEmbeddingResult{
			Embeddings:   r.Embeddings,
			PromptTokens: r.PromptTokens,
			TotalTokens:  r.TotalTokens,
		}, nil
	}
	return domain.BatchFallback(ctx, a, texts)
}
