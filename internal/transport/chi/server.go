// Package chi implements the HTTP API: concept retrieval, threshold
// calibration, and exposure measurement over the built region indices.
package chi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/semdex/internal/domain"
	logpkg "github.com/kailas-cloud/semdex/internal/logger"
	"github.com/kailas-cloud/semdex/internal/usecase/calibration"
	healthuc "github.com/kailas-cloud/semdex/internal/usecase/health"
	"github.com/kailas-cloud/semdex/internal/usecase/retrieval"
	"github.com/kailas-cloud/semdex/internal/usecase/topic"
)

// Error codes returned in the response body.
const (
	codeBadRequest         = "bad_request"
	codeConceptNotFound    = "concept_not_found"
	codeMissingThreshold   = "missing_threshold"
	codeInsufficientLabels = "insufficient_labels"
	codeUnknownCall        = "unknown_call"
	codeDimensionMismatch  = "dimension_mismatch"
	codeEmbeddingProvider  = "embedding_provider_error"
	codeEmbeddingDisabled  = "embedding_not_configured"
	codeValidationFailed   = "validation_failed"
	codeInternalError      = "internal_error"
)

// ErrorResponse is the JSON error body.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Measurer runs concept measurement.
type Measurer interface {
	Run(ctx context.Context, conceptIDs []string, opts topic.Options) (topic.Result, error)
}

// ConceptLister lists available concept definitions.
type ConceptLister interface {
	List() ([]string, error)
}

// ThresholdStore reads and writes calibrated thresholds.
type ThresholdStore interface {
	Get(ctx context.Context, conceptID string) (domain.Threshold, error)
	Put(ctx context.Context, tau domain.Threshold) error
}

// Calibrator derives a threshold from labeled pairs.
type Calibrator interface {
	Calibrate(conceptID string, pairs []calibration.LabeledPair, version string) (calibration.Result, error)
}

// Searcher runs raw cross-region k-NN.
type Searcher interface {
	Search(vector []float32, k int) ([]retrieval.RegionHit, error)
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server holds the HTTP handlers.
type Server struct {
	measurer      Measurer
	concepts      ConceptLister
	thresholds    ThresholdStore
	calibrator    Calibrator
	search        Searcher
	embedder      domain.Embedder
	resolver      retrieval.ParagraphResolver
	health        *healthuc.Service
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server. embedder can be nil when no
// vectorizer is configured; the search endpoint then returns 501.
func NewServer(
	measurer Measurer,
	concepts ConceptLister,
	thresholds ThresholdStore,
	calibrator Calibrator,
	search Searcher,
	embedder domain.Embedder,
	resolver retrieval.ParagraphResolver,
	health *healthuc.Service,
	logger *zap.Logger,
) *Server {
	s := &Server{
		measurer:   measurer,
		concepts:   concepts,
		thresholds: thresholds,
		calibrator: calibrator,
		search:     search,
		embedder:   embedder,
		resolver:   resolver,
		health:     health,
		logger:     logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrConceptNotFound, http.StatusNotFound, codeConceptNotFound),
		sentinelHandler(domain.ErrMissingThreshold, http.StatusUnprocessableEntity, codeMissingThreshold),
		sentinelHandler(domain.ErrInsufficientLabels, http.StatusUnprocessableEntity, codeInsufficientLabels),
		sentinelHandler(domain.ErrUnknownCallDenominator, http.StatusUnprocessableEntity, codeUnknownCall),
		sentinelHandler(domain.ErrDimensionMismatch, http.StatusBadRequest, codeDimensionMismatch),
		sentinelHandler(domain.ErrEmbeddingProviderError, http.StatusBadGateway, codeEmbeddingProvider),
	}
	return s
}

// --- DTOs ---

type matchItem struct {
	ParagraphID string  `json:"paragraph_id"`
	ConceptID   string  `json:"concept_id"`
	CallID      string  `json:"call_id"`
	Region      string  `json:"region"`
	Segment     string  `json:"segment,omitempty"`
	Similarity  float64 `json:"similarity"`
	PatternID   string  `json:"pattern_id"`
}

type exposureItem struct {
	CallID           string   `json:"call_id"`
	ConceptID        string   `json:"concept_id"`
	Segment          string   `json:"segment,omitempty"`
	Exposure         float64  `json:"exposure"`
	AvgSimilarity    *float64 `json:"avg_similarity"`
	Intensity        float64  `json:"intensity"`
	NParagraphs      int      `json:"n_paragraphs"`
	NMatches         int      `json:"n_matches"`
	MatchedSentences int      `json:"matched_sentences"`
	SentenceCoverage *float64 `json:"sentence_coverage"`
}

type retrieveRequest struct {
	KPerPattern int     `json:"k_per_pattern,omitempty"`
	Segment     *string `json:"segment,omitempty"`
}

type retrieveResponse struct {
	ConceptID string      `json:"concept_id"`
	Matches   []matchItem `json:"matches"`
	Total     int         `json:"total"`
}

type measureRequest struct {
	Concepts       []string `json:"concepts,omitempty"`
	KPerPattern    int      `json:"k_per_pattern,omitempty"`
	SplitBySegment bool     `json:"split_by_segment,omitempty"`
}

type measureResponse struct {
	Records          []exposureItem `json:"records"`
	MatchesByConcept map[string]int `json:"matches_by_concept"`
}

type calibrateRequest struct {
	Pairs   []calibration.LabeledPair `json:"pairs"`
	Version string                    `json:"version,omitempty"`
}

type searchRequest struct {
	Query string `json:"query"`
	K     int    `json:"k,omitempty"`
}

type searchHit struct {
	ParagraphID string  `json:"paragraph_id"`
	CallID      string  `json:"call_id,omitempty"`
	Region      string  `json:"region"`
	Segment     string  `json:"segment,omitempty"`
	Similarity  float64 `json:"similarity"`
	Text        string  `json:"text,omitempty"`
}

// --- Handlers ---

// ListConcepts handles GET /v1/concepts.
func (s *Server) ListConcepts(w http.ResponseWriter, r *http.Request) {
	ids, err := s.concepts.List()
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"concepts": ids})
}

// RetrieveConcept handles POST /v1/concepts/{concept}/retrieve.
func (s *Server) RetrieveConcept(w http.ResponseWriter, r *http.Request, conceptID string) {
	req := retrieveRequest{}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
			return
		}
	}

	opts := topic.Options{KPerPattern: req.KPerPattern}
	if req.Segment != nil {
		seg, err := parseSegment(*req.Segment)
		if err != nil {
			writeError(w, http.StatusBadRequest, codeValidationFailed, err.Error())
			return
		}
		opts.Segment = &seg
	}

	res, err := s.measurer.Run(r.Context(), []string{conceptID}, opts)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	items := make([]matchItem, len(res.Matches))
	for i, m := range res.Matches {
		items[i] = matchItem{
			ParagraphID: m.ParagraphID,
			ConceptID:   m.ConceptID,
			CallID:      m.CallID,
			Region:      string(m.Region),
			Segment:     string(m.Segment),
			Similarity:  m.Similarity,
			PatternID:   m.PatternID,
		}
	}
	writeJSON(w, http.StatusOK, retrieveResponse{
		ConceptID: conceptID,
		Matches:   items,
		Total:     len(items),
	})
}

// Measure handles POST /v1/measure.
func (s *Server) Measure(w http.ResponseWriter, r *http.Request) {
	req := measureRequest{}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
			return
		}
	}

	res, err := s.measurer.Run(r.Context(), req.Concepts, topic.Options{
		KPerPattern:    req.KPerPattern,
		SplitBySegment: req.SplitBySegment,
	})
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	items := make([]exposureItem, len(res.Records))
	for i, rec := range res.Records {
		items[i] = exposureItem{
			CallID:           rec.CallID,
			ConceptID:        rec.ConceptID,
			Segment:          string(rec.Segment),
			Exposure:         rec.Exposure,
			AvgSimilarity:    rec.AvgSimilarity,
			Intensity:        rec.Intensity,
			NParagraphs:      rec.NParagraphs,
			NMatches:         rec.NMatches,
			MatchedSentences: rec.MatchedSentences,
			SentenceCoverage: rec.SentenceCoverage,
		}
	}
	writeJSON(w, http.StatusOK, measureResponse{
		Records:          items,
		MatchesByConcept: res.MatchesByConcept,
	})
}

// Calibrate handles POST /v1/concepts/{concept}/calibrate. The selected
// threshold is persisted as the concept's current value.
func (s *Server) Calibrate(w http.ResponseWriter, r *http.Request, conceptID string) {
	var req calibrateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if len(req.Pairs) == 0 {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "pairs is required")
		return
	}

	res, err := s.calibrator.Calibrate(conceptID, req.Pairs, req.Version)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	if err := s.thresholds.Put(r.Context(), res.Threshold); err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, res)
}

// GetThreshold handles GET /v1/concepts/{concept}/threshold.
func (s *Server) GetThreshold(w http.ResponseWriter, r *http.Request, conceptID string) {
	tau, err := s.thresholds.Get(r.Context(), conceptID)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tau)
}

// PutThreshold handles PUT /v1/concepts/{concept}/threshold. Manual override
// for thresholds chosen outside the calibration endpoint.
func (s *Server) PutThreshold(w http.ResponseWriter, r *http.Request, conceptID string) {
	var tau domain.Threshold
	if err := json.NewDecoder(r.Body).Decode(&tau); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	tau.ConceptID = conceptID
	if tau.Value < -1 || tau.Value > 1 {
		writeError(w, http.StatusBadRequest, codeValidationFailed,
			"threshold value must be within cosine range [-1, 1]")
		return
	}

	if err := s.thresholds.Put(r.Context(), tau); err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tau)
}

// Search handles POST /v1/search: embed a free-text query and run raw
// cross-region k-NN without any threshold.
func (s *Server) Search(w http.ResponseWriter, r *http.Request) {
	if s.embedder == nil {
		writeError(w, http.StatusNotImplemented, codeEmbeddingDisabled,
			"no embedding vectorizer configured")
		return
	}

	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "query is required")
		return
	}
	if req.K <= 0 {
		req.K = 10
	}

	emb, err := s.embedder.Embed(r.Context(), req.Query)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	vec, _ := domain.Normalize(emb.Embedding)

	hits, err := s.search.Search(vec, req.K)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	items := make([]searchHit, len(hits))
	for i, h := range hits {
		items[i] = searchHit{
			ParagraphID: h.ParagraphID,
			Region:      string(h.Region),
			Similarity:  h.Similarity,
		}
		if rec, ok := s.resolver.Paragraph(h.ParagraphID); ok {
			items[i].CallID = rec.CallID
			items[i].Segment = string(rec.Segment)
			items[i].Text = rec.Text
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"hits": items, "total": len(items)})
}

// HealthCheck handles GET /healthz.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, map[string]any{
		"status":  report.Status,
		"checks":  report.Checks,
		"regions": report.Regions,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

// --- Helpers ---

func parseSegment(v string) (domain.SegmentType, error) {
	switch domain.SegmentType(v) {
	case domain.SegmentManagement, domain.SegmentQA:
		return domain.SegmentType(v), nil
	default:
		return "", fmt.Errorf("segment must be %q or %q, got %q",
			domain.SegmentManagement, domain.SegmentQA, v)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
	})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrConceptNotFound,
		domain.ErrMissingThreshold,
		domain.ErrInsufficientLabels,
		domain.ErrUnknownCallDenominator,
		domain.ErrDimensionMismatch,
		domain.ErrUnnormalizedEmbedding,
		domain.ErrEmbeddingProviderError,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	// The request-scoped logger carries the request id for attribution.
	log := logpkg.FromContext(r.Context(), s.logger)
	log.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	log.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
}
