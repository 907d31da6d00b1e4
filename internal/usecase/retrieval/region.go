// Package retrieval implements cross-region k-NN search and multi-pattern
// concept retrieval with threshold-based relevance decisions.
package retrieval

import (
	"sort"

	"go.uber.org/zap"

	"github.com/kailas-cloud/semdex/internal/domain"
)

// RegionRetriever queries every region's index with the same k and merges
// the per-region results into one globally ranked list. The region set is
// fixed at construction; a region without a built index is skipped, not an
// error, so partial deployments still function.
type RegionRetriever struct {
	regions []domain.Region
	indices map[domain.Region]Index
	logger  *zap.Logger
}

// NewRegionRetriever creates a retriever over the given region indices.
// A nil map entry marks a known region whose index has not been built.
func NewRegionRetriever(indices map[domain.Region]Index, logger *zap.Logger) *RegionRetriever {
	regions := make([]domain.Region, 0, len(indices))
	for r := range indices {
		regions = append(regions, r)
	}
	// Fixed iteration order keeps runs reproducible.
	sort.Slice(regions, func(i, j int) bool { return regions[i] < regions[j] })

	return &RegionRetriever{regions: regions, indices: indices, logger: logger}
}

// Regions returns the configured region set.
func (r *RegionRetriever) Regions() []domain.Region { return r.regions }

// Search queries every built region index with the same k, merges by
// similarity descending, and truncates to the global top-k. Ties on equal
// similarity break by ascending paragraph id: ANN backends may return ties
// in build-order-dependent sequence, and the merge has to stay reproducible.
func (r *RegionRetriever) Search(vector []float32, k int) ([]RegionHit, error) {
	if k <= 0 {
		return nil, nil
	}

	var merged []RegionHit
	for _, region := range r.regions {
		idx := r.indices[region]
		if idx == nil {
			r.logger.Debug("Region index not built, skipping", zap.String("region", string(region)))
			continue
		}

		hits, err := idx.Query(vector, k)
		if err != nil {
			return nil, err
		}
		for _, h := range hits {
			merged = append(merged, RegionHit{
				ParagraphID: h.ParagraphID,
				Region:      region,
				Similarity:  h.Similarity,
			})
		}
	}

	sort.Slice(merged, func(i, j int) bool {
		if merged[i].Similarity != merged[j].Similarity {
			return merged[i].Similarity > merged[j].Similarity
		}
		return merged[i].ParagraphID < merged[j].ParagraphID
	})

	if len(merged) > k {
		merged = merged[:k]
	}
	return merged, nil
}
