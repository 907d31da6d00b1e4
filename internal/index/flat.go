// Package index implements the per-region vector index: an exact
// inner-product search structure over unit-normalized paragraph embeddings.
// An index is built once and frozen; reads are safe to share across
// goroutines without locking.
package index

import (
	"fmt"
	"sort"

	"github.com/kailas-cloud/semdex/internal/domain"
)

// Hit is one nearest-neighbor result resolved to a paragraph id.
type Hit struct {
	ParagraphID string
	Similarity  float64
}

// Info carries index metadata for logging and sanity checks.
type Info struct {
	Region    domain.Region
	Dimension int
	Size      int
}

// Flat is an exact inner-product index for one region. Ordinal positions
// are stable and match insertion order, which is what makes id resolution
// after a query correct across save/load cycles.
type Flat struct {
	region  domain.Region
	dim     int
	ids     []string
	vectors [][]float32
}

// Build constructs a frozen index from parallel embedding/id slices.
// Embeddings must be unit-normalized within domain.NormTolerance; vectors
// inside the tolerance are snapped to exact unit length so inner-product
// scores stay in cosine range.
func Build(region domain.Region, embeddings [][]float32, ids []string) (*Flat, error) {
	if len(embeddings) != len(ids) {
		return nil, &domain.DimensionMismatchError{
			Region:     region,
			Embeddings: len(embeddings),
			IDs:        len(ids),
		}
	}

	idx := &Flat{
		region:  region,
		ids:     make([]string, len(ids)),
		vectors: make([][]float32, len(embeddings)),
	}
	copy(idx.ids, ids)

	for i, emb := range embeddings {
		if idx.dim == 0 {
			idx.dim = len(emb)
		}
		if len(emb) != idx.dim {
			return nil, fmt.Errorf("%w: region %s: paragraph %s has dimension %d, index has %d",
				domain.ErrDimensionMismatch, region, ids[i], len(emb), idx.dim)
		}

		vec, norm := domain.Normalize(emb)
		if norm < 1-domain.NormTolerance || norm > 1+domain.NormTolerance {
			return nil, &domain.UnnormalizedEmbeddingError{
				Region:      region,
				ParagraphID: ids[i],
				Norm:        norm,
			}
		}
		idx.vectors[i] = vec
	}

	return idx, nil
}

// BuildFromRecords builds an index over paragraph records, preserving record
// order as ordinal position.
func BuildFromRecords(region domain.Region, records []domain.ParagraphRecord) (*Flat, error) {
	embeddings := make([][]float32, len(records))
	ids := make([]string, len(records))
	for i, rec := range records {
		embeddings[i] = rec.Embedding
		ids[i] = rec.ID
	}
	return Build(region, embeddings, ids)
}

// Region returns the region this index covers.
func (f *Flat) Region() domain.Region { return f.region }

// Len returns the number of indexed paragraphs.
func (f *Flat) Len() int { return len(f.ids) }

// Info returns index metadata.
func (f *Flat) Info() Info {
	return Info{Region: f.region, Dimension: f.dim, Size: len(f.ids)}
}

// Query returns up to k paragraphs most similar to the vector, sorted by
// similarity descending with ties broken by ascending paragraph id.
// Querying an empty index returns an empty result, not an error.
func (f *Flat) Query(vector []float32, k int) ([]Hit, error) {
	if len(f.ids) == 0 || k <= 0 {
		return nil, nil
	}
	if len(vector) != f.dim {
		return nil, fmt.Errorf("%w: region %s: query has dimension %d, index has %d",
			domain.ErrDimensionMismatch, f.region, len(vector), f.dim)
	}

	hits := make([]Hit, len(f.ids))
	for i, vec := range f.vectors {
		hits[i] = Hit{ParagraphID: f.ids[i], Similarity: domain.Dot(vector, vec)}
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Similarity != hits[j].Similarity {
			return hits[i].Similarity > hits[j].Similarity
		}
		return hits[i].ParagraphID < hits[j].ParagraphID
	})

	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}
