package retrieval

import (
	"github.com/kailas-cloud/semdex/internal/domain"
	"github.com/kailas-cloud/semdex/internal/index"
)

// Index is the read contract one region's vector index satisfies.
type Index interface {
	Query(vector []float32, k int) ([]index.Hit, error)
}

// Searcher merges k-NN results across region indices.
type Searcher interface {
	Search(vector []float32, k int) ([]RegionHit, error)
}

// ParagraphResolver resolves paragraph ids to their metadata.
type ParagraphResolver interface {
	Paragraph(id string) (domain.ParagraphRecord, bool)
}

// RegionHit is one cross-region k-NN result.
type RegionHit struct {
	ParagraphID string
	Region      domain.Region
	Similarity  float64
}
