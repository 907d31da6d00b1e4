// Package corpus persists paragraph records and exposure output as parquet.
// Row order in a corpus file is the ordinal order used at index build time;
// the save/load cycle must preserve it exactly or id resolution after a
// k-NN query breaks.
package corpus

import (
	"fmt"
	"os"

	"github.com/parquet-go/parquet-go"

	"github.com/kailas-cloud/semdex/internal/domain"
)

// paragraphRow is the parquet schema for one embedded paragraph.
type paragraphRow struct {
	ID            string    `parquet:"id"`
	CallID        string    `parquet:"call_id"`
	Region        string    `parquet:"region"`
	Segment       string    `parquet:"segment"`
	Text          string    `parquet:"text"`
	SentenceCount int32     `parquet:"sentence_count"`
	Embedding     []float32 `parquet:"embedding,list"`
}

// ReadRegion loads all paragraph records from a region's parquet file,
// preserving row order.
func ReadRegion(path string, region domain.Region) ([]domain.ParagraphRecord, error) {
	rows, err := parquet.ReadFile[paragraphRow](path)
	if err != nil {
		return nil, fmt.Errorf("read corpus %s: %w", path, err)
	}

	records := make([]domain.ParagraphRecord, len(rows))
	for i, row := range rows {
		records[i] = domain.ParagraphRecord{
			ID:            row.ID,
			CallID:        row.CallID,
			Region:        region,
			Segment:       domain.SegmentType(row.Segment),
			Text:          row.Text,
			Embedding:     row.Embedding,
			SentenceCount: int(row.SentenceCount),
		}
	}
	return records, nil
}

// WriteRegion writes paragraph records to a parquet file in record order.
func WriteRegion(path string, records []domain.ParagraphRecord) error {
	rows := make([]paragraphRow, len(records))
	for i, rec := range records {
		rows[i] = paragraphRow{
			ID:            rec.ID,
			CallID:        rec.CallID,
			Region:        string(rec.Region),
			Segment:       string(rec.Segment),
			Text:          rec.Text,
			SentenceCount: int32(rec.SentenceCount),
			Embedding:     rec.Embedding,
		}
	}

	if err := parquet.WriteFile(path, rows); err != nil {
		return fmt.Errorf("write corpus %s: %w", path, err)
	}
	return nil
}

// exposureRow is the parquet schema for one exposure record.
type exposureRow struct {
	CallID           string   `parquet:"call_id"`
	ConceptID        string   `parquet:"concept_id"`
	Segment          string   `parquet:"segment"`
	Exposure         float64  `parquet:"exposure"`
	AvgSimilarity    *float64 `parquet:"avg_similarity,optional"`
	Intensity        float64  `parquet:"intensity"`
	NParagraphs      int32    `parquet:"n_paragraphs"`
	NMatches         int32    `parquet:"n_matches"`
	MatchedSentences int32    `parquet:"matched_sentences"`
	SentenceCoverage *float64 `parquet:"sentence_coverage,optional"`
}

// WriteExposures writes exposure records to a parquet file for the
// downstream panel-construction stage.
func WriteExposures(path string, records []domain.ExposureRecord) error {
	rows := make([]exposureRow, len(records))
	for i, rec := range records {
		rows[i] = exposureRow{
			CallID:           rec.CallID,
			ConceptID:        rec.ConceptID,
			Segment:          string(rec.Segment),
			Exposure:         rec.Exposure,
			AvgSimilarity:    rec.AvgSimilarity,
			Intensity:        rec.Intensity,
			NParagraphs:      int32(rec.NParagraphs),
			NMatches:         int32(rec.NMatches),
			MatchedSentences: int32(rec.MatchedSentences),
			SentenceCoverage: rec.SentenceCoverage,
		}
	}

	if err := parquet.WriteFile(path, rows); err != nil {
		return fmt.Errorf("write exposures %s: %w", path, err)
	}
	return nil
}

// FileExists reports whether a corpus file is present. A missing region
// file is not an error: that region is skipped at build time.
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
