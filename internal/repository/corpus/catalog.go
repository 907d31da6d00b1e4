package corpus

import (
	"github.com/kailas-cloud/semdex/internal/domain"
)

// Catalog is an in-memory paragraph lookup across all loaded regions.
// It resolves paragraph ids to their metadata after a k-NN query and
// derives per-call denominators for indicator aggregation. Read-only
// after construction, safe for concurrent readers.
type Catalog struct {
	paragraphs map[string]domain.ParagraphRecord
	byRegion   map[domain.Region][]domain.ParagraphRecord
}

// NewCatalog builds a catalog over the given region record sets.
func NewCatalog(regions map[domain.Region][]domain.ParagraphRecord) *Catalog {
	c := &Catalog{
		paragraphs: make(map[string]domain.ParagraphRecord),
		byRegion:   make(map[domain.Region][]domain.ParagraphRecord, len(regions)),
	}
	for region, records := range regions {
		c.byRegion[region] = records
		for _, rec := range records {
			c.paragraphs[rec.ID] = rec
		}
	}
	return c
}

// Paragraph resolves a paragraph id to its record.
func (c *Catalog) Paragraph(id string) (domain.ParagraphRecord, bool) {
	rec, ok := c.paragraphs[id]
	return rec, ok
}

// Regions returns the regions with loaded records.
func (c *Catalog) Regions() []domain.Region {
	regions := make([]domain.Region, 0, len(c.byRegion))
	for r := range c.byRegion {
		regions = append(regions, r)
	}
	return regions
}

// Region returns the records loaded for one region, in corpus (ordinal) order.
func (c *Catalog) Region(region domain.Region) []domain.ParagraphRecord {
	return c.byRegion[region]
}

// Len returns the total paragraph count across regions.
func (c *Catalog) Len() int { return len(c.paragraphs) }

// CallCounts derives per-call paragraph and sentence denominators,
// including the per-segment split, from the loaded corpus.
func (c *Catalog) CallCounts() map[string]domain.CallCounts {
	counts := make(map[string]domain.CallCounts)
	for _, rec := range c.paragraphs {
		cc := counts[rec.CallID]
		cc.Paragraphs++
		cc.Sentences += rec.SentenceCount

		if cc.Segments == nil {
			cc.Segments = make(map[domain.SegmentType]domain.SegmentCounts)
		}
		sc := cc.Segments[rec.Segment]
		sc.Paragraphs++
		sc.Sentences += rec.SentenceCount
		cc.Segments[rec.Segment] = sc

		counts[rec.CallID] = cc
	}
	return counts
}
