// Package calibration derives concept relevance thresholds from labeled
// retrieval results via ROC analysis.
package calibration

import (
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/semdex/internal/domain"
	"github.com/kailas-cloud/semdex/internal/metrics"
)

// LabeledPair is one human judgment over a retrieved paragraph.
type LabeledPair struct {
	ParagraphID string  `json:"paragraph_id"`
	Similarity  float64 `json:"similarity"`
	// Relevant is the annotator's verdict, not the retriever's.
	Relevant bool `json:"relevant"`
}

// ROCPoint is the confusion summary at one candidate threshold.
type ROCPoint struct {
	Threshold float64 `json:"threshold"`
	TPR       float64 `json:"tpr"`
	FPR       float64 `json:"fpr"`
	Precision float64 `json:"precision"`
	F1        float64 `json:"f1"`
	YoudenJ   float64 `json:"youden_j"`
}

// Result is a completed calibration: the selected threshold plus the full
// curve so callers can audit or re-select without re-sweeping.
type Result struct {
	Threshold  domain.Threshold `json:"threshold"`
	Curve      []ROCPoint       `json:"curve"`
	AUC        float64          `json:"auc"`
	Relevant   int              `json:"n_relevant"`
	Irrelevant int              `json:"n_irrelevant"`
}

// Calibrator sweeps candidate thresholds over labeled pairs and picks one
// by the configured selection rule.
type Calibrator struct {
	rule   SelectionRule
	logger *zap.Logger
	now    func() time.Time
}

// NewCalibrator creates a calibrator with the given selection rule.
func NewCalibrator(rule SelectionRule, logger *zap.Logger) *Calibrator {
	return &Calibrator{rule: rule, logger: logger, now: time.Now}
}

// Calibrate computes the ROC curve for a concept's labeled pairs and selects
// a threshold. Both classes must be present: with one class every candidate
// degenerates (TPR or FPR is undefined) and no threshold is defensible.
func (c *Calibrator) Calibrate(conceptID string, pairs []LabeledPair, version string) (Result, error) {
	var relevant, irrelevant int
	for _, p := range pairs {
		if p.Relevant {
			relevant++
		} else {
			irrelevant++
		}
	}
	if relevant == 0 || irrelevant == 0 {
		metrics.CalibrationsTotal.WithLabelValues(conceptID, "error").Inc()
		return Result{}, &domain.InsufficientLabelsError{
			ConceptID:  conceptID,
			Relevant:   relevant,
			Irrelevant: irrelevant,
		}
	}

	curve := sweep(pairs, relevant, irrelevant)
	selected := c.rule.Select(curve)

	res := Result{
		Threshold: domain.Threshold{
			ConceptID:    conceptID,
			Value:        selected.Threshold,
			Version:      version,
			CalibratedAt: c.now().UTC(),
		},
		Curve:      curve,
		AUC:        auc(curve),
		Relevant:   relevant,
		Irrelevant: irrelevant,
	}

	metrics.CalibrationsTotal.WithLabelValues(conceptID, "ok").Inc()
	c.logger.Info("Threshold calibrated",
		zap.String("concept", conceptID),
		zap.Float64("threshold", selected.Threshold),
		zap.Float64("auc", res.AUC),
		zap.Int("relevant", relevant),
		zap.Int("irrelevant", irrelevant),
	)
	return res, nil
}

// sweep evaluates every distinct similarity value as a candidate threshold,
// highest first. A pair counts as predicted-relevant when sim >= candidate.
func sweep(pairs []LabeledPair, relevant, irrelevant int) []ROCPoint {
	distinct := make([]float64, 0, len(pairs))
	seen := make(map[float64]struct{}, len(pairs))
	for _, p := range pairs {
		if _, ok := seen[p.Similarity]; !ok {
			seen[p.Similarity] = struct{}{}
			distinct = append(distinct, p.Similarity)
		}
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(distinct)))

	curve := make([]ROCPoint, 0, len(distinct))
	for _, cand := range distinct {
		var tp, fp, fn int
		for _, p := range pairs {
			predicted := p.Similarity >= cand
			switch {
			case predicted && p.Relevant:
				tp++
			case predicted && !p.Relevant:
				fp++
			case !predicted && p.Relevant:
				fn++
			}
		}

		tpr := float64(tp) / float64(relevant)
		fpr := float64(fp) / float64(irrelevant)

		var precision float64
		if tp+fp > 0 {
			precision = float64(tp) / float64(tp+fp)
		}
		var f1 float64
		if 2*tp+fp+fn > 0 {
			f1 = float64(2*tp) / float64(2*tp+fp+fn)
		}

		curve = append(curve, ROCPoint{
			Threshold: cand,
			TPR:       tpr,
			FPR:       fpr,
			Precision: precision,
			F1:        f1,
			YoudenJ:   tpr - fpr,
		})
	}
	return curve
}

// auc integrates TPR over FPR by the trapezoidal rule, anchored at (0,0)
// and (1,1). The sweep emits thresholds descending, so FPR ascends.
func auc(curve []ROCPoint) float64 {
	fprs := make([]float64, 0, len(curve)+2)
	tprs := make([]float64, 0, len(curve)+2)
	fprs = append(fprs, 0)
	tprs = append(tprs, 0)
	for _, pt := range curve {
		fprs = append(fprs, pt.FPR)
		tprs = append(tprs, pt.TPR)
	}
	fprs = append(fprs, 1)
	tprs = append(tprs, 1)

	var area float64
	for i := 1; i < len(fprs); i++ {
		area += (fprs[i] - fprs[i-1]) * (tprs[i] + tprs[i-1]) / 2
	}
	return area
}
