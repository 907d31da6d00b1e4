package calibration

// SelectionRule picks one operating point from a swept ROC curve. The curve
// is never empty when a rule runs: calibration rejects single-class label
// sets before sweeping.
type SelectionRule interface {
	// Select returns the chosen point. Name identifies the rule in logs
	// and stored threshold metadata.
	Select(curve []ROCPoint) ROCPoint
	Name() string
}

// YoudenJ maximizes TPR - FPR. On a tie it prefers the smallest threshold:
// equal discrimination at a lower cutoff admits more true positives in the
// unlabeled population.
type YoudenJ struct{}

func (YoudenJ) Name() string { return "youden_j" }

func (YoudenJ) Select(curve []ROCPoint) ROCPoint {
	best := curve[0]
	for _, pt := range curve[1:] {
		if pt.YoudenJ > best.YoudenJ ||
			(pt.YoudenJ == best.YoudenJ && pt.Threshold < best.Threshold) {
			best = pt
		}
	}
	return best
}

// MaxF1 maximizes F1, tie-breaking toward the smallest threshold.
type MaxF1 struct{}

func (MaxF1) Name() string { return "max_f1" }

func (MaxF1) Select(curve []ROCPoint) ROCPoint {
	best := curve[0]
	for _, pt := range curve[1:] {
		if pt.F1 > best.F1 || (pt.F1 == best.F1 && pt.Threshold < best.Threshold) {
			best = pt
		}
	}
	return best
}

// TargetFPR picks the smallest threshold whose FPR stays at or below Max.
// If every point exceeds the budget it falls back to the lowest-FPR point.
type TargetFPR struct {
	Max float64
}

func (TargetFPR) Name() string { return "target_fpr" }

func (r TargetFPR) Select(curve []ROCPoint) ROCPoint {
	var chosen *ROCPoint
	for i := range curve {
		pt := &curve[i]
		if pt.FPR <= r.Max && (chosen == nil || pt.Threshold < chosen.Threshold) {
			chosen = pt
		}
	}
	if chosen != nil {
		return *chosen
	}

	fallback := curve[0]
	for _, pt := range curve[1:] {
		if pt.FPR < fallback.FPR {
			fallback = pt
		}
	}
	return fallback
}
