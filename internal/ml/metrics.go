package ml

import (
	"sort"

	"github.com/medivuehealth/flarecast/internal/store"
)

// Evaluate scores predicted probabilities against ground-truth labels at the
// given decision threshold. Degenerate denominators (no predicted positives,
// no actual positives) score as 0 rather than NaN.
func Evaluate(labels []int, probs []float64, threshold float64) (store.MetricSet, store.Confusion) {
	var c store.Confusion
	for i, label := range labels {
		predicted := 0
		if probs[i] >= threshold {
			predicted = 1
		}
		switch {
		case predicted == 1 && label == 1:
			c.TruePositives++
		case predicted == 1 && label == 0:
			c.FalsePositives++
		case predicted == 0 && label == 0:
			c.TrueNegatives++
		default:
			c.FalseNegatives++
		}
	}

	total := float64(len(labels))
	m := store.MetricSet{AUC: AUC(labels, probs)}
	if total > 0 {
		m.Accuracy = float64(c.TruePositives+c.TrueNegatives) / total
	}
	if pp := c.TruePositives + c.FalsePositives; pp > 0 {
		m.Precision = float64(c.TruePositives) / float64(pp)
	}
	if ap := c.TruePositives + c.FalseNegatives; ap > 0 {
		m.Recall = float64(c.TruePositives) / float64(ap)
	}
	if m.Precision+m.Recall > 0 {
		m.F1 = 2 * m.Precision * m.Recall / (m.Precision + m.Recall)
	}
	return m, c
}

// AUC computes the area under the ROC curve by the rank-sum method, with
// average ranks for tied probabilities. A window containing only one class
// has no ranking to measure and scores 0.5, chance level.
func AUC(labels []int, probs []float64) float64 {
	pos, neg := 0, 0
	for _, l := range labels {
		if l == 1 {
			pos++
		} else {
			neg++
		}
	}
	if pos == 0 || neg == 0 {
		return 0.5
	}

	idx := make([]int, len(probs))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool { return probs[idx[a]] < probs[idx[b]] })

	// Average ranks across ties, then sum ranks of positives.
	ranks := make([]float64, len(probs))
	for i := 0; i < len(idx); {
		j := i
		for j < len(idx) && probs[idx[j]] == probs[idx[i]] {
			j++
		}
		avg := float64(i+j+1) / 2 // ranks are 1-based
		for k := i; k < j; k++ {
			ranks[idx[k]] = avg
		}
		i = j
	}

	var rankSum float64
	for i, l := range labels {
		if l == 1 {
			rankSum += ranks[i]
		}
	}
	u := rankSum - float64(pos)*float64(pos+1)/2
	return u / (float64(pos) * float64(neg))
}
