package ml

import (
	"math"
	"testing"
)

func TestEvaluatePerfectClassifier(t *testing.T) {
	labels := []int{1, 1, 0, 0}
	probs := []float64{0.9, 0.8, 0.2, 0.1}

	m, c := Evaluate(labels, probs, 0.5)

	if c.TruePositives != 2 || c.TrueNegatives != 2 || c.FalsePositives != 0 || c.FalseNegatives != 0 {
		t.Fatalf("confusion = %+v", c)
	}
	for name, got := range map[string]float64{
		"accuracy": m.Accuracy, "precision": m.Precision,
		"recall": m.Recall, "f1": m.F1, "auc": m.AUC,
	} {
		if got != 1 {
			t.Errorf("%s = %v, want 1", name, got)
		}
	}
}

func TestEvaluateZeroDenominators(t *testing.T) {
	// No predicted positives and no actual positives: precision, recall,
	// and F1 must be 0, not NaN.
	labels := []int{0, 0, 0}
	probs := []float64{0.1, 0.2, 0.3}

	m, c := Evaluate(labels, probs, 0.5)

	if c.TrueNegatives != 3 {
		t.Fatalf("confusion = %+v", c)
	}
	if m.Accuracy != 1 {
		t.Errorf("accuracy = %v, want 1", m.Accuracy)
	}
	for name, got := range map[string]float64{"precision": m.Precision, "recall": m.Recall, "f1": m.F1} {
		if math.IsNaN(got) || got != 0 {
			t.Errorf("%s = %v, want 0", name, got)
		}
	}
}

func TestEvaluateMixed(t *testing.T) {
	labels := []int{1, 0, 1, 0, 1}
	probs := []float64{0.9, 0.6, 0.4, 0.2, 0.8}

	m, c := Evaluate(labels, probs, 0.5)

	// predictions: 1, 1, 0, 0, 1
	if c.TruePositives != 2 || c.FalsePositives != 1 || c.TrueNegatives != 1 || c.FalseNegatives != 1 {
		t.Fatalf("confusion = %+v", c)
	}
	if got, want := m.Accuracy, 3.0/5; math.Abs(got-want) > 1e-12 {
		t.Errorf("accuracy = %v, want %v", got, want)
	}
	if got, want := m.Precision, 2.0/3; math.Abs(got-want) > 1e-12 {
		t.Errorf("precision = %v, want %v", got, want)
	}
	if got, want := m.Recall, 2.0/3; math.Abs(got-want) > 1e-12 {
		t.Errorf("recall = %v, want %v", got, want)
	}
}

func TestAUCSingleClassIsChance(t *testing.T) {
	if got := AUC([]int{1, 1, 1}, []float64{0.2, 0.5, 0.9}); got != 0.5 {
		t.Fatalf("all-positive AUC = %v, want 0.5", got)
	}
	if got := AUC([]int{0, 0}, []float64{0.2, 0.9}); got != 0.5 {
		t.Fatalf("all-negative AUC = %v, want 0.5", got)
	}
	if got := AUC(nil, nil); got != 0.5 {
		t.Fatalf("empty AUC = %v, want 0.5", got)
	}
}

func TestAUCHandlesTies(t *testing.T) {
	// Of the four positive/negative pairs, 3 rank correctly and the tied
	// pair contributes half: AUC = 3.5 / 4.
	labels := []int{1, 1, 0, 0}
	probs := []float64{0.9, 0.5, 0.5, 0.1}

	if got, want := AUC(labels, probs), 0.875; math.Abs(got-want) > 1e-12 {
		t.Fatalf("AUC = %v, want %v", got, want)
	}
}

func TestAUCInverseRanking(t *testing.T) {
	labels := []int{1, 0}
	probs := []float64{0.1, 0.9}

	if got := AUC(labels, probs); got != 0 {
		t.Fatalf("AUC = %v, want 0", got)
	}
}
