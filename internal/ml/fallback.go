package ml

import (
	"github.com/medivuehealth/flarecast/internal/obs"
)

// FallbackScorer is a heuristic risk scorer used when no trained bundle is
// available, e.g. for a fresh deployment that has not trained yet. It
// weights the strongest clinical indicators of an imminent flare.
type FallbackScorer struct{}

// Symptom weights, normalized to sum to 1. Pain dominates, visible blood
// and fatigue contribute least.
const (
	painWeight    = 0.30
	bowelWeight   = 0.20
	urgencyWeight = 0.15
	stressWeight  = 0.15
	fatigueWeight = 0.10
	bloodWeight   = 0.10
)

// Score returns a flare-risk estimate in [0, 1] from raw symptom levels.
func (FallbackScorer) Score(o obs.Observation) float64 {
	blood := 0.0
	if v, _ := obs.NormalizeCategory("blood_present", string(o.BloodPresent)); v == "yes" {
		blood = 1
	}

	// bowel_frequency above 10/day saturates.
	bowel := o.BowelFrequency / 10
	if bowel > 1 {
		bowel = 1
	}

	return painWeight*o.PainSeverity/10 +
		bowelWeight*bowel +
		urgencyWeight*o.UrgencyLevel/10 +
		stressWeight*o.StressLevel/10 +
		fatigueWeight*o.FatigueLevel/10 +
		bloodWeight*blood
}

// Predict scores the observation and shapes the answer like a classifier
// decision, with the fallback marked in the version field.
func (f FallbackScorer) Predict(o obs.Observation) Result {
	prob := f.Score(o)
	label := 0
	if prob >= DecisionThreshold {
		label = 1
	}
	return Result{
		Probability:  prob,
		Label:        label,
		RiskLevel:    RiskLevel(prob),
		ModelVersion: "heuristic-fallback",
	}
}
