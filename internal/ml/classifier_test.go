package ml

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/medivuehealth/flarecast/internal/apperr"
	"github.com/medivuehealth/flarecast/internal/features"
	"github.com/medivuehealth/flarecast/internal/obs"
)

func baselineObservation() obs.Observation {
	return obs.Observation{
		Calories:        2000,
		Protein:         80,
		Carbs:           250,
		Fiber:           25,
		MealsPerDay:     3,
		HydrationLevel:  6,
		BowelFrequency:  2,
		BristolScale:    4,
		UrgencyLevel:    2,
		PainSeverity:    1,
		SleepHours:      7.5,
		StressLevel:     2,
		FatigueLevel:    2,
		HasAllergens:    "no",
		BloodPresent:    "no",
		PainLocation:    "none",
		PainTime:        "none",
		MedicationTaken: "no",
		MedicationType:  "none",
		Menstruation:    "not_applicable",
	}
}

// testBundle builds a deterministic bundle whose weights load on the symptom
// columns, so high symptom values push probability up.
func testBundle(t *testing.T) *Bundle {
	t.Helper()

	low := baselineObservation()
	high := baselineObservation()
	high.PainSeverity = 9
	high.BowelFrequency = 8
	high.UrgencyLevel = 8
	high.StressLevel = 8
	high.BloodPresent = "yes"

	p := features.Fit([]obs.Observation{low, high})

	weights := make([]float64, p.Width())
	for i, name := range p.ColumnNames() {
		switch name {
		case "pain_severity", "bowel_frequency", "urgency_level", "stress_level":
			weights[i] = 1.0
		case "blood_present=yes":
			weights[i] = 0.8
		}
	}
	return &Bundle{
		Model: Model{
			Version:   "test-1",
			TrainedAt: time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
			Weights:   weights,
			Intercept: -0.5,
		},
		Preprocessor: p,
	}
}

func TestPredictWithoutBundle(t *testing.T) {
	c := NewClassifier()

	_, err := c.Predict(baselineObservation())
	if !errors.Is(err, apperr.ErrModelNotLoaded) {
		t.Fatalf("err = %v, want ErrModelNotLoaded", err)
	}
}

func TestPredictVectorWidthMismatch(t *testing.T) {
	c := NewClassifier()
	c.Bind(testBundle(t))

	_, err := c.PredictVector([]float64{1, 2, 3})
	if !errors.Is(err, apperr.ErrFeatureMism) {
		t.Fatalf("err = %v, want ErrFeatureMism", err)
	}
}

func TestLabelFollowsThreshold(t *testing.T) {
	c := NewClassifier()
	c.Bind(testBundle(t))

	low := baselineObservation()
	high := baselineObservation()
	high.PainSeverity = 9
	high.BowelFrequency = 8
	high.UrgencyLevel = 8
	high.StressLevel = 8
	high.BloodPresent = "yes"

	for _, o := range []obs.Observation{low, high} {
		r, err := c.Predict(o)
		if err != nil {
			t.Fatalf("predict: %v", err)
		}
		wantLabel := 0
		if r.Probability >= DecisionThreshold {
			wantLabel = 1
		}
		if r.Label != wantLabel {
			t.Fatalf("label = %d for probability %v", r.Label, r.Probability)
		}
	}
}

func TestHighRiskScoresAboveLowRisk(t *testing.T) {
	c := NewClassifier()
	c.Bind(testBundle(t))

	low := baselineObservation()
	low.PainSeverity = 1
	low.BowelFrequency = 2
	low.UrgencyLevel = 2
	low.StressLevel = 2
	low.BloodPresent = "no"

	high := baselineObservation()
	high.PainSeverity = 9
	high.BowelFrequency = 8
	high.UrgencyLevel = 8
	high.StressLevel = 8
	high.BloodPresent = "yes"

	lowRes, err := c.Predict(low)
	if err != nil {
		t.Fatalf("predict low: %v", err)
	}
	highRes, err := c.Predict(high)
	if err != nil {
		t.Fatalf("predict high: %v", err)
	}
	if highRes.Probability <= lowRes.Probability {
		t.Fatalf("high-risk probability %v not above low-risk %v", highRes.Probability, lowRes.Probability)
	}
}

func TestRiskLevelBands(t *testing.T) {
	cases := []struct {
		prob float64
		want string
	}{
		{0.0, "low"},
		{0.29, "low"},
		{0.3, "medium"},
		{0.69, "medium"},
		{0.7, "high"},
		{1.0, "high"},
	}
	for _, tc := range cases {
		if got := RiskLevel(tc.prob); got != tc.want {
			t.Errorf("RiskLevel(%v) = %q, want %q", tc.prob, got, tc.want)
		}
	}
}

func TestBundleRoundTripsThroughDisk(t *testing.T) {
	b := testBundle(t)
	path := filepath.Join(t.TempDir(), "bundle.json")
	if err := b.Save(path); err != nil {
		t.Fatalf("save: %v", err)
	}

	c := NewClassifier()
	if err := c.Reload(path); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got := c.Version(); got != "test-1" {
		t.Fatalf("version = %q, want test-1", got)
	}

	o := baselineObservation()
	want, err := (&Classifier{bundle: b}).Predict(o)
	if err != nil {
		t.Fatalf("predict original: %v", err)
	}
	got, err := c.Predict(o)
	if err != nil {
		t.Fatalf("predict reloaded: %v", err)
	}
	if got.Probability != want.Probability || got.Label != want.Label {
		t.Fatalf("reloaded prediction %+v, want %+v", got, want)
	}
}

func TestLoadBundleRejectsWidthMismatch(t *testing.T) {
	b := testBundle(t)
	b.Model.Weights = b.Model.Weights[:len(b.Model.Weights)-1]

	path := filepath.Join(t.TempDir(), "bundle.json")
	if err := b.Save(path); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := LoadBundle(path); err == nil {
		t.Fatal("expected error for weight/column mismatch")
	}
}

func TestFallbackOrdersRisk(t *testing.T) {
	var f FallbackScorer

	low := baselineObservation()
	high := baselineObservation()
	high.PainSeverity = 9
	high.BowelFrequency = 8
	high.UrgencyLevel = 8
	high.StressLevel = 8
	high.BloodPresent = "yes"

	if f.Score(high) <= f.Score(low) {
		t.Fatalf("fallback: high-risk score %v not above low-risk %v", f.Score(high), f.Score(low))
	}
	if s := f.Score(high); s < 0 || s > 1 {
		t.Fatalf("score %v outside [0,1]", s)
	}
}
