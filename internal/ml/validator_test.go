package ml

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/medivuehealth/flarecast/internal/apperr"
	"github.com/medivuehealth/flarecast/internal/store"
)

// memStore is an in-memory store.Store for validator tests.
type memStore struct {
	predictions map[string]store.Prediction
	validations []store.ValidationRecord
	training    []store.TrainingRecord
}

func newMemStore() *memStore {
	return &memStore{predictions: make(map[string]store.Prediction)}
}

func (m *memStore) Record(_ context.Context, p store.Prediction) error {
	m.predictions[p.ID] = p
	return nil
}

func (m *memStore) Get(_ context.Context, id string) (store.Prediction, error) {
	p, ok := m.predictions[id]
	if !ok {
		return store.Prediction{}, apperr.NotFound("prediction", id)
	}
	return p, nil
}

func (m *memStore) AttachOutcome(_ context.Context, id string, o store.Outcome) error {
	p, ok := m.predictions[id]
	if !ok {
		return apperr.NotFound("prediction", id)
	}
	p.Outcome = &o
	m.predictions[id] = p
	return nil
}

func (m *memStore) List(_ context.Context, q store.Query) ([]store.Prediction, error) {
	var out []store.Prediction
	for _, p := range m.predictions {
		if q.UserID != "" && p.UserID != q.UserID {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (m *memStore) Verified(_ context.Context, start, end time.Time) ([]store.Prediction, error) {
	var out []store.Prediction
	for _, p := range m.predictions {
		if p.Outcome == nil {
			continue
		}
		if p.Timestamp.Before(start) || !p.Timestamp.Before(end) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out, nil
}

func (m *memStore) AppendValidation(_ context.Context, v store.ValidationRecord) error {
	m.validations = append(m.validations, v)
	return nil
}

func (m *memStore) ValidationHistory(_ context.Context, limit int) ([]store.ValidationRecord, error) {
	out := make([]store.ValidationRecord, len(m.validations))
	copy(out, m.validations)
	sort.Slice(out, func(i, j int) bool { return out[i].RunAt.After(out[j].RunAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) AddTraining(_ context.Context, r store.TrainingRecord) error {
	m.training = append(m.training, r)
	return nil
}

func (m *memStore) Training(_ context.Context, limit int) ([]store.TrainingRecord, error) {
	out := m.training
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) Close() error { return nil }

func verifiedPrediction(ts time.Time, prob float64, flare bool) store.Prediction {
	label := 0
	if prob >= DecisionThreshold {
		label = 1
	}
	return store.Prediction{
		ID:          uuid.NewString(),
		UserID:      "u1",
		Timestamp:   ts,
		Probability: prob,
		Label:       label,
		RiskLevel:   RiskLevel(prob),
		Outcome:     &store.Outcome{FlareOccurred: flare, ReportedAt: ts.Add(24 * time.Hour)},
	}
}

func TestValidateInsufficientData(t *testing.T) {
	s := newMemStore()
	v := NewValidator(s, NewClassifier())

	rec, err := v.ValidateDays(context.Background(), 7)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !rec.Insufficient {
		t.Fatal("empty window must yield an insufficient-data record")
	}
	if rec.SampleCount != 0 {
		t.Fatalf("sample count = %d, want 0", rec.SampleCount)
	}
	if rec.Metrics != (store.MetricSet{}) {
		t.Fatalf("insufficient record carries metrics: %+v", rec.Metrics)
	}
	if len(s.validations) != 1 {
		t.Fatalf("history length = %d, want 1", len(s.validations))
	}
}

func TestValidateScoresVerifiedWindow(t *testing.T) {
	s := newMemStore()
	now := time.Now().UTC()
	ctx := context.Background()

	for i, tc := range []struct {
		prob  float64
		flare bool
	}{
		{0.9, true}, {0.8, true}, {0.2, false}, {0.1, false},
	} {
		p := verifiedPrediction(now.Add(-time.Duration(i+1)*time.Hour), tc.prob, tc.flare)
		if err := s.Record(ctx, p); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	// A prediction without an outcome must not enter the window.
	unverified := verifiedPrediction(now.Add(-30*time.Minute), 0.99, true)
	unverified.Outcome = nil
	if err := s.Record(ctx, unverified); err != nil {
		t.Fatalf("record: %v", err)
	}

	v := NewValidator(s, NewClassifier())
	rec, err := v.ValidateDays(ctx, 7)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if rec.Insufficient {
		t.Fatal("window with verified predictions reported insufficient")
	}
	if rec.SampleCount != 4 {
		t.Fatalf("sample count = %d, want 4", rec.SampleCount)
	}
	if rec.Metrics.Accuracy != 1 || rec.Metrics.AUC != 1 {
		t.Fatalf("metrics = %+v, want perfect scores", rec.Metrics)
	}
	if rec.Confusion.TruePositives != 2 || rec.Confusion.TrueNegatives != 2 {
		t.Fatalf("confusion = %+v", rec.Confusion)
	}
}

func TestDetectDriftRequiresHistory(t *testing.T) {
	s := newMemStore()
	v := NewValidator(s, NewClassifier())
	ctx := context.Background()

	report, err := v.DetectDrift(ctx, 0.1)
	if err != nil {
		t.Fatalf("drift: %v", err)
	}
	if !report.InsufficientHistory {
		t.Fatal("empty history must report insufficient history")
	}
	if report.DriftDetected {
		t.Fatal("insufficient history must never claim drift")
	}

	// One scored run is still not enough.
	appendValidation(s, time.Now().UTC().Add(-time.Hour), store.MetricSet{AUC: 0.8}, false)
	report, err = v.DetectDrift(ctx, 0.1)
	if err != nil {
		t.Fatalf("drift: %v", err)
	}
	if !report.InsufficientHistory || report.DriftDetected {
		t.Fatalf("one-run history: %+v", report)
	}
}

func TestDetectDriftSkipsInsufficientRuns(t *testing.T) {
	s := newMemStore()
	now := time.Now().UTC()
	appendValidation(s, now.Add(-3*time.Hour), store.MetricSet{Accuracy: 0.9, AUC: 0.9}, false)
	appendValidation(s, now.Add(-2*time.Hour), store.MetricSet{}, true) // insufficient, no metrics
	appendValidation(s, now.Add(-1*time.Hour), store.MetricSet{Accuracy: 0.88, AUC: 0.89}, false)

	v := NewValidator(s, NewClassifier())
	report, err := v.DetectDrift(context.Background(), 0.1)
	if err != nil {
		t.Fatalf("drift: %v", err)
	}
	if report.InsufficientHistory {
		t.Fatal("two scored runs exist; history is sufficient")
	}
	if report.DriftDetected {
		t.Fatalf("small changes flagged as drift: %+v", report.Deltas)
	}
}

func TestDriftThresholdBoundaryInclusive(t *testing.T) {
	ctx := context.Background()

	// Δ = 0.09 stays quiet.
	s := newMemStore()
	now := time.Now().UTC()
	appendValidation(s, now.Add(-2*time.Hour), store.MetricSet{AUC: 0.80}, false)
	appendValidation(s, now.Add(-1*time.Hour), store.MetricSet{AUC: 0.89}, false)

	v := NewValidator(s, NewClassifier())
	report, err := v.DetectDrift(ctx, 0.1)
	if err != nil {
		t.Fatalf("drift: %v", err)
	}
	if report.DriftDetected {
		t.Fatalf("Δ=0.09 flagged as drift: %+v", report.Deltas)
	}

	// Δ = 0.10 is drift: the boundary is inclusive.
	s = newMemStore()
	appendValidation(s, now.Add(-2*time.Hour), store.MetricSet{AUC: 0.80}, false)
	appendValidation(s, now.Add(-1*time.Hour), store.MetricSet{AUC: 0.90}, false)

	v = NewValidator(s, NewClassifier())
	report, err = v.DetectDrift(ctx, 0.1)
	if err != nil {
		t.Fatalf("drift: %v", err)
	}
	if !report.DriftDetected {
		t.Fatal("Δ=0.10 must be drift")
	}
	for _, d := range report.Deltas {
		if d.Metric == "auc" && !d.Drifted {
			t.Fatalf("auc delta not flagged: %+v", d)
		}
	}
}

func appendValidation(s *memStore, runAt time.Time, m store.MetricSet, insufficient bool) {
	s.validations = append(s.validations, store.ValidationRecord{
		ID:           uuid.NewString(),
		RunAt:        runAt,
		Insufficient: insufficient,
		Metrics:      m,
		SampleCount:  10,
	})
}
