package ml

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/medivuehealth/flarecast/internal/store"
)

// DefaultDriftThreshold is the absolute per-metric change that counts as
// drift between two consecutive validation runs.
const DefaultDriftThreshold = 0.1

// MinValidationSamples is the smallest verified window that produces real
// metrics. Below it a run is recorded as insufficient.
const MinValidationSamples = 2

// driftEpsilon absorbs float64 subtraction noise so the threshold boundary
// stays inclusive (0.90-0.80 computes to just under 0.10).
const driftEpsilon = 1e-9

// Validator recomputes classifier performance over verified predictions and
// compares consecutive runs for drift. It only reads predictions and appends
// validation records; it never blocks serving writes.
type Validator struct {
	store      store.Store
	classifier *Classifier
}

func NewValidator(s store.Store, c *Classifier) *Validator {
	return &Validator{store: s, classifier: c}
}

// Validate scores every prediction in [start, end) that has an outcome
// attached and appends the result to validation history. A window with too
// few verified predictions yields an insufficient-data record with
// zero-valued metrics; that record is distinct from, and never confused
// with, a window where the model scored zero.
func (v *Validator) Validate(ctx context.Context, start, end time.Time) (store.ValidationRecord, error) {
	verified, err := v.store.Verified(ctx, start, end)
	if err != nil {
		return store.ValidationRecord{}, err
	}

	rec := store.ValidationRecord{
		ID:           uuid.NewString(),
		RunAt:        time.Now().UTC(),
		WindowStart:  start,
		WindowEnd:    end,
		SampleCount:  len(verified),
		ModelVersion: v.classifier.Version(),
	}

	if len(verified) < MinValidationSamples {
		rec.Insufficient = true
		log.Warn().
			Int("samples", len(verified)).
			Time("window_start", start).
			Time("window_end", end).
			Msg("validation window has insufficient verified predictions")
		if err := v.store.AppendValidation(ctx, rec); err != nil {
			return store.ValidationRecord{}, err
		}
		return rec, nil
	}

	labels := make([]int, len(verified))
	probs := make([]float64, len(verified))
	for i, p := range verified {
		if p.Outcome.FlareOccurred {
			labels[i] = 1
		}
		probs[i] = p.Probability
	}
	rec.Metrics, rec.Confusion = Evaluate(labels, probs, DecisionThreshold)

	log.Info().
		Int("samples", rec.SampleCount).
		Float64("accuracy", rec.Metrics.Accuracy).
		Float64("auc", rec.Metrics.AUC).
		Str("model_version", rec.ModelVersion).
		Msg("validation run complete")

	if err := v.store.AppendValidation(ctx, rec); err != nil {
		return store.ValidationRecord{}, err
	}
	return rec, nil
}

// ValidateDays validates the trailing N-day window ending now.
func (v *Validator) ValidateDays(ctx context.Context, days int) (store.ValidationRecord, error) {
	end := time.Now().UTC()
	return v.Validate(ctx, end.AddDate(0, 0, -days), end)
}

// MetricDelta is the change of one metric between two validation runs.
type MetricDelta struct {
	Metric   string  `json:"metric"`
	Previous float64 `json:"previous"`
	Current  float64 `json:"current"`
	Change   float64 `json:"change"`
	Drifted  bool    `json:"drifted"`
}

// DriftReport is the outcome of comparing the two most recent scored
// validation runs. InsufficientHistory means fewer than two scored runs
// exist; it is a distinct state, not a drift verdict.
type DriftReport struct {
	DriftDetected       bool          `json:"drift_detected"`
	InsufficientHistory bool          `json:"insufficient_history"`
	Threshold           float64       `json:"threshold"`
	Deltas              []MetricDelta `json:"deltas,omitempty"`
	CurrentRunAt        time.Time     `json:"current_run_at,omitempty"`
	PreviousRunAt       time.Time     `json:"previous_run_at,omitempty"`
}

// DetectDrift compares the latest scored validation run against the one
// before it and flags any metric whose absolute change reaches the
// threshold. The boundary is inclusive: a change exactly equal to the
// threshold is drift. Insufficient-data runs carry no metrics and are
// skipped, not compared.
func (v *Validator) DetectDrift(ctx context.Context, threshold float64) (DriftReport, error) {
	if threshold <= 0 {
		threshold = DefaultDriftThreshold
	}

	history, err := v.store.ValidationHistory(ctx, 50)
	if err != nil {
		return DriftReport{}, err
	}

	scored := make([]store.ValidationRecord, 0, 2)
	for _, rec := range history { // newest-first
		if !rec.Insufficient {
			scored = append(scored, rec)
		}
		if len(scored) == 2 {
			break
		}
	}

	if len(scored) < 2 {
		return DriftReport{InsufficientHistory: true, Threshold: threshold}, nil
	}

	current, previous := scored[0], scored[1]
	report := DriftReport{
		Threshold:     threshold,
		CurrentRunAt:  current.RunAt,
		PreviousRunAt: previous.RunAt,
	}

	pairs := []struct {
		name       string
		prev, curr float64
	}{
		{"accuracy", previous.Metrics.Accuracy, current.Metrics.Accuracy},
		{"precision", previous.Metrics.Precision, current.Metrics.Precision},
		{"recall", previous.Metrics.Recall, current.Metrics.Recall},
		{"f1", previous.Metrics.F1, current.Metrics.F1},
		{"auc", previous.Metrics.AUC, current.Metrics.AUC},
	}
	for _, p := range pairs {
		change := math.Abs(p.curr - p.prev)
		drifted := change+driftEpsilon >= threshold
		report.Deltas = append(report.Deltas, MetricDelta{
			Metric:   p.name,
			Previous: p.prev,
			Current:  p.curr,
			Change:   change,
			Drifted:  drifted,
		})
		if drifted {
			report.DriftDetected = true
		}
	}

	if report.DriftDetected {
		log.Warn().
			Float64("threshold", threshold).
			Time("current_run", current.RunAt).
			Time("previous_run", previous.RunAt).
			Msg("model drift detected between validation runs")
	}
	return report, nil
}
