// Package store persists predictions, reported outcomes, validation results,
// and training records. Two backends implement the same interface: an
// embedded bbolt file for single-node deployments and training runs, and
// PostgreSQL for the hosted service.
package store

import (
	"context"
	"time"

	"github.com/medivuehealth/flarecast/internal/obs"
)

// Prediction is one classifier decision, recorded append-only at serving
// time. Outcome stays nil until a follow-up report arrives.
type Prediction struct {
	ID           string          `json:"id"`
	UserID       string          `json:"user_id"`
	Timestamp    time.Time       `json:"timestamp"`
	Observation  obs.Observation `json:"observation"`
	Probability  float64         `json:"probability"`
	Label        int             `json:"label"`
	RiskLevel    string          `json:"risk_level"`
	ModelVersion string          `json:"model_version"`
	Outcome      *Outcome        `json:"outcome,omitempty"`
}

// Outcome is the ground-truth follow-up for a prediction: whether a flare
// actually occurred in the horizon window, plus optional clinical detail
// from the report. Notes must be PHI-scrubbed before they reach the store.
type Outcome struct {
	FlareOccurred bool      `json:"flare_occurred"`
	ReportedAt    time.Time `json:"reported_at"`
	Source        string    `json:"source,omitempty"`
	Symptoms      []string  `json:"symptoms,omitempty"`
	Severity      int       `json:"severity,omitempty"`
	DurationDays  int       `json:"duration_days,omitempty"`
	Notes         string    `json:"notes,omitempty"`
}

// MetricSet is one evaluation of the classifier against verified outcomes.
type MetricSet struct {
	Accuracy  float64 `json:"accuracy"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
	AUC       float64 `json:"auc"`
}

// Confusion is the 2x2 confusion matrix of a validation run.
type Confusion struct {
	TruePositives  int `json:"true_positives"`
	FalsePositives int `json:"false_positives"`
	TrueNegatives  int `json:"true_negatives"`
	FalseNegatives int `json:"false_negatives"`
}

// ValidationRecord is one validation run over a window of verified
// predictions. Insufficient marks runs that had too few samples to score;
// their metrics are zero-valued and must not be compared for drift.
type ValidationRecord struct {
	ID           string    `json:"id"`
	RunAt        time.Time `json:"run_at"`
	WindowStart  time.Time `json:"window_start"`
	WindowEnd    time.Time `json:"window_end"`
	SampleCount  int       `json:"sample_count"`
	Insufficient bool      `json:"insufficient"`
	Metrics      MetricSet `json:"metrics"`
	Confusion    Confusion `json:"confusion"`
	ModelVersion string    `json:"model_version"`
}

// TrainingRecord is one labeled observation retained for model training.
type TrainingRecord struct {
	ID          string          `json:"id"`
	UserID      string          `json:"user_id"`
	Timestamp   time.Time       `json:"timestamp"`
	Observation obs.Observation `json:"observation"`
	Label       int             `json:"label"`
}

// Query filters a prediction listing. Zero values mean "no constraint";
// results are always newest-first.
type Query struct {
	UserID string
	Since  time.Time
	Limit  int
}

// Store is the persistence contract shared by both backends.
//
// Record is append-only: a stored prediction is never updated except by
// AttachOutcome, which sets the outcome exactly once. A repeat report that
// agrees on the flare outcome is accepted idempotently (the first report's
// details are kept); a report that disagrees is rejected.
type Store interface {
	Record(ctx context.Context, p Prediction) error
	Get(ctx context.Context, id string) (Prediction, error)
	AttachOutcome(ctx context.Context, predictionID string, o Outcome) error
	List(ctx context.Context, q Query) ([]Prediction, error)
	// Verified returns predictions in [start, end) that have an outcome
	// attached, newest-first.
	Verified(ctx context.Context, start, end time.Time) ([]Prediction, error)

	AppendValidation(ctx context.Context, v ValidationRecord) error
	// ValidationHistory returns the most recent validation runs,
	// newest-first, at most limit entries.
	ValidationHistory(ctx context.Context, limit int) ([]ValidationRecord, error)

	AddTraining(ctx context.Context, r TrainingRecord) error
	Training(ctx context.Context, limit int) ([]TrainingRecord, error)

	Close() error
}
