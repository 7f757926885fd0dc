// Package ml holds the flare-risk classifier, its evaluation and drift
// checks, the trained-artifact registry, and the heuristic fallback scorer.
package ml

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/medivuehealth/flarecast/internal/apperr"
	"github.com/medivuehealth/flarecast/internal/features"
	"github.com/medivuehealth/flarecast/internal/obs"
	"github.com/medivuehealth/flarecast/internal/store"
)

// DecisionThreshold is the probability above which (inclusive) an
// observation is classified as a flare.
const DecisionThreshold = 0.5

// Model is the trained logistic model inside a bundle. Weights are in the
// column order of the bundled preprocessor.
type Model struct {
	Version   string          `json:"version"`
	TrainedAt time.Time       `json:"trained_at"`
	Weights   []float64       `json:"weights"`
	Intercept float64         `json:"intercept"`
	Metrics   store.MetricSet `json:"metrics"`
}

// Bundle pairs a model with the exact preprocessor it was trained with.
// They load and swap as one unit; a model is never served against a
// preprocessor from a different training run.
type Bundle struct {
	Model        Model                  `json:"model"`
	Preprocessor *features.Preprocessor `json:"preprocessor"`
}

// LoadBundle reads a bundle artifact from disk and checks that the model
// width matches the preprocessor output.
func LoadBundle(path string) (*Bundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read bundle: %w", err)
	}
	var b Bundle
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("parse bundle %s: %w", path, err)
	}
	if b.Preprocessor == nil {
		return nil, fmt.Errorf("bundle %s has no preprocessor state", path)
	}
	if got, want := len(b.Model.Weights), b.Preprocessor.Width(); got != want {
		return nil, fmt.Errorf("bundle %s: %d weights for %d feature columns", path, got, want)
	}
	return &b, nil
}

// Save writes the bundle artifact to disk.
func (b *Bundle) Save(path string) error {
	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Result is one classifier decision.
type Result struct {
	Probability  float64 `json:"probability"`
	Label        int     `json:"label"`
	RiskLevel    string  `json:"risk_level"`
	ModelVersion string  `json:"model_version"`
}

// Classifier serves flare-risk predictions from the currently bound bundle.
// Bind and Predict are safe for concurrent use; a reload swaps the bundle
// atomically so in-flight predictions finish against the old one.
type Classifier struct {
	mu     sync.RWMutex
	bundle *Bundle
}

func NewClassifier() *Classifier {
	return &Classifier{}
}

// Bind makes the bundle the serving model.
func (c *Classifier) Bind(b *Bundle) {
	c.mu.Lock()
	c.bundle = b
	c.mu.Unlock()
	log.Info().
		Str("version", b.Model.Version).
		Time("trained_at", b.Model.TrainedAt).
		Int("features", b.Preprocessor.Width()).
		Msg("model bundle bound")
}

// Reload loads a bundle from disk and binds it.
func (c *Classifier) Reload(path string) error {
	b, err := LoadBundle(path)
	if err != nil {
		return err
	}
	c.Bind(b)
	return nil
}

// Loaded reports whether a bundle is bound.
func (c *Classifier) Loaded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.bundle != nil
}

// Version returns the bound model version, or "" when nothing is loaded.
func (c *Classifier) Version() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.bundle == nil {
		return ""
	}
	return c.bundle.Model.Version
}

// Info returns the bound model's metadata.
func (c *Classifier) Info() (Model, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.bundle == nil {
		return Model{}, apperr.ModelNotLoaded()
	}
	return c.bundle.Model, nil
}

// Predict transforms the observation with the bound preprocessor and scores
// it. The caller is expected to have validated the observation already.
func (c *Classifier) Predict(o obs.Observation) (Result, error) {
	c.mu.RLock()
	b := c.bundle
	c.mu.RUnlock()

	if b == nil {
		return Result{}, apperr.ModelNotLoaded()
	}

	vec, err := b.Preprocessor.Transform(o)
	if err != nil {
		return Result{}, err
	}
	return b.score(vec)
}

// PredictVector scores an already-encoded feature vector.
func (c *Classifier) PredictVector(vec []float64) (Result, error) {
	c.mu.RLock()
	b := c.bundle
	c.mu.RUnlock()

	if b == nil {
		return Result{}, apperr.ModelNotLoaded()
	}
	return b.score(vec)
}

func (b *Bundle) score(vec []float64) (Result, error) {
	if len(vec) != len(b.Model.Weights) {
		return Result{}, apperr.FeatureMismatch(len(vec), len(b.Model.Weights))
	}
	z := b.Model.Intercept
	for i, w := range b.Model.Weights {
		z += w * vec[i]
	}
	prob := sigmoid(z)

	label := 0
	if prob >= DecisionThreshold {
		label = 1
	}
	return Result{
		Probability:  prob,
		Label:        label,
		RiskLevel:    RiskLevel(prob),
		ModelVersion: b.Model.Version,
	}, nil
}

// RiskLevel buckets a probability into the coarse bands shown to patients.
func RiskLevel(prob float64) string {
	switch {
	case prob >= 0.7:
		return "high"
	case prob >= 0.3:
		return "medium"
	default:
		return "low"
	}
}

func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}
