// Package pipeline trains a flare-risk model from labeled records: fit the
// preprocessor, run gradient-descent logistic regression, score a holdout
// split, and register the resulting bundle.
package pipeline

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/medivuehealth/flarecast/internal/features"
	"github.com/medivuehealth/flarecast/internal/ml"
	"github.com/medivuehealth/flarecast/internal/obs"
	"github.com/medivuehealth/flarecast/internal/store"
)

// Config controls a training run.
type Config struct {
	Epochs       int     // gradient passes over the training split
	LearningRate float64
	L2           float64 // ridge penalty
	HoldoutFrac  float64 // fraction reserved for evaluation
	Seed         int64
	MinRecords   int
}

// Defaults fills unset fields.
func (c Config) withDefaults() Config {
	if c.Epochs == 0 {
		c.Epochs = 200
	}
	if c.LearningRate == 0 {
		c.LearningRate = 0.1
	}
	if c.L2 == 0 {
		c.L2 = 1e-4
	}
	if c.HoldoutFrac == 0 {
		c.HoldoutFrac = 0.2
	}
	if c.MinRecords == 0 {
		c.MinRecords = 50
	}
	return c
}

// Result summarizes a completed training run.
type Result struct {
	Bundle          *ml.Bundle
	Version         ml.ArtifactVersion
	TrainingSamples int
	HoldoutSamples  int
}

// Trainer runs the training pipeline against a store and registry.
type Trainer struct {
	store    store.Store
	registry *ml.Registry
	cfg      Config
}

func NewTrainer(s store.Store, r *ml.Registry, cfg Config) *Trainer {
	return &Trainer{store: s, registry: r, cfg: cfg.withDefaults()}
}

// Run trains on the stored labeled records, evaluates on a holdout split,
// and registers (but does not activate) the new bundle. Activation is an
// explicit operator decision.
func (t *Trainer) Run(ctx context.Context) (Result, error) {
	records, err := t.store.Training(ctx, 0)
	if err != nil {
		return Result{}, fmt.Errorf("load training records: %w", err)
	}
	if len(records) < t.cfg.MinRecords {
		return Result{}, fmt.Errorf("training needs at least %d records, have %d", t.cfg.MinRecords, len(records))
	}

	rng := rand.New(rand.NewSource(t.cfg.Seed))
	shuffled := make([]store.TrainingRecord, len(records))
	copy(shuffled, records)
	rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

	holdoutN := int(float64(len(shuffled)) * t.cfg.HoldoutFrac)
	if holdoutN < 1 {
		holdoutN = 1
	}
	holdout, training := shuffled[:holdoutN], shuffled[holdoutN:]

	trainObs := make([]obs.Observation, len(training))
	trainLabels := make([]int, len(training))
	for i, r := range training {
		trainObs[i] = r.Observation.Normalize()
		trainLabels[i] = r.Label
	}

	pre := features.Fit(trainObs)
	trainVecs, err := pre.TransformBatch(trainObs)
	if err != nil {
		return Result{}, fmt.Errorf("encode training split: %w", err)
	}

	weights, intercept := fitLogistic(trainVecs, trainLabels, t.cfg)

	// Score the holdout split the model never saw.
	holdoutLabels := make([]int, len(holdout))
	holdoutProbs := make([]float64, len(holdout))
	for i, r := range holdout {
		vec, err := pre.Transform(r.Observation.Normalize())
		if err != nil {
			return Result{}, fmt.Errorf("encode holdout record: %w", err)
		}
		holdoutLabels[i] = r.Label
		holdoutProbs[i] = logistic(weights, intercept, vec)
	}
	metrics, _ := ml.Evaluate(holdoutLabels, holdoutProbs, ml.DecisionThreshold)

	bundle := &ml.Bundle{
		Model: ml.Model{
			Version:   time.Now().UTC().Format("20060102-150405"),
			TrainedAt: time.Now().UTC(),
			Weights:   weights,
			Intercept: intercept,
			Metrics:   metrics,
		},
		Preprocessor: pre,
	}

	version, err := t.registry.Register(bundle, len(training))
	if err != nil {
		return Result{}, fmt.Errorf("register bundle: %w", err)
	}

	log.Info().
		Str("version", version.Version).
		Int("training_samples", len(training)).
		Int("holdout_samples", len(holdout)).
		Float64("holdout_auc", metrics.AUC).
		Float64("holdout_f1", metrics.F1).
		Msg("training run complete")

	return Result{
		Bundle:          bundle,
		Version:         version,
		TrainingSamples: len(training),
		HoldoutSamples:  len(holdout),
	}, nil
}

// fitLogistic runs full-batch gradient descent with L2 regularization.
func fitLogistic(vecs [][]float64, labels []int, cfg Config) ([]float64, float64) {
	width := 0
	if len(vecs) > 0 {
		width = len(vecs[0])
	}
	weights := make([]float64, width)
	intercept := 0.0
	n := float64(len(vecs))

	for epoch := 0; epoch < cfg.Epochs; epoch++ {
		gradW := make([]float64, width)
		gradB := 0.0
		for i, vec := range vecs {
			err := logistic(weights, intercept, vec) - float64(labels[i])
			for j, x := range vec {
				gradW[j] += err * x
			}
			gradB += err
		}
		for j := range weights {
			weights[j] -= cfg.LearningRate * (gradW[j]/n + cfg.L2*weights[j])
		}
		intercept -= cfg.LearningRate * gradB / n
	}
	return weights, intercept
}

func logistic(weights []float64, intercept float64, vec []float64) float64 {
	z := intercept
	for i, w := range weights {
		z += w * vec[i]
	}
	return 1 / (1 + math.Exp(-z))
}
