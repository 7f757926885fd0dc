package pipeline

import (
	"context"
	"testing"

	"github.com/medivuehealth/flarecast/internal/ml"
	"github.com/medivuehealth/flarecast/internal/store"
	"github.com/medivuehealth/flarecast/internal/synth"
)

func seededStore(t *testing.T, n int) *store.BoltStore {
	t.Helper()
	s, err := store.OpenBolt(t.TempDir())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	ctx := context.Background()
	for _, r := range synth.New(11).Dataset(n, 0.4) {
		if err := s.AddTraining(ctx, r); err != nil {
			t.Fatalf("add training: %v", err)
		}
	}
	return s
}

func TestRunRejectsTooFewRecords(t *testing.T) {
	s := seededStore(t, 10)
	registry, err := ml.NewRegistry(t.TempDir())
	if err != nil {
		t.Fatalf("registry: %v", err)
	}

	tr := NewTrainer(s, registry, Config{Seed: 1})
	if _, err := tr.Run(context.Background()); err == nil {
		t.Fatal("expected error with 10 records")
	}
}

func TestRunTrainsAndRegisters(t *testing.T) {
	s := seededStore(t, 400)
	registry, err := ml.NewRegistry(t.TempDir())
	if err != nil {
		t.Fatalf("registry: %v", err)
	}

	tr := NewTrainer(s, registry, Config{Seed: 1})
	res, err := tr.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if res.TrainingSamples+res.HoldoutSamples != 400 {
		t.Fatalf("split %d + %d != 400", res.TrainingSamples, res.HoldoutSamples)
	}
	if got, want := len(res.Bundle.Model.Weights), res.Bundle.Preprocessor.Width(); got != want {
		t.Fatalf("weights %d, preprocessor width %d", got, want)
	}

	// Synthetic data carries a strong signal; a trained model must beat
	// chance on its holdout by a wide margin.
	if res.Bundle.Model.Metrics.AUC < 0.7 {
		t.Fatalf("holdout AUC = %v, want >= 0.7", res.Bundle.Model.Metrics.AUC)
	}

	versions := registry.List()
	if len(versions) != 1 || versions[0].Version != res.Version.Version {
		t.Fatalf("registry versions = %+v", versions)
	}
	if _, ok := registry.Active(); ok {
		t.Fatal("training must not auto-activate")
	}

	// The registered artifact must load and serve.
	c := ml.NewClassifier()
	if err := c.Reload(res.Version.Path); err != nil {
		t.Fatalf("reload artifact: %v", err)
	}
	g := synth.New(2)
	var flareMean, calmMean float64
	const n = 20
	for i := 0; i < n; i++ {
		hr, err := c.Predict(g.Observation(true).Normalize())
		if err != nil {
			t.Fatalf("predict: %v", err)
		}
		lr, err := c.Predict(g.Observation(false).Normalize())
		if err != nil {
			t.Fatalf("predict: %v", err)
		}
		flareMean += hr.Probability / n
		calmMean += lr.Probability / n
	}
	if flareMean <= calmMean {
		t.Fatalf("mean flare-day probability %v not above calm-day %v", flareMean, calmMean)
	}
}
