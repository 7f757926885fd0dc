package synth

import (
	"testing"

	"github.com/medivuehealth/flarecast/internal/obs"
)

func TestGeneratedObservationsValidate(t *testing.T) {
	g := New(1)
	for i := 0; i < 200; i++ {
		o := g.Observation(i%2 == 0).Normalize()
		if err := obs.Validate(o); err != nil {
			t.Fatalf("generated observation %d invalid: %v", i, err)
		}
	}
}

func TestGeneratorReproducible(t *testing.T) {
	a := New(42).Dataset(50, 0.4)
	b := New(42).Dataset(50, 0.4)

	if len(a) != len(b) {
		t.Fatalf("lengths differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i].Label != b[i].Label || a[i].Observation != b[i].Observation {
			t.Fatalf("record %d differs across identical seeds", i)
		}
	}
}

func TestDatasetHasBothClasses(t *testing.T) {
	records := New(7).Dataset(300, 0.4)

	pos, neg := 0, 0
	for _, r := range records {
		if r.Label == 1 {
			pos++
		} else {
			neg++
		}
	}
	if pos == 0 || neg == 0 {
		t.Fatalf("degenerate dataset: %d positive, %d negative", pos, neg)
	}
}

func TestFlareObservationsScoreHigher(t *testing.T) {
	g := New(3)
	var flareSum, calmSum float64
	const n = 200
	for i := 0; i < n; i++ {
		flareSum += RiskScore(g.Observation(true))
		calmSum += RiskScore(g.Observation(false))
	}
	if flareSum/n <= calmSum/n {
		t.Fatalf("mean flare score %v not above calm %v", flareSum/n, calmSum/n)
	}
}
