// Package synth generates labeled synthetic observations for training and
// testing. Labels follow a weighted symptom risk score, so generated data
// carries a learnable signal rather than pure noise.
package synth

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/medivuehealth/flarecast/internal/obs"
	"github.com/medivuehealth/flarecast/internal/store"
)

// Generator produces synthetic observations from a seeded source, so runs
// are reproducible.
type Generator struct {
	rng *rand.Rand
}

func New(seed int64) *Generator {
	return &Generator{rng: rand.New(rand.NewSource(seed))}
}

// Symptom weights behind the synthetic label.
const (
	painWeight    = 0.30
	bowelWeight   = 0.20
	urgencyWeight = 0.15
	stressWeight  = 0.15
	fatigueWeight = 0.10
	bloodWeight   = 0.10
)

func pick[T any](rng *rand.Rand, values []T) T {
	return values[rng.Intn(len(values))]
}

// Observation generates one random observation. flare biases symptom fields
// toward their high ends so the two classes are separable.
func (g *Generator) Observation(flare bool) obs.Observation {
	r := g.rng

	// Uniform in [low, high), shifted up for flare days.
	span := func(low, high float64, shift float64) float64 {
		v := low + r.Float64()*(high-low)
		if flare {
			v += shift
			if v > high {
				v = high
			}
		}
		return v
	}

	o := obs.Observation{
		Calories:       span(1400, 2800, 0),
		Protein:        span(40, 140, 0),
		Carbs:          span(120, 400, 0),
		Fiber:          span(5, 45, -10),
		MealsPerDay:    float64(2 + r.Intn(4)),
		HydrationLevel: span(2, 10, -2),
		BowelFrequency: span(1, 5, 6),
		BristolScale:   span(2, 5, 2),
		UrgencyLevel:   span(0, 4, 5),
		PainSeverity:   span(0, 4, 5),
		SleepHours:     span(5, 9, -1.5),
		StressLevel:    span(1, 5, 4),
		FatigueLevel:   span(1, 5, 4),
	}

	o.HasAllergens = obs.Category(pick(r, []string{"yes", "no"}))
	o.BloodPresent = "no"
	if flare && r.Float64() < 0.6 {
		o.BloodPresent = "yes"
	}
	if flare {
		o.PainLocation = obs.Category(pick(r, []string{"lower_abdomen", "entire_abdomen", "left_side", "right_side"}))
		o.PainTime = obs.Category(pick(r, []string{"morning", "afternoon", "evening", "night"}))
	} else {
		o.PainLocation = "none"
		o.PainTime = "none"
	}

	o.MedicationType = obs.Category(pick(r, []string{"none", "mesalamine", "steroid", "biologic", "immunosuppressant"}))
	switch o.MedicationType {
	case "none":
		o.MedicationTaken = "no"
		o.DosageLevel = ""
	case "steroid":
		o.MedicationTaken = "yes"
		o.DosageLevel = obs.Dosage(pick(r, []string{"5", "10", "20", "40"}))
	case "biologic":
		o.MedicationTaken = "yes"
		o.DosageLevel = obs.Dosage(pick(r, []string{"every_2_weeks", "every_4_weeks", "every_8_weeks"}))
	case "immunosuppressant":
		o.MedicationTaken = "yes"
		o.DosageLevel = obs.Dosage(pick(r, []string{"daily", "twice_daily", "weekly"}))
	default:
		o.MedicationTaken = "yes"
		o.DosageLevel = ""
	}

	o.Menstruation = obs.Category(pick(r, []string{"yes", "no", "not_applicable"}))

	// Bound everything back into documented ranges.
	clamp := func(v *float64, low, high float64) {
		if *v < low {
			*v = low
		}
		if *v > high {
			*v = high
		}
	}
	clamp(&o.Fiber, 0, 100)
	clamp(&o.HydrationLevel, 0, 10)
	clamp(&o.BristolScale, 1, 7)
	clamp(&o.SleepHours, 0, 24)

	return o
}

// RiskScore is the weighted symptom score behind the synthetic label.
func RiskScore(o obs.Observation) float64 {
	blood := 0.0
	if o.BloodPresent == "yes" {
		blood = 1
	}
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

// Dataset generates n labeled training records with roughly the given
// positive rate.
func (g *Generator) Dataset(n int, positiveRate float64) []store.TrainingRecord {
	records := make([]store.TrainingRecord, 0, n)
	base := time.Now().UTC().AddDate(0, 0, -n)
	for i := 0; i < n; i++ {
		flare := g.rng.Float64() < positiveRate
		o := g.Observation(flare)
		label := 0
		// Risk score plus a little noise decides the label, so classes
		// overlap slightly like real outcomes do.
		if RiskScore(o)+g.rng.NormFloat64()*0.05 > 0.45 {
			label = 1
		}
		records = append(records, store.TrainingRecord{
			ID:          fmt.Sprintf("synth-%d", i),
			UserID:      fmt.Sprintf("synth-user-%d", g.rng.Intn(50)),
			Timestamp:   base.AddDate(0, 0, i),
			Observation: o,
			Label:       label,
		})
	}
	return records
}
