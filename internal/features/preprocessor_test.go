package features

import (
	"encoding/json"
	"math"
	"strings"
	"testing"

	"github.com/medivuehealth/flarecast/internal/obs"
)

func sampleObservation() obs.Observation {
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
		StressLevel:     3,
		FatigueLevel:    2,
		DosageLevel:     "",
		HasAllergens:    "no",
		BloodPresent:    "no",
		PainLocation:    "none",
		PainTime:        "none",
		MedicationTaken: "yes",
		MedicationType:  "mesalamine",
		Menstruation:    "not_applicable",
	}
}

func fitSamples() []obs.Observation {
	a := sampleObservation()

	b := sampleObservation()
	b.Calories = 2600
	b.PainSeverity = 7
	b.BowelFrequency = 8
	b.BloodPresent = "yes"
	b.PainLocation = "lower_abdomen"
	b.MedicationType = "steroid"
	b.DosageLevel = "20"

	c := sampleObservation()
	c.Calories = 1500
	c.StressLevel = 8
	c.MedicationType = "biologic"
	c.DosageLevel = "every_8_weeks"

	return []obs.Observation{a, b, c}
}

func TestFitTransformWidth(t *testing.T) {
	p := Fit(fitSamples())

	if got, want := len(p.Numeric), len(obs.NumericFields); got != want {
		t.Fatalf("numeric stats = %d, want %d", got, want)
	}
	if got, want := len(p.Categorical), len(obs.CategoricalFields); got != want {
		t.Fatalf("categorical encodings = %d, want %d", got, want)
	}

	vec, err := p.Transform(sampleObservation())
	if err != nil {
		t.Fatalf("transform: %v", err)
	}
	if len(vec) != p.Width() {
		t.Fatalf("vector width = %d, Width() = %d", len(vec), p.Width())
	}
	if len(vec) != len(p.ColumnNames()) {
		t.Fatalf("vector width = %d, column names = %d", len(vec), len(p.ColumnNames()))
	}
	for i, v := range vec {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			t.Fatalf("column %d (%s) = %v", i, p.ColumnNames()[i], v)
		}
	}
}

func TestTransformDeterministic(t *testing.T) {
	p := Fit(fitSamples())
	o := sampleObservation()

	first, err := p.Transform(o)
	if err != nil {
		t.Fatalf("transform: %v", err)
	}
	for i := 0; i < 10; i++ {
		again, err := p.Transform(o)
		if err != nil {
			t.Fatalf("transform: %v", err)
		}
		if len(again) != len(first) {
			t.Fatalf("width changed across calls: %d vs %d", len(again), len(first))
		}
		for j := range again {
			if again[j] != first[j] {
				t.Fatalf("column %d differs across identical calls: %v vs %v", j, again[j], first[j])
			}
		}
	}
}

func TestUnknownCategoryEncodesAllZero(t *testing.T) {
	p := Fit(fitSamples())

	o := sampleObservation()
	o.PainLocation = "somewhere_new"

	vec, err := p.Transform(o)
	if err != nil {
		t.Fatalf("transform: %v", err)
	}

	names := p.ColumnNames()
	zeroed := 0
	for i, name := range names {
		if strings.HasPrefix(name, "pain_location=") {
			zeroed++
			if vec[i] != 0 {
				t.Fatalf("unknown category set indicator %s = %v, want 0", name, vec[i])
			}
		}
	}
	if zeroed == 0 {
		t.Fatal("no pain_location indicator columns found")
	}
}

func TestZeroVarianceColumnStaysFinite(t *testing.T) {
	// Every fit sample has meals_per_day = 3.
	p := Fit(fitSamples())

	o := sampleObservation()
	o.MealsPerDay = 5
	vec, err := p.Transform(o)
	if err != nil {
		t.Fatalf("transform: %v", err)
	}
	for i, name := range p.ColumnNames() {
		if name == "meals_per_day" {
			if math.IsNaN(vec[i]) || math.IsInf(vec[i], 0) {
				t.Fatalf("zero-variance column produced %v", vec[i])
			}
			if vec[i] != 2 { // (5-3)/1 with std clamped to 1
				t.Fatalf("meals_per_day = %v, want 2", vec[i])
			}
			return
		}
	}
	t.Fatal("meals_per_day column not found")
}

func TestDosageConversion(t *testing.T) {
	cases := []struct {
		name           string
		medicationType string
		dosage         string
		want           float64
	}{
		{"steroid literal", "steroid", "20", 20},
		{"steroid decimal", "steroid", "12.5", 12.5},
		{"steroid unparsable", "steroid", "high", 0},
		{"biologic every 2 weeks", "biologic", "every_2_weeks", 2},
		{"biologic every 4 weeks", "biologic", "every_4_weeks", 4},
		{"biologic every 8 weeks", "biologic", "every_8_weeks", 8},
		{"biologic unknown label", "biologic", "monthly", 0},
		{"immunosuppressant daily", "immunosuppressant", "daily", 1},
		{"immunosuppressant twice daily", "immunosuppressant", "twice_daily", 2},
		{"immunosuppressant weekly", "immunosuppressant", "weekly", 7},
		{"mesalamine ignored", "mesalamine", "every_2_weeks", 0},
		{"no medication", "none", "", 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := obs.ConvertDosage(tc.medicationType, tc.dosage); got != tc.want {
				t.Fatalf("ConvertDosage(%q, %q) = %v, want %v", tc.medicationType, tc.dosage, got, tc.want)
			}
		})
	}
}

func TestStateRoundTripsThroughJSON(t *testing.T) {
	p := Fit(fitSamples())

	raw, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var restored Preprocessor
	if err := json.Unmarshal(raw, &restored); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	o := sampleObservation()
	want, err := p.Transform(o)
	if err != nil {
		t.Fatalf("transform: %v", err)
	}
	got, err := restored.Transform(o)
	if err != nil {
		t.Fatalf("transform restored: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("restored width %d, want %d", len(got), len(want))
	}
	for i := range got {
		if got[i] != want[i] {
			t.Fatalf("restored column %d = %v, want %v", i, got[i], want[i])
		}
	}
}
