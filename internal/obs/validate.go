package obs

import (
	"fmt"
	"math"

	"github.com/medivuehealth/flarecast/internal/apperr"
)

// Validate enforces the documented numeric ranges and enumerated category
// sets on a normalized observation. It is the public-boundary check: the
// preprocessor behind it never range-checks and never rejects unseen
// category values.
func Validate(o Observation) error {
	details := make(map[string]string)

	numerics := map[string]float64{
		"calories":        o.Calories,
		"protein":         o.Protein,
		"carbs":           o.Carbs,
		"fiber":           o.Fiber,
		"meals_per_day":   o.MealsPerDay,
		"hydration_level": o.HydrationLevel,
		"bowel_frequency": o.BowelFrequency,
		"bristol_scale":   o.BristolScale,
		"urgency_level":   o.UrgencyLevel,
		"pain_severity":   o.PainSeverity,
		"sleep_hours":     o.SleepHours,
		"stress_level":    o.StressLevel,
		"fatigue_level":   o.FatigueLevel,
	}

	for _, field := range NumericFields {
		if field == "dosage_level" {
			continue // overloaded field, checked below
		}
		v := numerics[field]
		r := NumericRanges[field]
		if math.IsNaN(v) || math.IsInf(v, 0) {
			details[field] = "must be a finite number"
			continue
		}
		if v < r.Min || v > r.Max {
			details[field] = fmt.Sprintf("must be between %g and %g", r.Min, r.Max)
		}
	}

	for field, v := range o.CategoryFieldValues() {
		if _, ok := NormalizeCategory(field, v); !ok {
			details[field] = fmt.Sprintf("must be one of %v", CategoryValues[field])
		}
	}

	if len(details) > 0 {
		return apperr.Validation("observation failed validation", details)
	}
	return nil
}
