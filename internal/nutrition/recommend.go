// Package nutrition turns a prediction and its observation into plain-text
// lifestyle recommendations shown alongside the risk score.
package nutrition

import (
	"github.com/medivuehealth/flarecast/internal/ml"
	"github.com/medivuehealth/flarecast/internal/obs"
)

// Recommend builds recommendations from the symptom levels that drove the
// prediction. Rules fire independently; a calm observation gets maintenance
// advice instead of an empty list.
func Recommend(o obs.Observation, r ml.Result) []string {
	var recs []string

	if o.StressLevel > 7 {
		recs = append(recs, "Stress is high. Consider stress-reduction techniques such as meditation or gentle exercise.")
	}
	if o.HydrationLevel < 5 {
		recs = append(recs, "Hydration is low. Increase water intake, especially if bowel frequency is elevated.")
	}
	if o.SleepHours < 6 {
		recs = append(recs, "Sleep is below 6 hours. Poor sleep is associated with flare activity; aim for 7-9 hours.")
	}
	if o.PainSeverity > 7 {
		recs = append(recs, "Pain is severe. Contact your care team if it persists or worsens.")
	}
	if o.BowelFrequency > 5 {
		recs = append(recs, "Bowel frequency is elevated. Favor low-residue foods and monitor for dehydration.")
	}
	if v, _ := obs.NormalizeCategory("blood_present", string(o.BloodPresent)); v == "yes" {
		recs = append(recs, "Blood was reported. Persistent bleeding warrants prompt medical attention.")
	}

	if r.Probability > 0.3 {
		recs = append(recs, "Flare risk is elevated. Keep logging daily so changes are caught early.")
	}

	if len(recs) == 0 {
		recs = append(recs,
			"Symptoms look stable. Maintain your current diet and medication routine.",
			"Keep fiber intake steady and stay hydrated.")
	}
	return recs
}
