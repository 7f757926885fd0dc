// Package obs defines the patient observation record, its documented value
// ranges and enumerated category sets, and the normalization applied to raw
// input before any other component sees it.
package obs

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Category is a categorical field value. Raw JSON may carry it as a string,
// a bool, or null; all three decode to a raw string that Normalize maps to
// the canonical enum value.
type Category string

func (c *Category) UnmarshalJSON(data []byte) error {
	switch {
	case string(data) == "null":
		*c = ""
	case data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*c = Category(s)
	case string(data) == "true" || string(data) == "false":
		*c = Category(string(data))
	default:
		return fmt.Errorf("invalid categorical value: %s", string(data))
	}
	return nil
}

// Dosage is the medication dosage field. It is semantically overloaded: a
// steroid dosage is a literal mg value, while biologic and immunosuppressant
// dosages are injection-frequency labels. Raw JSON may carry a number, a
// string, or null.
type Dosage string

func (d *Dosage) UnmarshalJSON(data []byte) error {
	switch {
	case string(data) == "null":
		*d = ""
	case data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*d = Dosage(s)
	default:
		var f float64
		if err := json.Unmarshal(data, &f); err != nil {
			return fmt.Errorf("invalid dosage value: %s", string(data))
		}
		*d = Dosage(strconv.FormatFloat(f, 'f', -1, 64))
	}
	return nil
}

// Observation is one patient's reported state at a point in time. It is
// created by the caller or a synthetic generator, consumed once by
// preprocessing, and never mutated afterward.
type Observation struct {
	// Diet
	Calories       float64 `json:"calories"`
	Protein        float64 `json:"protein"`
	Carbs          float64 `json:"carbs"`
	Fiber          float64 `json:"fiber"`
	MealsPerDay    float64 `json:"meals_per_day"`
	HydrationLevel float64 `json:"hydration_level"`

	// Bowel habits
	BowelFrequency float64 `json:"bowel_frequency"`
	BristolScale   float64 `json:"bristol_scale"`
	UrgencyLevel   float64 `json:"urgency_level"`

	// Pain
	PainSeverity float64 `json:"pain_severity"`

	// Other numerics
	SleepHours   float64 `json:"sleep_hours"`
	StressLevel  float64 `json:"stress_level"`
	FatigueLevel float64 `json:"fatigue_level"`

	// Medication dosage; converted to a numeric scale by preprocessing.
	DosageLevel Dosage `json:"dosage_level"`

	// Categorical fields
	HasAllergens    Category `json:"has_allergens"`
	BloodPresent    Category `json:"blood_present"`
	PainLocation    Category `json:"pain_location"`
	PainTime        Category `json:"pain_time"`
	MedicationTaken Category `json:"medication_taken"`
	MedicationType  Category `json:"medication_type"`
	Menstruation    Category `json:"menstruation"`
}

// Field names in canonical column order. Preprocessing fits and transforms
// in exactly this order.
var (
	NumericFields = []string{
		"calories", "protein", "carbs", "fiber", "meals_per_day",
		"hydration_level", "bowel_frequency", "bristol_scale",
		"urgency_level", "pain_severity", "dosage_level", "sleep_hours",
		"stress_level", "fatigue_level",
	}

	CategoricalFields = []string{
		"has_allergens", "blood_present", "pain_location", "pain_time",
		"medication_taken", "medication_type", "menstruation",
	}
)

// Range is an inclusive numeric bound.
type Range struct {
	Min, Max float64
}

// NumericRanges are the documented ranges enforced at the public boundary.
// Preprocessing itself never range-checks.
var NumericRanges = map[string]Range{
	"calories":        {0, 6000},
	"protein":         {0, 300},
	"carbs":           {0, 800},
	"fiber":           {0, 100},
	"meals_per_day":   {0, 10},
	"hydration_level": {0, 10},
	"bowel_frequency": {0, 30},
	"bristol_scale":   {1, 7},
	"urgency_level":   {0, 10},
	"pain_severity":   {0, 10},
	"sleep_hours":     {0, 24},
	"stress_level":    {0, 10},
	"fatigue_level":   {0, 10},
}

// Enumerated value sets per categorical field. "none" (or "not_applicable")
// is the explicit sentinel for absent/inapplicable values.
var CategoryValues = map[string][]string{
	"has_allergens":    {"yes", "no"},
	"blood_present":    {"yes", "no"},
	"pain_location":    {"lower_abdomen", "upper_abdomen", "left_side", "right_side", "entire_abdomen", "none"},
	"pain_time":        {"morning", "afternoon", "evening", "night", "none"},
	"medication_taken": {"yes", "no"},
	"medication_type":  {"none", "mesalamine", "steroid", "biologic", "immunosuppressant"},
	"menstruation":     {"yes", "no", "not_applicable"},
}

// NumericValues returns the observation's numeric fields keyed by canonical
// name. The dosage field is returned converted to its numeric scale.
func (o Observation) NumericValues() map[string]float64 {
	return map[string]float64{
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
		"dosage_level":    ConvertDosage(string(o.MedicationType), string(o.DosageLevel)),
		"sleep_hours":     o.SleepHours,
		"stress_level":    o.StressLevel,
		"fatigue_level":   o.FatigueLevel,
	}
}

// CategoryFieldValues returns the observation's categorical fields keyed by
// canonical name.
func (o Observation) CategoryFieldValues() map[string]string {
	return map[string]string{
		"has_allergens":    string(o.HasAllergens),
		"blood_present":    string(o.BloodPresent),
		"pain_location":    string(o.PainLocation),
		"pain_time":        string(o.PainTime),
		"medication_taken": string(o.MedicationTaken),
		"medication_type":  string(o.MedicationType),
		"menstruation":     string(o.Menstruation),
	}
}

// Injection-frequency labels mapped to a numeric scale. Unrecognized labels
// convert to 0, never an error.
var (
	biologicFrequency = map[string]float64{
		"every_2_weeks": 2,
		"every_4_weeks": 4,
		"every_8_weeks": 8,
	}
	immunoFrequency = map[string]float64{
		"daily":       1,
		"twice_daily": 2,
		"weekly":      7,
	}
)

// ConvertDosage resolves the overloaded dosage field into a number. The
// conversion happens before standardization.
func ConvertDosage(medicationType, dosage string) float64 {
	switch strings.ToLower(strings.TrimSpace(medicationType)) {
	case "steroid":
		v, err := strconv.ParseFloat(strings.TrimSpace(dosage), 64)
		if err != nil {
			return 0
		}
		return v
	case "biologic":
		return biologicFrequency[strings.ToLower(strings.TrimSpace(dosage))]
	case "immunosuppressant":
		return immunoFrequency[strings.ToLower(strings.TrimSpace(dosage))]
	default:
		return 0
	}
}
