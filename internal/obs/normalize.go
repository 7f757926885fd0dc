package obs

import (
	"fmt"
	"strings"
)

// synonyms is the declarative normalization table: per categorical field,
// the raw spellings (lowercased) that map to a canonical enum value. Raw
// booleans decode to "true"/"false" and are covered here like any other
// synonym. Validated for completeness against CategoryValues at startup.
var synonyms = map[string]map[string]string{
	"has_allergens": {
		"true": "yes", "false": "no", "t": "yes", "f": "no",
		"1": "yes", "0": "no", "": "no",
	},
	"blood_present": {
		"true": "yes", "false": "no", "t": "yes", "f": "no",
		"1": "yes", "0": "no", "": "no",
	},
	"medication_taken": {
		"true": "yes", "false": "no", "t": "yes", "f": "no",
		"1": "yes", "0": "no", "": "no",
	},
	"menstruation": {
		"true": "yes", "false": "no", "t": "yes", "f": "no",
		"1": "yes", "0": "no",
		"": "not_applicable", "n/a": "not_applicable", "na": "not_applicable",
		"none": "not_applicable",
	},
	"pain_location": {
		"": "none", "n/a": "none", "na": "none",
	},
	"pain_time": {
		"": "none", "n/a": "none", "na": "none",
	},
	"medication_type": {
		"": "none", "n/a": "none", "na": "none",
		// Drug names reported by older clients, folded to drug classes.
		"prednisone": "steroid", "budesonide": "steroid",
		"azathioprine": "immunosuppressant", "mercaptopurine": "immunosuppressant",
		"infliximab": "biologic", "adalimumab": "biologic",
	},
}

func init() {
	if err := checkSynonymTable(); err != nil {
		panic(err)
	}
}

// checkSynonymTable verifies every synonym target is a member of the
// field's enumerated value set.
func checkSynonymTable() error {
	for field, table := range synonyms {
		values, ok := CategoryValues[field]
		if !ok {
			return fmt.Errorf("obs: synonym table references unknown field %q", field)
		}
		for raw, canonical := range table {
			if !contains(values, canonical) {
				return fmt.Errorf("obs: synonym %q -> %q for field %q is not an enumerated value", raw, canonical, field)
			}
		}
	}
	return nil
}

// NormalizeCategory maps a raw categorical value to its canonical enum
// value. The second return reports whether the result is a member of the
// field's enumerated set.
func NormalizeCategory(field, raw string) (string, bool) {
	v := strings.ToLower(strings.TrimSpace(raw))
	if table, ok := synonyms[field]; ok {
		if canonical, ok := table[v]; ok {
			v = canonical
		}
	}
	return v, contains(CategoryValues[field], v)
}

// Normalize rewrites every categorical field of the observation to its
// canonical value. Membership is not enforced here; Validate does that at
// the boundary, and preprocessing tolerates unseen values by design.
func (o Observation) Normalize() Observation {
	n := o
	set := func(field string, c Category) Category {
		v, _ := NormalizeCategory(field, string(c))
		return Category(v)
	}
	n.HasAllergens = set("has_allergens", o.HasAllergens)
	n.BloodPresent = set("blood_present", o.BloodPresent)
	n.PainLocation = set("pain_location", o.PainLocation)
	n.PainTime = set("pain_time", o.PainTime)
	n.MedicationTaken = set("medication_taken", o.MedicationTaken)
	n.MedicationType = set("medication_type", o.MedicationType)
	n.Menstruation = set("menstruation", o.Menstruation)
	return n
}

func contains(values []string, v string) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}
