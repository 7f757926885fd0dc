// Package features maps patient observations into the fixed-width numeric
// feature vectors the classifier consumes: standardized numeric fields
// followed by one-hot indicators per categorical field, in the column order
// established at fit time.
package features

import (
	"math"
	"sort"

	"github.com/medivuehealth/flarecast/internal/apperr"
	"github.com/medivuehealth/flarecast/internal/obs"
)

// NumericStats holds the fitted standardization parameters for one numeric
// field. Zero-variance fields keep Std == 1 to avoid division by zero.
type NumericStats struct {
	Field string  `json:"field"`
	Mean  float64 `json:"mean"`
	Std   float64 `json:"std"`
}

// CategoryEncoding holds the ordered value set observed for one categorical
// field at fit time. Values not in the set encode to an all-zero indicator.
type CategoryEncoding struct {
	Field  string   `json:"field"`
	Values []string `json:"values"`
}

// Preprocessor is a fitted feature transform. Its state is JSON-serializable
// so it ships inside the model artifact and is never used apart from the
// model it was fitted for.
type Preprocessor struct {
	Numeric     []NumericStats     `json:"numeric"`
	Categorical []CategoryEncoding `json:"categorical"`
}

// Fit computes standardization statistics for every numeric field and the
// sorted distinct value set for every categorical field.
func Fit(observations []obs.Observation) *Preprocessor {
	p := &Preprocessor{}

	sums := make(map[string]float64, len(obs.NumericFields))
	sumSq := make(map[string]float64, len(obs.NumericFields))
	seen := make(map[string]map[string]struct{}, len(obs.CategoricalFields))
	for _, field := range obs.CategoricalFields {
		seen[field] = make(map[string]struct{})
	}

	for _, o := range observations {
		nv := o.NumericValues()
		for _, field := range obs.NumericFields {
			sums[field] += nv[field]
			sumSq[field] += nv[field] * nv[field]
		}
		for field, v := range o.CategoryFieldValues() {
			seen[field][v] = struct{}{}
		}
	}

	n := float64(len(observations))
	for _, field := range obs.NumericFields {
		mean, std := 0.0, 1.0
		if n > 0 {
			mean = sums[field] / n
			variance := sumSq[field]/n - mean*mean
			if variance > 1e-12 {
				std = math.Sqrt(variance)
			}
		}
		p.Numeric = append(p.Numeric, NumericStats{Field: field, Mean: mean, Std: std})
	}

	for _, field := range obs.CategoricalFields {
		values := make([]string, 0, len(seen[field]))
		for v := range seen[field] {
			values = append(values, v)
		}
		sort.Strings(values)
		p.Categorical = append(p.Categorical, CategoryEncoding{Field: field, Values: values})
	}

	return p
}

// Width returns the number of columns a transformed vector has.
func (p *Preprocessor) Width() int {
	w := len(p.Numeric)
	for _, c := range p.Categorical {
		w += len(c.Values)
	}
	return w
}

// Transform encodes one observation against the fitted state. Categorical
// values never seen at fit time produce the all-zero indicator for that
// field. A fitted field absent from the observation is a schema error: the
// artifact and the running code disagree.
func (p *Preprocessor) Transform(o obs.Observation) ([]float64, error) {
	numerics := o.NumericValues()
	categories := o.CategoryFieldValues()

	vec := make([]float64, 0, p.Width())
	for _, s := range p.Numeric {
		v, ok := numerics[s.Field]
		if !ok {
			return nil, apperr.Schema(s.Field)
		}
		vec = append(vec, (v-s.Mean)/s.Std)
	}
	for _, c := range p.Categorical {
		v, ok := categories[c.Field]
		if !ok {
			return nil, apperr.Schema(c.Field)
		}
		for _, candidate := range c.Values {
			if candidate == v {
				vec = append(vec, 1)
			} else {
				vec = append(vec, 0)
			}
		}
	}
	return vec, nil
}

// TransformBatch encodes a batch of observations.
func (p *Preprocessor) TransformBatch(observations []obs.Observation) ([][]float64, error) {
	out := make([][]float64, 0, len(observations))
	for _, o := range observations {
		vec, err := p.Transform(o)
		if err != nil {
			return nil, err
		}
		out = append(out, vec)
	}
	return out, nil
}

// ColumnNames returns the fitted column order, numeric fields first, then
// one name per categorical indicator.
func (p *Preprocessor) ColumnNames() []string {
	names := make([]string, 0, p.Width())
	for _, s := range p.Numeric {
		names = append(names, s.Field)
	}
	for _, c := range p.Categorical {
		for _, v := range c.Values {
			names = append(names, c.Field+"="+v)
		}
	}
	return names
}
