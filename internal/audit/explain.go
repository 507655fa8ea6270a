package audit

import (
	"math"
	"sort"

	"github.com/energy-linkage/internal/match"
)

// Contribution is one feature's share of the logit.
type Contribution struct {
	Feature      string  `json:"feature"`
	Value        float64 `json:"value"`
	Weight       float64 `json:"weight"`
	Contribution float64 `json:"contribution"`
}

// Explanation breaks a confidence down into per-feature contributions.
type Explanation struct {
	Bias          float64        `json:"bias"`
	Logit         float64        `json:"logit"`
	Confidence    float64        `json:"confidence"`
	Contributions []Contribution `json:"contributions"`
}

// Explain decomposes the model's confidence for f. Contributions are ordered
// by absolute size, largest first.
func Explain(model *match.LogisticModel, f match.Features) Explanation {
	ex := Explanation{
		Bias:       model.Bias,
		Logit:      model.Logit(f),
		Confidence: model.Score(f),
	}
	for i, w := range model.Weights {
		ex.Contributions = append(ex.Contributions, Contribution{
			Feature:      match.FeatureNames[i],
			Value:        f[i],
			Weight:       w,
			Contribution: w * f[i],
		})
	}
	sort.SliceStable(ex.Contributions, func(i, j int) bool {
		return math.Abs(ex.Contributions[i].Contribution) > math.Abs(ex.Contributions[j].Contribution)
	})
	return ex
}
