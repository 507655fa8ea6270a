// Package tuning fits the pairwise model from labelled pairs and picks the
// match threshold that best separates them.
package tuning

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/energy-linkage/internal/debug"
	"github.com/energy-linkage/internal/linkage"
	"github.com/energy-linkage/internal/match"
	"github.com/energy-linkage/internal/record"
)

// Example is one labelled pair.
type Example struct {
	Features match.Features
	Match    bool
}

// TrainOptions controls gradient descent.
type TrainOptions struct {
	Iterations   int
	LearningRate float64
	L2           float64 // penalty on weights, not on the bias
	Tolerance    float64 // stop once the gradient norm falls below this
}

// DefaultTrainOptions returns settings that converge on a few thousand pairs.
func DefaultTrainOptions() TrainOptions {
	return TrainOptions{Iterations: 2000, LearningRate: 0.5, L2: 0.01, Tolerance: 1e-6}
}

// TrainStats describes how training finished.
type TrainStats struct {
	Iterations int     `json:"iterations"`
	Loss       float64 `json:"loss"`
	Converged  bool    `json:"converged"`
	Positives  int     `json:"positives"`
	Negatives  int     `json:"negatives"`
}

// Train fits a logistic model by full-batch gradient descent with L2
// regularization. Examples are visited in order and nothing is random, so
// the same examples always give the same model.
func Train(localDebug bool, examples []Example, opts TrainOptions) (*match.LogisticModel, TrainStats, error) {
	debug.DebugHeader(localDebug)
	defer debug.DebugFooter(localDebug)

	var stats TrainStats
	for _, ex := range examples {
		if ex.Match {
			stats.Positives++
		} else {
			stats.Negatives++
		}
	}
	if stats.Positives == 0 || stats.Negatives == 0 {
		return nil, stats, errors.New("training needs both matching and non-matching pairs")
	}
	if opts.Iterations <= 0 || opts.LearningRate <= 0 || opts.L2 < 0 {
		return nil, stats, fmt.Errorf("invalid training options %+v", opts)
	}

	n := float64(len(examples))
	w := make([]float64, match.NumFeatures)
	grad := make([]float64, match.NumFeatures)
	bias := 0.0

	for iter := 1; iter <= opts.Iterations; iter++ {
		for i := range grad {
			grad[i] = 0
		}
		gradBias, loss := 0.0, 0.0

		for _, ex := range examples {
			x := ex.Features[:]
			p := match.Sigmoid(bias + floats.Dot(w, x))
			y := 0.0
			if ex.Match {
				y = 1
			}
			floats.AddScaled(grad, p-y, x)
			gradBias += p - y
			loss -= y*math.Log(clampProb(p)) + (1-y)*math.Log(clampProb(1-p))
		}

		floats.Scale(1/n, grad)
		floats.AddScaled(grad, opts.L2, w)
		gradBias /= n
		loss = loss/n + opts.L2/2*floats.Dot(w, w)

		stats.Iterations = iter
		stats.Loss = loss
		norm := math.Hypot(floats.Norm(grad, 2), gradBias)
		if iter%200 == 0 {
			debug.DebugOutput(localDebug, "iteration %d: loss %.6f, gradient %.2e", iter, loss, norm)
		}
		if norm < opts.Tolerance {
			stats.Converged = true
			break
		}

		floats.AddScaled(w, -opts.LearningRate, grad)
		bias -= opts.LearningRate * gradBias
	}

	model := &match.LogisticModel{Bias: bias, Temperature: 1}
	copy(model.Weights[:], w)
	return model, stats, nil
}

func clampProb(p float64) float64 {
	const eps = 1e-12
	return math.Min(math.Max(p, eps), 1-eps)
}

// Examples turns scored pairs into training data using manual overrides as
// labels: must_link is a match, cannot_link is not. Pairs without an override
// are left out.
func Examples(scores []linkage.ScoredPair, overrides []match.Override) []Example {
	labels := labelIndex(overrides)
	var out []Example
	for _, sp := range scores {
		if kind, ok := labels[pairKey(sp.A, sp.B)]; ok {
			out = append(out, Example{Features: sp.Features, Match: kind == match.MustLink})
		}
	}
	return out
}

func labelIndex(overrides []match.Override) map[[2]record.Key]match.OverrideKind {
	out := make(map[[2]record.Key]match.OverrideKind, len(overrides))
	for _, ov := range overrides {
		out[pairKey(ov.A, ov.B)] = ov.Kind
	}
	return out
}

func pairKey(a, b record.Key) [2]record.Key {
	if b.Less(a) {
		a, b = b, a
	}
	return [2]record.Key{a, b}
}
