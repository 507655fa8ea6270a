package match

import (
	"fmt"
	"math"
	"os"

	"github.com/goccy/go-yaml"
)

// Scorer turns a distance vector into a confidence in [0,1]. Implementations
// are shared by all scoring workers and must not mutate state.
type Scorer interface {
	Score(f Features) float64
}

// ScorerFunc adapts a plain function to Scorer.
type ScorerFunc func(f Features) float64

// Score implements Scorer.
func (fn ScorerFunc) Score(f Features) float64 { return fn(f) }

// LogisticModel is a calibrated logistic regression over Features:
// confidence = sigmoid((bias + w·f) / temperature).
type LogisticModel struct {
	Weights     Features
	Bias        float64
	Temperature float64
}

// DefaultModel returns the built-in weights. Identical names with agreeing
// capacities score above 0.9, unrelated names below 0.1.
func DefaultModel() *LogisticModel {
	var w Features
	w[FeatJaroWinkler] = 2.0
	w[FeatLevenshtein] = 1.5
	w[FeatJaccard] = 2.0
	w[FeatPhonetic] = 1.0
	w[FeatCapacity] = 1.5
	w[FeatFuel] = 0.5
	w[FeatPrimeMover] = 0.5
	w[FeatState] = 1.0
	w[FeatCity] = 0.5
	w[FeatOwner] = 0.5
	w[FeatSameLocalID] = 1.0
	w[FeatMissing] = -0.15
	return &LogisticModel{Weights: w, Bias: -4.5, Temperature: 1.0}
}

// Logit returns the raw linear score.
func (m *LogisticModel) Logit(f Features) float64 {
	z := m.Bias
	for i, w := range m.Weights {
		z += w * f[i]
	}
	return z
}

// Score implements Scorer.
func (m *LogisticModel) Score(f Features) float64 {
	t := m.Temperature
	if t <= 0 {
		t = 1
	}
	return Sigmoid(m.Logit(f) / t)
}

// Sigmoid is the logistic function.
func Sigmoid(z float64) float64 {
	return 1.0 / (1.0 + math.Exp(-z))
}

// modelFile is the YAML layout of a trained model.
type modelFile struct {
	Version     int                `yaml:"version"`
	Bias        float64            `yaml:"bias"`
	Temperature float64            `yaml:"temperature,omitempty"`
	Weights     map[string]float64 `yaml:"weights"`
}

const modelVersion = 1

// ParseModel decodes a YAML model. Unknown feature names are an error;
// features without a weight get 0.
func ParseModel(data []byte) (*LogisticModel, error) {
	var mf modelFile
	if err := yaml.Unmarshal(data, &mf); err != nil {
		return nil, fmt.Errorf("failed to decode model: %w", err)
	}
	if mf.Version != 0 && mf.Version != modelVersion {
		return nil, fmt.Errorf("unsupported model version %d", mf.Version)
	}

	m := &LogisticModel{Bias: mf.Bias, Temperature: mf.Temperature}
	if m.Temperature == 0 {
		m.Temperature = 1
	}
	if m.Temperature < 0 {
		return nil, fmt.Errorf("model temperature must be positive, got %g", mf.Temperature)
	}
	for name, w := range mf.Weights {
		idx := FeatureIndex(name)
		if idx < 0 {
			return nil, fmt.Errorf("model has unknown feature %q", name)
		}
		if math.IsNaN(w) || math.IsInf(w, 0) {
			return nil, fmt.Errorf("model weight %q is not finite", name)
		}
		m.Weights[idx] = w
	}
	return m, nil
}

// LoadModel reads a YAML model file.
func LoadModel(path string) (*LogisticModel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model %s: %w", path, err)
	}
	return ParseModel(data)
}

// Encode renders the model in the file layout.
func (m *LogisticModel) Encode() ([]byte, error) {
	mf := modelFile{
		Version:     modelVersion,
		Bias:        m.Bias,
		Temperature: m.Temperature,
		Weights:     m.Weights.Map(),
	}
	return yaml.Marshal(mf)
}

// SaveModel writes the model to path.
func (m *LogisticModel) SaveModel(path string) error {
	data, err := m.Encode()
	if err != nil {
		return fmt.Errorf("failed to encode model: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write model %s: %w", path, err)
	}
	return nil
}
