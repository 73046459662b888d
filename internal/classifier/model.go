package classifier

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
)

const (
	ModelLogisticRegression = "logistic_regression"
	ModelMultinomialNB      = "multinomial_nb"
)

// toxicClass is the class value the trainer used for toxic comments.
const toxicClass = 1

// modelArtifact is the JSON export of a fitted binary classifier.
type modelArtifact struct {
	Type    string `json:"type"`
	Classes []int  `json:"classes"`

	// logistic_regression
	Coef      [][]float64 `json:"coef"`
	Intercept []float64   `json:"intercept"`

	// multinomial_nb
	FeatureLogProb [][]float64 `json:"feature_log_prob"`
	ClassLogPrior  []float64   `json:"class_log_prior"`
}

// Model scores feature vectors for exactly two classes.
type Model struct {
	kind    string
	classes [2]int

	weights   []float64
	intercept float64

	logProb  [2][]float64
	logPrior [2]float64
}

// LoadModel reads a model artifact from path.
func LoadModel(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model: %w", err)
	}
	var a modelArtifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("decode model %s: %w", path, err)
	}
	return newModel(a)
}

func newModel(a modelArtifact) (*Model, error) {
	if len(a.Classes) != 2 {
		return nil, fmt.Errorf("model has %d classes, only binary models are supported", len(a.Classes))
	}
	if a.Classes[0] == a.Classes[1] || (a.Classes[0] != toxicClass && a.Classes[1] != toxicClass) {
		return nil, fmt.Errorf("model classes %v do not include the toxic class %d", a.Classes, toxicClass)
	}
	m := &Model{classes: [2]int{a.Classes[0], a.Classes[1]}}

	kind := a.Type
	if kind == "" {
		kind = ModelLogisticRegression
	}
	m.kind = kind

	switch kind {
	case ModelLogisticRegression:
		if len(a.Coef) != 1 || len(a.Coef[0]) == 0 {
			return nil, fmt.Errorf("logistic regression needs exactly one coefficient row, got %d", len(a.Coef))
		}
		if len(a.Intercept) != 1 {
			return nil, fmt.Errorf("logistic regression needs exactly one intercept, got %d", len(a.Intercept))
		}
		m.weights = a.Coef[0]
		m.intercept = a.Intercept[0]
	case ModelMultinomialNB:
		if len(a.FeatureLogProb) != 2 || len(a.ClassLogPrior) != 2 {
			return nil, fmt.Errorf("multinomial nb needs two feature_log_prob rows and two priors")
		}
		if len(a.FeatureLogProb[0]) == 0 || len(a.FeatureLogProb[0]) != len(a.FeatureLogProb[1]) {
			return nil, fmt.Errorf("multinomial nb feature_log_prob rows differ in width")
		}
		m.logProb = [2][]float64{a.FeatureLogProb[0], a.FeatureLogProb[1]}
		m.logPrior = [2]float64{a.ClassLogPrior[0], a.ClassLogPrior[1]}
	default:
		return nil, fmt.Errorf("unsupported model type %q", kind)
	}
	return m, nil
}

// Width is the number of features the model expects.
func (m *Model) Width() int {
	if m.kind == ModelMultinomialNB {
		return len(m.logProb[0])
	}
	return len(m.weights)
}

// Probabilities returns P(class) for each of the two classes, in the order
// the classes were declared.
func (m *Model) Probabilities(x Features) [2]float64 {
	if m.kind == ModelMultinomialNB {
		var jll [2]float64
		for c := range jll {
			jll[c] = m.logPrior[c]
			for _, f := range x {
				jll[c] += f.Value * m.logProb[c][f.Index]
			}
		}
		// softmax over the two joint log likelihoods
		hi := math.Max(jll[0], jll[1])
		e0, e1 := math.Exp(jll[0]-hi), math.Exp(jll[1]-hi)
		return [2]float64{e0 / (e0 + e1), e1 / (e0 + e1)}
	}

	d := m.intercept
	for _, f := range x {
		d += f.Value * m.weights[f.Index]
	}
	p1 := 1 / (1 + math.Exp(-d))
	return [2]float64{1 - p1, p1}
}

// Predict returns the winning class and its probability. Ties go to the
// first declared class.
func (m *Model) Predict(x Features) (class int, probability float64) {
	p := m.Probabilities(x)
	if p[1] > p[0] {
		return m.classes[1], p[1]
	}
	return m.classes[0], p[0]
}
