package aggregator

import "audiotox-go/internal/types"

// Metrics summarizes classifier verdicts against dataset labels, treating
// toxic as the positive class. Rows that failed to score only count towards
// Total and Failed.
type Metrics struct {
	Total  int `json:"total"`
	Scored int `json:"scored"`
	Failed int `json:"failed"`

	TruePositive  int `json:"true_positive"`
	FalsePositive int `json:"false_positive"`
	TrueNegative  int `json:"true_negative"`
	FalseNegative int `json:"false_negative"`

	Accuracy  float64 `json:"accuracy"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`

	LabelCounts    map[types.Label]int `json:"label_counts"`
	MeanConfidence float64             `json:"mean_confidence"`
}

func Aggregate(records []types.ScoredComment) Metrics {
	m := Metrics{Total: len(records), LabelCounts: map[types.Label]int{}}
	confSum := 0.0
	for _, r := range records {
		if r.Error != "" {
			m.Failed++
			continue
		}
		m.Scored++
		m.LabelCounts[r.Verdict.Label]++
		confSum += r.Verdict.Confidence

		predicted := r.Verdict.Label == types.LabelToxic
		switch {
		case predicted && r.Toxic:
			m.TruePositive++
		case predicted && !r.Toxic:
			m.FalsePositive++
		case !predicted && r.Toxic:
			m.FalseNegative++
		default:
			m.TrueNegative++
		}
	}

	m.Accuracy = ratio(m.TruePositive+m.TrueNegative, m.Scored)
	m.Precision = ratio(m.TruePositive, m.TruePositive+m.FalsePositive)
	m.Recall = ratio(m.TruePositive, m.TruePositive+m.FalseNegative)
	if m.Precision+m.Recall > 0 {
		m.F1 = 2 * m.Precision * m.Recall / (m.Precision + m.Recall)
	}
	if m.Scored > 0 {
		m.MeanConfidence = confSum / float64(m.Scored)
	}
	return m
}

func ratio(n, d int) float64 {
	if d == 0 {
		return 0
	}
	return float64(n) / float64(d)
}
