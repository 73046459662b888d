package actionable

import (
	"fmt"

	"audiotox-go/internal/aggregator"
)

type ActionCard struct {
	Insight string `json:"insight"`
	Action  string `json:"action"`
	Impact  string `json:"impact"`
}

const (
	minScoredShare = 0.95
	minRecall      = 0.6
	minPrecision   = 0.6
)

// Generate turns evaluation metrics into the single most pressing follow-up.
// Unscored rows come first since every other number is unreliable without
// them.
func Generate(m aggregator.Metrics) ActionCard {
	if m.Total == 0 {
		return ActionCard{
			Insight: "Dataset has no labeled rows",
			Action:  "Check the comment and toxic columns of the dataset",
			Impact:  "No evaluation possible",
		}
	}
	if share := float64(m.Scored) / float64(m.Total); share < minScoredShare {
		return ActionCard{
			Insight: fmt.Sprintf("Only %.0f%% of rows were scored (%d failed)", share*100, m.Failed),
			Action:  "Check classifier availability and rerun the evaluation",
			Impact:  "Metrics below reflect a partial dataset",
		}
	}
	if m.TruePositive+m.FalseNegative > 0 && m.Recall < minRecall {
		return ActionCard{
			Insight: fmt.Sprintf("Low recall on toxic comments (%.0f%%, %d missed)", m.Recall*100, m.FalseNegative),
			Action:  "Retrain with more toxic examples or class weighting",
			Impact:  "Toxic speech slips through undetected",
		}
	}
	if m.TruePositive+m.FalsePositive > 0 && m.Precision < minPrecision {
		return ActionCard{
			Insight: fmt.Sprintf("Low precision on toxic verdicts (%.0f%%, %d false alarms)", m.Precision*100, m.FalsePositive),
			Action:  "Review false positives and extend the training set with benign look-alikes",
			Impact:  "Benign uploads get flagged",
		}
	}
	return ActionCard{
		Insight: fmt.Sprintf("Model holds up on this dataset (F1 %.2f)", m.F1),
		Action:  "Monitor and collect more data",
		Impact:  "Low immediate intervention",
	}
}
