package types

// Label is the classifier's binary verdict as it travels over the wire.
type Label string

const (
	LabelToxic    Label = "toxic"
	LabelNotToxic Label = "not-toxic"
)

// Valid reports whether l is one of the two known labels.
func (l Label) Valid() bool {
	return l == LabelToxic || l == LabelNotToxic
}

// Verdict is the terminal output of a run. Confidence is the probability of
// the predicted label and lies in [0,1].
type Verdict struct {
	Label      Label   `json:"label"`
	Confidence float64 `json:"confidence"`
}

// MediaKind is derived from the upload's extension.
type MediaKind string

const (
	MediaKindAudio MediaKind = "audio"
	MediaKindVideo MediaKind = "video"
)

// PredictRequest is the body of POST /predict. Comment is a pointer so a
// missing key can be told apart from an empty string.
type PredictRequest struct {
	Comment *string `json:"comment" validate:"required"`
}

type PredictResponse struct {
	Comment    string  `json:"comment"`
	Label      Label   `json:"label"`
	Confidence float64 `json:"confidence"`
}

// LabeledComment is one row of an evaluation dataset.
type LabeledComment struct {
	Row     int    `json:"row"`
	Comment string `json:"comment"`
	Toxic   bool   `json:"toxic"`
}

// ScoredComment pairs a dataset row with what the classifier said about it.
type ScoredComment struct {
	LabeledComment
	Verdict Verdict `json:"verdict"`
	Error   string  `json:"error,omitempty"`
}
