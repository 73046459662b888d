package classifier

import (
	"context"
	"fmt"

	"audiotox-go/internal/textnorm"
	"audiotox-go/internal/types"
)

// Service answers toxicity queries over raw text. It holds the vectorizer and
// model loaded at startup and never mutates them, so one Service is shared by
// every request.
type Service struct {
	vectorizer *Vectorizer
	model      *Model
}

// New pairs a vectorizer with a model trained on its features.
func New(vectorizer *Vectorizer, model *Model) (*Service, error) {
	if vectorizer.Size() != model.Width() {
		return nil, fmt.Errorf("vectorizer produces %d features but model expects %d", vectorizer.Size(), model.Width())
	}
	return &Service{vectorizer: vectorizer, model: model}, nil
}

// Load reads both artifacts. Callers treat its error as fatal.
func Load(vectorizerPath, modelPath string) (*Service, error) {
	vectorizer, err := LoadVectorizer(vectorizerPath)
	if err != nil {
		return nil, err
	}
	model, err := LoadModel(modelPath)
	if err != nil {
		return nil, err
	}
	return New(vectorizer, model)
}

// Predict normalizes text, vectorizes it and classifies the result.
func (s *Service) Predict(raw string) types.Verdict {
	features := s.vectorizer.Transform(textnorm.Normalize(raw))
	class, p := s.model.Predict(features)

	label := types.LabelNotToxic
	if class == toxicClass {
		label = types.LabelToxic
	}
	return types.Verdict{Label: label, Confidence: p}
}

// Classify lets an in-process Service stand in for the remote endpoint.
func (s *Service) Classify(ctx context.Context, text string) (types.Verdict, error) {
	if err := ctx.Err(); err != nil {
		return types.Verdict{}, err
	}
	return s.Predict(text), nil
}
