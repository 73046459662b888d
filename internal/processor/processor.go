package processor

import (
	"context"
	"errors"
	"time"

	"audiotox-go/internal/media"
	"audiotox-go/internal/pipeline"
	"audiotox-go/internal/types"
)

// AnalysisResult is returned by /analyze
type AnalysisResult struct {
	RunID      string          `json:"run_id,omitempty"`
	Filename   string          `json:"filename"`
	MediaKind  types.MediaKind `json:"media_kind,omitempty"`
	Transcript string          `json:"transcript"`
	Label      types.Label     `json:"label,omitempty"`
	Confidence float64         `json:"confidence"`
	DurationMs int64           `json:"duration_ms"`
	Stage      pipeline.Stage  `json:"stage"`

	Error      string           `json:"error,omitempty"`
	ErrorKind  string           `json:"error_kind,omitempty"`
	ErrorClass types.ErrorClass `json:"error_class,omitempty"`
	Retryable  bool             `json:"retryable"`
}

// Runner is the part of the pipeline the processor needs.
type Runner interface {
	Run(ctx context.Context, up media.Upload) (pipeline.Result, error)
}

// Analyze runs one upload and shapes the outcome for the wire. The returned
// error is the pipeline's, so callers can pick a status code from it.
func Analyze(ctx context.Context, r Runner, up media.Upload) (AnalysisResult, error) {
	start := time.Now()
	res := AnalysisResult{Filename: up.Name}

	out, err := r.Run(ctx, up)
	res.DurationMs = time.Since(start).Milliseconds()
	res.RunID = out.RunID
	res.MediaKind = out.Kind
	if err != nil {
		res.Stage = pipeline.StageFailed
		var perr *pipeline.Error
		if errors.As(err, &perr) {
			res.Stage = perr.Stage
			res.RunID = perr.RunID
		}
		res.Error = err.Error()
		res.ErrorKind = types.KindOf(err)
		res.ErrorClass = types.ClassOf(err)
		res.Retryable = types.Retryable(err)
		return res, err
	}

	res.Stage = pipeline.StageDone
	res.Transcript = out.Transcript
	res.Label = out.Verdict.Label
	res.Confidence = out.Verdict.Confidence
	return res, nil
}
