// Package pipeline drives one upload through ingest, audio extraction,
// transcription and classification.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"audiotox-go/internal/logger"
	"audiotox-go/internal/media"
	"audiotox-go/internal/types"
	"audiotox-go/internal/workspace"
)

// Stage is a state of a pipeline run.
type Stage string

const (
	StageIngesting    Stage = "ingesting"
	StageExtracting   Stage = "extracting"
	StageTranscribing Stage = "transcribing"
	StageClassifying  Stage = "classifying"
	StageDone         Stage = "done"
	StageFailed       Stage = "failed"
)

type AudioExtractor interface {
	ExtractAudio(ctx context.Context, videoPath, audioPath string) error
}

type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (string, error)
}

type Classifier interface {
	Classify(ctx context.Context, text string) (types.Verdict, error)
}

// Error reports the stage a run failed in. Err always wraps one of the
// error kinds in package types.
type Error struct {
	RunID string
	Stage Stage
	Err   error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("run %s failed while %s: %v", e.RunID, e.Stage, e.Err)
}

// Unwrap exposes underlying error for errors.Is / errors.As.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Result is the outcome of a successful run.
type Result struct {
	RunID      string
	Kind       types.MediaKind
	Transcript string
	Verdict    types.Verdict
}

// Options wires a Pipeline. OnStage, when set, sees every state transition
// of every run.
type Options struct {
	Area              *workspace.Area
	Ingestor          *media.Ingestor
	Extractor         AudioExtractor
	Transcriber       Transcriber
	Classifier        Classifier
	ClassifierTimeout time.Duration
	OnStage           func(runID string, stage Stage)
	Log               *logger.Logger
}

type Pipeline struct {
	area              *workspace.Area
	ingestor          *media.Ingestor
	extractor         AudioExtractor
	transcriber       Transcriber
	classifier        Classifier
	classifierTimeout time.Duration
	onStage           func(string, Stage)
	log               *logger.Logger
}

func New(opts Options) *Pipeline {
	log := opts.Log
	if log == nil {
		log = logger.New()
	}
	timeout := opts.ClassifierTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Pipeline{
		area:              opts.Area,
		ingestor:          opts.Ingestor,
		extractor:         opts.Extractor,
		transcriber:       opts.Transcriber,
		classifier:        opts.Classifier,
		classifierTimeout: timeout,
		onStage:           opts.OnStage,
		log:               log.Component("pipeline"),
	}
}

// Run processes one upload. Every file the run created is gone when Run
// returns, whatever the outcome.
//
// ctx bounds the run at stage granularity: it is checked before each stage,
// but a stage that already started is not interrupted by it.
func (p *Pipeline) Run(ctx context.Context, up media.Upload) (Result, error) {
	run := p.area.Begin()
	res := Result{RunID: run.ID()}
	log := p.log.WithFields(logrus.Fields{"run_id": run.ID(), "filename": up.Name})

	defer func() {
		if err := run.Close(); err != nil {
			log.WithField("error", err.Error()).Warn("run cleanup failed")
		}
	}()

	fail := func(stage Stage, err error) (Result, error) {
		p.enter(log, run.ID(), StageFailed)
		return res, &Error{RunID: run.ID(), Stage: stage, Err: withKind(stage, err)}
	}

	var in media.Ingested
	err := p.step(ctx, log, run.ID(), StageIngesting, func(context.Context) error {
		var err error
		in, err = p.ingestor.Ingest(run, up)
		return err
	})
	if err != nil {
		return fail(StageIngesting, err)
	}
	res.Kind = in.Kind
	log.WithFields(logrus.Fields{"media_kind": in.Kind, "bytes": in.Bytes}).Debug("upload ingested")

	audioPath := in.Path
	if in.Kind == types.MediaKindVideo {
		err = p.step(ctx, log, run.ID(), StageExtracting, func(sctx context.Context) error {
			out, err := run.Allocate("audio.mp3")
			if err != nil {
				return fmt.Errorf("%w: %v", types.ErrAudioExtractionFailed, err)
			}
			if err := p.extractor.ExtractAudio(sctx, in.Path, out); err != nil {
				return err
			}
			audioPath = out
			return nil
		})
		if err != nil {
			return fail(StageExtracting, err)
		}
	}

	err = p.step(ctx, log, run.ID(), StageTranscribing, func(sctx context.Context) error {
		var err error
		res.Transcript, err = p.transcriber.Transcribe(sctx, audioPath)
		return err
	})
	if err != nil {
		return fail(StageTranscribing, err)
	}

	err = p.step(ctx, log, run.ID(), StageClassifying, func(sctx context.Context) error {
		cctx, cancel := context.WithTimeout(sctx, p.classifierTimeout)
		defer cancel()
		var err error
		res.Verdict, err = p.classifier.Classify(cctx, res.Transcript)
		return err
	})
	if err != nil {
		return fail(StageClassifying, err)
	}

	p.enter(log, run.ID(), StageDone)
	log.WithFields(logrus.Fields{
		"label":      res.Verdict.Label,
		"confidence": res.Verdict.Confidence,
	}).Info("run complete")
	return res, nil
}

// step enters stage and runs fn on a context detached from ctx's
// cancellation. A panic in fn becomes ErrInternal.
func (p *Pipeline) step(ctx context.Context, log *logrus.Entry, runID string, stage Stage, fn func(context.Context) error) (err error) {
	if cerr := ctx.Err(); cerr != nil {
		return fmt.Errorf("%w: before %s: %v", types.ErrRunAborted, stage, cerr)
	}
	p.enter(log, runID, stage)

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic while %s: %v", types.ErrInternal, stage, r)
		}
	}()
	return fn(context.WithoutCancel(ctx))
}

func (p *Pipeline) enter(log *logrus.Entry, runID string, stage Stage) {
	log.WithField("stage", stage).Debug("stage")
	if p.onStage != nil {
		p.onStage(runID, stage)
	}
}

// withKind makes sure err carries an error kind, using the stage's own kind
// for errors that arrive without one.
func withKind(stage Stage, err error) error {
	if types.KindOf(err) != "unknown" {
		return err
	}
	switch stage {
	case StageIngesting:
		return fmt.Errorf("%w: %v", types.ErrIngestFailed, err)
	case StageExtracting:
		return fmt.Errorf("%w: %v", types.ErrAudioExtractionFailed, err)
	case StageTranscribing:
		return fmt.Errorf("%w: %v", types.ErrTranscriptionFailed, err)
	case StageClassifying:
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: %v", types.ErrClassifierUnreachable, err)
		}
	}
	return fmt.Errorf("%w: %v", types.ErrInternal, err)
}
