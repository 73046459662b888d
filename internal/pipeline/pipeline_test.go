package pipeline

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"audiotox-go/internal/logger"
	"audiotox-go/internal/media"
	"audiotox-go/internal/types"
	"audiotox-go/internal/workspace"
)

type fakeExtractor struct {
	calls int
	err   error
}

func (f *fakeExtractor) ExtractAudio(ctx context.Context, videoPath, audioPath string) error {
	f.calls++
	if f.err != nil {
		return f.err
	}
	return os.WriteFile(audioPath, []byte("ID3"), 0o644)
}

type fakeTranscriber struct {
	text  string
	err   error
	panic bool
	paths []string
	ctxs  []context.Context
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, audioPath string) (string, error) {
	f.paths = append(f.paths, audioPath)
	f.ctxs = append(f.ctxs, ctx)
	if f.panic {
		panic("decoder exploded")
	}
	if _, err := os.Stat(audioPath); err != nil {
		return "", err
	}
	return f.text, f.err
}

type classifierFunc func(ctx context.Context, text string) (types.Verdict, error)

func (f classifierFunc) Classify(ctx context.Context, text string) (types.Verdict, error) {
	return f(ctx, text)
}

func notToxic(ctx context.Context, text string) (types.Verdict, error) {
	return types.Verdict{Label: types.LabelNotToxic, Confidence: 0.83}, nil
}

type harness struct {
	root        string
	extractor   *fakeExtractor
	transcriber *fakeTranscriber
	classifier  Classifier

	mu     sync.Mutex
	stages []Stage
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return &harness{
		root:        filepath.Join(t.TempDir(), "work"),
		extractor:   &fakeExtractor{},
		transcriber: &fakeTranscriber{text: "this is fine"},
		classifier:  classifierFunc(notToxic),
	}
}

func (h *harness) pipeline() *Pipeline {
	return New(Options{
		Area:              workspace.NewArea(h.root),
		Ingestor:          media.NewIngestor(1 << 20),
		Extractor:         h.extractor,
		Transcriber:       h.transcriber,
		Classifier:        h.classifier,
		ClassifierTimeout: time.Second,
		OnStage: func(runID string, s Stage) {
			h.mu.Lock()
			h.stages = append(h.stages, s)
			h.mu.Unlock()
		},
		Log: logger.NewWithOutput(io.Discard),
	})
}

func upload(name, body string) media.Upload {
	return media.Upload{Name: name, Size: int64(len(body)), Body: strings.NewReader(body)}
}

func assertAreaEmpty(t *testing.T, root string) {
	t.Helper()
	entries, err := os.ReadDir(root)
	if errors.Is(err, os.ErrNotExist) {
		return
	}
	if err != nil {
		t.Fatalf("read work area: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("work area not empty: %v", entries)
	}
}

func assertStageError(t *testing.T, err error, stage Stage, kind error) {
	t.Helper()
	var perr *Error
	if !errors.As(err, &perr) {
		t.Fatalf("error = %v, want *pipeline.Error", err)
	}
	if perr.Stage != stage {
		t.Fatalf("stage = %s, want %s", perr.Stage, stage)
	}
	if !errors.Is(err, kind) {
		t.Fatalf("error = %v, want %v", err, kind)
	}
}

func TestRunVideo(t *testing.T) {
	h := newHarness(t)

	res, err := h.pipeline().Run(context.Background(), upload("clip.mp4", "video bytes"))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Kind != types.MediaKindVideo || res.Transcript != "this is fine" {
		t.Fatalf("Run() = %+v", res)
	}
	if res.Verdict.Label != types.LabelNotToxic || res.Verdict.Confidence < 0.5 {
		t.Fatalf("verdict = %+v", res.Verdict)
	}
	if res.RunID == "" {
		t.Fatal("missing run id")
	}

	want := []Stage{StageIngesting, StageExtracting, StageTranscribing, StageClassifying, StageDone}
	if !reflect.DeepEqual(h.stages, want) {
		t.Fatalf("stages = %v, want %v", h.stages, want)
	}
	if got := filepath.Base(h.transcriber.paths[0]); got != "audio.mp3" {
		t.Fatalf("transcribed %s, want extracted audio", got)
	}
	assertAreaEmpty(t, h.root)
}

func TestRunAudioSkipsExtraction(t *testing.T) {
	h := newHarness(t)
	h.transcriber.text = ""

	var classified []string
	h.classifier = classifierFunc(func(ctx context.Context, text string) (types.Verdict, error) {
		classified = append(classified, text)
		return notToxic(ctx, text)
	})

	res, err := h.pipeline().Run(context.Background(), upload("note.wav", "RIFF"))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Transcript != "" || !res.Verdict.Label.Valid() {
		t.Fatalf("Run() = %+v", res)
	}
	if h.extractor.calls != 0 {
		t.Fatalf("extractor called %d times for audio", h.extractor.calls)
	}
	if got := filepath.Base(h.transcriber.paths[0]); got != "input.wav" {
		t.Fatalf("transcribed %s, want ingested file", got)
	}
	if !reflect.DeepEqual(classified, []string{""}) {
		t.Fatalf("classified = %q", classified)
	}
	want := []Stage{StageIngesting, StageTranscribing, StageClassifying, StageDone}
	if !reflect.DeepEqual(h.stages, want) {
		t.Fatalf("stages = %v, want %v", h.stages, want)
	}
	assertAreaEmpty(t, h.root)
}

func TestRunUnsupportedKindTouchesNothing(t *testing.T) {
	h := newHarness(t)

	_, err := h.pipeline().Run(context.Background(), upload("photo.gif", "GIF89a"))
	assertStageError(t, err, StageIngesting, types.ErrUnsupportedMediaKind)
	if types.ClassOf(err) != types.ClassBadInput || types.Retryable(err) {
		t.Fatalf("class = %s retryable = %v", types.ClassOf(err), types.Retryable(err))
	}
	if _, statErr := os.Stat(h.root); !errors.Is(statErr, os.ErrNotExist) {
		t.Fatalf("work area created for rejected upload: %v", statErr)
	}
	if len(h.transcriber.paths) != 0 {
		t.Fatal("transcriber called for rejected upload")
	}
}

func TestRunClassifierUnreachableCleansUp(t *testing.T) {
	h := newHarness(t)
	h.classifier = classifierFunc(func(ctx context.Context, text string) (types.Verdict, error) {
		return types.Verdict{}, types.ErrClassifierUnreachable
	})

	_, err := h.pipeline().Run(context.Background(), upload("clip.mp4", "video bytes"))
	assertStageError(t, err, StageClassifying, types.ErrClassifierUnreachable)
	if !types.Retryable(err) {
		t.Fatal("unreachable classifier should be retryable")
	}
	if last := h.stages[len(h.stages)-1]; last != StageFailed {
		t.Fatalf("last stage = %s, want failed", last)
	}
	assertAreaEmpty(t, h.root)
}

func TestRunClassifierTimeout(t *testing.T) {
	h := newHarness(t)
	h.classifier = classifierFunc(func(ctx context.Context, text string) (types.Verdict, error) {
		<-ctx.Done()
		return types.Verdict{}, ctx.Err()
	})
	p := h.pipeline()
	p.classifierTimeout = 20 * time.Millisecond

	_, err := p.Run(context.Background(), upload("note.mp3", "ID3"))
	assertStageError(t, err, StageClassifying, types.ErrClassifierUnreachable)
	assertAreaEmpty(t, h.root)
}

func TestRunVideoWithoutAudio(t *testing.T) {
	h := newHarness(t)
	h.extractor.err = types.ErrNoAudioStream

	_, err := h.pipeline().Run(context.Background(), upload("silent.mov", "video"))
	assertStageError(t, err, StageExtracting, types.ErrNoAudioStream)
	if types.ClassOf(err) != types.ClassBadInput {
		t.Fatalf("class = %s, want bad_input", types.ClassOf(err))
	}
	if len(h.transcriber.paths) != 0 {
		t.Fatal("transcriber called without audio")
	}
	assertAreaEmpty(t, h.root)
}

func TestRunPanicBecomesInternalError(t *testing.T) {
	h := newHarness(t)
	h.transcriber.panic = true

	_, err := h.pipeline().Run(context.Background(), upload("note.m4a", "x"))
	assertStageError(t, err, StageTranscribing, types.ErrInternal)
	assertAreaEmpty(t, h.root)
}

func TestRunUnkindedStageErrorGetsStageKind(t *testing.T) {
	h := newHarness(t)
	h.transcriber.err = errors.New("whisper crashed")

	_, err := h.pipeline().Run(context.Background(), upload("note.mp3", "ID3"))
	assertStageError(t, err, StageTranscribing, types.ErrTranscriptionFailed)
	if !strings.Contains(err.Error(), "whisper crashed") {
		t.Fatalf("error = %v, want cause kept", err)
	}
}

func TestRunAbortedBeforeStart(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.pipeline().Run(ctx, upload("note.mp3", "ID3"))
	assertStageError(t, err, StageIngesting, types.ErrRunAborted)
	assertAreaEmpty(t, h.root)
}

func TestRunDeadlineIsStageGranular(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h.transcriber = &fakeTranscriber{text: "ok"}
	p := h.pipeline()
	p.transcriber = transcribeThenCancel{inner: h.transcriber, cancel: cancel}

	_, err := p.Run(ctx, upload("note.mp3", "ID3"))
	assertStageError(t, err, StageClassifying, types.ErrRunAborted)
	if got := h.transcriber.ctxs[0].Err(); got != nil {
		t.Fatalf("stage context cancelled with request: %v", got)
	}
	assertAreaEmpty(t, h.root)
}

type transcribeThenCancel struct {
	inner  Transcriber
	cancel context.CancelFunc
}

func (t transcribeThenCancel) Transcribe(ctx context.Context, audioPath string) (string, error) {
	text, err := t.inner.Transcribe(ctx, audioPath)
	t.cancel()
	return text, err
}

func TestConcurrentRunsWithSameFilenameAreIsolated(t *testing.T) {
	h := newHarness(t)
	p := h.pipeline()

	var mu sync.Mutex
	seen := map[string]string{}
	p.transcriber = transcriberFunc(func(ctx context.Context, audioPath string) (string, error) {
		data, err := os.ReadFile(audioPath)
		if err != nil {
			return "", err
		}
		mu.Lock()
		seen[audioPath] = string(data)
		mu.Unlock()
		return string(data), nil
	})

	const n = 8
	var wg sync.WaitGroup
	results := make([]Result, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			body := strings.Repeat("a", i+1)
			results[i], errs[i] = p.Run(context.Background(), media.Upload{Name: "same.wav", Body: bytes.NewBufferString(body)})
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		if errs[i] != nil {
			t.Fatalf("run %d: %v", i, errs[i])
		}
		if want := strings.Repeat("a", i+1); results[i].Transcript != want {
			t.Fatalf("run %d transcript = %q, want %q", i, results[i].Transcript, want)
		}
	}
	if len(seen) != n {
		t.Fatalf("distinct paths = %d, want %d", len(seen), n)
	}
	assertAreaEmpty(t, h.root)
}

type transcriberFunc func(ctx context.Context, audioPath string) (string, error)

func (f transcriberFunc) Transcribe(ctx context.Context, audioPath string) (string, error) {
	return f(ctx, audioPath)
}
