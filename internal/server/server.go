// Package server is the HTTP surface of the upload API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"audiotox-go/internal/logger"
	"audiotox-go/internal/media"
	"audiotox-go/internal/pipeline"
	"audiotox-go/internal/processor"
	"audiotox-go/internal/types"
)

// multipartSlack covers multipart framing around the file part.
const multipartSlack = 1 << 20

type Options struct {
	Runner            processor.Runner
	MaxUploadBytes    int64
	MaxConcurrentRuns int64
	RunTimeout        time.Duration
	Log               *logger.Logger
}

type uploadForm struct {
	Filename string `validate:"required,max=255"`
}

type Server struct {
	runner     processor.Runner
	maxUpload  int64
	runTimeout time.Duration
	runs       *semaphore.Weighted
	validate   *validator.Validate
	log        *logger.Logger
}

// New returns the API handler: POST /analyze and GET /healthz.
func New(opts Options) http.Handler {
	limit := opts.MaxConcurrentRuns
	if limit <= 0 {
		limit = 1
	}
	log := opts.Log
	if log == nil {
		log = logger.New()
	}
	s := &Server{
		runner:     opts.Runner,
		maxUpload:  opts.MaxUploadBytes,
		runTimeout: opts.RunTimeout,
		runs:       semaphore.NewWeighted(limit),
		validate:   validator.New(),
		log:        log.Component("server"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "ok")
	})
	mux.HandleFunc("/analyze", s.analyze)
	return WithRequestLog(s.log, mux)
}

func (s *Server) analyze(w http.ResponseWriter, r *http.Request) {
	reqLog := s.log.WithRequest(r).WithField("handler", "analyze")
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if s.maxUpload > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload+multipartSlack)
	}
	part, err := filePart(r)
	if err != nil {
		reqLog.WithField("error", err.Error()).Warn("invalid upload")
		s.writeResult(w, reqLog, http.StatusBadRequest, failure("", err))
		return
	}
	defer part.Close()

	form := uploadForm{Filename: part.FileName()}
	if err := s.validate.Struct(form); err != nil {
		reqLog.WithField("error", err.Error()).Warn("invalid filename")
		s.writeResult(w, reqLog, http.StatusBadRequest, failure(form.Filename, errors.New("invalid filename")))
		return
	}
	// unsupported kinds never wait for a run slot
	if _, _, err := media.KindFromName(form.Filename); err != nil {
		reqLog.WithField("error", err.Error()).Warn("unsupported media kind")
		s.writeResult(w, reqLog, StatusCode(err), failure(form.Filename, err))
		return
	}

	// the run timeout also bounds the wait for a slot
	ctx := r.Context()
	if s.runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.runTimeout)
		defer cancel()
	}

	if err := s.runs.Acquire(ctx, 1); err != nil {
		aborted := fmt.Errorf("%w: waiting for a run slot: %v", types.ErrRunAborted, err)
		reqLog.WithField("error", aborted.Error()).Warn("no run slot")
		s.writeResult(w, reqLog, StatusCode(aborted), failure(form.Filename, aborted))
		return
	}
	defer s.runs.Release(1)

	reqLog = reqLog.WithField("filename", form.Filename)
	res, err := processor.Analyze(ctx, s.runner, media.Upload{Name: form.Filename, Body: part})
	reqLog = reqLog.WithField("run_id", res.RunID).WithField("duration_ms", res.DurationMs)
	if err != nil {
		reqLog.WithField("error", err.Error()).WithField("error_class", res.ErrorClass).Warn("run failed")
	} else {
		reqLog.WithField("label", res.Label).Info("run succeeded")
	}
	s.writeResult(w, reqLog, StatusCode(err), res)
}

// filePart returns the multipart part named "file" without buffering it.
func filePart(r *http.Request) (*multipart.Part, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, fmt.Errorf("expected multipart/form-data: %v", err)
	}
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return nil, errors.New("missing file field")
		}
		if err != nil {
			return nil, fmt.Errorf("read multipart: %v", err)
		}
		if part.FormName() == "file" {
			return part, nil
		}
		part.Close()
	}
}

// failure shapes errors raised before a run starts. Malformed requests have
// no error kind of their own and are reported as invalid_upload.
func failure(filename string, err error) processor.AnalysisResult {
	res := processor.AnalysisResult{
		Filename:   filename,
		Stage:      pipeline.StageIngesting,
		Error:      err.Error(),
		ErrorKind:  types.KindOf(err),
		ErrorClass: types.ClassOf(err),
		Retryable:  types.Retryable(err),
	}
	if res.ErrorKind == "unknown" {
		res.ErrorKind = "invalid_upload"
		res.ErrorClass = types.ClassBadInput
	}
	return res
}

// StatusCode maps a run error onto an HTTP status.
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, types.ErrUploadTooLarge):
		return http.StatusRequestEntityTooLarge
	}
	switch types.ClassOf(err) {
	case types.ClassBadInput:
		return http.StatusBadRequest
	case types.ClassInfrastructure:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeResult(w http.ResponseWriter, reqLog *logrus.Entry, status int, res processor.AnalysisResult) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		reqLog.WithField("error", err.Error()).Error("failed to write response")
	}
}
