package types

import "errors"

// Error kinds shared by every stage. Stages wrap these with %w so callers can
// match them with errors.Is regardless of the underlying cause.
var (
	ErrUnsupportedMediaKind  = errors.New("unsupported media kind")
	ErrUploadTooLarge        = errors.New("upload too large")
	ErrIngestFailed          = errors.New("ingest failed")
	ErrNoAudioStream         = errors.New("no audio stream found")
	ErrAudioExtractionFailed = errors.New("audio extraction failed")
	ErrTranscriptionFailed   = errors.New("transcription failed")
	ErrClassifierUnreachable = errors.New("classifier unreachable")
	ErrClassifierProtocol    = errors.New("classifier protocol error")
	ErrRunAborted            = errors.New("run aborted")
	ErrInternal              = errors.New("internal error")
)

// ErrorClass groups error kinds by what a caller can do about them.
type ErrorClass string

const (
	ClassBadInput       ErrorClass = "bad_input"
	ClassInfrastructure ErrorClass = "infrastructure"
	ClassInternal       ErrorClass = "internal"
)

var errorKinds = []struct {
	err   error
	kind  string
	class ErrorClass
}{
	{ErrUnsupportedMediaKind, "unsupported_media_kind", ClassBadInput},
	{ErrUploadTooLarge, "upload_too_large", ClassBadInput},
	{ErrNoAudioStream, "no_audio_stream_found", ClassBadInput},
	{ErrClassifierUnreachable, "classifier_unreachable", ClassInfrastructure},
	{ErrRunAborted, "run_aborted", ClassInfrastructure},
	{ErrClassifierProtocol, "classifier_protocol_error", ClassInternal},
	{ErrAudioExtractionFailed, "audio_extraction_failed", ClassInternal},
	{ErrTranscriptionFailed, "transcription_failed", ClassInternal},
	{ErrIngestFailed, "ingest_failed", ClassInternal},
	{ErrInternal, "internal_error", ClassInternal},
}

// KindOf returns the snake_case kind of err, "unknown" when err wraps none
// of the known kinds and "" for nil.
func KindOf(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return "unknown"
}

// ClassOf returns the class of err. Unknown errors are internal.
func ClassOf(err error) ErrorClass {
	if err == nil {
		return ""
	}
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			return k.class
		}
	}
	return ClassInternal
}

// Retryable reports whether a caller may sensibly retry after err.
func Retryable(err error) bool {
	return ClassOf(err) == ClassInfrastructure
}
