package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"audiotox-go/internal/types"
)

type inferenceResponse struct {
	Text  string `json:"text"`
	Error string `json:"error,omitempty"`
}

// Server calls a whisper.cpp server, which loads its model once at startup.
type Server struct {
	endpoint   string
	language   string
	httpClient *http.Client
}

// NewServer targets baseURL's /inference endpoint.
func NewServer(baseURL, language string, timeout time.Duration) *Server {
	return &Server{
		endpoint:   strings.TrimRight(baseURL, "/") + "/inference",
		language:   normalizeLanguage(language),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Transcribe uploads audioPath and returns the recognized text.
func (s *Server) Transcribe(ctx context.Context, audioPath string) (string, error) {
	f, err := os.Open(audioPath)
	if err != nil {
		return "", fmt.Errorf("%w: open audio: %v", types.ErrTranscriptionFailed, err)
	}
	defer f.Close()

	var b bytes.Buffer
	w := multipart.NewWriter(&b)
	part, err := w.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return "", fmt.Errorf("%w: build request: %v", types.ErrTranscriptionFailed, err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return "", fmt.Errorf("%w: read audio: %v", types.ErrTranscriptionFailed, err)
	}
	_ = w.WriteField("response_format", "json")
	_ = w.WriteField("temperature", "0.0")
	if s.language != "" {
		_ = w.WriteField("language", s.language)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("%w: build request: %v", types.ErrTranscriptionFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, &b)
	if err != nil {
		return "", fmt.Errorf("%w: build request: %v", types.ErrTranscriptionFailed, err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", types.ErrTranscriptionFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: read body: %v", types.ErrTranscriptionFailed, err)
	}
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: server returned %d: %s", types.ErrTranscriptionFailed, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out inferenceResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("%w: json decode error: %v body=%s", types.ErrTranscriptionFailed, err, string(body))
	}
	if out.Error != "" {
		return "", fmt.Errorf("%w: %s", types.ErrTranscriptionFailed, out.Error)
	}
	return cleanTranscript(out.Text), nil
}
