package media

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"audiotox-go/internal/types"
	"audiotox-go/internal/workspace"
)

var kindByExt = map[string]types.MediaKind{
	"mp4": types.MediaKindVideo,
	"mov": types.MediaKindVideo,
	"avi": types.MediaKindVideo,
	"mp3": types.MediaKindAudio,
	"wav": types.MediaKindAudio,
	"m4a": types.MediaKindAudio,
}

// SupportedExtensions lists accepted upload extensions without the dot.
func SupportedExtensions() []string {
	return []string{"mp4", "mov", "avi", "mp3", "wav", "m4a"}
}

// Upload is an uploaded media item as received from the transport layer.
type Upload struct {
	Name string
	Size int64
	Body io.Reader
}

// Ingested is an upload persisted into a run namespace.
type Ingested struct {
	Path  string
	Kind  types.MediaKind
	Ext   string
	Bytes int64
}

// KindFromName derives the media kind from the lower-cased extension of name.
func KindFromName(name string) (types.MediaKind, string, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	kind, ok := kindByExt[ext]
	if !ok {
		return "", "", fmt.Errorf("%q: %w", name, types.ErrUnsupportedMediaKind)
	}
	return kind, ext, nil
}

// Ingestor persists uploads into the transient work area.
type Ingestor struct {
	maxBytes int64
}

// NewIngestor returns an ingestor rejecting uploads above maxBytes; zero
// disables the limit.
func NewIngestor(maxBytes int64) *Ingestor {
	return &Ingestor{maxBytes: maxBytes}
}

// Ingest validates the upload and writes it to a fresh path in run. The
// extension is checked before anything is written. The stored name never
// reuses the uploaded filename.
func (i *Ingestor) Ingest(run *workspace.Run, up Upload) (Ingested, error) {
	kind, ext, err := KindFromName(up.Name)
	if err != nil {
		return Ingested{}, err
	}
	if i.maxBytes > 0 && up.Size > i.maxBytes {
		return Ingested{}, fmt.Errorf("%d bytes exceeds %d: %w", up.Size, i.maxBytes, types.ErrUploadTooLarge)
	}
	if up.Body == nil {
		return Ingested{}, fmt.Errorf("empty upload body: %w", types.ErrIngestFailed)
	}

	path, err := run.Allocate("input." + ext)
	if err != nil {
		return Ingested{}, fmt.Errorf("allocate: %v: %w", err, types.ErrIngestFailed)
	}

	n, err := writeFile(path, up.Body, i.maxBytes)
	if err != nil {
		return Ingested{}, err
	}
	return Ingested{Path: path, Kind: kind, Ext: ext, Bytes: n}, nil
}

func writeFile(path string, body io.Reader, maxBytes int64) (int64, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return 0, fmt.Errorf("create %s: %v: %w", filepath.Base(path), err, types.ErrIngestFailed)
	}

	src := body
	if maxBytes > 0 {
		// one extra byte tells an exact-size upload from an oversize one
		src = io.LimitReader(body, maxBytes+1)
	}
	n, copyErr := io.Copy(f, src)
	closeErr := f.Close()

	switch {
	case copyErr != nil:
		return n, fmt.Errorf("write upload: %v: %w", copyErr, types.ErrIngestFailed)
	case closeErr != nil:
		return n, fmt.Errorf("close upload: %v: %w", closeErr, types.ErrIngestFailed)
	case maxBytes > 0 && n > maxBytes:
		return n, fmt.Errorf("upload exceeds %d bytes: %w", maxBytes, types.ErrUploadTooLarge)
	}
	return n, nil
}

// IsBadInput reports whether err was caused by the upload itself.
func IsBadInput(err error) bool {
	return errors.Is(err, types.ErrUnsupportedMediaKind) || errors.Is(err, types.ErrUploadTooLarge)
}
