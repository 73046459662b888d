// Package diagnostics checks, at startup, that the media tools, the speech
// model and the work area the pipeline depends on are usable.
package diagnostics

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"audiotox-go/internal/config"
	"audiotox-go/internal/logger"
)

type Status string

const (
	StatusPass Status = "pass"
	StatusFail Status = "fail"
	StatusSkip Status = "skip"
)

// Item is one startup check result with optional hint.
type Item struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Status  Status `json:"status"`
	Message string `json:"message"`
	Hint    string `json:"hint,omitempty"`
}

type Report struct {
	GeneratedAt time.Time `json:"generated_at"`
	HasFailures bool      `json:"has_failures"`
	Items       []Item    `json:"items"`
}

// Log writes one line per check; failures are logged as errors.
func (r Report) Log(log *logger.Logger) {
	for _, item := range r.Items {
		entry := log.WithField("check", item.ID).WithField("status", item.Status)
		switch item.Status {
		case StatusFail:
			entry.WithField("hint", item.Hint).Error(item.Message)
		default:
			entry.Info(item.Message)
		}
	}
}

// Checker validates external tools and required filesystem paths.
type Checker struct {
	lookPath   func(string) (string, error)
	stat       func(string) (os.FileInfo, error)
	readDir    func(string) ([]os.DirEntry, error)
	mkdirAll   func(string, os.FileMode) error
	createTemp func(string, string) (*os.File, error)
	remove     func(string) error
}

// NewChecker builds a checker using real OS dependencies.
func NewChecker() *Checker {
	return &Checker{
		lookPath:   exec.LookPath,
		stat:       os.Stat,
		readDir:    os.ReadDir,
		mkdirAll:   os.MkdirAll,
		createTemp: os.CreateTemp,
		remove:     os.Remove,
	}
}

// Run executes all startup checks for cfg. The whisper binary and model are
// only checked for the CLI backend; the server backend owns its own model.
func (c *Checker) Run(cfg config.Config) Report {
	items := []Item{
		c.checkTool("ffmpeg", cfg.FFmpegPath),
		c.checkTool("ffprobe", cfg.FFprobePath),
	}
	if cfg.WhisperBackend == config.WhisperBackendServer {
		items = append(items,
			skipped("tool_whisper", "whisper", "using whisper server at "+cfg.WhisperServerURL),
			skipped("model_path", "Model path", "model is loaded by the whisper server"),
		)
	} else {
		items = append(items,
			c.checkTool("whisper", cfg.WhisperPath),
			c.checkModelPath(cfg.WhisperModelPath),
		)
	}
	items = append(items, c.checkWorkDir(cfg.WorkDir))

	hasFailures := false
	for _, item := range items {
		if item.Status == StatusFail {
			hasFailures = true
			break
		}
	}

	return Report{
		GeneratedAt: time.Now().UTC(),
		HasFailures: hasFailures,
		Items:       items,
	}
}

func skipped(id, name, msg string) Item {
	return Item{ID: id, Name: name, Status: StatusSkip, Message: msg}
}

// checkTool verifies a required CLI executable resolves.
func (c *Checker) checkTool(name, bin string) Item {
	item := Item{ID: "tool_" + name, Name: name}
	path, err := c.lookPath(bin)
	if err != nil {
		item.Status = StatusFail
		item.Message = fmt.Sprintf("Tool not found: %s", bin)
		item.Hint = "Install it and make sure it is on PATH, or point the matching *_PATH variable at the binary."
		return item
	}

	item.Status = StatusPass
	item.Message = fmt.Sprintf("Found at %s", path)
	return item
}

// checkModelPath validates configured model file or model directory.
func (c *Checker) checkModelPath(modelPath string) Item {
	item := Item{
		ID:   "model_path",
		Name: "Model path",
	}

	if strings.TrimSpace(modelPath) == "" {
		item.Status = StatusFail
		item.Message = "Model path is empty."
		item.Hint = "Set WHISPER_MODEL_PATH to a model file or a directory containing whisper models."
		return item
	}

	info, err := c.stat(modelPath)
	if err != nil {
		item.Status = StatusFail
		if errors.Is(err, os.ErrNotExist) {
			item.Message = fmt.Sprintf("Model path does not exist: %s", modelPath)
		} else {
			item.Message = fmt.Sprintf("Cannot access model path: %s", modelPath)
		}
		item.Hint = "Download a whisper.cpp model and set WHISPER_MODEL_PATH."
		return item
	}

	if !info.IsDir() {
		item.Status = StatusPass
		item.Message = fmt.Sprintf("Model file found: %s", modelPath)
		return item
	}

	entries, err := c.readDir(modelPath)
	if err != nil {
		item.Status = StatusFail
		item.Message = fmt.Sprintf("Cannot read model directory: %s", modelPath)
		item.Hint = "Check permissions for the model directory."
		return item
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext == ".bin" || ext == ".gguf" {
			item.Status = StatusPass
			item.Message = fmt.Sprintf("Model directory is valid: %s", modelPath)
			return item
		}
	}

	item.Status = StatusFail
	item.Message = fmt.Sprintf("No model files found in directory: %s", modelPath)
	item.Hint = "Place a .bin or .gguf model file in this directory or point to a model file directly."
	return item
}

// checkWorkDir validates that the transient work area can be written.
func (c *Checker) checkWorkDir(workDir string) Item {
	item := Item{
		ID:   "work_dir",
		Name: "Work directory",
	}

	if strings.TrimSpace(workDir) == "" {
		item.Status = StatusFail
		item.Message = "Work directory is empty."
		item.Hint = "Set WORK_DIR to a writable directory for transient run files."
		return item
	}

	if err := c.mkdirAll(workDir, 0o755); err != nil {
		item.Status = StatusFail
		item.Message = fmt.Sprintf("Cannot create work directory: %s", workDir)
		item.Hint = "Choose a writable location or adjust filesystem permissions."
		return item
	}

	tmpFile, err := c.createTemp(workDir, ".write-check-*")
	if err != nil {
		item.Status = StatusFail
		item.Message = fmt.Sprintf("Work directory is not writable: %s", workDir)
		item.Hint = "Choose a writable location or adjust filesystem permissions."
		return item
	}

	tmpPath := tmpFile.Name()
	_ = tmpFile.Close()
	_ = c.remove(tmpPath)

	item.Status = StatusPass
	item.Message = fmt.Sprintf("Writable directory: %s", workDir)
	return item
}
