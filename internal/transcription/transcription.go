// Package transcription turns audio files into text with whisper.cpp, either
// by running its CLI or by calling a whisper.cpp server that keeps the model
// resident.
package transcription

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"audiotox-go/internal/command"
	"audiotox-go/internal/config"
	"audiotox-go/internal/types"
)

// Transcriber converts an audio file into text. Implementations are safe for
// concurrent use and never change their model after construction.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (string, error)
}

// New builds the transcriber selected by cfg.WhisperBackend.
func New(cfg config.Config) (Transcriber, error) {
	switch cfg.WhisperBackend {
	case config.WhisperBackendServer:
		return NewServer(cfg.WhisperServerURL, cfg.WhisperLanguage, serverTimeout(cfg.RunTimeout)), nil
	case config.WhisperBackendCLI, "":
		return NewCLI(CLIOptions{
			FFmpegPath:  cfg.FFmpegPath,
			WhisperPath: cfg.WhisperPath,
			ModelPath:   cfg.WhisperModelPath,
			Language:    cfg.WhisperLanguage,
		})
	default:
		return nil, fmt.Errorf("unsupported whisper backend %q", cfg.WhisperBackend)
	}
}

// defaultServerTimeout applies when no run timeout is configured.
const defaultServerTimeout = 10 * time.Minute

// serverTimeout caps a whisper server call at the run timeout, since a run
// cannot outlive it anyway.
func serverTimeout(runTimeout time.Duration) time.Duration {
	if runTimeout <= 0 {
		return defaultServerTimeout
	}
	return runTimeout
}

// CLIOptions configures the whisper.cpp CLI backend.
type CLIOptions struct {
	FFmpegPath  string
	WhisperPath string
	ModelPath   string
	Language    string
	Runner      command.Runner
}

// CLI runs whisper.cpp as a subprocess per transcription.
type CLI struct {
	ffmpegPath  string
	whisperPath string
	modelPath   string
	language    string
	runner      command.Runner
	readFile    func(string) ([]byte, error)
	remove      func(string) error
}

// NewCLI resolves the model once; the same model file serves every call.
func NewCLI(opts CLIOptions) (*CLI, error) {
	modelPath, err := ResolveModelPath(opts.ModelPath)
	if err != nil {
		return nil, err
	}
	runner := opts.Runner
	if runner == nil {
		runner = command.ExecRunner{}
	}
	return &CLI{
		ffmpegPath:  opts.FFmpegPath,
		whisperPath: opts.WhisperPath,
		modelPath:   modelPath,
		language:    opts.Language,
		runner:      runner,
		readFile:    os.ReadFile,
		remove:      os.Remove,
	}, nil
}

// ModelPath is the resolved whisper model file.
func (c *CLI) ModelPath() string {
	return c.modelPath
}

// Transcribe converts audioPath to 16 kHz mono PCM next to it, runs whisper
// and reads back the text export. Scratch files are removed before return.
func (c *CLI) Transcribe(ctx context.Context, audioPath string) (string, error) {
	dir := filepath.Dir(audioPath)
	stem := strings.TrimSuffix(filepath.Base(audioPath), filepath.Ext(audioPath))
	wavPath := filepath.Join(dir, stem+".16k.wav")
	textBase := filepath.Join(dir, stem+".transcript")
	textPath := textBase + ".txt"
	defer func() {
		_ = c.remove(wavPath)
		_ = c.remove(textPath)
	}()

	args := buildFFmpegArgs(audioPath, wavPath)
	res, err := c.runner.Run(ctx, c.ffmpegPath, args...)
	if err != nil {
		return "", &command.Error{
			Log: command.NewLog(c.ffmpegPath, args, res),
			Err: fmt.Errorf("%w: decode audio: %v", types.ErrTranscriptionFailed, err),
		}
	}

	whisperArgs := buildWhisperArgs(c.modelPath, wavPath, textBase, c.language)
	res, err = c.runner.Run(ctx, c.whisperPath, whisperArgs...)
	if err != nil {
		return "", &command.Error{
			Log: command.NewLog(c.whisperPath, whisperArgs, res),
			Err: fmt.Errorf("%w: whisper: %v", types.ErrTranscriptionFailed, err),
		}
	}

	content, err := c.readFile(textPath)
	if err != nil {
		return "", fmt.Errorf("%w: read transcript: %v", types.ErrTranscriptionFailed, err)
	}
	return cleanTranscript(string(content)), nil
}

// ResolveModelPath returns model file path from file or directory input.
func ResolveModelPath(rawPath string) (string, error) {
	modelPath := strings.TrimSpace(rawPath)
	if modelPath == "" {
		return "", fmt.Errorf("model path is required")
	}

	info, err := os.Stat(modelPath)
	if err != nil {
		return "", fmt.Errorf("cannot access model path: %s", modelPath)
	}
	if !info.IsDir() {
		return modelPath, nil
	}

	entries, err := os.ReadDir(modelPath)
	if err != nil {
		return "", fmt.Errorf("cannot read model directory: %s", modelPath)
	}

	modelNames := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext == ".bin" || ext == ".gguf" {
			modelNames = append(modelNames, entry.Name())
		}
	}
	if len(modelNames) == 0 {
		return "", fmt.Errorf("no .bin or .gguf model files found in: %s", modelPath)
	}

	sort.Strings(modelNames)
	return filepath.Join(modelPath, modelNames[0]), nil
}

// cleanTranscript joins whisper's per-segment lines. Silence comes back as "".
func cleanTranscript(raw string) string {
	return strings.Join(strings.Fields(raw), " ")
}

// normalizeLanguage maps "auto" and empty language to no CLI override.
func normalizeLanguage(raw string) string {
	lang := strings.TrimSpace(raw)
	if lang == "" || strings.EqualFold(lang, "auto") {
		return ""
	}
	return lang
}

// buildFFmpegArgs builds preprocessing CLI args for mono 16k PCM WAV output.
func buildFFmpegArgs(inputPath, outPath string) []string {
	return []string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-i", inputPath,
		"-vn",
		"-ac", "1",
		"-ar", "16000",
		"-c:a", "pcm_s16le",
		outPath,
	}
}

// buildWhisperArgs builds whisper.cpp args for txt transcript export.
func buildWhisperArgs(modelPath, audioPath, textBase, language string) []string {
	args := []string{
		"-m", modelPath,
		"-f", audioPath,
		"-of", textBase,
		"-otxt",
		"-nt",
	}
	if lang := normalizeLanguage(language); lang != "" {
		args = append(args, "-l", lang)
	}
	return args
}
