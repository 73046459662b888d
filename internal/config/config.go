package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is the process configuration shared by the binaries under cmd/.
type Config struct {
	Port        string
	Environment string
	LogLevel    string

	// Transient work area
	WorkDir           string
	MaxUploadBytes    int64
	MaxConcurrentRuns int
	RunTimeout        time.Duration

	// Classification service
	ClassifierPort    string
	ClassifierURL     string
	ClassifierTimeout time.Duration
	ClassifierWait    time.Duration

	// Media tools
	FFmpegPath  string
	FFprobePath string

	// Speech to text
	WhisperBackend   string
	WhisperPath      string
	WhisperModelPath string
	WhisperServerURL string
	WhisperLanguage  string

	// Model artifacts
	VectorizerPath string
	ModelPath      string
}

const (
	WhisperBackendCLI    = "cli"
	WhisperBackendServer = "server"
)

// LoadDotEnv loads .env into the environment; a missing file is not an error.
func LoadDotEnv(files ...string) {
	_ = godotenv.Load(files...)
}

// Load reads the configuration from the environment.
func Load() (Config, error) {
	cfg := Config{
		Port:             envOr("PORT", "8080"),
		Environment:      envOr("ENVIRONMENT", "local"),
		LogLevel:         envOr("LOG_LEVEL", "info"),
		WorkDir:          envOr("WORK_DIR", "temp"),
		ClassifierPort:   envOr("CLASSIFIER_PORT", "5000"),
		ClassifierURL:    strings.TrimRight(envOr("CLASSIFIER_URL", "http://localhost:5000"), "/"),
		FFmpegPath:       envOr("FFMPEG_PATH", "ffmpeg"),
		FFprobePath:      envOr("FFPROBE_PATH", "ffprobe"),
		WhisperBackend:   strings.ToLower(envOr("WHISPER_BACKEND", WhisperBackendCLI)),
		WhisperPath:      envOr("WHISPER_PATH", "whisper-cli"),
		WhisperModelPath: envOr("WHISPER_MODEL_PATH", "models"),
		WhisperServerURL: strings.TrimRight(envOr("WHISPER_SERVER_URL", "http://localhost:8081"), "/"),
		WhisperLanguage:  envOr("WHISPER_LANGUAGE", "auto"),
		VectorizerPath:   envOr("VECTORIZER_PATH", "vectorizer.json"),
		ModelPath:        envOr("MODEL_PATH", "model.json"),
	}

	uploadMB, err := envInt("MAX_UPLOAD_MB", 200)
	if err != nil {
		return Config{}, err
	}
	if int64(uploadMB) > math.MaxInt64>>20 {
		return Config{}, fmt.Errorf("invalid MAX_UPLOAD_MB %d: too large", uploadMB)
	}
	cfg.MaxUploadBytes = int64(uploadMB) << 20

	if cfg.MaxConcurrentRuns, err = envInt("MAX_CONCURRENT_RUNS", 4); err != nil {
		return Config{}, err
	}
	if cfg.RunTimeout, err = envSeconds("RUN_TIMEOUT_SEC", 600); err != nil {
		return Config{}, err
	}
	if cfg.ClassifierTimeout, err = envSeconds("CLASSIFIER_TIMEOUT_SEC", 10); err != nil {
		return Config{}, err
	}
	if cfg.ClassifierWait, err = envSeconds("CLASSIFIER_WAIT_SEC", 30); err != nil {
		return Config{}, err
	}

	if cfg.WhisperBackend != WhisperBackendCLI && cfg.WhisperBackend != WhisperBackendServer {
		return Config{}, fmt.Errorf("invalid WHISPER_BACKEND %q: want %s or %s", cfg.WhisperBackend, WhisperBackendCLI, WhisperBackendServer)
	}
	return cfg, nil
}

func envOr(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

// envInt parses a positive integer variable.
func envInt(k string, def int) (int, error) {
	raw := envOr(k, "")
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid %s %q: want a positive integer", k, raw)
	}
	return n, nil
}

func envSeconds(k string, def int) (time.Duration, error) {
	n, err := envInt(k, def)
	if err != nil {
		return 0, err
	}
	return time.Duration(n) * time.Second, nil
}
