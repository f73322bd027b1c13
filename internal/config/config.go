package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the workspace server.
type Config struct {
	Port    int
	Version string

	// DataDir is the root for the attestation file, the feedback database,
	// local datasets, and uploaded artifacts.
	DataDir string

	// AttestationPath is the JSON file holding the attestation decision.
	AttestationPath string

	// FeedbackDBPath is the SQLite database for persisted feedback.
	FeedbackDBPath string

	// PromptSuggestionsPath is the JSON file of prompt categories seeded
	// into new chat sessions.
	PromptSuggestionsPath string

	// MockBackendDelay simulates chat backend latency.
	MockBackendDelay time.Duration

	Telemetry TelemetryConfig
}

type TelemetryConfig struct {
	Enabled      bool
	OTLPEndpoint string
	ServiceName  string
}

// Load reads configuration from the environment with sensible defaults.
// A .env file in the working directory is applied first when present.
func Load() *Config {
	_ = godotenv.Load()

	dataDir := envStr("WORKSPACE_DATA_DIR", "data")
	return &Config{
		Port:                  envInt("WORKSPACE_PORT", 8080),
		Version:               envStr("WORKSPACE_VERSION", "0.1.0"),
		DataDir:               dataDir,
		AttestationPath:       envStr("WORKSPACE_ATTESTATION_PATH", filepath.Join(dataDir, "attestation.json")),
		FeedbackDBPath:        envStr("WORKSPACE_FEEDBACK_DB", filepath.Join(dataDir, "feedback.db")),
		PromptSuggestionsPath: envStr("WORKSPACE_PROMPT_SUGGESTIONS", filepath.Join(dataDir, "prompt_suggestions.json")),
		MockBackendDelay:      envDuration("WORKSPACE_MOCK_BACKEND_DELAY", 150*time.Millisecond),
		Telemetry: TelemetryConfig{
			Enabled:      envBool("OTEL_ENABLED", false),
			OTLPEndpoint: envStr("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			ServiceName:  envStr("OTEL_SERVICE_NAME", "primarycredit-workspace"),
		},
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
