// Package credentials handles bootstrap configuration for a workspace
// session. Configuration comes from a .workspacerc file (TOML, JSON, or
// simple KEY=value — tried in that order), overlaid by WORKSPACE_* env vars.
// Secret references of the form vault://path are resolved through
// WORKSPACE_SECRET_* env vars and cached for the session.
package credentials

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/primarycredit/workspace/pkg/models"
)

const (
	// BootstrapSessionEnv carries a serialized session between processes.
	BootstrapSessionEnv = "WORKSPACE_BOOTSTRAP_SESSION"
	// RCPathEnv overrides the .workspacerc location.
	RCPathEnv = "WORKSPACE_RC_PATH"

	envPrefix       = "WORKSPACE_"
	secretEnvPrefix = "WORKSPACE_SECRET_"

	defaultAppName        = "primary-credit"
	defaultEnvironmentKey = "local"
	defaultRegion         = "us-east-1"
)

// Session is the in-memory representation of bootstrap configuration.
type Session struct {
	AppName        string            `json:"app_name"`
	EnvironmentKey string            `json:"environment_key"`
	Region         string            `json:"region"`
	ExecutionRoot  string            `json:"execution_root"`
	LocalStore     map[string]string `json:"local_store"`

	secretCache map[string]string
}

// Bootstrap initializes a session from the environment and the rc file under
// executionRoot, then persists it to BootstrapSessionEnv for subsequent
// processes.
func Bootstrap(executionRoot string) (*Session, error) {
	s := &Session{
		AppName:        envOr("APP_NAME", defaultAppName),
		EnvironmentKey: envOr("ENVIRONMENT_KEY", defaultEnvironmentKey),
		Region:         envOr("REGION", defaultRegion),
		ExecutionRoot:  executionRoot,
		LocalStore:     map[string]string{},
	}
	if err := s.loadRC(); err != nil {
		return nil, err
	}

	raw, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("serialize bootstrap session: %w", err)
	}
	os.Setenv(BootstrapSessionEnv, string(raw))
	return s, nil
}

// LoadSession restores a previously serialized session from the environment.
// Returns nil when no session is stored.
func LoadSession() *Session {
	payload := os.Getenv(BootstrapSessionEnv)
	if payload == "" {
		return nil
	}
	var s Session
	if err := json.Unmarshal([]byte(payload), &s); err != nil {
		return nil
	}
	if s.LocalStore == nil {
		s.LocalStore = map[string]string{}
	}
	return &s
}

// Get resolves a configuration key: the rc-file store first (with secret
// resolution), then the WORKSPACE_<KEY> env var, then the fallback.
func (s *Session) Get(key, fallback string) string {
	lookup := normalizeKey(key)
	if v, ok := s.LocalStore[lookup]; ok && v != "" {
		if resolved := s.resolveValue(v); resolved != "" {
			return resolved
		}
	}
	if v := os.Getenv(envPrefix + lookup); v != "" {
		return v
	}
	return fallback
}

func (s *Session) loadRC() error {
	path := s.rcPath()
	raw, err := os.ReadFile(path)
	if err != nil {
		// A missing rc file is a valid local setup.
		return nil
	}
	text := strings.TrimSpace(string(raw))
	if text == "" {
		return nil
	}

	parsed, err := parseRC(text)
	if err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	for k, v := range parsed {
		s.LocalStore[normalizeKey(k)] = v
	}
	return nil
}

func (s *Session) rcPath() string {
	if p := os.Getenv(RCPathEnv); p != "" {
		return p
	}
	direct := filepath.Join(s.ExecutionRoot, ".workspacerc")
	if _, err := os.Stat(direct); err == nil {
		return direct
	}
	fallback := filepath.Join(s.ExecutionRoot, "config", "workspacerc.toml")
	if _, err := os.Stat(fallback); err == nil {
		return fallback
	}
	return direct
}

// parseRC tries TOML, then JSON, then simple KEY=value lines.
func parseRC(text string) (map[string]string, error) {
	var tomlData map[string]any
	if err := toml.Unmarshal([]byte(text), &tomlData); err == nil && len(tomlData) > 0 {
		return stringify(tomlData), nil
	}

	var jsonData map[string]any
	if err := json.Unmarshal([]byte(text), &jsonData); err == nil {
		return stringify(jsonData), nil
	}

	data := map[string]string{}
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return nil, fmt.Errorf("invalid key/value line %q", line)
		}
		data[strings.TrimSpace(key)] = strings.Trim(strings.TrimSpace(value), `"`)
	}
	return data, nil
}

// resolveValue expands vault:// references through the secret env vars.
func (s *Session) resolveValue(value string) string {
	if !strings.HasPrefix(strings.ToLower(value), "vault://") {
		return value
	}
	reference := value[len("vault://"):]
	cacheKey := normalizeKey(reference)

	if s.secretCache == nil {
		s.secretCache = map[string]string{}
	}
	if cached, ok := s.secretCache[cacheKey]; ok {
		return cached
	}
	resolved := os.Getenv(secretEnvPrefix + cacheKey)
	if resolved != "" {
		s.secretCache[cacheKey] = resolved
	}
	return resolved
}

// LoadRuntimeCredentials hydrates the non-sensitive runtime credentials from
// a bootstrapped session.
func LoadRuntimeCredentials(s *Session) models.RuntimeCredentials {
	return models.RuntimeCredentials{
		AppDisplayName: s.Get("APP_DISPLAY_NAME", "Primary Credit Issuance Workspace"),
		AppName:        s.AppName,
		AppVersion:     s.Get("APP_VERSION", "0.1.0"),
		EnvironmentKey: s.EnvironmentKey,
		Region:         s.Region,
		UID:            s.Get("UID", ""),
		DatasetKey:     s.Get("DATASET_KEY", ""),
		DatabaseURL:    s.Get("DATABASE_URL", ""),
		LLMModel:       s.Get("LLM_MODEL", ""),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(envPrefix + key); v != "" {
		return v
	}
	return fallback
}

func normalizeKey(key string) string {
	key = strings.ToUpper(strings.TrimSpace(key))
	key = strings.ReplaceAll(key, "-", "_")
	return strings.ReplaceAll(key, "/", "_")
}

func stringify(data map[string]any) map[string]string {
	out := make(map[string]string, len(data))
	for k, v := range data {
		switch value := v.(type) {
		case string:
			out[k] = value
		case bool:
			out[k] = fmt.Sprintf("%t", value)
		case int64:
			out[k] = fmt.Sprintf("%d", value)
		case float64:
			out[k] = strings.TrimSuffix(fmt.Sprintf("%v", value), ".0")
		default:
			// Nested tables and arrays are not part of the rc contract.
		}
	}
	return out
}
