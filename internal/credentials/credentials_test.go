package credentials_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/primarycredit/workspace/internal/credentials"
)

func writeRC(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, ".workspacerc"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func bootstrap(t *testing.T, dir string) *credentials.Session {
	t.Helper()
	t.Setenv(credentials.BootstrapSessionEnv, "")
	t.Setenv(credentials.RCPathEnv, "")
	s, err := credentials.Bootstrap(dir)
	if err != nil {
		t.Fatalf("Bootstrap() error = %v", err)
	}
	return s
}

// ── RC parsing cascade ──────────────────────────────────────

func TestBootstrapParsesTOMLRC(t *testing.T) {
	dir := t.TempDir()
	writeRC(t, dir, `
dataset_key = "issuance.csv"
app_version = "1.2.3"
retries = 3
verbose = true
`)
	s := bootstrap(t, dir)

	if got := s.Get("DATASET_KEY", ""); got != "issuance.csv" {
		t.Errorf("Get(DATASET_KEY) = %q, want issuance.csv", got)
	}
	if got := s.Get("APP_VERSION", ""); got != "1.2.3" {
		t.Errorf("Get(APP_VERSION) = %q, want 1.2.3", got)
	}
	if got := s.Get("RETRIES", ""); got != "3" {
		t.Errorf("Get(RETRIES) = %q, want 3", got)
	}
	if got := s.Get("VERBOSE", ""); got != "true" {
		t.Errorf("Get(VERBOSE) = %q, want true", got)
	}
}

func TestBootstrapParsesJSONRC(t *testing.T) {
	dir := t.TempDir()
	writeRC(t, dir, `{"dataset_key": "issuance.csv", "llm_model": "analyst-v2"}`)
	s := bootstrap(t, dir)

	if got := s.Get("DATASET_KEY", ""); got != "issuance.csv" {
		t.Errorf("Get(DATASET_KEY) = %q, want issuance.csv", got)
	}
	if got := s.Get("LLM_MODEL", ""); got != "analyst-v2" {
		t.Errorf("Get(LLM_MODEL) = %q, want analyst-v2", got)
	}
}

func TestBootstrapParsesKeyValueRC(t *testing.T) {
	dir := t.TempDir()
	writeRC(t, dir, `
# local overrides
DATASET_KEY=issuance.csv
REGION=eu-west-1
`)
	s := bootstrap(t, dir)

	if got := s.Get("DATASET_KEY", ""); got != "issuance.csv" {
		t.Errorf("Get(DATASET_KEY) = %q, want issuance.csv", got)
	}
	if got := s.Get("REGION", ""); got != "eu-west-1" {
		t.Errorf("Get(REGION) = %q, want eu-west-1", got)
	}
}

func TestBootstrapMissingRCIsValid(t *testing.T) {
	s := bootstrap(t, t.TempDir())

	if got := s.Get("DATASET_KEY", "fallback"); got != "fallback" {
		t.Errorf("Get() = %q with no rc file, want fallback", got)
	}
}

// ── Resolution order ────────────────────────────────────────

func TestGetPrefersRCOverEnv(t *testing.T) {
	dir := t.TempDir()
	writeRC(t, dir, `region = "from-rc"`)
	s := bootstrap(t, dir)
	t.Setenv("WORKSPACE_REGION", "from-env")

	if got := s.Get("REGION", ""); got != "from-rc" {
		t.Errorf("Get(REGION) = %q, want rc value to win", got)
	}
}

func TestGetFallsBackToEnv(t *testing.T) {
	s := bootstrap(t, t.TempDir())
	t.Setenv("WORKSPACE_DATABASE_URL", "postgres://env")

	if got := s.Get("DATABASE_URL", ""); got != "postgres://env" {
		t.Errorf("Get(DATABASE_URL) = %q, want env value", got)
	}
}

func TestGetNormalizesKeys(t *testing.T) {
	dir := t.TempDir()
	writeRC(t, dir, `dataset-key = "normalized"`)
	s := bootstrap(t, dir)

	if got := s.Get("dataset_key", ""); got != "normalized" {
		t.Errorf("Get(dataset_key) = %q, want normalized", got)
	}
}

// ── Secret resolution ───────────────────────────────────────

func TestGetResolvesVaultReference(t *testing.T) {
	dir := t.TempDir()
	writeRC(t, dir, `database_url = "vault://db/primary"`)
	s := bootstrap(t, dir)
	t.Setenv("WORKSPACE_SECRET_DB_PRIMARY", "postgres://secret")

	if got := s.Get("DATABASE_URL", ""); got != "postgres://secret" {
		t.Errorf("Get(DATABASE_URL) = %q, want resolved secret", got)
	}

	// Resolution is cached for the session; clearing the env does not lose
	// the value.
	t.Setenv("WORKSPACE_SECRET_DB_PRIMARY", "")
	if got := s.Get("DATABASE_URL", ""); got != "postgres://secret" {
		t.Errorf("Get(DATABASE_URL) = %q after env cleared, want cached secret", got)
	}
}

func TestGetUnresolvableVaultReferenceFallsThrough(t *testing.T) {
	dir := t.TempDir()
	writeRC(t, dir, `database_url = "vault://db/absent"`)
	s := bootstrap(t, dir)

	if got := s.Get("DATABASE_URL", "fallback"); got != "fallback" {
		t.Errorf("Get(DATABASE_URL) = %q for unresolvable secret, want fallback", got)
	}
}

// ── Session persistence ─────────────────────────────────────

func TestBootstrapSessionRoundTrip(t *testing.T) {
	dir := t.TempDir()
	writeRC(t, dir, `dataset_key = "issuance.csv"`)
	bootstrap(t, dir)

	restored := credentials.LoadSession()
	if restored == nil {
		t.Fatal("LoadSession() = nil after Bootstrap")
	}
	if got := restored.Get("DATASET_KEY", ""); got != "issuance.csv" {
		t.Errorf("restored Get(DATASET_KEY) = %q, want issuance.csv", got)
	}
}

func TestLoadSessionWithoutBootstrap(t *testing.T) {
	t.Setenv(credentials.BootstrapSessionEnv, "")

	if s := credentials.LoadSession(); s != nil {
		t.Errorf("LoadSession() = %+v with empty env, want nil", s)
	}
}

// ── Runtime credentials ─────────────────────────────────────

func TestLoadRuntimeCredentials(t *testing.T) {
	dir := t.TempDir()
	writeRC(t, dir, `
dataset_key = "issuance.csv"
llm_model = "analyst-v2"
`)
	s := bootstrap(t, dir)

	creds := credentials.LoadRuntimeCredentials(s)
	if creds.AppName != "primary-credit" {
		t.Errorf("AppName = %q, want default primary-credit", creds.AppName)
	}
	if creds.DatasetKey != "issuance.csv" {
		t.Errorf("DatasetKey = %q", creds.DatasetKey)
	}
	if creds.LLMModel != "analyst-v2" {
		t.Errorf("LLMModel = %q", creds.LLMModel)
	}

	public := creds.PublicConfig()
	if _, leaked := public["database_url"]; leaked {
		t.Error("PublicConfig() exposes database_url")
	}
	if public["dataset_key"] != "issuance.csv" {
		t.Errorf("PublicConfig()[dataset_key] = %q", public["dataset_key"])
	}
}
