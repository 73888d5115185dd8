package config_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/derickschaefer/opendosm/internal/config"
)

// ─── Helpers ──────────────────────────────────────────────────────────────────

// writeConfig writes a config.json into dir and changes the working directory
// to dir for the duration of the test.
func writeConfig(t *testing.T, dir string, f config.File) {
	t.Helper()
	path := filepath.Join(dir, "config.json")
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	chdir(t, dir)
}

func chdir(t *testing.T, dir string) {
	t.Helper()
	orig, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(orig) })
}

// clearEnv blanks every OPENDOSM_* variable for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		config.EnvAPIURL, config.EnvCDNURL, config.EnvS3Bucket, config.EnvS3Region,
		config.EnvS3Endpoint, config.EnvS3AccessKey, config.EnvS3SecretKey,
		config.EnvAnalyticsURL, config.EnvAnalyticsToken, config.EnvLanguage,
		config.EnvPageSize, config.EnvDBPath, config.EnvListen,
	} {
		t.Setenv(k, "")
	}
}

// ─── Defaults ─────────────────────────────────────────────────────────────────

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	chdir(t, t.TempDir())

	cfg, err := config.Load(config.Overrides{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Format != config.DefaultFormat {
		t.Errorf("Format: expected %q, got %q", config.DefaultFormat, cfg.Format)
	}
	if cfg.Timeout != config.DefaultTimeout {
		t.Errorf("Timeout: expected %v, got %v", config.DefaultTimeout, cfg.Timeout)
	}
	if cfg.Rate != config.DefaultRate {
		t.Errorf("Rate: expected %g, got %g", config.DefaultRate, cfg.Rate)
	}
	if cfg.PageSize != config.DefaultPageSize {
		t.Errorf("PageSize: expected %d, got %d", config.DefaultPageSize, cfg.PageSize)
	}
	if cfg.Language != "en-GB" {
		t.Errorf("Language: expected en-GB, got %q", cfg.Language)
	}
	if cfg.APIURL == "" || cfg.CDNURL == "" {
		t.Error("API and CDN URLs should have default values")
	}
	if cfg.AnalyticsURL != "" {
		t.Errorf("analytics should be off by default, got %q", cfg.AnalyticsURL)
	}
	if cfg.DBPath == "" {
		t.Error("DBPath should have a default (home dir based) value")
	}
	if cfg.ConfigPath != "" {
		t.Errorf("ConfigPath should be empty when no file found, got %q", cfg.ConfigPath)
	}
}

// ─── Config file loading ──────────────────────────────────────────────────────

func TestLoadFromFile(t *testing.T) {
	clearEnv(t)
	writeConfig(t, t.TempDir(), config.File{
		APIURL:        "https://api.example.com/",
		S3Bucket:      "dosm-public",
		AnalyticsURL:  "https://events.example.com/v0",
		Language:      "ms-MY",
		DefaultFormat: "json",
		Timeout:       "60s",
		Rate:          2.5,
		PageSize:      30,
		DBPath:        "/tmp/test.db",
	})

	cfg, err := config.Load(config.Overrides{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.APIURL != "https://api.example.com/" {
		t.Errorf("APIURL: got %q", cfg.APIURL)
	}
	if cfg.S3Bucket != "dosm-public" {
		t.Errorf("S3Bucket: got %q", cfg.S3Bucket)
	}
	if cfg.Language != "ms-MY" {
		t.Errorf("Language: expected ms-MY, got %q", cfg.Language)
	}
	if cfg.Format != "json" {
		t.Errorf("Format: expected json, got %q", cfg.Format)
	}
	if cfg.Timeout.String() != "1m0s" {
		t.Errorf("Timeout: expected 1m0s, got %q", cfg.Timeout.String())
	}
	if cfg.Rate != 2.5 || cfg.PageSize != 30 {
		t.Errorf("Rate/PageSize: got %g/%d", cfg.Rate, cfg.PageSize)
	}
	if cfg.DBPath != "/tmp/test.db" {
		t.Errorf("DBPath: expected /tmp/test.db, got %q", cfg.DBPath)
	}
	if !strings.Contains(cfg.ConfigPath, "config.json") {
		t.Errorf("ConfigPath should contain config.json, got %q", cfg.ConfigPath)
	}
}

func TestLoadInvalidTimeoutIgnored(t *testing.T) {
	clearEnv(t)
	writeConfig(t, t.TempDir(), config.File{Timeout: "not-a-duration"})

	cfg, err := config.Load(config.Overrides{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Timeout != config.DefaultTimeout {
		t.Errorf("invalid timeout should use default %v, got %v", config.DefaultTimeout, cfg.Timeout)
	}
}

// ─── Environment variable priority ───────────────────────────────────────────

func TestLoadEnvOverridesFile(t *testing.T) {
	clearEnv(t)
	writeConfig(t, t.TempDir(), config.File{AnalyticsToken: "filetoken", Language: "en-GB"})
	t.Setenv(config.EnvAnalyticsToken, "envtoken")
	t.Setenv(config.EnvLanguage, "bm")
	t.Setenv(config.EnvS3AccessKey, "AKIA")

	cfg, err := config.Load(config.Overrides{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.AnalyticsToken != "envtoken" {
		t.Errorf("env token should override file: got %q", cfg.AnalyticsToken)
	}
	if cfg.Language != "bm" {
		t.Errorf("env language should override file: got %q", cfg.Language)
	}
	if cfg.S3AccessKey != "AKIA" {
		t.Errorf("S3AccessKey from env: got %q", cfg.S3AccessKey)
	}
}

func TestLoadEnvPageSizeIgnoresGarbage(t *testing.T) {
	clearEnv(t)
	chdir(t, t.TempDir())
	t.Setenv(config.EnvPageSize, "lots")

	cfg, _ := config.Load(config.Overrides{})
	if cfg.PageSize != config.DefaultPageSize {
		t.Errorf("garbage page size should leave default, got %d", cfg.PageSize)
	}
}

func TestLoadDotEnv(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	chdir(t, dir)
	// godotenv never overrides variables that are already set, even to "".
	os.Unsetenv(config.EnvListen)
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("OPENDOSM_LISTEN=0.0.0.0:9999\n"), 0600); err != nil {
		t.Fatalf("write .env: %v", err)
	}

	cfg, err := config.Load(config.Overrides{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Listen != "0.0.0.0:9999" {
		t.Errorf(".env listen: expected 0.0.0.0:9999, got %q", cfg.Listen)
	}
}

// ─── CLI flag priority ────────────────────────────────────────────────────────

func TestLoadOverridesWin(t *testing.T) {
	clearEnv(t)
	writeConfig(t, t.TempDir(), config.File{Language: "en-GB", Rate: 1})
	t.Setenv(config.EnvLanguage, "en")
	t.Setenv(config.EnvDBPath, "/env/path.db")

	cfg, err := config.Load(config.Overrides{Language: "ms-MY", DBPath: "/flag/path.db", Timeout: 5 * time.Second, Rate: 9})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Language != "ms-MY" || cfg.DBPath != "/flag/path.db" {
		t.Errorf("flags should override env and file: got %q %q", cfg.Language, cfg.DBPath)
	}
	if cfg.Timeout != 5*time.Second || cfg.Rate != 9 {
		t.Errorf("flag timeout/rate: got %v %g", cfg.Timeout, cfg.Rate)
	}
}

func TestLoadEmptyOverridesDoNotClobber(t *testing.T) {
	clearEnv(t)
	writeConfig(t, t.TempDir(), config.File{AnalyticsToken: "filetoken"})

	cfg, _ := config.Load(config.Overrides{})
	if cfg.AnalyticsToken != "filetoken" {
		t.Errorf("empty override should not clobber file value, got %q", cfg.AnalyticsToken)
	}
}

// ─── Validate ─────────────────────────────────────────────────────────────────

func TestValidateDefaults(t *testing.T) {
	cfg := &config.Config{APIURL: config.DefaultAPIURL, CDNURL: config.DefaultCDNURL}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestValidateReportsEveryProblem(t *testing.T) {
	cfg := &config.Config{APIURL: "not a url", CDNURL: "", Rate: -1}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"api_url", "cdn_url", "rate"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error should mention %s, got: %v", want, err)
		}
	}
}

func TestValidateBucketReplacesCDN(t *testing.T) {
	cfg := &config.Config{APIURL: config.DefaultAPIURL, S3Bucket: "dosm-public"}
	if err := cfg.Validate(); err != nil {
		t.Errorf("cdn_url is optional when a bucket is set: %v", err)
	}
}

// ─── RedactedToken ────────────────────────────────────────────────────────────

func TestRedactedToken(t *testing.T) {
	cfg := &config.Config{AnalyticsToken: "p.eyJ1IjoidGVzdCJ9"}
	r := cfg.RedactedToken()
	if !strings.HasPrefix(r, "p.") || !strings.Contains(r, "****") || r == cfg.AnalyticsToken {
		t.Errorf("unexpected redaction %q", r)
	}
	for _, tok := range []string{"a", "abcd"} {
		if got := (&config.Config{AnalyticsToken: tok}).RedactedToken(); got != "****" {
			t.Errorf("short token %q should redact to ****, got %q", tok, got)
		}
	}
	if (&config.Config{}).RedactedToken() != "" {
		t.Error("empty token should redact to empty")
	}
}

// ─── WriteFile / Template ─────────────────────────────────────────────────────

func TestWriteFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	f := config.Template()
	f.AnalyticsToken = "tok"

	if err := config.WriteFile(path, f); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	var got config.File
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("json.Unmarshal: %v", err)
	}
	if got != f {
		t.Errorf("round trip mismatch:\n  expected %+v\n  got      %+v", f, got)
	}
}

func TestWriteFilePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := config.WriteFile(path, config.File{}); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("file permissions: expected 0600, got %04o", info.Mode().Perm())
	}
}

func TestTemplateDefaults(t *testing.T) {
	tmpl := config.Template()
	if tmpl.DefaultFormat != "table" || tmpl.Timeout != "30s" {
		t.Errorf("Template format/timeout: got %q %q", tmpl.DefaultFormat, tmpl.Timeout)
	}
	if tmpl.PageSize != config.DefaultPageSize {
		t.Errorf("Template.PageSize: expected %d, got %d", config.DefaultPageSize, tmpl.PageSize)
	}
	if tmpl.AnalyticsToken != "" {
		t.Errorf("Template.AnalyticsToken should be empty, got %q", tmpl.AnalyticsToken)
	}
	if !strings.HasPrefix(tmpl.APIURL, "https://") {
		t.Errorf("Template.APIURL should be an https URL, got %q", tmpl.APIURL)
	}
}
