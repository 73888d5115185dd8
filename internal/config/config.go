// Package config handles loading and resolving opendosm configuration.
// Resolution order (first non-empty value wins):
//  1. CLI flags (passed to Load as Overrides)
//  2. Environment variables OPENDOSM_*, after loading a .env file if present
//  3. config.json in the current working directory
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	DefaultConfigFile = "config.json"
	DefaultFormat     = "table"
	DefaultTimeout    = 30 * time.Second
	DefaultRate       = 5.0
	DefaultPageSize   = 15
	DefaultLanguage   = "en-GB"
	DefaultListen     = "127.0.0.1:8080"
	DefaultAPIURL     = "https://api.data.gov.my/dosm/"
	DefaultCDNURL     = "https://storage.dosm.gov.my/"
)

// Environment variable names.
const (
	EnvAPIURL         = "OPENDOSM_API_URL"
	EnvCDNURL         = "OPENDOSM_CDN_URL"
	EnvS3Bucket       = "OPENDOSM_S3_BUCKET"
	EnvS3Region       = "OPENDOSM_S3_REGION"
	EnvS3Endpoint     = "OPENDOSM_S3_ENDPOINT"
	EnvS3AccessKey    = "OPENDOSM_S3_ACCESS_KEY"
	EnvS3SecretKey    = "OPENDOSM_S3_SECRET_KEY"
	EnvAnalyticsURL   = "OPENDOSM_ANALYTICS_URL"
	EnvAnalyticsToken = "OPENDOSM_ANALYTICS_TOKEN"
	EnvLanguage       = "OPENDOSM_LANG"
	EnvPageSize       = "OPENDOSM_PAGE_SIZE"
	EnvDBPath         = "OPENDOSM_DB_PATH"
	EnvListen         = "OPENDOSM_LISTEN"
)

// File is the on-disk representation of config.json.
type File struct {
	APIURL         string  `json:"api_url"`
	CDNURL         string  `json:"cdn_url"`
	S3Bucket       string  `json:"s3_bucket,omitempty"`
	S3Region       string  `json:"s3_region,omitempty"`
	S3Endpoint     string  `json:"s3_endpoint,omitempty"`
	AnalyticsURL   string  `json:"analytics_url"`
	AnalyticsToken string  `json:"analytics_token"`
	Language       string  `json:"language"`
	DefaultFormat  string  `json:"default_format"`
	Timeout        string  `json:"timeout"`
	Rate           float64 `json:"rate"`
	PageSize       int     `json:"page_size"`
	DBPath         string  `json:"db_path,omitempty"`
	Listen         string  `json:"listen"`
}

// Config is the fully-resolved runtime configuration.
// All callers use this struct; the File is only read during loading.
type Config struct {
	APIURL         string
	CDNURL         string
	S3Bucket       string
	S3Region       string
	S3Endpoint     string
	S3AccessKey    string // environment only
	S3SecretKey    string // environment only
	AnalyticsURL   string
	AnalyticsToken string
	Language       string
	Format         string
	Timeout        time.Duration
	Rate           float64
	PageSize       int
	DBPath         string
	Listen         string
	ConfigPath     string // path of the config.json that was loaded (empty if none found)

	// Runtime overrides set from CLI flags after Load()
	NoCache bool
	Refresh bool
	Quiet   bool
	Verbose bool
	Debug   bool
}

// Overrides carries CLI flag values. Zero values leave lower layers alone.
type Overrides struct {
	Language       string
	AnalyticsToken string
	DBPath         string
	Timeout        time.Duration
	Rate           float64
}

// Load resolves configuration from all sources.
func Load(o Overrides) (*Config, error) {
	cfg := &Config{
		APIURL:   DefaultAPIURL,
		CDNURL:   DefaultCDNURL,
		Language: DefaultLanguage,
		Format:   DefaultFormat,
		Timeout:  DefaultTimeout,
		Rate:     DefaultRate,
		PageSize: DefaultPageSize,
		Listen:   DefaultListen,
	}

	// Layer 1: config.json (lowest priority)
	if f, path, err := loadFile(); err == nil {
		applyFile(cfg, f, path)
	}

	// Layer 2: environment. A .env file only fills variables not already set.
	_ = godotenv.Load()
	applyEnv(cfg)

	// Layer 3: CLI flags (highest priority)
	applyOverrides(cfg, o)

	if cfg.DBPath == "" {
		home, err := os.UserHomeDir()
		if err == nil {
			cfg.DBPath = filepath.Join(home, ".opendosm", "opendosm.db")
		}
	}
	return cfg, nil
}

// Validate returns an error if the resolved configuration cannot be used.
func (c *Config) Validate() error {
	var errs []error
	if err := checkURL("api_url", c.APIURL); err != nil {
		errs = append(errs, err)
	}
	if c.S3Bucket == "" {
		if err := checkURL("cdn_url", c.CDNURL); err != nil {
			errs = append(errs, err)
		}
	}
	if c.AnalyticsURL != "" {
		if err := checkURL("analytics_url", c.AnalyticsURL); err != nil {
			errs = append(errs, err)
		}
	}
	if c.Rate < 0 {
		errs = append(errs, fmt.Errorf("rate must not be negative, got %g", c.Rate))
	}
	if c.PageSize < 0 {
		errs = append(errs, fmt.Errorf("page_size must not be negative, got %d", c.PageSize))
	}
	return errors.Join(errs...)
}

func checkURL(field, raw string) error {
	if raw == "" {
		return fmt.Errorf("%s is required", field)
	}
	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("%s must be an absolute URL, got %q", field, raw)
	}
	return nil
}

// RedactedToken returns the analytics token with most characters replaced by
// asterisks. Safe for logging and display.
func (c *Config) RedactedToken() string {
	if c.AnalyticsToken == "" {
		return ""
	}
	if len(c.AnalyticsToken) <= 4 {
		return "****"
	}
	return c.AnalyticsToken[:2] + "****" + c.AnalyticsToken[len(c.AnalyticsToken)-2:]
}

// loadFile attempts to read config.json from the current working directory.
func loadFile() (*File, string, error) {
	path, err := filepath.Abs(DefaultConfigFile)
	if err != nil {
		return nil, "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, "", fmt.Errorf("config.json not found at %s", path)
		}
		return nil, "", fmt.Errorf("reading config.json: %w", err)
	}
	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, "", fmt.Errorf("parsing config.json: %w", err)
	}
	return &f, path, nil
}

// applyFile copies values from a parsed File into cfg,
// skipping any fields that are zero/empty.
func applyFile(cfg *Config, f *File, path string) {
	cfg.ConfigPath = path
	setString(&cfg.APIURL, f.APIURL)
	setString(&cfg.CDNURL, f.CDNURL)
	setString(&cfg.S3Bucket, f.S3Bucket)
	setString(&cfg.S3Region, f.S3Region)
	setString(&cfg.S3Endpoint, f.S3Endpoint)
	setString(&cfg.AnalyticsURL, f.AnalyticsURL)
	setString(&cfg.AnalyticsToken, f.AnalyticsToken)
	setString(&cfg.Language, f.Language)
	setString(&cfg.Format, f.DefaultFormat)
	setString(&cfg.DBPath, f.DBPath)
	setString(&cfg.Listen, f.Listen)
	if f.Timeout != "" {
		if d, err := time.ParseDuration(f.Timeout); err == nil {
			cfg.Timeout = d
		}
	}
	if f.Rate > 0 {
		cfg.Rate = f.Rate
	}
	if f.PageSize > 0 {
		cfg.PageSize = f.PageSize
	}
}

func applyEnv(cfg *Config) {
	setString(&cfg.APIURL, os.Getenv(EnvAPIURL))
	setString(&cfg.CDNURL, os.Getenv(EnvCDNURL))
	setString(&cfg.S3Bucket, os.Getenv(EnvS3Bucket))
	setString(&cfg.S3Region, os.Getenv(EnvS3Region))
	setString(&cfg.S3Endpoint, os.Getenv(EnvS3Endpoint))
	setString(&cfg.S3AccessKey, os.Getenv(EnvS3AccessKey))
	setString(&cfg.S3SecretKey, os.Getenv(EnvS3SecretKey))
	setString(&cfg.AnalyticsURL, os.Getenv(EnvAnalyticsURL))
	setString(&cfg.AnalyticsToken, os.Getenv(EnvAnalyticsToken))
	setString(&cfg.Language, os.Getenv(EnvLanguage))
	setString(&cfg.DBPath, os.Getenv(EnvDBPath))
	setString(&cfg.Listen, os.Getenv(EnvListen))
	if v := os.Getenv(EnvPageSize); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.PageSize = n
		}
	}
}

func applyOverrides(cfg *Config, o Overrides) {
	setString(&cfg.Language, o.Language)
	setString(&cfg.AnalyticsToken, o.AnalyticsToken)
	setString(&cfg.DBPath, o.DBPath)
	if o.Timeout > 0 {
		cfg.Timeout = o.Timeout
	}
	if o.Rate > 0 {
		cfg.Rate = o.Rate
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// Template returns a File populated with sensible defaults, suitable for
// writing an initial config.json via `opendosm config init`.
func Template() File {
	return File{
		APIURL:        DefaultAPIURL,
		CDNURL:        DefaultCDNURL,
		Language:      DefaultLanguage,
		DefaultFormat: DefaultFormat,
		Timeout:       "30s",
		Rate:          DefaultRate,
		PageSize:      DefaultPageSize,
		Listen:        DefaultListen,
	}
}

// WriteFile serialises a File to the given path.
func WriteFile(path string, f File) error {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return os.WriteFile(path, append(data, '\n'), 0600)
}
