package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/opendosm/internal/config"
	"github.com/derickschaefer/opendosm/internal/render"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage opendosm configuration",
	Long: `Read and write opendosm configuration stored in config.json.

Values resolve in order: command-line flags, then OPENDOSM_* environment
variables (a .env file in the current directory is loaded first), then
config.json in the current directory, then built-in defaults.`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a template config.json in the current directory",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := config.DefaultConfigFile
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config.json already exists at %s (delete it first to re-initialise)", path)
		}
		if err := config.WriteFile(path, config.Template()); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Created %s\n", path)
		fmt.Fprintln(cmd.OutOrStdout(), "  Set analytics_url and analytics_token to enable download totals.")
		return nil
	},
}

var configGetShowSecrets bool

// configOut is the displayed form of a resolved Config.
type configOut struct {
	APIURL         string  `json:"api_url"`
	CDNURL         string  `json:"cdn_url"`
	S3Bucket       string  `json:"s3_bucket"`
	S3Region       string  `json:"s3_region"`
	S3Endpoint     string  `json:"s3_endpoint"`
	AnalyticsURL   string  `json:"analytics_url"`
	AnalyticsToken string  `json:"analytics_token"`
	Language       string  `json:"language"`
	Format         string  `json:"default_format"`
	Timeout        string  `json:"timeout"`
	Rate           float64 `json:"rate"`
	PageSize       int     `json:"page_size"`
	DBPath         string  `json:"db_path"`
	Listen         string  `json:"listen"`
	ConfigFile     string  `json:"config_file"`
}

func newConfigOut(cfg *config.Config, showSecrets bool) configOut {
	token := cfg.RedactedToken()
	if showSecrets {
		token = cfg.AnalyticsToken
	}
	src := "(not found)"
	if cfg.ConfigPath != "" {
		src = cfg.ConfigPath
	}
	return configOut{
		APIURL:         cfg.APIURL,
		CDNURL:         cfg.CDNURL,
		S3Bucket:       cfg.S3Bucket,
		S3Region:       cfg.S3Region,
		S3Endpoint:     cfg.S3Endpoint,
		AnalyticsURL:   cfg.AnalyticsURL,
		AnalyticsToken: token,
		Language:       cfg.Language,
		Format:         cfg.Format,
		Timeout:        cfg.Timeout.String(),
		Rate:           cfg.Rate,
		PageSize:       cfg.PageSize,
		DBPath:         cfg.DBPath,
		Listen:         cfg.Listen,
		ConfigFile:     src,
	}
}

var configGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Print the current resolved configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		out := newConfigOut(cfg, configGetShowSecrets)

		if resolveFormat(cfg.Format) == render.FormatJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		}
		printKVTable(cmd.OutOrStdout(), [][]string{
			{"api_url", out.APIURL},
			{"cdn_url", out.CDNURL},
			{"s3_bucket", orUnset(out.S3Bucket)},
			{"s3_region", orUnset(out.S3Region)},
			{"s3_endpoint", orUnset(out.S3Endpoint)},
			{"analytics_url", orUnset(out.AnalyticsURL)},
			{"analytics_token", orUnset(out.AnalyticsToken)},
			{"language", out.Language},
			{"default_format", out.Format},
			{"timeout", out.Timeout},
			{"rate", fmt.Sprintf("%.1f req/s", out.Rate)},
			{"page_size", strconv.Itoa(out.PageSize)},
			{"db_path", out.DBPath},
			{"listen", out.Listen},
			{"config_file", out.ConfigFile},
		})
		if err := cfg.Validate(); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "\n⚠  %s\n", strings.ReplaceAll(err.Error(), "\n", "\n⚠  "))
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value in config.json",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := strings.ToLower(args[0])

		// Load existing file or start from template
		f := config.Template()
		path := config.DefaultConfigFile
		if existing, err := loadConfigFile(path); err == nil {
			f = *existing
		} else if !os.IsNotExist(err) {
			return err
		}

		if err := setConfigKey(&f, key, args[1]); err != nil {
			return err
		}
		if err := config.WriteFile(path, f); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Set %s in %s\n", key, path)
		return nil
	},
}

var configKeys = []string{
	"api_url", "cdn_url", "s3_bucket", "s3_region", "s3_endpoint",
	"analytics_url", "analytics_token", "language", "default_format",
	"timeout", "rate", "page_size", "db_path", "listen",
}

// setConfigKey validates val for key and stores it in f.
func setConfigKey(f *config.File, key, val string) error {
	switch key {
	case "api_url":
		f.APIURL = val
	case "cdn_url":
		f.CDNURL = val
	case "s3_bucket":
		f.S3Bucket = val
	case "s3_region":
		f.S3Region = val
	case "s3_endpoint":
		f.S3Endpoint = val
	case "analytics_url":
		f.AnalyticsURL = val
	case "analytics_token":
		f.AnalyticsToken = val
	case "language", "lang":
		f.Language = val
	case "default_format", "format":
		known := false
		for _, fm := range render.Formats {
			known = known || fm == val
		}
		if !known {
			return fmt.Errorf("unknown format %q (formats: %s)", val, strings.Join(render.Formats, ", "))
		}
		f.DefaultFormat = val
	case "timeout":
		if _, err := time.ParseDuration(val); err != nil {
			return fmt.Errorf("timeout must be a duration such as 30s: %w", err)
		}
		f.Timeout = val
	case "rate":
		r, err := strconv.ParseFloat(val, 64)
		if err != nil || r <= 0 {
			return fmt.Errorf("rate must be a positive number")
		}
		f.Rate = r
	case "page_size":
		n, err := strconv.Atoi(val)
		if err != nil || n <= 0 {
			return fmt.Errorf("page_size must be a positive integer")
		}
		f.PageSize = n
	case "db_path":
		f.DBPath = val
	case "listen":
		f.Listen = val
	default:
		return fmt.Errorf("unknown config key: %q\n\nValid keys: %s", key, strings.Join(configKeys, ", "))
	}
	return nil
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)

	configGetCmd.Flags().BoolVar(&configGetShowSecrets, "show-secrets", false, "show the analytics token in plain text")
}

// loadConfigFile reads a config.json; used by configSetCmd.
func loadConfigFile(path string) (*config.File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f config.File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &f, nil
}

func orUnset(s string) string {
	if s == "" {
		return "(not set)"
	}
	return s
}

// printKVTable renders a two-column key/value table using aligned columns.
func printKVTable(w io.Writer, rows [][]string) {
	maxKey := 0
	for _, r := range rows {
		if len(r[0]) > maxKey {
			maxKey = len(r[0])
		}
	}
	for _, r := range rows {
		padding := strings.Repeat(" ", maxKey-len(r[0]))
		fmt.Fprintf(w, "  %s%s  %s\n", r[0], padding, r[1])
	}
}
