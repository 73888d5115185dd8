// Package cmd implements the opendosm CLI command tree.
// This file defines the root command and registers all global persistent flags.
package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/opendosm/internal/app"
	"github.com/derickschaefer/opendosm/internal/config"
	"github.com/derickschaefer/opendosm/internal/logging"
)

// globalFlags holds the parsed values of all persistent (global) flags.
// Commands read from this struct via the deps they receive.
var globalFlags struct {
	Format  string
	Out     string
	Lang    string
	DBPath  string
	NoCache bool
	Refresh bool
	Timeout string
	Rate    float64
	Quiet   bool
	Verbose bool
	Debug   bool
	LogJSON bool
}

// infoLogs keeps info-level logs for long-running commands.
var infoLogs bool

// rootCmd is the base command. Running `opendosm` with no subcommand
// prints help.
var rootCmd = &cobra.Command{
	Use:   "opendosm",
	Short: "opendosm — OpenDOSM statistics portal CLI",
	Long: `opendosm browses the Department of Statistics Malaysia open data portal:
the data catalogue, publications and their downloads, technical notes, the
release calendar and the national summary data page.

Every listing is driven by a query string, exactly as the portal's URLs are.
The same query gives the same result here, in a saved view, and from
'opendosm serve'.

Quick start:
  opendosm catalogue --search cpi              # find datasets
  opendosm publications browse --frequency monthly
  opendosm upcoming calendar                   # this month's releases
  opendosm query catalogue "frequency=monthly&utm=x"   # inspect a query`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute is the entry point called by main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// loadConfig resolves config with the global flag overrides applied.
func loadConfig() (*config.Config, error) {
	o := config.Overrides{
		Language: globalFlags.Lang,
		DBPath:   globalFlags.DBPath,
		Rate:     globalFlags.Rate,
	}
	if globalFlags.Timeout != "" {
		d, err := time.ParseDuration(globalFlags.Timeout)
		if err != nil {
			return nil, fmt.Errorf("invalid --timeout %q: %w", globalFlags.Timeout, err)
		}
		o.Timeout = d
	}
	cfg, err := config.Load(o)
	if err != nil {
		return nil, err
	}

	cfg.NoCache = globalFlags.NoCache
	cfg.Refresh = globalFlags.Refresh
	cfg.Quiet = globalFlags.Quiet
	cfg.Verbose = globalFlags.Verbose
	cfg.Debug = globalFlags.Debug
	if globalFlags.Format != "" {
		cfg.Format = globalFlags.Format
	}
	return cfg, nil
}

// buildDeps resolves config, installs the logger and constructs the
// dependency container. Called at the start of each command's RunE.
func buildDeps() (*app.Deps, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logging.Setup(logging.Options{Debug: cfg.Debug, Quiet: cfg.Quiet, Info: infoLogs, JSON: globalFlags.LogJSON})
	return app.New(cfg, slog.Default())
}

func init() {
	pf := rootCmd.PersistentFlags()

	pf.StringVar(&globalFlags.Format, "format", "",
		"output format: table|json|jsonl|csv|tsv|md (default: table)")
	pf.StringVar(&globalFlags.Out, "out", "",
		"write output to file instead of stdout")
	pf.StringVar(&globalFlags.Lang, "lang", "",
		"display language: en|bm (overrides env OPENDOSM_LANG and config.json)")
	pf.StringVar(&globalFlags.DBPath, "db", "",
		"path of the local store (default: ~/.opendosm/opendosm.db)")
	pf.BoolVar(&globalFlags.NoCache, "no-cache", false,
		"bypass cache reads (still writes results to cache)")
	pf.BoolVar(&globalFlags.Refresh, "refresh", false,
		"force re-fetch and overwrite cached entries")
	pf.StringVar(&globalFlags.Timeout, "timeout", "",
		"HTTP request timeout (e.g. 30s, 2m)")
	pf.Float64Var(&globalFlags.Rate, "rate", 0,
		"max upstream requests per second (default: 5.0)")
	pf.BoolVar(&globalFlags.Quiet, "quiet", false,
		"suppress all non-error output")
	pf.BoolVar(&globalFlags.Verbose, "verbose", false,
		"show cache/timing stats and the canonical query after output")
	pf.BoolVar(&globalFlags.Debug, "debug", false,
		"log HTTP requests and responses (analytics token redacted)")
	pf.BoolVar(&globalFlags.LogJSON, "log-json", false,
		"write logs as JSON even on a terminal")
}
