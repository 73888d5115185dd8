package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/opendosm/internal/loader"
	"github.com/derickschaefer/opendosm/internal/model"
	"github.com/derickschaefer/opendosm/internal/pages"
	"github.com/derickschaefer/opendosm/internal/query"
)

var (
	querySet   []string
	queryReset bool
)

var queryCmd = &cobra.Command{
	Use:   "query <PAGE> [RAW_QUERY]",
	Short: "Decode a query string and show its canonical form",
	Long: `Decode a raw query string the way a page does and print the typed state,
the active filters and the canonical query.

--set applies updates the way a filter control would: an empty value
removes the key, and changing any filter drops the page number.
No portal documents are loaded, so the source facet accepts any value.

Pages: ` + pageNames(),
	Example: `  opendosm query catalogue "frequency=monthly&geography=district,STATE&utm=x"
  opendosm query publications "page=3&search=gdp" --set frequency=QUARTERLY
  opendosm query publications "page=3&search=gdp" --reset`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, ok := query.Lookup(args[0])
		if !ok {
			return fmt.Errorf("unknown page %q (pages: %s)", args[0], pageNames())
		}
		raw := ""
		if len(args) == 2 {
			raw = args[1]
		}
		if queryReset || len(querySet) > 0 {
			upd, err := parseSets(cfg, querySet)
			if err != nil {
				return err
			}
			_, current := query.Parse(cfg, raw)
			if queryReset {
				current = query.Reset(cfg)
			}
			raw = query.Apply(cfg, current, upd).Encode()
		}

		deps, err := buildDeps()
		if err != nil {
			return err
		}
		start := time.Now()
		q := pages.Inspect(cfg, raw)
		result := newResult(model.KindQuery, "query "+cfg.Name, deps, cfg, q.State, q, len(q.Active), loader.Meta{}, start)
		return emit(cmd, deps, result)
	},
}

// parseSets turns k=v pairs into updates, rejecting keys the page does not
// recognise.
func parseSets(cfg query.PageConfig, sets []string) (query.Updates, error) {
	upd := query.Updates{}
	for _, s := range sets {
		k, v, ok := strings.Cut(s, "=")
		if !ok {
			return nil, fmt.Errorf("invalid --set %q: expected key=value", s)
		}
		key := query.Key(strings.ToLower(strings.TrimSpace(k)))
		if !cfg.Has(key) {
			return nil, fmt.Errorf("page %s has no %q parameter", cfg.Name, k)
		}
		upd[key] = v
	}
	return upd, nil
}

func init() {
	rootCmd.AddCommand(queryCmd)
	queryCmd.Flags().StringArrayVar(&querySet, "set", nil, "apply an update key=value (repeatable; empty value removes)")
	queryCmd.Flags().BoolVar(&queryReset, "reset", false, "clear every filter before applying --set")
}
