package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/opendosm/internal/model"
	"github.com/derickschaefer/opendosm/internal/query"
)

var catalogueFlags stateFlags

var catalogueCmd = &cobra.Command{
	Use:   "catalogue",
	Short: "Search the data catalogue",
	Long: `List catalogue datasets grouped into "Category: Subcategory" sections.

Every facet is conjunctive: a dataset must match all of them. Geography and
demography are multi-select and the dataset must carry every selected code.
A year range keeps datasets whose coverage overlaps it.`,
	Example: `  opendosm catalogue --search "consumer price"
  opendosm catalogue --frequency monthly --geography state,district
  opendosm catalogue --query "source=DOSM&begin=2015" --format json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := pageDeps()
		if err != nil {
			return err
		}
		defer deps.Close()

		result, err := runPage(cmd.Context(), deps, query.Catalogue.Name, catalogueFlags.raw(cmd, query.Catalogue))
		if err != nil {
			return err
		}
		return emit(cmd, deps, result)
	},
}

// ─── catalogue sources ────────────────────────────────────────────────────────

var catalogueSourcesCmd = &cobra.Command{
	Use:     "sources",
	Short:   "List the agencies offered by the source filter",
	Example: `  opendosm catalogue sources`,
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := pageDeps()
		if err != nil {
			return err
		}
		defer deps.Close()

		start := time.Now()
		idx, meta, err := deps.Loader.Catalogue(cmd.Context(), deps.Lang)
		if err != nil {
			return err
		}
		sources := idx.SourceFilters
		if sources == nil {
			sources = []string{}
		}
		result := newResult(model.KindSources, "catalogue sources", deps, query.PageConfig{}, query.State{}, sources, len(sources), meta, start)
		return emit(cmd, deps, result)
	},
}

func init() {
	rootCmd.AddCommand(catalogueCmd)
	catalogueCmd.AddCommand(catalogueSourcesCmd)
	catalogueFlags.bind(catalogueCmd, query.Catalogue)
}
