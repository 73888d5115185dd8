package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/opendosm/internal/model"
	"github.com/derickschaefer/opendosm/internal/query"
)

var nsdpCmd = &cobra.Command{
	Use:   "nsdp",
	Short: "Show the national summary data page download table",
	Long: `List the national summary data page indicators with their SDMX download
links (XML, JSON, CSV, Parquet and Excel), grouped under category rows.`,
	Example: `  opendosm nsdp
  opendosm nsdp --lang bm --format md`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := pageDeps()
		if err != nil {
			return err
		}
		defer deps.Close()

		start := time.Now()
		items, meta, err := deps.Loader.NSDP(cmd.Context(), deps.Lang)
		if err != nil {
			return err
		}
		result := newResult(model.KindNSDP, "nsdp", deps, query.PageConfig{}, query.State{}, items, len(items), meta, start)
		return emit(cmd, deps, result)
	},
}

func init() {
	rootCmd.AddCommand(nsdpCmd)
}
