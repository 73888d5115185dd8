package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/opendosm/internal/analytics"
	"github.com/derickschaefer/opendosm/internal/model"
	"github.com/derickschaefer/opendosm/internal/query"
)

var publicationsCmd = &cobra.Command{
	Use:     "publications",
	Aliases: []string{"pubs"},
	Short:   "Browse DOSM publications and their downloads",
	Long: `Commands for browsing publications, newest release first, with download
totals from the analytics pipe when it is configured.`,
}

// ─── publications browse ──────────────────────────────────────────────────────

var pubBrowseFlags stateFlags

var pubBrowseCmd = &cobra.Command{
	Use:   "browse",
	Short: "List publications, fifteen per page",
	Example: `  opendosm publications browse
  opendosm publications browse --frequency monthly --page 2
  opendosm publications browse --query "search=labour&geography=STATE" --format csv`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := pageDeps()
		if err != nil {
			return err
		}
		defer deps.Close()

		result, err := runPage(cmd.Context(), deps, query.Publications.Name, pubBrowseFlags.raw(cmd, query.Publications))
		if err != nil {
			return err
		}
		return emit(cmd, deps, result)
	},
}

// ─── publications get ─────────────────────────────────────────────────────────

var pubGetCmd = &cobra.Command{
	Use:   "get <PUB_ID>",
	Short: "Show a publication and its downloadable resources",
	Example: `  opendosm publications get cpi_2024-08
  opendosm publications get cpi_2024-08 --format json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := pageDeps()
		if err != nil {
			return err
		}
		defer deps.Close()

		start := time.Now()
		d, meta, err := deps.Loader.Publication(cmd.Context(), args[0], deps.Lang)
		if err != nil {
			return err
		}
		result := newResult(model.KindPublication, "publications get "+args[0], deps, query.PageConfig{}, query.State{}, d, len(d.Resources), meta, start)
		return emit(cmd, deps, result)
	},
}

// ─── publications download ────────────────────────────────────────────────────

var pubDownloadSave string

var pubDownloadCmd = &cobra.Command{
	Use:   "download <PUB_ID> <RESOURCE_ID>",
	Short: "Record a resource download and print (or save) its link",
	Long: `Record a download event for one resource and print its link.

The event is best effort: if the analytics endpoint is unset or fails, the
link is still printed. With --save the file is fetched to the given path.`,
	Example: `  opendosm publications download cpi_2024-08 1
  opendosm publications download cpi_2024-08 1 --save cpi.pdf`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		resID, err := parseIntID(args[1], "resource ID")
		if err != nil {
			return err
		}
		deps, err := pageDeps()
		if err != nil {
			return err
		}
		defer deps.Close()

		d, _, err := deps.Loader.Publication(cmd.Context(), args[0], deps.Lang)
		if err != nil {
			return err
		}
		var res *model.Resource
		for i := range d.Resources {
			if d.Resources[i].ResourceID == resID {
				res = &d.Resources[i]
				break
			}
		}
		if res == nil {
			return fmt.Errorf("publication %s has no resource %d", d.PublicationID, resID)
		}

		switch err := deps.Analytics.RecordDownload(cmd.Context(), d.PublicationID, resID); {
		case err == nil:
			deps.Loader.Downloaded(d.PublicationID, resID)
		case errors.Is(err, analytics.ErrDisabled):
			deps.Logger.Debug("download event skipped", "reason", err)
		default:
			deps.Logger.Warn("download event not recorded", "err", err)
		}

		if pubDownloadSave == "" {
			fmt.Fprintln(cmd.OutOrStdout(), res.ResourceLink)
			return nil
		}
		n, err := saveResource(cmd.Context(), res.ResourceLink, pubDownloadSave, deps.Config.Timeout)
		if err != nil {
			return err
		}
		if !deps.Config.Quiet {
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Saved %s (%s) to %s\n", res.ResourceName, humanBytes(n), pubDownloadSave)
		}
		return nil
	},
}

// saveResource streams link to path. A positive timeout bounds the whole
// transfer.
func saveResource(ctx context.Context, link, path string, timeout time.Duration) (int64, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return 0, fmt.Errorf("building request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("downloading %s: %w", link, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("downloading %s: HTTP %d", link, resp.StatusCode)
	}
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("creating %s: %w", path, err)
	}
	n, err := io.Copy(f, resp.Body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return n, fmt.Errorf("writing %s: %w", path, err)
	}
	return n, nil
}

// ─── Registration ─────────────────────────────────────────────────────────────

func init() {
	rootCmd.AddCommand(publicationsCmd)
	publicationsCmd.AddCommand(pubBrowseCmd)
	publicationsCmd.AddCommand(pubGetCmd)
	publicationsCmd.AddCommand(pubDownloadCmd)

	pubBrowseFlags.bind(pubBrowseCmd, query.Publications)
	pubDownloadCmd.Flags().StringVar(&pubDownloadSave, "save", "", "fetch the resource to this path")
}
