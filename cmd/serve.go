package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/opendosm/internal/server"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the portal pages as a JSON API",
	Long: `Serve the catalogue, publications, technical notes, release calendar and
national summary data page over HTTP.

Listings accept the same query strings as the CLI. A request whose query is
not canonical is redirected (302) to its canonical form, so equal listings
always share one URL. Pass ?lang=en or ?lang=bm, or send Accept-Language.

Routes:
  GET  /healthz
  GET  /metrics
  GET  /api/catalogue
  GET  /api/publications
  GET  /api/publications/{id}
  POST /api/publications/{id}/resources/{resource}/downloads
  GET  /api/technical-notes
  GET  /api/upcoming
  GET  /api/upcoming/calendar?year=2024&month=9&layout=mobile
  GET  /api/nsdp

Examples:
  opendosm serve
  opendosm serve --addr :9000 --log-json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		infoLogs = true
		deps, err := pageDeps()
		if err != nil {
			return err
		}
		defer deps.Close()
		cfg := deps.Config

		addr := serveAddr
		if addr == "" {
			addr = cfg.Listen
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		srv := server.New(deps.Loader, deps.Analytics, server.Options{
			Lang:     deps.Lang,
			PageSize: cfg.PageSize,
			Logger:   deps.Logger,
		})
		if err := srv.Run(ctx, addr); err != nil && ctx.Err() == nil {
			return fmt.Errorf("serve: %w", err)
		}
		if !cfg.Quiet {
			fmt.Fprintln(cmd.ErrOrStderr(), "✓ Server stopped")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default: config listen, 127.0.0.1:8080)")
}
