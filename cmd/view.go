package cmd

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/derickschaefer/opendosm/internal/loader"
	"github.com/derickschaefer/opendosm/internal/model"
	"github.com/derickschaefer/opendosm/internal/query"
	"github.com/derickschaefer/opendosm/internal/store"
)

var viewCmd = &cobra.Command{
	Use:   "view",
	Short: "Save and replay canonical page queries",
	Long: `Views are named queries for a page. The query is stored in canonical
form, so a view replays exactly what the portal URL for it would show.

  opendosm view save --name cpi-monthly --page publications --query "search=cpi&frequency=monthly"
  opendosm view list
  opendosm view run cpi-monthly`,
}

// newView canonicalises raw for page and stamps a fresh id.
func newView(name, page, raw string, now time.Time) (store.View, error) {
	cfg, ok := query.Lookup(page)
	if !ok {
		return store.View{}, fmt.Errorf("unknown page %q (pages: %s)", page, pageNames())
	}
	st, _ := query.Parse(cfg, raw)
	return store.View{
		ID:        uuid.NewString(),
		Name:      name,
		Page:      cfg.Name,
		Query:     st.String(cfg),
		CreatedAt: now.UTC(),
	}, nil
}

// ─── view save ────────────────────────────────────────────────────────────────

var (
	viewSaveName  string
	viewSavePage  string
	viewSaveQuery string
)

var viewSaveCmd = &cobra.Command{
	Use:   "save",
	Short: "Save a page query as a named view",
	Example: `  opendosm view save --name state-income --page catalogue --query "search=income&geography=STATE"
  opendosm view save --name next-releases --page upcoming`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := newView(viewSaveName, viewSavePage, viewSaveQuery, time.Now())
		if err != nil {
			return err
		}
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		if err := deps.RequireStore(); err != nil {
			return err
		}
		defer deps.Close()

		if existing, found, err := deps.Store.GetView(v.Name); err != nil {
			return fmt.Errorf("reading views: %w", err)
		} else if found && existing.Name == v.Name {
			return fmt.Errorf("a view named %q already exists (%s)", v.Name, existing.ID)
		}
		if err := deps.Store.PutView(v); err != nil {
			return fmt.Errorf("saving view: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Saved view %s  (%s)\n", v.ID, v.Name)
		if v.Query != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "  %s ?%s\n", v.Page, v.Query)
		}
		return nil
	},
}

// ─── view list ────────────────────────────────────────────────────────────────

var viewListCmd = &cobra.Command{
	Use:     "list",
	Short:   "List all saved views",
	Example: `  opendosm view list`,
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		if err := deps.RequireStore(); err != nil {
			return err
		}
		defer deps.Close()

		start := time.Now()
		views, err := deps.Store.ListViews()
		if err != nil {
			return fmt.Errorf("listing views: %w", err)
		}
		if views == nil {
			views = []store.View{}
		}
		result := newResult(model.KindViews, "view list", deps, query.PageConfig{}, query.State{}, views, len(views), loader.Meta{}, start)
		return emit(cmd, deps, result)
	},
}

// ─── view show ────────────────────────────────────────────────────────────────

var viewShowCmd = &cobra.Command{
	Use:     "show <ID|NAME>",
	Short:   "Show full details of a view",
	Example: `  opendosm view show state-income`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		if err := deps.RequireStore(); err != nil {
			return err
		}
		defer deps.Close()

		v, err := findView(deps.Store, args[0])
		if err != nil {
			return err
		}
		printSimpleTable(cmd.OutOrStdout(), []string{"FIELD", "VALUE"}, func(add func(...string)) {
			add("ID", v.ID)
			add("Name", v.Name)
			add("Page", v.Page)
			add("Query", v.Query)
			add("Created", v.CreatedAt.Format(time.RFC3339))
		})
		return nil
	},
}

// ─── view run ─────────────────────────────────────────────────────────────────

var viewRunCmd = &cobra.Command{
	Use:   "run <ID|NAME>",
	Short: "Show the page a view points at",
	Example: `  opendosm view run state-income
  opendosm view run 0f8fad5b --format csv`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := pageDeps()
		if err != nil {
			return err
		}
		defer deps.Close()
		if err := deps.RequireStore(); err != nil {
			return err
		}

		v, err := findView(deps.Store, args[0])
		if err != nil {
			return err
		}
		result, err := runPage(cmd.Context(), deps, v.Page, v.Query)
		if err != nil {
			return err
		}
		result.Command = "view run " + v.Name
		return emit(cmd, deps, result)
	},
}

// ─── view delete ──────────────────────────────────────────────────────────────

var viewDeleteCmd = &cobra.Command{
	Use:     "delete <ID|NAME>",
	Short:   "Delete a saved view",
	Example: `  opendosm view delete state-income`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		if err := deps.RequireStore(); err != nil {
			return err
		}
		defer deps.Close()

		v, err := findView(deps.Store, args[0])
		if err != nil {
			return err
		}
		if err := deps.Store.DeleteView(v.ID); err != nil {
			return fmt.Errorf("deleting view: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Deleted view %s  (%s)\n", v.ID, v.Name)
		return nil
	},
}

func findView(s *store.Store, ref string) (store.View, error) {
	v, ok, err := s.GetView(ref)
	if err != nil {
		return store.View{}, fmt.Errorf("reading view: %w", err)
	}
	if !ok {
		return store.View{}, fmt.Errorf("view %q not found", ref)
	}
	return v, nil
}

// ─── Registration ─────────────────────────────────────────────────────────────

func init() {
	rootCmd.AddCommand(viewCmd)
	viewCmd.AddCommand(viewSaveCmd)
	viewCmd.AddCommand(viewListCmd)
	viewCmd.AddCommand(viewShowCmd)
	viewCmd.AddCommand(viewRunCmd)
	viewCmd.AddCommand(viewDeleteCmd)

	viewSaveCmd.Flags().StringVar(&viewSaveName, "name", "", "human-readable name for the view (required)")
	viewSaveCmd.Flags().StringVar(&viewSavePage, "page", "", "page the query belongs to: "+pageNames()+" (required)")
	viewSaveCmd.Flags().StringVar(&viewSaveQuery, "query", "", "query string; stored in canonical form")
	viewSaveCmd.MarkFlagRequired("name")
	viewSaveCmd.MarkFlagRequired("page")
}
