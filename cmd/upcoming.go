package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/opendosm/internal/calendar"
	"github.com/derickschaefer/opendosm/internal/model"
	"github.com/derickschaefer/opendosm/internal/pages"
	"github.com/derickschaefer/opendosm/internal/query"
	"github.com/derickschaefer/opendosm/internal/util"
)

var upcomingCmd = &cobra.Command{
	Use:   "upcoming",
	Short: "Show scheduled releases",
	Long:  `Commands for the release calendar: a paged list of upcoming releases and a month view.`,
}

// upcomingDate pins "today" for both subcommands.
var upcomingDate string

func upcomingToday() (time.Time, error) {
	if upcomingDate == "" {
		return time.Now(), nil
	}
	return util.ParseDate(upcomingDate, nil)
}

// ─── upcoming list ────────────────────────────────────────────────────────────

var upcomingListFlags stateFlags

var upcomingListCmd = &cobra.Command{
	Use:   "list",
	Short: "List releases dated today or later",
	Example: `  opendosm upcoming list
  opendosm upcoming list --search cpi --page 2`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		today, err := upcomingToday()
		if err != nil {
			return err
		}
		deps, err := pageDeps()
		if err != nil {
			return err
		}
		defer deps.Close()

		start := time.Now()
		items, meta, err := deps.Loader.Upcoming(cmd.Context(), deps.Lang)
		if err != nil {
			return err
		}
		st, _ := query.Parse(query.Upcoming, upcomingListFlags.raw(cmd, query.Upcoming))
		p := pages.Upcoming(items, st, deps.Config.PageSize, today)
		result := newResult(model.KindUpcoming, "upcoming list", deps, query.Upcoming, st, p, len(p.Items), meta, start)
		return emit(cmd, deps, result)
	},
}

// ─── upcoming calendar ────────────────────────────────────────────────────────

var (
	calYear   int
	calMonth  int
	calPrev   int
	calNext   int
	calToday  bool
	calMobile bool
)

var upcomingCalendarCmd = &cobra.Command{
	Use:   "calendar",
	Short: "Show one month of the release calendar",
	Long: `Show one month of releases as a Monday-first 6×7 grid, or with --mobile
as a list of the month's days.

Navigation is bounded: the earliest month is the current one and the
latest is December of next year. Requests outside the range are clamped.`,
	Example: `  opendosm upcoming calendar
  opendosm upcoming calendar --year 2025 --month 3
  opendosm upcoming calendar --next 2 --mobile
  opendosm upcoming calendar --date 2024-09-14 --format json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if calPrev < 0 || calNext < 0 {
			return fmt.Errorf("--prev and --next take a non-negative count")
		}
		if cmd.Flags().Changed("month") && (calMonth < 1 || calMonth > 12) {
			return fmt.Errorf("invalid --month %d: expected 1-12", calMonth)
		}
		today, err := upcomingToday()
		if err != nil {
			return err
		}
		deps, err := pageDeps()
		if err != nil {
			return err
		}
		defer deps.Close()

		start := time.Now()
		items, meta, err := deps.Loader.Upcoming(cmd.Context(), deps.Lang)
		if err != nil {
			return err
		}

		nav := navigate(calendar.NewNavigator(today), cmd.Flags().Changed("year"), cmd.Flags().Changed("month"))
		view := pages.Calendar(items, nav, calMobile, today)
		n := len(view.Days)
		if n == 0 {
			n = len(view.Weeks) * calendar.DaysPerWeek
		}
		result := newResult(model.KindCalendar, "upcoming calendar", deps, query.PageConfig{}, query.State{}, view, n, meta, start)
		result.Query = nav.Shown.String()
		return emit(cmd, deps, result)
	},
}

// navigate applies the calendar flags to nav in order: jump to a month,
// then step, then --today.
func navigate(nav calendar.Navigator, yearSet, monthSet bool) calendar.Navigator {
	if yearSet || monthSet {
		m := nav.Shown
		if yearSet {
			m.Year = calYear
		}
		if monthSet {
			m.Month = time.Month(calMonth)
		}
		nav = nav.Show(m)
	}
	for i := 0; i < calNext; i++ {
		nav = nav.Next()
	}
	for i := 0; i < calPrev; i++ {
		nav = nav.Prev()
	}
	if calToday {
		nav = nav.Today()
	}
	return nav
}

// ─── Registration ─────────────────────────────────────────────────────────────

func init() {
	rootCmd.AddCommand(upcomingCmd)
	upcomingCmd.AddCommand(upcomingListCmd)
	upcomingCmd.AddCommand(upcomingCalendarCmd)

	upcomingCmd.PersistentFlags().StringVar(&upcomingDate, "date", "", "treat this YYYY-MM-DD as today")
	upcomingListFlags.bind(upcomingListCmd, query.Upcoming)

	f := upcomingCalendarCmd.Flags()
	f.IntVar(&calYear, "year", 0, "year to show")
	f.IntVar(&calMonth, "month", 0, "month to show (1-12)")
	f.IntVar(&calNext, "next", 0, "step forward this many months")
	f.IntVar(&calPrev, "prev", 0, "step back this many months")
	f.BoolVar(&calToday, "today", false, "jump to the current month")
	f.BoolVar(&calMobile, "mobile", false, "list the month's days instead of the grid")
	upcomingCalendarCmd.MarkFlagsMutuallyExclusive("prev", "next")
}
