// Package calendar buckets dated items into the month views of the upcoming
// releases calendar: a six-week desktop grid and a month-only mobile list.
package calendar

import (
	"fmt"
	"time"
)

const isoDay = "2006-01-02"

// Weeks and DaysPerWeek fix the desktop grid at 42 cells.
const (
	Weeks       = 6
	DaysPerWeek = 7
)

// Dated is an item that falls on a calendar day.
type Dated interface {
	ISODate() string
}

// Month identifies a calendar month.
type Month struct {
	Year  int        `json:"year"`
	Month time.Month `json:"month"`
}

// MonthOf returns the month containing t.
func MonthOf(t time.Time) Month {
	return Month{Year: t.Year(), Month: t.Month()}
}

// Add moves n months forward (or back for negative n), wrapping years.
func (m Month) Add(n int) Month {
	idx := m.index() + n
	y, mo := idx/12, idx%12
	if mo < 0 {
		mo += 12
		y--
	}
	return Month{Year: y, Month: time.Month(mo + 1)}
}

func (m Month) Prev() Month { return m.Add(-1) }
func (m Month) Next() Month { return m.Add(1) }

// Before reports whether m is strictly earlier than o.
func (m Month) Before(o Month) bool { return m.index() < o.index() }

func (m Month) index() int { return m.Year*12 + int(m.Month) - 1 }

// First returns midnight UTC on the first day of m.
func (m Month) First() time.Time {
	return time.Date(m.Year, m.Month, 1, 0, 0, 0, 0, time.UTC)
}

// Days is the number of days in m.
func (m Month) Days() int {
	return m.First().AddDate(0, 1, -1).Day()
}

func (m Month) String() string {
	return fmt.Sprintf("%04d-%02d", m.Year, int(m.Month))
}

// MarshalText encodes m as "YYYY-MM".
func (m Month) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

func (m *Month) UnmarshalText(b []byte) error {
	v, err := ParseMonth(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// ParseMonth accepts "YYYY-MM".
func ParseMonth(s string) (Month, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return Month{}, fmt.Errorf("invalid month %q (want YYYY-MM)", s)
	}
	return MonthOf(t), nil
}

// Day is one cell of a month view.
type Day[T any] struct {
	Date    string `json:"date"`
	Day     int    `json:"day"`
	Weekday string `json:"weekday"`
	InMonth bool   `json:"in_month"`
	Today   bool   `json:"today,omitempty"`
	Items   []T    `json:"items"`
}

// Desktop returns the 6×7 grid for m. The first cell is the Monday on or
// before the 1st; each cell holds the items whose ISO date equals the
// cell's date.
func Desktop[T Dated](m Month, items []T, today time.Time) [][]Day[T] {
	byDate := bucket(items)
	first := m.First()
	offset := (int(first.Weekday()) + 6) % 7 // days since Monday
	start := first.AddDate(0, 0, -offset)
	todayISO := today.Format(isoDay)

	grid := make([][]Day[T], Weeks)
	for w := range grid {
		week := make([]Day[T], DaysPerWeek)
		for d := range week {
			dt := start.AddDate(0, 0, w*DaysPerWeek+d)
			week[d] = cell(dt, m, todayISO, byDate)
		}
		grid[w] = week
	}
	return grid
}

// Mobile returns only the days of m, in order.
func Mobile[T Dated](m Month, items []T, today time.Time) []Day[T] {
	byDate := bucket(items)
	first := m.First()
	todayISO := today.Format(isoDay)
	days := make([]Day[T], m.Days())
	for i := range days {
		days[i] = cell(first.AddDate(0, 0, i), m, todayISO, byDate)
	}
	return days
}

func cell[T Dated](dt time.Time, m Month, todayISO string, byDate map[string][]T) Day[T] {
	iso := dt.Format(isoDay)
	items := byDate[iso]
	if items == nil {
		items = []T{}
	}
	return Day[T]{
		Date:    iso,
		Day:     dt.Day(),
		Weekday: dt.Weekday().String()[:3],
		InMonth: MonthOf(dt) == m,
		Today:   iso == todayISO,
		Items:   items,
	}
}

func bucket[T Dated](items []T) map[string][]T {
	out := make(map[string][]T)
	for _, it := range items {
		d := it.ISODate()
		out[d] = append(out[d], it)
	}
	return out
}

// Upcoming keeps items dated today or later, in their original order.
func Upcoming[T Dated](items []T, today time.Time) []T {
	cut := today.Format(isoDay)
	out := make([]T, 0, len(items))
	for _, it := range items {
		if it.ISODate() >= cut {
			out = append(out, it)
		}
	}
	return out
}

// ─── Navigation ───────────────────────────────────────────────────────────────

// Navigator tracks the month on display relative to the current month.
// Navigation is bounded below by the current month and above by December of
// the following year.
type Navigator struct {
	Now           Month `json:"now"`
	Shown         Month `json:"shown"`
	ScrollToToday bool  `json:"scroll_to_today,omitempty"`
}

// NewNavigator starts on the current month.
func NewNavigator(today time.Time) Navigator {
	m := MonthOf(today)
	return Navigator{Now: m, Shown: m}
}

// Limit is the last month that may be shown.
func (n Navigator) Limit() Month {
	return Month{Year: n.Now.Year + 1, Month: time.December}
}

func (n Navigator) CanPrev() bool { return n.Now.Before(n.Shown) }
func (n Navigator) CanNext() bool { return n.Shown.Before(n.Limit()) }

// Prev steps one month back, or returns n unchanged at the lower bound.
func (n Navigator) Prev() Navigator {
	if !n.CanPrev() {
		return n
	}
	return Navigator{Now: n.Now, Shown: n.Shown.Prev()}
}

// Next steps one month forward, or returns n unchanged at the upper bound.
func (n Navigator) Next() Navigator {
	if !n.CanNext() {
		return n
	}
	return Navigator{Now: n.Now, Shown: n.Shown.Next()}
}

// Today jumps to the current month and flags the today cell for scrolling.
func (n Navigator) Today() Navigator {
	return Navigator{Now: n.Now, Shown: n.Now, ScrollToToday: true}
}

// Show moves to m, clamped into the navigable range.
func (n Navigator) Show(m Month) Navigator {
	switch {
	case m.Before(n.Now):
		m = n.Now
	case n.Limit().Before(m):
		m = n.Limit()
	}
	return Navigator{Now: n.Now, Shown: m}
}
