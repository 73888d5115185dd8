package calendar

import (
	"testing"
	"time"
)

type item string

func (i item) ISODate() string { return string(i) }

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 9, 30, 0, 0, time.UTC)
}

func TestMobileLeapFebruary(t *testing.T) {
	days := Mobile(Month{2024, time.February}, []item{"2024-02-29"}, day(2024, time.February, 10))
	if len(days) != 29 {
		t.Fatalf("expected 29 cells, got %d", len(days))
	}
	if days[28].Date != "2024-02-29" || len(days[28].Items) != 1 {
		t.Errorf("last cell: got %+v", days[28])
	}
	if !days[9].Today {
		t.Error("Feb 10 should be tagged today")
	}
	for _, d := range days {
		if !d.InMonth {
			t.Errorf("mobile cell %s outside the month", d.Date)
		}
	}
}

func TestDesktopIsSixBySeven(t *testing.T) {
	for mo := time.January; mo <= time.December; mo++ {
		m := Month{2025, mo}
		grid := Desktop[item](m, nil, day(2025, time.January, 1))
		if len(grid) != Weeks {
			t.Fatalf("%s: expected %d weeks, got %d", m, Weeks, len(grid))
		}
		for _, w := range grid {
			if len(w) != DaysPerWeek {
				t.Fatalf("%s: expected %d days, got %d", m, DaysPerWeek, len(w))
			}
		}
		if grid[0][0].Weekday != "Mon" {
			t.Errorf("%s: grid starts on %s", m, grid[0][0].Weekday)
		}
		first := grid[0][0].Date
		if first > m.First().Format(isoDay) {
			t.Errorf("%s: grid starts after the 1st (%s)", m, first)
		}
	}
}

func TestDesktopStartsOnMondayBefore(t *testing.T) {
	// 1 September 2024 is a Sunday.
	grid := Desktop[item](Month{2024, time.September}, nil, day(2024, time.September, 1))
	if grid[0][0].Date != "2024-08-26" {
		t.Errorf("expected grid to start 2024-08-26, got %s", grid[0][0].Date)
	}
	if grid[0][0].InMonth || !grid[0][6].InMonth {
		t.Error("leading days should be outside the month, the 1st inside")
	}
	// 1 July 2024 is a Monday.
	grid = Desktop[item](Month{2024, time.July}, nil, day(2024, time.July, 1))
	if grid[0][0].Date != "2024-07-01" {
		t.Errorf("expected grid to start 2024-07-01, got %s", grid[0][0].Date)
	}
}

func TestDesktopBucketsByExactDate(t *testing.T) {
	items := []item{"2024-03-05", "2024-03-05", "2024-03-06", "2024-04-01"}
	grid := Desktop(Month{2024, time.March}, items, day(2024, time.March, 1))
	counts := map[string]int{}
	for _, w := range grid {
		for _, d := range w {
			counts[d.Date] = len(d.Items)
		}
	}
	if counts["2024-03-05"] != 2 || counts["2024-03-06"] != 1 || counts["2024-04-01"] != 1 {
		t.Errorf("unexpected buckets %v", counts)
	}
}

func TestMonthWrap(t *testing.T) {
	if got := (Month{2024, time.January}).Prev(); got != (Month{2023, time.December}) {
		t.Errorf("Jan prev: got %s", got)
	}
	if got := (Month{2024, time.December}).Next(); got != (Month{2025, time.January}) {
		t.Errorf("Dec next: got %s", got)
	}
	if got := (Month{2024, time.March}).Add(-15); got != (Month{2022, time.December}) {
		t.Errorf("Add(-15): got %s", got)
	}
}

func TestNavigatorBounds(t *testing.T) {
	n := NewNavigator(day(2024, time.November, 20))
	if n.CanPrev() {
		t.Error("cannot go before the current month")
	}
	if p := n.Prev(); p.Shown != n.Shown {
		t.Errorf("Prev at lower bound should be a no-op, got %s", p.Shown)
	}
	steps := 0
	for n.CanNext() {
		n = n.Next()
		steps++
	}
	if n.Shown != (Month{2025, time.December}) {
		t.Errorf("upper bound: expected 2025-12, got %s", n.Shown)
	}
	if steps != 13 {
		t.Errorf("expected 13 steps to the limit, got %d", steps)
	}
	if n.Next().Shown != n.Shown {
		t.Error("Next at upper bound should be a no-op")
	}
	back := n.Today()
	if back.Shown != back.Now || !back.ScrollToToday {
		t.Errorf("Today: got %+v", back)
	}
}

func TestNavigatorShowClamps(t *testing.T) {
	n := NewNavigator(day(2024, time.May, 1))
	if got := n.Show(Month{2020, time.January}).Shown; got != n.Now {
		t.Errorf("clamp low: got %s", got)
	}
	if got := n.Show(Month{2030, time.January}).Shown; got != (Month{2025, time.December}) {
		t.Errorf("clamp high: got %s", got)
	}
}

func TestUpcomingDropsPast(t *testing.T) {
	items := []item{"2024-05-01", "2024-05-02", "2024-04-30", "2024-06-01"}
	got := Upcoming(items, day(2024, time.May, 2))
	if len(got) != 2 || got[0] != "2024-05-02" || got[1] != "2024-06-01" {
		t.Errorf("Upcoming: got %v", got)
	}
}

func TestParseMonth(t *testing.T) {
	m, err := ParseMonth("2024-02")
	if err != nil || m != (Month{2024, time.February}) || m.Days() != 29 {
		t.Errorf("ParseMonth: got %v %v", m, err)
	}
	if _, err := ParseMonth("Feb"); err == nil {
		t.Error("expected error for malformed month")
	}
}
