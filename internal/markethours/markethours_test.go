package markethours

import (
	"testing"
	"time"
)

func kstTime(y int, m time.Month, d, hh, mm int) time.Time {
	return time.Date(y, m, d, hh, mm, 0, 0, KST)
}

func TestIsOpen_RegularSession(t *testing.T) {
	s := DefaultSession()

	// Wednesday 2026-03-04
	cases := []struct {
		at   time.Time
		want bool
	}{
		{kstTime(2026, time.March, 4, 8, 59), false},
		{kstTime(2026, time.March, 4, 9, 0), true},
		{kstTime(2026, time.March, 4, 12, 30), true},
		{kstTime(2026, time.March, 4, 15, 29), true},
		{kstTime(2026, time.March, 4, 15, 30), false},
		// Saturday
		{kstTime(2026, time.March, 7, 10, 0), false},
		// Seollal
		{kstTime(2026, time.February, 17, 10, 0), false},
	}
	for _, c := range cases {
		if got := s.IsOpen(c.at); got != c.want {
			t.Errorf("IsOpen(%s) = %v, want %v", c.at, got, c.want)
		}
	}
}

func TestIsOpen_ConvertsFromUTC(t *testing.T) {
	s := DefaultSession()
	// 01:00 UTC on a Wednesday is 10:00 KST — open.
	at := time.Date(2026, time.March, 4, 1, 0, 0, 0, time.UTC)
	if !s.IsOpen(at) {
		t.Error("expected open at 01:00 UTC (10:00 KST)")
	}
}

func TestIsNearClose(t *testing.T) {
	s := DefaultSession()
	if s.IsNearClose(kstTime(2026, time.March, 4, 15, 19)) {
		t.Error("15:19 is before the near-close cutoff")
	}
	if !s.IsNearClose(kstTime(2026, time.March, 4, 15, 20)) {
		t.Error("15:20 is at the near-close cutoff")
	}
}

func TestIsAfterClose(t *testing.T) {
	s := DefaultSession()
	if s.IsAfterClose(kstTime(2026, time.March, 4, 15, 29)) {
		t.Error("15:29 is before close")
	}
	if !s.IsAfterClose(kstTime(2026, time.March, 4, 15, 30)) {
		t.Error("15:30 is at close")
	}
}

func TestNextOpen_SkipsWeekend(t *testing.T) {
	s := DefaultSession()
	// Friday evening 2026-03-06 → Monday 2026-03-09 09:00
	next := s.NextOpen(kstTime(2026, time.March, 6, 18, 0))
	want := kstTime(2026, time.March, 9, 9, 0)
	if !next.Equal(want) {
		t.Errorf("NextOpen = %s, want %s", next, want)
	}
}

func TestTradeDate(t *testing.T) {
	if got := TradeDate(kstTime(2026, time.March, 4, 10, 0)); got != "2026-03-04" {
		t.Errorf("TradeDate = %q", got)
	}
}

func TestHasHolidayCalendar(t *testing.T) {
	if !HasHolidayCalendar(2026) {
		t.Error("2026 table missing")
	}
	// Uncovered years make IsHoliday blind; callers warn at startup.
	if HasHolidayCalendar(2027) {
		t.Error("claims coverage for a year with no table")
	}
}
