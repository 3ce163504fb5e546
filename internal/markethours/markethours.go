// Package markethours answers "is the KRX regular session open" style
// questions. All decisions are in Korea Standard Time.
package markethours

import (
	"fmt"
	"time"
)

// KST is Korea Standard Time (UTC+9).
var KST = time.FixedZone("KST", 9*3600)

// Session holds the configured trading window in KST.
// NearCloseMinute marks the cutoff after which overnight eligibility is
// evaluated for open positions (default 15:20).
type Session struct {
	OpenHour        int
	OpenMinute      int
	CloseHour       int
	CloseMinute     int
	NearCloseHour   int
	NearCloseMinute int
}

// DefaultSession is the KRX regular session: 09:00–15:30, near-close 15:20.
func DefaultSession() Session {
	return Session{
		OpenHour: 9, OpenMinute: 0,
		CloseHour: 15, CloseMinute: 30,
		NearCloseHour: 15, NearCloseMinute: 20,
	}
}

// IsOpen returns true if t falls within the regular session
// (Mon–Fri, excluding exchange holidays).
func (s Session) IsOpen(t time.Time) bool {
	kst := t.In(KST)
	if !isWeekday(kst) || IsHoliday(kst) {
		return false
	}
	hm := kst.Hour()*60 + kst.Minute()
	return hm >= s.OpenHour*60+s.OpenMinute && hm < s.CloseHour*60+s.CloseMinute
}

// IsNearClose returns true if t is at or past the near-close cutoff on a
// trading day (still inside or after the session).
func (s Session) IsNearClose(t time.Time) bool {
	kst := t.In(KST)
	if !IsTradingDay(kst) {
		return false
	}
	hm := kst.Hour()*60 + kst.Minute()
	return hm >= s.NearCloseHour*60+s.NearCloseMinute
}

// IsAfterClose returns true if t is past today's close on a trading day.
func (s Session) IsAfterClose(t time.Time) bool {
	kst := t.In(KST)
	if !IsTradingDay(kst) {
		return false
	}
	hm := kst.Hour()*60 + kst.Minute()
	return hm >= s.CloseHour*60+s.CloseMinute
}

// TodayClose returns today's close time in KST.
func (s Session) TodayClose(t time.Time) time.Time {
	kst := t.In(KST)
	return time.Date(kst.Year(), kst.Month(), kst.Day(), s.CloseHour, s.CloseMinute, 0, 0, KST)
}

// NextOpen returns the next session open. If t is before today's open on a
// trading day, today's open is returned.
func (s Session) NextOpen(t time.Time) time.Time {
	kst := t.In(KST)

	todayOpen := time.Date(kst.Year(), kst.Month(), kst.Day(), s.OpenHour, s.OpenMinute, 0, 0, KST)
	if kst.Before(todayOpen) && IsTradingDay(kst) {
		return todayOpen
	}

	d := kst.AddDate(0, 0, 1)
	for i := 0; i < 10; i++ { // holidays + weekends never exceed this span
		if IsTradingDay(d) {
			return time.Date(d.Year(), d.Month(), d.Day(), s.OpenHour, s.OpenMinute, 0, 0, KST)
		}
		d = d.AddDate(0, 0, 1)
	}
	return time.Date(kst.Year(), kst.Month(), kst.Day()+1, s.OpenHour, s.OpenMinute, 0, 0, KST)
}

// IsTradingDay returns true if t is a weekday and not an exchange holiday.
func IsTradingDay(t time.Time) bool {
	kst := t.In(KST)
	return isWeekday(kst) && !IsHoliday(kst)
}

func isWeekday(t time.Time) bool {
	wd := t.Weekday()
	return wd >= time.Monday && wd <= time.Friday
}

// TradeDate returns the session date string (YYYY-MM-DD) for t in KST.
func TradeDate(t time.Time) string {
	return t.In(KST).Format("2006-01-02")
}

// StatusString returns a human-readable market status for logs.
func (s Session) StatusString(t time.Time) string {
	if s.IsOpen(t) {
		d := s.TodayClose(t).Sub(t.In(KST))
		return fmt.Sprintf("market open, closes in %s", fmtDur(d))
	}
	next := s.NextOpen(t)
	return fmt.Sprintf("market closed, opens %s %s",
		next.Weekday().String()[:3], next.Format("15:04"))
}

func fmtDur(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh%dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}
