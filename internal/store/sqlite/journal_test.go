package sqlite

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/jaengyi/RedArrow/internal/markethours"
	"github.com/jaengyi/RedArrow/internal/model"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := NewJournal(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

func TestJournalTradeRoundTrip(t *testing.T) {
	j := openTestJournal(t)
	ts := time.Date(2026, 9, 2, 11, 30, 0, 0, markethours.KST)

	buy := model.Trade{
		Symbol: "005930", Name: "Samsung Electronics", Side: model.SideBuy,
		Quantity: 14, Price: 70000, Reason: "score 8", OrderID: "B1", TS: ts,
	}
	sell := model.Trade{
		Symbol: "005930", Side: model.SideSell,
		Quantity: 14, Price: 68075, Reason: "stop_loss",
		PnL: -26950, PnLPercent: -2.75, OrderID: "S1", TS: ts.Add(time.Hour),
	}
	if err := j.RecordTrade(buy); err != nil {
		t.Fatalf("record buy: %v", err)
	}
	if err := j.RecordTrade(sell); err != nil {
		t.Fatalf("record sell: %v", err)
	}

	trades, err := j.TradesForDate("2026-09-02")
	if err != nil {
		t.Fatalf("read trades: %v", err)
	}
	if len(trades) != 2 {
		t.Fatalf("got %d trades, want 2", len(trades))
	}
	if trades[0].Side != model.SideBuy || trades[1].Side != model.SideSell {
		t.Errorf("order not preserved: %v %v", trades[0].Side, trades[1].Side)
	}
	if trades[1].PnL != -26950 || trades[1].Reason != "stop_loss" {
		t.Errorf("sell row mangled: %+v", trades[1])
	}

	if other, err := j.TradesForDate("2026-09-03"); err != nil || len(other) != 0 {
		t.Errorf("wrong-date query returned %d trades (err %v)", len(other), err)
	}
}

func TestJournalSummaryUpsert(t *testing.T) {
	j := openTestJournal(t)

	s := model.DailySummary{
		Date: "2026-09-02", DailyPnL: -26950,
		StartingBalance: 10_000_000, EndingBalance: 9_973_050,
		SettledAt: time.Date(2026, 9, 2, 15, 31, 0, 0, markethours.KST),
	}
	if err := j.RecordSummary(s); err != nil {
		t.Fatalf("record summary: %v", err)
	}

	// A second flush for the same date overwrites, not duplicates.
	s.DailyPnL = -30000
	s.EndingBalance = 9_970_000
	s.FinalPositions = []model.Position{{Symbol: "000660", EntryPrice: 120000, Quantity: 3, HighestPrice: 121000}}
	if err := j.RecordSummary(s); err != nil {
		t.Fatalf("record summary again: %v", err)
	}

	got, ok, err := j.Summary("2026-09-02")
	if err != nil || !ok {
		t.Fatalf("read summary: ok=%v err=%v", ok, err)
	}
	if got.DailyPnL != -30000 || got.EndingBalance != 9_970_000 {
		t.Errorf("summary not overwritten: %+v", got)
	}
	if len(got.FinalPositions) != 1 || got.FinalPositions[0].Symbol != "000660" {
		t.Errorf("final positions mangled: %+v", got.FinalPositions)
	}

	if _, ok, _ := j.Summary("2026-09-03"); ok {
		t.Error("summary reported for a date never settled")
	}
}
