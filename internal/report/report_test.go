package report

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jaengyi/RedArrow/internal/markethours"
	"github.com/jaengyi/RedArrow/internal/model"
)

type fixedSource struct {
	trades  []model.Trade
	summary model.DailySummary
	settled bool
}

func (s *fixedSource) TradesForDate(string) ([]model.Trade, error) { return s.trades, nil }
func (s *fixedSource) Summary(string) (model.DailySummary, bool, error) {
	return s.summary, s.settled, nil
}

func ts(h, m int) time.Time {
	return time.Date(2026, 9, 2, h, m, 0, 0, markethours.KST)
}

func TestWriteRendersTradesAndSummary(t *testing.T) {
	dir := t.TempDir()
	src := &fixedSource{
		trades: []model.Trade{
			{Symbol: "005930", Name: "Samsung Electronics", Side: model.SideBuy, Quantity: 14, Price: 70035, Reason: "score 8", TS: ts(9, 5)},
			{Symbol: "005930", Name: "Samsung Electronics", Side: model.SideSell, Quantity: 14, Price: 73500, Reason: "take_profit", PnL: 48510, PnLPercent: 4.95, TS: ts(13, 40)},
		},
		summary: model.DailySummary{
			Date:            "2026-09-02",
			DailyPnL:        48510,
			StartingBalance: 10_000_000,
			EndingBalance:   10_048_510,
			SettledAt:       ts(15, 35),
		},
		settled: true,
	}

	w := NewWriter(src, nil, dir, time.Minute)
	if err := w.Write("2026-09-02"); err != nil {
		t.Fatalf("Write: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "2026-09-02_report.md"))
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	got := string(data)

	for _, want := range []string{
		"# Trading Report 2026-09-02",
		"| 09:05:00 | 005930 | Samsung Electronics | 14 | 70,035 | 980,490 |",
		"| 13:40:00 | 005930 | Samsung Electronics | 14 | 73,500 | take_profit | 48,510 | +4.95% |",
		"- Trades: 2 (1 entries, 1 exits)",
		"- Daily PnL: 48,510",
		"- Ending balance: 10,048,510",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("report missing %q\n%s", want, got)
		}
	}
}

func TestWriteSkipsEmptyDay(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(&fixedSource{}, nil, dir, time.Minute)
	if err := w.Write("2026-09-02"); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "2026-09-02_report.md")); !os.IsNotExist(err) {
		t.Fatalf("expected no report file, stat err = %v", err)
	}
}

func TestKRWFormatting(t *testing.T) {
	cases := []struct {
		in   float64
		want string
	}{
		{0, "0"},
		{999, "999"},
		{1000, "1,000"},
		{10_048_510, "10,048,510"},
		{-48510, "-48,510"},
	}
	for _, c := range cases {
		if got := krw(c.in); got != c.want {
			t.Errorf("krw(%v) = %q, want %q", c.in, got, c.want)
		}
	}
}
