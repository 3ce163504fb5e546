// Package report renders end-of-day trading reports as markdown files.
// It reads the journal and live engine state but never mutates either.
package report

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jaengyi/RedArrow/internal/markethours"
	"github.com/jaengyi/RedArrow/internal/model"
)

// Source is the read side of the trade journal.
type Source interface {
	TradesForDate(date string) ([]model.Trade, error)
	Summary(date string) (model.DailySummary, bool, error)
}

// StateReader exposes the engine's current session view, read-only.
type StateReader interface {
	PositionsSnapshot() []model.Position
	AccountSnapshot() model.AccountState
	TradeDate() string
}

// Writer generates one markdown report per trading day.
type Writer struct {
	source   Source
	state    StateReader
	dir      string
	interval time.Duration

	now func() time.Time
}

// NewWriter builds a report writer. interval is how often the report is
// refreshed; the file for a given date is overwritten in place.
func NewWriter(source Source, state StateReader, dir string, interval time.Duration) *Writer {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &Writer{
		source:   source,
		state:    state,
		dir:      dir,
		interval: interval,
		now:      func() time.Time { return time.Now().In(markethours.KST) },
	}
}

// Run refreshes the daily report on a timer until ctx is cancelled.
// A final refresh happens on shutdown so the report covers the full session.
func (w *Writer) Run(ctx context.Context) {
	log.Printf("[report] writer started (dir %s, every %s)", w.dir, w.interval)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if err := w.WriteToday(); err != nil {
				log.Printf("[report] final write: %v", err)
			}
			return
		case <-ticker.C:
			if err := w.WriteToday(); err != nil {
				log.Printf("[report] write: %v", err)
			}
		}
	}
}

// WriteToday renders the report for the current trade date.
func (w *Writer) WriteToday() error {
	date := markethours.TradeDate(w.now())
	return w.Write(date)
}

// Write renders the report for one trading day to <dir>/<date>_report.md.
// Days with no trades and no settlement produce no file.
func (w *Writer) Write(date string) error {
	trades, err := w.source.TradesForDate(date)
	if err != nil {
		return fmt.Errorf("report: load trades %s: %w", date, err)
	}
	summary, settled, err := w.source.Summary(date)
	if err != nil {
		return fmt.Errorf("report: load summary %s: %w", date, err)
	}
	if len(trades) == 0 && !settled {
		return nil
	}

	content := w.render(date, trades, summary, settled)

	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("report: mkdir %s: %w", w.dir, err)
	}
	path := filepath.Join(w.dir, date+"_report.md")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(content), 0o644); err != nil {
		return fmt.Errorf("report: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("report: rename %s: %w", path, err)
	}
	return nil
}

func (w *Writer) render(date string, trades []model.Trade, summary model.DailySummary, settled bool) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Trading Report %s\n\n", date)

	var buys, sells []model.Trade
	for _, t := range trades {
		if t.Side == model.SideBuy {
			buys = append(buys, t)
		} else {
			sells = append(sells, t)
		}
	}

	b.WriteString("## Entries\n\n")
	if len(buys) == 0 {
		b.WriteString("No entries.\n\n")
	} else {
		b.WriteString("| Time | Symbol | Name | Qty | Price | Notional |\n")
		b.WriteString("|------|--------|------|----:|------:|---------:|\n")
		for _, t := range buys {
			fmt.Fprintf(&b, "| %s | %s | %s | %d | %s | %s |\n",
				t.TS.In(markethours.KST).Format("15:04:05"),
				t.Symbol, t.Name, t.Quantity, krw(t.Price), krw(t.Notional()))
		}
		b.WriteString("\n")
	}

	b.WriteString("## Exits\n\n")
	if len(sells) == 0 {
		b.WriteString("No exits.\n\n")
	} else {
		b.WriteString("| Time | Symbol | Name | Qty | Price | Reason | PnL | PnL % |\n")
		b.WriteString("|------|--------|------|----:|------:|--------|----:|------:|\n")
		for _, t := range sells {
			fmt.Fprintf(&b, "| %s | %s | %s | %d | %s | %s | %s | %+.2f%% |\n",
				t.TS.In(markethours.KST).Format("15:04:05"),
				t.Symbol, t.Name, t.Quantity, krw(t.Price), t.Reason,
				krw(t.PnL), t.PnLPercent)
		}
		b.WriteString("\n")
	}

	b.WriteString("## Summary\n\n")
	fmt.Fprintf(&b, "- Trades: %d (%d entries, %d exits)\n", len(trades), len(buys), len(sells))
	if settled {
		fmt.Fprintf(&b, "- Starting balance: %s\n", krw(summary.StartingBalance))
		fmt.Fprintf(&b, "- Ending balance: %s\n", krw(summary.EndingBalance))
		fmt.Fprintf(&b, "- Daily PnL: %s\n", krw(summary.DailyPnL))
		fmt.Fprintf(&b, "- Settled at: %s\n", summary.SettledAt.In(markethours.KST).Format("2006-01-02 15:04:05"))
		if len(summary.FinalPositions) > 0 {
			fmt.Fprintf(&b, "- Positions carried past close: %d\n", len(summary.FinalPositions))
		}
	} else if w.state != nil && w.state.TradeDate() == date {
		acct := w.state.AccountSnapshot()
		open := w.state.PositionsSnapshot()
		fmt.Fprintf(&b, "- Session in progress, realized PnL so far: %s\n", krw(acct.RealizedPnLToday))
		if len(open) > 0 {
			b.WriteString("\n### Open positions\n\n")
			b.WriteString("| Symbol | Name | Qty | Entry | High |\n")
			b.WriteString("|--------|------|----:|------:|-----:|\n")
			for _, p := range open {
				fmt.Fprintf(&b, "| %s | %s | %d | %s | %s |\n",
					p.Symbol, p.Name, p.Quantity, krw(p.EntryPrice), krw(p.HighestPrice))
			}
		}
	}

	return b.String()
}

// krw formats a KRW amount with thousands separators and no decimals.
func krw(v float64) string {
	neg := v < 0
	if neg {
		v = -v
	}
	s := fmt.Sprintf("%.0f", v)
	var out []byte
	for i, c := range []byte(s) {
		if i > 0 && (len(s)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, c)
	}
	if neg {
		return "-" + string(out)
	}
	return string(out)
}
