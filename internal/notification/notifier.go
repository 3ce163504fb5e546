// Package notification delivers trading alerts (entries, exits, loss-limit
// halts, settlement) to external channels.
package notification

import (
	"context"
	"fmt"
	"log"

	"github.com/jaengyi/RedArrow/internal/model"
)

// AlertLevel represents the severity of an alert.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "INFO"
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

// Alert is a notification to be sent.
type Alert struct {
	Level   AlertLevel `json:"level"`
	Title   string     `json:"title"`
	Message string     `json:"message"`
}

// Notifier is the interface for all notification backends.
type Notifier interface {
	Send(ctx context.Context, alert Alert) error
}

// EntryAlert describes a filled buy.
func EntryAlert(t model.Trade, score int) Alert {
	return Alert{
		Level: AlertInfo,
		Title: fmt.Sprintf("Entry %s", t.Symbol),
		Message: fmt.Sprintf("%s x%d at %.0f KRW (score %d, %.0f KRW notional)",
			t.Symbol, t.Quantity, t.Price, score, t.Notional()),
	}
}

// ExitAlert describes a filled sell.
func ExitAlert(t model.Trade) Alert {
	level := AlertInfo
	if t.PnL < 0 {
		level = AlertWarning
	}
	return Alert{
		Level: level,
		Title: fmt.Sprintf("Exit %s (%s)", t.Symbol, t.Reason),
		Message: fmt.Sprintf("%s x%d at %.0f KRW, PnL %+.0f KRW (%+.2f%%)",
			t.Symbol, t.Quantity, t.Price, t.PnL, t.PnLPercent),
	}
}

// HaltAlert fires when the daily loss limit stops new entries.
func HaltAlert(dailyPnL, limitPercent float64) Alert {
	return Alert{
		Level:   AlertCritical,
		Title:   "Daily loss limit reached",
		Message: fmt.Sprintf("daily PnL %+.0f KRW breached the %.1f%% limit, entries halted", dailyPnL, limitPercent),
	}
}

// SettlementAlert summarizes the session at close.
func SettlementAlert(s model.DailySummary) Alert {
	return Alert{
		Level: AlertInfo,
		Title: fmt.Sprintf("Settlement %s", s.Date),
		Message: fmt.Sprintf("daily PnL %+.0f KRW, balance %.0f -> %.0f, %d positions left open",
			s.DailyPnL, s.StartingBalance, s.EndingBalance, len(s.FinalPositions)),
	}
}

// LogNotifier writes alerts to the process log. Used in simulation mode
// and whenever no external channel is configured.
type LogNotifier struct{}

func NewLogNotifier() *LogNotifier { return &LogNotifier{} }

func (n *LogNotifier) Send(ctx context.Context, alert Alert) error {
	log.Printf("[notify] [%s] %s: %s", alert.Level, alert.Title, alert.Message)
	return nil
}

// Multi fans an alert out to several backends. Delivery failures are
// logged per backend and never abort the remaining sends.
type Multi struct {
	backends []Notifier
}

func NewMulti(backends ...Notifier) *Multi {
	return &Multi{backends: backends}
}

func (m *Multi) Send(ctx context.Context, alert Alert) error {
	var firstErr error
	for _, b := range m.backends {
		if err := b.Send(ctx, alert); err != nil {
			log.Printf("[notify] backend %T failed: %v", b, err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
