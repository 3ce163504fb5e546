// Package risk holds the exit state machine for open positions together
// with entry sizing and the account-level loss limits.
package risk

import (
	"log"
	"math"
	"time"

	"github.com/jaengyi/RedArrow/config"
	"github.com/jaengyi/RedArrow/internal/indicator"
	"github.com/jaengyi/RedArrow/internal/markethours"
	"github.com/jaengyi/RedArrow/internal/model"
)

// CloseReason labels why a position left the open state.
type CloseReason string

const (
	ReasonStopLoss     CloseReason = "stop_loss"
	ReasonTakeProfit   CloseReason = "take_profit"
	ReasonTrailingStop CloseReason = "trailing_stop"
	ReasonOvernight    CloseReason = "overnight_close"
	ReasonSessionEnd   CloseReason = "force_close_session_end"
)

// Decision is the outcome of one monitoring evaluation of a position.
type Decision struct {
	Close      bool
	Reason     CloseReason
	PnLPercent float64
}

// Controller applies the configured exit rules, sizing formula, and
// account-level limits. It is stateless: every input arrives per call.
type Controller struct {
	cfg     config.RiskConfig
	session markethours.Session
}

// New builds a Controller.
func New(cfg config.RiskConfig, session markethours.Session) *Controller {
	return &Controller{cfg: cfg, session: session}
}

// Evaluate runs the exit rules for one open position, first match wins:
// stop-loss, take-profit, trailing stop, overnight eligibility, hold.
// maRef is an optional moving-average floor (NaN disables it); unstable
// flags a market condition that forbids holding overnight.
func (c *Controller) Evaluate(pos model.Position, current, maRef float64, now time.Time, unstable bool) Decision {
	pnl := pnlPercent(pos.EntryPrice, current)

	if pnl <= -c.cfg.StopLossPercent || (indicator.Defined(maRef) && current < maRef) {
		return Decision{Close: true, Reason: ReasonStopLoss, PnLPercent: pnl}
	}

	if pnl >= c.cfg.TakeProfitPercent {
		return Decision{Close: true, Reason: ReasonTakeProfit, PnLPercent: pnl}
	}

	// The trailing stop locks in gains only: it needs the price to have
	// moved above entry and never fires at or below entry.
	if c.cfg.TrailingStopEnabled && pos.HighestPrice > pos.EntryPrice && current > pos.EntryPrice {
		floor := pos.HighestPrice * (1 - c.cfg.TrailingStopPercent/100)
		if current <= floor {
			return Decision{Close: true, Reason: ReasonTrailingStop, PnLPercent: pnl}
		}
	}

	if c.session.IsNearClose(now) {
		if !c.cfg.OvernightHold || pnl < c.cfg.OvernightMinProfit || unstable {
			return Decision{Close: true, Reason: ReasonOvernight, PnLPercent: pnl}
		}
	}

	return Decision{PnLPercent: pnl}
}

// ForceClose is the settlement decision issued at session end regardless
// of the exit rules.
func (c *Controller) ForceClose(pos model.Position, current float64) Decision {
	return Decision{Close: true, Reason: ReasonSessionEnd, PnLPercent: pnlPercent(pos.EntryPrice, current)}
}

// PositionSize returns the share quantity for a new entry: the risk
// budget divided by the per-share stop distance, capped by the per-symbol
// size limit, floored to whole shares. Zero when the price is invalid or
// the position cap is already reached.
func (c *Controller) PositionSize(balance, price float64, openPositions int) int64 {
	if price <= 0 || !c.CheckMaxPositions(openPositions) {
		return 0
	}
	riskAmount := balance * c.cfg.RiskPercent / 100
	raw := riskAmount / (price * c.cfg.StopLossPercent / 100)
	cap := c.cfg.MaxPositionSize / price
	qty := math.Floor(math.Min(raw, cap))
	if qty < 0 {
		return 0
	}
	return int64(qty)
}

// CheckMaxPositions reports whether another entry is allowed under the
// position cap.
func (c *Controller) CheckMaxPositions(openPositions int) bool {
	return openPositions < c.cfg.MaxPositions
}

// TrimForConcentration caps qty so a single symbol never exceeds the
// configured share of total account value. Existing exposure in the
// symbol counts against the cap.
func (c *Controller) TrimForConcentration(totalAssets, existingNotional, price float64, qty int64) int64 {
	if qty <= 0 || totalAssets <= 0 || price <= 0 {
		return 0
	}
	budget := totalAssets*c.cfg.MaxSingleStockRatio - existingNotional
	if budget <= 0 {
		return 0
	}
	allowed := int64(math.Floor(budget / price))
	if qty > allowed {
		log.Printf("[risk] concentration cap trims %d to %d shares (budget %.0f at %.0f)",
			qty, allowed, budget, price)
		return allowed
	}
	return qty
}

// DailyLossHalt reports whether the daily loss limit has been breached
// and new entries must stop for the rest of the session. Open positions
// still follow the normal close rules.
func (c *Controller) DailyLossHalt(dailyPnL, startingBalance float64) bool {
	if startingBalance <= 0 {
		return false
	}
	return dailyPnL/startingBalance*100 <= c.cfg.DailyLossLimit
}

func pnlPercent(entry, current float64) float64 {
	if entry == 0 {
		return 0
	}
	return (current - entry) / entry * 100
}
