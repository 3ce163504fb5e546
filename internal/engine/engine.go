// Package engine drives the daily trading loop: market gating, position
// sync, data collection, selection, entry sizing, position monitoring and
// end-of-day settlement.
//
// A single goroutine owns the tick loop; each tick runs to completion
// before the next begins. The report task reads through snapshot
// accessors, never the live table.
package engine

import (
	"context"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"github.com/jaengyi/RedArrow/config"
	"github.com/jaengyi/RedArrow/internal/broker"
	"github.com/jaengyi/RedArrow/internal/indicator"
	"github.com/jaengyi/RedArrow/internal/markethours"
	"github.com/jaengyi/RedArrow/internal/metrics"
	"github.com/jaengyi/RedArrow/internal/model"
	"github.com/jaengyi/RedArrow/internal/notification"
	"github.com/jaengyi/RedArrow/internal/risk"
	"github.com/jaengyi/RedArrow/internal/selector"
)

// Journal records fills and session summaries durably.
type Journal interface {
	RecordTrade(t model.Trade) error
	RecordSummary(s model.DailySummary) error
}

// Cache publishes live state for external consumers (dashboards).
type Cache interface {
	PublishSnapshots(ctx context.Context, snaps []model.Snapshot) error
	PublishPositions(ctx context.Context, positions []model.Position) error
	PublishSummary(ctx context.Context, s model.DailySummary) error
}

// Options carries the optional collaborators. Nil fields disable the
// corresponding output.
type Options struct {
	Journal  Journal
	Cache    Cache
	Notifier notification.Notifier
	Metrics  *metrics.Metrics
	Health   *metrics.HealthStatus
}

// Engine is the orchestrator.
type Engine struct {
	cfg      *config.Config
	gw       broker.Gateway
	sel      *selector.Selector
	riskCtl  *risk.Controller
	session  markethours.Session
	journal  Journal
	cache    Cache
	notifier notification.Notifier
	metrics  *metrics.Metrics
	health   *metrics.HealthStatus

	positions *positionTable

	// Session-scoped state. The tick loop is the only writer; stateMu
	// lets the report task read a consistent view.
	stateMu         sync.RWMutex
	tradeDate       string
	startingBalance float64
	balance         float64
	totalAssets     float64
	dailyPnL        float64
	halted          bool
	settled         bool

	lastSync     time.Time
	connFailures int
	degraded     bool

	// Daily history cache, reset each session.
	histories   map[string][]model.PriceBar
	historyDate string

	// Buy orders accepted but not yet confirmed filled, symbol to
	// reserved notional. They count toward the position cap and hold
	// their cash until the next broker sync reconciles them.
	pending map[string]float64

	now func() time.Time
}

// New wires the orchestrator. The order-book imbalance signal is hooked
// up only when its weight is nonzero.
func New(cfg *config.Config, gw broker.Gateway, opts Options) (*Engine, error) {
	session, err := cfg.Session()
	if err != nil {
		return nil, err
	}
	e := &Engine{
		cfg:       cfg,
		gw:        gw,
		sel:       selector.New(cfg),
		riskCtl:   risk.New(cfg.Risk, session),
		session:   session,
		journal:   opts.Journal,
		cache:     opts.Cache,
		notifier:  opts.Notifier,
		metrics:   opts.Metrics,
		health:    opts.Health,
		positions: newPositionTable(),
		histories: make(map[string][]model.PriceBar),
		pending:   make(map[string]float64),
		now:       time.Now,
	}
	if e.notifier == nil {
		e.notifier = notification.NewLogNotifier()
	}
	if cfg.Selector.Weights.OrderBookImbalance > 0 {
		e.sel.OrderBookFunc = e.orderBookDepth
	}
	return e, nil
}

// Run executes the tick loop until ctx is cancelled. On shutdown the
// in-flight tick finishes and a settlement record is flushed if the
// session is still open.
func (e *Engine) Run(ctx context.Context) error {
	log.Printf("[engine] loop started (tick %s, mode %s)", e.cfg.Engine.TickInterval, e.cfg.Mode)
	ticker := time.NewTicker(e.cfg.Engine.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.flushOnStop()
			return ctx.Err()
		case <-ticker.C:
			if err := e.Tick(ctx); err != nil {
				log.Printf("[engine] tick: %v", err)
			}
		}
	}
}

// Tick runs one orchestration cycle.
func (e *Engine) Tick(ctx context.Context) error {
	now := e.now()
	if e.metrics != nil {
		e.metrics.TicksTotal.Inc()
	}
	if e.health != nil {
		e.health.SetLastTick(now)
	}

	// MarketGate: outside the session the only work left is settlement.
	if !e.session.IsOpen(now) {
		if e.metrics != nil {
			e.metrics.MarketState.Set(0)
		}
		if e.session.IsAfterClose(now) && e.tradeDate == markethours.TradeDate(now) && !e.isSettled() {
			return e.settle(ctx, now)
		}
		return nil
	}
	if e.metrics != nil {
		e.metrics.MarketState.Set(1)
	}

	if d := markethours.TradeDate(now); d != e.currentTradeDate() {
		e.beginSession(d)
	}

	if err := e.syncPositions(ctx, now); err != nil {
		// Stale account state blocks new entries, but open positions
		// still get their exit rules applied while quotes may work.
		log.Printf("[engine] position sync failed, entries skipped: %v", err)
		e.monitorPositions(ctx, now)
		return fmt.Errorf("position sync: %w", err)
	}

	universe := e.collectData(ctx)

	if !e.isHalted() && !e.degraded && len(universe) > 0 {
		e.runSelectionAndEntries(ctx, universe, now)
	}

	e.monitorPositions(ctx, now)
	return nil
}

// beginSession resets the daily counters at the first tick of a new
// trading day.
func (e *Engine) beginSession(date string) {
	e.stateMu.Lock()
	e.tradeDate = date
	e.startingBalance = 0
	e.dailyPnL = 0
	e.halted = false
	e.settled = false
	e.stateMu.Unlock()

	e.lastSync = time.Time{} // force an immediate sync
	e.histories = make(map[string][]model.PriceBar)
	e.historyDate = date
	e.pending = make(map[string]float64)
	log.Printf("[engine] session %s started", date)
}

// syncPositions reconciles the local table and account against the
// broker ledger. Runs on the first cycle and then on the sync interval;
// the broker view overwrites local state.
func (e *Engine) syncPositions(ctx context.Context, now time.Time) error {
	if !e.lastSync.IsZero() && now.Sub(e.lastSync) < e.cfg.Engine.SyncInterval {
		return nil
	}

	external, err := e.brokerPositions(ctx)
	if err != nil {
		e.noteBrokerFailure("positions", err)
		return err
	}
	bal, err := e.brokerBalance(ctx)
	if err != nil {
		e.noteBrokerFailure("balance", err)
		return err
	}
	e.noteBrokerSuccess()

	e.positions.ReplaceAll(external, now)
	// The ledger now reflects any submitted orders, filled or expired.
	e.pending = make(map[string]float64)

	e.stateMu.Lock()
	e.balance = bal.AvailableAmount
	e.totalAssets = bal.TotalAssets
	if e.startingBalance == 0 {
		e.startingBalance = bal.TotalAssets
	}
	e.stateMu.Unlock()

	e.lastSync = now
	log.Printf("[engine] synced %d positions, cash %.0f, assets %.0f",
		len(external), bal.AvailableAmount, bal.TotalAssets)
	return nil
}

// collectData pulls the liquid universe and fills the per-session
// history cache. Partial data is fine: symbols without history are
// excluded later by the selector.
func (e *Engine) collectData(ctx context.Context) []model.Snapshot {
	callCtx, cancel := e.brokerCtx(ctx)
	start := time.Now()
	universe, err := e.gw.TopVolumeStocks(callCtx, e.cfg.Selector.TopVolumeCount)
	cancel()
	e.observe("top_volume", start)
	if err != nil {
		e.noteBrokerFailure("top volume", err)
		return nil
	}
	e.noteBrokerSuccess()

	for _, snap := range universe {
		if _, ok := e.histories[snap.Symbol]; ok {
			continue
		}
		callCtx, cancel := e.brokerCtx(ctx)
		bars, err := e.gw.HistoricalData(callCtx, snap.Symbol, e.cfg.Engine.HistoryDays)
		cancel()
		if err != nil {
			if broker.IsConnectivity(err) {
				e.noteBrokerFailure("history", err)
				break // keep what we have, retry the rest next tick
			}
			log.Printf("[engine] history %s: %v", snap.Symbol, err)
			continue
		}
		e.histories[snap.Symbol] = bars
	}

	if e.cache != nil {
		if err := e.cache.PublishSnapshots(ctx, universe); err != nil {
			log.Printf("[engine] cache snapshots: %v", err)
		}
	}
	return universe
}

// runSelectionAndEntries scores the universe and opens positions for the
// top candidates, stopping at the position cap.
func (e *Engine) runSelectionAndEntries(ctx context.Context, universe []model.Snapshot, now time.Time) {
	candidates, diags := e.sel.Select(universe, e.histories)
	if e.metrics != nil {
		e.metrics.SelectionsTotal.Inc()
		e.metrics.CandidatesTotal.Add(float64(len(candidates)))
	}
	for _, d := range diags {
		log.Printf("[engine] selector excluded %s: %s", d.Symbol, d.Reason)
	}

	for _, c := range candidates {
		// In-flight submitted buys hold a slot until the sync confirms
		// or expires them.
		open := e.positions.Count() + len(e.pending)
		if !e.riskCtl.CheckMaxPositions(open) {
			log.Printf("[engine] position cap %d reached, entries stop", e.cfg.Risk.MaxPositions)
			return
		}
		if e.positions.Has(c.Symbol) {
			continue
		}
		if _, inFlight := e.pending[c.Symbol]; inFlight {
			continue
		}

		e.stateMu.RLock()
		balance, assets := e.balance, e.totalAssets
		e.stateMu.RUnlock()

		qty := e.riskCtl.PositionSize(balance, c.Snapshot.Price, open)
		qty = e.riskCtl.TrimForConcentration(assets, e.positions.NotionalOf(c.Symbol), c.Snapshot.Price, qty)
		if qty <= 0 {
			continue
		}

		if !e.enterPosition(ctx, c, qty, now) {
			if e.degraded {
				return
			}
		}
	}
}

// enterPosition submits a market buy and records the position on a
// confirmed fill. Returns false when the order did not fill.
func (e *Engine) enterPosition(ctx context.Context, c model.ScoredCandidate, qty int64, now time.Time) bool {
	callCtx, cancel := e.brokerCtx(ctx)
	start := time.Now()
	res, err := e.gw.PlaceBuyOrder(callCtx, c.Symbol, qty, 0)
	cancel()
	e.observe("buy", start)
	if err != nil {
		if broker.IsConnectivity(err) {
			e.noteBrokerFailure("buy", err)
		} else {
			log.Printf("[engine] buy %s rejected: %v", c.Symbol, err)
		}
		e.countOrder(model.SideBuy, res.Status)
		return false
	}
	e.countOrder(model.SideBuy, res.Status)

	if res.Status != broker.StatusFilled {
		// Submitted but unconfirmed: reserve the slot and the cash so
		// further entries size against what is left; the next position
		// sync reconciles the order against the ledger.
		if res.Status == broker.StatusSubmitted {
			notional := float64(qty) * c.Snapshot.Price
			e.pending[c.Symbol] = notional
			e.stateMu.Lock()
			e.balance -= notional
			e.stateMu.Unlock()
		}
		log.Printf("[engine] buy %s x%d %s (%s)", c.Symbol, qty, res.Status, res.OrderID)
		return false
	}

	pos := model.Position{
		Symbol:       c.Symbol,
		Name:         c.Snapshot.Name,
		EntryPrice:   c.Snapshot.Price,
		Quantity:     qty,
		HighestPrice: c.Snapshot.Price,
		EntryTime:    now,
	}
	e.positions.Add(pos)
	e.setOpenPositionsGauge()

	e.stateMu.Lock()
	e.balance -= pos.Notional()
	e.stateMu.Unlock()

	trade := model.Trade{
		Symbol:   c.Symbol,
		Name:     c.Snapshot.Name,
		Side:     model.SideBuy,
		Quantity: qty,
		Price:    c.Snapshot.Price,
		Reason:   fmt.Sprintf("score %d", c.Score),
		OrderID:  res.OrderID,
		TS:       now,
	}
	e.recordTrade(trade)
	e.notify(ctx, notification.EntryAlert(trade, c.Score))
	log.Printf("[engine] entered %s x%d at %.0f (score %d)", c.Symbol, qty, c.Snapshot.Price, c.Score)
	return true
}

// monitorPositions refreshes every open position and applies the exit
// rules. Per-symbol failures never abort the pass.
func (e *Engine) monitorPositions(ctx context.Context, now time.Time) {
	for _, pos := range e.positions.Snapshot() {
		callCtx, cancel := e.brokerCtx(ctx)
		start := time.Now()
		snap, err := e.gw.StockPrice(callCtx, pos.Symbol)
		cancel()
		e.observe("price", start)
		if err != nil {
			if broker.IsConnectivity(err) {
				e.noteBrokerFailure("price", err)
			} else {
				log.Printf("[engine] price %s: %v", pos.Symbol, err)
			}
			continue
		}
		e.noteBrokerSuccess()

		current, ok := e.positions.RatchetHighest(pos.Symbol, snap.Price)
		if !ok {
			continue
		}

		decision := e.riskCtl.Evaluate(current, snap.Price, e.maReference(pos.Symbol), now, e.degraded)
		if decision.Close {
			e.closePosition(ctx, current, snap.Price, decision, now)
		}
	}
	e.setOpenPositionsGauge()

	if e.cache != nil {
		if err := e.cache.PublishPositions(ctx, e.positions.Snapshot()); err != nil {
			log.Printf("[engine] cache positions: %v", err)
		}
	}
	e.checkDailyLossLimit(ctx)
}

// closePosition submits a market sell and settles the local books on a
// confirmed fill.
func (e *Engine) closePosition(ctx context.Context, pos model.Position, price float64, decision risk.Decision, now time.Time) {
	callCtx, cancel := e.brokerCtx(ctx)
	start := time.Now()
	res, err := e.gw.PlaceSellOrder(callCtx, pos.Symbol, pos.Quantity, 0)
	cancel()
	e.observe("sell", start)
	if err != nil {
		if broker.IsConnectivity(err) {
			e.noteBrokerFailure("sell", err)
		} else {
			log.Printf("[engine] sell %s rejected: %v", pos.Symbol, err)
		}
		e.countOrder(model.SideSell, res.Status)
		return
	}
	e.countOrder(model.SideSell, res.Status)
	if res.Status != broker.StatusFilled {
		log.Printf("[engine] sell %s x%d %s (%s)", pos.Symbol, pos.Quantity, res.Status, res.OrderID)
		return
	}

	pnl := pos.UnrealizedPnL(price)
	e.positions.Remove(pos.Symbol)
	e.setOpenPositionsGauge()

	e.stateMu.Lock()
	e.balance += price * float64(pos.Quantity)
	e.dailyPnL += pnl
	dailyPnL := e.dailyPnL
	e.stateMu.Unlock()

	if e.metrics != nil {
		e.metrics.ClosesTotal.WithLabelValues(string(decision.Reason)).Inc()
		e.metrics.DailyPnL.Set(dailyPnL)
	}

	trade := model.Trade{
		Symbol:     pos.Symbol,
		Name:       pos.Name,
		Side:       model.SideSell,
		Quantity:   pos.Quantity,
		Price:      price,
		Reason:     string(decision.Reason),
		PnL:        pnl,
		PnLPercent: decision.PnLPercent,
		OrderID:    res.OrderID,
		TS:         now,
	}
	e.recordTrade(trade)
	e.notify(ctx, notification.ExitAlert(trade))
	log.Printf("[engine] closed %s x%d at %.0f (%s, %+.0f KRW)",
		pos.Symbol, pos.Quantity, price, decision.Reason, pnl)
}

// checkDailyLossLimit trips the entry halt once the realized daily loss
// breaches the limit. Open positions keep following the exit rules.
func (e *Engine) checkDailyLossLimit(ctx context.Context) {
	e.stateMu.RLock()
	halted, dailyPnL, starting := e.halted, e.dailyPnL, e.startingBalance
	e.stateMu.RUnlock()
	if halted || !e.riskCtl.DailyLossHalt(dailyPnL, starting) {
		return
	}

	e.stateMu.Lock()
	e.halted = true
	e.stateMu.Unlock()
	if e.metrics != nil {
		e.metrics.EntriesHalted.Set(1)
	}
	log.Printf("[engine] daily loss limit reached (%.0f KRW), entries halted", dailyPnL)
	e.notify(ctx, notification.HaltAlert(dailyPnL, e.cfg.Risk.DailyLossLimit))
}

// settle force-closes all remaining positions, emits the daily summary
// and freezes the session.
func (e *Engine) settle(ctx context.Context, now time.Time) error {
	log.Printf("[engine] settling session %s", e.currentTradeDate())

	for _, pos := range e.positions.Snapshot() {
		price := pos.EntryPrice
		callCtx, cancel := e.brokerCtx(ctx)
		if snap, err := e.gw.StockPrice(callCtx, pos.Symbol); err == nil {
			price = snap.Price
		}
		cancel()
		e.closePosition(ctx, pos, price, e.riskCtl.ForceClose(pos, price), now)
	}

	e.stateMu.Lock()
	e.settled = true
	summary := model.DailySummary{
		Date:            e.tradeDate,
		DailyPnL:        e.dailyPnL,
		StartingBalance: e.startingBalance,
		EndingBalance:   e.startingBalance + e.dailyPnL,
		FinalPositions:  e.positions.Snapshot(),
		SettledAt:       now,
	}
	e.stateMu.Unlock()

	if e.journal != nil {
		if err := e.journal.RecordSummary(summary); err != nil {
			log.Printf("[engine] journal summary: %v", err)
		}
	}
	if e.cache != nil {
		if err := e.cache.PublishSummary(ctx, summary); err != nil {
			log.Printf("[engine] cache summary: %v", err)
		}
	}
	e.notify(ctx, notification.SettlementAlert(summary))
	log.Printf("[engine] session %s settled: PnL %+.0f KRW, %d positions left",
		summary.Date, summary.DailyPnL, len(summary.FinalPositions))
	return nil
}

// flushOnStop writes a settlement record during shutdown so no session
// ends without one.
func (e *Engine) flushOnStop() {
	if e.currentTradeDate() == "" || e.isSettled() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.Engine.BrokerTimeout)
	defer cancel()
	if err := e.settle(ctx, e.now()); err != nil {
		log.Printf("[engine] settlement flush: %v", err)
	}
}

// maReference returns the long moving average for the exit rules, NaN
// when the symbol has no cached history.
func (e *Engine) maReference(symbol string) float64 {
	bars, ok := e.histories[symbol]
	if !ok {
		return math.NaN()
	}
	return indicator.Last(indicator.MovingAverage(model.Closes(bars), e.cfg.Selector.MALongPeriod))
}

// orderBookDepth backs the selector's optional imbalance signal.
func (e *Engine) orderBookDepth(symbol string) (model.OrderBook, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.Engine.BrokerTimeout)
	defer cancel()
	book, err := e.gw.OrderBook(ctx, symbol)
	if err != nil {
		return model.OrderBook{}, false
	}
	return book, true
}

// PositionsSnapshot returns copies of the open positions for read-only
// consumers.
func (e *Engine) PositionsSnapshot() []model.Position {
	return e.positions.Snapshot()
}

// AccountSnapshot returns the current local account view.
func (e *Engine) AccountSnapshot() model.AccountState {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	return model.AccountState{Balance: e.balance, RealizedPnLToday: e.dailyPnL}
}

// TradeDate returns the current session date, empty before the first
// in-session tick.
func (e *Engine) TradeDate() string {
	return e.currentTradeDate()
}

func (e *Engine) currentTradeDate() string {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	return e.tradeDate
}

func (e *Engine) isHalted() bool {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	return e.halted
}

func (e *Engine) isSettled() bool {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	return e.settled
}

func (e *Engine) brokerCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, e.cfg.Engine.BrokerTimeout)
}

// observe feeds the broker-call latency histogram.
func (e *Engine) observe(call string, start time.Time) {
	if e.metrics != nil {
		e.metrics.ObserveBrokerCall(call, start)
	}
}

func (e *Engine) brokerPositions(ctx context.Context) ([]model.BrokerPosition, error) {
	callCtx, cancel := e.brokerCtx(ctx)
	defer cancel()
	start := time.Now()
	defer e.observe("positions", start)
	return e.gw.Positions(callCtx)
}

func (e *Engine) brokerBalance(ctx context.Context) (model.AccountBalance, error) {
	callCtx, cancel := e.brokerCtx(ctx)
	defer cancel()
	start := time.Now()
	defer e.observe("balance", start)
	return e.gw.AccountBalance(callCtx)
}

// noteBrokerFailure counts connectivity failures toward the degraded
// budget. In degraded mode no new entries are made until a call
// succeeds again.
func (e *Engine) noteBrokerFailure(op string, err error) {
	if e.metrics != nil {
		e.metrics.BrokerErrors.Inc()
	}
	if !broker.IsConnectivity(err) {
		return
	}
	e.connFailures++
	log.Printf("[engine] broker %s failed (%d/%d): %v", op, e.connFailures, e.cfg.Engine.MaxConnFailures, err)
	if e.connFailures >= e.cfg.Engine.MaxConnFailures && !e.degraded {
		e.degraded = true
		if e.metrics != nil {
			e.metrics.DegradedMode.Set(1)
		}
		log.Printf("[engine] entering degraded mode: no new entries until the broker recovers")
	}
}

func (e *Engine) noteBrokerSuccess() {
	e.connFailures = 0
	if e.degraded {
		e.degraded = false
		if e.metrics != nil {
			e.metrics.DegradedMode.Set(0)
		}
		log.Printf("[engine] broker recovered, leaving degraded mode")
	}
}

func (e *Engine) setOpenPositionsGauge() {
	if e.metrics != nil {
		e.metrics.OpenPositions.Set(float64(e.positions.Count()))
	}
}

func (e *Engine) countOrder(side, status string) {
	if e.metrics != nil {
		if status == "" {
			status = "error"
		}
		e.metrics.OrdersTotal.WithLabelValues(side, status).Inc()
	}
}

func (e *Engine) recordTrade(t model.Trade) {
	if e.journal == nil {
		return
	}
	if err := e.journal.RecordTrade(t); err != nil {
		log.Printf("[engine] journal trade: %v", err)
		if e.health != nil {
			e.health.SetJournalOK(false)
		}
		return
	}
	if e.health != nil {
		e.health.SetJournalOK(true)
	}
}

func (e *Engine) notify(ctx context.Context, alert notification.Alert) {
	if err := e.notifier.Send(ctx, alert); err != nil {
		log.Printf("[engine] notify: %v", err)
	}
}
