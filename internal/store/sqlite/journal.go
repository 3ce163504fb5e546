// Package sqlite persists the trade journal and daily settlement
// summaries. One process writes; the report task reads back through the
// same handle.
package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/jaengyi/RedArrow/internal/markethours"
	"github.com/jaengyi/RedArrow/internal/model"
)

// Journal persists fills and summaries to SQLite.
type Journal struct {
	mu sync.Mutex
	db *sql.DB
}

// NewJournal opens (or creates) the journal database in WAL mode.
func NewJournal(dbPath string) (*Journal, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	schema := `
	CREATE TABLE IF NOT EXISTS trades (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		trade_date  TEXT NOT NULL,
		symbol      TEXT NOT NULL,
		name        TEXT,
		side        TEXT NOT NULL,
		qty         INTEGER NOT NULL,
		price       REAL NOT NULL,
		reason      TEXT,
		pnl         REAL DEFAULT 0,
		pnl_percent REAL DEFAULT 0,
		order_id    TEXT,
		executed_at DATETIME NOT NULL,
		created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_trades_date ON trades(trade_date);
	CREATE INDEX IF NOT EXISTS idx_trades_symbol ON trades(symbol);

	CREATE TABLE IF NOT EXISTS daily_summary (
		trade_date       TEXT PRIMARY KEY,
		daily_pnl        REAL NOT NULL,
		starting_balance REAL NOT NULL,
		ending_balance   REAL NOT NULL,
		final_positions  TEXT,
		settled_at       DATETIME NOT NULL
	);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[journal] opened trade journal at %s", dbPath)
	return &Journal{db: db}, nil
}

// Close releases the database handle.
func (j *Journal) Close() error { return j.db.Close() }

// DB exposes the handle for health checks.
func (j *Journal) DB() *sql.DB { return j.db }

// RecordTrade persists one fill.
func (j *Journal) RecordTrade(t model.Trade) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	_, err := j.db.Exec(
		`INSERT INTO trades (trade_date, symbol, name, side, qty, price, reason, pnl, pnl_percent, order_id, executed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		markethours.TradeDate(t.TS), t.Symbol, t.Name, t.Side, t.Quantity, t.Price,
		t.Reason, t.PnL, t.PnLPercent, t.OrderID, t.TS.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("sqlite insert trade: %w", err)
	}
	return nil
}

// RecordSummary upserts the settlement record for a session. Settlement
// may be flushed twice on a crash-and-restart day; the last write wins.
func (j *Journal) RecordSummary(s model.DailySummary) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	positions, err := json.Marshal(s.FinalPositions)
	if err != nil {
		return fmt.Errorf("sqlite marshal positions: %w", err)
	}
	_, err = j.db.Exec(
		`INSERT INTO daily_summary (trade_date, daily_pnl, starting_balance, ending_balance, final_positions, settled_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(trade_date) DO UPDATE SET
		   daily_pnl = excluded.daily_pnl,
		   ending_balance = excluded.ending_balance,
		   final_positions = excluded.final_positions,
		   settled_at = excluded.settled_at`,
		s.Date, s.DailyPnL, s.StartingBalance, s.EndingBalance,
		string(positions), s.SettledAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("sqlite insert summary: %w", err)
	}
	return nil
}

// TradesForDate returns all fills for one session, oldest first.
func (j *Journal) TradesForDate(date string) ([]model.Trade, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	rows, err := j.db.Query(
		`SELECT symbol, name, side, qty, price, reason, pnl, pnl_percent, order_id, executed_at
		 FROM trades WHERE trade_date = ? ORDER BY id ASC`, date)
	if err != nil {
		return nil, fmt.Errorf("sqlite query trades: %w", err)
	}
	defer rows.Close()

	var trades []model.Trade
	for rows.Next() {
		var t model.Trade
		var executedAt string
		if err := rows.Scan(&t.Symbol, &t.Name, &t.Side, &t.Quantity, &t.Price,
			&t.Reason, &t.PnL, &t.PnLPercent, &t.OrderID, &executedAt); err != nil {
			return nil, fmt.Errorf("sqlite scan trade: %w", err)
		}
		t.TS, _ = time.Parse(time.RFC3339, executedAt)
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// Summary returns the settlement record for one session, if present.
func (j *Journal) Summary(date string) (model.DailySummary, bool, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	var s model.DailySummary
	var positions, settledAt string
	err := j.db.QueryRow(
		`SELECT trade_date, daily_pnl, starting_balance, ending_balance, final_positions, settled_at
		 FROM daily_summary WHERE trade_date = ?`, date).
		Scan(&s.Date, &s.DailyPnL, &s.StartingBalance, &s.EndingBalance, &positions, &settledAt)
	if err == sql.ErrNoRows {
		return s, false, nil
	}
	if err != nil {
		return s, false, fmt.Errorf("sqlite query summary: %w", err)
	}
	if positions != "" {
		if err := json.Unmarshal([]byte(positions), &s.FinalPositions); err != nil {
			return s, false, fmt.Errorf("sqlite decode positions: %w", err)
		}
	}
	s.SettledAt, _ = time.Parse(time.RFC3339, settledAt)
	return s, true, nil
}
