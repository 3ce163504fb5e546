package engine

import (
	"sync"
	"time"

	"github.com/jaengyi/RedArrow/internal/model"
)

// positionTable tracks all open positions. A single mutex guards the map;
// readers (the report task, the health endpoint) always get snapshot
// copies, never map references.
type positionTable struct {
	mu        sync.RWMutex
	positions map[string]*model.Position
}

func newPositionTable() *positionTable {
	return &positionTable{positions: make(map[string]*model.Position)}
}

// Add inserts a freshly filled position.
func (t *positionTable) Add(p model.Position) {
	if p.HighestPrice < p.EntryPrice {
		p.HighestPrice = p.EntryPrice
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.positions[p.Symbol] = &p
}

// Remove drops a closed position.
func (t *positionTable) Remove(symbol string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.positions, symbol)
}

// Get returns a copy of one position.
func (t *positionTable) Get(symbol string) (model.Position, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.positions[symbol]
	if !ok {
		return model.Position{}, false
	}
	return *p, true
}

// Has reports whether the symbol is held.
func (t *positionTable) Has(symbol string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.positions[symbol]
	return ok
}

// Count returns the number of open positions.
func (t *positionTable) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.positions)
}

// Snapshot returns copies of all open positions.
func (t *positionTable) Snapshot() []model.Position {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]model.Position, 0, len(t.positions))
	for _, p := range t.positions {
		out = append(out, *p)
	}
	return out
}

// RatchetHighest raises the position's high-water mark and returns the
// updated copy. The mark never decreases.
func (t *positionTable) RatchetHighest(symbol string, price float64) (model.Position, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.positions[symbol]
	if !ok {
		return model.Position{}, false
	}
	if price > p.HighestPrice {
		p.HighestPrice = price
	}
	return *p, true
}

// ReplaceAll overwrites the table with the broker's view. The external
// ledger is authoritative on sync; local entries not present externally
// are dropped, not merged.
func (t *positionTable) ReplaceAll(external []model.BrokerPosition, syncedAt time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	fresh := make(map[string]*model.Position, len(external))
	for _, bp := range external {
		if bp.Quantity <= 0 {
			continue
		}
		p := &model.Position{
			Symbol:       bp.Symbol,
			Name:         bp.Name,
			EntryPrice:   bp.EntryPrice,
			Quantity:     bp.Quantity,
			HighestPrice: bp.EntryPrice,
			EntryTime:    syncedAt,
		}
		if prev, ok := t.positions[bp.Symbol]; ok {
			// Keep the locally observed high-water mark and entry time;
			// everything else comes from the broker.
			if prev.HighestPrice > p.HighestPrice {
				p.HighestPrice = prev.HighestPrice
			}
			p.EntryTime = prev.EntryTime
		}
		if bp.CurrentPrice > p.HighestPrice {
			p.HighestPrice = bp.CurrentPrice
		}
		fresh[bp.Symbol] = p
	}
	t.positions = fresh
}

// NotionalOf returns the entry value held in one symbol.
func (t *positionTable) NotionalOf(symbol string) float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if p, ok := t.positions[symbol]; ok {
		return p.Notional()
	}
	return 0
}
