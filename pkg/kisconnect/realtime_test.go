package kisconnect

import (
	"strings"
	"testing"
)

func newTestRealtime() *Realtime {
	return NewRealtime(New(Config{
		AppKey:    "app-key",
		AppSecret: "app-secret",
		Paper:     true,
	}))
}

// execFrame builds one H0STCNT0 tick record with the given field values
// at the documented positions and filler elsewhere.
func execFrame(symbol, hhmmss, price, volume, amount string) string {
	fields := make([]string, 46)
	for i := range fields {
		fields[i] = "0"
	}
	fields[execFieldSymbol] = symbol
	fields[execFieldTime] = hhmmss
	fields[execFieldPrice] = price
	fields[execFieldVolume] = volume
	fields[execFieldAmount] = amount
	return "0|H0STCNT0|001|" + strings.Join(fields, "^")
}

func TestHandleDataParsesExecutionTick(t *testing.T) {
	rt := newTestRealtime()

	var got []Tick
	rt.OnTick = func(tick Tick) { got = append(got, tick) }

	rt.handleData(execFrame("005930", "093012", "70100", "1523400", "106790340000"))

	if len(got) != 1 {
		t.Fatalf("got %d ticks, want 1", len(got))
	}
	tick := got[0]
	if tick.Symbol != "005930" {
		t.Errorf("symbol = %q, want 005930", tick.Symbol)
	}
	if tick.TradeTime != "093012" {
		t.Errorf("trade time = %q, want 093012", tick.TradeTime)
	}
	if tick.Price != 70100 {
		t.Errorf("price = %v, want 70100", tick.Price)
	}
	if tick.Volume != 1523400 {
		t.Errorf("volume = %v, want 1523400", tick.Volume)
	}
	if tick.Amount != 106790340000 {
		t.Errorf("amount = %v, want 106790340000", tick.Amount)
	}
}

func TestHandleDataIgnoresForeignFrames(t *testing.T) {
	rt := newTestRealtime()
	ticks := 0
	rt.OnTick = func(Tick) { ticks++ }

	// Encrypted frames and other tr_ids carry no usable tick.
	rt.handleData("1|H0STCNT0|001|ciphertext")
	rt.handleData("0|H0STASP0|001|005930^093012^70100")
	rt.handleData("0|H0STCNT0")

	if ticks != 0 {
		t.Fatalf("got %d ticks, want 0", ticks)
	}
}

func TestSyncSubscriptionsConvergesWithoutConnection(t *testing.T) {
	rt := newTestRealtime()

	// The tracked set must converge even while disconnected so the
	// next (re)connect subscribes exactly the desired symbols.
	rt.SyncSubscriptions([]string{"005930", "000660"})
	if n := rt.subscribedCount(); n != 2 {
		t.Fatalf("after first sync: %d subscriptions, want 2", n)
	}

	rt.SyncSubscriptions([]string{"000660", "035420"})
	if n := rt.subscribedCount(); n != 2 {
		t.Fatalf("after second sync: %d subscriptions, want 2", n)
	}
	rt.mu.Lock()
	_, dropped := rt.subscribed["005930"]
	_, kept := rt.subscribed["000660"]
	_, added := rt.subscribed["035420"]
	rt.mu.Unlock()
	if dropped {
		t.Error("005930 should have been unsubscribed")
	}
	if !kept || !added {
		t.Errorf("kept=%v added=%v, want both true", kept, added)
	}

	rt.SyncSubscriptions(nil)
	if n := rt.subscribedCount(); n != 0 {
		t.Fatalf("after empty sync: %d subscriptions, want 0", n)
	}
}
