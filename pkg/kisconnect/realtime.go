package kisconnect

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Realtime websocket endpoints.
const (
	realWSURL  = "ws://ops.koreainvestment.com:21000"
	paperWSURL = "ws://ops.koreainvestment.com:31000"

	// trIDExec is the realtime execution (tick) stream for domestic stocks.
	trIDExec = "H0STCNT0"

	reconnectDelay = 5 * time.Second
	maxReconnects  = 10
)

// Tick is one realtime execution event.
type Tick struct {
	Symbol    string
	Price     float64
	Volume    float64 // accumulated volume for the day
	Amount    float64 // accumulated trading amount for the day
	TradeTime string  // HHMMSS exchange local
}

// Realtime consumes the KIS websocket execution feed. Callbacks run on
// the read goroutine; keep them fast or hand off to a channel.
type Realtime struct {
	client *Client
	wsURL  string

	OnTick  func(Tick)
	OnError func(error)

	mu          sync.Mutex
	conn        *websocket.Conn
	approvalKey string
	subscribed  map[string]struct{}
	closed      bool

	cancel context.CancelFunc
}

// NewRealtime builds a feed bound to the client's environment.
func NewRealtime(client *Client) *Realtime {
	wsURL := realWSURL
	if client.cfg.Paper {
		wsURL = paperWSURL
	}
	return &Realtime{
		client:     client,
		wsURL:      wsURL,
		subscribed: make(map[string]struct{}),
	}
}

// Connect dials the feed and starts the read loop. Reconnection with
// resubscribe is automatic until Close or ctx cancellation.
func (r *Realtime) Connect(ctx context.Context) error {
	key, err := r.client.ApprovalKey(ctx)
	if err != nil {
		return fmt.Errorf("kis: realtime approval: %w", err)
	}

	r.mu.Lock()
	r.approvalKey = key
	r.closed = false
	r.mu.Unlock()

	if err := r.dial(ctx); err != nil {
		return err
	}

	loopCtx, cancel := context.WithCancel(ctx)
	r.mu.Lock()
	r.cancel = cancel
	r.mu.Unlock()

	go r.readLoop(loopCtx)
	return nil
}

func (r *Realtime) dial(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, r.wsURL, nil)
	if err != nil {
		return fmt.Errorf("kis: realtime dial %s: %w", r.wsURL, err)
	}
	r.mu.Lock()
	r.conn = conn
	r.mu.Unlock()
	return nil
}

// Close shuts the feed down. Safe to call more than once.
func (r *Realtime) Close() {
	r.mu.Lock()
	r.closed = true
	conn := r.conn
	cancel := r.cancel
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		_ = conn.Close()
	}
}

// Subscribe registers a symbol on the execution stream. The
// subscription survives reconnects.
func (r *Realtime) Subscribe(symbol string) error {
	r.mu.Lock()
	r.subscribed[symbol] = struct{}{}
	r.mu.Unlock()
	return r.send(symbol, "1")
}

// Unsubscribe removes a symbol from the stream.
func (r *Realtime) Unsubscribe(symbol string) error {
	r.mu.Lock()
	delete(r.subscribed, symbol)
	r.mu.Unlock()
	return r.send(symbol, "2")
}

// SyncSubscriptions reconciles the stream against the desired symbol
// set: new symbols are subscribed, absent ones unsubscribed. Send
// failures are logged; the tracked set still converges so the next
// reconnect resubscribes the full desired set.
func (r *Realtime) SyncSubscriptions(symbols []string) {
	desired := make(map[string]struct{}, len(symbols))
	for _, s := range symbols {
		desired[s] = struct{}{}
	}

	r.mu.Lock()
	var add, remove []string
	for s := range desired {
		if _, ok := r.subscribed[s]; !ok {
			add = append(add, s)
		}
	}
	for s := range r.subscribed {
		if _, ok := desired[s]; !ok {
			remove = append(remove, s)
		}
	}
	r.mu.Unlock()

	for _, s := range add {
		if err := r.Subscribe(s); err != nil {
			log.Printf("[kis-ws] subscribe %s: %v", s, err)
		}
	}
	for _, s := range remove {
		if err := r.Unsubscribe(s); err != nil {
			log.Printf("[kis-ws] unsubscribe %s: %v", s, err)
		}
	}
}

func (r *Realtime) send(symbol, trType string) error {
	r.mu.Lock()
	conn := r.conn
	key := r.approvalKey
	r.mu.Unlock()
	if conn == nil {
		return errors.New("kis: realtime not connected")
	}

	req := map[string]any{
		"header": map[string]string{
			"approval_key": key,
			"custtype":     "P",
			"tr_type":      trType,
			"content-type": "utf-8",
		},
		"body": map[string]any{
			"input": map[string]string{
				"tr_id":  trIDExec,
				"tr_key": symbol,
			},
		},
	}
	return conn.WriteJSON(req)
}

func (r *Realtime) resubscribe() {
	r.mu.Lock()
	symbols := make([]string, 0, len(r.subscribed))
	for s := range r.subscribed {
		symbols = append(symbols, s)
	}
	r.mu.Unlock()
	for _, s := range symbols {
		if err := r.send(s, "1"); err != nil {
			log.Printf("[kis-ws] resubscribe %s: %v", s, err)
		}
	}
}

func (r *Realtime) readLoop(ctx context.Context) {
	attempts := 0
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		r.mu.Lock()
		conn := r.conn
		closed := r.closed
		r.mu.Unlock()
		if closed {
			return
		}
		if conn == nil {
			if !r.reconnect(ctx, &attempts) {
				return
			}
			continue
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			if r.isClosed() || ctx.Err() != nil {
				return
			}
			log.Printf("[kis-ws] read: %v", err)
			r.mu.Lock()
			r.conn = nil
			r.mu.Unlock()
			_ = conn.Close()
			if !r.reconnect(ctx, &attempts) {
				return
			}
			continue
		}
		attempts = 0
		r.handle(conn, message)
	}
}

func (r *Realtime) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

func (r *Realtime) reconnect(ctx context.Context, attempts *int) bool {
	for *attempts < maxReconnects {
		*attempts++
		select {
		case <-ctx.Done():
			return false
		case <-time.After(reconnectDelay):
		}
		if err := r.dial(ctx); err != nil {
			log.Printf("[kis-ws] reconnect %d/%d: %v", *attempts, maxReconnects, err)
			continue
		}
		log.Printf("[kis-ws] reconnected, resubscribing %d symbols", r.subscribedCount())
		r.resubscribe()
		return true
	}
	if r.OnError != nil {
		r.OnError(fmt.Errorf("kis: realtime gave up after %d reconnect attempts", maxReconnects))
	}
	return false
}

func (r *Realtime) subscribedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subscribed)
}

// handle routes one frame. Data frames are pipe-plus-caret delimited
// text starting with an encryption flag digit; everything else is a
// JSON control frame.
func (r *Realtime) handle(conn *websocket.Conn, message []byte) {
	if len(message) == 0 {
		return
	}
	if message[0] == '0' || message[0] == '1' {
		r.handleData(string(message))
		return
	}

	var ctrl struct {
		Header struct {
			TrID string `json:"tr_id"`
		} `json:"header"`
		Body struct {
			Msg1 string `json:"msg1"`
		} `json:"body"`
	}
	if err := json.Unmarshal(message, &ctrl); err != nil {
		return
	}
	if ctrl.Header.TrID == "PINGPONG" {
		_ = conn.WriteMessage(websocket.TextMessage, message)
		return
	}
	if ctrl.Body.Msg1 != "" {
		log.Printf("[kis-ws] control %s: %s", ctrl.Header.TrID, ctrl.Body.Msg1)
	}
}

func (r *Realtime) handleData(frame string) {
	// frame: flag|tr_id|count|payload, payload fields caret-delimited,
	// multiple records concatenated when count > 1.
	parts := strings.SplitN(frame, "|", 4)
	if len(parts) < 4 || parts[1] != trIDExec {
		return
	}
	if parts[0] == "1" {
		// encrypted frames need an AES key exchange we do not request
		return
	}
	fields := strings.Split(parts[3], "^")
	const perRecord = 46
	for len(fields) >= execFieldMin {
		tick := parseExecFields(fields)
		if r.OnTick != nil && tick.Symbol != "" {
			r.OnTick(tick)
		}
		if len(fields) <= perRecord {
			break
		}
		fields = fields[perRecord:]
	}
}

// Execution stream field positions.
const (
	execFieldSymbol = 0
	execFieldTime   = 1
	execFieldPrice  = 2
	execFieldVolume = 13
	execFieldAmount = 14
	execFieldMin    = 15
)

func parseExecFields(f []string) Tick {
	return Tick{
		Symbol:    f[execFieldSymbol],
		TradeTime: f[execFieldTime],
		Price:     ParseFloat(f[execFieldPrice]),
		Volume:    ParseFloat(f[execFieldVolume]),
		Amount:    ParseFloat(f[execFieldAmount]),
	}
}
