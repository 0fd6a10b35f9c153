package controller

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/questbot/questbot/pkg/command"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

var connSeq atomic.Uint64

// ClientMessage represents messages sent by feed clients.
type ClientMessage struct {
	Action string `json:"action"` // "subscribe" or "unsubscribe"
	Column string `json:"column"` // Ledger column to follow, or "*" for all columns
}

// ServerMessage represents messages sent to feed clients.
type ServerMessage struct {
	Type    string      `json:"type"`    // "ledger.applied", "subscribed", "unsubscribed", "info", "error"
	Payload interface{} `json:"payload"` // Event-specific data
}

// columnFilter tracks which ledger columns a client follows. Column names match
// case-insensitively, like header lookups.
type columnFilter struct {
	mu      sync.RWMutex
	columns map[string]bool
}

// NewColumnFilter creates a filter following every column.
func NewColumnFilter() *columnFilter {
	return &columnFilter{columns: map[string]bool{"*": true}}
}

func (f *columnFilter) Subscribe(column string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.columns[normalize(column)] = true
}

func (f *columnFilter) Unsubscribe(column string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.columns, normalize(column))
}

// Matches reports whether an outcome on column should be forwarded. Wildcard (*) matches all columns.
func (f *columnFilter) Matches(column string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.columns["*"] || f.columns[normalize(column)]
}

func normalize(column string) string {
	return strings.ToLower(strings.TrimSpace(column))
}

// HandleWebSocket upgrades HTTP connection to WebSocket and streams applied ledger outcomes.
//
// Protocol:
// Client sends: {"action": "subscribe", "column": "Quest"}   // Follow one column
// Client sends: {"action": "unsubscribe", "column": "*"}     // Stop following everything else
//
// Server sends:
// - {"type": "ledger.applied", "payload": {...}}
// - {"type": "subscribed", "payload": {"column": "Quest"}}
// - {"type": "unsubscribed", "payload": {"column": "*"}}
// - {"type": "error", "payload": {"message": "..."}}
//
// All goroutines recover from panics.
func (c *Controller) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if c.App.RedisClient == nil {
		http.Error(w, "Live feed not available (Redis disabled)", http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		c.App.Logger.Error("Failed to upgrade WebSocket connection", zap.Error(err))
		return
	}
	defer func(conn *websocket.Conn) {
		if err := conn.Close(); err != nil {
			c.App.Logger.Debug("Failed to close WebSocket connection", zap.Error(err))
		}
	}(conn)

	id := strconv.FormatUint(connSeq.Add(1), 10)
	c.FeedClients.Store(id, FeedClient{RemoteAddr: r.RemoteAddr, ConnectedAt: time.Now().UTC()})
	defer c.FeedClients.Delete(id)
	c.App.Logger.Info("Feed client connected", zap.String("remote_addr", r.RemoteAddr), zap.Int("clients", c.FeedClients.Size()))

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	filter := NewColumnFilter()
	send := make(chan ServerMessage, 256)
	var producers, writer sync.WaitGroup

	guard := func(wg *sync.WaitGroup, name string, fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if rec := recover(); rec != nil {
					c.App.Logger.Error("Panic in feed goroutine",
						zap.String("goroutine", name),
						zap.Any("panic", rec),
						zap.String("stack", string(debug.Stack())),
						zap.String("remote_addr", r.RemoteAddr))
					cancel()
				}
			}()
			fn()
		}()
	}

	guard(&producers, "redis subscriber", func() { c.subscribeToRedis(ctx, send, filter) })
	guard(&producers, "ping ticker", func() { c.sendPings(ctx, conn) })
	guard(&writer, "message writer", func() { c.writeMessages(conn, send) })

	// Blocks until the connection closes.
	c.readClientMessages(ctx, conn, cancel, filter, send)

	// Producers must stop before send is closed.
	cancel()
	producers.Wait()
	close(send)
	writer.Wait()

	c.App.Logger.Info("Feed client disconnected", zap.String("remote_addr", r.RemoteAddr))
}

// subscribeToRedis follows the outcome channel, reconnecting with exponential backoff.
func (c *Controller) subscribeToRedis(ctx context.Context, send chan<- ServerMessage, filter *columnFilter) {
	const (
		initialBackoff = 1 * time.Second
		maxBackoff     = 30 * time.Second
		backoffFactor  = 2.0
		jitterFactor   = 0.1
	)

	backoff := initialBackoff
	for attempt := 1; ; attempt++ {
		if ctx.Err() != nil {
			return
		}

		err := c.attemptRedisSubscription(ctx, send, filter, attempt)
		if ctx.Err() != nil {
			return
		}
		c.App.Logger.Warn("Redis subscription ended, will retry",
			zap.Error(err),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff))

		if !trySend(ctx, send, ServerMessage{
			Type: "error",
			Payload: map[string]interface{}{
				"message":     "Redis connection lost, attempting to reconnect...",
				"retryIn":     backoff.Seconds(),
				"attempt":     attempt,
				"recoverable": true,
			},
		}) {
			return
		}

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return
		}
		backoff = CalculateNextBackoff(backoff, maxBackoff, backoffFactor, jitterFactor)
	}
}

func (c *Controller) attemptRedisSubscription(ctx context.Context, send chan<- ServerMessage, filter *columnFilter, attempt int) error {
	pubsub := c.App.RedisClient.Subscribe(ctx, command.OutcomeChannel)
	defer func() {
		if err := pubsub.Close(); err != nil {
			c.App.Logger.Debug("Error closing Redis subscription", zap.Error(err))
		}
	}()

	receiveCtx, receiveCancel := context.WithTimeout(ctx, 5*time.Second)
	defer receiveCancel()
	if _, err := pubsub.Receive(receiveCtx); err != nil {
		return fmt.Errorf("failed to confirm Redis subscription: %w", err)
	}

	if attempt > 1 {
		if !trySend(ctx, send, ServerMessage{Type: "info", Payload: map[string]interface{}{
			"message": "Redis connection established",
			"attempt": attempt,
		}}) {
			return ctx.Err()
		}
	}

	return c.processRedisMessages(ctx, pubsub, send, filter)
}

func (c *Controller) processRedisMessages(ctx context.Context, pubsub *redis.PubSub, send chan<- ServerMessage, filter *columnFilter) error {
	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var payload command.FeedMessage
			if err := json.Unmarshal([]byte(msg.Payload), &payload); err != nil {
				c.App.Logger.Error("Failed to parse Redis message", zap.Error(err), zap.String("channel", msg.Channel))
				continue
			}
			if !filter.Matches(payload.Column) {
				continue
			}
			if !trySend(ctx, send, ServerMessage{Type: "ledger.applied", Payload: payload}) {
				return ctx.Err()
			}
		}
	}
}

func trySend(ctx context.Context, send chan<- ServerMessage, msg ServerMessage) bool {
	select {
	case send <- msg:
		return true
	case <-ctx.Done():
		return false
	}
}

// CalculateNextBackoff calculates the next backoff duration with exponential growth and jitter.
func CalculateNextBackoff(current, max time.Duration, factor, jitterFactor float64) time.Duration {
	next := time.Duration(float64(current) * factor)
	if next > max {
		next = max
	}

	jitter := float64(next) * jitterFactor * (2*rand.Float64() - 1)
	nextWithJitter := time.Duration(float64(next) + jitter)

	if nextWithJitter < current {
		nextWithJitter = current
	}
	if nextWithJitter > max {
		nextWithJitter = max
	}
	return nextWithJitter
}

// sendPings sends periodic WebSocket ping frames to keep the connection alive.
func (c *Controller) sendPings(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(10*time.Second)); err != nil {
				c.App.Logger.Debug("Failed to send ping", zap.Error(err))
				return
			}
		}
	}
}

// writeMessages writes messages from the send channel to the WebSocket connection.
func (c *Controller) writeMessages(conn *websocket.Conn, send <-chan ServerMessage) {
	for msg := range send {
		if err := conn.WriteJSON(msg); err != nil {
			c.App.Logger.Debug("Failed to write WebSocket message", zap.Error(err))
			// Keep draining so producers never block on a dead connection.
			continue
		}
	}
}

// readClientMessages handles filter changes and detects connection closure.
func (c *Controller) readClientMessages(ctx context.Context, conn *websocket.Conn, cancel context.CancelFunc, filter *columnFilter, send chan<- ServerMessage) {
	deadline := func() error { return conn.SetReadDeadline(time.Now().Add(60 * time.Second)) }
	if err := deadline(); err != nil {
		c.App.Logger.Error("Failed to set read deadline", zap.Error(err))
		cancel()
		return
	}
	conn.SetPongHandler(func(string) error { return deadline() })

	for ctx.Err() == nil {
		var msg ClientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.App.Logger.Debug("WebSocket read error", zap.Error(err))
			}
			cancel()
			return
		}
		if err := deadline(); err != nil {
			cancel()
			return
		}

		var reply ServerMessage
		switch {
		case msg.Action != "subscribe" && msg.Action != "unsubscribe":
			reply = ServerMessage{Type: "error", Payload: map[string]string{"message": "unknown action: " + msg.Action}}
		case strings.TrimSpace(msg.Column) == "":
			reply = ServerMessage{Type: "error", Payload: map[string]string{"message": "column is required"}}
		case msg.Action == "subscribe":
			filter.Subscribe(msg.Column)
			reply = ServerMessage{Type: "subscribed", Payload: map[string]string{"column": msg.Column}}
		default:
			filter.Unsubscribe(msg.Column)
			reply = ServerMessage{Type: "unsubscribed", Payload: map[string]string{"column": msg.Column}}
		}
		if !trySend(ctx, send, reply) {
			return
		}
	}
}
