package ws

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/lthibault/jitterbug/v2"

	"github.com/calcengine/calcengine/internal/engine"
	"github.com/calcengine/calcengine/pkg/types"
)

const (
	// defaultInterval is the stats broadcast period when none is configured.
	defaultInterval = 5 * time.Second

	// maxJitter caps the standard deviation of the broadcast period.
	maxJitter = 250 * time.Millisecond

	// writeTimeout is the deadline for a single write to a client.
	writeTimeout = 10 * time.Second

	// pongWait is how long to wait for a pong response before treating the
	// connection as dead.
	pongWait = 60 * time.Second

	// pingPeriod controls how often the server sends WebSocket ping frames.
	// Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// sendBufSize is the per-client outgoing message buffer depth.
	sendBufSize = 32

	// maxMessageSize bounds a single client message.
	maxMessageSize = 4096
)

// Client message types.
const (
	TypeInput       = "input"
	TypeRecalculate = "recalculate"
	TypeClose       = "close"
)

// Server event names.
const (
	EventStats  = "stats"
	EventResult = "result"
	EventError  = "error"
)

// errTypeBadMessage marks errors caused by a malformed client message.
const errTypeBadMessage = "invalid_message"

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Message is the JSON envelope sent to clients.
type Message struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Inbound is a message received from a client.
type Inbound struct {
	Type         string `json:"type"`
	CalculatorID string `json:"calculator_id"`
	Field        string `json:"field,omitempty"`
	Value        any    `json:"value,omitempty"`
}

// ResultEvent is the data of a "result" event.
type ResultEvent struct {
	SessionID    string                   `json:"session_id"`
	CalculatorID string                   `json:"calculator_id"`
	Inputs       types.Inputs             `json:"inputs"`
	Result       *types.CalculationResult `json:"result"`
}

// ErrorEvent is the data of an "error" event.
type ErrorEvent struct {
	SessionID    string             `json:"session_id,omitempty"`
	CalculatorID string             `json:"calculator_id,omitempty"`
	Error        types.ErrorPayload `json:"error"`
}

// StatsEvent is the data of a "stats" event.
type StatsEvent struct {
	engine.PerformanceStats
	Clients     int    `json:"clients"`
	GeneratedAt string `json:"generated_at"` // RFC3339
}

// Hub manages WebSocket client connections, routes their edits to engine
// sessions and broadcasts engine statistics every interval.
type Hub struct {
	eng      *engine.Engine
	interval time.Duration

	mu      sync.RWMutex
	clients map[*client]struct{}
}

// client represents one connected WebSocket client.
type client struct {
	hub  *Hub
	conn *websocket.Conn

	mu       sync.Mutex
	send     chan []byte
	closed   bool
	sessions map[string]*engine.Session // by calculator id
}

// New creates a Hub serving eng that broadcasts stats every interval.
func New(eng *engine.Engine, interval time.Duration) *Hub {
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Hub{
		eng:      eng,
		interval: interval,
		clients:  make(map[*client]struct{}),
	}
}

// Run starts the stats broadcast loop. Run blocks until ctx is cancelled,
// then closes all active connections.
func (h *Hub) Run(ctx context.Context) {
	// Jitter spreads the broadcasts of several instances behind one proxy.
	stdev := min(h.interval/10, maxJitter)
	t := jitterbug.New(h.interval, &jitterbug.Norm{Stdev: stdev})
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case <-t.C:
			h.broadcast()
		}
	}
}

// ServeHTTP upgrades the HTTP connection to WebSocket and serves the client.
// It sends the current stats immediately on connect. Blocks until the
// connection closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// upgrader has already written the error response.
		return
	}

	c := &client{
		hub:      h,
		conn:     conn,
		send:     make(chan []byte, sendBufSize),
		sessions: make(map[string]*engine.Session),
	}
	h.register(c)
	defer h.unregister(c)

	if data, err := h.statsMessage(); err == nil {
		c.push(data)
	}

	go c.writePump()
	c.readPump() // blocks until connection closes
}

// Count returns the number of currently connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// --- internal ---------------------------------------------------------------

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()
	if ok {
		c.shutdown()
	}
}

func (h *Hub) broadcast() {
	data, err := h.statsMessage()
	if err != nil {
		return
	}

	h.mu.RLock()
	targets := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if !c.push(data) {
			// Outgoing buffer is full; disconnect the client.
			h.unregister(c)
		}
	}
}

func (h *Hub) statsMessage() ([]byte, error) {
	return json.Marshal(Message{
		Event: EventStats,
		Data: StatsEvent{
			PerformanceStats: h.eng.PerformanceStats(),
			Clients:          h.Count(),
			GeneratedAt:      time.Now().UTC().Format(time.RFC3339),
		},
	})
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	targets := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
		delete(h.clients, c)
	}
	h.mu.Unlock()
	for _, c := range targets {
		c.shutdown()
	}
}

// push queues data for the client without blocking. It reports false when
// the buffer is full; pushes after shutdown are dropped.
func (c *client) push(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return true
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *client) pushEvent(event string, data any) {
	b, err := json.Marshal(Message{Event: event, Data: data})
	if err != nil {
		slog.Warn("ws: encode event", "event", event, "err", err)
		return
	}
	if !c.push(b) {
		go c.hub.unregister(c)
	}
}

// shutdown closes the client's sessions and its send channel, which makes
// writePump send a close frame.
func (c *client) shutdown() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	sessions := c.sessions
	c.sessions = nil
	close(c.send)
	c.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
}

// session returns the client's session for calculatorID, starting one on
// first use.
func (c *client) session(calculatorID string) (*engine.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, engine.ErrSessionClosed
	}
	if s, ok := c.sessions[calculatorID]; ok {
		return s, nil
	}
	s, err := c.hub.eng.NewSession(calculatorID)
	if err != nil {
		return nil, err
	}
	s.OnOutcome(c.deliver)
	c.sessions[calculatorID] = s
	return s, nil
}

// deliver pushes a session outcome to the client.
func (c *client) deliver(o engine.Outcome) {
	if o.Err != nil {
		c.pushEvent(EventError, ErrorEvent{
			SessionID:    o.SessionID,
			CalculatorID: o.CalculatorID,
			Error:        engine.Describe(o.Err),
		})
		return
	}
	c.pushEvent(EventResult, ResultEvent{
		SessionID:    o.SessionID,
		CalculatorID: o.CalculatorID,
		Inputs:       o.Inputs,
		Result:       o.Result,
	})
}

// handle applies one client message.
func (c *client) handle(raw []byte) {
	var in Inbound
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&in); err != nil {
		c.badMessage("", fmt.Sprintf("malformed message: %v", err))
		return
	}
	if in.CalculatorID == "" {
		c.badMessage("", "calculator_id is required")
		return
	}

	switch in.Type {
	case TypeInput:
		if in.Field == "" {
			c.badMessage(in.CalculatorID, "field is required")
			return
		}
		s, err := c.session(in.CalculatorID)
		if err != nil {
			c.engineErr(in.CalculatorID, err)
			return
		}
		s.RegisterField(in.Field, nil)
		if err := s.UpdateValue(in.Field, in.Value); err != nil {
			c.engineErr(in.CalculatorID, err)
		}

	case TypeRecalculate:
		s, err := c.session(in.CalculatorID)
		if err != nil {
			c.engineErr(in.CalculatorID, err)
			return
		}
		// The outcome reaches the client through OnOutcome.
		go s.Recalculate() //nolint:errcheck

	case TypeClose:
		c.mu.Lock()
		s, ok := c.sessions[in.CalculatorID]
		delete(c.sessions, in.CalculatorID)
		c.mu.Unlock()
		if ok {
			s.Close()
		}

	default:
		c.badMessage(in.CalculatorID, fmt.Sprintf("unknown message type %q", in.Type))
	}
}

func (c *client) badMessage(calculatorID, msg string) {
	c.pushEvent(EventError, ErrorEvent{
		CalculatorID: calculatorID,
		Error:        types.ErrorPayload{Type: errTypeBadMessage, Message: msg},
	})
}

func (c *client) engineErr(calculatorID string, err error) {
	c.pushEvent(EventError, ErrorEvent{CalculatorID: calculatorID, Error: engine.Describe(err)})
}

// writePump drains the client's send channel and forwards messages to the
// WebSocket connection. It also sends periodic ping frames. Runs in its own
// goroutine per client.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)) //nolint:errcheck
			if !ok {
				// Channel was closed (hub is shutting down or client removed).
				c.conn.WriteMessage(websocket.CloseMessage, []byte{}) //nolint:errcheck
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)) //nolint:errcheck
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump reads client messages and control frames until the connection
// closes.
func (c *client) readPump() {
	defer c.conn.Close()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait)) //nolint:errcheck
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait)) //nolint:errcheck
		return nil
	})
	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			break
		}
		c.handle(msg)
	}
}
