// Package ws provides the WebSocket hub for the live feeds: BTC price
// broadcasts to every client, and settlement results pushed to clients
// subscribed to a specific guess id.
package ws

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/btcguess/guess-engine/internal/metrics"
	"github.com/btcguess/guess-engine/internal/model"
	"github.com/btcguess/guess-engine/internal/oracle"
)

// clientCommand is what clients send: subscribe/unsubscribe to a guess.
type clientCommand struct {
	Action  string `json:"action"`
	GuessID string `json:"guess_id"`
}

// envelope routes one outbound frame: to a single conn, to the subscribers
// of a guess, or to everyone.
type envelope struct {
	conn    *websocket.Conn
	guessID string
	data    []byte
}

// Hub manages WebSocket connections. All conn writes except pings happen on
// the Run goroutine.
type Hub struct {
	mu      sync.RWMutex
	clients map[*websocket.Conn]map[string]bool // conn → subscribed guess ids

	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	outbound   chan envelope

	priceMu   sync.RWMutex
	lastPrice []byte // cached btc_price frame, replayed on connect
}

// NewHub creates a new hub.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*websocket.Conn]map[string]bool),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		outbound:   make(chan envelope, 256),
	}
}

// Run starts the hub's main event loop. Must be called in a goroutine.
func (h *Hub) Run() {
	for {
		select {
		case conn := <-h.register:
			h.mu.Lock()
			h.clients[conn] = make(map[string]bool)
			total := len(h.clients)
			h.mu.Unlock()
			metrics.WebSocketClients.Set(float64(total))
			slog.Info("ws client connected", "total", total)

			// New clients get the last known price immediately.
			h.priceMu.RLock()
			cached := h.lastPrice
			h.priceMu.RUnlock()
			if cached != nil {
				if err := conn.WriteMessage(websocket.TextMessage, cached); err != nil {
					h.drop(conn)
				}
			}

		case conn := <-h.unregister:
			h.drop(conn)

		case env := <-h.outbound:
			h.deliver(env)
		}
	}
}

func (h *Hub) drop(conn *websocket.Conn) {
	h.mu.Lock()
	if _, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		conn.Close()
	}
	total := len(h.clients)
	h.mu.Unlock()
	metrics.WebSocketClients.Set(float64(total))
}

func (h *Hub) deliver(env envelope) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for conn, subs := range h.clients {
		if env.conn != nil && conn != env.conn {
			continue
		}
		if env.guessID != "" && !subs[env.guessID] {
			continue
		}
		if err := conn.WriteMessage(websocket.TextMessage, env.data); err != nil {
			conn.Close()
			delete(h.clients, conn)
		}
	}
}

// ClientCount returns the number of connected clients. The price poller
// uses it to skip upstream fetches when nobody is listening.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Publish sends a guess_validated frame to the subscribers of guessID.
// Implements the scheduler's notification sink; never blocks, drops if the
// buffer is full.
func (h *Hub) Publish(guessID string, g *model.Guess) {
	data, err := json.Marshal(map[string]any{
		"type":  "guess_validated",
		"guess": g,
	})
	if err != nil {
		return
	}
	select {
	case h.outbound <- envelope{guessID: guessID, data: data}:
	default:
	}
}

// BroadcastPrice sends a btc_price frame to all clients and caches it for
// future connections.
func (h *Hub) BroadcastPrice(snap *oracle.Snapshot) {
	data, err := json.Marshal(map[string]any{
		"type":           "btc_price",
		"price":          snap.Price,
		"change_24h_pct": snap.Change24hPct,
		"timestamp":      time.Now().UTC(),
	})
	if err != nil {
		return
	}

	h.priceMu.Lock()
	h.lastPrice = data
	h.priceMu.Unlock()

	select {
	case h.outbound <- envelope{data: data}:
	default:
		// Drop if buffer full; the next poll replaces it anyway.
	}
}

// BroadcastPriceError tells all clients the upstream feed is failing.
func (h *Hub) BroadcastPriceError(msg string) {
	data, err := json.Marshal(map[string]string{
		"type":    "price_error",
		"message": msg,
	})
	if err != nil {
		return
	}
	select {
	case h.outbound <- envelope{data: data}:
	default:
	}
}

// LastPrice returns the cached btc_price frame, or nil before the first
// successful poll.
func (h *Hub) LastPrice() []byte {
	h.priceMu.RLock()
	defer h.priceMu.RUnlock()
	return h.lastPrice
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true // Allow all origins during development.
	},
}

// HandleWS handles WebSocket upgrade requests at GET /api/v1/ws.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("ws upgrade failed", "err", err)
		return
	}

	h.register <- conn

	// Read pump: handles subscribe/unsubscribe and detects disconnects.
	go func() {
		defer func() { h.unregister <- conn }()
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			return nil
		})
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				break
			}
			var cmd clientCommand
			if json.Unmarshal(data, &cmd) != nil || cmd.GuessID == "" {
				continue
			}
			h.mu.Lock()
			if subs, ok := h.clients[conn]; ok {
				switch cmd.Action {
				case "subscribe":
					subs[cmd.GuessID] = true
				case "unsubscribe":
					delete(subs, cmd.GuessID)
				}
			}
			h.mu.Unlock()
		}
	}()

	// Ping ticker to keep connection alive through proxies.
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			h.mu.RLock()
			_, ok := h.clients[conn]
			h.mu.RUnlock()
			if !ok {
				return
			}
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}()
}
