package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/slatenotes/slate/internal/metrics"
	"github.com/slatenotes/slate/internal/schema"
)

// Hub fans change events out to websocket subscribers. Subscribers only
// learn that something changed; they pull the records themselves.
type Hub struct {
	clients   map[*websocket.Conn]bool
	clientsMu sync.RWMutex

	broadcast chan schema.ChangeEvent

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	logger *log.Logger
}

// NewHub creates a hub and starts its broadcast loop. Call Close to stop it.
func NewHub(logger *log.Logger) *Hub {
	if logger == nil {
		logger = log.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan schema.ChangeEvent, 100),
		ctx:       ctx,
		cancel:    cancel,
		logger:    logger,
	}

	h.wg.Add(1)
	go h.broadcastLoop()
	return h
}

// Close disconnects every subscriber and stops the broadcast loop.
func (h *Hub) Close() {
	h.cancel()

	h.clientsMu.Lock()
	for conn := range h.clients {
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		delete(h.clients, conn)
	}
	metrics.ChangeSubscribers.Set(0)
	h.clientsMu.Unlock()

	h.wg.Wait()
}

// Publish queues an event for every subscriber. It never blocks; when the
// queue is full the event is dropped, which only delays the subscribers'
// next pull.
func (h *Hub) Publish(ev schema.ChangeEvent) {
	if ev.Type == "" {
		ev.Type = schema.ChangeEventType
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = schema.Now()
	}
	select {
	case h.broadcast <- ev:
	case <-h.ctx.Done():
	default:
		h.logger.Println("Warning: broadcast channel full, dropping change event")
	}
}

func (h *Hub) broadcastLoop() {
	defer h.wg.Done()

	for {
		select {
		case <-h.ctx.Done():
			return

		case ev := <-h.broadcast:
			data, err := json.Marshal(ev)
			if err != nil {
				h.logger.Printf("Failed to marshal change event: %v", err)
				continue
			}

			h.clientsMu.RLock()
			clients := make([]*websocket.Conn, 0, len(h.clients))
			for conn := range h.clients {
				clients = append(clients, conn)
			}
			h.clientsMu.RUnlock()

			for _, conn := range clients {
				ctx, cancel := context.WithTimeout(h.ctx, 5*time.Second)
				err := conn.Write(ctx, websocket.MessageText, data)
				cancel()

				if err != nil {
					h.logger.Printf("Failed to send to subscriber: %v", err)
					h.removeClient(conn)
				}
			}
			metrics.ChangesBroadcastTotal.Inc()
		}
	}
}

// ServeWebSocket upgrades the request and registers the connection.
func (h *Hub) ServeWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.logger.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	h.clientsMu.Lock()
	h.clients[conn] = true
	count := len(h.clients)
	metrics.ChangeSubscribers.Set(float64(count))
	h.clientsMu.Unlock()

	h.logger.Printf("Subscriber connected (total: %d)", count)

	go h.readLoop(conn)
}

// readLoop detects disconnects; subscribers send nothing.
func (h *Hub) readLoop(conn *websocket.Conn) {
	defer h.removeClient(conn)

	for {
		if _, _, err := conn.Read(h.ctx); err != nil {
			return
		}
	}
}

func (h *Hub) removeClient(conn *websocket.Conn) {
	h.clientsMu.Lock()
	if _, ok := h.clients[conn]; !ok {
		h.clientsMu.Unlock()
		return
	}
	delete(h.clients, conn)
	count := len(h.clients)
	metrics.ChangeSubscribers.Set(float64(count))
	h.clientsMu.Unlock()

	_ = conn.Close(websocket.StatusNormalClosure, "")
	h.logger.Printf("Subscriber disconnected (total: %d)", count)
}

// ClientCount returns the number of connected subscribers.
func (h *Hub) ClientCount() int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients)
}
