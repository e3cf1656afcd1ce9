package monitor

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/NotCoffee418/battery_schedule_exchange/pkg/schedule"
	"github.com/gorilla/websocket"
)

// Hub keeps the websocket clients that follow acknowledgements live.
type Hub struct {
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*websocket.Conn]bool
	// gorilla connections allow one concurrent writer
	writeMu sync.Mutex
}

func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins, the API is read only
			},
		},
		clients: make(map[*websocket.Conn]bool),
	}
}

// ServeWS upgrades the request and keeps the client until it disconnects.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		return
	}

	h.addClient(conn)

	// Keep connection alive, control frames are handled while reading
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			h.removeClient(conn)
			return
		}
	}
}

func (h *Hub) Broadcast(a schedule.Acknowledgement) {
	payload, err := json.Marshal(a)
	if err != nil {
		log.Printf("Failed to encode acknowledgement for broadcast: %v", err)
		return
	}

	h.mu.RLock()
	clients := make([]*websocket.Conn, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	h.writeMu.Lock()
	defer h.writeMu.Unlock()
	for _, client := range clients {
		client.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := client.WriteMessage(websocket.TextMessage, payload); err != nil {
			h.removeClient(client)
		}
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) addClient(conn *websocket.Conn) {
	h.mu.Lock()
	h.clients[conn] = true
	h.mu.Unlock()
}

func (h *Hub) removeClient(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.clients, conn)
	h.mu.Unlock()
	conn.Close()
}
