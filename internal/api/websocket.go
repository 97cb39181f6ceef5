package api

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// streamInterval is how often connected WebSocket clients get a fresh
// Status frame. Fast enough to watch the aim move, far below packet rate.
const streamInterval = 33 * time.Millisecond

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Allow all origins for now as this is a local network tool
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// wsManager pushes periodic Status frames to every connected client.
type wsManager struct {
	server     *Server
	clients    map[*wsClient]bool
	clientsMu  sync.RWMutex
	register   chan *wsClient
	unregister chan *wsClient
	shutdown   chan struct{}
	once       sync.Once
}

// wsClient represents one connected diagnostic viewer
type wsClient struct {
	manager *wsManager
	conn    *websocket.Conn
	send    chan []byte
	ip      string
}

func newWSManager(s *Server) *wsManager {
	return &wsManager{
		server:     s,
		clients:    make(map[*wsClient]bool),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		shutdown:   make(chan struct{}),
	}
}

func (m *wsManager) run() {
	ticker := time.NewTicker(streamInterval)
	defer ticker.Stop()

	for {
		select {
		case client := <-m.register:
			m.clientsMu.Lock()
			m.clients[client] = true
			m.clientsMu.Unlock()
			log.Printf("WS: New client from %s. Total clients: %d", client.ip, len(m.clients))

		case client := <-m.unregister:
			m.clientsMu.Lock()
			if _, ok := m.clients[client]; ok {
				delete(m.clients, client)
				close(client.send)
				log.Printf("WS: Client from %s disconnected. Total clients: %d", client.ip, len(m.clients))
			}
			m.clientsMu.Unlock()

		case <-ticker.C:
			m.broadcastStatus()

		case <-m.shutdown:
			m.clientsMu.Lock()
			for client := range m.clients {
				close(client.send)
				delete(m.clients, client)
			}
			m.clientsMu.Unlock()
			return
		}
	}
}

func (m *wsManager) stop() {
	m.once.Do(func() { close(m.shutdown) })
}

// broadcastStatus sends the current snapshot to all clients, skipping any
// whose send buffer is full (a slow viewer never stalls the others).
func (m *wsManager) broadcastStatus() {
	m.clientsMu.RLock()
	defer m.clientsMu.RUnlock()
	if len(m.clients) == 0 {
		return
	}

	data, err := json.Marshal(m.server.snapshot())
	if err != nil {
		log.Printf("WS: Failed to marshal status: %v", err)
		return
	}
	for client := range m.clients {
		select {
		case client.send <- data:
		default:
		}
	}
}

func (m *wsManager) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WS: Upgrade failed: %v", err)
		return
	}

	client := &wsClient{
		manager: m,
		conn:    conn,
		send:    make(chan []byte, 16),
		ip:      r.RemoteAddr,
	}
	m.register <- client

	go client.writeLoop()
	go client.readLoop()
}

// writeLoop pushes frames until the send channel closes.
func (c *wsClient) writeLoop() {
	defer c.conn.Close()
	for data := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
}

// readLoop discards inbound messages and detects disconnects.
func (c *wsClient) readLoop() {
	defer func() {
		c.manager.unregister <- c
		c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
