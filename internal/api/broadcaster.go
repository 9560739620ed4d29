package api

import (
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/banshee-data/area-monitor/internal/alerts"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
	wsSendBuffer = 256
)

// StreamMessage is the envelope written to websocket clients.
type StreamMessage struct {
	Type      string      `json:"type"`
	Payload   interface{} `json:"payload,omitempty"`
	ClientID  string      `json:"client_id,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

type streamClient struct {
	conn   *websocket.Conn
	id     string
	camera string // empty streams every camera
	send   chan StreamMessage
	once   sync.Once
}

func (c *streamClient) close() {
	c.once.Do(func() { close(c.send) })
}

// Broadcaster streams fired alerts to websocket clients. It is an
// alerts.Sink; RecordAlert never blocks, and a client whose buffer is full
// misses the message.
type Broadcaster struct {
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[string]*streamClient
	closed  bool
	dropped atomic.Int64
}

// NewBroadcaster returns a Broadcaster with no clients. Websocket origins
// are not checked.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		clients: make(map[string]*streamClient),
	}
}

// RecordAlert fans a out to every interested client.
func (b *Broadcaster) RecordAlert(a alerts.Alert) error {
	msg := StreamMessage{Type: "alert", Payload: a, Timestamp: a.Timestamp.Unix()}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, c := range b.clients {
		if c.camera != "" && c.camera != a.CameraID {
			continue
		}
		select {
		case c.send <- msg:
		default:
			b.dropped.Add(1)
		}
	}
	return nil
}

// Clients returns the number of connected clients.
func (b *Broadcaster) Clients() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// Dropped returns how many messages were discarded for slow clients.
func (b *Broadcaster) Dropped() int64 { return b.dropped.Load() }

// Close disconnects every client. Later connection attempts are refused
// with 503.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for id, c := range b.clients {
		c.close()
		delete(b.clients, id)
	}
}

// ServeHTTP upgrades the request and streams alerts until the client goes
// away. Query params:
//   - camera (optional) restricts the stream to one camera
func (b *Broadcaster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if b.isClosed() {
		http.Error(w, "alert stream closed", http.StatusServiceUnavailable)
		return
	}
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade failed: %v", err)
		return
	}

	c := &streamClient{
		conn:   conn,
		id:     uuid.NewString(),
		camera: r.URL.Query().Get("camera"),
		send:   make(chan StreamMessage, wsSendBuffer),
	}
	// Queue the welcome before registering so it is always first.
	c.send <- StreamMessage{
		Type:      "welcome",
		ClientID:  c.id,
		Timestamp: time.Now().Unix(),
		Payload:   map[string]string{"camera": c.camera},
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
		c.conn.Close()
		return
	}
	b.clients[c.id] = c
	b.mu.Unlock()
	log.Printf("websocket client connected: %s", c.id)

	go b.writePump(c)
	b.readPump(c)
}

func (b *Broadcaster) isClosed() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.closed
}

func (b *Broadcaster) unregister(c *streamClient) {
	b.mu.Lock()
	if _, ok := b.clients[c.id]; ok {
		delete(b.clients, c.id)
		c.close()
	}
	b.mu.Unlock()
}

// readPump discards client messages and detects disconnects.
func (b *Broadcaster) readPump(c *streamClient) {
	defer func() {
		b.unregister(c)
		c.conn.Close()
		log.Printf("websocket client disconnected: %s", c.id)
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("websocket error for %s: %v", c.id, err)
			}
			return
		}
	}
}

func (b *Broadcaster) writePump(c *streamClient) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
