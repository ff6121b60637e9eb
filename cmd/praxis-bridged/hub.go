package main

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// defaultClientSendBuffer is the per-client send channel capacity. A client
// that cannot keep up has frames dropped rather than stalling the bridge.
const defaultClientSendBuffer = 256

const writeDeadline = 10 * time.Second

// client is one attached WebSocket consumer with its own buffered send
// channel and write pump.
type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() { close(c.done) })
}

// hub fans bridge events out to every attached client.
type hub struct {
	log *slog.Logger

	mu      sync.RWMutex
	clients map[string]*client
}

func newHub(log *slog.Logger) *hub {
	return &hub{log: log, clients: make(map[string]*client)}
}

// attach registers a connection and starts its write pump.
func (h *hub) attach(conn *websocket.Conn) *client {
	cl := &client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, defaultClientSendBuffer),
		done: make(chan struct{}),
	}
	go h.writePump(cl)

	h.mu.Lock()
	h.clients[cl.id] = cl
	n := len(h.clients)
	h.mu.Unlock()

	h.log.Info("client attached", "client_id", cl.id, "clients", n)
	return cl
}

// detach removes a client and closes it. The connection itself is closed by
// the write pump on its way out.
func (h *hub) detach(id string) {
	h.mu.Lock()
	cl, ok := h.clients[id]
	if ok {
		delete(h.clients, id)
	}
	n := len(h.clients)
	h.mu.Unlock()

	if ok {
		cl.close()
		h.log.Info("client detached", "client_id", id, "clients", n)
	}
}

// broadcast enqueues one frame for every client.
func (h *hub) broadcast(data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, cl := range h.clients {
		h.send(cl, data)
	}
}

// send enqueues a frame for one client, dropping it when the client's buffer
// is full.
func (h *hub) send(cl *client, data []byte) {
	select {
	case cl.send <- data:
	case <-cl.done:
	default:
		h.log.Warn("client send buffer full, dropping frame", "client_id", cl.id)
	}
}

// writePump drains the client's send channel onto its connection. A write
// failure closes the client so its read loop exits promptly instead of
// waiting for a read deadline.
func (h *hub) writePump(cl *client) {
	defer func() {
		cl.close()
		cl.conn.Close()
	}()

	for {
		select {
		case data := <-cl.send:
			cl.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := cl.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				h.log.Warn("client write failed", "client_id", cl.id, "error", err)
				return
			}
		case <-cl.done:
			return
		}
	}
}
