package main

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang/glog"
	"github.com/gorilla/websocket"

	"github.com/hb9tf/nrfscan/scanner"
)

const (
	liveWriteTimeout = 10 * time.Second
	liveSendBuffer   = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The live feed is read-only telemetry, open to any origin.
	CheckOrigin: func(*http.Request) bool { return true },
}

// liveHub fans accepted records out to connected websocket clients.
type liveHub struct {
	mu      sync.Mutex
	clients map[*liveClient]bool
}

type liveClient struct {
	conn *websocket.Conn
	send chan scanner.Record
}

func newLiveHub() *liveHub {
	return &liveHub{
		clients: map[*liveClient]bool{},
	}
}

func (h *liveHub) add(c *liveClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = true
	liveClients.Set(float64(len(h.clients)))
}

func (h *liveHub) remove(c *liveClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
	liveClients.Set(float64(len(h.clients)))
}

// broadcast queues a record for every client, dropping clients which
// cannot keep up.
func (h *liveHub) broadcast(r scanner.Record) {
	var slow []*liveClient
	h.mu.Lock()
	for c := range h.clients {
		select {
		case c.send <- r:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.Unlock()

	for _, c := range slow {
		glog.Warningf("dropping slow live feed client %s\n", c.conn.RemoteAddr())
		h.remove(c)
		c.conn.Close()
	}
}

func (s *collectServer) liveHandler(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		glog.Warningf("websocket upgrade failed: %s\n", err)
		return
	}
	client := &liveClient{
		conn: conn,
		send: make(chan scanner.Record, liveSendBuffer),
	}
	s.hub.add(client)
	glog.V(1).Infof("live feed client connected from %s", conn.RemoteAddr())

	// Drain (and discard) client messages to notice disconnects.
	go func() {
		defer func() {
			s.hub.remove(client)
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	go func() {
		for r := range client.send {
			conn.SetWriteDeadline(time.Now().Add(liveWriteTimeout))
			if err := conn.WriteJSON(r); err != nil {
				s.hub.remove(client)
				conn.Close()
				return
			}
		}
	}()
}
