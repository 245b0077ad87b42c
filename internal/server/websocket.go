package server

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/lgmbx/DataProcessingOrchestrator/internal/events"
	"github.com/lgmbx/DataProcessingOrchestrator/pkg/api"
	"github.com/lgmbx/DataProcessingOrchestrator/pkg/log"
)

// Client represents a WebSocket connection streaming the events of one
// instance
type Client struct {
	conn      *websocket.Conn
	sub       *events.Subscription
	snapshot  *api.Instance
	closeOnce sync.Once
}

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	wsBufferSize   = 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  wsBufferSize,
	WriteBufferSize: wsBufferSize,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

func (s *Server) handleWebSocket(c *gin.Context) {
	id := instanceParam(c)

	// subscribe before loading so no transition falls between the
	// snapshot and the stream
	sub := s.hub.Subscribe(events.FilterInstance(id))
	inst, err := s.engine.GetInstance(c.Request.Context(), id)
	if err != nil {
		sub.Close()
		writeError(c, err)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		sub.Close()
		slog.Error("WebSocket upgrade failed",
			log.InstanceID(id),
			log.Error(err))
		return
	}

	client := &Client{
		conn:     conn,
		sub:      sub,
		snapshot: inst,
	}
	s.registerWebSocket(client)
	go func() {
		defer s.unregisterWebSocket(client)
		client.run()
	}()
}

// Close ends the stream and closes the underlying connection
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.sub.Close()
		_ = c.conn.Close()
	})
}

func (c *Client) run() {
	defer c.Close()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	if !c.write(&api.StreamMessage{
		Type:     api.StreamSnapshot,
		Instance: api.NewInstanceResponse(c.snapshot),
	}) {
		return
	}
	if c.snapshot.Status.IsTerminal() {
		c.sendClose()
		return
	}

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	closed := make(chan struct{})
	go c.readMessages(closed)

	for {
		select {
		case <-closed:
			return

		case ev, ok := <-c.sub.Events():
			if !ok {
				c.sendClose()
				return
			}
			if c.stale(ev) {
				continue
			}
			if !c.write(&api.StreamMessage{
				Type:  api.StreamEvent,
				Event: ev,
			}) {
				return
			}
			if ev.Type.IsTerminal() {
				c.sendClose()
				return
			}

		case <-ticker.C:
			if !c.sendPing() {
				return
			}
		}
	}
}

// stale reports whether the snapshot already reflects ev
func (c *Client) stale(ev *api.InstanceEvent) bool {
	if ev.Type.IsTerminal() {
		return false
	}
	return ev.Cursor <= c.snapshot.Cursor &&
		ev.Type == api.EventTypeStepCompleted
}

// readMessages discards client frames so control frames are processed,
// signalling when the peer goes away
func (c *Client) readMessages(closed chan struct{}) {
	defer close(closed)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *Client) write(msg *api.StreamMessage) bool {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteJSON(msg); err != nil {
		slog.Error("WebSocket write failed",
			slog.String("context", string(msg.Type)),
			log.Error(err))
		return false
	}
	return true
}

func (c *Client) sendClose() {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func (c *Client) sendPing() bool {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	err := c.conn.WriteMessage(websocket.PingMessage, nil)
	return err == nil
}
