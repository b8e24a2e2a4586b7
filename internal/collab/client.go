package collab

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
	maxMsgSize = 64 * 1024
	sendBuffer = 256
)

// Client adapts a websocket connection to the Transport the tracker talks
// to. The tracker never sees the socket itself.
type Client struct {
	tracker *Tracker
	conn    *websocket.Conn
	send    chan []byte
	done    chan struct{}
	once    sync.Once

	connectionID string
}

func NewClient(tracker *Tracker, conn *websocket.Conn) *Client {
	return &Client{
		tracker: tracker,
		conn:    conn,
		send:    make(chan []byte, sendBuffer),
		done:    make(chan struct{}),
	}
}

// Send queues a message without blocking. A full buffer means the client is
// not draining its socket; report the transport as gone rather than stall
// the room.
func (c *Client) Send(msg *Message) bool {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("marshal message", "error", err)
		return true
	}

	select {
	case <-c.done:
		return false
	case c.send <- data:
		return true
	default:
		slog.Warn("client send buffer full, dropping client", "connection", c.connectionID)
		return false
	}
}

func (c *Client) Close(reason string) {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close(websocket.StatusNormalClosure, reason)
	})
}

// SetConnectionID records the id the tracker assigned at join time.
func (c *Client) SetConnectionID(id string) {
	c.connectionID = id
}

func (c *Client) ReadPump(ctx context.Context) {
	defer func() {
		c.tracker.Leave(c.connectionID)
		c.Close("")
	}()

	c.conn.SetReadLimit(maxMsgSize)

	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure ||
				websocket.CloseStatus(err) == websocket.StatusGoingAway {
				return
			}
			slog.Debug("read error", "error", err, "connection", c.connectionID)
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			slog.Warn("invalid message", "error", err, "connection", c.connectionID)
			continue
		}

		switch msg.Type {
		case TypeLeave:
			return
		case TypeSlideChange:
			var p SlideChangePayload
			if err := json.Unmarshal(msg.Payload, &p); err != nil {
				slog.Warn("invalid slide_change payload", "error", err, "connection", c.connectionID)
				continue
			}
			c.tracker.ChangeSlide(c.connectionID, p.SlideNumber)
		case TypeEdit:
			c.tracker.Edit(c.connectionID, msg.Payload)
		case TypePing:
			c.tracker.Touch(c.connectionID)
			c.Send(&Message{Type: TypePong})
		default:
			slog.Warn("unknown message type", "type", msg.Type, "connection", c.connectionID)
		}
	}
}

func (c *Client) WritePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.tracker.Leave(c.connectionID)
		c.Close("")
	}()

	for {
		select {
		case message := <-c.send:
			writeCtx, cancel := context.WithTimeout(ctx, writeWait)
			err := c.conn.Write(writeCtx, websocket.MessageText, message)
			cancel()
			if err != nil {
				slog.Debug("write error", "error", err, "connection", c.connectionID)
				return
			}

		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, writeWait)
			err := c.conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return
			}

		case <-c.done:
			return

		case <-ctx.Done():
			return
		}
	}
}
