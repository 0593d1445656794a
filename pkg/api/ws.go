package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/sidequest-dev/foreman/pkg/events"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsProbeTimeout = 5 * time.Second
	wsReadLimit    = 32 << 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Dashboards load from arbitrary origins.
	CheckOrigin: func(*http.Request) bool { return true },
}

// inboundMessage is the client-to-server frame of the subscriber protocol.
type inboundMessage struct {
	Type     string   `json:"type"`
	Channels []string `json:"channels,omitempty"`
}

// ServeWS upgrades the connection and attaches it to the event bus as a
// subscriber. The connection lives until the client disconnects or the
// bus drops it.
func (h *Handler) ServeWS(ctx echo.Context) error {
	conn, err := upgrader.Upgrade(ctx.Response(), ctx.Request(), nil)
	if err != nil {
		// Upgrade already answered the failed handshake.
		return nil
	}
	client := &wsClient{id: newClientID(), conn: conn, h: h}
	client.run()
	return nil
}

func newClientID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// wsClient serializes writes to one connection: gorilla permits a single
// concurrent writer, and the bus write loop competes with protocol
// replies and probes.
type wsClient struct {
	id      string
	conn    *websocket.Conn
	h       *Handler
	writeMu sync.Mutex
}

func (c *wsClient) run() {
	defer c.conn.Close()
	c.conn.SetReadLimit(wsReadLimit)

	if err := c.write(events.Connected(c.id)); err != nil {
		return
	}
	if err := c.h.bus.Register(c.id, c.write, c.probe); err != nil {
		log.Warnw("websocket subscriber rejected", "client_id", c.id, "error", err)
		_ = c.write(events.ErrorMessage("NOT_ACCEPTING", "server is not accepting subscribers"))
		return
	}
	defer c.h.bus.Deregister(c.id)

	c.readLoop()
}

func (c *wsClient) readLoop() {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debugw("websocket read failed", "client_id", c.id, "error", err)
			}
			return
		}
		var msg inboundMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.reply(events.ErrorMessage("BAD_MESSAGE", "message must be a JSON object with a type field"))
			continue
		}
		c.handle(msg)
	}
}

func (c *wsClient) handle(msg inboundMessage) {
	switch msg.Type {
	case "subscribe":
		channels, err := c.h.bus.Subscribe(c.id, msg.Channels...)
		if err != nil {
			c.reply(events.ErrorMessage("SUBSCRIBE_FAILED", err.Error()))
			return
		}
		c.reply(events.Subscribed(channels))
	case "unsubscribe":
		channels, err := c.h.bus.Unsubscribe(c.id, msg.Channels...)
		if err != nil {
			c.reply(events.ErrorMessage("UNSUBSCRIBE_FAILED", err.Error()))
			return
		}
		c.reply(events.Unsubscribed(channels))
	case "ping":
		c.reply(events.Pong())
	case "get_subscriptions":
		channels, _ := c.h.bus.Channels(c.id)
		c.reply(events.Subscriptions(channels))
	default:
		c.reply(events.ErrorMessage("UNKNOWN_TYPE", fmt.Sprintf("unknown message type %q", msg.Type)))
	}
}

// reply queues a protocol response through the bus so it stays ordered
// with broadcasts. A false return means the bus has dropped this client;
// closing the connection unblocks the read loop.
func (c *wsClient) reply(msg events.Message) {
	if !c.h.bus.SendToClient(c.id, msg) {
		_ = c.conn.Close()
	}
}

func (c *wsClient) write(msg events.Message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return c.conn.WriteJSON(msg)
}

func (c *wsClient) probe() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsProbeTimeout))
}
