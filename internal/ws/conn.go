package ws

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Aryan-Dev26/TeamFlow-sub000/internal/auth"
	"github.com/Aryan-Dev26/TeamFlow-sub000/internal/metrics"
	"github.com/Aryan-Dev26/TeamFlow-sub000/internal/room"
)

const (
	// writeWait bounds a single frame write.
	writeWait = 10 * time.Second
	// pongWait is the inactivity threshold; a connection silent past it is
	// proactively closed.
	pongWait = 60 * time.Second
	// pingPeriod must be shorter than pongWait.
	pingPeriod = (pongWait * 9) / 10
	// maxFrameSize caps inbound frames.
	maxFrameSize = 512 * 1024
	// replyBuffer holds direct replies (acks, snapshots, errors) to this
	// connection.
	replyBuffer = 16
)

// Conn is one authenticated websocket connection.
type Conn struct {
	ConnectionID string
	UserID       string

	socket  *websocket.Conn
	session *room.Session
	send    chan room.Event
	handler *Handler
}

// Serve registers the connection and runs its pumps until the socket closes.
// It blocks for the lifetime of the connection.
func (h *Handler) Serve(ctx context.Context, socket *websocket.Conn, identity auth.Identity) error {
	connectionID := uuid.NewString()
	session, err := h.Rooms.Register(connectionID, identity.UserID)
	if err != nil {
		return err
	}
	c := &Conn{
		ConnectionID: connectionID,
		UserID:       identity.UserID,
		socket:       socket,
		session:      session,
		send:         make(chan room.Event, replyBuffer),
		handler:      h,
	}
	h.Metrics.Count(metrics.CounterConnectionsOpened, 1, nil)
	h.Logger.Info("connection opened",
		zap.String("connection_id", connectionID),
		zap.String("user_id", identity.UserID))

	go c.writePump()
	c.readPump(ctx)
	return nil
}

// reply queues an event for this connection only. Non-blocking for the same
// reason broadcasts are.
func (c *Conn) reply(event room.Event) {
	select {
	case c.send <- event:
	default:
		c.handler.Logger.Warn("dropping reply for slow connection",
			zap.String("connection_id", c.ConnectionID),
			zap.String("event", event.Name))
	}
}

// readPump decodes inbound frames and dispatches them. It owns the single
// reader and runs the disconnect cascade on exit.
func (c *Conn) readPump(ctx context.Context) {
	defer func() {
		c.handler.disconnect(c)
		c.socket.Close()
		c.handler.Logger.Info("connection closed",
			zap.String("connection_id", c.ConnectionID),
			zap.String("user_id", c.UserID))
	}()

	c.socket.SetReadLimit(maxFrameSize)
	c.socket.SetReadDeadline(time.Now().Add(pongWait))
	c.socket.SetPongHandler(func(string) error {
		c.socket.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.socket.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.handler.Logger.Debug("read failed",
					zap.String("connection_id", c.ConnectionID), zap.Error(err))
			}
			return
		}
		var envelope Envelope
		if err := json.Unmarshal(data, &envelope); err != nil {
			c.reply(room.Event{Name: room.EventError, Payload: ErrorPayload{
				Code:    "malformed_frame",
				Message: "frame is not a valid event envelope",
			}})
			continue
		}
		c.handler.dispatch(ctx, c, envelope)
	}
}

// writePump owns the single writer, multiplexing room broadcasts and direct
// replies, and keeps the connection alive with pings.
func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.socket.Close()
	}()

	for {
		select {
		case event := <-c.send:
			if !c.writeEvent(event) {
				return
			}
		case event := <-c.session.Events():
			if !c.writeEvent(event) {
				return
			}
		case <-c.session.Done():
			c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			c.socket.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case <-ticker.C:
			c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.socket.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Conn) writeEvent(event room.Event) bool {
	encoded, err := json.Marshal(event)
	if err != nil {
		c.handler.Logger.Warn("encode outbound event failed",
			zap.String("event", event.Name), zap.Error(err))
		return true
	}
	c.socket.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.socket.WriteMessage(websocket.TextMessage, encoded); err != nil {
		return false
	}
	return true
}
