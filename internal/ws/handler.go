package ws

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/Aryan-Dev26/TeamFlow-sub000/internal/collab"
	"github.com/Aryan-Dev26/TeamFlow-sub000/internal/document"
	"github.com/Aryan-Dev26/TeamFlow-sub000/internal/metrics"
	"github.com/Aryan-Dev26/TeamFlow-sub000/internal/ot"
	"github.com/Aryan-Dev26/TeamFlow-sub000/internal/room"
	"github.com/Aryan-Dev26/TeamFlow-sub000/internal/signal"
	"github.com/Aryan-Dev26/TeamFlow-sub000/internal/whiteboard"
)

// Handler holds the subsystems connections dispatch into.
type Handler struct {
	Rooms       *room.Manager
	Presence    *room.Presence
	Coordinator *collab.Coordinator
	Signal      *signal.Relay
	Whiteboard  *whiteboard.Service
	Metrics     metrics.Sink
	Logger      *zap.Logger
}

// Validate reports the first missing dependency.
func (h *Handler) Validate() error {
	switch {
	case h.Rooms == nil:
		return fmt.Errorf("ws: room manager is required")
	case h.Presence == nil:
		return fmt.Errorf("ws: presence is required")
	case h.Coordinator == nil:
		return fmt.Errorf("ws: coordinator is required")
	case h.Signal == nil:
		return fmt.Errorf("ws: signal relay is required")
	case h.Whiteboard == nil:
		return fmt.Errorf("ws: whiteboard service is required")
	}
	if h.Metrics == nil {
		h.Metrics = metrics.NewNopSink()
	}
	if h.Logger == nil {
		h.Logger = zap.NewNop()
	}
	return nil
}

// dispatch routes one decoded frame. Failures affect only the originating
// connection: they come back as an error event, never a disconnect.
func (h *Handler) dispatch(ctx context.Context, c *Conn, envelope Envelope) {
	if err := h.route(ctx, c, envelope); err != nil {
		h.Logger.Debug("frame rejected",
			zap.String("connection_id", c.ConnectionID),
			zap.String("event", envelope.Event),
			zap.Error(err))
		c.reply(room.Event{Name: room.EventError, Payload: ErrorPayload{
			Event:   envelope.Event,
			Code:    errorCode(err),
			Message: err.Error(),
		}})
	}
}

func (h *Handler) route(ctx context.Context, c *Conn, envelope Envelope) error {
	switch envelope.Event {
	case room.EventDocumentJoin:
		var ref DocumentRef
		if err := decodePayload(envelope, &ref); err != nil {
			return err
		}
		result, err := h.Coordinator.Join(ctx, c.ConnectionID, c.UserID, ref.DocumentID)
		if err != nil {
			return err
		}
		c.reply(room.Event{Name: room.EventDocumentJoined, Payload: result})
		return nil

	case room.EventDocumentLeave:
		var ref DocumentRef
		if err := decodePayload(envelope, &ref); err != nil {
			return err
		}
		return h.Coordinator.Leave(ctx, c.ConnectionID, c.UserID, ref.DocumentID)

	case room.EventDocumentOperation:
		var edit OperationPayload
		if err := decodePayload(envelope, &edit); err != nil {
			return err
		}
		ack, err := h.Coordinator.Submit(ctx, c.ConnectionID, c.UserID, edit.DocumentID, edit.Operation)
		if err != nil {
			return err
		}
		c.reply(room.Event{Name: room.EventDocumentAck, Payload: ack})
		return nil

	case room.EventDocumentSync:
		var request SyncPayload
		if err := decodePayload(envelope, &request); err != nil {
			return err
		}
		result, err := h.Coordinator.Sync(ctx, request.DocumentID, request.SinceVersion)
		if err != nil {
			return err
		}
		c.reply(room.Event{Name: room.EventDocumentSynced, Payload: result})
		return nil

	case room.EventDocumentCursor:
		var cursor CursorPayload
		if err := decodePayload(envelope, &cursor); err != nil {
			return err
		}
		h.Presence.UpdateCursor(cursor.DocumentID, c.ConnectionID, room.Cursor{
			UserID:       c.UserID,
			Position:     cursor.Position,
			SelectionEnd: cursor.SelectionEnd,
			Color:        cursor.Color,
		})
		return nil

	case room.EventDocumentTyping:
		var typing TypingPayload
		if err := decodePayload(envelope, &typing); err != nil {
			return err
		}
		h.Presence.SetTyping(typing.DocumentID, c.ConnectionID, c.UserID, typing.Typing)
		return nil

	case room.EventSignalJoin:
		var ref MeetingRef
		if err := decodePayload(envelope, &ref); err != nil {
			return err
		}
		roster, err := h.Signal.Join(c.ConnectionID, c.UserID, ref.MeetingID)
		if err != nil {
			return err
		}
		c.reply(room.Event{Name: room.EventSignalJoined, Payload: roster})
		return nil

	case room.EventSignalLeave:
		var ref MeetingRef
		if err := decodePayload(envelope, &ref); err != nil {
			return err
		}
		return h.Signal.Leave(c.ConnectionID, c.UserID, ref.MeetingID)

	case room.EventSignalOffer, room.EventSignalAnswer, room.EventSignalCandidate:
		var payload SignalPayload
		if err := decodePayload(envelope, &payload); err != nil {
			return err
		}
		return h.Signal.Forward(c.ConnectionID, c.UserID, envelope.Event, signal.Message{
			MeetingID: payload.MeetingID,
			ToUser:    payload.ToUser,
			Payload:   payload.Payload,
		})

	case room.EventWhiteboardJoin:
		var ref BoardRef
		if err := decodePayload(envelope, &ref); err != nil {
			return err
		}
		snapshot, err := h.Whiteboard.Join(ctx, c.ConnectionID, c.UserID, ref.BoardID)
		if err != nil {
			return err
		}
		c.reply(room.Event{Name: room.EventWhiteboardJoined, Payload: snapshot})
		return nil

	case room.EventWhiteboardLeave:
		var ref BoardRef
		if err := decodePayload(envelope, &ref); err != nil {
			return err
		}
		return h.Whiteboard.Leave(c.ConnectionID, ref.BoardID)

	case room.EventWhiteboardDraw:
		var payload BoardElementPayload
		if err := decodePayload(envelope, &payload); err != nil {
			return err
		}
		_, err := h.Whiteboard.Draw(ctx, c.ConnectionID, c.UserID, payload.BoardID, whiteboard.Element{
			ID:    payload.ID,
			Kind:  payload.Kind,
			Props: payload.Props,
		})
		return err

	case room.EventWhiteboardUpdate:
		var payload BoardElementPayload
		if err := decodePayload(envelope, &payload); err != nil {
			return err
		}
		_, err := h.Whiteboard.Update(ctx, c.ConnectionID, c.UserID, payload.BoardID, whiteboard.Element{
			ID:    payload.ID,
			Kind:  payload.Kind,
			Props: payload.Props,
		})
		return err

	case room.EventWhiteboardRemove:
		var payload BoardRemovePayload
		if err := decodePayload(envelope, &payload); err != nil {
			return err
		}
		if payload.ID == "" {
			return h.Whiteboard.Clear(ctx, c.ConnectionID, c.UserID, payload.BoardID)
		}
		return h.Whiteboard.Remove(ctx, c.ConnectionID, c.UserID, payload.BoardID, payload.ID)

	default:
		return fmt.Errorf("%w: %q", ErrUnknownEvent, envelope.Event)
	}
}

// disconnect cascades the cleanup an explicit leave would run, per room the
// connection was still in.
func (h *Handler) disconnect(c *Conn) {
	for _, departure := range h.Rooms.Disconnect(c.ConnectionID) {
		switch departure.Kind {
		case room.KindDocument:
			h.Coordinator.HandleDeparture(c.ConnectionID, c.UserID, departure)
		case room.KindMeeting:
			h.Signal.HandleDeparture(c.ConnectionID, c.UserID, departure)
		}
	}
	h.Metrics.Count(metrics.CounterConnectionsClosed, 1, nil)
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, ot.ErrInvalidOperation):
		return "invalid_operation"
	case errors.Is(err, collab.ErrStaleBase):
		return "stale_base"
	case errors.Is(err, collab.ErrPermissionDenied):
		return "permission_denied"
	case errors.Is(err, document.ErrNotFound):
		return "document_not_found"
	case errors.Is(err, room.ErrRoomFull):
		return "room_full"
	case errors.Is(err, room.ErrKindMismatch):
		return "kind_mismatch"
	case errors.Is(err, signal.ErrUnknownPeer):
		return "unknown_peer"
	case errors.Is(err, whiteboard.ErrElementNotFound):
		return "element_not_found"
	case errors.Is(err, ErrUnknownEvent):
		return "unknown_event"
	default:
		return "bad_request"
	}
}
