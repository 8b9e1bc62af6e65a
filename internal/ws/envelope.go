// Package ws runs the websocket surface: one connection per client, a tagged
// JSON envelope per frame, decoded exactly once at this boundary into typed
// payloads before anything downstream sees them.
package ws

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Aryan-Dev26/TeamFlow-sub000/internal/ot"
)

// ErrUnknownEvent rejects frames outside the supported vocabulary.
var ErrUnknownEvent = errors.New("ws: unknown event")

// Envelope is the wire frame. Payload stays raw until the event name selects
// its concrete type.
type Envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// DocumentRef addresses a document room.
type DocumentRef struct {
	DocumentID string `json:"documentId"`
}

// OperationPayload submits one operation against a base version.
type OperationPayload struct {
	DocumentID string       `json:"documentId"`
	Operation  ot.Operation `json:"operation"`
}

// SyncPayload requests the operations committed after SinceVersion.
type SyncPayload struct {
	DocumentID   string `json:"documentId"`
	SinceVersion int64  `json:"sinceVersion"`
}

// CursorPayload reports the caret and selection.
type CursorPayload struct {
	DocumentID   string `json:"documentId"`
	Position     int    `json:"position"`
	SelectionEnd int    `json:"selectionEnd,omitempty"`
	Color        string `json:"color,omitempty"`
}

// TypingPayload reports the typing indicator.
type TypingPayload struct {
	DocumentID string `json:"documentId"`
	Typing     bool   `json:"typing"`
}

// MeetingRef addresses a meeting room.
type MeetingRef struct {
	MeetingID string `json:"meetingId"`
}

// SignalPayload carries WebRTC negotiation data.
type SignalPayload struct {
	MeetingID string          `json:"meetingId"`
	ToUser    string          `json:"toUser,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}

// BoardRef addresses a whiteboard room.
type BoardRef struct {
	BoardID string `json:"boardId"`
}

// BoardElementPayload carries a whiteboard element change.
type BoardElementPayload struct {
	BoardID string          `json:"boardId"`
	ID      string          `json:"id"`
	Kind    string          `json:"kind"`
	Props   json.RawMessage `json:"props"`
}

// BoardRemovePayload removes one element, or clears the board when ID is
// empty on a clear event.
type BoardRemovePayload struct {
	BoardID string `json:"boardId"`
	ID      string `json:"id"`
}

// ErrorPayload is sent only to the connection whose frame failed.
type ErrorPayload struct {
	Event   string `json:"event"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func decodePayload(envelope Envelope, target interface{}) error {
	if len(envelope.Payload) == 0 {
		return fmt.Errorf("ws: %s: empty payload", envelope.Event)
	}
	if err := json.Unmarshal(envelope.Payload, target); err != nil {
		return fmt.Errorf("ws: %s: malformed payload: %w", envelope.Event, err)
	}
	return nil
}
