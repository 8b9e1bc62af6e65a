package room

import (
	"sync"
	"time"
)

// Cursor is one user's caret and selection inside a document room. Offsets
// are rune-based, matching the operation model.
type Cursor struct {
	UserID       string    `json:"userId"`
	Position     int       `json:"position"`
	SelectionEnd int       `json:"selectionEnd,omitempty"`
	Color        string    `json:"color,omitempty"`
	Typing       bool      `json:"typing"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Presence keeps per-room cursor and typing state and pushes every change to
// the room immediately. State is ephemeral: it lives only while the room
// does and is never persisted.
type Presence struct {
	mu      sync.RWMutex
	rooms   map[string]map[string]Cursor
	manager *Manager
	clock   func() time.Time
}

// NewPresence constructs a Presence bound to the manager it broadcasts
// through.
func NewPresence(manager *Manager, clock func() time.Time) *Presence {
	if clock == nil {
		clock = time.Now
	}
	return &Presence{
		rooms:   make(map[string]map[string]Cursor),
		manager: manager,
		clock:   clock,
	}
}

// UpdateCursor stores the caret position and broadcasts it to everyone else
// in the room.
func (p *Presence) UpdateCursor(roomID, excludeConnectionID string, cursor Cursor) Cursor {
	p.mu.Lock()
	current := p.rooms[roomID]
	if current == nil {
		current = make(map[string]Cursor)
		p.rooms[roomID] = current
	}
	cursor.Typing = current[cursor.UserID].Typing
	cursor.UpdatedAt = p.clock().UTC()
	current[cursor.UserID] = cursor
	p.mu.Unlock()

	p.manager.Broadcast(roomID, Event{Name: EventDocumentCursor, Payload: cursor}, excludeConnectionID)
	return cursor
}

// SetTyping flips the typing flag for a user and broadcasts the change.
func (p *Presence) SetTyping(roomID, excludeConnectionID, userID string, typing bool) {
	p.mu.Lock()
	current := p.rooms[roomID]
	if current == nil {
		current = make(map[string]Cursor)
		p.rooms[roomID] = current
	}
	cursor := current[userID]
	cursor.UserID = userID
	cursor.Typing = typing
	cursor.UpdatedAt = p.clock().UTC()
	current[userID] = cursor
	p.mu.Unlock()

	p.manager.Broadcast(roomID, Event{Name: EventDocumentTyping, Payload: cursor}, excludeConnectionID)
}

// All snapshots every cursor currently known for the room.
func (p *Presence) All(roomID string) []Cursor {
	p.mu.RLock()
	defer p.mu.RUnlock()
	current := p.rooms[roomID]
	cursors := make([]Cursor, 0, len(current))
	for _, cursor := range current {
		cursors = append(cursors, cursor)
	}
	return cursors
}

// RemoveUser discards a user's presence when their last connection leaves
// the room. Remote clients drop the cursor on the user_left notification.
func (p *Presence) RemoveUser(roomID, userID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	current := p.rooms[roomID]
	if current == nil {
		return
	}
	delete(current, userID)
	if len(current) == 0 {
		delete(p.rooms, roomID)
	}
}
