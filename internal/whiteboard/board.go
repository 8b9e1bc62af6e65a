// Package whiteboard synchronizes drawing elements across a board's room.
// Unlike documents, whiteboard state is last-writer-wins per element; no
// transformation is needed because element ids never collide across users.
package whiteboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Aryan-Dev26/TeamFlow-sub000/internal/cache"
	"github.com/Aryan-Dev26/TeamFlow-sub000/internal/room"
)

const (
	persistTimeout     = 5 * time.Second
	defaultSnapshotTTL = 30 * 24 * time.Hour
)

// ErrElementNotFound reports an update or removal for an unknown element id.
var ErrElementNotFound = errors.New("whiteboard: element not found")

// Element is one drawable item. Geometry and styling live in Props as raw
// JSON owned by the client; the server only tracks identity and ordering.
type Element struct {
	ID        string          `json:"id"`
	Kind      string          `json:"kind"`
	CreatedBy string          `json:"createdBy"`
	UpdatedAt time.Time       `json:"updatedAt"`
	Props     json.RawMessage `json:"props"`
}

// BoardSnapshot is the state handed to a joining connection.
type BoardSnapshot struct {
	BoardID          string    `json:"boardId"`
	Elements         []Element `json:"elements"`
	ParticipantCount int       `json:"participantCount"`
}

// ElementPayload carries one element change to remote boards.
type ElementPayload struct {
	BoardID string  `json:"boardId"`
	Element Element `json:"element"`
}

// RemovePayload tells remote boards to drop an element.
type RemovePayload struct {
	BoardID   string `json:"boardId"`
	ElementID string `json:"elementId"`
	RemovedBy string `json:"removedBy"`
}

type boardState struct {
	mu       sync.Mutex
	id       string
	elements map[string]Element
	order    []string
	dirty    bool
}

// ServiceConfig describes the whiteboard service dependencies.
type ServiceConfig struct {
	Rooms       *room.Manager
	KeyValue    cache.KeyValue
	Logger      *zap.Logger
	Clock       func() time.Time
	SnapshotTTL time.Duration
}

// Service keeps live boards in memory with snapshot persistence to the
// key-value store, mirroring the document arena.
type Service struct {
	mu     sync.RWMutex
	boards map[string]*boardState

	rooms       *room.Manager
	kv          cache.KeyValue
	logger      *zap.Logger
	clock       func() time.Time
	snapshotTTL time.Duration
}

// NewService constructs the whiteboard service with defaults applied.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Rooms == nil {
		return nil, fmt.Errorf("whiteboard: room manager is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	kv := cfg.KeyValue
	if kv == nil {
		kv = cache.NewMemoryKeyValue()
	}
	ttl := cfg.SnapshotTTL
	if ttl <= 0 {
		ttl = defaultSnapshotTTL
	}
	return &Service{
		boards:      make(map[string]*boardState),
		rooms:       cfg.Rooms,
		kv:          kv,
		logger:      logger,
		clock:       clock,
		snapshotTTL: ttl,
	}, nil
}

// Join enters the connection into the board's room and returns every current
// element in insertion order.
func (s *Service) Join(ctx context.Context, connectionID, userID, boardID string) (BoardSnapshot, error) {
	count, err := s.rooms.Join(connectionID, boardID, room.KindWhiteboard)
	if err != nil {
		return BoardSnapshot{}, err
	}
	st := s.lookupOrAttach(ctx, boardID)
	st.mu.Lock()
	elements := make([]Element, 0, len(st.order))
	for _, id := range st.order {
		elements = append(elements, st.elements[id])
	}
	st.mu.Unlock()
	return BoardSnapshot{BoardID: boardID, Elements: elements, ParticipantCount: count}, nil
}

// Leave exits the board's room.
func (s *Service) Leave(connectionID, boardID string) error {
	_, err := s.rooms.Leave(connectionID, boardID)
	return err
}

// Draw adds a new element and broadcasts it.
func (s *Service) Draw(ctx context.Context, connectionID, userID, boardID string, element Element) (Element, error) {
	if element.ID == "" {
		return Element{}, fmt.Errorf("whiteboard: element id required")
	}
	element.CreatedBy = userID
	element.UpdatedAt = s.clock().UTC()

	st := s.lookupOrAttach(ctx, boardID)
	st.mu.Lock()
	if _, exists := st.elements[element.ID]; !exists {
		st.order = append(st.order, element.ID)
	}
	st.elements[element.ID] = element
	st.dirty = true
	st.mu.Unlock()
	s.persistAsync(st)

	s.rooms.Broadcast(boardID, room.Event{
		Name:    room.EventWhiteboardDraw,
		Payload: ElementPayload{BoardID: boardID, Element: element},
	}, connectionID)
	return element, nil
}

// Update replaces an existing element's kind and props, last writer wins.
func (s *Service) Update(ctx context.Context, connectionID, userID, boardID string, element Element) (Element, error) {
	st := s.lookupOrAttach(ctx, boardID)
	st.mu.Lock()
	current, exists := st.elements[element.ID]
	if !exists {
		st.mu.Unlock()
		return Element{}, fmt.Errorf("%w: %s", ErrElementNotFound, element.ID)
	}
	current.Kind = element.Kind
	current.Props = element.Props
	current.UpdatedAt = s.clock().UTC()
	st.elements[element.ID] = current
	st.dirty = true
	st.mu.Unlock()
	s.persistAsync(st)

	s.rooms.Broadcast(boardID, room.Event{
		Name:    room.EventWhiteboardUpdate,
		Payload: ElementPayload{BoardID: boardID, Element: current},
	}, connectionID)
	return current, nil
}

// Remove deletes an element and broadcasts the removal.
func (s *Service) Remove(ctx context.Context, connectionID, userID, boardID, elementID string) error {
	st := s.lookupOrAttach(ctx, boardID)
	st.mu.Lock()
	if _, exists := st.elements[elementID]; !exists {
		st.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrElementNotFound, elementID)
	}
	delete(st.elements, elementID)
	for i, id := range st.order {
		if id == elementID {
			st.order = append(st.order[:i], st.order[i+1:]...)
			break
		}
	}
	st.dirty = true
	st.mu.Unlock()
	s.persistAsync(st)

	s.rooms.Broadcast(boardID, room.Event{
		Name:    room.EventWhiteboardRemove,
		Payload: RemovePayload{BoardID: boardID, ElementID: elementID, RemovedBy: userID},
	}, connectionID)
	return nil
}

// Clear wipes the board and notifies everyone, including the initiator's
// other sessions.
func (s *Service) Clear(ctx context.Context, connectionID, userID, boardID string) error {
	st := s.lookupOrAttach(ctx, boardID)
	st.mu.Lock()
	st.elements = make(map[string]Element)
	st.order = nil
	st.dirty = true
	st.mu.Unlock()
	s.persistAsync(st)

	s.rooms.Broadcast(boardID, room.Event{
		Name:    room.EventWhiteboardCleared,
		Payload: RemovePayload{BoardID: boardID, RemovedBy: userID},
	}, connectionID)
	return nil
}

func (s *Service) lookupOrAttach(ctx context.Context, boardID string) *boardState {
	s.mu.RLock()
	st := s.boards[boardID]
	s.mu.RUnlock()
	if st != nil {
		return st
	}

	st = s.restore(ctx, boardID)

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing := s.boards[boardID]; existing != nil {
		return existing
	}
	s.boards[boardID] = st
	return st
}
