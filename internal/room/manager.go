// Package room tracks live connections, their room memberships, and fan-out
// of events to room members. It is document-agnostic: the same manager backs
// document editing, video-call signaling, and whiteboard rooms.
package room

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

const defaultStreamBuffer = 32

// Kind distinguishes what a room is bound to.
type Kind string

const (
	KindDocument   Kind = "document"
	KindMeeting    Kind = "meeting"
	KindWhiteboard Kind = "whiteboard"
)

var (
	// ErrRoomFull rejects a join before any room state mutates.
	ErrRoomFull = errors.New("room: participant limit reached")
	// ErrUnknownConnection indicates an operation for a connection that never
	// registered or already disconnected.
	ErrUnknownConnection = errors.New("room: unknown connection")
	// ErrKindMismatch rejects joining an existing room under a different kind.
	ErrKindMismatch = errors.New("room: kind mismatch")
)

// Event is one broadcastable message. Payload is a typed struct owned by the
// emitting subsystem; it is serialized only at the connection boundary.
type Event struct {
	Name    string      `json:"event"`
	Payload interface{} `json:"payload,omitempty"`
}

// Session is one live connection. A user with several tabs or devices holds
// several sessions; room membership is scoped by connection, not user.
type Session struct {
	ConnectionID string
	UserID       string

	// stream is never closed: broadcasts send to it without holding the
	// manager lock, so closing would race them. done signals teardown
	// instead.
	stream      chan Event
	done        chan struct{}
	joinedRooms map[string]struct{}
}

// Events exposes the session's outbound stream. The ws layer drains it into
// the websocket.
func (s *Session) Events() <-chan Event { return s.stream }

// Done is closed when the session disconnects.
func (s *Session) Done() <-chan struct{} { return s.done }

// Member pairs a connection with the user it authenticated as.
type Member struct {
	ConnectionID string
	UserID       string
}

// Departure reports one room a disconnecting session was removed from.
type Departure struct {
	RoomID    string
	Kind      Kind
	Remaining int
}

type liveRoom struct {
	id        string
	kind      Kind
	createdAt time.Time
	members   map[string]*Session
}

// ManagerConfig describes manager construction.
type ManagerConfig struct {
	Logger          *zap.Logger
	Clock           func() time.Time
	StreamBuffer    int
	MaxParticipants int
}

// Manager owns the session and room registries. Rooms are logical: they are
// created lazily on first join and evicted when the last member leaves.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	rooms    map[string]*liveRoom

	logger          *zap.Logger
	clock           func() time.Time
	streamBuffer    int
	maxParticipants int
}

// NewManager constructs a Manager with defaults applied.
func NewManager(cfg ManagerConfig) *Manager {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	buffer := cfg.StreamBuffer
	if buffer <= 0 {
		buffer = defaultStreamBuffer
	}
	return &Manager{
		sessions:        make(map[string]*Session),
		rooms:           make(map[string]*liveRoom),
		logger:          logger,
		clock:           clock,
		streamBuffer:    buffer,
		maxParticipants: cfg.MaxParticipants,
	}
}

// Register creates a session for an authenticated connection.
func (m *Manager) Register(connectionID, userID string) (*Session, error) {
	if connectionID == "" || userID == "" {
		return nil, fmt.Errorf("room: connection id and user id required")
	}
	session := &Session{
		ConnectionID: connectionID,
		UserID:       userID,
		stream:       make(chan Event, m.streamBuffer),
		done:         make(chan struct{}),
		joinedRooms:  make(map[string]struct{}),
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing := m.sessions[connectionID]; existing != nil {
		return nil, fmt.Errorf("room: connection %s already registered", connectionID)
	}
	m.sessions[connectionID] = session
	return session, nil
}

// Join adds the connection to a room, creating the room lazily. Two
// connections from the same user both count: multi-device presence stays
// accurate. Returns the member count after joining.
func (m *Manager) Join(connectionID, roomID string, kind Kind) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session := m.sessions[connectionID]
	if session == nil {
		return 0, ErrUnknownConnection
	}
	r := m.rooms[roomID]
	if r == nil {
		r = &liveRoom{
			id:        roomID,
			kind:      kind,
			createdAt: m.clock().UTC(),
			members:   make(map[string]*Session),
		}
		m.rooms[roomID] = r
	}
	if r.kind != kind {
		return 0, fmt.Errorf("%w: room %s is %s", ErrKindMismatch, roomID, r.kind)
	}
	if _, already := r.members[connectionID]; !already {
		if m.maxParticipants > 0 && len(r.members) >= m.maxParticipants {
			return 0, ErrRoomFull
		}
		r.members[connectionID] = session
		session.joinedRooms[roomID] = struct{}{}
	}
	return len(r.members), nil
}

// Leave removes the connection from a room and evicts the room once empty.
// Returns the member count after leaving.
func (m *Manager) Leave(connectionID, roomID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session := m.sessions[connectionID]
	if session == nil {
		return 0, ErrUnknownConnection
	}
	return m.leaveLocked(session, roomID), nil
}

func (m *Manager) leaveLocked(session *Session, roomID string) int {
	delete(session.joinedRooms, roomID)
	r := m.rooms[roomID]
	if r == nil {
		return 0
	}
	delete(r.members, session.ConnectionID)
	remaining := len(r.members)
	if remaining == 0 {
		delete(m.rooms, roomID)
	}
	return remaining
}

// Disconnect removes the connection from every joined room and signals the
// session done. It reports each departure so the caller can run the same
// cleanup as an explicit leave. The event stream stays open: a broadcast
// that snapshotted the member list moments earlier may still send to it.
func (m *Manager) Disconnect(connectionID string) []Departure {
	m.mu.Lock()
	defer m.mu.Unlock()
	session := m.sessions[connectionID]
	if session == nil {
		return nil
	}
	departures := make([]Departure, 0, len(session.joinedRooms))
	for roomID := range session.joinedRooms {
		kind := Kind("")
		if r := m.rooms[roomID]; r != nil {
			kind = r.kind
		}
		remaining := m.leaveLocked(session, roomID)
		departures = append(departures, Departure{RoomID: roomID, Kind: kind, Remaining: remaining})
	}
	delete(m.sessions, connectionID)
	close(session.done)
	return departures
}

// Broadcast delivers the event to every room member except the excluded
// connection. Delivery is non-blocking: a member whose stream is full misses
// the event rather than stalling the room; the client's catch-up sync is the
// recovery of last resort. Returns the number of members the event reached.
func (m *Manager) Broadcast(roomID string, event Event, excludeConnectionID string) int {
	m.mu.RLock()
	r := m.rooms[roomID]
	if r == nil {
		m.mu.RUnlock()
		return 0
	}
	recipients := make([]*Session, 0, len(r.members))
	for connectionID, member := range r.members {
		if connectionID == excludeConnectionID {
			continue
		}
		recipients = append(recipients, member)
	}
	m.mu.RUnlock()

	delivered := 0
	for _, member := range recipients {
		select {
		case member.stream <- event:
			delivered++
		default:
			m.logger.Warn("dropping event for slow consumer",
				zap.String("connection_id", member.ConnectionID),
				zap.String("room_id", roomID),
				zap.String("event", event.Name))
		}
	}
	return delivered
}

// SendToUser delivers the event to every session a user holds in the room.
// Delivery is non-blocking, as in Broadcast.
func (m *Manager) SendToUser(roomID, userID string, event Event) int {
	m.mu.RLock()
	r := m.rooms[roomID]
	if r == nil {
		m.mu.RUnlock()
		return 0
	}
	recipients := make([]*Session, 0, 2)
	for _, member := range r.members {
		if member.UserID == userID {
			recipients = append(recipients, member)
		}
	}
	m.mu.RUnlock()

	delivered := 0
	for _, member := range recipients {
		select {
		case member.stream <- event:
			delivered++
		default:
			m.logger.Warn("dropping event for slow consumer",
				zap.String("connection_id", member.ConnectionID),
				zap.String("room_id", roomID),
				zap.String("event", event.Name))
		}
	}
	return delivered
}

// Participants lists current room members.
func (m *Manager) Participants(roomID string) []Member {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r := m.rooms[roomID]
	if r == nil {
		return nil
	}
	members := make([]Member, 0, len(r.members))
	for _, session := range r.members {
		members = append(members, Member{ConnectionID: session.ConnectionID, UserID: session.UserID})
	}
	return members
}
