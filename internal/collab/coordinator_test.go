package collab

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Aryan-Dev26/TeamFlow-sub000/internal/document"
	"github.com/Aryan-Dev26/TeamFlow-sub000/internal/ot"
	"github.com/Aryan-Dev26/TeamFlow-sub000/internal/room"
)

type fixture struct {
	coordinator *Coordinator
	rooms       *room.Manager
	presence    *room.Presence
	sessions    map[string]*room.Session
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	fixed := time.Date(2025, time.March, 9, 10, 0, 0, 0, time.UTC)
	clock := func() time.Time { return fixed }
	store := document.NewStore(document.StoreConfig{Clock: clock})
	rooms := room.NewManager(room.ManagerConfig{Clock: clock})
	presence := room.NewPresence(rooms, clock)
	coordinator, err := NewCoordinator(CoordinatorConfig{
		Store:    store,
		Rooms:    rooms,
		Presence: presence,
		Clock:    clock,
	})
	if err != nil {
		t.Fatalf("new coordinator: %v", err)
	}
	return &fixture{
		coordinator: coordinator,
		rooms:       rooms,
		presence:    presence,
		sessions:    make(map[string]*room.Session),
	}
}

func (f *fixture) join(t *testing.T, connectionID, userID, documentID string) JoinResult {
	t.Helper()
	session, err := f.rooms.Register(connectionID, userID)
	if err != nil {
		t.Fatalf("register %s: %v", connectionID, err)
	}
	f.sessions[connectionID] = session
	result, err := f.coordinator.Join(context.Background(), connectionID, userID, documentID)
	if err != nil {
		t.Fatalf("join %s: %v", userID, err)
	}
	return result
}

func mustReceive(t *testing.T, session *room.Session, want string) room.Event {
	t.Helper()
	select {
	case event := <-session.Events():
		if event.Name != want {
			t.Fatalf("expected event %q, got %q", want, event.Name)
		}
		return event
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for %q", want)
		return room.Event{}
	}
}

func insertAt(author string, position int, content string, base int64) ot.Operation {
	return ot.Operation{
		ID:          author + "-op",
		Kind:        ot.KindInsert,
		Position:    position,
		Content:     content,
		AuthorID:    author,
		BaseVersion: base,
	}
}

func TestJoinCreatesDocumentAndAnnounces(t *testing.T) {
	f := newFixture(t)
	f.join(t, "conn-a", "alice", "doc-1")
	alice := f.sessions["conn-a"]

	result := f.join(t, "conn-b", "bob", "doc-1")
	if result.Version != 0 || result.Content != "" {
		t.Fatalf("fresh document should be empty, got %+v", result)
	}
	if result.ParticipantCount != 2 {
		t.Fatalf("expected 2 participants, got %d", result.ParticipantCount)
	}

	event := mustReceive(t, alice, room.EventDocumentUserJoin)
	payload, ok := event.Payload.(PresencePayload)
	if !ok {
		t.Fatalf("unexpected payload type %T", event.Payload)
	}
	if payload.UserID != "bob" || payload.ParticipantCount != 2 {
		t.Fatalf("unexpected announcement %+v", payload)
	}
}

func TestSubmitCommitsAndFansOut(t *testing.T) {
	f := newFixture(t)
	f.join(t, "conn-a", "alice", "doc-1")
	f.join(t, "conn-b", "bob", "doc-1")
	bob := f.sessions["conn-b"]

	ack, err := f.coordinator.Submit(context.Background(), "conn-a", "alice", "doc-1", insertAt("alice", 0, "Hello", 0))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if ack.Version != 1 {
		t.Fatalf("expected version 1, got %d", ack.Version)
	}

	event := mustReceive(t, bob, room.EventDocumentOperation)
	payload, ok := event.Payload.(UpdatePayload)
	if !ok {
		t.Fatalf("unexpected payload type %T", event.Payload)
	}
	if payload.Operation.Content != "Hello" || payload.Version != 1 {
		t.Fatalf("unexpected update %+v", payload)
	}
}

func TestConcurrentSubmissionsConverge(t *testing.T) {
	f := newFixture(t)
	f.join(t, "conn-a", "alice", "doc-1")
	f.join(t, "conn-b", "bob", "doc-1")

	seed := ot.Operation{
		ID: "seed", Kind: ot.KindInsert, Position: 0,
		Content: "Hello World", AuthorID: "seed", BaseVersion: 0,
	}
	if _, err := f.coordinator.Submit(context.Background(), "conn-seed", "seed", "doc-1", seed); err != nil {
		t.Fatalf("seed: %v", err)
	}

	// Both clients edit against version 1 concurrently.
	if _, err := f.coordinator.Submit(context.Background(), "conn-a", "alice", "doc-1", insertAt("alice", 6, "Beautiful ", 1)); err != nil {
		t.Fatalf("alice: %v", err)
	}
	bobOp := ot.Operation{
		ID: "bob-op", Kind: ot.KindInsert, Position: 11,
		Content: "!", AuthorID: "bob", BaseVersion: 1,
	}
	if _, err := f.coordinator.Submit(context.Background(), "conn-b", "bob", "doc-1", bobOp); err != nil {
		t.Fatalf("bob: %v", err)
	}

	sync, err := f.coordinator.Sync(context.Background(), "doc-1", 3)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if sync.Version != 3 {
		t.Fatalf("expected version 3, got %d", sync.Version)
	}
	result, err := f.coordinator.Sync(context.Background(), "doc-1", 0)
	if err != nil {
		t.Fatalf("sync from zero: %v", err)
	}
	content := ""
	for _, applied := range result.Operations {
		content = ot.Apply(content, applied.Operation)
	}
	if content != "Hello Beautiful World!" {
		t.Fatalf("expected converged content, got %q", content)
	}
}

func TestSubmitRejectsInvalidOperation(t *testing.T) {
	f := newFixture(t)
	f.join(t, "conn-a", "alice", "doc-1")

	bad := ot.Operation{ID: "x", Kind: ot.KindInsert, Position: -1, Content: "a", AuthorID: "alice"}
	if _, err := f.coordinator.Submit(context.Background(), "conn-a", "alice", "doc-1", bad); !errors.Is(err, ot.ErrInvalidOperation) {
		t.Fatalf("expected ErrInvalidOperation, got %v", err)
	}
}

func TestSubmitRejectsFutureBaseVersion(t *testing.T) {
	f := newFixture(t)
	f.join(t, "conn-a", "alice", "doc-1")

	op := insertAt("alice", 0, "hi", 99)
	if _, err := f.coordinator.Submit(context.Background(), "conn-a", "alice", "doc-1", op); !errors.Is(err, ErrStaleBase) {
		t.Fatalf("expected ErrStaleBase, got %v", err)
	}
}

func TestLeaveAnnouncesAndClearsPresence(t *testing.T) {
	f := newFixture(t)
	f.join(t, "conn-a", "alice", "doc-1")
	f.join(t, "conn-b", "bob", "doc-1")
	alice := f.sessions["conn-a"]
	mustReceive(t, alice, room.EventDocumentUserJoin)

	f.presence.UpdateCursor("doc-1", "conn-b", room.Cursor{UserID: "bob", Position: 2})
	mustReceive(t, alice, room.EventDocumentCursor)

	if err := f.coordinator.Leave(context.Background(), "conn-b", "bob", "doc-1"); err != nil {
		t.Fatalf("leave: %v", err)
	}
	event := mustReceive(t, alice, room.EventDocumentUserLeft)
	payload := event.Payload.(PresencePayload)
	if payload.UserID != "bob" || payload.ParticipantCount != 1 {
		t.Fatalf("unexpected departure %+v", payload)
	}
	if cursors := f.presence.All("doc-1"); len(cursors) != 0 {
		t.Fatalf("bob's cursor should be gone, got %+v", cursors)
	}
}

func TestMultiDeviceLeaveKeepsPresenceUntilLastConnection(t *testing.T) {
	f := newFixture(t)
	f.join(t, "conn-a", "alice", "doc-1")
	f.join(t, "conn-b1", "bob", "doc-1")
	f.join(t, "conn-b2", "bob", "doc-1")

	f.presence.UpdateCursor("doc-1", "conn-b1", room.Cursor{UserID: "bob", Position: 4})
	if err := f.coordinator.Leave(context.Background(), "conn-b1", "bob", "doc-1"); err != nil {
		t.Fatalf("leave: %v", err)
	}
	if cursors := f.presence.All("doc-1"); len(cursors) != 1 {
		t.Fatalf("bob still connected via conn-b2, cursor must survive, got %+v", cursors)
	}
}

func TestSyncResetsWhenLogTruncated(t *testing.T) {
	fixed := time.Date(2025, time.March, 9, 10, 0, 0, 0, time.UTC)
	clock := func() time.Time { return fixed }
	store := document.NewStore(document.StoreConfig{Clock: clock, LogLimit: 2})
	rooms := room.NewManager(room.ManagerConfig{Clock: clock})
	coordinator, err := NewCoordinator(CoordinatorConfig{
		Store:    store,
		Rooms:    rooms,
		Presence: room.NewPresence(rooms, clock),
		Clock:    clock,
	})
	if err != nil {
		t.Fatalf("new coordinator: %v", err)
	}
	if _, err := rooms.Register("conn-a", "alice"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := coordinator.Join(context.Background(), "conn-a", "alice", "doc-1"); err != nil {
		t.Fatalf("join: %v", err)
	}
	for i := 0; i < 5; i++ {
		op := insertAt("alice", i, "x", int64(i))
		op.ID = op.ID + string(rune('a'+i))
		if _, err := coordinator.Submit(context.Background(), "conn-a", "alice", "doc-1", op); err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
	}

	sync, err := coordinator.Sync(context.Background(), "doc-1", 1)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if !sync.Reset || sync.Content != "xxxxx" {
		t.Fatalf("expected content reset, got %+v", sync)
	}
	if sync.Version != 5 {
		t.Fatalf("expected version 5, got %d", sync.Version)
	}
}

type fakeDirectory struct {
	allow   bool
	touched chan string
}

func (d *fakeDirectory) AuthorizeJoin(context.Context, string, string) (bool, error) {
	return d.allow, nil
}

func (d *fakeDirectory) TouchDocument(_ context.Context, documentID string) error {
	select {
	case d.touched <- documentID:
	default:
	}
	return nil
}

func newDirectoryFixture(t *testing.T, directory Directory) (*Coordinator, *room.Manager) {
	t.Helper()
	store := document.NewStore(document.StoreConfig{})
	rooms := room.NewManager(room.ManagerConfig{})
	coordinator, err := NewCoordinator(CoordinatorConfig{
		Store:     store,
		Rooms:     rooms,
		Presence:  room.NewPresence(rooms, nil),
		Directory: directory,
	})
	if err != nil {
		t.Fatalf("new coordinator: %v", err)
	}
	return coordinator, rooms
}

func TestJoinDeniedByDirectory(t *testing.T) {
	coordinator, rooms := newDirectoryFixture(t, &fakeDirectory{allow: false})
	if _, err := rooms.Register("conn-a", "alice"); err != nil {
		t.Fatalf("register: %v", err)
	}

	_, err := coordinator.Join(context.Background(), "conn-a", "alice", "doc-closed")
	if !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
	if members := rooms.Participants("doc-closed"); members != nil {
		t.Fatalf("denied join must not leave room state, got %+v", members)
	}
}

func TestSubmitTouchesDirectory(t *testing.T) {
	directory := &fakeDirectory{allow: true, touched: make(chan string, 1)}
	coordinator, rooms := newDirectoryFixture(t, directory)
	if _, err := rooms.Register("conn-a", "alice"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := coordinator.Join(context.Background(), "conn-a", "alice", "doc-1"); err != nil {
		t.Fatalf("join: %v", err)
	}

	if _, err := coordinator.Submit(context.Background(), "conn-a", "alice", "doc-1", insertAt("alice", 0, "x", 0)); err != nil {
		t.Fatalf("submit: %v", err)
	}
	select {
	case documentID := <-directory.touched:
		if documentID != "doc-1" {
			t.Fatalf("touched wrong document %q", documentID)
		}
	case <-time.After(time.Second):
		t.Fatal("submit never touched the directory")
	}
}

func TestSubmitBroadcastsInCommitOrder(t *testing.T) {
	store := document.NewStore(document.StoreConfig{})
	rooms := room.NewManager(room.ManagerConfig{StreamBuffer: 4096})
	coordinator, err := NewCoordinator(CoordinatorConfig{
		Store:    store,
		Rooms:    rooms,
		Presence: room.NewPresence(rooms, nil),
	})
	if err != nil {
		t.Fatalf("new coordinator: %v", err)
	}

	watcher, err := rooms.Register("conn-watch", "watcher")
	if err != nil {
		t.Fatalf("register watcher: %v", err)
	}
	if _, err := coordinator.Join(context.Background(), "conn-watch", "watcher", "doc-1"); err != nil {
		t.Fatalf("join watcher: %v", err)
	}

	const writers = 8
	const opsPerWriter = 50
	for w := 0; w < writers; w++ {
		connID := fmt.Sprintf("conn-%d", w)
		userID := fmt.Sprintf("user-%d", w)
		if _, err := rooms.Register(connID, userID); err != nil {
			t.Fatalf("register %s: %v", userID, err)
		}
		if _, err := coordinator.Join(context.Background(), connID, userID, "doc-1"); err != nil {
			t.Fatalf("join %s: %v", userID, err)
		}
	}

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			connID := fmt.Sprintf("conn-%d", w)
			userID := fmt.Sprintf("user-%d", w)
			for i := 0; i < opsPerWriter; i++ {
				op := insertAt(userID, 0, "x", 0)
				op.ID = fmt.Sprintf("%s-%d", userID, i)
				if _, err := coordinator.Submit(context.Background(), connID, userID, "doc-1", op); err != nil {
					t.Errorf("submit %s/%d: %v", userID, i, err)
					return
				}
			}
		}(w)
	}
	wg.Wait()

	// The watcher submits nothing, so every committed operation reaches it.
	// Versions must arrive in commit order: fan-out happens inside the
	// document's mutation boundary.
	var lastVersion int64
	received := 0
	for received < writers*opsPerWriter {
		select {
		case event := <-watcher.Events():
			if event.Name != room.EventDocumentOperation {
				continue
			}
			update := event.Payload.(UpdatePayload)
			if update.Version <= lastVersion {
				t.Fatalf("version %d arrived after %d", update.Version, lastVersion)
			}
			lastVersion = update.Version
			received++
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out after %d of %d updates", received, writers*opsPerWriter)
		}
	}
}
