package signal

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/Aryan-Dev26/TeamFlow-sub000/internal/room"
)

func newMeeting(t *testing.T) (*Relay, *room.Manager) {
	t.Helper()
	rooms := room.NewManager(room.ManagerConfig{})
	return NewRelay(rooms, nil), rooms
}

func mustRegister(t *testing.T, rooms *room.Manager, connectionID, userID string) *room.Session {
	t.Helper()
	session, err := rooms.Register(connectionID, userID)
	if err != nil {
		t.Fatalf("register %s: %v", connectionID, err)
	}
	return session
}

func mustReceive(t *testing.T, session *room.Session, want string) room.Event {
	t.Helper()
	select {
	case event := <-session.Events():
		if event.Name != want {
			t.Fatalf("expected %q, got %q", want, event.Name)
		}
		return event
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for %q", want)
		return room.Event{}
	}
}

func TestJoinReturnsPeersAndAnnounces(t *testing.T) {
	relay, rooms := newMeeting(t)
	alice := mustRegister(t, rooms, "conn-a", "alice")
	mustRegister(t, rooms, "conn-b", "bob")

	if _, err := relay.Join("conn-a", "alice", "meet-1"); err != nil {
		t.Fatalf("alice join: %v", err)
	}
	roster, err := relay.Join("conn-b", "bob", "meet-1")
	if err != nil {
		t.Fatalf("bob join: %v", err)
	}
	if len(roster.Peers) != 1 || roster.Peers[0] != "alice" {
		t.Fatalf("bob should see alice as existing peer, got %+v", roster.Peers)
	}

	event := mustReceive(t, alice, room.EventSignalUserJoin)
	payload := event.Payload.(RosterPayload)
	if payload.UserID != "bob" || payload.ParticipantCount != 2 {
		t.Fatalf("unexpected arrival %+v", payload)
	}
}

func TestForwardOfferReachesOnlyTarget(t *testing.T) {
	relay, rooms := newMeeting(t)
	mustRegister(t, rooms, "conn-a", "alice")
	bob := mustRegister(t, rooms, "conn-b", "bob")
	carol := mustRegister(t, rooms, "conn-c", "carol")
	for _, join := range []struct{ conn, user string }{
		{"conn-a", "alice"}, {"conn-b", "bob"}, {"conn-c", "carol"},
	} {
		if _, err := relay.Join(join.conn, join.user, "meet-1"); err != nil {
			t.Fatalf("join %s: %v", join.user, err)
		}
	}
	drain(bob)
	drain(carol)

	sdp := json.RawMessage(`{"type":"offer","sdp":"v=0"}`)
	err := relay.Forward("conn-a", "alice", room.EventSignalOffer, Message{
		MeetingID: "meet-1", ToUser: "bob", Payload: sdp,
	})
	if err != nil {
		t.Fatalf("forward: %v", err)
	}

	event := mustReceive(t, bob, room.EventSignalOffer)
	message := event.Payload.(Message)
	if message.FromUser != "alice" || string(message.Payload) != string(sdp) {
		t.Fatalf("unexpected message %+v", message)
	}
	select {
	case event := <-carol.Events():
		t.Fatalf("carol must not receive a targeted offer, got %q", event.Name)
	default:
	}
}

func TestForwardUntargetedCandidateFansOut(t *testing.T) {
	relay, rooms := newMeeting(t)
	mustRegister(t, rooms, "conn-a", "alice")
	bob := mustRegister(t, rooms, "conn-b", "bob")
	if _, err := relay.Join("conn-a", "alice", "meet-1"); err != nil {
		t.Fatalf("alice join: %v", err)
	}
	if _, err := relay.Join("conn-b", "bob", "meet-1"); err != nil {
		t.Fatalf("bob join: %v", err)
	}

	err := relay.Forward("conn-a", "alice", room.EventSignalCandidate, Message{
		MeetingID: "meet-1", Payload: json.RawMessage(`{"candidate":"udp"}`),
	})
	if err != nil {
		t.Fatalf("forward: %v", err)
	}
	mustReceive(t, bob, room.EventSignalCandidate)
}

func TestForwardOfferWithoutTargetFails(t *testing.T) {
	relay, rooms := newMeeting(t)
	mustRegister(t, rooms, "conn-a", "alice")
	if _, err := relay.Join("conn-a", "alice", "meet-1"); err != nil {
		t.Fatalf("join: %v", err)
	}
	err := relay.Forward("conn-a", "alice", room.EventSignalOffer, Message{MeetingID: "meet-1"})
	if err == nil {
		t.Fatal("expected untargeted offer to fail")
	}
}

func TestForwardToAbsentPeerFails(t *testing.T) {
	relay, rooms := newMeeting(t)
	mustRegister(t, rooms, "conn-a", "alice")
	if _, err := relay.Join("conn-a", "alice", "meet-1"); err != nil {
		t.Fatalf("join: %v", err)
	}
	err := relay.Forward("conn-a", "alice", room.EventSignalAnswer, Message{
		MeetingID: "meet-1", ToUser: "ghost",
	})
	if !errors.Is(err, ErrUnknownPeer) {
		t.Fatalf("expected ErrUnknownPeer, got %v", err)
	}
}

func TestLeaveAnnouncesTeardown(t *testing.T) {
	relay, rooms := newMeeting(t)
	alice := mustRegister(t, rooms, "conn-a", "alice")
	mustRegister(t, rooms, "conn-b", "bob")
	if _, err := relay.Join("conn-a", "alice", "meet-1"); err != nil {
		t.Fatalf("alice join: %v", err)
	}
	if _, err := relay.Join("conn-b", "bob", "meet-1"); err != nil {
		t.Fatalf("bob join: %v", err)
	}
	drain(alice)

	if err := relay.Leave("conn-b", "bob", "meet-1"); err != nil {
		t.Fatalf("leave: %v", err)
	}
	event := mustReceive(t, alice, room.EventSignalUserLeft)
	payload := event.Payload.(RosterPayload)
	if payload.UserID != "bob" || payload.ParticipantCount != 1 {
		t.Fatalf("unexpected departure %+v", payload)
	}
}

func drain(session *room.Session) {
	for {
		select {
		case <-session.Events():
		default:
			return
		}
	}
}
