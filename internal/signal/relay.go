// Package signal relays WebRTC session negotiation between meeting
// participants. The server never inspects SDP or ICE contents; payloads pass
// through opaque.
package signal

import (
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/Aryan-Dev26/TeamFlow-sub000/internal/room"
)

// ErrUnknownPeer rejects a targeted message whose recipient is not in the
// meeting.
var ErrUnknownPeer = errors.New("signal: target peer not in meeting")

// Message is one signaling frame. Payload stays raw JSON end to end.
type Message struct {
	MeetingID string          `json:"meetingId"`
	FromUser  string          `json:"fromUser"`
	ToUser    string          `json:"toUser,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}

// RosterPayload announces meeting membership changes.
type RosterPayload struct {
	MeetingID        string   `json:"meetingId"`
	UserID           string   `json:"userId"`
	Peers            []string `json:"peers,omitempty"`
	ParticipantCount int      `json:"participantCount"`
}

// Relay binds signaling semantics onto meeting rooms.
type Relay struct {
	rooms  *room.Manager
	logger *zap.Logger
}

func NewRelay(rooms *room.Manager, logger *zap.Logger) *Relay {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Relay{rooms: rooms, logger: logger}
}

// Join enters the connection into the meeting and returns the current peer
// list so the newcomer can start offering. Existing peers get an arrival
// notification and initiate nothing; the convention is newcomer-offers.
func (r *Relay) Join(connectionID, userID, meetingID string) (RosterPayload, error) {
	count, err := r.rooms.Join(connectionID, meetingID, room.KindMeeting)
	if err != nil {
		return RosterPayload{}, err
	}
	peers := make([]string, 0, count)
	seen := make(map[string]struct{})
	for _, member := range r.rooms.Participants(meetingID) {
		if member.UserID == userID {
			continue
		}
		if _, dup := seen[member.UserID]; dup {
			continue
		}
		seen[member.UserID] = struct{}{}
		peers = append(peers, member.UserID)
	}

	r.rooms.Broadcast(meetingID, room.Event{
		Name:    room.EventSignalUserJoin,
		Payload: RosterPayload{MeetingID: meetingID, UserID: userID, ParticipantCount: count},
	}, connectionID)

	return RosterPayload{
		MeetingID:        meetingID,
		UserID:           userID,
		Peers:            peers,
		ParticipantCount: count,
	}, nil
}

// Leave exits the meeting and tells the remaining peers to tear down their
// streams for the user.
func (r *Relay) Leave(connectionID, userID, meetingID string) error {
	count, err := r.rooms.Leave(connectionID, meetingID)
	if err != nil {
		return err
	}
	r.announceDeparture(meetingID, userID, count, connectionID)
	return nil
}

// HandleDeparture mirrors Leave for memberships dissolved by a disconnect.
func (r *Relay) HandleDeparture(connectionID, userID string, departure room.Departure) {
	r.announceDeparture(departure.RoomID, userID, departure.Remaining, connectionID)
}

func (r *Relay) announceDeparture(meetingID, userID string, remaining int, excludeConnectionID string) {
	r.rooms.Broadcast(meetingID, room.Event{
		Name:    room.EventSignalUserLeft,
		Payload: RosterPayload{MeetingID: meetingID, UserID: userID, ParticipantCount: remaining},
	}, excludeConnectionID)
}

// Forward relays an offer, answer, or candidate. A message with a target user
// goes only to that user's sessions; an untargeted candidate fans out to the
// whole meeting except the sender.
func (r *Relay) Forward(connectionID, userID, eventName string, message Message) error {
	message.FromUser = userID
	switch eventName {
	case room.EventSignalOffer, room.EventSignalAnswer, room.EventSignalCandidate:
	default:
		return fmt.Errorf("signal: unsupported event %q", eventName)
	}
	if message.ToUser != "" {
		delivered := r.rooms.SendToUser(message.MeetingID, message.ToUser, room.Event{Name: eventName, Payload: message})
		if delivered == 0 {
			return fmt.Errorf("%w: %s", ErrUnknownPeer, message.ToUser)
		}
		return nil
	}
	// Offers and answers are inherently pairwise.
	if eventName != room.EventSignalCandidate {
		return fmt.Errorf("signal: %s requires a target user", eventName)
	}
	r.rooms.Broadcast(message.MeetingID, room.Event{Name: eventName, Payload: message}, connectionID)
	return nil
}
