// Package collab orchestrates the collaborative editing pipeline: it receives
// operations from connections, transforms them against concurrent history,
// commits them to the document store, and fans the result out to the room.
package collab

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Aryan-Dev26/TeamFlow-sub000/internal/document"
	"github.com/Aryan-Dev26/TeamFlow-sub000/internal/events"
	"github.com/Aryan-Dev26/TeamFlow-sub000/internal/metrics"
	"github.com/Aryan-Dev26/TeamFlow-sub000/internal/ot"
	"github.com/Aryan-Dev26/TeamFlow-sub000/internal/room"
)

// ErrStaleBase rejects a submission whose base version is newer than the
// document, which only a buggy or malicious client can produce.
var ErrStaleBase = errors.New("collab: base version ahead of document")

// ErrPermissionDenied rejects a join the document's access state forbids.
var ErrPermissionDenied = errors.New("collab: permission denied")

// Directory is the metadata registry consulted at join time and nudged after
// commits so owner listings track real edit activity. Optional: a nil
// directory leaves every document open.
type Directory interface {
	AuthorizeJoin(ctx context.Context, userID, documentID string) (bool, error)
	TouchDocument(ctx context.Context, documentID string) error
}

// CoordinatorConfig describes the coordinator's collaborators.
type CoordinatorConfig struct {
	Store     *document.Store
	Rooms     *room.Manager
	Presence  *room.Presence
	Directory Directory
	Publisher events.Publisher
	Metrics   metrics.Sink
	Logger    *zap.Logger
	Clock     func() time.Time
}

// Coordinator is safe for concurrent use; per-document ordering comes from
// the store's mutation boundary, not from the coordinator.
type Coordinator struct {
	store     *document.Store
	rooms     *room.Manager
	presence  *room.Presence
	directory Directory
	publisher events.Publisher
	metrics   metrics.Sink
	logger    *zap.Logger
	clock     func() time.Time
}

// NewCoordinator wires the coordinator. Store, Rooms, and Presence are
// required; the rest default to inert implementations.
func NewCoordinator(cfg CoordinatorConfig) (*Coordinator, error) {
	if cfg.Store == nil || cfg.Rooms == nil || cfg.Presence == nil {
		return nil, fmt.Errorf("collab: store, rooms, and presence are required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	sink := cfg.Metrics
	if sink == nil {
		sink = metrics.NewNopSink()
	}
	return &Coordinator{
		store:     cfg.Store,
		rooms:     cfg.Rooms,
		presence:  cfg.Presence,
		directory: cfg.Directory,
		publisher: cfg.Publisher,
		metrics:   sink,
		logger:    logger,
		clock:     clock,
	}, nil
}

// JoinResult is the snapshot handed to a connection entering a document.
type JoinResult struct {
	DocumentID       string        `json:"documentId"`
	Content          string        `json:"content"`
	Version          int64         `json:"version"`
	Participants     []string      `json:"participants"`
	Cursors          []room.Cursor `json:"cursors"`
	ParticipantCount int           `json:"participantCount"`
}

// PresencePayload announces a user entering or leaving a document room.
type PresencePayload struct {
	DocumentID       string `json:"documentId"`
	UserID           string `json:"userId"`
	ParticipantCount int    `json:"participantCount"`
}

// UpdatePayload carries one committed operation to remote editors.
type UpdatePayload struct {
	DocumentID string       `json:"documentId"`
	Operation  ot.Operation `json:"operation"`
	Version    int64        `json:"version"`
}

// AckPayload confirms a submission back to its author.
type AckPayload struct {
	DocumentID  string `json:"documentId"`
	OperationID string `json:"operationId"`
	Version     int64  `json:"version"`
}

// Join enters the connection into the document room, creating the document
// on first contact, and returns the current state plus live presence. Remote
// members learn about the arrival through a broadcast.
func (c *Coordinator) Join(ctx context.Context, connectionID, userID, documentID string) (JoinResult, error) {
	if c.directory != nil {
		allowed, err := c.directory.AuthorizeJoin(ctx, userID, documentID)
		if err != nil {
			return JoinResult{}, err
		}
		if !allowed {
			return JoinResult{}, fmt.Errorf("%w: document %s is closed", ErrPermissionDenied, documentID)
		}
	}
	if _, err := c.store.Create(ctx, documentID, "", userID); err != nil {
		return JoinResult{}, err
	}
	count, err := c.rooms.Join(connectionID, documentID, room.KindDocument)
	if err != nil {
		return JoinResult{}, err
	}
	snapshot, err := c.store.Join(ctx, documentID, userID)
	if err != nil {
		c.rooms.Leave(connectionID, documentID)
		return JoinResult{}, err
	}

	c.rooms.Broadcast(documentID, room.Event{
		Name:    room.EventDocumentUserJoin,
		Payload: PresencePayload{DocumentID: documentID, UserID: userID, ParticipantCount: count},
	}, connectionID)

	return JoinResult{
		DocumentID:       documentID,
		Content:          snapshot.Content,
		Version:          snapshot.Version,
		Participants:     snapshot.Participants,
		Cursors:          c.presence.All(documentID),
		ParticipantCount: count,
	}, nil
}

// Leave removes the connection from the document room. Presence for the user
// is dropped only once their last connection is gone.
func (c *Coordinator) Leave(ctx context.Context, connectionID, userID, documentID string) error {
	count, err := c.rooms.Leave(connectionID, documentID)
	if err != nil {
		return err
	}
	c.finishDeparture(documentID, userID, count, connectionID)
	return nil
}

// HandleDeparture runs leave-side cleanup for a membership the room manager
// already dissolved, as on disconnect.
func (c *Coordinator) HandleDeparture(connectionID, userID string, departure room.Departure) {
	c.finishDeparture(departure.RoomID, userID, departure.Remaining, connectionID)
}

func (c *Coordinator) finishDeparture(documentID, userID string, remaining int, excludeConnectionID string) {
	c.store.Leave(documentID, userID)
	if !c.userStillPresent(documentID, userID) {
		c.presence.RemoveUser(documentID, userID)
	}
	c.rooms.Broadcast(documentID, room.Event{
		Name:    room.EventDocumentUserLeft,
		Payload: PresencePayload{DocumentID: documentID, UserID: userID, ParticipantCount: remaining},
	}, excludeConnectionID)
}

func (c *Coordinator) userStillPresent(documentID, userID string) bool {
	for _, member := range c.rooms.Participants(documentID) {
		if member.UserID == userID {
			return true
		}
	}
	return false
}

// Submit runs the full pipeline for one client operation: validate, transform
// against everything committed since the client's base version, commit, and
// fan out. The transformed operation and its assigned version come back as
// the author's acknowledgement.
func (c *Coordinator) Submit(ctx context.Context, connectionID, userID, documentID string, op ot.Operation) (AckPayload, error) {
	op.AuthorID = userID
	if op.IssuedAt.IsZero() {
		op.IssuedAt = c.clock().UTC()
	}
	if err := op.Validate(); err != nil {
		c.metrics.Count(metrics.CounterOperationsRejected, 1, map[string]string{"reason": "invalid"})
		return AckPayload{}, err
	}

	var committed document.Applied
	err := c.store.Mutate(ctx, documentID, func(doc *document.Doc) error {
		if op.BaseVersion > doc.Version() {
			return fmt.Errorf("%w: base %d, document at %d", ErrStaleBase, op.BaseVersion, doc.Version())
		}
		concurrent := doc.OperationsSince(op.BaseVersion, userID)
		transformed := ot.TransformAgainst(op, concurrent)
		if len(concurrent) > 0 {
			c.metrics.Count(metrics.CounterTransformsPerformed, int64(len(concurrent)), nil)
		}
		committed = doc.Append(transformed)

		// Fan-out stays inside the mutation boundary so remote editors
		// observe versions in commit order. Sends never block, so holding
		// the document lock here is safe.
		c.rooms.Broadcast(documentID, room.Event{
			Name: room.EventDocumentOperation,
			Payload: UpdatePayload{
				DocumentID: documentID,
				Operation:  committed.Operation,
				Version:    committed.Version,
			},
		}, connectionID)
		if c.publisher != nil {
			c.publisher.PublishApplied(events.AppliedOperation{
				DocumentID: documentID,
				Version:    committed.Version,
				Operation:  committed.Operation,
				AppliedAt:  committed.AppliedAt,
			})
		}
		return nil
	})
	if err != nil {
		if !errors.Is(err, ErrStaleBase) && !errors.Is(err, document.ErrNotFound) {
			c.metrics.Count(metrics.CounterOperationsRejected, 1, map[string]string{"reason": "commit"})
		}
		return AckPayload{}, err
	}

	c.metrics.Count(metrics.CounterOperationsApplied, 1, map[string]string{"document_id": documentID})
	c.touchDirectory(documentID)

	return AckPayload{
		DocumentID:  documentID,
		OperationID: committed.Operation.ID,
		Version:     committed.Version,
	}, nil
}

// touchDirectory bumps the registry's activity timestamp off the hot path.
func (c *Coordinator) touchDirectory(documentID string) {
	if c.directory == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.directory.TouchDocument(ctx, documentID); err != nil {
			c.logger.Debug("registry touch failed",
				zap.String("document_id", documentID), zap.Error(err))
		}
	}()
}

// SyncResult answers a catch-up request. When the requested range is still
// covered by the operation log, Operations carries the missing tail and
// Content is empty. Once the log has been truncated past the request, the
// full content is returned instead and the client resets to it.
type SyncResult struct {
	DocumentID string             `json:"documentId"`
	Version    int64              `json:"version"`
	Operations []document.Applied `json:"operations,omitempty"`
	Content    string             `json:"content,omitempty"`
	Reset      bool               `json:"reset"`
}

// Sync returns everything committed after sinceVersion.
func (c *Coordinator) Sync(ctx context.Context, documentID string, sinceVersion int64) (SyncResult, error) {
	var result SyncResult
	err := c.store.Mutate(ctx, documentID, func(doc *document.Doc) error {
		result.DocumentID = documentID
		result.Version = doc.Version()
		if sinceVersion >= doc.Version() {
			return nil
		}
		applied := doc.AppliedSince(sinceVersion)
		// A truncated log cannot replay the full gap; hand back the content.
		if int64(len(applied)) != doc.Version()-sinceVersion {
			result.Content = doc.Content()
			result.Reset = true
			return nil
		}
		result.Operations = applied
		return nil
	})
	if err != nil {
		return SyncResult{}, err
	}
	return result, nil
}
