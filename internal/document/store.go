// Package document holds the authoritative server-side state for every live
// collaborative document: content, version, the bounded operation log, and
// participant accounting. State lives in memory while a document is active
// and round-trips through the key-value collaborator for cold starts and
// recovery.
package document

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Aryan-Dev26/TeamFlow-sub000/internal/cache"
	"github.com/Aryan-Dev26/TeamFlow-sub000/internal/ot"
)

const (
	defaultLogLimit    = 512
	defaultSnapshotTTL = 30 * 24 * time.Hour
	persistTimeout     = 5 * time.Second
)

// ErrNotFound indicates the document exists neither in memory nor in the
// key-value store.
var ErrNotFound = errors.New("document: not found")

// Applied is an operation as accepted into a document's log, carrying the
// version assigned at acceptance.
type Applied struct {
	Operation ot.Operation `json:"operation"`
	Version   int64        `json:"version"`
	AppliedAt time.Time    `json:"appliedAt"`
}

// Snapshot is a point-in-time view of a document handed to callers outside
// the mutation boundary.
type Snapshot struct {
	ID           string
	Content      string
	Version      int64
	Participants []string
	LastModified time.Time
}

type state struct {
	mu           sync.Mutex
	id           string
	content      string
	version      int64
	log          []Applied
	participants map[string]int
	lastModified time.Time
	// dirty marks a snapshot write owed to the key-value store. It survives a
	// failed write so the next mutation retries it.
	dirty bool
	// gone marks state evicted from the arena. A caller holding a stale
	// pointer must drop it and re-attach rather than mutate an orphan.
	gone bool
}

// StoreConfig describes the dependencies for the document arena.
type StoreConfig struct {
	KeyValue    cache.KeyValue
	Logger      *zap.Logger
	Clock       func() time.Time
	LogLimit    int
	SnapshotTTL time.Duration
}

// Store is the two-tier document arena: an in-memory index of live documents
// with an explicit miss path to the key-value collaborator.
type Store struct {
	mu   sync.RWMutex
	docs map[string]*state

	kv          cache.KeyValue
	logger      *zap.Logger
	clock       func() time.Time
	logLimit    int
	snapshotTTL time.Duration
}

// NewStore constructs the arena with defaults applied.
func NewStore(cfg StoreConfig) *Store {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logLimit := cfg.LogLimit
	if logLimit <= 0 {
		logLimit = defaultLogLimit
	}
	ttl := cfg.SnapshotTTL
	if ttl <= 0 {
		ttl = defaultSnapshotTTL
	}
	kv := cfg.KeyValue
	if kv == nil {
		kv = cache.NewMemoryKeyValue()
	}
	return &Store{
		docs:        make(map[string]*state),
		kv:          kv,
		logger:      logger,
		clock:       clock,
		logLimit:    logLimit,
		snapshotTTL: ttl,
	}
}

// Create registers a document with the given initial content. Non-empty
// initial content is recorded as the first logged operation so the replay
// invariant holds from version zero. Creating an id that is already live
// returns the existing state untouched.
func (s *Store) Create(ctx context.Context, id, initialContent, authorID string) (Snapshot, error) {
	if id == "" {
		return Snapshot{}, fmt.Errorf("document: empty id")
	}
	st, restored := s.attach(ctx, id)
	defer st.mu.Unlock()
	if restored || st.version > 0 || st.content != "" {
		return snapshotLocked(st), nil
	}
	if initialContent != "" {
		seed := ot.Operation{
			Kind:        ot.KindInsert,
			Position:    0,
			Content:     initialContent,
			AuthorID:    authorID,
			IssuedAt:    s.clock().UTC(),
			BaseVersion: 0,
		}
		s.appendLocked(st, seed)
		s.persistAsync(st)
	}
	return snapshotLocked(st), nil
}

// Get returns the document state, restoring from the key-value store on an
// in-memory miss. It never creates fresh state; unknown ids fail with
// ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (Snapshot, error) {
	s.mu.RLock()
	st := s.docs[id]
	s.mu.RUnlock()
	if st == nil {
		restored, err := s.restore(ctx, id)
		if err != nil {
			return Snapshot{}, err
		}
		st = restored
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return snapshotLocked(st), nil
}

// Doc is the view of one document handed to a Mutate callback. Its methods
// are only valid for the duration of the callback.
type Doc struct {
	store *Store
	st    *state
}

// Content returns the current document text.
func (d *Doc) Content() string { return d.st.content }

// Version returns the number of operations ever accepted.
func (d *Doc) Version() int64 { return d.st.version }

// OperationsSince returns the logged operations accepted after base, oldest
// first, excluding those authored by excludeAuthor. Operations older than the
// retained window are already baked into the content and cannot be returned.
func (d *Doc) OperationsSince(base int64, excludeAuthor string) []ot.Operation {
	var out []ot.Operation
	for _, entry := range d.st.log {
		if entry.Version <= base {
			continue
		}
		if excludeAuthor != "" && entry.Operation.AuthorID == excludeAuthor {
			continue
		}
		out = append(out, entry.Operation)
	}
	return out
}

// AppliedSince returns log entries with their assigned versions, for client
// catch-up.
func (d *Doc) AppliedSince(base int64) []Applied {
	var out []Applied
	for _, entry := range d.st.log {
		if entry.Version > base {
			out = append(out, entry)
		}
	}
	return out
}

// Append applies the operation to the content, advances the version by
// exactly one, and records the entry in the bounded log.
func (d *Doc) Append(op ot.Operation) Applied {
	return d.store.appendLocked(d.st, op)
}

// Mutate runs fn with exclusive access to the document, restoring it from
// the key-value store if needed. Per-document mutation is serialized here;
// operations on different documents proceed in parallel. A successful
// mutation schedules an asynchronous snapshot write that never blocks the
// caller.
func (s *Store) Mutate(ctx context.Context, id string, fn func(*Doc) error) error {
	var st *state
	for {
		s.mu.RLock()
		st = s.docs[id]
		s.mu.RUnlock()
		if st == nil {
			restored, err := s.restore(ctx, id)
			if err != nil {
				return err
			}
			st = restored
		}
		st.mu.Lock()
		if !st.gone {
			break
		}
		st.mu.Unlock()
	}
	defer st.mu.Unlock()
	if err := fn(&Doc{store: s, st: st}); err != nil {
		return err
	}
	if st.dirty {
		s.persistAsync(st)
	}
	return nil
}

// Join attaches a participant to the document, creating fresh empty state or
// restoring a snapshot on first access.
func (s *Store) Join(ctx context.Context, id, userID string) (Snapshot, error) {
	st, _ := s.attach(ctx, id)
	defer st.mu.Unlock()
	st.participants[userID]++
	st.lastModified = s.clock().UTC()
	return snapshotLocked(st), nil
}

// Leave detaches one participant entry. A user joined from several
// connections stays a participant until the last one leaves.
func (s *Store) Leave(id, userID string) int {
	s.mu.RLock()
	st := s.docs[id]
	s.mu.RUnlock()
	if st == nil {
		return 0
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if count, ok := st.participants[userID]; ok {
		if count <= 1 {
			delete(st.participants, userID)
		} else {
			st.participants[userID] = count - 1
		}
	}
	// Restart the idle clock so eviction measures from the last departure,
	// not the last edit.
	st.lastModified = s.clock().UTC()
	return len(st.participants)
}

// SaveSnapshot synchronously writes the document snapshot to the key-value
// store. Used on idle eviction and explicit saves; the mutation path relies
// on the asynchronous write instead.
func (s *Store) SaveSnapshot(ctx context.Context, id string) error {
	s.mu.RLock()
	st := s.docs[id]
	s.mu.RUnlock()
	if st == nil {
		return ErrNotFound
	}
	return s.persist(ctx, st)
}

// EvictIdle snapshots and drops documents that have had zero participants
// and no mutation for at least idleFor. Eviction removes memory state only;
// the persisted snapshot remains restorable.
func (s *Store) EvictIdle(ctx context.Context, idleFor time.Duration) int {
	cutoff := s.clock().UTC().Add(-idleFor)

	s.mu.Lock()
	candidates := make([]*state, 0)
	for _, st := range s.docs {
		candidates = append(candidates, st)
	}
	s.mu.Unlock()

	evicted := 0
	for _, st := range candidates {
		st.mu.Lock()
		idle := len(st.participants) == 0 && st.lastModified.Before(cutoff)
		dirty := st.dirty
		st.mu.Unlock()
		if !idle {
			continue
		}
		if dirty {
			if err := s.persist(ctx, st); err != nil {
				s.logger.Warn("skipping eviction, snapshot write failed",
					zap.String("document_id", st.id), zap.Error(err))
				continue
			}
		}
		// The snapshot write dropped the lock, so idleness must hold again
		// at the moment of removal or a fresh join would be lost.
		s.mu.Lock()
		st.mu.Lock()
		if len(st.participants) == 0 && st.lastModified.Before(cutoff) {
			st.gone = true
			delete(s.docs, st.id)
			evicted++
		}
		st.mu.Unlock()
		s.mu.Unlock()
	}
	return evicted
}

// attach returns the live state for id locked and guaranteed current: a
// state evicted between lookup and lock acquisition is dropped and the
// lookup retried. The caller owns st.mu on return.
func (s *Store) attach(ctx context.Context, id string) (*state, bool) {
	for {
		st, restored := s.lookupOrAttach(ctx, id)
		st.mu.Lock()
		if !st.gone {
			return st, restored
		}
		st.mu.Unlock()
	}
}

// lookupOrAttach returns the live state for id, restoring a persisted
// snapshot if one exists, or attaching fresh empty state. The second return
// reports whether a persisted snapshot was restored.
func (s *Store) lookupOrAttach(ctx context.Context, id string) (*state, bool) {
	s.mu.RLock()
	st := s.docs[id]
	s.mu.RUnlock()
	if st != nil {
		return st, false
	}
	restored, err := s.restore(ctx, id)
	if err == nil {
		return restored, true
	}
	if !errors.Is(err, ErrNotFound) {
		// Degraded mode: the store is unreachable, so the document starts
		// fresh rather than failing the join. The snapshot write retries on
		// the next mutation.
		s.logger.Warn("snapshot restore failed, starting fresh state",
			zap.String("document_id", id), zap.Error(err))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if st = s.docs[id]; st != nil {
		return st, false
	}
	st = s.newState(id)
	s.docs[id] = st
	return st, false
}

func (s *Store) newState(id string) *state {
	return &state{
		id:           id,
		participants: make(map[string]int),
		lastModified: s.clock().UTC(),
	}
}

func (s *Store) appendLocked(st *state, op ot.Operation) Applied {
	st.content = ot.Apply(st.content, op)
	st.version++
	entry := Applied{Operation: op, Version: st.version, AppliedAt: s.clock().UTC()}
	st.log = append(st.log, entry)
	if len(st.log) > s.logLimit {
		st.log = st.log[len(st.log)-s.logLimit:]
	}
	st.lastModified = entry.AppliedAt
	st.dirty = true
	return entry
}

func snapshotLocked(st *state) Snapshot {
	participants := make([]string, 0, len(st.participants))
	for userID := range st.participants {
		participants = append(participants, userID)
	}
	return Snapshot{
		ID:           st.id,
		Content:      st.content,
		Version:      st.version,
		Participants: participants,
		LastModified: st.lastModified,
	}
}
