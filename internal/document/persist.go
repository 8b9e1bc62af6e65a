package document

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/Aryan-Dev26/TeamFlow-sub000/internal/cache"
)

// Snapshot hash fields stored in the key-value collaborator.
const (
	fieldContent   = "content"
	fieldVersion   = "version"
	fieldUpdatedAt = "updated_at"
	fieldOps       = "ops"
)

// persistAsync schedules a snapshot write without blocking the mutation
// path. Broadcast responsiveness wins over synchronous durability; a failed
// write leaves the document dirty and the next mutation retries it.
func (s *Store) persistAsync(st *state) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		if err := s.persist(ctx, st); err != nil {
			s.logger.Warn("snapshot write failed, will retry on next mutation",
				zap.String("document_id", st.id), zap.Error(err))
		}
	}()
}

func (s *Store) persist(ctx context.Context, st *state) error {
	st.mu.Lock()
	id := st.id
	content := st.content
	version := st.version
	updatedAt := st.lastModified
	logCopy := make([]Applied, len(st.log))
	copy(logCopy, st.log)
	st.mu.Unlock()

	opsJSON, err := json.Marshal(logCopy)
	if err != nil {
		return fmt.Errorf("document: encode log: %w", err)
	}
	fields := map[string]string{
		fieldContent:   content,
		fieldVersion:   strconv.FormatInt(version, 10),
		fieldUpdatedAt: updatedAt.UTC().Format(time.RFC3339Nano),
		fieldOps:       string(opsJSON),
	}
	if err := s.kv.HSet(ctx, cache.DocumentKey(id), fields, s.snapshotTTL); err != nil {
		return err
	}

	st.mu.Lock()
	if st.version == version {
		st.dirty = false
	}
	st.mu.Unlock()
	return nil
}

// restore loads a persisted snapshot into a fresh in-memory state and
// registers it in the arena. Returns ErrNotFound when no snapshot exists.
func (s *Store) restore(ctx context.Context, id string) (*state, error) {
	fields, err := s.kv.HGetAll(ctx, cache.DocumentKey(id))
	if errors.Is(err, cache.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	st := s.newState(id)
	st.content = fields[fieldContent]
	if raw, ok := fields[fieldVersion]; ok {
		version, parseErr := strconv.ParseInt(raw, 10, 64)
		if parseErr != nil {
			return nil, fmt.Errorf("document: corrupt version field %q: %w", raw, parseErr)
		}
		st.version = version
	}
	if raw, ok := fields[fieldUpdatedAt]; ok {
		if updatedAt, parseErr := time.Parse(time.RFC3339Nano, raw); parseErr == nil {
			st.lastModified = updatedAt
		}
	}
	if raw, ok := fields[fieldOps]; ok && raw != "" {
		if err := json.Unmarshal([]byte(raw), &st.log); err != nil {
			// A corrupt log only narrows how far back transforms reach; the
			// content and version remain authoritative.
			s.logger.Warn("discarding corrupt persisted operation log",
				zap.String("document_id", id), zap.Error(err))
			st.log = nil
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing := s.docs[id]; existing != nil {
		return existing, nil
	}
	s.docs[id] = st
	return st, nil
}
