package whiteboard

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/Aryan-Dev26/TeamFlow-sub000/internal/cache"
)

const (
	fieldElements  = "elements"
	fieldOrder     = "order"
	fieldUpdatedAt = "updated_at"
)

func (s *Service) persistAsync(st *boardState) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		if err := s.persist(ctx, st); err != nil {
			s.logger.Warn("board snapshot write failed",
				zap.String("board_id", st.id), zap.Error(err))
		}
	}()
}

func (s *Service) persist(ctx context.Context, st *boardState) error {
	st.mu.Lock()
	id := st.id
	elementsCopy := make(map[string]Element, len(st.elements))
	for key, element := range st.elements {
		elementsCopy[key] = element
	}
	orderCopy := append([]string(nil), st.order...)
	st.mu.Unlock()

	encodedElements, err := json.Marshal(elementsCopy)
	if err != nil {
		return err
	}
	encodedOrder, err := json.Marshal(orderCopy)
	if err != nil {
		return err
	}
	fields := map[string]string{
		fieldElements:  string(encodedElements),
		fieldOrder:     string(encodedOrder),
		fieldUpdatedAt: s.clock().UTC().Format(time.RFC3339Nano),
	}
	if err := s.kv.HSet(ctx, cache.WhiteboardKey(id), fields, s.snapshotTTL); err != nil {
		return err
	}
	st.mu.Lock()
	st.dirty = false
	st.mu.Unlock()
	return nil
}

// restore loads a board snapshot, falling back to a fresh board when none
// exists or the snapshot cannot be read.
func (s *Service) restore(ctx context.Context, boardID string) *boardState {
	fresh := &boardState{id: boardID, elements: make(map[string]Element)}
	fields, err := s.kv.HGetAll(ctx, cache.WhiteboardKey(boardID))
	if err != nil {
		if !errors.Is(err, cache.ErrNotFound) {
			s.logger.Warn("board snapshot read failed, starting fresh",
				zap.String("board_id", boardID), zap.Error(err))
		}
		return fresh
	}

	var elements map[string]Element
	if err := json.Unmarshal([]byte(fields[fieldElements]), &elements); err != nil {
		s.logger.Warn("discarding corrupt board snapshot",
			zap.String("board_id", boardID), zap.Error(err))
		return fresh
	}
	var order []string
	if err := json.Unmarshal([]byte(fields[fieldOrder]), &order); err != nil || len(order) != len(elements) {
		// Rebuild a stable order when the stored one is missing or inconsistent.
		order = order[:0]
		for id := range elements {
			order = append(order, id)
		}
		sort.Strings(order)
	}
	return &boardState{id: boardID, elements: elements, order: order}
}
