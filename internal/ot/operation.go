// Package ot implements the operational-transform primitives used by the
// collaborative document engine: the operation model, application against
// document content, composition, and pairwise transformation.
package ot

import (
	"errors"
	"fmt"
	"time"
)

// Kind identifies the effect of an operation.
type Kind string

const (
	KindInsert Kind = "insert"
	KindDelete Kind = "delete"
	KindRetain Kind = "retain"
)

// ErrInvalidOperation indicates a malformed operation that must be rejected
// before it touches document state.
var ErrInvalidOperation = errors.New("ot: invalid operation")

// Operation is an atomic edit intent authored against a known document
// version. Position is a zero-based rune offset into the content the author
// observed. Exactly one of Content (insert) or Length (delete) is meaningful,
// matching Kind.
type Operation struct {
	ID          string    `json:"id"`
	Kind        Kind      `json:"kind"`
	Position    int       `json:"position"`
	Content     string    `json:"content,omitempty"`
	Length      int       `json:"length,omitempty"`
	AuthorID    string    `json:"authorId"`
	IssuedAt    time.Time `json:"issuedAt"`
	BaseVersion int64     `json:"baseVersion"`
}

// Validate checks the structural invariants of an operation. It is the only
// place that rejects an operation; Apply and Transform deliberately clamp
// instead so stale positions arriving from racing clients cannot fail
// mid-pipeline.
func (op Operation) Validate() error {
	if op.Position < 0 {
		return fmt.Errorf("%w: negative position %d", ErrInvalidOperation, op.Position)
	}
	switch op.Kind {
	case KindInsert:
		if op.Content == "" {
			return fmt.Errorf("%w: insert without content", ErrInvalidOperation)
		}
	case KindDelete:
		if op.Length <= 0 {
			return fmt.Errorf("%w: delete length %d", ErrInvalidOperation, op.Length)
		}
	case KindRetain:
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidOperation, op.Kind)
	}
	return nil
}

// Span returns the number of runes the operation covers: inserted runes for
// inserts, removed runes for deletes, zero for retains.
func (op Operation) Span() int {
	switch op.Kind {
	case KindInsert:
		return len([]rune(op.Content))
	case KindDelete:
		return op.Length
	default:
		return 0
	}
}

// Apply returns content with the operation applied. Out-of-range positions
// are clamped to the document bounds and oversized deletes are truncated, so
// Apply never fails. Empty inserts and zero-length deletes return content
// unchanged. Positions are rune offsets, never byte offsets.
func Apply(content string, op Operation) string {
	switch op.Kind {
	case KindInsert:
		return applyInsert(content, op)
	case KindDelete:
		return applyDelete(content, op)
	default:
		return content
	}
}

func applyInsert(content string, op Operation) string {
	if op.Content == "" {
		return content
	}
	runes := []rune(content)
	position := clamp(op.Position, 0, len(runes))
	return string(runes[:position]) + op.Content + string(runes[position:])
}

func applyDelete(content string, op Operation) string {
	if op.Length <= 0 {
		return content
	}
	runes := []rune(content)
	position := clamp(op.Position, 0, len(runes))
	length := op.Length
	if position+length > len(runes) {
		length = len(runes) - position
	}
	return string(runes[:position]) + string(runes[position+length:])
}

// Compose merges adjacent insert operations from the same author where the
// first operation's end offset equals the second's start offset, producing
// fewer, larger operations. Operations by different authors, or non-adjacent
// operations, pass through untouched and in order.
func Compose(ops []Operation) []Operation {
	if len(ops) < 2 {
		return ops
	}
	merged := make([]Operation, 0, len(ops))
	merged = append(merged, ops[0])
	for _, next := range ops[1:] {
		last := &merged[len(merged)-1]
		if mergeable(*last, next) {
			last.Content += next.Content
			continue
		}
		merged = append(merged, next)
	}
	return merged
}

func mergeable(first, second Operation) bool {
	if first.Kind != KindInsert || second.Kind != KindInsert {
		return false
	}
	if first.AuthorID != second.AuthorID {
		return false
	}
	return first.Position+first.Span() == second.Position
}

func clamp(value, low, high int) int {
	if value < low {
		return low
	}
	if value > high {
		return high
	}
	return value
}
