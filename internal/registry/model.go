// Package registry keeps durable document metadata: titles, owners, and
// lifecycle timestamps. Document content lives in the key-value store; the
// registry is what document listings and access checks read.
package registry

import (
	"errors"
	"fmt"
	"strings"
)

const maxIdentifierLength = 190

var (
	// ErrInvalidDocumentID indicates an empty or oversized document identifier.
	ErrInvalidDocumentID = errors.New("registry: invalid document id")
	// ErrInvalidTitle indicates an empty or oversized title.
	ErrInvalidTitle = errors.New("registry: invalid title")
	// ErrDocumentNotFound indicates the document has no registry record.
	ErrDocumentNotFound = errors.New("registry: document not found")
)

// DocumentID is a validated document identifier.
type DocumentID string

// NewDocumentID validates raw input and returns a DocumentID.
func NewDocumentID(rawInput string) (DocumentID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidDocumentID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidDocumentID, maxIdentifierLength)
	}
	return DocumentID(trimmed), nil
}

// String returns the underlying string identifier.
func (id DocumentID) String() string {
	return string(id)
}

// Record models persisted document metadata.
type Record struct {
	DocumentID       string `gorm:"column:document_id;primaryKey;size:190;not null"`
	Title            string `gorm:"column:title;size:190;not null"`
	OwnerID          string `gorm:"column:owner_id;size:190;not null;index:idx_documents_owner_updated,priority:1"`
	Kind             string `gorm:"column:kind;size:32;not null;default:'document'"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null"`
	UpdatedAtSeconds int64  `gorm:"column:updated_at_s;not null;index:idx_documents_owner_updated,priority:2"`
	IsArchived       bool   `gorm:"column:is_archived;not null;default:false"`
}

// TableName provides the explicit table binding for GORM.
func (Record) TableName() string {
	return "documents"
}

// IDProvider issues new document identifiers.
type IDProvider interface {
	NewID() (string, error)
}
