package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
)

// ServiceConfig wires the registry's dependencies.
type ServiceConfig struct {
	Database   *gorm.DB
	IDProvider IDProvider
	Clock      func() time.Time
}

// Service provides document metadata persistence.
type Service struct {
	db    *gorm.DB
	ids   IDProvider
	clock func() time.Time
}

// NewService validates configuration and returns a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("registry: database is required")
	}
	ids := cfg.IDProvider
	if ids == nil {
		ids = NewUUIDProvider()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Service{db: cfg.Database, ids: ids, clock: clock}, nil
}

// CreateDocument registers a new document and returns its record.
func (s *Service) CreateDocument(ctx context.Context, ownerID, title, kind string) (Record, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return Record{}, fmt.Errorf("%w: empty", ErrInvalidTitle)
	}
	if len(title) > maxIdentifierLength {
		return Record{}, fmt.Errorf("%w: exceeds %d characters", ErrInvalidTitle, maxIdentifierLength)
	}
	if kind == "" {
		kind = "document"
	}
	id, err := s.ids.NewID()
	if err != nil {
		return Record{}, fmt.Errorf("registry: issue id: %w", err)
	}

	now := s.clock().UTC().Unix()
	record := Record{
		DocumentID:       id,
		Title:            title,
		OwnerID:          ownerID,
		Kind:             kind,
		CreatedAtSeconds: now,
		UpdatedAtSeconds: now,
	}
	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		return Record{}, fmt.Errorf("registry: create document: %w", err)
	}
	return record, nil
}

// GetDocument loads one record by id.
func (s *Service) GetDocument(ctx context.Context, documentID DocumentID) (Record, error) {
	var record Record
	err := s.db.WithContext(ctx).
		Where("document_id = ?", documentID.String()).
		Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Record{}, fmt.Errorf("%w: %s", ErrDocumentNotFound, documentID)
	}
	if err != nil {
		return Record{}, fmt.Errorf("registry: get document: %w", err)
	}
	return record, nil
}

// ListByOwner returns the owner's documents, most recently updated first.
func (s *Service) ListByOwner(ctx context.Context, ownerID string) ([]Record, error) {
	var records []Record
	err := s.db.WithContext(ctx).
		Where("owner_id = ? AND is_archived = ?", ownerID, false).
		Order("updated_at_s DESC").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("registry: list documents: %w", err)
	}
	return records, nil
}

// TouchDocument advances the updated timestamp after an edit burst.
func (s *Service) TouchDocument(ctx context.Context, documentID DocumentID) error {
	result := s.db.WithContext(ctx).
		Model(&Record{}).
		Where("document_id = ?", documentID.String()).
		Update("updated_at_s", s.clock().UTC().Unix())
	if result.Error != nil {
		return fmt.Errorf("registry: touch document: %w", result.Error)
	}
	return nil
}

// RenameDocument updates the title.
func (s *Service) RenameDocument(ctx context.Context, documentID DocumentID, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return fmt.Errorf("%w: empty", ErrInvalidTitle)
	}
	result := s.db.WithContext(ctx).
		Model(&Record{}).
		Where("document_id = ?", documentID.String()).
		Updates(map[string]interface{}{
			"title":        title,
			"updated_at_s": s.clock().UTC().Unix(),
		})
	if result.Error != nil {
		return fmt.Errorf("registry: rename document: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrDocumentNotFound, documentID)
	}
	return nil
}

// ArchiveDocument hides the document from listings without deleting it.
func (s *Service) ArchiveDocument(ctx context.Context, documentID DocumentID) error {
	result := s.db.WithContext(ctx).
		Model(&Record{}).
		Where("document_id = ?", documentID.String()).
		Update("is_archived", true)
	if result.Error != nil {
		return fmt.Errorf("registry: archive document: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrDocumentNotFound, documentID)
	}
	return nil
}
