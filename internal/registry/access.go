package registry

import (
	"context"
	"errors"
)

// Access adapts the registry for collaboration-layer join checks and
// activity touches, working from raw wire identifiers.
type Access struct {
	service *Service
}

// NewAccess wraps a Service.
func NewAccess(service *Service) *Access {
	return &Access{service: service}
}

// AuthorizeJoin reports whether the user may enter the document room. Ids
// without a registry record are open collaborative spaces; archived
// documents are closed to everyone.
func (a *Access) AuthorizeJoin(ctx context.Context, userID, documentID string) (bool, error) {
	id, err := NewDocumentID(documentID)
	if err != nil {
		return false, err
	}
	record, err := a.service.GetDocument(ctx, id)
	if errors.Is(err, ErrDocumentNotFound) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return !record.IsArchived, nil
}

// TouchDocument advances the document's activity timestamp. Unregistered
// ids are a no-op.
func (a *Access) TouchDocument(ctx context.Context, documentID string) error {
	id, err := NewDocumentID(documentID)
	if err != nil {
		return err
	}
	return a.service.TouchDocument(ctx, id)
}
