package files

import (
	"context"
	"errors"

	"github.com/Anuj5504/cloudbox/internal/apperr"
	"github.com/Anuj5504/cloudbox/internal/models"
)

// ListChildren returns ownerID's live records directly under parentID, or the
// root level when parentID is nil. The parent itself is not looked up.
func (s *Service) ListChildren(ctx context.Context, callerID, ownerID string, parentID *string) ([]models.FileRecord, error) {
	if err := authorize(callerID, ownerID); err != nil {
		return nil, err
	}
	records, err := s.store.ListByParent(ctx, ownerID, listFilter{ParentID: parentID})
	if err != nil {
		return nil, apperr.Upstream("failed to list files", err)
	}
	return records, nil
}

// resolveParent loads the folder a new or moved record will live in.
func (s *Service) resolveParent(ctx context.Context, store *Store, ownerID string, parentID *string) (*models.FileRecord, error) {
	if parentID == nil {
		return nil, nil
	}
	parent, err := store.Get(ctx, ownerID, *parentID)
	if errors.Is(err, errRecordNotFound) {
		return nil, apperr.New(apperr.KindNotFound, "parent folder not found")
	}
	if err != nil {
		return nil, apperr.Upstream("failed to load parent folder", err)
	}
	if !parent.IsFolder || parent.IsTrashed {
		return nil, apperr.New(apperr.KindNotFound, "parent folder not found")
	}
	return parent, nil
}

// checkAncestry walks from parent up to the root. It fails when movingID
// appears among the ancestors (the move would create a cycle) or when a
// record placed under parent, carrying height levels below it, would sit
// deeper than the configured limit.
func (s *Service) checkAncestry(ctx context.Context, store *Store, ownerID string, parent *models.FileRecord, movingID string, height int) error {
	depth := 1 + height
	for cur := parent; cur != nil; {
		if movingID != "" && cur.ID == movingID {
			return apperr.InvalidInput("cannot move a folder into itself or one of its subfolders")
		}
		depth++
		if depth > s.opts.MaxDepth {
			break
		}
		if cur.ParentID == nil {
			break
		}
		next, err := store.Get(ctx, ownerID, *cur.ParentID)
		if errors.Is(err, errRecordNotFound) {
			break
		}
		if err != nil {
			return apperr.Upstream("failed to load folder", err)
		}
		cur = next
	}
	if depth > s.opts.MaxDepth {
		return apperr.InvalidInput("folder hierarchy is too deep")
	}
	return nil
}
