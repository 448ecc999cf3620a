package files

import (
	"context"
	"errors"
	"time"

	"github.com/Anuj5504/cloudbox/internal/models"
	"gorm.io/gorm"
)

var errRecordNotFound = errors.New("record not found")

// Store persists file records. Every query is scoped to an owner.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Transaction(ctx context.Context, fn func(tx *Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}

func (s *Store) owned(ctx context.Context, ownerID string) *gorm.DB {
	return s.db.WithContext(ctx).Model(&models.FileRecord{}).Where("user_id = ?", ownerID)
}

func (s *Store) Create(ctx context.Context, rec *models.FileRecord) error {
	return s.db.WithContext(ctx).Create(rec).Error
}

// Get returns errRecordNotFound when the id is unknown or belongs to
// another owner.
func (s *Store) Get(ctx context.Context, ownerID, id string) (*models.FileRecord, error) {
	var rec models.FileRecord
	err := s.owned(ctx, ownerID).Where("id = ?", id).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

type listFilter struct {
	ParentID       *string
	IncludeTrashed bool
}

func (s *Store) ListByParent(ctx context.Context, ownerID string, f listFilter) ([]models.FileRecord, error) {
	q := s.owned(ctx, ownerID)
	if f.ParentID == nil {
		q = q.Where("parent_id IS NULL")
	} else {
		q = q.Where("parent_id = ?", *f.ParentID)
	}
	if !f.IncludeTrashed {
		q = q.Where("is_trashed = ?", false)
	}

	records := []models.FileRecord{}
	err := q.Order("is_folder DESC").Order("name ASC").Find(&records).Error
	return records, err
}

func (s *Store) ListStarred(ctx context.Context, ownerID string) ([]models.FileRecord, error) {
	records := []models.FileRecord{}
	err := s.owned(ctx, ownerID).
		Where("is_starred = ? AND is_trashed = ?", true, false).
		Order("updated_at DESC").
		Find(&records).Error
	return records, err
}

// ListTrashRoots returns trashed records whose parent is not itself trashed,
// so a trashed folder appears once instead of once per descendant.
func (s *Store) ListTrashRoots(ctx context.Context, ownerID string) ([]models.FileRecord, error) {
	trashedParents := s.db.Model(&models.FileRecord{}).
		Select("id").
		Where("user_id = ? AND is_trashed = ?", ownerID, true)

	records := []models.FileRecord{}
	err := s.owned(ctx, ownerID).
		Where("is_trashed = ?", true).
		Where("parent_id IS NULL OR parent_id NOT IN (?)", trashedParents).
		Order("updated_at DESC").
		Find(&records).Error
	return records, err
}

// ToggleStar flips is_starred in a single statement so concurrent toggles
// cannot both read the same prior value.
func (s *Store) ToggleStar(ctx context.Context, ownerID, id string) error {
	res := s.owned(ctx, ownerID).Where("id = ?", id).Updates(map[string]interface{}{
		"is_starred": gorm.Expr("NOT is_starred"),
		"updated_at": time.Now(),
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errRecordNotFound
	}
	return nil
}

func (s *Store) SetTrashed(ctx context.Context, ownerID string, ids []string, trashed bool) error {
	if len(ids) == 0 {
		return nil
	}
	return s.owned(ctx, ownerID).Where("id IN ?", ids).Updates(map[string]interface{}{
		"is_trashed": trashed,
		"updated_at": time.Now(),
	}).Error
}

func (s *Store) SetParent(ctx context.Context, ownerID, id string, parentID *string) error {
	return s.owned(ctx, ownerID).Where("id = ?", id).Updates(map[string]interface{}{
		"parent_id":  parentID,
		"updated_at": time.Now(),
	}).Error
}

func (s *Store) Rename(ctx context.Context, ownerID, id, name string) error {
	return s.owned(ctx, ownerID).Where("id = ?", id).Updates(map[string]interface{}{
		"name":       name,
		"updated_at": time.Now(),
	}).Error
}

func (s *Store) Delete(ctx context.Context, ownerID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).
		Where("user_id = ? AND id IN ?", ownerID, ids).
		Delete(&models.FileRecord{}).Error
}

// Descendants returns every record below id, breadth first.
func (s *Store) Descendants(ctx context.Context, ownerID, id string) ([]models.FileRecord, error) {
	var out []models.FileRecord
	err := s.walk(ctx, ownerID, id, func(level []models.FileRecord) {
		out = append(out, level...)
	})
	return out, err
}

// SubtreeHeight is the number of levels below id; 0 for an empty folder or
// a file.
func (s *Store) SubtreeHeight(ctx context.Context, ownerID, id string) (int, error) {
	height := 0
	err := s.walk(ctx, ownerID, id, func([]models.FileRecord) { height++ })
	return height, err
}

// walk visits the subtree below id one level at a time until no folders are
// left. Each record is visited once, so a corrupt parent cycle still ends.
func (s *Store) walk(ctx context.Context, ownerID, id string, visit func(level []models.FileRecord)) error {
	seen := map[string]bool{id: true}
	frontier := []string{id}

	for len(frontier) > 0 {
		var rows []models.FileRecord
		if err := s.owned(ctx, ownerID).Where("parent_id IN ?", frontier).Find(&rows).Error; err != nil {
			return err
		}
		frontier = nil
		level := rows[:0]
		for _, rec := range rows {
			if seen[rec.ID] {
				continue
			}
			seen[rec.ID] = true
			level = append(level, rec)
			if rec.IsFolder {
				frontier = append(frontier, rec.ID)
			}
		}
		if len(level) > 0 {
			visit(level)
		}
	}
	return nil
}

// FolderNameTaken reports whether a live folder with name already exists
// under parentID, ignoring excludeID.
func (s *Store) FolderNameTaken(ctx context.Context, ownerID string, parentID *string, name, excludeID string) (bool, error) {
	q := s.owned(ctx, ownerID).Where("is_folder = ? AND is_trashed = ? AND name = ?", true, false, name)
	if parentID == nil {
		q = q.Where("parent_id IS NULL")
	} else {
		q = q.Where("parent_id = ?", *parentID)
	}
	if excludeID != "" {
		q = q.Where("id <> ?", excludeID)
	}
	var count int64
	err := q.Count(&count).Error
	return count > 0, err
}

// UsedBytes sums the size of live files.
func (s *Store) UsedBytes(ctx context.Context, ownerID string) (int64, error) {
	var used int64
	err := s.owned(ctx, ownerID).
		Where("is_folder = ? AND is_trashed = ?", false, false).
		Select("COALESCE(SUM(size), 0)").
		Scan(&used).Error
	return used, err
}
