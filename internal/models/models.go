package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const FolderType = "folder"

// FileRecord is one file or folder row. Folders reuse the table with
// IsFolder set and Size zero.
type FileRecord struct {
	ID           string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	Name         string    `gorm:"not null" json:"name"`
	Path         string    `gorm:"not null" json:"path"`
	Size         int64     `gorm:"not null;default:0" json:"size"`
	Type         string    `gorm:"not null" json:"type"`
	FileURL      string    `gorm:"not null" json:"fileUrl"`
	ThumbnailURL *string   `json:"thumbnailUrl"`
	UserID       string    `gorm:"not null;index:idx_files_owner_parent,priority:1" json:"userId"`
	ParentID     *string   `gorm:"type:varchar(36);index:idx_files_owner_parent,priority:2" json:"parentId"`
	IsFolder     bool      `gorm:"not null;default:false" json:"isFolder"`
	IsStarred    bool      `gorm:"not null;default:false" json:"isStarred"`
	IsTrashed    bool      `gorm:"not null;default:false;index" json:"isTrashed"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

func (FileRecord) TableName() string {
	return "files"
}

func (f *FileRecord) BeforeCreate(tx *gorm.DB) error {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	return nil
}

// IsRoot reports whether the record sits at the owner's root level.
func (f *FileRecord) IsRoot() bool {
	return f.ParentID == nil
}
