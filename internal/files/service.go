// Package files implements the file and folder metadata service: ownership
// checks, hierarchy listing, uploads and the star and trash lifecycle.
package files

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"unicode/utf8"

	"github.com/Anuj5504/cloudbox/internal/apperr"
	"github.com/Anuj5504/cloudbox/internal/models"
	"github.com/Anuj5504/cloudbox/internal/storage"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	maxNameLength = 255
	sniffLength   = 3072

	// maxRestoreSuffix bounds the "name (n)" search on restore.
	maxRestoreSuffix = 100
)

type Options struct {
	RootFolder     string
	MaxUploadBytes int64 // 0 disables the limit
	MaxDepth       int
	QuotaBytes     int64 // 0 disables the quota
}

type Service struct {
	store    *Store
	provider storage.Provider
	opts     Options
	log      *zap.Logger
}

func NewService(store *Store, provider storage.Provider, opts Options, log *zap.Logger) *Service {
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = 64
	}
	if opts.RootFolder == "" {
		opts.RootFolder = "cloudbox"
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{store: store, provider: provider, opts: opts, log: log}
}

// Get returns one of the caller's records.
func (s *Service) Get(ctx context.Context, callerID, fileID string) (*models.FileRecord, error) {
	if err := requireCaller(callerID); err != nil {
		return nil, err
	}
	return s.load(ctx, s.store, callerID, fileID)
}

func (s *Service) load(ctx context.Context, store *Store, ownerID, fileID string) (*models.FileRecord, error) {
	if fileID == "" {
		return nil, apperr.InvalidInput("file id is required")
	}
	rec, err := store.Get(ctx, ownerID, fileID)
	if errors.Is(err, errRecordNotFound) {
		return nil, apperr.NotFound()
	}
	if err != nil {
		return nil, apperr.Upstream("failed to load file", err)
	}
	return rec, nil
}

type CreateFileInput struct {
	OwnerID  string
	ParentID *string
	Name     string
	MimeType string
	Size     int64
	// Body is nil when the request carried no file.
	Body io.Reader
}

// CreateFile validates an upload, hands the bytes to the storage provider and
// records the result. Content checks run before any provider or database call.
func (s *Service) CreateFile(ctx context.Context, callerID string, in CreateFileInput) (*models.FileRecord, error) {
	if err := authorize(callerID, in.OwnerID); err != nil {
		return nil, err
	}
	if in.Body == nil {
		return nil, apperr.InvalidInput("no file provided")
	}

	body := in.Body
	mimeType := normalizeMime(in.MimeType)
	if mimeType == "" || mimeType == "application/octet-stream" {
		head := make([]byte, sniffLength)
		n, err := io.ReadFull(body, head)
		if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, apperr.InvalidInput("failed to read uploaded file")
		}
		head = head[:n]
		mimeType = normalizeMime(mimetype.Detect(head).String())
		body = io.MultiReader(bytes.NewReader(head), body)
	}
	if !allowedMime(mimeType) {
		return nil, apperr.InvalidInput("invalid file type, only images and PDFs are allowed")
	}

	name, err := cleanName(in.Name)
	if err != nil {
		return nil, err
	}
	ext, err := extension(name)
	if err != nil {
		return nil, err
	}
	if in.Size < 0 {
		return nil, apperr.InvalidInput("invalid file size")
	}
	if s.opts.MaxUploadBytes > 0 && in.Size > s.opts.MaxUploadBytes {
		return nil, apperr.InvalidInput(fmt.Sprintf("file exceeds the %d byte upload limit", s.opts.MaxUploadBytes))
	}

	parent, err := s.resolveParent(ctx, s.store, in.OwnerID, in.ParentID)
	if err != nil {
		return nil, err
	}
	if err := s.checkAncestry(ctx, s.store, in.OwnerID, parent, "", 0); err != nil {
		return nil, err
	}
	if err := s.checkQuota(ctx, s.store, in.OwnerID, in.Size); err != nil {
		return nil, err
	}

	uploaded, err := s.provider.Upload(ctx, storage.UploadInput{
		Folder:      s.uploadFolder(in.OwnerID, in.ParentID),
		FileName:    uuid.NewString() + "." + ext,
		ContentType: mimeType,
		Size:        in.Size,
		Body:        body,
	})
	if err != nil {
		return nil, apperr.Upstream("failed to upload file to storage", err)
	}

	rec := &models.FileRecord{
		Name:         name,
		Path:         uploaded.Path,
		Size:         in.Size,
		Type:         mimeType,
		FileURL:      uploaded.URL,
		ThumbnailURL: uploaded.ThumbnailURL,
		UserID:       in.OwnerID,
		ParentID:     in.ParentID,
	}
	// Usage is checked again with the insert so uploads racing past the first
	// check cannot both land.
	err = s.store.Transaction(ctx, func(tx *Store) error {
		if err := s.checkQuota(ctx, tx, in.OwnerID, in.Size); err != nil {
			return err
		}
		if err := tx.Create(ctx, rec); err != nil {
			return apperr.Upstream("failed to save file record", err)
		}
		return nil
	})
	if err != nil {
		s.discardObject(uploaded.Path, in.OwnerID)
		return nil, err
	}

	s.log.Info("File uploaded",
		zap.String("user_id", rec.UserID),
		zap.String("file_id", rec.ID),
		zap.String("path", rec.Path),
		zap.Int64("size", rec.Size),
	)
	return rec, nil
}

func (s *Service) checkQuota(ctx context.Context, store *Store, ownerID string, size int64) error {
	if s.opts.QuotaBytes <= 0 {
		return nil
	}
	used, err := store.UsedBytes(ctx, ownerID)
	if err != nil {
		return apperr.Upstream("failed to compute storage usage", err)
	}
	if used+size > s.opts.QuotaBytes {
		return apperr.InvalidInput("storage quota exceeded")
	}
	return nil
}

// discardObject removes an object whose record could not be written.
func (s *Service) discardObject(objPath, ownerID string) {
	if err := s.provider.Delete(context.Background(), objPath); err != nil {
		s.log.Error("Orphaned storage object",
			zap.String("user_id", ownerID),
			zap.String("path", objPath),
			zap.Error(err),
		)
	}
}

func (s *Service) uploadFolder(ownerID string, parentID *string) string {
	if parentID != nil {
		return path.Join("/", s.opts.RootFolder, ownerID, "folder", *parentID)
	}
	return path.Join("/", s.opts.RootFolder, ownerID)
}

type CreateFolderInput struct {
	OwnerID  string
	ParentID *string
	Name     string
}

func (s *Service) CreateFolder(ctx context.Context, callerID string, in CreateFolderInput) (*models.FileRecord, error) {
	if err := authorize(callerID, in.OwnerID); err != nil {
		return nil, err
	}
	name, err := cleanName(in.Name)
	if err != nil {
		return nil, err
	}

	var rec *models.FileRecord
	err = s.store.Transaction(ctx, func(tx *Store) error {
		parent, err := s.resolveParent(ctx, tx, in.OwnerID, in.ParentID)
		if err != nil {
			return err
		}
		if err := s.checkAncestry(ctx, tx, in.OwnerID, parent, "", 0); err != nil {
			return err
		}
		taken, err := tx.FolderNameTaken(ctx, in.OwnerID, in.ParentID, name, "")
		if err != nil {
			return apperr.Upstream("failed to check folder name", err)
		}
		if taken {
			return apperr.Conflict("a folder with this name already exists here")
		}

		id := uuid.NewString()
		rec = &models.FileRecord{
			ID:       id,
			Name:     name,
			Path:     path.Join("/", s.opts.RootFolder, in.OwnerID, "folder", id),
			Type:     models.FolderType,
			UserID:   in.OwnerID,
			ParentID: in.ParentID,
			IsFolder: true,
		}
		if err := tx.Create(ctx, rec); err != nil {
			return apperr.Upstream("failed to create folder", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// ToggleStar flips the star flag of one of the caller's records.
func (s *Service) ToggleStar(ctx context.Context, callerID, fileID string) (*models.FileRecord, error) {
	if err := requireCaller(callerID); err != nil {
		return nil, err
	}
	if fileID == "" {
		return nil, apperr.InvalidInput("file id is required")
	}
	err := s.store.ToggleStar(ctx, callerID, fileID)
	if errors.Is(err, errRecordNotFound) {
		return nil, apperr.NotFound()
	}
	if err != nil {
		return nil, apperr.Upstream("failed to update file", err)
	}
	return s.load(ctx, s.store, callerID, fileID)
}

func (s *Service) ListStarred(ctx context.Context, callerID string) ([]models.FileRecord, error) {
	if err := requireCaller(callerID); err != nil {
		return nil, err
	}
	records, err := s.store.ListStarred(ctx, callerID)
	if err != nil {
		return nil, apperr.Upstream("failed to list starred files", err)
	}
	return records, nil
}

func (s *Service) Rename(ctx context.Context, callerID, fileID, newName string) (*models.FileRecord, error) {
	if err := requireCaller(callerID); err != nil {
		return nil, err
	}
	name, err := cleanName(newName)
	if err != nil {
		return nil, err
	}

	err = s.store.Transaction(ctx, func(tx *Store) error {
		rec, err := s.load(ctx, tx, callerID, fileID)
		if err != nil {
			return err
		}
		if rec.IsTrashed {
			return apperr.InvalidInput("file is in trash")
		}
		if rec.IsFolder {
			taken, err := tx.FolderNameTaken(ctx, callerID, rec.ParentID, name, rec.ID)
			if err != nil {
				return apperr.Upstream("failed to check folder name", err)
			}
			if taken {
				return apperr.Conflict("a folder with this name already exists here")
			}
		}
		if err := tx.Rename(ctx, callerID, rec.ID, name); err != nil {
			return apperr.Upstream("failed to rename file", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.load(ctx, s.store, callerID, fileID)
}

// Move reparents a record. A nil parentID moves it to the root level.
func (s *Service) Move(ctx context.Context, callerID, fileID string, parentID *string) (*models.FileRecord, error) {
	if err := requireCaller(callerID); err != nil {
		return nil, err
	}

	err := s.store.Transaction(ctx, func(tx *Store) error {
		rec, err := s.load(ctx, tx, callerID, fileID)
		if err != nil {
			return err
		}
		if rec.IsTrashed {
			return apperr.InvalidInput("file is in trash")
		}
		if parentID != nil && *parentID == rec.ID {
			return apperr.InvalidInput("cannot move a folder into itself or one of its subfolders")
		}
		parent, err := s.resolveParent(ctx, tx, callerID, parentID)
		if err != nil {
			return err
		}
		height := 0
		if rec.IsFolder {
			if height, err = tx.SubtreeHeight(ctx, callerID, rec.ID); err != nil {
				return apperr.Upstream("failed to load folder contents", err)
			}
		}
		if err := s.checkAncestry(ctx, tx, callerID, parent, rec.ID, height); err != nil {
			return err
		}
		if rec.IsFolder {
			taken, err := tx.FolderNameTaken(ctx, callerID, parentID, rec.Name, rec.ID)
			if err != nil {
				return apperr.Upstream("failed to check folder name", err)
			}
			if taken {
				return apperr.Conflict("a folder with this name already exists here")
			}
		}
		if err := tx.SetParent(ctx, callerID, rec.ID, parentID); err != nil {
			return apperr.Upstream("failed to move file", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.load(ctx, s.store, callerID, fileID)
}

// Trash soft deletes a record together with everything below it.
func (s *Service) Trash(ctx context.Context, callerID, fileID string) (*models.FileRecord, error) {
	if err := requireCaller(callerID); err != nil {
		return nil, err
	}

	err := s.store.Transaction(ctx, func(tx *Store) error {
		rec, err := s.load(ctx, tx, callerID, fileID)
		if err != nil {
			return err
		}
		ids, err := s.subtreeIDs(ctx, tx, rec)
		if err != nil {
			return err
		}
		if err := tx.SetTrashed(ctx, callerID, ids, true); err != nil {
			return apperr.Upstream("failed to move file to trash", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.load(ctx, s.store, callerID, fileID)
}

// Restore brings a record and its subtree back from trash. When the original
// parent is still trashed (or gone) the record is placed at the root level.
// A restored folder whose name is now taken there gets a numbered suffix.
func (s *Service) Restore(ctx context.Context, callerID, fileID string) (*models.FileRecord, error) {
	if err := requireCaller(callerID); err != nil {
		return nil, err
	}

	err := s.store.Transaction(ctx, func(tx *Store) error {
		rec, err := s.load(ctx, tx, callerID, fileID)
		if err != nil {
			return err
		}
		if rec.ParentID != nil {
			parent, err := tx.Get(ctx, callerID, *rec.ParentID)
			if err != nil && !errors.Is(err, errRecordNotFound) {
				return apperr.Upstream("failed to load parent folder", err)
			}
			if parent == nil || parent.IsTrashed {
				if err := tx.SetParent(ctx, callerID, rec.ID, nil); err != nil {
					return apperr.Upstream("failed to restore file", err)
				}
				rec.ParentID = nil
			}
		}
		if rec.IsFolder {
			name, err := s.freeFolderName(ctx, tx, callerID, rec)
			if err != nil {
				return err
			}
			if name != rec.Name {
				if err := tx.Rename(ctx, callerID, rec.ID, name); err != nil {
					return apperr.Upstream("failed to restore file", err)
				}
			}
		}
		ids, err := s.subtreeIDs(ctx, tx, rec)
		if err != nil {
			return err
		}
		if err := tx.SetTrashed(ctx, callerID, ids, false); err != nil {
			return apperr.Upstream("failed to restore file", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.load(ctx, s.store, callerID, fileID)
}

// freeFolderName returns rec's name, or "name (n)" with the lowest n that no
// live sibling folder uses.
func (s *Service) freeFolderName(ctx context.Context, tx *Store, ownerID string, rec *models.FileRecord) (string, error) {
	name := rec.Name
	for n := 1; n <= maxRestoreSuffix; n++ {
		taken, err := tx.FolderNameTaken(ctx, ownerID, rec.ParentID, name, rec.ID)
		if err != nil {
			return "", apperr.Upstream("failed to check folder name", err)
		}
		if !taken {
			return name, nil
		}
		suffix := fmt.Sprintf(" (%d)", n)
		base := []rune(rec.Name)
		if keep := maxNameLength - len([]rune(suffix)); len(base) > keep {
			base = base[:keep]
		}
		name = string(base) + suffix
	}
	return "", apperr.Conflict("a folder with this name already exists here")
}

func (s *Service) ListTrash(ctx context.Context, callerID string) ([]models.FileRecord, error) {
	if err := requireCaller(callerID); err != nil {
		return nil, err
	}
	records, err := s.store.ListTrashRoots(ctx, callerID)
	if err != nil {
		return nil, apperr.Upstream("failed to list trash", err)
	}
	return records, nil
}

// DeleteForever removes a trashed record and its subtree, then deletes the
// stored objects. Object removal is best effort; failures are logged.
func (s *Service) DeleteForever(ctx context.Context, callerID, fileID string) error {
	if err := requireCaller(callerID); err != nil {
		return err
	}

	var removed []models.FileRecord
	err := s.store.Transaction(ctx, func(tx *Store) error {
		rec, err := s.load(ctx, tx, callerID, fileID)
		if err != nil {
			return err
		}
		if !rec.IsTrashed {
			return apperr.InvalidInput("file must be moved to trash before it can be deleted")
		}
		removed, err = s.deleteSubtree(ctx, tx, rec)
		return err
	})
	if err != nil {
		return err
	}
	s.removeObjects(ctx, callerID, removed)
	return nil
}

// EmptyTrash permanently deletes everything in the caller's trash and
// returns the number of records removed.
func (s *Service) EmptyTrash(ctx context.Context, callerID string) (int, error) {
	if err := requireCaller(callerID); err != nil {
		return 0, err
	}

	var removed []models.FileRecord
	err := s.store.Transaction(ctx, func(tx *Store) error {
		roots, err := tx.ListTrashRoots(ctx, callerID)
		if err != nil {
			return apperr.Upstream("failed to list trash", err)
		}
		for i := range roots {
			subtree, err := s.deleteSubtree(ctx, tx, &roots[i])
			if err != nil {
				return err
			}
			removed = append(removed, subtree...)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.removeObjects(ctx, callerID, removed)
	return len(removed), nil
}

func (s *Service) deleteSubtree(ctx context.Context, tx *Store, rec *models.FileRecord) ([]models.FileRecord, error) {
	descendants, err := tx.Descendants(ctx, rec.UserID, rec.ID)
	if err != nil {
		return nil, apperr.Upstream("failed to load folder contents", err)
	}
	all := append([]models.FileRecord{*rec}, descendants...)
	ids := make([]string, len(all))
	for i := range all {
		ids[i] = all[i].ID
	}
	if err := tx.Delete(ctx, rec.UserID, ids); err != nil {
		return nil, apperr.Upstream("failed to delete file", err)
	}
	return all, nil
}

func (s *Service) removeObjects(ctx context.Context, ownerID string, records []models.FileRecord) {
	for _, rec := range records {
		if rec.IsFolder {
			continue
		}
		if err := s.provider.Delete(ctx, rec.Path); err != nil {
			s.log.Error("Failed to delete stored object",
				zap.String("user_id", ownerID),
				zap.String("file_id", rec.ID),
				zap.String("path", rec.Path),
				zap.Error(err),
			)
		}
	}
}

func (s *Service) subtreeIDs(ctx context.Context, tx *Store, rec *models.FileRecord) ([]string, error) {
	ids := []string{rec.ID}
	if !rec.IsFolder {
		return ids, nil
	}
	descendants, err := tx.Descendants(ctx, rec.UserID, rec.ID)
	if err != nil {
		return nil, apperr.Upstream("failed to load folder contents", err)
	}
	for _, d := range descendants {
		ids = append(ids, d.ID)
	}
	return ids, nil
}

type Usage struct {
	Used  int64 `json:"used"`
	Limit int64 `json:"limit"`
}

func (s *Service) Usage(ctx context.Context, callerID string) (*Usage, error) {
	if err := requireCaller(callerID); err != nil {
		return nil, err
	}
	used, err := s.store.UsedBytes(ctx, callerID)
	if err != nil {
		return nil, apperr.Upstream("failed to compute storage usage", err)
	}
	return &Usage{Used: used, Limit: s.opts.QuotaBytes}, nil
}

func normalizeMime(mt string) string {
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = mt[:i]
	}
	return strings.ToLower(strings.TrimSpace(mt))
}

func allowedMime(mt string) bool {
	return strings.HasPrefix(mt, "image/") || mt == "application/pdf"
}

// extension returns the text after the last dot of name. A name without a
// dot is rejected even when the MIME type is known.
func extension(name string) (string, error) {
	i := strings.LastIndexByte(name, '.')
	if i < 0 || i == len(name)-1 {
		return "", apperr.InvalidInput("file name has no extension")
	}
	ext := name[i+1:]
	if strings.ContainsAny(ext, `/\`) {
		return "", apperr.InvalidInput("invalid file extension")
	}
	return ext, nil
}

func cleanName(name string) (string, error) {
	name = strings.TrimSpace(name)
	switch {
	case name == "":
		return "", apperr.InvalidInput("name is required")
	case utf8.RuneCountInString(name) > maxNameLength:
		return "", apperr.InvalidInput("name is too long")
	case strings.ContainsAny(name, `/\`):
		return "", apperr.InvalidInput("name may not contain slashes")
	case name == "." || name == "..":
		return "", apperr.InvalidInput("invalid name")
	}
	return name, nil
}
