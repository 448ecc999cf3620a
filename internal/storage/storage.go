package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
)

var ErrInvalidPath = errors.New("invalid storage path")

type UploadInput struct {
	// Folder is the slash separated directory, e.g. "/cloudbox/<user>".
	Folder      string
	FileName    string
	ContentType string
	Size        int64
	Body        io.Reader
}

type UploadResult struct {
	Path         string
	URL          string
	ThumbnailURL *string
}

// Provider holds the bytes behind file records and hands out public URLs.
type Provider interface {
	Upload(ctx context.Context, in UploadInput) (*UploadResult, error)
	Delete(ctx context.Context, path string) error
}

// objectPath joins folder and name into a clean, absolute slash path.
func objectPath(folder, name string) (string, error) {
	if name == "" || strings.ContainsAny(name, `/\`) {
		return "", ErrInvalidPath
	}
	for _, seg := range strings.Split(folder, "/") {
		if seg == ".." {
			return "", ErrInvalidPath
		}
	}
	return path.Join("/", folder, name), nil
}

func cleanPath(p string) (string, error) {
	for _, seg := range strings.Split(p, "/") {
		if seg == ".." {
			return "", ErrInvalidPath
		}
	}
	clean := path.Clean("/" + p)
	if clean == "/" {
		return "", ErrInvalidPath
	}
	return clean, nil
}

// LocalStorage keeps objects on disk under BaseDir. The HTTP server exposes
// BaseDir at PublicURL.
type LocalStorage struct {
	BaseDir   string
	PublicURL string
}

func NewLocalStorage(baseDir, publicURL string) (*LocalStorage, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, err
	}
	return &LocalStorage{BaseDir: baseDir, PublicURL: strings.TrimRight(publicURL, "/")}, nil
}

func (s *LocalStorage) Upload(ctx context.Context, in UploadInput) (*UploadResult, error) {
	objPath, err := objectPath(in.Folder, in.FileName)
	if err != nil {
		return nil, err
	}
	diskPath := filepath.Join(s.BaseDir, filepath.FromSlash(objPath))
	if err := os.MkdirAll(filepath.Dir(diskPath), 0755); err != nil {
		return nil, err
	}

	out, err := os.Create(diskPath)
	if err != nil {
		return nil, err
	}
	defer out.Close()

	if _, err := io.Copy(out, in.Body); err != nil {
		_ = os.Remove(diskPath)
		return nil, fmt.Errorf("write %s: %w", objPath, err)
	}

	return &UploadResult{
		Path: objPath,
		URL:  s.PublicURL + objPath,
	}, nil
}

func (s *LocalStorage) Delete(ctx context.Context, p string) error {
	objPath, err := cleanPath(p)
	if err != nil {
		return err
	}
	err = os.Remove(filepath.Join(s.BaseDir, filepath.FromSlash(objPath)))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
