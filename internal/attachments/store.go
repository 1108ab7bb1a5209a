package attachments

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PublicPrefix is the URL path under which stored attachments are served.
const PublicPrefix = "/uploads/"

var (
	// ErrUnsupportedType indicates the uploaded file extension is not an image.
	ErrUnsupportedType = errors.New("attachments: unsupported file type")

	errMissingDir = errors.New("attachments: upload directory required")

	allowedExtensions = map[string]bool{
		".jpg":  true,
		".jpeg": true,
		".png":  true,
		".gif":  true,
		".webp": true,
	}
)

// StoreConfig describes the dependencies of the attachment store.
type StoreConfig struct {
	Dir    string
	Logger *zap.Logger
}

// Store keeps note attachments on disk. File names combine the owner id, a
// random component and the original extension so concurrent uploads never
// collide. References handed to callers are public URL paths.
type Store struct {
	dir    string
	logger *zap.Logger
}

// NewStore creates the upload directory if needed and returns the store.
func NewStore(cfg StoreConfig) (*Store, error) {
	if strings.TrimSpace(cfg.Dir) == "" {
		return nil, errMissingDir
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("attachments: create upload dir: %w", err)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{dir: cfg.Dir, logger: logger}, nil
}

// Dir returns the filesystem directory backing the store.
func (s *Store) Dir() string {
	return s.dir
}

// Save writes the uploaded file and returns its public reference.
func (s *Store) Save(ownerID uint, file *multipart.FileHeader) (string, error) {
	ext := strings.ToLower(filepath.Ext(file.Filename))
	if !allowedExtensions[ext] {
		return "", ErrUnsupportedType
	}

	source, err := file.Open()
	if err != nil {
		return "", fmt.Errorf("attachments: open upload: %w", err)
	}
	defer source.Close()

	name := fmt.Sprintf("%d-%s%s", ownerID, uuid.New().String(), ext)
	diskPath := filepath.Join(s.dir, name)

	destination, err := os.Create(diskPath)
	if err != nil {
		return "", fmt.Errorf("attachments: create file: %w", err)
	}
	defer destination.Close()

	if _, err := io.Copy(destination, source); err != nil {
		// Half-written file is useless; clean it up before reporting.
		os.Remove(diskPath)
		return "", fmt.Errorf("attachments: write file: %w", err)
	}

	return PublicPrefix + name, nil
}

// Replace stores the new upload after a best-effort delete of the previously
// referenced file. With no new upload the existing reference is returned
// unchanged. A failed delete of the old file is logged, never fatal.
func (s *Store) Replace(existingRef string, ownerID uint, file *multipart.FileHeader) (string, error) {
	if file == nil {
		return existingRef, nil
	}
	ref, err := s.Save(ownerID, file)
	if err != nil {
		return "", err
	}
	s.Remove(existingRef)
	return ref, nil
}

// Remove deletes the referenced file best-effort. A missing file or an empty
// reference is not an error; other failures are logged and swallowed.
func (s *Store) Remove(ref string) {
	diskPath, ok := s.diskPath(ref)
	if !ok {
		return
	}
	if err := os.Remove(diskPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.logger.Warn("attachment delete failed", zap.String("path", diskPath), zap.Error(err))
	}
}

// Exists reports whether the referenced file is present on disk.
func (s *Store) Exists(ref string) bool {
	diskPath, ok := s.diskPath(ref)
	if !ok {
		return false
	}
	_, err := os.Stat(diskPath)
	return err == nil
}

func (s *Store) diskPath(ref string) (string, bool) {
	name := strings.TrimPrefix(strings.TrimSpace(ref), PublicPrefix)
	if name == "" {
		return "", false
	}
	// Base strips any path components a crafted reference could smuggle in.
	return filepath.Join(s.dir, filepath.Base(name)), true
}
