package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"mime"
	"os"
	"path/filepath"
)

// BlobStore writes attachment bytes to a per-item directory on disk.
// Filenames derive from the attachment key plus a detected extension, so a
// re-download of the same attachment overwrites in place.
type BlobStore struct {
	root string
}

// NewBlobStore creates a blob store rooted at dir, creating it if needed.
func NewBlobStore(dir string) (*BlobStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create blob directory: %w", err)
	}
	return &BlobStore{root: dir}, nil
}

// Root returns the blob root directory.
func (s *BlobStore) Root() string {
	return s.root
}

// Write stores data for an attachment and returns the file path, the SHA-256
// hex digest of the bytes, and the byte count.
func (s *BlobStore) Write(itemKey, attachmentKey, filename, contentType string, data []byte) (string, string, int64, error) {
	dir := filepath.Join(s.root, itemKey)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", 0, fmt.Errorf("failed to create item directory: %w", err)
	}

	path := filepath.Join(dir, attachmentKey+detectExtension(filename, contentType))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", "", 0, fmt.Errorf("failed to write attachment file: %w", err)
	}

	sum := sha256.Sum256(data)
	return path, hex.EncodeToString(sum[:]), int64(len(data)), nil
}

// Read returns the bytes stored at path. A missing file surfaces as
// ErrAttachmentMissing so callers treat it as a cache miss.
func (s *BlobStore) Read(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, ErrAttachmentMissing
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read attachment file: %w", err)
	}
	return data, nil
}

// Exists reports whether the file at path is present on disk.
func (s *BlobStore) Exists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}

// Size walks the blob root and returns the total stored byte count.
func (s *BlobStore) Size() (int64, error) {
	var total int64
	err := filepath.Walk(s.root, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			total += info.Size()
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to size blob store: %w", err)
	}
	return total, nil
}

// detectExtension picks a filename extension from the original filename,
// falling back to the content type, then to ".dat".
func detectExtension(filename, contentType string) string {
	if ext := filepath.Ext(filename); ext != "" {
		return ext
	}
	if exts, err := mime.ExtensionsByType(contentType); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ".dat"
}
