package assets

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

const handlePrefix = "asset://sha256/"

// FileIngestor copies inputs into a content-addressed directory tree.
// Identical bytes always yield the same handle.
type FileIngestor struct {
	basePath string
}

// NewFileIngestor initializes a FileIngestor rooted at basePath.
func NewFileIngestor(basePath string) (*FileIngestor, error) {
	basePath = strings.TrimSpace(basePath)
	if basePath == "" {
		return nil, errors.New("assets: base path is required")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("assets: ensure base path: %w", err)
	}
	return &FileIngestor{basePath: basePath}, nil
}

// Ingest streams raw into a temp file while hashing it, then moves it into
// place under its digest.
func (f *FileIngestor) Ingest(ctx context.Context, raw io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if raw == nil {
		return "", errors.New("assets: no input")
	}
	tmp, err := os.CreateTemp(f.basePath, ".ingest-*")
	if err != nil {
		return "", fmt.Errorf("assets: create temp: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	hasher := sha256.New()
	size, err := io.Copy(io.MultiWriter(tmp, hasher), raw)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return "", fmt.Errorf("assets: copy input: %w", err)
	}
	if size == 0 {
		return "", errors.New("assets: input is empty")
	}

	digest := hex.EncodeToString(hasher.Sum(nil))
	key, err := sanitizeKey(filepath.Join("sha256", digest[:2], digest))
	if err != nil {
		return "", err
	}
	target := filepath.Join(f.basePath, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", fmt.Errorf("assets: ensure directory: %w", err)
	}
	if _, err := os.Stat(target); err == nil {
		return handlePrefix + digest, nil
	}
	if err := os.Rename(tmpName, target); err != nil {
		return "", fmt.Errorf("assets: store input: %w", err)
	}
	return handlePrefix + digest, nil
}

// Path resolves a handle produced by Ingest to its file location.
func (f *FileIngestor) Path(handle string) (string, error) {
	digest, ok := strings.CutPrefix(handle, handlePrefix)
	if !ok || len(digest) != sha256.Size*2 {
		return "", fmt.Errorf("assets: not a local handle: %q", handle)
	}
	if _, err := hex.DecodeString(digest); err != nil {
		return "", fmt.Errorf("assets: malformed handle %q", handle)
	}
	key, err := sanitizeKey(filepath.Join("sha256", digest[:2], digest))
	if err != nil {
		return "", err
	}
	return filepath.Join(f.basePath, filepath.FromSlash(key)), nil
}

// sanitizeKey normalizes a key and prevents escaping the storage root.
func sanitizeKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", errors.New("assets: key is required")
	}
	key = strings.ReplaceAll(key, "\\", "/")
	key = strings.TrimPrefix(key, "./")
	key = strings.TrimLeft(key, "/")
	cleaned := filepath.ToSlash(filepath.Clean(key))
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", errors.New("assets: invalid key")
	}
	return cleaned, nil
}
