package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/second-order-ai/singapore-postcode-geocoding/internal/pkg/errors"
)

// LocalStorage keeps uploaded files in the local filesystem until the
// request that uploaded them is done
type LocalStorage struct {
	basePath string
	maxSize  int64
	logger   *slog.Logger
}

// LocalStorageConfig for local storage
type LocalStorageConfig struct {
	BasePath string // Base directory for uploads (e.g., "/tmp/uploads")
	MaxSize  int64  // Per-file limit in bytes, 0 for none
}

// FileMetadata contains information about stored files
type FileMetadata struct {
	ID           string
	OriginalName string
	StoredPath   string
	Size         int64
	Hash         string
	ContentType  string
	CreatedAt    time.Time
}

// NewLocalStorage creates a new local storage instance
func NewLocalStorage(cfg *LocalStorageConfig, logger *slog.Logger) (*LocalStorage, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(filepath.Join(cfg.BasePath, "uploads"), 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &LocalStorage{
		basePath: cfg.BasePath,
		maxSize:  cfg.MaxSize,
		logger:   logger,
	}, nil
}

// NewUploadID returns a fresh upload identifier
func NewUploadID() string {
	return uuid.NewString()
}

// SaveUpload copies reader into the upload directory and returns its
// metadata. Exceeding the size limit removes the partial file.
func (s *LocalStorage) SaveUpload(ctx context.Context, uploadID string, filename string, reader io.Reader) (*FileMetadata, error) {
	if _, err := uuid.Parse(uploadID); err != nil {
		return nil, apperrors.BadRequest(fmt.Sprintf("invalid upload id %q", uploadID))
	}

	uploadDir := filepath.Join(s.basePath, "uploads", uploadID)
	if err := os.MkdirAll(uploadDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}

	// Sanitize filename
	safeName := filepath.Base(filename)
	destPath := filepath.Join(uploadDir, safeName)

	destFile, err := os.Create(destPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create destination file: %w", err)
	}
	defer destFile.Close()

	if s.maxSize > 0 {
		reader = io.LimitReader(reader, s.maxSize+1)
	}

	// Calculate hash while copying
	hash := sha256.New()
	size, err := io.Copy(io.MultiWriter(destFile, hash), &ctxReader{ctx: ctx, r: reader})
	if err != nil {
		os.Remove(destPath)
		return nil, fmt.Errorf("failed to copy file: %w", err)
	}
	if s.maxSize > 0 && size > s.maxSize {
		os.Remove(destPath)
		return nil, apperrors.FileTooLarge(s.maxSize / (1024 * 1024))
	}

	fileHash := hex.EncodeToString(hash.Sum(nil))

	metadata := &FileMetadata{
		ID:           uploadID,
		OriginalName: filename,
		StoredPath:   destPath,
		Size:         size,
		Hash:         fileHash,
		ContentType:  getContentType(filename),
		CreatedAt:    time.Now(),
	}

	s.logger.Info("file uploaded successfully",
		slog.String("upload_id", uploadID),
		slog.String("filename", safeName),
		slog.Int64("size", size),
		slog.String("hash", fileHash))

	return metadata, nil
}

// GetUpload opens a stored upload
func (s *LocalStorage) GetUpload(ctx context.Context, uploadID string, filename string) (io.ReadCloser, error) {
	filePath := filepath.Join(s.basePath, "uploads", uploadID, filepath.Base(filename))

	file, err := os.Open(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperrors.NotFound(fmt.Sprintf("upload not found: %s", uploadID))
		}
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	return file, nil
}

// DeleteUpload removes all files associated with an upload
func (s *LocalStorage) DeleteUpload(ctx context.Context, uploadID string) error {
	uploadDir := filepath.Join(s.basePath, "uploads", uploadID)
	if err := os.RemoveAll(uploadDir); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete upload directory: %w", err)
	}

	s.logger.Debug("upload deleted",
		slog.String("upload_id", uploadID))

	return nil
}

// CleanupOldFiles removes uploads older than the specified duration and
// returns how many were removed
func (s *LocalStorage) CleanupOldFiles(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoffTime := time.Now().Add(-olderThan)

	removed, err := s.cleanupDirectory(filepath.Join(s.basePath, "uploads"), cutoffTime)
	if err != nil {
		return removed, fmt.Errorf("failed to cleanup uploads: %w", err)
	}

	s.logger.Info("cleanup completed",
		slog.Duration("older_than", olderThan),
		slog.Int("removed", removed))

	return removed, nil
}

// RunCleanup sweeps old uploads every interval until ctx is done
func (s *LocalStorage) RunCleanup(ctx context.Context, interval, olderThan time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.CleanupOldFiles(ctx, olderThan); err != nil {
				s.logger.Warn("upload cleanup failed", slog.Any("error", err))
			}
		}
	}
}

// cleanupDirectory removes directories older than cutoff time
func (s *LocalStorage) cleanupDirectory(dir string, cutoffTime time.Time) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}

	removed := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		dirPath := filepath.Join(dir, entry.Name())
		info, err := entry.Info()
		if err != nil {
			s.logger.Warn("failed to get file info",
				slog.String("path", dirPath),
				slog.Any("error", err))
			continue
		}

		if info.ModTime().Before(cutoffTime) {
			if err := os.RemoveAll(dirPath); err != nil {
				s.logger.Warn("failed to remove directory",
					slog.String("path", dirPath),
					slog.Any("error", err))
			} else {
				removed++
				s.logger.Debug("removed old directory",
					slog.String("path", dirPath),
					slog.Time("mod_time", info.ModTime()))
			}
		}
	}

	return removed, nil
}

// GetStoragePath returns the directory of an upload
func (s *LocalStorage) GetStoragePath(uploadID string) string {
	return filepath.Join(s.basePath, "uploads", uploadID)
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

// getContentType returns the content type based on file extension
func getContentType(filename string) string {
	switch filepath.Ext(filename) {
	case ".xlsx", ".xls":
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case ".csv":
		return "text/csv"
	case ".gz", ".gzip":
		return "application/gzip"
	case ".bz2":
		return "application/x-bzip2"
	case ".zip":
		return "application/zip"
	case ".json":
		return "application/json"
	case ".jsonl", ".ndjson":
		return "application/x-ndjson"
	default:
		return "application/octet-stream"
	}
}
