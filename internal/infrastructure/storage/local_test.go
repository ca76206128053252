package storage

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/second-order-ai/singapore-postcode-geocoding/internal/pkg/errors"
	"github.com/second-order-ai/singapore-postcode-geocoding/internal/pkg/logger"
)

func setupTestStorage(t *testing.T, maxSize int64) (*LocalStorage, string) {
	tempDir := t.TempDir()

	storage, err := NewLocalStorage(&LocalStorageConfig{
		BasePath: tempDir,
		MaxSize:  maxSize,
	}, logger.Discard())
	require.NoError(t, err)

	return storage, tempDir
}

func TestLocalStorage_SaveUpload(t *testing.T) {
	storage, _ := setupTestStorage(t, 0)
	ctx := context.Background()

	uploadID := NewUploadID()
	filename := "addresses.csv"
	content := []byte("Site,Postcode\nMarina Bay Sands,018956\n")

	metadata, err := storage.SaveUpload(ctx, uploadID, filename, bytes.NewReader(content))
	require.NoError(t, err)

	assert.Equal(t, uploadID, metadata.ID)
	assert.Equal(t, filename, metadata.OriginalName)
	assert.Equal(t, int64(len(content)), metadata.Size)
	assert.NotEmpty(t, metadata.Hash)
	assert.Equal(t, "text/csv", metadata.ContentType)
	assert.NotZero(t, metadata.CreatedAt)

	_, err = os.Stat(metadata.StoredPath)
	assert.NoError(t, err)
	assert.Equal(t, storage.GetStoragePath(uploadID), filepath.Dir(metadata.StoredPath))
}

func TestLocalStorage_SaveUpload_SanitizesName(t *testing.T) {
	storage, basePath := setupTestStorage(t, 0)

	uploadID := NewUploadID()
	metadata, err := storage.SaveUpload(context.Background(), uploadID, "../../etc/passwd.csv", bytes.NewReader([]byte("x")))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(basePath, "uploads", uploadID, "passwd.csv"), metadata.StoredPath)
}

func TestLocalStorage_SaveUpload_InvalidID(t *testing.T) {
	storage, _ := setupTestStorage(t, 0)

	_, err := storage.SaveUpload(context.Background(), "../escape", "a.csv", bytes.NewReader(nil))
	require.Error(t, err)
}

func TestLocalStorage_SaveUpload_TooLarge(t *testing.T) {
	storage, _ := setupTestStorage(t, 8)

	uploadID := NewUploadID()
	_, err := storage.SaveUpload(context.Background(), uploadID, "big.csv", bytes.NewReader([]byte("0123456789")))

	appErr, ok := apperrors.GetAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrCodeFileTooLarge, appErr.Code)

	_, statErr := os.Stat(filepath.Join(storage.GetStoragePath(uploadID), "big.csv"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestLocalStorage_SaveUpload_Cancelled(t *testing.T) {
	storage, _ := setupTestStorage(t, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := storage.SaveUpload(ctx, NewUploadID(), "a.csv", bytes.NewReader([]byte("data")))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLocalStorage_GetUpload(t *testing.T) {
	storage, _ := setupTestStorage(t, 0)
	ctx := context.Background()

	uploadID := NewUploadID()
	content := []byte(`[{"postcode": "018956"}]`)

	_, err := storage.SaveUpload(ctx, uploadID, "data.json", bytes.NewReader(content))
	require.NoError(t, err)

	reader, err := storage.GetUpload(ctx, uploadID, "data.json")
	require.NoError(t, err)
	defer reader.Close()

	buf := new(bytes.Buffer)
	_, err = buf.ReadFrom(reader)
	require.NoError(t, err)
	assert.Equal(t, content, buf.Bytes())

	_, err = storage.GetUpload(ctx, uploadID, "missing.json")
	appErr, ok := apperrors.GetAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrCodeNotFound, appErr.Code)
}

func TestLocalStorage_DeleteUpload(t *testing.T) {
	storage, basePath := setupTestStorage(t, 0)
	ctx := context.Background()

	uploadID := NewUploadID()
	_, err := storage.SaveUpload(ctx, uploadID, "test.csv", bytes.NewReader([]byte("test")))
	require.NoError(t, err)

	uploadDir := filepath.Join(basePath, "uploads", uploadID)
	_, err = os.Stat(uploadDir)
	assert.NoError(t, err)

	require.NoError(t, storage.DeleteUpload(ctx, uploadID))

	_, err = os.Stat(uploadDir)
	assert.True(t, os.IsNotExist(err))

	// deleting twice is fine
	assert.NoError(t, storage.DeleteUpload(ctx, uploadID))
}

func TestLocalStorage_CleanupOldFiles(t *testing.T) {
	storage, basePath := setupTestStorage(t, 0)
	ctx := context.Background()

	oldDir := filepath.Join(basePath, "uploads", "old-upload")
	require.NoError(t, os.MkdirAll(oldDir, 0755))

	twoHoursAgo := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(oldDir, twoHoursAgo, twoHoursAgo))

	recentDir := filepath.Join(basePath, "uploads", "recent-upload")
	require.NoError(t, os.MkdirAll(recentDir, 0755))

	removed, err := storage.CleanupOldFiles(ctx, 1*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = os.Stat(oldDir)
	assert.True(t, os.IsNotExist(err))

	_, err = os.Stat(recentDir)
	assert.NoError(t, err)
}

func TestLocalStorage_RunCleanupStops(t *testing.T) {
	storage, basePath := setupTestStorage(t, 0)

	oldDir := filepath.Join(basePath, "uploads", "stale")
	require.NoError(t, os.MkdirAll(oldDir, 0755))
	past := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(oldDir, past, past))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		storage.RunCleanup(ctx, 10*time.Millisecond, time.Minute)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		_, err := os.Stat(oldDir)
		return os.IsNotExist(err)
	}, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("cleanup loop did not stop")
	}
}

func TestLocalStorage_GetContentType(t *testing.T) {
	tests := []struct {
		filename    string
		contentType string
	}{
		{"file.xlsx", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"},
		{"file.csv", "text/csv"},
		{"file.csv.gz", "application/gzip"},
		{"file.csv.bz2", "application/x-bzip2"},
		{"file.csv.zip", "application/zip"},
		{"file.json", "application/json"},
		{"file.ndjson", "application/x-ndjson"},
		{"file.unknown", "application/octet-stream"},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			assert.Equal(t, tt.contentType, getContentType(tt.filename))
		})
	}
}

func TestLocalStorage_HashConsistency(t *testing.T) {
	storage, _ := setupTestStorage(t, 0)
	ctx := context.Background()

	content := []byte("test data for hash")

	meta1, err := storage.SaveUpload(ctx, NewUploadID(), "test.csv", bytes.NewReader(content))
	require.NoError(t, err)

	meta2, err := storage.SaveUpload(ctx, NewUploadID(), "test.csv", bytes.NewReader(content))
	require.NoError(t, err)

	assert.Equal(t, meta1.Hash, meta2.Hash)
}
