package services

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/snappic/server/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStorage(t *testing.T) (*PhotoStorageService, string) {
	tempDir := t.TempDir()

	svc, err := NewPhotoStorageService(tempDir, nil, 1)
	require.NoError(t, err)

	return svc, tempDir
}

func TestPhotoStorageService_Store(t *testing.T) {
	t.Run("stores file flat in the uploads dir", func(t *testing.T) {
		svc, tempDir := setupTestStorage(t)

		require.NoError(t, svc.Store("abc.jpg", []byte("fake image content")))

		data, err := os.ReadFile(filepath.Join(tempDir, "abc.jpg"))
		require.NoError(t, err)
		assert.Equal(t, "fake image content", string(data))
		assert.True(t, svc.Exists("abc.jpg"))
	})

	t.Run("overwrites atomically", func(t *testing.T) {
		svc, tempDir := setupTestStorage(t)

		require.NoError(t, svc.Store("a.png", []byte("one")))
		require.NoError(t, svc.Store("a.png", []byte("two")))

		data, err := os.ReadFile(filepath.Join(tempDir, "a.png"))
		require.NoError(t, err)
		assert.Equal(t, "two", string(data))

		entries, err := os.ReadDir(tempDir)
		require.NoError(t, err)
		assert.Len(t, entries, 1, "no temp files left behind")
	})

	t.Run("rejects files over the limit", func(t *testing.T) {
		svc, _ := setupTestStorage(t)

		err := svc.Store("big.jpg", make([]byte, 1024*1024+1))
		assert.ErrorIs(t, err, models.ErrFileTooLarge)
		assert.False(t, svc.Exists("big.jpg"))
	})

	t.Run("rejects path traversal", func(t *testing.T) {
		svc, _ := setupTestStorage(t)

		for _, name := range []string{"../escape.jpg", "sub/x.jpg", "..", `..\x.jpg`} {
			err := svc.Store(name, []byte("x"))
			assert.ErrorIs(t, err, models.ErrPathTraversal, name)
		}
	})
}

func TestPhotoStorageService_Delete(t *testing.T) {
	svc, _ := setupTestStorage(t)
	require.NoError(t, svc.Store("gone.webp", []byte("x")))

	require.NoError(t, svc.Delete("gone.webp"))
	assert.False(t, svc.Exists("gone.webp"))

	assert.NoError(t, svc.Delete("gone.webp"), "deleting twice is fine")
	assert.ErrorIs(t, svc.Delete("../etc/passwd"), models.ErrPathTraversal)
}

func TestPhotoStorageService_IsAllowed(t *testing.T) {
	svc, _ := setupTestStorage(t)

	assert.True(t, svc.IsAllowed("photo.JPG"))
	assert.True(t, svc.IsAllowed("photo.webp"))
	assert.False(t, svc.IsAllowed("photo.gif"))
	assert.False(t, svc.IsAllowed("noext"))
}

func TestPhotoStorageService_GetFullPath(t *testing.T) {
	svc, tempDir := setupTestStorage(t)

	path, err := svc.GetFullPath("x.jpg")
	require.NoError(t, err)
	abs, _ := filepath.Abs(tempDir)
	assert.Equal(t, filepath.Join(abs, "x.jpg"), path)

	_, err = svc.GetFullPath("")
	assert.Error(t, err)
}
