package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/snappic/server/internal/models"
	"github.com/snappic/server/internal/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepo(t *testing.T) *PhotoRepository {
	t.Helper()
	db, err := NewSQLiteDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	traced, err := observability.NewTraceDB(db, "sqlite")
	require.NoError(t, err)
	return NewPhotoRepository(traced)
}

func addPhoto(t *testing.T, repo *PhotoRepository, hash string, uploadedAt time.Time) *models.Photo {
	t.Helper()
	p, err := models.NewPhoto(".jpg", "comment "+hash, hash, 1024)
	require.NoError(t, err)
	p.UploadedAt = uploadedAt.UTC()
	require.NoError(t, repo.Add(context.Background(), p))
	return p
}

func TestPhotoRepository(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("add and get", func(t *testing.T) {
		repo := newTestRepo(t)
		p := addPhoto(t, repo, "ABC123", base)

		got, err := repo.GetByID(ctx, p.ID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, p.ID, got.ID)
		assert.Equal(t, p.Filename, got.Filename)
		assert.Equal(t, "comment ABC123", got.Comment)
		assert.Equal(t, "abc123", got.FileHash)
		assert.Equal(t, int64(1024), got.FileSize)
		assert.True(t, base.Equal(got.UploadedAt))

		byHash, err := repo.GetByHash(ctx, "abc123")
		require.NoError(t, err)
		require.NotNil(t, byHash)
		assert.Equal(t, p.ID, byHash.ID)
	})

	t.Run("missing rows return nil", func(t *testing.T) {
		repo := newTestRepo(t)

		got, err := repo.GetByID(ctx, "nope")
		require.NoError(t, err)
		assert.Nil(t, got)

		got, err = repo.GetByHash(ctx, "nope")
		require.NoError(t, err)
		assert.Nil(t, got)

		got, err = repo.Oldest(ctx)
		require.NoError(t, err)
		assert.Nil(t, got)

		all, err := repo.ListAll(ctx)
		require.NoError(t, err)
		assert.NotNil(t, all)
		assert.Empty(t, all)
	})

	t.Run("list is newest first", func(t *testing.T) {
		repo := newTestRepo(t)
		first := addPhoto(t, repo, "h1", base)
		third := addPhoto(t, repo, "h3", base.Add(2500*time.Millisecond))
		second := addPhoto(t, repo, "h2", base.Add(time.Second))

		all, err := repo.ListAll(ctx)
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, []string{third.ID, second.ID, first.ID}, []string{all[0].ID, all[1].ID, all[2].ID})

		oldest, err := repo.Oldest(ctx)
		require.NoError(t, err)
		assert.Equal(t, first.ID, oldest.ID)

		count, err := repo.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, count)
	})

	t.Run("delete", func(t *testing.T) {
		repo := newTestRepo(t)
		p := addPhoto(t, repo, "h", base)

		deleted, err := repo.Delete(ctx, p.ID)
		require.NoError(t, err)
		assert.True(t, deleted)

		deleted, err = repo.Delete(ctx, p.ID)
		require.NoError(t, err)
		assert.False(t, deleted)

		count, err := repo.Count(ctx)
		require.NoError(t, err)
		assert.Zero(t, count)
	})
	t.Run("count by filename sees shared files", func(t *testing.T) {
		repo := newTestRepo(t)
		first := addPhoto(t, repo, "same", base)

		second, err := models.NewPhoto(".jpg", "again", "same", 1024)
		require.NoError(t, err)
		second.Filename = first.Filename
		second.UploadedAt = base.Add(time.Second)
		require.NoError(t, repo.Add(ctx, second))
		addPhoto(t, repo, "other", base)

		n, err := repo.CountByFilename(ctx, first.Filename)
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		_, err = repo.Delete(ctx, first.ID)
		require.NoError(t, err)
		n, err = repo.CountByFilename(ctx, first.Filename)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		n, err = repo.CountByFilename(ctx, "absent.jpg")
		require.NoError(t, err)
		assert.Zero(t, n)
	})
}
