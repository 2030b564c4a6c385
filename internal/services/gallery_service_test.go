package services

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/snappic/server/internal/models"
	"github.com/snappic/server/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedChange struct {
	reason  string
	photoID string
}

type recordingNotifier struct {
	mu      sync.Mutex
	changes []recordedChange
}

func (n *recordingNotifier) NotifyGalleryChanged(reason, photoID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.changes = append(n.changes, recordedChange{reason, photoID})
}

func (n *recordingNotifier) reasons() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.changes))
	for i, c := range n.changes {
		out[i] = c.reason
	}
	return out
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type galleryFixture struct {
	svc      *GalleryService
	storage  *PhotoStorageService
	notifier *recordingNotifier
	clock    *fakeClock
	dir      string
}

func newGalleryFixture(t *testing.T, maxImages int) *galleryFixture {
	t.Helper()
	dir := t.TempDir()

	db, err := repository.NewSQLiteDB(filepath.Join(dir, "gallery.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	uploads := filepath.Join(dir, "uploads")
	storage, err := NewPhotoStorageService(uploads, []string{".png", ".jpg", ".jpeg", ".webp", ".heic"}, 5)
	require.NoError(t, err)

	notifier := &recordingNotifier{}
	clock := &fakeClock{t: time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)}

	svc := NewGalleryService(
		repository.NewPhotoRepository(db),
		storage,
		NewImageService(1000),
		NewHashService(),
		notifier,
		nil,
		GalleryConfig{
			Lifetime:         5 * time.Second,
			Fadeout:          10 * time.Second,
			MaxImages:        maxImages,
			MaxCommentLength: 100,
		},
	)
	svc.now = clock.Now

	return &galleryFixture{svc: svc, storage: storage, notifier: notifier, clock: clock, dir: uploads}
}

func (f *galleryFixture) upload(t *testing.T, w int, comment string) *models.UploadResult {
	t.Helper()
	res, err := f.svc.Upload(context.Background(), UploadInput{
		Filename: "photo.png",
		Data:     testPNG(t, w, 10),
		Comment:  comment,
	})
	require.NoError(t, err)
	return res
}

func TestGalleryService_Upload(t *testing.T) {
	ctx := context.Background()

	t.Run("stores the photo and lists it", func(t *testing.T) {
		f := newGalleryFixture(t, 10)

		res := f.upload(t, 20, "hello")

		assert.False(t, res.SharedFile)
		assert.Equal(t, res.ID+".png", res.Filename)
		assert.Equal(t, "hello", res.Comment)
		assert.FileExists(t, filepath.Join(f.dir, res.Filename))

		images, err := f.svc.List(ctx)
		require.NoError(t, err)
		require.Len(t, images, 1)
		assert.Equal(t, res.ID, images[0].ID)
		assert.Equal(t, "hello", images[0].Comment)
		assert.Equal(t, 0.0, images[0].Age)
		assert.Equal(t, 5.0, images[0].Lifetime)
		assert.Equal(t, 10.0, images[0].FadeoutDuration)

		assert.Equal(t, []string{models.ChangeUploaded}, f.notifier.reasons())
	})

	t.Run("validation errors", func(t *testing.T) {
		f := newGalleryFixture(t, 10)
		png := testPNG(t, 5, 5)

		cases := []struct {
			name string
			in   UploadInput
			want error
		}{
			{"no filename", UploadInput{Filename: "", Data: png}, models.ErrNoSelectedFile},
			{"comment too long", UploadInput{Filename: "a.png", Data: png, Comment: strings.Repeat("x", 101)}, models.ErrCommentTooLong},
			{"bad extension", UploadInput{Filename: "a.gif", Data: png}, models.ErrInvalidExtension},
			{"no extension", UploadInput{Filename: "photo", Data: png}, models.ErrInvalidExtension},
			{"too large", UploadInput{Filename: "a.png", Data: make([]byte, 5*1024*1024+1)}, models.ErrFileTooLarge},
			{"not an image", UploadInput{Filename: "a.jpg", Data: []byte("hello")}, models.ErrUndecodableImage},
		}

		for _, c := range cases {
			t.Run(c.name, func(t *testing.T) {
				_, err := f.svc.Upload(ctx, c.in)
				assert.ErrorIs(t, err, c.want)
			})
		}

		count, err := f.svc.Count(ctx)
		require.NoError(t, err)
		assert.Zero(t, count)
		assert.Empty(t, f.notifier.reasons())
	})

	t.Run("comment length counts characters", func(t *testing.T) {
		f := newGalleryFixture(t, 10)

		_, err := f.svc.Upload(ctx, UploadInput{
			Filename: "a.png",
			Data:     testPNG(t, 5, 5),
			Comment:  strings.Repeat("é", 100),
		})
		assert.NoError(t, err)
	})

	t.Run("identical bytes are listed again with the new comment", func(t *testing.T) {
		f := newGalleryFixture(t, 10)
		first := f.upload(t, 20, "one")

		f.clock.Advance(3 * time.Second)
		second := f.upload(t, 20, "two")

		assert.NotEqual(t, first.ID, second.ID)
		assert.Equal(t, "two", second.Comment)
		assert.True(t, second.SharedFile)
		assert.Equal(t, first.Filename, second.Filename)

		images, err := f.svc.List(ctx)
		require.NoError(t, err)
		require.Len(t, images, 2)
		assert.Equal(t, second.ID, images[0].ID)
		assert.Equal(t, "two", images[0].Comment)
		assert.Equal(t, 0.0, images[0].Age)
		assert.Equal(t, first.ID, images[1].ID)
		assert.Equal(t, "one", images[1].Comment)
		assert.Equal(t, 3.0, images[1].Age)

		assert.Equal(t, []string{models.ChangeUploaded, models.ChangeUploaded}, f.notifier.reasons())
	})

	t.Run("shared file stays until its last photo expires", func(t *testing.T) {
		f := newGalleryFixture(t, 10)
		first := f.upload(t, 20, "one")
		f.clock.Advance(10 * time.Second)
		second := f.upload(t, 20, "two")
		path := filepath.Join(f.dir, first.Filename)

		f.clock.Advance(6 * time.Second)
		removed, err := f.svc.Expire(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, removed)
		assert.FileExists(t, path)

		images, err := f.svc.List(ctx)
		require.NoError(t, err)
		require.Len(t, images, 1)
		assert.Equal(t, second.ID, images[0].ID)

		f.clock.Advance(10 * time.Second)
		removed, err = f.svc.Expire(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, removed)
		assert.NoFileExists(t, path)
	})

	t.Run("identical bytes are stored again when the file is gone", func(t *testing.T) {
		f := newGalleryFixture(t, 10)
		first := f.upload(t, 20, "one")
		require.NoError(t, os.Remove(filepath.Join(f.dir, first.Filename)))

		second := f.upload(t, 20, "two")

		assert.False(t, second.SharedFile)
		assert.NotEqual(t, first.Filename, second.Filename)
		assert.FileExists(t, filepath.Join(f.dir, second.Filename))
	})

	t.Run("evicting the only holder of a file stores it again", func(t *testing.T) {
		f := newGalleryFixture(t, 1)
		first := f.upload(t, 20, "one")
		f.clock.Advance(time.Second)

		second := f.upload(t, 20, "two")

		assert.Equal(t, []string{first.ID}, second.Evicted)
		assert.False(t, second.SharedFile)
		assert.NoFileExists(t, filepath.Join(f.dir, first.Filename))
		assert.FileExists(t, filepath.Join(f.dir, second.Filename))

		images, err := f.svc.List(ctx)
		require.NoError(t, err)
		require.Len(t, images, 1)
		assert.Equal(t, "two", images[0].Comment)
	})

	t.Run("evicts the oldest when full", func(t *testing.T) {
		f := newGalleryFixture(t, 2)
		a := f.upload(t, 10, "a")
		f.clock.Advance(time.Second)
		b := f.upload(t, 11, "b")
		f.clock.Advance(time.Second)
		c := f.upload(t, 12, "c")

		assert.Equal(t, []string{a.ID}, c.Evicted)
		assert.NoFileExists(t, filepath.Join(f.dir, a.Filename))

		images, err := f.svc.List(ctx)
		require.NoError(t, err)
		require.Len(t, images, 2)
		assert.Equal(t, c.ID, images[0].ID)
		assert.Equal(t, b.ID, images[1].ID)
		assert.Equal(t, 1.0, images[1].Age)

		assert.Equal(t, []string{
			models.ChangeUploaded, models.ChangeUploaded, models.ChangeEvicted, models.ChangeUploaded,
		}, f.notifier.reasons())
	})
}

func TestGalleryService_Expire(t *testing.T) {
	ctx := context.Background()

	t.Run("removes photos past lifetime plus fadeout", func(t *testing.T) {
		f := newGalleryFixture(t, 10)
		old := f.upload(t, 10, "old")
		f.clock.Advance(10 * time.Second)
		fresh := f.upload(t, 11, "fresh")

		f.clock.Advance(5 * time.Second)
		removed, err := f.svc.Expire(ctx)
		require.NoError(t, err)
		assert.Zero(t, removed, "age equal to retention is still listed")

		f.clock.Advance(100 * time.Millisecond)
		removed, err = f.svc.Expire(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, removed)
		assert.NoFileExists(t, filepath.Join(f.dir, old.Filename))

		images, err := f.svc.List(ctx)
		require.NoError(t, err)
		require.Len(t, images, 1)
		assert.Equal(t, fresh.ID, images[0].ID)
		assert.Contains(t, f.notifier.reasons(), models.ChangeExpired)
	})

	t.Run("a missing file does not keep the record", func(t *testing.T) {
		f := newGalleryFixture(t, 10)
		p := f.upload(t, 10, "")
		require.NoError(t, os.Remove(filepath.Join(f.dir, p.Filename)))

		f.clock.Advance(20 * time.Second)
		removed, err := f.svc.Expire(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, removed)

		count, err := f.svc.Count(ctx)
		require.NoError(t, err)
		assert.Zero(t, count)
	})
}

func TestExpirySweeper(t *testing.T) {
	f := newGalleryFixture(t, 10)
	f.upload(t, 10, "")
	f.clock.Advance(time.Minute)

	sweeper := NewExpirySweeper(f.svc, 10*time.Millisecond)
	sweeper.Start()
	sweeper.Start()

	require.Eventually(t, func() bool {
		count, err := f.svc.Count(context.Background())
		return err == nil && count == 0
	}, 2*time.Second, 10*time.Millisecond)

	sweeper.Stop()
	sweeper.Stop()

	assert.Zero(t, sweeper.RunOnce(context.Background()))
}
