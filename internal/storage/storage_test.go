package storage

import (
	"context"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/real-estate-listings/internal/config"
)

func TestImageKeys(t *testing.T) {
	key := NewImageKey(12, ".PNG")
	assert.Regexp(t, regexp.MustCompile(`^listings/12/[0-9a-f-]{36}\.png$`), key)
	assert.NotEqual(t, key, NewImageKey(12, "png"))

	assert.Equal(t, "listings/3/thumbs/abc.jpg", ThumbnailKey("listings/3/abc.webp"))
}

func TestLocalStore(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocalStore(t.TempDir(), "http://localhost:8080/media/")
	require.NoError(t, err)

	require.NoError(t, s.Put(ctx, "listings/1/a.jpg", "image/jpeg", []byte("data")))
	got, err := s.Get(ctx, "listings/1/a.jpg")
	require.NoError(t, err)
	assert.Equal(t, []byte("data"), got)

	url, err := s.URL(ctx, "listings/1/a.jpg")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/media/listings/1/a.jpg", url)

	require.NoError(t, s.Delete(ctx, "listings/1/a.jpg"))
	require.NoError(t, s.Delete(ctx, "listings/1/a.jpg"))
	_, err = s.Get(ctx, "listings/1/a.jpg")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.Error(t, s.Put(ctx, "../escape.jpg", "image/jpeg", nil))
}

func TestOpenSelectsDriver(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(context.Background(), config.StorageConfig{Driver: "local", LocalDir: dir, LocalBaseURL: "/media"})
	require.NoError(t, err)
	local, ok := s.(*LocalStore)
	require.True(t, ok)
	assert.Equal(t, dir, local.Root())

	_, err = Open(context.Background(), config.StorageConfig{Driver: "ftp"})
	assert.Error(t, err)
}
