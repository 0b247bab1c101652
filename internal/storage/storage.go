// Package storage persists listing images and hands back stable keys.
package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"
)

// ErrNotFound is returned by Get for a missing object.
var ErrNotFound = errors.New("object not found")

// Store is the file storage collaborator.
type Store interface {
	Put(ctx context.Context, key, contentType string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	// URL returns an address clients can fetch the object from.
	URL(ctx context.Context, key string) (string, error)
}

// NewImageKey returns a fresh key for an image of a listing, e.g.
// listings/12/6f1c...e9.jpg.
func NewImageKey(listingID uint64, ext string) string {
	ext = strings.TrimPrefix(strings.ToLower(ext), ".")
	return fmt.Sprintf("listings/%d/%s.%s", listingID, uuid.NewString(), ext)
}

// ThumbnailKey is where the thumbnail of the image at key is stored.
func ThumbnailKey(key string) string {
	dir, file := path.Split(key)
	name := strings.TrimSuffix(file, path.Ext(file))
	return dir + "thumbs/" + name + ".jpg"
}
