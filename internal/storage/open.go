package storage

import (
	"context"
	"fmt"

	"github.com/iliyamo/real-estate-listings/internal/config"
)

// Open builds the Store selected by cfg.Driver.
func Open(ctx context.Context, cfg config.StorageConfig) (Store, error) {
	switch cfg.Driver {
	case "", "local":
		return NewLocalStore(cfg.LocalDir, cfg.LocalBaseURL)
	case "s3":
		return NewS3Store(ctx, S3Config{
			Region:          cfg.S3Region,
			Bucket:          cfg.S3Bucket,
			AccessKeyID:     cfg.AccessKeyID,
			SecretAccessKey: cfg.SecretKey,
			Endpoint:        cfg.S3Endpoint,
			URLExpiry:       cfg.URLExpiry,
		})
	}
	return nil, fmt.Errorf("unknown STORAGE_DRIVER %q", cfg.Driver)
}
