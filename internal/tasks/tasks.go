// Package tasks runs background work on asynq: thumbnail generation for
// uploaded listing images.
package tasks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	_ "image/gif" // register decoders for image.Decode
	"image/jpeg"
	_ "image/png"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/nfnt/resize"

	"github.com/iliyamo/real-estate-listings/internal/storage"
)

const (
	TypeImageProcess = "image:process"
	QueueImages      = "images"

	// ThumbnailSize bounds both sides of a thumbnail, in pixels.
	ThumbnailSize = 480
)

// ImageTaskPayload identifies a stored listing image.
type ImageTaskPayload struct {
	ListingID uint64 `json:"listing_id"`
	Key       string `json:"key"`
}

// Client enqueues tasks.
type Client struct {
	c *asynq.Client
}

func NewClient(opt asynq.RedisClientOpt) *Client {
	return &Client{c: asynq.NewClient(opt)}
}

func (c *Client) Close() error { return c.c.Close() }

// EnqueueImageProcess schedules thumbnail generation for key.
func (c *Client) EnqueueImageProcess(ctx context.Context, listingID uint64, key string) error {
	payload, err := json.Marshal(ImageTaskPayload{ListingID: listingID, Key: key})
	if err != nil {
		return err
	}
	_, err = c.c.EnqueueContext(ctx, asynq.NewTask(TypeImageProcess, payload),
		asynq.Queue(QueueImages), asynq.MaxRetry(5))
	return err
}

// Blobs is the part of storage.Store the processor needs.
type Blobs interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key, contentType string, data []byte) error
}

// Processor handles tasks.
type Processor struct {
	blobs Blobs
	log   *slog.Logger
}

func NewProcessor(blobs Blobs, log *slog.Logger) *Processor {
	if log == nil {
		log = slog.Default()
	}
	return &Processor{blobs: blobs, log: log}
}

// Mux routes task types to their handlers.
func (p *Processor) Mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeImageProcess, p.HandleImageProcess)
	return mux
}

// HandleImageProcess writes a JPEG thumbnail next to the original image.
// Payload and decoding problems are not retried.
func (p *Processor) HandleImageProcess(ctx context.Context, t *asynq.Task) error {
	var payload ImageTaskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal image task payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.Key == "" {
		return fmt.Errorf("image task without key: %w", asynq.SkipRetry)
	}

	data, err := p.blobs.Get(ctx, payload.Key)
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("image %s not found: %w", payload.Key, asynq.SkipRetry)
	}
	if err != nil {
		return fmt.Errorf("download image: %w", err)
	}

	thumb, err := MakeThumbnail(data, ThumbnailSize)
	if err != nil {
		p.log.Warn("thumbnail skipped", "key", payload.Key, "err", err)
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	dst := storage.ThumbnailKey(payload.Key)
	if err := p.blobs.Put(ctx, dst, "image/jpeg", thumb); err != nil {
		return fmt.Errorf("upload thumbnail: %w", err)
	}
	p.log.Info("thumbnail stored", "listing_id", payload.ListingID, "key", dst)
	return nil
}

// MakeThumbnail decodes a JPEG, PNG or GIF image and re-encodes it as a
// JPEG that fits in maxDim x maxDim, keeping the aspect ratio. Images that
// already fit are only re-encoded.
func MakeThumbnail(data []byte, maxDim uint) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	thumb := resize.Thumbnail(maxDim, maxDim, img, resize.Lanczos3)
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, thumb, &jpeg.Options{Quality: 85}); err != nil {
		return nil, fmt.Errorf("encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}
