package listing

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/iliyamo/real-estate-listings/internal/model"
	"github.com/iliyamo/real-estate-listings/internal/queue"
	"github.com/iliyamo/real-estate-listings/internal/quota"
	"github.com/iliyamo/real-estate-listings/internal/repository"
	"github.com/iliyamo/real-estate-listings/internal/storage"
)

// Files stores and removes image bytes.
type Files interface {
	Put(ctx context.Context, key, contentType string, data []byte) error
	Delete(ctx context.Context, key string) error
}

// Events receives committed changes.
type Events interface {
	Publish(ctx context.Context, ev queue.Event) error
}

// Thumbnails schedules thumbnail generation for a stored image.
type Thumbnails interface {
	EnqueueImageProcess(ctx context.Context, listingID uint64, key string) error
}

// Actor is the authenticated caller of an operation.
type Actor struct {
	UserID uint64
	Admin  bool
}

func (a Actor) canEdit(l model.Listing) bool {
	return a.Admin || a.UserID == l.OwnerID
}

// AttachResult reports what happened to each file of an upload batch.
// Skipped files were not valid images; Dropped files were valid but did not
// fit in the plan's image limit.
type AttachResult struct {
	Stored  []model.ListingImage `json:"stored"`
	Skipped int                  `json:"skipped"`
	Dropped int                  `json:"dropped"`
}

// Deps wires a Service. Files, Events and Thumbnails are optional.
type Deps struct {
	DB         *sql.DB
	Users      *repository.UserRepo
	Listings   *repository.ListingRepo
	Images     *repository.ImageRepo
	Guard      *quota.Guard
	Files      Files
	Events     Events
	Thumbnails Thumbnails
	Now        func() time.Time
	Log        *slog.Logger
}

// Service runs owner-side listing operations. Every quota-consuming write
// happens in one transaction that holds the owner's row lock from the
// quota check until commit.
type Service struct {
	db       *sql.DB
	users    *repository.UserRepo
	listings *repository.ListingRepo
	images   *repository.ImageRepo
	guard    *quota.Guard
	files    Files
	events   Events
	thumbs   Thumbnails
	now      func() time.Time
	log      *slog.Logger
}

func NewService(d Deps) *Service {
	if d.DB == nil || d.Users == nil || d.Listings == nil || d.Images == nil || d.Guard == nil {
		panic("listing: missing dependency")
	}
	s := &Service{
		db: d.DB, users: d.Users, listings: d.Listings, images: d.Images, guard: d.Guard,
		files: d.Files, events: d.Events, thumbs: d.Thumbnails, now: d.Now, log: d.Log,
	}
	if s.events == nil {
		s.events = queue.Discard{}
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	return s
}

func (s *Service) clock() time.Time {
	return s.now().UTC().Truncate(time.Second)
}

// Create validates d and inserts a pending listing for the actor, then
// attaches as many images as the plan allows. Nothing is inserted when the
// quota is full.
func (s *Service) Create(ctx context.Context, actor Actor, d Draft, files []Upload) (model.Listing, AttachResult, error) {
	if err := d.Validate(); err != nil {
		return model.Listing{}, AttachResult{}, err
	}
	uploads, skipped := checkUploads(files)
	now := s.clock()

	var (
		l      model.Listing
		result = AttachResult{Skipped: skipped}
		keys   []string
	)
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		u, err := s.users.GetAccountTx(ctx, tx, actor.UserID, true)
		if err != nil {
			return err
		}
		if u.Banned {
			return ErrBanned
		}
		dec, err := s.guard.CanCreateListing(ctx, tx, actor.UserID)
		if err != nil {
			return err
		}
		if !dec.Allowed {
			return &QuotaError{Decision: dec}
		}

		l = model.Listing{OwnerID: actor.UserID, Status: model.StatusPending, CreatedAt: now, UpdatedAt: now}
		d.apply(&l)
		if err := s.listings.CreateTx(ctx, tx, &l); err != nil {
			return fmt.Errorf("insert listing: %w", err)
		}
		stored, dropped, k, err := s.storeImages(ctx, tx, l, uploads, now)
		keys = k
		if err != nil {
			return err
		}
		result.Stored, result.Dropped = stored, dropped
		return nil
	})
	if err != nil {
		s.discard(keys)
		return model.Listing{}, AttachResult{}, err
	}

	s.publish(queue.Event{Type: queue.ListingCreated, ListingID: l.ID, UserID: l.OwnerID,
		ActorID: actor.UserID, Status: string(l.Status), OccurredAt: now})
	s.enqueueThumbnails(result.Stored)
	return l, result, nil
}

// MarkSold flags the listing sold. It is always allowed.
func (s *Service) MarkSold(ctx context.Context, actor Actor, id uint64) (model.Listing, error) {
	now := s.clock()
	var (
		out     model.Listing
		changed bool
	)
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		l, err := s.listings.GetByIDTx(ctx, tx, id, true)
		if err != nil {
			return err
		}
		if !actor.canEdit(l) {
			return ErrForbidden
		}
		next := MarkSold(l, now)
		out = l
		if model.SameState(l, next) {
			return nil
		}
		next.UpdatedAt = now
		changed = true
		out = next
		return s.listings.SaveStateTx(ctx, tx, next)
	})
	if err != nil {
		return model.Listing{}, err
	}
	if changed {
		s.publish(queue.Event{Type: queue.ListingSold, ListingID: out.ID, UserID: out.OwnerID,
			ActorID: actor.UserID, Status: string(out.Status), OccurredAt: now})
	}
	return out, nil
}

// MarkAvailable clears the sold flag. When the listing would count toward
// the owner's quota again, the owner must have a free slot; otherwise the
// listing stays sold and the error wraps ErrQuotaExceeded.
func (s *Service) MarkAvailable(ctx context.Context, actor Actor, id uint64) (model.Listing, error) {
	now := s.clock()
	var (
		out     model.Listing
		changed bool
	)
	owner, err := s.editableOwner(ctx, actor, id)
	if err != nil {
		return model.Listing{}, err
	}
	err = s.inTx(ctx, func(tx *sql.Tx) error {
		l, err := s.lockOwnerAndListing(ctx, tx, owner, id)
		if err != nil {
			return err
		}
		out = l
		if !l.Sold {
			return nil
		}
		if ReentersActivePool(l) {
			dec, err := s.guard.CanMarkAvailable(ctx, tx, l)
			if err != nil {
				return err
			}
			if !dec.Allowed {
				return &QuotaError{Decision: dec}
			}
		}
		next := MarkAvailable(l)
		next.UpdatedAt = now
		changed = true
		out = next
		return s.listings.SaveStateTx(ctx, tx, next)
	})
	if err != nil {
		return model.Listing{}, err
	}
	if changed {
		s.publish(queue.Event{Type: queue.ListingAvailable, ListingID: out.ID, UserID: out.OwnerID,
			ActorID: actor.UserID, Status: string(out.Status), OccurredAt: now})
	}
	return out, nil
}

// ToggleSold flips the sold flag.
func (s *Service) ToggleSold(ctx context.Context, actor Actor, id uint64) (model.Listing, error) {
	l, err := s.listings.GetByID(ctx, id)
	if err != nil {
		return model.Listing{}, err
	}
	if !actor.canEdit(l) {
		return model.Listing{}, ErrForbidden
	}
	if l.Sold {
		return s.MarkAvailable(ctx, actor, id)
	}
	return s.MarkSold(ctx, actor, id)
}

// AttachImages stores as many of files as the owner's plan still allows for
// the listing. Extra files are dropped without an error.
func (s *Service) AttachImages(ctx context.Context, actor Actor, id uint64, files []Upload) (AttachResult, error) {
	uploads, skipped := checkUploads(files)
	now := s.clock()
	result := AttachResult{Skipped: skipped}
	var keys []string
	owner, err := s.editableOwner(ctx, actor, id)
	if err != nil {
		return AttachResult{}, err
	}
	err = s.inTx(ctx, func(tx *sql.Tx) error {
		l, err := s.lockOwnerAndListing(ctx, tx, owner, id)
		if err != nil {
			return err
		}
		stored, dropped, k, err := s.storeImages(ctx, tx, l, uploads, now)
		keys = k
		if err != nil {
			return err
		}
		result.Stored, result.Dropped = stored, dropped
		return nil
	})
	if err != nil {
		s.discard(keys)
		return AttachResult{}, err
	}
	s.enqueueThumbnails(result.Stored)
	return result, nil
}

// storeImages writes up to the available slots of uploads. It returns the
// keys it wrote so the caller can remove them if tx does not commit.
func (s *Service) storeImages(ctx context.Context, tx *sql.Tx, l model.Listing, uploads []checkedUpload, now time.Time) ([]model.ListingImage, int, []string, error) {
	if len(uploads) == 0 {
		return nil, 0, nil, nil
	}
	slots, err := s.guard.ImageSlots(ctx, tx, l)
	if err != nil {
		return nil, 0, nil, err
	}
	n := quota.Truncate(len(uploads), slots)
	if n > 0 && s.files == nil {
		return nil, 0, nil, errors.New("listing: no file storage configured")
	}
	var (
		stored []model.ListingImage
		keys   []string
	)
	for _, u := range uploads[:n] {
		key := storage.NewImageKey(l.ID, u.ext)
		if err := s.files.Put(ctx, key, u.contentType, u.data); err != nil {
			return nil, 0, keys, fmt.Errorf("store image: %w", err)
		}
		keys = append(keys, key)
		img, err := s.images.CreateTx(ctx, tx, l.ID, key, now)
		if err != nil {
			return nil, 0, keys, fmt.Errorf("insert image: %w", err)
		}
		stored = append(stored, img)
	}
	return stored, len(uploads) - n, keys, nil
}

// DeleteImages removes the given images of a listing and returns how many
// were removed. Ids of other listings are ignored.
func (s *Service) DeleteImages(ctx context.Context, actor Actor, id uint64, imageIDs []uint64) (int, error) {
	var removed []model.ListingImage
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		l, err := s.listings.GetByIDTx(ctx, tx, id, true)
		if err != nil {
			return err
		}
		if !actor.canEdit(l) {
			return ErrForbidden
		}
		if removed, err = s.images.ListByIDsTx(ctx, tx, id, imageIDs); err != nil {
			return err
		}
		ids := make([]uint64, 0, len(removed))
		for _, img := range removed {
			ids = append(ids, img.ID)
		}
		return s.images.DeleteTx(ctx, tx, id, ids)
	})
	if err != nil {
		return 0, err
	}
	keys := make([]string, 0, 2*len(removed))
	for _, img := range removed {
		keys = append(keys, img.FileName, storage.ThumbnailKey(img.FileName))
	}
	s.discard(keys)
	return len(removed), nil
}

// UpdateDetails replaces the descriptive fields. Moderation status and the
// sold flag are left alone.
func (s *Service) UpdateDetails(ctx context.Context, actor Actor, id uint64, d Draft) (model.Listing, error) {
	if err := d.Validate(); err != nil {
		return model.Listing{}, err
	}
	var out model.Listing
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		l, err := s.listings.GetByIDTx(ctx, tx, id, true)
		if err != nil {
			return err
		}
		if !actor.canEdit(l) {
			return ErrForbidden
		}
		d.apply(&l)
		l.UpdatedAt = s.clock()
		out = l
		return s.listings.UpdateDetailsTx(ctx, tx, l)
	})
	if err != nil {
		return model.Listing{}, err
	}
	return out, nil
}

// Get returns a listing the actor may manage.
func (s *Service) Get(ctx context.Context, actor Actor, id uint64) (model.Listing, error) {
	l, err := s.listings.GetByID(ctx, id)
	if err != nil {
		return model.Listing{}, err
	}
	if !actor.canEdit(l) {
		return model.Listing{}, ErrForbidden
	}
	return l, nil
}

func (s *Service) ListMine(ctx context.Context, userID uint64) ([]model.Listing, error) {
	return s.listings.ListByOwner(ctx, userID)
}

// editableOwner returns the owner of a listing actor may edit. Call it
// before the write transaction: the first statement inside that transaction
// must be the owner row lock, or MySQL's REPEATABLE READ snapshot predates
// the lock and the quota counts miss concurrent commits.
func (s *Service) editableOwner(ctx context.Context, actor Actor, id uint64) (uint64, error) {
	l, err := s.listings.GetByID(ctx, id)
	if err != nil {
		return 0, err
	}
	if !actor.canEdit(l) {
		return 0, ErrForbidden
	}
	return l.OwnerID, nil
}

// lockOwnerAndListing locks the owner's row, then the listing's row.
func (s *Service) lockOwnerAndListing(ctx context.Context, tx *sql.Tx, ownerID, id uint64) (model.Listing, error) {
	if _, err := s.users.GetAccountTx(ctx, tx, ownerID, true); err != nil {
		return model.Listing{}, err
	}
	l, err := s.listings.GetByIDTx(ctx, tx, id, true)
	if err != nil {
		return model.Listing{}, err
	}
	if l.OwnerID != ownerID {
		return model.Listing{}, ErrForbidden
	}
	return l, nil
}

func (s *Service) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	return nil
}

func (s *Service) publish(ev queue.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.events.Publish(ctx, ev); err != nil {
		s.log.Warn("publish event failed", "type", ev.Type, "listing_id", ev.ListingID, "err", err)
	}
}

// discard removes stored objects that no committed row points to.
func (s *Service) discard(keys []string) {
	if s.files == nil || len(keys) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, k := range keys {
		if err := s.files.Delete(ctx, k); err != nil {
			s.log.Warn("delete stored image failed", "key", k, "err", err)
		}
	}
}

func (s *Service) enqueueThumbnails(images []model.ListingImage) {
	if s.thumbs == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, img := range images {
		if err := s.thumbs.EnqueueImageProcess(ctx, img.ListingID, img.FileName); err != nil {
			s.log.Warn("enqueue thumbnail failed", "key", img.FileName, "err", err)
		}
	}
}
