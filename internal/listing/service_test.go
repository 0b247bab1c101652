package listing

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"image"
	"image/color"
	"image/png"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/real-estate-listings/internal/database"
	"github.com/iliyamo/real-estate-listings/internal/database/dbtest"
	"github.com/iliyamo/real-estate-listings/internal/model"
	"github.com/iliyamo/real-estate-listings/internal/plan"
	"github.com/iliyamo/real-estate-listings/internal/queue"
	"github.com/iliyamo/real-estate-listings/internal/quota"
	"github.com/iliyamo/real-estate-listings/internal/repository"
)

type fakeFiles struct {
	mu      sync.Mutex
	objects map[string][]byte
	failAt  int // Put number that fails, 0 for never
	puts    int
}

func newFakeFiles() *fakeFiles { return &fakeFiles{objects: map[string][]byte{}} }

func (f *fakeFiles) Put(_ context.Context, key, _ string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.puts++
	if f.failAt > 0 && f.puts == f.failAt {
		return errors.New("disk full")
	}
	f.objects[key] = data
	return nil
}

func (f *fakeFiles) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, key)
	return nil
}

func (f *fakeFiles) len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.objects)
}

type recordedEvents struct {
	mu     sync.Mutex
	events []queue.Event
}

func (r *recordedEvents) Publish(_ context.Context, ev queue.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recordedEvents) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, ev := range r.events {
		out = append(out, ev.Type)
	}
	return out
}

type thumbQueue struct {
	mu   sync.Mutex
	keys []string
}

func (q *thumbQueue) EnqueueImageProcess(_ context.Context, _ uint64, key string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.keys = append(q.keys, key)
	return nil
}

type fixture struct {
	db     *sql.DB
	svc    *Service
	files  *fakeFiles
	events *recordedEvents
	thumbs *thumbQueue
	guard  *quota.Guard
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := dbtest.New(t)
	users := repository.NewUserRepo(db, database.SQLite)
	listings := repository.NewListingRepo(db, database.SQLite)
	images := repository.NewImageRepo(db)
	f := &fixture{
		db:     db,
		files:  newFakeFiles(),
		events: &recordedEvents{},
		thumbs: &thumbQueue{},
		guard:  quota.NewGuard(db, users, listings, images),
	}
	f.svc = NewService(Deps{
		DB: db, Users: users, Listings: listings, Images: images, Guard: f.guard,
		Files: f.files, Events: f.events, Thumbnails: f.thumbs,
		Now: func() time.Time { return dbtest.Now },
	})
	return f
}

func (f *fixture) active(t *testing.T, user uint64) int {
	t.Helper()
	return dbtest.CountRows(t, f.db,
		"SELECT COUNT(*) FROM properties WHERE user_id=? AND status IN ('pending','approved') AND is_sold=0", user)
}

func validDraft() Draft {
	return Draft{Title: "Garden flat", City: "Tripoli", Address: "Mina", Type: "sale", Price: 150000,
		Bedrooms: 2, Bathrooms: 1, AreaSqM: 95, Description: "Quiet street"}
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.RGBA{R: 200, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func pngUploads(t *testing.T, n int) []Upload {
	data := pngBytes(t)
	out := make([]Upload, n)
	for i := range out {
		out[i] = Upload{Name: "photo.png", Data: data}
	}
	return out
}

func TestCreate_FreePlanFourthListingRefused(t *testing.T) {
	f := newFixture(t)
	user := dbtest.InsertUser(t, f.db, "free")
	dbtest.InsertListings(t, f.db, user, "approved", false, 3)
	before := dbtest.CountRows(t, f.db, "SELECT COUNT(*) FROM properties")

	_, _, err := f.svc.Create(context.Background(), Actor{UserID: user}, validDraft(), nil)
	require.ErrorIs(t, err, ErrQuotaExceeded)
	var qerr *QuotaError
	require.ErrorAs(t, err, &qerr)
	assert.Equal(t, plan.Free, qerr.Decision.Plan)
	assert.Equal(t, 3, qerr.Decision.Limit)

	assert.Equal(t, before, dbtest.CountRows(t, f.db, "SELECT COUNT(*) FROM properties"))
	assert.Equal(t, 3, f.active(t, user))
	assert.Empty(t, f.events.types())
}

func TestCreate_ProPlanFillsLastSlot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := dbtest.InsertUser(t, f.db, "pro")
	dbtest.InsertListings(t, f.db, user, "pending", false, 11)

	l, _, err := f.svc.Create(ctx, Actor{UserID: user}, validDraft(), nil)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, l.Status)
	assert.False(t, l.Sold)
	assert.False(t, l.Featured)
	assert.Nil(t, l.FeaturedUntil)
	assert.Equal(t, 12, f.active(t, user))
	assert.Equal(t, []string{queue.ListingCreated}, f.events.types())

	_, _, err = f.svc.Create(ctx, Actor{UserID: user}, validDraft(), nil)
	assert.ErrorIs(t, err, ErrQuotaExceeded)
	assert.Equal(t, 12, f.active(t, user))
}

func TestCreate_SoldListingsFreeSlots(t *testing.T) {
	f := newFixture(t)
	user := dbtest.InsertUser(t, f.db, "free")
	dbtest.InsertListings(t, f.db, user, "approved", true, 5)
	dbtest.InsertListings(t, f.db, user, "rejected", false, 2)
	dbtest.InsertListings(t, f.db, user, "approved", false, 2)

	_, _, err := f.svc.Create(context.Background(), Actor{UserID: user}, validDraft(), nil)
	require.NoError(t, err)
	assert.Equal(t, 3, f.active(t, user))
}

func TestCreate_AgencyImagesTruncated(t *testing.T) {
	f := newFixture(t)
	user := dbtest.InsertUser(t, f.db, "agency")

	l, res, err := f.svc.Create(context.Background(), Actor{UserID: user}, validDraft(), pngUploads(t, 25))
	require.NoError(t, err)
	assert.Len(t, res.Stored, 20)
	assert.Equal(t, 5, res.Dropped)
	assert.Zero(t, res.Skipped)
	assert.Equal(t, 20, dbtest.CountRows(t, f.db, "SELECT COUNT(*) FROM property_images WHERE property_id=?", l.ID))
	assert.Equal(t, 20, f.files.len())
	assert.Len(t, f.thumbs.keys, 20)
}

func TestCreate_RefusesBannedAndInvalid(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := dbtest.InsertUser(t, f.db, "pro")
	_, err := f.db.Exec("UPDATE users SET is_banned=1 WHERE id=?", user)
	require.NoError(t, err)

	_, _, err = f.svc.Create(ctx, Actor{UserID: user}, validDraft(), nil)
	assert.ErrorIs(t, err, ErrBanned)

	_, _, err = f.svc.Create(ctx, Actor{UserID: user}, Draft{}, nil)
	assert.ErrorIs(t, err, ErrInvalidDraft)
	assert.Zero(t, dbtest.CountRows(t, f.db, "SELECT COUNT(*) FROM properties"))
}

func TestCreate_StorageFailureLeavesNothing(t *testing.T) {
	f := newFixture(t)
	f.files.failAt = 3
	user := dbtest.InsertUser(t, f.db, "pro")

	_, _, err := f.svc.Create(context.Background(), Actor{UserID: user}, validDraft(), pngUploads(t, 4))
	require.Error(t, err)
	assert.Zero(t, dbtest.CountRows(t, f.db, "SELECT COUNT(*) FROM properties"))
	assert.Zero(t, dbtest.CountRows(t, f.db, "SELECT COUNT(*) FROM property_images"))
	assert.Zero(t, f.files.len(), "objects written before the failure are removed")
}

func TestAttachImages(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := dbtest.InsertUser(t, f.db, "free")
	id := dbtest.InsertListing(t, f.db, user, "approved", false)

	files := append(pngUploads(t, 3),
		Upload{Name: "notes.txt", Data: []byte("just some text")},
		Upload{Name: "big.png", Data: make([]byte, MaxImageBytes+1)},
	)
	res, err := f.svc.AttachImages(ctx, Actor{UserID: user}, id, files)
	require.NoError(t, err)
	assert.Len(t, res.Stored, 3)
	assert.Equal(t, 2, res.Skipped)
	assert.Zero(t, res.Dropped)

	// free plan holds five images; two slots are left
	res, err = f.svc.AttachImages(ctx, Actor{UserID: user}, id, pngUploads(t, 4))
	require.NoError(t, err)
	assert.Len(t, res.Stored, 2)
	assert.Equal(t, 2, res.Dropped)

	res, err = f.svc.AttachImages(ctx, Actor{UserID: user}, id, pngUploads(t, 1))
	require.NoError(t, err)
	assert.Empty(t, res.Stored)
	assert.Equal(t, 1, res.Dropped)

	stranger := dbtest.InsertUser(t, f.db, "agency")
	_, err = f.svc.AttachImages(ctx, Actor{UserID: stranger}, id, pngUploads(t, 1))
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestAttachImages_DowngradeIsNotRetroactive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := dbtest.InsertUser(t, f.db, "pro")
	id := dbtest.InsertListing(t, f.db, user, "approved", false)

	_, err := f.svc.AttachImages(ctx, Actor{UserID: user}, id, pngUploads(t, 8))
	require.NoError(t, err)
	_, err = f.db.Exec("UPDATE users SET plan='free' WHERE id=?", user)
	require.NoError(t, err)

	res, err := f.svc.AttachImages(ctx, Actor{UserID: user}, id, pngUploads(t, 1))
	require.NoError(t, err)
	assert.Empty(t, res.Stored)
	assert.Equal(t, 8, dbtest.CountRows(t, f.db, "SELECT COUNT(*) FROM property_images WHERE property_id=?", id))
}

func TestMarkAvailable_ReactivationGuard(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := dbtest.InsertUser(t, f.db, "free")
	dbtest.InsertListings(t, f.db, user, "approved", false, 3)
	sold := dbtest.InsertListing(t, f.db, user, "approved", true)

	_, err := f.svc.MarkAvailable(ctx, Actor{UserID: user}, sold)
	require.ErrorIs(t, err, ErrQuotaExceeded)

	l, err := f.svc.Get(ctx, Actor{UserID: user}, sold)
	require.NoError(t, err)
	assert.True(t, l.Sold)
	assert.NotNil(t, l.SoldAt)
	assert.Equal(t, 3, f.active(t, user))
}

func TestMarkAvailable_ConcurrentRequestsShareOneSlot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := dbtest.InsertUser(t, f.db, "free")
	dbtest.InsertListings(t, f.db, user, "approved", false, 2)
	sold := dbtest.InsertListings(t, f.db, user, "approved", true, 4)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		ok      int
		refused int
	)
	for _, id := range sold {
		wg.Add(1)
		go func(id uint64) {
			defer wg.Done()
			_, err := f.svc.MarkAvailable(ctx, Actor{UserID: user}, id)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, ErrQuotaExceeded):
				refused++
			default:
				t.Errorf("mark available %d: %v", id, err)
			}
		}(id)
	}
	wg.Wait()

	assert.Equal(t, 1, ok)
	assert.Equal(t, 3, refused)
	assert.Equal(t, 3, f.active(t, user))
}

func TestAttachImages_ConcurrentUploadsShareSlots(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := dbtest.InsertUser(t, f.db, "free")
	id := dbtest.InsertListing(t, f.db, user, "approved", false)
	uploads := pngUploads(t, 4)

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.AttachImages(ctx, Actor{UserID: user}, id, uploads)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, dbtest.CountRows(t, f.db, "SELECT COUNT(*) FROM property_images WHERE property_id=?", id))
	assert.Equal(t, 5, f.files.len())
}

func TestMarkAvailable_RejectedIsUnguarded(t *testing.T) {
	f := newFixture(t)
	user := dbtest.InsertUser(t, f.db, "free")
	dbtest.InsertListings(t, f.db, user, "approved", false, 3)
	sold := dbtest.InsertListing(t, f.db, user, "rejected", true)

	l, err := f.svc.MarkAvailable(context.Background(), Actor{UserID: user}, sold)
	require.NoError(t, err)
	assert.False(t, l.Sold)
	assert.Equal(t, 3, f.active(t, user))
}

func TestSoldRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := dbtest.InsertUser(t, f.db, "free")
	ids := dbtest.InsertListings(t, f.db, user, "approved", false, 3)

	l, err := f.svc.MarkSold(ctx, Actor{UserID: user}, ids[0])
	require.NoError(t, err)
	assert.True(t, l.Sold)
	assert.Equal(t, dbtest.Now, *l.SoldAt)
	assert.Equal(t, 2, f.active(t, user))

	// repeating is a no-op and publishes nothing new
	_, err = f.svc.MarkSold(ctx, Actor{UserID: user}, ids[0])
	require.NoError(t, err)

	l, err = f.svc.ToggleSold(ctx, Actor{UserID: user}, ids[0])
	require.NoError(t, err)
	assert.False(t, l.Sold)
	assert.Equal(t, 3, f.active(t, user))

	_, err = f.svc.MarkAvailable(ctx, Actor{UserID: user}, ids[0])
	require.NoError(t, err)
	assert.Equal(t, []string{queue.ListingSold, queue.ListingAvailable}, f.events.types())
}

func TestOwnerChecks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := dbtest.InsertUser(t, f.db, "free")
	other := dbtest.InsertUser(t, f.db, "free")
	admin := dbtest.InsertAdmin(t, f.db)
	id := dbtest.InsertListing(t, f.db, owner, "approved", false)

	_, err := f.svc.MarkSold(ctx, Actor{UserID: other}, id)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = f.svc.UpdateDetails(ctx, Actor{UserID: other}, id, validDraft())
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = f.svc.Get(ctx, Actor{UserID: other}, id)
	assert.ErrorIs(t, err, ErrForbidden)

	l, err := f.svc.MarkSold(ctx, Actor{UserID: admin, Admin: true}, id)
	require.NoError(t, err)
	assert.True(t, l.Sold)

	_, err = f.svc.MarkSold(ctx, Actor{UserID: owner}, id+100)
	assert.ErrorIs(t, err, repository.ErrListingNotFound)
}

func TestUpdateDetailsKeepsState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := dbtest.InsertUser(t, f.db, "free")
	id := dbtest.InsertListing(t, f.db, owner, "approved", false)

	d := validDraft()
	d.Title = "Renovated garden flat"
	l, err := f.svc.UpdateDetails(ctx, Actor{UserID: owner}, id, d)
	require.NoError(t, err)
	assert.Equal(t, "Renovated garden flat", l.Title)
	assert.Equal(t, model.StatusApproved, l.Status)

	mine, err := f.svc.ListMine(ctx, owner)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "Renovated garden flat", mine[0].Title)
}

func TestDeleteImages(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := dbtest.InsertUser(t, f.db, "free")
	id := dbtest.InsertListing(t, f.db, owner, "approved", false)
	res, err := f.svc.AttachImages(ctx, Actor{UserID: owner}, id, pngUploads(t, 3))
	require.NoError(t, err)

	n, err := f.svc.DeleteImages(ctx, Actor{UserID: owner}, id, []uint64{res.Stored[0].ID, res.Stored[1].ID, 9999})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 1, f.files.len())
	assert.Equal(t, 1, dbtest.CountRows(t, f.db, "SELECT COUNT(*) FROM property_images WHERE property_id=?", id))
}
