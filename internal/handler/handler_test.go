package handler_test

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/real-estate-listings/internal/billing"
	"github.com/iliyamo/real-estate-listings/internal/config"
	"github.com/iliyamo/real-estate-listings/internal/database"
	"github.com/iliyamo/real-estate-listings/internal/database/dbtest"
	"github.com/iliyamo/real-estate-listings/internal/handler"
	"github.com/iliyamo/real-estate-listings/internal/listing"
	"github.com/iliyamo/real-estate-listings/internal/model"
	"github.com/iliyamo/real-estate-listings/internal/moderation"
	"github.com/iliyamo/real-estate-listings/internal/quota"
	"github.com/iliyamo/real-estate-listings/internal/repository"
	"github.com/iliyamo/real-estate-listings/internal/router"
	"github.com/iliyamo/real-estate-listings/internal/storage"
	"github.com/iliyamo/real-estate-listings/internal/utils"
)

const secret = "handler-test-secret"

type env struct {
	e  *echo.Echo
	db *sql.DB
}

func newEnv(t *testing.T) *env {
	t.Helper()
	db := dbtest.New(t)
	users := repository.NewUserRepo(db, database.SQLite)
	listings := repository.NewListingRepo(db, database.SQLite)
	images := repository.NewImageRepo(db)
	stats := repository.NewStatRepo(db, database.SQLite)
	favs := repository.NewFavoriteRepo(db)
	tokens := repository.NewTokenRepo(db)
	store, err := storage.NewLocalStore(t.TempDir(), "/media")
	require.NoError(t, err)

	guard := quota.NewGuard(db, users, listings, images)
	svc := listing.NewService(listing.Deps{
		DB: db, Users: users, Listings: listings, Images: images, Guard: guard, Files: store,
	})
	wf := moderation.NewWorkflow(moderation.Deps{
		DB: db, Users: users, Listings: listings, Tokens: tokens,
		Billing: billing.NewService(db, users, nil, nil),
	})
	cfg := config.Config{JWTSecret: secret, AccessTTLMin: 15, RefreshTTLDays: 7, BcryptCost: bcrypt.MinCost}

	e := echo.New()
	router.RegisterRoutes(e)
	router.RegisterAuth(e, handler.NewAuthHandler(cfg, users, tokens, nil), secret)
	router.RegisterPublic(e, handler.NewPublicHandler(listings, images, stats, store, nil), nil)
	router.RegisterOwner(e,
		handler.NewOwnerHandler(svc, guard, images, stats, store, nil),
		handler.NewFavoriteHandler(favs, listings, stats, nil),
		secret)
	router.RegisterAdmin(e, handler.NewAdminHandler(wf, nil), secret)
	return &env{e: e, db: db}
}

func bearer(t *testing.T, id uint64, role string) string {
	t.Helper()
	tok, err := utils.NewAccessToken(secret, id, role, 15)
	require.NoError(t, err)
	return "Bearer " + tok.Token
}

func (v *env) do(t *testing.T, method, path, auth string, body any) (int, map[string]any) {
	t.Helper()
	var rdr *bytes.Reader
	if body != nil {
		bs, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(bs)
	} else {
		rdr = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rdr)
	if body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if auth != "" {
		req.Header.Set(echo.HeaderAuthorization, auth)
	}
	return v.serve(t, req)
}

func (v *env) serve(t *testing.T, req *http.Request) (int, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	v.e.ServeHTTP(rec, req)
	out := map[string]any{}
	if rec.Body.Len() > 0 && strings.HasPrefix(rec.Header().Get(echo.HeaderContentType), echo.MIMEApplicationJSON) {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec.Code, out
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	img.Set(1, 1, color.RGBA{R: 200, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// createRequest builds the multipart form used by POST /v1/me/listings.
func createRequest(t *testing.T, auth string, title string, images int) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fields := map[string]string{
		"title": title, "city": "Tripoli", "address": "Main street", "listing_type": "sale",
		"price": "250000", "bedrooms": "3", "bathrooms": "2", "area_sq_m": "120", "description": "Sunny",
	}
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	for i := 0; i < images; i++ {
		fw, err := w.CreateFormFile("images[]", fmt.Sprintf("photo%d.png", i))
		require.NoError(t, err)
		_, err = fw.Write(pngBytes(t))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	req := httptest.NewRequest(http.MethodPost, "/v1/me/listings", &buf)
	req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
	req.Header.Set(echo.HeaderAuthorization, auth)
	return req
}

func TestAuthFlow(t *testing.T) {
	v := newEnv(t)

	code, body := v.do(t, http.MethodPost, "/v1/auth/register", "", echo.Map{"email": "a@example.com", "password": "short"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, body = v.do(t, http.MethodPost, "/v1/auth/register", "", echo.Map{"email": "A@Example.com", "password": "long-enough"})
	require.Equal(t, http.StatusCreated, code)
	user := body["user"].(map[string]any)
	assert.Equal(t, "a@example.com", user["email"])
	assert.Equal(t, model.RoleUser, user["role"])
	assert.Equal(t, "free", user["plan"])
	access := body["access"].(map[string]any)["token"].(string)
	refresh := body["refresh"].(map[string]any)["token"].(string)

	code, _ = v.do(t, http.MethodPost, "/v1/auth/register", "", echo.Map{"email": "a@example.com", "password": "long-enough"})
	assert.Equal(t, http.StatusConflict, code)

	code, _ = v.do(t, http.MethodPost, "/v1/auth/login", "", echo.Map{"email": "a@example.com", "password": "wrong-password"})
	assert.Equal(t, http.StatusUnauthorized, code)

	code, body = v.do(t, http.MethodGet, "/v1/me", "Bearer "+access, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "a@example.com", body["email"])

	code, body = v.do(t, http.MethodPost, "/v1/auth/refresh", "", echo.Map{"refresh_token": refresh})
	require.Equal(t, http.StatusOK, code)
	assert.NotEqual(t, refresh, body["refresh"].(map[string]any)["token"])

	// the rotated token is spent
	code, _ = v.do(t, http.MethodPost, "/v1/auth/refresh", "", echo.Map{"refresh_token": refresh})
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestCreateListingEnforcesQuota(t *testing.T) {
	v := newEnv(t)
	uid := dbtest.InsertUser(t, v.db, "free")
	auth := bearer(t, uid, model.RoleUser)

	for i := 0; i < 3; i++ {
		code, body := v.serve(t, createRequest(t, auth, fmt.Sprintf("Flat %d", i), 1))
		require.Equal(t, http.StatusCreated, code, body)
		assert.Equal(t, "pending", body["listing"].(map[string]any)["status"])
		assert.EqualValues(t, 1, body["images"].(map[string]any)["stored"])
	}

	code, body := v.serve(t, createRequest(t, auth, "One too many", 0))
	require.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "free", body["plan"])
	assert.EqualValues(t, 3, body["limit"])
	assert.EqualValues(t, 3, body["active"])
	assert.Equal(t, 3, dbtest.CountRows(t, v.db, "SELECT COUNT(*) FROM properties WHERE user_id=?", uid))

	code, body = v.do(t, http.MethodGet, "/v1/me/quota", auth, nil)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 0, body["remaining"])
	assert.Equal(t, false, body["can_create"])
}

func TestCreateListingRejectsInvalidDraft(t *testing.T) {
	v := newEnv(t)
	uid := dbtest.InsertUser(t, v.db, "free")
	code, body := v.serve(t, createRequest(t, bearer(t, uid, model.RoleUser), "  ", 0))
	require.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, body["fields"], "title")
}

func TestSoldToggleFreesSlot(t *testing.T) {
	v := newEnv(t)
	uid := dbtest.InsertUser(t, v.db, "free")
	ids := dbtest.InsertListings(t, v.db, uid, "approved", false, 3)
	auth := bearer(t, uid, model.RoleUser)

	code, body := v.do(t, http.MethodPost, fmt.Sprintf("/v1/me/listings/%d/sold", ids[0]), auth, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["is_sold"])

	code, _ = v.serve(t, createRequest(t, auth, "Takes the freed slot", 0))
	require.Equal(t, http.StatusCreated, code)

	code, body = v.do(t, http.MethodPost, fmt.Sprintf("/v1/me/listings/%d/available", ids[0]), auth, nil)
	require.Equal(t, http.StatusConflict, code)
	assert.EqualValues(t, 3, body["active"])

	other := dbtest.InsertUser(t, v.db, "free")
	code, _ = v.do(t, http.MethodPost, fmt.Sprintf("/v1/me/listings/%d/toggle-sold", ids[1]), bearer(t, other, model.RoleUser), nil)
	assert.Equal(t, http.StatusForbidden, code)
}

func TestPublicVisibilityFollowsModeration(t *testing.T) {
	v := newEnv(t)
	owner := dbtest.InsertUser(t, v.db, "pro")
	admin := bearer(t, dbtest.InsertAdmin(t, v.db), model.RoleAdmin)
	id := dbtest.InsertListing(t, v.db, owner, "pending", false)
	path := fmt.Sprintf("/v1/listings/%d", id)

	code, _ := v.do(t, http.MethodGet, path, "", nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = v.do(t, http.MethodPost, fmt.Sprintf("/v1/admin/listings/%d/feature", id), admin, echo.Map{"days": 30})
	assert.Equal(t, http.StatusConflict, code, "pending listings cannot be featured")

	code, body := v.do(t, http.MethodPost, fmt.Sprintf("/v1/admin/listings/%d/approve", id), admin, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "approved", body["status"])

	code, body = v.do(t, http.MethodGet, path, "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Flat", body["title"])
	assert.NotContains(t, body, "owner_id")
	assert.Equal(t, 1, dbtest.CountRows(t, v.db, "SELECT COALESCE(SUM(views),0) FROM property_stats WHERE property_id=?", id))

	code, _ = v.do(t, http.MethodPost, fmt.Sprintf("/v1/admin/listings/%d/feature?days=400", id), admin, nil)
	require.Equal(t, http.StatusOK, code)
	code, body = v.do(t, http.MethodGet, "/v1/listings/featured", "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["items"], 1)

	code, body = v.do(t, http.MethodPost, fmt.Sprintf("/v1/admin/listings/%d/reject", id), admin, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, body["is_featured"])
	_, body = v.do(t, http.MethodGet, "/v1/listings/featured", "", nil)
	assert.Empty(t, body["items"])

	code, _ = v.do(t, http.MethodPost, path+"/contact", "", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestBrowseFilters(t *testing.T) {
	v := newEnv(t)
	owner := dbtest.InsertUser(t, v.db, "pro")
	dbtest.InsertListings(t, v.db, owner, "approved", false, 2)
	dbtest.InsertListing(t, v.db, owner, "approved", true)
	dbtest.InsertListing(t, v.db, owner, "pending", false)

	code, body := v.do(t, http.MethodGet, "/v1/listings?city=tripoli&type=sale", "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 2, body["total"])

	code, body = v.do(t, http.MethodGet, "/v1/listings?type=rent", "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 0, body["total"])
	assert.Empty(t, body["items"])

	code, _ = v.do(t, http.MethodGet, "/v1/listings?type=lease", "", nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestFavorites(t *testing.T) {
	v := newEnv(t)
	owner := dbtest.InsertUser(t, v.db, "free")
	fan := dbtest.InsertUser(t, v.db, "free")
	id := dbtest.InsertListing(t, v.db, owner, "approved", false)
	pending := dbtest.InsertListing(t, v.db, owner, "pending", false)
	toggle := func(listingID uint64) string { return fmt.Sprintf("/v1/me/favorites/%d/toggle", listingID) }

	code, _ := v.do(t, http.MethodPost, toggle(id), bearer(t, owner, model.RoleUser), nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = v.do(t, http.MethodPost, toggle(pending), bearer(t, fan, model.RoleUser), nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, body := v.do(t, http.MethodPost, toggle(id), bearer(t, fan, model.RoleUser), nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["saved"])
	assert.Equal(t, 1, dbtest.CountRows(t, v.db, "SELECT COALESCE(SUM(saves),0) FROM property_stats WHERE property_id=?", id))

	code, body = v.do(t, http.MethodGet, "/v1/me/favorites", bearer(t, fan, model.RoleUser), nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["items"], 1)
}

func TestAdminRoutesRequireAdmin(t *testing.T) {
	v := newEnv(t)
	uid := dbtest.InsertUser(t, v.db, "free")

	code, _ := v.do(t, http.MethodGet, "/v1/admin/listings", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	code, _ = v.do(t, http.MethodGet, "/v1/admin/listings", bearer(t, uid, model.RoleUser), nil)
	assert.Equal(t, http.StatusForbidden, code)
}

func TestAdminBanAndPlan(t *testing.T) {
	v := newEnv(t)
	adminID := dbtest.InsertAdmin(t, v.db)
	admin := bearer(t, adminID, model.RoleAdmin)
	uid := dbtest.InsertUser(t, v.db, "free")

	code, _ := v.do(t, http.MethodPost, fmt.Sprintf("/v1/admin/users/%d/ban", adminID), admin, nil)
	assert.Equal(t, http.StatusConflict, code)

	code, body := v.do(t, http.MethodPost, fmt.Sprintf("/v1/admin/users/%d/ban", uid), admin, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["is_banned"])

	code, _ = v.serve(t, createRequest(t, bearer(t, uid, model.RoleUser), "Banned post", 0))
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = v.do(t, http.MethodPut, fmt.Sprintf("/v1/admin/users/%d/plan", uid), admin, echo.Map{"plan": "gold"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, body = v.do(t, http.MethodPut, fmt.Sprintf("/v1/admin/users/%d/plan", uid), admin, echo.Map{"plan": "agency"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "agency", body["plan"])

	code, body = v.do(t, http.MethodGet, "/v1/admin/listings?status=all", admin, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "all", body["status"])
	assert.EqualValues(t, 1, body["page"])
}

func TestOwnerStatsCountViewsAndContacts(t *testing.T) {
	v := newEnv(t)
	owner := dbtest.InsertUser(t, v.db, "free")
	id := dbtest.InsertListing(t, v.db, owner, "approved", false)

	for i := 0; i < 2; i++ {
		code, _ := v.do(t, http.MethodGet, fmt.Sprintf("/v1/listings/%d", id), "", nil)
		require.Equal(t, http.StatusOK, code)
	}
	code, _ := v.do(t, http.MethodPost, fmt.Sprintf("/v1/listings/%d/contact", id), "", nil)
	require.Equal(t, http.StatusNoContent, code)

	path := fmt.Sprintf("/v1/me/listings/%d/stats", id)
	code, body := v.do(t, http.MethodGet, path, bearer(t, owner, model.RoleUser), nil)
	require.Equal(t, http.StatusOK, code)
	totals := body["totals"].(map[string]any)
	assert.EqualValues(t, 2, totals["views"])
	assert.EqualValues(t, 1, totals["contact_clicks"])
	assert.Len(t, body["days"], 1)

	stranger := dbtest.InsertUser(t, v.db, "free")
	code, _ = v.do(t, http.MethodGet, path, bearer(t, stranger, model.RoleUser), nil)
	assert.Equal(t, http.StatusForbidden, code)
}

func TestAdminFeatureDaysFallBackToDefault(t *testing.T) {
	v := newEnv(t)
	admin := bearer(t, dbtest.InsertAdmin(t, v.db), model.RoleAdmin)
	owner := dbtest.InsertUser(t, v.db, "free")

	for _, body := range []any{
		echo.Map{"days": "abc"},
		echo.Map{"days": 1e12},
		echo.Map{"days": -3},
		nil,
	} {
		id := dbtest.InsertListing(t, v.db, owner, "approved", false)
		code, out := v.do(t, http.MethodPost, fmt.Sprintf("/v1/admin/listings/%d/feature", id), admin, body)
		require.Equal(t, http.StatusOK, code, "body %v", body)
		assert.Equal(t, true, out["is_featured"])

		until, err := time.Parse(time.RFC3339, out["featured_until"].(string))
		require.NoError(t, err)
		assert.WithinDuration(t, time.Now().Add(7*24*time.Hour), until, time.Minute, "body %v", body)
	}
}

// Approval is not quota-guarded: an owner already at the limit can go over
// when an admin approves a rejected listing.
func TestAdminApproveRejectedIgnoresQuota(t *testing.T) {
	v := newEnv(t)
	admin := bearer(t, dbtest.InsertAdmin(t, v.db), model.RoleAdmin)
	owner := dbtest.InsertUser(t, v.db, "free")
	dbtest.InsertListings(t, v.db, owner, "approved", false, 3)
	rejected := dbtest.InsertListing(t, v.db, owner, "rejected", false)

	code, out := v.do(t, http.MethodPost, fmt.Sprintf("/v1/admin/listings/%d/approve", rejected), admin, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "approved", out["status"])
	assert.Equal(t, 4, dbtest.CountRows(t, v.db,
		"SELECT COUNT(*) FROM properties WHERE user_id=? AND status IN ('pending','approved') AND is_sold=0", owner))
}

func TestPlansCatalog(t *testing.T) {
	v := newEnv(t)
	code, body := v.do(t, http.MethodGet, "/v1/plans", "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["items"], 3)
}
