// Package dbtest opens throwaway SQLite databases for tests and seeds them
// with raw rows, so any package can use it without import cycles.
package dbtest

import (
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/real-estate-listings/internal/database"
)

// Now is the fixed clock used by fixtures.
var Now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// New returns a migrated in-memory database private to t.
func New(t *testing.T) *sql.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := database.OpenSQLite(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// InsertUser adds a USER account on the given plan and returns its id.
func InsertUser(t *testing.T, db *sql.DB, plan string) uint64 {
	t.Helper()
	return insertUser(t, db, plan, "USER")
}

// InsertAdmin adds an ADMIN account and returns its id.
func InsertAdmin(t *testing.T, db *sql.DB) uint64 {
	t.Helper()
	return insertUser(t, db, "free", "ADMIN")
}

func insertUser(t *testing.T, db *sql.DB, plan, role string) uint64 {
	t.Helper()
	email := uuid.NewString() + "@example.test"
	res, err := db.Exec("INSERT INTO users (email, password_hash, role, plan) VALUES (?,?,?,?)",
		email, "x", role, plan)
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)
	return uint64(id)
}

// InsertListing adds a listing for owner in the given state and returns its id.
func InsertListing(t *testing.T, db *sql.DB, owner uint64, status string, sold bool) uint64 {
	t.Helper()
	var soldAt any
	if sold {
		soldAt = Now
	}
	res, err := db.Exec(`INSERT INTO properties
		(user_id,title,city,address,listing_type,price,bedrooms,bathrooms,area_sq_m,description,
		 status,is_sold,sold_at,is_featured,featured_until,created_at,updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,0,NULL,?,?)`,
		owner, "Flat", "Tripoli", "Main street", "sale", 100000.0, 2, 1, 90, "Bright flat",
		status, sold, soldAt, Now, Now)
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)
	return uint64(id)
}

// InsertListings adds n listings in the same state.
func InsertListings(t *testing.T, db *sql.DB, owner uint64, status string, sold bool, n int) []uint64 {
	t.Helper()
	ids := make([]uint64, 0, n)
	for i := 0; i < n; i++ {
		ids = append(ids, InsertListing(t, db, owner, status, sold))
	}
	return ids
}

// CountRows returns SELECT COUNT(*) for the given query.
func CountRows(t *testing.T, db *sql.DB, query string, args ...any) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(query, args...).Scan(&n))
	return n
}
