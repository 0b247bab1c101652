package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/iliyamo/real-estate-listings/internal/database"
	"github.com/iliyamo/real-estate-listings/internal/model"
)

// ListingRepo provides CRUD operations on the properties table.
type ListingRepo struct {
	db      *sql.DB
	dialect database.Dialect
}

// NewListingRepo constructs a ListingRepo.
func NewListingRepo(db *sql.DB, dialect database.Dialect) *ListingRepo {
	return &ListingRepo{db: db, dialect: dialect}
}

// DB exposes the underlying handle so services can open transactions.
func (r *ListingRepo) DB() *sql.DB { return r.db }

const listingColumns = "id,user_id,title,city,address,listing_type,price,bedrooms,bathrooms,area_sq_m," +
	"description,status,is_sold,sold_at,is_featured,featured_until,created_at,updated_at"

func scanListing(row rowScanner) (model.Listing, error) {
	var (
		l             model.Listing
		status        string
		soldAt        sql.NullTime
		featuredUntil sql.NullTime
	)
	err := row.Scan(&l.ID, &l.OwnerID, &l.Title, &l.City, &l.Address, &l.Type, &l.Price,
		&l.Bedrooms, &l.Bathrooms, &l.AreaSqM, &l.Description, &status, &l.Sold, &soldAt,
		&l.Featured, &featuredUntil, &l.CreatedAt, &l.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Listing{}, ErrListingNotFound
	}
	if err != nil {
		return model.Listing{}, err
	}
	l.Status = model.Status(status)
	if soldAt.Valid {
		t := soldAt.Time
		l.SoldAt = &t
	}
	if featuredUntil.Valid {
		t := featuredUntil.Time
		l.FeaturedUntil = &t
	}
	return l, nil
}

func scanListings(rows *sql.Rows) ([]model.Listing, error) {
	defer rows.Close()
	var out []model.Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

// CreateTx inserts l and fills in its ID.
func (r *ListingRepo) CreateTx(ctx context.Context, tx *sql.Tx, l *model.Listing) error {
	res, err := tx.ExecContext(ctx, `INSERT INTO properties
		(user_id,title,city,address,listing_type,price,bedrooms,bathrooms,area_sq_m,description,
		 status,is_sold,sold_at,is_featured,featured_until,created_at,updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		l.OwnerID, l.Title, l.City, l.Address, l.Type, l.Price, l.Bedrooms, l.Bathrooms, l.AreaSqM,
		l.Description, string(l.Status), l.Sold, nullTime(l.SoldAt), l.Featured, nullTime(l.FeaturedUntil),
		l.CreatedAt, l.UpdatedAt)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	l.ID = uint64(id)
	return nil
}

// GetByID returns the listing with the given id.
func (r *ListingRepo) GetByID(ctx context.Context, id uint64) (model.Listing, error) {
	return scanListing(r.db.QueryRowContext(ctx,
		"SELECT "+listingColumns+" FROM properties WHERE id=?", id))
}

// GetByIDTx reads a listing inside tx, optionally locking its row.
func (r *ListingRepo) GetByIDTx(ctx context.Context, tx *sql.Tx, id uint64, lock bool) (model.Listing, error) {
	q := "SELECT " + listingColumns + " FROM properties WHERE id=?"
	if lock {
		q += r.dialect.ForUpdate()
	}
	return scanListing(tx.QueryRowContext(ctx, q, id))
}

// CountActiveByOwnerTx counts the owner's listings that occupy a quota slot:
// pending or approved, and not sold.
func (r *ListingRepo) CountActiveByOwnerTx(ctx context.Context, tx *sql.Tx, ownerID uint64) (int, error) {
	var n int
	err := tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM properties WHERE user_id=? AND status IN ('pending','approved') AND is_sold=0",
		ownerID).Scan(&n)
	return n, err
}

// SaveStateTx writes the lifecycle columns of l.
func (r *ListingRepo) SaveStateTx(ctx context.Context, tx *sql.Tx, l model.Listing) error {
	_, err := tx.ExecContext(ctx, `UPDATE properties
		SET status=?, is_sold=?, sold_at=?, is_featured=?, featured_until=?, updated_at=?
		WHERE id=?`,
		string(l.Status), l.Sold, nullTime(l.SoldAt), l.Featured, nullTime(l.FeaturedUntil), l.UpdatedAt, l.ID)
	return err
}

// UpdateDetailsTx writes the descriptive columns of l.
func (r *ListingRepo) UpdateDetailsTx(ctx context.Context, tx *sql.Tx, l model.Listing) error {
	_, err := tx.ExecContext(ctx, `UPDATE properties
		SET title=?, city=?, address=?, listing_type=?, price=?, bedrooms=?, bathrooms=?,
		    area_sq_m=?, description=?, updated_at=?
		WHERE id=?`,
		l.Title, l.City, l.Address, l.Type, l.Price, l.Bedrooms, l.Bathrooms, l.AreaSqM,
		l.Description, l.UpdatedAt, l.ID)
	return err
}

// ListByOwner returns every listing of a user, newest first.
func (r *ListingRepo) ListByOwner(ctx context.Context, ownerID uint64) ([]model.Listing, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+listingColumns+" FROM properties WHERE user_id=? ORDER BY created_at DESC, id DESC", ownerID)
	if err != nil {
		return nil, err
	}
	return scanListings(rows)
}

// ListByStatus pages through listings for the moderation queue. An empty
// status means all listings. It also returns the total matching count.
func (r *ListingRepo) ListByStatus(ctx context.Context, status model.Status, limit, offset int) ([]model.Listing, int, error) {
	where := ""
	var args []any
	if status != "" {
		where = " WHERE status=?"
		args = append(args, string(status))
	}
	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM properties"+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+listingColumns+" FROM properties"+where+" ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?",
		append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	items, err := scanListings(rows)
	return items, total, err
}

// SearchFilter narrows the public browse query. Zero values are ignored.
type SearchFilter struct {
	City     string
	Type     string
	MinPrice float64
	MaxPrice float64
	Limit    int
	Offset   int
}

// Search returns approved, unsold listings. Currently featured listings sort
// first, then newest.
func (r *ListingRepo) Search(ctx context.Context, f SearchFilter, now time.Time) ([]model.Listing, int, error) {
	conds := []string{"status='approved'", "is_sold=0"}
	var args []any
	if f.City != "" {
		conds = append(conds, "LOWER(city) LIKE ?")
		args = append(args, "%"+strings.ToLower(f.City)+"%")
	}
	if f.Type != "" {
		conds = append(conds, "listing_type=?")
		args = append(args, f.Type)
	}
	if f.MinPrice > 0 {
		conds = append(conds, "price>=?")
		args = append(args, f.MinPrice)
	}
	if f.MaxPrice > 0 {
		conds = append(conds, "price<=?")
		args = append(args, f.MaxPrice)
	}
	where := " WHERE " + strings.Join(conds, " AND ")

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM properties"+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	q := "SELECT " + listingColumns + " FROM properties" + where +
		" ORDER BY CASE WHEN is_featured=1 AND (featured_until IS NULL OR featured_until > ?) THEN 0 ELSE 1 END," +
		" created_at DESC, id DESC LIMIT ? OFFSET ?"
	// WHERE args, then the CASE timestamp, then paging.
	qargs := append(append([]any{}, args...), now, f.Limit, f.Offset)
	rows, err := r.db.QueryContext(ctx, q, qargs...)
	if err != nil {
		return nil, 0, err
	}
	items, err := scanListings(rows)
	return items, total, err
}

// ListFeatured returns approved, unsold listings whose promotion window is
// open at now.
func (r *ListingRepo) ListFeatured(ctx context.Context, now time.Time, limit int) ([]model.Listing, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+listingColumns+` FROM properties
		 WHERE status='approved' AND is_sold=0 AND is_featured=1
		   AND (featured_until IS NULL OR featured_until > ?)
		 ORDER BY featured_until DESC, created_at DESC LIMIT ?`, now, limit)
	if err != nil {
		return nil, err
	}
	return scanListings(rows)
}
