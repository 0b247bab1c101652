package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/real-estate-listings/internal/model"
)

// FavoriteRepo manages saved_properties, the per-user favorites list.
type FavoriteRepo struct{ db *sql.DB }

func NewFavoriteRepo(db *sql.DB) *FavoriteRepo { return &FavoriteRepo{db: db} }

// Toggle saves the listing for the user, or removes it when already saved.
// It reports whether the listing is saved afterwards.
func (r *FavoriteRepo) Toggle(ctx context.Context, userID, listingID uint64, now time.Time) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	var one int
	err = tx.QueryRowContext(ctx,
		"SELECT 1 FROM saved_properties WHERE user_id=? AND property_id=?", userID, listingID).Scan(&one)
	saved := false
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO saved_properties (user_id, property_id, created_at) VALUES (?,?,?)",
			userID, listingID, now); err != nil {
			if isDuplicate(err) {
				return false, ErrConflict
			}
			return false, err
		}
		saved = true
	case err != nil:
		return false, err
	default:
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM saved_properties WHERE user_id=? AND property_id=?", userID, listingID); err != nil {
			return false, err
		}
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	committed = true
	return saved, nil
}

// ListByUser returns the user's saved listings that are still publicly
// visible, most recently saved first.
func (r *FavoriteRepo) ListByUser(ctx context.Context, userID uint64) ([]model.Listing, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT p.id,p.user_id,p.title,p.city,p.address,p.listing_type,p.price,
		p.bedrooms,p.bathrooms,p.area_sq_m,p.description,p.status,p.is_sold,p.sold_at,p.is_featured,
		p.featured_until,p.created_at,p.updated_at
		FROM saved_properties s JOIN properties p ON p.id = s.property_id
		WHERE s.user_id=? AND p.status='approved'
		ORDER BY s.created_at DESC, p.id DESC`, userID)
	if err != nil {
		return nil, err
	}
	return scanListings(rows)
}
