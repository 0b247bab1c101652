package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/iliyamo/real-estate-listings/internal/model"
)

// ImageRepo manages property_images rows. File bytes live in the storage
// collaborator; only keys are stored here.
type ImageRepo struct{ db *sql.DB }

func NewImageRepo(db *sql.DB) *ImageRepo { return &ImageRepo{db: db} }

// CountByListingTx counts the images currently attached to a listing.
func (r *ImageRepo) CountByListingTx(ctx context.Context, tx *sql.Tx, listingID uint64) (int, error) {
	var n int
	err := tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM property_images WHERE property_id=?", listingID).Scan(&n)
	return n, err
}

// CreateTx records one stored image.
func (r *ImageRepo) CreateTx(ctx context.Context, tx *sql.Tx, listingID uint64, key string, now time.Time) (model.ListingImage, error) {
	res, err := tx.ExecContext(ctx,
		"INSERT INTO property_images (property_id, file_name, created_at) VALUES (?,?,?)",
		listingID, key, now)
	if err != nil {
		return model.ListingImage{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.ListingImage{}, err
	}
	return model.ListingImage{ID: uint64(id), ListingID: listingID, FileName: key, CreatedAt: now}, nil
}

// ListByListing returns a listing's images in upload order.
func (r *ImageRepo) ListByListing(ctx context.Context, listingID uint64) ([]model.ListingImage, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, property_id, file_name, created_at FROM property_images WHERE property_id=? ORDER BY id ASC",
		listingID)
	if err != nil {
		return nil, err
	}
	return scanImages(rows)
}

// ListByIDsTx returns those of ids that belong to listingID.
func (r *ImageRepo) ListByIDsTx(ctx context.Context, tx *sql.Tx, listingID uint64, ids []uint64) ([]model.ListingImage, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	args := make([]any, 0, len(ids)+1)
	args = append(args, listingID)
	for _, id := range ids {
		args = append(args, id)
	}
	rows, err := tx.QueryContext(ctx,
		"SELECT id, property_id, file_name, created_at FROM property_images WHERE property_id=? AND id IN ("+
			placeholders(len(ids))+") ORDER BY id ASC", args...)
	if err != nil {
		return nil, err
	}
	return scanImages(rows)
}

// DeleteTx removes the given image rows of a listing.
func (r *ImageRepo) DeleteTx(ctx context.Context, tx *sql.Tx, listingID uint64, ids []uint64) error {
	if len(ids) == 0 {
		return nil
	}
	args := make([]any, 0, len(ids)+1)
	args = append(args, listingID)
	for _, id := range ids {
		args = append(args, id)
	}
	_, err := tx.ExecContext(ctx,
		"DELETE FROM property_images WHERE property_id=? AND id IN ("+placeholders(len(ids))+")", args...)
	return err
}

func scanImages(rows *sql.Rows) ([]model.ListingImage, error) {
	defer rows.Close()
	var out []model.ListingImage
	for rows.Next() {
		var img model.ListingImage
		if err := rows.Scan(&img.ID, &img.ListingID, &img.FileName, &img.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, img)
	}
	return out, rows.Err()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
