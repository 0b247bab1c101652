package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/iliyamo/real-estate-listings/internal/database"
	"github.com/iliyamo/real-estate-listings/internal/model"
)

// StatKind names a per-day counter column of property_stats.
type StatKind string

const (
	StatViews         StatKind = "views"
	StatSaves         StatKind = "saves"
	StatContactClicks StatKind = "contact_clicks"
)

// StatRepo maintains daily per-listing counters.
type StatRepo struct {
	db      *sql.DB
	dialect database.Dialect
}

func NewStatRepo(db *sql.DB, dialect database.Dialect) *StatRepo {
	return &StatRepo{db: db, dialect: dialect}
}

// Increment bumps one counter for the listing on day (UTC date of day).
func (r *StatRepo) Increment(ctx context.Context, listingID uint64, kind StatKind, day time.Time) error {
	switch kind {
	case StatViews, StatSaves, StatContactClicks:
	default:
		return fmt.Errorf("unknown stat %q", kind)
	}
	col := string(kind)
	q := "INSERT INTO property_stats (property_id, stat_date, " + col + ") VALUES (?,?,1) "
	if r.dialect == database.MySQL {
		q += "ON DUPLICATE KEY UPDATE " + col + " = " + col + " + 1"
	} else {
		q += "ON CONFLICT(property_id, stat_date) DO UPDATE SET " + col + " = " + col + " + 1"
	}
	_, err := r.db.ExecContext(ctx, q, listingID, day.UTC().Format("2006-01-02"))
	return err
}

// ListByListing returns the listing's counters, oldest day first.
func (r *StatRepo) ListByListing(ctx context.Context, listingID uint64) ([]model.ListingStat, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT property_id, stat_date, views, saves, contact_clicks FROM property_stats WHERE property_id=? ORDER BY stat_date ASC",
		listingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.ListingStat
	for rows.Next() {
		var (
			s   model.ListingStat
			raw string
		)
		if err := rows.Scan(&s.ListingID, &raw, &s.Views, &s.Saves, &s.ContactClicks); err != nil {
			return nil, err
		}
		// Drivers hand DATE back either as "2006-01-02" or as an RFC 3339 timestamp.
		if len(raw) >= 10 {
			raw = raw[:10]
		}
		d, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return nil, fmt.Errorf("parse stat_date %q: %w", raw, err)
		}
		s.Date = d
		out = append(out, s)
	}
	return out, rows.Err()
}
