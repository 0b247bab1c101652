package model

import "time"

// ListingImage is one photo attached to a listing (`property_images`).
// FileName holds the storage key, not a URL.
type ListingImage struct {
	ID        uint64    // property_images.id
	ListingID uint64    // property_images.property_id
	FileName  string    // property_images.file_name
	CreatedAt time.Time // property_images.created_at
}

// ListingStat is one day of counters for a listing (`property_stats`).
type ListingStat struct {
	ListingID     uint64    // property_stats.property_id
	Date          time.Time // property_stats.stat_date
	Views         int       // property_stats.views
	Saves         int       // property_stats.saves
	ContactClicks int       // property_stats.contact_clicks
}
