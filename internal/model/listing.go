package model

import "time"

// Status is the moderation state of a listing (properties.status).
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Valid reports whether s is one of the three moderation states.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// CountsTowardQuota reports whether a listing in this state occupies a
// quota slot while unsold.
func (s Status) CountsTowardQuota() bool {
	return s == StatusPending || s == StatusApproved
}

// Listing types accepted in properties.listing_type.
const (
	TypeSale = "sale"
	TypeRent = "rent"
)

// Listing is a property posted by a user, one row of the `properties` table.
// The owner is the only non-admin allowed to mutate it.
//
// Fields:
//  ID            – primary key identifier.
//  OwnerID       – user who posted the listing.
//  Status        – moderation state.
//  Sold          – sold flag, toggled by the owner.
//  SoldAt        – when it was marked sold (null while available).
//  Featured      – promotion flag set by an admin.
//  FeaturedUntil – end of the promotion window (null means open-ended).
type Listing struct {
	ID            uint64     // properties.id
	OwnerID       uint64     // properties.user_id
	Title         string     // properties.title
	City          string     // properties.city
	Address       string     // properties.address
	Type          string     // properties.listing_type
	Price         float64    // properties.price
	Bedrooms      int        // properties.bedrooms
	Bathrooms     int        // properties.bathrooms
	AreaSqM       int        // properties.area_sq_m
	Description   string     // properties.description
	Status        Status     // properties.status
	Sold          bool       // properties.is_sold
	SoldAt        *time.Time // properties.sold_at (nullable)
	Featured      bool       // properties.is_featured
	FeaturedUntil *time.Time // properties.featured_until (nullable)
	CreatedAt     time.Time  // properties.created_at
	UpdatedAt     time.Time  // properties.updated_at
}

// IsActive reports whether the listing counts toward its owner's quota.
func (l Listing) IsActive() bool {
	return l.Status.CountsTowardQuota() && !l.Sold
}

// IsCurrentlyFeatured evaluates the promotion window lazily; an elapsed
// featured_until is never written back.
func (l Listing) IsCurrentlyFeatured(now time.Time) bool {
	if !l.Featured || l.Status != StatusApproved || l.Sold {
		return false
	}
	return l.FeaturedUntil == nil || l.FeaturedUntil.After(now)
}

// SameState reports whether a and b agree on every lifecycle field.
func SameState(a, b Listing) bool {
	return a.Status == b.Status &&
		a.Sold == b.Sold &&
		a.Featured == b.Featured &&
		sameTime(a.SoldAt, b.SoldAt) &&
		sameTime(a.FeaturedUntil, b.FeaturedUntil)
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}
