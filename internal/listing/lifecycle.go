// Package listing implements the listing state machine and the owner-facing
// operations built on it.
//
// The transition functions in this file are pure: they take a listing by
// value and return the next state. Persisting that state, and any quota
// check a transition needs, is the job of Service.
package listing

import (
	"time"

	"github.com/iliyamo/real-estate-listings/internal/model"
)

const (
	DefaultFeatureDays = 7
	MaxFeatureDays     = 365
)

// ClampFeatureDays maps any value outside (0, MaxFeatureDays] to
// DefaultFeatureDays.
func ClampFeatureDays(days int) int {
	if days <= 0 || days > MaxFeatureDays {
		return DefaultFeatureDays
	}
	return days
}

// Approve moves the listing to approved from any moderation state.
func Approve(l model.Listing) model.Listing {
	l.Status = model.StatusApproved
	return l
}

// Reject moves the listing to rejected and drops any promotion.
func Reject(l model.Listing) model.Listing {
	l.Status = model.StatusRejected
	l.Featured = false
	l.FeaturedUntil = nil
	return l
}

// MarkSold flags the listing sold. A listing that is already sold keeps its
// original sold_at.
func MarkSold(l model.Listing, now time.Time) model.Listing {
	if l.Sold {
		return l
	}
	at := now
	l.Sold = true
	l.SoldAt = &at
	return l
}

// MarkAvailable clears the sold flag. Callers check the quota first when the
// listing would become active again.
func MarkAvailable(l model.Listing) model.Listing {
	l.Sold = false
	l.SoldAt = nil
	return l
}

// Feature promotes an approved listing for days (clamped) from now.
func Feature(l model.Listing, days int, now time.Time) (model.Listing, error) {
	if l.Status != model.StatusApproved {
		return l, ErrNotApproved
	}
	until := now.Add(time.Duration(ClampFeatureDays(days)) * 24 * time.Hour)
	l.Featured = true
	l.FeaturedUntil = &until
	return l, nil
}

func Unfeature(l model.Listing) model.Listing {
	l.Featured = false
	l.FeaturedUntil = nil
	return l
}

// ReentersActivePool reports whether marking l available would add it to
// its owner's active count.
func ReentersActivePool(l model.Listing) bool {
	return l.Sold && l.Status.CountsTowardQuota()
}
