// Package quota decides whether quota-consuming listing actions may proceed.
//
// Every decision is derived from the database inside the caller's
// transaction: the owner's row is read with a lock, so the plan is fresh
// and concurrent requests of one user serialize until the caller commits.
package quota

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/iliyamo/real-estate-listings/internal/model"
	"github.com/iliyamo/real-estate-listings/internal/plan"
)

// Users reads account rows inside a transaction.
type Users interface {
	GetAccountTx(ctx context.Context, tx *sql.Tx, id uint64, lock bool) (model.User, error)
}

// Listings counts a user's active listings inside a transaction.
type Listings interface {
	CountActiveByOwnerTx(ctx context.Context, tx *sql.Tx, ownerID uint64) (int, error)
}

// Images counts the images attached to a listing inside a transaction.
type Images interface {
	CountByListingTx(ctx context.Context, tx *sql.Tx, listingID uint64) (int, error)
}

// Decision is the outcome of an active-listing check.
type Decision struct {
	Allowed bool      `json:"allowed"`
	Plan    plan.Plan `json:"plan"`
	Limit   int       `json:"limit"`
	Active  int       `json:"active"`
}

// Remaining is the number of further listings the plan admits.
func (d Decision) Remaining() int {
	if d.Active >= d.Limit {
		return 0
	}
	return d.Limit - d.Active
}

type Guard struct {
	db       *sql.DB
	users    Users
	listings Listings
	images   Images
}

func NewGuard(db *sql.DB, users Users, listings Listings, images Images) *Guard {
	if users == nil || listings == nil || images == nil {
		panic("quota: nil dependency")
	}
	return &Guard{db: db, users: users, listings: listings, images: images}
}

// ActiveListingCount counts the user's pending or approved, unsold listings.
func (g *Guard) ActiveListingCount(ctx context.Context, tx *sql.Tx, userID uint64) (int, error) {
	n, err := g.listings.CountActiveByOwnerTx(ctx, tx, userID)
	if err != nil {
		return 0, fmt.Errorf("count active listings: %w", err)
	}
	return n, nil
}

// CanCreateListing locks the user's row, then compares the fresh count with
// the fresh plan limit. The answer holds until tx ends.
func (g *Guard) CanCreateListing(ctx context.Context, tx *sql.Tx, userID uint64) (Decision, error) {
	return g.decide(ctx, tx, userID)
}

// CanMarkAvailable checks whether a sold listing may rejoin the active pool.
// A rejected listing does not rejoin it and is always allowed. The listing
// itself is still sold at check time, so it is not part of the count.
func (g *Guard) CanMarkAvailable(ctx context.Context, tx *sql.Tx, l model.Listing) (Decision, error) {
	if !l.Status.CountsTowardQuota() {
		u, err := g.users.GetAccountTx(ctx, tx, l.OwnerID, true)
		if err != nil {
			return Decision{}, err
		}
		return Decision{Allowed: true, Plan: u.Plan, Limit: plan.LimitsFor(u.Plan).MaxActiveListings}, nil
	}
	return g.decide(ctx, tx, l.OwnerID)
}

func (g *Guard) decide(ctx context.Context, tx *sql.Tx, userID uint64) (Decision, error) {
	u, err := g.users.GetAccountTx(ctx, tx, userID, true)
	if err != nil {
		return Decision{}, err
	}
	active, err := g.ActiveListingCount(ctx, tx, userID)
	if err != nil {
		return Decision{}, err
	}
	limit := plan.LimitsFor(u.Plan).MaxActiveListings
	return Decision{Allowed: active < limit, Plan: u.Plan, Limit: limit, Active: active}, nil
}

// ImageSlots returns how many more images the listing may hold under its
// owner's current plan. It never goes below zero.
func (g *Guard) ImageSlots(ctx context.Context, tx *sql.Tx, l model.Listing) (int, error) {
	u, err := g.users.GetAccountTx(ctx, tx, l.OwnerID, true)
	if err != nil {
		return 0, err
	}
	have, err := g.images.CountByListingTx(ctx, tx, l.ID)
	if err != nil {
		return 0, fmt.Errorf("count images: %w", err)
	}
	return max(0, plan.LimitsFor(u.Plan).MaxImages-have), nil
}

// Truncate caps a requested upload count at the available slots.
func Truncate(requested, slots int) int {
	return max(0, min(requested, slots))
}

// Usage reports the user's current standing without holding any lock past
// the call. It is for display; the check made inside the write is the one
// that counts.
func (g *Guard) Usage(ctx context.Context, userID uint64) (Decision, error) {
	tx, err := g.db.BeginTx(ctx, nil)
	if err != nil {
		return Decision{}, err
	}
	defer func() { _ = tx.Rollback() }()
	u, err := g.users.GetAccountTx(ctx, tx, userID, false)
	if err != nil {
		return Decision{}, err
	}
	active, err := g.ActiveListingCount(ctx, tx, userID)
	if err != nil {
		return Decision{}, err
	}
	limit := plan.LimitsFor(u.Plan).MaxActiveListings
	return Decision{Allowed: active < limit, Plan: u.Plan, Limit: limit, Active: active}, nil
}
