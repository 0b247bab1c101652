// Package queue defines message payloads exchanged over the message broker.
package queue

import "time"

// Queue names.
const (
	ListingEventsQueue = "listing.events"
	PlanChangedQueue   = "billing.plan_changed"
)

// Event types published on ListingEventsQueue.
const (
	ListingCreated    = "listing.created"
	ListingApproved   = "listing.approved"
	ListingRejected   = "listing.rejected"
	ListingFeatured   = "listing.featured"
	ListingUnfeatured = "listing.unfeatured"
	ListingSold       = "listing.sold"
	ListingAvailable  = "listing.available"
	UserBanned        = "user.banned"
	UserUnbanned      = "user.unbanned"
	UserPlanChanged   = "user.plan_changed"
)

// Event is published after a listing or account change has been committed.
// Consumers get enough context to notify or index without reading the
// primary database.
type Event struct {
	Type          string     `json:"type"`
	ListingID     uint64     `json:"listing_id,omitempty"`
	UserID        uint64     `json:"user_id"`
	ActorID       uint64     `json:"actor_id,omitempty"`
	Status        string     `json:"status,omitempty"`
	Plan          string     `json:"plan,omitempty"`
	PreviousPlan  string     `json:"previous_plan,omitempty"`
	FeaturedUntil *time.Time `json:"featured_until,omitempty"`
	OccurredAt    time.Time  `json:"occurred_at"`
}

// PlanChangedMessage is what the billing collaborator sends once a payment
// for a plan has been confirmed.
type PlanChangedMessage struct {
	UserID uint64 `json:"user_id"`
	Plan   string `json:"plan"`
}
