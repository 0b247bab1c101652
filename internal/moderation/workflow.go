// Package moderation holds the administrator operations: moderating and
// featuring listings, banning users and changing their plan.
//
// Callers are trusted to have checked the admin role.
package moderation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/iliyamo/real-estate-listings/internal/billing"
	"github.com/iliyamo/real-estate-listings/internal/listing"
	"github.com/iliyamo/real-estate-listings/internal/model"
	"github.com/iliyamo/real-estate-listings/internal/plan"
	"github.com/iliyamo/real-estate-listings/internal/queue"
	"github.com/iliyamo/real-estate-listings/internal/repository"
)

// PageSize is the number of listings per moderation queue page.
const PageSize = 25

var (
	ErrNotApproved = listing.ErrNotApproved
	ErrSelfBan     = errors.New("you cannot ban your own account")
)

// Events receives committed changes.
type Events interface {
	Publish(ctx context.Context, ev queue.Event) error
}

type Deps struct {
	DB       *sql.DB
	Users    *repository.UserRepo
	Listings *repository.ListingRepo
	Tokens   *repository.TokenRepo
	Billing  *billing.Service
	Events   Events
	Now      func() time.Time
	Log      *slog.Logger
}

type Workflow struct {
	db       *sql.DB
	users    *repository.UserRepo
	listings *repository.ListingRepo
	tokens   *repository.TokenRepo
	billing  *billing.Service
	events   Events
	now      func() time.Time
	log      *slog.Logger
}

func NewWorkflow(d Deps) *Workflow {
	if d.DB == nil || d.Users == nil || d.Listings == nil || d.Billing == nil {
		panic("moderation: missing dependency")
	}
	w := &Workflow{db: d.DB, users: d.Users, listings: d.Listings, tokens: d.Tokens,
		billing: d.Billing, events: d.Events, now: d.Now, log: d.Log}
	if w.events == nil {
		w.events = queue.Discard{}
	}
	if w.now == nil {
		w.now = time.Now
	}
	if w.log == nil {
		w.log = slog.Default()
	}
	return w
}

func (w *Workflow) Approve(ctx context.Context, adminID, id uint64) (model.Listing, error) {
	return w.transition(ctx, adminID, id, queue.ListingApproved, func(l model.Listing, _ time.Time) (model.Listing, error) {
		return listing.Approve(l), nil
	})
}

// Reject also clears any promotion.
func (w *Workflow) Reject(ctx context.Context, adminID, id uint64) (model.Listing, error) {
	return w.transition(ctx, adminID, id, queue.ListingRejected, func(l model.Listing, _ time.Time) (model.Listing, error) {
		return listing.Reject(l), nil
	})
}

// Feature promotes an approved listing for days, clamped to (0, 365] with
// 7 as the fallback.
func (w *Workflow) Feature(ctx context.Context, adminID, id uint64, days int) (model.Listing, error) {
	return w.transition(ctx, adminID, id, queue.ListingFeatured, func(l model.Listing, now time.Time) (model.Listing, error) {
		return listing.Feature(l, days, now)
	})
}

func (w *Workflow) Unfeature(ctx context.Context, adminID, id uint64) (model.Listing, error) {
	return w.transition(ctx, adminID, id, queue.ListingUnfeatured, func(l model.Listing, _ time.Time) (model.Listing, error) {
		return listing.Unfeature(l), nil
	})
}

// transition locks the listing row, applies step and writes the result
// only when the state actually changed.
func (w *Workflow) transition(ctx context.Context, adminID, id uint64, event string,
	step func(model.Listing, time.Time) (model.Listing, error)) (model.Listing, error) {

	now := w.now().UTC().Truncate(time.Second)
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Listing{}, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	cur, err := w.listings.GetByIDTx(ctx, tx, id, true)
	if err != nil {
		return model.Listing{}, err
	}
	next, err := step(cur, now)
	if err != nil {
		return cur, err
	}
	if model.SameState(cur, next) {
		return cur, nil
	}
	next.UpdatedAt = now
	if err := w.listings.SaveStateTx(ctx, tx, next); err != nil {
		return model.Listing{}, fmt.Errorf("save listing state: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return model.Listing{}, err
	}
	committed = true

	w.publish(ctx, queue.Event{Type: event, ListingID: next.ID, UserID: next.OwnerID, ActorID: adminID,
		Status: string(next.Status), FeaturedUntil: next.FeaturedUntil, OccurredAt: now})
	return next, nil
}

// QueuePage is one page of the moderation queue.
type QueuePage struct {
	Status string          `json:"status"`
	Page   int             `json:"page"`
	Pages  int             `json:"pages"`
	Total  int             `json:"total"`
	Items  []model.Listing `json:"items"`
}

// Queue lists listings by status, newest first. status is one of all,
// pending, approved or rejected; anything else means pending. page is
// clamped to the available range.
func (w *Workflow) Queue(ctx context.Context, status string, page int) (QueuePage, error) {
	filter := model.StatusPending
	label := string(model.StatusPending)
	switch s := model.Status(status); {
	case status == "all":
		filter, label = "", "all"
	case s.Valid():
		filter, label = s, status
	}
	if page < 1 {
		page = 1
	}
	items, total, err := w.listings.ListByStatus(ctx, filter, PageSize, (page-1)*PageSize)
	if err != nil {
		return QueuePage{}, err
	}
	pages := max(1, (total+PageSize-1)/PageSize)
	if page > pages {
		page = pages
		if items, total, err = w.listings.ListByStatus(ctx, filter, PageSize, (page-1)*PageSize); err != nil {
			return QueuePage{}, err
		}
	}
	if items == nil {
		items = []model.Listing{}
	}
	return QueuePage{Status: label, Page: page, Pages: pages, Total: total, Items: items}, nil
}

// Ban blocks the user from creating listings and signs them out everywhere.
func (w *Workflow) Ban(ctx context.Context, adminID, userID uint64) (model.User, error) {
	if adminID == userID {
		return model.User{}, ErrSelfBan
	}
	return w.setBanned(ctx, adminID, userID, true)
}

func (w *Workflow) Unban(ctx context.Context, adminID, userID uint64) (model.User, error) {
	return w.setBanned(ctx, adminID, userID, false)
}

func (w *Workflow) setBanned(ctx context.Context, adminID, userID uint64, banned bool) (model.User, error) {
	now := w.now().UTC().Truncate(time.Second)
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return model.User{}, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	u, err := w.users.GetAccountTx(ctx, tx, userID, true)
	if err != nil {
		return model.User{}, err
	}
	if u.Banned == banned {
		return u, nil
	}
	if err := w.users.SetBannedTx(ctx, tx, userID, banned, now); err != nil {
		return model.User{}, err
	}
	if err := tx.Commit(); err != nil {
		return model.User{}, err
	}
	committed = true
	u.Banned = banned
	u.UpdatedAt = now

	event := queue.UserUnbanned
	if banned {
		event = queue.UserBanned
		if w.tokens != nil {
			if err := w.tokens.RevokeAllForUser(ctx, userID); err != nil {
				w.log.Warn("revoke tokens of banned user failed", "user_id", userID, "err", err)
			}
		}
	}
	w.publish(ctx, queue.Event{Type: event, UserID: userID, ActorID: adminID, OccurredAt: now})
	return u, nil
}

// SetPlan changes a user's plan on behalf of an admin.
func (w *Workflow) SetPlan(ctx context.Context, userID uint64, raw string) (plan.Plan, error) {
	return w.billing.SetPlan(ctx, userID, raw)
}

func (w *Workflow) publish(ctx context.Context, ev queue.Event) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := w.events.Publish(ctx, ev); err != nil {
		w.log.Warn("publish event failed", "type", ev.Type, "err", err)
	}
}
