// Package billing applies plan changes reported by the payment collaborator
// or made by an administrator.
package billing

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/iliyamo/real-estate-listings/internal/plan"
	"github.com/iliyamo/real-estate-listings/internal/queue"
	"github.com/iliyamo/real-estate-listings/internal/repository"
)

var ErrUnknownPlan = errors.New("unknown plan")

// Events receives committed plan changes.
type Events interface {
	Publish(ctx context.Context, ev queue.Event) error
}

type Service struct {
	db     *sql.DB
	users  *repository.UserRepo
	events Events
	now    func() time.Time
	log    *slog.Logger
}

func NewService(db *sql.DB, users *repository.UserRepo, events Events, log *slog.Logger) *Service {
	if events == nil {
		events = queue.Discard{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{db: db, users: users, events: events, now: time.Now, log: log}
}

// WithClock replaces the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// ApplyPlanChange stores raw as the user's plan. Existing listings and
// images are never touched; the new limits apply from the next quota check.
// Setting the plan the user already has is a no-op. Unknown plans and
// users are marked queue.ErrBadMessage; other errors may be retried.
func (s *Service) ApplyPlanChange(ctx context.Context, userID uint64, raw string) error {
	_, err := s.SetPlan(ctx, userID, raw)
	if errors.Is(err, ErrUnknownPlan) || errors.Is(err, repository.ErrUserNotFound) {
		return queue.BadMessage(err)
	}
	return err
}

// SetPlan is ApplyPlanChange returning the resulting plan.
func (s *Service) SetPlan(ctx context.Context, userID uint64, raw string) (plan.Plan, error) {
	p, ok := plan.Parse(raw)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownPlan, raw)
	}
	now := s.now().UTC().Truncate(time.Second)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	u, err := s.users.GetAccountTx(ctx, tx, userID, true)
	if err != nil {
		return "", err
	}
	if u.Plan == p {
		return p, nil
	}
	if err := s.users.SetPlanTx(ctx, tx, userID, p, now); err != nil {
		return "", fmt.Errorf("update plan: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return "", err
	}
	committed = true

	s.log.Info("plan changed", "user_id", userID, "from", u.Plan, "to", p)
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.events.Publish(pubCtx, queue.Event{
		Type: queue.UserPlanChanged, UserID: userID, Plan: string(p), PreviousPlan: string(u.Plan), OccurredAt: now,
	}); err != nil {
		s.log.Warn("publish plan change failed", "user_id", userID, "err", err)
	}
	return p, nil
}
