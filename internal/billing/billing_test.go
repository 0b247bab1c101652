package billing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/real-estate-listings/internal/database"
	"github.com/iliyamo/real-estate-listings/internal/database/dbtest"
	"github.com/iliyamo/real-estate-listings/internal/plan"
	"github.com/iliyamo/real-estate-listings/internal/queue"
	"github.com/iliyamo/real-estate-listings/internal/repository"
)

type MockEvents struct {
	mock.Mock
}

func (m *MockEvents) Publish(ctx context.Context, ev queue.Event) error {
	return m.Called(ctx, ev).Error(0)
}

func TestApplyPlanChange(t *testing.T) {
	db := dbtest.New(t)
	users := repository.NewUserRepo(db, database.SQLite)
	events := new(MockEvents)
	svc := NewService(db, users, events, nil)
	ctx := context.Background()
	user := dbtest.InsertUser(t, db, "free")
	dbtest.InsertListings(t, db, user, "approved", false, 3)

	events.On("Publish", mock.Anything, mock.MatchedBy(func(ev queue.Event) bool {
		return ev.Type == queue.UserPlanChanged && ev.UserID == user && ev.Plan == "pro" && ev.PreviousPlan == "free"
	})).Return(nil).Once()

	require.NoError(t, svc.ApplyPlanChange(ctx, user, " PRO "))
	u, err := users.GetByID(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, plan.Pro, u.Plan)

	// same plan again: nothing written, nothing published
	p, err := svc.SetPlan(ctx, user, "pro")
	require.NoError(t, err)
	assert.Equal(t, plan.Pro, p)
	events.AssertExpectations(t)
}

func TestApplyPlanChange_Errors(t *testing.T) {
	db := dbtest.New(t)
	users := repository.NewUserRepo(db, database.SQLite)
	events := new(MockEvents)
	svc := NewService(db, users, events, nil)
	ctx := context.Background()
	user := dbtest.InsertUser(t, db, "pro")

	err := svc.ApplyPlanChange(ctx, user, "platinum")
	assert.ErrorIs(t, err, ErrUnknownPlan)
	assert.ErrorIs(t, err, queue.ErrBadMessage)
	err = svc.ApplyPlanChange(ctx, user+50, "agency")
	assert.ErrorIs(t, err, repository.ErrUserNotFound)
	assert.ErrorIs(t, err, queue.ErrBadMessage)

	u, err := users.GetByID(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, plan.Pro, u.Plan)

	// a closed database is an outage, not a bad message
	require.NoError(t, db.Close())
	err = svc.ApplyPlanChange(ctx, user, "agency")
	require.Error(t, err)
	assert.NotErrorIs(t, err, queue.ErrBadMessage)
	events.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
}

func TestDowngradeIsNotRetroactive(t *testing.T) {
	db := dbtest.New(t)
	users := repository.NewUserRepo(db, database.SQLite)
	svc := NewService(db, users, nil, nil)
	user := dbtest.InsertUser(t, db, "agency")
	dbtest.InsertListings(t, db, user, "approved", false, 10)

	require.NoError(t, svc.ApplyPlanChange(context.Background(), user, "free"))
	assert.Equal(t, 10, dbtest.CountRows(t, db,
		"SELECT COUNT(*) FROM properties WHERE user_id=? AND status='approved' AND is_sold=0", user))
}
