package services_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/javajoker/wavhaven-backend/internal/apperrors"
	"github.com/javajoker/wavhaven-backend/internal/models"
	"github.com/javajoker/wavhaven-backend/internal/services"
	"github.com/javajoker/wavhaven-backend/internal/testutil"
)

func TestRefundOrder(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	admin := testutil.CreateUser(t, env.DB, models.UserRoleAdmin)
	buyer := testutil.CreateUser(t, env.DB, models.UserRoleCustomer)
	l := newListing(t, env, "Refund Me", "15.00")

	pending := checkout(t, env, buyer, l.item())
	_, err := env.Services.Admin.RefundOrder(ctx, subject(admin), pending.OrderID, "duplicate")
	assert.True(t, apperrors.Is(err, apperrors.KindConflict))

	result, err := env.Services.Fulfillment.HandlePaymentEvent(ctx, paidEvent("evt_refund", pending))
	require.NoError(t, err)
	require.Equal(t, services.OutcomeProcessed, result)

	_, err = env.Services.Admin.RefundOrder(ctx, subject(buyer), pending.OrderID, "I changed my mind")
	assert.True(t, apperrors.Is(err, apperrors.KindForbidden))

	order, err := env.Services.Admin.RefundOrder(ctx, subject(admin), pending.OrderID, "duplicate")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusRefunded, order.Status)
	assert.Equal(t, []string{"pi_evt_refund"}, env.Payments.Refunds)
	assert.NotNil(t, reload[models.Order](t, env, pending.OrderID).RefundedAt)

	_, err = env.Services.Admin.RefundOrder(ctx, subject(admin), pending.OrderID, "again")
	assert.True(t, apperrors.Is(err, apperrors.KindConflict))
}

func TestRefundOrderProcessorFailureKeepsOrder(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	admin := testutil.CreateUser(t, env.DB, models.UserRoleAdmin)
	buyer := testutil.CreateUser(t, env.DB, models.UserRoleCustomer)
	l := newListing(t, env, "Sticky", "15.00")
	result := purchase(t, env, buyer, l.item())

	env.Payments.RefundErr = errors.New("card network down")
	_, err := env.Services.Admin.RefundOrder(ctx, subject(admin), result.OrderID, "requested")
	assert.True(t, apperrors.Is(err, apperrors.KindExternal))
	assert.Equal(t, models.OrderStatusCompleted, reload[models.Order](t, env, result.OrderID).Status)
}

func TestDashboardStats(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	buyer := testutil.CreateUser(t, env.DB, models.UserRoleCustomer)
	a := newListing(t, env, "Stat A", "10.00")
	b := newListing(t, env, "Stat B", "5.50")
	testutil.CreateTrack(t, env.DB, a.producer.ID, "Stat Draft", models.TrackStatusDraft)

	purchase(t, env, buyer, a.item())
	purchase(t, env, buyer, b.item())
	checkout(t, env, buyer, a.item())

	stats, err := env.Services.Admin.GetDashboardStats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, stats.UsersByRole[models.UserRoleCustomer])
	assert.EqualValues(t, 2, stats.UsersByRole[models.UserRoleProducer])
	assert.EqualValues(t, 2, stats.TracksByStatus[models.TrackStatusPublished])
	assert.EqualValues(t, 1, stats.TracksByStatus[models.TrackStatusDraft])
	assert.EqualValues(t, 2, stats.CompletedOrders)
	assert.EqualValues(t, 3, stats.NewUsersThisMonth)
	assert.True(t, decimal.RequireFromString("15.5").Equal(stats.GrossRevenue), stats.GrossRevenue.String())
	assert.True(t, stats.GrossRevenue.Equal(stats.MonthlyRevenue))
}

func TestUpdateUserStatus(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	admin := testutil.CreateUser(t, env.DB, models.UserRoleAdmin)
	otherAdmin := testutil.CreateUser(t, env.DB, models.UserRoleAdmin)
	user := testutil.CreateUser(t, env.DB, models.UserRoleCustomer)

	_, err := env.Services.Admin.UpdateUserStatus(ctx, subject(admin), user.ID, models.UserStatusSuspended)
	require.NoError(t, err)
	assert.Equal(t, models.UserStatusSuspended, reload[models.User](t, env, user.ID).Status)

	_, err = env.Services.Admin.UpdateUserStatus(ctx, subject(admin), otherAdmin.ID, models.UserStatusSuspended)
	assert.True(t, apperrors.Is(err, apperrors.KindForbidden))

	_, err = env.Services.Admin.UpdateUserStatus(ctx, subject(admin), user.ID, "banned")
	assert.True(t, apperrors.Is(err, apperrors.KindValidation))

	_, err = env.Services.Admin.UpdateUserStatus(ctx, subject(admin), uuid.New(), models.UserStatusActive)
	assert.True(t, apperrors.Is(err, apperrors.KindNotFound))
}

func TestGetUsersFilters(t *testing.T) {
	env := testutil.NewEnv(t)
	producer := testutil.CreateUser(t, env.DB, models.UserRoleProducer)
	testutil.CreateUser(t, env.DB, models.UserRoleCustomer)
	testutil.CreateUser(t, env.DB, models.UserRoleCustomer)

	users, total, err := env.Services.Admin.GetUsers(context.Background(), services.AdminUserFilter{
		PaginationParams: pageOf(1, 10),
		Role:             models.UserRoleCustomer,
	})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Len(t, users, 2)

	users, total, err = env.Services.Admin.GetUsers(context.Background(), services.AdminUserFilter{
		PaginationParams: pageOf(1, 10),
		Search:           *producer.Username,
	})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, users, 1)
	assert.Equal(t, producer.ID, users[0].ID)
}

func TestAuditLogs(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	admin := testutil.CreateUser(t, env.DB, models.UserRoleAdmin)
	resource := uuid.New()

	env.Services.Admin.RecordAudit(ctx, &models.AuditLog{
		UserID:       &admin.ID,
		Action:       "POST /api/v1/admin/tracks/:id/approve",
		ResourceType: "tracks",
		ResourceID:   &resource,
		StatusCode:   200,
	})
	env.Services.Admin.RecordAudit(ctx, &models.AuditLog{
		UserID:       &admin.ID,
		Action:       "PUT /api/v1/admin/users/:id/status",
		ResourceType: "users",
		StatusCode:   200,
	})

	logs, total, err := env.Services.Admin.GetAuditLogs(ctx, services.AuditLogFilter{
		PaginationParams: pageOf(1, 10),
		ResourceType:     "tracks",
	})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, logs, 1)
	require.NotNil(t, logs[0].User)
	assert.Equal(t, admin.ID, logs[0].User.ID)
}
