package services_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/javajoker/wavhaven-backend/internal/models"
	"github.com/javajoker/wavhaven-backend/internal/services"
	"github.com/javajoker/wavhaven-backend/internal/testutil"
)

func countRows(t *testing.T, env *testutil.Env, model interface{}, query string, args ...interface{}) int64 {
	t.Helper()
	var n int64
	require.NoError(t, env.DB.Model(model).Where(query, args...).Count(&n).Error)
	return n
}

func TestHandlePaymentEventFulfillsOnce(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	buyer := testutil.CreateUser(t, env.DB, models.UserRoleCustomer)
	l := newListing(t, env, "Once Only", "10.00")
	result := checkout(t, env, buyer, l.item())
	event := paidEvent("evt_once", result)

	outcome, err := env.Services.Fulfillment.HandlePaymentEvent(ctx, event)
	require.NoError(t, err)
	assert.Equal(t, services.OutcomeProcessed, outcome)

	outcome, err = env.Services.Fulfillment.HandlePaymentEvent(ctx, event)
	require.NoError(t, err)
	assert.Equal(t, services.OutcomeDuplicate, outcome)

	order := reload[models.Order](t, env, result.OrderID)
	assert.Equal(t, models.OrderStatusCompleted, order.Status)
	assert.NotNil(t, order.CompletedAt)
	assert.Equal(t, "pi_evt_once", order.PaymentIntentID)

	assert.EqualValues(t, 1, countRows(t, env, &models.UserDownloadPermission{}, "order_id = ?", result.OrderID))
	assert.EqualValues(t, 1, countRows(t, env, &models.OrderFulfillment{}, "order_id = ?", result.OrderID))
	assert.EqualValues(t, 1, countRows(t, env, &models.WebhookEvent{}, "event_id = ?", "evt_once"))

	track := reload[models.Track](t, env, l.track.ID)
	assert.EqualValues(t, 1, track.SalesCount)
}

func TestHandlePaymentEventSecondEventForSameOrder(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	buyer := testutil.CreateUser(t, env.DB, models.UserRoleCustomer)
	l := newListing(t, env, "Async Too", "12.00")
	result := checkout(t, env, buyer, l.item())

	outcome, err := env.Services.Fulfillment.HandlePaymentEvent(ctx, paidEvent("evt_completed", result))
	require.NoError(t, err)
	require.Equal(t, services.OutcomeProcessed, outcome)

	async := paidEvent("evt_async", result)
	async.Type = services.EventCheckoutAsyncSucceeded
	outcome, err = env.Services.Fulfillment.HandlePaymentEvent(ctx, async)
	require.NoError(t, err)
	assert.Equal(t, services.OutcomeDuplicate, outcome)

	assert.EqualValues(t, 1, countRows(t, env, &models.UserDownloadPermission{}, "order_id = ?", result.OrderID))
	// The rolled back delivery leaves no event record behind.
	assert.EqualValues(t, 0, countRows(t, env, &models.WebhookEvent{}, "event_id = ?", "evt_async"))
	assert.EqualValues(t, 1, reload[models.Track](t, env, l.track.ID).SalesCount)
}

func TestHandlePaymentEventAmountMismatch(t *testing.T) {
	env := testutil.NewEnv(t)
	buyer := testutil.CreateUser(t, env.DB, models.UserRoleCustomer)
	l := newListing(t, env, "Underpaid", "10.00")
	result := checkout(t, env, buyer, l.item())

	event := paidEvent("evt_short", result)
	event.Session.AmountTotal = 500

	outcome, err := env.Services.Fulfillment.HandlePaymentEvent(context.Background(), event)
	require.NoError(t, err)
	assert.Equal(t, services.OutcomeIgnored, outcome)

	assert.Equal(t, models.OrderStatusPending, reload[models.Order](t, env, result.OrderID).Status)
	assert.EqualValues(t, 0, countRows(t, env, &models.UserDownloadPermission{}, "order_id = ?", result.OrderID))
}

func TestHandlePaymentEventSessionMismatch(t *testing.T) {
	env := testutil.NewEnv(t)
	buyer := testutil.CreateUser(t, env.DB, models.UserRoleCustomer)
	l := newListing(t, env, "Wrong Session", "10.00")
	result := checkout(t, env, buyer, l.item())

	event := paidEvent("evt_other_session", result)
	event.Session.ID = "cs_someone_else"

	outcome, err := env.Services.Fulfillment.HandlePaymentEvent(context.Background(), event)
	require.NoError(t, err)
	assert.Equal(t, services.OutcomeIgnored, outcome)
	assert.Equal(t, models.OrderStatusPending, reload[models.Order](t, env, result.OrderID).Status)
}

func TestHandlePaymentEventUnpaidSession(t *testing.T) {
	env := testutil.NewEnv(t)
	buyer := testutil.CreateUser(t, env.DB, models.UserRoleCustomer)
	l := newListing(t, env, "Bank Transfer", "10.00")
	result := checkout(t, env, buyer, l.item())

	event := paidEvent("evt_unpaid", result)
	event.Session.PaymentStatus = "unpaid"

	outcome, err := env.Services.Fulfillment.HandlePaymentEvent(context.Background(), event)
	require.NoError(t, err)
	assert.Equal(t, services.OutcomeIgnored, outcome)
	assert.Equal(t, models.OrderStatusPending, reload[models.Order](t, env, result.OrderID).Status)

	// The async success that follows still fulfills the order.
	async := paidEvent("evt_paid_later", result)
	async.Type = services.EventCheckoutAsyncSucceeded
	outcome, err = env.Services.Fulfillment.HandlePaymentEvent(context.Background(), async)
	require.NoError(t, err)
	assert.Equal(t, services.OutcomeProcessed, outcome)
}

func TestHandlePaymentEventExpiredSession(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	buyer := testutil.CreateUser(t, env.DB, models.UserRoleCustomer)
	l := newListing(t, env, "Abandoned", "10.00")
	result := checkout(t, env, buyer, l.item())

	event := paidEvent("evt_expired", result)
	event.Type = services.EventCheckoutExpired
	event.Session.PaymentStatus = "unpaid"

	outcome, err := env.Services.Fulfillment.HandlePaymentEvent(ctx, event)
	require.NoError(t, err)
	assert.Equal(t, services.OutcomeProcessed, outcome)

	order := reload[models.Order](t, env, result.OrderID)
	assert.Equal(t, models.OrderStatusFailed, order.Status)
	assert.NotNil(t, order.FailedAt)

	// A late completion for a failed order grants nothing.
	outcome, err = env.Services.Fulfillment.HandlePaymentEvent(ctx, paidEvent("evt_late", result))
	require.NoError(t, err)
	assert.Equal(t, services.OutcomeIgnored, outcome)
	assert.EqualValues(t, 0, countRows(t, env, &models.UserDownloadPermission{}, "order_id = ?", result.OrderID))
}

func TestHandlePaymentEventUnknownOrder(t *testing.T) {
	env := testutil.NewEnv(t)

	outcome, err := env.Services.Fulfillment.HandlePaymentEvent(context.Background(), &services.PaymentEvent{
		ID:   "evt_stranger",
		Type: services.EventCheckoutCompleted,
		Session: &services.SessionData{
			ID:            "cs_unknown",
			PaymentStatus: services.PaymentStatusPaid,
			AmountTotal:   1000,
		},
	})
	require.NoError(t, err)
	assert.Equal(t, services.OutcomeIgnored, outcome)
}

func TestHandlePaymentEventUnhandledType(t *testing.T) {
	env := testutil.NewEnv(t)

	outcome, err := env.Services.Fulfillment.HandlePaymentEvent(context.Background(), &services.PaymentEvent{
		ID:   "evt_invoice",
		Type: "invoice.paid",
	})
	require.NoError(t, err)
	assert.Equal(t, services.OutcomeIgnored, outcome)
}

func TestHandlePaymentEventAccountUpdated(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	user := testutil.CreateUser(t, env.DB, models.UserRoleCustomer)

	onboarding, err := env.Services.Users.BecomeProducer(ctx, user.ID, &services.SellerProfileRequest{StoreName: "Lo-Fi Lab"})
	require.NoError(t, err)
	require.NotNil(t, onboarding.Profile.PaymentAccountID)
	assert.False(t, onboarding.Profile.PaymentAccountReady)

	outcome, err := env.Services.Fulfillment.HandlePaymentEvent(ctx, &services.PaymentEvent{
		ID:   "evt_account",
		Type: services.EventAccountUpdated,
		Account: &services.AccountData{
			ID:               *onboarding.Profile.PaymentAccountID,
			ChargesEnabled:   true,
			PayoutsEnabled:   true,
			DetailsSubmitted: true,
		},
	})
	require.NoError(t, err)
	assert.Equal(t, services.OutcomeProcessed, outcome)

	profile, err := env.Services.Users.GetSellerProfile(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, profile.PaymentAccountReady)
}

func TestHandlePaymentEventSendsConfirmation(t *testing.T) {
	env := testutil.NewEnv(t)
	buyer := testutil.CreateUser(t, env.DB, models.UserRoleCustomer)
	l := newListing(t, env, "Mail Me", "10.00")
	testutil.CreateFile(t, env.DB, l.track.ID, models.TrackFileTypeMainMP3, "mail-me.mp3")

	purchase(t, env, buyer, l.item())
	env.Services.Notifications.Wait()

	sent := env.Mailer.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, buyer.Email, sent[0].To)
	assert.Contains(t, sent[0].Body, "Mail Me")
	assert.Contains(t, sent[0].Body, "https://signed.test/tracks/")
}
