package services_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/javajoker/wavhaven-backend/internal/cart"
	"github.com/javajoker/wavhaven-backend/internal/models"
	"github.com/javajoker/wavhaven-backend/internal/policy"
	"github.com/javajoker/wavhaven-backend/internal/services"
	"github.com/javajoker/wavhaven-backend/internal/testutil"
	"github.com/javajoker/wavhaven-backend/internal/utils"
)

func subject(u *models.User) policy.Subject {
	return policy.Subject{UserID: u.ID, Role: u.Role}
}

// listing is a published track with one license, ready to buy.
type listing struct {
	producer *models.User
	track    *models.Track
	license  *models.License
}

func newListing(t *testing.T, env *testutil.Env, title, price string) listing {
	t.Helper()
	producer := testutil.CreateUser(t, env.DB, models.UserRoleProducer)
	track := testutil.CreateTrack(t, env.DB, producer.ID, title, models.TrackStatusPublished)
	license := testutil.CreateLicense(t, env.DB, track.ID, models.LicenseTypeBasic, price, models.TrackFileTypeMainMP3)
	return listing{producer: producer, track: track, license: license}
}

func (l listing) item() cart.Item {
	return cart.Item{TrackID: l.track.ID, LicenseID: l.license.ID}
}

// checkout creates a pending order for buyer and returns it.
func checkout(t *testing.T, env *testutil.Env, buyer *models.User, items ...cart.Item) *services.CheckoutResult {
	t.Helper()
	result, err := env.Services.Checkout.CreateCheckout(context.Background(), buyer.ID, items)
	require.NoError(t, err)
	return result
}

// paidEvent is the completed-session event the processor sends for result.
func paidEvent(eventID string, result *services.CheckoutResult) *services.PaymentEvent {
	return &services.PaymentEvent{
		ID:   eventID,
		Type: services.EventCheckoutCompleted,
		Session: &services.SessionData{
			ID:              result.SessionID,
			PaymentStatus:   services.PaymentStatusPaid,
			PaymentIntentID: "pi_" + eventID,
			AmountTotal:     result.AmountTotal.Shift(2).IntPart(),
			Currency:        result.Currency,
			Metadata:        map[string]string{"order_id": result.OrderID.String()},
		},
	}
}

// purchase runs checkout and fulfillment for buyer.
func purchase(t *testing.T, env *testutil.Env, buyer *models.User, items ...cart.Item) *services.CheckoutResult {
	t.Helper()
	result := checkout(t, env, buyer, items...)
	outcome, err := env.Services.Fulfillment.HandlePaymentEvent(context.Background(), paidEvent("evt_"+result.OrderID.String()[:8], result))
	require.NoError(t, err)
	require.Equal(t, services.OutcomeProcessed, outcome)
	return result
}

func reload[T any](t *testing.T, env *testutil.Env, id interface{}) *T {
	t.Helper()
	var out T
	require.NoError(t, env.DB.First(&out, "id = ?", id).Error)
	return &out
}

func pageOf(page, limit int) utils.PaginationParams {
	return utils.PaginationParams{Page: page, Limit: limit}
}
