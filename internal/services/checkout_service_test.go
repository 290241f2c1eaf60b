package services_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/javajoker/wavhaven-backend/internal/apperrors"
	"github.com/javajoker/wavhaven-backend/internal/cache"
	"github.com/javajoker/wavhaven-backend/internal/cart"
	"github.com/javajoker/wavhaven-backend/internal/models"
	"github.com/javajoker/wavhaven-backend/internal/services"
	"github.com/javajoker/wavhaven-backend/internal/testutil"
)

type CheckoutServiceTestSuite struct {
	suite.Suite
	env   *testutil.Env
	buyer *models.User
	ctx   context.Context
}

func (s *CheckoutServiceTestSuite) SetupTest() {
	s.env = testutil.NewEnv(s.T())
	s.buyer = testutil.CreateUser(s.T(), s.env.DB, models.UserRoleCustomer)
	s.ctx = context.Background()
}

func (s *CheckoutServiceTestSuite) TestCreateCheckoutSingleItem() {
	l := newListing(s.T(), s.env, "Night Drive", "10.00")

	result, err := s.env.Services.Checkout.CreateCheckout(s.ctx, s.buyer.ID, []cart.Item{l.item()})
	s.Require().NoError(err)

	s.True(decimal.RequireFromString("10").Equal(result.AmountTotal))
	s.Equal("usd", result.Currency)
	s.NotEmpty(result.SessionID)
	s.Equal("https://checkout.test/"+result.SessionID, result.CheckoutURL)

	s.Require().Len(s.env.Payments.Sessions, 1)
	session := s.env.Payments.Sessions[0]
	s.Equal(result.OrderID, session.OrderID)
	s.Equal(s.buyer.Email, session.CustomerEmail)
	s.Require().Len(session.Lines, 1)
	s.Equal(int64(1000), session.Lines[0].UnitAmount)
	s.Equal("Night Drive - BASIC License", session.Lines[0].Name)
	s.Contains(session.SuccessURL, "https://wavhaven.test/")

	order := reload[models.Order](s.T(), s.env, result.OrderID)
	s.Equal(models.OrderStatusPending, order.Status)
	s.Require().NotNil(order.PaymentSessionID)
	s.Equal(result.SessionID, *order.PaymentSessionID)

	var items []models.OrderItem
	s.Require().NoError(s.env.DB.Where("order_id = ?", result.OrderID).Find(&items).Error)
	s.Require().Len(items, 1)
	s.Equal("Night Drive", items[0].TrackTitle)
	s.True(decimal.RequireFromString("10").Equal(items[0].PriceAtPurchase))
}

func (s *CheckoutServiceTestSuite) TestCreateCheckoutRejectsUnpublishedTrack() {
	l := newListing(s.T(), s.env, "Draft Beat", "25.00")
	s.Require().NoError(s.env.DB.Model(l.track).Update("status", models.TrackStatusDraft).Error)

	_, err := s.env.Services.Checkout.CreateCheckout(s.ctx, s.buyer.ID, []cart.Item{l.item()})
	s.Require().Error(err)

	appErr, ok := apperrors.As(err)
	s.Require().True(ok)
	s.Equal(apperrors.KindValidation, appErr.Kind)
	s.Require().Len(appErr.Fields, 1)
	s.Equal("items[0].license_id", appErr.Fields[0].Field)

	var orders int64
	s.env.DB.Model(&models.Order{}).Count(&orders)
	s.Zero(orders)
	s.Zero(s.env.Payments.SessionCount())
}

func (s *CheckoutServiceTestSuite) TestCreateCheckoutRejectsForeignLicense() {
	a := newListing(s.T(), s.env, "Track A", "10.00")
	b := newListing(s.T(), s.env, "Track B", "10.00")

	_, err := s.env.Services.Checkout.CreateCheckout(s.ctx, s.buyer.ID, []cart.Item{
		{TrackID: a.track.ID, LicenseID: b.license.ID},
	})
	s.True(apperrors.Is(err, apperrors.KindValidation))
}

func (s *CheckoutServiceTestSuite) TestCreateCheckoutRollsBackWhenProcessorFails() {
	l := newListing(s.T(), s.env, "Offline", "10.00")
	s.env.Payments.CheckoutErr = errors.New("connection reset")

	_, err := s.env.Services.Checkout.CreateCheckout(s.ctx, s.buyer.ID, []cart.Item{l.item()})
	s.True(apperrors.Is(err, apperrors.KindExternal))

	var orders, items int64
	s.env.DB.Model(&models.Order{}).Count(&orders)
	s.env.DB.Model(&models.OrderItem{}).Count(&items)
	s.Zero(orders)
	s.Zero(items)
}

func (s *CheckoutServiceTestSuite) TestCreateCheckoutEmptyCart() {
	_, err := s.env.Services.Checkout.CreateCheckout(s.ctx, s.buyer.ID, nil)
	s.True(apperrors.Is(err, apperrors.KindValidation))
}

func (s *CheckoutServiceTestSuite) TestCreateCheckoutUnknownUser() {
	l := newListing(s.T(), s.env, "Ghost", "10.00")
	_, err := s.env.Services.Checkout.CreateCheckout(s.ctx, uuid.New(), []cart.Item{l.item()})
	s.True(apperrors.Is(err, apperrors.KindUnauthorized))
}

func (s *CheckoutServiceTestSuite) TestOrderKeepsPriceAfterLicenseChanges() {
	l := newListing(s.T(), s.env, "Price Drift", "30.00")
	result := checkout(s.T(), s.env, s.buyer, l.item())

	s.Require().NoError(s.env.DB.Model(l.license).Update("price", decimal.RequireFromString("45.00")).Error)

	order, err := s.env.Services.Checkout.GetOrder(s.ctx, subject(s.buyer), result.OrderID)
	s.Require().NoError(err)
	s.True(decimal.RequireFromString("30").Equal(order.AmountTotal))
	s.Require().Len(order.Items, 1)
	s.True(decimal.RequireFromString("30").Equal(order.Items[0].PriceAtPurchase))
}

func (s *CheckoutServiceTestSuite) TestCreateCheckoutMultipleLicensesForOneTrack() {
	l := newListing(s.T(), s.env, "Two Ways", "20.00")
	premium := testutil.CreateLicense(s.T(), s.env.DB, l.track.ID, models.LicenseTypePremium, "50.00")

	result := checkout(s.T(), s.env, s.buyer, l.item(), cart.Item{TrackID: l.track.ID, LicenseID: premium.ID})

	s.True(decimal.RequireFromString("70").Equal(result.AmountTotal))
	s.Require().Len(result.Warnings, 1)
	s.Equal(cart.WarningDuplicateTrack, result.Warnings[0].Code)
}

func (s *CheckoutServiceTestSuite) TestCreateCheckoutRateLimited() {
	l := newListing(s.T(), s.env, "Hot Beat", "10.00")
	cfg := testutil.Config()
	svc := services.NewCheckoutService(s.env.DB, s.env.Payments, cache.NewLocalLimiter(1, time.Minute), nil, cfg.Payment, cfg.Frontend)

	_, err := svc.CreateCheckout(s.ctx, s.buyer.ID, []cart.Item{l.item()})
	s.Require().NoError(err)

	_, err = svc.CreateCheckout(s.ctx, s.buyer.ID, []cart.Item{l.item()})
	s.True(apperrors.Is(err, apperrors.KindRateLimited))
	s.Equal(1, s.env.Payments.SessionCount())
}

type brokenLimiter struct{}

func (brokenLimiter) Allow(context.Context, string) (bool, error) {
	return false, errors.New("redis: connection refused")
}

func (s *CheckoutServiceTestSuite) TestCreateCheckoutWhenLimiterUnavailable() {
	l := newListing(s.T(), s.env, "Still Selling", "10.00")
	cfg := testutil.Config()
	svc := services.NewCheckoutService(s.env.DB, s.env.Payments, brokenLimiter{}, nil, cfg.Payment, cfg.Frontend)

	_, err := svc.CreateCheckout(s.ctx, s.buyer.ID, []cart.Item{l.item()})
	s.Require().NoError(err)
	s.Equal(1, s.env.Payments.SessionCount())
}

func (s *CheckoutServiceTestSuite) TestQuotePricesFromStore() {
	a := newListing(s.T(), s.env, "Quote A", "10.00")
	b := newListing(s.T(), s.env, "Quote B", "15.50")
	missing := cart.Item{TrackID: uuid.New(), LicenseID: uuid.New()}

	quote, err := s.env.Services.Checkout.Quote(s.ctx, []cart.Item{a.item(), missing}, &cart.Action{Type: cart.ActionAdd, Item: b.item()})
	s.Require().NoError(err)

	s.Len(quote.Items, 3)
	s.Require().Len(quote.Lines, 3)
	s.True(quote.Lines[0].Available)
	s.Equal("Quote A", quote.Lines[0].TrackTitle)
	s.False(quote.Lines[1].Available)
	s.Equal("license no longer exists", quote.Lines[1].Reason)
	s.True(quote.Lines[2].Available)
	s.True(decimal.RequireFromString("25.50").Equal(quote.Total))
	s.Empty(quote.Warnings)
}

func (s *CheckoutServiceTestSuite) TestQuoteEmptyCart() {
	quote, err := s.env.Services.Checkout.Quote(s.ctx, nil, nil)
	s.Require().NoError(err)
	s.Empty(quote.Lines)
	s.True(quote.Total.IsZero())
	s.NotNil(quote.Warnings)
}

func (s *CheckoutServiceTestSuite) TestGetOrderHiddenFromOtherUsers() {
	l := newListing(s.T(), s.env, "Private", "10.00")
	result := checkout(s.T(), s.env, s.buyer, l.item())
	other := testutil.CreateUser(s.T(), s.env.DB, models.UserRoleCustomer)
	admin := testutil.CreateUser(s.T(), s.env.DB, models.UserRoleAdmin)

	_, err := s.env.Services.Checkout.GetOrder(s.ctx, subject(other), result.OrderID)
	s.True(apperrors.Is(err, apperrors.KindNotFound))

	_, err = s.env.Services.Checkout.GetOrderBySession(s.ctx, subject(other), result.SessionID)
	s.True(apperrors.Is(err, apperrors.KindNotFound))

	order, err := s.env.Services.Checkout.GetOrder(s.ctx, subject(admin), result.OrderID)
	s.Require().NoError(err)
	s.Equal(s.buyer.ID, order.UserID)
}

func TestCheckoutServiceTestSuite(t *testing.T) {
	suite.Run(t, new(CheckoutServiceTestSuite))
}

func TestListOrdersNewestFirst(t *testing.T) {
	env := testutil.NewEnv(t)
	buyer := testutil.CreateUser(t, env.DB, models.UserRoleCustomer)
	l := newListing(t, env, "Repeat", "5.00")

	checkout(t, env, buyer, l.item())
	checkout(t, env, buyer, l.item())

	orders, total, err := env.Services.Checkout.ListOrders(context.Background(), buyer.ID, pageOf(1, 10))
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Len(t, orders, 2)
	for _, o := range orders {
		assert.Len(t, o.Items, 1)
	}
}
