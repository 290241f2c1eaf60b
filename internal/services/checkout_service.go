// internal/services/checkout_service.go
package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/javajoker/wavhaven-backend/internal/apperrors"
	"github.com/javajoker/wavhaven-backend/internal/cache"
	"github.com/javajoker/wavhaven-backend/internal/cart"
	"github.com/javajoker/wavhaven-backend/internal/config"
	"github.com/javajoker/wavhaven-backend/internal/metrics"
	"github.com/javajoker/wavhaven-backend/internal/models"
	"github.com/javajoker/wavhaven-backend/internal/policy"
	"github.com/javajoker/wavhaven-backend/internal/utils"
)

type CheckoutService struct {
	db          *gorm.DB
	payments    PaymentProcessor
	limiter     cache.Limiter
	metrics     *metrics.Metrics
	currency    string
	frontendURL string
}

type CheckoutResult struct {
	OrderID     uuid.UUID       `json:"order_id"`
	SessionID   string          `json:"session_id"`
	CheckoutURL string          `json:"checkout_url"`
	AmountTotal decimal.Decimal `json:"amount_total"`
	Currency    string          `json:"currency"`
	Warnings    []cart.Warning  `json:"warnings,omitempty"`
}

// QuoteLine prices one cart line from the store. Unavailable lines keep
// their ids so the client can drop them.
type QuoteLine struct {
	TrackID     uuid.UUID          `json:"track_id"`
	LicenseID   uuid.UUID          `json:"license_id"`
	TrackTitle  string             `json:"track_title,omitempty"`
	TrackSlug   string             `json:"track_slug,omitempty"`
	LicenseName string             `json:"license_name,omitempty"`
	LicenseType models.LicenseType `json:"license_type,omitempty"`
	Price       decimal.Decimal    `json:"price"`
	Available   bool               `json:"available"`
	Reason      string             `json:"reason,omitempty"`
}

type CartQuote struct {
	Items    []cart.Item     `json:"items"`
	Lines    []QuoteLine     `json:"lines"`
	Total    decimal.Decimal `json:"total"`
	Currency string          `json:"currency"`
	Warnings []cart.Warning  `json:"warnings"`
}

func NewCheckoutService(db *gorm.DB, payments PaymentProcessor, limiter cache.Limiter, m *metrics.Metrics, paymentCfg config.PaymentConfig, frontend config.FrontendConfig) *CheckoutService {
	return &CheckoutService{
		db:          db,
		payments:    payments,
		limiter:     limiter,
		metrics:     m,
		currency:    paymentCfg.Currency,
		frontendURL: frontend.BaseURL,
	}
}

// Quote applies action (if any) to the client's cart and prices every line
// from the store. Prices sent by clients are never read.
func (s *CheckoutService) Quote(ctx context.Context, items []cart.Item, action *cart.Action) (*CartQuote, error) {
	c, warnings := cart.FromItems(items)
	if action != nil {
		var w []cart.Warning
		c, w = cart.Reduce(c, *action)
		warnings = append(warnings, w...)
	}

	quote := &CartQuote{
		Items:    c.Items,
		Lines:    make([]QuoteLine, 0, len(c.Items)),
		Total:    decimal.Zero,
		Currency: s.currency,
		Warnings: warnings,
	}
	if quote.Warnings == nil {
		quote.Warnings = []cart.Warning{}
	}
	if c.Len() == 0 {
		return quote, nil
	}

	licenses, err := s.loadLicenses(s.db.WithContext(ctx), c.Items, false)
	if err != nil {
		return nil, apperrors.Internal("failed to price cart", err)
	}

	for _, item := range c.Items {
		line := QuoteLine{TrackID: item.TrackID, LicenseID: item.LicenseID}
		if reason := unavailableReason(licenses[item.LicenseID], item); reason != "" {
			line.Reason = reason
		} else {
			l := licenses[item.LicenseID]
			line.Available = true
			line.TrackTitle = l.Track.Title
			line.TrackSlug = l.Track.Slug
			line.LicenseName = l.Name
			line.LicenseType = l.Type
			line.Price = l.Price
			quote.Total = quote.Total.Add(l.Price)
		}
		quote.Lines = append(quote.Lines, line)
	}
	return quote, nil
}

// CreateCheckout revalidates the cart against current prices, records a
// PENDING order and opens a payment session, all in one transaction. If the
// payment processor fails nothing is committed.
func (s *CheckoutService) CreateCheckout(ctx context.Context, userID uuid.UUID, items []cart.Item) (*CheckoutResult, error) {
	if len(items) == 0 || len(items) > cart.MaxItems {
		s.metrics.Checkout("rejected")
		return nil, apperrors.Validation("invalid cart", apperrors.FieldError{
			Field:   "items",
			Message: fmt.Sprintf("cart must contain between 1 and %d items", cart.MaxItems),
		})
	}

	if s.limiter != nil {
		allowed, err := s.limiter.Allow(ctx, userID.String())
		if err != nil {
			logrus.WithError(err).WithField("user_id", userID).Warn("Checkout rate limiter unavailable")
		} else if !allowed {
			s.metrics.Checkout("rate_limited")
			return nil, apperrors.RateLimited("too many checkout attempts, try again shortly")
		}
	}

	c, warnings := cart.FromItems(items)

	var user models.User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.Unauthorized("unknown user")
		}
		return nil, apperrors.Internal("failed to load user", err)
	}
	if !policy.Allowed(policy.Subject{UserID: user.ID, Role: user.Role}, policy.On(policy.ResourceCart), policy.ActionPurchase) {
		return nil, apperrors.Forbidden("not allowed to check out")
	}

	var order models.Order
	var session *CheckoutSession

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		licenses, err := s.loadLicenses(tx, c.Items, true)
		if err != nil {
			return err
		}

		var fields []apperrors.FieldError
		orderItems := make([]models.OrderItem, 0, c.Len())
		total := decimal.Zero
		for i, item := range c.Items {
			if reason := unavailableReason(licenses[item.LicenseID], item); reason != "" {
				fields = append(fields, apperrors.FieldError{
					Field:   fmt.Sprintf("items[%d].license_id", i),
					Message: reason,
				})
				continue
			}
			l := licenses[item.LicenseID]
			orderItems = append(orderItems, models.OrderItem{
				TrackID:         item.TrackID,
				LicenseID:       item.LicenseID,
				PriceAtPurchase: l.Price,
				TrackTitle:      l.Track.Title,
				LicenseName:     l.Name,
				LicenseType:     l.Type,
			})
			total = total.Add(l.Price)
		}
		if len(fields) > 0 {
			return apperrors.Validation("some items are no longer available", fields...)
		}
		if !total.IsPositive() {
			return apperrors.Validation("nothing to charge", apperrors.FieldError{Field: "items", Message: "cart total must be greater than zero"})
		}

		order = models.Order{
			UserID:      userID,
			Status:      models.OrderStatusPending,
			AmountTotal: total,
			Currency:    s.currency,
			Items:       orderItems,
		}
		if err := tx.Create(&order).Error; err != nil {
			return err
		}

		lines := make([]CheckoutLine, 0, len(orderItems))
		for _, item := range orderItems {
			lines = append(lines, CheckoutLine{
				Name:       fmt.Sprintf("%s - %s License", item.TrackTitle, item.LicenseName),
				UnitAmount: toMinorUnits(item.PriceAtPurchase),
			})
		}

		session, err = s.payments.CreateCheckoutSession(ctx, CheckoutSessionRequest{
			OrderID:       order.ID,
			UserID:        userID,
			CustomerEmail: user.Email,
			Currency:      s.currency,
			Lines:         lines,
			SuccessURL:    s.frontendURL + "/order/success?session_id={CHECKOUT_SESSION_ID}",
			CancelURL:     s.frontendURL + "/cart",
		})
		if err != nil {
			return apperrors.External("payment processor", err)
		}

		order.PaymentSessionID = &session.ID
		return tx.Model(&order).Update("payment_session_id", session.ID).Error
	})
	if err != nil {
		switch apperrors.KindOf(err) {
		case apperrors.KindValidation:
			s.metrics.Checkout("rejected")
		default:
			s.metrics.Checkout("failed")
		}
		return nil, asServiceError(err, "failed to create order")
	}

	s.metrics.Checkout("created")
	logrus.WithFields(logrus.Fields{
		"order_id":   order.ID,
		"user_id":    userID,
		"items":      len(order.Items),
		"amount":     order.AmountTotal.StringFixed(2),
		"session_id": session.ID,
	}).Info("Checkout session created")

	return &CheckoutResult{
		OrderID:     order.ID,
		SessionID:   session.ID,
		CheckoutURL: session.URL,
		AmountTotal: order.AmountTotal,
		Currency:    order.Currency,
		Warnings:    warnings,
	}, nil
}

func (s *CheckoutService) ListOrders(ctx context.Context, userID uuid.UUID, params utils.PaginationParams) ([]models.Order, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.Order{}).Where("user_id = ?", userID)

	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, apperrors.Internal("failed to count orders", err)
	}

	var orders []models.Order
	err := query.Preload("Items").
		Order("created_at DESC").Order("id ASC").
		Offset(params.Offset()).Limit(params.Limit).
		Find(&orders).Error
	if err != nil {
		return nil, 0, apperrors.Internal("failed to list orders", err)
	}
	return orders, total, nil
}

// GetOrder returns an order to its buyer or an admin. Other callers get
// NotFound so order ids cannot be enumerated.
func (s *CheckoutService) GetOrder(ctx context.Context, actor policy.Subject, orderID uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := s.db.WithContext(ctx).Preload("Items").First(&order, "id = ?", orderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("order")
		}
		return nil, apperrors.Internal("failed to load order", err)
	}
	if !policy.Allowed(actor, policy.Owned(policy.ResourceOrder, order.UserID), policy.ActionRead) {
		return nil, apperrors.NotFound("order")
	}
	return &order, nil
}

// GetOrderBySession resolves the order behind a checkout session for the
// success page.
func (s *CheckoutService) GetOrderBySession(ctx context.Context, actor policy.Subject, sessionID string) (*models.Order, error) {
	var order models.Order
	if err := s.db.WithContext(ctx).Preload("Items").Where("payment_session_id = ?", sessionID).First(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("order")
		}
		return nil, apperrors.Internal("failed to load order", err)
	}
	if !policy.Allowed(actor, policy.Owned(policy.ResourceOrder, order.UserID), policy.ActionRead) {
		return nil, apperrors.NotFound("order")
	}
	return &order, nil
}

// loadLicenses fetches the referenced licenses with their tracks. With lock
// set, rows are locked in id order so concurrent checkouts cannot deadlock.
func (s *CheckoutService) loadLicenses(db *gorm.DB, items []cart.Item, lock bool) (map[uuid.UUID]*models.License, error) {
	ids := make([]uuid.UUID, 0, len(items))
	trackIDs := make([]uuid.UUID, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.LicenseID)
		trackIDs = append(trackIDs, item.TrackID)
	}

	licenseQuery := db.Where("id IN ?", ids).Order("id")
	trackQuery := db.Where("id IN ?", trackIDs).Order("id")
	if lock {
		licenseQuery = licenseQuery.Clauses(clause.Locking{Strength: "UPDATE"})
		trackQuery = trackQuery.Clauses(clause.Locking{Strength: "SHARE"})
	}

	var tracks []models.Track
	if err := trackQuery.Find(&tracks).Error; err != nil {
		return nil, err
	}
	var licenses []models.License
	if err := licenseQuery.Find(&licenses).Error; err != nil {
		return nil, err
	}

	trackByID := make(map[uuid.UUID]*models.Track, len(tracks))
	for i := range tracks {
		trackByID[tracks[i].ID] = &tracks[i]
	}

	out := make(map[uuid.UUID]*models.License, len(licenses))
	for i := range licenses {
		l := &licenses[i]
		l.Track = trackByID[l.TrackID]
		out[l.ID] = l
	}
	return out, nil
}

// unavailableReason explains why a cart line cannot be bought, or returns
// "" when it can.
func unavailableReason(l *models.License, item cart.Item) string {
	switch {
	case l == nil:
		return "license no longer exists"
	case l.TrackID != item.TrackID:
		return "license does not belong to this track"
	case l.Track == nil || !l.Track.IsPublished():
		return "track is not available"
	case l.Price.IsNegative():
		return "license is not for sale"
	}
	return ""
}
