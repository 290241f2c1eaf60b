// internal/services/fulfillment_service.go
package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/javajoker/wavhaven-backend/internal/apperrors"
	"github.com/javajoker/wavhaven-backend/internal/config"
	"github.com/javajoker/wavhaven-backend/internal/database"
	"github.com/javajoker/wavhaven-backend/internal/metrics"
	"github.com/javajoker/wavhaven-backend/internal/models"
)

const ProviderStripe = "stripe"

type WebhookOutcome string

const (
	OutcomeProcessed WebhookOutcome = "processed"
	OutcomeDuplicate WebhookOutcome = "duplicate"
	OutcomeIgnored   WebhookOutcome = "ignored"
)

// Sentinels that roll the event transaction back without failing the
// delivery.
var (
	errDuplicateEvent   = errors.New("event already processed")
	errAlreadyFulfilled = errors.New("order already fulfilled")
)

type FulfillmentService struct {
	db           *gorm.DB
	users        *UserService
	downloads    *DownloadService
	notifier     Notifier
	metrics      *metrics.Metrics
	emailLinkTTL time.Duration
}

func NewFulfillmentService(db *gorm.DB, users *UserService, downloads *DownloadService, notifier Notifier, m *metrics.Metrics, cfg config.AWSConfig) *FulfillmentService {
	ttl := time.Duration(cfg.EmailLinkTTL) * time.Hour
	if ttl <= 0 {
		ttl = 72 * time.Hour
	}
	return &FulfillmentService{
		db:           db,
		users:        users,
		downloads:    downloads,
		notifier:     notifier,
		metrics:      m,
		emailLinkTTL: ttl,
	}
}

// HandlePaymentEvent applies a verified payment event exactly once. The
// event id is recorded in the same transaction as its effects, so a failed
// attempt leaves nothing behind and the processor's retry starts clean.
// An error return means the delivery should be retried.
func (s *FulfillmentService) HandlePaymentEvent(ctx context.Context, event *PaymentEvent) (WebhookOutcome, error) {
	var fulfilled *models.Order
	outcome := OutcomeProcessed

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		record := &models.WebhookEvent{Provider: ProviderStripe, EventID: event.ID, Type: event.Type}
		if err := tx.Create(record).Error; err != nil {
			if database.IsUniqueViolation(err) {
				return errDuplicateEvent
			}
			return err
		}

		switch event.Type {
		case EventCheckoutCompleted, EventCheckoutAsyncSucceeded:
			if event.Session == nil || event.Session.PaymentStatus != PaymentStatusPaid {
				logrus.WithField("event_id", event.ID).Info("Checkout session not paid yet")
				outcome = OutcomeIgnored
				return nil
			}
			order, err := s.fulfillOrder(tx, event.ID, event.Session)
			if err != nil {
				return err
			}
			if order == nil {
				outcome = OutcomeIgnored
			}
			fulfilled = order
			return nil

		case EventCheckoutExpired, EventCheckoutAsyncFailed:
			if event.Session == nil {
				outcome = OutcomeIgnored
				return nil
			}
			changed, err := s.failOrder(tx, event.Session)
			if err != nil {
				return err
			}
			if !changed {
				outcome = OutcomeIgnored
			}
			return nil

		case EventAccountUpdated:
			if event.Account == nil {
				outcome = OutcomeIgnored
				return nil
			}
			return s.users.ApplyAccountUpdate(tx, event.Account)

		default:
			outcome = OutcomeIgnored
			return nil
		}
	})

	switch {
	case errors.Is(err, errDuplicateEvent), errors.Is(err, errAlreadyFulfilled):
		s.metrics.WebhookEvent(ProviderStripe, event.Type, string(OutcomeDuplicate))
		if errors.Is(err, errAlreadyFulfilled) {
			s.metrics.Fulfillment("duplicate")
		}
		logrus.WithFields(logrus.Fields{"event_id": event.ID, "type": event.Type}).Info("Duplicate payment event acknowledged")
		return OutcomeDuplicate, nil
	case err != nil:
		s.metrics.WebhookEvent(ProviderStripe, event.Type, "error")
		logrus.WithError(err).WithFields(logrus.Fields{"event_id": event.ID, "type": event.Type}).Error("Failed to process payment event")
		return "", asServiceError(err, "failed to process payment event")
	}

	s.metrics.WebhookEvent(ProviderStripe, event.Type, string(outcome))
	if fulfilled != nil {
		s.metrics.Fulfillment("completed")
		s.sendConfirmation(ctx, fulfilled)
	}
	return outcome, nil
}

// fulfillOrder completes the order referenced by session and mints one
// download permission per item. It returns nil when the event does not
// refer to a fulfillable order.
func (s *FulfillmentService) fulfillOrder(tx *gorm.DB, eventID string, session *SessionData) (*models.Order, error) {
	order, err := findSessionOrder(tx, session)
	if err != nil || order == nil {
		return nil, err
	}

	log := logrus.WithFields(logrus.Fields{"order_id": order.ID, "event_id": eventID, "session_id": session.ID})

	switch order.Status {
	case models.OrderStatusCompleted:
		return nil, errAlreadyFulfilled
	case models.OrderStatusPending:
	default:
		log.WithField("status", order.Status).Warn("Payment completed for an order that is no longer pending")
		return nil, nil
	}

	if order.PaymentSessionID != nil && *order.PaymentSessionID != session.ID {
		log.Error("Checkout session does not match order")
		s.metrics.Fulfillment("rejected")
		return nil, nil
	}
	if toMinorUnits(order.AmountTotal) != session.AmountTotal {
		log.WithFields(logrus.Fields{
			"expected": toMinorUnits(order.AmountTotal),
			"paid":     session.AmountTotal,
		}).Error("Paid amount does not match order total")
		s.metrics.Fulfillment("rejected")
		return nil, nil
	}
	if !order.ItemsTotal().Equal(order.AmountTotal) {
		return nil, apperrors.Internal("order total does not match its items", nil)
	}

	if err := tx.Create(&models.OrderFulfillment{OrderID: order.ID, EventID: eventID}).Error; err != nil {
		if database.IsUniqueViolation(err) {
			return nil, errAlreadyFulfilled
		}
		return nil, err
	}

	now := time.Now()
	updates := map[string]interface{}{
		"status":       models.OrderStatusCompleted,
		"completed_at": &now,
	}
	if session.PaymentIntentID != "" {
		updates["payment_intent_id"] = session.PaymentIntentID
	}
	result := tx.Model(&models.Order{}).
		Where("id = ? AND status = ?", order.ID, models.OrderStatusPending).
		Updates(updates)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, errAlreadyFulfilled
	}

	permissions := make([]models.UserDownloadPermission, 0, len(order.Items))
	for _, item := range order.Items {
		permissions = append(permissions, models.UserDownloadPermission{
			UserID:      order.UserID,
			TrackID:     item.TrackID,
			OrderID:     order.ID,
			OrderItemID: item.ID,
			LicenseID:   item.LicenseID,
		})
	}
	if len(permissions) > 0 {
		if err := tx.Omit(clause.Associations).Create(&permissions).Error; err != nil {
			if database.IsUniqueViolation(err) {
				return nil, errAlreadyFulfilled
			}
			return nil, err
		}
	}

	for _, item := range order.Items {
		err := tx.Model(&models.Track{}).
			Where("id = ?", item.TrackID).
			UpdateColumn("sales_count", gorm.Expr("sales_count + 1")).Error
		if err != nil {
			return nil, err
		}
	}

	order.Status = models.OrderStatusCompleted
	order.CompletedAt = &now
	log.WithField("permissions", len(permissions)).Info("Order fulfilled")
	return order, nil
}

// failOrder marks a pending order FAILED. Orders in any other state are left
// alone.
func (s *FulfillmentService) failOrder(tx *gorm.DB, session *SessionData) (bool, error) {
	order, err := findSessionOrder(tx, session)
	if err != nil || order == nil {
		return false, err
	}

	now := time.Now()
	result := tx.Model(&models.Order{}).
		Where("id = ? AND status = ?", order.ID, models.OrderStatusPending).
		Updates(map[string]interface{}{
			"status":    models.OrderStatusFailed,
			"failed_at": &now,
		})
	if result.Error != nil {
		return false, result.Error
	}

	if result.RowsAffected > 0 {
		logrus.WithField("order_id", order.ID).Info("Order marked failed")
	}
	return result.RowsAffected > 0, nil
}

// findSessionOrder locks the order a checkout session belongs to. Unknown
// orders are logged and reported as nil so the delivery is acknowledged.
func findSessionOrder(tx *gorm.DB, session *SessionData) (*models.Order, error) {
	query := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Preload("Items")

	var order models.Order
	var err error
	if id, parseErr := uuid.Parse(session.Metadata["order_id"]); parseErr == nil {
		err = query.First(&order, "id = ?", id).Error
	} else {
		err = query.Where("payment_session_id = ?", session.ID).First(&order).Error
	}

	if errors.Is(err, gorm.ErrRecordNotFound) {
		logrus.WithFields(logrus.Fields{
			"session_id": session.ID,
			"order_id":   session.Metadata["order_id"],
		}).Warn("Payment event for unknown order")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// sendConfirmation runs after commit. Email problems never undo a
// fulfillment; the buyer can always download from their library.
func (s *FulfillmentService) sendConfirmation(ctx context.Context, order *models.Order) {
	if s.notifier == nil {
		return
	}

	var user models.User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", order.UserID).Error; err != nil {
		logrus.WithError(err).WithField("order_id", order.ID).Error("Failed to load buyer for confirmation email")
		return
	}

	items, err := s.downloads.EmailLinks(ctx, order, s.emailLinkTTL)
	if err != nil {
		logrus.WithError(err).WithField("order_id", order.ID).Error("Failed to sign download links for confirmation email")
		items = nil
		for _, item := range order.Items {
			items = append(items, ConfirmationItem{
				TrackTitle:  item.TrackTitle,
				LicenseName: item.LicenseName,
				Price:       item.PriceAtPurchase,
			})
		}
	}

	s.notifier.EnqueueOrderConfirmation(OrderConfirmation{
		To:           user.Email,
		CustomerName: user.DisplayName(),
		OrderID:      order.ID,
		Total:        order.AmountTotal,
		Currency:     order.Currency,
		Items:        items,
		LinksExpire:  time.Now().Add(s.emailLinkTTL),
	})
}
