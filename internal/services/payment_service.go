// internal/services/payment_service.go
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/client"
	"github.com/stripe/stripe-go/v74/webhook"

	"github.com/javajoker/wavhaven-backend/internal/config"
)

var ErrInvalidWebhookSignature = errors.New("invalid webhook signature")

// Payment event types the fulfillment flow reacts to.
const (
	EventCheckoutCompleted      = "checkout.session.completed"
	EventCheckoutAsyncSucceeded = "checkout.session.async_payment_succeeded"
	EventCheckoutExpired        = "checkout.session.expired"
	EventCheckoutAsyncFailed    = "checkout.session.async_payment_failed"
	EventAccountUpdated         = "account.updated"
)

const PaymentStatusPaid = "paid"

type CheckoutLine struct {
	Name       string
	UnitAmount int64 // minor units
}

type CheckoutSessionRequest struct {
	OrderID       uuid.UUID
	UserID        uuid.UUID
	CustomerEmail string
	Currency      string
	Lines         []CheckoutLine
	SuccessURL    string
	CancelURL     string
}

type CheckoutSession struct {
	ID  string
	URL string
}

// PaymentEvent is a verified processor event reduced to the fields the
// fulfillment flow reads. Exactly one of Session or Account is set for the
// event types above.
type PaymentEvent struct {
	ID      string
	Type    string
	Session *SessionData
	Account *AccountData
}

type SessionData struct {
	ID              string
	PaymentStatus   string
	PaymentIntentID string
	AmountTotal     int64
	Currency        string
	Metadata        map[string]string
}

type AccountData struct {
	ID               string
	ChargesEnabled   bool
	PayoutsEnabled   bool
	DetailsSubmitted bool
}

// Ready reports whether the connected account can take payouts.
func (a *AccountData) Ready() bool {
	return a.ChargesEnabled && a.PayoutsEnabled && a.DetailsSubmitted
}

type PaymentProcessor interface {
	CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (*CheckoutSession, error)
	CreateConnectedAccount(ctx context.Context, userID uuid.UUID, email string) (string, error)
	CreateOnboardingLink(ctx context.Context, accountID, refreshURL, returnURL string) (string, error)
	CreateLoginLink(ctx context.Context, accountID string) (string, error)
	Refund(ctx context.Context, paymentIntentID, idempotencyKey string) error
	ParseWebhookEvent(payload []byte, signature string) (*PaymentEvent, error)
}

type StripeProcessor struct {
	api           *client.API
	webhookSecret string
}

func NewStripeProcessor(cfg config.PaymentConfig) *StripeProcessor {
	httpClient := &http.Client{Timeout: time.Duration(cfg.RequestTimeout) * time.Second}
	backendConfig := &stripe.BackendConfig{HTTPClient: httpClient}

	api := client.New(cfg.StripeSecretKey, &stripe.Backends{
		API:     stripe.GetBackendWithConfig(stripe.APIBackend, backendConfig),
		Connect: stripe.GetBackendWithConfig(stripe.ConnectBackend, backendConfig),
		Uploads: stripe.GetBackendWithConfig(stripe.UploadsBackend, backendConfig),
	})

	return &StripeProcessor{
		api:           api,
		webhookSecret: cfg.StripeWebhookSecret,
	}
}

func (p *StripeProcessor) CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (*CheckoutSession, error) {
	lineItems := make([]*stripe.CheckoutSessionLineItemParams, 0, len(req.Lines))
	for _, line := range req.Lines {
		lineItems = append(lineItems, &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency: stripe.String(req.Currency),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(line.Name),
				},
				UnitAmount: stripe.Int64(line.UnitAmount),
			},
			Quantity: stripe.Int64(1),
		})
	}

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems:         lineItems,
		SuccessURL:        stripe.String(req.SuccessURL),
		CancelURL:         stripe.String(req.CancelURL),
		ClientReferenceID: stripe.String(req.OrderID.String()),
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: map[string]string{"order_id": req.OrderID.String()},
		},
	}
	if req.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(req.CustomerEmail)
	}
	params.AddMetadata("order_id", req.OrderID.String())
	params.AddMetadata("user_id", req.UserID.String())
	params.Context = ctx
	params.SetIdempotencyKey("checkout-" + req.OrderID.String())

	sess, err := p.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create checkout session: %w", err)
	}

	return &CheckoutSession{ID: sess.ID, URL: sess.URL}, nil
}

func (p *StripeProcessor) CreateConnectedAccount(ctx context.Context, userID uuid.UUID, email string) (string, error) {
	params := &stripe.AccountParams{
		Type: stripe.String(string(stripe.AccountTypeExpress)),
		Capabilities: &stripe.AccountCapabilitiesParams{
			CardPayments: &stripe.AccountCapabilitiesCardPaymentsParams{Requested: stripe.Bool(true)},
			Transfers:    &stripe.AccountCapabilitiesTransfersParams{Requested: stripe.Bool(true)},
		},
	}
	if email != "" {
		params.Email = stripe.String(email)
	}
	params.AddMetadata("user_id", userID.String())
	params.Context = ctx
	params.SetIdempotencyKey("account-" + userID.String())

	acct, err := p.api.Accounts.New(params)
	if err != nil {
		return "", fmt.Errorf("failed to create connected account: %w", err)
	}
	return acct.ID, nil
}

func (p *StripeProcessor) CreateOnboardingLink(ctx context.Context, accountID, refreshURL, returnURL string) (string, error) {
	params := &stripe.AccountLinkParams{
		Account:    stripe.String(accountID),
		RefreshURL: stripe.String(refreshURL),
		ReturnURL:  stripe.String(returnURL),
		Type:       stripe.String("account_onboarding"),
	}
	params.Context = ctx

	link, err := p.api.AccountLinks.New(params)
	if err != nil {
		return "", fmt.Errorf("failed to create onboarding link: %w", err)
	}
	return link.URL, nil
}

func (p *StripeProcessor) CreateLoginLink(ctx context.Context, accountID string) (string, error) {
	params := &stripe.LoginLinkParams{Account: stripe.String(accountID)}
	params.Context = ctx

	link, err := p.api.LoginLinks.New(params)
	if err != nil {
		return "", fmt.Errorf("failed to create login link: %w", err)
	}
	return link.URL, nil
}

func (p *StripeProcessor) Refund(ctx context.Context, paymentIntentID, idempotencyKey string) error {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(paymentIntentID),
		Reason:        stripe.String(string(stripe.RefundReasonRequestedByCustomer)),
	}
	params.Context = ctx
	params.SetIdempotencyKey(idempotencyKey)

	if _, err := p.api.Refunds.New(params); err != nil {
		return fmt.Errorf("failed to process refund: %w", err)
	}
	return nil
}

// ParseWebhookEvent verifies the Stripe-Signature header before decoding
// anything from the payload.
func (p *StripeProcessor) ParseWebhookEvent(payload []byte, signature string) (*PaymentEvent, error) {
	if signature == "" {
		return nil, ErrInvalidWebhookSignature
	}

	event, err := webhook.ConstructEventWithOptions(payload, signature, p.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		logrus.WithError(err).Warn("Stripe webhook signature verification failed")
		return nil, ErrInvalidWebhookSignature
	}

	out := &PaymentEvent{ID: event.ID, Type: string(event.Type)}
	if event.Data == nil {
		return out, nil
	}

	switch out.Type {
	case EventCheckoutCompleted, EventCheckoutAsyncSucceeded, EventCheckoutExpired, EventCheckoutAsyncFailed:
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			return nil, fmt.Errorf("failed to decode checkout session: %w", err)
		}
		data := &SessionData{
			ID:            sess.ID,
			PaymentStatus: string(sess.PaymentStatus),
			AmountTotal:   sess.AmountTotal,
			Currency:      string(sess.Currency),
			Metadata:      sess.Metadata,
		}
		if sess.PaymentIntent != nil {
			data.PaymentIntentID = sess.PaymentIntent.ID
		}
		out.Session = data

	case EventAccountUpdated:
		var acct stripe.Account
		if err := json.Unmarshal(event.Data.Raw, &acct); err != nil {
			return nil, fmt.Errorf("failed to decode account: %w", err)
		}
		out.Account = &AccountData{
			ID:               acct.ID,
			ChargesEnabled:   acct.ChargesEnabled,
			PayoutsEnabled:   acct.PayoutsEnabled,
			DetailsSubmitted: acct.DetailsSubmitted,
		}
	}

	return out, nil
}

// toMinorUnits converts a decimal price to cents.
func toMinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}
