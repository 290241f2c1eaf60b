// internal/handlers/webhook.go
package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/javajoker/wavhaven-backend/internal/i18n"
	"github.com/javajoker/wavhaven-backend/internal/services"
	"github.com/javajoker/wavhaven-backend/internal/utils"
)

// maxWebhookBody bounds webhook payloads; provider events are far smaller.
const maxWebhookBody = 64 << 10

type WebhookHandler struct {
	payments    services.PaymentProcessor
	fulfillment *services.FulfillmentService
	auth        *services.AuthService
}

func NewWebhookHandler(payments services.PaymentProcessor, fulfillment *services.FulfillmentService, auth *services.AuthService) *WebhookHandler {
	return &WebhookHandler{
		payments:    payments,
		fulfillment: fulfillment,
		auth:        auth,
	}
}

func readWebhookBody(c *gin.Context) ([]byte, bool) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody)
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			utils.ErrorResponse(c, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "payload too large", nil)
			return nil, false
		}
		utils.BadRequestResponse(c, "unreadable body", nil)
		return nil, false
	}
	return body, true
}

// POST /webhooks/stripe
//
// The signature is checked before anything in the payload is trusted. A 2xx
// tells the processor to stop retrying; a 5xx asks for redelivery.
func (h *WebhookHandler) HandleStripe(c *gin.Context) {
	body, ok := readWebhookBody(c)
	if !ok {
		return
	}

	event, err := h.payments.ParseWebhookEvent(body, c.GetHeader("Stripe-Signature"))
	if err != nil {
		if errors.Is(err, services.ErrInvalidWebhookSignature) {
			utils.BadRequestResponse(c, message(c, i18n.KeyWebhookInvalidSignature), nil)
			return
		}
		logrus.WithError(err).Warn("Undecodable payment webhook")
		utils.BadRequestResponse(c, "malformed event", nil)
		return
	}

	outcome, err := h.fulfillment.HandlePaymentEvent(c.Request.Context(), event)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true, "outcome": outcome})
}

// POST /webhooks/identity
func (h *WebhookHandler) HandleIdentity(c *gin.Context) {
	body, ok := readWebhookBody(c)
	if !ok {
		return
	}

	headers := services.IdentityWebhookHeaders{
		ID:        c.GetHeader("svix-id"),
		Timestamp: c.GetHeader("svix-timestamp"),
		Signature: c.GetHeader("svix-signature"),
	}
	eventType, err := h.auth.HandleIdentityWebhook(c.Request.Context(), headers, body)
	if err != nil {
		if errors.Is(err, services.ErrInvalidWebhookSignature) {
			utils.BadRequestResponse(c, message(c, i18n.KeyWebhookInvalidSignature), nil)
			return
		}
		utils.HandleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true, "type": eventType})
}
