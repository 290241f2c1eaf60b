// internal/handlers/checkout.go
package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/javajoker/wavhaven-backend/internal/cart"
	"github.com/javajoker/wavhaven-backend/internal/services"
	"github.com/javajoker/wavhaven-backend/internal/utils"
)

type CheckoutHandler struct {
	checkoutService *services.CheckoutService
}

type QuoteCartRequest struct {
	Items  []cart.Item  `json:"items"`
	Action *cart.Action `json:"action"`
}

type CreateCheckoutRequest struct {
	Items []cart.Item `json:"items"`
}

func NewCheckoutHandler(checkoutService *services.CheckoutService) *CheckoutHandler {
	return &CheckoutHandler{
		checkoutService: checkoutService,
	}
}

// POST /cart/quote
func (h *CheckoutHandler) QuoteCart(c *gin.Context) {
	var req QuoteCartRequest
	if !bindJSON(c, &req) {
		return
	}

	quote, err := h.checkoutService.Quote(c.Request.Context(), req.Items, req.Action)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, quote)
}

// POST /checkout
func (h *CheckoutHandler) CreateCheckout(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	var req CreateCheckoutRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := h.checkoutService.CreateCheckout(c.Request.Context(), userID, req.Items)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.CreatedResponse(c, result)
}

// GET /orders
func (h *CheckoutHandler) ListOrders(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	params := utils.GetPaginationParams(c)
	orders, total, err := h.checkoutService.ListOrders(c.Request.Context(), userID, params)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	paginated(c, orders, total, params)
}

// GET /orders/:id
func (h *CheckoutHandler) GetOrder(c *gin.Context) {
	orderID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	order, err := h.checkoutService.GetOrder(c.Request.Context(), utils.GetSubjectFromContext(c), orderID)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, order)
}

// GET /orders/session/:session_id
func (h *CheckoutHandler) GetOrderBySession(c *gin.Context) {
	order, err := h.checkoutService.GetOrderBySession(c.Request.Context(), utils.GetSubjectFromContext(c), c.Param("session_id"))
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, order)
}
