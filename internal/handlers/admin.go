// internal/handlers/admin.go
package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/javajoker/wavhaven-backend/internal/i18n"
	"github.com/javajoker/wavhaven-backend/internal/models"
	"github.com/javajoker/wavhaven-backend/internal/services"
	"github.com/javajoker/wavhaven-backend/internal/utils"
)

type AdminHandler struct {
	adminService      *services.AdminService
	userService       *services.UserService
	moderationService *services.ModerationService
}

type UpdateUserStatusRequest struct {
	Status models.UserStatus `json:"status"`
}

type UpdateUserRoleRequest struct {
	Role models.UserRole `json:"role"`
}

type ReasonRequest struct {
	Reason string `json:"reason"`
}

func NewAdminHandler(adminService *services.AdminService, userService *services.UserService, moderationService *services.ModerationService) *AdminHandler {
	return &AdminHandler{
		adminService:      adminService,
		userService:       userService,
		moderationService: moderationService,
	}
}

// GET /admin/dashboard/stats
func (h *AdminHandler) GetDashboardStats(c *gin.Context) {
	stats, err := h.adminService.GetDashboardStats(c.Request.Context())
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"stats": stats,
	})
}

// GET /admin/users
func (h *AdminHandler) GetUsers(c *gin.Context) {
	params := utils.GetPaginationParams(c)
	filter := services.AdminUserFilter{
		PaginationParams: params,
		Role:             models.UserRole(c.Query("role")),
		Status:           models.UserStatus(c.Query("status")),
		Search:           c.Query("search"),
	}

	users, total, err := h.adminService.GetUsers(c.Request.Context(), filter)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	paginated(c, users, total, params)
}

// PUT /admin/users/:id/status
func (h *AdminHandler) UpdateUserStatus(c *gin.Context) {
	userID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req UpdateUserStatusRequest
	if !bindJSON(c, &req) {
		return
	}

	user, err := h.adminService.UpdateUserStatus(c.Request.Context(), utils.GetSubjectFromContext(c), userID, req.Status)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, user)
}

// PUT /admin/users/:id/role
func (h *AdminHandler) UpdateUserRole(c *gin.Context) {
	userID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req UpdateUserRoleRequest
	if !bindJSON(c, &req) {
		return
	}

	user, err := h.userService.SetUserRole(c.Request.Context(), utils.GetSubjectFromContext(c), userID, req.Role)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message": message(c, i18n.KeyUserRoleUpdated),
		"user":    user,
	})
}

// GET /admin/orders
func (h *AdminHandler) GetOrders(c *gin.Context) {
	params := utils.GetPaginationParams(c)
	filter := services.AdminOrderFilter{
		PaginationParams: params,
		Status:           models.OrderStatus(c.Query("status")),
	}
	if raw := c.Query("user_id"); raw != "" {
		userID, err := uuid.Parse(raw)
		if err != nil {
			utils.ValidationErrorResponse(c, []utils.ValidationError{{Field: "user_id", Tag: "uuid", Message: "user_id must be a valid UUID"}})
			return
		}
		filter.UserID = &userID
	}

	orders, total, err := h.adminService.GetOrders(c.Request.Context(), filter)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	paginated(c, orders, total, params)
}

// POST /admin/orders/:id/refund
func (h *AdminHandler) RefundOrder(c *gin.Context) {
	orderID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req ReasonRequest
	if !bindJSON(c, &req) {
		return
	}

	order, err := h.adminService.RefundOrder(c.Request.Context(), utils.GetSubjectFromContext(c), orderID, req.Reason)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message": message(c, i18n.KeyOrderRefunded),
		"order":   order,
	})
}

// GET /admin/tracks/pending
func (h *AdminHandler) GetPendingTracks(c *gin.Context) {
	params := utils.GetPaginationParams(c)
	tracks, total, err := h.moderationService.ListPendingTracks(c.Request.Context(), params)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	paginated(c, tracks, total, params)
}

// POST /admin/tracks/:id/approve
func (h *AdminHandler) ApproveTrack(c *gin.Context) {
	trackID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	track, err := h.moderationService.Approve(c.Request.Context(), utils.GetSubjectFromContext(c), trackID)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message": message(c, i18n.KeyTrackApproved),
		"track":   track,
	})
}

// POST /admin/tracks/:id/reject
func (h *AdminHandler) RejectTrack(c *gin.Context) {
	trackID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req ReasonRequest
	if !bindJSON(c, &req) {
		return
	}

	track, err := h.moderationService.Reject(c.Request.Context(), utils.GetSubjectFromContext(c), trackID, req.Reason)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message": message(c, i18n.KeyTrackRejected),
		"track":   track,
	})
}

// POST /admin/tracks/:id/unpublish
func (h *AdminHandler) UnpublishTrack(c *gin.Context) {
	trackID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	track, err := h.moderationService.Unpublish(c.Request.Context(), utils.GetSubjectFromContext(c), trackID)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message": message(c, i18n.KeyTrackUnpublished),
		"track":   track,
	})
}

// GET /admin/reports
func (h *AdminHandler) GetReports(c *gin.Context) {
	params := utils.GetPaginationParams(c)
	status := models.ReportStatus(c.DefaultQuery("status", string(models.ReportStatusOpen)))

	reports, total, err := h.moderationService.ListReports(c.Request.Context(), status, params)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	paginated(c, reports, total, params)
}

// POST /admin/reports/:id/resolve
func (h *AdminHandler) ResolveReport(c *gin.Context) {
	reportID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req services.ResolveReportRequest
	if !bindJSON(c, &req) {
		return
	}

	report, err := h.moderationService.ResolveReport(c.Request.Context(), utils.GetSubjectFromContext(c), reportID, &req)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message": message(c, i18n.KeyReportClosed),
		"report":  report,
	})
}

// GET /admin/audit-logs
func (h *AdminHandler) GetAuditLogs(c *gin.Context) {
	params := utils.GetPaginationParams(c)
	filter := services.AuditLogFilter{
		PaginationParams: params,
		ResourceType:     c.Query("resource_type"),
	}
	if raw := c.Query("user_id"); raw != "" {
		if userID, err := uuid.Parse(raw); err == nil {
			filter.UserID = &userID
		}
	}

	logs, total, err := h.adminService.GetAuditLogs(c.Request.Context(), filter)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	paginated(c, logs, total, params)
}
