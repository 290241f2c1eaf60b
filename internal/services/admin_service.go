// internal/services/admin_service.go
package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/javajoker/wavhaven-backend/internal/apperrors"
	"github.com/javajoker/wavhaven-backend/internal/models"
	"github.com/javajoker/wavhaven-backend/internal/policy"
	"github.com/javajoker/wavhaven-backend/internal/utils"
)

type AdminService struct {
	db       *gorm.DB
	payments PaymentProcessor
}

type AdminDashboardStats struct {
	UsersByRole       map[models.UserRole]int64    `json:"users_by_role"`
	TracksByStatus    map[models.TrackStatus]int64 `json:"tracks_by_status"`
	NewUsersThisMonth int64                        `json:"new_users_this_month"`
	CompletedOrders   int64                        `json:"completed_orders"`
	GrossRevenue      decimal.Decimal              `json:"gross_revenue"`
	MonthlyRevenue    decimal.Decimal              `json:"monthly_revenue"`
	RefundedOrders    int64                        `json:"refunded_orders"`
	OpenReports       int64                        `json:"open_reports"`
}

type AdminUserFilter struct {
	utils.PaginationParams
	Role   models.UserRole
	Status models.UserStatus
	Search string
}

type AdminOrderFilter struct {
	utils.PaginationParams
	Status models.OrderStatus
	UserID *uuid.UUID
}

type AuditLogFilter struct {
	utils.PaginationParams
	UserID       *uuid.UUID
	ResourceType string
}

func NewAdminService(db *gorm.DB, payments PaymentProcessor) *AdminService {
	return &AdminService{
		db:       db,
		payments: payments,
	}
}

func (s *AdminService) GetDashboardStats(ctx context.Context) (*AdminDashboardStats, error) {
	db := s.db.WithContext(ctx)
	stats := &AdminDashboardStats{
		UsersByRole:    map[models.UserRole]int64{},
		TracksByStatus: map[models.TrackStatus]int64{},
	}
	now := time.Now()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())

	var roleCounts []struct {
		Role  models.UserRole
		Count int64
	}
	if err := db.Model(&models.User{}).Select("role, COUNT(*) AS count").Group("role").Scan(&roleCounts).Error; err != nil {
		return nil, apperrors.Internal("failed to count users", err)
	}
	for _, rc := range roleCounts {
		stats.UsersByRole[rc.Role] = rc.Count
	}

	var statusCounts []struct {
		Status models.TrackStatus
		Count  int64
	}
	if err := db.Model(&models.Track{}).Select("status, COUNT(*) AS count").Group("status").Scan(&statusCounts).Error; err != nil {
		return nil, apperrors.Internal("failed to count tracks", err)
	}
	for _, sc := range statusCounts {
		stats.TracksByStatus[sc.Status] = sc.Count
	}

	counts := []struct {
		dest  *int64
		model interface{}
		where string
		args  []interface{}
	}{
		{&stats.NewUsersThisMonth, &models.User{}, "created_at >= ?", []interface{}{monthStart}},
		{&stats.CompletedOrders, &models.Order{}, "status = ?", []interface{}{models.OrderStatusCompleted}},
		{&stats.RefundedOrders, &models.Order{}, "status = ?", []interface{}{models.OrderStatusRefunded}},
		{&stats.OpenReports, &models.ModerationQueueEntry{}, "status = ?", []interface{}{models.ReportStatusOpen}},
	}
	for _, c := range counts {
		if err := db.Model(c.model).Where(c.where, c.args...).Count(c.dest).Error; err != nil {
			return nil, apperrors.Internal("failed to compute dashboard stats", err)
		}
	}

	var err error
	if stats.GrossRevenue, err = s.revenue(db, time.Time{}); err != nil {
		return nil, apperrors.Internal("failed to sum revenue", err)
	}
	if stats.MonthlyRevenue, err = s.revenue(db, monthStart); err != nil {
		return nil, apperrors.Internal("failed to sum revenue", err)
	}

	return stats, nil
}

func (s *AdminService) revenue(db *gorm.DB, since time.Time) (decimal.Decimal, error) {
	query := db.Model(&models.Order{}).Where("status = ?", models.OrderStatusCompleted)
	if !since.IsZero() {
		query = query.Where("completed_at >= ?", since)
	}

	var sum decimal.NullDecimal
	if err := query.Select("SUM(amount_total)").Row().Scan(&sum); err != nil {
		return decimal.Zero, err
	}
	if !sum.Valid {
		return decimal.Zero, nil
	}
	return sum.Decimal, nil
}

// User Management
func (s *AdminService) GetUsers(ctx context.Context, filter AdminUserFilter) ([]models.User, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.User{})

	if filter.Role != "" {
		query = query.Where("role = ?", filter.Role)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Search != "" {
		searchTerm := "%" + escapeLike(strings.ToLower(filter.Search)) + "%"
		query = query.Where("LOWER(username) LIKE ? ESCAPE '\\' OR LOWER(email) LIKE ? ESCAPE '\\' OR LOWER(name) LIKE ? ESCAPE '\\'", searchTerm, searchTerm, searchTerm)
	}

	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, apperrors.Internal("failed to count users", err)
	}

	allowedSortFields := []string{"created_at", "updated_at", "username", "email", "role", "status"}
	query = utils.ApplySort(query, filter.PaginationParams, allowedSortFields)
	query = utils.ApplyPagination(query, filter.PaginationParams)

	var users []models.User
	if err := query.Preload("SellerProfile").Find(&users).Error; err != nil {
		return nil, 0, apperrors.Internal("failed to fetch users", err)
	}

	return users, total, nil
}

// UpdateUserStatus suspends or reactivates an account. Admin accounts and
// the caller's own account cannot be changed here.
func (s *AdminService) UpdateUserStatus(ctx context.Context, actor policy.Subject, userID uuid.UUID, status models.UserStatus) (*models.User, error) {
	if !policy.Allowed(actor, policy.On(policy.ResourceUser), policy.ActionManage) {
		return nil, apperrors.Forbidden("only admins can change account status")
	}
	if status != models.UserStatusActive && status != models.UserStatusSuspended {
		return nil, apperrors.Validation("invalid status", apperrors.FieldError{Field: "status", Message: "status must be active or suspended"})
	}
	if actor.UserID == userID {
		return nil, apperrors.Forbidden("admins cannot change their own status")
	}

	var user models.User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("user")
		}
		return nil, apperrors.Internal("failed to load user", err)
	}
	if user.Role == models.UserRoleAdmin {
		return nil, apperrors.Forbidden("cannot modify admin user status")
	}

	if err := s.db.WithContext(ctx).Model(&user).Update("status", status).Error; err != nil {
		return nil, apperrors.Internal("failed to update user status", err)
	}

	logrus.WithFields(logrus.Fields{"admin_id": actor.UserID, "user_id": userID, "status": status}).Info("User status changed")
	return &user, nil
}

// Order Management
func (s *AdminService) GetOrders(ctx context.Context, filter AdminOrderFilter) ([]models.Order, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.Order{})
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.UserID != nil {
		query = query.Where("user_id = ?", *filter.UserID)
	}

	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, apperrors.Internal("failed to count orders", err)
	}

	query = utils.ApplySort(query, filter.PaginationParams, []string{"created_at", "amount_total", "status", "completed_at"})
	query = utils.ApplyPagination(query, filter.PaginationParams)

	var orders []models.Order
	if err := query.Preload("User").Preload("Items").Find(&orders).Error; err != nil {
		return nil, 0, apperrors.Internal("failed to fetch orders", err)
	}
	return orders, total, nil
}

// RefundOrder refunds a completed order through the payment processor and
// marks it REFUNDED. Downloads stop because permissions require a
// COMPLETED order.
func (s *AdminService) RefundOrder(ctx context.Context, actor policy.Subject, orderID uuid.UUID, reason string) (*models.Order, error) {
	if !policy.Allowed(actor, policy.On(policy.ResourceOrder), policy.ActionRefund) {
		return nil, apperrors.Forbidden("only admins can refund orders")
	}

	var order models.Order
	if err := s.db.WithContext(ctx).First(&order, "id = ?", orderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("order")
		}
		return nil, apperrors.Internal("failed to load order", err)
	}
	if order.Status != models.OrderStatusCompleted {
		return nil, apperrors.Conflict("only completed orders can be refunded")
	}
	if order.PaymentIntentID == "" {
		return nil, apperrors.Conflict("order has no captured payment to refund")
	}

	// The idempotency key makes a retried refund safe after a failed update.
	if err := s.payments.Refund(ctx, order.PaymentIntentID, "refund-"+order.ID.String()); err != nil {
		return nil, apperrors.External("payment processor", err)
	}

	now := time.Now()
	result := s.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ? AND status = ?", order.ID, models.OrderStatusCompleted).
		Updates(map[string]interface{}{
			"status":      models.OrderStatusRefunded,
			"refunded_at": &now,
		})
	if result.Error != nil {
		return nil, apperrors.Internal("failed to mark order refunded", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, apperrors.Conflict("order status changed concurrently")
	}

	order.Status = models.OrderStatusRefunded
	order.RefundedAt = &now

	logrus.WithFields(logrus.Fields{
		"admin_id": actor.UserID,
		"order_id": order.ID,
		"amount":   order.AmountTotal.StringFixed(2),
		"reason":   reason,
	}).Info("Order refunded")

	return &order, nil
}

// Audit log
func (s *AdminService) RecordAudit(ctx context.Context, entry *models.AuditLog) {
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		logrus.WithError(err).WithField("action", entry.Action).Error("Failed to write audit log")
	}
}

func (s *AdminService) GetAuditLogs(ctx context.Context, filter AuditLogFilter) ([]models.AuditLog, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.AuditLog{})
	if filter.UserID != nil {
		query = query.Where("user_id = ?", *filter.UserID)
	}
	if filter.ResourceType != "" {
		query = query.Where("resource_type = ?", filter.ResourceType)
	}

	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, apperrors.Internal("failed to count audit logs", err)
	}

	var logs []models.AuditLog
	err := query.Preload("User").
		Order("created_at DESC").
		Offset(filter.Offset()).Limit(filter.Limit).
		Find(&logs).Error
	if err != nil {
		return nil, 0, apperrors.Internal("failed to fetch audit logs", err)
	}
	return logs, total, nil
}
