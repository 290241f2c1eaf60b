// internal/utils/response.go
package utils

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/javajoker/wavhaven-backend/internal/apperrors"
	"github.com/javajoker/wavhaven-backend/internal/i18n"
	"github.com/javajoker/wavhaven-backend/internal/models"
	"github.com/javajoker/wavhaven-backend/internal/policy"
)

type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *APIError   `json:"error,omitempty"`
	Meta    interface{} `json:"meta,omitempty"`
}

type APIError struct {
	Code      string      `json:"code"`
	Message   string      `json:"message"`
	Details   interface{} `json:"details,omitempty"`
	Retryable bool        `json:"retryable,omitempty"`
}

func SuccessResponse(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, APIResponse{
		Success: true,
		Data:    data,
	})
}

func SuccessResponseWithMeta(c *gin.Context, data interface{}, meta interface{}) {
	c.JSON(http.StatusOK, APIResponse{
		Success: true,
		Data:    data,
		Meta:    meta,
	})
}

func CreatedResponse(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, APIResponse{
		Success: true,
		Data:    data,
	})
}

func ErrorResponse(c *gin.Context, statusCode int, code, message string, details interface{}) {
	c.JSON(statusCode, APIResponse{
		Success: false,
		Error: &APIError{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}

func BadRequestResponse(c *gin.Context, message string, details interface{}) {
	lang := GetLangFromContext(c)
	if message == "" {
		message = i18n.T(lang, i18n.KeyValidationInvalid, "request")
	}
	ErrorResponse(c, http.StatusBadRequest, "BAD_REQUEST", message, details)
}

func UnauthorizedResponse(c *gin.Context, message string) {
	lang := GetLangFromContext(c)
	if message == "" {
		message = i18n.T(lang, i18n.KeyAuthRequired)
	}
	ErrorResponse(c, http.StatusUnauthorized, "UNAUTHORIZED", message, nil)
}

func ForbiddenResponse(c *gin.Context, message string) {
	lang := GetLangFromContext(c)
	if message == "" {
		message = i18n.T(lang, i18n.KeyAccessDenied)
	}
	ErrorResponse(c, http.StatusForbidden, "FORBIDDEN", message, nil)
}

func NotFoundResponse(c *gin.Context, resource string) {
	lang := GetLangFromContext(c)
	message := i18n.T(lang, i18n.KeyNotFound, resource)
	ErrorResponse(c, http.StatusNotFound, "NOT_FOUND", message, nil)
}

func ConflictResponse(c *gin.Context, message string) {
	ErrorResponse(c, http.StatusConflict, "CONFLICT", message, nil)
}

func InternalErrorResponse(c *gin.Context, message string) {
	if message == "" {
		message = i18n.T(GetLangFromContext(c), i18n.KeyInternalError)
	}
	ErrorResponse(c, http.StatusInternalServerError, "INTERNAL_ERROR", message, nil)
}

func ValidationErrorResponse(c *gin.Context, errors []ValidationError) {
	lang := GetLangFromContext(c)
	message := i18n.T(lang, i18n.KeyValidationInvalid, "input")
	ErrorResponse(c, http.StatusBadRequest, "VALIDATION_ERROR", message, errors)
}

// HandleServiceError writes the response for an error returned by a service.
// Collaborator and internal failures are logged and reported generically.
func HandleServiceError(c *gin.Context, err error) {
	lang := GetLangFromContext(c)

	appErr, ok := apperrors.As(err)
	if !ok {
		appErr = apperrors.Internal("unexpected error", err)
	}

	var message string
	var details interface{}
	switch appErr.Kind {
	case apperrors.KindValidation:
		message = appErr.Message
		if len(appErr.Fields) > 0 {
			details = appErr.Fields
		}
	case apperrors.KindUnauthorized:
		message = i18n.T(lang, i18n.KeyAuthRequired)
	case apperrors.KindForbidden:
		message = i18n.T(lang, i18n.KeyAccessDenied)
	case apperrors.KindExternal:
		logrus.WithError(err).WithField("path", c.FullPath()).Error("External service failure")
		message = i18n.T(lang, i18n.KeyServiceUnavailable)
	case apperrors.KindInternal:
		logrus.WithError(err).WithField("path", c.FullPath()).Error("Internal error")
		message = i18n.T(lang, i18n.KeyInternalError)
	default:
		message = appErr.Message
	}

	c.JSON(appErr.HTTPStatus(), APIResponse{
		Success: false,
		Error: &APIError{
			Code:      string(appErr.Kind),
			Message:   message,
			Details:   details,
			Retryable: appErr.Retryable(),
		},
	})
}

func PaginatedResponse(c *gin.Context, result PaginationResult) {
	SetPaginationHeaders(c, result)
	SuccessResponseWithMeta(c, result.Data, gin.H{
		"pagination": gin.H{
			"page":        result.Page,
			"limit":       result.Limit,
			"total":       result.Total,
			"total_pages": result.TotalPages,
		},
	})
}

func GetLangFromContext(c *gin.Context) string {
	if lang, exists := c.Get("lang"); exists {
		if langStr, ok := lang.(string); ok {
			return langStr
		}
	}
	return "en"
}

func GetUserIDFromContext(c *gin.Context) (uuid.UUID, bool) {
	if userID, exists := c.Get("user_id"); exists {
		if id, ok := userID.(uuid.UUID); ok {
			return id, true
		}
	}
	return uuid.Nil, false
}

func GetUserRoleFromContext(c *gin.Context) models.UserRole {
	if role, exists := c.Get("user_role"); exists {
		if r, ok := role.(models.UserRole); ok {
			return r
		}
	}
	return ""
}

// GetOptionalUserID returns the viewer id for routes that also serve anonymous callers.
func GetOptionalUserID(c *gin.Context) *uuid.UUID {
	if id, ok := GetUserIDFromContext(c); ok {
		return &id
	}
	return nil
}

// GetSubjectFromContext returns the policy subject for the caller, or a guest.
func GetSubjectFromContext(c *gin.Context) policy.Subject {
	id, ok := GetUserIDFromContext(c)
	if !ok {
		return policy.Guest()
	}
	return policy.Subject{UserID: id, Role: GetUserRoleFromContext(c)}
}
