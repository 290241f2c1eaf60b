// internal/handlers/common.go
package handlers

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/javajoker/wavhaven-backend/internal/i18n"
	"github.com/javajoker/wavhaven-backend/internal/utils"
)

// parseIDParam reads a uuid path parameter, writing a 400 when it is malformed.
func parseIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		utils.ValidationErrorResponse(c, []utils.ValidationError{{
			Field:   name,
			Tag:     "uuid",
			Message: name + " must be a valid UUID",
		}})
		return uuid.Nil, false
	}
	return id, true
}

// bindJSON decodes the body into req, writing a 400 on malformed JSON.
// Field validation happens in the services.
func bindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		lang := utils.GetLangFromContext(c)
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "input"), err.Error())
		return false
	}
	return true
}

// requireUserID returns the authenticated caller's id. Routes using it sit
// behind AuthRequired, so a miss is reported as 401.
func requireUserID(c *gin.Context) (uuid.UUID, bool) {
	id, ok := utils.GetUserIDFromContext(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
	}
	return id, ok
}

// queryList collects a multi-valued query parameter given either repeated
// (?genre=a&genre=b) or comma separated (?genre=a,b).
func queryList(c *gin.Context, keys ...string) []string {
	var out []string
	for _, key := range keys {
		for _, raw := range c.QueryArray(key) {
			for _, v := range strings.Split(raw, ",") {
				if v = strings.TrimSpace(v); v != "" {
					out = append(out, v)
				}
			}
		}
	}
	return out
}

func paginated(c *gin.Context, data interface{}, total int64, params utils.PaginationParams) {
	utils.PaginatedResponse(c, utils.CreatePaginationResult(data, total, params))
}

func message(c *gin.Context, key string) string {
	return i18n.T(utils.GetLangFromContext(c), key)
}
