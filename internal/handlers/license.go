// internal/handlers/license.go
package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/javajoker/wavhaven-backend/internal/i18n"
	"github.com/javajoker/wavhaven-backend/internal/services"
	"github.com/javajoker/wavhaven-backend/internal/utils"
)

type LicenseHandler struct {
	licenseService *services.LicenseService
	trackService   *services.TrackService
}

func NewLicenseHandler(licenseService *services.LicenseService, trackService *services.TrackService) *LicenseHandler {
	return &LicenseHandler{
		licenseService: licenseService,
		trackService:   trackService,
	}
}

// GET /studio/tracks/:id/licenses
func (h *LicenseHandler) ListLicenses(c *gin.Context) {
	trackID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	// Drafts are private to their producer.
	if _, err := h.trackService.GetForOwner(c.Request.Context(), utils.GetSubjectFromContext(c), trackID); err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	licenses, err := h.licenseService.List(c.Request.Context(), trackID)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, licenses)
}

// PUT /studio/tracks/:id/licenses
//
// Creates the license of the given type or replaces its terms and price.
func (h *LicenseHandler) UpsertLicense(c *gin.Context) {
	trackID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req services.UpsertLicenseRequest
	if !bindJSON(c, &req) {
		return
	}

	license, err := h.licenseService.Upsert(c.Request.Context(), utils.GetSubjectFromContext(c), trackID, &req)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message": message(c, i18n.KeyLicenseSaved),
		"license": license,
	})
}

// DELETE /studio/licenses/:id
func (h *LicenseHandler) DeleteLicense(c *gin.Context) {
	licenseID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	if err := h.licenseService.Delete(c.Request.Context(), utils.GetSubjectFromContext(c), licenseID); err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{"message": message(c, i18n.KeyLicenseDeleted)})
}
