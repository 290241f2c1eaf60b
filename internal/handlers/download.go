// internal/handlers/download.go
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/javajoker/wavhaven-backend/internal/services"
	"github.com/javajoker/wavhaven-backend/internal/utils"
)

type DownloadHandler struct {
	downloadService *services.DownloadService
}

func NewDownloadHandler(downloadService *services.DownloadService) *DownloadHandler {
	return &DownloadHandler{
		downloadService: downloadService,
	}
}

// GET /downloads/files/:id
//
// Returns a short-lived link as JSON, or redirects to it with ?redirect=true.
func (h *DownloadHandler) GetFileLink(c *gin.Context) {
	fileID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	link, err := h.downloadService.Authorize(c.Request.Context(), utils.GetOptionalUserID(c), fileID)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	if c.Query("redirect") == "true" {
		c.Header("Cache-Control", "no-store")
		c.Redirect(http.StatusFound, link.URL)
		return
	}
	utils.SuccessResponse(c, link)
}

// GET /downloads
func (h *DownloadHandler) GetLibrary(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	entries, err := h.downloadService.ListDownloads(c.Request.Context(), userID)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, entries)
}
