// internal/handlers/track.go
package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/javajoker/wavhaven-backend/internal/i18n"
	"github.com/javajoker/wavhaven-backend/internal/models"
	"github.com/javajoker/wavhaven-backend/internal/services"
	"github.com/javajoker/wavhaven-backend/internal/utils"
)

// TrackHandler serves the producer studio: track metadata, files and the
// review workflow.
type TrackHandler struct {
	trackService      *services.TrackService
	moderationService *services.ModerationService
}

type ReportTrackRequest struct {
	TrackID uuid.UUID `json:"track_id"`
	Reason  string    `json:"reason"`
}

func NewTrackHandler(trackService *services.TrackService, moderationService *services.ModerationService) *TrackHandler {
	return &TrackHandler{
		trackService:      trackService,
		moderationService: moderationService,
	}
}

// GET /studio/tracks
func (h *TrackHandler) ListMyTracks(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	params := utils.GetPaginationParams(c)
	tracks, total, err := h.trackService.ListMine(c.Request.Context(), userID, params)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	paginated(c, tracks, total, params)
}

// POST /studio/tracks
func (h *TrackHandler) CreateTrack(c *gin.Context) {
	var req services.CreateTrackRequest
	if !bindJSON(c, &req) {
		return
	}

	track, err := h.trackService.Create(c.Request.Context(), utils.GetSubjectFromContext(c), &req)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.CreatedResponse(c, gin.H{
		"message": message(c, i18n.KeyTrackCreated),
		"track":   track,
	})
}

// GET /studio/tracks/:id
func (h *TrackHandler) GetTrack(c *gin.Context) {
	trackID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	track, err := h.trackService.GetForOwner(c.Request.Context(), utils.GetSubjectFromContext(c), trackID)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, track)
}

// PUT /studio/tracks/:id
func (h *TrackHandler) UpdateTrack(c *gin.Context) {
	trackID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req services.UpdateTrackRequest
	if !bindJSON(c, &req) {
		return
	}

	track, err := h.trackService.Update(c.Request.Context(), utils.GetSubjectFromContext(c), trackID, &req)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message": message(c, i18n.KeyTrackUpdated),
		"track":   track,
	})
}

// DELETE /studio/tracks/:id
func (h *TrackHandler) DeleteTrack(c *gin.Context) {
	trackID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	result, err := h.trackService.Delete(c.Request.Context(), utils.GetSubjectFromContext(c), trackID)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	key := i18n.KeyTrackDeleted
	if result.Unpublished {
		key = i18n.KeyTrackUnpublished
	}
	utils.SuccessResponse(c, gin.H{
		"message": message(c, key),
		"result":  result,
	})
}

// POST /studio/tracks/:id/submit
func (h *TrackHandler) SubmitTrack(c *gin.Context) {
	trackID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	track, err := h.moderationService.Submit(c.Request.Context(), utils.GetSubjectFromContext(c), trackID)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message": message(c, i18n.KeyTrackSubmitted),
		"track":   track,
	})
}

// POST /studio/tracks/:id/unpublish
func (h *TrackHandler) UnpublishTrack(c *gin.Context) {
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

// POST /studio/tracks/:id/files (multipart: file_type, file)
func (h *TrackHandler) UploadFile(c *gin.Context) {
	trackID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	header, err := c.FormFile("file")
	if err != nil {
		utils.ValidationErrorResponse(c, []utils.ValidationError{{Field: "file", Tag: "required", Message: "file is required"}})
		return
	}
	file, err := header.Open()
	if err != nil {
		utils.BadRequestResponse(c, "unreadable upload", nil)
		return
	}
	defer file.Close()

	fileType := models.TrackFileType(c.PostForm("file_type"))
	trackFile, err := h.trackService.UploadFile(c.Request.Context(), utils.GetSubjectFromContext(c), trackID, fileType, services.FileUpload{
		FileName:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Body:        file,
	})
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.CreatedResponse(c, gin.H{
		"message": message(c, i18n.KeyFileUploadSuccess),
		"file":    trackFile,
	})
}

// DELETE /studio/files/:id
func (h *TrackHandler) DeleteFile(c *gin.Context) {
	fileID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	if err := h.trackService.DeleteFile(c.Request.Context(), utils.GetSubjectFromContext(c), fileID); err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{"message": message(c, i18n.KeyFileDeleted)})
}

// POST /reports
func (h *TrackHandler) ReportTrack(c *gin.Context) {
	var req ReportTrackRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.TrackID == uuid.Nil {
		utils.ValidationErrorResponse(c, []utils.ValidationError{{Field: "track_id", Tag: "required", Message: "track_id is required"}})
		return
	}

	report, err := h.moderationService.ReportTrack(c.Request.Context(), utils.GetSubjectFromContext(c), req.TrackID, req.Reason)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.CreatedResponse(c, gin.H{
		"message": message(c, i18n.KeyTrackReported),
		"report":  report,
	})
}
