// internal/handlers/interaction.go
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/javajoker/wavhaven-backend/internal/services"
	"github.com/javajoker/wavhaven-backend/internal/utils"
)

type InteractionHandler struct {
	interactionService *services.InteractionService
}

func NewInteractionHandler(interactionService *services.InteractionService) *InteractionHandler {
	return &InteractionHandler{
		interactionService: interactionService,
	}
}

// PUT /likes/tracks/:id and DELETE /likes/tracks/:id
func (h *InteractionHandler) SetLike(c *gin.Context) {
	trackID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	state, err := h.interactionService.SetLike(c.Request.Context(), utils.GetSubjectFromContext(c), trackID, c.Request.Method == http.MethodPut)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	utils.SuccessResponse(c, state)
}

// PUT /follows/producers/:id and DELETE /follows/producers/:id
func (h *InteractionHandler) SetFollow(c *gin.Context) {
	producerID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	state, err := h.interactionService.SetFollow(c.Request.Context(), utils.GetSubjectFromContext(c), producerID, c.Request.Method == http.MethodPut)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	utils.SuccessResponse(c, state)
}

// GET /users/me/likes
func (h *InteractionHandler) GetLikedTracks(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	tracks, err := h.interactionService.LikedTracks(c.Request.Context(), userID)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	utils.SuccessResponse(c, tracks)
}

// GET /users/me/following
func (h *InteractionHandler) GetFollowing(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	producers, err := h.interactionService.Following(c.Request.Context(), userID)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	utils.SuccessResponse(c, producers)
}
