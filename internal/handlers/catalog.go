// internal/handlers/catalog.go
package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/javajoker/wavhaven-backend/internal/models"
	"github.com/javajoker/wavhaven-backend/internal/services"
	"github.com/javajoker/wavhaven-backend/internal/utils"
)

type CatalogHandler struct {
	catalogService *services.CatalogService
}

func NewCatalogHandler(catalogService *services.CatalogService) *CatalogHandler {
	return &CatalogHandler{
		catalogService: catalogService,
	}
}

// GET /catalog/tracks
func (h *CatalogHandler) SearchTracks(c *gin.Context) {
	filter, errs := parseTrackFilter(c)
	if len(errs) > 0 {
		utils.ValidationErrorResponse(c, errs)
		return
	}

	result, err := h.catalogService.Search(c.Request.Context(), filter)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	params := utils.PaginationParams{Page: result.Page, Limit: result.Limit}
	paginated(c, result.Tracks, result.Total, params)
}

// parseTrackFilter reads catalog query parameters. Malformed numbers are
// reported per field; range and enum checks are left to the service.
func parseTrackFilter(c *gin.Context) (services.TrackFilter, []utils.ValidationError) {
	var errs []utils.ValidationError

	filter := services.TrackFilter{
		Keyword: c.Query("q"),
		Genres:  queryList(c, "genre", "genres"),
		Moods:   queryList(c, "mood", "moods"),
		Keys:    queryList(c, "key", "keys"),
		Sort:    services.CatalogSort(c.Query("sort")),
	}
	if filter.Keyword == "" {
		filter.Keyword = c.Query("keyword")
	}
	for _, t := range queryList(c, "license_type", "license_types") {
		filter.LicenseTypes = append(filter.LicenseTypes, models.LicenseType(t))
	}

	intParam := func(name string) *int {
		raw, ok := c.GetQuery(name)
		if !ok || raw == "" {
			return nil
		}
		v, err := strconv.Atoi(raw)
		if err != nil {
			errs = append(errs, utils.ValidationError{Field: name, Tag: "numeric", Message: name + " must be an integer"})
			return nil
		}
		return &v
	}
	priceParam := func(name string) *decimal.Decimal {
		raw, ok := c.GetQuery(name)
		if !ok || raw == "" {
			return nil
		}
		v, err := decimal.NewFromString(raw)
		if err != nil {
			errs = append(errs, utils.ValidationError{Field: name, Tag: "numeric", Message: name + " must be a number"})
			return nil
		}
		return &v
	}

	filter.MinBPM = intParam("min_bpm")
	filter.MaxBPM = intParam("max_bpm")
	filter.MinPrice = priceParam("min_price")
	filter.MaxPrice = priceParam("max_price")

	page, limit, pageErrs := utils.ParsePageAndLimit(c, services.DefaultCatalogLimit)
	errs = append(errs, pageErrs...)
	filter.Page = page
	filter.Limit = limit

	return filter, errs
}

// GET /catalog/tracks/:slug
func (h *CatalogHandler) GetTrack(c *gin.Context) {
	track, err := h.catalogService.GetBySlug(c.Request.Context(), c.Param("slug"), utils.GetSubjectFromContext(c))
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, track)
}

// POST /catalog/plays/:id
func (h *CatalogHandler) RecordPlay(c *gin.Context) {
	trackID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	h.catalogService.IncrementPlayCount(c.Request.Context(), trackID)
	c.Status(http.StatusNoContent)
}

// GET /catalog/genres
func (h *CatalogHandler) GetGenres(c *gin.Context) {
	tags, err := h.catalogService.ListGenres(c.Request.Context())
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	utils.SuccessResponse(c, tags)
}

// GET /catalog/moods
func (h *CatalogHandler) GetMoods(c *gin.Context) {
	tags, err := h.catalogService.ListMoods(c.Request.Context())
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	utils.SuccessResponse(c, tags)
}
