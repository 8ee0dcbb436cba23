package handlers

import (
	"net/http"
	"strconv"

	"pharmacy_backend/internal/middleware"
	"pharmacy_backend/internal/models"
	"pharmacy_backend/pkg/utils"

	"github.com/gin-gonic/gin"
)

// currentActor returns the authenticated caller stored by the auth
// middleware. ok is false when the request reached the handler without
// passing authentication.
func currentActor(c *gin.Context) (models.Actor, bool) {
	v, exists := c.Get(middleware.ActorContextKey)
	if !exists {
		return models.Actor{}, false
	}
	actor, ok := v.(models.Actor)
	return actor, ok
}

// mustActor resolves the actor or writes a 401 response and returns false.
func mustActor(c *gin.Context) (models.Actor, bool) {
	actor, ok := currentActor(c)
	if !ok {
		utils.RespondWithError(c, utils.NewAPIError(http.StatusUnauthorized, utils.ErrCodeUnauthorized, "User not authenticated.", "Missing actor in request context"))
	}
	return actor, ok
}

// parseIDParam parses the named URL parameter as an int64 ID, responding with
// a 400 on failure.
func parseIDParam(c *gin.Context, name string) (int64, bool) {
	idStr := c.Param(name)
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id <= 0 {
		utils.RespondWithError(c, utils.NewAPIError(http.StatusBadRequest, utils.ErrCodeValidationFailed, "Invalid "+name+" format.", "must be a positive integer"))
		return 0, false
	}
	return id, true
}

// parsePagination reads page/page_size query parameters with sane defaults.
func parsePagination(c *gin.Context) (page, pageSize int, ok bool) {
	page, pageSize = 1, 10
	if pageStr := c.Query("page"); pageStr != "" {
		p, err := strconv.Atoi(pageStr)
		if err != nil || p <= 0 {
			utils.RespondWithError(c, utils.NewAPIError(http.StatusBadRequest, utils.ErrCodeValidationFailed, "Invalid page format.", "page must be a positive integer"))
			return 0, 0, false
		}
		page = p
	}
	if pageSizeStr := c.Query("page_size"); pageSizeStr != "" {
		ps, err := strconv.Atoi(pageSizeStr)
		if err != nil || ps <= 0 {
			utils.RespondWithError(c, utils.NewAPIError(http.StatusBadRequest, utils.ErrCodeValidationFailed, "Invalid page_size format.", "page_size must be a positive integer"))
			return 0, 0, false
		}
		pageSize = ps
	}
	return page, pageSize, true
}

// pagedResponse is the standard envelope for list endpoints.
func pagedResponse(data interface{}, total, page, pageSize int) gin.H {
	return gin.H{
		"data":      data,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	}
}
