package handlers

import (
	"errors"
	"net/http"

	"pharmacy_backend/internal/models"
	"pharmacy_backend/internal/services"
	"pharmacy_backend/pkg/utils"

	"github.com/gin-gonic/gin"
)

// OperationLogHandler holds the operation log service.
type OperationLogHandler struct {
	opLogService services.OperationLogService
}

// NewOperationLogHandler creates a new OperationLogHandler.
func NewOperationLogHandler(ols services.OperationLogService) *OperationLogHandler {
	return &OperationLogHandler{opLogService: ols}
}

// GetLogs handles listing catalog audit entries, newest first.
func (h *OperationLogHandler) GetLogs(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	page, pageSize, ok := parsePagination(c)
	if !ok {
		return
	}

	logs, totalCount, err := h.opLogService.GetLogs(actor, page, pageSize)
	if err != nil {
		utils.LogError(err, "GetLogs: Error from opLogService.GetLogs")
		if errors.Is(err, services.ErrForbidden) {
			utils.RespondWithError(c, utils.NewAPIError(http.StatusForbidden, utils.ErrCodeForbidden, "Not permitted.", err.Error()))
		} else {
			utils.RespondWithError(c, utils.NewAPIError(http.StatusInternalServerError, utils.ErrCodeInternalServerError, "Failed to fetch operation logs.", "Internal error"))
		}
		return
	}
	if logs == nil {
		logs = []models.OperationLog{}
	}
	c.JSON(http.StatusOK, pagedResponse(logs, totalCount, page, pageSize))
}
