package handlers

import (
	"errors"
	"net/http"

	"pharmacy_backend/internal/models"
	"pharmacy_backend/internal/services"
	"pharmacy_backend/pkg/utils"

	"github.com/gin-gonic/gin"
)

// ReportHandler holds the report service.
type ReportHandler struct {
	reportService services.ReportService
}

// NewReportHandler creates a new ReportHandler.
func NewReportHandler(rs services.ReportService) *ReportHandler {
	return &ReportHandler{reportService: rs}
}

// GetInventoryReport handles the full stock-on-hand report.
func (h *ReportHandler) GetInventoryReport(c *gin.Context) {
	report, err := h.reportService.InventoryReport()
	if err != nil {
		utils.LogError(err, "GetInventoryReport: Error from reportService.InventoryReport")
		utils.RespondWithError(c, utils.NewAPIError(http.StatusInternalServerError, utils.ErrCodeInternalServerError, "Failed to build inventory report.", "Internal error"))
		return
	}
	if report == nil {
		report = []models.InventoryReportItem{}
	}
	c.JSON(http.StatusOK, gin.H{"data": report})
}

// GetConsumptionReport handles the per-drug outbound summary for a date range.
func (h *ReportHandler) GetConsumptionReport(c *gin.Context) {
	from, to, ok := parseDateRange(c)
	if !ok {
		return
	}

	report, err := h.reportService.ConsumptionReport(from, to)
	if err != nil {
		utils.LogError(err, "GetConsumptionReport: Error from reportService.ConsumptionReport")
		if errors.Is(err, services.ErrValidation) {
			utils.RespondWithError(c, utils.NewAPIError(http.StatusBadRequest, utils.ErrCodeValidationFailed, "Invalid date range.", err.Error()))
		} else {
			utils.RespondWithError(c, utils.NewAPIError(http.StatusInternalServerError, utils.ErrCodeInternalServerError, "Failed to build consumption report.", "Internal error"))
		}
		return
	}
	if report == nil {
		report = []models.DrugConsumption{}
	}
	c.JSON(http.StatusOK, gin.H{"data": report})
}

// GetStockHistory handles the daily facility-wide stock snapshot series.
func (h *ReportHandler) GetStockHistory(c *gin.Context) {
	from, to, ok := parseDateRange(c)
	if !ok {
		return
	}

	history, err := h.reportService.StockHistory(from, to)
	if err != nil {
		utils.LogError(err, "GetStockHistory: Error from reportService.StockHistory")
		if errors.Is(err, services.ErrValidation) {
			utils.RespondWithError(c, utils.NewAPIError(http.StatusBadRequest, utils.ErrCodeValidationFailed, "Invalid date range.", err.Error()))
		} else {
			utils.RespondWithError(c, utils.NewAPIError(http.StatusInternalServerError, utils.ErrCodeInternalServerError, "Failed to read stock history.", "Internal error"))
		}
		return
	}
	if history == nil {
		history = []models.StockHistory{}
	}
	c.JSON(http.StatusOK, gin.H{"data": history})
}
