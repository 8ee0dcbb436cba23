package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"pharmacy_backend/internal/models"
	"pharmacy_backend/internal/repositories"
	"pharmacy_backend/internal/services"
	"pharmacy_backend/pkg/utils"

	"github.com/gin-gonic/gin"
)

// InventoryHandler holds the inventory service.
type InventoryHandler struct {
	inventoryService services.InventoryService
}

// NewInventoryHandler creates a new InventoryHandler.
func NewInventoryHandler(is services.InventoryService) *InventoryHandler {
	return &InventoryHandler{inventoryService: is}
}

// AddBatch handles registering a new stock batch for a drug.
func (h *InventoryHandler) AddBatch(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	drugID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req services.AddBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.LogError(err, "AddBatch: Failed to bind JSON")
		utils.RespondWithError(c, utils.NewAPIError(http.StatusBadRequest, utils.ErrCodeValidationFailed, "Invalid request payload: "+err.Error(), err.Error()))
		return
	}

	batch, err := h.inventoryService.AddBatch(actor, drugID, req)
	if err != nil {
		utils.LogError(err, "AddBatch: Error from inventoryService.AddBatch")
		if errors.Is(err, services.ErrForbidden) {
			utils.RespondWithError(c, utils.NewAPIError(http.StatusForbidden, utils.ErrCodeForbidden, "Not permitted.", err.Error()))
		} else if errors.Is(err, services.ErrDrugNotFound) {
			utils.RespondWithError(c, utils.NewAPIError(http.StatusNotFound, utils.ErrCodeNotFound, "Drug not found.", err.Error()))
		} else if errors.Is(err, services.ErrValidation) {
			utils.RespondWithError(c, utils.NewAPIError(http.StatusBadRequest, utils.ErrCodeValidationFailed, "Invalid batch data.", err.Error()))
		} else {
			utils.RespondWithError(c, utils.NewAPIError(http.StatusInternalServerError, utils.ErrCodeInternalServerError, "Failed to add batch.", "Internal error"))
		}
		return
	}
	c.JSON(http.StatusCreated, batch)
}

// ListBatches handles listing a drug's batches in FEFO order.
func (h *InventoryHandler) ListBatches(c *gin.Context) {
	drugID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	batches, err := h.inventoryService.ListBatches(drugID)
	if err != nil {
		utils.LogError(err, "ListBatches: Error from inventoryService.ListBatches")
		if errors.Is(err, services.ErrDrugNotFound) {
			utils.RespondWithError(c, utils.NewAPIError(http.StatusNotFound, utils.ErrCodeNotFound, "Drug not found.", err.Error()))
		} else {
			utils.RespondWithError(c, utils.NewAPIError(http.StatusInternalServerError, utils.ErrCodeInternalServerError, "Failed to list batches.", "Internal error"))
		}
		return
	}
	if batches == nil {
		batches = []models.DrugBatch{}
	}
	c.JSON(http.StatusOK, gin.H{"data": batches})
}

// GetTotalStock handles reporting a drug's aggregate stock across batches.
func (h *InventoryHandler) GetTotalStock(c *gin.Context) {
	drugID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	total, err := h.inventoryService.TotalStock(drugID)
	if err != nil {
		utils.LogError(err, "GetTotalStock: Error from inventoryService.TotalStock")
		if errors.Is(err, services.ErrDrugNotFound) {
			utils.RespondWithError(c, utils.NewAPIError(http.StatusNotFound, utils.ErrCodeNotFound, "Drug not found.", err.Error()))
		} else {
			utils.RespondWithError(c, utils.NewAPIError(http.StatusInternalServerError, utils.ErrCodeInternalServerError, "Failed to compute stock.", "Internal error"))
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"drug_id": drugID, "total_stock": total})
}

// Consume handles removing stock from a drug in FEFO order.
func (h *InventoryHandler) Consume(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	drugID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req services.ConsumeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.LogError(err, "Consume: Failed to bind JSON")
		utils.RespondWithError(c, utils.NewAPIError(http.StatusBadRequest, utils.ErrCodeValidationFailed, "Invalid request payload: "+err.Error(), err.Error()))
		return
	}

	stockAfter, err := h.inventoryService.Consume(actor, drugID, req)
	if err != nil {
		utils.LogError(err, "Consume: Error from inventoryService.Consume")
		if errors.Is(err, services.ErrForbidden) {
			utils.RespondWithError(c, utils.NewAPIError(http.StatusForbidden, utils.ErrCodeForbidden, "Not permitted.", err.Error()))
		} else if errors.Is(err, services.ErrDrugNotFound) {
			utils.RespondWithError(c, utils.NewAPIError(http.StatusNotFound, utils.ErrCodeNotFound, "Drug not found.", err.Error()))
		} else if errors.Is(err, services.ErrInsufficientStock) {
			utils.RespondWithError(c, utils.NewAPIError(http.StatusConflict, utils.ErrCodeConflict, "Insufficient stock.", err.Error()))
		} else if errors.Is(err, repositories.ErrConcurrencyConflict) {
			utils.RespondWithError(c, utils.NewAPIError(http.StatusConflict, utils.ErrCodeConflict, "Concurrent stock modification, please retry.", err.Error()))
		} else if errors.Is(err, services.ErrValidation) {
			utils.RespondWithError(c, utils.NewAPIError(http.StatusBadRequest, utils.ErrCodeValidationFailed, "Invalid consume request.", err.Error()))
		} else {
			utils.RespondWithError(c, utils.NewAPIError(http.StatusInternalServerError, utils.ErrCodeInternalServerError, "Failed to consume stock.", "Internal error"))
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"drug_id": drugID, "total_stock": stockAfter})
}

// AdjustBatch handles correcting a batch's quantity after a physical count.
func (h *InventoryHandler) AdjustBatch(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	batchID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req services.AdjustBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.LogError(err, "AdjustBatch: Failed to bind JSON")
		utils.RespondWithError(c, utils.NewAPIError(http.StatusBadRequest, utils.ErrCodeValidationFailed, "Invalid request payload: "+err.Error(), err.Error()))
		return
	}

	batch, err := h.inventoryService.AdjustBatch(actor, batchID, req)
	if err != nil {
		utils.LogError(err, "AdjustBatch: Error from inventoryService.AdjustBatch")
		if errors.Is(err, services.ErrForbidden) {
			utils.RespondWithError(c, utils.NewAPIError(http.StatusForbidden, utils.ErrCodeForbidden, "Not permitted.", err.Error()))
		} else if errors.Is(err, repositories.ErrNotFound) {
			utils.RespondWithError(c, utils.NewAPIError(http.StatusNotFound, utils.ErrCodeNotFound, "Batch not found.", err.Error()))
		} else if errors.Is(err, repositories.ErrConcurrencyConflict) {
			utils.RespondWithError(c, utils.NewAPIError(http.StatusConflict, utils.ErrCodeConflict, "Concurrent stock modification, please retry.", err.Error()))
		} else if errors.Is(err, services.ErrValidation) {
			utils.RespondWithError(c, utils.NewAPIError(http.StatusBadRequest, utils.ErrCodeValidationFailed, "Invalid adjustment.", err.Error()))
		} else {
			utils.RespondWithError(c, utils.NewAPIError(http.StatusInternalServerError, utils.ErrCodeInternalServerError, "Failed to adjust batch.", "Internal error"))
		}
		return
	}
	c.JSON(http.StatusOK, batch)
}

// GetDrugTransactions handles listing a drug's ledger entries, newest first.
func (h *InventoryHandler) GetDrugTransactions(c *gin.Context) {
	drugID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	page, pageSize, ok := parsePagination(c)
	if !ok {
		return
	}

	txns, totalCount, err := h.inventoryService.DrugTransactions(drugID, page, pageSize)
	if err != nil {
		utils.LogError(err, "GetDrugTransactions: Error from inventoryService.DrugTransactions")
		if errors.Is(err, services.ErrDrugNotFound) {
			utils.RespondWithError(c, utils.NewAPIError(http.StatusNotFound, utils.ErrCodeNotFound, "Drug not found.", err.Error()))
		} else {
			utils.RespondWithError(c, utils.NewAPIError(http.StatusInternalServerError, utils.ErrCodeInternalServerError, "Failed to fetch transactions.", "Internal error"))
		}
		return
	}
	if txns == nil {
		txns = []models.InventoryTransaction{}
	}
	c.JSON(http.StatusOK, pagedResponse(txns, totalCount, page, pageSize))
}

// GetOutboundTotal handles summing a drug's outbound quantity over a date range.
func (h *InventoryHandler) GetOutboundTotal(c *gin.Context) {
	drugID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	from, to, ok := parseDateRange(c)
	if !ok {
		return
	}

	total, err := h.inventoryService.OutboundTotal(drugID, from, to)
	if err != nil {
		utils.LogError(err, "GetOutboundTotal: Error from inventoryService.OutboundTotal")
		if errors.Is(err, services.ErrDrugNotFound) {
			utils.RespondWithError(c, utils.NewAPIError(http.StatusNotFound, utils.ErrCodeNotFound, "Drug not found.", err.Error()))
		} else {
			utils.RespondWithError(c, utils.NewAPIError(http.StatusInternalServerError, utils.ErrCodeInternalServerError, "Failed to sum outbound usage.", "Internal error"))
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"drug_id": drugID, "total_outbound": total})
}

// GetExpiringBatches handles listing batches expiring within ?days (default 30).
func (h *InventoryHandler) GetExpiringBatches(c *gin.Context) {
	days := 30
	if daysStr := c.Query("days"); daysStr != "" {
		d, err := strconv.Atoi(daysStr)
		if err != nil || d <= 0 {
			utils.RespondWithError(c, utils.NewAPIError(http.StatusBadRequest, utils.ErrCodeValidationFailed, "Invalid days format.", "days must be a positive integer"))
			return
		}
		days = d
	}

	batches, err := h.inventoryService.ExpiringBatches(days)
	if err != nil {
		utils.LogError(err, "GetExpiringBatches: Error from inventoryService.ExpiringBatches")
		utils.RespondWithError(c, utils.NewAPIError(http.StatusInternalServerError, utils.ErrCodeInternalServerError, "Failed to list expiring batches.", "Internal error"))
		return
	}
	if batches == nil {
		batches = []models.DrugBatch{}
	}
	c.JSON(http.StatusOK, gin.H{"data": batches})
}

// parseDateRange reads start_date/end_date (YYYY-MM-DD) query parameters.
// end_date is read as the end of that day so the range is inclusive.
func parseDateRange(c *gin.Context) (from, to time.Time, ok bool) {
	const layout = "2006-01-02"
	startStr := c.DefaultQuery("start_date", "1970-01-01")
	endStr := c.Query("end_date")

	from, err := time.Parse(layout, startStr)
	if err != nil {
		utils.RespondWithError(c, utils.NewAPIError(http.StatusBadRequest, utils.ErrCodeValidationFailed, "Invalid start_date format. Use YYYY-MM-DD.", err.Error()))
		return time.Time{}, time.Time{}, false
	}
	if endStr == "" {
		to = time.Now()
	} else {
		end, err := time.Parse(layout, endStr)
		if err != nil {
			utils.RespondWithError(c, utils.NewAPIError(http.StatusBadRequest, utils.ErrCodeValidationFailed, "Invalid end_date format. Use YYYY-MM-DD.", err.Error()))
			return time.Time{}, time.Time{}, false
		}
		to = end.AddDate(0, 0, 1).Add(-time.Nanosecond)
	}
	if to.Before(from) {
		utils.RespondWithError(c, utils.NewAPIError(http.StatusBadRequest, utils.ErrCodeValidationFailed, "end_date precedes start_date.", ""))
		return time.Time{}, time.Time{}, false
	}
	return from, to, true
}
