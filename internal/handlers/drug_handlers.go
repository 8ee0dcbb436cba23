package handlers

import (
	"errors"
	"net/http"

	"pharmacy_backend/internal/models"
	"pharmacy_backend/internal/services"
	"pharmacy_backend/pkg/utils"

	"github.com/gin-gonic/gin"
)

// DrugHandler holds the drug catalog service.
type DrugHandler struct {
	drugService services.DrugService
}

// NewDrugHandler creates a new DrugHandler.
func NewDrugHandler(ds services.DrugService) *DrugHandler {
	return &DrugHandler{drugService: ds}
}

// CreateDrug handles the creation of a new drug catalog entry.
func (h *DrugHandler) CreateDrug(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}

	var req services.CreateDrugRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.LogError(err, "CreateDrug: Failed to bind JSON")
		utils.RespondWithError(c, utils.NewAPIError(http.StatusBadRequest, utils.ErrCodeValidationFailed, "Invalid request payload: "+err.Error(), err.Error()))
		return
	}

	drug, err := h.drugService.CreateDrug(actor, req)
	if err != nil {
		utils.LogError(err, "CreateDrug: Error from drugService.CreateDrug")
		if errors.Is(err, services.ErrForbidden) {
			utils.RespondWithError(c, utils.NewAPIError(http.StatusForbidden, utils.ErrCodeForbidden, "Not permitted.", err.Error()))
		} else if errors.Is(err, services.ErrDrugExists) {
			utils.RespondWithError(c, utils.NewAPIError(http.StatusConflict, utils.ErrCodeConflict, "A drug with this name and spec already exists.", err.Error()))
		} else if errors.Is(err, services.ErrValidation) {
			utils.RespondWithError(c, utils.NewAPIError(http.StatusBadRequest, utils.ErrCodeValidationFailed, "Invalid drug data.", err.Error()))
		} else {
			utils.RespondWithError(c, utils.NewAPIError(http.StatusInternalServerError, utils.ErrCodeInternalServerError, "Failed to create drug.", "Internal error"))
		}
		return
	}
	c.JSON(http.StatusCreated, drug)
}

// GetDrugs handles fetching drugs with optional name/category/supplier filters.
func (h *DrugHandler) GetDrugs(c *gin.Context) {
	var filters models.DrugFilters
	if name := c.Query("name"); name != "" {
		filters.Name = &name
	}
	if category := c.Query("category"); category != "" {
		filters.Category = &category
	}
	if supplier := c.Query("supplier"); supplier != "" {
		filters.Supplier = &supplier
	}
	page, pageSize, ok := parsePagination(c)
	if !ok {
		return
	}
	filters.Page = page
	filters.PageSize = pageSize

	drugs, totalCount, err := h.drugService.GetDrugs(filters)
	if err != nil {
		utils.LogError(err, "GetDrugs: Error from drugService.GetDrugs")
		utils.RespondWithError(c, utils.NewAPIError(http.StatusInternalServerError, utils.ErrCodeInternalServerError, "Failed to fetch drugs.", "Internal error"))
		return
	}
	if drugs == nil {
		drugs = []models.Drug{}
	}
	c.JSON(http.StatusOK, pagedResponse(drugs, totalCount, filters.Page, filters.PageSize))
}

// GetDrugByID handles fetching a single drug with its batches.
func (h *DrugHandler) GetDrugByID(c *gin.Context) {
	drugID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	drug, err := h.drugService.GetDrugByID(drugID)
	if err != nil {
		utils.LogError(err, "GetDrugByID: Error from drugService.GetDrugByID")
		if errors.Is(err, services.ErrDrugNotFound) {
			utils.RespondWithError(c, utils.NewAPIError(http.StatusNotFound, utils.ErrCodeNotFound, "Drug not found.", err.Error()))
		} else {
			utils.RespondWithError(c, utils.NewAPIError(http.StatusInternalServerError, utils.ErrCodeInternalServerError, "Failed to fetch drug.", "Internal error"))
		}
		return
	}
	c.JSON(http.StatusOK, drug)
}

// UpdateDrug handles updating a drug's catalog fields.
func (h *DrugHandler) UpdateDrug(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	drugID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req services.CreateDrugRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.LogError(err, "UpdateDrug: Failed to bind JSON")
		utils.RespondWithError(c, utils.NewAPIError(http.StatusBadRequest, utils.ErrCodeValidationFailed, "Invalid request payload: "+err.Error(), err.Error()))
		return
	}

	drug, err := h.drugService.UpdateDrug(actor, drugID, req)
	if err != nil {
		utils.LogError(err, "UpdateDrug: Error from drugService.UpdateDrug")
		if errors.Is(err, services.ErrForbidden) {
			utils.RespondWithError(c, utils.NewAPIError(http.StatusForbidden, utils.ErrCodeForbidden, "Not permitted.", err.Error()))
		} else if errors.Is(err, services.ErrDrugNotFound) {
			utils.RespondWithError(c, utils.NewAPIError(http.StatusNotFound, utils.ErrCodeNotFound, "Drug not found.", err.Error()))
		} else if errors.Is(err, services.ErrValidation) {
			utils.RespondWithError(c, utils.NewAPIError(http.StatusBadRequest, utils.ErrCodeValidationFailed, "Invalid drug data.", err.Error()))
		} else {
			utils.RespondWithError(c, utils.NewAPIError(http.StatusInternalServerError, utils.ErrCodeInternalServerError, "Failed to update drug.", "Internal error"))
		}
		return
	}
	c.JSON(http.StatusOK, drug)
}

// DeleteDrug handles deleting a drug and its batches and transactions.
func (h *DrugHandler) DeleteDrug(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	drugID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	if err := h.drugService.DeleteDrug(actor, drugID); err != nil {
		utils.LogError(err, "DeleteDrug: Error from drugService.DeleteDrug")
		if errors.Is(err, services.ErrForbidden) {
			utils.RespondWithError(c, utils.NewAPIError(http.StatusForbidden, utils.ErrCodeForbidden, "Not permitted.", err.Error()))
		} else if errors.Is(err, services.ErrDrugNotFound) {
			utils.RespondWithError(c, utils.NewAPIError(http.StatusNotFound, utils.ErrCodeNotFound, "Drug not found to delete.", err.Error()))
		} else {
			utils.RespondWithError(c, utils.NewAPIError(http.StatusInternalServerError, utils.ErrCodeInternalServerError, "Failed to delete drug.", "Internal error"))
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Drug and its batches deleted successfully"})
}

// GetSuppliers handles listing the distinct suppliers across the catalog.
func (h *DrugHandler) GetSuppliers(c *gin.Context) {
	suppliers, err := h.drugService.DistinctSuppliers()
	if err != nil {
		utils.LogError(err, "GetSuppliers: Error from drugService.DistinctSuppliers")
		utils.RespondWithError(c, utils.NewAPIError(http.StatusInternalServerError, utils.ErrCodeInternalServerError, "Failed to fetch suppliers.", "Internal error"))
		return
	}
	if suppliers == nil {
		suppliers = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"data": suppliers})
}
