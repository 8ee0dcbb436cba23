package handlers

import (
	"errors"
	"net/http"

	"pharmacy_backend/internal/models"
	"pharmacy_backend/internal/repositories"
	"pharmacy_backend/internal/services"
	"pharmacy_backend/pkg/utils"

	"github.com/gin-gonic/gin"
)

// PrescriptionHandler holds the prescription service.
type PrescriptionHandler struct {
	prescriptionService services.PrescriptionService
}

// NewPrescriptionHandler creates a new PrescriptionHandler.
func NewPrescriptionHandler(ps services.PrescriptionService) *PrescriptionHandler {
	return &PrescriptionHandler{prescriptionService: ps}
}

// CreatePrescription handles the creation of a new prescription with its items.
func (h *PrescriptionHandler) CreatePrescription(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}

	var req services.CreatePrescriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.LogError(err, "CreatePrescription: Failed to bind JSON")
		utils.RespondWithError(c, utils.NewAPIError(http.StatusBadRequest, utils.ErrCodeValidationFailed, "Invalid request payload: "+err.Error(), err.Error()))
		return
	}

	prescription, err := h.prescriptionService.CreatePrescription(actor, req)
	if err != nil {
		utils.LogError(err, "CreatePrescription: Error from prescriptionService.CreatePrescription")
		if errors.Is(err, services.ErrForbidden) {
			utils.RespondWithError(c, utils.NewAPIError(http.StatusForbidden, utils.ErrCodeForbidden, "Not permitted.", err.Error()))
		} else if errors.Is(err, services.ErrDrugNotFound) {
			utils.RespondWithError(c, utils.NewAPIError(http.StatusNotFound, utils.ErrCodeNotFound, "One or more prescribed drugs not found.", err.Error()))
		} else if errors.Is(err, services.ErrValidation) {
			utils.RespondWithError(c, utils.NewAPIError(http.StatusBadRequest, utils.ErrCodeValidationFailed, "Invalid prescription data.", err.Error()))
		} else {
			utils.RespondWithError(c, utils.NewAPIError(http.StatusInternalServerError, utils.ErrCodeInternalServerError, "Failed to create prescription.", "Internal error"))
		}
		return
	}
	c.JSON(http.StatusCreated, prescription)
}

// GetPrescriptions handles fetching prescriptions with filters.
func (h *PrescriptionHandler) GetPrescriptions(c *gin.Context) {
	var filters models.PrescriptionFilters
	if status := c.Query("status"); status != "" {
		filters.Status = &status
	}
	if patient := c.Query("patient_name"); patient != "" {
		filters.PatientName = &patient
	}
	if doctor := c.Query("doctor"); doctor != "" {
		filters.Doctor = &doctor
	}
	page, pageSize, ok := parsePagination(c)
	if !ok {
		return
	}
	filters.Page = page
	filters.PageSize = pageSize

	prescriptions, totalCount, err := h.prescriptionService.GetPrescriptions(filters)
	if err != nil {
		utils.LogError(err, "GetPrescriptions: Error from prescriptionService.GetPrescriptions")
		if errors.Is(err, services.ErrValidation) {
			utils.RespondWithError(c, utils.NewAPIError(http.StatusBadRequest, utils.ErrCodeValidationFailed, "Invalid filter.", err.Error()))
		} else {
			utils.RespondWithError(c, utils.NewAPIError(http.StatusInternalServerError, utils.ErrCodeInternalServerError, "Failed to fetch prescriptions.", "Internal error"))
		}
		return
	}
	if prescriptions == nil {
		prescriptions = []models.Prescription{}
	}
	c.JSON(http.StatusOK, pagedResponse(prescriptions, totalCount, filters.Page, filters.PageSize))
}

// GetPrescriptionByID handles fetching a single prescription with its items.
func (h *PrescriptionHandler) GetPrescriptionByID(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	prescription, err := h.prescriptionService.GetPrescriptionByID(id)
	if err != nil {
		utils.LogError(err, "GetPrescriptionByID: Error from prescriptionService.GetPrescriptionByID")
		if errors.Is(err, services.ErrPrescriptionNotFound) {
			utils.RespondWithError(c, utils.NewAPIError(http.StatusNotFound, utils.ErrCodeNotFound, "Prescription not found.", err.Error()))
		} else {
			utils.RespondWithError(c, utils.NewAPIError(http.StatusInternalServerError, utils.ErrCodeInternalServerError, "Failed to fetch prescription.", "Internal error"))
		}
		return
	}
	c.JSON(http.StatusOK, prescription)
}

// UpdatePrescriptionStatus handles moving a prescription through its
// lifecycle, including the stock-consuming dispense transition.
func (h *PrescriptionHandler) UpdatePrescriptionStatus(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req services.UpdatePrescriptionStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.LogError(err, "UpdatePrescriptionStatus: Failed to bind JSON")
		utils.RespondWithError(c, utils.NewAPIError(http.StatusBadRequest, utils.ErrCodeValidationFailed, "Invalid request payload: "+err.Error(), err.Error()))
		return
	}

	prescription, err := h.prescriptionService.UpdateStatus(actor, id, req.Status)
	if err != nil {
		utils.LogError(err, "UpdatePrescriptionStatus: Error from prescriptionService.UpdateStatus")
		if errors.Is(err, services.ErrForbidden) {
			utils.RespondWithError(c, utils.NewAPIError(http.StatusForbidden, utils.ErrCodeForbidden, "Not permitted.", err.Error()))
		} else if errors.Is(err, services.ErrPrescriptionNotFound) {
			utils.RespondWithError(c, utils.NewAPIError(http.StatusNotFound, utils.ErrCodeNotFound, "Prescription not found.", err.Error()))
		} else if errors.Is(err, services.ErrInvalidStateTransition) {
			utils.RespondWithError(c, utils.NewAPIError(http.StatusConflict, utils.ErrCodeConflict, "Invalid status transition.", err.Error()))
		} else if errors.Is(err, services.ErrInsufficientStock) {
			utils.RespondWithError(c, utils.NewAPIError(http.StatusConflict, utils.ErrCodeConflict, "Insufficient stock to dispense prescription.", err.Error()))
		} else if errors.Is(err, repositories.ErrConcurrencyConflict) {
			utils.RespondWithError(c, utils.NewAPIError(http.StatusConflict, utils.ErrCodeConflict, "Concurrent stock modification, please retry.", err.Error()))
		} else if errors.Is(err, services.ErrValidation) {
			utils.RespondWithError(c, utils.NewAPIError(http.StatusBadRequest, utils.ErrCodeValidationFailed, "Invalid status.", err.Error()))
		} else {
			utils.RespondWithError(c, utils.NewAPIError(http.StatusInternalServerError, utils.ErrCodeInternalServerError, "Failed to update prescription status.", "Internal error"))
		}
		return
	}
	c.JSON(http.StatusOK, prescription)
}
