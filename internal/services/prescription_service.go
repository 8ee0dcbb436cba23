package services

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"pharmacy_backend/internal/models"
	"pharmacy_backend/internal/repositories"
)

var ErrPrescriptionNotFound = errors.New("prescription not found")

// ErrInvalidStateTransition is the sentinel matched by
// InvalidStateTransitionError through errors.Is.
var ErrInvalidStateTransition = errors.New("invalid prescription state transition")

// InvalidStateTransitionError is returned when a status update does not
// follow the prescription lifecycle.
type InvalidStateTransitionError struct {
	PrescriptionID int64
	From           string
	To             string
}

func (e *InvalidStateTransitionError) Error() string {
	return fmt.Sprintf("prescription %d: cannot transition from %s to %s", e.PrescriptionID, e.From, e.To)
}

func (e *InvalidStateTransitionError) Is(target error) bool {
	return target == ErrInvalidStateTransition
}

// allowedTransitions maps a current status to the statuses reachable from it.
var allowedTransitions = map[string][]string{
	models.PrescriptionPending:  {models.PrescriptionApproved, models.PrescriptionCancelled},
	models.PrescriptionApproved: {models.PrescriptionDispensed, models.PrescriptionCancelled},
}

func transitionAllowed(from, to string) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// --- Data Transfer Objects (DTOs) ---

// PrescriptionItemRequest is one drug line submitted with a new prescription.
type PrescriptionItemRequest struct {
	DrugID    int64   `json:"drug_id" binding:"required"`
	Quantity  int     `json:"quantity" binding:"required"`
	Dosage    *string `json:"dosage"`
	Frequency *string `json:"frequency"`
	Notes     *string `json:"notes"`
}

// CreatePrescriptionRequest creates a prescription in the PENDING state.
type CreatePrescriptionRequest struct {
	PatientName      string                    `json:"patient_name" binding:"required"`
	PatientIDNumber  *string                   `json:"patient_id_number"`
	PatientAge       *int                      `json:"patient_age"`
	PatientGender    *string                   `json:"patient_gender"`
	Doctor           string                    `json:"doctor" binding:"required"`
	PrescriptionDate string                    `json:"prescription_date"` // YYYY-MM-DD, defaults to today
	Diagnosis        *string                   `json:"diagnosis"`
	Items            []PrescriptionItemRequest `json:"items" binding:"required,dive"`
}

// UpdatePrescriptionStatusRequest moves a prescription through its lifecycle.
type UpdatePrescriptionStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// --- PrescriptionService Interface ---

type PrescriptionService interface {
	CreatePrescription(actor models.Actor, req CreatePrescriptionRequest) (*models.Prescription, error)
	GetPrescriptionByID(id int64) (*models.Prescription, error)
	GetPrescriptions(filters models.PrescriptionFilters) ([]models.Prescription, int, error)
	UpdateStatus(actor models.Actor, id int64, newStatus string) (*models.Prescription, error)
}

type prescriptionService struct {
	prescriptionRepo repositories.PrescriptionRepository
	drugRepo         repositories.DrugRepository
	batchRepo        repositories.BatchRepository
	txRepo           repositories.TransactionRepository
	txRunner         repositories.TxRunner
	now              func() time.Time
}

// NewPrescriptionService creates a new instance of PrescriptionService.
func NewPrescriptionService(
	pr repositories.PrescriptionRepository,
	dr repositories.DrugRepository,
	br repositories.BatchRepository,
	tr repositories.TransactionRepository,
	txRunner repositories.TxRunner,
) PrescriptionService {
	return &prescriptionService{
		prescriptionRepo: pr,
		drugRepo:         dr,
		batchRepo:        br,
		txRepo:           tr,
		txRunner:         txRunner,
		now:              time.Now,
	}
}

func (s *prescriptionService) CreatePrescription(actor models.Actor, req CreatePrescriptionRequest) (*models.Prescription, error) {
	if err := authorize(actor, models.RoleAdmin, models.RoleDoctor); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.PatientName) == "" {
		return nil, fmt.Errorf("%w: patient name cannot be empty", ErrValidation)
	}
	if strings.TrimSpace(req.Doctor) == "" {
		return nil, fmt.Errorf("%w: doctor name cannot be empty", ErrValidation)
	}
	if len(req.Items) == 0 {
		return nil, fmt.Errorf("%w: prescription must contain at least one item", ErrValidation)
	}
	seen := make(map[int64]bool, len(req.Items))
	for i, item := range req.Items {
		if item.Quantity <= 0 {
			return nil, fmt.Errorf("%w: item %d quantity must be positive", ErrValidation, i+1)
		}
		if seen[item.DrugID] {
			return nil, fmt.Errorf("%w: drug %d listed more than once", ErrValidation, item.DrugID)
		}
		seen[item.DrugID] = true
		if _, err := s.drugRepo.GetDrugByID(item.DrugID); err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				return nil, fmt.Errorf("%w: drug %d", ErrDrugNotFound, item.DrugID)
			}
			return nil, fmt.Errorf("failed to verify drug %d: %w", item.DrugID, err)
		}
	}

	prescDate := s.now()
	if req.PrescriptionDate != "" {
		parsed, err := time.Parse("2006-01-02", req.PrescriptionDate)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid prescription_date format (use YYYY-MM-DD)", ErrValidation)
		}
		prescDate = parsed
	}

	prescription := &models.Prescription{
		PatientName:      strings.TrimSpace(req.PatientName),
		PatientIDNumber:  req.PatientIDNumber,
		PatientAge:       req.PatientAge,
		PatientGender:    req.PatientGender,
		Doctor:           strings.TrimSpace(req.Doctor),
		PrescriptionDate: prescDate,
		Diagnosis:        req.Diagnosis,
		Status:           models.PrescriptionPending,
		CreatedByUserID:  actor.UserIDPtr(),
	}

	err := s.txRunner.WithinTx(func(exec repositories.SQLExecutor) error {
		prescriptionID, err := s.prescriptionRepo.CreatePrescription(exec, prescription)
		if err != nil {
			return err
		}
		prescription.ID = prescriptionID
		for _, item := range req.Items {
			prescItem := &models.PrescriptionItem{
				PrescriptionID: prescriptionID,
				DrugID:         item.DrugID,
				Quantity:       item.Quantity,
				Dosage:         item.Dosage,
				Frequency:      item.Frequency,
				Notes:          item.Notes,
			}
			if _, err := s.prescriptionRepo.CreatePrescriptionItem(exec, prescItem); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, fmt.Errorf("%w: referenced drug missing", ErrDrugNotFound)
		}
		return nil, fmt.Errorf("failed to create prescription: %w", err)
	}
	return s.GetPrescriptionByID(prescription.ID)
}

func (s *prescriptionService) GetPrescriptionByID(id int64) (*models.Prescription, error) {
	prescription, err := s.prescriptionRepo.GetPrescriptionByID(id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrPrescriptionNotFound
		}
		return nil, fmt.Errorf("failed to get prescription: %w", err)
	}
	items, err := s.prescriptionRepo.GetItemsByPrescriptionID(id)
	if err != nil {
		return nil, fmt.Errorf("failed to get prescription items: %w", err)
	}
	prescription.Items = items
	return prescription, nil
}

func (s *prescriptionService) GetPrescriptions(filters models.PrescriptionFilters) ([]models.Prescription, int, error) {
	if filters.Status != nil && !models.ValidPrescriptionStatus(*filters.Status) {
		return nil, 0, fmt.Errorf("%w: unknown status %q", ErrValidation, *filters.Status)
	}
	prescriptions, totalCount, err := s.prescriptionRepo.GetPrescriptions(filters)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to get prescriptions: %w", err)
	}
	return prescriptions, totalCount, nil
}

// UpdateStatus moves the prescription to newStatus. Requesting the status the
// prescription already has returns it unchanged. The APPROVED -> DISPENSED
// transition consumes stock for every item atomically with the status write:
// if any item cannot be covered the whole transition is rolled back.
func (s *prescriptionService) UpdateStatus(actor models.Actor, id int64, newStatus string) (*models.Prescription, error) {
	if !models.ValidPrescriptionStatus(newStatus) {
		return nil, fmt.Errorf("%w: unknown status %q", ErrValidation, newStatus)
	}
	switch newStatus {
	case models.PrescriptionApproved, models.PrescriptionDispensed:
		if err := authorize(actor, models.RoleAdmin, models.RolePharmacist); err != nil {
			return nil, err
		}
	default:
		if err := authorize(actor, models.RoleAdmin, models.RolePharmacist, models.RoleDoctor); err != nil {
			return nil, err
		}
	}

	prescription, err := s.GetPrescriptionByID(id)
	if err != nil {
		return nil, err
	}

	// Idempotent no-op before any transition check.
	if prescription.Status == newStatus {
		return prescription, nil
	}
	if !transitionAllowed(prescription.Status, newStatus) {
		return nil, &InvalidStateTransitionError{PrescriptionID: id, From: prescription.Status, To: newStatus}
	}

	if newStatus == models.PrescriptionDispensed {
		err = s.dispense(actor, prescription)
	} else {
		err = s.txRunner.WithinTx(func(exec repositories.SQLExecutor) error {
			return s.prescriptionRepo.UpdateStatus(exec, id, newStatus, prescription.Status, s.now())
		})
		if errors.Is(err, repositories.ErrConcurrencyConflict) {
			err = s.lostTransitionError(id, newStatus)
		}
	}
	if err != nil {
		return nil, err
	}
	return s.GetPrescriptionByID(id)
}

// lostTransitionError reports a status write that lost a race: the competitor
// has already committed, so the current status names the transition the
// caller would actually be attempting.
func (s *prescriptionService) lostTransitionError(id int64, to string) error {
	current, err := s.prescriptionRepo.GetPrescriptionByID(id)
	if err != nil {
		return fmt.Errorf("prescription %d status changed concurrently: %w", id, repositories.ErrConcurrencyConflict)
	}
	return &InvalidStateTransitionError{PrescriptionID: id, From: current.Status, To: to}
}

// dispense consumes stock for every item and marks the prescription DISPENSED
// in one transaction. The status write goes first: it only matches a row
// still in APPROVED, so a competing transition of the same prescription fails
// here before any stock moves instead of deducting twice. Item order is
// deterministic so concurrent dispenses of overlapping drugs conflict instead
// of deadlocking.
func (s *prescriptionService) dispense(actor models.Actor, prescription *models.Prescription) error {
	remarks := fmt.Sprintf("prescription #%d for %s", prescription.ID, prescription.PatientName)
	return withConflictRetry(s.txRunner, consumeRetryAttempts, func(exec repositories.SQLExecutor) error {
		err := s.prescriptionRepo.UpdateStatus(exec, prescription.ID, models.PrescriptionDispensed, models.PrescriptionApproved, s.now())
		if err != nil {
			if errors.Is(err, repositories.ErrConcurrencyConflict) {
				return s.lostTransitionError(prescription.ID, models.PrescriptionDispensed)
			}
			return err
		}
		for _, item := range prescription.Items {
			_, err := consumeDrugStock(exec, s.batchRepo, s.txRepo, item.DrugID, item.Quantity, actor.UserIDPtr(), &remarks, s.now())
			if err != nil {
				return err
			}
		}
		return nil
	})
}
