package services

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"pharmacy_backend/internal/models"
	"pharmacy_backend/internal/repositories"
	"pharmacy_backend/pkg/utils"
)

var (
	ErrDrugNotFound = errors.New("drug not found")
	ErrDrugExists   = errors.New("drug already exists")
)

// Operation log action names.
const (
	ActionCreateDrug = "CREATE_DRUG"
	ActionUpdateDrug = "UPDATE_DRUG"
	ActionDeleteDrug = "DELETE_DRUG"
)

// --- Data Transfer Objects (DTOs) ---

// CreateDrugRequest is used for creating or updating a drug catalog entry.
type CreateDrugRequest struct {
	Name     string  `json:"name" binding:"required"`
	Spec     string  `json:"spec" binding:"required"`
	Category *string `json:"category"`
	Supplier *string `json:"supplier"`
}

// --- DrugService Interface ---

type DrugService interface {
	CreateDrug(actor models.Actor, req CreateDrugRequest) (*models.Drug, error)
	GetDrugByID(drugID int64) (*models.Drug, error)
	GetDrugs(filters models.DrugFilters) ([]models.Drug, int, error)
	UpdateDrug(actor models.Actor, drugID int64, req CreateDrugRequest) (*models.Drug, error)
	DeleteDrug(actor models.Actor, drugID int64) error
	DistinctSuppliers() ([]string, error)
}

type drugService struct {
	drugRepo  repositories.DrugRepository
	batchRepo repositories.BatchRepository
	opLogRepo repositories.OperationLogRepository
	txRunner  repositories.TxRunner
	now       func() time.Time
}

// NewDrugService creates a new instance of DrugService.
func NewDrugService(
	dr repositories.DrugRepository,
	br repositories.BatchRepository,
	olr repositories.OperationLogRepository,
	txRunner repositories.TxRunner,
) DrugService {
	return &drugService{
		drugRepo:  dr,
		batchRepo: br,
		opLogRepo: olr,
		txRunner:  txRunner,
		now:       time.Now,
	}
}

func (s *drugService) CreateDrug(actor models.Actor, req CreateDrugRequest) (*models.Drug, error) {
	if err := authorize(actor, models.RoleAdmin); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Name) == "" {
		return nil, fmt.Errorf("%w: drug name cannot be empty", ErrValidation)
	}
	if strings.TrimSpace(req.Spec) == "" {
		return nil, fmt.Errorf("%w: drug spec cannot be empty", ErrValidation)
	}

	drug := &models.Drug{
		Name:     strings.TrimSpace(req.Name),
		Spec:     strings.TrimSpace(req.Spec),
		Category: req.Category,
		Supplier: req.Supplier,
	}

	err := s.txRunner.WithinTx(func(exec repositories.SQLExecutor) error {
		if _, err := s.drugRepo.CreateDrug(exec, drug); err != nil {
			return err
		}
		return s.logDrugAction(exec, actor, ActionCreateDrug, drug, nil)
	})
	if err != nil {
		if errors.Is(err, repositories.ErrDuplicateKey) {
			return nil, fmt.Errorf("%w: %s %s", ErrDrugExists, drug.Name, drug.Spec)
		}
		return nil, fmt.Errorf("failed to create drug: %w", err)
	}
	return s.GetDrugByID(drug.ID)
}

func (s *drugService) GetDrugByID(drugID int64) (*models.Drug, error) {
	drug, err := s.drugRepo.GetDrugByID(drugID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrDrugNotFound
		}
		return nil, fmt.Errorf("failed to get drug by ID: %w", err)
	}
	batches, err := s.batchRepo.GetBatchesByDrugID(drugID)
	if err != nil {
		return nil, fmt.Errorf("failed to get batches for drug %d: %w", drugID, err)
	}
	drug.Batches = batches
	return drug, nil
}

func (s *drugService) GetDrugs(filters models.DrugFilters) ([]models.Drug, int, error) {
	drugs, totalCount, err := s.drugRepo.GetDrugs(filters)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to get drugs: %w", err)
	}
	return drugs, totalCount, nil
}

func (s *drugService) UpdateDrug(actor models.Actor, drugID int64, req CreateDrugRequest) (*models.Drug, error) {
	if err := authorize(actor, models.RoleAdmin); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Name) == "" {
		return nil, fmt.Errorf("%w: drug name cannot be empty", ErrValidation)
	}
	if strings.TrimSpace(req.Spec) == "" {
		return nil, fmt.Errorf("%w: drug spec cannot be empty", ErrValidation)
	}

	existing, err := s.drugRepo.GetDrugByID(drugID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrDrugNotFound
		}
		return nil, fmt.Errorf("failed to fetch drug for update: %w", err)
	}

	drug := &models.Drug{
		ID:       drugID,
		Name:     strings.TrimSpace(req.Name),
		Spec:     strings.TrimSpace(req.Spec),
		Category: req.Category,
		Supplier: req.Supplier,
	}

	err = s.txRunner.WithinTx(func(exec repositories.SQLExecutor) error {
		if err := s.drugRepo.UpdateDrug(exec, drug); err != nil {
			return err
		}
		details := fmt.Sprintf("renamed from %q %q", existing.Name, existing.Spec)
		return s.logDrugAction(exec, actor, ActionUpdateDrug, drug, &details)
	})
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrDrugNotFound
		}
		return nil, fmt.Errorf("failed to update drug: %w", err)
	}
	return s.GetDrugByID(drugID)
}

// DeleteDrug removes the drug and, through schema cascades, all of its
// batches and ledger rows.
func (s *drugService) DeleteDrug(actor models.Actor, drugID int64) error {
	if err := authorize(actor, models.RoleAdmin); err != nil {
		return err
	}

	drug, err := s.drugRepo.GetDrugByID(drugID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return ErrDrugNotFound
		}
		return fmt.Errorf("failed to fetch drug for deletion: %w", err)
	}

	err = s.txRunner.WithinTx(func(exec repositories.SQLExecutor) error {
		if _, err := s.drugRepo.DeleteDrug(exec, drugID); err != nil {
			return err
		}
		details := fmt.Sprintf("stock at deletion: %d", derefInt(drug.TotalStock))
		return s.logDrugAction(exec, actor, ActionDeleteDrug, drug, &details)
	})
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return ErrDrugNotFound
		}
		return fmt.Errorf("failed to delete drug: %w", err)
	}
	return nil
}

func (s *drugService) DistinctSuppliers() ([]string, error) {
	suppliers, err := s.drugRepo.DistinctSuppliers()
	if err != nil {
		return nil, fmt.Errorf("failed to get suppliers: %w", err)
	}
	return suppliers, nil
}

func (s *drugService) logDrugAction(exec repositories.SQLExecutor, actor models.Actor, action string, drug *models.Drug, details *string) error {
	entry := &models.OperationLog{
		Username:  actor.Username,
		Action:    action,
		DrugID:    &drug.ID,
		DrugName:  utils.NewNullString(drug.Name),
		Details:   details,
		Timestamp: s.now(),
	}
	if _, err := s.opLogRepo.CreateLog(exec, entry); err != nil {
		return fmt.Errorf("failed to record operation log: %w", err)
	}
	return nil
}

func derefInt(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}
