package services

import (
	"fmt"

	"pharmacy_backend/internal/models"
	"pharmacy_backend/internal/repositories"
)

// --- OperationLogService Interface ---

type OperationLogService interface {
	GetLogs(actor models.Actor, page, pageSize int) ([]models.OperationLog, int, error)
}

type operationLogService struct {
	opLogRepo repositories.OperationLogRepository
}

// NewOperationLogService creates a new instance of OperationLogService.
func NewOperationLogService(olr repositories.OperationLogRepository) OperationLogService {
	return &operationLogService{opLogRepo: olr}
}

func (s *operationLogService) GetLogs(actor models.Actor, page, pageSize int) ([]models.OperationLog, int, error) {
	if err := authorize(actor, models.RoleAdmin); err != nil {
		return nil, 0, err
	}
	logs, total, err := s.opLogRepo.GetLogs(page, pageSize)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to get operation logs: %w", err)
	}
	return logs, total, nil
}
