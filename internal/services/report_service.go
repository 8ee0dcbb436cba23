package services

import (
	"fmt"
	"time"

	"pharmacy_backend/internal/models"
	"pharmacy_backend/internal/repositories"
)

// inventoryReportPageSize caps one repository page while assembling the full
// facility report.
const inventoryReportPageSize = 500

// --- ReportService Interface ---

type ReportService interface {
	InventoryReport() ([]models.InventoryReportItem, error)
	ConsumptionReport(from, to time.Time) ([]models.DrugConsumption, error)
	StockHistory(from, to time.Time) ([]models.StockHistory, error)
}

type reportService struct {
	drugRepo    repositories.DrugRepository
	txRepo      repositories.TransactionRepository
	historyRepo repositories.StockHistoryRepository
}

// NewReportService creates a new instance of ReportService.
func NewReportService(
	dr repositories.DrugRepository,
	tr repositories.TransactionRepository,
	hr repositories.StockHistoryRepository,
) ReportService {
	return &reportService{
		drugRepo:    dr,
		txRepo:      tr,
		historyRepo: hr,
	}
}

// InventoryReport lists every drug with its aggregate stock, paging through
// the catalog until exhausted.
func (s *reportService) InventoryReport() ([]models.InventoryReportItem, error) {
	var report []models.InventoryReportItem
	page := 1
	for {
		drugs, totalCount, err := s.drugRepo.GetDrugs(models.DrugFilters{Page: page, PageSize: inventoryReportPageSize})
		if err != nil {
			return nil, fmt.Errorf("failed to build inventory report: %w", err)
		}
		for _, d := range drugs {
			item := models.InventoryReportItem{
				DrugID:   d.ID,
				Name:     d.Name,
				Spec:     d.Spec,
				Category: d.Category,
				Supplier: d.Supplier,
			}
			if d.TotalStock != nil {
				item.TotalStock = *d.TotalStock
			}
			report = append(report, item)
		}
		if len(report) >= totalCount || len(drugs) == 0 {
			break
		}
		page++
	}
	return report, nil
}

// ConsumptionReport sums outbound quantities per drug within [from, to].
func (s *reportService) ConsumptionReport(from, to time.Time) ([]models.DrugConsumption, error) {
	if to.Before(from) {
		return nil, fmt.Errorf("%w: end date precedes start date", ErrValidation)
	}
	summary, err := s.txRepo.ConsumptionSummary(from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to build consumption report: %w", err)
	}
	return summary, nil
}

// StockHistory returns daily facility-wide stock snapshots within [from, to].
func (s *reportService) StockHistory(from, to time.Time) ([]models.StockHistory, error) {
	if to.Before(from) {
		return nil, fmt.Errorf("%w: end date precedes start date", ErrValidation)
	}
	history, err := s.historyRepo.GetHistory(from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to read stock history: %w", err)
	}
	return history, nil
}
