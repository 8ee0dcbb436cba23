package services

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"pharmacy_backend/internal/models"
	"pharmacy_backend/internal/repositories"
)

// Operation log action names for stock operations.
const (
	ActionAddBatch    = "ADD_BATCH"
	ActionConsume     = "CONSUME_STOCK"
	ActionAdjustBatch = "ADJUST_BATCH"
)

// consumeRetryAttempts bounds the optimistic-lock retry loop for stock
// consumption. Each attempt re-reads batch versions inside a fresh
// transaction.
const consumeRetryAttempts = 3

// InsufficientStockError is returned when a consumption request exceeds the
// drug's aggregate stock. No batch is modified when it is returned.
type InsufficientStockError struct {
	DrugID    int64
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for drug %d: requested %d, available %d", e.DrugID, e.Requested, e.Available)
}

var ErrInsufficientStock = errors.New("insufficient stock")

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// --- Data Transfer Objects (DTOs) ---

// AddBatchRequest registers a new batch of stock for a drug. Dates use the
// YYYY-MM-DD format. Initial marks an opening-balance entry so the ledger row
// is typed INITIAL instead of INBOUND.
type AddBatchRequest struct {
	BatchNumber    string  `json:"batch_number" binding:"required"`
	ProductionDate string  `json:"production_date" binding:"required"`
	ExpirationDate string  `json:"expiration_date" binding:"required"`
	Quantity       int     `json:"quantity" binding:"required"`
	Supplier       *string `json:"supplier"`
	Initial        bool    `json:"initial"`
	Remarks        *string `json:"remarks"`
}

// ConsumeRequest removes stock from a drug across batches in FEFO order.
type ConsumeRequest struct {
	Quantity int     `json:"quantity" binding:"required"`
	Remarks  *string `json:"remarks"`
}

// AdjustBatchRequest corrects a single batch's quantity to an absolute value,
// e.g. after a physical count.
type AdjustBatchRequest struct {
	NewQuantity int     `json:"new_quantity"`
	Reason      string  `json:"reason" binding:"required"`
	Remarks     *string `json:"remarks"`
}

// --- InventoryService Interface ---

type InventoryService interface {
	AddBatch(actor models.Actor, drugID int64, req AddBatchRequest) (*models.DrugBatch, error)
	ListBatches(drugID int64) ([]models.DrugBatch, error)
	TotalStock(drugID int64) (int, error)
	ExpiringBatches(withinDays int) ([]models.DrugBatch, error)
	Consume(actor models.Actor, drugID int64, req ConsumeRequest) (int, error)
	AdjustBatch(actor models.Actor, batchID int64, req AdjustBatchRequest) (*models.DrugBatch, error)
	DrugTransactions(drugID int64, page, pageSize int) ([]models.InventoryTransaction, int, error)
	OutboundTotal(drugID int64, from, to time.Time) (int64, error)
}

type inventoryService struct {
	drugRepo  repositories.DrugRepository
	batchRepo repositories.BatchRepository
	txRepo    repositories.TransactionRepository
	txRunner  repositories.TxRunner
	now       func() time.Time
}

// NewInventoryService creates a new instance of InventoryService.
func NewInventoryService(
	dr repositories.DrugRepository,
	br repositories.BatchRepository,
	tr repositories.TransactionRepository,
	txRunner repositories.TxRunner,
) InventoryService {
	return &inventoryService{
		drugRepo:  dr,
		batchRepo: br,
		txRepo:    tr,
		txRunner:  txRunner,
		now:       time.Now,
	}
}

func (s *inventoryService) AddBatch(actor models.Actor, drugID int64, req AddBatchRequest) (*models.DrugBatch, error) {
	if err := authorize(actor, models.RoleAdmin, models.RolePharmacist); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.BatchNumber) == "" {
		return nil, fmt.Errorf("%w: batch number cannot be empty", ErrValidation)
	}
	if req.Quantity <= 0 {
		return nil, fmt.Errorf("%w: batch quantity must be positive", ErrValidation)
	}
	prodDate, err := time.Parse("2006-01-02", req.ProductionDate)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid production_date format (use YYYY-MM-DD)", ErrValidation)
	}
	expDate, err := time.Parse("2006-01-02", req.ExpirationDate)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid expiration_date format (use YYYY-MM-DD)", ErrValidation)
	}
	if expDate.Before(prodDate) {
		return nil, fmt.Errorf("%w: expiration_date cannot precede production_date", ErrValidation)
	}

	if _, err := s.drugRepo.GetDrugByID(drugID); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrDrugNotFound
		}
		return nil, fmt.Errorf("failed to fetch drug for batch: %w", err)
	}

	batch := &models.DrugBatch{
		DrugID:         drugID,
		BatchNumber:    strings.TrimSpace(req.BatchNumber),
		ProductionDate: prodDate,
		ExpirationDate: expDate,
		Quantity:       req.Quantity,
		Supplier:       req.Supplier,
	}

	txType := models.TransactionInbound
	if req.Initial {
		txType = models.TransactionInitial
	}

	err = s.txRunner.WithinTx(func(exec repositories.SQLExecutor) error {
		batchID, err := s.batchRepo.CreateBatch(exec, batch)
		if err != nil {
			return err
		}
		batch.ID = batchID

		batches, err := s.batchRepo.GetBatchesForConsumption(exec, drugID)
		if err != nil {
			return err
		}
		stockAfter := 0
		for _, b := range batches {
			stockAfter += b.Quantity
		}

		txn := &models.InventoryTransaction{
			DrugID:          drugID,
			BatchID:         &batch.ID,
			Type:            txType,
			QuantityChange:  req.Quantity,
			StockAfter:      stockAfter,
			UserID:          actor.UserIDPtr(),
			Remarks:         req.Remarks,
			TransactionTime: s.now(),
		}
		_, err = s.txRepo.CreateTransaction(exec, txn)
		return err
	})
	if err != nil {
		if errors.Is(err, repositories.ErrDuplicateKey) {
			return nil, fmt.Errorf("%w: batch number %s already exists for drug %d", ErrValidation, batch.BatchNumber, drugID)
		}
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrDrugNotFound
		}
		return nil, fmt.Errorf("failed to add batch: %w", err)
	}
	return s.batchRepo.GetBatchByID(batch.ID)
}

func (s *inventoryService) ListBatches(drugID int64) ([]models.DrugBatch, error) {
	if _, err := s.drugRepo.GetDrugByID(drugID); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrDrugNotFound
		}
		return nil, fmt.Errorf("failed to fetch drug: %w", err)
	}
	batches, err := s.batchRepo.GetBatchesByDrugID(drugID)
	if err != nil {
		return nil, fmt.Errorf("failed to list batches: %w", err)
	}
	return batches, nil
}

func (s *inventoryService) TotalStock(drugID int64) (int, error) {
	if _, err := s.drugRepo.GetDrugByID(drugID); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return 0, ErrDrugNotFound
		}
		return 0, fmt.Errorf("failed to fetch drug: %w", err)
	}
	total, err := s.batchRepo.TotalStock(drugID)
	if err != nil {
		return 0, fmt.Errorf("failed to compute total stock: %w", err)
	}
	return total, nil
}

func (s *inventoryService) ExpiringBatches(withinDays int) ([]models.DrugBatch, error) {
	if withinDays <= 0 {
		withinDays = 30
	}
	cutoff := s.now().AddDate(0, 0, withinDays)
	batches, err := s.batchRepo.ExpiringBatches(cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to list expiring batches: %w", err)
	}
	return batches, nil
}

// Consume removes req.Quantity units of the drug, draining batches in order
// of earliest expiration first. The walk and the ledger writes happen inside
// one transaction; concurrent consumers are detected through batch versions
// and the whole transaction is retried. Returns the drug's aggregate stock
// after consumption.
func (s *inventoryService) Consume(actor models.Actor, drugID int64, req ConsumeRequest) (int, error) {
	if err := authorize(actor, models.RoleAdmin, models.RolePharmacist); err != nil {
		return 0, err
	}
	if req.Quantity <= 0 {
		return 0, fmt.Errorf("%w: consume quantity must be positive", ErrValidation)
	}
	if _, err := s.drugRepo.GetDrugByID(drugID); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return 0, ErrDrugNotFound
		}
		return 0, fmt.Errorf("failed to fetch drug: %w", err)
	}

	remarks := req.Remarks
	var stockAfter int
	err := withConflictRetry(s.txRunner, consumeRetryAttempts, func(exec repositories.SQLExecutor) error {
		after, err := consumeDrugStock(exec, s.batchRepo, s.txRepo, drugID, req.Quantity, actor.UserIDPtr(), remarks, s.now())
		if err != nil {
			return err
		}
		stockAfter = after
		return nil
	})
	if err != nil {
		return 0, err
	}
	return stockAfter, nil
}

func (s *inventoryService) AdjustBatch(actor models.Actor, batchID int64, req AdjustBatchRequest) (*models.DrugBatch, error) {
	if err := authorize(actor, models.RoleAdmin, models.RolePharmacist); err != nil {
		return nil, err
	}
	if req.NewQuantity < 0 {
		return nil, fmt.Errorf("%w: adjusted quantity cannot be negative", ErrValidation)
	}
	if strings.TrimSpace(req.Reason) == "" {
		return nil, fmt.Errorf("%w: adjustment reason is required", ErrValidation)
	}

	err := withConflictRetry(s.txRunner, consumeRetryAttempts, func(exec repositories.SQLExecutor) error {
		batch, err := s.batchRepo.GetBatchByID(batchID)
		if err != nil {
			return err
		}
		delta := req.NewQuantity - batch.Quantity
		if delta == 0 {
			return nil
		}
		if err := s.batchRepo.UpdateBatchQuantity(exec, batch.ID, req.NewQuantity, batch.Version); err != nil {
			return err
		}

		batches, err := s.batchRepo.GetBatchesForConsumption(exec, batch.DrugID)
		if err != nil {
			return err
		}
		stockAfter := 0
		for _, b := range batches {
			stockAfter += b.Quantity
		}

		remarks := req.Reason
		if req.Remarks != nil && *req.Remarks != "" {
			remarks = remarks + ": " + *req.Remarks
		}
		txn := &models.InventoryTransaction{
			DrugID:          batch.DrugID,
			BatchID:         &batch.ID,
			Type:            models.TransactionAdjustment,
			QuantityChange:  delta,
			StockAfter:      stockAfter,
			UserID:          actor.UserIDPtr(),
			Remarks:         &remarks,
			TransactionTime: s.now(),
		}
		_, err = s.txRepo.CreateTransaction(exec, txn)
		return err
	})
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, fmt.Errorf("%w: batch %d", repositories.ErrNotFound, batchID)
		}
		return nil, fmt.Errorf("failed to adjust batch: %w", err)
	}
	return s.batchRepo.GetBatchByID(batchID)
}

func (s *inventoryService) DrugTransactions(drugID int64, page, pageSize int) ([]models.InventoryTransaction, int, error) {
	if _, err := s.drugRepo.GetDrugByID(drugID); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, 0, ErrDrugNotFound
		}
		return nil, 0, fmt.Errorf("failed to fetch drug: %w", err)
	}
	txns, total, err := s.txRepo.GetByDrugID(drugID, page, pageSize)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list transactions: %w", err)
	}
	return txns, total, nil
}

func (s *inventoryService) OutboundTotal(drugID int64, from, to time.Time) (int64, error) {
	if _, err := s.drugRepo.GetDrugByID(drugID); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return 0, ErrDrugNotFound
		}
		return 0, fmt.Errorf("failed to fetch drug: %w", err)
	}
	total, err := s.txRepo.SumOutbound(drugID, from, to)
	if err != nil {
		return 0, fmt.Errorf("failed to sum outbound transactions: %w", err)
	}
	return total, nil
}

// consumeDrugStock drains quantity units from drugID's batches in FEFO order
// (earliest expiration first, id as tiebreak) using exec for every read and
// write. The aggregate stock is checked up front; if it cannot cover the
// request nothing is written and an InsufficientStockError is returned. One
// OUTBOUND ledger row is written per batch touched, each carrying the drug's
// aggregate stock as it stands after the whole call. Returns that aggregate.
func consumeDrugStock(
	exec repositories.SQLExecutor,
	batchRepo repositories.BatchRepository,
	txRepo repositories.TransactionRepository,
	drugID int64,
	quantity int,
	userID *int64,
	remarks *string,
	now time.Time,
) (int, error) {
	batches, err := batchRepo.GetBatchesForConsumption(exec, drugID)
	if err != nil {
		return 0, fmt.Errorf("failed to read batches for consumption: %w", err)
	}

	available := 0
	for _, b := range batches {
		available += b.Quantity
	}
	if available < quantity {
		return 0, &InsufficientStockError{DrugID: drugID, Requested: quantity, Available: available}
	}

	stockAfter := available - quantity
	remaining := quantity
	for _, b := range batches {
		if remaining == 0 {
			break
		}
		if b.Quantity == 0 {
			continue
		}
		take := b.Quantity
		if take > remaining {
			take = remaining
		}
		if err := batchRepo.UpdateBatchQuantity(exec, b.ID, b.Quantity-take, b.Version); err != nil {
			return 0, err
		}
		batchID := b.ID
		txn := &models.InventoryTransaction{
			DrugID:          drugID,
			BatchID:         &batchID,
			Type:            models.TransactionOutbound,
			QuantityChange:  -take,
			StockAfter:      stockAfter,
			UserID:          userID,
			Remarks:         remarks,
			TransactionTime: now,
		}
		if _, err := txRepo.CreateTransaction(exec, txn); err != nil {
			return 0, fmt.Errorf("failed to record outbound transaction: %w", err)
		}
		remaining -= take
	}
	return stockAfter, nil
}

// withConflictRetry runs fn inside a transaction, retrying the whole
// transaction when it fails with ErrConcurrencyConflict. Any other error, and
// exhaustion of attempts, is returned to the caller.
func withConflictRetry(runner repositories.TxRunner, attempts int, fn func(exec repositories.SQLExecutor) error) error {
	var lastErr error
	for i := 0; i < attempts; i++ {
		lastErr = runner.WithinTx(fn)
		if lastErr == nil || !errors.Is(lastErr, repositories.ErrConcurrencyConflict) {
			return lastErr
		}
	}
	return fmt.Errorf("operation failed after %d attempts: %w", attempts, lastErr)
}
