package repositories

import (
	"database/sql"
	"fmt"
	"time"

	"pharmacy_backend/internal/models"
)

// TransactionRepository defines the interface for the append-only inventory
// ledger. There are deliberately no update or delete methods: a row written
// here is immutable.
type TransactionRepository interface {
	CreateTransaction(executor SQLExecutor, txn *models.InventoryTransaction) (int64, error)
	// GetByDrugID returns the drug's ledger entries ordered by transaction
	// time descending (audit view).
	GetByDrugID(drugID int64, page, pageSize int) ([]models.InventoryTransaction, int, error)
	// SumOutbound returns the total magnitude (positive number) of OUTBOUND
	// deltas for a drug within [from, to].
	SumOutbound(drugID int64, from, to time.Time) (int64, error)
	// ConsumptionSummary aggregates OUTBOUND magnitudes per drug within
	// [from, to], for the consumption report.
	ConsumptionSummary(from, to time.Time) ([]models.DrugConsumption, error)
}

type transactionRepository struct {
	db *sql.DB
}

// NewTransactionRepository creates a new instance of TransactionRepository.
func NewTransactionRepository(db *sql.DB) TransactionRepository {
	return &transactionRepository{db: db}
}

func (r *transactionRepository) CreateTransaction(executor SQLExecutor, txn *models.InventoryTransaction) (int64, error) {
	query := `INSERT INTO inventory_transactions
	            (drug_id, batch_id, type, quantity_change, stock_after, user_id, remarks, transaction_time, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	          RETURNING id`

	currentTime := time.Now()
	if txn.TransactionTime.IsZero() {
		txn.TransactionTime = currentTime
	}
	if txn.CreatedAt.IsZero() {
		txn.CreatedAt = currentTime
	}

	var userID sql.NullInt64
	if txn.UserID != nil {
		userID = sql.NullInt64{Int64: *txn.UserID, Valid: true}
	}
	var batchID sql.NullInt64
	if txn.BatchID != nil {
		batchID = sql.NullInt64{Int64: *txn.BatchID, Valid: true}
	}

	err := executor.QueryRow(query,
		txn.DrugID, batchID, txn.Type, txn.QuantityChange, txn.StockAfter,
		userID, txn.Remarks, txn.TransactionTime, txn.CreatedAt,
	).Scan(&txn.ID)

	if err != nil {
		return 0, fmt.Errorf("%w: creating inventory transaction for drug %d: %v", ErrDatabaseError, txn.DrugID, err)
	}
	return txn.ID, nil
}

func (r *transactionRepository) GetByDrugID(drugID int64, page, pageSize int) ([]models.InventoryTransaction, int, error) {
	transactions := []models.InventoryTransaction{}
	totalCount := 0

	query := `SELECT t.id, t.drug_id, t.batch_id, t.type, t.quantity_change, t.stock_after,
	                 t.user_id, t.remarks, t.transaction_time, t.created_at,
	                 d.name AS drug_name, COALESCE(u.username, '') AS username,
	                 COUNT(*) OVER() AS total_count
	          FROM inventory_transactions t
	          JOIN drugs d ON t.drug_id = d.id
	          LEFT JOIN users u ON t.user_id = u.id
	          WHERE t.drug_id = $1
	          ORDER BY t.transaction_time DESC, t.id DESC
	          LIMIT $2 OFFSET $3`

	rows, err := r.db.Query(query, drugID, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: querying transactions for drug %d: %v", ErrDatabaseError, drugID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var t models.InventoryTransaction
		var batchID, userID sql.NullInt64
		if err := rows.Scan(
			&t.ID, &t.DrugID, &batchID, &t.Type, &t.QuantityChange, &t.StockAfter,
			&userID, &t.Remarks, &t.TransactionTime, &t.CreatedAt,
			&t.DrugName, &t.Username, &totalCount,
		); err != nil {
			return nil, 0, fmt.Errorf("%w: scanning transaction for drug %d: %v", ErrDatabaseError, drugID, err)
		}
		if batchID.Valid {
			t.BatchID = &batchID.Int64
		}
		if userID.Valid {
			t.UserID = &userID.Int64
		}
		transactions = append(transactions, t)
	}
	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("%w: iterating transaction rows for drug %d: %v", ErrDatabaseError, drugID, err)
	}
	return transactions, totalCount, nil
}

func (r *transactionRepository) SumOutbound(drugID int64, from, to time.Time) (int64, error) {
	var total int64
	query := `SELECT COALESCE(SUM(-quantity_change), 0)
	          FROM inventory_transactions
	          WHERE drug_id = $1 AND type = $2 AND transaction_time BETWEEN $3 AND $4`
	err := r.db.QueryRow(query, drugID, models.TransactionOutbound, from, to).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("%w: summing outbound transactions for drug %d: %v", ErrDatabaseError, drugID, err)
	}
	return total, nil
}

func (r *transactionRepository) ConsumptionSummary(from, to time.Time) ([]models.DrugConsumption, error) {
	query := `SELECT d.id, d.name, d.spec, d.category, COALESCE(SUM(-t.quantity_change), 0) AS total_consumed
	          FROM inventory_transactions t
	          JOIN drugs d ON t.drug_id = d.id
	          WHERE t.type = $1 AND t.transaction_time BETWEEN $2 AND $3
	          GROUP BY d.id, d.name, d.spec, d.category
	          ORDER BY total_consumed DESC, d.name ASC`

	rows, err := r.db.Query(query, models.TransactionOutbound, from, to)
	if err != nil {
		return nil, fmt.Errorf("%w: querying consumption summary: %v", ErrDatabaseError, err)
	}
	defer rows.Close()

	report := []models.DrugConsumption{}
	for rows.Next() {
		var c models.DrugConsumption
		if err := rows.Scan(&c.DrugID, &c.DrugName, &c.Spec, &c.Category, &c.TotalConsumed); err != nil {
			return nil, fmt.Errorf("%w: scanning consumption summary row: %v", ErrDatabaseError, err)
		}
		report = append(report, c)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating consumption summary rows: %v", ErrDatabaseError, err)
	}
	return report, nil
}
