package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"pharmacy_backend/internal/models"

	"github.com/lib/pq" // For pq.Error
)

// BatchRepository defines the interface for drug batch database operations.
// Batches are the unit of stock: every quantity the facility holds belongs to
// exactly one batch.
type BatchRepository interface {
	CreateBatch(executor SQLExecutor, batch *models.DrugBatch) (int64, error)
	GetBatchByID(id int64) (*models.DrugBatch, error)
	// GetBatchesByDrugID returns the drug's batches ordered by expiration date
	// ascending, ties broken by id ascending. This is both the display order
	// and the FEFO consumption order.
	GetBatchesByDrugID(drugID int64) ([]models.DrugBatch, error)
	// GetBatchesForConsumption is the same ordered read issued through the
	// caller's transaction, so the versions it observes are the ones the
	// subsequent quantity updates are checked against.
	GetBatchesForConsumption(executor SQLExecutor, drugID int64) ([]models.DrugBatch, error)
	// UpdateBatchQuantity sets the batch quantity iff the stored version still
	// matches expectedVersion; returns ErrConcurrencyConflict otherwise.
	UpdateBatchQuantity(executor SQLExecutor, batchID int64, newQuantity int, expectedVersion int64) error
	TotalStock(drugID int64) (int, error)
	ExpiringBatches(before time.Time) ([]models.DrugBatch, error)
}

type batchRepository struct {
	db *sql.DB
}

// NewBatchRepository creates a new instance of BatchRepository.
func NewBatchRepository(db *sql.DB) BatchRepository {
	return &batchRepository{db: db}
}

func (r *batchRepository) CreateBatch(executor SQLExecutor, batch *models.DrugBatch) (int64, error) {
	query := `INSERT INTO drug_batches
	            (drug_id, batch_number, production_date, expiration_date, quantity, supplier, version, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, 1, $7, $8)
	          RETURNING id, version`

	currentTime := time.Now()
	if batch.CreatedAt.IsZero() {
		batch.CreatedAt = currentTime
	}
	if batch.UpdatedAt.IsZero() {
		batch.UpdatedAt = currentTime
	}

	err := executor.QueryRow(query,
		batch.DrugID, batch.BatchNumber, batch.ProductionDate, batch.ExpirationDate,
		batch.Quantity, batch.Supplier, batch.CreatedAt, batch.UpdatedAt,
	).Scan(&batch.ID, &batch.Version)

	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) {
			switch pqErr.Code.Name() {
			case "unique_violation":
				// batch_number is unique per drug, not globally
				return 0, fmt.Errorf("%w: batch number %q already exists for drug %d", ErrDuplicateKey, batch.BatchNumber, batch.DrugID)
			case "foreign_key_violation":
				return 0, ErrNotFound
			}
		}
		return 0, fmt.Errorf("%w: creating batch for drug %d: %v", ErrDatabaseError, batch.DrugID, err)
	}
	return batch.ID, nil
}

func (r *batchRepository) GetBatchByID(id int64) (*models.DrugBatch, error) {
	batch := &models.DrugBatch{}
	query := `SELECT b.id, b.drug_id, b.batch_number, b.production_date, b.expiration_date,
	                 b.quantity, b.supplier, b.version, b.created_at, b.updated_at, d.name
	          FROM drug_batches b
	          JOIN drugs d ON d.id = b.drug_id
	          WHERE b.id = $1`
	err := r.db.QueryRow(query, id).Scan(
		&batch.ID, &batch.DrugID, &batch.BatchNumber, &batch.ProductionDate, &batch.ExpirationDate,
		&batch.Quantity, &batch.Supplier, &batch.Version, &batch.CreatedAt, &batch.UpdatedAt, &batch.DrugName,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: getting batch by ID %d: %v", ErrDatabaseError, id, err)
	}
	return batch, nil
}

const batchesByDrugQuery = `SELECT id, drug_id, batch_number, production_date, expiration_date,
	       quantity, supplier, version, created_at, updated_at
	FROM drug_batches
	WHERE drug_id = $1
	ORDER BY expiration_date ASC, id ASC`

func (r *batchRepository) GetBatchesByDrugID(drugID int64) ([]models.DrugBatch, error) {
	return scanBatches(r.db, drugID)
}

func (r *batchRepository) GetBatchesForConsumption(executor SQLExecutor, drugID int64) ([]models.DrugBatch, error) {
	return scanBatches(executor, drugID)
}

func scanBatches(executor SQLExecutor, drugID int64) ([]models.DrugBatch, error) {
	rows, err := executor.Query(batchesByDrugQuery, drugID)
	if err != nil {
		return nil, fmt.Errorf("%w: querying batches for drug %d: %v", ErrDatabaseError, drugID, err)
	}
	defer rows.Close()

	batches := []models.DrugBatch{}
	for rows.Next() {
		var b models.DrugBatch
		if err := rows.Scan(
			&b.ID, &b.DrugID, &b.BatchNumber, &b.ProductionDate, &b.ExpirationDate,
			&b.Quantity, &b.Supplier, &b.Version, &b.CreatedAt, &b.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("%w: scanning batch for drug %d: %v", ErrDatabaseError, drugID, err)
		}
		batches = append(batches, b)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating batch rows for drug %d: %v", ErrDatabaseError, drugID, err)
	}
	return batches, nil
}

func (r *batchRepository) UpdateBatchQuantity(executor SQLExecutor, batchID int64, newQuantity int, expectedVersion int64) error {
	query := `UPDATE drug_batches
	          SET quantity = $1, version = version + 1, updated_at = $2
	          WHERE id = $3 AND version = $4`
	result, err := executor.Exec(query, newQuantity, time.Now(), batchID, expectedVersion)
	if err != nil {
		return fmt.Errorf("%w: updating quantity for batch ID %d: %v", ErrDatabaseError, batchID, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: getting rows affected for batch quantity update ID %d: %v", ErrDatabaseError, batchID, err)
	}
	if rowsAffected == 0 {
		// Either the batch vanished or a competing writer bumped the version.
		var exists bool
		checkErr := executor.QueryRow(`SELECT EXISTS(SELECT 1 FROM drug_batches WHERE id = $1)`, batchID).Scan(&exists)
		if checkErr == nil && !exists {
			return ErrNotFound
		}
		return ErrConcurrencyConflict
	}
	return nil
}

func (r *batchRepository) TotalStock(drugID int64) (int, error) {
	var total int
	err := r.db.QueryRow(`SELECT COALESCE(SUM(quantity), 0) FROM drug_batches WHERE drug_id = $1`, drugID).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("%w: computing total stock for drug %d: %v", ErrDatabaseError, drugID, err)
	}
	return total, nil
}

func (r *batchRepository) ExpiringBatches(before time.Time) ([]models.DrugBatch, error) {
	query := `SELECT b.id, b.drug_id, b.batch_number, b.production_date, b.expiration_date,
	                 b.quantity, b.supplier, b.version, b.created_at, b.updated_at, d.name
	          FROM drug_batches b
	          JOIN drugs d ON d.id = b.drug_id
	          WHERE b.expiration_date <= $1 AND b.quantity > 0
	          ORDER BY b.expiration_date ASC, b.id ASC`
	rows, err := r.db.Query(query, before)
	if err != nil {
		return nil, fmt.Errorf("%w: querying expiring batches: %v", ErrDatabaseError, err)
	}
	defer rows.Close()

	batches := []models.DrugBatch{}
	for rows.Next() {
		var b models.DrugBatch
		if err := rows.Scan(
			&b.ID, &b.DrugID, &b.BatchNumber, &b.ProductionDate, &b.ExpirationDate,
			&b.Quantity, &b.Supplier, &b.Version, &b.CreatedAt, &b.UpdatedAt, &b.DrugName,
		); err != nil {
			return nil, fmt.Errorf("%w: scanning expiring batch: %v", ErrDatabaseError, err)
		}
		batches = append(batches, b)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating expiring batch rows: %v", ErrDatabaseError, err)
	}
	return batches, nil
}
