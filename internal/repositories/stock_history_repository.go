package repositories

import (
	"database/sql"
	"fmt"
	"time"

	"pharmacy_backend/internal/models"
)

// StockHistoryRepository stores the daily facility-wide stock snapshots
// written by the periodic sampler. The sampler only reads the ledger tables;
// it never participates in consumption transactions.
type StockHistoryRepository interface {
	// UpsertSnapshot records total stock for the given calendar date,
	// overwriting any earlier sample taken the same day.
	UpsertSnapshot(date time.Time, totalStock int) error
	GetHistory(from, to time.Time) ([]models.StockHistory, error)
	// FacilityTotalStock sums every batch quantity in the facility.
	FacilityTotalStock() (int, error)
}

type stockHistoryRepository struct {
	db *sql.DB
}

// NewStockHistoryRepository creates a new instance of StockHistoryRepository.
func NewStockHistoryRepository(db *sql.DB) StockHistoryRepository {
	return &stockHistoryRepository{db: db}
}

func (r *stockHistoryRepository) UpsertSnapshot(date time.Time, totalStock int) error {
	query := `INSERT INTO stock_history (date, total_stock, created_at, updated_at)
	          VALUES ($1, $2, $3, $3)
	          ON CONFLICT (date) DO UPDATE SET total_stock = EXCLUDED.total_stock, updated_at = EXCLUDED.updated_at`
	if _, err := r.db.Exec(query, date, totalStock, time.Now()); err != nil {
		return fmt.Errorf("%w: upserting stock snapshot for %s: %v", ErrDatabaseError, date.Format("2006-01-02"), err)
	}
	return nil
}

func (r *stockHistoryRepository) GetHistory(from, to time.Time) ([]models.StockHistory, error) {
	query := `SELECT id, date, total_stock, created_at, updated_at
	          FROM stock_history
	          WHERE date BETWEEN $1 AND $2
	          ORDER BY date ASC`
	rows, err := r.db.Query(query, from, to)
	if err != nil {
		return nil, fmt.Errorf("%w: querying stock history: %v", ErrDatabaseError, err)
	}
	defer rows.Close()

	history := []models.StockHistory{}
	for rows.Next() {
		var h models.StockHistory
		if err := rows.Scan(&h.ID, &h.Date, &h.TotalStock, &h.CreatedAt, &h.UpdatedAt); err != nil {
			return nil, fmt.Errorf("%w: scanning stock history row: %v", ErrDatabaseError, err)
		}
		history = append(history, h)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating stock history rows: %v", ErrDatabaseError, err)
	}
	return history, nil
}

func (r *stockHistoryRepository) FacilityTotalStock() (int, error) {
	var total int
	if err := r.db.QueryRow(`SELECT COALESCE(SUM(quantity), 0) FROM drug_batches`).Scan(&total); err != nil {
		return 0, fmt.Errorf("%w: computing facility total stock: %v", ErrDatabaseError, err)
	}
	return total, nil
}
