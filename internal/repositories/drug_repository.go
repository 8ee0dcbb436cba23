package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"pharmacy_backend/internal/models"

	"github.com/lib/pq" // For pq.Error
)

// DrugRepository defines the interface for drug-catalog database operations.
type DrugRepository interface {
	CreateDrug(executor SQLExecutor, drug *models.Drug) (int64, error)
	GetDrugByID(id int64) (*models.Drug, error)
	GetDrugs(filters models.DrugFilters) ([]models.Drug, int, error) // drugs, total count, error
	UpdateDrug(executor SQLExecutor, drug *models.Drug) error
	DeleteDrug(executor SQLExecutor, id int64) (int64, error) // Returns rows affected or error
	DistinctSuppliers() ([]string, error)
}

type drugRepository struct {
	db *sql.DB
}

// NewDrugRepository creates a new instance of DrugRepository.
func NewDrugRepository(db *sql.DB) DrugRepository {
	return &drugRepository{db: db}
}

func (r *drugRepository) CreateDrug(executor SQLExecutor, drug *models.Drug) (int64, error) {
	query := `INSERT INTO drugs (name, spec, category, supplier, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6)
	          RETURNING id`

	currentTime := time.Now()
	if drug.CreatedAt.IsZero() {
		drug.CreatedAt = currentTime
	}
	if drug.UpdatedAt.IsZero() {
		drug.UpdatedAt = currentTime
	}

	err := executor.QueryRow(query,
		drug.Name, drug.Spec, drug.Category, drug.Supplier, drug.CreatedAt, drug.UpdatedAt,
	).Scan(&drug.ID)

	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return 0, fmt.Errorf("%w: %s (constraint: %s)", ErrDuplicateKey, pqErr.Message, pqErr.Constraint)
		}
		return 0, fmt.Errorf("%w: creating drug: %v", ErrDatabaseError, err)
	}
	return drug.ID, nil
}

func (r *drugRepository) GetDrugByID(id int64) (*models.Drug, error) {
	drug := &models.Drug{}
	var totalStock int
	query := `SELECT d.id, d.name, d.spec, d.category, d.supplier, d.created_at, d.updated_at,
	                 COALESCE(SUM(b.quantity), 0) AS total_stock
	          FROM drugs d
	          LEFT JOIN drug_batches b ON b.drug_id = d.id
	          WHERE d.id = $1
	          GROUP BY d.id`
	err := r.db.QueryRow(query, id).Scan(
		&drug.ID, &drug.Name, &drug.Spec, &drug.Category, &drug.Supplier,
		&drug.CreatedAt, &drug.UpdatedAt, &totalStock,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: getting drug by ID %d: %v", ErrDatabaseError, id, err)
	}
	drug.TotalStock = &totalStock
	return drug, nil
}

func (r *drugRepository) GetDrugs(filters models.DrugFilters) ([]models.Drug, int, error) {
	drugs := []models.Drug{}
	totalCount := 0

	var queryBuilder strings.Builder
	queryBuilder.WriteString(`
        SELECT d.id, d.name, d.spec, d.category, d.supplier, d.created_at, d.updated_at,
               COALESCE(SUM(b.quantity), 0) AS total_stock,
               COUNT(*) OVER() AS total_count
        FROM drugs d
        LEFT JOIN drug_batches b ON b.drug_id = d.id
    `)

	var conditions []string
	var args []interface{}
	argCounter := 1

	if filters.Name != nil && *filters.Name != "" {
		conditions = append(conditions, fmt.Sprintf("d.name ILIKE $%d", argCounter))
		args = append(args, "%"+*filters.Name+"%")
		argCounter++
	}
	if filters.Category != nil && *filters.Category != "" {
		conditions = append(conditions, fmt.Sprintf("d.category = $%d", argCounter))
		args = append(args, *filters.Category)
		argCounter++
	}
	if filters.Supplier != nil && *filters.Supplier != "" {
		conditions = append(conditions, fmt.Sprintf("d.supplier = $%d", argCounter))
		args = append(args, *filters.Supplier)
		argCounter++
	}

	if len(conditions) > 0 {
		queryBuilder.WriteString(" WHERE " + strings.Join(conditions, " AND "))
	}
	queryBuilder.WriteString(" GROUP BY d.id ORDER BY d.name ASC, d.id ASC")

	if filters.PageSize > 0 {
		queryBuilder.WriteString(fmt.Sprintf(" LIMIT $%d", argCounter))
		args = append(args, filters.PageSize)
		argCounter++
		if filters.Page > 0 {
			offset := (filters.Page - 1) * filters.PageSize
			queryBuilder.WriteString(fmt.Sprintf(" OFFSET $%d", argCounter))
			args = append(args, offset)
		}
	}

	rows, err := r.db.Query(queryBuilder.String(), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: querying drugs: %v", ErrDatabaseError, err)
	}
	defer rows.Close()

	for rows.Next() {
		var d models.Drug
		var totalStock int
		if err := rows.Scan(
			&d.ID, &d.Name, &d.Spec, &d.Category, &d.Supplier, &d.CreatedAt, &d.UpdatedAt,
			&totalStock, &totalCount,
		); err != nil {
			return nil, 0, fmt.Errorf("%w: scanning drug: %v", ErrDatabaseError, err)
		}
		d.TotalStock = &totalStock
		drugs = append(drugs, d)
	}
	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("%w: iterating drug rows: %v", ErrDatabaseError, err)
	}
	return drugs, totalCount, nil
}

func (r *drugRepository) UpdateDrug(executor SQLExecutor, drug *models.Drug) error {
	query := `UPDATE drugs SET name = $1, spec = $2, category = $3, supplier = $4, updated_at = $5
	          WHERE id = $6`
	result, err := executor.Exec(query, drug.Name, drug.Spec, drug.Category, drug.Supplier, time.Now(), drug.ID)
	if err != nil {
		return fmt.Errorf("%w: updating drug ID %d: %v", ErrDatabaseError, drug.ID, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: getting rows affected for drug update ID %d: %v", ErrDatabaseError, drug.ID, err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteDrug removes the drug row. Batches and transactions cascade via
// foreign keys (ON DELETE CASCADE in the schema).
func (r *drugRepository) DeleteDrug(executor SQLExecutor, id int64) (int64, error) {
	result, err := executor.Exec(`DELETE FROM drugs WHERE id = $1`, id)
	if err != nil {
		return 0, fmt.Errorf("%w: deleting drug ID %d: %v", ErrDatabaseError, id, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: getting rows affected for deleting drug ID %d: %v", ErrDatabaseError, id, err)
	}
	if rowsAffected == 0 {
		return 0, ErrNotFound
	}
	return rowsAffected, nil
}

func (r *drugRepository) DistinctSuppliers() ([]string, error) {
	rows, err := r.db.Query(`SELECT DISTINCT supplier FROM drugs WHERE supplier IS NOT NULL AND supplier <> '' ORDER BY supplier`)
	if err != nil {
		return nil, fmt.Errorf("%w: querying distinct suppliers: %v", ErrDatabaseError, err)
	}
	defer rows.Close()

	suppliers := []string{}
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("%w: scanning supplier: %v", ErrDatabaseError, err)
		}
		suppliers = append(suppliers, s)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating supplier rows: %v", ErrDatabaseError, err)
	}
	return suppliers, nil
}
