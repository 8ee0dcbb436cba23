package repositories

import (
	"database/sql"
	"fmt"
	"time"

	"pharmacy_backend/internal/models"
)

// OperationLogRepository stores audit entries for drug-catalog actions.
// Append-only, like the inventory ledger.
type OperationLogRepository interface {
	CreateLog(executor SQLExecutor, entry *models.OperationLog) (int64, error)
	GetLogs(page, pageSize int) ([]models.OperationLog, int, error)
}

type operationLogRepository struct {
	db *sql.DB
}

// NewOperationLogRepository creates a new instance of OperationLogRepository.
func NewOperationLogRepository(db *sql.DB) OperationLogRepository {
	return &operationLogRepository{db: db}
}

func (r *operationLogRepository) CreateLog(executor SQLExecutor, entry *models.OperationLog) (int64, error) {
	query := `INSERT INTO operation_logs (username, action, drug_id, drug_name, details, timestamp)
	          VALUES ($1, $2, $3, $4, $5, $6)
	          RETURNING id`

	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	var drugID sql.NullInt64
	if entry.DrugID != nil {
		drugID = sql.NullInt64{Int64: *entry.DrugID, Valid: true}
	}

	err := executor.QueryRow(query,
		entry.Username, entry.Action, drugID, entry.DrugName, entry.Details, entry.Timestamp,
	).Scan(&entry.ID)
	if err != nil {
		return 0, fmt.Errorf("%w: creating operation log: %v", ErrDatabaseError, err)
	}
	return entry.ID, nil
}

func (r *operationLogRepository) GetLogs(page, pageSize int) ([]models.OperationLog, int, error) {
	logs := []models.OperationLog{}
	totalCount := 0

	query := `SELECT id, username, action, drug_id, drug_name, details, timestamp,
	                 COUNT(*) OVER() AS total_count
	          FROM operation_logs
	          ORDER BY timestamp DESC, id DESC
	          LIMIT $1 OFFSET $2`

	rows, err := r.db.Query(query, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: querying operation logs: %v", ErrDatabaseError, err)
	}
	defer rows.Close()

	for rows.Next() {
		var entry models.OperationLog
		var drugID sql.NullInt64
		if err := rows.Scan(
			&entry.ID, &entry.Username, &entry.Action, &drugID, &entry.DrugName,
			&entry.Details, &entry.Timestamp, &totalCount,
		); err != nil {
			return nil, 0, fmt.Errorf("%w: scanning operation log: %v", ErrDatabaseError, err)
		}
		if drugID.Valid {
			entry.DrugID = &drugID.Int64
		}
		logs = append(logs, entry)
	}
	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("%w: iterating operation log rows: %v", ErrDatabaseError, err)
	}
	return logs, totalCount, nil
}
