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

// PrescriptionRepository defines the interface for prescription database
// operations. Items are owned value records: they are inserted alongside the
// prescription and never update once the prescription is terminal.
type PrescriptionRepository interface {
	CreatePrescription(executor SQLExecutor, prescription *models.Prescription) (int64, error)
	CreatePrescriptionItem(executor SQLExecutor, item *models.PrescriptionItem) (int64, error)
	GetPrescriptionByID(id int64) (*models.Prescription, error)
	GetItemsByPrescriptionID(prescriptionID int64) ([]models.PrescriptionItem, error)
	GetPrescriptions(filters models.PrescriptionFilters) ([]models.Prescription, int, error)
	UpdateStatus(executor SQLExecutor, prescriptionID int64, newStatus, expectedStatus string, updatedAt time.Time) error
}

type prescriptionRepository struct {
	db *sql.DB
}

// NewPrescriptionRepository creates a new instance of PrescriptionRepository.
func NewPrescriptionRepository(db *sql.DB) PrescriptionRepository {
	return &prescriptionRepository{db: db}
}

func (r *prescriptionRepository) CreatePrescription(executor SQLExecutor, p *models.Prescription) (int64, error) {
	query := `INSERT INTO prescriptions
	            (patient_name, patient_id_number, patient_age, patient_gender, doctor,
	             prescription_date, diagnosis, status, created_by_user_id, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	          RETURNING id`

	currentTime := time.Now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = currentTime
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = currentTime
	}

	var createdBy sql.NullInt64
	if p.CreatedByUserID != nil {
		createdBy = sql.NullInt64{Int64: *p.CreatedByUserID, Valid: true}
	}

	err := executor.QueryRow(query,
		p.PatientName, p.PatientIDNumber, p.PatientAge, p.PatientGender, p.Doctor,
		p.PrescriptionDate, p.Diagnosis, p.Status, createdBy, p.CreatedAt, p.UpdatedAt,
	).Scan(&p.ID)

	if err != nil {
		return 0, fmt.Errorf("%w: creating prescription: %v", ErrDatabaseError, err)
	}
	return p.ID, nil
}

func (r *prescriptionRepository) CreatePrescriptionItem(executor SQLExecutor, item *models.PrescriptionItem) (int64, error) {
	query := `INSERT INTO prescription_items (prescription_id, drug_id, quantity, dosage, frequency, notes)
	          VALUES ($1, $2, $3, $4, $5, $6)
	          RETURNING id`

	err := executor.QueryRow(query,
		item.PrescriptionID, item.DrugID, item.Quantity, item.Dosage, item.Frequency, item.Notes,
	).Scan(&item.ID)

	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "foreign_key_violation" {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("%w: creating prescription item (drug_id: %d): %v", ErrDatabaseError, item.DrugID, err)
	}
	return item.ID, nil
}

func (r *prescriptionRepository) GetPrescriptionByID(id int64) (*models.Prescription, error) {
	p := &models.Prescription{}
	query := `SELECT id, patient_name, patient_id_number, patient_age, patient_gender, doctor,
	                 prescription_date, diagnosis, status, created_by_user_id, created_at, updated_at
	          FROM prescriptions
	          WHERE id = $1`

	var createdBy sql.NullInt64
	err := r.db.QueryRow(query, id).Scan(
		&p.ID, &p.PatientName, &p.PatientIDNumber, &p.PatientAge, &p.PatientGender, &p.Doctor,
		&p.PrescriptionDate, &p.Diagnosis, &p.Status, &createdBy, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: getting prescription by ID %d: %v", ErrDatabaseError, id, err)
	}
	if createdBy.Valid {
		p.CreatedByUserID = &createdBy.Int64
	}
	return p, nil
}

func (r *prescriptionRepository) GetItemsByPrescriptionID(prescriptionID int64) ([]models.PrescriptionItem, error) {
	query := `SELECT i.id, i.prescription_id, i.drug_id, i.quantity, i.dosage, i.frequency, i.notes,
	                 d.name, d.spec
	          FROM prescription_items i
	          JOIN drugs d ON i.drug_id = d.id
	          WHERE i.prescription_id = $1
	          ORDER BY i.id`

	rows, err := r.db.Query(query, prescriptionID)
	if err != nil {
		return nil, fmt.Errorf("%w: querying items for prescription %d: %v", ErrDatabaseError, prescriptionID, err)
	}
	defer rows.Close()

	items := []models.PrescriptionItem{}
	for rows.Next() {
		var item models.PrescriptionItem
		if err := rows.Scan(
			&item.ID, &item.PrescriptionID, &item.DrugID, &item.Quantity,
			&item.Dosage, &item.Frequency, &item.Notes, &item.DrugName, &item.DrugSpec,
		); err != nil {
			return nil, fmt.Errorf("%w: scanning item for prescription %d: %v", ErrDatabaseError, prescriptionID, err)
		}
		items = append(items, item)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating item rows for prescription %d: %v", ErrDatabaseError, prescriptionID, err)
	}
	return items, nil
}

func (r *prescriptionRepository) GetPrescriptions(filters models.PrescriptionFilters) ([]models.Prescription, int, error) {
	prescriptions := []models.Prescription{}
	totalCount := 0

	var queryBuilder strings.Builder
	queryBuilder.WriteString(`
        SELECT id, patient_name, patient_id_number, patient_age, patient_gender, doctor,
               prescription_date, diagnosis, status, created_by_user_id, created_at, updated_at,
               COUNT(*) OVER() AS total_count
        FROM prescriptions
    `)

	var conditions []string
	var args []interface{}
	argCounter := 1

	if filters.Status != nil && *filters.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argCounter))
		args = append(args, *filters.Status)
		argCounter++
	}
	if filters.PatientName != nil && *filters.PatientName != "" {
		conditions = append(conditions, fmt.Sprintf("patient_name ILIKE $%d", argCounter))
		args = append(args, "%"+*filters.PatientName+"%")
		argCounter++
	}
	if filters.Doctor != nil && *filters.Doctor != "" {
		conditions = append(conditions, fmt.Sprintf("doctor = $%d", argCounter))
		args = append(args, *filters.Doctor)
		argCounter++
	}

	if len(conditions) > 0 {
		queryBuilder.WriteString(" WHERE " + strings.Join(conditions, " AND "))
	}
	queryBuilder.WriteString(" ORDER BY created_at DESC, id DESC")

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
		return nil, 0, fmt.Errorf("%w: querying prescriptions: %v", ErrDatabaseError, err)
	}
	defer rows.Close()

	for rows.Next() {
		var p models.Prescription
		var createdBy sql.NullInt64
		if err := rows.Scan(
			&p.ID, &p.PatientName, &p.PatientIDNumber, &p.PatientAge, &p.PatientGender, &p.Doctor,
			&p.PrescriptionDate, &p.Diagnosis, &p.Status, &createdBy, &p.CreatedAt, &p.UpdatedAt,
			&totalCount,
		); err != nil {
			return nil, 0, fmt.Errorf("%w: scanning prescription: %v", ErrDatabaseError, err)
		}
		if createdBy.Valid {
			p.CreatedByUserID = &createdBy.Int64
		}
		prescriptions = append(prescriptions, p)
	}
	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("%w: iterating prescription rows: %v", ErrDatabaseError, err)
	}
	return prescriptions, totalCount, nil
}

// UpdateStatus writes newStatus only if the row still holds expectedStatus.
// A zero-row update means either the prescription is gone (ErrNotFound) or a
// concurrent caller moved it first (ErrConcurrencyConflict).
func (r *prescriptionRepository) UpdateStatus(executor SQLExecutor, prescriptionID int64, newStatus, expectedStatus string, updatedAt time.Time) error {
	query := `UPDATE prescriptions SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`
	result, err := executor.Exec(query, newStatus, updatedAt, prescriptionID, expectedStatus)
	if err != nil {
		return fmt.Errorf("%w: updating status for prescription ID %d: %v", ErrDatabaseError, prescriptionID, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: getting rows affected for prescription status update ID %d: %v", ErrDatabaseError, prescriptionID, err)
	}
	if rowsAffected == 0 {
		var exists bool
		checkQuery := `SELECT EXISTS (SELECT 1 FROM prescriptions WHERE id = $1)`
		if err := executor.QueryRow(checkQuery, prescriptionID).Scan(&exists); err != nil {
			return fmt.Errorf("%w: checking prescription existence for ID %d: %v", ErrDatabaseError, prescriptionID, err)
		}
		if !exists {
			return ErrNotFound
		}
		return ErrConcurrencyConflict
	}
	return nil
}
