package models

import "time"

// Prescription lifecycle states. DISPENSED and CANCELLED are terminal.
const (
	PrescriptionPending   = "PENDING"
	PrescriptionApproved  = "APPROVED"
	PrescriptionDispensed = "DISPENSED"
	PrescriptionCancelled = "CANCELLED"
)

// ValidPrescriptionStatus reports whether s is one of the known states.
func ValidPrescriptionStatus(s string) bool {
	switch s {
	case PrescriptionPending, PrescriptionApproved, PrescriptionDispensed, PrescriptionCancelled:
		return true
	default:
		return false
	}
}

// TerminalPrescriptionStatus reports whether no further transition is allowed
// out of s.
func TerminalPrescriptionStatus(s string) bool {
	return s == PrescriptionDispensed || s == PrescriptionCancelled
}

// Prescription is a doctor's order for one or more drugs. Inventory is only
// ever touched on the APPROVED -> DISPENSED transition.
type Prescription struct {
	ID               int64     `json:"id"`
	PatientName      string    `json:"patient_name" db:"patient_name"`
	PatientIDNumber  *string   `json:"patient_id_number,omitempty" db:"patient_id_number"`
	PatientAge       *int      `json:"patient_age,omitempty" db:"patient_age"`
	PatientGender    *string   `json:"patient_gender,omitempty" db:"patient_gender"`
	Doctor           string    `json:"doctor" db:"doctor"`
	PrescriptionDate time.Time `json:"prescription_date" db:"prescription_date"`
	Diagnosis        *string   `json:"diagnosis,omitempty" db:"diagnosis"`
	Status           string    `json:"status" db:"status"`
	CreatedByUserID  *int64    `json:"created_by_user_id,omitempty" db:"created_by_user_id"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time `json:"updated_at" db:"updated_at"`

	Items []PrescriptionItem `json:"items"`
}

// PrescriptionItem is one drug line on a prescription. Items are value
// records owned by their prescription; they become immutable once the
// prescription reaches a terminal state.
type PrescriptionItem struct {
	ID             int64   `json:"id"`
	PrescriptionID int64   `json:"prescription_id" db:"prescription_id"`
	DrugID         int64   `json:"drug_id" db:"drug_id"`
	Quantity       int     `json:"quantity" db:"quantity"`
	Dosage         *string `json:"dosage,omitempty" db:"dosage"`
	Frequency      *string `json:"frequency,omitempty" db:"frequency"`
	Notes          *string `json:"notes,omitempty" db:"notes"`

	DrugName string `json:"drug_name,omitempty"` // populated by joined queries
	DrugSpec string `json:"drug_spec,omitempty"` // populated by joined queries
}

// PrescriptionFilters defines the available filters for querying prescriptions.
type PrescriptionFilters struct {
	Status      *string `form:"status"`
	PatientName *string `form:"patient_name"`
	Doctor      *string `form:"doctor"`
	Page        int     `form:"page"`
	PageSize    int     `form:"page_size"`
}
