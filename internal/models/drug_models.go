package models

import "time"

// Drug is the identity record for a medication. Stock is never stored on the
// drug itself; it is always the sum of the drug's batch quantities.
type Drug struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name" db:"name" binding:"required"`
	Spec      string    `json:"spec" db:"spec" binding:"required"` // dosage form / strength, e.g. "500mg tablet"
	Category  *string   `json:"category,omitempty" db:"category"`
	Supplier  *string   `json:"supplier,omitempty" db:"supplier"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`

	TotalStock *int        `json:"total_stock,omitempty"` // aggregate over batches, populated on reads
	Batches    []DrugBatch `json:"batches,omitempty"`
}

// DrugBatch is one delivery of a drug with its own expiration date and
// quantity. Version backs optimistic locking on quantity updates.
type DrugBatch struct {
	ID             int64     `json:"id"`
	DrugID         int64     `json:"drug_id" db:"drug_id"`
	BatchNumber    string    `json:"batch_number" db:"batch_number"`
	ProductionDate time.Time `json:"production_date" db:"production_date"`
	ExpirationDate time.Time `json:"expiration_date" db:"expiration_date"`
	Quantity       int       `json:"quantity" db:"quantity"`
	Supplier       *string   `json:"supplier,omitempty" db:"supplier"`
	Version        int64     `json:"-" db:"version"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`

	DrugName string `json:"drug_name,omitempty"` // populated by joined queries
}

// DrugFilters defines the available filters for querying drugs.
type DrugFilters struct {
	Name     *string `form:"name"` // case-insensitive substring match
	Category *string `form:"category"`
	Supplier *string `form:"supplier"`
	Page     int     `form:"page"`
	PageSize int     `form:"page_size"`
}
