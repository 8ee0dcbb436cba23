package models

import "time"

// InventoryReportItem is one row of the facility inventory report: a drug and
// its aggregate stock across all batches.
type InventoryReportItem struct {
	DrugID     int64   `json:"drug_id"`
	Name       string  `json:"name"`
	Spec       string  `json:"spec"`
	Category   *string `json:"category,omitempty"`
	Supplier   *string `json:"supplier,omitempty"`
	TotalStock int     `json:"total_stock"`
}

// DrugConsumption is one row of the consumption report: the summed OUTBOUND
// magnitude for a drug within a date range.
type DrugConsumption struct {
	DrugID        int64   `json:"drug_id"`
	DrugName      string  `json:"drug_name"`
	Spec          string  `json:"spec"`
	Category      *string `json:"category,omitempty"`
	TotalConsumed int64   `json:"total_consumed"`
}

// StockHistory is a daily snapshot of facility-wide total stock, written by
// the read-only periodic sampler outside the ledger's write path.
type StockHistory struct {
	ID         int64     `json:"id"`
	Date       time.Time `json:"date" db:"date"`
	TotalStock int       `json:"total_stock" db:"total_stock"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}

// OperationLog records an administrative action against the drug catalog for
// audit display. Stock-affecting events live in inventory_transactions, not
// here.
type OperationLog struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username" db:"username"`
	Action    string    `json:"action" db:"action"`
	DrugID    *int64    `json:"drug_id,omitempty" db:"drug_id"`
	DrugName  *string   `json:"drug_name,omitempty" db:"drug_name"`
	Details   *string   `json:"details,omitempty" db:"details"`
	Timestamp time.Time `json:"timestamp" db:"timestamp"`
}

// ReportRequestParams holds common parameters for requesting reports.
type ReportRequestParams struct {
	StartDate string `form:"start_date"` // YYYY-MM-DD
	EndDate   string `form:"end_date"`   // YYYY-MM-DD
}
