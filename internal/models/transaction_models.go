package models

import "time"

// Inventory transaction types. Every stock-affecting event writes exactly one
// row per batch touched; rows are immutable once written.
const (
	TransactionInbound    = "INBOUND"
	TransactionOutbound   = "OUTBOUND"
	TransactionAdjustment = "ADJUSTMENT"
	TransactionInitial    = "INITIAL"
)

// InventoryTransaction is one append-only ledger entry. QuantityChange is
// signed (negative for outbound). StockAfter is the drug's aggregate stock at
// the time the enclosing operation committed.
type InventoryTransaction struct {
	ID              int64     `json:"id"`
	DrugID          int64     `json:"drug_id" db:"drug_id"`
	BatchID         *int64    `json:"batch_id,omitempty" db:"batch_id"`
	Type            string    `json:"type" db:"type"`
	QuantityChange  int       `json:"quantity_change" db:"quantity_change"`
	StockAfter      int       `json:"stock_after" db:"stock_after"`
	UserID          *int64    `json:"user_id,omitempty" db:"user_id"`
	Remarks         *string   `json:"remarks,omitempty" db:"remarks"`
	TransactionTime time.Time `json:"transaction_time" db:"transaction_time"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`

	DrugName string `json:"drug_name,omitempty"` // populated by joined queries
	Username string `json:"username,omitempty"`  // populated by joined queries
}

// ValidTransactionType reports whether t is one of the known ledger types.
func ValidTransactionType(t string) bool {
	switch t {
	case TransactionInbound, TransactionOutbound, TransactionAdjustment, TransactionInitial:
		return true
	default:
		return false
	}
}
