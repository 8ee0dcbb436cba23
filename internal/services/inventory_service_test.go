package services

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pharmacy_backend/internal/models"
	"pharmacy_backend/internal/repositories"
)

func date(y, m, d int) time.Time {
	return time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
}

func newTestInventoryService() (*inventoryService, *fakeStore, *fakeBatchRepo) {
	store := newFakeStore()
	batchRepo := &fakeBatchRepo{store: store}
	svc := &inventoryService{
		drugRepo:  &fakeDrugRepo{store: store},
		batchRepo: batchRepo,
		txRepo:    &fakeTransactionRepo{store: store},
		txRunner:  &fakeTxRunner{store: store},
		now:       func() time.Time { return date(2026, 8, 1) },
	}
	return svc, store, batchRepo
}

func TestConsume_DrainsEarliestExpiringBatchFirst(t *testing.T) {
	svc, store, _ := newTestInventoryService()
	drug := store.addDrug("Amoxicillin", "500mg capsule")
	b1 := store.addBatch(drug.ID, "B1", date(2026, 9, 1), 5)
	b2 := store.addBatch(drug.ID, "B2", date(2027, 1, 1), 10)

	stockAfter, err := svc.Consume(pharmacistActor, drug.ID, ConsumeRequest{Quantity: 8})
	require.NoError(t, err)
	assert.Equal(t, 7, stockAfter)
	assert.Equal(t, 0, store.batchQuantity(b1.ID), "earliest-expiring batch should be drained")
	assert.Equal(t, 7, store.batchQuantity(b2.ID))

	outbound := store.transactionsOfType(drug.ID, models.TransactionOutbound)
	require.Len(t, outbound, 2, "one ledger row per batch touched")
	assert.Equal(t, -5, outbound[0].QuantityChange)
	assert.Equal(t, -3, outbound[1].QuantityChange)
	for _, txn := range outbound {
		assert.Equal(t, 7, txn.StockAfter, "every row carries the post-call aggregate")
	}
}

func TestConsume_ExactlyOneBatch(t *testing.T) {
	svc, store, _ := newTestInventoryService()
	drug := store.addDrug("Ibuprofen", "200mg tablet")
	b1 := store.addBatch(drug.ID, "B1", date(2026, 9, 1), 5)
	b2 := store.addBatch(drug.ID, "B2", date(2027, 1, 1), 10)

	stockAfter, err := svc.Consume(pharmacistActor, drug.ID, ConsumeRequest{Quantity: 5})
	require.NoError(t, err)
	assert.Equal(t, 10, stockAfter)
	assert.Equal(t, 0, store.batchQuantity(b1.ID))
	assert.Equal(t, 10, store.batchQuantity(b2.ID))
	assert.Len(t, store.transactionsOfType(drug.ID, models.TransactionOutbound), 1)
}

func TestConsume_InsufficientStockLeavesEverythingUnchanged(t *testing.T) {
	svc, store, _ := newTestInventoryService()
	drug := store.addDrug("Amoxicillin", "500mg capsule")
	b1 := store.addBatch(drug.ID, "B1", date(2026, 9, 1), 5)
	b2 := store.addBatch(drug.ID, "B2", date(2027, 1, 1), 10)

	_, err := svc.Consume(pharmacistActor, drug.ID, ConsumeRequest{Quantity: 20})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInsufficientStock)

	var stockErr *InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, drug.ID, stockErr.DrugID)
	assert.Equal(t, 20, stockErr.Requested)
	assert.Equal(t, 15, stockErr.Available)

	assert.Equal(t, 5, store.batchQuantity(b1.ID))
	assert.Equal(t, 10, store.batchQuantity(b2.ID))
	assert.Empty(t, store.transactionsOfType(drug.ID, models.TransactionOutbound))
}

func TestConsume_SkipsEmptyBatches(t *testing.T) {
	svc, store, _ := newTestInventoryService()
	drug := store.addDrug("Metformin", "850mg tablet")
	store.addBatch(drug.ID, "B1", date(2026, 9, 1), 0)
	b2 := store.addBatch(drug.ID, "B2", date(2027, 1, 1), 4)

	stockAfter, err := svc.Consume(pharmacistActor, drug.ID, ConsumeRequest{Quantity: 3})
	require.NoError(t, err)
	assert.Equal(t, 1, stockAfter)
	assert.Equal(t, 1, store.batchQuantity(b2.ID))
	assert.Len(t, store.transactionsOfType(drug.ID, models.TransactionOutbound), 1)
}

func TestConsume_RetriesOnVersionConflict(t *testing.T) {
	svc, store, batchRepo := newTestInventoryService()
	drug := store.addDrug("Amoxicillin", "500mg capsule")
	b1 := store.addBatch(drug.ID, "B1", date(2026, 9, 1), 10)
	batchRepo.conflictsToInject = 1

	stockAfter, err := svc.Consume(pharmacistActor, drug.ID, ConsumeRequest{Quantity: 4})
	require.NoError(t, err, "a single conflict should be absorbed by the retry loop")
	assert.Equal(t, 6, stockAfter)
	assert.Equal(t, 6, store.batchQuantity(b1.ID))
	assert.Len(t, store.transactionsOfType(drug.ID, models.TransactionOutbound), 1,
		"rolled-back attempt must not leave a ledger row")
}

func TestConsume_GivesUpAfterRepeatedConflicts(t *testing.T) {
	svc, store, batchRepo := newTestInventoryService()
	drug := store.addDrug("Amoxicillin", "500mg capsule")
	b1 := store.addBatch(drug.ID, "B1", date(2026, 9, 1), 10)
	batchRepo.conflictsToInject = consumeRetryAttempts

	_, err := svc.Consume(pharmacistActor, drug.ID, ConsumeRequest{Quantity: 4})
	require.Error(t, err)
	assert.ErrorIs(t, err, repositories.ErrConcurrencyConflict)
	assert.Equal(t, 10, store.batchQuantity(b1.ID))
}

func TestConsume_ConcurrentCallersNeverOversell(t *testing.T) {
	svc, store, _ := newTestInventoryService()
	drug := store.addDrug("Amoxicillin", "500mg capsule")
	b1 := store.addBatch(drug.ID, "B1", date(2026, 9, 1), 5)

	results := make([]error, 2)
	var wg sync.WaitGroup
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = svc.Consume(pharmacistActor, drug.ID, ConsumeRequest{Quantity: 5})
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range results {
		if err == nil {
			successes++
		} else {
			assert.ErrorIs(t, err, ErrInsufficientStock)
		}
	}
	assert.Equal(t, 1, successes, "exactly one caller may take the last units")
	assert.Equal(t, 0, store.batchQuantity(b1.ID), "stock never goes negative")
	assert.Len(t, store.transactionsOfType(drug.ID, models.TransactionOutbound), 1)
}

func TestConsume_Validation(t *testing.T) {
	svc, store, _ := newTestInventoryService()
	drug := store.addDrug("Amoxicillin", "500mg capsule")

	_, err := svc.Consume(pharmacistActor, drug.ID, ConsumeRequest{Quantity: 0})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.Consume(pharmacistActor, drug.ID, ConsumeRequest{Quantity: -2})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.Consume(pharmacistActor, 9999, ConsumeRequest{Quantity: 1})
	assert.ErrorIs(t, err, ErrDrugNotFound)

	_, err = svc.Consume(doctorActor, drug.ID, ConsumeRequest{Quantity: 1})
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestAddBatch_WritesInboundLedgerRow(t *testing.T) {
	svc, store, _ := newTestInventoryService()
	drug := store.addDrug("Amoxicillin", "500mg capsule")

	batch, err := svc.AddBatch(pharmacistActor, drug.ID, AddBatchRequest{
		BatchNumber:    "LOT-42",
		ProductionDate: "2025-06-01",
		ExpirationDate: "2027-06-01",
		Quantity:       25,
	})
	require.NoError(t, err)
	assert.Equal(t, "LOT-42", batch.BatchNumber)
	assert.Equal(t, 25, batch.Quantity)

	inbound := store.transactionsOfType(drug.ID, models.TransactionInbound)
	require.Len(t, inbound, 1)
	assert.Equal(t, 25, inbound[0].QuantityChange)
	assert.Equal(t, 25, inbound[0].StockAfter)
	require.NotNil(t, inbound[0].BatchID)
	assert.Equal(t, batch.ID, *inbound[0].BatchID)
}

func TestAddBatch_InitialFlagSelectsInitialType(t *testing.T) {
	svc, store, _ := newTestInventoryService()
	drug := store.addDrug("Amoxicillin", "500mg capsule")

	_, err := svc.AddBatch(adminActor, drug.ID, AddBatchRequest{
		BatchNumber:    "OPENING",
		ProductionDate: "2025-06-01",
		ExpirationDate: "2027-06-01",
		Quantity:       100,
		Initial:        true,
	})
	require.NoError(t, err)
	assert.Len(t, store.transactionsOfType(drug.ID, models.TransactionInitial), 1)
	assert.Empty(t, store.transactionsOfType(drug.ID, models.TransactionInbound))
}

func TestAddBatch_Validation(t *testing.T) {
	svc, store, _ := newTestInventoryService()
	drug := store.addDrug("Amoxicillin", "500mg capsule")

	cases := []struct {
		name string
		req  AddBatchRequest
	}{
		{"zero quantity", AddBatchRequest{BatchNumber: "L1", ProductionDate: "2025-01-01", ExpirationDate: "2026-01-01", Quantity: 0}},
		{"bad date", AddBatchRequest{BatchNumber: "L1", ProductionDate: "01/01/2025", ExpirationDate: "2026-01-01", Quantity: 5}},
		{"expiry before production", AddBatchRequest{BatchNumber: "L1", ProductionDate: "2026-01-01", ExpirationDate: "2025-01-01", Quantity: 5}},
		{"blank batch number", AddBatchRequest{BatchNumber: "  ", ProductionDate: "2025-01-01", ExpirationDate: "2026-01-01", Quantity: 5}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.AddBatch(pharmacistActor, drug.ID, tc.req)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestAddBatch_AcceptsExpirationEqualToProduction(t *testing.T) {
	svc, store, _ := newTestInventoryService()
	drug := store.addDrug("Amoxicillin", "500mg capsule")

	_, err := svc.AddBatch(pharmacistActor, drug.ID, AddBatchRequest{
		BatchNumber:    "L1",
		ProductionDate: "2026-01-01",
		ExpirationDate: "2026-01-01",
		Quantity:       5,
	})
	require.NoError(t, err)
}

func TestAddBatch_DuplicateBatchNumberForSameDrug(t *testing.T) {
	svc, store, _ := newTestInventoryService()
	drug := store.addDrug("Amoxicillin", "500mg capsule")
	store.addBatch(drug.ID, "LOT-1", date(2027, 1, 1), 5)

	_, err := svc.AddBatch(pharmacistActor, drug.ID, AddBatchRequest{
		BatchNumber:    "LOT-1",
		ProductionDate: "2025-06-01",
		ExpirationDate: "2027-06-01",
		Quantity:       10,
	})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestAdjustBatch_WritesSignedAdjustment(t *testing.T) {
	svc, store, _ := newTestInventoryService()
	drug := store.addDrug("Amoxicillin", "500mg capsule")
	b1 := store.addBatch(drug.ID, "B1", date(2027, 1, 1), 10)

	batch, err := svc.AdjustBatch(pharmacistActor, b1.ID, AdjustBatchRequest{NewQuantity: 7, Reason: "stocktake"})
	require.NoError(t, err)
	assert.Equal(t, 7, batch.Quantity)

	adjustments := store.transactionsOfType(drug.ID, models.TransactionAdjustment)
	require.Len(t, adjustments, 1)
	assert.Equal(t, -3, adjustments[0].QuantityChange)
	assert.Equal(t, 7, adjustments[0].StockAfter)
}

func TestAdjustBatch_NoOpWhenQuantityUnchanged(t *testing.T) {
	svc, store, _ := newTestInventoryService()
	drug := store.addDrug("Amoxicillin", "500mg capsule")
	b1 := store.addBatch(drug.ID, "B1", date(2027, 1, 1), 10)

	_, err := svc.AdjustBatch(pharmacistActor, b1.ID, AdjustBatchRequest{NewQuantity: 10, Reason: "stocktake"})
	require.NoError(t, err)
	assert.Empty(t, store.transactionsOfType(drug.ID, models.TransactionAdjustment))
}

func TestTotalStock(t *testing.T) {
	svc, store, _ := newTestInventoryService()
	drug := store.addDrug("Amoxicillin", "500mg capsule")
	store.addBatch(drug.ID, "B1", date(2026, 9, 1), 5)
	store.addBatch(drug.ID, "B2", date(2027, 1, 1), 10)

	total, err := svc.TotalStock(drug.ID)
	require.NoError(t, err)
	assert.Equal(t, 15, total)

	_, err = svc.TotalStock(9999)
	assert.ErrorIs(t, err, ErrDrugNotFound)
}

func TestExpiringBatches_ExcludesEmptyAndFarBatches(t *testing.T) {
	svc, store, _ := newTestInventoryService()
	drug := store.addDrug("Amoxicillin", "500mg capsule")
	soon := store.addBatch(drug.ID, "SOON", date(2026, 8, 15), 5)
	store.addBatch(drug.ID, "EMPTY", date(2026, 8, 10), 0)
	store.addBatch(drug.ID, "FAR", date(2028, 1, 1), 5)

	batches, err := svc.ExpiringBatches(30)
	require.NoError(t, err)
	require.Len(t, batches, 1)
	assert.Equal(t, soon.ID, batches[0].ID)
}

func TestWithConflictRetry_DoesNotRetryOtherErrors(t *testing.T) {
	store := newFakeStore()
	runner := &fakeTxRunner{store: store}
	sentinel := errors.New("boom")
	calls := 0
	err := withConflictRetry(runner, 3, func(_ repositories.SQLExecutor) error {
		calls++
		return sentinel
	})
	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, 1, calls)
}
