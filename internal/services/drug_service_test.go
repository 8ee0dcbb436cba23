package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDrugService() (*drugService, *fakeStore) {
	store := newFakeStore()
	svc := &drugService{
		drugRepo:  &fakeDrugRepo{store: store},
		batchRepo: &fakeBatchRepo{store: store},
		opLogRepo: &fakeOperationLogRepo{store: store},
		txRunner:  &fakeTxRunner{store: store},
		now:       func() time.Time { return date(2026, 8, 1) },
	}
	return svc, store
}

func TestCreateDrug_WritesOperationLog(t *testing.T) {
	svc, store := newTestDrugService()

	drug, err := svc.CreateDrug(adminActor, CreateDrugRequest{Name: "Amoxicillin", Spec: "500mg capsule"})
	require.NoError(t, err)
	assert.Equal(t, "Amoxicillin", drug.Name)
	require.NotNil(t, drug.TotalStock)
	assert.Equal(t, 0, *drug.TotalStock, "new drugs have no stock until a batch arrives")

	require.Len(t, store.opLogs, 1)
	assert.Equal(t, ActionCreateDrug, store.opLogs[0].Action)
	assert.Equal(t, adminActor.Username, store.opLogs[0].Username)
}

func TestCreateDrug_RejectsDuplicateNameSpec(t *testing.T) {
	svc, store := newTestDrugService()
	store.addDrug("Amoxicillin", "500mg capsule")

	_, err := svc.CreateDrug(adminActor, CreateDrugRequest{Name: "Amoxicillin", Spec: "500mg capsule"})
	assert.ErrorIs(t, err, ErrDrugExists)
}

func TestCreateDrug_RequiresAdmin(t *testing.T) {
	svc, _ := newTestDrugService()

	_, err := svc.CreateDrug(pharmacistActor, CreateDrugRequest{Name: "Amoxicillin", Spec: "500mg capsule"})
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = svc.CreateDrug(doctorActor, CreateDrugRequest{Name: "Amoxicillin", Spec: "500mg capsule"})
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestCreateDrug_Validation(t *testing.T) {
	svc, _ := newTestDrugService()

	_, err := svc.CreateDrug(adminActor, CreateDrugRequest{Name: "  ", Spec: "500mg capsule"})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.CreateDrug(adminActor, CreateDrugRequest{Name: "Amoxicillin", Spec: ""})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestGetDrugByID_IncludesBatchesAndAggregateStock(t *testing.T) {
	svc, store := newTestDrugService()
	drug := store.addDrug("Amoxicillin", "500mg capsule")
	store.addBatch(drug.ID, "B1", date(2026, 9, 1), 5)
	store.addBatch(drug.ID, "B2", date(2027, 1, 1), 10)

	got, err := svc.GetDrugByID(drug.ID)
	require.NoError(t, err)
	require.NotNil(t, got.TotalStock)
	assert.Equal(t, 15, *got.TotalStock)
	require.Len(t, got.Batches, 2)
	assert.Equal(t, "B1", got.Batches[0].BatchNumber, "batches ordered by expiration")

	_, err = svc.GetDrugByID(9999)
	assert.ErrorIs(t, err, ErrDrugNotFound)
}

func TestDeleteDrug_RemovesBatches(t *testing.T) {
	svc, store := newTestDrugService()
	drug := store.addDrug("Amoxicillin", "500mg capsule")
	batch := store.addBatch(drug.ID, "B1", date(2027, 1, 1), 5)

	require.NoError(t, svc.DeleteDrug(adminActor, drug.ID))

	_, err := svc.GetDrugByID(drug.ID)
	assert.ErrorIs(t, err, ErrDrugNotFound)
	store.mu.Lock()
	_, batchExists := store.batches[batch.ID]
	store.mu.Unlock()
	assert.False(t, batchExists, "deleting a drug cascades to its batches")

	require.Len(t, store.opLogs, 1)
	assert.Equal(t, ActionDeleteDrug, store.opLogs[0].Action)
}

func TestUpdateDrug_NotFound(t *testing.T) {
	svc, _ := newTestDrugService()
	_, err := svc.UpdateDrug(adminActor, 9999, CreateDrugRequest{Name: "X", Spec: "Y"})
	assert.ErrorIs(t, err, ErrDrugNotFound)
}
