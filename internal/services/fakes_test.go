package services

import (
	"database/sql"
	"sort"
	"strings"
	"sync"
	"time"

	"pharmacy_backend/internal/models"
	"pharmacy_backend/internal/repositories"
)

// fakeStore backs the in-memory repository fakes used by the service tests.
// All fakes share one store so cross-repository effects (batches plus ledger
// rows) can be asserted together.
type fakeStore struct {
	mu            sync.Mutex
	nextID        int64
	drugs         map[int64]*models.Drug
	batches       map[int64]*models.DrugBatch
	transactions  []models.InventoryTransaction
	prescriptions map[int64]*models.Prescription
	items         map[int64][]models.PrescriptionItem
	opLogs        []models.OperationLog
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		nextID:        1,
		drugs:         make(map[int64]*models.Drug),
		batches:       make(map[int64]*models.DrugBatch),
		prescriptions: make(map[int64]*models.Prescription),
		items:         make(map[int64][]models.PrescriptionItem),
	}
}

func (s *fakeStore) id() int64 {
	id := s.nextID
	s.nextID++
	return id
}

func (s *fakeStore) addDrug(name, spec string) *models.Drug {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := &models.Drug{ID: s.id(), Name: name, Spec: spec}
	s.drugs[d.ID] = d
	return d
}

func (s *fakeStore) addBatch(drugID int64, batchNumber string, expiration time.Time, quantity int) *models.DrugBatch {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := &models.DrugBatch{
		ID:             s.id(),
		DrugID:         drugID,
		BatchNumber:    batchNumber,
		ProductionDate: expiration.AddDate(-2, 0, 0),
		ExpirationDate: expiration,
		Quantity:       quantity,
		Version:        1,
	}
	s.batches[b.ID] = b
	return b
}

func (s *fakeStore) batchQuantity(id int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.batches[id].Quantity
}

type storeSnapshot struct {
	nextID        int64
	drugs         map[int64]models.Drug
	batches       map[int64]models.DrugBatch
	transactions  []models.InventoryTransaction
	prescriptions map[int64]models.Prescription
	items         map[int64][]models.PrescriptionItem
	opLogs        []models.OperationLog
}

func (s *fakeStore) snapshot() storeSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := storeSnapshot{
		nextID:        s.nextID,
		drugs:         make(map[int64]models.Drug, len(s.drugs)),
		batches:       make(map[int64]models.DrugBatch, len(s.batches)),
		transactions:  append([]models.InventoryTransaction(nil), s.transactions...),
		prescriptions: make(map[int64]models.Prescription, len(s.prescriptions)),
		items:         make(map[int64][]models.PrescriptionItem, len(s.items)),
		opLogs:        append([]models.OperationLog(nil), s.opLogs...),
	}
	for id, d := range s.drugs {
		snap.drugs[id] = *d
	}
	for id, b := range s.batches {
		snap.batches[id] = *b
	}
	for id, p := range s.prescriptions {
		snap.prescriptions[id] = *p
	}
	for id, items := range s.items {
		snap.items[id] = append([]models.PrescriptionItem(nil), items...)
	}
	return snap
}

func (s *fakeStore) restore(snap storeSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID = snap.nextID
	s.drugs = make(map[int64]*models.Drug, len(snap.drugs))
	for id, d := range snap.drugs {
		copied := d
		s.drugs[id] = &copied
	}
	s.batches = make(map[int64]*models.DrugBatch, len(snap.batches))
	for id, b := range snap.batches {
		copied := b
		s.batches[id] = &copied
	}
	s.transactions = append([]models.InventoryTransaction(nil), snap.transactions...)
	s.prescriptions = make(map[int64]*models.Prescription, len(snap.prescriptions))
	for id, p := range snap.prescriptions {
		copied := p
		s.prescriptions[id] = &copied
	}
	s.items = make(map[int64][]models.PrescriptionItem, len(snap.items))
	for id, items := range snap.items {
		s.items[id] = append([]models.PrescriptionItem(nil), items...)
	}
	s.opLogs = append([]models.OperationLog(nil), snap.opLogs...)
}

// fakeTxRunner mimics transactional semantics over the fake store: the store
// is snapshotted before fn runs and restored if fn fails, so partial writes
// never survive a failed operation. Transactions run one at a time, so
// goroutines racing through WithinTx commit in some serial order.
type fakeTxRunner struct {
	store *fakeStore
	mu    sync.Mutex
	// beforeTx, when set, runs once before the next transaction begins,
	// standing in for a competing writer that commits first.
	beforeTx func()
}

func (r *fakeTxRunner) WithinTx(fn func(executor repositories.SQLExecutor) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.beforeTx != nil {
		hook := r.beforeTx
		r.beforeTx = nil
		hook()
	}
	snap := r.store.snapshot()
	if err := fn(fakeExecutor{}); err != nil {
		r.store.restore(snap)
		return err
	}
	return nil
}

// fakeExecutor satisfies repositories.SQLExecutor; the fakes never touch it.
type fakeExecutor struct{}

func (fakeExecutor) Exec(query string, args ...interface{}) (sql.Result, error) { return nil, nil }
func (fakeExecutor) QueryRow(query string, args ...interface{}) *sql.Row        { return nil }
func (fakeExecutor) Query(query string, args ...interface{}) (*sql.Rows, error) { return nil, nil }

// --- Drug repository fake ---

type fakeDrugRepo struct {
	store *fakeStore
}

func (r *fakeDrugRepo) CreateDrug(_ repositories.SQLExecutor, drug *models.Drug) (int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, d := range r.store.drugs {
		if d.Name == drug.Name && d.Spec == drug.Spec {
			return 0, repositories.ErrDuplicateKey
		}
	}
	drug.ID = r.store.id()
	copied := *drug
	r.store.drugs[drug.ID] = &copied
	return drug.ID, nil
}

func (r *fakeDrugRepo) GetDrugByID(id int64) (*models.Drug, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	d, ok := r.store.drugs[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	copied := *d
	total := 0
	for _, b := range r.store.batches {
		if b.DrugID == id {
			total += b.Quantity
		}
	}
	copied.TotalStock = &total
	return &copied, nil
}

func (r *fakeDrugRepo) GetDrugs(filters models.DrugFilters) ([]models.Drug, int, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var out []models.Drug
	for _, d := range r.store.drugs {
		if filters.Name != nil && !strings.Contains(strings.ToLower(d.Name), strings.ToLower(*filters.Name)) {
			continue
		}
		copied := *d
		total := 0
		for _, b := range r.store.batches {
			if b.DrugID == d.ID {
				total += b.Quantity
			}
		}
		copied.TotalStock = &total
		out = append(out, copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, len(out), nil
}

func (r *fakeDrugRepo) UpdateDrug(_ repositories.SQLExecutor, drug *models.Drug) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, ok := r.store.drugs[drug.ID]; !ok {
		return repositories.ErrNotFound
	}
	copied := *drug
	r.store.drugs[drug.ID] = &copied
	return nil
}

func (r *fakeDrugRepo) DeleteDrug(_ repositories.SQLExecutor, id int64) (int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, ok := r.store.drugs[id]; !ok {
		return 0, repositories.ErrNotFound
	}
	delete(r.store.drugs, id)
	for bid, b := range r.store.batches {
		if b.DrugID == id {
			delete(r.store.batches, bid)
		}
	}
	return 1, nil
}

func (r *fakeDrugRepo) DistinctSuppliers() ([]string, error) {
	return nil, nil
}

// --- Batch repository fake ---

type fakeBatchRepo struct {
	store *fakeStore
	// conflictsToInject forces the next N UpdateBatchQuantity calls to fail
	// with ErrConcurrencyConflict, simulating a concurrent writer.
	mu                sync.Mutex
	conflictsToInject int
	updateCalls       int
}

func (r *fakeBatchRepo) CreateBatch(_ repositories.SQLExecutor, batch *models.DrugBatch) (int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, ok := r.store.drugs[batch.DrugID]; !ok {
		return 0, repositories.ErrNotFound
	}
	for _, b := range r.store.batches {
		if b.DrugID == batch.DrugID && b.BatchNumber == batch.BatchNumber {
			return 0, repositories.ErrDuplicateKey
		}
	}
	batch.ID = r.store.id()
	batch.Version = 1
	copied := *batch
	r.store.batches[batch.ID] = &copied
	return batch.ID, nil
}

func (r *fakeBatchRepo) GetBatchByID(id int64) (*models.DrugBatch, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	b, ok := r.store.batches[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	copied := *b
	return &copied, nil
}

func (r *fakeBatchRepo) sortedBatches(drugID int64) []models.DrugBatch {
	var out []models.DrugBatch
	for _, b := range r.store.batches {
		if b.DrugID == drugID {
			out = append(out, *b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ExpirationDate.Equal(out[j].ExpirationDate) {
			return out[i].ExpirationDate.Before(out[j].ExpirationDate)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (r *fakeBatchRepo) GetBatchesByDrugID(drugID int64) ([]models.DrugBatch, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	return r.sortedBatches(drugID), nil
}

func (r *fakeBatchRepo) GetBatchesForConsumption(_ repositories.SQLExecutor, drugID int64) ([]models.DrugBatch, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	return r.sortedBatches(drugID), nil
}

func (r *fakeBatchRepo) UpdateBatchQuantity(_ repositories.SQLExecutor, batchID int64, newQuantity int, expectedVersion int64) error {
	r.mu.Lock()
	r.updateCalls++
	if r.conflictsToInject > 0 {
		r.conflictsToInject--
		r.mu.Unlock()
		return repositories.ErrConcurrencyConflict
	}
	r.mu.Unlock()

	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	b, ok := r.store.batches[batchID]
	if !ok {
		return repositories.ErrNotFound
	}
	if b.Version != expectedVersion {
		return repositories.ErrConcurrencyConflict
	}
	b.Quantity = newQuantity
	b.Version++
	return nil
}

func (r *fakeBatchRepo) TotalStock(drugID int64) (int, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	total := 0
	for _, b := range r.store.batches {
		if b.DrugID == drugID {
			total += b.Quantity
		}
	}
	return total, nil
}

func (r *fakeBatchRepo) ExpiringBatches(before time.Time) ([]models.DrugBatch, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var out []models.DrugBatch
	for _, b := range r.store.batches {
		if b.Quantity > 0 && b.ExpirationDate.Before(before) {
			out = append(out, *b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpirationDate.Before(out[j].ExpirationDate) })
	return out, nil
}

// --- Transaction repository fake ---

type fakeTransactionRepo struct {
	store *fakeStore
}

func (r *fakeTransactionRepo) CreateTransaction(_ repositories.SQLExecutor, txn *models.InventoryTransaction) (int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	txn.ID = r.store.id()
	r.store.transactions = append(r.store.transactions, *txn)
	return txn.ID, nil
}

func (r *fakeTransactionRepo) GetByDrugID(drugID int64, page, pageSize int) ([]models.InventoryTransaction, int, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var out []models.InventoryTransaction
	for _, t := range r.store.transactions {
		if t.DrugID == drugID {
			out = append(out, t)
		}
	}
	return out, len(out), nil
}

func (r *fakeTransactionRepo) SumOutbound(drugID int64, from, to time.Time) (int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var total int64
	for _, t := range r.store.transactions {
		if t.DrugID == drugID && t.Type == models.TransactionOutbound &&
			!t.TransactionTime.Before(from) && !t.TransactionTime.After(to) {
			total += int64(-t.QuantityChange)
		}
	}
	return total, nil
}

func (r *fakeTransactionRepo) ConsumptionSummary(from, to time.Time) ([]models.DrugConsumption, error) {
	return nil, nil
}

// transactionsOfType returns the stored ledger rows with the given type for a
// drug, oldest first.
func (s *fakeStore) transactionsOfType(drugID int64, txType string) []models.InventoryTransaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.InventoryTransaction
	for _, t := range s.transactions {
		if t.DrugID == drugID && t.Type == txType {
			out = append(out, t)
		}
	}
	return out
}

// --- Prescription repository fake ---

type fakePrescriptionRepo struct {
	store *fakeStore
}

func (r *fakePrescriptionRepo) CreatePrescription(_ repositories.SQLExecutor, p *models.Prescription) (int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	p.ID = r.store.id()
	copied := *p
	r.store.prescriptions[p.ID] = &copied
	return p.ID, nil
}

func (r *fakePrescriptionRepo) CreatePrescriptionItem(_ repositories.SQLExecutor, item *models.PrescriptionItem) (int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	item.ID = r.store.id()
	r.store.items[item.PrescriptionID] = append(r.store.items[item.PrescriptionID], *item)
	return item.ID, nil
}

func (r *fakePrescriptionRepo) GetPrescriptionByID(id int64) (*models.Prescription, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	p, ok := r.store.prescriptions[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	copied := *p
	return &copied, nil
}

func (r *fakePrescriptionRepo) GetItemsByPrescriptionID(prescriptionID int64) ([]models.PrescriptionItem, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	return append([]models.PrescriptionItem(nil), r.store.items[prescriptionID]...), nil
}

func (r *fakePrescriptionRepo) GetPrescriptions(filters models.PrescriptionFilters) ([]models.Prescription, int, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var out []models.Prescription
	for _, p := range r.store.prescriptions {
		if filters.Status != nil && p.Status != *filters.Status {
			continue
		}
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, len(out), nil
}

func (r *fakePrescriptionRepo) UpdateStatus(_ repositories.SQLExecutor, prescriptionID int64, newStatus, expectedStatus string, updatedAt time.Time) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	p, ok := r.store.prescriptions[prescriptionID]
	if !ok {
		return repositories.ErrNotFound
	}
	if p.Status != expectedStatus {
		return repositories.ErrConcurrencyConflict
	}
	p.Status = newStatus
	p.UpdatedAt = updatedAt
	return nil
}

// --- Operation log repository fake ---

type fakeOperationLogRepo struct {
	store *fakeStore
}

func (r *fakeOperationLogRepo) CreateLog(_ repositories.SQLExecutor, entry *models.OperationLog) (int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	entry.ID = r.store.id()
	r.store.opLogs = append(r.store.opLogs, *entry)
	return entry.ID, nil
}

func (r *fakeOperationLogRepo) GetLogs(page, pageSize int) ([]models.OperationLog, int, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	return append([]models.OperationLog(nil), r.store.opLogs...), len(r.store.opLogs), nil
}

// --- Common test actors ---

var (
	adminActor      = models.Actor{UserID: 1, Username: "alice", Role: models.RoleAdmin}
	pharmacistActor = models.Actor{UserID: 2, Username: "bob", Role: models.RolePharmacist}
	doctorActor     = models.Actor{UserID: 3, Username: "carol", Role: models.RoleDoctor}
)
