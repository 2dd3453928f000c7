package inventory

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-inventory/internal/shared"
)

type memState struct {
	warehouses map[uuid.UUID]Warehouse
	notes      map[uuid.UUID]ConsignmentNote
	txs        []Transaction
	reserves   []Reserve
}

func (s *memState) clone() *memState {
	out := &memState{
		warehouses: make(map[uuid.UUID]Warehouse, len(s.warehouses)),
		notes:      make(map[uuid.UUID]ConsignmentNote, len(s.notes)),
		txs:        append([]Transaction(nil), s.txs...),
		reserves:   append([]Reserve(nil), s.reserves...),
	}
	for k, v := range s.warehouses {
		out.warehouses[k] = v
	}
	for k, v := range s.notes {
		out.notes[k] = v
	}
	return out
}

// memoryRepo serialises every transaction behind one mutex and commits by
// swapping in the mutated copy of the state.
type memoryRepo struct {
	mu         sync.Mutex
	state      *memState
	commitErr  error
	commits    int
	rollbacks  int
	txObserver func(*memoryTx)
}

type memoryTx struct {
	*memState
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{state: &memState{
		warehouses: make(map[uuid.UUID]Warehouse),
		notes:      make(map[uuid.UUID]ConsignmentNote),
	}}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx := &memoryTx{memState: r.state.clone()}
	if r.txObserver != nil {
		r.txObserver(tx)
	}
	if err := fn(ctx, tx); err != nil {
		r.rollbacks++
		return err
	}
	if r.commitErr != nil {
		r.rollbacks++
		return r.commitErr
	}
	r.state = tx.memState
	r.commits++
	return nil
}

func (r *memoryRepo) read() *memState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.clone()
}

func (r *memoryRepo) GetWarehouse(ctx context.Context, productID uuid.UUID) (Warehouse, error) {
	return r.read().GetWarehouse(ctx, productID)
}

func (r *memoryRepo) ListWarehouses(ctx context.Context) ([]Warehouse, error) {
	return r.read().ListWarehouses(ctx)
}

func (r *memoryRepo) ListActiveReserves(ctx context.Context, productID uuid.UUID) ([]Reserve, error) {
	return r.read().ListActiveReserves(ctx, productID)
}

func (r *memoryRepo) ActiveOrderQuantities(ctx context.Context, productID uuid.UUID) (map[uuid.UUID]int64, error) {
	return r.read().ActiveOrderQuantities(ctx, productID)
}

func (r *memoryRepo) GetActiveReserve(ctx context.Context, orderID, productID uuid.UUID) (*Reserve, error) {
	return r.read().GetActiveReserve(ctx, orderID, productID)
}

func (r *memoryRepo) ListOrderReserves(ctx context.Context, orderID uuid.UUID) ([]Reserve, error) {
	return r.read().ListOrderReserves(ctx, orderID)
}

func (r *memoryRepo) GetTransaction(ctx context.Context, id uuid.UUID) (Transaction, error) {
	return r.read().GetTransaction(ctx, id)
}

func (r *memoryRepo) ListTransactions(ctx context.Context, filter TransactionFilter) ([]Transaction, error) {
	return r.read().ListTransactions(ctx, filter)
}

func (r *memoryRepo) GetConsignmentNote(ctx context.Context, id uuid.UUID) (ConsignmentNote, error) {
	return r.read().GetConsignmentNote(ctx, id)
}

func (s *memState) GetWarehouse(_ context.Context, productID uuid.UUID) (Warehouse, error) {
	wh, ok := s.warehouses[productID]
	if !ok {
		return Warehouse{}, ErrWarehouseNotFound
	}
	return wh, nil
}

func (s *memState) ListWarehouses(context.Context) ([]Warehouse, error) {
	out := make([]Warehouse, 0, len(s.warehouses))
	for _, wh := range s.warehouses {
		out = append(out, wh)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID.String() < out[j].ProductID.String() })
	return out, nil
}

func (s *memState) ListActiveReserves(_ context.Context, productID uuid.UUID) ([]Reserve, error) {
	var out []Reserve
	for _, r := range s.reserves {
		if r.ProductID == productID && r.IsActive {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *memState) ActiveOrderQuantities(_ context.Context, productID uuid.UUID) (map[uuid.UUID]int64, error) {
	out := make(map[uuid.UUID]int64)
	for _, t := range s.txs {
		if t.ProductID == productID && t.Type == TransactionTypeOrder && t.IsActive && t.OrderID != nil {
			out[*t.OrderID] += t.Quantity
		}
	}
	return out, nil
}

func (s *memState) GetActiveReserve(_ context.Context, orderID, productID uuid.UUID) (*Reserve, error) {
	for _, r := range s.reserves {
		if r.OrderID == orderID && r.ProductID == productID && r.IsActive {
			found := r
			return &found, nil
		}
	}
	return nil, nil
}

func (s *memState) ListOrderReserves(_ context.Context, orderID uuid.UUID) ([]Reserve, error) {
	var out []Reserve
	for _, r := range s.reserves {
		if r.OrderID == orderID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *memState) GetTransaction(_ context.Context, id uuid.UUID) (Transaction, error) {
	for _, t := range s.txs {
		if t.ID == id {
			return t, nil
		}
	}
	return Transaction{}, ErrTransactionNotFound
}

func (s *memState) ListTransactions(_ context.Context, filter TransactionFilter) ([]Transaction, error) {
	from, to := filter.Bounds()
	out := []Transaction{}
	for _, t := range s.txs {
		if filter.ProductID != nil && t.ProductID != *filter.ProductID {
			continue
		}
		if filter.OrderID != nil && (t.OrderID == nil || *t.OrderID != *filter.OrderID) {
			continue
		}
		if filter.ActiveOnly && !t.IsActive {
			continue
		}
		if !from.IsZero() && t.CreatedAt.Before(from) {
			continue
		}
		if !to.IsZero() && !t.CreatedAt.Before(to) {
			continue
		}
		out = append(out, t)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

func (s *memState) GetConsignmentNote(_ context.Context, id uuid.UUID) (ConsignmentNote, error) {
	note, ok := s.notes[id]
	if !ok {
		return ConsignmentNote{}, ErrConsignmentNoteNotFound
	}
	return note, nil
}

func (s *memState) LockWarehouse(ctx context.Context, productID uuid.UUID) (Warehouse, error) {
	return s.GetWarehouse(ctx, productID)
}

func (s *memState) InsertWarehouse(_ context.Context, wh Warehouse) (Warehouse, error) {
	if existing, ok := s.warehouses[wh.ProductID]; ok {
		return existing, nil
	}
	s.warehouses[wh.ProductID] = wh
	return wh, nil
}

func (s *memState) AddToTotalBalance(_ context.Context, productID uuid.UUID, delta int64, at time.Time) (int64, error) {
	wh, ok := s.warehouses[productID]
	if !ok {
		return 0, ErrWarehouseNotFound
	}
	wh.TotalBalance += delta
	wh.UpdatedAt = at
	s.warehouses[productID] = wh
	return wh.TotalBalance, nil
}

func (s *memState) InsertTransaction(_ context.Context, t Transaction) error {
	s.txs = append(s.txs, t)
	return nil
}

func (s *memState) LockTransaction(ctx context.Context, id uuid.UUID) (Transaction, error) {
	return s.GetTransaction(ctx, id)
}

func (s *memState) UpdateTransaction(_ context.Context, t Transaction) error {
	for i := range s.txs {
		if s.txs[i].ID == t.ID {
			s.txs[i].Quantity = t.Quantity
			s.txs[i].IsActive = t.IsActive
			s.txs[i].UpdatedAt = t.UpdatedAt
			return nil
		}
	}
	return ErrTransactionNotFound
}

func (s *memState) FindOrderTransaction(_ context.Context, orderID, productID uuid.UUID, typ TransactionType) (*Transaction, error) {
	var found *Transaction
	for i := len(s.txs) - 1; i >= 0; i-- {
		t := s.txs[i]
		if t.OrderID == nil || *t.OrderID != orderID || t.ProductID != productID || t.Type != typ {
			continue
		}
		if t.IsActive {
			return &t, nil
		}
		if found == nil {
			found = &t
		}
	}
	return found, nil
}

func (s *memState) InsertConsignmentNote(_ context.Context, note ConsignmentNote) error {
	for _, existing := range s.notes {
		if existing.Number == note.Number && existing.ConsignmentDate.Equal(note.ConsignmentDate) {
			return ErrDuplicateConsignmentNote
		}
	}
	s.notes[note.ID] = note
	return nil
}

func (s *memState) InsertReserve(_ context.Context, r Reserve) error {
	s.reserves = append(s.reserves, r)
	return nil
}

func (s *memState) UpdateReserve(_ context.Context, r Reserve) error {
	for i := range s.reserves {
		if s.reserves[i].ID == r.ID {
			s.reserves[i] = r
			return nil
		}
	}
	return ErrNotFound
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []StockEvent
}

func (p *recordingPublisher) Publish(_ context.Context, evt StockEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return nil
}

func (p *recordingPublisher) types() []EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]EventType, 0, len(p.events))
	for _, evt := range p.events {
		out = append(out, evt.Type)
	}
	return out
}

type recordingAudit struct {
	mu   sync.Mutex
	logs []shared.AuditLog
}

func (a *recordingAudit) Record(_ context.Context, log shared.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.logs = append(a.logs, log)
	return nil
}

type countingMetrics struct {
	mu           sync.Mutex
	insufficient map[string]int
	violations   map[string]int
	transitions  map[string]int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{insufficient: map[string]int{}, violations: map[string]int{}, transitions: map[string]int{}}
}

func (m *countingMetrics) InsufficientStock(op string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.insufficient[op]++
}

func (m *countingMetrics) ConsistencyViolation(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.violations[kind]++
}

func (m *countingMetrics) LifecycleTransition(status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transitions[status]++
}

type fixture struct {
	repo    *memoryRepo
	svc     *Service
	events  *recordingPublisher
	audit   *recordingAudit
	metrics *countingMetrics
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		repo:    newMemoryRepo(),
		events:  &recordingPublisher{},
		audit:   &recordingAudit{},
		metrics: newCountingMetrics(),
	}
	f.svc = NewService(Dependencies{Repo: f.repo, Events: f.events, Audit: f.audit, Metrics: f.metrics})
	return f
}

// stocked creates a warehouse for a new product and records an arrival of qty.
func (f *fixture) stocked(t *testing.T, qty int64) uuid.UUID {
	t.Helper()
	ctx := context.Background()
	productID := uuid.New()
	_, err := f.svc.EnsureWarehouse(ctx, productID)
	require.NoError(t, err)
	if qty > 0 {
		_, err = f.svc.Ledger.RecordTransaction(ctx, RecordInput{ProductID: productID, Type: TransactionTypeArrival, Quantity: qty})
		require.NoError(t, err)
	}
	return productID
}

func (f *fixture) balance(t *testing.T, productID uuid.UUID) Balance {
	t.Helper()
	bal, err := f.svc.Balances.GetBalance(context.Background(), productID)
	require.NoError(t, err)
	return bal
}

// requireConserved checks the cached total against the signed ledger sum.
func (f *fixture) requireConserved(t *testing.T, productID uuid.UUID) {
	t.Helper()
	violations, err := f.svc.Balances.CheckConsistency(context.Background(), productID)
	require.NoError(t, err)
	require.Empty(t, violations)
}
