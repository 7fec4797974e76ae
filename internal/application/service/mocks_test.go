package service

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/garyjia/procure-approval/internal/application/port"
	"github.com/garyjia/procure-approval/internal/domain/event"
	"github.com/garyjia/procure-approval/internal/domain/requisition"
)

// memoryRepo stores deep copies so each load sees committed state only
type memoryRepo struct {
	mu        sync.Mutex
	items     map[uuid.UUID]*requisition.Requisition
	saves     int
	saveErr   error
	lastQuery port.ListFilter
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{items: make(map[uuid.UUID]*requisition.Requisition)}
}

func (m *memoryRepo) Create(ctx context.Context, req *requisition.Requisition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	req.Version = 1
	m.items[req.ID] = cloneRequisition(req)
	return nil
}

func (m *memoryRepo) GetByID(ctx context.Context, id uuid.UUID) (*requisition.Requisition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.items[id]
	if !ok {
		return nil, port.ErrNotFound
	}
	cp := cloneRequisition(req)
	cp.Rehydrate()
	return cp, nil
}

func (m *memoryRepo) Save(ctx context.Context, req *requisition.Requisition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	stored, ok := m.items[req.ID]
	if !ok {
		return port.ErrNotFound
	}
	if stored.Version != req.Version {
		return port.ErrConcurrentModification
	}
	req.Version++
	m.items[req.ID] = cloneRequisition(req)
	m.saves++
	return nil
}

func (m *memoryRepo) ListByRequester(ctx context.Context, userID string, filter port.ListFilter) ([]*requisition.Requisition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastQuery = filter
	var out []*requisition.Requisition
	for _, r := range m.items {
		if r.RequesterID == userID {
			out = append(out, cloneRequisition(r))
		}
	}
	return out, nil
}

func (m *memoryRepo) ListByApprover(ctx context.Context, userID string, filter port.ListFilter) ([]*requisition.Requisition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastQuery = filter
	var out []*requisition.Requisition
	for _, r := range m.items {
		if r.IsDirector(userID) || r.IsManager(userID) {
			out = append(out, cloneRequisition(r))
		}
	}
	return out, nil
}

func (m *memoryRepo) CountByStatus(ctx context.Context) (map[requisition.Status]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := map[requisition.Status]int{}
	for _, r := range m.items {
		counts[r.Status]++
	}
	return counts, nil
}

func (m *memoryRepo) saveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

func cloneRequisition(r *requisition.Requisition) *requisition.Requisition {
	cp := *r
	cp.Managers = append([]string{}, r.Managers...)
	cp.Allocations = append([]requisition.Allocation{}, r.Allocations...)
	cp.Records = append([]requisition.ApprovalRecord{}, r.Records...)
	cp.Quotes = make([]*requisition.Quote, len(r.Quotes))
	for i, q := range r.Quotes {
		qc := *q
		qc.Items = append([]requisition.LineItem{}, q.Items...)
		qc.ManagerApprovals = append([]string{}, q.ManagerApprovals...)
		cp.Quotes[i] = &qc
	}
	return &cp
}

type mockTxManager struct {
	withTransactionFunc func(ctx context.Context, fn func(ctx context.Context) error) error
}

func (m *mockTxManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if m.withTransactionFunc != nil {
		return m.withTransactionFunc(ctx, fn)
	}
	return fn(ctx)
}

type mockPublisher struct {
	mu     sync.Mutex
	events []*event.Event
}

func (m *mockPublisher) Publish(ctx context.Context, events ...*event.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, events...)
	return nil
}

func (m *mockPublisher) types() []event.Type {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]event.Type, len(m.events))
	for i, e := range m.events {
		out[i] = e.Type
	}
	return out
}

type mockExporter struct {
	exported []uuid.UUID
}

func (m *mockExporter) ContentType() string   { return "text/plain" }
func (m *mockExporter) FileExtension() string { return "txt" }
func (m *mockExporter) Export(w io.Writer, req *requisition.Requisition) error {
	m.exported = append(m.exported, req.ID)
	_, err := io.WriteString(w, req.Description)
	return err
}

type mockObserver struct {
	mu      sync.Mutex
	results []string
}

func (m *mockObserver) ObserveDecision(seat, result string, elapsed time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = append(m.results, seat+":"+result)
}

type mockLogger struct{}

func (m *mockLogger) Info(msg string, keysAndValues ...interface{})  {}
func (m *mockLogger) Error(msg string, keysAndValues ...interface{}) {}

func draft(supplier string, price int64) requisition.QuoteDraft {
	return requisition.QuoteDraft{
		Supplier: supplier,
		Items:    []requisition.LineItem{{Description: "unit", Quantity: decimal.NewFromInt(1), UnitPrice: decimal.NewFromInt(price)}},
	}
}

func expenseInput(managers ...string) CreateInput {
	return CreateInput{
		Kind:        requisition.KindExpense,
		Description: "standing desks",
		DirectorID:  "d1",
		Managers:    managers,
		Allocations: []requisition.Allocation{{DepartmentID: "eng", Percentage: decimal.NewFromInt(100)}},
		Quotes:      []requisition.QuoteDraft{draft("A", 500), draft("B", 450), draft("C", 610)},
	}
}
