package services_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/yashrajoria/stock-ledger/services/inventory-service/models"
	"github.com/yashrajoria/stock-ledger/services/inventory-service/repository"
	"github.com/yashrajoria/stock-ledger/services/inventory-service/services"
)

type published struct {
	eventType string
	key       string
	payload   any
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []published
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, eventType, key string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, published{eventType, key, payload})
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) ofType(eventType string) []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []published
	for _, e := range p.events {
		if e.eventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

type countingMetrics struct {
	mu     sync.Mutex
	counts map[string]int
	dims   map[string][]map[string]string
	values map[string][]float64
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{counts: map[string]int{}, dims: map[string][]map[string]string{}, values: map[string][]float64{}}
}

func (m *countingMetrics) RecordCount(_ context.Context, name string, dims map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts[name]++
	m.dims[name] = append(m.dims[name], dims)
	return nil
}

func (m *countingMetrics) RecordValue(_ context.Context, name string, value float64, _ map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[name] = append(m.values[name], value)
	return nil
}

func (m *countingMetrics) count(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[name]
}

type fixture struct {
	store     *repository.MemoryStockStore
	settings  *repository.StaticSettingsRepository
	pub       *recordingPublisher
	metrics   *countingMetrics
	ledger    *services.StockLedger
	transfers *services.TransferOrchestrator
	lowStock  *services.LowStockReporter
	dir       *services.WarehouseService
	notifier  *services.Notifier

	east, west, closed models.Warehouse
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:    repository.NewMemoryStockStore(),
		settings: repository.NewStaticSettingsRepository(map[string]string{models.SettingLowStockThreshold: "5"}),
		pub:      &recordingPublisher{},
		metrics:  newCountingMetrics(),
		east:     models.Warehouse{ID: uuid.New(), Name: "East", Code: "EAST", IsActive: true},
		west:     models.Warehouse{ID: uuid.New(), Name: "West", Code: "WEST", IsActive: true},
		closed:   models.Warehouse{ID: uuid.New(), Name: "Closed", Code: "CLOSED"},
	}
	f.dir = services.NewWarehouseService(repository.NewMemoryWarehouseRepository(f.east, f.west, f.closed), nil)
	f.lowStock = services.NewLowStockReporter(f.store, f.settings, 10, f.metrics, nil)
	f.notifier = services.NewNotifier(f.pub, f.lowStock, f.metrics, nil)
	f.ledger = services.NewStockLedger(f.store, f.dir, f.notifier, f.metrics, nil)
	f.transfers = services.NewTransferOrchestrator(f.store, f.dir, f.notifier, f.metrics, nil)
	return f
}

func (f *fixture) stockIn(t *testing.T, wh uuid.UUID, item uuid.UUID, qty int64) *models.StockRecord {
	t.Helper()
	rec, err := f.ledger.StockIn(context.Background(), &models.StockInRequest{WarehouseID: wh, ItemID: item, Quantity: qty})
	if err != nil {
		t.Fatalf("stock in: %v", err)
	}
	return rec
}

// failingStore fails every transaction with err.
type failingStore struct {
	repository.StockStore
	err error
}

func (s failingStore) RunInTx(context.Context, func(repository.StockTx) error) error {
	return s.err
}

func (s failingStore) ScanStock(context.Context, int, func([]models.StockRecord) error) error {
	return s.err
}

var errStoreDown = errors.New("store down")

// interruptingStore runs transactions on the wrapped store and lets hooks
// fail individual writes inside them.
type interruptingStore struct {
	repository.StockStore
	beforeSave   func(ctx context.Context, rec *models.StockRecord) error
	beforeAppend func(ctx context.Context, e *models.MovementLogEntry) error
}

func (s interruptingStore) RunInTx(ctx context.Context, fn func(repository.StockTx) error) error {
	return s.StockStore.RunInTx(ctx, func(tx repository.StockTx) error {
		return fn(interruptingTx{StockTx: tx, store: s})
	})
}

type interruptingTx struct {
	repository.StockTx
	store interruptingStore
}

func (t interruptingTx) SaveStock(ctx context.Context, rec *models.StockRecord) error {
	if t.store.beforeSave != nil {
		if err := t.store.beforeSave(ctx, rec); err != nil {
			return err
		}
	}
	return t.StockTx.SaveStock(ctx, rec)
}

func (t interruptingTx) AppendLog(ctx context.Context, e *models.MovementLogEntry) error {
	if t.store.beforeAppend != nil {
		if err := t.store.beforeAppend(ctx, e); err != nil {
			return err
		}
	}
	return t.StockTx.AppendLog(ctx, e)
}
