package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/hashicorp/go-memdb"
	"github.com/yashrajoria/stock-ledger/services/inventory-service/models"
)

const (
	stockTable     = "stock"
	movementsTable = "movements"
)

// stockRow keys a record by the hex form of its pair. Hex strings sort the
// same way as the raw UUID bytes, so the id index iterates in StockKey order.
type stockRow struct {
	Key    string
	ItemID string
	Record models.StockRecord
}

func stockRowKey(k models.StockKey) string { return k.String() }

func newStockRow(rec models.StockRecord) *stockRow {
	return &stockRow{
		Key:    stockRowKey(models.StockKey{WarehouseID: rec.WarehouseID, ItemID: rec.ItemID}),
		ItemID: rec.ItemID.String(),
		Record: rec,
	}
}

// movementRow is keyed by a zero-padded append sequence so the id index
// iterates in insertion order.
type movementRow struct {
	Seq   string
	Pair  string
	Entry models.MovementLogEntry
}

var stockSchema = &memdb.DBSchema{
	Tables: map[string]*memdb.TableSchema{
		stockTable: {
			Name: stockTable,
			Indexes: map[string]*memdb.IndexSchema{
				"id":   {Name: "id", Unique: true, Indexer: &memdb.StringFieldIndex{Field: "Key"}},
				"item": {Name: "item", Indexer: &memdb.StringFieldIndex{Field: "ItemID"}},
			},
		},
		movementsTable: {
			Name: movementsTable,
			Indexes: map[string]*memdb.IndexSchema{
				"id":   {Name: "id", Unique: true, Indexer: &memdb.StringFieldIndex{Field: "Seq"}},
				"pair": {Name: "pair", Indexer: &memdb.StringFieldIndex{Field: "Pair"}},
			},
		},
	},
}

func mustMemDB(schema *memdb.DBSchema) *memdb.MemDB {
	db, err := memdb.NewMemDB(schema)
	if err != nil {
		panic(fmt.Sprintf("memdb schema: %v", err))
	}
	return db
}

// MemoryStockStore is an in-process StockStore for local runs and tests.
// memdb admits one write transaction at a time and only publishes its
// writes on commit, so a failed or cancelled transaction leaves no trace.
// Reads run against snapshots and never wait for a writer.
type MemoryStockStore struct {
	db  *memdb.MemDB
	seq atomic.Uint64
}

func NewMemoryStockStore() *MemoryStockStore {
	return &MemoryStockStore{db: mustMemDB(stockSchema)}
}

// Seed stores rec as-is, bypassing the ledger. Useful for fixtures that
// need reserved quantities.
func (s *MemoryStockStore) Seed(rec models.StockRecord) {
	txn := s.db.Txn(true)
	defer txn.Abort()
	if err := txn.Insert(stockTable, newStockRow(rec)); err != nil {
		panic(fmt.Sprintf("seed stock %s: %v", rec.ID, err))
	}
	txn.Commit()
}

func (s *MemoryStockStore) RunInTx(ctx context.Context, fn func(tx StockTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	txn := s.db.Txn(true)
	defer txn.Abort()

	tx := &memoryStockTx{store: s, txn: txn, locked: make(map[models.StockKey]int64)}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	txn.Commit()
	return nil
}

func (s *MemoryStockStore) GetStock(_ context.Context, key models.StockKey) (*models.StockRecord, error) {
	return getStock(s.db.Txn(false), key)
}

func getStock(txn *memdb.Txn, key models.StockKey) (*models.StockRecord, error) {
	raw, err := txn.First(stockTable, "id", stockRowKey(key))
	if err != nil {
		return nil, fmt.Errorf("memdb stock lookup: %w", err)
	}
	if raw == nil {
		return nil, ErrNotFound
	}
	rec := raw.(*stockRow).Record
	return &rec, nil
}

func (s *MemoryStockStore) ListByItem(_ context.Context, itemID uuid.UUID) ([]models.StockRecord, error) {
	it, err := s.db.Txn(false).Get(stockTable, "item", itemID.String())
	if err != nil {
		return nil, fmt.Errorf("memdb stock by item: %w", err)
	}
	var out []models.StockRecord
	for raw := it.Next(); raw != nil; raw = it.Next() {
		out = append(out, raw.(*stockRow).Record)
	}
	sortRecords(out)
	return out, nil
}

// ScanStock walks one snapshot, so rows committed mid-scan are not seen.
func (s *MemoryStockStore) ScanStock(ctx context.Context, batchSize int, fn func([]models.StockRecord) error) error {
	if batchSize <= 0 {
		batchSize = 500
	}

	it, err := s.db.Txn(false).Get(stockTable, "id")
	if err != nil {
		return fmt.Errorf("memdb stock scan: %w", err)
	}

	batch := make([]models.StockRecord, 0, batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(batch); err != nil {
			return err
		}
		batch = make([]models.StockRecord, 0, batchSize)
		return nil
	}
	for raw := it.Next(); raw != nil; raw = it.Next() {
		batch = append(batch, raw.(*stockRow).Record)
		if len(batch) == batchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	return flush()
}

func (s *MemoryStockStore) ListLogs(_ context.Context, filter models.LogFilter) ([]models.MovementLogEntry, error) {
	filter = filter.Normalize()

	txn := s.db.Txn(false)
	var (
		it  memdb.ResultIterator
		err error
	)
	if filter.PinsPair() {
		pair := models.StockKey{WarehouseID: *filter.WarehouseID, ItemID: *filter.ItemID}
		it, err = txn.Get(movementsTable, "pair", stockRowKey(pair))
	} else {
		it, err = txn.Get(movementsTable, "id")
	}
	if err != nil {
		return nil, fmt.Errorf("memdb movement logs: %w", err)
	}

	var out []models.MovementLogEntry
	for raw := it.Next(); raw != nil; raw = it.Next() {
		e := raw.(*movementRow).Entry
		if filter.Matches(&e) {
			out = append(out, e)
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return filter.NewestFirst(&out[i], &out[j]) })
	if len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func sortRecords(recs []models.StockRecord) {
	sort.Slice(recs, func(i, j int) bool {
		return models.StockKey{WarehouseID: recs[i].WarehouseID, ItemID: recs[i].ItemID}.
			Less(models.StockKey{WarehouseID: recs[j].WarehouseID, ItemID: recs[j].ItemID})
	})
}

// memoryStockTx reads through the write transaction, so it sees its own
// uncommitted rows. Stored rows are never mutated; every save inserts a copy.
type memoryStockTx struct {
	store  *MemoryStockStore
	txn    *memdb.Txn
	locked map[models.StockKey]int64
}

func (t *memoryStockTx) LockStock(_ context.Context, key models.StockKey) (*models.StockRecord, error) {
	rec, err := getStock(t.txn, key)
	if err != nil {
		return nil, err
	}
	t.locked[key] = rec.Version
	return rec, nil
}

func (t *memoryStockTx) LockOrCreateStock(ctx context.Context, key models.StockKey) (*models.StockRecord, error) {
	_, err := getStock(t.txn, key)
	switch {
	case errors.Is(err, ErrNotFound):
		fresh := models.NewStockRecord(key.WarehouseID, key.ItemID, now())
		if err := t.txn.Insert(stockTable, newStockRow(*fresh)); err != nil {
			return nil, fmt.Errorf("memdb create stock: %w", err)
		}
	case err != nil:
		return nil, err
	}
	return t.LockStock(ctx, key)
}

func (t *memoryStockTx) SaveStock(_ context.Context, rec *models.StockRecord) error {
	key := models.StockKey{WarehouseID: rec.WarehouseID, ItemID: rec.ItemID}
	v, ok := t.locked[key]
	if !ok || v != rec.Version-1 {
		return ErrConflict
	}
	if err := t.txn.Insert(stockTable, newStockRow(*rec)); err != nil {
		return fmt.Errorf("memdb save stock: %w", err)
	}
	t.locked[key] = rec.Version
	return nil
}

func (t *memoryStockTx) AppendLog(_ context.Context, entry *models.MovementLogEntry) error {
	row := &movementRow{
		Seq:   fmt.Sprintf("%020d", t.store.seq.Add(1)),
		Pair:  stockRowKey(models.StockKey{WarehouseID: entry.WarehouseID, ItemID: entry.ItemID}),
		Entry: *entry,
	}
	if err := t.txn.Insert(movementsTable, row); err != nil {
		return fmt.Errorf("memdb append log: %w", err)
	}
	return nil
}
