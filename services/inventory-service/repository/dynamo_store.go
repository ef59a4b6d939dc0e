package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
	"github.com/yashrajoria/stock-ledger/services/inventory-service/models"
)

// DynamoAPI is the subset of the DynamoDB client the store uses.
type DynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

const (
	StockKeyAttr    = "stock_key"
	MovementKeyAttr = "id"

	defaultDynamoAttempts = 5
)

// DynamoStockStore keeps the ledger in two DynamoDB tables. Rows carry a
// version; a transaction reads them consistently, stages its writes and
// commits everything with TransactWriteItems conditioned on the versions it
// read. A lost race restarts the whole transaction from fresh reads.
type DynamoStockStore struct {
	client         DynamoAPI
	stockTable     string
	movementsTable string
	maxAttempts    int
	backoff        time.Duration
}

func NewDynamoStockStore(client DynamoAPI, stockTable, movementsTable string) *DynamoStockStore {
	return &DynamoStockStore{
		client:         client,
		stockTable:     stockTable,
		movementsTable: movementsTable,
		maxAttempts:    defaultDynamoAttempts,
		backoff:        20 * time.Millisecond,
	}
}

type ddbStock struct {
	StockKey         string `dynamodbav:"stock_key"`
	ID               string `dynamodbav:"id"`
	WarehouseID      string `dynamodbav:"warehouse_id"`
	ItemID           string `dynamodbav:"item_id"`
	Quantity         int64  `dynamodbav:"quantity"`
	ReservedQuantity int64  `dynamodbav:"reserved_quantity"`
	Version          int64  `dynamodbav:"version"`
	LastUpdated      string `dynamodbav:"last_updated"`
}

type ddbMovement struct {
	ID             string  `dynamodbav:"id"`
	WarehouseID    string  `dynamodbav:"warehouse_id"`
	ItemID         string  `dynamodbav:"item_id"`
	MovementType   string  `dynamodbav:"movement_type"`
	QuantityDelta  int64   `dynamodbav:"quantity_delta"`
	QuantityBefore int64   `dynamodbav:"quantity_before"`
	QuantityAfter  int64   `dynamodbav:"quantity_after"`
	Note           *string `dynamodbav:"note,omitempty"`
	ActorID        *string `dynamodbav:"actor_id,omitempty"`
	Version        int64   `dynamodbav:"version"`
	CreatedAt      string  `dynamodbav:"created_at"`
}

func toDDBStock(rec *models.StockRecord) ddbStock {
	return ddbStock{
		StockKey:         models.StockKey{WarehouseID: rec.WarehouseID, ItemID: rec.ItemID}.String(),
		ID:               rec.ID.String(),
		WarehouseID:      rec.WarehouseID.String(),
		ItemID:           rec.ItemID.String(),
		Quantity:         rec.Quantity,
		ReservedQuantity: rec.ReservedQuantity,
		Version:          rec.Version,
		LastUpdated:      rec.LastUpdated.UTC().Format(time.RFC3339Nano),
	}
}

func (d ddbStock) toModel() (*models.StockRecord, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return nil, fmt.Errorf("stock %s: bad id: %w", d.StockKey, err)
	}
	wh, err := uuid.Parse(d.WarehouseID)
	if err != nil {
		return nil, fmt.Errorf("stock %s: bad warehouse_id: %w", d.StockKey, err)
	}
	item, err := uuid.Parse(d.ItemID)
	if err != nil {
		return nil, fmt.Errorf("stock %s: bad item_id: %w", d.StockKey, err)
	}
	rec := &models.StockRecord{
		ID:               id,
		WarehouseID:      wh,
		ItemID:           item,
		Quantity:         d.Quantity,
		ReservedQuantity: d.ReservedQuantity,
		Version:          d.Version,
	}
	if t, err := time.Parse(time.RFC3339Nano, d.LastUpdated); err == nil {
		rec.LastUpdated = t
	}
	return rec, nil
}

func toDDBMovement(e *models.MovementLogEntry) ddbMovement {
	return ddbMovement{
		ID:             e.ID.String(),
		WarehouseID:    e.WarehouseID.String(),
		ItemID:         e.ItemID.String(),
		MovementType:   string(e.MovementType),
		QuantityDelta:  e.QuantityDelta,
		QuantityBefore: e.QuantityBefore,
		QuantityAfter:  e.QuantityAfter,
		Note:           e.Note,
		ActorID:        e.ActorID,
		Version:        e.Version,
		CreatedAt:      e.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func (d ddbMovement) toModel() (*models.MovementLogEntry, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return nil, fmt.Errorf("movement %s: bad id: %w", d.ID, err)
	}
	wh, err := uuid.Parse(d.WarehouseID)
	if err != nil {
		return nil, fmt.Errorf("movement %s: bad warehouse_id: %w", d.ID, err)
	}
	item, err := uuid.Parse(d.ItemID)
	if err != nil {
		return nil, fmt.Errorf("movement %s: bad item_id: %w", d.ID, err)
	}
	e := &models.MovementLogEntry{
		ID:             id,
		WarehouseID:    wh,
		ItemID:         item,
		MovementType:   models.MovementType(d.MovementType),
		QuantityDelta:  d.QuantityDelta,
		QuantityBefore: d.QuantityBefore,
		QuantityAfter:  d.QuantityAfter,
		Note:           d.Note,
		ActorID:        d.ActorID,
		Version:        d.Version,
	}
	if t, err := time.Parse(time.RFC3339Nano, d.CreatedAt); err == nil {
		e.CreatedAt = t
	}
	return e, nil
}

func (s *DynamoStockStore) RunInTx(ctx context.Context, fn func(tx StockTx) error) error {
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		tx := &dynamoStockTx{
			store: s,
			rows:  make(map[models.StockKey]*dynamoRow),
		}
		if err := fn(tx); err != nil {
			return err
		}

		err := s.commit(ctx, tx)
		if err == nil {
			return nil
		}
		if !isWriteConflict(err) {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * s.backoff):
		}
	}
	return ErrConflict
}

func (s *DynamoStockStore) commit(ctx context.Context, tx *dynamoStockTx) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var items []types.TransactWriteItem

	keys := make([]models.StockKey, 0, len(tx.rows))
	for k := range tx.rows {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })

	for _, k := range keys {
		row := tx.rows[k]
		switch {
		case row.dirty:
			av, err := attributevalue.MarshalMap(toDDBStock(row.rec))
			if err != nil {
				return fmt.Errorf("marshal stock: %w", err)
			}
			put := &types.Put{TableName: aws.String(s.stockTable), Item: av}
			if row.isNew {
				put.ConditionExpression = aws.String("attribute_not_exists(#sk)")
				put.ExpressionAttributeNames = map[string]string{"#sk": StockKeyAttr}
			} else {
				put.ConditionExpression = aws.String("#v = :v")
				put.ExpressionAttributeNames = map[string]string{"#v": "version"}
				put.ExpressionAttributeValues = map[string]types.AttributeValue{
					":v": &types.AttributeValueMemberN{Value: strconv.FormatInt(row.readVersion, 10)},
				}
			}
			items = append(items, types.TransactWriteItem{Put: put})
		case !row.isNew:
			// Locked but unchanged: the commit still depends on it.
			items = append(items, types.TransactWriteItem{ConditionCheck: &types.ConditionCheck{
				TableName:                aws.String(s.stockTable),
				Key:                      stockKeyAttr(k),
				ConditionExpression:      aws.String("#v = :v"),
				ExpressionAttributeNames: map[string]string{"#v": "version"},
				ExpressionAttributeValues: map[string]types.AttributeValue{
					":v": &types.AttributeValueMemberN{Value: strconv.FormatInt(row.readVersion, 10)},
				},
			}})
		}
	}

	if len(tx.logs) == 0 && !tx.anyDirty() {
		return nil
	}

	for i := range tx.logs {
		av, err := attributevalue.MarshalMap(toDDBMovement(&tx.logs[i]))
		if err != nil {
			return fmt.Errorf("marshal movement: %w", err)
		}
		items = append(items, types.TransactWriteItem{Put: &types.Put{
			TableName:                aws.String(s.movementsTable),
			Item:                     av,
			ConditionExpression:      aws.String("attribute_not_exists(#id)"),
			ExpressionAttributeNames: map[string]string{"#id": MovementKeyAttr},
		}})
	}

	_, err := s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: items})
	if err != nil {
		return fmt.Errorf("dynamodb TransactWriteItems failed: %w", err)
	}
	return nil
}

// isWriteConflict reports whether a commit failed only because another
// writer changed a row first.
func isWriteConflict(err error) bool {
	var tce *types.TransactionCanceledException
	if errors.As(err, &tce) {
		for _, r := range tce.CancellationReasons {
			code := aws.ToString(r.Code)
			if code == "ConditionalCheckFailed" || code == "TransactionConflict" {
				return true
			}
		}
		return false
	}
	var conflict *types.TransactionConflictException
	if errors.As(err, &conflict) {
		return true
	}
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}

func stockKeyAttr(k models.StockKey) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		StockKeyAttr: &types.AttributeValueMemberS{Value: k.String()},
	}
}

func (s *DynamoStockStore) getStock(ctx context.Context, key models.StockKey) (*models.StockRecord, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.stockTable),
		Key:            stockKeyAttr(key),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("dynamodb GetItem failed: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, ErrNotFound
	}

	var d ddbStock
	if err := attributevalue.UnmarshalMap(out.Item, &d); err != nil {
		return nil, fmt.Errorf("unmarshal stock: %w", err)
	}
	return d.toModel()
}

func (s *DynamoStockStore) GetStock(ctx context.Context, key models.StockKey) (*models.StockRecord, error) {
	return s.getStock(ctx, key)
}

func (s *DynamoStockStore) scanStock(ctx context.Context, input *dynamodb.ScanInput, fn func([]models.StockRecord) error) error {
	p := dynamodb.NewScanPaginator(s.client, input)
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("dynamodb Scan failed: %w", err)
		}
		var rows []ddbStock
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &rows); err != nil {
			return fmt.Errorf("unmarshal stock page: %w", err)
		}
		recs := make([]models.StockRecord, 0, len(rows))
		for _, r := range rows {
			rec, err := r.toModel()
			if err != nil {
				return err
			}
			recs = append(recs, *rec)
		}
		if len(recs) == 0 {
			continue
		}
		if err := fn(recs); err != nil {
			return err
		}
	}
	return nil
}

func (s *DynamoStockStore) ListByItem(ctx context.Context, itemID uuid.UUID) ([]models.StockRecord, error) {
	var out []models.StockRecord
	err := s.scanStock(ctx, &dynamodb.ScanInput{
		TableName:                 aws.String(s.stockTable),
		ConsistentRead:            aws.Bool(true),
		FilterExpression:          aws.String("#item = :item"),
		ExpressionAttributeNames:  map[string]string{"#item": "item_id"},
		ExpressionAttributeValues: map[string]types.AttributeValue{":item": &types.AttributeValueMemberS{Value: itemID.String()}},
	}, func(batch []models.StockRecord) error {
		out = append(out, batch...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortRecords(out)
	return out, nil
}

func (s *DynamoStockStore) ScanStock(ctx context.Context, batchSize int, fn func([]models.StockRecord) error) error {
	input := &dynamodb.ScanInput{TableName: aws.String(s.stockTable)}
	if batchSize > 0 {
		input.Limit = aws.Int32(int32(batchSize))
	}
	return s.scanStock(ctx, input, fn)
}

// ListLogs scans the movements table. The table is keyed by entry id only,
// so ordering and the limit are applied after the scan.
func (s *DynamoStockStore) ListLogs(ctx context.Context, filter models.LogFilter) ([]models.MovementLogEntry, error) {
	filter = filter.Normalize()

	input := &dynamodb.ScanInput{TableName: aws.String(s.movementsTable)}
	var conds []string
	names := map[string]string{}
	values := map[string]types.AttributeValue{}
	if filter.WarehouseID != nil {
		conds = append(conds, "#wh = :wh")
		names["#wh"] = "warehouse_id"
		values[":wh"] = &types.AttributeValueMemberS{Value: filter.WarehouseID.String()}
	}
	if filter.ItemID != nil {
		conds = append(conds, "#item = :item")
		names["#item"] = "item_id"
		values[":item"] = &types.AttributeValueMemberS{Value: filter.ItemID.String()}
	}
	if len(conds) > 0 {
		input.FilterExpression = aws.String(strings.Join(conds, " AND "))
		input.ExpressionAttributeNames = names
		input.ExpressionAttributeValues = values
	}

	var out []models.MovementLogEntry
	p := dynamodb.NewScanPaginator(s.client, input)
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("dynamodb Scan failed: %w", err)
		}
		var rows []ddbMovement
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &rows); err != nil {
			return nil, fmt.Errorf("unmarshal movement page: %w", err)
		}
		for _, r := range rows {
			e, err := r.toModel()
			if err != nil {
				return nil, err
			}
			out = append(out, *e)
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return filter.NewestFirst(&out[i], &out[j]) })
	if len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

type dynamoRow struct {
	rec         *models.StockRecord
	readVersion int64
	isNew       bool
	dirty       bool
}

type dynamoStockTx struct {
	store *DynamoStockStore
	rows  map[models.StockKey]*dynamoRow
	logs  []models.MovementLogEntry
}

func (t *dynamoStockTx) anyDirty() bool {
	for _, r := range t.rows {
		if r.dirty {
			return true
		}
	}
	return false
}

func (t *dynamoStockTx) LockStock(ctx context.Context, key models.StockKey) (*models.StockRecord, error) {
	if row, ok := t.rows[key]; ok {
		cp := *row.rec
		return &cp, nil
	}
	rec, err := t.store.getStock(ctx, key)
	if err != nil {
		return nil, err
	}
	t.rows[key] = &dynamoRow{rec: rec, readVersion: rec.Version}
	cp := *rec
	return &cp, nil
}

func (t *dynamoStockTx) LockOrCreateStock(ctx context.Context, key models.StockKey) (*models.StockRecord, error) {
	rec, err := t.LockStock(ctx, key)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	fresh := models.NewStockRecord(key.WarehouseID, key.ItemID, now())
	t.rows[key] = &dynamoRow{rec: fresh, isNew: true}
	cp := *fresh
	return &cp, nil
}

func (t *dynamoStockTx) SaveStock(_ context.Context, rec *models.StockRecord) error {
	key := models.StockKey{WarehouseID: rec.WarehouseID, ItemID: rec.ItemID}
	row, ok := t.rows[key]
	if !ok || row.rec.Version != rec.Version-1 {
		return ErrConflict
	}
	cp := *rec
	row.rec = &cp
	row.dirty = true
	return nil
}

func (t *dynamoStockTx) AppendLog(_ context.Context, entry *models.MovementLogEntry) error {
	t.logs = append(t.logs, *entry)
	return nil
}
