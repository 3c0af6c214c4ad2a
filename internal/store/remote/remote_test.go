package remote

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger/internal/domain"
	"stockledger/internal/store"
)

// fakeCollectionService mimics the collection service: records are kept as raw
// JSON per collection, exactly as posted.
type fakeCollectionService struct {
	mu        sync.Mutex
	records   map[string]map[string]json.RawMessage
	sales     []map[string]json.RawMessage
	deletes   []string
	unhealthy bool
}

func newFakeCollectionService() *fakeCollectionService {
	return &fakeCollectionService{records: make(map[string]map[string]json.RawMessage)}
}

func (f *fakeCollectionService) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	switch {
	case r.URL.Path == "/health":
		if f.unhealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	case r.URL.Path == "/sales" && r.Method == http.MethodPost:
		var body map[string]json.RawMessage
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.sales = append(f.sales, body)
		_, _ = w.Write([]byte(`{"success":true}`))
	case len(parts) == 1 && r.Method == http.MethodGet:
		out := make([]json.RawMessage, 0)
		for _, rec := range f.records[parts[0]] {
			out = append(out, rec)
		}
		_ = json.NewEncoder(w).Encode(out)
	case len(parts) == 1 && r.Method == http.MethodPost:
		raw, _ := io.ReadAll(r.Body)
		var probe struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(raw, &probe); err != nil || probe.ID == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if f.records[parts[0]] == nil {
			f.records[parts[0]] = make(map[string]json.RawMessage)
		}
		f.records[parts[0]][probe.ID] = raw
		_, _ = w.Write([]byte(`{"success":true}`))
	case len(parts) == 2 && r.Method == http.MethodDelete:
		f.deletes = append(f.deletes, parts[0]+"/"+parts[1])
		delete(f.records[parts[0]], parts[1])
		_, _ = w.Write([]byte(`{"success":true}`))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func newTestStore(t *testing.T) (*Store, *fakeCollectionService) {
	t.Helper()
	fake := newFakeCollectionService()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	return New(srv.URL, 2*time.Second, zerolog.Nop()), fake
}

func TestHealthReportsUnavailable(t *testing.T) {
	s, fake := newTestStore(t)
	require.NoError(t, s.Health(context.Background()))

	fake.mu.Lock()
	fake.unhealthy = true
	fake.mu.Unlock()
	err := s.Health(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, store.ErrUnavailable))
}

func TestUpsertEncodesSubfieldsAsJSONStrings(t *testing.T) {
	ctx := context.Background()
	s, fake := newTestStore(t)

	item := domain.InventoryItem{
		ID:                "item-1",
		SKU:               "SKU-1",
		Name:              "Rice 5kg",
		StockDistribution: map[string]int{"store-1": 4, "wh-1": 6},
		StockQuantity:     10,
		LocationPrices:    map[string]int64{"store-1": 1500},
	}
	require.NoError(t, s.Apply(ctx, store.ChangeSet{ID: "cs-1", Inventory: []domain.InventoryItem{item}}))

	raw := fake.records[store.CollectionInventory]["item-1"]
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	dist, ok := decoded["stockDistribution"].(string)
	require.True(t, ok, "stockDistribution should be a JSON string, got %T", decoded["stockDistribution"])
	assert.JSONEq(t, `{"store-1":4,"wh-1":6}`, dist)

	snap, err := s.Load(ctx)
	require.NoError(t, err)
	require.Len(t, snap.Inventory, 1)
	assert.Equal(t, item.StockDistribution, snap.Inventory[0].StockDistribution)
	assert.Equal(t, item.LocationPrices, snap.Inventory[0].LocationPrices)
}

func TestSaleChangeSetUsesBatchEndpoint(t *testing.T) {
	ctx := context.Background()
	s, fake := newTestStore(t)
	now := time.Now().UTC()

	err := s.Apply(ctx, store.ChangeSet{
		ID:   "cs-sale",
		Sale: true,
		Inventory: []domain.InventoryItem{{
			ID: "item-1", StockDistribution: map[string]int{"store-1": 3}, StockQuantity: 3,
		}},
		Transactions: []domain.Transaction{
			{ID: "m-1", MasterID: "m", Type: domain.TransactionSale, ItemID: "item-1", Quantity: 1, Timestamp: now},
		},
		Customers:  []domain.Customer{{ID: "cust-1", Name: "Ana", TotalSpentCents: 900}},
		CashShifts: []domain.CashShift{{ID: "shift-1", LocationID: "store-1", Status: domain.ShiftOpen, StartTime: now, CashSalesCents: 900}},
	})
	require.NoError(t, err)

	require.Len(t, fake.sales, 1)
	body := fake.sales[0]
	assert.Contains(t, body, "transactions")
	assert.Contains(t, body, "inventoryUpdates")
	assert.Contains(t, string(body["customerUpdate"]), `"cust-1"`)
	assert.Empty(t, fake.records[store.CollectionTransactions], "sale lines must not be posted individually")
	assert.Contains(t, fake.records[store.CollectionCashShifts], "shift-1")
}

func TestLoadAcceptsObjectSubfieldsAndDateStrings(t *testing.T) {
	ctx := context.Background()
	s, fake := newTestStore(t)
	fake.records[store.CollectionInventory] = map[string]json.RawMessage{
		"item-9": json.RawMessage(`{"id":"item-9","name":"Soap","stockDistribution":{"store-1":2},"stockQuantity":2,
			"batches":"[{\"batchNumber\":\"B9\",\"expiryDate\":\"2026-09-01\",\"quantity\":2,\"locationId\":\"store-1\"}]"}`),
	}

	snap, err := s.Load(ctx)
	require.NoError(t, err)
	require.Len(t, snap.Inventory, 1)
	got := snap.Inventory[0]
	assert.Equal(t, 2, got.StockDistribution["store-1"])
	require.Len(t, got.Batches, 1)
	require.NotNil(t, got.Batches[0].ExpiryDate)
	assert.Equal(t, time.September, got.Batches[0].ExpiryDate.Month())
}

func TestDeleteCallsRecordEndpoint(t *testing.T) {
	ctx := context.Background()
	s, fake := newTestStore(t)

	err := s.Apply(ctx, store.ChangeSet{Deletes: []store.Delete{{Collection: store.CollectionCustomers, ID: "cust-1"}}})
	require.NoError(t, err)
	assert.Equal(t, []string{"customers/cust-1"}, fake.deletes)
}
