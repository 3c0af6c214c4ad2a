// Package remote talks to the collection service over its REST contract:
// GET/POST /<collection>, DELETE /<collection>/<id>, POST /sales and GET /health.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"stockledger/internal/store"
)

type Store struct {
	baseURL string
	client  *http.Client
	log     zerolog.Logger
}

func New(baseURL string, timeout time.Duration, logger zerolog.Logger) *Store {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Store{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		log:     logger.With().Str("component", "remote-store").Logger(),
	}
}

func (s *Store) Health(ctx context.Context) error {
	return s.do(ctx, http.MethodGet, "/health", nil, nil)
}

// Load fetches every collection concurrently.
func (s *Store) Load(ctx context.Context) (store.Snapshot, error) {
	var (
		snap      store.Snapshot
		items     []wireItem
		txs       []wireTransaction
		suppliers []wireSupplier
		employees []wireEmployee
		customers []wireCustomer
		expenses  []wireExpense
		orders    []wirePurchaseOrder
		shifts    []wireCashShift
	)

	g, gctx := errgroup.WithContext(ctx)
	fetch := func(collection string, dest any) {
		g.Go(func() error {
			if err := s.do(gctx, http.MethodGet, "/"+collection, nil, dest); err != nil {
				return fmt.Errorf("load %s: %w", collection, err)
			}
			return nil
		})
	}
	fetch(store.CollectionInventory, &items)
	fetch(store.CollectionTransactions, &txs)
	fetch(store.CollectionSuppliers, &suppliers)
	fetch(store.CollectionEmployees, &employees)
	fetch(store.CollectionCustomers, &customers)
	fetch(store.CollectionExpenses, &expenses)
	fetch(store.CollectionPurchaseOrders, &orders)
	fetch(store.CollectionCashShifts, &shifts)
	if err := g.Wait(); err != nil {
		return store.Snapshot{}, err
	}

	for _, w := range items {
		snap.Inventory = append(snap.Inventory, w.domain())
	}
	for _, w := range txs {
		snap.Transactions = append(snap.Transactions, w.domain())
	}
	for _, w := range suppliers {
		snap.Suppliers = append(snap.Suppliers, w.domain())
	}
	for _, w := range employees {
		snap.Employees = append(snap.Employees, w.domain())
	}
	for _, w := range customers {
		snap.Customers = append(snap.Customers, w.domain())
	}
	for _, w := range expenses {
		snap.Expenses = append(snap.Expenses, w.domain())
	}
	for _, w := range orders {
		snap.PurchaseOrders = append(snap.PurchaseOrders, w.domain())
	}
	for _, w := range shifts {
		snap.CashShifts = append(snap.CashShifts, w.domain())
	}
	return snap, nil
}

// Apply sends sale change sets through POST /sales, which the service commits
// atomically. Other records are upserted one request at a time, so a failure
// part way leaves earlier writes in place; replaying the change set is safe
// because every write is an idempotent upsert.
func (s *Store) Apply(ctx context.Context, changes store.ChangeSet) error {
	inventory := changes.Inventory
	transactions := changes.Transactions
	customers := changes.Customers

	if changes.Sale {
		batch := saleBatch{
			Transactions:     make([]wireTransaction, 0, len(transactions)),
			InventoryUpdates: make([]wireItem, 0, len(inventory)),
		}
		for _, t := range transactions {
			batch.Transactions = append(batch.Transactions, toWireTransaction(t))
		}
		for _, item := range inventory {
			batch.InventoryUpdates = append(batch.InventoryUpdates, toWireItem(item))
		}
		if len(customers) > 0 {
			c := toWireCustomer(customers[0])
			batch.CustomerUpdate = &c
			customers = customers[1:]
		}
		if err := s.do(ctx, http.MethodPost, "/sales", batch, nil); err != nil {
			return fmt.Errorf("post sale batch %s: %w", changes.ID, err)
		}
		inventory, transactions = nil, nil
	}

	for _, item := range inventory {
		if err := s.upsert(ctx, store.CollectionInventory, toWireItem(item)); err != nil {
			return err
		}
	}
	for _, t := range transactions {
		if err := s.upsert(ctx, store.CollectionTransactions, toWireTransaction(t)); err != nil {
			return err
		}
	}
	for _, c := range customers {
		if err := s.upsert(ctx, store.CollectionCustomers, toWireCustomer(c)); err != nil {
			return err
		}
	}
	for _, po := range changes.PurchaseOrders {
		if err := s.upsert(ctx, store.CollectionPurchaseOrders, toWirePurchaseOrder(po)); err != nil {
			return err
		}
	}
	for _, sh := range changes.CashShifts {
		if err := s.upsert(ctx, store.CollectionCashShifts, toWireCashShift(sh)); err != nil {
			return err
		}
	}
	for _, sup := range changes.Suppliers {
		if err := s.upsert(ctx, store.CollectionSuppliers, toWireSupplier(sup)); err != nil {
			return err
		}
	}
	for _, emp := range changes.Employees {
		if err := s.upsert(ctx, store.CollectionEmployees, toWireEmployee(emp)); err != nil {
			return err
		}
	}
	for _, e := range changes.Expenses {
		if err := s.upsert(ctx, store.CollectionExpenses, toWireExpense(e)); err != nil {
			return err
		}
	}
	for _, del := range changes.Deletes {
		path := "/" + url.PathEscape(del.Collection) + "/" + url.PathEscape(del.ID)
		err := s.do(ctx, http.MethodDelete, path, nil, nil)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("delete %s/%s: %w", del.Collection, del.ID, err)
		}
	}
	return nil
}

func (s *Store) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

func (s *Store) upsert(ctx context.Context, collection string, record any) error {
	if err := s.do(ctx, http.MethodPost, "/"+collection, record, nil); err != nil {
		return fmt.Errorf("upsert %s: %w", collection, err)
	}
	return nil
}

func (s *Store) do(ctx context.Context, method, path string, body any, dest any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return store.ErrNotFound
	case resp.StatusCode >= 500:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: %s %s returned %d: %s", store.ErrUnavailable, method, path, resp.StatusCode, strings.TrimSpace(string(msg)))
	case resp.StatusCode >= 300:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s %s returned %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	if dest == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	s.log.Debug().Str("method", method).Str("path", path).Msg("remote call")
	return nil
}
