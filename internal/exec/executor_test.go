package exec

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
)

type fakeVenue struct {
	placeCalls  int
	failPlaces  int
	placed      [][]Order
	cancelCalls int
	cancelled   [][]string
	failCancels int
}

func (f *fakeVenue) PlaceOrders(ctx context.Context, orders []Order) ([]Result, error) {
	f.placeCalls++
	if f.placeCalls <= f.failPlaces {
		return nil, errors.New("transport down")
	}
	f.placed = append(f.placed, orders)
	results := make([]Result, len(orders))
	for i, order := range orders {
		results[i] = Result{ClientOrderID: order.ClientOrderID, OrderID: "oid-" + order.ClientOrderID}
	}
	return results, nil
}

func (f *fakeVenue) CancelOrders(ctx context.Context, orderIDs []string) error {
	f.cancelCalls++
	if f.cancelCalls <= f.failCancels {
		return errors.New("transport down")
	}
	f.cancelled = append(f.cancelled, orderIDs)
	return nil
}

type memStore struct {
	values map[string]string
}

func newMemStore() *memStore {
	return &memStore{values: make(map[string]string)}
}

func (m *memStore) Get(ctx context.Context, key string) (string, bool, error) {
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *memStore) Set(ctx context.Context, key, value string) error {
	m.values[key] = value
	return nil
}

func (m *memStore) Delete(ctx context.Context, key string) error {
	delete(m.values, key)
	return nil
}

func (m *memStore) Close() error { return nil }

func TestPlaceBatchResultsMirrorInput(t *testing.T) {
	venue := &fakeVenue{}
	e := New(venue, nil, zap.NewNop())
	orders := []Order{
		{Market: "ETH-Perp", Quantity: 1, Price: 99, ClientOrderID: "a"},
		{Market: "ETH-Perp", Quantity: -1, Price: 101, ClientOrderID: "b"},
	}
	results, err := e.PlaceBatch(context.Background(), orders)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].OrderID != "oid-a" || results[1].OrderID != "oid-b" {
		t.Fatalf("results out of order: %+v", results)
	}
}

func TestPlaceBatchRetriesTransportErrors(t *testing.T) {
	venue := &fakeVenue{failPlaces: 2}
	e := New(venue, nil, zap.NewNop())
	results, err := e.PlaceBatch(context.Background(), []Order{{ClientOrderID: "a", Quantity: 1}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if venue.placeCalls != 3 {
		t.Fatalf("expected 3 attempts, got %d", venue.placeCalls)
	}
	if !results[0].Success() {
		t.Fatalf("expected success after retry, got %+v", results[0])
	}
}

func TestPlaceBatchDeduplicatesByClientOrderID(t *testing.T) {
	venue := &fakeVenue{}
	store := newMemStore()
	e := New(venue, store, zap.NewNop())
	orders := []Order{{ClientOrderID: "a", Quantity: 1, Price: 99}}

	if _, err := e.PlaceBatch(context.Background(), orders); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	results, err := e.PlaceBatch(context.Background(), orders)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if venue.placeCalls != 1 {
		t.Fatalf("expected one venue call, got %d", venue.placeCalls)
	}
	if results[0].OrderID != "oid-a" {
		t.Fatalf("expected cached order id, got %+v", results[0])
	}
	if store.values["cloid:a"] != "oid-a" {
		t.Fatalf("expected order id persisted, got %+v", store.values)
	}
}

func TestPlaceBatchDeduplicatesFromStore(t *testing.T) {
	venue := &fakeVenue{}
	store := newMemStore()
	store.values["cloid:a"] = "oid-prior"
	e := New(venue, store, zap.NewNop())
	results, err := e.PlaceBatch(context.Background(), []Order{{ClientOrderID: "a"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if venue.placeCalls != 0 {
		t.Fatalf("expected no venue call for a persisted id, got %d", venue.placeCalls)
	}
	if results[0].OrderID != "oid-prior" {
		t.Fatalf("expected persisted order id, got %+v", results[0])
	}
}

func TestCancelBatch(t *testing.T) {
	venue := &fakeVenue{failCancels: 1}
	e := New(venue, nil, zap.NewNop())
	if err := e.CancelBatch(context.Background(), []string{"1", "2"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if venue.cancelCalls != 2 {
		t.Fatalf("expected retry on cancel, got %d calls", venue.cancelCalls)
	}
	if err := e.CancelBatch(context.Background(), nil); err != nil {
		t.Fatalf("empty cancel must be a no-op, got %v", err)
	}
	if venue.cancelCalls != 2 {
		t.Fatalf("expected no extra venue call for empty cancel")
	}
}
