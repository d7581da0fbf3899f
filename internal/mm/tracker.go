package mm

import (
	"container/list"
	"sync"
	"time"
)

const defaultTrackerCapacity = 128

// PlacedOrder is one accepted ladder order, tracked from placement until it
// is filled, cancelled, or ages out.
type PlacedOrder struct {
	OrderID       string
	ClientOrderID string
	Market        string
	Quantity      float64
	Price         float64
	PlacedAt      time.Time
	ExpiresAt     time.Time
}

func (o PlacedOrder) Direction() float64 {
	if o.Quantity > 0 {
		return 1
	}
	return -1
}

// OrderTracker is a bounded table of outstanding orders keyed by venue order
// id. Entries age out a grace period after their order expiry, pruned lazily
// on access; when full, the oldest entry is evicted. A fill arriving after
// eviction is reported as unmatched by the caller, never a crash.
type OrderTracker struct {
	mu       sync.Mutex
	capacity int
	entries  map[string]*list.Element
	order    *list.List

	now func() time.Time
}

type trackerEntry struct {
	order   PlacedOrder
	evictAt time.Time
}

func NewOrderTracker(capacity int) *OrderTracker {
	if capacity <= 0 {
		capacity = defaultTrackerCapacity
	}
	return &OrderTracker{
		capacity: capacity,
		entries:  make(map[string]*list.Element),
		order:    list.New(),
		now:      time.Now,
	}
}

// Insert adds an order, replacing any entry under the same id. The entry
// lives until grace past the order's own expiry.
func (t *OrderTracker) Insert(order PlacedOrder, grace time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pruneLocked()
	if elem, ok := t.entries[order.OrderID]; ok {
		t.order.Remove(elem)
		delete(t.entries, order.OrderID)
	}
	for len(t.entries) >= t.capacity {
		oldest := t.order.Front()
		if oldest == nil {
			break
		}
		t.order.Remove(oldest)
		delete(t.entries, oldest.Value.(trackerEntry).order.OrderID)
	}
	elem := t.order.PushBack(trackerEntry{order: order, evictAt: order.ExpiresAt.Add(grace)})
	t.entries[order.OrderID] = elem
}

// Lookup finds a tracked order by venue order id.
func (t *OrderTracker) Lookup(orderID string) (PlacedOrder, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pruneLocked()
	elem, ok := t.entries[orderID]
	if !ok {
		return PlacedOrder{}, false
	}
	return elem.Value.(trackerEntry).order, true
}

func (t *OrderTracker) Remove(orderID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if elem, ok := t.entries[orderID]; ok {
		t.order.Remove(elem)
		delete(t.entries, orderID)
	}
}

func (t *OrderTracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pruneLocked()
	return len(t.entries)
}

func (t *OrderTracker) pruneLocked() {
	now := t.now()
	for elem := t.order.Front(); elem != nil; {
		next := elem.Next()
		entry := elem.Value.(trackerEntry)
		if entry.evictAt.After(now) {
			elem = next
			continue
		}
		t.order.Remove(elem)
		delete(t.entries, entry.order.OrderID)
		elem = next
	}
}
