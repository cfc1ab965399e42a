package orderbook

import (
	"sort"

	"github.com/google/uuid"

	"github.com/uhyunpark/hnitrade/pkg/util"
)

// InstrumentCatalog answers whether an instrument id is tradable.
type InstrumentCatalog interface {
	Exists(id string) bool
}

// OrderBook holds every order ever seen by a replica together with its
// lifecycle state. Orders are never removed. The book is not safe for
// concurrent use; the owning replica serializes access.
type OrderBook struct {
	orders  map[string]*Order
	seq     []string // insertion order, for stable snapshots
	clock   util.Clock
	catalog InstrumentCatalog
	newID   func() string
}

// NewOrderBook creates an empty book. catalog may be nil, in which case any
// non-empty instrument id is accepted.
func NewOrderBook(clock util.Clock, catalog InstrumentCatalog) *OrderBook {
	if clock == nil {
		clock = util.RealClock{}
	}
	return &OrderBook{
		orders:  make(map[string]*Order),
		clock:   clock,
		catalog: catalog,
		newID:   uuid.NewString,
	}
}

// Submit validates d and inserts a new OPEN order. It never matches.
func (ob *OrderBook) Submit(d OrderData) (Order, error) {
	if err := d.Validate(); err != nil {
		return Order{}, err
	}
	if ob.catalog != nil && !ob.catalog.Exists(d.InstrumentID) {
		return Order{}, &ValidationError{Field: "instrumentId", Reason: "is not a listed instrument"}
	}

	o := &Order{
		ID:           ob.newID(),
		Side:         d.Side,
		InstrumentID: d.InstrumentID,
		CategoryID:   d.CategoryID,
		Price:        d.Price,
		Quantity:     d.Quantity,
		Attributes:   d.Attributes.Clone(),
		OwnerRole:    d.OwnerRole,
		CreatedAt:    ob.clock.Now().UnixMilli(),
		Status:       Open,
	}
	ob.put(o)
	return o.clone(), nil
}

func (ob *OrderBook) put(o *Order) {
	ob.orders[o.ID] = o
	ob.seq = append(ob.seq, o.ID)
}

// Insert adds a replicated order if its id is unseen and it passes
// Validate. Status is normalized so a FILLED order always carries zero
// quantity.
func (ob *OrderBook) Insert(o Order) bool {
	if o.Validate() != nil {
		return false
	}
	if _, ok := ob.orders[o.ID]; ok {
		return false
	}
	o = o.clone()
	o.Status = o.Status.normalize()
	if o.Status == Filled {
		o.Quantity = 0
	}
	ob.put(&o)
	return true
}

// Cancel moves an OPEN order to CANCELLED. Unknown or already closed orders
// are left untouched and false is returned.
func (ob *OrderBook) Cancel(id string) bool {
	o, ok := ob.orders[id]
	if !ok || !o.IsOpen() {
		return false
	}
	o.Status = Cancelled
	return true
}

// ApplyPatch merges a remote post-trade patch into a known order.
// It reports whether the local order changed. Invalid patches are ignored.
func (ob *OrderBook) ApplyPatch(p OrderPatch) bool {
	if p.Validate() != nil {
		return false
	}
	o, ok := ob.orders[p.ID]
	if !ok {
		return false
	}
	merged := MergePatch(*o, p)
	if merged.Status == o.Status && merged.Quantity == o.Quantity {
		return false
	}
	*o = merged
	return true
}

// Fill decrements remaining quantity by qty, moving the order to FILLED when
// nothing remains. Only the matcher calls this.
func (ob *OrderBook) Fill(id string, qty int64) (Order, error) {
	o, ok := ob.orders[id]
	if !ok {
		return Order{}, ErrNotFound
	}
	o.Quantity -= qty
	if o.Quantity <= 0 {
		o.Quantity = 0
		o.Status = Filled
	}
	return o.clone(), nil
}

func (ob *OrderBook) Get(id string) (Order, bool) {
	o, ok := ob.orders[id]
	if !ok {
		return Order{}, false
	}
	return o.clone(), true
}

func (ob *OrderBook) Len() int { return len(ob.seq) }

// All returns every order in insertion order.
func (ob *OrderBook) All() []Order {
	out := make([]Order, 0, len(ob.seq))
	for _, id := range ob.seq {
		out = append(out, ob.orders[id].clone())
	}
	return out
}

// OpenOrders returns OPEN orders of one side and instrument in priority
// order: best price first (lowest ask, highest bid), then earliest.
func (ob *OrderBook) OpenOrders(side Side, instrumentID string) []Order {
	return ob.open(side, func(o *Order) bool { return o.InstrumentID == instrumentID })
}

// OpenBySide is OpenOrders across all instruments.
func (ob *OrderBook) OpenBySide(side Side) []Order {
	return ob.open(side, func(*Order) bool { return true })
}

func (ob *OrderBook) open(side Side, keep func(*Order) bool) []Order {
	var out []Order
	for _, id := range ob.seq {
		o := ob.orders[id]
		if o.Side == side && o.IsOpen() && keep(o) {
			out = append(out, o.clone())
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return priorityLess(side, out[i], out[j]) })
	return out
}

func priorityLess(side Side, a, b Order) bool {
	if c := a.Price.Cmp(b.Price); c != 0 {
		if side == Bid {
			return c > 0
		}
		return c < 0
	}
	if a.CreatedAt != b.CreatedAt {
		return a.CreatedAt < b.CreatedAt
	}
	return a.ID < b.ID
}
