package matcher

import (
	"testing"
	"time"

	"pgregory.net/rapid"

	"github.com/uhyunpark/hnitrade/pkg/app/core/ledger"
	"github.com/uhyunpark/hnitrade/pkg/app/core/orderbook"
	"github.com/uhyunpark/hnitrade/pkg/util"
)

var brands = []string{"沙钢", "永钢", orderbook.WildcardSentinel}

// Random submit/cancel/match sequences must keep every book invariant.
func TestMatchingInvariants(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		clock := util.NewFakeClock(time.UnixMilli(1))
		book := orderbook.NewOrderBook(clock, nil)
		l := ledger.New()
		m := New(book, l, nil, Config{Clock: clock})

		submitted := make(map[string]int64)
		steps := rapid.IntRange(1, 40).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			clock.Advance(time.Millisecond)
			switch rapid.IntRange(0, 9).Draw(t, "op") {
			case 0:
				if all := book.All(); len(all) > 0 {
					book.Cancel(all[rapid.IntRange(0, len(all)-1).Draw(t, "cancel")].ID)
				}
			case 1:
				if _, err := m.Reconcile(); err != nil {
					t.Fatalf("reconcile: %v", err)
				}
			default:
				side := rapid.SampledFrom([]orderbook.Side{orderbook.Bid, orderbook.Ask}).Draw(t, "side")
				o, err := book.Submit(orderbook.OrderData{
					Side:         side,
					InstrumentID: rapid.SampledFrom([]string{"rebar", "hrc"}).Draw(t, "instrument"),
					Price:        orderbook.NewPrice(rapid.Int64Range(3800, 3860).Draw(t, "price")),
					Quantity:     rapid.Int64Range(1, 200).Draw(t, "qty"),
					Attributes:   orderbook.Attrs("品牌", rapid.SampledFrom(brands).Draw(t, "brand")),
				})
				if err != nil {
					t.Fatalf("submit: %v", err)
				}
				submitted[o.ID] = o.Quantity
				if _, err := m.CheckAutoMatch(o); err != nil {
					t.Fatalf("auto match: %v", err)
				}
			}
		}

		if _, err := m.Reconcile(); err != nil {
			t.Fatalf("final reconcile: %v", err)
		}

		matched := make(map[string]int64)
		keys := make(map[string]bool)
		for _, tr := range l.All() {
			if keys[tr.MatchKey] {
				t.Fatalf("duplicate match key %s", tr.MatchKey)
			}
			keys[tr.MatchKey] = true
			matched[tr.BuyOrderID] += tr.Quantity
			matched[tr.SellOrderID] += tr.Quantity
		}

		for _, o := range book.All() {
			if o.Quantity < 0 {
				t.Fatalf("order %s has negative quantity", o.ID)
			}
			if o.Status == orderbook.Filled && o.Quantity != 0 {
				t.Fatalf("filled order %s keeps quantity %d", o.ID, o.Quantity)
			}
			if matched[o.ID] > submitted[o.ID] {
				t.Fatalf("order %s overfilled: %d > %d", o.ID, matched[o.ID], submitted[o.ID])
			}
		}

		for _, bid := range book.OpenBySide(orderbook.Bid) {
			for _, ask := range book.OpenBySide(orderbook.Ask) {
				if crosses(bid, ask) && Compatible(ask.Attributes, bid.Attributes) {
					t.Fatalf("crossing pair left open after reconcile: %s / %s", bid.ID, ask.ID)
				}
			}
		}
	})
}
