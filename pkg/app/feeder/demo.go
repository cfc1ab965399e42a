package feeder

import (
	"time"

	"github.com/uhyunpark/hnitrade/pkg/app/core"
	"github.com/uhyunpark/hnitrade/pkg/app/core/ledger"
	"github.com/uhyunpark/hnitrade/pkg/app/core/orderbook"
)

// DemoSnapshot is a small rebar book used to seed an empty replica: two asks
// and two non-crossing bids, plus one historical trade between a filled pair.
// Ids are fixed so replicas seeded independently converge on the same state.
func DemoSnapshot(now time.Time) core.Snapshot {
	ago := func(d time.Duration) int64 { return now.Add(-d).UnixMilli() }
	attrs := func(brand string) orderbook.Attributes {
		return orderbook.Attrs("品牌", brand, "规格", "Φ18-25", "材质", "HRB400")
	}
	rebar := func(id string, side orderbook.Side, role string, price, qty int64, a orderbook.Attributes, created int64) core.Order {
		return core.Order{
			ID:           id,
			Side:         side,
			InstrumentID: "rebar",
			CategoryID:   "steel",
			Price:        orderbook.NewPrice(price),
			Quantity:     qty,
			Attributes:   a,
			OwnerRole:    role,
			CreatedAt:    created,
			Status:       orderbook.Open,
		}
	}

	buy := rebar("mock-buy-1", orderbook.Bid, orderbook.RoleBuyer, 3840, 0, orderbook.Attrs("品牌", "沙钢"), ago(250*time.Second))
	sell := rebar("mock-sell-1", orderbook.Ask, orderbook.RoleSeller, 3840, 0, orderbook.Attrs("品牌", "沙钢"), ago(250*time.Second))
	buy.Status, sell.Status = orderbook.Filled, orderbook.Filled

	price := orderbook.NewPrice(3840)
	trade := ledger.Trade{
		ID:           "t1",
		BuyOrderID:   buy.ID,
		SellOrderID:  sell.ID,
		Price:        price,
		Quantity:     50,
		InstrumentID: "rebar",
		CategoryID:   "steel",
		ExecutedAt:   ago(200 * time.Second),
		MatchedBy:    ledger.Auto,
		MatchKey:     ledger.MatchKey(buy.ID, sell.ID, price, 50),
	}

	return core.Snapshot{
		Orders: []core.Order{
			rebar("demo-1", orderbook.Ask, orderbook.RoleSeller, 3850, 100, attrs("沙钢"), ago(100*time.Second)),
			rebar("demo-2", orderbook.Ask, orderbook.RoleMM, 3845, 500, attrs("永钢"), ago(50*time.Second)),
			rebar("demo-3", orderbook.Bid, orderbook.RoleBuyer, 3830, 200, attrs(orderbook.WildcardSentinel), ago(80*time.Second)),
			rebar("demo-4", orderbook.Bid, orderbook.RoleMM, 3835, 400, attrs("永钢"), ago(40*time.Second)),
			buy,
			sell,
		},
		Trades: []core.Trade{trade},
	}
}
