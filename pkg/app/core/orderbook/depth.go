package orderbook

import "sort"

type PriceLevel struct {
	Price    Price `json:"price"`
	Quantity int64 `json:"quantity"` // total remaining at this price
	Orders   int   `json:"orders"`
}

// Depth is the aggregated view of one instrument's open interest.
type Depth struct {
	InstrumentID string       `json:"instrumentId"`
	Bids         []PriceLevel `json:"bids"` // high to low
	Asks         []PriceLevel `json:"asks"` // low to high
	BestBid      *Price       `json:"bestBid,omitempty"`
	BestAsk      *Price       `json:"bestAsk,omitempty"`
	Spread       *Price       `json:"spread,omitempty"`
}

// Depth aggregates OPEN orders of an instrument into price levels.
func (ob *OrderBook) Depth(instrumentID string) Depth {
	d := Depth{
		InstrumentID: instrumentID,
		Bids:         levels(ob.OpenOrders(Bid, instrumentID), Bid),
		Asks:         levels(ob.OpenOrders(Ask, instrumentID), Ask),
	}
	if len(d.Bids) > 0 {
		p := d.Bids[0].Price
		d.BestBid = &p
	}
	if len(d.Asks) > 0 {
		p := d.Asks[0].Price
		d.BestAsk = &p
	}
	if d.BestBid != nil && d.BestAsk != nil {
		s := d.BestAsk.Sub(*d.BestBid)
		d.Spread = &s
	}
	return d
}

func levels(orders []Order, side Side) []PriceLevel {
	byPrice := make(map[string]*PriceLevel)
	for _, o := range orders {
		key := o.Price.String()
		lvl, ok := byPrice[key]
		if !ok {
			lvl = &PriceLevel{Price: o.Price}
			byPrice[key] = lvl
		}
		lvl.Quantity += o.Quantity
		lvl.Orders++
	}

	out := make([]PriceLevel, 0, len(byPrice))
	for _, lvl := range byPrice {
		out = append(out, *lvl)
	}
	sort.Slice(out, func(i, j int) bool {
		if side == Bid {
			return out[i].Price.Cmp(out[j].Price) > 0
		}
		return out[i].Price.Cmp(out[j].Price) < 0
	})
	return out
}
