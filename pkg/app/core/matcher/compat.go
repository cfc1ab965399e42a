package matcher

import "github.com/uhyunpark/hnitrade/pkg/app/core/orderbook"

// Compatible reports whether an incoming order's attributes satisfy a
// resting candidate. Only the candidate's keys are checked: a key is
// compatible when the incoming order lacks it or leaves it empty, or when
// either side holds the wildcard. Otherwise the values must be equal.
func Compatible(candidate, incoming orderbook.Attributes) bool {
	for _, c := range candidate {
		in, ok := incoming.Get(c.Name)
		if !ok || in.IsWildcard() || c.Value.IsWildcard() {
			continue
		}
		if in.Text() == "" {
			continue
		}
		if in.Text() != c.Value.Text() {
			return false
		}
	}
	return true
}

func crosses(bid, ask orderbook.Order) bool {
	return bid.InstrumentID == ask.InstrumentID && ask.Price.Cmp(bid.Price) <= 0
}
