// Package core ties the trading subpackages together and defines the state
// exchanged between replicas.
package core

import (
	"github.com/uhyunpark/hnitrade/pkg/app/core/ledger"
	"github.com/uhyunpark/hnitrade/pkg/app/core/orderbook"
)

type (
	Order      = orderbook.Order
	OrderData  = orderbook.OrderData
	OrderPatch = orderbook.OrderPatch
	Side       = orderbook.Side
	Trade      = ledger.Trade
)

const (
	Bid = orderbook.Bid
	Ask = orderbook.Ask
)

// Snapshot is the full replicated state of one replica. It is both the
// state_snapshot payload and the persisted layout.
type Snapshot struct {
	Orders []Order `json:"orders"`
	Trades []Trade `json:"trades"`
}

func (s Snapshot) Empty() bool { return len(s.Orders) == 0 && len(s.Trades) == 0 }
