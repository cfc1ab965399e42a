package storage

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/uhyunpark/hnitrade/pkg/app/core"
	"github.com/uhyunpark/hnitrade/pkg/app/core/ledger"
	"github.com/uhyunpark/hnitrade/pkg/app/core/orderbook"
)

// legacyWildcards are the spellings older clients used for "any value".
var legacyWildcards = map[string]bool{
	orderbook.WildcardSentinel: true,
	"*":                        true,
	"ANY":                      true,
	"any":                      true,
}

func encodeSnapshot(s core.Snapshot) ([]byte, error) {
	if s.Orders == nil {
		s.Orders = []core.Order{}
	}
	if s.Trades == nil {
		s.Trades = []core.Trade{}
	}
	return json.Marshal(s)
}

// storedOrder accepts both the current field names and the older
// type/typeId/role/timestamp layout.
type storedOrder struct {
	ID           string               `json:"id"`
	Side         string               `json:"side"`
	Type         string               `json:"type"`
	InstrumentID string               `json:"instrumentId"`
	TypeID       string               `json:"typeId"`
	CategoryID   string               `json:"categoryId"`
	Price        orderbook.Price      `json:"price"`
	Quantity     float64              `json:"quantity"`
	Attributes   orderbook.Attributes `json:"attributes"`
	OwnerRole    string               `json:"ownerRole"`
	Role         string               `json:"role"`
	CreatedAt    int64                `json:"createdAt"`
	Timestamp    int64                `json:"timestamp"`
	Status       string               `json:"status"`
}

type storedTrade struct {
	ID           string          `json:"id"`
	BuyOrderID   string          `json:"buyOrderId"`
	SellOrderID  string          `json:"sellOrderId"`
	Price        orderbook.Price `json:"price"`
	Quantity     float64         `json:"quantity"`
	InstrumentID string          `json:"instrumentId"`
	TypeID       string          `json:"typeId"`
	CategoryID   string          `json:"categoryId"`
	ExecutedAt   int64           `json:"executedAt"`
	Timestamp    int64           `json:"timestamp"`
	MatchedBy    string          `json:"matchedBy"`
	Notes        string          `json:"notes"`
	MatchKey     string          `json:"matchKey"`
}

type storedSnapshot struct {
	Orders []storedOrder `json:"orders"`
	Trades []storedTrade `json:"trades"`
}

// decodeSnapshot reads a snapshot in either layout, optionally wrapped as
// {"state": {...}}, and normalizes it.
func decodeSnapshot(raw []byte) (core.Snapshot, error) {
	var wrapper struct {
		State *storedSnapshot `json:"state"`
	}
	if err := json.Unmarshal(raw, &wrapper); err != nil {
		return core.Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	var stored storedSnapshot
	if wrapper.State != nil {
		stored = *wrapper.State
	} else if err := json.Unmarshal(raw, &stored); err != nil {
		return core.Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}

	var out core.Snapshot
	for _, o := range stored.Orders {
		if o.ID == "" {
			continue
		}
		out.Orders = append(out.Orders, o.normalize())
	}
	for _, t := range stored.Trades {
		if t.ID == "" && t.MatchKey == "" {
			continue
		}
		out.Trades = append(out.Trades, t.normalize())
	}
	return out, nil
}

func (o storedOrder) normalize() orderbook.Order {
	out := orderbook.Order{
		ID:           o.ID,
		Side:         orderbook.Side(firstNonEmpty(o.Side, o.Type)),
		InstrumentID: firstNonEmpty(o.InstrumentID, o.TypeID),
		CategoryID:   o.CategoryID,
		Price:        o.Price,
		Quantity:     quantity(o.Quantity),
		OwnerRole:    firstNonEmpty(o.OwnerRole, o.Role),
		CreatedAt:    o.CreatedAt,
		Status:       orderbook.MergeStatus(orderbook.Status(o.Status), orderbook.Open),
	}
	if out.CreatedAt == 0 {
		out.CreatedAt = o.Timestamp
	}
	if out.Status == orderbook.Filled {
		out.Quantity = 0
	}
	for _, a := range o.Attributes {
		v := a.Value
		if legacyWildcards[v.Text()] {
			v = orderbook.Wildcard
		}
		out.Attributes = out.Attributes.With(a.Name, v)
	}
	return out
}

func (t storedTrade) normalize() ledger.Trade {
	out := ledger.Trade{
		ID:           t.ID,
		BuyOrderID:   t.BuyOrderID,
		SellOrderID:  t.SellOrderID,
		Price:        t.Price,
		Quantity:     quantity(t.Quantity),
		InstrumentID: firstNonEmpty(t.InstrumentID, t.TypeID),
		CategoryID:   t.CategoryID,
		ExecutedAt:   t.ExecutedAt,
		MatchedBy:    ledger.MatchSource(t.MatchedBy),
		Notes:        t.Notes,
		MatchKey:     t.MatchKey,
	}
	if out.ExecutedAt == 0 {
		out.ExecutedAt = t.Timestamp
	}
	if out.MatchedBy == "" {
		out.MatchedBy = ledger.Auto
	}
	out.MatchKey = out.Key()
	return out
}

// quantity rounds a legacy float quantity, clamping to the int64 range.
func quantity(f float64) int64 {
	switch {
	case f <= 0 || math.IsNaN(f):
		return 0
	case math.IsInf(f, 1) || f >= math.MaxInt64:
		return math.MaxInt64
	}
	return int64(math.Round(f))
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
