package ledger

import (
	"errors"
	"fmt"
	"sort"

	"github.com/uhyunpark/hnitrade/pkg/app/core/orderbook"
)

// MatchSource records how a trade was produced.
type MatchSource string

const (
	Auto   MatchSource = "AUTO"
	Manual MatchSource = "MANUAL"
)

type Trade struct {
	ID           string          `json:"id"`
	BuyOrderID   string          `json:"buyOrderId"`
	SellOrderID  string          `json:"sellOrderId"`
	Price        orderbook.Price `json:"price"`
	Quantity     int64           `json:"quantity"`
	InstrumentID string          `json:"instrumentId"`
	CategoryID   string          `json:"categoryId,omitempty"`
	ExecutedAt   int64           `json:"executedAt"` // unix millis
	MatchedBy    MatchSource     `json:"matchedBy"`
	Notes        string          `json:"notes,omitempty"`
	MatchKey     string          `json:"matchKey"`
}

// MatchKey is the deterministic identity of a trade across replicas.
func MatchKey(buyID, sellID string, price orderbook.Price, qty int64) string {
	return fmt.Sprintf("%s|%s|%s|%d", buyID, sellID, price.String(), qty)
}

// Key returns t.MatchKey, deriving it from the trade fields when absent.
func (t Trade) Key() string {
	if t.MatchKey != "" {
		return t.MatchKey
	}
	return MatchKey(t.BuyOrderID, t.SellOrderID, t.Price, t.Quantity)
}

var ErrInvalidTrade = errors.New("invalid trade")

// Validate rejects trades that could not have come from a real execution.
func (t Trade) Validate() error {
	switch {
	case t.BuyOrderID == "" || t.SellOrderID == "":
		return fmt.Errorf("%w: both order ids are required", ErrInvalidTrade)
	case !t.Price.IsPositive():
		return fmt.Errorf("%w: price must be positive", ErrInvalidTrade)
	case t.Quantity <= 0:
		return fmt.Errorf("%w: quantity must be positive", ErrInvalidTrade)
	}
	return nil
}

// Ledger is the append-only set of executed trades keyed by match key.
// Not safe for concurrent use.
type Ledger struct {
	byKey map[string]*Trade
	byID  map[string]*Trade
	seq   []string // match keys in insertion order
}

func New() *Ledger {
	return &Ledger{
		byKey: make(map[string]*Trade),
		byID:  make(map[string]*Trade),
	}
}

// Upsert inserts t when neither its match key nor its id is known and
// reports true. Otherwise the fields of t are overlaid onto the existing
// entry. Overlays keep the smaller id and the earlier execution time so
// every replica settles on the same record. Trades failing Validate are
// ignored.
func (l *Ledger) Upsert(t Trade) bool {
	if t.Validate() != nil {
		return false
	}
	t.MatchKey = t.Key()

	existing, ok := l.byKey[t.MatchKey]
	if !ok && t.ID != "" {
		existing, ok = l.byID[t.ID]
	}
	if !ok {
		cp := t
		l.byKey[cp.MatchKey] = &cp
		if cp.ID != "" {
			l.byID[cp.ID] = &cp
		}
		l.seq = append(l.seq, cp.MatchKey)
		return true
	}

	overlay(existing, t)
	if t.ID != "" {
		l.byID[t.ID] = existing
	}
	return false
}

func overlay(dst *Trade, src Trade) {
	if src.ID != "" && (dst.ID == "" || src.ID < dst.ID) {
		dst.ID = src.ID
	}
	if src.ExecutedAt != 0 && (dst.ExecutedAt == 0 || src.ExecutedAt < dst.ExecutedAt) {
		dst.ExecutedAt = src.ExecutedAt
	}
	if dst.InstrumentID == "" {
		dst.InstrumentID = src.InstrumentID
	}
	if dst.CategoryID == "" {
		dst.CategoryID = src.CategoryID
	}
	if dst.MatchedBy == "" {
		dst.MatchedBy = src.MatchedBy
	}
	if dst.Notes == "" {
		dst.Notes = src.Notes
	}
}

// Has reports whether a trade with the given match key was recorded.
func (l *Ledger) Has(matchKey string) bool {
	_, ok := l.byKey[matchKey]
	return ok
}

func (l *Ledger) Get(matchKey string) (Trade, bool) {
	t, ok := l.byKey[matchKey]
	if !ok {
		return Trade{}, false
	}
	return *t, true
}

func (l *Ledger) Len() int { return len(l.seq) }

// All returns every trade in insertion order.
func (l *Ledger) All() []Trade {
	out := make([]Trade, 0, len(l.seq))
	for _, k := range l.seq {
		out = append(out, *l.byKey[k])
	}
	return out
}

// History returns the trades of one instrument, newest first.
func (l *Ledger) History(instrumentID string) []Trade {
	var out []Trade
	for _, k := range l.seq {
		if t := l.byKey[k]; t.InstrumentID == instrumentID {
			out = append(out, *t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].ExecutedAt != out[j].ExecutedAt {
			return out[i].ExecutedAt > out[j].ExecutedAt
		}
		return out[i].MatchKey < out[j].MatchKey
	})
	return out
}

// Last returns the most recent trade of an instrument.
func (l *Ledger) Last(instrumentID string) (Trade, bool) {
	h := l.History(instrumentID)
	if len(h) == 0 {
		return Trade{}, false
	}
	return h[0], true
}
