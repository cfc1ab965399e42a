package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uhyunpark/hnitrade/pkg/app/core/orderbook"
)

func trade(id, buy, sell string, price, qty, at int64) Trade {
	p := orderbook.NewPrice(price)
	return Trade{
		ID:           id,
		BuyOrderID:   buy,
		SellOrderID:  sell,
		Price:        p,
		Quantity:     qty,
		InstrumentID: "rebar",
		ExecutedAt:   at,
		MatchedBy:    Auto,
		MatchKey:     MatchKey(buy, sell, p, qty),
	}
}

func TestMatchKeyFormat(t *testing.T) {
	assert.Equal(t, "b1|s1|3820|50", MatchKey("b1", "s1", orderbook.NewPrice(3820), 50))
	assert.Equal(t, "b1|s1|3827.5|50", MatchKey("b1", "s1", orderbook.MustPrice("3827.50"), 50))
}

func TestUpsertIsIdempotent(t *testing.T) {
	l := New()
	tr := trade("t1", "b1", "s1", 3820, 50, 1000)

	assert.True(t, l.Upsert(tr))
	assert.False(t, l.Upsert(tr))
	assert.Equal(t, 1, l.Len())
	assert.True(t, l.Has(tr.MatchKey))
}

func TestUpsertOverlayConverges(t *testing.T) {
	a := trade("t-b", "b1", "s1", 3820, 50, 2000)
	b := trade("t-a", "b1", "s1", 3820, 50, 1000)
	b.Notes = "desk"

	l1, l2 := New(), New()
	l1.Upsert(a)
	l1.Upsert(b)
	l2.Upsert(b)
	l2.Upsert(a)

	require.Equal(t, 1, l1.Len())
	require.Equal(t, l1.All(), l2.All())

	got, _ := l1.Get(a.MatchKey)
	assert.Equal(t, "t-a", got.ID)
	assert.Equal(t, int64(1000), got.ExecutedAt)
	assert.Equal(t, "desk", got.Notes)
}

func TestUpsertByIDWithoutKey(t *testing.T) {
	l := New()
	l.Upsert(trade("t1", "b1", "s1", 3820, 50, 1000))

	again := trade("t1", "b1", "s1", 3820, 50, 1000)
	again.MatchKey = ""
	assert.False(t, l.Upsert(again), "derived key matches existing trade")
	assert.Equal(t, 1, l.Len())
}

func TestHistoryNewestFirst(t *testing.T) {
	l := New()
	l.Upsert(trade("t1", "b1", "s1", 3820, 50, 1000))
	l.Upsert(trade("t2", "b2", "s2", 3825, 10, 3000))
	l.Upsert(trade("t3", "b3", "s3", 3830, 10, 2000))
	other := trade("t4", "b4", "s4", 4100, 10, 5000)
	other.InstrumentID = "hrc"
	l.Upsert(other)

	h := l.History("rebar")
	require.Len(t, h, 3)
	assert.Equal(t, []string{"t2", "t3", "t1"}, []string{h[0].ID, h[1].ID, h[2].ID})

	last, ok := l.Last("hrc")
	require.True(t, ok)
	assert.Equal(t, "t4", last.ID)

	_, ok = l.Last("billet")
	assert.False(t, ok)
}

func TestUpsertIgnoresInvalidTrades(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Trade)
	}{
		{"missing buy order", func(tr *Trade) { tr.BuyOrderID = "" }},
		{"missing sell order", func(tr *Trade) { tr.SellOrderID = "" }},
		{"zero price", func(tr *Trade) { tr.Price = orderbook.NewPrice(0) }},
		{"negative price", func(tr *Trade) { tr.Price = orderbook.NewPrice(-5) }},
		{"zero quantity", func(tr *Trade) { tr.Quantity = 0 }},
		{"negative quantity", func(tr *Trade) { tr.Quantity = -10 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := trade("t1", "b1", "s1", 3820, 50, 1000)
			tt.mutate(&tr)
			assert.ErrorIs(t, tr.Validate(), ErrInvalidTrade)

			l := New()
			assert.False(t, l.Upsert(tr))
			assert.Zero(t, l.Len())
		})
	}
}
