package feeder

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uhyunpark/hnitrade/pkg/app/core/market"
	"github.com/uhyunpark/hnitrade/pkg/app/core/orderbook"
	"github.com/uhyunpark/hnitrade/pkg/replication"
)

func TestGeneratedOrdersAreValid(t *testing.T) {
	reg := market.DefaultCatalog()
	gen := NewGenerator(reg.List(), 42)

	for i := 0; i < 500; i++ {
		d := gen.GenerateOrder()
		require.NoError(t, d.Validate())
		require.True(t, reg.Exists(d.InstrumentID))

		in, err := reg.Get(d.InstrumentID)
		require.NoError(t, err)
		require.Len(t, d.Attributes, len(in.Attributes))
		for _, a := range d.Attributes {
			spec, ok := in.Attribute(a.Name)
			require.True(t, ok)
			if !a.Value.IsWildcard() {
				assert.Contains(t, spec.Options, a.Value.Text())
			}
		}
		assert.Zero(t, d.Quantity%10)
	}
	assert.Equal(t, 500, gen.Stats().Orders)
}

func TestGeneratorIsDeterministicPerSeed(t *testing.T) {
	list := market.DefaultCatalog().List()
	a, b := NewGenerator(list, 7), NewGenerator(list, 7)
	for i := 0; i < 20; i++ {
		assert.Equal(t, a.GenerateOrder(), b.GenerateOrder())
	}
}

func TestNextCancelsOnlyRememberedOrders(t *testing.T) {
	gen := NewGenerator(market.DefaultCatalog().List(), 1)
	for i := 0; i < 50; i++ {
		require.NotNil(t, gen.Next().Order, "nothing to cancel yet")
	}

	gen.Remember("o-1")
	gen.Remember("o-2")
	seen := map[string]int{}
	for i := 0; i < 500; i++ {
		if a := gen.Next(); a.Order == nil {
			seen[a.CancelID]++
		}
	}
	assert.Equal(t, map[string]int{"o-1": 1, "o-2": 1}, seen)
	assert.Equal(t, 2, gen.Stats().Cancels)
}

type countingSubmitter struct {
	mu        sync.Mutex
	submitted int
}

func (c *countingSubmitter) SubmitOrder(_ context.Context, d orderbook.OrderData) (orderbook.Order, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.submitted++
	return orderbook.Order{ID: "x", Status: orderbook.Open}, nil
}

func (c *countingSubmitter) CancelOrder(context.Context, string) bool { return true }

func (c *countingSubmitter) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.submitted
}

func TestStartFeedsUntilCancelled(t *testing.T) {
	sub := &countingSubmitter{}
	gen := NewGenerator(market.DefaultCatalog().List(), 3)
	stop := Start(context.Background(), sub, gen, Config{Interval: time.Millisecond, BatchSize: 2}, nil)

	require.Eventually(t, func() bool { return sub.count() >= 5 }, 2*time.Second, time.Millisecond)
	stop()
}

func TestDemoSnapshotSeedsQuietBook(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	snap := DemoSnapshot(now)
	require.Len(t, snap.Orders, 6)
	require.Len(t, snap.Trades, 1)

	cfg := replication.DefaultConfig()
	cfg.Catalog = market.DefaultCatalog()
	r := replication.New(cfg)
	r.Ingest(context.Background(), snap)

	assert.Len(t, r.TradeHistory("rebar"), 1, "seed book does not cross")
	assert.Len(t, r.OpenOrders(orderbook.Bid, "rebar"), 2)
	assert.Len(t, r.OpenOrders(orderbook.Ask, "rebar"), 2)

	d := r.Depth("rebar")
	require.NotNil(t, d.Spread)
	assert.Equal(t, "10", d.Spread.String())

	wild, ok := r.Order("demo-3")
	require.True(t, ok)
	brand, _ := wild.Attributes.Get("品牌")
	assert.True(t, brand.IsWildcard())

	assert.Equal(t, replication.Digest(snap), replication.Digest(DemoSnapshot(now)))
}
