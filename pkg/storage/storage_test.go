package storage

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uhyunpark/hnitrade/pkg/app/core"
	"github.com/uhyunpark/hnitrade/pkg/app/core/ledger"
	"github.com/uhyunpark/hnitrade/pkg/app/core/orderbook"
	"github.com/uhyunpark/hnitrade/pkg/util"
)

func kvImpls(t *testing.T) map[string]KV {
	t.Helper()
	mem := NewMemKV()
	peb, err := NewPebbleKV(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() {
		mem.Close()
		peb.Close()
	})
	return map[string]KV{"mem": mem, "pebble": peb}
}

func TestKVRoundTrip(t *testing.T) {
	for name, kv := range kvImpls(t) {
		t.Run(name, func(t *testing.T) {
			_, ok, err := kv.Get("missing")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, kv.Set("a", []byte("1")))
			v, ok, err := kv.Get("a")
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, "1", string(v))

			require.NoError(t, kv.Delete("a"))
			_, ok, _ = kv.Get("a")
			assert.False(t, ok)
		})
	}
}

func TestKVWatch(t *testing.T) {
	for name, kv := range kvImpls(t) {
		t.Run(name, func(t *testing.T) {
			var mu sync.Mutex
			var seen []string
			cancel := kv.Watch(func(key string, value []byte) {
				mu.Lock()
				seen = append(seen, key+"="+string(value))
				mu.Unlock()
			})

			require.NoError(t, kv.Set(SyncKey, []byte("x")))
			require.Eventually(t, func() bool {
				mu.Lock()
				defer mu.Unlock()
				return len(seen) == 1
			}, time.Second, 5*time.Millisecond)

			cancel()
			require.NoError(t, kv.Set(SyncKey, []byte("y")))
			time.Sleep(20 * time.Millisecond)
			mu.Lock()
			assert.Equal(t, []string{SyncKey + "=x"}, seen)
			mu.Unlock()
		})
	}
}

func TestKeysByPrefix(t *testing.T) {
	for name, kv := range kvImpls(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, kv.Set(LockKeyPrefix+"b", []byte("v")))
			require.NoError(t, kv.Set(LockKeyPrefix+"a", []byte("v")))
			require.NoError(t, kv.Set(SnapshotKey, []byte("{}")))

			keys, err := kv.(Scanner).Keys(LockKeyPrefix)
			require.NoError(t, err)
			assert.Equal(t, []string{LockKeyPrefix + "a", LockKeyPrefix + "b"}, keys)
		})
	}
}

func TestKVLocker(t *testing.T) {
	clock := util.NewFakeClock(time.UnixMilli(1_000_000))
	kv := NewMemKV()
	l := NewKVLocker(kv, clock, nil)
	key := LockKeyPrefix + "b1|s1|3820|100"

	assert.True(t, l.TryAcquire(key, "r1", 5*time.Second))
	assert.True(t, l.TryAcquire(key, "r1", 5*time.Second), "owner may refresh")
	assert.False(t, l.TryAcquire(key, "r2", 5*time.Second))

	raw, _, _ := kv.Get(key)
	assert.Equal(t, "r1|1005000", string(raw))

	clock.Advance(5 * time.Second)
	assert.True(t, l.TryAcquire(key, "r2", 5*time.Second), "expired entry counts as absent")

	require.NoError(t, kv.Set(key, []byte("garbage")))
	assert.True(t, l.TryAcquire(key, "r3", time.Second), "malformed entry counts as absent")
}

func TestKVLockerSweep(t *testing.T) {
	clock := util.NewFakeClock(time.UnixMilli(0))
	kv := NewMemKV()
	l := NewKVLocker(kv, clock, nil)

	l.TryAcquire(LockKeyPrefix+"old", "r1", time.Second)
	clock.Advance(2 * time.Second)
	l.TryAcquire(LockKeyPrefix+"new", "r1", time.Second)

	n, err := l.Sweep()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	_, ok, _ := kv.Get(LockKeyPrefix + "new")
	assert.True(t, ok)
}

func TestSnapshotStoreRoundTrip(t *testing.T) {
	for name, kv := range kvImpls(t) {
		t.Run(name, func(t *testing.T) {
			s := NewSnapshotStore(kv, nil)
			ctx := context.Background()

			empty, err := s.Load(ctx)
			require.NoError(t, err)
			assert.True(t, empty.Empty())

			snap := core.Snapshot{
				Orders: []core.Order{{
					ID: "o1", Side: orderbook.Bid, InstrumentID: "rebar", Price: orderbook.NewPrice(3830),
					Quantity: 200, Attributes: orderbook.Attrs("品牌", orderbook.WildcardSentinel, "材质", "HRB400"),
					OwnerRole: orderbook.RoleBuyer, CreatedAt: 42, Status: orderbook.Open,
				}},
				Trades: []core.Trade{{
					ID: "t1", BuyOrderID: "o1", SellOrderID: "o2", Price: orderbook.NewPrice(3820), Quantity: 10,
					InstrumentID: "rebar", ExecutedAt: 43, MatchedBy: ledger.Auto,
					MatchKey: ledger.MatchKey("o1", "o2", orderbook.NewPrice(3820), 10),
				}},
			}
			require.NoError(t, s.Save(ctx, snap))

			got, err := s.Load(ctx)
			require.NoError(t, err)
			require.Len(t, got.Orders, 1)
			assert.Equal(t, snap.Orders[0].ID, got.Orders[0].ID)
			assert.True(t, got.Orders[0].Price.Equal(snap.Orders[0].Price))
			assert.Equal(t, snap.Orders[0].Attributes, got.Orders[0].Attributes)
			require.Len(t, got.Trades, 1)
			assert.Equal(t, snap.Trades[0].MatchKey, got.Trades[0].MatchKey)
		})
	}
}

const legacyJSON = `{"state":{"orders":[
 {"id":"3","role":"BUYER","type":"BID","price":3830,"quantity":200,"categoryId":"steel","typeId":"rebar",
  "attributes":{"品牌":"ANY","规格":"Φ18-25","材质":"*"},"timestamp":1700000000000,"status":"OPEN"},
 {"id":"mock-sell-1","role":"SELLER","type":"ASK","price":3840,"quantity":5,"categoryId":"steel","typeId":"rebar",
  "attributes":{"品牌":"沙钢"},"timestamp":1699999999000,"status":"FILLED"},
 {"role":"SELLER","type":"ASK","price":1,"quantity":1}
],"trades":[
 {"id":"t1","buyOrderId":"mock-buy-1","sellOrderId":"mock-sell-1","price":3840,"quantity":50,"categoryId":"steel","typeId":"rebar","timestamp":1700000001000,"matchedBy":"AUTO","notes":null}
]},"version":0}`

func TestLegacySnapshotNormalized(t *testing.T) {
	kv := NewMemKV()
	require.NoError(t, kv.Set(LegacySnapshotKey, []byte(legacyJSON)))
	s := NewSnapshotStore(kv, nil)

	snap, err := s.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, snap.Orders, 2, "order without id dropped")

	bid := snap.Orders[0]
	assert.Equal(t, orderbook.Bid, bid.Side)
	assert.Equal(t, "rebar", bid.InstrumentID)
	assert.Equal(t, orderbook.RoleBuyer, bid.OwnerRole)
	assert.Equal(t, int64(1700000000000), bid.CreatedAt)
	brand, _ := bid.Attributes.Get("品牌")
	assert.True(t, brand.IsWildcard())
	material, _ := bid.Attributes.Get("材质")
	assert.True(t, material.IsWildcard())
	assert.Equal(t, "规格", bid.Attributes[1].Name)

	assert.Equal(t, int64(0), snap.Orders[1].Quantity, "filled order carries no quantity")

	require.Len(t, snap.Trades, 1)
	tr := snap.Trades[0]
	assert.Equal(t, "mock-buy-1|mock-sell-1|3840|50", tr.MatchKey)
	assert.Equal(t, int64(1700000001000), tr.ExecutedAt)
	assert.Equal(t, "rebar", tr.InstrumentID)

	_, migrated, _ := kv.Get(SnapshotKey)
	assert.True(t, migrated)
}

func TestFileWAL(t *testing.T) {
	w, err := NewFileWAL(t.TempDir() + "/events.log")
	require.NoError(t, err)
	w.Append("order_added e1 r1")
	require.NoError(t, w.Close())
}

func TestLegacyQuantityRounding(t *testing.T) {
	tests := []struct {
		in   float64
		want int64
	}{
		{200, 200},
		{0.3, 0},
		{2.5, 3},
		{-4, 0},
		{math.NaN(), 0},
		{math.Inf(1), math.MaxInt64},
		{math.Inf(-1), 0},
		{1e300, math.MaxInt64},
		{math.MaxInt64, math.MaxInt64},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, quantity(tt.in), "quantity(%v)", tt.in)
	}
}
