package notify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uhyunpark/hnitrade/pkg/util"
)

func TestPushAndExpire(t *testing.T) {
	clock := util.NewFakeClock(time.UnixMilli(10_000))
	s := NewSink(clock, 5*time.Second, 10)

	n := s.Push(Notification{Title: "Auto match executed", Role: "SYSTEM"})
	assert.NotEmpty(t, n.ID)
	assert.Equal(t, int64(10_000), n.Timestamp)
	assert.Equal(t, KindInfo, n.Kind)

	clock.Advance(4 * time.Second)
	require.Len(t, s.List(), 1)

	clock.Advance(time.Second)
	assert.Empty(t, s.List())
}

func TestExpireCountsRemoved(t *testing.T) {
	clock := util.NewFakeClock(time.UnixMilli(0))
	s := NewSink(clock, time.Second, 10)
	s.Push(Notification{Title: "a"})
	clock.Advance(2 * time.Second)
	s.Push(Notification{Title: "b"})

	assert.Equal(t, 1, s.Expire())
	got := s.List()
	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].Title)
}

func TestCapacityEvictsOldest(t *testing.T) {
	s := NewSink(util.NewFakeClock(time.UnixMilli(1)), time.Minute, 2)
	s.Push(Notification{Title: "1"})
	s.Push(Notification{Title: "2"})
	s.Push(Notification{Title: "3"})

	got := s.List()
	require.Len(t, got, 2)
	assert.Equal(t, "2", got[0].Title)
	assert.Equal(t, "3", got[1].Title)
}

func TestDismiss(t *testing.T) {
	s := NewSink(util.NewFakeClock(time.UnixMilli(1)), time.Minute, 10)
	n := s.Push(Notification{Title: "x"})

	assert.True(t, s.Dismiss(n.ID))
	assert.False(t, s.Dismiss(n.ID))
	assert.Empty(t, s.List())
}

func TestSubscribe(t *testing.T) {
	s := NewSink(util.NewFakeClock(time.UnixMilli(1)), time.Minute, 10)
	ch, cancel := s.Subscribe(4)

	s.Push(Notification{Title: "live"})
	select {
	case n := <-ch:
		assert.Equal(t, "live", n.Title)
	case <-time.After(time.Second):
		t.Fatal("no notification delivered")
	}

	cancel()
	cancel()
	_, open := <-ch
	assert.False(t, open)
	s.Push(Notification{Title: "after cancel"})
}
