package util

import (
	"testing"
	"time"
)

func TestFakeClock_AfterFiresOnAdvance(t *testing.T) {
	start := time.UnixMilli(1_700_000_000_000)
	c := NewFakeClock(start)

	ch := c.After(5 * time.Second)
	select {
	case <-ch:
		t.Fatal("fired before advance")
	default:
	}

	c.Advance(4 * time.Second)
	select {
	case <-ch:
		t.Fatal("fired too early")
	default:
	}

	c.Advance(time.Second)
	select {
	case got := <-ch:
		if !got.Equal(start.Add(5 * time.Second)) {
			t.Errorf("fired at %v, want %v", got, start.Add(5*time.Second))
		}
	default:
		t.Fatal("did not fire after deadline")
	}

	if !c.Now().Equal(start.Add(5 * time.Second)) {
		t.Errorf("Now() = %v", c.Now())
	}
}
