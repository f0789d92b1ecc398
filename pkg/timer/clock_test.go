package timer

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestSchedule_FiresWithCurrentGeneration(t *testing.T) {
	c := New(nil)
	var got uint64
	var fired int32

	before := c.Generation(Door)
	c.Schedule(Door, 10*time.Millisecond, func(gen uint64) {
		got = gen
		atomic.StoreInt32(&fired, 1)
	})
	after := c.Generation(Door)
	if after == before {
		t.Fatalf("Generation(Door) did not advance on Schedule")
	}

	waitFor(t, func() bool { return atomic.LoadInt32(&fired) == 1 })
	if got != after {
		t.Errorf("fired with gen %d, want %d", got, after)
	}
}

func TestCancel_SuppressesPendingFire(t *testing.T) {
	c := New(nil)
	var fired int32
	c.Schedule(Motor, 15*time.Millisecond, func(gen uint64) {
		atomic.StoreInt32(&fired, 1)
	})
	c.Cancel(Motor)

	time.Sleep(40 * time.Millisecond)
	if atomic.LoadInt32(&fired) == 1 {
		t.Error("callback fired after Cancel")
	}
}

func TestSchedule_SupersedesPriorPending(t *testing.T) {
	c := New(nil)
	var firstFired, secondFired int32
	c.Schedule(Door, 15*time.Millisecond, func(gen uint64) {
		atomic.StoreInt32(&firstFired, 1)
	})
	c.Schedule(Door, 15*time.Millisecond, func(gen uint64) {
		atomic.StoreInt32(&secondFired, 1)
	})

	waitFor(t, func() bool { return atomic.LoadInt32(&secondFired) == 1 })
	if atomic.LoadInt32(&firstFired) == 1 {
		t.Error("superseded callback fired")
	}
}

func TestIsCurrent(t *testing.T) {
	c := New(nil)
	c.Schedule(Door, time.Hour, func(gen uint64) {})
	gen := c.Generation(Door)

	if !c.IsCurrent(Door, gen) {
		t.Error("IsCurrent false for the generation just scheduled")
	}
	c.Cancel(Door)
	if c.IsCurrent(Door, gen) {
		t.Error("IsCurrent true after Cancel bumped the generation")
	}
}

func TestChannel_String(t *testing.T) {
	if Door.String() != "door" {
		t.Errorf("Door.String() = %q", Door.String())
	}
	if Motor.String() != "motor" {
		t.Errorf("Motor.String() = %q", Motor.String())
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met within timeout")
}
