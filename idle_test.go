package sakan

import (
	"sync/atomic"
	"testing"
	"time"
)

func testMonitor(onRefresh func()) *ActivityMonitor {
	m := NewActivityMonitor(onRefresh)
	m.mu.Lock()
	m.idleAfter = 20 * time.Millisecond
	m.debounce = 10 * time.Millisecond
	m.mu.Unlock()
	// Re-arm the countdown with the shortened threshold.
	m.RecordActivity()
	return m
}

// silenceIdleTimer stops the countdown so tests can exercise the other
// triggers in isolation.
func silenceIdleTimer(m *ActivityMonitor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.idleTimer != nil {
		m.idleTimer.Stop()
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	for i := 0; i < 200; i++ {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition never became true")
}

func TestIdleDetection(t *testing.T) {
	m := testMonitor(nil)
	defer m.Close()

	if m.IsIdle() {
		t.Error("fresh monitor should not be idle")
	}
	time.Sleep(30 * time.Millisecond)
	if !m.IsIdle() {
		t.Error("monitor should be idle after the threshold")
	}
	m.RecordActivity()
	if m.IsIdle() {
		t.Error("activity should clear idleness")
	}
}

func TestIdleElapsedFiresRefresh(t *testing.T) {
	var refreshes int32
	m := testMonitor(func() { atomic.AddInt32(&refreshes, 1) })
	defer m.Close()

	// No input and no visibility change: the countdown alone fires.
	waitFor(t, func() bool { return atomic.LoadInt32(&refreshes) == 1 })

	// It does not re-arm itself: one lapse, one refresh.
	time.Sleep(50 * time.Millisecond)
	if got := atomic.LoadInt32(&refreshes); got != 1 {
		t.Errorf("idle countdown fired %d times, want 1", got)
	}
}

func TestActivityResumingAfterIdleRefreshes(t *testing.T) {
	var refreshes int32
	m := testMonitor(func() { atomic.AddInt32(&refreshes, 1) })
	defer m.Close()

	// The view stays visible throughout; only the resumed input triggers.
	silenceIdleTimer(m)
	m.mu.Lock()
	m.lastActivity = time.Now().Add(-time.Minute)
	m.mu.Unlock()

	m.RecordActivity()
	waitFor(t, func() bool { return atomic.LoadInt32(&refreshes) == 1 })
}

func TestActivityWhileFreshDoesNotRefresh(t *testing.T) {
	var refreshes int32
	m := testMonitor(func() { atomic.AddInt32(&refreshes, 1) })
	defer m.Close()

	silenceIdleTimer(m)
	for i := 0; i < 5; i++ {
		m.RecordActivity()
	}
	silenceIdleTimer(m)

	time.Sleep(15 * time.Millisecond)
	if got := atomic.LoadInt32(&refreshes); got != 0 {
		t.Errorf("continuous activity triggered %d refreshes", got)
	}
}

func TestForegroundRegainRefreshes(t *testing.T) {
	var refreshes int32
	m := testMonitor(func() { atomic.AddInt32(&refreshes, 1) })
	defer m.Close()

	// A quick round trip through the background still refreshes; stores
	// with fresh data make it a no-op downstream.
	m.SetVisible(false)
	m.SetVisible(true)

	waitFor(t, func() bool { return atomic.LoadInt32(&refreshes) == 1 })
}

func TestVisibilityFlappingDebounced(t *testing.T) {
	var refreshes int32
	m := testMonitor(func() { atomic.AddInt32(&refreshes, 1) })
	defer m.Close()

	// Each regain re-arms the same debounce timer.
	for i := 0; i < 3; i++ {
		m.SetVisible(false)
		m.SetVisible(true)
	}
	silenceIdleTimer(m)

	waitFor(t, func() bool { return atomic.LoadInt32(&refreshes) >= 1 })
	time.Sleep(30 * time.Millisecond)
	if got := atomic.LoadInt32(&refreshes); got != 1 {
		t.Errorf("flapping produced %d refreshes, want 1", got)
	}
}

func TestCloseStopsPendingRefresh(t *testing.T) {
	var refreshes int32
	m := testMonitor(func() { atomic.AddInt32(&refreshes, 1) })

	m.SetVisible(false)
	m.SetVisible(true)
	m.Close()

	time.Sleep(50 * time.Millisecond)
	if got := atomic.LoadInt32(&refreshes); got != 0 {
		t.Errorf("refresh fired after Close: %d", got)
	}
}
