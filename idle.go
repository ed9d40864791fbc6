package sakan

import (
	"sync"
	"time"

	"github.com/golang/glog"
)

const (
	// idleAfter is how long without user activity counts as idle.
	idleAfter = 30 * time.Second
	// refreshDebounce coalesces rapid triggers into one refresh.
	refreshDebounce = 3 * time.Second
)

// ActivityMonitor decides when the app should refresh its data. The host UI
// feeds it two signals: user interactions (RecordActivity) and
// foreground/background transitions (SetVisible). Three things fire the
// refresh callback: the idle threshold elapsing with no activity, activity
// resuming after the threshold already elapsed, and the view returning to
// the foreground. All three share one debounce timer, so a burst of
// triggers costs a single refresh.
type ActivityMonitor struct {
	onRefresh func()
	idleAfter time.Duration
	debounce  time.Duration

	mu           sync.Mutex
	lastActivity time.Time
	visible      bool
	idleTimer    *time.Timer
	timer        *time.Timer
	closed       bool
}

func NewActivityMonitor(onRefresh func()) *ActivityMonitor {
	m := &ActivityMonitor{
		onRefresh:    onRefresh,
		idleAfter:    idleAfter,
		debounce:     refreshDebounce,
		lastActivity: time.Now(),
		visible:      true,
	}
	m.mu.Lock()
	m.armIdleTimerLocked()
	m.mu.Unlock()
	return m
}

// RecordActivity marks the user as active now. Activity arriving after the
// idle threshold has already elapsed schedules a refresh; either way the
// idle countdown restarts.
func (m *ActivityMonitor) RecordActivity() {
	m.mu.Lock()
	wasIdle := time.Since(m.lastActivity) >= m.idleAfter
	m.lastActivity = time.Now()
	m.armIdleTimerLocked()
	m.mu.Unlock()

	if wasIdle {
		glog.V(1).Info("activity: resumed after idle, scheduling refresh")
		m.scheduleRefresh()
	}
}

// IsIdle reports whether no activity was recorded within the idle threshold.
func (m *ActivityMonitor) IsIdle() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return time.Since(m.lastActivity) >= m.idleAfter
}

// SetVisible records a foreground/background transition. Every return to the
// foreground schedules a refresh; stores whose data is still fresh treat it
// as a no-op.
func (m *ActivityMonitor) SetVisible(visible bool) {
	m.mu.Lock()
	wasVisible := m.visible
	m.visible = visible
	m.mu.Unlock()

	if visible && !wasVisible {
		glog.V(1).Info("activity: returned to foreground, scheduling refresh")
		m.scheduleRefresh()
		m.RecordActivity()
	}
}

// armIdleTimerLocked restarts the countdown that refreshes data once the
// user goes quiet. It does not re-arm itself on expiry; the next
// RecordActivity does. m.mu must be held.
func (m *ActivityMonitor) armIdleTimerLocked() {
	if m.closed {
		return
	}
	if m.idleTimer != nil {
		m.idleTimer.Stop()
	}
	m.idleTimer = time.AfterFunc(m.idleAfter, m.scheduleRefresh)
}

func (m *ActivityMonitor) scheduleRefresh() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || m.onRefresh == nil {
		return
	}
	if m.timer != nil {
		m.timer.Stop()
	}
	m.timer = time.AfterFunc(m.debounce, m.onRefresh)
}

// Close stops the countdown and any pending refresh.
func (m *ActivityMonitor) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	if m.idleTimer != nil {
		m.idleTimer.Stop()
		m.idleTimer = nil
	}
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}
