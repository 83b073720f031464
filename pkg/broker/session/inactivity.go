package session

import (
	"sync"
	"time"
)

// inactivityMonitor disconnects an idle session after a configured period
// with no qualifying activity. A zero timeout disables it permanently.
type inactivityMonitor struct {
	timeout time.Duration
	onIdle  func()

	// afterFunc is swappable so tests can control time.
	afterFunc func(d time.Duration, f func()) *time.Timer

	mu    sync.Mutex
	timer *time.Timer
}

func newInactivityMonitor(timeout time.Duration, onIdle func()) *inactivityMonitor {
	return &inactivityMonitor{
		timeout:   timeout,
		onIdle:    onIdle,
		afterFunc: time.AfterFunc,
	}
}

// Reset cancels any pending fire and schedules a new one for the configured
// duration. Every qualifying activity goes through here.
func (m *inactivityMonitor) Reset() {
	if m.timeout <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.timer != nil {
		m.timer.Stop()
	}
	m.timer = m.afterFunc(m.timeout, m.onIdle)
}

// Stop cancels the pending fire, if any.
func (m *inactivityMonitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}
