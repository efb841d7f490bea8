// Package monitor tracks the health of background tasks and disk usage.
package monitor

import (
	"sync"
	"time"

	"github.com/nicktill/ntk-tracker/pkg/clock"
)

// TaskMonitor tracks the outcome of a recurring background task.
type TaskMonitor struct {
	name        string
	clock       clock.Clock
	staleAfter  time.Duration
	maxFailures int

	mu                sync.RWMutex
	lastSuccess       time.Time
	lastAttempt       time.Time
	consecutiveErrors int
	totalRuns         int
	lastError         string
}

// NewTaskMonitor creates a monitor for a task that should succeed at least
// once per staleAfter (zero disables the check) and is reported unhealthy
// after more than maxFailures consecutive failures.
func NewTaskMonitor(name string, clk clock.Clock, staleAfter time.Duration, maxFailures int) *TaskMonitor {
	return &TaskMonitor{name: name, clock: clk, staleAfter: staleAfter, maxFailures: maxFailures}
}

// Name returns the task name.
func (m *TaskMonitor) Name() string { return m.name }

// RecordSuccess records a successful run.
func (m *TaskMonitor) RecordSuccess() {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.clock.Now()
	m.lastSuccess = now
	m.lastAttempt = now
	m.consecutiveErrors = 0
	m.totalRuns++
	m.lastError = ""
}

// RecordFailure records a failed run.
func (m *TaskMonitor) RecordFailure(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastAttempt = m.clock.Now()
	m.consecutiveErrors++
	m.totalRuns++
	if err != nil {
		m.lastError = err.Error()
	}
}

// IsHealthy reports whether the task is keeping up. A task that has not
// run yet is healthy.
func (m *TaskMonitor) IsHealthy() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.healthyLocked()
}

func (m *TaskMonitor) healthyLocked() bool {
	if m.consecutiveErrors > m.maxFailures {
		return false
	}
	if m.staleAfter > 0 && !m.lastSuccess.IsZero() && m.clock.Now().Sub(m.lastSuccess) > m.staleAfter {
		return false
	}
	return true
}

// TaskStatus is the health check view of a task.
type TaskStatus struct {
	Name              string `json:"name"`
	Healthy           bool   `json:"healthy"`
	LastSuccess       string `json:"last_success,omitempty"`
	TimeSinceSuccess  string `json:"time_since_success,omitempty"`
	LastAttempt       string `json:"last_attempt,omitempty"`
	Runs              int    `json:"runs"`
	ConsecutiveErrors int    `json:"consecutive_errors,omitempty"`
	LastError         string `json:"last_error,omitempty"`
}

// Status returns the current task status.
func (m *TaskMonitor) Status() TaskStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	status := TaskStatus{
		Name:    m.name,
		Healthy: m.healthyLocked(),
		Runs:    m.totalRuns,
	}
	if !m.lastSuccess.IsZero() {
		status.LastSuccess = m.lastSuccess.Format(time.RFC3339)
		status.TimeSinceSuccess = m.clock.Now().Sub(m.lastSuccess).Round(time.Second).String()
	}
	if !m.lastAttempt.IsZero() {
		status.LastAttempt = m.lastAttempt.Format(time.RFC3339)
	}
	if m.consecutiveErrors > 0 {
		status.ConsecutiveErrors = m.consecutiveErrors
		status.LastError = m.lastError
	}
	return status
}
