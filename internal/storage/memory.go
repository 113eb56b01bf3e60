package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/safetransit/safetransit/internal/report"
)

// Memory is an in-memory append-only report store.
// Used when no PostgreSQL is configured, and throughout the tests.
// Safe for concurrent use.
type Memory struct {
	mu      sync.RWMutex
	reports []*report.Report
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{}
}

// Append stores a finalized report. Implements report.Sink.
func (m *Memory) Append(_ context.Context, r *report.Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reports = append(m.reports, r)
	return nil
}

// Recent returns up to limit reports, newest first.
func (m *Memory) Recent(_ context.Context, limit int) ([]*report.Report, error) {
	limit = clampLimit(limit)

	m.mu.RLock()
	defer m.mu.RUnlock()

	n := len(m.reports)
	if limit > n {
		limit = n
	}
	out := make([]*report.Report, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, m.reports[i])
	}
	return out, nil
}

// StopStatus returns the latest report summary per stop.
func (m *Memory) StopStatus(_ context.Context) ([]StopStatus, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	byStop := make(map[string]*StopStatus)
	for _, r := range m.reports {
		st, ok := byStop[r.Location]
		if !ok {
			st = &StopStatus{Location: r.Location}
			byStop[r.Location] = st
		}
		st.ReportCount++
		if !r.Timestamp.Before(st.LastReport) {
			st.CrowdLevel = r.CrowdLevel
			st.SafetyScore = r.SafetyScore
			st.LastReport = r.Timestamp
		}
	}

	out := make([]StopStatus, 0, len(byStop))
	for _, st := range byStop {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Location < out[j].Location })
	return out, nil
}

// Len returns the number of stored reports.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.reports)
}
