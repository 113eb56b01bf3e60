// Package storage provides the append-only report stores.
//
// Two implementations back the same surface: Postgres for deployments and
// Memory for development and tests. Reports are append-only; nothing here
// updates or deletes a submitted record, so concurrent writers only need
// append safety, never read-modify-write coordination.
package storage

import (
	"time"

	"github.com/safetransit/safetransit/internal/report"
)

// StopStatus summarizes the latest activity at one stop for the dashboard map.
type StopStatus struct {
	Location    string            `json:"location"`
	CrowdLevel  report.CrowdLevel `json:"crowd_level"`
	SafetyScore float64           `json:"safety_score"`
	LastReport  time.Time         `json:"last_report"`
	ReportCount int               `json:"report_count"`
}

// DefaultRecentLimit bounds Recent queries when the caller passes no limit.
const DefaultRecentLimit = 50

// MaxRecentLimit is the hard ceiling on Recent queries.
const MaxRecentLimit = 500

// clampLimit normalizes a caller-supplied limit.
func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultRecentLimit
	}
	if limit > MaxRecentLimit {
		return MaxRecentLimit
	}
	return limit
}
