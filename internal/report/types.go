// Package report implements the incident-report intake flow.
//
// A Report is the value record a rider submits about a transit stop. Reports
// are collected one field at a time by the Intake state machine and handed to
// the storage and analysis collaborators only once complete. The Sessions
// manager keys one in-progress Intake per actor (browser session or chat
// identity) so independent riders never share state.
package report

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrUnknownCrowdLevel indicates input that is not a crowd level.
	ErrUnknownCrowdLevel = errors.New("unknown crowd level")

	// ErrUnknownConcern indicates input that is not a safety concern.
	ErrUnknownConcern = errors.New("unknown safety concern")

	// ErrUnknownLocation indicates a location that is not in the stop registry.
	ErrUnknownLocation = errors.New("unknown location")
)

// CrowdLevel describes how crowded a stop is at report time.
type CrowdLevel string

// Crowd levels, in increasing order of load.
const (
	CrowdLow    CrowdLevel = "Low"
	CrowdMedium CrowdLevel = "Medium"
	CrowdHigh   CrowdLevel = "High"
)

// CrowdLevels returns all valid crowd levels in display order.
func CrowdLevels() []CrowdLevel {
	return []CrowdLevel{CrowdLow, CrowdMedium, CrowdHigh}
}

// ParseCrowdLevel parses user input into a CrowdLevel.
// Matching is case-insensitive and ignores surrounding whitespace.
// Returns ErrUnknownCrowdLevel (wrapped with accepted values) on a miss.
func ParseCrowdLevel(s string) (CrowdLevel, error) {
	trimmed := strings.TrimSpace(s)
	for _, level := range CrowdLevels() {
		if strings.EqualFold(trimmed, string(level)) {
			return level, nil
		}
	}
	return "", fmt.Errorf("%w: %q, expected one of %s",
		ErrUnknownCrowdLevel, s, joinCrowdLevels())
}

func joinCrowdLevels() string {
	levels := CrowdLevels()
	parts := make([]string, len(levels))
	for i, l := range levels {
		parts[i] = string(l)
	}
	return strings.Join(parts, ", ")
}

// Concern is a safety concern a rider can attach to a report.
type Concern string

// Safety concerns. ConcernNone excludes all others in a single report.
const (
	ConcernNone               Concern = "None"
	ConcernPoorLighting       Concern = "Poor Lighting"
	ConcernSuspiciousActivity Concern = "Suspicious Activity"
	ConcernTechnicalIssues    Concern = "Technical Issues"
)

// Concerns returns all valid safety concerns in display order.
func Concerns() []Concern {
	return []Concern{ConcernNone, ConcernPoorLighting, ConcernSuspiciousActivity, ConcernTechnicalIssues}
}

// ParseConcern parses user input into a Concern.
// Matching is case-insensitive and ignores surrounding whitespace.
// Returns ErrUnknownConcern (wrapped with accepted values) on a miss.
func ParseConcern(s string) (Concern, error) {
	trimmed := strings.TrimSpace(s)
	for _, c := range Concerns() {
		if strings.EqualFold(trimmed, string(c)) {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: %q, expected one of %s",
		ErrUnknownConcern, s, joinConcerns())
}

func joinConcerns() string {
	concerns := Concerns()
	parts := make([]string, len(concerns))
	for i, c := range concerns {
		parts[i] = string(c)
	}
	return strings.Join(parts, ", ")
}

// NormalizeConcerns deduplicates a concern list and enforces the invariant
// that "None" excludes every other concern. Order is preserved.
func NormalizeConcerns(concerns []Concern) []Concern {
	seen := make(map[Concern]bool, len(concerns))
	out := make([]Concern, 0, len(concerns))
	for _, c := range concerns {
		if c == ConcernNone {
			return []Concern{ConcernNone}
		}
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	return out
}

// Report is a finalized incident report. It is immutable once built by the
// intake machine: Timestamp and SafetyScore are assigned at finalization and
// never edited afterwards.
type Report struct {
	ID             uuid.UUID  `json:"id"`
	Location       string     `json:"location"`
	CrowdLevel     CrowdLevel `json:"crowd_level"`
	Concerns       []Concern  `json:"safety_concerns"`
	AdditionalInfo string     `json:"additional_info,omitempty"`
	Timestamp      time.Time  `json:"timestamp"`
	SafetyScore    float64    `json:"safety_score"`
}

// ConcernsLine renders the concern set for confirmations and prompts.
func (r *Report) ConcernsLine() string {
	parts := make([]string, len(r.Concerns))
	for i, c := range r.Concerns {
		parts[i] = string(c)
	}
	return strings.Join(parts, ", ")
}
