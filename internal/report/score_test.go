package report

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSafetyScore(t *testing.T) {
	tests := []struct {
		name     string
		crowd    CrowdLevel
		concerns []Concern
		want     float64
	}{
		{
			name:     "low crowd no concerns",
			crowd:    CrowdLow,
			concerns: []Concern{ConcernNone},
			want:     5.0,
		},
		{
			name:     "high crowd suspicious activity",
			crowd:    CrowdHigh,
			concerns: []Concern{ConcernSuspiciousActivity},
			want:     2.0,
		},
		{
			name:     "medium crowd poor lighting",
			crowd:    CrowdMedium,
			concerns: []Concern{ConcernPoorLighting},
			want:     3.5,
		},
		{
			name:     "high crowd technical issues",
			crowd:    CrowdHigh,
			concerns: []Concern{ConcernTechnicalIssues},
			want:     3.5,
		},
		{
			name:     "stacked concerns land exactly on the floor",
			crowd:    CrowdHigh,
			concerns: []Concern{ConcernSuspiciousActivity, ConcernPoorLighting},
			want:     1.0,
		},
		{
			name:     "stacked concerns clamp below the floor",
			crowd:    CrowdHigh,
			concerns: []Concern{ConcernSuspiciousActivity, ConcernPoorLighting, ConcernTechnicalIssues},
			want:     1.0,
		},
		{
			name:     "no concerns at all",
			crowd:    CrowdLow,
			concerns: nil,
			want:     5.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, SafetyScore(tt.crowd, tt.concerns), 1e-9)
		})
	}
}

func TestSafetyScore_OrderIndependent(t *testing.T) {
	a := SafetyScore(CrowdMedium, []Concern{ConcernPoorLighting, ConcernTechnicalIssues})
	b := SafetyScore(CrowdMedium, []Concern{ConcernTechnicalIssues, ConcernPoorLighting})
	assert.Equal(t, a, b)
}

func TestSafetyScore_Deterministic(t *testing.T) {
	for range 10 {
		assert.InDelta(t, 2.0, SafetyScore(CrowdHigh, []Concern{ConcernSuspiciousActivity}), 1e-9)
	}
}

func TestSafetyScore_AlwaysInBounds(t *testing.T) {
	for _, crowd := range CrowdLevels() {
		for _, concern := range Concerns() {
			score := SafetyScore(crowd, []Concern{concern})
			assert.GreaterOrEqual(t, score, MinSafetyScore)
			assert.LessOrEqual(t, score, MaxSafetyScore)
		}
	}
}
