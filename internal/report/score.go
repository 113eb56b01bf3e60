package report

// Safety score bounds. Every finalized report carries a score in
// [MinSafetyScore, MaxSafetyScore], derived from crowd level and concerns.
const (
	BaseSafetyScore = 5.0
	MinSafetyScore  = 1.0
	MaxSafetyScore  = 5.0
)

// crowdModifier is the score penalty per crowd level.
var crowdModifier = map[CrowdLevel]float64{
	CrowdLow:    0,
	CrowdMedium: -0.5,
	CrowdHigh:   -1.0,
}

// concernModifier is the score penalty per safety concern.
var concernModifier = map[Concern]float64{
	ConcernNone:               0,
	ConcernPoorLighting:       -1.0,
	ConcernSuspiciousActivity: -2.0,
	ConcernTechnicalIssues:    -0.5,
}

// SafetyScore derives a safety score from crowd level and concerns.
// Pure and order-independent: modifiers are summed onto the base score and
// the result is clamped to [MinSafetyScore, MaxSafetyScore]. Unknown values
// contribute no modifier.
func SafetyScore(crowd CrowdLevel, concerns []Concern) float64 {
	score := BaseSafetyScore + crowdModifier[crowd]
	for _, c := range concerns {
		score += concernModifier[c]
	}

	if score < MinSafetyScore {
		return MinSafetyScore
	}
	if score > MaxSafetyScore {
		return MaxSafetyScore
	}
	return score
}
