package scoring

// Tier is the status derived from a score against policy thresholds.
type Tier int

const (
	TierCritical Tier = iota
	TierDegrading
	TierHealthy
)

func (t Tier) String() string {
	switch t {
	case TierCritical:
		return "Critical"
	case TierDegrading:
		return "Degrading"
	case TierHealthy:
		return "Healthy"
	default:
		return "unknown"
	}
}

// TierFor buckets a score: below critical is Critical, below warning is
// Degrading, everything else Healthy.
func TierFor(score, criticalThreshold, warningThreshold float64) Tier {
	switch {
	case score < criticalThreshold:
		return TierCritical
	case score < warningThreshold:
		return TierDegrading
	default:
		return TierHealthy
	}
}
