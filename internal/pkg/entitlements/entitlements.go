package entitlements

import "strings"

type Plan string

const (
	PlanFree    Plan = "free"
	PlanStarter Plan = "starter"
	PlanGrowth  Plan = "growth"
	PlanScale   Plan = "scale"
)

// MonthlyTryOnQuota returns the number of completed try-ons included per
// billing period. nil means unlimited.
func MonthlyTryOnQuota(plan Plan) *int64 {
	var quota int64
	switch plan {
	case PlanScale:
		return nil
	case PlanGrowth:
		quota = 5000
	case PlanStarter:
		quota = 500
	default:
		quota = 50
	}
	return &quota
}

// MaxTryOnsCeiling returns the highest per-session try-on limit a merchant
// may request at session creation.
func MaxTryOnsCeiling(plan Plan) int {
	switch plan {
	case PlanScale, PlanGrowth:
		return 10
	case PlanStarter:
		return 5
	default:
		return 3
	}
}

// Normalize maps an arbitrary plan string to a known plan, defaulting to free.
func Normalize(plan string) Plan {
	switch Plan(strings.ToLower(strings.TrimSpace(plan))) {
	case PlanStarter:
		return PlanStarter
	case PlanGrowth:
		return PlanGrowth
	case PlanScale:
		return PlanScale
	default:
		return PlanFree
	}
}
