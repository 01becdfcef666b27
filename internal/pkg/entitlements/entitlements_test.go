package entitlements

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want Plan
	}{
		{in: "free", want: PlanFree},
		{in: "starter", want: PlanStarter},
		{in: "growth", want: PlanGrowth},
		{in: "scale", want: PlanScale},
		{in: "SCALE", want: PlanScale},
		{in: " starter ", want: PlanStarter},
		{in: "invalid", want: PlanFree},
		{in: "", want: PlanFree},
	}

	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Fatalf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestMonthlyTryOnQuota(t *testing.T) {
	if q := MonthlyTryOnQuota(PlanScale); q != nil {
		t.Fatalf("expected scale plan to be unlimited, got %d", *q)
	}
	if q := MonthlyTryOnQuota(PlanFree); q == nil || *q != 50 {
		t.Fatalf("expected free plan quota of 50, got %v", q)
	}
	if q := MonthlyTryOnQuota(PlanGrowth); q == nil || *q <= *MonthlyTryOnQuota(PlanStarter) {
		t.Fatalf("expected growth quota to exceed starter quota")
	}
}

func TestMaxTryOnsCeiling(t *testing.T) {
	if MaxTryOnsCeiling(PlanFree) >= MaxTryOnsCeiling(PlanStarter) {
		t.Fatalf("expected starter ceiling to outrank free")
	}
	if MaxTryOnsCeiling(PlanStarter) >= MaxTryOnsCeiling(PlanScale) {
		t.Fatalf("expected scale ceiling to outrank starter")
	}
}
