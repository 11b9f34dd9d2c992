package risk

import (
	"context"
	"testing"

	"safeflag/internal/config"
	v1 "safeflag/pkg/api/v1"
)

func TestLevelFor(t *testing.T) {
	tests := []struct {
		score int
		want  string
	}{
		{1, v1.RiskLow},
		{4, v1.RiskLow},
		{5, v1.RiskMedium},
		{7, v1.RiskMedium},
		{8, v1.RiskHigh},
		{10, v1.RiskHigh},
	}
	for _, tt := range tests {
		if got := LevelFor(tt.score); got != tt.want {
			t.Errorf("LevelFor(%d) = %s, want %s", tt.score, got, tt.want)
		}
	}
}

func TestHeuristicAssessor_Policy(t *testing.T) {
	a := NewHeuristicAssessor(testPolicy(), nil)

	tests := []struct {
		name string
		in   Input
		want int
	}{
		{"plain change", Input{FeatureName: "dark_mode", Environment: "Production", TrafficCount: 10}, 3},
		{"sensitive in production", Input{FeatureName: "payment_flow", Environment: "Production", TrafficCount: 10}, 8},
		{"sensitive in staging", Input{FeatureName: "auth_rework", Environment: "Staging", TrafficCount: 10}, 5},
		{"sensitive with heavy traffic", Input{FeatureName: "database_pool", Environment: "production", TrafficCount: 1001}, 10},
		{"threshold is exclusive", Input{FeatureName: "dark_mode", Environment: "Production", TrafficCount: 1000}, 3},
		{"mitigated sensitive change", Input{FeatureName: "payment_flow", Environment: "Production", Description: "behind a circuit breaker", TrafficCount: 10}, 5},
		{"zero traffic cap", Input{FeatureName: "payment_flow", Environment: "Production", Description: "Internal only", TrafficCount: 0}, 5},
		{"clamped at one", Input{FeatureName: "banner", Environment: "Development", Description: "alpha testing internal", TrafficCount: 3}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := a.Assess(context.Background(), tt.in)
			if report.RiskScore != tt.want {
				t.Fatalf("expected score %d, got %d (%s)", tt.want, report.RiskScore, report.Advice)
			}
			if report.RiskLevel != LevelFor(tt.want) {
				t.Errorf("level %s does not match score %d", report.RiskLevel, tt.want)
			}
		})
	}
}

func TestHeuristicAssessor_ZeroTrafficCapApplies(t *testing.T) {
	policy := testPolicy()
	policy.MitigationCredit = 0
	a := NewHeuristicAssessor(policy, nil)

	report := a.Assess(context.Background(), Input{FeatureName: "payment_flow", Environment: "Production", Description: "internal", TrafficCount: 0})
	if report.RiskScore != 7 {
		t.Fatalf("expected cap at 7, got %d", report.RiskScore)
	}
}

func TestStaticAssessor_RecordsCalls(t *testing.T) {
	a := NewStaticAssessor(9, "always risky")
	in := Input{FeatureName: "x", TrafficCount: 42}

	report := a.Assess(context.Background(), in)
	if report.RiskScore != 9 || report.RiskLevel != v1.RiskHigh {
		t.Fatalf("unexpected report: %+v", report)
	}
	if a.Calls() != 1 || a.LastInput() != in {
		t.Fatalf("expected one recorded call with %+v, got %d %+v", in, a.Calls(), a.LastInput())
	}
}

func TestNew_SelectsProvider(t *testing.T) {
	tests := []struct {
		provider string
		check    func(Assessor) bool
		wantErr  bool
	}{
		{"oracle", func(a Assessor) bool { _, ok := a.(*OracleAssessor); return ok }, false},
		{"", func(a Assessor) bool { _, ok := a.(*OracleAssessor); return ok }, false},
		{"heuristic", func(a Assessor) bool { _, ok := a.(*HeuristicAssessor); return ok }, false},
		{"Static", func(a Assessor) bool { _, ok := a.(*StaticAssessor); return ok }, false},
		{"coinflip", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			a, err := New(config.RiskConfig{Provider: tt.provider, StaticScore: 5, Policy: testPolicy()}, nil)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tt.check(a) {
				t.Fatalf("unexpected assessor type %T", a)
			}
		})
	}
}
