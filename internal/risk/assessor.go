package risk

import (
	"context"
	"fmt"
	"strings"

	"safeflag/internal/config"
	"safeflag/internal/metrics"
	v1 "safeflag/pkg/api/v1"
)

const (
	ProviderOracle    = "oracle"
	ProviderHeuristic = "heuristic"
	ProviderStatic    = "static"
)

const (
	failSafeScore = 5
	minScore      = 1
	maxScore      = 10
)

// Input is everything an assessor sees about a pending change.
type Input struct {
	FeatureName  string
	Environment  string
	Description  string
	TrafficCount int64
}

// Assessor scores a change. It never fails: implementations fall back to FailSafe.
type Assessor interface {
	Assess(ctx context.Context, in Input) v1.RiskReport
}

// FailSafe is the report used whenever a real score cannot be produced.
func FailSafe(reason string) v1.RiskReport {
	return v1.RiskReport{
		RiskScore: failSafeScore,
		RiskLevel: v1.RiskMedium,
		Advice:    reason + "; manual review mandatory",
	}
}

// LevelFor maps a score onto low/medium/high.
func LevelFor(score int) string {
	switch {
	case score >= 8:
		return v1.RiskHigh
	case score >= 5:
		return v1.RiskMedium
	default:
		return v1.RiskLow
	}
}

func clamp(score int) int {
	if score < minScore {
		return minScore
	}
	if score > maxScore {
		return maxScore
	}
	return score
}

// New builds the assessor selected by cfg.Provider.
func New(cfg config.RiskConfig, obs metrics.GateObserver) (Assessor, error) {
	if obs == nil {
		obs = metrics.NopGateObserver()
	}
	switch strings.ToLower(cfg.Provider) {
	case "", ProviderOracle:
		return NewOracleAssessor(cfg, obs), nil
	case ProviderHeuristic:
		return NewHeuristicAssessor(cfg.Policy, obs), nil
	case ProviderStatic:
		return NewStaticAssessor(cfg.StaticScore, "static risk provider"), nil
	default:
		return nil, fmt.Errorf("unknown risk provider %q", cfg.Provider)
	}
}
