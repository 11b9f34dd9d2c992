package risk

import (
	"context"
	"fmt"
	"strings"

	"safeflag/internal/config"
	"safeflag/internal/metrics"
	v1 "safeflag/pkg/api/v1"
	"safeflag/pkg/constraints"
)

const (
	baseScore          = 3
	sensitiveScore     = 8
	sensitiveLowerEnvs = 5
)

// HeuristicAssessor applies the configured policy locally, without a network call.
type HeuristicAssessor struct {
	policy config.RiskPolicy
	obs    metrics.GateObserver
}

func NewHeuristicAssessor(policy config.RiskPolicy, obs metrics.GateObserver) *HeuristicAssessor {
	if obs == nil {
		obs = metrics.NopGateObserver()
	}
	return &HeuristicAssessor{policy: policy, obs: obs}
}

func (h *HeuristicAssessor) Assess(_ context.Context, in Input) v1.RiskReport {
	var notes []string
	score := baseScore

	if containsAny(in.FeatureName+" "+in.Description, h.policy.SensitiveKeywords) {
		if strings.EqualFold(in.Environment, constraints.ProductionEnv) {
			score = sensitiveScore
		} else {
			score = sensitiveLowerEnvs
		}
		notes = append(notes, "touches a sensitive subsystem")
	}
	if in.TrafficCount > h.policy.TrafficThreshold {
		score += h.policy.TrafficBump
		notes = append(notes, fmt.Sprintf("%d recent hits exceed the traffic threshold", in.TrafficCount))
	}
	mitigated := containsAny(in.Description, h.policy.MitigationKeywords)
	if mitigated {
		score -= h.policy.MitigationCredit
		notes = append(notes, "mitigation documented")
	}
	if mitigated && in.TrafficCount == 0 && score > h.policy.ZeroTrafficCap {
		score = h.policy.ZeroTrafficCap
	}
	score = clamp(score)

	advice := "No elevated risk factors found."
	if len(notes) > 0 {
		advice = "Change " + strings.Join(notes, ", ") + "."
	}
	h.obs.RecordAssessment(ProviderHeuristic, "ok")

	return v1.RiskReport{
		RiskScore: score,
		RiskLevel: LevelFor(score),
		Advice:    advice,
	}
}
