package risk

import (
	"fmt"
	"strings"

	"safeflag/internal/config"
)

func quoteAll(words []string) string {
	quoted := make([]string, 0, len(words))
	for _, w := range words {
		quoted = append(quoted, "'"+w+"'")
	}
	return strings.Join(quoted, ", ")
}

// renderPolicy turns the configured weights into the rules handed to the oracle.
func renderPolicy(p config.RiskPolicy) string {
	var b strings.Builder
	fmt.Fprintf(&b, "1. SENSITIVITY: If %s appears in a Production change, base risk is HIGH.\n", quoteAll(p.SensitiveKeywords))
	fmt.Fprintf(&b, "2. BLAST RADIUS: If traffic > %d, increase risk_score by +%d.\n", p.TrafficThreshold, p.TrafficBump)
	fmt.Fprintf(&b, "3. MITIGATION: If the description mentions %s, reduce risk_score by %d-%d points.\n",
		quoteAll(p.MitigationKeywords), p.MitigationCredit, p.MitigationCredit+1)
	fmt.Fprintf(&b, "4. ZERO TRAFFIC RULE: If traffic is 0 and mitigations exist, risk_score must not exceed %d.\n", p.ZeroTrafficCap)
	return b.String()
}

func buildPrompt(in Input, p config.RiskPolicy) string {
	return fmt.Sprintf(`Act as a Senior DevOps and Infrastructure Safety Engineer.
Task: analyze the technical risk of toggling this feature flag.

Context:
- Feature: %s
- Environment: %s
- Current live traffic (hits in the assessment window): %d
- Description: %s

Internal policy (safety weights):
%s
Return ONLY a raw JSON object with this structure:
{"risk_score": <int 1-10>, "advice": "<technical explanation>", "risk_level": "low" | "medium" | "high"}`,
		in.FeatureName, in.Environment, in.TrafficCount, in.Description, renderPolicy(p))
}

func containsAny(text string, words []string) bool {
	text = strings.ToLower(text)
	for _, w := range words {
		if w != "" && strings.Contains(text, strings.ToLower(w)) {
			return true
		}
	}
	return false
}
