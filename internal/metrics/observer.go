package metrics

type HubObserver interface {
	IncOnline()
	DecOnline()
	RecordPush()
	ObservePushLatency(duration float64)
	UpdateEventLag(lag int)
}

// GateObserver records risk assessments and toggle decisions.
type GateObserver interface {
	RecordAssessment(provider, outcome string)
	RecordDecision(env, outcome string)
	ObserveRiskScore(score int)
}

type nopGateObserver struct{}

func (nopGateObserver) RecordAssessment(provider, outcome string) {}
func (nopGateObserver) RecordDecision(env, outcome string)        {}
func (nopGateObserver) ObserveRiskScore(score int)                {}

// NopGateObserver discards everything.
func NopGateObserver() GateObserver {
	return nopGateObserver{}
}
