package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	onlineGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "safeflag_online_clients",
		Help: "Number of connected stream clients",
	})
	pushCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "safeflag_push_total",
		Help: "Total number of flag state pushes",
	})
	pushLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "safeflag_push_latency_seconds",
		Help:    "Time spent fanning a message out to stream clients",
		Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
	})
	eventLag = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "safeflag_hub_event_lag",
		Help: "Messages waiting in the hub broadcast queue",
	})

	riskAssessments = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "safeflag_risk_assessments_total",
		Help: "Risk assessments by provider and outcome",
	}, []string{"provider", "outcome"})
	toggleDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "safeflag_toggle_decisions_total",
		Help: "Toggle decisions by environment and outcome",
	}, []string{"environment", "outcome"})
	riskScores = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "safeflag_risk_score",
		Help:    "Distribution of risk scores seen by the gatekeeper",
		Buckets: prometheus.LinearBuckets(1, 1, 10),
	})
)

type prometheusObserver struct {
	onlineGauge prometheus.Gauge
	pushCounter prometheus.Counter
	pushLatency prometheus.Observer
	eventLag    prometheus.Gauge
}

func NewPrometheusObserver() HubObserver {
	return &prometheusObserver{
		onlineGauge: onlineGauge,
		pushCounter: pushCounter,
		pushLatency: pushLatency,
		eventLag:    eventLag,
	}
}

func Handler() http.Handler {
	return promhttp.Handler()
}

func (p *prometheusObserver) IncOnline() {
	p.onlineGauge.Inc()
}

func (p *prometheusObserver) DecOnline() {
	p.onlineGauge.Dec()
}

func (p *prometheusObserver) RecordPush() {
	p.pushCounter.Inc()
}

func (p *prometheusObserver) ObservePushLatency(duration float64) {
	p.pushLatency.Observe(duration)
}

func (p *prometheusObserver) UpdateEventLag(lag int) {
	p.eventLag.Set(float64(lag))
}

type prometheusGateObserver struct {
	assessments *prometheus.CounterVec
	decisions   *prometheus.CounterVec
	scores      prometheus.Observer
}

func NewPrometheusGateObserver() GateObserver {
	return &prometheusGateObserver{
		assessments: riskAssessments,
		decisions:   toggleDecisions,
		scores:      riskScores,
	}
}

func (p *prometheusGateObserver) RecordAssessment(provider, outcome string) {
	p.assessments.WithLabelValues(provider, outcome).Inc()
}

func (p *prometheusGateObserver) RecordDecision(env, outcome string) {
	p.decisions.WithLabelValues(env, outcome).Inc()
}

func (p *prometheusGateObserver) ObserveRiskScore(score int) {
	p.scores.Observe(float64(score))
}
