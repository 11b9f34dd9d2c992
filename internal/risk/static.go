package risk

import (
	"context"
	"sync"

	v1 "safeflag/pkg/api/v1"
)

// StaticAssessor returns the same report every time and remembers what it was asked.
type StaticAssessor struct {
	report v1.RiskReport

	mu    sync.Mutex
	calls int
	last  Input
}

func NewStaticAssessor(score int, advice string) *StaticAssessor {
	score = clamp(score)
	return &StaticAssessor{report: v1.RiskReport{
		RiskScore: score,
		RiskLevel: LevelFor(score),
		Advice:    advice,
	}}
}

func (s *StaticAssessor) Assess(_ context.Context, in Input) v1.RiskReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.last = in
	return s.report
}

func (s *StaticAssessor) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *StaticAssessor) LastInput() Input {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}
