package v1

import (
	"encoding/json"
	"safeflag/pkg/constraints"
)

// FlagState is the published state of one flag in one environment.
type FlagState struct {
	Key      string `json:"key"`
	Env      string `json:"env"`
	Enabled  bool   `json:"enabled"`
	Version  int    `json:"version"`  // status version, bumped on every flip
	Revision int64  `json:"revision"` // overall etcd revision
}

// RiskReport is the normalized result of a risk assessment.
type RiskReport struct {
	RiskScore       int    `json:"risk_score"`
	Advice          string `json:"advice"`
	RiskLevel       string `json:"risk_level"`
	BlastRadiusHits *int64 `json:"blast_radius_hits,omitempty"`
}

const (
	RiskLow    = "low"
	RiskMedium = "medium"
	RiskHigh   = "high"
)

type Message struct {
	Env      string             `json:"env"`
	Key      string             `json:"key"`
	Enabled  bool               `json:"enabled"`
	Version  int                `json:"version"`
	Revision int64              `json:"revision"`
	Action   constraints.Action `json:"action"`
	Type     string             `json:"type,omitempty"`
}

// Supersedes reports whether f should replace current. Versions only move
// forward; at an equal version the database copy wins on the enabled bit.
func (f FlagState) Supersedes(current FlagState) bool {
	if f.Version != current.Version {
		return f.Version > current.Version
	}
	return f.Enabled != current.Enabled
}

func (f FlagState) ToJSON() string {
	b, err := json.Marshal(f)
	if err != nil {
		panic("safeflag serialization failed" + err.Error())
	}
	return string(b)
}

func (f FlagState) ToMessage(action constraints.Action) Message {
	return Message{
		Env:      f.Env,
		Key:      f.Key,
		Enabled:  f.Enabled,
		Version:  f.Version,
		Revision: f.Revision,
		Action:   action,
	}
}
