package model

import (
	"time"

	v1 "safeflag/pkg/api/v1"
)

const (
	ActionToggleOn           = "TOGGLE_ON"
	ActionToggleOff          = "TOGGLE_OFF"
	ActionAIBlock            = "AI_BLOCK"
	ActionManagerOverrideOn  = "MANAGER_OVERRIDE_ON"
	ActionManagerOverrideOff = "MANAGER_OVERRIDE_OFF"
	ActionFlagCreated        = "FLAG_CREATED"
)

// AuditEntry is an append-only ledger row. FlagID is a soft reference.
type AuditEntry struct {
	ID         int64          `json:"id" gorm:"primaryKey"`
	FlagID     uint64         `json:"flag_id" gorm:"index"`
	EnvName    string         `json:"env_name" gorm:"size:50"`
	Action     string         `json:"action" gorm:"size:64"`
	Reason     string         `json:"reason" gorm:"type:text"`
	RiskReport *v1.RiskReport `json:"ai_metadata" gorm:"type:text;serializer:json"`
	Operator   string         `json:"operator" gorm:"size:128"`
	TraceID    string         `json:"trace_id" gorm:"size:36;index"`
	CreatedAt  time.Time      `json:"timestamp" gorm:"index"`
}

func (AuditEntry) TableName() string {
	return "audit_logs"
}

// ToggleAction names the ledger action for a committed flip.
func ToggleAction(enabled, override bool) string {
	switch {
	case override && enabled:
		return ActionManagerOverrideOn
	case override:
		return ActionManagerOverrideOff
	case enabled:
		return ActionToggleOn
	default:
		return ActionToggleOff
	}
}
