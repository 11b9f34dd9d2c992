package model

import (
	"strings"
	"time"

	"safeflag/pkg/constraints"
)

// Flag is a feature toggle definition. Key is immutable after creation.
type Flag struct {
	ID          uint64           `gorm:"primaryKey" json:"id"`
	Name        string           `gorm:"size:100;not null" json:"name"`
	Key         string           `gorm:"size:50;uniqueIndex;not null" json:"key"`
	Description string           `gorm:"type:text" json:"description"`
	CreatedAt   time.Time        `json:"created_at"`
	Statuses    []FlagStatus     `gorm:"foreignKey:FlagID;constraint:OnDelete:CASCADE" json:"statuses"`
	Evaluations []FlagEvaluation `gorm:"foreignKey:FlagID;constraint:OnDelete:CASCADE" json:"-"`
}

type Environment struct {
	ID   uint64 `gorm:"primaryKey" json:"id"`
	Name string `gorm:"size:50;uniqueIndex;not null" json:"name"`
}

// IsProduction reports whether the risk gate applies to this environment.
func (e *Environment) IsProduction() bool {
	return strings.EqualFold(e.Name, constraints.ProductionEnv)
}

// FlagStatus is the enabled bit of one (flag, environment) pair.
type FlagStatus struct {
	ID            uint64      `gorm:"primaryKey" json:"id"`
	FlagID        uint64      `gorm:"not null;uniqueIndex:idx_flag_env" json:"flag_id"`
	EnvironmentID uint64      `gorm:"not null;uniqueIndex:idx_flag_env" json:"environment_id"`
	IsEnabled     bool        `gorm:"not null;default:false" json:"is_enabled"`
	Version       int         `gorm:"not null;default:0" json:"version"`
	UpdatedAt     time.Time   `json:"updated_at"`
	Environment   Environment `gorm:"foreignKey:EnvironmentID" json:"-"`
}

// FlagEvaluation is one observed read of a flag by a client.
type FlagEvaluation struct {
	ID              uint64    `gorm:"primaryKey"`
	FlagID          uint64    `gorm:"not null;index:idx_eval_flag_time"`
	EnvironmentName string    `gorm:"size:50;default:Production"`
	CreatedAt       time.Time `gorm:"index:idx_eval_flag_time"`
}
