package resp

import (
	"time"

	"safeflag/internal/model"
	v1 "safeflag/pkg/api/v1"
)

type StatusItem struct {
	ID              uint64    `json:"id"`
	EnvironmentID   uint64    `json:"environment_id"`
	EnvironmentName string    `json:"environment_name"`
	IsEnabled       bool      `json:"is_enabled"`
	Version         int       `json:"version"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type FlagItem struct {
	ID          uint64       `json:"id"`
	Name        string       `json:"name"`
	Key         string       `json:"key"`
	Description string       `json:"description"`
	CreatedAt   time.Time    `json:"created_at"`
	Statuses    []StatusItem `json:"statuses"`
}

func NewStatusItem(s model.FlagStatus) StatusItem {
	name := s.Environment.Name
	if name == "" {
		name = "Unknown"
	}
	return StatusItem{
		ID:              s.ID,
		EnvironmentID:   s.EnvironmentID,
		EnvironmentName: name,
		IsEnabled:       s.IsEnabled,
		Version:         s.Version,
		UpdatedAt:       s.UpdatedAt,
	}
}

func NewFlagItem(f model.Flag) FlagItem {
	statuses := make([]StatusItem, 0, len(f.Statuses))
	for _, s := range f.Statuses {
		statuses = append(statuses, NewStatusItem(s))
	}
	return FlagItem{
		ID:          f.ID,
		Name:        f.Name,
		Key:         f.Key,
		Description: f.Description,
		CreatedAt:   f.CreatedAt,
		Statuses:    statuses,
	}
}

type TrafficStat struct {
	Key  string `json:"key"`
	Hits int64  `json:"hits"`
}

// BlockedResp is the payload of a refused toggle.
type BlockedResp struct {
	Message string        `json:"message"`
	Report  v1.RiskReport `json:"report"`
}

type SnapshotResponse struct {
	Data     []v1.FlagState `json:"data"`
	Revision int64          `json:"revision"`
}

type SDKKeyItem struct {
	AppID     string    `json:"app_id"`
	APIKey    string    `json:"api_key"`
	Env       string    `json:"env"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

type ToggleResp struct {
	Status StatusItem     `json:"status"`
	Action string         `json:"action"`
	Report *v1.RiskReport `json:"report,omitempty"`
}

type HealthResp struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}
