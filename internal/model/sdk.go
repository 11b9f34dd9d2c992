package model

import "time"

type SDKClient struct {
	ID        uint64 `gorm:"primaryKey"`
	AppID     string `gorm:"size:64;not null"`
	APIKey    string `gorm:"size:64;not null;uniqueIndex"`
	Env       string `gorm:"size:50;not null"`
	Status    int    `gorm:"default:1"`
	CreatedBy string `gorm:"size:128"`
	CreatedAt time.Time
}
