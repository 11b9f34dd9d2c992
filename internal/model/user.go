package model

import "time"

type User struct {
	ID           uint64    `gorm:"primaryKey" json:"id"`
	Email        string    `gorm:"size:120;uniqueIndex;not null" json:"email"`
	PasswordHash string    `gorm:"size:256;not null" json:"-"`
	Role         string    `gorm:"size:20;not null;default:developer" json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}

// All lists every model for auto-migration.
func All() []any {
	return []any{
		&Environment{},
		&Flag{},
		&FlagStatus{},
		&FlagEvaluation{},
		&AuditEntry{},
		&OutboxTask{},
		&SDKClient{},
		&User{},
	}
}
