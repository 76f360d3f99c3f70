package models

import (
	"time"

	"gorm.io/datatypes"
)

// BatchRun records one orchestration run for observability. Results holds the
// per-account outcome list as JSON; it never drives control flow.
type BatchRun struct {
	ID         uint64    `gorm:"primaryKey;autoIncrement"`
	StartedAt  time.Time `gorm:"type:timestamptz;not null"`
	FinishedAt time.Time `gorm:"type:timestamptz;not null"`

	TotalAccounts int `gorm:"not null"`
	Succeeded     int `gorm:"not null"`
	Failed        int `gorm:"not null"`
	NoTrade       int `gorm:"not null"`
	Liquidated    int `gorm:"not null"`

	Results datatypes.JSON `gorm:"type:jsonb"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
}

func (BatchRun) TableName() string {
	return "batch_runs"
}
