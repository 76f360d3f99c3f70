package models

import (
	"time"
)

type User struct {
	ID     string `gorm:"primaryKey;type:varchar(64)"`
	Name   string `gorm:"type:varchar(255);not null"`
	Email  string `gorm:"type:varchar(255)"`
	Avatar string `gorm:"type:text"`
	Bio    string `gorm:"type:text"`

	// AI trading persona. Empty until matched or chosen.
	TradingStyle  string `gorm:"type:varchar(64)"`
	CustomPersona string `gorm:"type:text"`

	AccessToken    string    `gorm:"type:text"`
	RefreshToken   string    `gorm:"type:text"`
	TokenExpiresAt time.Time `gorm:"type:timestamptz"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (User) TableName() string {
	return "users"
}
