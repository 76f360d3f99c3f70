package db

import (
	"papertrade/internal/models"
)

func AutoMigrate(db *DB) error {
	if db == nil || db.Gorm == nil || db.SQL == nil {
		return nil
	}

	return db.Gorm.AutoMigrate(
		&models.User{},
		&models.Portfolio{},
		&models.Holding{},
		&models.Trade{},
		&models.PortfolioSnapshot{},
		&models.BatchRun{},
	)
}
